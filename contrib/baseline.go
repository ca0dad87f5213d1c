package contrib

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EMPLOYEE BASELINE - Precomputed reference figures
// =============================================================================

// EmployeeBaseline carries the figures an employee's reference wage is
// selected from, under both wage bases, for one reference year.
type EmployeeBaseline struct {
	EmployeeID    EmployeeID
	ReferenceYear int
	HireDate      time.Time

	// Average monthly wage over ReferenceYear.
	AvgWageWide   decimal.NullDecimal
	AvgWageNarrow decimal.NullDecimal

	// Wage of the first payroll month at or after FirstInsuranceMonth.
	FirstMonthWageWide   decimal.NullDecimal
	FirstMonthWageNarrow decimal.NullDecimal

	FirstInsuranceMonth Month
}

// Validate rejects rows the engine cannot compute from: a missing ID or
// hire date, a non-positive reference year, negative wages, or a malformed
// first-insurance month. A zero FirstInsuranceMonth means "derive it".
func (b EmployeeBaseline) Validate() error {
	switch {
	case b.EmployeeID == "":
		return fmt.Errorf("%w: employee_id is required", ErrInvalidBaseline)
	case b.ReferenceYear <= 0:
		return fmt.Errorf("%w: employee %s: reference_year %d", ErrInvalidBaseline, b.EmployeeID, b.ReferenceYear)
	case b.HireDate.IsZero():
		return fmt.Errorf("%w: employee %s: hire_date is required", ErrInvalidBaseline, b.EmployeeID)
	case b.FirstInsuranceMonth != (Month{}) && !b.FirstInsuranceMonth.Valid():
		return fmt.Errorf("%w: employee %s: first_insurance_month %d is invalid", ErrInvalidBaseline, b.EmployeeID, b.FirstInsuranceMonth.Int())
	}
	wages := []struct {
		name string
		v    decimal.NullDecimal
	}{
		{"avg_wage_wide", b.AvgWageWide},
		{"avg_wage_narrow", b.AvgWageNarrow},
		{"first_month_wage_wide", b.FirstMonthWageWide},
		{"first_month_wage_narrow", b.FirstMonthWageNarrow},
	}
	for _, w := range wages {
		if w.v.Valid && w.v.Decimal.IsNegative() {
			return fmt.Errorf("%w: employee %s: %s %s is negative", ErrInvalidBaseline, b.EmployeeID, w.name, w.v.Decimal)
		}
	}
	return nil
}

// AverageWage returns the prior-year average for the basis.
func (b EmployeeBaseline) AverageWage(basis Basis) decimal.NullDecimal {
	if basis == BasisNarrow {
		return b.AvgWageNarrow
	}
	return b.AvgWageWide
}

// FirstMonthWage returns the first-month wage for the basis.
func (b EmployeeBaseline) FirstMonthWage(basis Basis) decimal.NullDecimal {
	if basis == BasisNarrow {
		return b.FirstMonthWageNarrow
	}
	return b.FirstMonthWageWide
}

// InsuranceStart returns FirstInsuranceMonth, deriving it from the hire date
// when the row did not carry one.
func (b EmployeeBaseline) InsuranceStart() Month {
	if b.FirstInsuranceMonth.Valid() {
		return b.FirstInsuranceMonth
	}
	return FirstInsuranceMonth(b.HireDate)
}

// FirstInsuranceMonth applies the mid-month cutoff: hired after the 15th,
// insurance starts the following month.
func FirstInsuranceMonth(hireDate time.Time) Month {
	m := MonthOf(hireDate)
	if hireDate.Day() > 15 {
		return m.AddMonths(1)
	}
	return m
}

// =============================================================================
// SALARY RECORDS - Normalized payroll input
// =============================================================================

// SalaryRecord is one normalized payroll row supplied by the import layer.
type SalaryRecord struct {
	EmployeeID  EmployeeID
	HireDate    time.Time
	SalaryMonth Month
	BasicSalary decimal.Decimal
	GrossSalary decimal.Decimal
}

func (r SalaryRecord) Validate() error {
	switch {
	case r.EmployeeID == "":
		return fmt.Errorf("%w: employee_id is required", ErrInvalidSalaryRecord)
	case r.HireDate.IsZero():
		return fmt.Errorf("%w: employee %s: hire_date is required", ErrInvalidSalaryRecord, r.EmployeeID)
	case !r.SalaryMonth.Valid():
		return fmt.Errorf("%w: employee %s: salary_month is invalid", ErrInvalidSalaryRecord, r.EmployeeID)
	case r.BasicSalary.IsNegative() || r.GrossSalary.IsNegative():
		return fmt.Errorf("%w: employee %s month %s: negative salary", ErrInvalidSalaryRecord, r.EmployeeID, r.SalaryMonth)
	}
	return nil
}

// Wage returns the salary column for the basis.
func (r SalaryRecord) Wage(basis Basis) decimal.Decimal {
	if basis == BasisNarrow {
		return r.BasicSalary
	}
	return r.GrossSalary
}

// BuildBaselines derives one baseline per employee from salary rows.
//
// The average covers the months of referenceYear with payroll, so an
// employee with no payroll that year gets null averages and falls back to
// the first-month wage. The first-month wage is the earliest payroll month
// at or after the first-insurance month, looking no further than the end of
// the year after referenceYear.
func BuildBaselines(referenceYear int, records []SalaryRecord) (map[EmployeeID]EmployeeBaseline, error) {
	byEmployee := make(map[EmployeeID][]SalaryRecord)
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		byEmployee[r.EmployeeID] = append(byEmployee[r.EmployeeID], r)
	}

	out := make(map[EmployeeID]EmployeeBaseline, len(byEmployee))
	for id, rows := range byEmployee {
		sort.Slice(rows, func(i, j int) bool { return rows[i].SalaryMonth.Before(rows[j].SalaryMonth) })

		b := EmployeeBaseline{
			EmployeeID:          id,
			ReferenceYear:       referenceYear,
			HireDate:            rows[0].HireDate,
			FirstInsuranceMonth: FirstInsuranceMonth(rows[0].HireDate),
		}

		var sumWide, sumNarrow decimal.Decimal
		var n int64
		for _, r := range rows {
			if r.SalaryMonth.Year != referenceYear {
				continue
			}
			sumWide = sumWide.Add(r.GrossSalary)
			sumNarrow = sumNarrow.Add(r.BasicSalary)
			n++
		}
		if n > 0 {
			count := decimal.NewFromInt(n)
			b.AvgWageWide = decimal.NewNullDecimal(Round2(sumWide.Div(count)))
			b.AvgWageNarrow = decimal.NewNullDecimal(Round2(sumNarrow.Div(count)))
		}

		horizon := NewMonth(referenceYear+1, time.December)
		for _, r := range rows {
			if r.SalaryMonth.Before(b.FirstInsuranceMonth) || r.SalaryMonth.After(horizon) {
				continue
			}
			b.FirstMonthWageWide = decimal.NewNullDecimal(Round2(r.GrossSalary))
			b.FirstMonthWageNarrow = decimal.NewNullDecimal(Round2(r.BasicSalary))
			break
		}

		out[id] = b
	}
	return out, nil
}
