package contrib

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// PERIOD - Half-year policy window
// =============================================================================

// HalfYear names the policy window within a year.
type HalfYear string

const (
	H1 HalfYear = "H1" // January - June
	H2 HalfYear = "H2" // July - December
)

func ParseHalfYear(s string) (HalfYear, error) {
	switch HalfYear(strings.ToUpper(strings.TrimSpace(s))) {
	case H1:
		return H1, nil
	case H2:
		return H2, nil
	}
	return "", fmt.Errorf("%w: half-year %q (want H1 or H2)", ErrInvalidPeriod, s)
}

// Period is one half-year. Each Period has its own PolicyRule.
//
// Examples:
//   - {2023, H1}: 202301 - 202306
//   - {2023, H2}: 202307 - 202312
type Period struct {
	Year int
	Half HalfYear
}

func NewPeriod(year int, half HalfYear) Period {
	return Period{Year: year, Half: half}
}

// PeriodOf returns the half-year containing m.
func PeriodOf(m Month) Period {
	if m.Month >= time.July {
		return Period{Year: m.Year, Half: H2}
	}
	return Period{Year: m.Year, Half: H1}
}

func (p Period) Validate() error {
	if p.Year <= 0 {
		return fmt.Errorf("%w: year %d", ErrInvalidPeriod, p.Year)
	}
	if p.Half != H1 && p.Half != H2 {
		return fmt.Errorf("%w: half-year %q", ErrInvalidPeriod, p.Half)
	}
	return nil
}

// Start returns the first calculation month of the period.
func (p Period) Start() Month {
	if p.Half == H2 {
		return NewMonth(p.Year, time.July)
	}
	return NewMonth(p.Year, time.January)
}

// End returns the last calculation month of the period.
func (p Period) End() Month {
	return p.Start().AddMonths(5)
}

// Months returns the six calculation months in order.
func (p Period) Months() []Month {
	months := make([]Month, 0, 6)
	for m := p.Start(); !m.After(p.End()); m = m.AddMonths(1) {
		months = append(months, m)
	}
	return months
}

// MonthsFrom returns the period's months at or after first.
// An employee who joined mid-period gets no rows before joining.
func (p Period) MonthsFrom(first Month) []Month {
	var months []Month
	for _, m := range p.Months() {
		if !m.Before(first) {
			months = append(months, m)
		}
	}
	return months
}

func (p Period) Contains(m Month) bool {
	return !m.Before(p.Start()) && !m.After(p.End())
}

// ReferenceYear is the calendar year whose average wage feeds category A
// references for this period.
func (p Period) ReferenceYear() int {
	return p.Year - 1
}

// FirstDay and LastDay bound the period as dates.
func (p Period) FirstDay() time.Time { return p.Start().FirstDay() }
func (p Period) LastDay() time.Time  { return p.End().LastDay() }

func (p Period) String() string {
	return fmt.Sprintf("%d-%s", p.Year, p.Half)
}
