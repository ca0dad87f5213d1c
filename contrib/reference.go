package contrib

import (
	"github.com/shopspring/decimal"
)

// ReferenceSource names where a reference wage came from.
type ReferenceSource string

const (
	SourcePriorYearAverage ReferenceSource = "prior_year_average"
	SourceFirstMonthWage   ReferenceSource = "first_month_wage"
)

// Label is the human-readable form stored on result rows.
func (s ReferenceSource) Label() string {
	switch s {
	case SourcePriorYearAverage:
		return "prior-year average wage"
	case SourceFirstMonthWage:
		return "first-month wage"
	}
	return string(s)
}

func (s ReferenceSource) other() ReferenceSource {
	if s == SourcePriorYearAverage {
		return SourceFirstMonthWage
	}
	return SourcePriorYearAverage
}

// PreferredSource returns the source a category should use.
func PreferredSource(c Category) ReferenceSource {
	if c == CategoryA {
		return SourcePriorYearAverage
	}
	return SourceFirstMonthWage
}

// Reference is the selected contribution reference for one basis.
type Reference struct {
	Amount    decimal.Decimal
	Source    ReferenceSource
	Preferred ReferenceSource

	// Fallback is set when Source differs from Preferred. It is an audited
	// policy decision, surfaced on result rows and in logs.
	Fallback bool
}

func sourceValue(b EmployeeBaseline, s ReferenceSource, basis Basis) decimal.NullDecimal {
	if s == SourcePriorYearAverage {
		return b.AverageWage(basis)
	}
	return b.FirstMonthWage(basis)
}

// SelectReference picks the reference wage for a category and basis.
// When the preferred source is null the other source on the same basis is
// used as a last resort. Both null yields *MissingReferenceError; there is
// no zero-fill.
func SelectReference(c Category, basis Basis, b EmployeeBaseline) (Reference, error) {
	preferred := PreferredSource(c)
	if v := sourceValue(b, preferred, basis); v.Valid {
		return Reference{Amount: Round2(v.Decimal), Source: preferred, Preferred: preferred}, nil
	}

	alt := preferred.other()
	if v := sourceValue(b, alt, basis); v.Valid {
		return Reference{Amount: Round2(v.Decimal), Source: alt, Preferred: preferred, Fallback: true}, nil
	}

	return Reference{}, &MissingReferenceError{EmployeeID: b.EmployeeID, Basis: basis, Preferred: preferred}
}
