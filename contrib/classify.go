package contrib

import (
	"time"
)

// AnchorYear returns the social-security year anchor for a calculation
// month. Contribution bases are re-based every July 1, so from July the
// anchor is the calendar year itself and before July it is the year before.
func AnchorYear(m Month) int {
	if m.Month >= time.July {
		return m.Year
	}
	return m.Year - 1
}

// Classify assigns the tenure category for a calculation month.
//
//	hireYear <  anchor      -> A (prior-year average wage)
//	hireYear == anchor      -> B (first-month wage)
//	hireYear == anchor + 1  -> C (first-month wage)
//	anything else           -> *InvalidHireYearError
func Classify(hireDate time.Time, m Month) (Category, error) {
	anchor := AnchorYear(m)
	switch hy := hireDate.Year(); {
	case hy < anchor:
		return CategoryA, nil
	case hy == anchor:
		return CategoryB, nil
	case hy == anchor+1:
		return CategoryC, nil
	}
	return "", &InvalidHireYearError{HireDate: hireDate, Month: m, Anchor: anchor}
}
