/*
Package contrib provides the theoretical contribution engine.

PURPOSE:
  Computes the social-insurance and housing-fund contributions an employer
  should have paid for each employee and month of a half-year policy
  period. The engine reconciles two wage-basis assumptions (wide: gross
  salary, narrow: basic salary) against per-insurance floors, caps and
  enterprise rates.

KEY CONCEPTS IN THIS FILE (types.go):
  - Basis: which salary column feeds the reference wage
  - Category: tenure classification (A/B/C) for a calculation month
  - Insurance: the contribution lines a policy defines
  - Round2: the single rounding rule used for all money

PIPELINE:
  PolicyRule + EmployeeBaseline
      -> Classify        (classify.go)
      -> SelectReference (reference.go)
      -> Calculate       (calculator.go)
      -> ResultRow       (orchestrator.go)

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, rounded half-up to 2dp
  2. Pure math: classification and arithmetic hold no state
  3. Explicit nulls: decimal.NullDecimal for optional figures, never zero-fill

SEE ALSO:
  - policy.go: PolicyRule and validation
  - baseline.go: EmployeeBaseline and derivation from salary rows
  - orchestrator.go: batch driver
*/
package contrib

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string

// =============================================================================
// BASIS - Wage assumption
// =============================================================================

type Basis string

const (
	BasisWide   Basis = "wide"   // gross salary
	BasisNarrow Basis = "narrow" // basic salary
)

// AllBases is the default set computed by a batch run.
var AllBases = []Basis{BasisWide, BasisNarrow}

func ParseBasis(s string) (Basis, error) {
	switch Basis(s) {
	case BasisWide, BasisNarrow:
		return Basis(s), nil
	}
	return "", fmt.Errorf("unknown basis %q (want wide or narrow)", s)
}

// =============================================================================
// CATEGORY - Tenure classification
// =============================================================================

type Category string

const (
	CategoryA Category = "A" // hired before the anchor year
	CategoryB Category = "B" // hired in the anchor year
	CategoryC Category = "C" // hired in the year after the anchor
)

// =============================================================================
// INSURANCE - Contribution lines
// =============================================================================

type Insurance string

const (
	Pension      Insurance = "pension"
	Medical      Insurance = "medical"
	Unemployment Insurance = "unemployment"
	Injury       Insurance = "injury"
	Maternity    Insurance = "maternity"
	HousingFund  Insurance = "housing_fund"
)

// InsuranceOrder is the fixed order lines appear in results and exports.
var InsuranceOrder = []Insurance{Pension, Medical, Unemployment, Injury, Maternity, HousingFund}

// =============================================================================
// MONEY
// =============================================================================

// Round2 rounds half-up to two decimal places.
// decimal.Round rounds half away from zero, which is half-up for the
// non-negative amounts this engine handles.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Money builds a 2dp decimal from a string literal. Panics on malformed input;
// intended for constants and tests.
func Money(s string) decimal.Decimal {
	return Round2(decimal.RequireFromString(s))
}

// NullMoney builds a present NullDecimal from a string literal.
func NullMoney(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(Money(s))
}
