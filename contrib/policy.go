/*
policy.go - Half-year contribution policy

PURPOSE:
  A PolicyRule is the published rulebook for one (city, year, half-year):
  for every insurance line, the contribution-base floor and cap and the
  enterprise rate. Rules are validated when they are loaded, so the
  calculator never discovers a malformed band mid-computation.

INVARIANTS:
  - exactly one rule per (city, year, period)
  - floor <= cap when both are present
  - 0 <= rate <= 1
  - only injury insurance may omit floor/cap ("null means unclamped")
  - immutable once published; retroactive edits go through a supersede
    that bumps Revision and requires results to be recomputed

EXAMPLE:
  rule := PolicyRule{
      City: "shenzhen", Year: 2023, Half: H1,
      Pension: InsuranceRule{Floor: NullMoney("3958"), Cap: NullMoney("22941"), Rate: decimal.RequireFromString("0.14")},
      ...
  }
  if err := rule.Validate(); err != nil { ... }
*/
package contrib

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PolicySchemaVersion is stamped on every stored rule. Bump it when the
// shape of PolicyRule changes and add a migration step in store/sqlite.
const PolicySchemaVersion = 1

// InsuranceRule is the band and rate for one contribution line.
type InsuranceRule struct {
	Floor decimal.NullDecimal
	Cap   decimal.NullDecimal
	Rate  decimal.Decimal
}

// PolicyRule defines contribution bands and rates for one half-year.
type PolicyRule struct {
	City string
	Year int
	Half HalfYear

	// Effective range, inclusive. Defaults to the half-year bounds.
	EffectiveFrom time.Time
	EffectiveTo   time.Time

	Pension      InsuranceRule
	Medical      InsuranceRule
	Unemployment InsuranceRule
	Injury       InsuranceRule
	// Maternity is nil where it has been merged into medical insurance.
	Maternity   *InsuranceRule
	HousingFund InsuranceRule

	SchemaVersion int
	Revision      int
}

// Period returns the half-year this rule governs.
func (p PolicyRule) Period() Period { return Period{Year: p.Year, Half: p.Half} }

// LineRule pairs an insurance with its rule.
type LineRule struct {
	Insurance Insurance
	Rule      InsuranceRule
}

// Lines returns the rule's contribution lines in InsuranceOrder.
func (p PolicyRule) Lines() []LineRule {
	lines := []LineRule{
		{Pension, p.Pension},
		{Medical, p.Medical},
		{Unemployment, p.Unemployment},
		{Injury, p.Injury},
	}
	if p.Maternity != nil {
		lines = append(lines, LineRule{Maternity, *p.Maternity})
	}
	return append(lines, LineRule{HousingFund, p.HousingFund})
}

// WithDefaults fills the effective range and schema version when unset.
func (p PolicyRule) WithDefaults() PolicyRule {
	period := p.Period()
	if p.EffectiveFrom.IsZero() && period.Validate() == nil {
		p.EffectiveFrom = period.FirstDay()
	}
	if p.EffectiveTo.IsZero() && period.Validate() == nil {
		p.EffectiveTo = period.LastDay()
	}
	if p.SchemaVersion == 0 {
		p.SchemaVersion = PolicySchemaVersion
	}
	if p.Revision == 0 {
		p.Revision = 1
	}
	return p
}

// Validate checks every invariant and returns a *PolicyValidationError
// listing all problems found.
func (p PolicyRule) Validate() error {
	var problems []string
	if p.City == "" {
		problems = append(problems, "city is required")
	}
	period := p.Period()
	if err := period.Validate(); err != nil {
		problems = append(problems, err.Error())
	} else {
		if !p.EffectiveFrom.IsZero() && p.EffectiveFrom.Before(period.FirstDay()) {
			problems = append(problems, "effective_from precedes the half-year")
		}
		if !p.EffectiveTo.IsZero() && p.EffectiveTo.After(period.LastDay()) {
			problems = append(problems, "effective_to exceeds the half-year")
		}
	}
	if !p.EffectiveFrom.IsZero() && !p.EffectiveTo.IsZero() && p.EffectiveTo.Before(p.EffectiveFrom) {
		problems = append(problems, "effective_to before effective_from")
	}

	for _, line := range p.Lines() {
		problems = append(problems, validateLine(line)...)
	}

	if len(problems) > 0 {
		return &PolicyValidationError{City: p.City, Year: p.Year, Half: p.Half, Problems: problems}
	}
	return nil
}

var one = decimal.NewFromInt(1)

func validateLine(line LineRule) []string {
	var problems []string
	r := line.Rule
	if r.Rate.IsNegative() || r.Rate.GreaterThan(one) {
		problems = append(problems, fmt.Sprintf("%s rate %s outside [0,1]", line.Insurance, r.Rate))
	}
	if line.Insurance != Injury && (!r.Floor.Valid || !r.Cap.Valid) {
		problems = append(problems, fmt.Sprintf("%s floor and cap are required", line.Insurance))
	}
	if r.Floor.Valid && r.Floor.Decimal.IsNegative() {
		problems = append(problems, fmt.Sprintf("%s floor %s is negative", line.Insurance, r.Floor.Decimal))
	}
	if r.Floor.Valid && r.Cap.Valid && r.Floor.Decimal.GreaterThan(r.Cap.Decimal) {
		problems = append(problems, fmt.Sprintf("%s floor %s exceeds cap %s", line.Insurance, r.Floor.Decimal, r.Cap.Decimal))
	}
	return problems
}
