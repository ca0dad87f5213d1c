/*
calculator.go - Base clamp and payment calculation

PURPOSE:
  Turns a reference wage into per-insurance contribution lines:

    adjustedBase(i) = round2(clamp(reference, floor(i), cap(i)))
    payment(i)      = round2(adjustedBase(i) * rate(i))
    total           = round2(sum of payment(i))

  Rounding happens at each line so stored lines reconcile exactly with the
  stored total. No unrounded total is ever exposed.

UNBANDED LINES:
  A null floor or cap leaves that side unclamped (injury insurance in most
  policies). The missing bound is recorded as the adjusted base so audit
  columns are never empty.
*/
package contrib

import (
	"github.com/shopspring/decimal"
)

// Clamp bounds value into [floor, cap]. A null bound does not constrain.
func Clamp(value decimal.Decimal, floor, ceiling decimal.NullDecimal) decimal.Decimal {
	if floor.Valid && value.LessThan(floor.Decimal) {
		return floor.Decimal
	}
	if ceiling.Valid && value.GreaterThan(ceiling.Decimal) {
		return ceiling.Decimal
	}
	return value
}

// Line is one computed contribution line.
type Line struct {
	Insurance    Insurance
	BaseFloor    decimal.Decimal
	BaseCap      decimal.Decimal
	AdjustedBase decimal.Decimal
	Rate         decimal.Decimal
	Payment      decimal.Decimal
}

// Contribution is the full computation for one reference wage.
type Contribution struct {
	Reference decimal.Decimal
	Lines     []Line
	Total     decimal.Decimal
}

// Line returns the line for an insurance, if the policy defines it.
func (c Contribution) Line(i Insurance) (Line, bool) {
	for _, l := range c.Lines {
		if l.Insurance == i {
			return l, true
		}
	}
	return Line{}, false
}

// Calculate applies every line of the policy to the reference wage.
func Calculate(policy PolicyRule, reference decimal.Decimal) Contribution {
	reference = Round2(reference)
	out := Contribution{Reference: reference, Total: decimal.Zero}
	sum := decimal.Zero

	for _, lr := range policy.Lines() {
		line := calculateLine(lr, reference)
		out.Lines = append(out.Lines, line)
		sum = sum.Add(line.Payment)
	}

	out.Total = Round2(sum)
	return out
}

func calculateLine(lr LineRule, reference decimal.Decimal) Line {
	adjusted := Round2(Clamp(reference, lr.Rule.Floor, lr.Rule.Cap))

	floor, ceiling := adjusted, adjusted
	if lr.Rule.Floor.Valid {
		floor = lr.Rule.Floor.Decimal
	}
	if lr.Rule.Cap.Valid {
		ceiling = lr.Rule.Cap.Decimal
	}

	return Line{
		Insurance:    lr.Insurance,
		BaseFloor:    floor,
		BaseCap:      ceiling,
		AdjustedBase: adjusted,
		Rate:         lr.Rule.Rate,
		Payment:      Round2(adjusted.Mul(lr.Rule.Rate)),
	}
}
