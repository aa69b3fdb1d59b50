// Package money provides shared helpers for monetary arithmetic.
//
// All monetary values in the service are decimal.Decimal and every
// user-visible amount is rounded to 2 decimal places with banker's
// rounding (round-half-even), so repeated adjustment/tax cycles do not
// drift upward the way round-half-up would.
package money

import "github.com/shopspring/decimal"

// Round2 rounds an amount to 2 decimal places using banker's rounding.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

// Clamp constrains price to [floor, ceiling]. It returns the clamped
// price and whether clamping changed the value.
func Clamp(price, floor, ceiling decimal.Decimal) (decimal.Decimal, bool) {
	if price.LessThan(floor) {
		return floor, true
	}
	if price.GreaterThan(ceiling) {
		return ceiling, true
	}
	return price, false
}

// Percent returns base * pct / 100.
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(decimal.NewFromInt(100))
}
