// Package money holds the rounding rules for client-side price estimates.
package money

import "github.com/shopspring/decimal"

// Round2 rounds to two decimal places, half away from zero.
//
// The float is first converted through its shortest decimal representation, so
// binary artefacts such as 0.30000000000000004 round to 0.30 rather than being
// carried into the result.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// Percent returns rate/100 as a fraction, rounded to 6 places so that values like
// 7.25% do not surface as 0.07250000000000001 in outbound payloads.
func Percent(rate float64) float64 {
	f, _ := decimal.NewFromFloat(rate).Shift(-2).Round(6).Float64()
	return f
}
