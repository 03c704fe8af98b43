// Package precision formats quantities and prices to the decimal precision a
// trading pair accepts. Values are truncated, never rounded: the venue rejects
// values with more decimals than the pair's step or tick allows.
package precision

import (
	"github.com/shopspring/decimal"

	"spotKeeper/internal/domain"
)

// maxDecimals bounds the fixed expansion used to derive decimal counts.
const maxDecimals = 9

var ten = decimal.NewFromInt(10)

// Decimals returns the number of fraction digits implied by a minimum step,
// i.e. the position of its first significant digit after the decimal point.
// 0.001 -> 3, 0.01 -> 2, 0.00000100 -> 6. Steps of 1 or more, zero and
// negative steps yield 0. Positive steps finer than 1e-9 are capped at 9.
func Decimals(step float64) int {
	d := decimal.NewFromFloat(step)
	if !d.IsPositive() {
		return 0
	}
	if d = d.Truncate(maxDecimals); !d.IsPositive() {
		return maxDecimals
	}
	n := 0
	for d.LessThan(decimal.NewFromInt(1)) && n < maxDecimals {
		d = d.Mul(ten)
		n++
	}
	return n
}

// Truncate cuts raw down to the given number of decimals and formats it with
// exactly that many fraction digits, '.' separator and no grouping.
func Truncate(raw float64, decimals int) string {
	return TruncateDecimal(decimal.NewFromFloat(raw), decimals)
}

// TruncateDecimal is Truncate for values already held as decimals.
func TruncateDecimal(raw decimal.Decimal, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	return raw.Truncate(int32(decimals)).StringFixed(int32(decimals))
}

// QuantityDecimals returns the quantity precision of a rule.
func QuantityDecimals(rule *domain.TradingRule) int {
	if rule == nil {
		return 0
	}
	return Decimals(rule.MinAmount)
}

// PriceDecimals returns the price precision of a rule.
func PriceDecimals(rule *domain.TradingRule) int {
	if rule == nil {
		return 0
	}
	return Decimals(rule.MinPrice)
}

// RoundQuantity formats a raw quantity for the rule's pair.
func RoundQuantity(rule *domain.TradingRule, raw float64) string {
	return Truncate(raw, QuantityDecimals(rule))
}

// RoundPrice formats a raw price for the rule's pair.
func RoundPrice(rule *domain.TradingRule, raw float64) string {
	return Truncate(raw, PriceDecimals(rule))
}
