package precision

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"spotKeeper/internal/domain"
)

func TestDecimals(t *testing.T) {
	tests := []struct {
		name string
		step float64
		want int
	}{
		{name: "thousandth", step: 0.001, want: 3},
		{name: "hundredth", step: 0.01, want: 2},
		{name: "ten-thousandth", step: 0.0001, want: 4},
		{name: "satoshi-like", step: 0.00000100, want: 6},
		{name: "smallest in expansion", step: 0.000000001, want: 9},
		{name: "below expansion", step: 0.0000000001, want: 9},
		{name: "far below expansion", step: 1e-12, want: 9},
		{name: "whole unit", step: 1, want: 0},
		{name: "above one", step: 10, want: 0},
		{name: "non-power step", step: 0.005, want: 3},
		{name: "zero", step: 0, want: 0},
		{name: "negative", step: -0.01, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decimals(tt.step))
		})
	}
}

func TestTruncate_NeverRoundsUp(t *testing.T) {
	assert.Equal(t, "1.2345", Truncate(1.23456, 4))
	assert.Equal(t, "1.9999", Truncate(1.99999, 4))
	assert.Equal(t, "100.45", Truncate(100.456, 2))
	assert.Equal(t, "2", Truncate(2.9, 0))
}

func TestTruncate_PadsToExactDecimals(t *testing.T) {
	assert.Equal(t, "2.500", Truncate(2.5, 3))
	assert.Equal(t, "99.50", Truncate(99.5, 2))
	assert.Equal(t, "0.00000000", Truncate(0, 8))
	assert.Equal(t, "3", Truncate(3, -1))
}

func TestTruncateDecimal(t *testing.T) {
	d := decimal.RequireFromString("1.80000000")
	assert.Equal(t, "1.800", TruncateDecimal(d, 3))
}

func TestRoundQuantityAndPrice(t *testing.T) {
	rule := &domain.TradingRule{Symbol: "ETHUSDT", MinAmount: 0.001, MinPrice: 0.01}

	assert.Equal(t, "2.500", RoundQuantity(rule, 2.5))
	assert.Equal(t, "100.45", RoundPrice(rule, 100.456))
	assert.Equal(t, "99.50", RoundPrice(rule, 99.5))

	fourDecimals := &domain.TradingRule{MinAmount: 0.0001, MinPrice: 0.0001}
	assert.Equal(t, "1.2345", RoundQuantity(fourDecimals, 1.23456))
}

func TestRoundQuantity_OutputHasRuleDecimals(t *testing.T) {
	steps := []float64{1, 0.1, 0.01, 0.001, 0.0001, 0.00001, 0.000001, 0.0000001, 0.00000001}
	raws := []float64{0.123456789, 12.987654321, 1000, 3.3}

	for i, step := range steps {
		rule := &domain.TradingRule{MinAmount: step, MinPrice: step}
		for _, raw := range raws {
			out := RoundQuantity(rule, raw)
			if i == 0 {
				assert.NotContains(t, out, ".")
				continue
			}
			dot := len(out) - i - 1
			if assert.GreaterOrEqual(t, dot, 0) {
				assert.Equal(t, byte('.'), out[dot], "step %v raw %v -> %s", step, raw, out)
			}
			formatted := decimal.RequireFromString(out)
			assert.True(t, formatted.LessThanOrEqual(decimal.NewFromFloat(raw)), "truncation must not exceed raw value")
		}
	}
}

func TestNilRule(t *testing.T) {
	assert.Equal(t, "2", RoundQuantity(nil, 2.75))
	assert.Equal(t, "2", RoundPrice(nil, 2.75))
}
