// Package guard validates orders against venue trading rules before they are
// submitted and derives protective order prices for a trade.
package guard

import (
	"fmt"

	"github.com/shopspring/decimal"

	"spotKeeper/internal/domain"
	"spotKeeper/internal/ports"
)

// Guard checks orders locally so obviously invalid ones never reach the venue.
// Bounds that are zero on the rule are treated as absent.
type Guard struct {
	enforceNotional bool
}

// New creates a guard. When enforceNotional is false the minimum order value
// check is skipped.
func New(enforceNotional bool) *Guard {
	return &Guard{enforceNotional: enforceNotional}
}

// Check validates an already formatted quantity and price against the rule.
func (g *Guard) Check(rule *domain.TradingRule, quantity, price string) error {
	if rule == nil {
		return fmt.Errorf("%w: no trading rule", ports.ErrRuleViolation)
	}

	qty, err := decimal.NewFromString(quantity)
	if err != nil {
		return fmt.Errorf("%w: quantity %q: %v", ports.ErrInvalidRequest, quantity, err)
	}
	px, err := decimal.NewFromString(price)
	if err != nil {
		return fmt.Errorf("%w: price %q: %v", ports.ErrInvalidRequest, price, err)
	}

	if !qty.IsPositive() {
		return fmt.Errorf("%w: %s quantity %s must be positive", ports.ErrRuleViolation, rule.Symbol, quantity)
	}
	if !px.IsPositive() {
		return fmt.Errorf("%w: %s price %s must be positive", ports.ErrRuleViolation, rule.Symbol, price)
	}

	if rule.MinAmount > 0 && qty.LessThan(decimal.NewFromFloat(rule.MinAmount)) {
		return fmt.Errorf("%w: %s quantity %s below minimum %v", ports.ErrRuleViolation, rule.Symbol, quantity, rule.MinAmount)
	}
	if rule.MaxAmount > 0 && qty.GreaterThan(decimal.NewFromFloat(rule.MaxAmount)) {
		return fmt.Errorf("%w: %s quantity %s above maximum %v", ports.ErrRuleViolation, rule.Symbol, quantity, rule.MaxAmount)
	}
	if rule.MinPrice > 0 && px.LessThan(decimal.NewFromFloat(rule.MinPrice)) {
		return fmt.Errorf("%w: %s price %s below minimum %v", ports.ErrRuleViolation, rule.Symbol, price, rule.MinPrice)
	}
	if rule.MaxPrice > 0 && px.GreaterThan(decimal.NewFromFloat(rule.MaxPrice)) {
		return fmt.Errorf("%w: %s price %s above maximum %v", ports.ErrRuleViolation, rule.Symbol, price, rule.MaxPrice)
	}

	if g.enforceNotional && rule.MinOrderValue > 0 {
		notional := qty.Mul(px)
		if notional.LessThan(decimal.NewFromFloat(rule.MinOrderValue)) {
			return fmt.Errorf("%w: %s order value %s below minimum %v", ports.ErrRuleViolation, rule.Symbol, notional.String(), rule.MinOrderValue)
		}
	}

	return nil
}

// StopLossPrice calculates the origin stop-loss price for a long position.
func StopLossPrice(entryPrice, percent float64) float64 {
	return below(entryPrice, percent)
}

// TrailingStopPrice calculates the trailing stop price below a reached target bid.
func TrailingStopPrice(targetBid, percent float64) float64 {
	return below(targetBid, percent)
}

// TargetQuantity returns the share of amount a target sells, amount * percent / 100.
func TargetQuantity(amount, percent float64) float64 {
	q, _ := decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(percent)).Div(decimal.NewFromInt(100)).Float64()
	return q
}

func below(price, percent float64) float64 {
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(percent).Div(decimal.NewFromInt(100)))
	p, _ := decimal.NewFromFloat(price).Mul(factor).Float64()
	return p
}
