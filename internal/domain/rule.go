package domain

import "time"

// TradingRule holds the venue constraints for one trading pair.
// Zero-valued bounds are treated as "not set".
type TradingRule struct {
	Symbol        string  // e.g., "ETHUSDT"
	BaseAsset     string  // Asset being traded (e.g., "ETH"); balances are checked against it
	QuoteAsset    string  // Pricing asset (e.g., "USDT")
	MinAmount     float64 // LOT_SIZE minQty
	MaxAmount     float64 // LOT_SIZE maxQty
	StepSize      float64 // LOT_SIZE stepSize
	MinPrice      float64 // PRICE_FILTER minPrice
	MaxPrice      float64 // PRICE_FILTER maxPrice
	TickSize      float64 // PRICE_FILTER tickSize
	MinOrderValue float64 // (MIN_)NOTIONAL minNotional
	UpdatedAt     time.Time
}

// Equal reports whether two rules carry the same constraints.
func (r *TradingRule) Equal(other *TradingRule) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.Symbol == other.Symbol &&
		r.BaseAsset == other.BaseAsset &&
		r.QuoteAsset == other.QuoteAsset &&
		r.MinAmount == other.MinAmount &&
		r.MaxAmount == other.MaxAmount &&
		r.StepSize == other.StepSize &&
		r.MinPrice == other.MinPrice &&
		r.MaxPrice == other.MaxPrice &&
		r.TickSize == other.TickSize &&
		r.MinOrderValue == other.MinOrderValue
}
