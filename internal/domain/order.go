package domain

import "time"

// OrderRecord is the local record of a single venue order placed for a trade.
type OrderRecord struct {
	ID            int64       // Local identifier (usually from DB)
	TradeID       int64       // Owning trade
	Symbol        string      // Trading pair symbol (e.g., "ETHUSDT")
	VenueOrderID  int64       // Exchange order ID
	ClientOrderID string      // Client order ID sent on placement
	Side          OrderSide   // BUY or SELL
	Type          OrderType   // LIMIT, STOP_LOSS_LIMIT, TAKE_PROFIT_LIMIT
	Status        OrderStatus // Last known venue status
	OrigQty       float64     // Original quantity
	ExecutedQty   float64     // Executed quantity
	Price         float64     // Limit price
	StopPrice     float64     // Trigger price (0 for plain limit orders)

	// Tracking metadata
	Trailing      bool       // Occupies the trailing stop-loss slot
	LastTrackedAt *time.Time // Last time a status poll was issued for this order
	TrackCount    int        // Number of status polls issued

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Slot classifies the order into its logical slot.
func (o *OrderRecord) Slot() Slot {
	switch {
	case o.Side == Buy:
		return SlotBuy
	case o.Side == Sell && o.Type == OrderTypeStopLossLimit && o.Trailing:
		return SlotTrailingStopLoss
	case o.Side == Sell && o.Type == OrderTypeStopLossLimit:
		return SlotOriginStopLoss
	case o.Side == Sell && o.Type == OrderTypeTakeProfitLimit:
		return SlotTakeProfit
	default:
		return SlotUnknown
	}
}

// IsFullyFilled reports whether the whole original quantity has executed.
func (o *OrderRecord) IsFullyFilled() bool {
	return o.OrigQty > 0 && o.OrigQty == o.ExecutedQty
}

// ResetTracking clears poll metadata. Used when a slot is reassigned to a new venue order.
func (o *OrderRecord) ResetTracking() {
	o.LastTrackedAt = nil
	o.TrackCount = 0
}
