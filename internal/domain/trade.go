package domain

import (
	"sort"
	"time"
)

// Target is a partial take-profit threshold of a trade.
type Target struct {
	ID        int64   // Unique identifier (usually from DB)
	TradeID   int64   // Owning trade
	Bid       float64 // Price threshold
	Amount    float64 // Percentage of the position to sell at this target
	Reached   bool    // Set once the target's sell order fills; never reverts
	SellPrice float64 // Fill price, set when reached
	OrderID   int64   // Local ID of the associated sell order (0 when detached)
}

// MarkReached records the fill price and flips Reached. Returns false if the
// target was already reached, in which case nothing changes.
func (t *Target) MarkReached(sellPrice float64) bool {
	if t.Reached {
		return false
	}
	t.Reached = true
	t.SellPrice = sellPrice
	return true
}

// Trade is the aggregate root of one spot position and its protective orders.
type Trade struct {
	ID       int64        // Unique identifier (usually from DB)
	UserID   int64        // Owning user; selects the exchange credentials
	Symbol   string       // Trading pair, key of Rule
	Rule     *TradingRule // Venue constraints, shared read-only
	Amount   float64      // Total position size in base asset
	BuyPrice float64      // Entry price

	StopLossPercent float64 // Origin stop-loss distance below BuyPrice, in percent
	TrailingActive  bool    // Whether the trailing stop follows reached targets
	TrailingPercent float64 // Trailing stop distance below the current target bid, in percent

	Active     bool       // False once the trade is finished; never reactivated
	FinishedAt *time.Time // Set together with Active=false
	CreatedAt  time.Time

	Targets []*Target      // Ordered by ascending Bid
	Orders  []*OrderRecord // All orders placed for this trade
}

// Deactivate marks the trade finished. It returns false if the trade was
// already inactive, leaving FinishedAt untouched.
func (t *Trade) Deactivate(now time.Time) bool {
	if !t.Active {
		return false
	}
	t.Active = false
	finished := now
	t.FinishedAt = &finished
	return true
}

// SortTargets orders targets by ascending bid. Stable so equal bids keep insertion order.
func (t *Trade) SortTargets() {
	sort.SliceStable(t.Targets, func(i, j int) bool {
		return t.Targets[i].Bid < t.Targets[j].Bid
	})
}

// --- Order slots ---

// BuyOrder returns the buy order, or nil.
func (t *Trade) BuyOrder() *OrderRecord {
	for _, o := range t.Orders {
		if o.Slot() == SlotBuy {
			return o
		}
	}
	return nil
}

// OriginStopLoss returns the most recent non-trailing stop-loss order, or nil.
func (t *Trade) OriginStopLoss() *OrderRecord {
	var found *OrderRecord
	for _, o := range t.Orders {
		if o.Slot() == SlotOriginStopLoss && (found == nil || o.ID > found.ID) {
			found = o
		}
	}
	return found
}

// TrailingStopLoss returns the trailing stop-loss order, or nil.
func (t *Trade) TrailingStopLoss() *OrderRecord {
	for _, o := range t.Orders {
		if o.Slot() == SlotTrailingStopLoss {
			return o
		}
	}
	return nil
}

// StopLoss returns the stop-loss order for the requested slot.
func (t *Trade) StopLoss(trailing bool) *OrderRecord {
	if trailing {
		return t.TrailingStopLoss()
	}
	return t.OriginStopLoss()
}

// TakeProfitOrders returns every take-profit order.
func (t *Trade) TakeProfitOrders() []*OrderRecord {
	var out []*OrderRecord
	for _, o := range t.Orders {
		if o.Slot() == SlotTakeProfit {
			out = append(out, o)
		}
	}
	return out
}

// OrderByID looks up an order by its local ID.
func (t *Trade) OrderByID(id int64) *OrderRecord {
	if id == 0 {
		return nil
	}
	for _, o := range t.Orders {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// AddOrder attaches an order to the trade.
func (t *Trade) AddOrder(o *OrderRecord) {
	o.TradeID = t.ID
	t.Orders = append(t.Orders, o)
}

// RemoveOrder drops an order from the trade and detaches any target pointing at it.
func (t *Trade) RemoveOrder(id int64) {
	kept := t.Orders[:0]
	for _, o := range t.Orders {
		if o.ID != id {
			kept = append(kept, o)
		}
	}
	t.Orders = kept
	for _, tg := range t.Targets {
		if tg.OrderID == id {
			tg.OrderID = 0
		}
	}
}

// --- Target helpers ---

// CurrentTarget returns the highest target whose bid is below bestBid, or nil.
func (t *Trade) CurrentTarget(bestBid float64) *Target {
	var current *Target
	for _, tg := range t.Targets {
		if tg.Bid < bestBid {
			current = tg
		}
	}
	return current
}

// NextTarget returns the first target whose bid is above bestBid, or nil.
func (t *Trade) NextTarget(bestBid float64) *Target {
	for _, tg := range t.Targets {
		if bestBid < tg.Bid {
			return tg
		}
	}
	return nil
}

// ReachedTargets returns unreached targets whose bid is below bestBid.
func (t *Trade) ReachedTargets(bestBid float64) []*Target {
	var out []*Target
	for _, tg := range t.Targets {
		if !tg.Reached && tg.Bid < bestBid {
			out = append(out, tg)
		}
	}
	return out
}

// RemainingTargetsPercentage sums the amount percentages of unreached targets.
func (t *Trade) RemainingTargetsPercentage() float64 {
	var sum float64
	for _, tg := range t.Targets {
		if !tg.Reached {
			sum += tg.Amount
		}
	}
	return sum
}

// ReachedPercentage sums the amount percentages of reached targets.
func (t *Trade) ReachedPercentage() float64 {
	var sum float64
	for _, tg := range t.Targets {
		if tg.Reached {
			sum += tg.Amount
		}
	}
	return sum
}

// ArmedPercentage sums the amount percentages of unreached targets that hold
// a take-profit order.
func (t *Trade) ArmedPercentage() float64 {
	var sum float64
	for _, tg := range t.Targets {
		if !tg.Reached && tg.OrderID != 0 {
			sum += tg.Amount
		}
	}
	return sum
}

// StopCoverage is the percentage of the position a stop-loss has to cover:
// everything not yet sold and not committed to an armed take-profit.
func (t *Trade) StopCoverage() float64 {
	c := 100 - t.ReachedPercentage() - t.ArmedPercentage()
	if c < 0 {
		return 0
	}
	return c
}

// NextUnreachedTarget returns the first unreached target above bestBid, or nil.
func (t *Trade) NextUnreachedTarget(bestBid float64) *Target {
	next := t.NextTarget(bestBid)
	for next != nil && next.Reached {
		next = t.NextTarget(next.Bid)
	}
	return next
}

// ActiveStopLoss returns the open stop-loss protecting the position. An open
// trailing stop takes precedence over the origin stop-loss.
func (t *Trade) ActiveStopLoss() *OrderRecord {
	if o := t.TrailingStopLoss(); o != nil && o.Status.IsOpen() {
		return o
	}
	if o := t.OriginStopLoss(); o != nil && o.Status.IsOpen() {
		return o
	}
	return nil
}

// BuyFilled reports whether the position is held: the buy order has filled
// completely, or the trade was opened without a tracked buy order.
func (t *Trade) BuyFilled() bool {
	b := t.BuyOrder()
	return b == nil || b.Status == StatusFilled
}

// BuyingStarted reports whether the buy order has begun filling.
func (t *Trade) BuyingStarted() bool {
	b := t.BuyOrder()
	return b != nil && (b.Status == StatusPartiallyFilled || b.Status == StatusFilled)
}

// SellingStarted reports whether the origin stop-loss has begun filling.
func (t *Trade) SellingStarted() bool {
	s := t.OriginStopLoss()
	return s != nil && (s.Status == StatusPartiallyFilled || s.Status == StatusFilled)
}

// GainLoss returns the realised result of a finished trade in percent.
// The second return value is false when the trade is not finished or lacks entry data.
func (t *Trade) GainLoss() (float64, bool) {
	if t.BuyPrice == 0 || t.Amount == 0 || t.FinishedAt == nil {
		return 0, false
	}
	boughtFor := t.Amount * t.BuyPrice

	var targetSum float64
	for _, tg := range t.Targets {
		if tg.Reached {
			targetSum += tg.SellPrice * (t.Amount * (tg.Amount / 100))
		}
	}

	var stopLossSum float64
	if remaining := t.RemainingTargetsPercentage(); remaining > 0 {
		if sl := t.OriginStopLoss(); sl != nil {
			stopLossSum = sl.Price * (t.Amount * (remaining / 100))
		}
	}

	return ((targetSum+stopLossSum)/boughtFor - 1) * 100, true
}
