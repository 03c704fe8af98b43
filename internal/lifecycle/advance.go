package lifecycle

import (
	"context"
	"fmt"

	"spotKeeper/internal/domain"
	"spotKeeper/internal/guard"
	"spotKeeper/internal/ports"
	"spotKeeper/internal/precision"
)

// Protect places the origin stop-loss at BuyPrice*(1-StopLossPercent/100) for
// the share of the position not committed to take-profits. An origin
// stop-loss that is still open, or has executed, is left alone; a cancelled
// one is placed again in its slot.
func (e *Engine) Protect(ctx context.Context, trade *domain.Trade) (*domain.OrderRecord, error) {
	if sl := trade.OriginStopLoss(); sl != nil && (sl.Status.IsOpen() || sl.ExecutedQty > 0) {
		return sl, nil
	}
	if trade.BuyPrice <= 0 || trade.StopLossPercent <= 0 {
		return nil, fmt.Errorf("%w: trade %d has no buy price or stop-loss percent", ports.ErrInvalidRequest, trade.ID)
	}
	coverage := trade.StopCoverage()
	if coverage <= 0 {
		return nil, nil
	}
	stop := guard.StopLossPrice(trade.BuyPrice, trade.StopLossPercent)
	return e.PlaceStopLoss(ctx, trade, guard.TargetQuantity(trade.Amount, coverage), stop, stop, false)
}

// Advance moves a bought trade forward for the current best bid.
//
// Sell orders on the venue lock the base asset they sell, so the position is
// split between one stop-loss and the take-profits. Only the nearest
// unreached target above the bid is armed; a take-profit below the market
// would trigger immediately. Before it is placed the stop-loss is shrunk to
// the remaining share. Once the bid has passed a target and trailing is
// active, the trailing stop takes over from the origin stop-loss and is
// raised below the highest passed target, never lowered.
func (e *Engine) Advance(ctx context.Context, trade *domain.Trade, bestBid float64) error {
	log := e.tradeLogger(trade)
	if !trade.BuyFilled() {
		log.Debug(ctx, "Buy order not filled, nothing to advance")
		return nil
	}
	if trade.SellingStarted() {
		log.Debug(ctx, "Origin stop-loss is executing, orders left in place")
		return nil
	}
	trade.SortTargets()

	for _, tg := range trade.ReachedTargets(bestBid) {
		if tg.OrderID == 0 {
			log.Warn(ctx, "Target passed before its take-profit was armed, share stays under the stop-loss", map[string]interface{}{"targetId": tg.ID, "bid": tg.Bid, "bestBid": bestBid})
		}
	}

	next := trade.NextUnreachedTarget(bestBid)
	if next != nil && next.OrderID != 0 {
		next = nil
	}
	coverage := trade.StopCoverage()
	if next != nil {
		coverage -= next.Amount
	}
	if coverage < 0 {
		coverage = 0
	}

	if err := e.cover(ctx, trade, bestBid, coverage); err != nil {
		return fmt.Errorf("resize stop-loss: %w", err)
	}
	if next == nil {
		return nil
	}

	qty := guard.TargetQuantity(trade.Amount, next.Amount)
	rec, err := e.PlaceTakeProfit(ctx, trade, qty, next.Bid, next.Bid)
	if err != nil {
		return fmt.Errorf("target %d: %w", next.ID, err)
	}
	if rec.ID == 0 {
		return nil
	}
	next.OrderID = rec.ID
	if err := e.targets.UpdateTarget(ctx, next); err != nil {
		log.Error(ctx, err, "Failed to link take-profit to target", map[string]interface{}{"targetId": next.ID, "orderId": rec.ID})
		return fmt.Errorf("link target %d: %w", next.ID, err)
	}
	return nil
}

// cover makes the open stop-loss hold percent of the position.
func (e *Engine) cover(ctx context.Context, trade *domain.Trade, bestBid, percent float64) error {
	qty := guard.TargetQuantity(trade.Amount, percent)
	empty := percent <= 0 || (trade.Rule != nil && qty < trade.Rule.MinAmount)

	current := trade.CurrentTarget(bestBid)
	if !trade.TrailingActive || trade.TrailingPercent <= 0 || current == nil {
		sl := trade.ActiveStopLoss()
		if sl == nil || e.sameQuantity(trade, qty, sl.OrigQty) {
			return nil
		}
		if empty {
			return e.CancelOrder(ctx, trade, sl)
		}
		_, err := e.ReplaceStopLoss(ctx, trade, qty, sl.Price, sl.StopPrice, sl.Trailing)
		return err
	}

	stop := guard.TrailingStopPrice(current.Bid, trade.TrailingPercent)
	existing := trade.TrailingStopLoss()
	if existing != nil && existing.Status.IsOpen() {
		if existing.StopPrice > stop {
			stop = existing.StopPrice
		}
		if existing.StopPrice == stop && e.sameQuantity(trade, qty, existing.OrigQty) {
			return nil
		}
	}
	if origin := trade.OriginStopLoss(); origin != nil && origin.Status.IsOpen() {
		if err := e.CancelOrder(ctx, trade, origin); err != nil {
			return fmt.Errorf("release origin stop-loss: %w", err)
		}
	}
	if empty {
		if existing != nil && existing.Status.IsOpen() {
			return e.CancelOrder(ctx, trade, existing)
		}
		return nil
	}
	if _, err := e.ReplaceStopLoss(ctx, trade, qty, stop, stop, true); err != nil {
		return fmt.Errorf("trail stop-loss: %w", err)
	}
	e.tradeLogger(trade).Info(ctx, "Trailing stop raised", map[string]interface{}{"targetBid": current.Bid, "stopPrice": stop, "quantity": qty})
	return nil
}

func (e *Engine) sameQuantity(trade *domain.Trade, a, b float64) bool {
	return precision.RoundQuantity(trade.Rule, a) == precision.RoundQuantity(trade.Rule, b)
}
