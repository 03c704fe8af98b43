// Package lifecycle places, replaces and cancels the protective orders of a
// trade: the origin stop-loss, the trailing stop-loss and one take-profit per
// target.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"spotKeeper/internal/domain"
	"spotKeeper/internal/guard"
	"spotKeeper/internal/ports"
	"spotKeeper/internal/precision"
)

// Config holds the collaborators of an Engine.
type Config struct {
	Logger   ports.Logger
	Gateways ports.GatewayFactory
	Orders   ports.OrderRepository
	Targets  ports.TargetRepository
	Metrics  ports.Metrics // Optional, defaults to ports.NopMetrics
	Guard    *guard.Guard  // Optional, defaults to a guard enforcing min notional

	// StrictBalanceRetry limits the clamp-and-retry path to insufficient
	// balance rejections. When false every venue rejection is retried once
	// with the clamped quantity.
	StrictBalanceRetry bool

	Now           func() time.Time // Optional, defaults to time.Now
	ClientOrderID func() string    // Optional, defaults to uuid.NewString
}

// Engine drives the protective-order state machine of trades. It holds no
// per-trade state; callers serialize calls for the same trade.
type Engine struct {
	logger      ports.Logger
	gateways    ports.GatewayFactory
	orders      ports.OrderRepository
	targets     ports.TargetRepository
	metrics     ports.Metrics
	guard       *guard.Guard
	strictRetry bool
	now         func() time.Time
	newID       func() string
}

// NewEngine creates a lifecycle engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Logger == nil || cfg.Gateways == nil || cfg.Orders == nil || cfg.Targets == nil {
		return nil, fmt.Errorf("missing required dependencies for lifecycle engine")
	}
	e := &Engine{
		logger:      cfg.Logger,
		gateways:    cfg.Gateways,
		orders:      cfg.Orders,
		targets:     cfg.Targets,
		metrics:     cfg.Metrics,
		guard:       cfg.Guard,
		strictRetry: cfg.StrictBalanceRetry,
		now:         cfg.Now,
		newID:       cfg.ClientOrderID,
	}
	if e.metrics == nil {
		e.metrics = ports.NopMetrics{}
	}
	if e.guard == nil {
		e.guard = guard.New(true)
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e, nil
}

// placement is one order the engine wants on the book, in raw (unformatted) units.
type placement struct {
	side      domain.OrderSide
	orderType domain.OrderType
	qty       float64
	price     float64
	stopPrice float64
	retry     bool // Allow the insufficient-balance clamp and retry
}

// PlaceStopLoss places a SELL STOP_LOSS_LIMIT order for the origin or trailing
// slot. An existing record in that slot is updated in place, otherwise a new
// record is created.
func (e *Engine) PlaceStopLoss(ctx context.Context, trade *domain.Trade, qty, price, stopPrice float64, trailing bool) (*domain.OrderRecord, error) {
	log := e.tradeLogger(trade)
	gw, err := e.gateway(ctx, trade)
	if err != nil {
		return nil, err
	}

	resp, err := e.place(ctx, gw, trade, placement{
		side: domain.Sell, orderType: domain.OrderTypeStopLossLimit,
		qty: qty, price: price, stopPrice: stopPrice, retry: true,
	})
	if err != nil {
		log.Error(ctx, err, "Failed to place stop-loss order", map[string]interface{}{"trailing": trailing})
		return nil, err
	}

	if existing := trade.StopLoss(trailing); existing != nil {
		resp.ApplyTo(existing)
		existing.Trailing = trailing
		existing.ResetTracking()
		existing.UpdatedAt = e.now()
		if err := e.orders.UpdateOrder(ctx, existing); err != nil {
			log.Error(ctx, err, "Placed stop-loss but failed to update its record", map[string]interface{}{"orderId": existing.ID, "venueOrderId": resp.OrderID})
			return existing, fmt.Errorf("update stop-loss record %d: %w", existing.ID, err)
		}
		log.Info(ctx, "Stop-loss order replaced in slot", map[string]interface{}{"orderId": existing.ID, "venueOrderId": resp.OrderID, "trailing": trailing})
		return existing, nil
	}

	rec, err := e.record(ctx, trade, resp, domain.Sell, domain.OrderTypeStopLossLimit, trailing)
	if err != nil {
		return rec, err
	}
	log.Info(ctx, "Stop-loss order placed", map[string]interface{}{"orderId": rec.ID, "venueOrderId": resp.OrderID, "trailing": trailing})
	return rec, nil
}

// PlaceTakeProfit places a SELL TAKE_PROFIT_LIMIT order. Take-profits are
// additive: a new record is always created.
func (e *Engine) PlaceTakeProfit(ctx context.Context, trade *domain.Trade, qty, price, stopPrice float64) (*domain.OrderRecord, error) {
	log := e.tradeLogger(trade)
	gw, err := e.gateway(ctx, trade)
	if err != nil {
		return nil, err
	}

	resp, err := e.place(ctx, gw, trade, placement{
		side: domain.Sell, orderType: domain.OrderTypeTakeProfitLimit,
		qty: qty, price: price, stopPrice: stopPrice, retry: true,
	})
	if err != nil {
		log.Error(ctx, err, "Failed to place take-profit order")
		return nil, err
	}

	rec, err := e.record(ctx, trade, resp, domain.Sell, domain.OrderTypeTakeProfitLimit, false)
	if err != nil {
		return rec, err
	}
	log.Info(ctx, "Take-profit order placed", map[string]interface{}{"orderId": rec.ID, "venueOrderId": resp.OrderID, "price": rec.Price})
	return rec, nil
}

// PlaceBuy places the LIMIT BUY entry order of a trade. There is no balance
// retry on the buy side.
func (e *Engine) PlaceBuy(ctx context.Context, trade *domain.Trade, qty, price float64) (*domain.OrderRecord, error) {
	if b := trade.BuyOrder(); b != nil {
		return nil, fmt.Errorf("%w: trade %d already has buy order %d", ports.ErrInvalidRequest, trade.ID, b.ID)
	}
	gw, err := e.gateway(ctx, trade)
	if err != nil {
		return nil, err
	}

	resp, err := e.place(ctx, gw, trade, placement{
		side: domain.Buy, orderType: domain.OrderTypeLimit, qty: qty, price: price,
	})
	if err != nil {
		e.tradeLogger(trade).Error(ctx, err, "Failed to place buy order")
		return nil, err
	}
	return e.record(ctx, trade, resp, domain.Buy, domain.OrderTypeLimit, false)
}

// ReplaceStopLoss cancels the stop-loss in the slot and, only if that succeeds,
// places the new one. An empty slot counts as cancelled.
func (e *Engine) ReplaceStopLoss(ctx context.Context, trade *domain.Trade, qty, price, stopPrice float64, trailing bool) (*domain.OrderRecord, error) {
	if err := e.CancelOrder(ctx, trade, trade.StopLoss(trailing)); err != nil {
		return nil, fmt.Errorf("replace stop-loss: %w", err)
	}
	return e.PlaceStopLoss(ctx, trade, qty, price, stopPrice, trailing)
}

// CancelOrder cancels one venue order. An order the venue no longer knows is
// treated as already cancelled. On any other failure the record is left untouched.
func (e *Engine) CancelOrder(ctx context.Context, trade *domain.Trade, order *domain.OrderRecord) error {
	if order == nil {
		return nil
	}
	gw, err := e.gateway(ctx, trade)
	if err != nil {
		return err
	}
	return e.cancel(ctx, gw, trade, order)
}

// CancelAllActive cancels the buy order, both stop-losses and every take-profit
// of the trade independently. A local record is deleted only after its cancel
// succeeded. Returns false if any order could not be cleared.
func (e *Engine) CancelAllActive(ctx context.Context, trade *domain.Trade) bool {
	log := e.tradeLogger(trade)
	gw, err := e.gateway(ctx, trade)
	if err != nil {
		log.Error(ctx, err, "Cannot cancel trade orders")
		return false
	}

	type slotOrder struct {
		order  *domain.OrderRecord
		detach bool
	}
	var pending []slotOrder
	if o := trade.BuyOrder(); o != nil {
		pending = append(pending, slotOrder{order: o})
	}
	if o := trade.OriginStopLoss(); o != nil {
		pending = append(pending, slotOrder{order: o})
	}
	if o := trade.TrailingStopLoss(); o != nil {
		pending = append(pending, slotOrder{order: o, detach: true})
	}
	for _, o := range trade.TakeProfitOrders() {
		pending = append(pending, slotOrder{order: o, detach: true})
	}

	ok := true
	for _, p := range pending {
		fields := map[string]interface{}{"orderId": p.order.ID, "venueOrderId": p.order.VenueOrderID, "slot": string(p.order.Slot())}
		if err := e.cancel(ctx, gw, trade, p.order); err != nil {
			log.Warn(ctx, "Order left open after cancel failure", fields)
			ok = false
			continue
		}
		if p.order.ID != 0 {
			if p.detach {
				if err := e.targets.DetachOrder(ctx, p.order.ID); err != nil {
					log.Error(ctx, err, "Failed to detach targets from cancelled order", fields)
					ok = false
					continue
				}
			}
			if err := e.orders.DeleteOrder(ctx, p.order.ID); err != nil {
				log.Error(ctx, err, "Failed to delete cancelled order record", fields)
				ok = false
				continue
			}
		}
		trade.RemoveOrder(p.order.ID)
	}

	log.Info(ctx, "Cancelled active orders", map[string]interface{}{"orders": len(pending), "allCleared": ok})
	return ok
}

// --- Internal helpers ---

func (e *Engine) tradeLogger(trade *domain.Trade) ports.Logger {
	return ports.WithFields(e.logger, map[string]interface{}{"tradeId": trade.ID, "symbol": trade.Symbol})
}

func (e *Engine) gateway(ctx context.Context, trade *domain.Trade) (ports.ExchangeGateway, error) {
	gw, err := e.gateways.ForUser(ctx, trade.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve gateway for user %d: %w", trade.UserID, err)
	}
	return gw, nil
}

func (e *Engine) request(trade *domain.Trade, p placement) ports.OrderRequest {
	req := ports.OrderRequest{
		Symbol:        trade.Symbol,
		Side:          p.side,
		Type:          p.orderType,
		Quantity:      precision.RoundQuantity(trade.Rule, p.qty),
		Price:         precision.RoundPrice(trade.Rule, p.price),
		ClientOrderID: e.newID(),
	}
	if p.orderType != domain.OrderTypeLimit {
		req.StopPrice = precision.RoundPrice(trade.Rule, p.stopPrice)
	}
	return req
}

func (e *Engine) submit(ctx context.Context, gw ports.ExchangeGateway, trade *domain.Trade, req ports.OrderRequest) (*ports.OrderResponse, error) {
	if err := e.guard.Check(trade.Rule, req.Quantity, req.Price); err != nil {
		e.metrics.OrderPlaced(req.Type, ports.OutcomeError)
		return nil, err
	}
	resp, err := gw.PlaceOrder(ctx, req)
	if err != nil {
		e.metrics.OrderPlaced(req.Type, ports.OutcomeError)
		return nil, err
	}
	e.metrics.OrderPlaced(req.Type, ports.OutcomeOK)
	return resp, nil
}

// place formats and submits an order. On a balance rejection it clamps the
// quantity to the free base asset and retries exactly once.
func (e *Engine) place(ctx context.Context, gw ports.ExchangeGateway, trade *domain.Trade, p placement) (*ports.OrderResponse, error) {
	if trade.Rule == nil {
		return nil, fmt.Errorf("%w: trade %d has no trading rule for %s", ports.ErrRuleViolation, trade.ID, trade.Symbol)
	}

	req := e.request(trade, p)
	resp, err := e.submit(ctx, gw, trade, req)
	if err == nil {
		return resp, nil
	}
	if !p.retry || !e.retryable(err) {
		return nil, fmt.Errorf("place %s: %w: %w", p.orderType, ports.ErrOrderPlacementFailed, err)
	}

	log := e.tradeLogger(trade)
	log.Warn(ctx, "Order rejected, retrying with available balance", map[string]interface{}{
		"type": string(p.orderType), "quantity": req.Quantity, "error": err.Error(),
	})

	balances, balErr := gw.Balances(ctx)
	if balErr != nil {
		e.metrics.BalanceRetry(ports.OutcomeError)
		return nil, fmt.Errorf("place %s: %w: balance lookup: %w", p.orderType, ports.ErrOrderPlacementFailed, errors.Join(err, balErr))
	}
	available := balances[trade.Rule.BaseAsset].Available
	p.qty = math.Min(p.qty, available)

	retryReq := e.request(trade, p)
	resp, err = e.submit(ctx, gw, trade, retryReq)
	if err != nil {
		e.metrics.BalanceRetry(ports.OutcomeError)
		return nil, fmt.Errorf("place %s after balance retry: %w: %w", p.orderType, ports.ErrOrderPlacementFailed, err)
	}
	e.metrics.BalanceRetry(ports.OutcomeOK)
	log.Info(ctx, "Order placed with clamped quantity", map[string]interface{}{
		"requested": req.Quantity, "placed": retryReq.Quantity, "asset": trade.Rule.BaseAsset,
	})
	return resp, nil
}

func (e *Engine) retryable(err error) bool {
	if errors.Is(err, ports.ErrInsufficientFunds) {
		return true
	}
	return !e.strictRetry && ports.IsVenueRejection(err)
}

func (e *Engine) record(ctx context.Context, trade *domain.Trade, resp *ports.OrderResponse, side domain.OrderSide, orderType domain.OrderType, trailing bool) (*domain.OrderRecord, error) {
	now := e.now()
	rec := &domain.OrderRecord{
		Symbol:    trade.Symbol,
		Side:      side,
		Type:      orderType,
		Status:    domain.StatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	resp.ApplyTo(rec)
	rec.Trailing = trailing
	trade.AddOrder(rec)

	id, err := e.orders.CreateOrder(ctx, rec)
	if err != nil {
		e.tradeLogger(trade).Error(ctx, err, "Placed order but failed to record it", map[string]interface{}{"venueOrderId": resp.OrderID})
		return rec, fmt.Errorf("record %s order %d: %w", orderType, resp.OrderID, err)
	}
	rec.ID = id
	return rec, nil
}

func (e *Engine) cancel(ctx context.Context, gw ports.ExchangeGateway, trade *domain.Trade, order *domain.OrderRecord) error {
	log := e.tradeLogger(trade)
	symbol := order.Symbol
	if symbol == "" {
		symbol = trade.Symbol
	}

	resp, err := gw.CancelOrder(ctx, symbol, order.VenueOrderID)
	if err != nil {
		if errors.Is(err, ports.ErrOrderNotFound) {
			e.metrics.OrderCanceled(ports.OutcomeNotFound)
			log.Debug(ctx, "Order already gone on venue", map[string]interface{}{"orderId": order.ID, "venueOrderId": order.VenueOrderID})
			return nil
		}
		e.metrics.OrderCanceled(ports.OutcomeError)
		log.Error(ctx, err, "Failed to cancel order", map[string]interface{}{"orderId": order.ID, "venueOrderId": order.VenueOrderID})
		return fmt.Errorf("cancel order %d: %w: %w", order.VenueOrderID, ports.ErrOrderCancelFailed, err)
	}
	e.metrics.OrderCanceled(ports.OutcomeOK)

	resp.ApplyTo(order)
	order.UpdatedAt = e.now()
	if order.ID != 0 {
		if err := e.orders.UpdateOrder(ctx, order); err != nil {
			log.Error(ctx, err, "Cancelled order but failed to update its record", map[string]interface{}{"orderId": order.ID})
		}
	}
	return nil
}
