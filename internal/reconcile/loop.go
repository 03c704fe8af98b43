// Package reconcile polls the venue for the authoritative state of a trade's
// sell orders and moves the local trade forward to match it.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spotKeeper/internal/domain"
	"spotKeeper/internal/ports"
)

const (
	// DefaultStopLossTrackInterval is the minimum time between two origin stop-loss polls.
	DefaultStopLossTrackInterval = 300 * time.Second
	// DefaultStopLossMaxTracks is the number of origin stop-loss polls after which the trade is force-finished.
	DefaultStopLossMaxTracks = 12
)

// Config holds the collaborators and limits of a Loop.
type Config struct {
	Logger   ports.Logger
	Gateways ports.GatewayFactory
	Trades   ports.TradeRepository
	Targets  ports.TargetRepository
	Orders   ports.OrderRepository
	Sink     ports.EventSink
	Metrics  ports.Metrics // Optional

	StopLossTrackInterval time.Duration // Defaults to DefaultStopLossTrackInterval
	StopLossMaxTracks     int           // Defaults to DefaultStopLossMaxTracks

	Now func() time.Time // Optional, defaults to time.Now
}

// Loop reconciles one trade at a time. Callers serialize calls for the same trade.
type Loop struct {
	logger    ports.Logger
	gateways  ports.GatewayFactory
	trades    ports.TradeRepository
	targets   ports.TargetRepository
	orders    ports.OrderRepository
	sink      ports.EventSink
	metrics   ports.Metrics
	interval  time.Duration
	maxTracks int
	now       func() time.Time
}

// NewLoop creates a reconciliation loop.
func NewLoop(cfg Config) (*Loop, error) {
	if cfg.Logger == nil || cfg.Gateways == nil || cfg.Trades == nil || cfg.Targets == nil || cfg.Orders == nil || cfg.Sink == nil {
		return nil, fmt.Errorf("missing required dependencies for reconciliation loop")
	}
	l := &Loop{
		logger:    cfg.Logger,
		gateways:  cfg.Gateways,
		trades:    cfg.Trades,
		targets:   cfg.Targets,
		orders:    cfg.Orders,
		sink:      cfg.Sink,
		metrics:   cfg.Metrics,
		interval:  cfg.StopLossTrackInterval,
		maxTracks: cfg.StopLossMaxTracks,
		now:       cfg.Now,
	}
	if l.metrics == nil {
		l.metrics = ports.NopMetrics{}
	}
	if l.interval <= 0 {
		l.interval = DefaultStopLossTrackInterval
	}
	if l.maxTracks <= 0 {
		l.maxTracks = DefaultStopLossMaxTracks
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l, nil
}

// Reconcile syncs an open buy order, then runs target tracking, origin
// stop-loss tracking and trailing stop-loss tracking for an active trade.
// Inactive trades are skipped.
func (l *Loop) Reconcile(ctx context.Context, trade *domain.Trade) error {
	if trade == nil || !trade.Active {
		return nil
	}
	gw, err := l.gateways.ForUser(ctx, trade.UserID)
	if err != nil {
		return fmt.Errorf("resolve gateway for user %d: %w", trade.UserID, err)
	}

	var errs []error
	if err := l.trackBuy(ctx, gw, trade); err != nil {
		errs = append(errs, err)
	}
	if err := l.trackTargets(ctx, gw, trade); err != nil {
		errs = append(errs, err)
	}
	if trade.Active {
		if err := l.trackOriginStopLoss(ctx, gw, trade); err != nil {
			errs = append(errs, err)
		}
	}
	if trade.Active {
		if err := l.trackTrailingStopLoss(ctx, gw, trade); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TrackBuy polls the buy order while it is open and persists what the venue reports.
func (l *Loop) TrackBuy(ctx context.Context, trade *domain.Trade) error {
	if trade == nil || !trade.Active {
		return nil
	}
	gw, err := l.gateways.ForUser(ctx, trade.UserID)
	if err != nil {
		return fmt.Errorf("resolve gateway for user %d: %w", trade.UserID, err)
	}
	return l.trackBuy(ctx, gw, trade)
}

// TrackTargets polls the sell order of every unreached target, in ascending
// bid order. A FILLED order marks its target reached; when that target is the
// last one the trade is finished.
func (l *Loop) TrackTargets(ctx context.Context, trade *domain.Trade) error {
	if trade == nil || !trade.Active {
		return nil
	}
	gw, err := l.gateways.ForUser(ctx, trade.UserID)
	if err != nil {
		return fmt.Errorf("resolve gateway for user %d: %w", trade.UserID, err)
	}
	return l.trackTargets(ctx, gw, trade)
}

// TrackOriginStopLoss polls the origin stop-loss at most once per interval
// while it is partially executed, and finishes the trade once the order is
// fully executed or has been polled the maximum number of times.
func (l *Loop) TrackOriginStopLoss(ctx context.Context, trade *domain.Trade) error {
	if trade == nil || !trade.Active {
		return nil
	}
	gw, err := l.gateways.ForUser(ctx, trade.UserID)
	if err != nil {
		return fmt.Errorf("resolve gateway for user %d: %w", trade.UserID, err)
	}
	return l.trackOriginStopLoss(ctx, gw, trade)
}

// Deactivate finishes the trade and persists it. A trade that is already
// inactive is left untouched and false is returned.
func (l *Loop) Deactivate(ctx context.Context, trade *domain.Trade) (bool, error) {
	if !trade.Deactivate(l.now()) {
		return false, nil
	}
	if err := l.trades.UpdateTrade(ctx, trade); err != nil {
		return true, fmt.Errorf("persist finished trade %d: %w", trade.ID, err)
	}
	fields := map[string]interface{}{"finishedAt": trade.FinishedAt}
	if gl, ok := trade.GainLoss(); ok {
		fields["gainLossPercent"] = gl
	}
	l.tradeLogger(trade).Info(ctx, "Trade deactivated", fields)
	return true, nil
}

func (l *Loop) trackBuy(ctx context.Context, gw ports.ExchangeGateway, trade *domain.Trade) error {
	buy := trade.BuyOrder()
	if buy == nil || !buy.Status.IsOpen() {
		return nil
	}
	log := l.tradeLogger(trade)
	started := trade.BuyingStarted()

	resp, err := gw.OrderStatus(ctx, symbolOf(trade, buy), buy.VenueOrderID)
	if err != nil {
		log.Error(ctx, err, "Failed to fetch buy order status", map[string]interface{}{"venueOrderId": buy.VenueOrderID})
		return fmt.Errorf("buy order status: %w", err)
	}

	prevStatus, prevExecuted := buy.Status, buy.ExecutedQty
	resp.ApplyTo(buy)
	if buy.Status == prevStatus && buy.ExecutedQty == prevExecuted {
		return nil
	}
	if !started && trade.BuyingStarted() {
		log.Info(ctx, "Buying started", map[string]interface{}{"executedQty": buy.ExecutedQty})
	}
	if buy.Status == domain.StatusFilled {
		log.Info(ctx, "Buy order filled", map[string]interface{}{"executedQty": buy.ExecutedQty, "price": buy.Price})
	}
	buy.UpdatedAt = l.now()
	if err := l.orders.UpdateOrder(ctx, buy); err != nil {
		log.Error(ctx, err, "Failed to persist buy order", map[string]interface{}{"orderId": buy.ID})
		return fmt.Errorf("persist buy order %d: %w", buy.ID, err)
	}
	return nil
}

// trackTrailingStopLoss polls an open trailing stop. Once it has filled the
// position is sold and the trade is finished.
func (l *Loop) trackTrailingStopLoss(ctx context.Context, gw ports.ExchangeGateway, trade *domain.Trade) error {
	sl := trade.TrailingStopLoss()
	if sl == nil || !sl.Status.IsOpen() {
		return nil
	}
	log := l.tradeLogger(trade)

	resp, err := gw.OrderStatus(ctx, symbolOf(trade, sl), sl.VenueOrderID)
	if err != nil {
		log.Error(ctx, err, "Failed to fetch trailing stop-loss status", map[string]interface{}{"venueOrderId": sl.VenueOrderID})
		return fmt.Errorf("trailing stop-loss status: %w", err)
	}

	prevStatus, prevExecuted := sl.Status, sl.ExecutedQty
	resp.ApplyTo(sl)
	sl.Trailing = true
	if sl.Status != prevStatus || sl.ExecutedQty != prevExecuted {
		sl.UpdatedAt = l.now()
		if err := l.orders.UpdateOrder(ctx, sl); err != nil {
			log.Error(ctx, err, "Failed to persist trailing stop-loss", map[string]interface{}{"orderId": sl.ID})
			return fmt.Errorf("persist trailing stop-loss %d: %w", sl.ID, err)
		}
	}
	if sl.Status != domain.StatusFilled {
		return nil
	}

	finished, err := l.Deactivate(ctx, trade)
	if finished {
		log.Info(ctx, "Trade finished on trailing stop-loss", map[string]interface{}{"stopPrice": sl.StopPrice})
		l.emit(ctx, tradeFinished(trade))
	}
	return err
}

func (l *Loop) trackTargets(ctx context.Context, gw ports.ExchangeGateway, trade *domain.Trade) error {
	log := l.tradeLogger(trade)
	trade.SortTargets()
	last := len(trade.Targets) - 1

	var errs []error
	for idx, tg := range trade.Targets {
		if tg.Reached || tg.OrderID == 0 {
			continue
		}
		order := trade.OrderByID(tg.OrderID)
		if order == nil {
			log.Debug(ctx, "Target order not loaded, nothing to track", map[string]interface{}{"targetId": tg.ID, "orderId": tg.OrderID})
			continue
		}

		resp, err := gw.OrderStatus(ctx, symbolOf(trade, order), order.VenueOrderID)
		if err != nil {
			log.Error(ctx, err, "Failed to fetch target order status", map[string]interface{}{"targetIndex": idx, "venueOrderId": order.VenueOrderID})
			errs = append(errs, fmt.Errorf("target %d: %w", idx, err))
			continue
		}

		prevStatus, prevExecuted := order.Status, order.ExecutedQty
		next := domain.OrderStatus(resp.Status)
		switch {
		case prevStatus == domain.StatusNew && next == domain.StatusPartiallyFilled:
			log.Info(ctx, "Target selling started", map[string]interface{}{"targetIndex": idx, "executedQty": resp.ExecutedQty})
			l.emit(ctx, domain.TargetFillingStarted{TradeID: trade.ID, TargetIndex: idx, ExecutedQty: resp.ExecutedQty})
		case prevStatus == domain.StatusPartiallyFilled && next == domain.StatusFilled:
			log.Info(ctx, "Target selling finished", map[string]interface{}{"targetIndex": idx})
			l.emit(ctx, domain.TargetFillingFinished{TradeID: trade.ID, TargetIndex: idx})
		}

		order.Status = next
		order.ExecutedQty = resp.ExecutedQty
		if next == domain.StatusFilled {
			tg.MarkReached(resp.Price)
			if err := l.targets.UpdateTarget(ctx, tg); err != nil {
				log.Error(ctx, err, "Failed to persist reached target", map[string]interface{}{"targetIndex": idx})
				errs = append(errs, fmt.Errorf("target %d: %w", idx, err))
			}
		}
		if next != prevStatus || resp.ExecutedQty != prevExecuted {
			order.UpdatedAt = l.now()
			if err := l.orders.UpdateOrder(ctx, order); err != nil {
				log.Error(ctx, err, "Failed to persist target order", map[string]interface{}{"targetIndex": idx, "orderId": order.ID})
				errs = append(errs, fmt.Errorf("target %d order: %w", idx, err))
			}
		}

		if next == domain.StatusFilled && idx == last {
			finished, err := l.Deactivate(ctx, trade)
			if err != nil {
				log.Error(ctx, err, "Failed to persist finished trade")
				errs = append(errs, err)
			}
			if finished {
				log.Info(ctx, "Trade finished on final target", map[string]interface{}{"targetIndex": idx})
				l.emit(ctx, tradeFinished(trade))
			}
		}
	}
	return errors.Join(errs...)
}

func (l *Loop) trackOriginStopLoss(ctx context.Context, gw ports.ExchangeGateway, trade *domain.Trade) error {
	sl := trade.OriginStopLoss()
	if sl == nil {
		return nil
	}
	log := l.tradeLogger(trade)

	if sl.TrackCount >= l.maxTracks || sl.IsFullyFilled() {
		log.Info(ctx, "Origin stop-loss done, finishing trade", map[string]interface{}{
			"trackCount": sl.TrackCount, "origQty": sl.OrigQty, "executedQty": sl.ExecutedQty,
		})
		_, err := l.Deactivate(ctx, trade)
		return err
	}

	now := l.now()
	if sl.ExecutedQty == 0 {
		return nil
	}
	if sl.LastTrackedAt != nil && now.Sub(*sl.LastTrackedAt) < l.interval {
		return nil
	}

	trailing := sl.Trailing
	sl.LastTrackedAt = &now
	sl.TrackCount++

	resp, err := gw.OrderStatus(ctx, symbolOf(trade, sl), sl.VenueOrderID)
	if err != nil {
		log.Error(ctx, err, "Failed to fetch origin stop-loss status", map[string]interface{}{"trackCount": sl.TrackCount})
		if perr := l.orders.UpdateOrder(ctx, sl); perr != nil {
			return errors.Join(err, perr)
		}
		return fmt.Errorf("origin stop-loss status: %w", err)
	}

	next := domain.OrderStatus(resp.Status)
	switch {
	case sl.Status == domain.StatusNew && next == domain.StatusPartiallyFilled:
		log.Info(ctx, "Origin stop-loss selling started", map[string]interface{}{"executedQty": resp.ExecutedQty})
		l.emit(ctx, domain.OriginStopLossFillingStarted{TradeID: trade.ID, ExecutedQty: resp.ExecutedQty})
	case sl.Status == domain.StatusPartiallyFilled && next == domain.StatusFilled:
		log.Info(ctx, "Origin stop-loss selling finished")
		l.emit(ctx, domain.OriginStopLossFillingFinished{TradeID: trade.ID})
	}

	resp.ApplyTo(sl)
	sl.Trailing = trailing
	sl.UpdatedAt = now
	if err := l.orders.UpdateOrder(ctx, sl); err != nil {
		log.Error(ctx, err, "Failed to persist origin stop-loss", map[string]interface{}{"orderId": sl.ID})
		return fmt.Errorf("persist origin stop-loss %d: %w", sl.ID, err)
	}
	return nil
}

func (l *Loop) emit(ctx context.Context, event domain.Event) {
	l.sink.Emit(ctx, event)
	l.metrics.EventEmitted(event.EventName())
}

func (l *Loop) tradeLogger(trade *domain.Trade) ports.Logger {
	return ports.WithFields(l.logger, map[string]interface{}{"tradeId": trade.ID, "symbol": trade.Symbol})
}

func tradeFinished(trade *domain.Trade) domain.TradeFinished {
	e := domain.TradeFinished{TradeID: trade.ID}
	if gl, ok := trade.GainLoss(); ok {
		e.GainLossPercent = &gl
	}
	return e
}

func symbolOf(trade *domain.Trade, order *domain.OrderRecord) string {
	if order.Symbol != "" {
		return order.Symbol
	}
	return trade.Symbol
}
