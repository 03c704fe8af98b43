package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/panjf2000/ants/v2"

	"spotKeeper/internal/domain"
	"spotKeeper/internal/ports"
)

const (
	defaultInterval = 60 * time.Second
	defaultWorkers  = 8
)

// Reconciler brings a trade in line with the venue-reported order state.
type Reconciler interface {
	Reconcile(ctx context.Context, trade *domain.Trade) error
}

// Lifecycle places and maintains the protective orders of a trade.
type Lifecycle interface {
	Protect(ctx context.Context, trade *domain.Trade) (*domain.OrderRecord, error)
	Advance(ctx context.Context, trade *domain.Trade, bestBid float64) error
	ReplaceStopLoss(ctx context.Context, trade *domain.Trade, qty, price, stopPrice float64, trailing bool) (*domain.OrderRecord, error)
	CancelAllActive(ctx context.Context, trade *domain.Trade) bool
}

// Config holds the collaborators of a KeeperService.
type Config struct {
	Logger     ports.Logger
	Trades     ports.TradeRepository
	Reconciler Reconciler
	Lifecycle  Lifecycle
	Prices     ports.PriceSource // Optional; without it targets and trailing stops are not advanced
	Metrics    ports.Metrics     // Optional

	Interval time.Duration // Time between ticks, defaults to 60s
	Workers  int           // Trades reconciled concurrently, defaults to 8

	Now func() time.Time // Optional, defaults to time.Now
}

// KeeperService runs the reconciliation tick over every active trade and
// exposes the manual cancel and replace operations. All work on one trade is
// serialized through a per-trade lock.
type KeeperService struct {
	logger     ports.Logger
	trades     ports.TradeRepository
	reconciler Reconciler
	lifecycle  Lifecycle
	prices     ports.PriceSource
	metrics    ports.Metrics
	interval   time.Duration
	now        func() time.Time

	pool  *ants.Pool
	locks *TradeLocker
}

// NewKeeperService creates a new application service instance.
func NewKeeperService(cfg Config) (*KeeperService, error) {
	if cfg.Logger == nil || cfg.Trades == nil || cfg.Reconciler == nil || cfg.Lifecycle == nil {
		return nil, fmt.Errorf("missing required dependencies for KeeperService")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create reconcile worker pool: %w", err)
	}
	s := &KeeperService{
		logger:     cfg.Logger,
		trades:     cfg.Trades,
		reconciler: cfg.Reconciler,
		lifecycle:  cfg.Lifecycle,
		prices:     cfg.Prices,
		metrics:    cfg.Metrics,
		interval:   interval,
		now:        cfg.Now,
		pool:       pool,
		locks:      NewTradeLocker(),
	}
	if s.metrics == nil {
		s.metrics = ports.NopMetrics{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Start runs a tick immediately and then once per interval until the context
// is canceled or the process receives SIGINT/SIGTERM.
func (s *KeeperService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Keeper Service...", map[string]interface{}{"interval": s.interval.String()})

	// Create a context that can be canceled by signals
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error(ctx, err, "Reconciliation tick finished with errors")
		}
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")
			s.pool.Release()
			s.logger.Info(ctx, "Keeper Service stopped.")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick reconciles every active trade once, running up to Workers trades in
// parallel, and returns the joined per-trade errors.
func (s *KeeperService) Tick(ctx context.Context) error {
	active, err := s.trades.FindActiveTrades(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active trades: %w", err)
	}
	if len(active) == 0 {
		s.logger.Debug(ctx, "No active trades to reconcile")
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, trade := range active {
		tradeID := trade.ID
		wg.Add(1)
		if err := s.pool.Submit(func() {
			defer wg.Done()
			if err := s.ProcessTrade(ctx, tradeID); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}); err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, fmt.Errorf("trade %d: schedule reconciliation: %w", tradeID, err))
			mu.Unlock()
		}
	}
	wg.Wait()

	s.logger.Debug(ctx, "Reconciliation tick complete", map[string]interface{}{"trades": len(active), "failed": len(errs)})
	return errors.Join(errs...)
}

// ProcessTrade reconciles one trade under its lock: order state is synced
// first, then a missing origin stop-loss is placed and finally the targets
// and trailing stop are advanced against the current best bid.
func (s *KeeperService) ProcessTrade(ctx context.Context, tradeID int64) error {
	start := s.now()
	err := s.WithTrade(ctx, tradeID, func(trade *domain.Trade) error {
		if !trade.Active {
			return nil
		}
		log := ports.WithFields(s.logger, map[string]interface{}{"tradeId": trade.ID, "symbol": trade.Symbol})

		var errs []error
		if err := s.reconciler.Reconcile(ctx, trade); err != nil {
			errs = append(errs, err)
		}
		if !trade.Active {
			return errors.Join(errs...)
		}

		if needsProtection(trade) {
			if _, err := s.lifecycle.Protect(ctx, trade); err != nil {
				log.Error(ctx, err, "Failed to place origin stop-loss")
				errs = append(errs, err)
			}
		}

		if s.prices != nil && (len(trade.Targets) > 0 || trade.TrailingActive) {
			bid, err := s.prices.BestBid(ctx, trade.Symbol)
			if err != nil {
				log.Error(ctx, err, "Failed to fetch best bid")
				errs = append(errs, err)
			} else if err := s.lifecycle.Advance(ctx, trade, bid); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
	s.metrics.ReconcileObserved(s.now().Sub(start), err)
	if err != nil {
		return fmt.Errorf("trade %d: %w", tradeID, err)
	}
	return nil
}

// CancelTrade cancels every open order of a trade and finishes it. The trade
// stays active when any cancel fails so the next call can retry.
func (s *KeeperService) CancelTrade(ctx context.Context, tradeID int64) error {
	return s.WithTrade(ctx, tradeID, func(trade *domain.Trade) error {
		if !s.lifecycle.CancelAllActive(ctx, trade) {
			return fmt.Errorf("trade %d: %w", tradeID, ports.ErrOrderCancelFailed)
		}
		if !trade.Deactivate(s.now()) {
			return nil
		}
		if err := s.trades.UpdateTrade(ctx, trade); err != nil {
			return fmt.Errorf("persist canceled trade %d: %w", tradeID, err)
		}
		s.logger.Info(ctx, "Trade canceled", map[string]interface{}{"tradeId": tradeID})
		return nil
	})
}

// ReplaceStopLoss moves the origin or trailing stop-loss of a trade.
func (s *KeeperService) ReplaceStopLoss(ctx context.Context, tradeID int64, qty, price, stopPrice float64, trailing bool) (*domain.OrderRecord, error) {
	var placed *domain.OrderRecord
	err := s.WithTrade(ctx, tradeID, func(trade *domain.Trade) error {
		if !trade.Active {
			return fmt.Errorf("trade %d is finished: %w", tradeID, ports.ErrInvalidRequest)
		}
		var err error
		placed, err = s.lifecycle.ReplaceStopLoss(ctx, trade, qty, price, stopPrice, trailing)
		return err
	})
	return placed, err
}

// WithTrade loads the trade under its lock and runs fn with it.
func (s *KeeperService) WithTrade(ctx context.Context, tradeID int64, fn func(trade *domain.Trade) error) error {
	unlock := s.locks.Lock(tradeID)
	defer unlock()

	trade, err := s.trades.FindTradeByID(ctx, tradeID)
	if err != nil {
		return fmt.Errorf("load trade %d: %w", tradeID, err)
	}
	if trade == nil {
		return fmt.Errorf("trade %d: %w", tradeID, ports.ErrNotFound)
	}
	return fn(trade)
}

// Close releases the worker pool.
func (s *KeeperService) Close() {
	s.pool.Release()
}

// needsProtection reports whether the origin stop-loss should be placed now:
// a stop distance is configured, the buy (when tracked locally) has
// completely filled and no stop-loss is open. An origin slot that was
// cancelled before anything executed counts as empty.
func needsProtection(trade *domain.Trade) bool {
	if trade.StopLossPercent <= 0 || !trade.BuyFilled() || trade.ActiveStopLoss() != nil {
		return false
	}
	origin := trade.OriginStopLoss()
	return origin == nil || (!origin.Status.IsOpen() && origin.ExecutedQty == 0)
}
