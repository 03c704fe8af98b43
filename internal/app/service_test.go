package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotKeeper/internal/domain"
	"spotKeeper/internal/ports"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockTradeRepo struct {
	mu        sync.Mutex
	trades    map[int64]*domain.Trade
	activeErr error
	updates   int
}

func newTradeRepo(trades ...*domain.Trade) *mockTradeRepo {
	r := &mockTradeRepo{trades: make(map[int64]*domain.Trade)}
	for _, t := range trades {
		r.trades[t.ID] = t
	}
	return r
}

func (r *mockTradeRepo) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	trade.ID = int64(len(r.trades) + 1)
	r.trades[trade.ID] = trade
	return trade.ID, nil
}

func (r *mockTradeRepo) FindTradeByID(ctx context.Context, id int64) (*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trades[id], nil
}

func (r *mockTradeRepo) FindActiveTrades(ctx context.Context) ([]*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeErr != nil {
		return nil, r.activeErr
	}
	var out []*domain.Trade
	for _, t := range r.trades {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *mockTradeRepo) UpdateTrade(ctx context.Context, trade *domain.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	return nil
}

type mockReconciler struct {
	mu       sync.Mutex
	calls    map[int64]int
	errs     map[int64]error
	finishes map[int64]bool
}

func newReconciler() *mockReconciler {
	return &mockReconciler{calls: map[int64]int{}, errs: map[int64]error{}, finishes: map[int64]bool{}}
}

func (m *mockReconciler) Reconcile(ctx context.Context, trade *domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[trade.ID]++
	if m.finishes[trade.ID] {
		trade.Deactivate(time.Now())
	}
	return m.errs[trade.ID]
}

type mockLifecycle struct {
	mu         sync.Mutex
	protected  []int64
	advanced   map[int64]float64
	replaced   []int64
	cancelOK   bool
	protectErr error
}

func newLifecycle() *mockLifecycle {
	return &mockLifecycle{advanced: map[int64]float64{}, cancelOK: true}
}

func (m *mockLifecycle) Protect(ctx context.Context, trade *domain.Trade) (*domain.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.protected = append(m.protected, trade.ID)
	return &domain.OrderRecord{}, m.protectErr
}

func (m *mockLifecycle) Advance(ctx context.Context, trade *domain.Trade, bestBid float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advanced[trade.ID] = bestBid
	return nil
}

func (m *mockLifecycle) ReplaceStopLoss(ctx context.Context, trade *domain.Trade, qty, price, stopPrice float64, trailing bool) (*domain.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaced = append(m.replaced, trade.ID)
	return &domain.OrderRecord{TradeID: trade.ID, OrigQty: qty, Price: price, StopPrice: stopPrice, Trailing: trailing}, nil
}

func (m *mockLifecycle) CancelAllActive(ctx context.Context, trade *domain.Trade) bool {
	return m.cancelOK
}

type mockPrices struct {
	bid float64
	err error
}

func (m *mockPrices) BestBid(ctx context.Context, symbol string) (float64, error) {
	return m.bid, m.err
}

type countingMetrics struct {
	ports.NopMetrics
	observed atomic.Int32
	failed   atomic.Int32
}

func (m *countingMetrics) ReconcileObserved(d time.Duration, err error) {
	m.observed.Add(1)
	if err != nil {
		m.failed.Add(1)
	}
}

func activeTrade(id int64) *domain.Trade {
	return &domain.Trade{
		ID: id, UserID: 1, Symbol: "ETHUSDT", Amount: 2.5, BuyPrice: 100, StopLossPercent: 0.5, Active: true,
		Targets: []*domain.Target{{ID: id * 10, Bid: 110, Amount: 100}},
	}
}

type fixture struct {
	svc        *KeeperService
	trades     *mockTradeRepo
	reconciler *mockReconciler
	lifecycle  *mockLifecycle
	prices     *mockPrices
	metrics    *countingMetrics
}

func newFixture(t *testing.T, trades ...*domain.Trade) *fixture {
	t.Helper()
	f := &fixture{
		trades:     newTradeRepo(trades...),
		reconciler: newReconciler(),
		lifecycle:  newLifecycle(),
		prices:     &mockPrices{bid: 112},
		metrics:    &countingMetrics{},
	}
	svc, err := NewKeeperService(Config{
		Logger:     &mockLogger{},
		Trades:     f.trades,
		Reconciler: f.reconciler,
		Lifecycle:  f.lifecycle,
		Prices:     f.prices,
		Metrics:    f.metrics,
		Workers:    4,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	f.svc = svc
	return f
}

func TestNewKeeperService(t *testing.T) {
	_, err := NewKeeperService(Config{Logger: &mockLogger{}})
	assert.Error(t, err)

	svc, err := NewKeeperService(Config{
		Logger: &mockLogger{}, Trades: newTradeRepo(), Reconciler: newReconciler(), Lifecycle: newLifecycle(),
	})
	require.NoError(t, err)
	defer svc.Close()
	assert.Equal(t, defaultInterval, svc.interval)
	assert.NotNil(t, svc.metrics)
}

func TestKeeperService_Tick(t *testing.T) {
	f := newFixture(t, activeTrade(1), activeTrade(2), activeTrade(3))

	require.NoError(t, f.svc.Tick(context.Background()))

	for _, id := range []int64{1, 2, 3} {
		assert.Equal(t, 1, f.reconciler.calls[id], "trade %d reconciled once", id)
		assert.Equal(t, 112.0, f.lifecycle.advanced[id], "trade %d advanced", id)
	}
	assert.ElementsMatch(t, []int64{1, 2, 3}, f.lifecycle.protected)
	assert.Equal(t, int32(3), f.metrics.observed.Load())
	assert.Zero(t, f.metrics.failed.Load())
}

func TestKeeperService_TickSkipsInactiveTrades(t *testing.T) {
	done := activeTrade(2)
	done.Active = false
	f := newFixture(t, activeTrade(1), done)

	require.NoError(t, f.svc.Tick(context.Background()))
	assert.Equal(t, 1, f.reconciler.calls[1])
	assert.Zero(t, f.reconciler.calls[2])
}

func TestKeeperService_TickCollectsErrors(t *testing.T) {
	f := newFixture(t, activeTrade(1), activeTrade(2))
	f.reconciler.errs[1] = ports.ErrTimeout

	err := f.svc.Tick(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrTimeout)
	assert.Equal(t, 1, f.reconciler.calls[2], "other trades still reconciled")
	assert.Contains(t, f.lifecycle.advanced, int64(1), "a failed sync does not block advancing")
	assert.Equal(t, int32(1), f.metrics.failed.Load())
}

func TestKeeperService_TickLoadFailure(t *testing.T) {
	f := newFixture(t)
	f.trades.activeErr = errors.New("db locked")

	err := f.svc.Tick(context.Background())
	assert.ErrorContains(t, err, "failed to load active trades")
}

func TestKeeperService_TickAfterClose(t *testing.T) {
	trades := make([]*domain.Trade, 0, 16)
	for id := int64(1); id <= 16; id++ {
		trades = append(trades, activeTrade(id))
	}
	f := newFixture(t, trades...)
	f.svc.Close()

	err := f.svc.Tick(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ants.ErrPoolClosed)
	assert.Len(t, f.reconciler.calls, 0)
}

func TestNeedsProtection(t *testing.T) {
	order := func(status domain.OrderStatus, executed float64, trailing bool) *domain.OrderRecord {
		return &domain.OrderRecord{
			ID: 50, Side: domain.Sell, Type: domain.OrderTypeStopLossLimit,
			Status: status, OrigQty: 2.5, ExecutedQty: executed, Trailing: trailing,
		}
	}
	buy := func(status domain.OrderStatus) *domain.OrderRecord {
		return &domain.OrderRecord{ID: 49, Side: domain.Buy, Type: domain.OrderTypeLimit, Status: status, OrigQty: 2.5}
	}

	tests := []struct {
		name   string
		orders []*domain.OrderRecord
		noStop bool
		want   bool
	}{
		{name: "no orders", want: true},
		{name: "filled buy", orders: []*domain.OrderRecord{buy(domain.StatusFilled)}, want: true},
		{name: "open buy", orders: []*domain.OrderRecord{buy(domain.StatusNew)}, want: false},
		{name: "partially filled buy", orders: []*domain.OrderRecord{buy(domain.StatusPartiallyFilled)}, want: false},
		{name: "open origin", orders: []*domain.OrderRecord{order(domain.StatusNew, 0, false)}, want: false},
		{name: "canceled origin", orders: []*domain.OrderRecord{order(domain.StatusCanceled, 0, false)}, want: true},
		{name: "expired origin", orders: []*domain.OrderRecord{order(domain.StatusExpired, 0, false)}, want: true},
		{name: "canceled origin after partial fill", orders: []*domain.OrderRecord{order(domain.StatusCanceled, 1, false)}, want: false},
		{name: "filled origin", orders: []*domain.OrderRecord{order(domain.StatusFilled, 2.5, false)}, want: false},
		{
			name:   "trailing stop took over",
			orders: []*domain.OrderRecord{order(domain.StatusCanceled, 0, false), {ID: 51, Side: domain.Sell, Type: domain.OrderTypeStopLossLimit, Status: domain.StatusNew, Trailing: true}},
			want:   false,
		},
		{name: "no stop distance", noStop: true, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade := activeTrade(1)
			if tt.noStop {
				trade.StopLossPercent = 0
			}
			for _, o := range tt.orders {
				trade.AddOrder(o)
			}
			assert.Equal(t, tt.want, needsProtection(trade))
		})
	}
}

func TestKeeperService_ProcessTrade(t *testing.T) {
	t.Run("finished by reconciliation", func(t *testing.T) {
		f := newFixture(t, activeTrade(1))
		f.reconciler.finishes[1] = true

		require.NoError(t, f.svc.ProcessTrade(context.Background(), 1))
		assert.Empty(t, f.lifecycle.protected)
		assert.Empty(t, f.lifecycle.advanced)
	})

	t.Run("origin stop-loss already placed", func(t *testing.T) {
		trade := activeTrade(1)
		trade.AddOrder(&domain.OrderRecord{ID: 5, Side: domain.Sell, Type: domain.OrderTypeStopLossLimit, Status: domain.StatusNew})
		f := newFixture(t, trade)

		require.NoError(t, f.svc.ProcessTrade(context.Background(), 1))
		assert.Empty(t, f.lifecycle.protected)
	})

	t.Run("buy not filled yet", func(t *testing.T) {
		trade := activeTrade(1)
		trade.AddOrder(&domain.OrderRecord{ID: 4, Side: domain.Buy, Type: domain.OrderTypeLimit, Status: domain.StatusPartiallyFilled})
		f := newFixture(t, trade)

		require.NoError(t, f.svc.ProcessTrade(context.Background(), 1))
		assert.Empty(t, f.lifecycle.protected)
	})

	t.Run("buy filled", func(t *testing.T) {
		trade := activeTrade(1)
		trade.AddOrder(&domain.OrderRecord{ID: 4, Side: domain.Buy, Type: domain.OrderTypeLimit, Status: domain.StatusFilled})
		f := newFixture(t, trade)

		require.NoError(t, f.svc.ProcessTrade(context.Background(), 1))
		assert.Equal(t, []int64{1}, f.lifecycle.protected)
	})

	t.Run("best bid unavailable", func(t *testing.T) {
		f := newFixture(t, activeTrade(1))
		f.prices.err = ports.ErrConnectionFailed

		err := f.svc.ProcessTrade(context.Background(), 1)
		assert.ErrorIs(t, err, ports.ErrConnectionFailed)
		assert.Empty(t, f.lifecycle.advanced)
	})

	t.Run("protect failure is reported", func(t *testing.T) {
		f := newFixture(t, activeTrade(1))
		f.lifecycle.protectErr = ports.ErrOrderPlacementFailed

		err := f.svc.ProcessTrade(context.Background(), 1)
		assert.ErrorIs(t, err, ports.ErrOrderPlacementFailed)
		assert.Contains(t, f.lifecycle.advanced, int64(1))
	})

	t.Run("unknown trade", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.svc.ProcessTrade(context.Background(), 42), ports.ErrNotFound)
	})
}

func TestKeeperService_CancelTrade(t *testing.T) {
	t.Run("all orders canceled", func(t *testing.T) {
		trade := activeTrade(1)
		f := newFixture(t, trade)

		require.NoError(t, f.svc.CancelTrade(context.Background(), 1))
		assert.False(t, trade.Active)
		assert.NotNil(t, trade.FinishedAt)
		assert.Equal(t, 1, f.trades.updates)
	})

	t.Run("a cancel failed", func(t *testing.T) {
		trade := activeTrade(1)
		f := newFixture(t, trade)
		f.lifecycle.cancelOK = false

		err := f.svc.CancelTrade(context.Background(), 1)
		assert.ErrorIs(t, err, ports.ErrOrderCancelFailed)
		assert.True(t, trade.Active)
		assert.Zero(t, f.trades.updates)
	})
}

func TestKeeperService_ReplaceStopLoss(t *testing.T) {
	finished := activeTrade(2)
	finished.Active = false
	f := newFixture(t, activeTrade(1), finished)
	ctx := context.Background()

	order, err := f.svc.ReplaceStopLoss(ctx, 1, 2.5, 105, 104.5, true)
	require.NoError(t, err)
	assert.True(t, order.Trailing)
	assert.Equal(t, 104.5, order.StopPrice)

	_, err = f.svc.ReplaceStopLoss(ctx, 2, 2.5, 105, 104.5, true)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	_, err = f.svc.ReplaceStopLoss(ctx, 3, 2.5, 105, 104.5, true)
	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.Equal(t, []int64{1}, f.lifecycle.replaced)
}

func TestKeeperService_Start(t *testing.T) {
	f := newFixture(t, activeTrade(1))
	f.svc.interval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	require.NoError(t, f.svc.Start(ctx))
	f.reconciler.mu.Lock()
	defer f.reconciler.mu.Unlock()
	assert.GreaterOrEqual(t, f.reconciler.calls[1], 2)
}

func TestTradeLocker(t *testing.T) {
	locker := NewTradeLocker()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock(7)
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load(), "one holder per trade")
	assert.Zero(t, locker.Len(), "entries are released")

	unlockA := locker.Lock(1)
	unlockB := locker.Lock(2)
	assert.Equal(t, 2, locker.Len(), "different trades do not block each other")
	unlockA()
	unlockB()
}
