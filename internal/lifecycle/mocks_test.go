package lifecycle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"spotKeeper/internal/domain"
	"spotKeeper/internal/ports"
)

type mockLogger struct {
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

// mockGateway records every request. placeErrs is indexed by call number.
type mockGateway struct {
	placed      []ports.OrderRequest
	placeErrs   []error
	canceled    []int64
	cancelErrs  map[int64]error
	balances    map[string]ports.Balance
	balancesErr error
	balanceHits int
	nextOrderID int64
}

func (m *mockGateway) PlaceOrder(ctx context.Context, req ports.OrderRequest) (*ports.OrderResponse, error) {
	m.placed = append(m.placed, req)
	if i := len(m.placed) - 1; i < len(m.placeErrs) && m.placeErrs[i] != nil {
		return nil, m.placeErrs[i]
	}
	m.nextOrderID++
	qty, _ := strconv.ParseFloat(req.Quantity, 64)
	price, _ := strconv.ParseFloat(req.Price, 64)
	stop, _ := strconv.ParseFloat(req.StopPrice, 64)
	return &ports.OrderResponse{
		OrderID:       9000 + m.nextOrderID,
		Symbol:        req.Symbol,
		ClientOrderID: req.ClientOrderID,
		Price:         price,
		StopPrice:     stop,
		OrigQuantity:  qty,
		Status:        string(domain.StatusNew),
		Type:          string(req.Type),
		Side:          string(req.Side),
		Timestamp:     time.Now(),
	}, nil
}

func (m *mockGateway) CancelOrder(ctx context.Context, symbol string, orderID int64) (*ports.OrderResponse, error) {
	m.canceled = append(m.canceled, orderID)
	if err := m.cancelErrs[orderID]; err != nil {
		return nil, err
	}
	return &ports.OrderResponse{OrderID: orderID, Symbol: symbol, Status: string(domain.StatusCanceled)}, nil
}

func (m *mockGateway) OrderStatus(ctx context.Context, symbol string, orderID int64) (*ports.OrderResponse, error) {
	return nil, fmt.Errorf("not scripted")
}

func (m *mockGateway) Balances(ctx context.Context) (map[string]ports.Balance, error) {
	m.balanceHits++
	return m.balances, m.balancesErr
}

type mockFactory struct {
	gateways map[int64]*mockGateway
}

func (f *mockFactory) ForUser(ctx context.Context, userID int64) (ports.ExchangeGateway, error) {
	gw, ok := f.gateways[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", ports.ErrMissingCredentials, userID)
	}
	return gw, nil
}

type memOrders struct {
	nextID    int64
	created   []*domain.OrderRecord
	updated   []int64
	deleted   []int64
	deleteErr map[int64]error
}

func (m *memOrders) CreateOrder(ctx context.Context, o *domain.OrderRecord) (int64, error) {
	m.nextID++
	m.created = append(m.created, o)
	return m.nextID, nil
}

func (m *memOrders) UpdateOrder(ctx context.Context, o *domain.OrderRecord) error {
	m.updated = append(m.updated, o.ID)
	return nil
}

func (m *memOrders) DeleteOrder(ctx context.Context, id int64) error {
	if err := m.deleteErr[id]; err != nil {
		return err
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memOrders) FindOrdersByTrade(ctx context.Context, tradeID int64) ([]*domain.OrderRecord, error) {
	return m.created, nil
}

type memTargets struct {
	updated  []*domain.Target
	detached []int64
}

func (m *memTargets) UpdateTarget(ctx context.Context, t *domain.Target) error {
	m.updated = append(m.updated, t)
	return nil
}

func (m *memTargets) DetachOrder(ctx context.Context, orderID int64) error {
	m.detached = append(m.detached, orderID)
	return nil
}

type countingMetrics struct {
	ports.NopMetrics
	placed   map[string]int
	canceled map[string]int
	retries  map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{placed: map[string]int{}, canceled: map[string]int{}, retries: map[string]int{}}
}

func (m *countingMetrics) OrderPlaced(t domain.OrderType, outcome string) {
	m.placed[string(t)+"/"+outcome]++
}
func (m *countingMetrics) OrderCanceled(outcome string) { m.canceled[outcome]++ }
func (m *countingMetrics) BalanceRetry(outcome string)  { m.retries[outcome]++ }

// lockingGateway behaves like the venue's spot book: an open sell order locks
// the base asset it sells, and a take-profit whose trigger is already at or
// below the last price is rejected.
type lockingGateway struct {
	asset     string
	free      float64
	lastPrice float64
	open      map[int64]float64
	placed    []ports.OrderRequest
	nextID    int64
}

func newLockingGateway(asset string, free float64) *lockingGateway {
	return &lockingGateway{asset: asset, free: free, open: map[int64]float64{}}
}

func (g *lockingGateway) PlaceOrder(ctx context.Context, req ports.OrderRequest) (*ports.OrderResponse, error) {
	g.placed = append(g.placed, req)
	qty, _ := strconv.ParseFloat(req.Quantity, 64)
	price, _ := strconv.ParseFloat(req.Price, 64)
	stop, _ := strconv.ParseFloat(req.StopPrice, 64)
	if req.Type == domain.OrderTypeTakeProfitLimit && stop <= g.lastPrice {
		return nil, &ports.VenueError{Op: "PlaceOrder", Code: -2010, Message: "Order would trigger immediately.", Kind: ports.ErrOrderPlacementFailed}
	}
	if req.Side == domain.Sell {
		if qty > g.free+1e-9 {
			return nil, &ports.VenueError{Op: "PlaceOrder", Code: -2010, Message: "Account has insufficient balance for requested action.", Kind: ports.ErrInsufficientFunds}
		}
		g.free -= qty
	}
	g.nextID++
	id := 7000 + g.nextID
	g.open[id] = qty
	return &ports.OrderResponse{
		OrderID: id, Symbol: req.Symbol, ClientOrderID: req.ClientOrderID,
		Price: price, StopPrice: stop, OrigQuantity: qty,
		Status: string(domain.StatusNew), Type: string(req.Type), Side: string(req.Side),
	}, nil
}

func (g *lockingGateway) CancelOrder(ctx context.Context, symbol string, orderID int64) (*ports.OrderResponse, error) {
	qty, ok := g.open[orderID]
	if !ok {
		return nil, &ports.VenueError{Op: "CancelOrder", Code: -2011, Message: "Unknown order sent.", Kind: ports.ErrOrderNotFound}
	}
	delete(g.open, orderID)
	g.free += qty
	return &ports.OrderResponse{OrderID: orderID, Symbol: symbol, OrigQuantity: qty, Status: string(domain.StatusCanceled)}, nil
}

// fill executes an open order completely; the sold asset leaves the account.
func (g *lockingGateway) fill(orderID int64) {
	delete(g.open, orderID)
}

func (g *lockingGateway) OrderStatus(ctx context.Context, symbol string, orderID int64) (*ports.OrderResponse, error) {
	return nil, fmt.Errorf("not scripted")
}

func (g *lockingGateway) Balances(ctx context.Context) (map[string]ports.Balance, error) {
	return map[string]ports.Balance{g.asset: {Asset: g.asset, Available: g.free}}, nil
}

type lockingFactory struct {
	gw *lockingGateway
}

func (f *lockingFactory) ForUser(ctx context.Context, userID int64) (ports.ExchangeGateway, error) {
	return f.gw, nil
}
