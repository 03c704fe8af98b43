package ports

import (
	"context"
	"time"

	"spotKeeper/internal/domain"
)

// OrderRequest describes a single order placement. Quantity and prices are
// already formatted to the venue's precision.
type OrderRequest struct {
	Symbol        string
	Side          domain.OrderSide
	Type          domain.OrderType
	Quantity      string
	Price         string
	StopPrice     string // Empty for plain limit orders
	ClientOrderID string // Fresh per placement attempt
}

// OrderResponse represents the essential order details returned by the venue.
type OrderResponse struct {
	OrderID       int64     // Exchange's order ID
	Symbol        string    // Symbol for the order
	ClientOrderID string    // User-defined order ID
	Price         float64   // Limit price
	StopPrice     float64   // Trigger price, 0 when the venue response omits it
	AvgPrice      float64   // Average filled price (0 if nothing executed)
	OrigQuantity  float64   // Original quantity requested
	ExecutedQty   float64   // Quantity filled
	Status        string    // Order status (e.g., NEW, FILLED, CANCELED)
	Type          string    // Order type (e.g., LIMIT, STOP_LOSS_LIMIT)
	Side          string    // Order side (BUY, SELL)
	Timestamp     time.Time // Time the order response was generated
}

// ApplyTo copies the venue-reported fields onto a local order record.
// Tracking metadata is left untouched.
func (r *OrderResponse) ApplyTo(o *domain.OrderRecord) {
	if r == nil || o == nil {
		return
	}
	if r.OrderID != 0 {
		o.VenueOrderID = r.OrderID
	}
	if r.Symbol != "" {
		o.Symbol = r.Symbol
	}
	if r.ClientOrderID != "" {
		o.ClientOrderID = r.ClientOrderID
	}
	if r.Side != "" {
		o.Side = domain.OrderSide(r.Side)
	}
	if r.Type != "" {
		o.Type = domain.OrderType(r.Type)
	}
	if r.Status != "" {
		o.Status = domain.OrderStatus(r.Status)
	}
	o.OrigQty = r.OrigQuantity
	o.ExecutedQty = r.ExecutedQty
	o.Price = r.Price
	if r.StopPrice != 0 {
		o.StopPrice = r.StopPrice
	}
}

// Balance is the free and locked amount of one asset.
type Balance struct {
	Asset     string
	Available float64
	OnOrder   float64
}

// ExchangeGateway is the signed REST surface of the venue used by the lifecycle.
// Every call is one blocking round trip; request timeouts are surfaced as errors.
type ExchangeGateway interface {
	// PlaceOrder submits a new order.
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)

	// CancelOrder cancels an open order. A missing order yields an error wrapping ErrOrderNotFound.
	CancelOrder(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error)

	// OrderStatus fetches the current venue state of an order.
	OrderStatus(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error)

	// Balances returns account balances keyed by asset.
	Balances(ctx context.Context) (map[string]Balance, error)
}

// RuleSource provides venue trading rules.
type RuleSource interface {
	// ExchangeRules returns the trading rules for the given symbols, or for every listed symbol when none are given.
	ExchangeRules(ctx context.Context, symbols ...string) ([]*domain.TradingRule, error)
}

// GatewayFactory resolves the gateway authenticated as a given user.
type GatewayFactory interface {
	// ForUser returns an error wrapping ErrMissingCredentials, without any
	// network call, when the user has no usable key pair.
	ForUser(ctx context.Context, userID int64) (ExchangeGateway, error)
}

// PriceSource provides the current best bid of a symbol.
type PriceSource interface {
	BestBid(ctx context.Context, symbol string) (float64, error)
}
