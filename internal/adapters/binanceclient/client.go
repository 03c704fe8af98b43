package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"spotKeeper/internal/domain"
	"spotKeeper/internal/ports"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"golang.org/x/time/rate"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"
)

// Client implements ports.ExchangeGateway, ports.RuleSource and
// ports.PriceSource against the Binance spot REST API.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
	limiter    *rate.Limiter
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey            string
	SecretKey         string
	UseTestnet        bool
	BaseURL           string // Overrides the production/testnet URL when set
	Logger            ports.Logger
	RequestsPerSecond float64       // Client-side request budget (e.g., 10)
	Burst             int           // Requests allowed above the steady rate
	HTTPTimeout       time.Duration // Per-request timeout (e.g., 10 * time.Second)
	SyncServerTime    bool          // Factory clients align their clock offset with the venue on creation
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Debug(context.Background(), "Binance spot client configured", map[string]interface{}{"baseURL": client.BaseURL, "testnet": cfg.UseTestnet})

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client.HTTPClient = &http.Client{Timeout: timeout}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		spotClient: client,
		logger:     cfg.Logger,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

// wait blocks until the client-side rate budget allows another request.
func (c *Client) wait(ctx context.Context, operation string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return c.handleError(ctx, err, operation)
	}
	return nil
}

// handleError translates Binance API errors into *ports.VenueError and other
// failures into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message
		venueErr := &ports.VenueError{
			Op:      operation,
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Detail:  detail(apiErr.Code, apiErr.Message),
			Kind:    classify(apiErr.Code, apiErr.Message),
		}
		if errors.Is(venueErr, ports.ErrOrderNotFound) {
			c.logger.Debug(ctx, fmt.Sprintf("%s: order not found on venue", operation), fields)
		} else {
			c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		}
		return venueErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") ||
		strings.Contains(err.Error(), "no such host") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		// Default for other errors (e.g., parsing errors within the adapter)
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

func isClientTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// SetServerTime synchronizes the client's time offset with the server's time.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	if err := c.wait(ctx, op); err != nil {
		return err
	}
	if _, err := c.spotClient.NewSetServerTimeService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// Ping checks connectivity to the REST API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.wait(ctx, op); err != nil {
		return err
	}
	if err := c.spotClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	return nil
}

// PlaceOrder submits a GTC limit, stop-loss-limit or take-profit-limit order.
func (c *Client) PlaceOrder(ctx context.Context, req ports.OrderRequest) (*ports.OrderResponse, error) {
	op := "PlaceOrder"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}

	svc := c.spotClient.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(binance.SideType(req.Side)).
		Type(binance.OrderType(req.Type)).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(req.Quantity).
		Price(req.Price)
	if req.StopPrice != "" {
		svc = svc.StopPrice(req.StopPrice)
	}
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateCreateOrderResponse(order)
	// The placement response does not echo the trigger price.
	if req.StopPrice != "" {
		resp.StopPrice = parseFloat(req.StopPrice)
	}
	c.logger.Info(ctx, "Order placed", map[string]interface{}{
		"symbol": resp.Symbol, "orderId": resp.OrderID, "side": resp.Side, "type": resp.Type,
		"quantity": req.Quantity, "price": req.Price, "stopPrice": req.StopPrice, "status": resp.Status,
	})
	return resp, nil
}

// CancelOrder cancels an open order on Binance.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) (*ports.OrderResponse, error) {
	op := "CancelOrder"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	res, err := c.spotClient.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, "Order canceled", map[string]interface{}{"symbol": symbol, "orderId": orderID, "status": res.Status})
	return translateCancelOrderResponse(res), nil
}

// OrderStatus fetches the current state of an order.
func (c *Client) OrderStatus(ctx context.Context, symbol string, orderID int64) (*ports.OrderResponse, error) {
	op := "OrderStatus"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	order, err := c.spotClient.NewGetOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return translateOrder(order), nil
}

// Balances returns every account balance keyed by asset.
func (c *Client) Balances(ctx context.Context) (map[string]ports.Balance, error) {
	op := "Balances"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	account, err := c.spotClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	out := make(map[string]ports.Balance, len(account.Balances))
	for _, b := range account.Balances {
		out[b.Asset] = ports.Balance{
			Asset:     b.Asset,
			Available: parseFloat(b.Free),
			OnOrder:   parseFloat(b.Locked),
		}
	}
	return out, nil
}

// BestBid returns the highest bid on the book for a symbol.
func (c *Client) BestBid(ctx context.Context, symbol string) (float64, error) {
	op := "BestBid"
	if err := c.wait(ctx, op); err != nil {
		return 0, err
	}
	tickers, err := c.spotClient.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	for _, t := range tickers {
		if t.Symbol != symbol {
			continue
		}
		bid, err := strconv.ParseFloat(t.BidPrice, 64)
		if err != nil {
			return 0, c.handleError(ctx, fmt.Errorf("could not parse bid price '%s': %w", t.BidPrice, err), op)
		}
		return bid, nil
	}
	return 0, c.handleError(ctx, fmt.Errorf("no book ticker returned for symbol %s", symbol), op)
}

// ExchangeRules fetches the trading rules of the given symbols, or of every
// listed symbol when none are given.
func (c *Client) ExchangeRules(ctx context.Context, symbols ...string) ([]*domain.TradingRule, error) {
	op := "ExchangeRules"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	svc := c.spotClient.NewExchangeInfoService()
	if len(symbols) > 0 {
		svc = svc.Symbols(symbols...)
	}
	info, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	now := time.Now()
	rules := make([]*domain.TradingRule, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		rule := translateSymbol(s.Symbol, s.BaseAsset, s.QuoteAsset, s.Filters)
		rule.UpdatedAt = now
		rules = append(rules, rule)
	}
	c.logger.Debug(ctx, "Exchange rules fetched", map[string]interface{}{"count": len(rules)})
	return rules, nil
}

// --- Translation Helpers ---

func translateCreateOrderResponse(order *binance.CreateOrderResponse) *ports.OrderResponse {
	if order == nil {
		return nil
	}
	return &ports.OrderResponse{
		OrderID:       order.OrderID,
		Symbol:        order.Symbol,
		ClientOrderID: order.ClientOrderID,
		Price:         parseFloat(order.Price),
		AvgPrice:      avgPrice(order.CummulativeQuoteQuantity, order.ExecutedQuantity),
		OrigQuantity:  parseFloat(order.OrigQuantity),
		ExecutedQty:   parseFloat(order.ExecutedQuantity),
		Status:        string(order.Status),
		Type:          string(order.Type),
		Side:          string(order.Side),
		Timestamp:     time.UnixMilli(order.TransactTime),
	}
}

func translateCancelOrderResponse(order *binance.CancelOrderResponse) *ports.OrderResponse {
	if order == nil {
		return nil
	}
	return &ports.OrderResponse{
		OrderID:       order.OrderID,
		Symbol:        order.Symbol,
		ClientOrderID: order.OrigClientOrderID,
		Price:         parseFloat(order.Price),
		AvgPrice:      avgPrice(order.CummulativeQuoteQuantity, order.ExecutedQuantity),
		OrigQuantity:  parseFloat(order.OrigQuantity),
		ExecutedQty:   parseFloat(order.ExecutedQuantity),
		Status:        string(order.Status),
		Type:          string(order.Type),
		Side:          string(order.Side),
		Timestamp:     time.UnixMilli(order.TransactTime),
	}
}

func translateOrder(order *binance.Order) *ports.OrderResponse {
	if order == nil {
		return nil
	}
	return &ports.OrderResponse{
		OrderID:       order.OrderID,
		Symbol:        order.Symbol,
		ClientOrderID: order.ClientOrderID,
		Price:         parseFloat(order.Price),
		StopPrice:     parseFloat(order.StopPrice),
		AvgPrice:      avgPrice(order.CummulativeQuoteQuantity, order.ExecutedQuantity),
		OrigQuantity:  parseFloat(order.OrigQuantity),
		ExecutedQty:   parseFloat(order.ExecutedQuantity),
		Status:        string(order.Status),
		Type:          string(order.Type),
		Side:          string(order.Side),
		Timestamp:     time.UnixMilli(order.UpdateTime),
	}
}

// translateSymbol reads the PRICE_FILTER, LOT_SIZE and (MIN_)NOTIONAL filters of a symbol.
func translateSymbol(symbol, base, quote string, filters []map[string]interface{}) *domain.TradingRule {
	rule := &domain.TradingRule{Symbol: symbol, BaseAsset: base, QuoteAsset: quote}
	for _, f := range filters {
		switch f["filterType"] {
		case "PRICE_FILTER":
			rule.MinPrice = filterValue(f, "minPrice")
			rule.MaxPrice = filterValue(f, "maxPrice")
			rule.TickSize = filterValue(f, "tickSize")
		case "LOT_SIZE":
			rule.MinAmount = filterValue(f, "minQty")
			rule.MaxAmount = filterValue(f, "maxQty")
			rule.StepSize = filterValue(f, "stepSize")
		case "MIN_NOTIONAL", "NOTIONAL":
			if v := filterValue(f, "minNotional"); v > 0 {
				rule.MinOrderValue = v
			}
		}
	}
	return rule
}

func filterValue(f map[string]interface{}, key string) float64 {
	switch v := f[key].(type) {
	case string:
		return parseFloat(v)
	case float64:
		return v
	default:
		return 0
	}
}

func avgPrice(cumQuote, executed string) float64 {
	qty := parseFloat(executed)
	if qty == 0 {
		return 0
	}
	return parseFloat(cumQuote) / qty
}

// parseFloat is lenient: venue decimals that fail to parse count as zero.
func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
