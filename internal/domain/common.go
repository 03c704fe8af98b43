package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderType is the venue order type used by the lifecycle.
type OrderType string

const (
	OrderTypeLimit           OrderType = "LIMIT"
	OrderTypeStopLossLimit   OrderType = "STOP_LOSS_LIMIT"
	OrderTypeTakeProfitLimit OrderType = "TAKE_PROFIT_LIMIT"
)

// OrderStatus is the venue-reported status of an order.
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusExpired         OrderStatus = "EXPIRED"
)

// IsOpen reports whether the venue still holds the order on the book.
func (s OrderStatus) IsOpen() bool {
	return s == StatusNew || s == StatusPartiallyFilled
}

// Slot names the logical protective-order position an order occupies.
type Slot string

const (
	SlotBuy              Slot = "buy"
	SlotOriginStopLoss   Slot = "origin_stop_loss"
	SlotTrailingStopLoss Slot = "trailing_stop_loss"
	SlotTakeProfit       Slot = "take_profit"
	SlotUnknown          Slot = "unknown"
)

// Credentials holds a user's exchange API key pair.
type Credentials struct {
	UserID    int64
	APIKey    string
	APISecret string
}

// Valid reports whether both halves of the key pair are present.
func (c *Credentials) Valid() bool {
	return c != nil && c.APIKey != "" && c.APISecret != ""
}
