package domain

// Event is a lifecycle notification produced by reconciliation.
type Event interface {
	// EventName returns a stable identifier for the event kind.
	EventName() string
	// TradeRef returns the ID of the trade the event belongs to.
	TradeRef() int64
}

const (
	EventTargetFillingStarted          = "trade.target.filling_started"
	EventTargetFillingFinished         = "trade.target.filling_finished"
	EventOriginStopLossFillingStarted  = "trade.origin_stop_loss.filling_started"
	EventOriginStopLossFillingFinished = "trade.origin_stop_loss.filling_finished"
	EventTradeFinished                 = "trade.finished"
)

// TargetFillingStarted fires when a target's sell order moves from NEW to PARTIALLY_FILLED.
type TargetFillingStarted struct {
	TradeID     int64   `json:"tradeId"`
	TargetIndex int     `json:"targetIndex"`
	ExecutedQty float64 `json:"executedQty"`
}

func (e TargetFillingStarted) EventName() string { return EventTargetFillingStarted }
func (e TargetFillingStarted) TradeRef() int64   { return e.TradeID }

// TargetFillingFinished fires when a target's sell order moves from PARTIALLY_FILLED to FILLED.
type TargetFillingFinished struct {
	TradeID     int64 `json:"tradeId"`
	TargetIndex int   `json:"targetIndex"`
}

func (e TargetFillingFinished) EventName() string { return EventTargetFillingFinished }
func (e TargetFillingFinished) TradeRef() int64   { return e.TradeID }

// OriginStopLossFillingStarted fires when the origin stop-loss starts executing.
type OriginStopLossFillingStarted struct {
	TradeID     int64   `json:"tradeId"`
	ExecutedQty float64 `json:"executedQty"`
}

func (e OriginStopLossFillingStarted) EventName() string { return EventOriginStopLossFillingStarted }
func (e OriginStopLossFillingStarted) TradeRef() int64   { return e.TradeID }

// OriginStopLossFillingFinished fires when the origin stop-loss is completely filled.
type OriginStopLossFillingFinished struct {
	TradeID int64 `json:"tradeId"`
}

func (e OriginStopLossFillingFinished) EventName() string { return EventOriginStopLossFillingFinished }
func (e OriginStopLossFillingFinished) TradeRef() int64   { return e.TradeID }

// TradeFinished fires once, when the final target or the trailing stop-loss
// fills and the trade is deactivated.
type TradeFinished struct {
	TradeID         int64    `json:"tradeId"`
	GainLossPercent *float64 `json:"gainLossPercent,omitempty"` // Realised result, nil when it cannot be computed
}

func (e TradeFinished) EventName() string { return EventTradeFinished }
func (e TradeFinished) TradeRef() int64   { return e.TradeID }
