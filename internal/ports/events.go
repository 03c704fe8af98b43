package ports

import (
	"context"
	"time"

	"spotKeeper/internal/domain"
)

// EventSink receives lifecycle notifications. Emit is fire-and-forget:
// delivery is best-effort and consumers must be idempotent.
type EventSink interface {
	Emit(ctx context.Context, event domain.Event)
}

// Metrics records operational counters for the lifecycle.
type Metrics interface {
	// OrderPlaced counts a placement attempt by order type and outcome ("ok", "error").
	OrderPlaced(orderType domain.OrderType, outcome string)
	// OrderCanceled counts a cancel by outcome ("ok", "not_found", "error").
	OrderCanceled(outcome string)
	// BalanceRetry counts insufficient-balance retries by outcome.
	BalanceRetry(outcome string)
	// EventEmitted counts emitted lifecycle events.
	EventEmitted(name string)
	// ReconcileObserved records one per-trade reconciliation run.
	ReconcileObserved(duration time.Duration, err error)
}

// Outcome labels used with Metrics.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeNotFound = "not_found"
)

// NopMetrics discards every observation. Used when metrics are disabled.
type NopMetrics struct{}

func (NopMetrics) OrderPlaced(domain.OrderType, string)   {}
func (NopMetrics) OrderCanceled(string)                   {}
func (NopMetrics) BalanceRetry(string)                    {}
func (NopMetrics) EventEmitted(string)                    {}
func (NopMetrics) ReconcileObserved(time.Duration, error) {}
