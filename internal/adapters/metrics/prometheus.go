// Package metrics exposes lifecycle counters in the Prometheus text format.
//
// Exposed series:
//   - spot_keeper_orders_placed_total{type,outcome}
//   - spot_keeper_orders_canceled_total{outcome}
//   - spot_keeper_balance_retries_total{outcome}
//   - spot_keeper_events_total{name}
//   - spot_keeper_reconcile_duration_seconds{outcome}
package metrics

import (
	"net/http"
	"time"

	"spotKeeper/internal/domain"
	"spotKeeper/internal/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus implements ports.Metrics on a dedicated registry.
type Prometheus struct {
	registry *prometheus.Registry

	ordersPlaced   *prometheus.CounterVec
	ordersCanceled *prometheus.CounterVec
	balanceRetries *prometheus.CounterVec
	events         *prometheus.CounterVec
	reconcile      *prometheus.HistogramVec
}

// NewPrometheus creates and registers the lifecycle metrics.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		ordersPlaced: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "spot_keeper_orders_placed_total", Help: "Order placement attempts"},
			[]string{"type", "outcome"},
		),
		ordersCanceled: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "spot_keeper_orders_canceled_total", Help: "Order cancel attempts"},
			[]string{"outcome"},
		),
		balanceRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "spot_keeper_balance_retries_total", Help: "Placements retried with a balance-clamped quantity"},
			[]string{"outcome"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "spot_keeper_events_total", Help: "Lifecycle events emitted"},
			[]string{"name"},
		),
		reconcile: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spot_keeper_reconcile_duration_seconds",
				Help:    "Duration of one trade reconciliation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
	}
	p.registry.MustRegister(p.ordersPlaced, p.ordersCanceled, p.balanceRetries, p.events, p.reconcile)
	return p
}

// Registry returns the registry holding the lifecycle metrics.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry at /metrics.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) OrderPlaced(orderType domain.OrderType, outcome string) {
	p.ordersPlaced.WithLabelValues(string(orderType), outcome).Inc()
}

func (p *Prometheus) OrderCanceled(outcome string) {
	p.ordersCanceled.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) BalanceRetry(outcome string) {
	p.balanceRetries.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) EventEmitted(name string) {
	p.events.WithLabelValues(name).Inc()
}

func (p *Prometheus) ReconcileObserved(duration time.Duration, err error) {
	outcome := ports.OutcomeOK
	if err != nil {
		outcome = ports.OutcomeError
	}
	p.reconcile.WithLabelValues(outcome).Observe(duration.Seconds())
}
