// Package metrics exposes session counters to prometheus. The collector
// registry is private so concurrent sessions in one process (tests) do
// not collide.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the session's prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	OrdersAccepted  prometheus.Counter
	OrdersRejected  prometheus.Counter
	TradesExecuted  prometheus.Counter
	NewsPublished   prometheus.Counter
	PayloadsDropped prometheus.Counter

	LastMid         prometheus.Gauge
	SessionProgress prometheus.Gauge
}

// New creates a fresh metrics set backed by its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		OrdersAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentmarket_orders_accepted_total",
			Help: "Orders executed or rested by the market maker.",
		}),
		OrdersRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentmarket_orders_rejected_total",
			Help: "Orders refused by the market maker.",
		}),
		TradesExecuted: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentmarket_trades_executed_total",
			Help: "Trades settled against the ledger.",
		}),
		NewsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentmarket_news_published_total",
			Help: "News flashes broadcast by the scenario controller.",
		}),
		PayloadsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentmarket_payloads_dropped_total",
			Help: "Envelopes discarded because their payload failed to decode.",
		}),
		LastMid: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentmarket_last_mid_price",
			Help: "Most recently quoted mid price.",
		}),
		SessionProgress: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentmarket_session_progress_ratio",
			Help: "Session progress ratio in [0,1].",
		}),
	}
}

// Handler serves the /metrics endpoint for this session's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
