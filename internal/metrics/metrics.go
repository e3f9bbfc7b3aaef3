// Package metrics exposes the broker's Prometheus metrics: orders
// opened/closed, upstream-venue retcodes, market-data staleness, and session
// state transitions.
//
// Grounded on chidi150c-coinbase/metrics.go: package-level CounterVec/
// GaugeVec variables registered once in init() and exposed through small
// package-level helper functions, rather than an injected metrics struct —
// the same "global registry, package-level helpers" shape, generalized from
// trading-bot PnL counters to brokerage order/ledger/session counters.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_orders_opened_total",
			Help: "Orders opened, by side and symbol.",
		},
		[]string{"side", "symbol"},
	)

	OrdersClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_orders_closed_total",
			Help: "Orders closed, by side, symbol, and terminal status.",
		},
		[]string{"side", "symbol", "status"},
	)

	BridgeRetcodes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_bridge_retcodes_total",
			Help: "Upstream venue responses, by method and retcode.",
		},
		[]string{"method", "retcode"},
	)

	MarketDataStaleness = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "broker_market_data_staleness_seconds",
			Help: "Age of the cached quote for a symbol, in seconds.",
		},
		[]string{"symbol"},
	)

	SessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_session_transitions_total",
			Help: "Session state-machine transitions, by target state.",
		},
		[]string{"state"},
	)

	WebhookMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_webhook_messages_total",
			Help: "Inbound webhook messages, by outcome (processed|duplicate|unauthorized|invalid|throttled).",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(OrdersOpened, OrdersClosed, BridgeRetcodes)
	prometheus.MustRegister(MarketDataStaleness, SessionTransitions, WebhookMessages)
}

// RecordOrderOpened increments the orders-opened counter.
func RecordOrderOpened(side, symbol string) {
	OrdersOpened.WithLabelValues(side, symbol).Inc()
}

// RecordOrderClosed increments the orders-closed counter.
func RecordOrderClosed(side, symbol, status string) {
	OrdersClosed.WithLabelValues(side, symbol, status).Inc()
}

// RecordBridgeRetcode increments the bridge-retcode counter.
func RecordBridgeRetcode(method string, retcode int) {
	BridgeRetcodes.WithLabelValues(method, strconv.Itoa(retcode)).Inc()
}

// SetMarketDataStaleness records the current age of a symbol's cached quote.
func SetMarketDataStaleness(symbol string, ageSeconds float64) {
	MarketDataStaleness.WithLabelValues(symbol).Set(ageSeconds)
}

// RecordSessionTransition increments the session state-transition counter.
func RecordSessionTransition(state string) {
	SessionTransitions.WithLabelValues(state).Inc()
}

// RecordWebhookMessage increments the webhook-message counter.
func RecordWebhookMessage(outcome string) {
	WebhookMessages.WithLabelValues(outcome).Inc()
}
