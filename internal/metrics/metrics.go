// Package metrics exposes the engine's Prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradebot_cycles_total", Help: "Decision cycles by outcome"},
		[]string{"outcome"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradebot_signals_total", Help: "Signals produced"},
		[]string{"strategy", "action"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradebot_orders_total", Help: "Orders submitted"},
		[]string{"role", "side"},
	)
	SignalsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradebot_signals_dropped_total", Help: "Signals dropped before entry"},
		[]string{"reason"},
	)
	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradebot_retries_total", Help: "Retried remote calls"},
		[]string{"op"},
	)
	QuotesCollected = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "tradebot_quotes_collected_total", Help: "Quote snapshots written"},
	)
	FreeCapital = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "tradebot_free_capital", Help: "Free capital at the last capital check"},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal, SignalsTotal, OrdersTotal, SignalsDroppedTotal,
		RetriesTotal, QuotesCollected, FreeCapital)
}

// CountRetry is a retry-policy hook that counts retries per operation.
func CountRetry(op string, _ int, _ error) {
	RetriesTotal.WithLabelValues(op).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
