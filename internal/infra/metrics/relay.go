package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	relayDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Relay message deliveries by outcome (delivered/not_delivered/rejected).",
		},
		[]string{"outcome"},
	)

	relayRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_delivery_retries_total",
			Help: "Transport send retries performed by the relay.",
		},
	)

	relayLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_delivery_latency_ms",
			Help:    "End-to-end relay delivery latency in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
		},
	)
)

func IncRelayDelivery(outcome string) { relayDeliveries.WithLabelValues(norm(outcome)).Inc() }
func IncRelayRetry()                  { relayRetries.Inc() }
func ObserveRelayLatencyMs(ms float64) {
	relayLatencyMs.Observe(ms)
}
