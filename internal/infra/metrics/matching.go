package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	searchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_searches_total",
			Help: "Find-match attempts by outcome (found/empty/unavailable/insufficient_points/rate_limited).",
		},
		[]string{"outcome"},
	)

	pointsCharged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_points_charged_total",
			Help: "Points charged for successful match searches.",
		},
	)

	pointsRefunded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_points_refunded_total",
			Help: "Points refunded by the compensating path after a post-charge failure.",
		},
	)
)

func IncSearch(outcome string) { searchesTotal.WithLabelValues(norm(outcome)).Inc() }
func AddPointsCharged(n int)   { pointsCharged.Add(float64(n)) }
func AddPointsRefunded(n int)  { pointsRefunded.Add(float64(n)) }
