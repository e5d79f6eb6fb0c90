package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "communication_requests_total",
			Help: "Communication request transitions (created/activated/declined/expired/race_lost).",
		},
		[]string{"transition"},
	)

	sessionsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sessions_opened_total",
			Help: "Anonymous chat sessions opened by the session bridge.",
		},
	)

	sessionsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sessions_ended_total",
			Help: "Anonymous chat sessions ended, by cause (explicit/idle).",
		},
		[]string{"cause"},
	)

	deeplinkFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deeplink_fallback_handle_total",
			Help: "Deep links built with the fallback communicator handle due to a misconfigured one.",
		},
	)
)

func IncRequestTransition(t string) { requestsTotal.WithLabelValues(norm(t)).Inc() }
func AddRequestTransitions(t string, n int64) {
	requestsTotal.WithLabelValues(norm(t)).Add(float64(n))
}
func IncSessionOpened()             { sessionsOpened.Inc() }
func IncSessionEnded(cause string)  { sessionsEnded.WithLabelValues(norm(cause)).Inc() }
func AddSessionsEnded(cause string, n int64) {
	sessionsEnded.WithLabelValues(norm(cause)).Add(float64(n))
}
func IncDeeplinkFallback() { deeplinkFallbacks.Inc() }
