package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var once sync.Once

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			searchesTotal, pointsCharged, pointsRefunded,
			requestsTotal, sessionsOpened, sessionsEnded, deeplinkFallbacks,
			relayDeliveries, relayRetries, relayLatencyMs,
		)
	})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
