package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes of a Do call.
const (
	outcomeSuccess   = "success"
	outcomePermanent = "permanent"
	outcomeExhausted = "exhausted"
	outcomeCanceled  = "canceled"
)

var (
	// RetriesTotal counts retries, excluding first attempts.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "retry",
			Name:      "retries_total",
			Help:      "Retries performed, excluding first attempts",
		},
		[]string{"operation"},
	)

	// OutcomesTotal counts finished Do calls by how they ended.
	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "retry",
			Name:      "outcomes_total",
			Help:      "Retried operations by outcome (success, permanent, exhausted, canceled)",
		},
		[]string{"operation", "outcome"},
	)
)

// Collectors returns the retry collectors for registration on a custom
// registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{RetriesTotal, OutcomesTotal}
}

func recordRetry(operation string) {
	RetriesTotal.WithLabelValues(operation).Inc()
}

func recordOutcome(operation, outcome string) {
	OutcomesTotal.WithLabelValues(operation, outcome).Inc()
}
