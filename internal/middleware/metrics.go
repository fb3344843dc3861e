package middleware

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values of the middleware metrics.
const (
	scopeGlobal = "global"
	scopeClient = "client"

	decisionAllowed  = "allowed"
	decisionRejected = "rejected"

	requestIDInbound   = "inbound"
	requestIDGenerated = "generated"
	requestIDReplaced  = "replaced"
)

// MiddlewareMetrics holds the counters of the inbound middleware chain.
type MiddlewareMetrics struct {
	rateLimitDecisions *prometheus.CounterVec
	panicsRecovered    *prometheus.CounterVec
	requestIDs         *prometheus.CounterVec
}

var (
	middlewareMetrics     *MiddlewareMetrics
	middlewareMetricsOnce sync.Once
)

// GetMiddlewareMetrics returns the singleton middleware metrics
// instance.
func GetMiddlewareMetrics() *MiddlewareMetrics {
	middlewareMetricsOnce.Do(func() {
		middlewareMetrics = newMiddlewareMetrics()
	})
	return middlewareMetrics
}

func newMiddlewareMetrics() *MiddlewareMetrics {
	return &MiddlewareMetrics{
		rateLimitDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "middleware",
				Name:      "rate_limit_decisions_total",
				Help:      "Rate limiter decisions by limiter scope",
			},
			[]string{"scope", "decision"},
		),
		panicsRecovered: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "middleware",
				Name:      "panics_recovered_total",
				Help:      "Panics recovered in the request chain",
			},
			[]string{"method"},
		),
		requestIDs: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "middleware",
				Name:      "request_ids_total",
				Help:      "Request IDs by origin (inbound, generated, replaced)",
			},
			[]string{"source"},
		),
	}
}

// Collectors returns the middleware collectors for registration on the
// gateway registry.
func (m *MiddlewareMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.rateLimitDecisions,
		m.panicsRecovered,
		m.requestIDs,
	}
}
