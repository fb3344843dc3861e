package proxy

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upstream outcome label values.
const (
	outcomeSuccess     = "success"
	outcomeTimeout     = "timeout"
	outcomeUnreachable = "unreachable"
	outcomeStatus      = "status"
	outcomeCircuitOpen = "circuit_open"
)

// proxyMetrics contains Prometheus metrics for upstream calls.
type proxyMetrics struct {
	requestsTotal    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	breakerState     *prometheus.GaugeVec
}

var (
	proxyMetricsInstance *proxyMetrics
	proxyMetricsOnce     sync.Once
)

// getProxyMetrics returns the singleton proxy metrics instance,
// registered with the default registerer.
func getProxyMetrics() *proxyMetrics {
	proxyMetricsOnce.Do(func() {
		factory := promauto.With(prometheus.DefaultRegisterer)
		proxyMetricsInstance = &proxyMetrics{
			requestsTotal: factory.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "gateway",
					Subsystem: "upstream",
					Name:      "requests_total",
					Help:      "Total number of upstream requests by outcome",
				},
				[]string{"service", "outcome"},
			),
			upstreamDuration: factory.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "gateway",
					Subsystem: "upstream",
					Name:      "duration_seconds",
					Help:      "Duration of upstream requests",
					Buckets: []float64{
						.001, .005, .01, .025,
						.05, .1, .25, .5,
						1, 2.5, 5, 10,
					},
				},
				[]string{"service"},
			),
			breakerState: factory.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "gateway",
					Subsystem: "upstream",
					Name:      "circuit_breaker_state",
					Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
				},
				[]string{"service"},
			),
		}
	})
	return proxyMetricsInstance
}

// Collectors returns the upstream collectors for registration on the
// gateway registry.
func Collectors() []prometheus.Collector {
	m := getProxyMetrics()
	return []prometheus.Collector{m.requestsTotal, m.upstreamDuration, m.breakerState}
}

// InitMetrics pre-populates label combinations for services so their
// series appear before the first request.
func InitMetrics(services ...string) {
	m := getProxyMetrics()
	for _, svc := range services {
		for _, outcome := range []string{
			outcomeSuccess, outcomeTimeout, outcomeUnreachable, outcomeStatus, outcomeCircuitOpen,
		} {
			m.requestsTotal.WithLabelValues(svc, outcome)
		}
		m.upstreamDuration.WithLabelValues(svc)
	}
}
