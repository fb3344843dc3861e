package router

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// resolveMetrics contains Prometheus metrics for route resolution.
type resolveMetrics struct {
	resolved *prometheus.CounterVec
	notFound prometheus.Counter
}

var (
	resolveMetricsInstance *resolveMetrics
	resolveMetricsOnce     sync.Once
)

// getResolveMetrics returns the singleton resolution metrics instance.
func getResolveMetrics() *resolveMetrics {
	resolveMetricsOnce.Do(func() {
		resolveMetricsInstance = &resolveMetrics{
			resolved: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "gateway",
					Subsystem: "router",
					Name:      "resolved_total",
					Help:      "Total number of requests resolved to a route",
				},
				[]string{"route"},
			),
			notFound: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "gateway",
					Subsystem: "router",
					Name:      "not_found_total",
					Help:      "Total number of requests that matched no route",
				},
			),
		}
	})
	return resolveMetricsInstance
}

// Collectors returns the router collectors for registration with a
// custom registry.
func Collectors() []prometheus.Collector {
	m := getResolveMetrics()
	return []prometheus.Collector{m.resolved, m.notFound}
}

func recordResolve(route string) {
	m := getResolveMetrics()
	if route == "" {
		m.notFound.Inc()
		return
	}
	m.resolved.WithLabelValues(route).Inc()
}
