package health

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Probe names used as label values.
const (
	probeLiveness  = "liveness"
	probeReadiness = "readiness"
)

// HealthMetrics holds the probe and dependency check metrics.
type HealthMetrics struct {
	probesTotal   *prometheus.CounterVec
	checkUp       *prometheus.GaugeVec
	checkDuration *prometheus.HistogramVec
}

var (
	healthMetricsInstance *HealthMetrics
	healthMetricsOnce     sync.Once
)

// GetHealthMetrics returns the singleton health metrics instance.
func GetHealthMetrics() *HealthMetrics {
	healthMetricsOnce.Do(func() {
		healthMetricsInstance = &HealthMetrics{
			probesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "gateway",
					Subsystem: "health",
					Name:      "probes_total",
					Help:      "Probe evaluations by probe and reported status",
				},
				[]string{"probe", "status"},
			),
			checkUp: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "gateway",
					Subsystem: "health",
					Name:      "check_up",
					Help:      "Last dependency check result (1=healthy, 0=unhealthy)",
				},
				[]string{"check"},
			),
			checkDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "gateway",
					Subsystem: "health",
					Name:      "check_duration_seconds",
					Help:      "Dependency check latency",
					Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
				},
				[]string{"check"},
			),
		}
	})
	return healthMetricsInstance
}

// Collectors returns the health collectors. promauto registers them
// with the default registry; the gateway serves /metrics from its own.
func (m *HealthMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.probesTotal, m.checkUp, m.checkDuration}
}

// Init pre-creates the probe series so they appear at startup.
func (m *HealthMetrics) Init() {
	m.probesTotal.WithLabelValues(probeLiveness, string(StatusHealthy))
	for _, status := range []Status{StatusHealthy, StatusUnhealthy, StatusDraining} {
		m.probesTotal.WithLabelValues(probeReadiness, string(status))
	}
}

func (m *HealthMetrics) observeCheck(name string, healthy bool, took time.Duration) {
	up := 0.0
	if healthy {
		up = 1
	}
	m.checkUp.WithLabelValues(name).Set(up)
	m.checkDuration.WithLabelValues(name).Observe(took.Seconds())
}

// forgetCheck drops the series of an unregistered check.
func (m *HealthMetrics) forgetCheck(name string) {
	m.checkUp.DeleteLabelValues(name)
	m.checkDuration.DeleteLabelValues(name)
}
