package cache

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsSubsystem = "cache"

// Lookup results.
const (
	resultHit       = "hit"
	resultMiss      = "miss"
	resultCoalesced = "coalesced"
	resultExpired   = "expired"
)

var (
	backendNames  = []string{memoryBackend, redisBackend, ristrettoBackend, bigCacheBackend}
	lookupResults = []string{resultHit, resultMiss, resultCoalesced, resultExpired}
	backendOps    = []string{"get", "set", "delete", "decode"}
)

// CacheMetrics holds the Prometheus series of the cache package.
type CacheMetrics struct {
	lookups   *prometheus.CounterVec
	evictions *prometheus.CounterVec
	size      *prometheus.GaugeVec
	duration  *prometheus.HistogramVec
	errors    *prometheus.CounterVec
}

var (
	cacheMetricsInstance *CacheMetrics
	cacheMetricsOnce     sync.Once
)

// GetCacheMetrics returns the singleton cache metrics instance.
func GetCacheMetrics() *CacheMetrics {
	cacheMetricsOnce.Do(func() {
		cacheMetricsInstance = newCacheMetrics()
	})
	return cacheMetricsInstance
}

func newCacheMetrics() *CacheMetrics {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: "gateway", Subsystem: metricsSubsystem, Name: name, Help: help}
	}

	return &CacheMetrics{
		lookups: promauto.NewCounterVec(prometheus.CounterOpts(opts("lookups_total",
			"Store lookups by backend and result (hit, miss, coalesced, expired)")),
			[]string{"backend", "result"}),
		evictions: promauto.NewCounterVec(prometheus.CounterOpts(opts("evictions_total",
			"Entries dropped by a backend to stay within its capacity")),
			[]string{"backend"}),
		size: promauto.NewGaugeVec(prometheus.GaugeOpts(opts("size",
			"Entries currently held by a backend")),
			[]string{"backend"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: metricsSubsystem,
			Name:      "operation_duration_seconds",
			Help:      "Backend operation latency",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		}, []string{"backend", "operation"}),
		errors: promauto.NewCounterVec(prometheus.CounterOpts(opts("errors_total",
			"Failed backend operations, decode failures included")),
			[]string{"backend", "operation"}),
	}
}

// Collectors returns every cache collector. promauto registers them with
// the default registry; the gateway serves /metrics from its own
// registry, so they are bridged there through this list.
func (m *CacheMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.lookups, m.evictions, m.size, m.duration, m.errors}
}

// Init creates every series up front so they are exported before the
// first request. It is idempotent.
func (m *CacheMetrics) Init() {
	for _, backend := range backendNames {
		for _, result := range lookupResults {
			m.lookups.WithLabelValues(backend, result)
		}
		for _, op := range backendOps {
			m.errors.WithLabelValues(backend, op)
			if op != "decode" {
				m.duration.WithLabelValues(backend, op)
			}
		}
		m.evictions.WithLabelValues(backend)
		m.size.WithLabelValues(backend)
	}
}

func (m *CacheMetrics) lookup(backend, result string) {
	m.lookups.WithLabelValues(backend, result).Inc()
}

func (m *CacheMetrics) failed(backend, op string) {
	m.errors.WithLabelValues(backend, op).Inc()
}

func (m *CacheMetrics) evicted(backend string, n int) {
	m.evictions.WithLabelValues(backend).Add(float64(n))
}

func (m *CacheMetrics) setSize(backend string, n int) {
	m.size.WithLabelValues(backend).Set(float64(n))
}

// observe records the duration of a backend operation since start.
func (m *CacheMetrics) observe(backend, op string, start time.Time) {
	m.duration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}
