package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/energygw/internal/util"
)

// unmatchedRoute labels requests no route accepted, and requests rejected
// before routing, so the route label stays bounded.
const unmatchedRoute = "unmatched"

// Metrics owns the registry behind the admin /metrics endpoint and the
// request-level series of the gateway.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	responseSize    *prometheus.HistogramVec
	activeRequests  prometheus.Gauge
	dispatchTotal   *prometheus.CounterVec
	rateLimited     prometheus.Counter
	buildInfo       *prometheus.GaugeVec
}

// NewMetrics creates the gateway metrics under namespace, "gateway" when
// empty, together with Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		// Hits answer from the store and misses wait on a downstream
		// service, so latency is split by cache outcome.
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and cache outcome",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"route", "cache_outcome"}),
		responseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_size_bytes",
			Help:      "HTTP response body size by route",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"route"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Requests currently being served",
		}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Dispatched requests by route and cache outcome",
		}, []string{"route", "cache_outcome"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		}, []string{"version", "commit", "build_time"}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.responseSize,
		m.activeRequests,
		m.dispatchTotal,
		m.rateLimited,
		m.buildInfo,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordRequest records a completed request. route must be a route name,
// never a raw path. An empty outcome means the request was not dispatched.
func (m *Metrics) RecordRequest(method, route, outcome string, status, size int, took time.Duration) {
	if outcome == "" {
		outcome = "none"
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, outcome).Observe(took.Seconds())
	m.responseSize.WithLabelValues(route).Observe(float64(size))
}

// RecordDispatch records the cache outcome of a dispatched request.
func (m *Metrics) RecordDispatch(route, outcome string) {
	m.dispatchTotal.WithLabelValues(route, outcome).Inc()
}

// RecordRateLimitHit counts a request rejected by the rate limiter.
func (m *Metrics) RecordRateLimitHit() {
	m.rateLimited.Inc()
}

// SetBuildInfo publishes the build information.
func (m *Metrics) SetBuildInfo(version, commit, buildTime string) {
	m.buildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// Handler serves the registry in the Prometheus and OpenMetrics formats.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegisterCollector registers additional collectors, panicking on
// error. Package-level metric singletons (cache, proxy) are bridged into
// /metrics this way.
func (m *Metrics) MustRegisterCollector(cs ...prometheus.Collector) {
	m.registry.MustRegister(cs...)
}

// MetricsMiddleware records request metrics. Route and cache outcome come
// from the RequestInfo the dispatcher handler fills in.
func MetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, info := util.ContextWithRequestInfo(r.Context())

			metrics.activeRequests.Inc()
			defer metrics.activeRequests.Dec()

			rec := &sizeRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			route, outcome := info.Route(), info.CacheOutcome()
			if route == "" {
				route, outcome = unmatchedRoute, ""
			}
			if outcome != "" {
				metrics.RecordDispatch(route, outcome)
			}
			metrics.RecordRequest(r.Method, route, outcome, rec.status, rec.size, time.Since(start))
		})
	}
}

// sizeRecorder captures the status code and body size.
type sizeRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *sizeRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *sizeRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Flush implements http.Flusher for streamed upstream bodies.
func (rw *sizeRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
