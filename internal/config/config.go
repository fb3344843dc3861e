package config

import (
	"net"
	"strconv"
	"time"
)

// Default values applied by ApplyDefaults.
const (
	DefaultAPIVersion      = "gateway.energygw.io/v1"
	DefaultKind            = "Gateway"
	DefaultPort            = 3000
	DefaultAdminPort       = 9090
	DefaultRequestTimeout  = 3 * time.Second
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxResponseSize = 10 << 20
	DefaultCacheMaxEntries = 10000
	DefaultCacheCleanup    = time.Minute
	DefaultServiceName     = "energy-gateway"
	DefaultOTLPEndpoint    = "localhost:4317"
	DefaultMetricsPath     = "/metrics"
)

// Cache backend types.
const (
	CacheTypeMemory    = "memory"
	CacheTypeRedis     = "redis"
	CacheTypeRistretto = "ristretto"
	CacheTypeBigCache  = "bigcache"
)

// GatewayConfig is the root configuration document.
type GatewayConfig struct {
	APIVersion string      `yaml:"apiVersion" json:"apiVersion"`
	Kind       string      `yaml:"kind" json:"kind"`
	Metadata   Metadata    `yaml:"metadata" json:"metadata"`
	Spec       GatewaySpec `yaml:"spec" json:"spec"`
}

// Metadata identifies the gateway instance.
type Metadata struct {
	Name   string            `yaml:"name" json:"name"`
	Labels map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// GatewaySpec holds the gateway settings.
type GatewaySpec struct {
	Listener      ListenerConfig      `yaml:"listener" json:"listener"`
	Admin         AdminConfig         `yaml:"admin" json:"admin"`
	Services      []Service           `yaml:"services" json:"services"`
	Routes        []Route             `yaml:"routes" json:"routes"`
	Forwarder     ForwarderConfig     `yaml:"forwarder" json:"forwarder"`
	Cache         CacheConfig         `yaml:"cache" json:"cache"`
	RateLimit     *RateLimitConfig    `yaml:"rateLimit,omitempty" json:"rateLimit,omitempty"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// ListenerConfig configures the inbound HTTP listener.
type ListenerConfig struct {
	Bind            string   `yaml:"bind,omitempty" json:"bind,omitempty"`
	Port            int      `yaml:"port" json:"port"`
	ReadTimeout     Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout    Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
	IdleTimeout     Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`

	// TrustedProxies lists peers whose X-Forwarded-For header is honored
	// when resolving the client address.
	TrustedProxies []string `yaml:"trustedProxies,omitempty" json:"trustedProxies,omitempty"`
}

// Address returns the bind address in host:port form.
func (l ListenerConfig) Address() string {
	return joinHostPort(l.Bind, l.Port)
}

// AdminConfig configures the listener serving metrics and probes.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Bind    string `yaml:"bind,omitempty" json:"bind,omitempty"`
	Port    int    `yaml:"port" json:"port"`
}

// Address returns the bind address in host:port form.
func (a AdminConfig) Address() string {
	return joinHostPort(a.Bind, a.Port)
}

// Service is a downstream service reachable at a base URL.
type Service struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`

	// Timeout overrides the forwarder default for every route of the service.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Route maps an inbound path pattern to a downstream service.
type Route struct {
	Name    string   `yaml:"name" json:"name"`
	Methods []string `yaml:"methods" json:"methods"`

	// Path is the inbound pattern. Templated segments are written
	// ":name" or "{name}".
	Path string `yaml:"path" json:"path"`

	// Params restricts templated segments to a closed set of values.
	Params map[string][]string `yaml:"params,omitempty" json:"params,omitempty"`

	Service string `yaml:"service" json:"service"`

	// UpstreamPath is the downstream path; templated segments are
	// substituted with the resolved parameters. Defaults to Path.
	UpstreamPath string `yaml:"upstreamPath,omitempty" json:"upstreamPath,omitempty"`

	Timeout Duration         `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Cache   RouteCacheConfig `yaml:"cache" json:"cache"`
}

// RouteCacheConfig is the per-route cache policy.
type RouteCacheConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	TTL     Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`
}

// ForwarderConfig configures the upstream HTTP client.
type ForwarderConfig struct {
	Timeout             Duration              `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxIdleConns        int                   `yaml:"maxIdleConns,omitempty" json:"maxIdleConns,omitempty"`
	MaxIdleConnsPerHost int                   `yaml:"maxIdleConnsPerHost,omitempty" json:"maxIdleConnsPerHost,omitempty"`
	IdleConnTimeout     Duration              `yaml:"idleConnTimeout,omitempty" json:"idleConnTimeout,omitempty"`
	MaxResponseBytes    int64                 `yaml:"maxResponseBytes,omitempty" json:"maxResponseBytes,omitempty"`
	CircuitBreaker      *CircuitBreakerConfig `yaml:"circuitBreaker,omitempty" json:"circuitBreaker,omitempty"`
}

// CircuitBreakerConfig configures the per-service circuit breaker.
type CircuitBreakerConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold int `yaml:"threshold,omitempty" json:"threshold,omitempty"`

	// Timeout is how long the breaker stays open before probing again.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// HalfOpenRequests is the number of probe requests allowed when half-open.
	HalfOpenRequests int `yaml:"halfOpenRequests,omitempty" json:"halfOpenRequests,omitempty"`
}

// CacheConfig selects and configures the cache backend.
type CacheConfig struct {
	// Type is one of memory, redis, ristretto or bigcache.
	Type string `yaml:"type" json:"type"`

	MaxEntries      int      `yaml:"maxEntries,omitempty" json:"maxEntries,omitempty"`
	CleanupInterval Duration `yaml:"cleanupInterval,omitempty" json:"cleanupInterval,omitempty"`

	Redis     *RedisCacheConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
	BigCache  *BigCacheConfig   `yaml:"bigcache,omitempty" json:"bigcache,omitempty"`
	Ristretto *RistrettoConfig  `yaml:"ristretto,omitempty" json:"ristretto,omitempty"`
}

// RedisCacheConfig contains Redis-specific cache configuration.
type RedisCacheConfig struct {
	// URL format: redis://[user:password@]host:port[/db]
	URL            string   `yaml:"url" json:"url"`
	PoolSize       int      `yaml:"poolSize,omitempty" json:"poolSize,omitempty"`
	ConnectTimeout Duration `yaml:"connectTimeout,omitempty" json:"connectTimeout,omitempty"`
	ReadTimeout    Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout   Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
	KeyPrefix      string   `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`

	// TTLJitter is the maximum fraction of jitter added to the backend TTL (0.0 to 1.0).
	TTLJitter float64 `yaml:"ttlJitter,omitempty" json:"ttlJitter,omitempty"`
}

// BigCacheConfig contains bigcache-specific configuration.
type BigCacheConfig struct {
	// LifeWindow bounds the lifetime of every entry regardless of route TTL.
	LifeWindow         Duration `yaml:"lifeWindow,omitempty" json:"lifeWindow,omitempty"`
	HardMaxCacheSizeMB int      `yaml:"hardMaxCacheSizeMB,omitempty" json:"hardMaxCacheSizeMB,omitempty"`
}

// RistrettoConfig contains ristretto-specific configuration.
type RistrettoConfig struct {
	// MaxCostBytes is the total size budget of cached values.
	MaxCostBytes int64 `yaml:"maxCostBytes,omitempty" json:"maxCostBytes,omitempty"`
}

// RateLimitConfig configures inbound rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled"`
	RequestsPerSecond int  `yaml:"requestsPerSecond" json:"requestsPerSecond"`
	Burst             int  `yaml:"burst" json:"burst"`
	PerClient         bool `yaml:"perClient,omitempty" json:"perClient,omitempty"`
}

// ObservabilityConfig groups logging, tracing and metrics settings.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Endpoint     string  `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	ServiceName  string  `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
	Insecure     bool    `yaml:"insecure,omitempty" json:"insecure,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint on the admin listener.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Path      string `yaml:"path,omitempty" json:"path,omitempty"`
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
}

// Service returns the service with the given name.
func (s *GatewaySpec) Service(name string) (Service, bool) {
	for _, svc := range s.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return Service{}, false
}

// ApplyDefaults fills zero values with defaults.
func (c *GatewayConfig) ApplyDefaults() {
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if c.Kind == "" {
		c.Kind = DefaultKind
	}

	spec := &c.Spec
	setDefaultInt(&spec.Listener.Port, DefaultPort)
	setDefaultDuration(&spec.Listener.ReadTimeout, DefaultReadTimeout)
	setDefaultDuration(&spec.Listener.WriteTimeout, DefaultWriteTimeout)
	setDefaultDuration(&spec.Listener.IdleTimeout, DefaultIdleTimeout)
	setDefaultDuration(&spec.Listener.ShutdownTimeout, DefaultShutdownTimeout)
	setDefaultInt(&spec.Admin.Port, DefaultAdminPort)

	setDefaultDuration(&spec.Forwarder.Timeout, DefaultRequestTimeout)
	setDefaultInt(&spec.Forwarder.MaxIdleConns, 100)
	setDefaultInt(&spec.Forwarder.MaxIdleConnsPerHost, 10)
	setDefaultDuration(&spec.Forwarder.IdleConnTimeout, 90*time.Second)
	if spec.Forwarder.MaxResponseBytes == 0 {
		spec.Forwarder.MaxResponseBytes = DefaultMaxResponseSize
	}

	if spec.Cache.Type == "" {
		spec.Cache.Type = CacheTypeMemory
	}
	setDefaultInt(&spec.Cache.MaxEntries, DefaultCacheMaxEntries)
	setDefaultDuration(&spec.Cache.CleanupInterval, DefaultCacheCleanup)

	for i := range spec.Routes {
		if spec.Routes[i].UpstreamPath == "" {
			spec.Routes[i].UpstreamPath = spec.Routes[i].Path
		}
	}

	obs := &spec.Observability
	if obs.Logging.Level == "" {
		obs.Logging.Level = "info"
	}
	if obs.Logging.Format == "" {
		obs.Logging.Format = "json"
	}
	if obs.Tracing.ServiceName == "" {
		obs.Tracing.ServiceName = DefaultServiceName
	}
	if obs.Tracing.Enabled && obs.Tracing.SamplingRate == 0 {
		obs.Tracing.SamplingRate = 1.0
	}
	if obs.Tracing.Endpoint == "" {
		obs.Tracing.Endpoint = DefaultOTLPEndpoint
	}
	if obs.Metrics.Path == "" {
		obs.Metrics.Path = DefaultMetricsPath
	}
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func setDefaultInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func setDefaultDuration(v *Duration, def time.Duration) {
	if *v == 0 {
		*v = Duration(def)
	}
}
