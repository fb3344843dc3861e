package config

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/vyrodovalexey/energygw/internal/util"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Is reports ValidationErrors as util.ErrConfigInvalid.
func (e ValidationErrors) Is(target error) bool {
	return target == util.ErrConfigInvalid
}

var validMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

var validCacheTypes = map[string]bool{
	CacheTypeMemory:    true,
	CacheTypeRedis:     true,
	CacheTypeRistretto: true,
	CacheTypeBigCache:  true,
}

// Validator validates gateway configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// ValidateConfig validates a gateway configuration.
func ValidateConfig(config *GatewayConfig) error {
	v := NewValidator()
	return v.Validate(config)
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *GatewayConfig) error {
	v.errors = make(ValidationErrors, 0)

	if config == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateRoot(config)
	v.validateMetadata(&config.Metadata)
	v.validateSpec(&config.Spec)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

// validateRoot validates root-level fields.
func (v *Validator) validateRoot(config *GatewayConfig) {
	if config.APIVersion == "" {
		v.addError("apiVersion", "apiVersion is required")
	} else if !strings.HasPrefix(config.APIVersion, "gateway.energygw.io/") {
		v.addError("apiVersion", "apiVersion must start with 'gateway.energygw.io/'")
	}

	if config.Kind == "" {
		v.addError("kind", "kind is required")
	} else if config.Kind != DefaultKind {
		v.addError("kind", "kind must be 'Gateway'")
	}
}

// validateMetadata validates metadata fields.
func (v *Validator) validateMetadata(metadata *Metadata) {
	if metadata.Name == "" {
		v.addError("metadata.name", "name is required")
	}
}

// validateSpec validates the gateway spec.
func (v *Validator) validateSpec(spec *GatewaySpec) {
	v.validateListener(&spec.Listener, "spec.listener")
	v.validateAdmin(spec, "spec.admin")
	v.validateServices(spec.Services)
	v.validateRoutes(spec)
	v.validateForwarder(&spec.Forwarder, "spec.forwarder")
	v.validateCache(&spec.Cache, "spec.cache")

	if spec.RateLimit != nil {
		v.validateRateLimit(spec.RateLimit, "spec.rateLimit")
	}

	v.validateObservability(&spec.Observability, "spec.observability")
}

func (v *Validator) validateListener(l *ListenerConfig, path string) {
	if err := util.ValidatePort(l.Port); err != nil {
		v.addError(path+".port", err.Error())
	}
	if l.ReadTimeout < 0 || l.WriteTimeout < 0 || l.IdleTimeout < 0 || l.ShutdownTimeout < 0 {
		v.addError(path, "timeouts cannot be negative")
	}
	for i, raw := range l.TrustedProxies {
		if _, err := util.ParseTrustedProxy(raw); err != nil {
			v.addError(fmt.Sprintf("%s.trustedProxies[%d]", path, i), err.Error())
		}
	}
}

func (v *Validator) validateAdmin(spec *GatewaySpec, path string) {
	if !spec.Admin.Enabled {
		return
	}
	if err := util.ValidatePort(spec.Admin.Port); err != nil {
		v.addError(path+".port", err.Error())
		return
	}
	if spec.Admin.Port == spec.Listener.Port {
		v.addError(path+".port", fmt.Sprintf("port %d is already used by the listener", spec.Admin.Port))
	}
}

// validateServices checks that every service has a unique name and an
// absolute http(s) base URL.
func (v *Validator) validateServices(services []Service) {
	names := make(map[string]bool, len(services))

	for i := range services {
		svc := &services[i]
		path := fmt.Sprintf("spec.services[%d]", i)

		if svc.Name == "" {
			v.addError(path+".name", "name is required")
		} else if names[svc.Name] {
			v.addError(path+".name", fmt.Sprintf("duplicate service name: %s", svc.Name))
		}
		names[svc.Name] = true

		if svc.URL == "" {
			v.addError(path+".url", fmt.Sprintf("base URL for service %q is not set", svc.Name))
		} else if _, err := util.ParseBaseURL(svc.URL); err != nil {
			v.addError(path+".url", err.Error())
		}

		if svc.Timeout < 0 {
			v.addError(path+".timeout", "timeout cannot be negative")
		}
	}
}

func (v *Validator) validateRoutes(spec *GatewaySpec) {
	if len(spec.Routes) == 0 {
		v.addError("spec.routes", "at least one route is required")
		return
	}

	names := make(map[string]bool, len(spec.Routes))
	for i := range spec.Routes {
		route := &spec.Routes[i]
		path := fmt.Sprintf("spec.routes[%d]", i)

		if route.Name == "" {
			v.addError(path+".name", "name is required")
		} else if names[route.Name] {
			v.addError(path+".name", fmt.Sprintf("duplicate route name: %s", route.Name))
		}
		names[route.Name] = true

		v.validateRouteMethods(route, path)
		v.validateRoutePaths(route, path)

		if route.Service == "" {
			v.addError(path+".service", "service is required")
		} else if _, ok := spec.Service(route.Service); !ok {
			v.addError(path+".service", fmt.Sprintf("unknown service: %s", route.Service))
		}

		if route.Timeout < 0 {
			v.addError(path+".timeout", "timeout cannot be negative")
		}
		if route.Cache.Enabled && route.Cache.TTL <= 0 {
			v.addError(path+".cache.ttl", "ttl must be positive when caching is enabled")
		}
	}
}

func (v *Validator) validateRouteMethods(route *Route, path string) {
	if len(route.Methods) == 0 {
		v.addError(path+".methods", "at least one method is required")
	}
	for j, m := range route.Methods {
		if !validMethods[strings.ToUpper(m)] {
			v.addError(fmt.Sprintf("%s.methods[%d]", path, j), fmt.Sprintf("invalid HTTP method: %s", m))
		}
	}
}

// validateRoutePaths checks the inbound and upstream patterns and the
// value sets of their templated segments.
func (v *Validator) validateRoutePaths(route *Route, path string) {
	if !strings.HasPrefix(route.Path, "/") {
		v.addError(path+".path", "path must start with /")
		return
	}

	inbound := make(map[string]bool)
	for _, seg := range strings.Split(strings.Trim(route.Path, "/"), "/") {
		name, ok := paramName(seg)
		if !ok {
			continue
		}
		if name == "" {
			v.addError(path+".path", fmt.Sprintf("empty parameter name in %s", route.Path))
			continue
		}
		if inbound[name] {
			v.addError(path+".path", fmt.Sprintf("duplicate parameter %q", name))
		}
		inbound[name] = true
	}

	for name, values := range route.Params {
		if !inbound[name] {
			v.addError(path+".params."+name, "parameter does not appear in path")
		}
		if len(values) == 0 {
			v.addError(path+".params."+name, "at least one allowed value is required")
		}
	}

	if route.UpstreamPath == "" {
		return
	}
	if !strings.HasPrefix(route.UpstreamPath, "/") {
		v.addError(path+".upstreamPath", "upstreamPath must start with /")
		return
	}
	for _, seg := range strings.Split(strings.Trim(route.UpstreamPath, "/"), "/") {
		if name, ok := paramName(seg); ok && !inbound[name] {
			v.addError(path+".upstreamPath", fmt.Sprintf("parameter %q is not defined by path", name))
		}
	}
}

// paramName returns the parameter name of a ":name" or "{name}" segment.
func paramName(seg string) (string, bool) {
	switch {
	case strings.HasPrefix(seg, ":"):
		return seg[1:], true
	case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"):
		return seg[1 : len(seg)-1], true
	default:
		return "", false
	}
}

func (v *Validator) validateForwarder(f *ForwarderConfig, path string) {
	if f.Timeout <= 0 {
		v.addError(path+".timeout", "timeout must be positive")
	}
	if f.MaxResponseBytes < 0 {
		v.addError(path+".maxResponseBytes", "maxResponseBytes cannot be negative")
	}
	if cb := f.CircuitBreaker; cb != nil && cb.Enabled {
		if cb.Threshold <= 0 {
			v.addError(path+".circuitBreaker.threshold", "threshold must be positive")
		}
		if cb.Timeout <= 0 {
			v.addError(path+".circuitBreaker.timeout", "timeout must be positive")
		}
		if cb.HalfOpenRequests < 0 {
			v.addError(path+".circuitBreaker.halfOpenRequests", "halfOpenRequests cannot be negative")
		}
	}
}

func (v *Validator) validateCache(c *CacheConfig, path string) {
	if !validCacheTypes[c.Type] {
		v.addError(path+".type", fmt.Sprintf("invalid cache type: %s", c.Type))
	}
	if c.MaxEntries < 0 {
		v.addError(path+".maxEntries", "maxEntries cannot be negative")
	}

	if c.Type == CacheTypeRedis {
		if c.Redis == nil || c.Redis.URL == "" {
			v.addError(path+".redis.url", "redis url is required for the redis cache")
		}
	}
	if c.Redis != nil && (c.Redis.TTLJitter < 0 || c.Redis.TTLJitter > 1) {
		v.addError(path+".redis.ttlJitter", "ttlJitter must be between 0 and 1")
	}
}

// validateRateLimit validates rate limit configuration.
func (v *Validator) validateRateLimit(rl *RateLimitConfig, path string) {
	if !rl.Enabled {
		return
	}
	if rl.RequestsPerSecond <= 0 {
		v.addError(path+".requestsPerSecond", "requestsPerSecond must be positive")
	}
	if rl.Burst <= 0 {
		v.addError(path+".burst", "burst must be positive")
	}
}

// validateObservability validates observability configuration.
func (v *Validator) validateObservability(obs *ObservabilityConfig, path string) {
	if obs.Metrics.Path != "" && !strings.HasPrefix(obs.Metrics.Path, "/") {
		v.addError(path+".metrics.path", "metrics path must start with /")
	}

	if obs.Tracing.SamplingRate < 0 || obs.Tracing.SamplingRate > 1 {
		v.addError(path+".tracing.samplingRate", "samplingRate must be between 0 and 1")
	}
	if obs.Tracing.Enabled && obs.Tracing.Endpoint == "" {
		v.addError(path+".tracing.endpoint", "endpoint is required when tracing is enabled")
	}

	validLevels := map[string]bool{
		"":      true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(obs.Logging.Level)] {
		v.addError(path+".logging.level", fmt.Sprintf("invalid log level: %s", obs.Logging.Level))
	}

	validFormats := map[string]bool{
		"":        true,
		"json":    true,
		"console": true,
	}
	if !validFormats[strings.ToLower(obs.Logging.Format)] {
		v.addError(path+".logging.format", fmt.Sprintf("invalid log format: %s", obs.Logging.Format))
	}
}

// addError adds a validation error.
func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}
