package proxy

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/energygw/internal/config"
	"github.com/vyrodovalexey/energygw/internal/observability"
)

const (
	defaultBreakerThreshold = 5
	defaultBreakerTimeout   = 30 * time.Second
)

// breakers holds one circuit breaker per downstream service. A nil
// *breakers disables breaking.
type breakers struct {
	settings gobreaker.Settings
	logger   observability.Logger

	mu  sync.Mutex
	set map[string]*gobreaker.CircuitBreaker
}

func newBreakers(cfg *config.CircuitBreakerConfig, logger observability.Logger) *breakers {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	threshold := safeIntToUint32(cfg.Threshold)
	if threshold == 0 {
		threshold = defaultBreakerThreshold
	}
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}
	halfOpen := safeIntToUint32(cfg.HalfOpenRequests)
	if halfOpen == 0 {
		halfOpen = 1
	}

	b := &breakers{
		logger: logger,
		set:    make(map[string]*gobreaker.CircuitBreaker),
	}
	b.settings = gobreaker.Settings{
		MaxRequests: halfOpen,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A 4xx means the service is up and judged the request.
		IsSuccessful: func(err error) bool {
			var ue *UpstreamError
			if errors.As(err, &ue) && ue.Kind == KindStatus {
				return ue.StatusCode < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("circuit breaker state change",
				observability.String("service", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()))
			getProxyMetrics().breakerState.WithLabelValues(name).Set(float64(to))
		},
	}
	return b
}

// get returns the breaker for service, creating it on first use.
func (b *breakers) get(service string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	cb, ok := b.set[service]
	if !ok {
		st := b.settings
		st.Name = service
		cb = gobreaker.NewCircuitBreaker(st)
		b.set[service] = cb
		getProxyMetrics().breakerState.WithLabelValues(service).Set(float64(gobreaker.StateClosed))
	}
	return cb
}

// execute runs fn through the service's breaker. Rejections become
// ErrCircuitOpen.
func (b *breakers) execute(service string, fn func() (*Response, error)) (*Response, error) {
	if b == nil {
		return fn()
	}

	out, err := b.get(service).Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	resp, _ := out.(*Response)
	return resp, err
}

// state reports the breaker state for service, or "disabled".
func (b *breakers) state(service string) string {
	if b == nil {
		return "disabled"
	}
	return b.get(service).State().String()
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}
