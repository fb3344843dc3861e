package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/energygw/internal/config"
	"github.com/vyrodovalexey/energygw/internal/observability"
)

// Per-client limiter housekeeping.
const (
	// DefaultClientTTL is how long an idle client keeps its bucket.
	DefaultClientTTL = 10 * time.Minute

	// MinCleanupInterval and MaxCleanupInterval clamp the sweep period,
	// which is otherwise half the client TTL.
	MinCleanupInterval = 10 * time.Second
	MaxCleanupInterval = time.Minute
)

type clientEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter is a token bucket limiter, either one bucket for the whole
// gateway or one bucket per client address.
type RateLimiter struct {
	limit     rate.Limit
	burst     int
	perClient bool
	global    *rate.Limiter

	mu        sync.Mutex
	clients   map[string]*clientEntry
	clientTTL time.Duration

	logger observability.Logger
	onHit  func(path string)
	now    func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimiterLogger sets the logger for rejected requests.
func WithRateLimiterLogger(logger observability.Logger) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.logger = logger
	}
}

// WithRateLimitHitCallback registers a callback invoked with the request
// path of every rejected request.
func WithRateLimitHitCallback(fn func(path string)) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.onHit = fn
	}
}

// NewRateLimiter creates a limiter admitting rps requests per second with
// the given burst.
func NewRateLimiter(rps, burst int, perClient bool, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		limit:     rate.Limit(rps),
		burst:     burst,
		perClient: perClient,
		clients:   make(map[string]*clientEntry),
		clientTTL: DefaultClientTTL,
		logger:    observability.NopLogger(),
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
	if !perClient {
		rl.global = rate.NewLimiter(rl.limit, burst)
	}

	for _, opt := range opts {
		opt(rl)
	}

	return rl
}

// Allow reports whether a request from client may proceed now.
func (rl *RateLimiter) Allow(client string) bool {
	ok, _ := rl.decide(client)
	return ok
}

// decide takes a token for client. A rejected request returns how long
// until a token frees up, and its reservation is handed back so rejected
// traffic does not push admission further out.
func (rl *RateLimiter) decide(client string) (bool, time.Duration) {
	now := rl.now()
	limiter, scope := rl.global, scopeGlobal
	if rl.perClient {
		limiter, scope = rl.clientLimiter(client, now), scopeClient
	}

	decisions := GetMiddlewareMetrics().rateLimitDecisions
	res := limiter.ReserveN(now, 1)
	if !res.OK() {
		decisions.WithLabelValues(scope, decisionRejected).Inc()
		return false, time.Second
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		decisions.WithLabelValues(scope, decisionRejected).Inc()
		return false, delay
	}

	decisions.WithLabelValues(scope, decisionAllowed).Inc()
	return true, 0
}

func (rl *RateLimiter) clientLimiter(client string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.clients[client]
	if !ok {
		entry = &clientEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[client] = entry
	}
	entry.lastAccess = now
	return entry.limiter
}

// RateLimit returns a middleware that answers 429 with a Retry-After
// header once the limiter rejects a request.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := ClientIPFromRequest(r)

			ok, wait := rl.decide(client)
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			rl.logger.Warn("rate limit exceeded",
				observability.String("client_ip", client),
				observability.String("path", r.URL.Path),
				observability.Duration("retry_after", wait),
			)
			if rl.onHit != nil {
				rl.onHit(r.URL.Path)
			}

			w.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfterSeconds(wait)))
			writeError(w, http.StatusTooManyRequests, KindRateLimited, "rate limit exceeded")
		})
	}
}

// retryAfterSeconds rounds wait up to whole seconds, never below one.
func retryAfterSeconds(wait time.Duration) int {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// RateLimitFromConfig builds the rate limit middleware from config. A nil
// or disabled config yields a pass-through middleware and a nil limiter.
// Per-client limiters start their idle sweep; callers Stop them on
// shutdown.
func RateLimitFromConfig(
	cfg *config.RateLimitConfig,
	logger observability.Logger,
	opts ...RateLimiterOption,
) (func(http.Handler) http.Handler, *RateLimiter) {
	if cfg == nil || !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}, nil
	}

	opts = append([]RateLimiterOption{WithRateLimiterLogger(logger)}, opts...)
	rl := NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst, cfg.PerClient, opts...)
	if cfg.PerClient {
		rl.StartAutoCleanup()
	}

	return RateLimit(rl), rl
}

// CleanupOldClients drops client buckets idle for longer than maxAge.
func (rl *RateLimiter) CleanupOldClients(maxAge time.Duration) {
	cutoff := rl.now().Add(-maxAge)

	rl.mu.Lock()
	removed := 0
	for client, entry := range rl.clients {
		if entry.lastAccess.Before(cutoff) {
			delete(rl.clients, client)
			removed++
		}
	}
	remaining := len(rl.clients)
	rl.mu.Unlock()

	if removed > 0 {
		rl.logger.Debug("cleaned up idle rate limiter clients",
			observability.Int("removed", removed),
			observability.Int("remaining", remaining),
		)
	}
}

// StartAutoCleanup starts the idle client sweep. It does nothing once the
// limiter is stopped.
func (rl *RateLimiter) StartAutoCleanup() {
	select {
	case <-rl.stopCh:
		return
	default:
	}

	rl.mu.Lock()
	interval := min(max(rl.clientTTL/2, MinCleanupInterval), MaxCleanupInterval)
	rl.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.mu.Lock()
				ttl := rl.clientTTL
				rl.mu.Unlock()
				rl.CleanupOldClients(ttl)
			case <-rl.stopCh:
				return
			}
		}
	}()
}

// Stop ends the idle sweep. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
}

// SetClientTTL sets how long an idle client keeps its bucket.
func (rl *RateLimiter) SetClientTTL(ttl time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.clientTTL = ttl
}
