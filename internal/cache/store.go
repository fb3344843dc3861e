package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/vyrodovalexey/energygw/internal/observability"
)

// Outcome describes how a request was served with respect to the cache.
type Outcome string

// Cache outcomes.
const (
	// OutcomeHit means a fresh stored value was returned.
	OutcomeHit Outcome = "hit"

	// OutcomeMiss means the value was fetched, either by this caller or by
	// a concurrent caller it attached to.
	OutcomeMiss Outcome = "miss"

	// OutcomeBypass means caching is disabled for the route.
	OutcomeBypass Outcome = "bypass"
)

// FetchFunc produces the value for a key on a miss.
type FetchFunc[V any] func(ctx context.Context) (V, error)

// StoreOption configures a Store.
type StoreOption func(*storeOptions)

type storeOptions struct {
	now    func() time.Time
	logger observability.Logger
}

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) {
		o.now = now
	}
}

// WithStoreLogger sets the logger for storage failures.
func WithStoreLogger(logger observability.Logger) StoreOption {
	return func(o *storeOptions) {
		o.logger = logger
	}
}

// Store is a TTL-bound cache of V values over a byte Backend. Concurrent
// misses for the same key share a single fetch.
type Store[V any] struct {
	backend Backend
	codec   Codec[V]
	group   singleflight.Group
	now     func() time.Time
	logger  observability.Logger
}

// flightResult is what the fetch leader hands to every attached caller.
type flightResult[V any] struct {
	value V

	// stored is true when the value was found by the re-check inside the
	// flight rather than fetched.
	stored bool
}

// NewStore creates a store over backend.
func NewStore[V any](backend Backend, codec Codec[V], opts ...StoreOption) *Store[V] {
	o := &storeOptions{
		now:    time.Now,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}

	return &Store[V]{
		backend: backend,
		codec:   codec,
		now:     o.now,
		logger:  o.logger,
	}
}

// GetOrFetch returns the fresh value stored under key, or calls fetch and
// stores its result for ttl. At most one fetch per key runs at a time;
// callers arriving while it runs wait for its result. Errors from fetch
// are returned to every waiter and never stored.
//
// The fetch runs on a context that keeps ctx's values but not its
// cancellation, so a caller that gives up only detaches itself.
func (s *Store[V]) GetOrFetch(
	ctx context.Context,
	key string,
	ttl time.Duration,
	fetch FetchFunc[V],
) (V, Outcome, error) {
	var zero V
	metrics := GetCacheMetrics()
	backend := s.backend.Name()

	if v, ok := s.lookup(ctx, key); ok {
		metrics.lookup(backend, resultHit)
		annotate(ctx, OutcomeHit, false)
		return v, OutcomeHit, nil
	}

	ch := s.group.DoChan(key, func() (result any, err error) {
		fctx := context.WithoutCancel(ctx)

		// DoChan runs the flight on its own goroutine, where a panic
		// would take down the process.
		defer func() {
			if r := recover(); r != nil {
				result, err = nil, fmt.Errorf("cache fetch panicked: %v", r)
			}
		}()

		// A flight for this key may have completed between the lookup
		// above and this one starting.
		if v, ok := s.lookup(fctx, key); ok {
			return flightResult[V]{value: v, stored: true}, nil
		}

		v, err := fetch(fctx)
		if err != nil {
			return nil, err
		}

		s.store(fctx, key, v, ttl)
		return flightResult[V]{value: v}, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.lookup(backend, resultCoalesced)
		}
		if res.Err != nil {
			metrics.lookup(backend, resultMiss)
			annotate(ctx, OutcomeMiss, res.Shared)
			return zero, OutcomeMiss, res.Err
		}

		fr := res.Val.(flightResult[V])
		outcome := OutcomeMiss
		if fr.stored {
			outcome = OutcomeHit
			metrics.lookup(backend, resultHit)
		} else {
			metrics.lookup(backend, resultMiss)
		}
		annotate(ctx, outcome, res.Shared)
		return fr.value, outcome, nil

	case <-ctx.Done():
		return zero, OutcomeMiss, ctx.Err()
	}
}

// Get returns the fresh value stored under key without fetching.
func (s *Store[V]) Get(ctx context.Context, key string) (V, bool) {
	return s.lookup(ctx, key)
}

// Invalidate removes key.
func (s *Store[V]) Invalidate(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// lookup reads and decodes a fresh entry. Expired and undecodable entries
// are deleted. Backend failures count as a miss.
func (s *Store[V]) lookup(ctx context.Context, key string) (V, bool) {
	var zero V

	raw, err := s.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("cache read failed, treating as miss",
				observability.String("backend", s.backend.Name()),
				observability.String("key", key),
				observability.Error(err))
		}
		return zero, false
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		s.discard(ctx, key, err)
		return zero, false
	}

	if !s.now().Before(time.Unix(0, env.ExpiresAt)) {
		s.discard(ctx, key, nil)
		return zero, false
	}

	v, err := s.codec.Decode(env.Value)
	if err != nil {
		s.discard(ctx, key, err)
		return zero, false
	}

	return v, true
}

// store encodes and writes a value. Failures are logged; the caller still
// receives the fetched value.
func (s *Store[V]) store(ctx context.Context, key string, v V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	payload, err := s.codec.Encode(v)
	if err != nil {
		s.logger.Warn("cache encode failed",
			observability.String("key", key),
			observability.Error(err))
		return
	}

	data, err := encodeEnvelope(envelope{
		ExpiresAt: s.now().Add(ttl).UnixNano(),
		Value:     payload,
	})
	if err != nil {
		s.logger.Warn("cache encode failed",
			observability.String("key", key),
			observability.Error(err))
		return
	}

	if err := s.backend.Set(ctx, key, data, ttl); err != nil {
		s.logger.Warn("cache write failed",
			observability.String("backend", s.backend.Name()),
			observability.String("key", key),
			observability.Error(err))
	}
}

// discard deletes an expired (cause == nil) or corrupt entry.
func (s *Store[V]) discard(ctx context.Context, key string, cause error) {
	if cause != nil {
		GetCacheMetrics().failed(s.backend.Name(), "decode")
		s.logger.Warn("discarding corrupt cache entry",
			observability.String("key", key),
			observability.Error(cause))
	} else {
		GetCacheMetrics().lookup(s.backend.Name(), resultExpired)
	}

	if err := s.backend.Delete(ctx, key); err != nil {
		s.logger.Debug("cache delete failed",
			observability.String("key", key),
			observability.Error(err))
	}
}

// annotate records the outcome on the caller's span, if any.
func annotate(ctx context.Context, outcome Outcome, shared bool) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent("cache.lookup", trace.WithAttributes(
		attribute.String("cache.outcome", string(outcome)),
		attribute.Bool("cache.coalesced", shared),
	))
}
