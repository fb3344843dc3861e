package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy defaults, sized for calls to a co-located cache store.
const (
	DefaultRetries = 2
	DefaultInitial = 20 * time.Millisecond
	DefaultMax     = 200 * time.Millisecond
	DefaultJitter  = 0.25
)

// Policy bounds how often and how patiently an operation is retried.
// Zero fields take the defaults; Jitter is clamped to [0, 1].
type Policy struct {
	// Retries is the number of attempts after the first one.
	Retries int
	// Initial is the wait before the first retry. It doubles per retry
	// up to Max.
	Initial time.Duration
	Max     time.Duration
	// Jitter adds up to this fraction of the wait, at random.
	Jitter float64
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		Retries: DefaultRetries,
		Initial: DefaultInitial,
		Max:     DefaultMax,
		Jitter:  DefaultJitter,
	}
}

func (p Policy) normalized() Policy {
	if p.Retries <= 0 {
		p.Retries = DefaultRetries
	}
	if p.Initial <= 0 {
		p.Initial = DefaultInitial
	}
	if p.Max <= 0 {
		p.Max = DefaultMax
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	switch {
	case p.Jitter <= 0:
		p.Jitter = DefaultJitter
	case p.Jitter > 1:
		p.Jitter = 1
	}
	return p
}

// Backoff returns the wait before retry number attempt+1, with jitter
// drawn from rnd in [0, 1).
func (p Policy) Backoff(attempt int, rnd float64) time.Duration {
	p = p.normalized()

	wait := p.Initial
	for i := 0; i < attempt && wait < p.Max; i++ {
		wait *= 2
	}
	wait += time.Duration(float64(wait) * p.Jitter * rnd)
	return min(wait, p.Max)
}

// Option customizes a single Do call.
type Option func(*options)

type options struct {
	retryable func(error) bool
	onRetry   func(attempt int, err error, wait time.Duration)
}

// If limits retries to errors for which retryable returns true. Other
// errors are returned at once.
func If(retryable func(error) bool) Option {
	return func(o *options) {
		o.retryable = retryable
	}
}

// OnRetry registers a hook called before each retry with its 1-based
// number, the error that caused it and the wait ahead.
func OnRetry(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(o *options) {
		o.onRetry = fn
	}
}

// Do runs fn until it succeeds, fails with a non-retryable error, runs out
// of retries, or ctx is done. operation labels the metrics.
func Do(ctx context.Context, p Policy, operation string, fn func(context.Context) error, opts ...Option) error {
	p = p.normalized()
	o := options{retryable: func(error) bool { return true }}
	for _, opt := range opts {
		opt(&o)
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			recordOutcome(operation, outcomeCanceled)
			return err
		}

		err := fn(ctx)
		switch {
		case err == nil:
			recordOutcome(operation, outcomeSuccess)
			return nil
		case !o.retryable(err):
			recordOutcome(operation, outcomePermanent)
			return err
		case attempt == p.Retries:
			recordOutcome(operation, outcomeExhausted)
			return err
		}

		//nolint:gosec // jitter is not security sensitive
		wait := p.Backoff(attempt, rand.Float64())
		recordRetry(operation)
		if o.onRetry != nil {
			o.onRetry(attempt+1, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			recordOutcome(operation, outcomeCanceled)
			return ctx.Err()
		case <-timer.C:
		}
	}
}
