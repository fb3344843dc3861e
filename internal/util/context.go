package util

import (
	"context"
	"sync"
	"time"
)

// Context keys.
type ctxKey string

const (
	ctxKeyStartTime   ctxKey = "start_time"
	ctxKeyRequestInfo ctxKey = "request_info"
)

// ContextWithStartTime adds a start time to the context.
func ContextWithStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ctxKeyStartTime, t)
}

// StartTimeFromContext extracts the start time from context.
func StartTimeFromContext(ctx context.Context) time.Time {
	if v, ok := ctx.Value(ctxKeyStartTime).(time.Time); ok {
		return v
	}
	return time.Time{}
}

// ElapsedTime returns the elapsed time since the start time in context.
func ElapsedTime(ctx context.Context) time.Duration {
	startTime := StartTimeFromContext(ctx)
	if startTime.IsZero() {
		return 0
	}
	return time.Since(startTime)
}

// RequestInfo carries per-request facts discovered by inner handlers back
// to outer middleware.
type RequestInfo struct {
	mu           sync.Mutex
	route        string
	cacheOutcome string
}

// SetRoute records the resolved route name.
func (i *RequestInfo) SetRoute(route string) {
	if i == nil {
		return
	}
	i.mu.Lock()
	i.route = route
	i.mu.Unlock()
}

// Route returns the resolved route name, or "" if none resolved.
func (i *RequestInfo) Route() string {
	if i == nil {
		return ""
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.route
}

// SetCacheOutcome records the cache outcome (hit, miss or bypass).
func (i *RequestInfo) SetCacheOutcome(outcome string) {
	if i == nil {
		return
	}
	i.mu.Lock()
	i.cacheOutcome = outcome
	i.mu.Unlock()
}

// CacheOutcome returns the recorded cache outcome.
func (i *RequestInfo) CacheOutcome() string {
	if i == nil {
		return ""
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cacheOutcome
}

// ContextWithRequestInfo returns a context carrying a fresh RequestInfo.
// An existing RequestInfo is reused so nested middleware share one record.
func ContextWithRequestInfo(ctx context.Context) (context.Context, *RequestInfo) {
	if info := RequestInfoFromContext(ctx); info != nil {
		return ctx, info
	}
	info := &RequestInfo{}
	return context.WithValue(ctx, ctxKeyRequestInfo, info), info
}

// RequestInfoFromContext returns the RequestInfo in ctx, or nil.
// The nil RequestInfo is safe to use.
func RequestInfoFromContext(ctx context.Context) *RequestInfo {
	if v, ok := ctx.Value(ctxKeyRequestInfo).(*RequestInfo); ok {
		return v
	}
	return nil
}
