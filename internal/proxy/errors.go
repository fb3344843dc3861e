package proxy

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an upstream failure.
type Kind string

// Upstream failure kinds.
const (
	// KindTimeout means the upstream did not answer within the timeout.
	KindTimeout Kind = "timeout"

	// KindUnreachable means no usable response was received: connection
	// failure, open breaker, oversized or unreadable body.
	KindUnreachable Kind = "unreachable"

	// KindStatus means the upstream answered with a status outside 2xx/3xx.
	KindStatus Kind = "status"
)

// Sentinel errors for matching with errors.Is.
var (
	// ErrUpstreamTimeout matches UpstreamErrors of KindTimeout.
	ErrUpstreamTimeout = errors.New("upstream request timed out")

	// ErrUpstreamUnreachable matches UpstreamErrors of KindUnreachable.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")

	// ErrUpstreamStatus matches UpstreamErrors of KindStatus.
	ErrUpstreamStatus = errors.New("upstream returned an error status")

	// ErrResponseTooLarge indicates an upstream body above the size limit.
	ErrResponseTooLarge = errors.New("upstream response too large")

	// ErrCircuitOpen indicates the service's breaker rejected the call.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// UpstreamError is returned by Forward for every failed upstream call.
type UpstreamError struct {
	Kind    Kind
	Route   string
	Service string
	Target  string

	// StatusCode, Header and Body are set for KindStatus.
	StatusCode int
	Header     http.Header
	Body       []byte

	Cause error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	switch {
	case e.Kind == KindStatus:
		return fmt.Sprintf("upstream %s [route=%s target=%s]: status %d",
			e.Service, e.Route, e.Target, e.StatusCode)
	case e.Cause != nil:
		return fmt.Sprintf("upstream %s [route=%s target=%s]: %s: %v",
			e.Service, e.Route, e.Target, e.Kind, e.Cause)
	default:
		return fmt.Sprintf("upstream %s [route=%s target=%s]: %s",
			e.Service, e.Route, e.Target, e.Kind)
	}
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel for the error's kind.
func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrUpstreamTimeout:
		return e.Kind == KindTimeout
	case ErrUpstreamUnreachable:
		return e.Kind == KindUnreachable
	case ErrUpstreamStatus:
		return e.Kind == KindStatus
	}
	return false
}

// AsUpstreamError returns the UpstreamError in err's chain, if any.
func AsUpstreamError(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
