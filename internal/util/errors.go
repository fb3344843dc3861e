package util

import (
	"errors"
	"strings"
)

// Sentinels for errors.Is. Each typed error below matches exactly one.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrConfigInvalid = errors.New("invalid configuration")
)

// ConfigError reports a configuration value the gateway cannot start
// with. Field is the dotted path of the offending value.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// NewConfigError creates a ConfigError without a cause.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("invalid configuration")
	if e.Field != "" {
		b.WriteString(" at ")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// Is matches ErrConfigInvalid and any *ConfigError.
func (e *ConfigError) Is(target error) bool {
	var ce *ConfigError
	return target == ErrConfigInvalid || errors.As(target, &ce)
}

// RouteNotFoundError is returned when no route accepts a method and path.
// A path registered only under other methods is also reported this way.
type RouteNotFoundError struct {
	Method string
	Path   string
}

// NewRouteNotFoundError creates a RouteNotFoundError.
func NewRouteNotFoundError(method, path string) *RouteNotFoundError {
	return &RouteNotFoundError{Method: method, Path: path}
}

func (e *RouteNotFoundError) Error() string {
	return "no route for " + e.Method + " " + e.Path
}

// Is matches ErrNotFound and any *RouteNotFoundError.
func (e *RouteNotFoundError) Is(target error) bool {
	var rnf *RouteNotFoundError
	return target == ErrNotFound || errors.As(target, &rnf)
}

// InvalidBodyError is returned when a request body is not valid JSON or
// cannot be canonicalized into a cache key.
type InvalidBodyError struct {
	Route string
	Cause error
}

// NewInvalidBodyError creates an InvalidBodyError. Route may be empty when
// the body was rejected before routing.
func NewInvalidBodyError(route string, cause error) *InvalidBodyError {
	return &InvalidBodyError{Route: route, Cause: cause}
}

func (e *InvalidBodyError) Error() string {
	msg := "invalid request body"
	if e.Route != "" {
		msg += " for route " + e.Route
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *InvalidBodyError) Unwrap() error { return e.Cause }

// Is matches ErrInvalidInput and any *InvalidBodyError.
func (e *InvalidBodyError) Is(target error) bool {
	var ib *InvalidBodyError
	return target == ErrInvalidInput || errors.As(target, &ib)
}
