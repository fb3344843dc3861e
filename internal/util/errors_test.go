package util

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *ConfigError
		expected string
	}{
		{
			name:     "with field",
			err:      NewConfigError("spec.services[0].url", "is required"),
			expected: "invalid configuration at spec.services[0].url: is required",
		},
		{
			name:     "without field",
			err:      NewConfigError("", "no routes"),
			expected: "invalid configuration: no routes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.err.Error())
			assert.ErrorIs(t, tt.err, ErrConfigInvalid)
		})
	}
}

func TestConfigError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("parse failure")
	err := &ConfigError{Field: "spec", Message: "bad", Cause: cause}

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), &ConfigError{})
	assert.Equal(t, "invalid configuration at spec: bad: parse failure", err.Error())
}

func TestRouteNotFoundError(t *testing.T) {
	t.Parallel()

	err := NewRouteNotFoundError("POST", "/forecast/wind")

	assert.Equal(t, "no route for POST /forecast/wind", err.Error())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, fmt.Errorf("dispatch: %w", err), &RouteNotFoundError{})
	assert.NotErrorIs(t, err, ErrInvalidInput)
}

func TestInvalidBodyError(t *testing.T) {
	t.Parallel()

	cause := errors.New("unexpected EOF")
	err := NewInvalidBodyError("forecast", cause)

	assert.Equal(t, "invalid request body for route forecast: unexpected EOF", err.Error())
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, &InvalidBodyError{})

	bare := NewInvalidBodyError("ping", nil)
	assert.Equal(t, "invalid request body for route ping", bare.Error())

	unrouted := NewInvalidBodyError("", cause)
	assert.Equal(t, "invalid request body: unexpected EOF", unrouted.Error())
}
