package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/energygw/internal/proxy"
	"github.com/vyrodovalexey/energygw/internal/util"
)

// Sentinel errors for gateway lifecycle operations.
var (
	// ErrGatewayNotStopped indicates that the gateway is not in
	// stopped state when a start operation is attempted.
	ErrGatewayNotStopped = errors.New("gateway is not in stopped state")

	// ErrGatewayNotRunning indicates that the gateway is not
	// running when a stop operation is attempted.
	ErrGatewayNotRunning = errors.New("gateway is not running")

	// ErrNilConfig indicates that a nil configuration was provided.
	ErrNilConfig = errors.New("configuration is required")
)

// Kind names a dispatch failure class. It is the "error" field of the
// JSON error envelope and the gateway.error.kind span attribute.
type Kind string

// Dispatch failure kinds.
const (
	KindRouteNotFound       Kind = "route_not_found"
	KindInvalidRequestBody  Kind = "invalid_request_body"
	KindUpstreamTimeout     Kind = "upstream_timeout"
	KindUpstreamUnreachable Kind = "upstream_unreachable"
	KindUpstreamStatus      Kind = "upstream_status"
	KindInternal            Kind = "internal"

	// KindClientClosed marks a caller that cancelled while waiting. The
	// shared upstream fetch it was attached to keeps running.
	KindClientClosed Kind = "client_closed"
)

// StatusClientClosedRequest is answered to callers that went away. The
// client never reads it; it shows up in access logs and metrics.
const StatusClientClosedRequest = 499

// KindOf classifies err.
func KindOf(err error) Kind {
	var notFound *util.RouteNotFoundError
	var invalid *util.InvalidBodyError

	switch {
	case errors.As(err, &notFound):
		return KindRouteNotFound
	case errors.As(err, &invalid):
		return KindInvalidRequestBody
	}

	if ue, ok := proxy.AsUpstreamError(err); ok {
		switch ue.Kind {
		case proxy.KindTimeout:
			return KindUpstreamTimeout
		case proxy.KindStatus:
			return KindUpstreamStatus
		default:
			return KindUpstreamUnreachable
		}
	}

	// The caller's own deadline expired while waiting on a shared fetch.
	if errors.Is(err, context.DeadlineExceeded) {
		return KindUpstreamTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindClientClosed
	}
	return KindInternal
}

// StatusOf returns the HTTP status the gateway answers err with.
func StatusOf(err error) int {
	switch KindOf(err) {
	case KindRouteNotFound:
		return http.StatusNotFound
	case KindInvalidRequestBody:
		return http.StatusBadRequest
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case KindUpstreamUnreachable:
		return http.StatusBadGateway
	case KindClientClosed:
		return StatusClientClosedRequest
	case KindUpstreamStatus:
		ue, _ := proxy.AsUpstreamError(err)
		return ue.StatusCode
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   Kind   `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// writeError renders err. Upstream status errors relay the downstream
// body when there is one; every other error gets the JSON envelope.
func writeError(w http.ResponseWriter, err error) {
	status := StatusOf(err)

	if ue, ok := proxy.AsUpstreamError(err); ok && ue.Kind == proxy.KindStatus && len(ue.Body) > 0 {
		copyHeader(w.Header(), ue.Header)
		w.WriteHeader(status)
		_, _ = w.Write(ue.Body)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   KindOf(err),
		Message: errorMessage(err),
		Status:  status,
	})
}

// errorMessage is the client-facing message. Upstream errors omit the
// target URL.
func errorMessage(err error) string {
	if ue, ok := proxy.AsUpstreamError(err); ok {
		switch ue.Kind {
		case proxy.KindTimeout:
			return fmt.Sprintf("service %s did not answer in time", ue.Service)
		case proxy.KindStatus:
			return fmt.Sprintf("service %s answered %d", ue.Service, ue.StatusCode)
		default:
			return fmt.Sprintf("service %s is unreachable", ue.Service)
		}
	}
	if KindOf(err) == KindInternal {
		return "internal error"
	}
	return err.Error()
}
