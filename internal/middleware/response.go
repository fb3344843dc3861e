package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Header names used by the middleware.
const (
	HeaderContentType   = "Content-Type"
	HeaderRetryAfter    = "Retry-After"
	HeaderXRequestID    = "X-Request-ID"
	HeaderXForwardedFor = "X-Forwarded-For"
)

// ContentTypeJSON is the content type of every error body.
const ContentTypeJSON = "application/json"

// Error kinds written by the middleware. They share the envelope and the
// kind vocabulary of the dispatcher errors.
const (
	KindRateLimited = "rate_limited"
	KindInternal    = "internal"
)

// errorEnvelope mirrors the body the gateway handler writes for its own
// errors, so clients parse a single shape.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// writeError answers with the JSON error envelope.
func writeError(w http.ResponseWriter, status int, kind, message string) {
	body, _ := json.Marshal(errorEnvelope{Error: kind, Message: message, Status: status})

	h := w.Header()
	h.Set(HeaderContentType, ContentTypeJSON)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
