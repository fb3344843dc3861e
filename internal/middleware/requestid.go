package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/energygw/internal/observability"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = HeaderXRequestID

// maxRequestIDLength bounds inbound IDs, which end up in every log line
// and in the upstream request headers.
const maxRequestIDLength = 128

// RequestID returns a middleware that assigns each request a UUID unless
// the client sent a usable X-Request-ID.
func RequestID() func(http.Handler) http.Handler {
	return RequestIDWithGenerator(func() string {
		return uuid.New().String()
	})
}

// RequestIDWithGenerator is RequestID with a custom generator. Inbound IDs
// that are too long or contain characters outside [A-Za-z0-9._:-] are
// replaced rather than trusted.
func RequestIDWithGenerator(generator func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			source := requestIDInbound
			switch {
			case requestID == "":
				requestID, source = generator(), requestIDGenerated
			case !validRequestID(requestID):
				requestID, source = generator(), requestIDReplaced
			}
			GetMiddlewareMetrics().requestIDs.WithLabelValues(source).Inc()

			// The forwarder copies inbound headers upstream, so the
			// downstream service sees the same ID.
			r.Header.Set(RequestIDHeader, requestID)
			w.Header().Set(RequestIDHeader, requestID)

			ctx := observability.ContextWithRequestID(r.Context(), requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validRequestID(id string) bool {
	if len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}
