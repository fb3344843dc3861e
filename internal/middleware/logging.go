package middleware

import (
	"net/http"
	"time"

	"github.com/vyrodovalexey/energygw/internal/observability"
	"github.com/vyrodovalexey/energygw/internal/util"
)

// statusRecorder captures the status and body size written downstream.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Flush forwards to the wrapped writer when it supports flushing.
func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Logging returns a middleware that writes one access line per request.
// The route and cache outcome are whatever the dispatcher recorded on the
// shared RequestInfo. Upstream failures (5xx) log at warn so they stand
// out from regular traffic.
func Logging(logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := util.ContextWithStartTime(r.Context(), start)
			ctx, info := util.ContextWithRequestInfo(ctx)
			r = r.WithContext(ctx)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			fields := []observability.Field{
				observability.String("method", r.Method),
				observability.String("path", r.URL.Path),
				observability.String("query", r.URL.RawQuery),
				observability.Int("status", rec.status),
				observability.Int("size", rec.size),
				observability.Duration("duration", time.Since(start)),
				observability.String("client_ip", ClientIPFromRequest(r)),
				observability.String("user_agent", r.UserAgent()),
				observability.String("route", info.Route()),
			}
			if outcome := info.CacheOutcome(); outcome != "" {
				fields = append(fields, observability.String("cache", outcome))
			}

			//nolint:contextcheck // request context carries the request ID
			log := logger.WithContext(r.Context())
			if rec.status >= http.StatusInternalServerError {
				log.Warn("http request", fields...)
				return
			}
			log.Info("http request", fields...)
		})
	}
}
