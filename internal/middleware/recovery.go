package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/vyrodovalexey/energygw/internal/observability"
	"github.com/vyrodovalexey/energygw/internal/util"
)

// Recovery returns a middleware that turns a panic in the chain into a
// 500 internal error envelope. The route the dispatcher recorded, if any,
// is logged alongside the stack.
func Recovery(logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, info := util.ContextWithRequestInfo(r.Context())
			r = r.WithContext(ctx)

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// net/http aborts the connection for this sentinel.
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				fields := []observability.Field{
					observability.String("method", r.Method),
					observability.String("path", r.URL.Path),
					observability.Any("panic", rec),
					observability.String("stack", string(debug.Stack())),
				}
				if route := info.Route(); route != "" {
					fields = append(fields, observability.String("route", route))
				}
				logger.WithContext(r.Context()).Error("panic recovered", fields...)

				GetMiddlewareMetrics().panicsRecovered.WithLabelValues(r.Method).Inc()

				writeError(w, http.StatusInternalServerError, KindInternal, "internal error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
