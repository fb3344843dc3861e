package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/vyrodovalexey/energygw/internal/observability"
)

func TestRequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		inbound  string
		wantKeep bool
	}{
		{name: "generates new request ID"},
		{name: "keeps inbound request ID", inbound: "req-123_abc.4:5", wantKeep: true},
		{name: "replaces ID with spaces", inbound: "bad id"},
		{name: "replaces ID with control characters", inbound: "a\x01b"},
		{name: "replaces overlong ID", inbound: strings.Repeat("a", maxRequestIDLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var fromCtx, fromHeader string
			handler := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				fromCtx = observability.RequestIDFromContext(r.Context())
				fromHeader = r.Header.Get(RequestIDHeader)
			}))

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			if tt.inbound != "" {
				req.Header.Set(RequestIDHeader, tt.inbound)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			assert.Equal(t, got, fromCtx)
			assert.Equal(t, got, fromHeader)
			if tt.wantKeep {
				assert.Equal(t, tt.inbound, got)
			} else {
				assert.Len(t, got, 36)
			}
		})
	}
}

func TestRequestID_CountsSources(t *testing.T) {
	ids := GetMiddlewareMetrics().requestIDs
	before := testutil.ToFloat64(ids.WithLabelValues(requestIDReplaced))

	handler := RequestIDWithGenerator(func() string { return "fixed" })(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}),
	)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "fixed", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, before+1, testutil.ToFloat64(ids.WithLabelValues(requestIDReplaced)))
}
