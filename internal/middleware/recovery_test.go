package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/energygw/internal/util"
)

func TestRecovery(t *testing.T) {
	logger, logs := observedLogger()
	panics := GetMiddlewareMetrics().panicsRecovered.WithLabelValues(http.MethodPost)
	before := testutil.ToFloat64(panics)

	handler := Recovery(logger)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		util.RequestInfoFromContext(r.Context()).SetRoute("optimize")
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/plan/optimize", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ContentTypeJSON, rec.Header().Get(HeaderContentType))
	assert.JSONEq(t, `{"error":"internal","message":"internal error","status":500}`, rec.Body.String())
	assert.Equal(t, before+1, testutil.ToFloat64(panics))

	entries := logs.FilterMessage("panic recovered").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/plan/optimize", fields["path"])
	assert.Equal(t, "optimize", fields["route"])
	assert.Equal(t, "boom", fields["panic"])
}

func TestRecovery_PassThrough(t *testing.T) {
	t.Parallel()

	logger, logs := observedLogger()
	handler := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Zero(t, logs.Len())
}

func TestRecovery_RepanicsAbortHandler(t *testing.T) {
	t.Parallel()

	logger, _ := observedLogger()
	handler := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
