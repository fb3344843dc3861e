package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vyrodovalexey/energygw/internal/proxy"
	"github.com/vyrodovalexey/energygw/internal/util"
)

func TestKindOfAndStatusOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantKind   Kind
		wantStatus int
	}{
		{
			name:       "route not found",
			err:        util.NewRouteNotFoundError(http.MethodGet, "/nope"),
			wantKind:   KindRouteNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "invalid body",
			err:        util.NewInvalidBodyError("forecast", errors.New("unexpected EOF")),
			wantKind:   KindInvalidRequestBody,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "upstream timeout",
			err:        &proxy.UpstreamError{Kind: proxy.KindTimeout},
			wantKind:   KindUpstreamTimeout,
			wantStatus: http.StatusGatewayTimeout,
		},
		{
			name:       "upstream unreachable",
			err:        &proxy.UpstreamError{Kind: proxy.KindUnreachable},
			wantKind:   KindUpstreamUnreachable,
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "upstream status relays the code",
			err:        &proxy.UpstreamError{Kind: proxy.KindStatus, StatusCode: http.StatusTooManyRequests},
			wantKind:   KindUpstreamStatus,
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "wrapped upstream error",
			err:        fmt.Errorf("dispatch: %w", &proxy.UpstreamError{Kind: proxy.KindUnreachable}),
			wantKind:   KindUpstreamUnreachable,
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "caller deadline",
			err:        context.DeadlineExceeded,
			wantKind:   KindUpstreamTimeout,
			wantStatus: http.StatusGatewayTimeout,
		},
		{
			name:       "caller canceled",
			err:        context.Canceled,
			wantKind:   KindClientClosed,
			wantStatus: StatusClientClosedRequest,
		},
		{
			name:       "unknown",
			err:        errors.New("boom"),
			wantKind:   KindInternal,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.wantKind, KindOf(tt.err))
			assert.Equal(t, tt.wantStatus, StatusOf(tt.err))
		})
	}
}

func TestWriteError_InternalHidesDetails(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeError(rec, errors.New("dial tcp 10.1.2.3:5432: secret"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal","message":"internal error","status":500}`, rec.Body.String())
}

func TestWriteError_RelaysUpstreamHeaders(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeError(rec, &proxy.UpstreamError{
		Kind:       proxy.KindStatus,
		StatusCode: http.StatusConflict,
		Header:     http.Header{"Content-Type": {"text/plain"}, "Content-Length": {"8"}},
		Body:       []byte("conflict"),
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "conflict", rec.Body.String())
}
