package gateway

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/vyrodovalexey/energygw/internal/cache"
	"github.com/vyrodovalexey/energygw/internal/observability"
	"github.com/vyrodovalexey/energygw/internal/util"
)

// CacheHeader reports the cache outcome of a dispatched request.
const CacheHeader = "X-Cache"

// DefaultMaxRequestBytes bounds inbound request bodies.
const DefaultMaxRequestBytes = 10 << 20

// Handler adapts a Dispatcher to net/http.
type Handler struct {
	dispatcher *Dispatcher
	logger     observability.Logger
	maxBody    int64
}

// NewHandler creates a Handler for d.
func NewHandler(d *Dispatcher, logger observability.Logger) *Handler {
	return &Handler{
		dispatcher: d,
		logger:     logger,
		maxBody:    DefaultMaxRequestBytes,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := observability.ExtractTraceContext(r.Context(), r.Header)

	body, bodyErr := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if bodyErr != nil {
		var tooLarge *http.MaxBytesError
		if !errors.As(bodyErr, &tooLarge) {
			h.logger.WithContext(ctx).Warn("failed to read request body", observability.Error(bodyErr))
		}
		body = nil
	}

	result, err := h.dispatcher.Dispatch(ctx, &Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		Query:      r.URL.Query(),
		RawQuery:   r.URL.RawQuery,
		Header:     r.Header,
		Body:       body,
		BodyErr:    bodyErr,
		RemoteAddr: r.RemoteAddr,
		Host:       r.Host,
		TLS:        r.TLS != nil,
	})
	if err != nil {
		if outcome := util.RequestInfoFromContext(ctx).CacheOutcome(); outcome != "" {
			w.Header().Set(CacheHeader, cacheHeaderValue(cache.Outcome(outcome)))
		}
		writeError(w, err)
		return
	}

	resp := result.Response
	copyHeader(w.Header(), resp.Header)
	w.Header().Set(CacheHeader, cacheHeaderValue(result.Outcome))
	w.WriteHeader(resp.StatusCode)
	if r.Method != http.MethodHead {
		_, _ = w.Write(resp.Body)
	}
}

func cacheHeaderValue(o cache.Outcome) string {
	return strings.ToUpper(string(o))
}

// copyHeader copies src into dst. Content-Length is left to net/http.
func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		if k == "Content-Length" {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
