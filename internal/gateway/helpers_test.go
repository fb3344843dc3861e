package gateway

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/energygw/internal/cache"
	"github.com/vyrodovalexey/energygw/internal/config"
	"github.com/vyrodovalexey/energygw/internal/observability"
	"github.com/vyrodovalexey/energygw/internal/proxy"
	"github.com/vyrodovalexey/energygw/internal/router"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// downstream is an httptest service that counts the requests it serves.
type downstream struct {
	*httptest.Server
	calls atomic.Int32

	mu     sync.Mutex
	bodies []string
}

func newDownstream(t *testing.T, handler http.HandlerFunc) *downstream {
	t.Helper()

	d := &downstream{}
	d.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.calls.Add(1)
		b, _ := io.ReadAll(r.Body)
		d.mu.Lock()
		d.bodies = append(d.bodies, string(b))
		d.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(d.Close)
	return d
}

func jsonReply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

// services holds one downstream per logical service.
type services struct {
	dt, forecast, eop, eng *downstream
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

// energyTable builds the gateway's route set against svcs.
func energyTable(t *testing.T, svcs services) *router.Table {
	t.Helper()

	table, err := router.New([]router.Route{
		{
			Name:         "ping",
			Methods:      []string{http.MethodGet},
			Pattern:      "/ping",
			Service:      "dt",
			BaseURL:      mustURL(t, svcs.dt.URL),
			UpstreamPath: "/health",
			Cache:        router.CachePolicy{Enabled: true, TTL: 5 * time.Second},
		},
		{
			Name:    "forecast",
			Methods: []string{http.MethodPost},
			Pattern: "/forecast/:type",
			Params:  map[string][]string{"type": {"load", "pv", "price"}},
			Service: "forecast",
			BaseURL: mustURL(t, svcs.forecast.URL),
			Cache:   router.CachePolicy{Enabled: true, TTL: 20 * time.Second},
		},
		{
			Name:    "plan-optimize",
			Methods: []string{http.MethodPost},
			Pattern: "/plan/optimize",
			Service: "eop",
			BaseURL: mustURL(t, svcs.eop.URL),
		},
		{
			Name:    "nudges",
			Methods: []string{http.MethodPost},
			Pattern: "/nudges",
			Service: "eng",
			BaseURL: mustURL(t, svcs.eng.URL),
		},
	})
	require.NoError(t, err)
	return table
}

func newMemoryStore(t *testing.T, clock *fakeClock) *cache.Store[proxy.Response] {
	t.Helper()

	backend, err := cache.New(&config.CacheConfig{
		Type:            config.CacheTypeMemory,
		MaxEntries:      1000,
		CleanupInterval: config.Duration(time.Minute),
	}, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	return cache.NewStore[proxy.Response](backend, cache.Msgpack[proxy.Response]{}, cache.WithClock(clock.Now))
}

// fixture wires a dispatcher to live downstreams.
type fixture struct {
	svcs       services
	clock      *fakeClock
	dispatcher *Dispatcher
}

func newFixture(t *testing.T, forecast http.HandlerFunc, opts ...DispatcherOption) *fixture {
	t.Helper()

	svcs := services{
		dt:       newDownstream(t, jsonReply(http.StatusOK, `{"status":"ok"}`)),
		forecast: newDownstream(t, forecast),
		eop:      newDownstream(t, jsonReply(http.StatusOK, `{"plan":"p1"}`)),
		eng:      newDownstream(t, jsonReply(http.StatusAccepted, `{"queued":true}`)),
	}
	clock := newFakeClock()
	fwd := proxy.New(config.ForwarderConfig{Timeout: config.Duration(2 * time.Second)})

	return &fixture{
		svcs:       svcs,
		clock:      clock,
		dispatcher: NewDispatcher(energyTable(t, svcs), newMemoryStore(t, clock), fwd, opts...),
	}
}

func postJSON(path, body string) *Request {
	return &Request{
		Method: http.MethodPost,
		Path:   path,
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(body),
	}
}

// stubForwarder answers from a function and counts calls.
type stubForwarder struct {
	calls atomic.Int32
	fn    func(ctx context.Context) (*proxy.Response, error)
}

func (s *stubForwarder) Forward(ctx context.Context, _ *router.Match, _ proxy.Request) (*proxy.Response, error) {
	s.calls.Add(1)
	return s.fn(ctx)
}

func stringsReader(s string) io.Reader {
	return strings.NewReader(s)
}

func splitPort(addr string) (string, int, error) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(p)
	return host, port, err
}
