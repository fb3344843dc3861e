package router

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/energygw/internal/config"
	"github.com/vyrodovalexey/energygw/internal/util"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()

	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func energyRoutes(t *testing.T) []Route {
	t.Helper()

	return []Route{
		{
			Name:         "probe",
			Methods:      []string{http.MethodGet},
			Pattern:      "/probe",
			Service:      "dt",
			BaseURL:      mustURL(t, "http://dt:8001"),
			UpstreamPath: "/health",
			Cache:        CachePolicy{Enabled: true, TTL: 5 * time.Second},
		},
		{
			Name:    "forecast",
			Methods: []string{http.MethodPost},
			Pattern: "/forecast/:type",
			Params:  map[string][]string{"type": {"load", "pv", "price"}},
			Service: "forecast",
			BaseURL: mustURL(t, "http://forecast:8002"),
			Cache:   CachePolicy{Enabled: true, TTL: 20 * time.Second},
		},
		{
			Name:    "plan-optimize",
			Methods: []string{http.MethodPost},
			Pattern: "/plan/optimize",
			Service: "eop",
			BaseURL: mustURL(t, "http://eop:8003"),
		},
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	table, err := New(energyRoutes(t))
	require.NoError(t, err)

	routes := table.Routes()
	require.Len(t, routes, 3)
	// Literal routes come first, in configuration order.
	assert.Equal(t, "probe", routes[0].Name)
	assert.Equal(t, "plan-optimize", routes[1].Name)
	assert.Equal(t, "forecast", routes[2].Name)
	assert.True(t, routes[2].Templated())

	r, ok := table.Route("forecast")
	require.True(t, ok)
	assert.Equal(t, "/forecast/:type", r.UpstreamPath, "upstream path defaults to the pattern")

	_, ok = table.Route("missing")
	assert.False(t, ok)
}

func TestTable_Resolve(t *testing.T) {
	t.Parallel()

	table, err := New(energyRoutes(t))
	require.NoError(t, err)

	tests := []struct {
		name         string
		method       string
		path         string
		wantRoute    string
		wantParams   map[string]string
		wantUpstream string
	}{
		{
			name:         "literal with upstream rewrite",
			method:       http.MethodGet,
			path:         "/probe",
			wantRoute:    "probe",
			wantUpstream: "/health",
		},
		{
			name:         "templated",
			method:       http.MethodPost,
			path:         "/forecast/price",
			wantRoute:    "forecast",
			wantParams:   map[string]string{"type": "price"},
			wantUpstream: "/forecast/price",
		},
		{
			name:         "lowercase method",
			method:       "post",
			path:         "/plan/optimize",
			wantRoute:    "plan-optimize",
			wantUpstream: "/plan/optimize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			match, err := table.Resolve(tt.method, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRoute, match.Route.Name)
			assert.Equal(t, tt.wantParams, match.Params)
			assert.Equal(t, tt.wantUpstream, match.UpstreamPath)
		})
	}
}

func TestTable_Resolve_NotFound(t *testing.T) {
	t.Parallel()

	table, err := New(energyRoutes(t))
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{name: "unknown path", method: http.MethodGet, path: "/unknown"},
		{name: "value outside closed set", method: http.MethodPost, path: "/forecast/wind"},
		{name: "method not allowed", method: http.MethodGet, path: "/forecast/load"},
		{name: "prefix only", method: http.MethodGet, path: "/probe/extra"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			match, err := table.Resolve(tt.method, tt.path)
			assert.Nil(t, match)
			require.Error(t, err)
			assert.True(t, errors.Is(err, util.ErrNotFound))

			var notFound *util.RouteNotFoundError
			require.True(t, errors.As(err, &notFound))
			assert.Equal(t, tt.path, notFound.Path)
			assert.Equal(t, tt.method, notFound.Method)
		})
	}
}

func TestTable_LiteralPrecedence(t *testing.T) {
	t.Parallel()

	routes := append(energyRoutes(t), Route{
		Name:    "forecast-load-v2",
		Methods: []string{http.MethodPost},
		Pattern: "/forecast/load",
		Service: "forecast",
		BaseURL: mustURL(t, "http://forecast-v2:8002"),
	})

	table, err := New(routes)
	require.NoError(t, err)

	match, err := table.Resolve(http.MethodPost, "/forecast/load")
	require.NoError(t, err)
	assert.Equal(t, "forecast-load-v2", match.Route.Name)

	match, err = table.Resolve(http.MethodPost, "/forecast/pv")
	require.NoError(t, err)
	assert.Equal(t, "forecast", match.Route.Name)
}

func TestNew_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		extra   func(t *testing.T) Route
		wantErr string
	}{
		{
			name: "duplicate name",
			extra: func(t *testing.T) Route {
				return Route{Name: "probe", Methods: []string{"GET"}, Pattern: "/other", BaseURL: mustURL(t, "http://dt")}
			},
			wantErr: "duplicate route name",
		},
		{
			name: "same literal path and method",
			extra: func(t *testing.T) Route {
				return Route{Name: "probe2", Methods: []string{"GET"}, Pattern: "/probe/", BaseURL: mustURL(t, "http://dt")}
			},
			wantErr: "ambiguous with route probe",
		},
		{
			name: "overlapping templates",
			extra: func(t *testing.T) Route {
				return Route{Name: "any-load", Methods: []string{"POST"}, Pattern: "/{area}/load", BaseURL: mustURL(t, "http://x")}
			},
			wantErr: "ambiguous with route forecast",
		},
		{
			name: "missing base url",
			extra: func(t *testing.T) Route {
				return Route{Name: "nudges", Methods: []string{"POST"}, Pattern: "/nudges", Service: "eng"}
			},
			wantErr: `base URL for service "eng" is not set`,
		},
		{
			name: "cache without ttl",
			extra: func(t *testing.T) Route {
				return Route{
					Name: "nudges", Methods: []string{"POST"}, Pattern: "/nudges",
					BaseURL: mustURL(t, "http://eng"), Cache: CachePolicy{Enabled: true},
				}
			},
			wantErr: "cache ttl must be positive",
		},
		{
			name: "relative pattern",
			extra: func(t *testing.T) Route {
				return Route{Name: "nudges", Methods: []string{"POST"}, Pattern: "nudges", BaseURL: mustURL(t, "http://eng")}
			},
			wantErr: "pattern must start with /",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(append(energyRoutes(t), tt.extra(t)))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.Is(err, util.ErrConfigInvalid))
		})
	}
}

func TestNew_DisjointTemplatesAllowed(t *testing.T) {
	t.Parallel()

	routes := append(energyRoutes(t),
		Route{
			Name:    "forecast-wind",
			Methods: []string{http.MethodPost},
			Pattern: "/forecast/{kind}",
			Params:  map[string][]string{"kind": {"wind"}},
			BaseURL: mustURL(t, "http://wind:8000"),
		},
		Route{
			Name:    "forecast-read",
			Methods: []string{http.MethodGet},
			Pattern: "/forecast/:type",
			BaseURL: mustURL(t, "http://forecast:8002"),
		},
	)

	table, err := New(routes)
	require.NoError(t, err)

	match, err := table.Resolve(http.MethodPost, "/forecast/wind")
	require.NoError(t, err)
	assert.Equal(t, "forecast-wind", match.Route.Name)

	match, err = table.Resolve(http.MethodGet, "/forecast/anything")
	require.NoError(t, err)
	assert.Equal(t, "forecast-read", match.Route.Name)
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfigFromReader(strings.NewReader(`
apiVersion: gateway.energygw.io/v1
kind: Gateway
metadata:
  name: test
spec:
  services:
    - name: dt
      url: http://dt:8001
      timeout: 1s
    - name: forecast
      url: http://forecast:8002
  routes:
    - name: probe
      methods: [GET]
      path: /probe
      service: dt
      upstreamPath: /health
      cache: {enabled: true, ttl: 5s}
    - name: forecast
      methods: [POST]
      path: /forecast/{type}
      params: {type: [load, pv, price]}
      service: forecast
      timeout: 2s
      cache: {enabled: true, ttl: 20s}
`))
	require.NoError(t, err)

	table, err := NewFromConfig(&cfg.Spec)
	require.NoError(t, err)

	probe, ok := table.Route("probe")
	require.True(t, ok)
	assert.Equal(t, "dt", probe.BaseURL.Hostname())
	assert.Equal(t, time.Second, probe.Timeout, "service timeout applies")
	assert.Equal(t, CachePolicy{Enabled: true, TTL: 5 * time.Second}, probe.Cache)

	forecast, ok := table.Route("forecast")
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, forecast.Timeout)

	match, err := table.Resolve(http.MethodPost, "/forecast/load")
	require.NoError(t, err)
	assert.Equal(t, "/forecast/load", match.UpstreamPath)
}

func TestNewFromConfig_Errors(t *testing.T) {
	t.Parallel()

	spec := &config.GatewaySpec{
		Services: []config.Service{{Name: "eng", URL: ""}},
		Routes: []config.Route{
			{Name: "nudges", Methods: []string{"POST"}, Path: "/nudges", Service: "eng"},
		},
	}
	_, err := NewFromConfig(spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `base URL for service "eng" is invalid`)

	spec.Routes[0].Service = "billing"
	_, err = NewFromConfig(spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown service: billing")
}
