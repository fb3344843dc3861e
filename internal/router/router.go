package router

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/vyrodovalexey/energygw/internal/config"
	"github.com/vyrodovalexey/energygw/internal/util"
)

// CachePolicy is the per-route caching policy.
type CachePolicy struct {
	Enabled bool
	TTL     time.Duration
}

// Route is a resolved route: an inbound pattern bound to a downstream
// service. Routes are immutable once the Table is built.
type Route struct {
	Name    string
	Methods []string
	Pattern string

	// Params restricts templated segments to closed value sets.
	Params map[string][]string

	Service string
	BaseURL *url.URL

	// UpstreamPath is the downstream path template.
	UpstreamPath string

	// Timeout overrides the forwarder default when non-zero.
	Timeout time.Duration

	Cache CachePolicy

	path     PathMatcher
	methods  *MethodMatcher
	priority int
}

// Templated reports whether the route pattern has parameters.
func (r *Route) Templated() bool {
	return r.path.Type() == "parameter"
}

// Match is the result of a successful resolution.
type Match struct {
	Route  *Route
	Params map[string]string

	// UpstreamPath is the route's upstream path with parameters substituted.
	UpstreamPath string
}

// Table maps (method, path) pairs to routes. It is safe for concurrent use
// because it is never modified after New returns.
type Table struct {
	routes    []*Route
	byName    map[string]*Route
	exact     map[string][]*Route
	templated []*Route
}

// New builds a table from routes. It rejects duplicate names, missing base
// URLs and any two routes that could both match the same request with the
// same precedence.
func New(routes []Route) (*Table, error) {
	t := &Table{
		routes: make([]*Route, 0, len(routes)),
		byName: make(map[string]*Route, len(routes)),
		exact:  make(map[string][]*Route),
	}

	for i := range routes {
		route := routes[i]
		if err := t.add(&route); err != nil {
			return nil, err
		}
	}

	// Stable so that equal priorities keep configuration order.
	sort.SliceStable(t.routes, func(i, j int) bool {
		return t.routes[i].priority > t.routes[j].priority
	})

	return t, nil
}

// NewFromConfig builds a table from the gateway configuration.
func NewFromConfig(spec *config.GatewaySpec) (*Table, error) {
	routes := make([]Route, 0, len(spec.Routes))

	for i := range spec.Routes {
		rc := &spec.Routes[i]
		field := fmt.Sprintf("spec.routes[%d]", i)

		svc, ok := spec.Service(rc.Service)
		if !ok {
			return nil, util.NewConfigError(field+".service", fmt.Sprintf("unknown service: %s", rc.Service))
		}
		base, err := util.ParseBaseURL(svc.URL)
		if err != nil {
			return nil, &util.ConfigError{
				Field:   field + ".service",
				Message: fmt.Sprintf("base URL for service %q is invalid", svc.Name),
				Cause:   err,
			}
		}

		timeout := rc.Timeout.Duration()
		if timeout == 0 {
			timeout = svc.Timeout.Duration()
		}

		routes = append(routes, Route{
			Name:         rc.Name,
			Methods:      rc.Methods,
			Pattern:      rc.Path,
			Params:       rc.Params,
			Service:      svc.Name,
			BaseURL:      base,
			UpstreamPath: rc.UpstreamPath,
			Timeout:      timeout,
			Cache: CachePolicy{
				Enabled: rc.Cache.Enabled,
				TTL:     rc.Cache.TTL.Duration(),
			},
		})
	}

	return New(routes)
}

// add compiles a route and checks it against the routes already added.
func (t *Table) add(route *Route) error {
	field := "route " + route.Name

	if route.Name == "" {
		return util.NewConfigError("route", "name is required")
	}
	if _, exists := t.byName[route.Name]; exists {
		return util.NewConfigError(field, "duplicate route name")
	}
	if route.BaseURL == nil || route.BaseURL.Host == "" {
		return util.NewConfigError(field, fmt.Sprintf("base URL for service %q is not set", route.Service))
	}
	if !strings.HasPrefix(route.Pattern, "/") {
		return util.NewConfigError(field, "pattern must start with /")
	}
	if len(route.Methods) == 0 {
		return util.NewConfigError(field, "at least one method is required")
	}
	if route.UpstreamPath == "" {
		route.UpstreamPath = route.Pattern
	}
	if route.Cache.Enabled && route.Cache.TTL <= 0 {
		return util.NewConfigError(field, "cache ttl must be positive")
	}

	route.methods = NewMethodMatcher(route.Methods)

	if !HasPathParameters(route.Pattern) {
		route.path = NewExactMatcher(route.Pattern)
		route.priority = priorityExactMatch

		key := route.path.Pattern()
		for _, other := range t.exact[key] {
			if route.methods.overlaps(other.methods) {
				return util.NewConfigError(field,
					fmt.Sprintf("ambiguous with route %s: same path %s", other.Name, key))
			}
		}
		t.exact[key] = append(t.exact[key], route)
	} else {
		pm := NewParameterMatcher(route.Pattern, route.Params)
		route.path = pm
		route.priority = priorityParameterMatch + pm.literalSegments()*priorityLiteralSegment

		for _, other := range t.templated {
			if route.methods.overlaps(other.methods) && pm.overlaps(other.path.(*ParameterMatcher)) {
				return util.NewConfigError(field,
					fmt.Sprintf("ambiguous with route %s: %s overlaps %s", other.Name, route.Pattern, other.Pattern))
			}
		}
		t.templated = append(t.templated, route)
	}

	t.routes = append(t.routes, route)
	t.byName[route.Name] = route
	return nil
}

// Resolve finds the route for a method and path. Literal routes take
// precedence over templated ones. A path that matches only under another
// method is reported as not found.
func (t *Table) Resolve(method, path string) (*Match, error) {
	if m := t.resolve(method, path); m != nil {
		recordResolve(m.Route.Name)
		return m, nil
	}

	recordResolve("")
	return nil, util.NewRouteNotFoundError(method, path)
}

func (t *Table) resolve(method, path string) *Match {
	for _, route := range t.exact[normalizePath(path)] {
		if route.methods.Match(method) {
			return &Match{Route: route, UpstreamPath: route.UpstreamPath}
		}
	}

	for _, route := range t.templated {
		if !route.methods.Match(method) {
			continue
		}
		if ok, params := route.path.Match(path); ok {
			return &Match{
				Route:        route,
				Params:       params,
				UpstreamPath: expandPath(route.UpstreamPath, params),
			}
		}
	}

	return nil
}

// Routes returns the routes in precedence order.
func (t *Table) Routes() []*Route {
	out := make([]*Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Route returns the route with the given name.
func (t *Table) Route(name string) (*Route, bool) {
	r, ok := t.byName[name]
	return r, ok
}
