package router

import (
	"net/url"
	"strings"
)

// Route priority constants. Higher priority routes are matched first.
const (
	// priorityExactMatch is the base priority for literal paths.
	priorityExactMatch = 1000

	// priorityParameterMatch is the base priority for templated paths.
	priorityParameterMatch = 500

	// priorityLiteralSegment is the bonus per literal segment of a
	// templated path. It only orders the route listing; overlapping
	// templated routes are rejected when the table is built.
	priorityLiteralSegment = 10
)

// PathMatcher is the interface for path matching.
type PathMatcher interface {
	Match(path string) (bool, map[string]string)
	Type() string
	Pattern() string
}

// ExactMatcher matches exact paths.
type ExactMatcher struct {
	path string
}

// NewExactMatcher creates a new exact path matcher.
func NewExactMatcher(path string) *ExactMatcher {
	return &ExactMatcher{path: normalizePath(path)}
}

// Match checks if the path matches exactly.
func (m *ExactMatcher) Match(path string) (matched bool, params map[string]string) {
	return normalizePath(path) == m.path, nil
}

// Type returns the matcher type.
func (m *ExactMatcher) Type() string {
	return "exact"
}

// Pattern returns the pattern.
func (m *ExactMatcher) Pattern() string {
	return m.path
}

// ParameterMatcher matches templated paths like /forecast/:type or
// /forecast/{type}. A parameter may be restricted to a closed set of values.
type ParameterMatcher struct {
	pattern  string
	segments []segment
}

type segment struct {
	value     string
	isParam   bool
	paramName string

	// allowed is nil when any non-empty value is accepted.
	allowed map[string]bool
}

// accepts reports whether the segment matches a concrete path segment.
func (s segment) accepts(value string) bool {
	if !s.isParam {
		return s.value == value
	}
	if value == "" {
		return false
	}
	return s.allowed == nil || s.allowed[value]
}

// NewParameterMatcher creates a new parameter path matcher. allowed maps
// parameter names to their permitted values.
func NewParameterMatcher(pattern string, allowed map[string][]string) *ParameterMatcher {
	segments := parsePathPattern(pattern)

	for i := range segments {
		values, ok := allowed[segments[i].paramName]
		if !segments[i].isParam || !ok {
			continue
		}
		set := make(map[string]bool, len(values))
		for _, v := range values {
			set[v] = true
		}
		segments[i].allowed = set
	}

	return &ParameterMatcher{
		pattern:  pattern,
		segments: segments,
	}
}

// parsePathPattern parses a path pattern into segments.
func parsePathPattern(pattern string) []segment {
	parts := splitPath(pattern)
	segments := make([]segment, 0, len(parts))

	for _, part := range parts {
		if name, ok := paramName(part); ok {
			segments = append(segments, segment{
				value:     part,
				isParam:   true,
				paramName: name,
			})
			continue
		}
		segments = append(segments, segment{value: part})
	}

	return segments
}

// Match checks if the path matches the pattern and extracts parameters.
func (m *ParameterMatcher) Match(path string) (matched bool, params map[string]string) {
	parts := splitPath(path)
	if len(parts) != len(m.segments) {
		return false, nil
	}

	for i, seg := range m.segments {
		if !seg.accepts(parts[i]) {
			return false, nil
		}
		if seg.isParam {
			if params == nil {
				params = make(map[string]string)
			}
			params[seg.paramName] = parts[i]
		}
	}

	return true, params
}

// Type returns the matcher type.
func (m *ParameterMatcher) Type() string {
	return "parameter"
}

// Pattern returns the pattern.
func (m *ParameterMatcher) Pattern() string {
	return m.pattern
}

// literalSegments counts the non-parameter segments.
func (m *ParameterMatcher) literalSegments() int {
	n := 0
	for _, seg := range m.segments {
		if !seg.isParam {
			n++
		}
	}
	return n
}

// overlaps reports whether some concrete path is matched by both m and other.
func (m *ParameterMatcher) overlaps(other *ParameterMatcher) bool {
	if len(m.segments) != len(other.segments) {
		return false
	}
	for i := range m.segments {
		if !segmentsOverlap(m.segments[i], other.segments[i]) {
			return false
		}
	}
	return true
}

func segmentsOverlap(a, b segment) bool {
	switch {
	case !a.isParam && !b.isParam:
		return a.value == b.value
	case !a.isParam:
		return b.accepts(a.value)
	case !b.isParam:
		return a.accepts(b.value)
	case a.allowed == nil || b.allowed == nil:
		return true
	}
	for v := range a.allowed {
		if b.allowed[v] {
			return true
		}
	}
	return false
}

// MethodMatcher matches HTTP methods.
type MethodMatcher struct {
	methods map[string]bool
}

// NewMethodMatcher creates a new method matcher.
func NewMethodMatcher(methods []string) *MethodMatcher {
	m := &MethodMatcher{
		methods: make(map[string]bool),
	}

	for _, method := range methods {
		m.methods[strings.ToUpper(method)] = true
	}

	return m
}

// Match checks if the method matches.
func (m *MethodMatcher) Match(method string) bool {
	if m.methods["*"] {
		return true
	}
	return m.methods[strings.ToUpper(method)]
}

// overlaps reports whether both matchers accept a common method.
func (m *MethodMatcher) overlaps(other *MethodMatcher) bool {
	if m.methods["*"] || other.methods["*"] {
		return true
	}
	for method := range m.methods {
		if other.methods[method] {
			return true
		}
	}
	return false
}

// expandPath substitutes parameters into a ":name" or "{name}" template.
// Values are path-escaped.
func expandPath(template string, params map[string]string) string {
	parts := splitPath(template)
	if len(parts) == 0 {
		return "/"
	}

	var sb strings.Builder
	for _, part := range parts {
		sb.WriteByte('/')
		if name, ok := paramName(part); ok {
			sb.WriteString(url.PathEscape(params[name]))
			continue
		}
		sb.WriteString(part)
	}
	if strings.HasSuffix(template, "/") && len(template) > 1 {
		sb.WriteByte('/')
	}
	return sb.String()
}

// HasPathParameters checks if a path contains templated segments.
func HasPathParameters(path string) bool {
	for _, part := range splitPath(path) {
		if _, ok := paramName(part); ok {
			return true
		}
	}
	return false
}

func paramName(part string) (string, bool) {
	switch {
	case len(part) > 1 && part[0] == ':':
		return part[1:], true
	case len(part) > 2 && strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}"):
		return part[1 : len(part)-1], true
	default:
		return "", false
	}
}

// normalizePath drops a trailing slash so /probe and /probe/ resolve alike.
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		return strings.TrimRight(path, "/")
	}
	return path
}

func splitPath(path string) []string {
	trimmed := strings.Trim(normalizePath(path), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
