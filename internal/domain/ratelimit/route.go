package ratelimit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRoute is returned when a route definition cannot be used.
var ErrInvalidRoute = errors.New("invalid route")

// Route maps a class of requests to a preset.
type Route struct {
	Name string

	// PathPrefix matches the request path by prefix. A trailing "*" is
	// accepted and ignored, so "/api/*" and "/api/" are equivalent.
	// Empty matches every path.
	PathPrefix string

	// Methods restricts the route to the listed HTTP methods. Empty matches all.
	Methods []string

	// Preset is the endpoint class applied to matching requests.
	Preset string

	// Condition is an optional boolean expression over RequestAttributes.
	Condition string
}

// RequestAttributes describes a request for route classification.
type RequestAttributes struct {
	Method      string
	Path        string
	Host        string
	ClientID    string
	Headers     map[string]string
	RequestTime time.Time
}

// Condition is a compiled route condition.
type Condition interface {
	Matches(attrs RequestAttributes) (bool, error)
}

// ConditionCompiler compiles route condition expressions.
type ConditionCompiler interface {
	CompileCondition(expr string) (Condition, error)
}

type compiledRoute struct {
	Route
	prefix    string
	methods   map[string]struct{}
	condition Condition
}

// RouteTable classifies requests into endpoint classes. Routes are tried in
// order and the first match wins; unmatched requests get the default preset.
// A RouteTable is immutable after construction.
type RouteTable struct {
	routes        []compiledRoute
	defaultPreset string
}

// NewRouteTable validates routes against registry and compiles their
// conditions. compiler may be nil when no route has a condition.
func NewRouteTable(routes []Route, defaultPreset string, registry *PresetRegistry, compiler ConditionCompiler) (*RouteTable, error) {
	defaultPreset = normalizePresetName(defaultPreset)
	if !registry.Has(defaultPreset) {
		return nil, fmt.Errorf("default preset: %w: %q", ErrUnknownPreset, defaultPreset)
	}

	table := &RouteTable{
		routes:        make([]compiledRoute, 0, len(routes)),
		defaultPreset: defaultPreset,
	}
	for i, r := range routes {
		cr, err := compileRoute(r, registry, compiler)
		if err != nil {
			name := r.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return nil, fmt.Errorf("route %s: %w", name, err)
		}
		table.routes = append(table.routes, cr)
	}
	return table, nil
}

func compileRoute(r Route, registry *PresetRegistry, compiler ConditionCompiler) (compiledRoute, error) {
	r.Preset = normalizePresetName(r.Preset)
	if !registry.Has(r.Preset) {
		return compiledRoute{}, fmt.Errorf("%w: %q", ErrUnknownPreset, r.Preset)
	}

	cr := compiledRoute{
		Route:  r,
		prefix: strings.TrimSuffix(r.PathPrefix, "*"),
	}
	if len(r.Methods) > 0 {
		cr.methods = make(map[string]struct{}, len(r.Methods))
		for _, m := range r.Methods {
			cr.methods[strings.ToUpper(strings.TrimSpace(m))] = struct{}{}
		}
	}
	if strings.TrimSpace(r.Condition) != "" {
		if compiler == nil {
			return compiledRoute{}, fmt.Errorf("%w: condition set but no compiler available", ErrInvalidRoute)
		}
		cond, err := compiler.CompileCondition(r.Condition)
		if err != nil {
			return compiledRoute{}, fmt.Errorf("%w: %w", ErrInvalidRoute, err)
		}
		cr.condition = cond
	}
	return cr, nil
}

// Classify returns the preset for attrs and the name of the matching route.
// The route name is empty when the default preset applied. Routes whose
// condition fails to evaluate are skipped and the error is returned alongside
// the eventual classification.
func (t *RouteTable) Classify(attrs RequestAttributes) (preset, route string, err error) {
	var errs []error
	for _, r := range t.routes {
		if !strings.HasPrefix(attrs.Path, r.prefix) {
			continue
		}
		if r.methods != nil {
			if _, ok := r.methods[strings.ToUpper(attrs.Method)]; !ok {
				continue
			}
		}
		if r.condition != nil {
			ok, cerr := r.condition.Matches(attrs)
			if cerr != nil {
				errs = append(errs, fmt.Errorf("route %s: %w", r.Name, cerr))
				continue
			}
			if !ok {
				continue
			}
		}
		return r.Preset, r.Name, errors.Join(errs...)
	}
	return t.defaultPreset, "", errors.Join(errs...)
}

// DefaultPreset returns the preset used for unmatched requests.
func (t *RouteTable) DefaultPreset() string {
	return t.defaultPreset
}

// Len returns the number of routes.
func (t *RouteTable) Len() int {
	return len(t.routes)
}

// Routes returns a copy of the route definitions in match order.
func (t *RouteTable) Routes() []Route {
	out := make([]Route, len(t.routes))
	for i, r := range t.routes {
		out[i] = r.Route
		out[i].Methods = append([]string(nil), r.Route.Methods...)
	}
	return out
}
