package core

import (
	"context"
	"strings"
	"sync"
)

// RouteOption configures a single Register call. Options compose with any
// enclosing RouteGroup's prefix and middleware.
type RouteOption func(*routeOptions)

type routeOptions struct {
	qos         byte
	middleware  []Middleware
	shared      bool
	workerCount int
}

func defaultRouteOptions() routeOptions {
	return routeOptions{qos: 0, workerCount: 1}
}

// WithQoS sets the MQTT QoS level (0, 1, or 2) for a route.
func WithQoS(qos byte) RouteOption {
	return func(o *routeOptions) { o.qos = qos }
}

// WithMiddleware appends route-local middleware, applied after any
// enclosing group's middleware.
func WithMiddleware(mw ...Middleware) RouteOption {
	return func(o *routeOptions) { o.middleware = append(o.middleware, mw...) }
}

// WithShared marks the route for shared-subscription dispatch by the
// worker supervisor rather than the main session.
func WithShared(shared bool) RouteOption {
	return func(o *routeOptions) { o.shared = shared }
}

// WithWorkerCount sets how many worker processes this shared route
// contributes to the supervisor's pool. Values less than 1 are clamped to
// 1 (spec invariant (a)); ignored when the route is not shared.
func WithWorkerCount(n int) RouteOption {
	return func(o *routeOptions) { o.workerCount = n }
}

// RouteTable is an ordered collection of Routes. Lookup is first-match by
// registration order. A table is built once at startup by the Loader and
// is read-only afterward; Register remains safe to call concurrently
// during that build phase.
type RouteTable struct {
	mu     sync.RWMutex
	routes []*Route
}

// NewRouteTable returns an empty RouteTable.
func NewRouteTable() *RouteTable {
	return &RouteTable{}
}

// Register compiles pattern and appends a new Route to the table.
func (t *RouteTable) Register(pattern string, handler Handler, opts ...RouteOption) (*Route, error) {
	return t.registerComposed("", nil, pattern, handler, opts)
}

func (t *RouteTable) registerComposed(prefix string, groupMW []Middleware, pattern string, handler Handler, opts []RouteOption) (*Route, error) {
	o := defaultRouteOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if o.workerCount < 1 {
		o.workerCount = 1
	}

	composed := joinTopic(prefix, pattern)
	compiled, err := Compile(composed)
	if err != nil {
		return nil, err
	}

	mw := make([]Middleware, 0, len(groupMW)+len(o.middleware))
	mw = append(mw, groupMW...)
	mw = append(mw, o.middleware...)

	route := &Route{
		Raw:         pattern,
		Pattern:     compiled,
		Handler:     handler,
		QoS:         o.qos,
		Middleware:  mw,
		Shared:      o.shared,
		WorkerCount: o.workerCount,
	}

	t.mu.Lock()
	t.routes = append(t.routes, route)
	t.mu.Unlock()

	return route, nil
}

// Routes returns a snapshot of the registered routes in registration
// order.
func (t *RouteTable) Routes() []*Route {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// TotalWorkerCount returns the sum of WorkerCount over routes with
// Shared = true. Used by the Worker Supervisor to size its process pool.
func (t *RouteTable) TotalWorkerCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := 0
	for _, r := range t.routes {
		if r.Shared {
			total += r.WorkerCount
		}
	}
	return total
}

// SharedRoutes returns the subset of routes with Shared = true, in
// registration order.
func (t *RouteTable) SharedRoutes() []*Route {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Route
	for _, r := range t.routes {
		if r.Shared {
			out = append(out, r)
		}
	}
	return out
}

// NonSharedRoutes returns the subset of routes with Shared = false, in
// registration order.
func (t *RouteTable) NonSharedRoutes() []*Route {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Route
	for _, r := range t.routes {
		if !r.Shared {
			out = append(out, r)
		}
	}
	return out
}

// Dispatch matches topic against the table's routes in registration
// order and runs the first match's middleware pipeline to completion.
// Returns ErrNoRoute when nothing matches; that is recoverable and is not
// fatal to a session.
func (t *RouteTable) Dispatch(ctx context.Context, topic string, raw []byte, client Client) (any, error) {
	route, params := t.match(topic)
	if route == nil {
		return nil, ErrNoRoute
	}
	mc := NewMessageContext(ctx, topic, raw, params, client, route)
	return Execute(mc, route.Middleware, route.Handler)
}

func (t *RouteTable) match(topic string) (*Route, map[string]string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, r := range t.routes {
		if params, ok := r.Pattern.Match(topic); ok {
			return r, params
		}
	}
	return nil, nil
}

// Group returns a RouteGroup scoped to this table with the given prefix
// and middleware. Registrations made through the group concatenate the
// prefix with "/" to the child pattern and prepend the group's middleware
// to the child's.
func (t *RouteTable) Group(prefix string, mw ...Middleware) *RouteGroup {
	return &RouteGroup{
		table:      t,
		prefix:     prefix,
		middleware: mw,
	}
}

// RouteGroup is a scoped accumulator that applies a composed prefix and
// middleware stack to every registration made through it, including
// through nested groups. Composition is left-to-right: the outermost
// group's prefix and middleware come first.
type RouteGroup struct {
	table      *RouteTable
	prefix     string
	middleware []Middleware
}

// Register registers pattern (relative to the group's prefix) with
// handler, composing this group's prefix and middleware with opts.
func (g *RouteGroup) Register(pattern string, handler Handler, opts ...RouteOption) (*Route, error) {
	return g.table.registerComposed(g.prefix, g.middleware, pattern, handler, opts)
}

// Group returns a nested group. The child's effective prefix is
// parent-prefix + "/" + childPrefix and its effective middleware is the
// parent's middleware followed by the child's own.
func (g *RouteGroup) Group(prefix string, mw ...Middleware) *RouteGroup {
	combinedMW := make([]Middleware, 0, len(g.middleware)+len(mw))
	combinedMW = append(combinedMW, g.middleware...)
	combinedMW = append(combinedMW, mw...)
	return &RouteGroup{
		table:      g.table,
		prefix:     joinTopic(g.prefix, prefix),
		middleware: combinedMW,
	}
}

// joinTopic concatenates a group prefix and a child pattern with "/". An
// empty prefix concatenates to nothing, and an empty child pattern
// resolves to just the prefix.
func joinTopic(prefix, pattern string) string {
	prefix = strings.Trim(prefix, "/")
	pattern = strings.Trim(pattern, "/")
	switch {
	case prefix == "":
		return pattern
	case pattern == "":
		return prefix
	default:
		return prefix + "/" + pattern
	}
}
