package core

// Handler is a terminal route handler. It receives the MessageContext and
// returns an arbitrary result (surfaced to Dispatch's caller for
// observability/testing) plus an error.
type Handler func(c *MessageContext) (any, error)

// Next advances the middleware pipeline to the next middleware, or to the
// terminal handler once the stack is exhausted. It returns the result
// produced downstream. Calling Next more than once per message yields
// ErrDoubleAdvance.
type Next func() (any, error)

// Middleware wraps a Handler with cross-cutting behavior. It may inspect
// or mutate the context before calling next, inspect or transform next's
// result, decline to call next at all (early termination — its own return
// value becomes the pipeline's result), or propagate an error from next
// or from itself.
type Middleware func(c *MessageContext, next Next) (any, error)

// Route is an immutable binding of a compiled topic pattern to a handler,
// plus delivery options (spec §3). Routes are built once by RouteTable and
// RouteGroup and never mutated afterward.
type Route struct {
	// Raw is the route-local pattern string as passed to Register,
	// before any enclosing group prefix was applied.
	Raw string

	// Pattern is the fully composed (prefix + local) compiled pattern
	// used for matching and for deriving the subscription filter.
	Pattern *Pattern

	// Handler is the terminal handler invoked at the end of the
	// middleware chain.
	Handler Handler

	// QoS is the MQTT quality-of-service level for this route's
	// subscription, 0, 1, or 2.
	QoS byte

	// Middleware is the fully composed middleware stack: enclosing
	// group middleware (outermost first) followed by route-local
	// middleware.
	Middleware []Middleware

	// Shared marks this route for the worker-supervisor path: it is
	// subscribed to with the MQTT 5 shared-subscription convention by
	// worker processes instead of the main session.
	Shared bool

	// WorkerCount is the number of worker processes this route
	// contributes to the supervisor's pool when Shared is true. Ignored
	// otherwise. Always >= 1.
	WorkerCount int
}

// Filter returns the broker-facing subscription filter for this route,
// e.g. "devices/+/status".
func (r *Route) Filter() string { return r.Pattern.Filter() }
