package core

import "errors"

// Sentinel errors for the kinds named in the framework's error design (see
// spec §7). They are matched with errors.Is by callers that need to
// distinguish recoverable dispatch failures from programmer errors.
var (
	// ErrInvalidPattern is returned by Compile when a topic pattern is
	// malformed: an empty pattern, an unbalanced "{"/"}", or a duplicate
	// placeholder name.
	ErrInvalidPattern = errors.New("routemq: invalid pattern")

	// ErrNoRoute is returned by RouteTable.Dispatch when no registered
	// route matches the topic. Recoverable — the session logs it and
	// drops the message.
	ErrNoRoute = errors.New("routemq: no route matches topic")

	// ErrDoubleAdvance is returned when a middleware invokes next more
	// than once for the same message. Programmer error.
	ErrDoubleAdvance = errors.New("routemq: next invoked more than once")

	// ErrNoBroker is returned when a session or MessageContext operation
	// (Session.Start, MessageContext.Republish) needs a broker client and
	// none was supplied.
	ErrNoBroker = errors.New("routemq: broker is nil")

	// ErrAlreadyStarted is returned when Start is called on a session
	// that is already running.
	ErrAlreadyStarted = errors.New("routemq: session already started")
)

// HandlerFailure wraps any error surfaced out of a route's middleware
// pipeline during message dispatch. The session logs it and continues.
type HandlerFailure struct {
	Topic string
	Err   error
}

func (e *HandlerFailure) Error() string {
	return "routemq: handler failed for topic " + e.Topic + ": " + e.Err.Error()
}

func (e *HandlerFailure) Unwrap() error { return e.Err }
