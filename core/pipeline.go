package core

// Execute drives the middleware pipeline around terminal for one message:
// mws[0](ctx, next -> mws[1](ctx, next -> ... terminal(ctx))). Composition
// is left-to-right — mws[0] is outermost and runs first and last.
//
// Each middleware's next is guarded so that invoking it a second time
// returns ErrDoubleAdvance instead of re-running downstream middleware or
// the handler twice.
func Execute(c *MessageContext, mws []Middleware, terminal Handler) (any, error) {
	chain := func() (any, error) { return terminal(c) }
	for i := len(mws) - 1; i >= 0; i-- {
		chain = onceGuarded(mws[i], c, chain)
	}
	return chain()
}

// onceGuarded binds one middleware to the continuation representing
// everything downstream of it, enforcing the at-most-once next contract.
func onceGuarded(mw Middleware, c *MessageContext, downstream Next) Next {
	return func() (any, error) {
		called := false
		guarded := func() (any, error) {
			if called {
				return nil, ErrDoubleAdvance
			}
			called = true
			return downstream()
		}
		return mw(c, guarded)
	}
}
