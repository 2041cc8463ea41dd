package middleware

import (
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/routemq/routemq/core"
)

// Recovery returns middleware that recovers from panics in downstream
// middleware or the terminal handler, logs the stack trace, and returns
// the panic as an error instead of crashing the session or worker.
func Recovery() core.Middleware {
	return func(c *core.MessageContext, next core.Next) (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				logrus.WithFields(logrus.Fields{"topic": c.Topic, "panic": r}).Errorf("panic recovered\n%s", buf[:n])
				err = fmt.Errorf("routemq: panic recovered: %v", r)
			}
		}()
		return next()
	}
}
