package middleware

import (
	"time"

	"github.com/routemq/routemq/core"
	"github.com/routemq/routemq/logging"
)

// Logging returns middleware that logs message processing duration and
// errors through the given logger.
func Logging(log *logging.Logger) core.Middleware {
	return func(c *core.MessageContext, next core.Next) (any, error) {
		start := time.Now()
		result, err := next()
		elapsed := time.Since(start)

		if err != nil {
			log.Error("message handling failed", "topic", c.Topic, "elapsed", elapsed, "err", err)
		} else {
			log.Info("message handled", "topic", c.Topic, "elapsed", elapsed)
		}
		return result, err
	}
}
