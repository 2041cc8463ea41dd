package middleware

import (
	"time"

	"github.com/routemq/routemq/core"
)

// MetricsCollector is the interface that metrics backends must implement.
// This keeps the middleware decoupled from any specific metrics library.
type MetricsCollector interface {
	// MessageProcessed records that a message was processed. topic is
	// the message's delivered topic, duration is processing time, and err
	// is nil on success.
	MessageProcessed(topic string, duration time.Duration, err error)
}

// Metrics returns middleware that reports processing duration and outcome
// to collector, labeled by the dispatched message's topic.
func Metrics(collector MetricsCollector) core.Middleware {
	return func(c *core.MessageContext, next core.Next) (any, error) {
		start := time.Now()
		result, err := next()
		collector.MessageProcessed(c.Topic, time.Since(start), err)
		return result, err
	}
}
