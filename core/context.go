package core

import (
	"context"
	"encoding/json"
	"sync"
)

// Client is the publish-side handle a MessageContext carries so handlers
// and middleware can respond without reaching into broker internals.
type Client interface {
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error
}

// MessageContext is the value threaded through the middleware pipeline for
// one inbound message (spec §3). Topic, Payload, Params, Client and Route
// are always present; middleware may attach further values through
// Set/Get, and downstream consumers must tolerate those extension keys
// being absent.
type MessageContext struct {
	ctx context.Context

	// Topic is the topic as delivered, with any shared-subscription
	// prefix already stripped.
	Topic string

	// Payload is the decoded JSON value, or raw bytes when JSON decoding
	// of the wire payload failed.
	Payload any

	// Raw is the undecoded wire payload, always present regardless of
	// whether Payload decoded successfully.
	Raw []byte

	// Params holds the named captures extracted by the matched route's
	// pattern. A placeholder value never contains "/".
	Params map[string]string

	// Client publishes responses, dead-letters, or republished messages.
	Client Client

	// Route is the route that matched this message.
	Route *Route

	mu    sync.RWMutex
	extra map[string]any
}

// NewMessageContext builds a MessageContext for one inbound message,
// decoding payload as JSON when possible and falling back to raw bytes.
func NewMessageContext(ctx context.Context, topic string, raw []byte, params map[string]string, client Client, route *Route) *MessageContext {
	mc := &MessageContext{
		ctx:    ctx,
		Topic:  topic,
		Raw:    raw,
		Params: params,
		Client: client,
		Route:  route,
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		mc.Payload = decoded
	} else {
		mc.Payload = raw
	}
	return mc
}

// Context returns the underlying context.Context carried for cancellation
// and deadlines.
func (c *MessageContext) Context() context.Context { return c.ctx }

// Set stores a middleware-added extension value.
func (c *MessageContext) Set(key string, val any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.extra == nil {
		c.extra = make(map[string]any)
	}
	c.extra[key] = val
}

// Get retrieves a middleware-added extension value.
func (c *MessageContext) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.extra[key]
	return val, ok
}

// Bind decodes Raw as JSON into v, regardless of whether Payload already
// decoded successfully.
func (c *MessageContext) Bind(v any) error {
	return json.Unmarshal(c.Raw, v)
}

// Republish publishes Raw to a different topic through the same client.
// Useful for dead-letter routing from within a handler that rejects a
// malformed or unprocessable message.
func (c *MessageContext) Republish(topic string, qos byte) error {
	if c.Client == nil {
		return ErrNoBroker
	}
	return c.Client.Publish(c.ctx, topic, qos, false, c.Raw)
}
