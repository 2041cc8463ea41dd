package broker

import (
	"context"

	"github.com/routemq/routemq/core"
)

// Message is the broker-facing inbound message abstraction.
type Message interface {
	Topic() string
	Payload() []byte
	QoS() byte
	Retained() bool
}

// Handler receives one inbound message for a subscription.
type Handler func(msg Message)

// Broker is the contract a wire client must satisfy: connect to a broker,
// publish, subscribe with a handler, and close cleanly. Implementations
// are provided by plugins (see broker/paho) and by internal/mock for
// tests. Reconnection, keepalive, and TLS are the plugin's concern — the
// framework assumes they are handled underneath Connect (spec §1).
type Broker interface {
	// Connect opens the broker session using a unique client identifier.
	Connect(ctx context.Context) error

	// Publish sends payload to topic at the given QoS.
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error

	// Subscribe registers handler for filter at qos. filter may be a
	// plain MQTT filter or a "$share/<group>/<filter>" shared
	// subscription.
	Subscribe(ctx context.Context, filter string, qos byte, handler Handler) error

	// Unsubscribe removes a previously registered subscription.
	Unsubscribe(ctx context.Context, filter string) error

	// Close disconnects from the broker.
	Close() error
}

// AsClient adapts a Broker to core.Client so MessageContext.Republish and
// handler-initiated publishes can use it directly.
type AsClient struct {
	Broker Broker
}

func (a AsClient) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	return a.Broker.Publish(ctx, topic, qos, retained, payload)
}

var _ core.Client = AsClient{}
