// Package mock provides test doubles for broker.Broker and broker.Message,
// used by the session and worker test suites instead of a real MQTT
// connection.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/routemq/routemq/broker"
)

// Broker is a test double for broker.Broker. Subscribe registers a
// handler immediately (it does not block, unlike a real subscription
// loop); Deliver simulates an incoming publish to any handler whose
// filter matches.
type Broker struct {
	mu           sync.Mutex
	published    []PublishedMessage
	handlers     map[string]broker.Handler
	SubscribeErr error
	PublishErr   error
	closed       bool
}

// PublishedMessage records a message sent through Publish.
type PublishedMessage struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewBroker() *Broker {
	return &Broker{handlers: make(map[string]broker.Handler)}
}

func (b *Broker) Connect(ctx context.Context) error { return nil }

func (b *Broker) Publish(_ context.Context, topic string, qos byte, retained bool, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PublishErr != nil {
		return b.PublishErr
	}
	b.published = append(b.published, PublishedMessage{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, filter string, qos byte, handler broker.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SubscribeErr != nil {
		return b.SubscribeErr
	}
	b.handlers[filter] = handler
	return nil
}

func (b *Broker) Unsubscribe(ctx context.Context, filter string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, filter)
	return nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Deliver simulates an incoming message on topic for whichever registered
// filter matches it (exact match, or a "$share/<group>/<filter>" whose
// filter matches after stripping the prefix).
func (b *Broker) Deliver(topic string, msg broker.Message) bool {
	b.mu.Lock()
	var h broker.Handler
	found := false
	for filter, handler := range b.handlers {
		if filterMatches(filter, topic) {
			h = handler
			found = true
			break
		}
	}
	b.mu.Unlock()
	if !found {
		return false
	}
	h(msg)
	return true
}

func filterMatches(filter, topic string) bool {
	if strings.HasPrefix(filter, "$share/") {
		parts := strings.SplitN(filter, "/", 3)
		if len(parts) == 3 {
			filter = parts[2]
		}
	}

	filterSegs := strings.Split(filter, "/")
	topicSegs := strings.Split(topic, "/")
	if len(filterSegs) != len(topicSegs) {
		return false
	}
	for i, seg := range filterSegs {
		if seg == "+" {
			continue
		}
		if seg != topicSegs[i] {
			return false
		}
	}
	return true
}

// Published returns all messages sent via Publish.
func (b *Broker) Published() []PublishedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PublishedMessage, len(b.published))
	copy(out, b.published)
	return out
}

// IsClosed reports whether Close was called.
func (b *Broker) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

var _ broker.Broker = (*Broker)(nil)
