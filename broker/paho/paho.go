// Package paho implements broker.Broker on top of
// github.com/eclipse/paho.mqtt.golang, the MQTT 3.1.1 client used by the
// main session (spec §4.5) and by each worker process (spec §4.7).
//
// Reconnection, keepalive, and TLS negotiation are left to the underlying
// client library per spec §1 — this plugin only configures auto-reconnect
// and exposes the Broker interface's operations on top of it.
package paho

import (
	"context"
	"fmt"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/routemq/routemq/broker"
)

func init() {
	broker.Register("paho", func(cfg broker.Config) (broker.Broker, error) {
		return New(cfg)
	})
}

// Broker implements broker.Broker over one paho MQTT client connection.
type Broker struct {
	client MQTT.Client
	cfg    broker.Config

	mu     sync.Mutex
	closed bool
}

// New builds a Broker from cfg but does not connect yet; call Connect.
func New(cfg broker.Config) (*Broker, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("routemq/paho: broker host is required")
	}

	clientID := cfg.ClientIDPrefix
	if clientID == "" {
		clientID = "routemq"
	}
	clientID = clientID + "-" + uuid.New().String()

	opts := MQTT.NewClientOptions()
	opts.AddBroker(cfg.URL())
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)

	return &Broker{client: MQTT.NewClient(opts), cfg: cfg}, nil
}

// Connect opens the MQTT session.
func (b *Broker) Connect(ctx context.Context) error {
	token := b.client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return fmt.Errorf("routemq/paho: connect to %s: timed out", b.cfg.URL())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("routemq/paho: connect to %s: %w", b.cfg.URL(), err)
	}
	return nil
}

// Publish sends payload to topic at qos.
func (b *Broker) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("routemq/paho: publish to %q: broker is closed", topic)
	}
	b.mu.Unlock()

	token := b.client.Publish(topic, qos, retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("routemq/paho: publish to %q: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for filter (which may carry a
// "$share/<group>/" prefix) at qos.
func (b *Broker) Subscribe(ctx context.Context, filter string, qos byte, handler broker.Handler) error {
	token := b.client.Subscribe(filter, qos, func(_ MQTT.Client, m MQTT.Message) {
		handler(&message{m: m})
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("routemq/paho: subscribe %q: %w", filter, err)
	}
	return nil
}

// Unsubscribe removes a previously registered subscription.
func (b *Broker) Unsubscribe(ctx context.Context, filter string) error {
	token := b.client.Unsubscribe(filter)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("routemq/paho: unsubscribe %q: %w", filter, err)
	}
	return nil
}

// Close disconnects from the broker, waiting briefly for in-flight work.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.client.Disconnect(250)
	return nil
}

// message adapts a paho MQTT.Message to broker.Message.
type message struct {
	m MQTT.Message
}

func (msg *message) Topic() string   { return msg.m.Topic() }
func (msg *message) Payload() []byte { return msg.m.Payload() }
func (msg *message) QoS() byte       { return msg.m.Qos() }
func (msg *message) Retained() bool  { return msg.m.Retained() }

var _ broker.Broker = (*Broker)(nil)
