// Package session implements the Main MQTT Session (spec §4.5): the
// single broker connection that subscribes to every non-shared route and
// dispatches inbound messages through the Route Table.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/routemq/routemq/broker"
	"github.com/routemq/routemq/core"
	"github.com/routemq/routemq/logging"
)

// Session owns one broker connection and the table of non-shared routes
// it subscribes to. Routes with Shared = true are left for worker
// processes (see package worker) to subscribe to.
type Session struct {
	broker broker.Broker
	table  *core.RouteTable
	log    *logging.Logger

	mu      sync.Mutex
	started bool
}

// New builds a Session bound to b and table.
func New(b broker.Broker, table *core.RouteTable, log *logging.Logger) *Session {
	if log == nil {
		log = logging.Nop()
	}
	return &Session{broker: b, table: table, log: log}
}

// Start connects to the broker, subscribes to every non-shared route, and
// blocks until ctx is cancelled. It returns ErrAlreadyStarted if called
// twice, and ErrNoBroker if constructed without a broker.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.broker == nil {
		s.mu.Unlock()
		return core.ErrNoBroker
	}
	if s.started {
		s.mu.Unlock()
		return core.ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	if err := s.broker.Connect(ctx); err != nil {
		return fmt.Errorf("routemq/session: connect: %w", err)
	}

	client := broker.AsClient{Broker: s.broker}

	for _, route := range s.table.NonSharedRoutes() {
		route := route
		err := s.broker.Subscribe(ctx, route.Filter(), route.QoS, func(msg broker.Message) {
			s.handle(ctx, msg, client)
		})
		if err != nil {
			return fmt.Errorf("routemq/session: subscribe %q: %w", route.Filter(), err)
		}
	}

	<-ctx.Done()
	return s.broker.Close()
}

// handle strips any shared-subscription prefix (defensive — non-shared
// routes should never receive one), dispatches through the route table,
// and logs HandlerFailure or NoRoute without tearing down the session.
func (s *Session) handle(ctx context.Context, msg broker.Message, client core.Client) {
	topic := stripSharePrefix(msg.Topic())

	result, err := s.table.Dispatch(ctx, topic, msg.Payload(), client)
	if err != nil {
		if errors.Is(err, core.ErrNoRoute) {
			s.log.Warn("no route matched", "topic", topic)
			return
		}
		s.log.Error("handler failed", "topic", topic, "err", &core.HandlerFailure{Topic: topic, Err: err})
		return
	}
	_ = result
}

// stripSharePrefix removes a leading "$share/<group>/" from topic, should
// one ever arrive on the main session's connection.
func stripSharePrefix(topic string) string {
	if !strings.HasPrefix(topic, "$share/") {
		return topic
	}
	parts := strings.SplitN(topic, "/", 3)
	if len(parts) == 3 {
		return parts[2]
	}
	return topic
}
