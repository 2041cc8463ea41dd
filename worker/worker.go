// Package worker implements the Worker Process (spec §4.7): the
// self-contained process a Worker Supervisor spawns for shared-subscription
// routes. Unlike the Main MQTT Session (package session), a Process never
// shares the parent's in-memory Route Table — it reloads its own copy from
// the loader, subscribes only to shared routes under the MQTT 5
// "$share/<group>/<filter>" convention, and dispatches independently.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/routemq/routemq/broker"
	"github.com/routemq/routemq/core"
	"github.com/routemq/routemq/loader"
	"github.com/routemq/routemq/logging"
)

// Loader produces a freshly built Route Table, the same shape
// loader.Load/Registry.Load returns. Accepting it as a function (rather
// than importing the Default registry directly) lets a worker's entry
// point choose which registry to reload from.
type Loader func() (*core.RouteTable, []loader.LoadResult)

// Process is one worker: its own broker connection, its own Route Table,
// subscribed only to the table's shared routes.
type Process struct {
	index      int
	brokerName string
	cfg        broker.Config
	load       Loader
	log        *logging.Logger

	mu sync.Mutex
	br broker.Broker
}

// New builds a Process. index distinguishes this worker's client ID from
// its siblings; brokerName selects the registered broker.Factory; cfg
// carries connection parameters (ShareGroup in particular — every worker
// in a pool must use the same group name to share the load).
func New(index int, brokerName string, cfg broker.Config, load Loader, log *logging.Logger) *Process {
	if log == nil {
		log = logging.Nop()
	}
	return &Process{index: index, brokerName: brokerName, cfg: cfg, load: load, log: log}
}

// Run reloads the Route Table, connects to the broker under a
// worker-specific client ID, subscribes to every shared route's
// "$share/<group>/<filter>", and blocks until ctx is cancelled, at which
// point it closes its broker session and returns.
func (p *Process) Run(ctx context.Context) error {
	table, results := p.load()
	for _, r := range results {
		if r.Err != nil {
			p.log.Warn("route registration failed", "name", r.Name, "err", r.Err)
		}
	}

	cfg := p.cfg
	cfg.ClientIDPrefix = fmt.Sprintf("%s-worker%d", nonEmpty(cfg.ClientIDPrefix, "routemq"), p.index)

	br, err := broker.Create(p.brokerName, cfg)
	if err != nil {
		return fmt.Errorf("routemq/worker: create broker: %w", err)
	}
	p.mu.Lock()
	p.br = br
	p.mu.Unlock()

	if err := br.Connect(ctx); err != nil {
		return fmt.Errorf("routemq/worker: connect: %w", err)
	}

	client := broker.AsClient{Broker: br}
	group := cfg.ShareGroup
	if group == "" {
		group = "routemq"
	}

	shared := table.SharedRoutes()
	if len(shared) == 0 {
		p.log.Warn("worker started with no shared routes to subscribe to", "index", p.index)
	}

	for _, route := range shared {
		filter := fmt.Sprintf("$share/%s/%s", group, route.Filter())
		err := br.Subscribe(ctx, filter, route.QoS, func(msg broker.Message) {
			p.handle(ctx, table, msg, client)
		})
		if err != nil {
			return fmt.Errorf("routemq/worker: subscribe %q: %w", filter, err)
		}
	}

	<-ctx.Done()
	return br.Close()
}

func (p *Process) handle(ctx context.Context, table *core.RouteTable, msg broker.Message, client core.Client) {
	topic := stripSharePrefix(msg.Topic())

	_, err := table.Dispatch(ctx, topic, msg.Payload(), client)
	if err != nil {
		if errors.Is(err, core.ErrNoRoute) {
			p.log.Warn("no route matched", "worker", p.index, "topic", topic)
			return
		}
		p.log.Error("handler failed", "worker", p.index, "topic", topic, "err", &core.HandlerFailure{Topic: topic, Err: err})
	}
}

// stripSharePrefix recovers the logical topic from a
// "$share/<group>/<filter-match>" delivery, per the MQTT 5
// shared-subscription convention (spec §4.7 step 4).
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

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
