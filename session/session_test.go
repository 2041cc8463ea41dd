package session_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/routemq/routemq/core"
	"github.com/routemq/routemq/internal/mock"
	"github.com/routemq/routemq/logging"
	"github.com/routemq/routemq/session"
)

func TestSession_SubscribesNonSharedAndDispatches(t *testing.T) {
	mb := mock.NewBroker()
	table := core.NewRouteTable()

	var called atomic.Bool
	var gotParams map[string]string
	table.Register("devices/{device_id}/status", func(c *core.MessageContext) (any, error) {
		called.Store(true)
		gotParams = c.Params
		return nil, nil
	})
	// Shared routes must not be subscribed by the main session.
	table.Register("jobs/{id}", func(c *core.MessageContext) (any, error) { return nil, nil }, core.WithShared(true))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- session.New(mb, table, logging.Nop()).Start(ctx) }()
	time.Sleep(20 * time.Millisecond)

	delivered := mb.Deliver("devices/abc-42/status", &mock.Message{T: "devices/abc-42/status", P: []byte(`{"ok":true}`)})
	if !delivered {
		t.Fatal("expected a handler registered for devices/+/status")
	}
	if !called.Load() {
		t.Error("handler was not invoked")
	}
	if gotParams["device_id"] != "abc-42" {
		t.Errorf("device_id = %q, want abc-42", gotParams["device_id"])
	}

	if delivered := mb.Deliver("jobs/1", &mock.Message{T: "jobs/1", P: []byte("v")}); delivered {
		t.Error("shared route should not be subscribed by the main session")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if !mb.IsClosed() {
		t.Error("broker should be closed after Start returns")
	}
}

func TestSession_NoRouteDoesNotCrashSession(t *testing.T) {
	mb := mock.NewBroker()
	table := core.NewRouteTable()
	table.Register("devices/{id}/status", func(c *core.MessageContext) (any, error) { return nil, nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- session.New(mb, table, logging.Nop()).Start(ctx) }()
	time.Sleep(20 * time.Millisecond)

	// Deliver directly against the filter so the handler itself gets a
	// topic with no matching route inside the table.
	mb.Deliver("devices/1/status", &mock.Message{T: "devices/unmatched", P: []byte("v")})

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
}

func TestSession_AlreadyStarted(t *testing.T) {
	mb := mock.NewBroker()
	table := core.NewRouteTable()
	s := session.New(mb, table, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { s.Start(ctx) }()
	time.Sleep(20 * time.Millisecond)

	if err := s.Start(ctx); err != core.ErrAlreadyStarted {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}
