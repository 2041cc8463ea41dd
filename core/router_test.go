package core_test

import (
	"context"
	"testing"

	"github.com/routemq/routemq/core"
)

func echoHandler(val any) core.Handler {
	return func(c *core.MessageContext) (any, error) { return val, nil }
}

func TestRouteTable_PatternMatch(t *testing.T) {
	table := core.NewRouteTable()
	var gotParams map[string]string
	table.Register("devices/{device_id}/status", func(c *core.MessageContext) (any, error) {
		gotParams = c.Params
		return nil, nil
	})

	if _, err := table.Dispatch(context.Background(), "devices/abc-42/status", nil, nil); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if gotParams["device_id"] != "abc-42" {
		t.Errorf("device_id = %q, want abc-42", gotParams["device_id"])
	}

	if _, err := table.Dispatch(context.Background(), "devices/abc/42/status", nil, nil); err != core.ErrNoRoute {
		t.Errorf("expected ErrNoRoute, got %v", err)
	}
}

func TestRouteTable_FirstMatchWins(t *testing.T) {
	table := core.NewRouteTable()
	var gotParams map[string]string
	table.Register("a/{x}", func(c *core.MessageContext) (any, error) {
		gotParams = c.Params
		return "first", nil
	})
	table.Register("a/{y}/z", func(c *core.MessageContext) (any, error) {
		gotParams = c.Params
		return "second", nil
	})

	result, err := table.Dispatch(context.Background(), "a/1", nil, nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result != "first" || gotParams["x"] != "1" {
		t.Errorf("got result=%v params=%v, want first/{x:1}", result, gotParams)
	}

	result, err = table.Dispatch(context.Background(), "a/1/z", nil, nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result != "second" || gotParams["y"] != "1" {
		t.Errorf("got result=%v params=%v, want second/{y:1}", result, gotParams)
	}
}

func TestRouteTable_GroupComposition(t *testing.T) {
	table := core.NewRouteTable()

	var order []string
	mAuth := func(c *core.MessageContext, next core.Next) (any, error) {
		order = append(order, "auth")
		return next()
	}
	mLog := func(c *core.MessageContext, next core.Next) (any, error) {
		order = append(order, "log")
		return next()
	}

	group := table.Group("api/v1", mAuth)
	route, err := group.Register("users/{id}", func(c *core.MessageContext) (any, error) {
		order = append(order, "handler")
		return nil, nil
	}, core.WithMiddleware(mLog))
	if err != nil {
		t.Fatal(err)
	}

	if got, want := route.Filter(), "api/v1/users/+"; got != want {
		t.Errorf("filter = %q, want %q", got, want)
	}

	if _, err := table.Dispatch(context.Background(), "api/v1/users/7", nil, nil); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	want := []string{"auth", "log", "handler"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestRouteTable_NestedGroupEmptyPrefix(t *testing.T) {
	table := core.NewRouteTable()
	group := table.Group("")
	route, err := group.Register("users/{id}", echoHandler(nil))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := route.Filter(), "users/+"; got != want {
		t.Errorf("filter = %q, want %q", got, want)
	}
}

func TestRouteTable_TotalWorkerCount(t *testing.T) {
	table := core.NewRouteTable()
	table.Register("a", echoHandler(nil))
	table.Register("b", echoHandler(nil), core.WithShared(true), core.WithWorkerCount(3))
	table.Register("c", echoHandler(nil), core.WithShared(true), core.WithWorkerCount(2))

	if got, want := table.TotalWorkerCount(), 5; got != want {
		t.Errorf("TotalWorkerCount() = %d, want %d", got, want)
	}
}

func TestRouteTable_WorkerCountClampedToOne(t *testing.T) {
	table := core.NewRouteTable()
	route, err := table.Register("a", echoHandler(nil), core.WithShared(true), core.WithWorkerCount(0))
	if err != nil {
		t.Fatal(err)
	}
	if route.WorkerCount != 1 {
		t.Errorf("WorkerCount = %d, want 1", route.WorkerCount)
	}
}
