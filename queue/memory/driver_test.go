package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/routemq/routemq/queue"
	"github.com/routemq/routemq/queue/memory"
)

func newTestDriver(t *testing.T) (*memory.Driver, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	d := memory.NewFromClient(client, memory.Config{StaleCheckInterval: time.Hour, MinStaleThreshold: time.Minute}, nil)
	t.Cleanup(func() { d.Close() })
	return d, mr
}

func TestDriver_PushThenPopReturnsPayload(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	id, err := d.Push(ctx, "default", []byte(`{"hello":"world"}`))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}

	res, err := d.Pop(ctx, "default")
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if res.ID != id {
		t.Errorf("ID = %q, want %q", res.ID, id)
	}
	if string(res.Payload) != `{"hello":"world"}` {
		t.Errorf("Payload = %s", res.Payload)
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1 (attempt is counted at claim time)", res.Attempts)
	}
}

func TestDriver_PopOnEmptyQueueReturnsErrEmpty(t *testing.T) {
	d, _ := newTestDriver(t)
	_, err := d.Pop(context.Background(), "default")
	if err != queue.ErrEmpty {
		t.Fatalf("err = %v, want ErrEmpty", err)
	}
}

func TestDriver_ReservedEntryInvisibleToSecondPop(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	if _, err := d.Push(ctx, "default", []byte("v")); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Pop(ctx, "default"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Pop(ctx, "default"); err != queue.ErrEmpty {
		t.Fatalf("second Pop err = %v, want ErrEmpty", err)
	}
}

func TestDriver_DeleteRemovesReservation(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	d.Push(ctx, "default", []byte("v"))
	res, _ := d.Pop(ctx, "default")
	if err := d.Delete(ctx, "default", res.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, _ := d.Size(ctx, "default"); n != 0 {
		t.Errorf("size after delete = %d, want 0", n)
	}
}

func TestDriver_ReleaseMakesAvailableAgain(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	d.Push(ctx, "default", []byte("v"))
	res, _ := d.Pop(ctx, "default")
	if err := d.Release(ctx, "default", res.ID, 0); err != nil {
		t.Fatalf("Release: %v", err)
	}

	res2, err := d.Pop(ctx, "default")
	if err != nil {
		t.Fatalf("Pop after release: %v", err)
	}
	if res2.ID != res.ID {
		t.Errorf("ID = %q, want %q", res2.ID, res.ID)
	}
	if res2.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", res2.Attempts)
	}
}

func TestDriver_ReleaseWithDelayIsNotImmediatelyAvailable(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	d.Push(ctx, "default", []byte("v"))
	res, _ := d.Pop(ctx, "default")
	if err := d.Release(ctx, "default", res.ID, 3600); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if _, err := d.Pop(ctx, "default"); err != queue.ErrEmpty {
		t.Fatalf("Pop after delayed release err = %v, want ErrEmpty", err)
	}
}

func TestDriver_LaterNotAvailableUntilElapsed(t *testing.T) {
	// The driver computes "now" in Go (ARGV to the claim script) rather
	// than from Redis server time, so this test advances real wall-clock
	// time with a short delay instead of miniredis's fake clock.
	d, _ := newTestDriver(t)
	ctx := context.Background()

	if _, err := d.Later(ctx, "default", 1, []byte("v")); err != nil {
		t.Fatalf("Later: %v", err)
	}
	if _, err := d.Pop(ctx, "default"); err != queue.ErrEmpty {
		t.Fatalf("Pop before delay elapsed err = %v, want ErrEmpty", err)
	}

	time.Sleep(1200 * time.Millisecond)

	res, err := d.Pop(ctx, "default")
	if err != nil {
		t.Fatalf("Pop after delay elapsed: %v", err)
	}
	if string(res.Payload) != "v" {
		t.Errorf("Payload = %s, want v", res.Payload)
	}
}

func TestDriver_BuryRemovesFromReservedAndRecordsException(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	d.Push(ctx, "default", []byte("payload"))
	res, _ := d.Pop(ctx, "default")
	if err := d.Bury(ctx, "default", res.ID, res.Payload, "boom"); err != nil {
		t.Fatalf("Bury: %v", err)
	}

	reservations, reasons, err := d.Failed(ctx, "default")
	if err != nil {
		t.Fatalf("Failed: %v", err)
	}
	if len(reservations) != 1 || reservations[0].ID != res.ID {
		t.Fatalf("reservations = %+v", reservations)
	}
	if reasons[0] != "boom" {
		t.Errorf("reason = %q, want boom", reasons[0])
	}

	if _, err := d.Pop(ctx, "default"); err != queue.ErrEmpty {
		t.Errorf("buried job should not be poppable, err = %v", err)
	}
}

func TestDriver_RetryRequeuesAFailedJob(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	d.Push(ctx, "default", []byte("payload"))
	res, _ := d.Pop(ctx, "default")
	d.Bury(ctx, "default", res.ID, res.Payload, "boom")

	if err := d.Retry(ctx, "default", res.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	res2, err := d.Pop(ctx, "default")
	if err != nil {
		t.Fatalf("Pop after retry: %v", err)
	}
	if string(res2.Payload) != "payload" {
		t.Errorf("Payload = %s, want payload", res2.Payload)
	}
}

func TestDriver_StaleSweepReclaimsExpiredReservation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	d := memory.NewFromClient(client, memory.Config{
		StaleCheckInterval: 20 * time.Millisecond,
		MinStaleThreshold:  50 * time.Millisecond,
	}, nil)
	defer d.Close()

	ctx := context.Background()
	id, _ := d.Push(ctx, "default", []byte(`{"class":"x","state":{"timeout_seconds":1},"job_id":"","attempts":0}`))
	if _, err := d.Pop(ctx, "default"); err != nil {
		t.Fatalf("Pop: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		res, err := d.Pop(ctx, "default")
		if err == nil {
			if res.ID != id {
				t.Fatalf("reclaimed id = %q, want %q", res.ID, id)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("stale reservation was never reclaimed")
}
