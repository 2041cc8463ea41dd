package supervisor_test

import (
	"context"
	"testing"
	"time"

	"github.com/routemq/routemq/logging"
	"github.com/routemq/routemq/supervisor"
)

// These tests re-exec /bin/sh rather than a routemq worker binary, since
// the supervisor only cares about process lifecycle, not what the
// process does.

func TestSupervisor_StartReportsHealthyWorkers(t *testing.T) {
	s := supervisor.New("/bin/sh", func(i int) []string {
		return []string{"-c", "sleep 5"}
	}, logging.Nop())

	if err := s.Start(3); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	time.Sleep(50 * time.Millisecond)
	health := s.Health()
	if len(health) != 3 {
		t.Fatalf("len(health) = %d, want 3", len(health))
	}
	for index, alive := range health {
		if !alive {
			t.Errorf("worker %d reported not alive", index)
		}
	}
}

func TestSupervisor_StopTerminatesWorkers(t *testing.T) {
	s := supervisor.New("/bin/sh", func(i int) []string {
		return []string{"-c", "trap 'exit 0' TERM; sleep 5 & wait"}
	}, logging.Nop(), supervisor.WithGraceWindow(2*time.Second))

	if err := s.Start(2); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	for index, alive := range s.Health() {
		if alive {
			t.Errorf("worker %d still alive after Stop", index)
		}
	}
}

func TestSupervisor_RestartsCrashedWorker(t *testing.T) {
	s := supervisor.New("/bin/sh", func(i int) []string {
		return []string{"-c", "exit 1"}
	}, logging.Nop(), supervisor.WithRestart(true))

	if err := s.Start(1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	// The worker exits immediately with status 1; give the restart loop
	// time to replace it at least once (the first restart waits one
	// 500ms backoff step).
	time.Sleep(800 * time.Millisecond)

	if _, ok := s.Health()[0]; !ok {
		t.Fatal("expected worker 0 to still be tracked after restart")
	}
}
