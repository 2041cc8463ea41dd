package queue_test

import (
	"context"
	"testing"

	"github.com/routemq/routemq/queue"
)

type welcomeJob struct {
	queue.Policy
	Email string `json:"email"`
}

func (j *welcomeJob) ClassName() string     { return "welcome" }
func (j *welcomeJob) Handle() error         { return nil }
func (j *welcomeJob) OnFailure(error) error { return nil }

func TestManager_DispatchUsesJobsOwnQueue(t *testing.T) {
	reg := queue.NewRegistry()
	reg.Register("welcome", func() queue.Job { return &welcomeJob{Policy: queue.NewPolicy()} })

	d := newFakeDriver()
	m := queue.NewManager(reg, d)

	job := &welcomeJob{Policy: queue.Policy{Queue: "mailers"}, Email: "ada@example.com"}
	id, err := m.Dispatch(context.Background(), job)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if id == "" {
		t.Fatal("Dispatch returned empty id")
	}

	size, err := m.Size(context.Background(), "mailers")
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 1 {
		t.Errorf("size = %d, want 1", size)
	}
}

func TestManager_PushOverridesQueue(t *testing.T) {
	reg := queue.NewRegistry()
	reg.Register("welcome", func() queue.Job { return &welcomeJob{Policy: queue.NewPolicy()} })

	d := newFakeDriver()
	m := queue.NewManager(reg, d)

	job := &welcomeJob{Policy: queue.NewPolicy(), Email: "ada@example.com"}
	if _, err := m.Push(context.Background(), job, "priority"); err != nil {
		t.Fatalf("Push: %v", err)
	}

	size, err := m.Size(context.Background(), "priority")
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 1 {
		t.Errorf("size = %d, want 1", size)
	}
	if n, _ := m.Size(context.Background(), queue.DefaultQueue); n != 0 {
		t.Errorf("default queue size = %d, want 0", n)
	}
}

func TestManager_LaterEnqueuesForDelayedDelivery(t *testing.T) {
	reg := queue.NewRegistry()
	reg.Register("welcome", func() queue.Job { return &welcomeJob{Policy: queue.NewPolicy()} })

	d := newFakeDriver()
	m := queue.NewManager(reg, d)

	job := &welcomeJob{Policy: queue.NewPolicy(), Email: "ada@example.com"}
	if _, err := m.Later(context.Background(), 60, job); err != nil {
		t.Fatalf("Later: %v", err)
	}

	size, err := m.Size(context.Background(), job.GetQueue())
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 1 {
		t.Errorf("size = %d, want 1", size)
	}
}

func TestManager_BulkEnqueuesEveryJobAndReturnsIDs(t *testing.T) {
	reg := queue.NewRegistry()
	reg.Register("welcome", func() queue.Job { return &welcomeJob{Policy: queue.NewPolicy()} })

	d := newFakeDriver()
	m := queue.NewManager(reg, d)

	jobs := []queue.Job{
		&welcomeJob{Policy: queue.NewPolicy(), Email: "a@example.com"},
		&welcomeJob{Policy: queue.NewPolicy(), Email: "b@example.com"},
		&welcomeJob{Policy: queue.NewPolicy(), Email: "c@example.com"},
	}
	ids, err := m.Bulk(context.Background(), jobs)
	if err != nil {
		t.Fatalf("Bulk: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("len(ids) = %d, want 3", len(ids))
	}
	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			t.Errorf("duplicate id %q", id)
		}
		seen[id] = true
	}

	size, err := m.Size(context.Background(), queue.DefaultQueue)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 3 {
		t.Errorf("size = %d, want 3", size)
	}
}

func TestManager_DriverAndRegistryExposeUnderlyingCollaborators(t *testing.T) {
	reg := queue.NewRegistry()
	d := newFakeDriver()
	m := queue.NewManager(reg, d)

	if m.Driver() != d {
		t.Error("Driver() did not return the bound driver")
	}
	if m.Registry() != reg {
		t.Error("Registry() did not return the bound registry")
	}
}
