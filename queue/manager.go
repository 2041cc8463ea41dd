// Manager implements the Queue Manager facade (spec §4.10).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// Manager wraps a concrete Driver — selected by QUEUE_CONNECTION at the
// call site that constructs it (see cmd/routemq) — and exposes the
// job-level dispatch/later/bulk/size/push operations on top of it.
type Manager struct {
	reg    *Registry
	driver Driver
}

// NewManager builds a Manager bound to an already-constructed driver.
func NewManager(reg *Registry, driver Driver) *Manager {
	if reg == nil {
		reg = Default
	}
	return &Manager{reg: reg, driver: driver}
}

// Dispatch enqueues job for immediate processing on its own Queue field
// (spec §4.10 "dispatch(job)").
func (m *Manager) Dispatch(ctx context.Context, job Job) (string, error) {
	return m.Push(ctx, job, job.GetQueue())
}

// Push enqueues job onto queue, overriding its own Queue field. The
// envelope's attempts starts at zero. The job id is assigned by the
// driver's Push and returned to the caller; it is not written into the
// stored envelope, whose JobID stays empty.
func (m *Manager) Push(ctx context.Context, job Job, queue string) (string, error) {
	env, err := Encode(job, "", 0)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	id, err := m.driver.Push(ctx, queue, payload)
	if err != nil {
		return "", fmt.Errorf("routemq/queue: push: %w", err)
	}
	return id, nil
}

// Later schedules job to become available after delaySeconds, on job's
// own Queue field.
func (m *Manager) Later(ctx context.Context, delaySeconds int, job Job) (string, error) {
	env, err := Encode(job, "", 0)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	id, err := m.driver.Later(ctx, job.GetQueue(), delaySeconds, payload)
	if err != nil {
		return "", fmt.Errorf("routemq/queue: later: %w", err)
	}
	return id, nil
}

// Bulk enqueues every job in jobs for immediate processing, each on its
// own Queue field. It pushes in a per-job loop, since Driver exposes no
// batch primitive (spec §4.10: "bulk uses whatever batch primitive the
// driver offers, or a per-job loop if not" — no driver here offers one).
// It returns the first error encountered, having already enqueued every
// job before it.
func (m *Manager) Bulk(ctx context.Context, jobs []Job) ([]string, error) {
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		id, err := m.Dispatch(ctx, job)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Size reports the current count of available jobs in queue.
func (m *Manager) Size(ctx context.Context, queue string) (int64, error) {
	return m.driver.Size(ctx, queue)
}

// Driver exposes the underlying Driver, mainly so a Queue Worker Loop
// (see Loop in this package) can be built around the same connection the
// Manager uses.
func (m *Manager) Driver() Driver {
	return m.driver
}

// Registry exposes the job Registry this Manager's envelopes are decoded
// against, so a Queue Worker Loop built around the same Manager uses a
// consistent set of registered job classes.
func (m *Manager) Registry() *Registry {
	return m.reg
}
