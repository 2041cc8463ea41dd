// Loop implements the Queue Worker Loop (spec §4.11): a single-threaded
// claim-execute-retry-bury state machine with graceful shutdown, max-jobs
// and max-time limits.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/routemq/routemq/logging"
)

// LoopState names the worker loop's states (spec §4.11 "States: Idle →
// Claiming → Executing → Finalizing → Idle (or → Stopping → Stopped)").
type LoopState int

const (
	StateIdle LoopState = iota
	StateClaiming
	StateExecuting
	StateFinalizing
	StateStopping
	StateStopped
)

func (s LoopState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateClaiming:
		return "claiming"
	case StateExecuting:
		return "executing"
	case StateFinalizing:
		return "finalizing"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// LoopOptions configures a Loop's CLI-provided limits (spec §6
// "--queue-work [--queue][--connection][--max-jobs][--max-time][--sleep][--timeout]").
type LoopOptions struct {
	// Queue is the queue name to claim from.
	Queue string

	// Sleep is how long to wait before the next Claiming attempt after
	// an empty pop.
	Sleep time.Duration

	// Timeout overrides every job's own TimeoutSeconds when non-zero.
	Timeout time.Duration

	// MaxJobs stops the loop after this many jobs have been processed
	// (success, retry, or bury all count). Zero means unlimited.
	MaxJobs int

	// MaxTime stops the loop after this much wall-clock time has
	// elapsed. Zero means unlimited.
	MaxTime time.Duration
}

// Loop runs the claim-execute-retry-bury state machine against one
// Driver and Registry.
type Loop struct {
	driver Driver
	reg    *Registry
	opts   LoopOptions
	log    *logging.Logger

	state     LoopState
	processed int
	startedAt time.Time
}

// NewLoop builds a Loop. reg defaults to the Default job registry.
func NewLoop(driver Driver, reg *Registry, opts LoopOptions, log *logging.Logger) *Loop {
	if reg == nil {
		reg = Default
	}
	if opts.Sleep <= 0 {
		opts.Sleep = time.Second
	}
	if opts.Queue == "" {
		opts.Queue = DefaultQueue
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Loop{driver: driver, reg: reg, opts: opts, log: log, state: StateIdle}
}

// State returns the loop's current state (non-blocking — safe to poll
// for health reporting).
func (l *Loop) State() LoopState { return l.state }

// Run executes the state machine until ctx is cancelled (graceful
// shutdown: the current job is allowed to finish, bounded by its own
// timeout) or a configured max-jobs/max-time limit is reached. It
// returns nil on any of those exits. A driver error from Pop does not end
// the loop: it is logged and the loop sleeps for Sleep before claiming
// again.
func (l *Loop) Run(ctx context.Context) error {
	l.startedAt = time.Now()
	defer func() {
		l.state = StateStopped
		l.driver.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			l.state = StateStopping
			return nil
		default:
		}

		if l.opts.MaxTime > 0 && time.Since(l.startedAt) >= l.opts.MaxTime {
			l.state = StateStopping
			return nil
		}
		if l.opts.MaxJobs > 0 && l.processed >= l.opts.MaxJobs {
			l.state = StateStopping
			return nil
		}

		l.state = StateClaiming
		res, err := l.driver.Pop(ctx, l.opts.Queue)
		if errors.Is(err, ErrEmpty) {
			l.state = StateIdle
			select {
			case <-ctx.Done():
				l.state = StateStopping
				return nil
			case <-time.After(l.opts.Sleep):
			}
			continue
		}
		if err != nil {
			l.log.Warn("queue driver unavailable, backing off", "queue", l.opts.Queue, "err", err)
			select {
			case <-ctx.Done():
				l.state = StateStopping
				return nil
			case <-time.After(l.opts.Sleep):
			}
			continue
		}

		l.runOne(ctx, res)
		l.processed++
	}
}

func (l *Loop) runOne(ctx context.Context, res Reservation) {
	job, decodeErr := l.decode(res)
	if decodeErr != nil {
		l.log.Error("job decode failed, burying without retry", "queue", l.opts.Queue, "id", res.ID, "err", decodeErr)
		l.state = StateFinalizing
		if err := l.driver.Bury(ctx, l.opts.Queue, res.ID, res.Payload, decodeErr.Error()); err != nil {
			l.log.Error("bury failed", "queue", l.opts.Queue, "id", res.ID, "err", err)
		}
		return
	}

	l.state = StateExecuting
	execErr := l.execute(job)

	l.state = StateFinalizing
	if execErr == nil {
		if err := l.driver.Delete(ctx, l.opts.Queue, res.ID); err != nil {
			l.log.Error("delete failed after successful job", "queue", l.opts.Queue, "id", res.ID, "err", err)
		}
		return
	}

	if res.Attempts < job.GetMaxTries() {
		l.log.Warn("job failed, releasing for retry", "queue", l.opts.Queue, "id", res.ID, "attempts", res.Attempts, "err", execErr)
		if err := l.driver.Release(ctx, l.opts.Queue, res.ID, job.GetRetryAfterSeconds()); err != nil {
			l.log.Error("release failed", "queue", l.opts.Queue, "id", res.ID, "err", err)
		}
		return
	}

	l.log.Error("job exhausted retries, burying", "queue", l.opts.Queue, "id", res.ID, "attempts", res.Attempts, "err", execErr)
	if failureErr := safeOnFailure(job, execErr); failureErr != nil {
		l.log.Error("job on_failure raised", "queue", l.opts.Queue, "id", res.ID, "err", failureErr)
	}
	if err := l.driver.Bury(ctx, l.opts.Queue, res.ID, res.Payload, execErr.Error()); err != nil {
		l.log.Error("bury failed", "queue", l.opts.Queue, "id", res.ID, "err", err)
	}
}

func (l *Loop) decode(res Reservation) (Job, error) {
	var env Envelope
	if err := json.Unmarshal(res.Payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	job, err := Decode(l.reg, env)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// execute runs job.Handle() under a timeout equal to the job's own
// TimeoutSeconds, or the Loop's Timeout override when set (spec §4.11
// step 4). A timeout is reported as an execution failure like any other
// error returned by Handle. The timeout is rooted in context.Background,
// not the Loop's shutdown context, so a job already running when shutdown
// is requested is allowed to finish — bounded only by its own timeout, as
// Run's doc comment promises.
func (l *Loop) execute(job Job) error {
	timeout := time.Duration(job.GetTimeoutSeconds()) * time.Second
	if l.opts.Timeout > 0 {
		timeout = l.opts.Timeout
	}

	execCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- job.Handle()
	}()

	select {
	case err := <-done:
		return err
	case <-execCtx.Done():
		return fmt.Errorf("routemq/queue: job timed out after %s: %w", timeout, execCtx.Err())
	}
}

// safeOnFailure invokes job.OnFailure, recovering a panic as an error so
// a misbehaving on_failure hook can never crash the worker loop (spec §7
// "Job on_failure exceptions are caught and logged but do not prevent
// bury").
func safeOnFailure(job Job, cause error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("routemq/queue: on_failure panicked: %v", r)
		}
	}()
	return job.OnFailure(cause)
}
