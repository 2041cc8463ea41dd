// Package queue implements the Job Contract (spec §4.8) and the Queue
// Manager facade (spec §4.10). Concrete drivers live in queue/memory and
// queue/relational.
package queue

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Default policy values applied to a Job that leaves a field unset.
const (
	DefaultMaxTries         = 3
	DefaultTimeoutSeconds   = 60
	DefaultRetryAfterSecond = 0
	DefaultQueue            = "default"
)

// Job is a deferred unit of work. A concrete job type embeds Policy (or
// sets its fields explicitly), implements Handle and OnFailure, and
// registers its class identifier via Register so the framework can
// reconstruct instances by name on the worker side. Per spec §4.8,
// constructors MUST NOT take required arguments — all state is set by
// field assignment after construction, and a Job SHOULD be idempotent
// since delivery is at-least-once.
type Job interface {
	// ClassName returns the stable identifier used to look this job type
	// up in the process-wide registry at deserialization time.
	ClassName() string

	// Handle executes the job's work. An error triggers the retry/bury
	// policy in the Queue Worker Loop (spec §4.11).
	Handle() error

	// OnFailure is invoked exactly once after the final retry is
	// exhausted. Any error it returns is logged but never re-bounces
	// into another retry/bury cycle.
	OnFailure(cause error) error

	// GetMaxTries, GetTimeoutSeconds, GetRetryAfterSeconds, and GetQueue
	// expose the job's policy fields to the worker loop. Embedding
	// Policy satisfies all four via promoted methods.
	GetMaxTries() int
	GetTimeoutSeconds() int
	GetRetryAfterSeconds() int
	GetQueue() string
}

// Policy carries the retry/timeout/queue-placement fields every Job
// exposes (spec §3 "Job ... policy fields"). Concrete job types embed
// Policy and call its defaults via NewPolicy, then override individual
// fields as needed.
type Policy struct {
	MaxTries         int    `json:"max_tries"`
	TimeoutSeconds   int    `json:"timeout_seconds"`
	RetryAfterSecond int    `json:"retry_after_seconds"`
	Queue            string `json:"queue"`
}

// NewPolicy returns the spec's default policy (max_tries=3,
// timeout_seconds=60, retry_after_seconds=0, queue="default").
func NewPolicy() Policy {
	return Policy{
		MaxTries:         DefaultMaxTries,
		TimeoutSeconds:   DefaultTimeoutSeconds,
		RetryAfterSecond: DefaultRetryAfterSecond,
		Queue:            DefaultQueue,
	}
}

// GetMaxTries returns MaxTries, or DefaultMaxTries if unset.
func (p Policy) GetMaxTries() int {
	if p.MaxTries <= 0 {
		return DefaultMaxTries
	}
	return p.MaxTries
}

// GetTimeoutSeconds returns TimeoutSeconds, or DefaultTimeoutSeconds if unset.
func (p Policy) GetTimeoutSeconds() int {
	if p.TimeoutSeconds <= 0 {
		return DefaultTimeoutSeconds
	}
	return p.TimeoutSeconds
}

// GetRetryAfterSeconds returns RetryAfterSecond (zero is a valid value:
// retry immediately).
func (p Policy) GetRetryAfterSeconds() int {
	return p.RetryAfterSecond
}

// GetQueue returns Queue, or DefaultQueue if unset.
func (p Policy) GetQueue() string {
	if p.Queue == "" {
		return DefaultQueue
	}
	return p.Queue
}

// Registry maps a Job's ClassName to a constructor producing a zero-value
// instance ready to have its serialized state written back into it.
// Exactly one process-wide Registry (Default) is normally used; an
// explicit one is available for isolated tests.
type Registry struct {
	mu           sync.Mutex
	constructors map[string]func() Job
}

// NewRegistry returns an empty job Registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]func() Job)}
}

// Register associates className with a constructor. Job types typically
// call this from an init() function.
func (r *Registry) Register(className string, constructor func() Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[className] = constructor
}

// New instantiates a fresh, zero-value Job for className, or
// ErrUnknownClass if nothing is registered under that name.
func (r *Registry) New(className string) (Job, error) {
	r.mu.Lock()
	constructor, ok := r.constructors[className]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, className)
	}
	return constructor(), nil
}

// Default is the process-wide job Registry that Register/New operate
// against by default.
var Default = NewRegistry()

// Register adds constructor under className to the Default registry.
func Register(className string, constructor func() Job) {
	Default.Register(className, constructor)
}

// Envelope is the wire format a Job is serialized to on enqueue and
// deserialized from on claim (spec §4.8 "Serialization"): class
// identifier, a snapshot of the job's own JSON-encodable fields, and the
// runtime fields the queue itself owns.
type Envelope struct {
	Class    string          `json:"class"`
	State    json.RawMessage `json:"state"`
	JobID    string          `json:"job_id"`
	Attempts int             `json:"attempts"`
}

// Encode snapshots job (including any embedded Policy) plus jobID and
// attempts into an Envelope ready for JSON marshaling.
func Encode(job Job, jobID string, attempts int) (Envelope, error) {
	state, err := json.Marshal(job)
	if err != nil {
		return Envelope{}, fmt.Errorf("routemq/queue: encode %s: %w", job.ClassName(), err)
	}
	return Envelope{Class: job.ClassName(), State: state, JobID: jobID, Attempts: attempts}, nil
}

// Decode looks className up in reg, instantiates a fresh Job, and writes
// the envelope's state back into it. It returns ErrUnknownClass or a JSON
// error wrapped as ErrDecodeFailed — both are treated as JobDecodeFailure
// by the worker loop (no retry, immediate bury).
func Decode(reg *Registry, env Envelope) (Job, error) {
	job, err := reg.New(env.Class)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(env.State, job); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecodeFailed, env.Class, err)
	}
	return job, nil
}
