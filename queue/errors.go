package queue

import "errors"

var (
	// ErrUnknownClass is returned by Registry.New/Decode when a job
	// envelope names a class with no registered constructor. Spec §7
	// JobDecodeFailure: immediately buried, no retry.
	ErrUnknownClass = errors.New("routemq/queue: unknown job class")

	// ErrDecodeFailed is returned by Decode when an envelope's state
	// cannot be unmarshaled into the target job. Spec §7
	// JobDecodeFailure: immediately buried, no retry.
	ErrDecodeFailed = errors.New("routemq/queue: failed to decode job state")

	// ErrEmpty is returned by a Driver's Pop when the queue has no
	// available job to claim.
	ErrEmpty = errors.New("routemq/queue: no job available")

	// ErrDriverUnavailable is returned by a Driver when its backing store
	// cannot be reached. Spec §7 DriverUnavailable: surfaced to the
	// Manager's caller; the worker loop treats it as transient and backs
	// off.
	ErrDriverUnavailable = errors.New("routemq/queue: driver unavailable")

	// ErrUnknownConnection is returned when a QUEUE_CONNECTION name is
	// neither "memory" nor "relational" (see cmd/routemq's buildDriver).
	ErrUnknownConnection = errors.New("routemq/queue: unknown queue connection")
)
