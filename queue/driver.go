package queue

import "context"

// Reservation is one claimed job returned by a Driver's Pop.
type Reservation struct {
	ID       string
	Payload  []byte
	Attempts int
}

// Driver is the shared interface across queue backends (spec §4.9): both
// the Memory-Store driver (queue/memory) and the Relational driver
// (queue/relational) implement it identically from the Manager's point of
// view. Concurrency guarantee: once Pop reserves an entry, it is
// invisible to every other caller's Pop until Delete, Release, Bury, or a
// driver's stale-reservation sweep releases it.
type Driver interface {
	// Push makes payload immediately available on queue.
	Push(ctx context.Context, queue string, payload []byte) (id string, err error)

	// Later schedules payload to become available after delaySeconds.
	Later(ctx context.Context, queue string, delaySeconds int, payload []byte) (id string, err error)

	// Pop atomically claims one available, unreserved entry from queue.
	// It returns ErrEmpty if none is currently available.
	Pop(ctx context.Context, queue string) (Reservation, error)

	// Delete acknowledges successful completion, removing the entry.
	Delete(ctx context.Context, queue, id string) error

	// Release returns a reserved entry to the queue, available again
	// after delaySeconds. Attempts are counted when Pop claims an entry,
	// so Release leaves the count unchanged.
	Release(ctx context.Context, queue, id string, delaySeconds int) error

	// Bury moves a reserved entry to the failed-jobs store, recording
	// exceptionText for later inspection.
	Bury(ctx context.Context, queue, id string, payload []byte, exceptionText string) error

	// Size reports the current count of available (non-reserved) entries
	// in queue.
	Size(ctx context.Context, queue string) (int64, error)

	// Close releases the driver's connection to its backing store.
	Close() error
}
