// Package memory implements the Memory-Store Queue Driver (spec §4.9)
// backed by Redis: a pending list, a delayed sorted set keyed by
// available time, and a reserved sorted set keyed by reservation time so
// a periodic sweep can detect and recover stale reservations. It mirrors
// the connection style of a typical go-redis driver while adding the
// atomic claim primitive the queue's concurrency guarantee requires.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/routemq/routemq/logging"
	"github.com/routemq/routemq/queue"
)

// Config configures a connection to the Redis instance backing the
// Memory-Store driver (spec §6 "Memory-store: host; port; database
// number; optional auth").
type Config struct {
	Host     string
	Port     string
	DB       int
	Password string

	// StaleCheckInterval is how often the sweep goroutine scans for
	// stale reservations. Defaults to 30s.
	StaleCheckInterval time.Duration

	// MinStaleThreshold is the floor applied to a job's
	// 2×timeout_seconds when computing how long a reservation may sit
	// before the sweep reclaims it. Defaults to 90s, per this
	// framework's own open-question resolution (spec §9).
	MinStaleThreshold time.Duration
}

func (c Config) addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Driver is the Redis-backed Memory-Store queue.Driver.
type Driver struct {
	client *redis.Client
	log    *logging.Logger
	cfg    Config

	popScript *redis.Script

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// New dials Redis and starts the stale-reservation sweep goroutine.
func New(cfg Config, log *logging.Logger) (*Driver, error) {
	if log == nil {
		log = logging.Nop()
	}
	if cfg.StaleCheckInterval <= 0 {
		cfg.StaleCheckInterval = 30 * time.Second
	}
	if cfg.MinStaleThreshold <= 0 {
		cfg.MinStaleThreshold = 90 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", queue.ErrDriverUnavailable, err)
	}

	d := &Driver{
		client:    client,
		log:       log,
		cfg:       cfg,
		popScript: redis.NewScript(popLuaScript),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go d.sweepLoop()
	return d, nil
}

// NewFromClient wraps an already-connected *redis.Client — used by tests
// against miniredis, and by callers that already manage their own pool.
// The sweep goroutine is still started.
func NewFromClient(client *redis.Client, cfg Config, log *logging.Logger) *Driver {
	if log == nil {
		log = logging.Nop()
	}
	if cfg.StaleCheckInterval <= 0 {
		cfg.StaleCheckInterval = 30 * time.Second
	}
	if cfg.MinStaleThreshold <= 0 {
		cfg.MinStaleThreshold = 90 * time.Second
	}
	d := &Driver{
		client:    client,
		log:       log,
		cfg:       cfg,
		popScript: redis.NewScript(popLuaScript),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go d.sweepLoop()
	return d
}

func keyPrefix(q string) string { return "routemq:queue:" + q }

func pendingKey(q string) string  { return keyPrefix(q) + ":pending" }
func delayedKey(q string) string  { return keyPrefix(q) + ":delayed" }
func reservedKey(q string) string { return keyPrefix(q) + ":reserved" }
func payloadsKey(q string) string { return keyPrefix(q) + ":payloads" }
func attemptsKey(q string) string { return keyPrefix(q) + ":attempts" }
func failedKey(q string) string   { return keyPrefix(q) + ":failed" }

// Push places payload immediately available on queue.
func (d *Driver) Push(ctx context.Context, q string, payload []byte) (string, error) {
	id := uuid.NewString()
	pipe := d.client.TxPipeline()
	pipe.HSet(ctx, payloadsKey(q), id, payload)
	pipe.HSet(ctx, attemptsKey(q), id, 0)
	pipe.RPush(ctx, pendingKey(q), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("%w: push: %v", queue.ErrDriverUnavailable, err)
	}
	return id, nil
}

// Later schedules payload to become available after delaySeconds.
func (d *Driver) Later(ctx context.Context, q string, delaySeconds int, payload []byte) (string, error) {
	id := uuid.NewString()
	availableAt := time.Now().Add(time.Duration(delaySeconds) * time.Second).Unix()
	pipe := d.client.TxPipeline()
	pipe.HSet(ctx, payloadsKey(q), id, payload)
	pipe.HSet(ctx, attemptsKey(q), id, 0)
	pipe.ZAdd(ctx, delayedKey(q), redis.Z{Score: float64(availableAt), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("%w: later: %v", queue.ErrDriverUnavailable, err)
	}
	return id, nil
}

// popLuaScript atomically migrates any due delayed entries into pending,
// pops the head of pending, stamps it reserved, increments its attempts,
// and returns {id, payload, attempts} — all in one round trip so two
// workers can never claim the same entry.
const popLuaScript = `
local pending = KEYS[1]
local delayed = KEYS[2]
local reserved = KEYS[3]
local payloads = KEYS[4]
local attempts = KEYS[5]
local now = tonumber(ARGV[1])

local due = redis.call('ZRANGEBYSCORE', delayed, '-inf', now)
for _, id in ipairs(due) do
  redis.call('ZREM', delayed, id)
  redis.call('RPUSH', pending, id)
end

local id = redis.call('LPOP', pending)
if not id then
  return false
end

redis.call('ZADD', reserved, now, id)
local newAttempts = redis.call('HINCRBY', attempts, id, 1)
local payload = redis.call('HGET', payloads, id)
return {id, payload, newAttempts}
`

// Pop atomically claims one available entry from queue.
func (d *Driver) Pop(ctx context.Context, q string) (queue.Reservation, error) {
	res, err := d.popScript.Run(ctx, d.client,
		[]string{pendingKey(q), delayedKey(q), reservedKey(q), payloadsKey(q), attemptsKey(q)},
		time.Now().Unix(),
	).Result()
	if err == redis.Nil {
		return queue.Reservation{}, queue.ErrEmpty
	}
	if err != nil {
		return queue.Reservation{}, fmt.Errorf("%w: pop: %v", queue.ErrDriverUnavailable, err)
	}

	raw, ok := res.([]interface{})
	if !ok || len(raw) == 0 {
		return queue.Reservation{}, queue.ErrEmpty
	}
	if boolVal, ok := raw[0].(bool); ok && !boolVal {
		return queue.Reservation{}, queue.ErrEmpty
	}

	id, _ := raw[0].(string)
	payload, _ := raw[1].(string)
	attempts, _ := raw[2].(int64)

	return queue.Reservation{ID: id, Payload: []byte(payload), Attempts: int(attempts)}, nil
}

// Delete acknowledges successful completion.
func (d *Driver) Delete(ctx context.Context, q, id string) error {
	pipe := d.client.TxPipeline()
	pipe.ZRem(ctx, reservedKey(q), id)
	pipe.HDel(ctx, payloadsKey(q), id)
	pipe.HDel(ctx, attemptsKey(q), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: delete: %v", queue.ErrDriverUnavailable, err)
	}
	return nil
}

// Release returns a reserved entry to the queue, available again after
// delaySeconds. Attempts was already incremented at Pop time, so Release
// leaves it untouched.
func (d *Driver) Release(ctx context.Context, q, id string, delaySeconds int) error {
	pipe := d.client.TxPipeline()
	pipe.ZRem(ctx, reservedKey(q), id)
	if delaySeconds > 0 {
		availableAt := time.Now().Add(time.Duration(delaySeconds) * time.Second).Unix()
		pipe.ZAdd(ctx, delayedKey(q), redis.Z{Score: float64(availableAt), Member: id})
	} else {
		pipe.RPush(ctx, pendingKey(q), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: release: %v", queue.ErrDriverUnavailable, err)
	}
	return nil
}

// failedEntry is the blob appended to a queue's failed list.
type failedEntry struct {
	ID        string `json:"id"`
	Payload   string `json:"payload"`
	Exception string `json:"exception"`
	FailedAt  int64  `json:"failed_at"`
}

// Bury moves a reserved entry to the failed-jobs store permanently.
func (d *Driver) Bury(ctx context.Context, q, id string, payload []byte, exceptionText string) error {
	entry := failedEntry{ID: id, Payload: string(payload), Exception: exceptionText, FailedAt: time.Now().Unix()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("routemq/queue/memory: encode failed entry: %w", err)
	}

	pipe := d.client.TxPipeline()
	pipe.ZRem(ctx, reservedKey(q), id)
	pipe.HDel(ctx, payloadsKey(q), id)
	pipe.HDel(ctx, attemptsKey(q), id)
	pipe.RPush(ctx, failedKey(q), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: bury: %v", queue.ErrDriverUnavailable, err)
	}
	return nil
}

// Size reports the count of immediately available (pending) entries.
func (d *Driver) Size(ctx context.Context, q string) (int64, error) {
	n, err := d.client.LLen(ctx, pendingKey(q)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: size: %v", queue.ErrDriverUnavailable, err)
	}
	return n, nil
}

// Failed returns every buried entry for queue, most-recently-failed last
// (supplemented feature: spec §4.9 describes bury's destination but not
// an inspection/retry operation; this and Retry below round it out the
// way a framework operator would expect).
func (d *Driver) Failed(ctx context.Context, q string) ([]queue.Reservation, []string, error) {
	raw, err := d.client.LRange(ctx, failedKey(q), 0, -1).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed: %v", queue.ErrDriverUnavailable, err)
	}
	reservations := make([]queue.Reservation, 0, len(raw))
	reasons := make([]string, 0, len(raw))
	for _, blob := range raw {
		var entry failedEntry
		if err := json.Unmarshal([]byte(blob), &entry); err != nil {
			continue
		}
		reservations = append(reservations, queue.Reservation{ID: entry.ID, Payload: []byte(entry.Payload)})
		reasons = append(reasons, entry.Exception)
	}
	return reservations, reasons, nil
}

// Retry re-enqueues the buried entry with the given id (found via Failed)
// back onto queue's pending list, removing it from the failed store.
func (d *Driver) Retry(ctx context.Context, q, id string) error {
	raw, err := d.client.LRange(ctx, failedKey(q), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("%w: retry: %v", queue.ErrDriverUnavailable, err)
	}
	for i, blob := range raw {
		var entry failedEntry
		if err := json.Unmarshal([]byte(blob), &entry); err != nil {
			continue
		}
		if entry.ID != id {
			continue
		}
		pipe := d.client.TxPipeline()
		pipe.LRem(ctx, failedKey(q), 1, raw[i])
		pipe.HSet(ctx, payloadsKey(q), id, entry.Payload)
		pipe.HSet(ctx, attemptsKey(q), id, 0)
		pipe.RPush(ctx, pendingKey(q), id)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("%w: retry: %v", queue.ErrDriverUnavailable, err)
		}
		return nil
	}
	return fmt.Errorf("routemq/queue/memory: %q not found in failed store", id)
}

// Close stops the sweep goroutine and closes the Redis connection.
func (d *Driver) Close() error {
	close(d.stopSweep)
	<-d.sweepDone
	return d.client.Close()
}

var _ queue.Driver = (*Driver)(nil)
