package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/routemq/routemq/queue"
)

// envelopeTimeout extracts the job's timeout_seconds from a serialized
// queue.Envelope's state, defaulting to queue.DefaultTimeoutSeconds when
// absent or zero.
func envelopeTimeout(payload []byte) int {
	var env queue.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return queue.DefaultTimeoutSeconds
	}
	var policy struct {
		TimeoutSeconds int `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(env.State, &policy); err != nil || policy.TimeoutSeconds <= 0 {
		return queue.DefaultTimeoutSeconds
	}
	return policy.TimeoutSeconds
}

// staleThreshold is max(MinStaleThreshold, 2×timeout_seconds) — this
// framework's own resolution (spec §9) of how long a reservation may sit
// before the sweep assumes its worker crashed and reclaims it.
func (d *Driver) staleThreshold(timeoutSeconds int) time.Duration {
	t := 2 * time.Duration(timeoutSeconds) * time.Second
	if t < d.cfg.MinStaleThreshold {
		return d.cfg.MinStaleThreshold
	}
	return t
}

// sweepLoop periodically reclaims reservations that have sat longer than
// their job's own stale threshold, for every queue with a non-empty
// reserved set. It protects against a worker crashing between Pop and
// Delete (spec §4.9 "Stale-reservation recovery").
func (d *Driver) sweepLoop() {
	defer close(d.sweepDone)

	ticker := time.NewTicker(d.cfg.StaleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopSweep:
			return
		case <-ticker.C:
			d.sweepOnce(context.Background())
		}
	}
}

func (d *Driver) sweepOnce(ctx context.Context) {
	queues, err := d.knownQueues(ctx)
	if err != nil {
		d.log.Warn("stale-reservation sweep: failed to enumerate queues", "err", err)
		return
	}
	for _, q := range queues {
		d.sweepQueue(ctx, q)
	}
}

// knownQueues discovers queue names from their reserved-set keys, so the
// sweep does not need a separately maintained registry of queue names.
func (d *Driver) knownQueues(ctx context.Context) ([]string, error) {
	keys, err := d.client.Keys(ctx, "routemq:queue:*:reserved").Result()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		const prefix, suffix = "routemq:queue:", ":reserved"
		if len(k) > len(prefix)+len(suffix) {
			names = append(names, k[len(prefix):len(k)-len(suffix)])
		}
	}
	return names, nil
}

func (d *Driver) sweepQueue(ctx context.Context, q string) {
	entries, err := d.client.ZRangeWithScores(ctx, reservedKey(q), 0, -1).Result()
	if err != nil {
		d.log.Warn("stale-reservation sweep: failed to list reservations", "queue", q, "err", err)
		return
	}

	now := time.Now()
	for _, entry := range entries {
		id, ok := entry.Member.(string)
		if !ok {
			continue
		}
		reservedAt := time.Unix(int64(entry.Score), 0)

		payload, err := d.client.HGet(ctx, payloadsKey(q), id).Result()
		if err == redis.Nil {
			// Payload already gone (acked/buried concurrently); drop the
			// stray reservation record.
			d.client.ZRem(ctx, reservedKey(q), id)
			continue
		}
		if err != nil {
			d.log.Warn("stale-reservation sweep: failed to read payload", "queue", q, "id", id, "err", err)
			continue
		}

		threshold := d.staleThreshold(envelopeTimeout([]byte(payload)))
		if now.Sub(reservedAt) < threshold {
			continue
		}

		pipe := d.client.TxPipeline()
		pipe.ZRem(ctx, reservedKey(q), id)
		pipe.RPush(ctx, pendingKey(q), id)
		if _, err := pipe.Exec(ctx); err != nil {
			d.log.Warn("stale-reservation sweep: failed to reclaim", "queue", q, "id", id, "err", err)
			continue
		}
		d.log.Warn("reclaimed stale reservation", "queue", q, "id", id, "reserved_for", now.Sub(reservedAt))
	}
}
