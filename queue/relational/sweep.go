package relational

import (
	"context"
	"encoding/json"
	"time"

	"github.com/routemq/routemq/queue"
)

// StaleSweeper periodically clears reservations on rows that have sat
// reserved longer than their job's own stale threshold
// (max(MinStaleThreshold, 2×timeout_seconds) — spec §9), recovering from
// a worker crash between Pop and Delete. Unlike the Memory-Store driver,
// this runs as an explicit, separately-started loop rather than inside
// New, since a relational pool is often shared across many processes and
// only one of them should run the sweep.
type StaleSweeper struct {
	driver             *Driver
	checkInterval      time.Duration
	minStaleThreshold  time.Duration
	stop               chan struct{}
	done               chan struct{}
}

// NewStaleSweeper builds a sweeper for driver. checkInterval defaults to
// 30s and minStaleThreshold to 90s when zero.
func NewStaleSweeper(driver *Driver, checkInterval, minStaleThreshold time.Duration) *StaleSweeper {
	if checkInterval <= 0 {
		checkInterval = 30 * time.Second
	}
	if minStaleThreshold <= 0 {
		minStaleThreshold = 90 * time.Second
	}
	return &StaleSweeper{
		driver:            driver,
		checkInterval:     checkInterval,
		minStaleThreshold: minStaleThreshold,
		stop:              make(chan struct{}),
		done:              make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called.
func (s *StaleSweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.sweepOnce(context.Background())
			}
		}
	}()
}

// Stop halts the sweep loop and waits for the in-flight sweep to finish.
func (s *StaleSweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *StaleSweeper) sweepOnce(ctx context.Context) {
	type reservedRow struct {
		id         int64
		payload    []byte
		reservedAt time.Time
	}

	query := `SELECT id, payload, reserved_at FROM routemq_queue_jobs WHERE reserved_at IS NOT NULL`
	rows, err := s.driver.pool.Query(ctx, query)
	if err != nil {
		s.driver.log.Warn("stale-reservation sweep: query failed", "err", err)
		return
	}
	defer rows.Close()

	var stale []reservedRow
	now := time.Now()
	for rows.Next() {
		var r reservedRow
		if err := rows.Scan(&r.id, &r.payload, &r.reservedAt); err != nil {
			continue
		}
		threshold := staleThreshold(s.minStaleThreshold, envelopeTimeout(r.payload))
		if now.Sub(r.reservedAt) >= threshold {
			stale = append(stale, r)
		}
	}

	for _, r := range stale {
		if _, err := s.driver.pool.Exec(ctx,
			`UPDATE routemq_queue_jobs SET reserved_at = NULL WHERE id = $1`, r.id,
		); err != nil {
			s.driver.log.Warn("stale-reservation sweep: reclaim failed", "id", r.id, "err", err)
			continue
		}
		s.driver.log.Warn("reclaimed stale reservation", "id", r.id, "reserved_for", now.Sub(r.reservedAt))
	}
}

func staleThreshold(minThreshold time.Duration, timeoutSeconds int) time.Duration {
	t := 2 * time.Duration(timeoutSeconds) * time.Second
	if t < minThreshold {
		return minThreshold
	}
	return t
}

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
