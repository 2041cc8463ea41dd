// Package relational implements the Relational Queue Driver (spec §4.9)
// on top of Postgres via jackc/pgx, using "SELECT ... FOR UPDATE SKIP
// LOCKED" as the claim primitive so concurrent workers never reserve the
// same row. It mirrors the schema-on-first-use style of
// oriys-nova's store package.
package relational

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/routemq/routemq/logging"
	"github.com/routemq/routemq/queue"
)

// Pool is the subset of *pgxpool.Pool the driver needs. It exists so
// tests can substitute github.com/pashagolub/pgxmock/v4 for a live
// database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Config configures the Postgres connection (spec §6 "Relational: host;
// port; database name; user; password").
type Config struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

func (c Config) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", c.User, c.Password, c.Host, c.Port, c.Database)
}

// Driver is the Postgres-backed Relational queue.Driver.
type Driver struct {
	pool Pool
	log  *logging.Logger
}

// New connects to Postgres and ensures the queue schema exists.
func New(ctx context.Context, cfg Config, log *logging.Logger) (*Driver, error) {
	pool, err := pgxpool.New(ctx, cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", queue.ErrDriverUnavailable, err)
	}
	d := NewFromPool(pool, log)
	if err := d.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return d, nil
}

// NewFromPool wraps an already-open Pool (a *pgxpool.Pool, or a
// pgxmock pool in tests) without re-running schema creation — callers
// that need the schema should call EnsureSchema explicitly.
func NewFromPool(pool Pool, log *logging.Logger) *Driver {
	if log == nil {
		log = logging.Nop()
	}
	return &Driver{pool: pool, log: log}
}

// EnsureSchema creates the primary and failed-jobs tables if they do not
// already exist (spec §6 "schema is created idempotently at first use").
func (d *Driver) EnsureSchema(ctx context.Context) error {
	return d.ensureSchema(ctx)
}

func (d *Driver) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS routemq_queue_jobs (
			id BIGSERIAL PRIMARY KEY,
			queue TEXT NOT NULL,
			payload BYTEA NOT NULL,
			attempts INT NOT NULL DEFAULT 0,
			reserved_at TIMESTAMPTZ,
			available_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS routemq_queue_jobs_claim_idx
			ON routemq_queue_jobs (queue, available_at)
			WHERE reserved_at IS NULL`,
		`CREATE TABLE IF NOT EXISTS routemq_failed_jobs (
			id BIGSERIAL PRIMARY KEY,
			driver TEXT NOT NULL,
			queue TEXT NOT NULL,
			payload BYTEA NOT NULL,
			exception TEXT NOT NULL,
			failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := d.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: ensure schema: %v", queue.ErrDriverUnavailable, err)
		}
	}
	return nil
}

// Push inserts a row immediately available.
func (d *Driver) Push(ctx context.Context, q string, payload []byte) (string, error) {
	return d.insert(ctx, q, payload, time.Now())
}

// Later inserts a row available after delaySeconds.
func (d *Driver) Later(ctx context.Context, q string, delaySeconds int, payload []byte) (string, error) {
	return d.insert(ctx, q, payload, time.Now().Add(time.Duration(delaySeconds)*time.Second))
}

func (d *Driver) insert(ctx context.Context, q string, payload []byte, availableAt time.Time) (string, error) {
	var id int64
	err := d.pool.QueryRow(ctx,
		`INSERT INTO routemq_queue_jobs (queue, payload, attempts, reserved_at, available_at)
		 VALUES ($1, $2, 0, NULL, $3) RETURNING id`,
		q, payload, availableAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("%w: insert: %v", queue.ErrDriverUnavailable, err)
	}
	return strconv.FormatInt(id, 10), nil
}

// Pop claims one available row for queue using FOR UPDATE SKIP LOCKED so
// two workers can never reserve the same row (spec §4.9 Relational
// driver).
func (d *Driver) Pop(ctx context.Context, q string) (queue.Reservation, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return queue.Reservation{}, fmt.Errorf("%w: begin: %v", queue.ErrDriverUnavailable, err)
	}
	defer tx.Rollback(ctx)

	var id int64
	var payload []byte
	err = tx.QueryRow(ctx,
		`SELECT id, payload FROM routemq_queue_jobs
		 WHERE queue = $1 AND reserved_at IS NULL AND available_at <= now()
		 ORDER BY id
		 FOR UPDATE SKIP LOCKED
		 LIMIT 1`,
		q,
	).Scan(&id, &payload)
	if err == pgx.ErrNoRows {
		return queue.Reservation{}, queue.ErrEmpty
	}
	if err != nil {
		return queue.Reservation{}, fmt.Errorf("%w: claim select: %v", queue.ErrDriverUnavailable, err)
	}

	var attempts int
	err = tx.QueryRow(ctx,
		`UPDATE routemq_queue_jobs SET reserved_at = now(), attempts = attempts + 1
		 WHERE id = $1 RETURNING attempts`,
		id,
	).Scan(&attempts)
	if err != nil {
		return queue.Reservation{}, fmt.Errorf("%w: claim update: %v", queue.ErrDriverUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return queue.Reservation{}, fmt.Errorf("%w: commit: %v", queue.ErrDriverUnavailable, err)
	}

	return queue.Reservation{ID: strconv.FormatInt(id, 10), Payload: payload, Attempts: attempts}, nil
}

// Delete removes the row for a successfully completed job.
func (d *Driver) Delete(ctx context.Context, _, id string) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM routemq_queue_jobs WHERE id = $1`, mustID(id))
	if err != nil {
		return fmt.Errorf("%w: delete: %v", queue.ErrDriverUnavailable, err)
	}
	return nil
}

// Release clears the reservation and sets a new available_at.
func (d *Driver) Release(ctx context.Context, _, id string, delaySeconds int) error {
	availableAt := time.Now().Add(time.Duration(delaySeconds) * time.Second)
	_, err := d.pool.Exec(ctx,
		`UPDATE routemq_queue_jobs SET reserved_at = NULL, available_at = $2 WHERE id = $1`,
		mustID(id), availableAt,
	)
	if err != nil {
		return fmt.Errorf("%w: release: %v", queue.ErrDriverUnavailable, err)
	}
	return nil
}

// Bury deletes the row from the primary table and inserts it into the
// failed-jobs table.
func (d *Driver) Bury(ctx context.Context, q, id string, payload []byte, exceptionText string) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", queue.ErrDriverUnavailable, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM routemq_queue_jobs WHERE id = $1`, mustID(id)); err != nil {
		return fmt.Errorf("%w: bury delete: %v", queue.ErrDriverUnavailable, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO routemq_failed_jobs (driver, queue, payload, exception) VALUES ('relational', $1, $2, $3)`,
		q, payload, exceptionText,
	); err != nil {
		return fmt.Errorf("%w: bury insert: %v", queue.ErrDriverUnavailable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", queue.ErrDriverUnavailable, err)
	}
	return nil
}

// Failed lists the buried jobs for queue, oldest first, alongside the
// exception text recorded when each was buried. The returned
// Reservation.ID is the failed-jobs row's own id — Bury already deleted
// the job's original row, so there is no earlier id to report.
func (d *Driver) Failed(ctx context.Context, q string) ([]queue.Reservation, []string, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, payload, exception FROM routemq_failed_jobs WHERE queue = $1 ORDER BY id`,
		q,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed: %v", queue.ErrDriverUnavailable, err)
	}
	defer rows.Close()

	var reservations []queue.Reservation
	var reasons []string
	for rows.Next() {
		var id int64
		var payload []byte
		var exception string
		if err := rows.Scan(&id, &payload, &exception); err != nil {
			return nil, nil, fmt.Errorf("%w: failed scan: %v", queue.ErrDriverUnavailable, err)
		}
		reservations = append(reservations, queue.Reservation{ID: strconv.FormatInt(id, 10), Payload: payload})
		reasons = append(reasons, exception)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: failed rows: %v", queue.ErrDriverUnavailable, err)
	}
	return reservations, reasons, nil
}

// Retry moves a buried job back to the primary table. Because Bury
// deletes the job's original row, the requeued job is a new row with a
// new id rather than the one it failed under — unlike the Memory-Store
// driver, which keeps the same id across a retry.
func (d *Driver) Retry(ctx context.Context, q, id string) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", queue.ErrDriverUnavailable, err)
	}
	defer tx.Rollback(ctx)

	var payload []byte
	err = tx.QueryRow(ctx,
		`SELECT payload FROM routemq_failed_jobs WHERE id = $1 AND queue = $2`,
		mustID(id), q,
	).Scan(&payload)
	if err == pgx.ErrNoRows {
		return fmt.Errorf("routemq/queue/relational: %q not found in failed store", id)
	}
	if err != nil {
		return fmt.Errorf("%w: retry select: %v", queue.ErrDriverUnavailable, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM routemq_failed_jobs WHERE id = $1`, mustID(id)); err != nil {
		return fmt.Errorf("%w: retry delete: %v", queue.ErrDriverUnavailable, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO routemq_queue_jobs (queue, payload, attempts, reserved_at, available_at) VALUES ($1, $2, 0, NULL, now())`,
		q, payload,
	); err != nil {
		return fmt.Errorf("%w: retry insert: %v", queue.ErrDriverUnavailable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", queue.ErrDriverUnavailable, err)
	}
	return nil
}

// Size reports the count of available (claimable) rows for queue.
func (d *Driver) Size(ctx context.Context, q string) (int64, error) {
	var n int64
	err := d.pool.QueryRow(ctx,
		`SELECT count(*) FROM routemq_queue_jobs WHERE queue = $1 AND reserved_at IS NULL AND available_at <= now()`,
		q,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: size: %v", queue.ErrDriverUnavailable, err)
	}
	return n, nil
}

// Close releases the connection pool.
func (d *Driver) Close() error {
	d.pool.Close()
	return nil
}

func mustID(id string) int64 {
	n, _ := strconv.ParseInt(id, 10, 64)
	return n
}

var _ queue.Driver = (*Driver)(nil)
