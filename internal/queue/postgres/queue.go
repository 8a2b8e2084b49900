// Package postgres provides a PostgreSQL-backed implementation of the event outbox.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/resque/internal/message"
	"github.com/narvanalabs/resque/internal/queue"
)

// Schema creates the outbox table. It is applied by the store migrations.
const Schema = `
CREATE TABLE IF NOT EXISTS event_outbox (
	id          UUID PRIMARY KEY,
	envelope    JSONB NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT,
	created_at  TIMESTAMPTZ NOT NULL,
	started_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS event_outbox_pending_idx ON event_outbox (created_at) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS event_outbox_processing_idx ON event_outbox (started_at) WHERE status = 'processing';
`

// DefaultLease is how long a dequeued envelope may stay unacknowledged
// before another relay takes it over.
const DefaultLease = 5 * time.Minute

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Insert writes env to the outbox through ex. Duplicate ids are ignored so
// that a retried publish does not deliver twice.
func Insert(ctx context.Context, ex Execer, env *message.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope to JSON: %w", err)
	}

	query := `
		INSERT INTO event_outbox (id, envelope, status, created_at)
		VALUES ($1, $2, 'pending', $3)
		ON CONFLICT (id) DO NOTHING`

	if _, err := ex.ExecContext(ctx, query, env.ID, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("inserting envelope into outbox: %w", err)
	}
	return nil
}

// PostgresQueue is the transactional outbox table read as a work queue.
// Delivery is at least once: an entry whose lease lapses before Ack, Nack or
// DeadLetter is handed out again.
type PostgresQueue struct {
	db     *sql.DB
	logger *slog.Logger
	lease  time.Duration
}

// Option configures a PostgresQueue.
type Option func(*PostgresQueue)

// WithLease sets how long a dequeued entry stays reserved.
func WithLease(d time.Duration) Option {
	return func(q *PostgresQueue) {
		if d > 0 {
			q.lease = d
		}
	}
}

// NewPostgresQueue creates a new PostgreSQL-backed outbox.
func NewPostgresQueue(db *sql.DB, logger *slog.Logger, opts ...Option) *PostgresQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &PostgresQueue{
		db:     db,
		logger: logger,
		lease:  DefaultLease,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

var _ queue.Queue = (*PostgresQueue)(nil)

// Enqueue adds an envelope to the outbox.
func (q *PostgresQueue) Enqueue(ctx context.Context, env *message.Envelope) error {
	if err := Insert(ctx, q.db, env); err != nil {
		return err
	}
	q.logger.Debug("enqueued envelope", "message_id", env.ID, "type", env.Type)
	return nil
}

// Dequeue reserves the oldest pending envelope, or an envelope whose lease
// has lapsed. Taking over a lapsed entry counts as a failed attempt.
// Uses SELECT FOR UPDATE SKIP LOCKED so several relays can share the table.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*queue.Entry, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	selectQuery := `
		SELECT id, envelope, retry_count, status
		FROM event_outbox
		WHERE status = 'pending'
		   OR (status = 'processing' AND started_at < $1)
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	now := time.Now().UTC()
	var id uuid.UUID
	var data []byte
	var attempts int
	var status string
	err = tx.QueryRowContext(ctx, selectQuery, now.Add(-q.lease)).Scan(&id, &data, &attempts, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, queue.ErrEmpty
		}
		return nil, fmt.Errorf("selecting envelope from outbox: %w", err)
	}

	if status == "processing" {
		attempts++
		q.logger.Warn("reclaiming envelope with lapsed lease", "message_id", id, "attempts", attempts)
	}

	updateQuery := `
		UPDATE event_outbox
		SET status = 'processing', started_at = $2, retry_count = $3
		WHERE id = $1`

	if _, err := tx.ExecContext(ctx, updateQuery, id, now, attempts); err != nil {
		return nil, fmt.Errorf("updating envelope status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	var env message.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshaling envelope from JSON: %w", err)
	}

	q.logger.Debug("dequeued envelope", "message_id", id, "attempts", attempts)
	return &queue.Entry{Envelope: &env, Attempts: attempts}, nil
}

// Ack removes a delivered envelope from the outbox.
func (q *PostgresQueue) Ack(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM event_outbox
		WHERE id = $1 AND status = 'processing'`

	if err := q.execOne(ctx, query, id); err != nil {
		return err
	}
	q.logger.Debug("acknowledged envelope", "message_id", id)
	return nil
}

// Nack makes the envelope available for another delivery attempt.
func (q *PostgresQueue) Nack(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE event_outbox
		SET status = 'pending', started_at = NULL, retry_count = retry_count + 1
		WHERE id = $1 AND status = 'processing'`

	if err := q.execOne(ctx, query, id); err != nil {
		return err
	}
	q.logger.Debug("nacked envelope", "message_id", id)
	return nil
}

// DeadLetter parks the envelope with the reason it could not be delivered.
func (q *PostgresQueue) DeadLetter(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE event_outbox
		SET status = 'dead', started_at = NULL, last_error = $2
		WHERE id = $1 AND status = 'processing'`

	if err := q.execOne(ctx, query, id, reason); err != nil {
		return err
	}
	q.logger.Warn("dead-lettered envelope", "message_id", id, "reason", reason)
	return nil
}

func (q *PostgresQueue) execOne(ctx context.Context, query string, args ...any) error {
	result, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating outbox: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return queue.ErrEntryNotFound
	}
	return nil
}
