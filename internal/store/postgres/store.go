// Package postgres stores aggregates as JSONB documents in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/narvanalabs/resque/internal/message"
	"github.com/narvanalabs/resque/internal/models"
	queuepg "github.com/narvanalabs/resque/internal/queue/postgres"
	"github.com/narvanalabs/resque/internal/store"
)

// Schema is the database layout. Aggregates are stored as JSONB documents,
// with the columns that queries filter on kept alongside.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id         UUID PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	status     TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS projects (
	id         UUID PRIMARY KEY,
	owner_id   UUID NOT NULL,
	status     TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS requirements (
	id         UUID PRIMARY KEY,
	project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	status     TEXT NOT NULL,
	tags       TEXT[] NOT NULL DEFAULT '{}',
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS requirements_project_idx ON requirements (project_id);
CREATE INDEX IF NOT EXISTS requirements_tags_idx ON requirements USING GIN (tags);
` + queuepg.Schema

// PostgresStore implements store.Provider using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
	outbox bool
}

// Config describes the connection pool.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// Outbox writes every committed event to event_outbox in the same transaction.
	Outbox bool
}

// DefaultConfig returns the pool settings used when none are configured.
func DefaultConfig(dsn string) *Config {
	return &Config{
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

// NewPostgresStore opens the pool and pings the server once.
func NewPostgresStore(cfg *Config, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := New(db, logger, cfg.Outbox)
	s.logger.Info("connected to PostgreSQL database")
	return s, nil
}

// New wraps an open database.
func New(db *sql.DB, logger *slog.Logger, outbox bool) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger, outbox: outbox}
}

var _ store.Provider = (*PostgresStore)(nil)

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// NewUnitOfWork returns a unit of work backed by a database transaction.
func (s *PostgresStore) NewUnitOfWork() store.UnitOfWork {
	return &unitOfWork{store: s}
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.logger.Info("closing PostgreSQL connection")
	return s.db.Close()
}

// DB exposes the pool to the outbox queue and health checks.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

type unitOfWork struct {
	store.Scope
	store *PostgresStore
}

// Do runs fn inside a database transaction. The transaction is rolled back
// when fn fails or panics.
func (u *unitOfWork) Do(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := u.Enter(); err != nil {
		return err
	}
	committed := false
	defer func() { u.Exit(committed) }()

	sqlTx, err := u.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if committed {
			return
		}
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			u.store.logger.Error("failed to rollback transaction", "error", rbErr)
		}
	}()

	t := &txStore{tx: sqlTx, scope: &u.Scope}
	if err := fn(ctx, t); err != nil {
		return err
	}

	if u.store.outbox {
		for _, evt := range t.events {
			env, err := message.NewEventEnvelope(evt)
			if err != nil {
				return err
			}
			if err := queuepg.Insert(ctx, sqlTx, env); err != nil {
				return err
			}
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", translate(err))
	}
	committed = true
	return nil
}

// txStore is the transaction-scoped view handed to handlers.
type txStore struct {
	tx     *sql.Tx
	scope  *store.Scope
	events []message.Event
}

func (t *txStore) Users() store.UserRepository {
	return &userRepo{repo[models.User]{q: t.tx, table: usersTable}}
}

func (t *txStore) Projects() store.ProjectRepository {
	return &projectRepo{repo[models.Project]{q: t.tx, table: projectsTable}}
}

func (t *txStore) Requirements() store.RequirementRepository {
	return &requirementRepo{repo[models.Requirement]{q: t.tx, table: requirementsTable}}
}

func (t *txStore) Publish(events ...message.Event) {
	t.events = append(t.events, events...)
	t.scope.Record(events...)
}

// queryable is satisfied by *sql.DB and *sql.Tx.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
