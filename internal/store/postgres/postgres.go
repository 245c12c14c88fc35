// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/harborview/pulse/internal/outbox"
	"github.com/harborview/pulse/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) EnqueueOutbox(ctx context.Context, entry *outbox.Entry) error {
	return queryEnqueueOutbox(ctx, s.db, entry)
}

func (s *PostgresStore) GetOutboxEntry(ctx context.Context, id string) (*outbox.Entry, error) {
	return queryGetOutboxEntry(ctx, s.db, id)
}

func (s *PostgresStore) ListOutbox(ctx context.Context, filter outbox.Filter) ([]*outbox.Entry, error) {
	return queryListOutbox(ctx, s.db, filter)
}

func (s *PostgresStore) ListDueOutbox(ctx context.Context, now time.Time, limit int) ([]*outbox.Entry, error) {
	return queryListDueOutbox(ctx, s.db, now, limit)
}

func (s *PostgresStore) MarkOutboxSent(ctx context.Context, id string, sentAt time.Time) error {
	return queryMarkOutboxSent(ctx, s.db, id, sentAt)
}

func (s *PostgresStore) MarkOutboxFailed(ctx context.Context, id string, retryCount int, lastError string, nextRetryAt time.Time) error {
	return queryMarkOutboxFailed(ctx, s.db, id, retryCount, lastError, nextRetryAt)
}

func (s *PostgresStore) ListTerminalOutbox(ctx context.Context, since time.Time, limit int) ([]*outbox.Entry, error) {
	return queryListTerminalOutbox(ctx, s.db, since, limit)
}

func (s *PostgresStore) ScopesForUser(ctx context.Context, userID string) ([]string, error) {
	return queryScopesForUser(ctx, s.db, userID)
}
