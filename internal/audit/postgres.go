package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/clinical-encounter-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL audit store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL audit store from a
// connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Save appends an audit event.
func (s *PostgresStore) Save(ctx context.Context, event *domain.AuditEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (action, actor_id, document_id, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		event.Action, event.ActorID, event.DocumentID, event.Detail, event.At,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	return nil
}

// List returns audit events with pagination, newest first.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*domain.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, actor_id, document_id, detail, occurred_at
		FROM audit_events
		ORDER BY occurred_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// ListByDocument returns all events for one document, oldest first.
func (s *PostgresStore) ListByDocument(ctx context.Context, documentID string) ([]*domain.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, actor_id, document_id, detail, occurred_at
		FROM audit_events
		WHERE document_id = $1
		ORDER BY occurred_at, id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// Count returns the total number of audit events.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events").Scan(&count)
	return count, err
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
