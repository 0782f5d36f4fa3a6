package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/clinical-encounter-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite audit store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		document_id TEXT NOT NULL DEFAULT '',
		detail TEXT DEFAULT '',
		occurred_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_document ON audit_events(document_id);
	CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_events(actor_id);
	CREATE INDEX IF NOT EXISTS idx_audit_occurred_at ON audit_events(occurred_at);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(s scanner) (*domain.AuditEvent, error) {
	var id int64
	event := &domain.AuditEvent{}
	err := s.Scan(&id, &event.Action, &event.ActorID, &event.DocumentID, &event.Detail, &event.At)
	if err != nil {
		return nil, err
	}
	return event, nil
}

// Save appends an audit event.
func (s *SQLiteStore) Save(ctx context.Context, event *domain.AuditEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (action, actor_id, document_id, detail, occurred_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		event.Action, event.ActorID, event.DocumentID, event.Detail, event.At,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	return nil
}

// List returns audit events with pagination, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*domain.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, actor_id, document_id, detail, occurred_at
		FROM audit_events
		ORDER BY occurred_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// ListByDocument returns all events for one document, oldest first.
func (s *SQLiteStore) ListByDocument(ctx context.Context, documentID string) ([]*domain.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, actor_id, document_id, detail, occurred_at
		FROM audit_events
		WHERE document_id = ?
		ORDER BY occurred_at, id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// Count returns the total number of audit events.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events").Scan(&count)
	return count, err
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func collectEvents(rows *sql.Rows) ([]*domain.AuditEvent, error) {
	var result []*domain.AuditEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, event)
	}
	return result, rows.Err()
}

// maxExportLimit is the maximum number of events to export at once.
const maxExportLimit = 1000000

// auditExport is the JSON envelope written by Export.
type auditExport struct {
	Version    string               `json:"version"`
	ExportedAt time.Time            `json:"exported_at"`
	Count      int                  `json:"count"`
	Events     []*domain.AuditEvent `json:"events"`
}

func exportJSON(ctx context.Context, store Store, w io.Writer) (int, error) {
	all, err := store.List(ctx, maxExportLimit, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list audit events: %w", err)
	}

	export := &auditExport{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Count:      len(all),
		Events:     all,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(export); err != nil {
		return 0, err
	}
	return len(all), nil
}
