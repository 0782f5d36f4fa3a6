package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/clinical-encounter-server/internal/domain"
)

// SQLiteStore persists clinical documents in a SQLite database. Document
// header fields are stored as columns for querying; the entry list is
// stored as a JSON blob since entries are only ever read through their
// document.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (or creates) the database file and schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createDocumentSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

func createDocumentSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS clinical_documents (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		physician_id TEXT NOT NULL,
		appointment_id TEXT NOT NULL,
		chief_complaint TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		entries TEXT NOT NULL DEFAULT '[]',
		UNIQUE(appointment_id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_patient ON clinical_documents(patient_id);
	CREATE INDEX IF NOT EXISTS idx_documents_physician ON clinical_documents(physician_id);
	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON clinical_documents(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(s scanner) (*domain.ClinicalDocument, error) {
	doc := &domain.ClinicalDocument{}
	var completed int
	var entriesJSON string

	err := s.Scan(
		&doc.ID, &doc.PatientID, &doc.PhysicianID, &doc.AppointmentID,
		&doc.ChiefComplaint, &completed, &doc.CreatedAt, &entriesJSON,
	)
	if err != nil {
		return nil, err
	}

	doc.Completed = completed != 0
	if err := json.Unmarshal([]byte(entriesJSON), &doc.Entries); err != nil {
		return nil, fmt.Errorf("failed to decode entries: %w", err)
	}
	return doc, nil
}

const documentColumns = `id, patient_id, physician_id, appointment_id,
		chief_complaint, completed, created_at, entries`

// FindByID retrieves a document by ID.
func (s *SQLiteStore) FindByID(ctx context.Context, id string) (*domain.ClinicalDocument, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM clinical_documents
		WHERE id = ?
	`, id)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("clinical document %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return doc, nil
}

// Exists reports whether a document with the given ID is stored.
func (s *SQLiteStore) Exists(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM clinical_documents WHERE id = ?", id,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query: %w", err)
	}
	return count > 0, nil
}

// Add inserts a new document.
func (s *SQLiteStore) Add(ctx context.Context, doc *domain.ClinicalDocument) error {
	entriesJSON, err := json.Marshal(doc.Entries)
	if err != nil {
		return fmt.Errorf("failed to encode entries: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clinical_documents (
			id, patient_id, physician_id, appointment_id,
			chief_complaint, completed, created_at, entries
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		doc.ID, doc.PatientID, doc.PhysicianID, doc.AppointmentID,
		doc.ChiefComplaint, boolToInt(doc.Completed), doc.CreatedAt, string(entriesJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	return nil
}

// Update replaces the stored document.
func (s *SQLiteStore) Update(ctx context.Context, doc *domain.ClinicalDocument) error {
	entriesJSON, err := json.Marshal(doc.Entries)
	if err != nil {
		return fmt.Errorf("failed to encode entries: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE clinical_documents SET
			patient_id = ?,
			physician_id = ?,
			appointment_id = ?,
			chief_complaint = ?,
			completed = ?,
			entries = ?
		WHERE id = ?
	`,
		doc.PatientID, doc.PhysicianID, doc.AppointmentID,
		doc.ChiefComplaint, boolToInt(doc.Completed), string(entriesJSON), doc.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("clinical document %s: %w", doc.ID, domain.ErrNotFound)
	}
	return nil
}

// Remove deletes the document.
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM clinical_documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("clinical document %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListByPatient returns the patient's documents, newest first.
func (s *SQLiteStore) ListByPatient(ctx context.Context, patientID string) ([]*domain.ClinicalDocument, error) {
	return s.query(ctx, `
		SELECT `+documentColumns+`
		FROM clinical_documents
		WHERE patient_id = ?
		ORDER BY created_at DESC, id
	`, patientID)
}

// ListByPhysician returns the physician's documents, newest first.
func (s *SQLiteStore) ListByPhysician(ctx context.Context, physicianID string) ([]*domain.ClinicalDocument, error) {
	return s.query(ctx, `
		SELECT `+documentColumns+`
		FROM clinical_documents
		WHERE physician_id = ?
		ORDER BY created_at DESC, id
	`, physicianID)
}

// ListByDateRange returns documents created within [from, to], newest first.
func (s *SQLiteStore) ListByDateRange(ctx context.Context, from, to time.Time) ([]*domain.ClinicalDocument, error) {
	return s.query(ctx, `
		SELECT `+documentColumns+`
		FROM clinical_documents
		WHERE created_at >= ? AND created_at <= ?
		ORDER BY created_at DESC, id
	`, from, to)
}

// ListIncomplete returns draft documents, newest first.
func (s *SQLiteStore) ListIncomplete(ctx context.Context) ([]*domain.ClinicalDocument, error) {
	return s.query(ctx, `
		SELECT `+documentColumns+`
		FROM clinical_documents
		WHERE completed = 0
		ORDER BY created_at DESC, id
	`)
}

// AppointmentHasDocument reports whether any document cites the appointment.
func (s *SQLiteStore) AppointmentHasDocument(ctx context.Context, appointmentID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM clinical_documents WHERE appointment_id = ?", appointmentID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]*domain.ClinicalDocument, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*domain.ClinicalDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, doc)
	}
	return result, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
