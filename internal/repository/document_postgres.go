package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/clinical-encounter-server/internal/domain"
)

// PostgresStore persists clinical documents in PostgreSQL. Like the
// SQLite store it keeps header fields as columns and the entry list as a
// JSONB blob; the schema lives in migrations/.
type PostgresStore struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPostgresStore creates a document store backed by the given pool.
func NewPostgresStore(db *pgxpool.Pool, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{
		db:  db,
		log: logger,
	}
}

// FindByID retrieves a document by ID.
func (r *PostgresStore) FindByID(ctx context.Context, id string) (*domain.ClinicalDocument, error) {
	query := `
		SELECT id, patient_id, physician_id, appointment_id,
			   chief_complaint, completed, created_at, entries
		FROM clinical_documents
		WHERE id = $1`

	var doc domain.ClinicalDocument
	var entriesJSON []byte

	err := r.db.QueryRow(ctx, query, id).Scan(
		&doc.ID,
		&doc.PatientID,
		&doc.PhysicianID,
		&doc.AppointmentID,
		&doc.ChiefComplaint,
		&doc.Completed,
		&doc.CreatedAt,
		&entriesJSON,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("clinical document %s: %w", id, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"document_id": id,
			"error":       err,
		}).Error("Failed to get clinical document by ID")
		return nil, fmt.Errorf("getting clinical document by ID: %w", err)
	}

	if err := json.Unmarshal(entriesJSON, &doc.Entries); err != nil {
		return nil, fmt.Errorf("decoding entries: %w", err)
	}
	return &doc, nil
}

// Exists reports whether a document with the given ID is stored.
func (r *PostgresStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM clinical_documents WHERE id = $1)", id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking clinical document existence: %w", err)
	}
	return exists, nil
}

// Add inserts a new document.
func (r *PostgresStore) Add(ctx context.Context, doc *domain.ClinicalDocument) error {
	entriesJSON, err := json.Marshal(doc.Entries)
	if err != nil {
		return fmt.Errorf("encoding entries: %w", err)
	}

	query := `
		INSERT INTO clinical_documents (
			id, patient_id, physician_id, appointment_id,
			chief_complaint, completed, created_at, entries
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)`

	_, err = r.db.Exec(ctx, query,
		doc.ID,
		doc.PatientID,
		doc.PhysicianID,
		doc.AppointmentID,
		doc.ChiefComplaint,
		doc.Completed,
		doc.CreatedAt,
		entriesJSON,
	)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"document_id": doc.ID,
			"patient_id":  doc.PatientID,
			"error":       err,
		}).Error("Failed to create clinical document")
		return fmt.Errorf("creating clinical document: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"patient_id":  doc.PatientID,
	}).Info("Clinical document created")

	return nil
}

// Update replaces the stored document.
func (r *PostgresStore) Update(ctx context.Context, doc *domain.ClinicalDocument) error {
	entriesJSON, err := json.Marshal(doc.Entries)
	if err != nil {
		return fmt.Errorf("encoding entries: %w", err)
	}

	query := `
		UPDATE clinical_documents
		SET patient_id = $2, physician_id = $3, appointment_id = $4,
			chief_complaint = $5, completed = $6, entries = $7,
			updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query,
		doc.ID,
		doc.PatientID,
		doc.PhysicianID,
		doc.AppointmentID,
		doc.ChiefComplaint,
		doc.Completed,
		entriesJSON,
	)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"document_id": doc.ID,
			"error":       err,
		}).Error("Failed to update clinical document")
		return fmt.Errorf("updating clinical document: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("clinical document %s: %w", doc.ID, domain.ErrNotFound)
	}
	return nil
}

// Remove deletes the document.
func (r *PostgresStore) Remove(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, "DELETE FROM clinical_documents WHERE id = $1", id)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"document_id": id,
			"error":       err,
		}).Error("Failed to delete clinical document")
		return fmt.Errorf("deleting clinical document: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("clinical document %s: %w", id, domain.ErrNotFound)
	}

	r.log.WithFields(logrus.Fields{
		"document_id": id,
	}).Info("Clinical document deleted")

	return nil
}

// ListByPatient returns the patient's documents, newest first.
func (r *PostgresStore) ListByPatient(ctx context.Context, patientID string) ([]*domain.ClinicalDocument, error) {
	query := `
		SELECT id, patient_id, physician_id, appointment_id,
			   chief_complaint, completed, created_at, entries
		FROM clinical_documents
		WHERE patient_id = $1
		ORDER BY created_at DESC, id`

	return r.queryDocuments(ctx, query, patientID)
}

// ListByPhysician returns the physician's documents, newest first.
func (r *PostgresStore) ListByPhysician(ctx context.Context, physicianID string) ([]*domain.ClinicalDocument, error) {
	query := `
		SELECT id, patient_id, physician_id, appointment_id,
			   chief_complaint, completed, created_at, entries
		FROM clinical_documents
		WHERE physician_id = $1
		ORDER BY created_at DESC, id`

	return r.queryDocuments(ctx, query, physicianID)
}

// ListByDateRange returns documents created within [from, to], newest first.
func (r *PostgresStore) ListByDateRange(ctx context.Context, from, to time.Time) ([]*domain.ClinicalDocument, error) {
	query := `
		SELECT id, patient_id, physician_id, appointment_id,
			   chief_complaint, completed, created_at, entries
		FROM clinical_documents
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at DESC, id`

	return r.queryDocuments(ctx, query, from, to)
}

// ListIncomplete returns draft documents, newest first.
func (r *PostgresStore) ListIncomplete(ctx context.Context) ([]*domain.ClinicalDocument, error) {
	query := `
		SELECT id, patient_id, physician_id, appointment_id,
			   chief_complaint, completed, created_at, entries
		FROM clinical_documents
		WHERE completed = FALSE
		ORDER BY created_at DESC, id`

	return r.queryDocuments(ctx, query)
}

// AppointmentHasDocument reports whether any document cites the appointment.
func (r *PostgresStore) AppointmentHasDocument(ctx context.Context, appointmentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM clinical_documents WHERE appointment_id = $1)", appointmentID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking appointment documents: %w", err)
	}
	return exists, nil
}

func (r *PostgresStore) queryDocuments(ctx context.Context, query string, args ...any) ([]*domain.ClinicalDocument, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"error": err,
		}).Error("Failed to query clinical documents")
		return nil, fmt.Errorf("querying clinical documents: %w", err)
	}
	defer rows.Close()

	var docs []*domain.ClinicalDocument
	for rows.Next() {
		var doc domain.ClinicalDocument
		var entriesJSON []byte

		err := rows.Scan(
			&doc.ID,
			&doc.PatientID,
			&doc.PhysicianID,
			&doc.AppointmentID,
			&doc.ChiefComplaint,
			&doc.Completed,
			&doc.CreatedAt,
			&entriesJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning clinical document row: %w", err)
		}
		if err := json.Unmarshal(entriesJSON, &doc.Entries); err != nil {
			return nil, fmt.Errorf("decoding entries: %w", err)
		}

		docs = append(docs, &doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating clinical document rows: %w", err)
	}

	return docs, nil
}
