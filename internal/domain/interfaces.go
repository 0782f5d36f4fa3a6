package domain

import (
	"context"
	"time"
)

// DocumentStore is the persistence contract for clinical documents. The
// store owns concurrency control (locking or single-writer queuing); the
// aggregate itself performs no locking.
type DocumentStore interface {
	FindByID(ctx context.Context, id string) (*ClinicalDocument, error)
	Exists(ctx context.Context, id string) (bool, error)
	Add(ctx context.Context, doc *ClinicalDocument) error
	Update(ctx context.Context, doc *ClinicalDocument) error
	Remove(ctx context.Context, id string) error
	ListByPatient(ctx context.Context, patientID string) ([]*ClinicalDocument, error)
	ListByPhysician(ctx context.Context, physicianID string) ([]*ClinicalDocument, error)
	ListByDateRange(ctx context.Context, from, to time.Time) ([]*ClinicalDocument, error)
	ListIncomplete(ctx context.Context) ([]*ClinicalDocument, error)
	AppointmentHasDocument(ctx context.Context, appointmentID string) (bool, error)
}

// Profile is the read-only identity projection used for display names and
// role resolution. Profile lookups never mutate clinical state.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// ProfileDirectory resolves user profiles from the external identity
// service.
type ProfileDirectory interface {
	FindProfileByID(ctx context.Context, id string) (*Profile, error)
}

// Session is the authenticated caller context checked before execution.
type Session interface {
	UserID() string
	Role() Role
	HasPermission(p Permission) bool
}

// AuditEvent records a privileged or lifecycle-changing operation.
type AuditEvent struct {
	Action     string    `json:"action"`
	ActorID    string    `json:"actor_id"`
	DocumentID string    `json:"document_id"`
	Detail     string    `json:"detail,omitempty"`
	At         time.Time `json:"at"`
}

// AuditTrail receives audit events. Implementations must not fail the
// operation being audited.
type AuditTrail interface {
	Record(ctx context.Context, event AuditEvent)
}
