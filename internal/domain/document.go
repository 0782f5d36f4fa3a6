package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ClinicalDocument is the encounter-scoped aggregate holding every entry
// recorded during one patient visit. Patient, physician and appointment
// links are immutable once created; the entry sequence preserves insertion
// order and is never reordered. Once completed the document is terminal:
// entries may not be added, removed or mutated and the chief complaint is
// frozen.
type ClinicalDocument struct {
	ID             string    `json:"id"`
	PatientID      string    `json:"patient_id"`
	PhysicianID    string    `json:"physician_id"`
	AppointmentID  string    `json:"appointment_id"`
	ChiefComplaint string    `json:"chief_complaint"`
	CreatedAt      time.Time `json:"created_at"`
	Completed      bool      `json:"completed"`
	Entries        []*Entry  `json:"entries"`
}

// NewClinicalDocument creates a draft document for an encounter. Patient,
// physician and appointment identifiers are required, as is a chief
// complaint within the length limit.
func NewClinicalDocument(patientID, physicianID, appointmentID, chiefComplaint string) (*ClinicalDocument, error) {
	if patientID == "" {
		return nil, fmt.Errorf("clinical document: %w", fmt.Errorf("patient ID is required"))
	}
	if physicianID == "" {
		return nil, fmt.Errorf("clinical document: %w", fmt.Errorf("physician ID is required"))
	}
	if appointmentID == "" {
		return nil, fmt.Errorf("clinical document: %w", fmt.Errorf("appointment ID is required"))
	}
	if chiefComplaint == "" {
		return nil, fmt.Errorf("clinical document: %w", fmt.Errorf("chief complaint is required"))
	}
	if len(chiefComplaint) > MaxChiefComplaintLength {
		return nil, fmt.Errorf("clinical document: chief complaint exceeds %d characters", MaxChiefComplaintLength)
	}

	return &ClinicalDocument{
		ID:             uuid.New().String(),
		PatientID:      patientID,
		PhysicianID:    physicianID,
		AppointmentID:  appointmentID,
		ChiefComplaint: chiefComplaint,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// AddEntry appends an entry, preserving insertion order. Completed documents
// reject all additions.
func (d *ClinicalDocument) AddEntry(e *Entry) error {
	if d.Completed {
		return ErrDocumentCompleted
	}
	d.Entries = append(d.Entries, e)
	return nil
}

// FindEntry returns the entry with the given id, or nil.
func (d *ClinicalDocument) FindEntry(id string) *Entry {
	for _, e := range d.Entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// FindEntryOfKind returns the entry with the given id only if it is of the
// expected kind.
func (d *ClinicalDocument) FindEntryOfKind(id string, kind EntryKind) *Entry {
	e := d.FindEntry(id)
	if e == nil || e.Kind != kind {
		return nil
	}
	return e
}

// EntriesOfKind returns the entries of the given kind in insertion order.
// When activeOnly is set, soft-deleted entries are filtered out.
func (d *ClinicalDocument) EntriesOfKind(kind EntryKind, activeOnly bool) []*Entry {
	var out []*Entry
	for _, e := range d.Entries {
		if e.Kind != kind {
			continue
		}
		if activeOnly && !e.Active {
			continue
		}
		out = append(out, e)
	}
	return out
}

// ActiveDiagnosisByID returns the diagnosis entry with the given id if it
// exists and is active, or nil. Prescription and plan references resolve
// through this lookup so inactive diagnoses cannot be linked.
func (d *ClinicalDocument) ActiveDiagnosisByID(id string) *Entry {
	e := d.FindEntryOfKind(id, ENTRY_DIAGNOSIS)
	if e == nil || !e.Active {
		return nil
	}
	return e
}

// EntryCount returns the total number of entries, including inactive ones.
func (d *ClinicalDocument) EntryCount() int {
	return len(d.Entries)
}

// ActiveEntryCount returns the number of active entries.
func (d *ClinicalDocument) ActiveEntryCount() int {
	n := 0
	for _, e := range d.Entries {
		if e.Active {
			n++
		}
	}
	return n
}

// SetChiefComplaint updates the chief complaint with diff semantics. The
// field is frozen once the document is completed.
func (d *ClinicalDocument) SetChiefComplaint(text string) (bool, error) {
	if d.Completed {
		return false, ErrDocumentCompleted
	}
	if text == "" {
		return false, fmt.Errorf("chief complaint is required")
	}
	if len(text) > MaxChiefComplaintLength {
		return false, fmt.Errorf("chief complaint exceeds %d characters", MaxChiefComplaintLength)
	}
	if d.ChiefComplaint == text {
		return false, nil
	}
	d.ChiefComplaint = text
	return true, nil
}

// SetPrimaryDiagnosis marks the diagnosis with the given id primary and
// clears the flag on every sibling diagnosis first, so no caller can
// observe two primaries. The target must exist and be active.
func (d *ClinicalDocument) SetPrimaryDiagnosis(id string) error {
	if d.Completed {
		return ErrDocumentCompleted
	}
	target := d.ActiveDiagnosisByID(id)
	if target == nil {
		return fmt.Errorf("diagnosis %s: %w", id, ErrNotFound)
	}
	for _, e := range d.EntriesOfKind(ENTRY_DIAGNOSIS, false) {
		if e.ID != id && e.Diagnosis.IsPrimary {
			e.Diagnosis.IsPrimary = false
			e.Touch()
		}
	}
	if !target.Diagnosis.IsPrimary {
		target.Diagnosis.IsPrimary = true
		target.Touch()
	}
	return nil
}

// PrimaryDiagnosis returns the diagnosis currently marked primary, or nil.
func (d *ClinicalDocument) PrimaryDiagnosis() *Entry {
	for _, e := range d.EntriesOfKind(ENTRY_DIAGNOSIS, true) {
		if e.Diagnosis.IsPrimary {
			return e
		}
	}
	return nil
}

// CompletenessViolations recomputes the completion guard: every active entry
// must satisfy its kind-specific invariants, and every diagnosis reference
// must resolve to an active diagnosis of this document. The returned strings
// name the violated rules and are surfaced as validation errors by the
// completing command.
func (d *ClinicalDocument) CompletenessViolations() []string {
	v := NewValidationResult()

	for _, e := range d.Entries {
		if !e.Active {
			continue
		}
		e.CheckInvariants(v)

		switch e.Kind {
		case ENTRY_OBSERVATION:
			if e.Content == "" {
				v.AddError("observation %s: content is required", e.ID)
			}
		case ENTRY_PLAN:
			if e.Plan == nil {
				continue
			}
			for _, ref := range e.Plan.RelatedDiagnosisIDs {
				if d.ActiveDiagnosisByID(ref) == nil {
					v.AddError("plan %s: related diagnosis %s is not an active diagnosis in this document", e.ID, ref)
				}
			}
		case ENTRY_PRESCRIPTION:
			if e.Prescription == nil || e.Prescription.DiagnosisID == "" {
				continue
			}
			if d.ActiveDiagnosisByID(e.Prescription.DiagnosisID) == nil {
				v.AddError("prescription %s: linked diagnosis %s is not an active diagnosis in this document", e.ID, e.Prescription.DiagnosisID)
			}
		}
	}

	return v.Errors
}

// Complete transitions the document from draft to completed. The transition
// is guarded by the completeness check and is the single forward transition
// of the document lifecycle; there is no reverse.
func (d *ClinicalDocument) Complete() error {
	if d.Completed {
		return ErrDocumentCompleted
	}
	if violations := d.CompletenessViolations(); len(violations) > 0 {
		return fmt.Errorf("document %s is not complete: %d rule(s) violated", d.ID, len(violations))
	}
	d.Completed = true
	return nil
}
