package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/clinical-encounter-server/internal/domain"
)

// MemoryStore is an in-memory document store. It is the default backend
// for tests and single-process development runs. All methods are safe for
// concurrent use; documents are deep-copied on the way in and out so
// callers can never mutate stored state without going through Update.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*domain.ClinicalDocument
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*domain.ClinicalDocument)}
}

// FindByID returns a copy of the document, or domain.ErrNotFound.
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*domain.ClinicalDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("clinical document %s: %w", id, domain.ErrNotFound)
	}
	return cloneDocument(doc), nil
}

// Exists reports whether a document with the given ID is stored.
func (s *MemoryStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.docs[id]
	return ok, nil
}

// Add stores a new document. Adding an existing ID is an error.
func (s *MemoryStore) Add(ctx context.Context, doc *domain.ClinicalDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[doc.ID]; ok {
		return fmt.Errorf("clinical document %s already exists", doc.ID)
	}
	s.docs[doc.ID] = cloneDocument(doc)
	return nil
}

// Update replaces the stored document.
func (s *MemoryStore) Update(ctx context.Context, doc *domain.ClinicalDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[doc.ID]; !ok {
		return fmt.Errorf("clinical document %s: %w", doc.ID, domain.ErrNotFound)
	}
	s.docs[doc.ID] = cloneDocument(doc)
	return nil
}

// Remove deletes the document.
func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("clinical document %s: %w", id, domain.ErrNotFound)
	}
	delete(s.docs, id)
	return nil
}

// ListByPatient returns the patient's documents, newest first.
func (s *MemoryStore) ListByPatient(ctx context.Context, patientID string) ([]*domain.ClinicalDocument, error) {
	return s.list(func(doc *domain.ClinicalDocument) bool {
		return doc.PatientID == patientID
	}), nil
}

// ListByPhysician returns the physician's documents, newest first.
func (s *MemoryStore) ListByPhysician(ctx context.Context, physicianID string) ([]*domain.ClinicalDocument, error) {
	return s.list(func(doc *domain.ClinicalDocument) bool {
		return doc.PhysicianID == physicianID
	}), nil
}

// ListByDateRange returns documents created within [from, to], newest first.
func (s *MemoryStore) ListByDateRange(ctx context.Context, from, to time.Time) ([]*domain.ClinicalDocument, error) {
	return s.list(func(doc *domain.ClinicalDocument) bool {
		return !doc.CreatedAt.Before(from) && !doc.CreatedAt.After(to)
	}), nil
}

// ListIncomplete returns draft documents, newest first.
func (s *MemoryStore) ListIncomplete(ctx context.Context) ([]*domain.ClinicalDocument, error) {
	return s.list(func(doc *domain.ClinicalDocument) bool {
		return !doc.Completed
	}), nil
}

// AppointmentHasDocument reports whether any document cites the appointment.
func (s *MemoryStore) AppointmentHasDocument(ctx context.Context, appointmentID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, doc := range s.docs {
		if doc.AppointmentID == appointmentID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) list(match func(*domain.ClinicalDocument) bool) []*domain.ClinicalDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ClinicalDocument
	for _, doc := range s.docs {
		if match(doc) {
			result = append(result, cloneDocument(doc))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

// cloneDocument deep-copies a document including entries and their
// payloads.
func cloneDocument(doc *domain.ClinicalDocument) *domain.ClinicalDocument {
	out := *doc
	out.Entries = make([]*domain.Entry, len(doc.Entries))
	for i, entry := range doc.Entries {
		out.Entries[i] = cloneEntry(entry)
	}
	return &out
}

func cloneEntry(entry *domain.Entry) *domain.Entry {
	out := *entry
	if entry.Observation != nil {
		obs := *entry.Observation
		if entry.Observation.Value != nil {
			v := *entry.Observation.Value
			obs.Value = &v
		}
		if entry.Observation.VitalSigns != nil {
			obs.VitalSigns = make(map[string]float64, len(entry.Observation.VitalSigns))
			for k, v := range entry.Observation.VitalSigns {
				obs.VitalSigns[k] = v
			}
		}
		out.Observation = &obs
	}
	if entry.Assessment != nil {
		a := *entry.Assessment
		a.DifferentialDiagnoses = append([]string(nil), entry.Assessment.DifferentialDiagnoses...)
		a.RiskFactors = append([]string(nil), entry.Assessment.RiskFactors...)
		out.Assessment = &a
	}
	if entry.Diagnosis != nil {
		dx := *entry.Diagnosis
		if entry.Diagnosis.OnsetDate != nil {
			t := *entry.Diagnosis.OnsetDate
			dx.OnsetDate = &t
		}
		out.Diagnosis = &dx
	}
	if entry.Plan != nil {
		p := *entry.Plan
		if entry.Plan.TargetDate != nil {
			t := *entry.Plan.TargetDate
			p.TargetDate = &t
		}
		if entry.Plan.CompletedAt != nil {
			t := *entry.Plan.CompletedAt
			p.CompletedAt = &t
		}
		p.RelatedDiagnosisIDs = append([]string(nil), entry.Plan.RelatedDiagnosisIDs...)
		out.Plan = &p
	}
	if entry.Prescription != nil {
		rx := *entry.Prescription
		if entry.Prescription.ExpirationDate != nil {
			t := *entry.Prescription.ExpirationDate
			rx.ExpirationDate = &t
		}
		out.Prescription = &rx
	}
	return &out
}
