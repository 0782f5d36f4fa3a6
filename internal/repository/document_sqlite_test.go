package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-encounter-server/internal/domain"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "documents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	doc := storedDocument(t, "patient-1", "dr-1", "appt-1")
	doc.CreatedAt = doc.CreatedAt.UTC().Truncate(time.Second)
	entry := domain.NewEntry(domain.ENTRY_PRESCRIPTION, "dr-1", "amoxicillin", domain.SEVERITY_ROUTINE)
	entry.Prescription = &domain.Prescription{
		DiagnosisID:    "dx-1",
		MedicationName: "amoxicillin",
		Dosage:         "500mg",
		Frequency:      "q8h",
		Route:          domain.ROUTE_ORAL,
		Refills:        2,
		GenericAllowed: true,
	}
	doc.AddEntry(entry)

	require.NoError(t, store.Add(ctx, doc))

	exists, err := store.Exists(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	found, err := store.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.PatientID, found.PatientID)
	assert.Equal(t, doc.AppointmentID, found.AppointmentID)
	assert.Equal(t, "persistent cough", found.ChiefComplaint)
	assert.False(t, found.Completed)
	require.Len(t, found.Entries, 1)

	got := found.Entries[0]
	assert.Equal(t, domain.ENTRY_PRESCRIPTION, got.Kind)
	assert.True(t, got.Active)
	require.NotNil(t, got.Prescription)
	assert.Equal(t, "amoxicillin", got.Prescription.MedicationName)
	assert.Equal(t, domain.ROUTE_ORAL, got.Prescription.Route)
	assert.Equal(t, 2, got.Prescription.Refills)

	found.Completed = true
	found.Entries[0].Deactivate()
	require.NoError(t, store.Update(ctx, found))

	updated, err := store.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	assert.False(t, updated.Entries[0].Active)

	require.NoError(t, store.Remove(ctx, doc.ID))
	_, err = store.FindByID(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStoreDuplicateAppointment(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	require.NoError(t, store.Add(ctx, storedDocument(t, "patient-1", "dr-1", "appt-1")))
	err := store.Add(ctx, storedDocument(t, "patient-2", "dr-2", "appt-1"))
	require.Error(t, err)

	has, err := store.AppointmentHasDocument(ctx, "appt-1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestSQLiteStoreUpdateAndRemoveMissing(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)
	doc := storedDocument(t, "patient-1", "dr-1", "appt-1")

	assert.ErrorIs(t, store.Update(ctx, doc), domain.ErrNotFound)
	assert.ErrorIs(t, store.Remove(ctx, doc.ID), domain.ErrNotFound)
}

func TestSQLiteStoreListingAndOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	older := storedDocument(t, "patient-1", "dr-1", "appt-1")
	older.CreatedAt = base
	newer := storedDocument(t, "patient-1", "dr-2", "appt-2")
	newer.CreatedAt = base.Add(time.Hour)
	other := storedDocument(t, "patient-2", "dr-1", "appt-3")
	other.CreatedAt = base.Add(2 * time.Hour)
	other.Completed = true

	for _, doc := range []*domain.ClinicalDocument{older, newer, other} {
		require.NoError(t, store.Add(ctx, doc))
	}

	byPatient, err := store.ListByPatient(ctx, "patient-1")
	require.NoError(t, err)
	require.Len(t, byPatient, 2)
	assert.Equal(t, newer.ID, byPatient[0].ID)
	assert.Equal(t, older.ID, byPatient[1].ID)

	byPhysician, err := store.ListByPhysician(ctx, "dr-1")
	require.NoError(t, err)
	require.Len(t, byPhysician, 2)
	assert.Equal(t, other.ID, byPhysician[0].ID)

	incomplete, err := store.ListIncomplete(ctx)
	require.NoError(t, err)
	require.Len(t, incomplete, 2)
	for _, doc := range incomplete {
		assert.False(t, doc.Completed)
	}

	ranged, err := store.ListByDateRange(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.Equal(t, newer.ID, ranged[0].ID)
}
