package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-encounter-server/internal/domain"
)

func (f *fixture) addPrescription(t *testing.T, docID, diagnosisID string, extra func(*domain.ParameterBag)) *domain.OperationResult {
	t.Helper()
	bag := domain.NewParameterBag().
		Set("document_id", docID).
		Set("diagnosis_id", diagnosisID).
		Set("medication_name", "lisinopril").
		Set("dosage", "10mg").
		Set("frequency", "daily")
	if extra != nil {
		extra(bag)
	}
	return f.invoker.Dispatch(context.Background(), NewAddPrescriptionCommand(f.store, f.log), bag, physicianSession())
}

func TestAddPrescriptionDefaults(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t)
	dx := f.addDiagnosis(t, doc.ID, "hypertension")

	result := f.addPrescription(t, doc.ID, dx.ID, nil)
	require.True(t, result.Success, "%s %v", result.Message, result.Errors)

	entry := result.Payload.(*domain.Entry)
	rx := entry.Prescription
	assert.Equal(t, domain.ROUTE_ORAL, rx.Route)
	assert.True(t, rx.GenericAllowed)
	assert.Nil(t, rx.ExpirationDate)
	// Content defaults to the medication name.
	assert.Equal(t, "lisinopril", entry.Content)
}

func TestAddPrescriptionRequiresActiveDiagnosis(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t)

	result := f.addPrescription(t, doc.ID, "dx-unknown", nil)
	require.False(t, result.Success)
	assert.Contains(t, result.Errors[0], "active diagnosis")

	// An inactive diagnosis is just as unusable as a missing one.
	dx := f.addDiagnosis(t, doc.ID, "hypertension")
	require.True(t, f.invoker.UndoLast(context.Background(), physicianSession()).Success)

	result = f.addPrescription(t, doc.ID, dx.ID, nil)
	require.False(t, result.Success)
	assert.Contains(t, result.Errors[0], "active diagnosis")
}

func TestAddPrescriptionPrescribePermission(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t)
	dx := f.addDiagnosis(t, doc.ID, "hypertension")

	bag := domain.NewParameterBag().
		Set("document_id", doc.ID).
		Set("diagnosis_id", dx.ID).
		Set("medication_name", "lisinopril").
		Set("dosage", "10mg").
		Set("frequency", "daily")

	// Nurses document but do not prescribe.
	nurse := &testSession{userID: "nurse-1", role: domain.ROLE_NURSE}
	result := f.invoker.Dispatch(context.Background(), NewAddPrescriptionCommand(f.store, f.log), bag, nurse)
	require.False(t, result.Success)

	var cmdErr *domain.CommandError
	require.ErrorAs(t, result.Cause, &cmdErr)
	assert.Equal(t, domain.ErrCodePermissionDenied, cmdErr.Code)
}

func TestAddControlledPrescriptionDefaultExpiry(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t)
	dx := f.addDiagnosis(t, doc.ID, "post-surgical pain")

	result := f.addPrescription(t, doc.ID, dx.ID, func(bag *domain.ParameterBag) {
		bag.Set("medication_name", "oxycodone").
			Set("controlled_schedule", 2).
			Set("refills", 0)
	})
	require.True(t, result.Success, "%s %v", result.Message, result.Errors)

	entry := result.Payload.(*domain.Entry)
	rx := entry.Prescription
	require.NotNil(t, rx.ExpirationDate)
	assert.Equal(t, domain.DefaultPrescriptionExpiry(entry.CreatedAt), *rx.ExpirationDate)
}

func TestAddPrescriptionSchedule2RefillCap(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t)
	dx := f.addDiagnosis(t, doc.ID, "post-surgical pain")

	result := f.addPrescription(t, doc.ID, dx.ID, func(bag *domain.ParameterBag) {
		bag.Set("controlled_schedule", 2).Set("refills", domain.Schedule2MaxRefills+1)
	})
	require.False(t, result.Success)
	assert.Contains(t, result.Errors[0], "at most")

	// Schedule 3 is not subject to the cap.
	result = f.addPrescription(t, doc.ID, dx.ID, func(bag *domain.ParameterBag) {
		bag.Set("controlled_schedule", 3).Set("refills", domain.Schedule2MaxRefills+1)
	})
	assert.True(t, result.Success)
}

func TestAddPrescriptionInvalidSchedule(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t)
	dx := f.addDiagnosis(t, doc.ID, "hypertension")

	result := f.addPrescription(t, doc.ID, dx.ID, func(bag *domain.ParameterBag) {
		bag.Set("controlled_schedule", 7)
	})
	require.False(t, result.Success)
	assert.Contains(t, result.Errors[0], "between 1 and 5")
}

func TestUpdatePrescriptionCombinedStateRefillCap(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t)
	dx := f.addDiagnosis(t, doc.ID, "post-surgical pain")

	created := f.addPrescription(t, doc.ID, dx.ID, func(bag *domain.ParameterBag) {
		bag.Set("controlled_schedule", 2).Set("refills", 4)
	})
	require.True(t, created.Success)
	entry := created.Payload.(*domain.Entry)

	// Raising refills past the cap is rejected against the stored schedule.
	bag := domain.NewParameterBag().
		Set("document_id", doc.ID).
		Set("entry_id", entry.ID).
		Set("refills", domain.Schedule2MaxRefills+1)
	result := f.invoker.Dispatch(context.Background(), NewUpdatePrescriptionCommand(f.store, f.log), bag, physicianSession())
	require.False(t, result.Success)
	assert.Contains(t, result.Errors[0], "at most")
}

func TestUpdatePrescriptionBecomingControlledGetsExpiry(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t)
	dx := f.addDiagnosis(t, doc.ID, "chronic pain")

	created := f.addPrescription(t, doc.ID, dx.ID, nil)
	require.True(t, created.Success)
	entry := created.Payload.(*domain.Entry)
	require.Nil(t, entry.Prescription.ExpirationDate)

	bag := domain.NewParameterBag().
		Set("document_id", doc.ID).
		Set("entry_id", entry.ID).
		Set("controlled_schedule", 4)
	result := f.invoker.Dispatch(context.Background(), NewUpdatePrescriptionCommand(f.store, f.log), bag, physicianSession())
	require.True(t, result.Success, "%s %v", result.Message, result.Errors)

	stored := f.loadDocument(t, doc.ID).FindEntry(entry.ID)
	require.NotNil(t, stored.Prescription.ExpirationDate)
	assert.WithinDuration(t, domain.DefaultPrescriptionExpiry(time.Now().UTC()), *stored.Prescription.ExpirationDate, time.Minute)
}

func TestUpdatePrescriptionRetargetDiagnosis(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t)
	first := f.addDiagnosis(t, doc.ID, "hypertension")
	second := f.addDiagnosis(t, doc.ID, "type 2 diabetes")

	created := f.addPrescription(t, doc.ID, first.ID, nil)
	require.True(t, created.Success)
	entry := created.Payload.(*domain.Entry)

	bag := domain.NewParameterBag().
		Set("document_id", doc.ID).
		Set("entry_id", entry.ID).
		Set("diagnosis_id", second.ID)
	result := f.invoker.Dispatch(context.Background(), NewUpdatePrescriptionCommand(f.store, f.log), bag, physicianSession())
	require.True(t, result.Success)

	stored := f.loadDocument(t, doc.ID).FindEntry(entry.ID)
	assert.Equal(t, second.ID, stored.Prescription.DiagnosisID)

	// Retargeting to an inactive diagnosis is rejected.
	third := f.addDiagnosis(t, doc.ID, "ruled out later")
	require.True(t, f.invoker.UndoLast(context.Background(), physicianSession()).Success)

	bag = domain.NewParameterBag().
		Set("document_id", doc.ID).
		Set("entry_id", entry.ID).
		Set("diagnosis_id", third.ID)
	result = f.invoker.Dispatch(context.Background(), NewUpdatePrescriptionCommand(f.store, f.log), bag, physicianSession())
	require.False(t, result.Success)
	assert.Contains(t, result.Errors[0], "active diagnosis")
}
