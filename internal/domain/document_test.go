package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDocument(t *testing.T) *ClinicalDocument {
	t.Helper()
	doc, err := NewClinicalDocument("patient-1", "dr-1", "appt-1", "persistent cough")
	require.NoError(t, err)
	return doc
}

func addDiagnosis(t *testing.T, doc *ClinicalDocument, content string) *Entry {
	t.Helper()
	entry := NewEntry(ENTRY_DIAGNOSIS, "dr-1", content, SEVERITY_ROUTINE)
	entry.Diagnosis = &Diagnosis{Type: DIAGNOSIS_WORKING, Status: DX_STATUS_ACTIVE}
	require.NoError(t, doc.AddEntry(entry))
	return entry
}

func TestNewClinicalDocument(t *testing.T) {
	doc := newTestDocument(t)

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "patient-1", doc.PatientID)
	assert.False(t, doc.Completed)
	assert.Empty(t, doc.Entries)
}

func TestNewClinicalDocumentRequiredFields(t *testing.T) {
	tests := []struct {
		name           string
		patient        string
		physician      string
		appointment    string
		chiefComplaint string
	}{
		{"missing patient", "", "dr-1", "appt-1", "cough"},
		{"missing physician", "patient-1", "", "appt-1", "cough"},
		{"missing appointment", "patient-1", "dr-1", "", "cough"},
		{"missing chief complaint", "patient-1", "dr-1", "appt-1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClinicalDocument(tt.patient, tt.physician, tt.appointment, tt.chiefComplaint)
			assert.Error(t, err)
		})
	}
}

func TestAddEntryPreservesOrder(t *testing.T) {
	doc := newTestDocument(t)
	first := addDiagnosis(t, doc, "first")
	second := addDiagnosis(t, doc, "second")

	require.Len(t, doc.Entries, 2)
	assert.Equal(t, first.ID, doc.Entries[0].ID)
	assert.Equal(t, second.ID, doc.Entries[1].ID)
}

func TestSetPrimaryDiagnosisExclusivity(t *testing.T) {
	doc := newTestDocument(t)
	first := addDiagnosis(t, doc, "hypertension")
	second := addDiagnosis(t, doc, "type 2 diabetes")

	require.NoError(t, doc.SetPrimaryDiagnosis(first.ID))
	assert.True(t, first.Diagnosis.IsPrimary)

	require.NoError(t, doc.SetPrimaryDiagnosis(second.ID))
	assert.False(t, first.Diagnosis.IsPrimary)
	assert.True(t, second.Diagnosis.IsPrimary)

	primary := doc.PrimaryDiagnosis()
	require.NotNil(t, primary)
	assert.Equal(t, second.ID, primary.ID)
}

func TestSetPrimaryDiagnosisRejectsInactive(t *testing.T) {
	doc := newTestDocument(t)
	dx := addDiagnosis(t, doc, "hypertension")
	dx.Deactivate()

	err := doc.SetPrimaryDiagnosis(dx.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActiveDiagnosisByID(t *testing.T) {
	doc := newTestDocument(t)
	dx := addDiagnosis(t, doc, "hypertension")

	assert.NotNil(t, doc.ActiveDiagnosisByID(dx.ID))

	dx.Deactivate()
	assert.Nil(t, doc.ActiveDiagnosisByID(dx.ID))

	// Soft delete keeps the entry in the document.
	assert.Equal(t, 1, doc.EntryCount())
	assert.Equal(t, 0, doc.ActiveEntryCount())
}

func TestSetChiefComplaintDiffSemantics(t *testing.T) {
	doc := newTestDocument(t)

	changed, err := doc.SetChiefComplaint("persistent cough")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = doc.SetChiefComplaint("persistent cough with fever")
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestCompletenessViolations(t *testing.T) {
	doc := newTestDocument(t)

	// A final diagnosis with no code blocks completion.
	dx := addDiagnosis(t, doc, "type 2 diabetes")
	dx.Diagnosis.Type = DIAGNOSIS_FINAL

	violations := doc.CompletenessViolations()
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "classification code")

	dx.Diagnosis.Code = "E11.9"
	assert.Empty(t, doc.CompletenessViolations())
}

func TestCompletenessViolationsDanglingPrescriptionReference(t *testing.T) {
	doc := newTestDocument(t)
	dx := addDiagnosis(t, doc, "hypertension")

	rx := NewEntry(ENTRY_PRESCRIPTION, "dr-1", "lisinopril", SEVERITY_ROUTINE)
	rx.Prescription = &Prescription{
		DiagnosisID:    dx.ID,
		MedicationName: "lisinopril",
		Dosage:         "10mg",
		Frequency:      "daily",
	}
	require.NoError(t, doc.AddEntry(rx))
	assert.Empty(t, doc.CompletenessViolations())

	// Deactivating the referenced diagnosis surfaces at completion time.
	dx.Deactivate()
	violations := doc.CompletenessViolations()
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "not an active diagnosis")
}

func TestCompletenessViolationsPlanTargetDate(t *testing.T) {
	doc := newTestDocument(t)
	addDiagnosis(t, doc, "hypertension")

	plan := NewEntry(ENTRY_PLAN, "dr-1", "follow up in clinic", SEVERITY_ROUTINE)
	past := plan.CreatedAt.AddDate(-1, 0, 0)
	plan.Plan = &Plan{Type: PLAN_FOLLOW_UP, Priority: PRIORITY_MEDIUM, TargetDate: &past}
	require.NoError(t, doc.AddEntry(plan))

	violations := doc.CompletenessViolations()
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "target date precedes plan creation")

	// The invalid plan keeps the document in draft.
	require.Error(t, doc.Complete())
	assert.False(t, doc.Completed)

	future := plan.CreatedAt.AddDate(0, 0, 7)
	plan.Plan.TargetDate = &future
	assert.Empty(t, doc.CompletenessViolations())
}

func TestCompleteLifecycle(t *testing.T) {
	doc := newTestDocument(t)
	addDiagnosis(t, doc, "hypertension")

	require.NoError(t, doc.Complete())
	assert.True(t, doc.Completed)

	// Completion is terminal.
	assert.ErrorIs(t, doc.Complete(), ErrDocumentCompleted)
	assert.ErrorIs(t, doc.AddEntry(NewEntry(ENTRY_OBSERVATION, "dr-1", "x", SEVERITY_ROUTINE)), ErrDocumentCompleted)

	_, err := doc.SetChiefComplaint("changed")
	assert.ErrorIs(t, err, ErrDocumentCompleted)
}

func TestCompleteBlockedByViolations(t *testing.T) {
	doc := newTestDocument(t)
	dx := addDiagnosis(t, doc, "type 2 diabetes")
	dx.Diagnosis.Type = DIAGNOSIS_FINAL

	err := doc.Complete()
	require.Error(t, err)
	assert.False(t, doc.Completed)
}
