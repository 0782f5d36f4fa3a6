package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntry(t *testing.T) {
	entry := NewEntry(ENTRY_OBSERVATION, "dr-1", "clear lungs", SEVERITY_ROUTINE)

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, ENTRY_OBSERVATION, entry.Kind)
	assert.Equal(t, "dr-1", entry.AuthorID)
	assert.Equal(t, "clear lungs", entry.Content)
	assert.True(t, entry.Active)
	assert.Equal(t, entry.CreatedAt, entry.ModifiedAt)
}

func TestEntrySetContentDiffSemantics(t *testing.T) {
	entry := NewEntry(ENTRY_OBSERVATION, "dr-1", "clear lungs", SEVERITY_ROUTINE)
	before := entry.ModifiedAt

	// Identical value is a no-op and does not bump ModifiedAt.
	assert.False(t, entry.SetContent("clear lungs"))
	assert.Equal(t, before, entry.ModifiedAt)

	assert.True(t, entry.SetContent("wheezing on exhale"))
	assert.Equal(t, "wheezing on exhale", entry.Content)
	assert.False(t, entry.ModifiedAt.Before(before))
}

func TestEntryDeactivateIsIdempotent(t *testing.T) {
	entry := NewEntry(ENTRY_DIAGNOSIS, "dr-1", "hypertension", SEVERITY_ROUTINE)

	assert.True(t, entry.Deactivate())
	assert.False(t, entry.Active)
	assert.False(t, entry.Deactivate())

	assert.True(t, entry.Reactivate())
	assert.True(t, entry.Active)
	assert.False(t, entry.Reactivate())
}

func TestMarkPlanCompleted(t *testing.T) {
	entry := NewEntry(ENTRY_PLAN, "dr-1", "order chest x-ray", SEVERITY_ROUTINE)
	entry.Plan = &Plan{Type: PLAN_DIAGNOSTIC, Priority: PRIORITY_LOW}

	at := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	require.True(t, entry.MarkPlanCompleted(at))
	assert.True(t, entry.Plan.Completed)
	require.NotNil(t, entry.Plan.CompletedAt)
	assert.Equal(t, at, *entry.Plan.CompletedAt)

	// Completing twice is a no-op; the date and flag are set together.
	assert.False(t, entry.MarkPlanCompleted(at.Add(time.Hour)))
	assert.Equal(t, at, *entry.Plan.CompletedAt)
}

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SEVERITY_CRITICAL.AtLeast(SEVERITY_URGENT))
	assert.True(t, SEVERITY_URGENT.AtLeast(SEVERITY_URGENT))
	assert.False(t, SEVERITY_ROUTINE.AtLeast(SEVERITY_URGENT))
	assert.False(t, Severity("BOGUS").AtLeast(SEVERITY_ROUTINE))
}

func TestValidClassificationCode(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"E11", true},
		{"E11.9", true},
		{"I10", true},
		{"j45.901", true},
		{"", false},
		{"11E", false},
		{"E1", false},
		{"E11.", false},
		{"E11.99999", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, ValidClassificationCode(tt.code), "code %q", tt.code)
	}
}

func TestCheckInvariantsObservation(t *testing.T) {
	value := 120.0
	entry := NewEntry(ENTRY_OBSERVATION, "dr-1", "bp reading", SEVERITY_ROUTINE)
	entry.Observation = &Observation{Category: OBS_VITALS, Value: &value}

	v := NewValidationResult()
	entry.CheckInvariants(v)
	// A value without a unit is suspect but not invalid.
	assert.True(t, v.OK())
	assert.Len(t, v.Warnings, 1)

	entry.Observation.Unit = "mmHg"
	v = NewValidationResult()
	entry.CheckInvariants(v)
	assert.True(t, v.OK())
	assert.Empty(t, v.Warnings)
}

func TestCheckInvariantsAssessmentUrgencyWarning(t *testing.T) {
	entry := NewEntry(ENTRY_ASSESSMENT, "dr-1", "acute distress", SEVERITY_ROUTINE)
	entry.Assessment = &Assessment{Condition: CONDITION_DETERIORATING, RequiresImmediateAction: true}

	v := NewValidationResult()
	entry.CheckInvariants(v)
	assert.True(t, v.OK())
	require.Len(t, v.Warnings, 1)
	assert.Contains(t, v.Warnings[0], "immediate action")

	entry.Severity = SEVERITY_URGENT
	v = NewValidationResult()
	entry.CheckInvariants(v)
	assert.Empty(t, v.Warnings)
}

func TestCheckInvariantsDiagnosis(t *testing.T) {
	entry := NewEntry(ENTRY_DIAGNOSIS, "dr-1", "type 2 diabetes", SEVERITY_ROUTINE)
	entry.Diagnosis = &Diagnosis{Type: DIAGNOSIS_FINAL, Status: DX_STATUS_ACTIVE}

	v := NewValidationResult()
	entry.CheckInvariants(v)
	require.False(t, v.OK())
	assert.Contains(t, v.Errors[0], "classification code")

	entry.Diagnosis.Code = "E11.9"
	v = NewValidationResult()
	entry.CheckInvariants(v)
	assert.True(t, v.OK())
}

func TestCheckInvariantsPrescription(t *testing.T) {
	entry := NewEntry(ENTRY_PRESCRIPTION, "dr-1", "oxycodone", SEVERITY_ROUTINE)
	entry.Prescription = &Prescription{
		DiagnosisID:        "dx-1",
		MedicationName:     "oxycodone",
		Dosage:             "5mg",
		Frequency:          "q6h",
		Route:              ROUTE_ORAL,
		ControlledSchedule: 2,
		Refills:            6,
	}

	v := NewValidationResult()
	entry.CheckInvariants(v)
	require.False(t, v.OK())
	assert.Contains(t, v.Errors[0], "at most 5 refills")

	entry.Prescription.Refills = 5
	v = NewValidationResult()
	entry.CheckInvariants(v)
	assert.True(t, v.OK())
}

func TestPrescriptionIsControlled(t *testing.T) {
	rx := &Prescription{}
	assert.False(t, rx.IsControlled())

	rx.ControlledSchedule = 3
	assert.True(t, rx.IsControlled())

	rx.ControlledSchedule = 6
	assert.False(t, rx.IsControlled())
}

func TestDefaultPrescriptionExpiry(t *testing.T) {
	from := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC), DefaultPrescriptionExpiry(from))
}

func TestRolePermissions(t *testing.T) {
	granted := func(role Role, p Permission) bool {
		for _, perm := range RolePermissions[role] {
			if perm == p {
				return true
			}
		}
		return false
	}

	assert.True(t, granted(ROLE_PHYSICIAN, PERM_PRESCRIBE))
	assert.True(t, granted(ROLE_PHYSICIAN, PERM_CREATE_DOCUMENT))
	assert.False(t, granted(ROLE_PHYSICIAN, PERM_DELETE_DOCUMENT))

	assert.True(t, granted(ROLE_NURSE, PERM_UPDATE_DOCUMENT))
	assert.False(t, granted(ROLE_NURSE, PERM_PRESCRIBE))

	assert.True(t, granted(ROLE_ADMIN, PERM_DELETE_DOCUMENT))
	assert.True(t, granted(ROLE_ADMIN, PERM_VIEW_ALL_DOCUMENTS))

	assert.True(t, granted(ROLE_PATIENT, PERM_VIEW_OWN_DOCUMENTS))
	assert.False(t, granted(ROLE_PATIENT, PERM_UPDATE_DOCUMENT))
}
