package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-encounter-server/internal/domain"
)

func TestAddDiagnosisDefaults(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t)

	entry := f.addDiagnosis(t, doc.ID, "essential hypertension")
	assert.Equal(t, domain.DIAGNOSIS_WORKING, entry.Diagnosis.Type)
	assert.Equal(t, domain.DX_STATUS_ACTIVE, entry.Diagnosis.Status)
	assert.False(t, entry.Diagnosis.IsPrimary)
}

func TestAddFinalDiagnosisRequiresCode(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t)

	bag := domain.NewParameterBag().
		Set("document_id", doc.ID).
		Set("content", "type 2 diabetes").
		Set("type", string(domain.DIAGNOSIS_FINAL))

	result := f.invoker.Dispatch(context.Background(), NewAddDiagnosisCommand(f.store, f.log), bag, physicianSession())
	require.False(t, result.Success)
	assert.Contains(t, result.Errors[0], "classification code")

	bag.Set("code", "E11.9")
	result = f.invoker.Dispatch(context.Background(), NewAddDiagnosisCommand(f.store, f.log), bag, physicianSession())
	require.True(t, result.Success)
}

func TestAddDiagnosisRejectsMalformedCode(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t)

	bag := domain.NewParameterBag().
		Set("document_id", doc.ID).
		Set("content", "hypertension").
		Set("code", "banana")

	result := f.invoker.Dispatch(context.Background(), NewAddDiagnosisCommand(f.store, f.log), bag, physicianSession())
	require.False(t, result.Success)
	assert.Contains(t, result.Errors[0], "classification code")
}

func TestAddDiagnosisAsPrimary(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t)
	first := f.addDiagnosis(t, doc.ID, "hypertension")

	bag := domain.NewParameterBag().
		Set("document_id", doc.ID).
		Set("content", "type 2 diabetes").
		Set("is_primary", true)
	result := f.invoker.Dispatch(context.Background(), NewAddDiagnosisCommand(f.store, f.log), bag, physicianSession())
	require.True(t, result.Success)
	second := result.Payload.(*domain.Entry)

	stored := f.loadDocument(t, doc.ID)
	primary := stored.PrimaryDiagnosis()
	require.NotNil(t, primary)
	assert.Equal(t, second.ID, primary.ID)
	assert.False(t, stored.FindEntry(first.ID).Diagnosis.IsPrimary)
}

func TestSetPrimaryDiagnosisCommand(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t)
	first := f.addDiagnosis(t, doc.ID, "hypertension")
	second := f.addDiagnosis(t, doc.ID, "type 2 diabetes")

	cmd := NewSetPrimaryDiagnosisCommand(f.store, f.log)

	set := func(entryID string) *domain.OperationResult {
		bag := domain.NewParameterBag().
			Set("document_id", doc.ID).
			Set("entry_id", entryID)
		return f.invoker.Dispatch(context.Background(), cmd, bag, physicianSession())
	}

	require.True(t, set(first.ID).Success)
	require.True(t, set(second.ID).Success)

	// Redesignation demotes the previous primary; at most one holds the flag.
	stored := f.loadDocument(t, doc.ID)
	assert.False(t, stored.FindEntry(first.ID).Diagnosis.IsPrimary)
	assert.True(t, stored.FindEntry(second.ID).Diagnosis.IsPrimary)
}

func TestSetPrimaryRejectsInactiveDiagnosis(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t)
	dx := f.addDiagnosis(t, doc.ID, "hypertension")

	// Undo the add, deactivating the diagnosis.
	require.True(t, f.invoker.UndoLast(context.Background(), physicianSession()).Success)

	bag := domain.NewParameterBag().
		Set("document_id", doc.ID).
		Set("entry_id", dx.ID)
	result := f.invoker.Dispatch(context.Background(), NewSetPrimaryDiagnosisCommand(f.store, f.log), bag, physicianSession())
	require.False(t, result.Success)
	assert.Contains(t, result.Errors[0], "active diagnosis not found")
}

func TestUpdateDiagnosisCombinedStateGuard(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t)
	dx := f.addDiagnosis(t, doc.ID, "type 2 diabetes")

	cmd := NewUpdateDiagnosisCommand(f.store, f.log)

	// Promoting to FINAL without a code on the entry or in the update fails.
	promote := domain.NewParameterBag().
		Set("document_id", doc.ID).
		Set("entry_id", dx.ID).
		Set("type", string(domain.DIAGNOSIS_FINAL))
	result := f.invoker.Dispatch(context.Background(), cmd, promote, physicianSession())
	require.False(t, result.Success)

	// Supplying the code in the same update satisfies the rule.
	promote.Set("code", "E11.9")
	result = f.invoker.Dispatch(context.Background(), cmd, promote, physicianSession())
	require.True(t, result.Success)

	payload := result.Payload.(map[string]any)
	assert.ElementsMatch(t, []string{"type", "code"}, payload["changed"])
}

func TestUpdateDiagnosisNoChanges(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t)
	dx := f.addDiagnosis(t, doc.ID, "hypertension")

	bag := domain.NewParameterBag().
		Set("document_id", doc.ID).
		Set("entry_id", dx.ID).
		Set("content", "hypertension").
		Set("status", string(domain.DX_STATUS_ACTIVE))

	result := f.invoker.Dispatch(context.Background(), NewUpdateDiagnosisCommand(f.store, f.log), bag, physicianSession())
	require.True(t, result.Success)
	assert.Contains(t, result.Message, "no changes")
}
