package service

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-encounter-server/internal/domain"
)

func testRenderer() *NoteRenderer {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewNoteRenderer(logger)
}

func buildDocument(t *testing.T) *domain.ClinicalDocument {
	t.Helper()
	doc, err := domain.NewClinicalDocument("patient-1", "dr-1", "appt-1", "persistent cough")
	require.NoError(t, err)
	return doc
}

func attach(t *testing.T, doc *domain.ClinicalDocument, entry *domain.Entry) *domain.Entry {
	t.Helper()
	require.NoError(t, doc.AddEntry(entry))
	return entry
}

func observation(content string, category domain.ObservationCategory) *domain.Entry {
	e := domain.NewEntry(domain.ENTRY_OBSERVATION, "dr-1", content, domain.SEVERITY_ROUTINE)
	e.Observation = &domain.Observation{Category: category}
	return e
}

func diagnosis(content, code string) *domain.Entry {
	e := domain.NewEntry(domain.ENTRY_DIAGNOSIS, "dr-1", content, domain.SEVERITY_ROUTINE)
	e.Diagnosis = &domain.Diagnosis{Type: domain.DIAGNOSIS_WORKING, Status: domain.DX_STATUS_ACTIVE, Code: code}
	return e
}

func TestRenderRoutesObservationsByCategory(t *testing.T) {
	doc := buildDocument(t)
	attach(t, doc, observation("cough for two weeks", domain.OBS_HISTORY))
	attach(t, doc, observation("lungs clear", domain.OBS_EXAM))

	note := testRenderer().Render(doc)

	require.Len(t, note.Subjective, 1)
	assert.Contains(t, note.Subjective[0], "cough for two weeks")
	require.Len(t, note.Objective, 1)
	assert.Contains(t, note.Objective[0], "lungs clear")
}

func TestRenderPrimaryDiagnosisFirst(t *testing.T) {
	doc := buildDocument(t)
	attach(t, doc, diagnosis("bronchitis", ""))
	primary := attach(t, doc, diagnosis("pneumonia", "J18.9"))
	require.NoError(t, doc.SetPrimaryDiagnosis(primary.ID))

	note := testRenderer().Render(doc)

	require.Len(t, note.Assessment, 2)
	assert.Contains(t, note.Assessment[0], "PRIMARY: pneumonia")
	assert.Contains(t, note.Assessment[0], "[J18.9]")
	assert.Contains(t, note.Assessment[1], "bronchitis")
}

func TestRenderSkipsInactiveEntries(t *testing.T) {
	doc := buildDocument(t)
	kept := attach(t, doc, diagnosis("pneumonia", ""))
	dropped := attach(t, doc, diagnosis("bronchitis", ""))
	dropped.Deactivate()

	note := testRenderer().Render(doc)

	require.Len(t, note.Assessment, 1)
	assert.Contains(t, note.Assessment[0], kept.Content)
	assert.NotContains(t, note.Text, "bronchitis")
}

func TestRenderPrescriptionsUnderPlan(t *testing.T) {
	doc := buildDocument(t)
	dx := attach(t, doc, diagnosis("pneumonia", "J18.9"))

	rx := domain.NewEntry(domain.ENTRY_PRESCRIPTION, "dr-1", "amoxicillin", domain.SEVERITY_ROUTINE)
	rx.Prescription = &domain.Prescription{
		DiagnosisID:    dx.ID,
		MedicationName: "amoxicillin",
		Dosage:         "500mg",
		Frequency:      "q8h",
		Route:          domain.ROUTE_ORAL,
		Duration:       "7 days",
		GenericAllowed: true,
	}
	attach(t, doc, rx)

	note := testRenderer().Render(doc)

	require.Len(t, note.Plan, 1)
	assert.Contains(t, note.Plan[0], "Rx: amoxicillin 500mg q8h via ORAL")
	assert.Contains(t, note.Plan[0], "for 7 days")
}

func TestRenderEmptySectionsStillPrinted(t *testing.T) {
	doc := buildDocument(t)

	note := testRenderer().Render(doc)

	for _, heading := range []string{"SUBJECTIVE:", "OBJECTIVE:", "ASSESSMENT:", "PLAN:"} {
		assert.Contains(t, note.Text, heading)
	}
	assert.Contains(t, note.Text, "(none recorded)")
	assert.Contains(t, note.Text, "Status: DRAFT")
}

func TestRenderIsStableAndPure(t *testing.T) {
	doc := buildDocument(t)
	// Force identical timestamps so ordering falls back to the ID tiebreak.
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	for _, content := range []string{"alpha", "beta", "gamma"} {
		e := diagnosis(content, "")
		e.CreatedAt = at
		attach(t, doc, e)
	}

	renderer := testRenderer()
	first := renderer.Render(doc)
	second := renderer.Render(doc)

	// Rendering never mutates the document and is deterministic.
	assert.Equal(t, first.Assessment, second.Assessment)
	assert.Equal(t, first.Subjective, second.Subjective)
	assert.Equal(t, 3, doc.EntryCount())

	// The sort inside Render does not reorder the document's entries.
	assert.Equal(t, "alpha", doc.Entries[0].Content)
	assert.Equal(t, "beta", doc.Entries[1].Content)
	assert.Equal(t, "gamma", doc.Entries[2].Content)
}

func TestRenderCompletedStatus(t *testing.T) {
	doc := buildDocument(t)
	require.NoError(t, doc.Complete())

	note := testRenderer().Render(doc)
	assert.True(t, note.Completed)
	assert.Contains(t, note.Text, "Status: COMPLETED")
}
