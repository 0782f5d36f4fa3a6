package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinical-encounter-server/internal/domain"
)

// NoteRenderer projects a clinical document into a SOAP-format note.
// Rendering is a pure read: it never mutates the document, and two calls
// over the same document state produce identical output.
type NoteRenderer struct {
	logger *logrus.Logger
}

// NewNoteRenderer creates a note renderer.
func NewNoteRenderer(logger *logrus.Logger) *NoteRenderer {
	return &NoteRenderer{logger: logger}
}

// SOAPNote is the rendered projection of one clinical document.
type SOAPNote struct {
	DocumentID     string    `json:"document_id"`
	PatientID      string    `json:"patient_id"`
	PhysicianID    string    `json:"physician_id"`
	ChiefComplaint string    `json:"chief_complaint"`
	GeneratedAt    time.Time `json:"generated_at"`
	Completed      bool      `json:"completed"`
	Subjective     []string  `json:"subjective"`
	Objective      []string  `json:"objective"`
	Assessment     []string  `json:"assessment"`
	Plan           []string  `json:"plan"`
	Text           string    `json:"text"`
}

// Render builds the SOAP note from the document's active entries.
// Inactive entries never appear in the note.
func (r *NoteRenderer) Render(doc *domain.ClinicalDocument) *SOAPNote {
	note := &SOAPNote{
		DocumentID:     doc.ID,
		PatientID:      doc.PatientID,
		PhysicianID:    doc.PhysicianID,
		ChiefComplaint: doc.ChiefComplaint,
		GeneratedAt:    time.Now().UTC(),
		Completed:      doc.Completed,
	}

	for _, entry := range sortedActive(doc, domain.ENTRY_OBSERVATION) {
		line := renderObservation(entry)
		if entry.Observation.Category.IsSubjective() {
			note.Subjective = append(note.Subjective, line)
		} else {
			note.Objective = append(note.Objective, line)
		}
	}
	for _, entry := range sortedActive(doc, domain.ENTRY_ASSESSMENT) {
		note.Assessment = append(note.Assessment, renderAssessment(entry))
	}
	// Diagnoses belong to the Assessment section of a SOAP note; they are
	// not a fifth section.
	note.Assessment = append(note.Assessment, renderDiagnoses(doc)...)
	for _, entry := range sortedActive(doc, domain.ENTRY_PLAN) {
		note.Plan = append(note.Plan, renderPlan(entry))
	}
	for _, entry := range sortedActive(doc, domain.ENTRY_PRESCRIPTION) {
		note.Plan = append(note.Plan, renderPrescription(entry))
	}

	note.Text = r.format(note)

	r.logger.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"entries":     doc.ActiveEntryCount(),
	}).Debug("SOAP note rendered")

	return note
}

// sortedActive returns active entries of a kind ordered by creation time,
// with entry ID as the tiebreaker so the note is stable across renders.
func sortedActive(doc *domain.ClinicalDocument, kind domain.EntryKind) []*domain.Entry {
	entries := doc.EntriesOfKind(kind, true)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries
}

func renderObservation(entry *domain.Entry) string {
	obs := entry.Observation
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", obs.Category, entry.Content)
	if obs.Value != nil {
		fmt.Fprintf(&b, ": %g", *obs.Value)
		if obs.Unit != "" {
			fmt.Fprintf(&b, " %s", obs.Unit)
		}
	}
	if obs.Abnormal {
		b.WriteString(" (abnormal)")
	}
	if entry.Severity.AtLeast(domain.SEVERITY_URGENT) {
		fmt.Fprintf(&b, " [%s]", entry.Severity)
	}
	return b.String()
}

func renderAssessment(entry *domain.Entry) string {
	a := entry.Assessment
	var b strings.Builder
	fmt.Fprintf(&b, "%s (condition: %s", entry.Content, a.Condition)
	if a.Prognosis != "" {
		fmt.Fprintf(&b, ", prognosis: %s", a.Prognosis)
	}
	if a.Confidence != "" {
		fmt.Fprintf(&b, ", confidence: %s", a.Confidence)
	}
	b.WriteString(")")
	if a.RequiresImmediateAction {
		b.WriteString(" ** requires immediate action **")
	}
	if len(a.DifferentialDiagnoses) > 0 {
		fmt.Fprintf(&b, "; differentials: %s", strings.Join(a.DifferentialDiagnoses, ", "))
	}
	return b.String()
}

// renderDiagnoses lists active diagnoses with the primary first, then the
// rest in creation order.
func renderDiagnoses(doc *domain.ClinicalDocument) []string {
	entries := sortedActive(doc, domain.ENTRY_DIAGNOSIS)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Diagnosis.IsPrimary && !entries[j].Diagnosis.IsPrimary
	})

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		dx := entry.Diagnosis
		var b strings.Builder
		if dx.IsPrimary {
			b.WriteString("PRIMARY: ")
		}
		b.WriteString(entry.Content)
		if dx.Code != "" {
			fmt.Fprintf(&b, " [%s]", dx.Code)
		}
		fmt.Fprintf(&b, " (%s, %s)", dx.Type, dx.Status)
		lines = append(lines, b.String())
	}
	return lines
}

func renderPlan(entry *domain.Entry) string {
	plan := entry.Plan
	var b strings.Builder
	fmt.Fprintf(&b, "[%s/%s] %s", plan.Type, plan.Priority, entry.Content)
	if plan.TargetDate != nil {
		fmt.Fprintf(&b, " (target %s)", plan.TargetDate.Format("2006-01-02"))
	}
	if plan.Completed {
		b.WriteString(" - completed")
		if plan.CompletedAt != nil {
			fmt.Fprintf(&b, " %s", plan.CompletedAt.Format("2006-01-02"))
		}
	}
	if plan.FollowUpInstructions != "" {
		fmt.Fprintf(&b, "; follow-up: %s", plan.FollowUpInstructions)
	}
	return b.String()
}

func renderPrescription(entry *domain.Entry) string {
	rx := entry.Prescription
	var b strings.Builder
	fmt.Fprintf(&b, "Rx: %s %s %s via %s", rx.MedicationName, rx.Dosage, rx.Frequency, rx.Route)
	if rx.Duration != "" {
		fmt.Fprintf(&b, " for %s", rx.Duration)
	}
	fmt.Fprintf(&b, ", refills %d", rx.Refills)
	if rx.IsControlled() {
		fmt.Fprintf(&b, " [Schedule %d]", rx.ControlledSchedule)
	}
	if rx.ExpirationDate != nil {
		fmt.Fprintf(&b, ", expires %s", rx.ExpirationDate.Format("2006-01-02"))
	}
	if !rx.GenericAllowed {
		b.WriteString(", dispense as written")
	}
	if rx.Instructions != "" {
		fmt.Fprintf(&b, "; %s", rx.Instructions)
	}
	return b.String()
}

// format assembles the plain-text note. Empty sections still print their
// heading so the four SOAP sections always appear.
func (r *NoteRenderer) format(note *SOAPNote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CLINICAL NOTE %s\n", note.DocumentID)
	fmt.Fprintf(&b, "Patient: %s  Physician: %s\n", note.PatientID, note.PhysicianID)
	fmt.Fprintf(&b, "Chief Complaint: %s\n", note.ChiefComplaint)
	if note.Completed {
		b.WriteString("Status: COMPLETED\n")
	} else {
		b.WriteString("Status: DRAFT\n")
	}

	writeSection(&b, "SUBJECTIVE", note.Subjective)
	writeSection(&b, "OBJECTIVE", note.Objective)
	writeSection(&b, "ASSESSMENT", note.Assessment)
	writeSection(&b, "PLAN", note.Plan)
	return b.String()
}

func writeSection(b *strings.Builder, heading string, lines []string) {
	fmt.Fprintf(b, "\n%s:\n", heading)
	if len(lines) == 0 {
		b.WriteString("  (none recorded)\n")
		return
	}
	for _, line := range lines {
		fmt.Fprintf(b, "  - %s\n", line)
	}
}
