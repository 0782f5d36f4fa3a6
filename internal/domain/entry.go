package domain

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Limits enforced on clinical entries.
const (
	MaxChiefComplaintLength = 500
	Schedule2MaxRefills     = 5
	MinControlledSchedule   = 1
	MaxControlledSchedule   = 5

	// Controlled-substance prescriptions default to a six month expiry
	// when none is supplied.
	controlledExpiryMonths = 6
)

// classificationCodePattern matches diagnostic classification codes: a letter,
// two digits, and an optional decimal fraction (e.g. "E11", "E11.9", "I10").
var classificationCodePattern = regexp.MustCompile(`^[A-Za-z][0-9]{2}(\.[0-9]{1,4})?$`)

// ValidClassificationCode reports whether code matches the diagnostic code
// pattern. An empty code is not valid; callers decide whether absence is
// allowed for the diagnosis type at hand.
func ValidClassificationCode(code string) bool {
	return classificationCodePattern.MatchString(code)
}

// EntryBase carries the fields shared by every clinical entry variant.
type EntryBase struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	Content    string    `json:"content"`
	Severity   Severity  `json:"severity"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	Active     bool      `json:"active"`
}

// Observation records a clinical finding, optionally with a measured value.
type Observation struct {
	Category     ObservationCategory `json:"category"`
	BodySystem   BodySystem          `json:"body_system,omitempty"`
	Abnormal     bool                `json:"abnormal"`
	Value        *float64            `json:"value,omitempty"`
	Unit         string              `json:"unit,omitempty"`
	VitalSigns   map[string]float64  `json:"vital_signs,omitempty"`
	CodingSystem string              `json:"coding_system,omitempty"`
}

// Assessment records the clinician's judgement of the patient's state.
type Assessment struct {
	Condition               PatientCondition `json:"condition"`
	Prognosis               Prognosis        `json:"prognosis"`
	Confidence              ConfidenceLevel  `json:"confidence"`
	RequiresImmediateAction bool             `json:"requires_immediate_action"`
	DifferentialDiagnoses   []string         `json:"differential_diagnoses,omitempty"`
	RiskFactors             []string         `json:"risk_factors,omitempty"`
}

// Diagnosis records a named condition, optionally coded and marked primary.
type Diagnosis struct {
	Code      string          `json:"code,omitempty"`
	Type      DiagnosisType   `json:"type"`
	Status    DiagnosisStatus `json:"status"`
	IsPrimary bool            `json:"is_primary"`
	OnsetDate *time.Time      `json:"onset_date,omitempty"`
}

// Plan records intended care, linked to the diagnoses it addresses.
type Plan struct {
	Type                 PlanType     `json:"type"`
	Priority             PlanPriority `json:"priority"`
	TargetDate           *time.Time   `json:"target_date,omitempty"`
	Completed            bool         `json:"completed"`
	CompletedAt          *time.Time   `json:"completed_at,omitempty"`
	RelatedDiagnosisIDs  []string     `json:"related_diagnosis_ids,omitempty"`
	FollowUpInstructions string       `json:"follow_up_instructions,omitempty"`
}

// Prescription records a medication order. A prescription cannot exist
// without referencing an active diagnosis in the same document.
type Prescription struct {
	DiagnosisID        string          `json:"diagnosis_id"`
	MedicationName     string          `json:"medication_name"`
	Dosage             string          `json:"dosage"`
	Frequency          string          `json:"frequency"`
	Route              MedicationRoute `json:"route,omitempty"`
	Duration           string          `json:"duration,omitempty"`
	Refills            int             `json:"refills"`
	GenericAllowed     bool            `json:"generic_allowed"`
	ControlledSchedule int             `json:"controlled_schedule,omitempty"`
	ExpirationDate     *time.Time      `json:"expiration_date,omitempty"`
	Instructions       string          `json:"instructions,omitempty"`
}

// IsControlled reports whether the prescription is for a scheduled substance.
func (p *Prescription) IsControlled() bool {
	return p.ControlledSchedule >= MinControlledSchedule && p.ControlledSchedule <= MaxControlledSchedule
}

// Entry is the closed tagged-variant type for clinical entries. Exactly one
// payload pointer matching Kind is non-nil; dispatch is by Kind, never by
// runtime type inspection.
type Entry struct {
	Kind EntryKind `json:"kind"`
	EntryBase

	Observation  *Observation  `json:"observation,omitempty"`
	Assessment   *Assessment   `json:"assessment,omitempty"`
	Diagnosis    *Diagnosis    `json:"diagnosis,omitempty"`
	Plan         *Plan         `json:"plan,omitempty"`
	Prescription *Prescription `json:"prescription,omitempty"`
}

// NewEntry creates an active entry of the given kind with a fresh identity
// and creation timestamps. The kind payload must be attached by the caller.
func NewEntry(kind EntryKind, authorID, content string, severity Severity) *Entry {
	now := time.Now().UTC()
	return &Entry{
		Kind: kind,
		EntryBase: EntryBase{
			ID:         uuid.New().String(),
			AuthorID:   authorID,
			Content:    content,
			Severity:   severity,
			CreatedAt:  now,
			ModifiedAt: now,
			Active:     true,
		},
	}
}

// SetContent is the single mutator for entry content. It applies diff
// semantics: an identical value is a no-op and does not bump ModifiedAt.
// Returns whether the content changed.
func (e *Entry) SetContent(content string) bool {
	if e.Content == content {
		return false
	}
	e.Content = content
	e.Touch()
	return true
}

// SetSeverity updates the severity with diff semantics.
func (e *Entry) SetSeverity(s Severity) bool {
	if e.Severity == s {
		return false
	}
	e.Severity = s
	e.Touch()
	return true
}

// Touch stamps ModifiedAt. Mutators call it once per effective change.
func (e *Entry) Touch() {
	e.ModifiedAt = time.Now().UTC()
}

// Deactivate soft-deletes the entry. Undo compensation uses deactivation
// rather than structural removal, so the entry stays in the document.
func (e *Entry) Deactivate() bool {
	if !e.Active {
		return false
	}
	e.Active = false
	e.Touch()
	return true
}

// Reactivate reverses a soft delete.
func (e *Entry) Reactivate() bool {
	if e.Active {
		return false
	}
	e.Active = true
	e.Touch()
	return true
}

// MarkPlanCompleted sets the plan's completion flag and completion date
// together. Completing an already completed plan is a no-op.
func (e *Entry) MarkPlanCompleted(at time.Time) bool {
	if e.Kind != ENTRY_PLAN || e.Plan == nil || e.Plan.Completed {
		return false
	}
	e.Plan.Completed = true
	completed := at.UTC()
	e.Plan.CompletedAt = &completed
	e.Touch()
	return true
}

// DefaultPrescriptionExpiry returns the expiration applied to controlled
// substances when none is supplied.
func DefaultPrescriptionExpiry(from time.Time) time.Time {
	return from.UTC().AddDate(0, controlledExpiryMonths, 0)
}

// CheckInvariants validates the entry's kind-specific rules, appending hard
// violations as errors and soft inconsistencies as warnings. It assumes the
// payload matching Kind is attached.
func (e *Entry) CheckInvariants(v *ValidationResult) {
	switch e.Kind {
	case ENTRY_OBSERVATION:
		e.checkObservation(v)
	case ENTRY_ASSESSMENT:
		e.checkAssessment(v)
	case ENTRY_DIAGNOSIS:
		e.checkDiagnosis(v)
	case ENTRY_PLAN:
		e.checkPlan(v)
	case ENTRY_PRESCRIPTION:
		e.checkPrescription(v)
	default:
		v.AddError("entry %s: unknown kind %q", e.ID, e.Kind)
	}
}

func (e *Entry) checkObservation(v *ValidationResult) {
	o := e.Observation
	if o == nil {
		v.AddError("entry %s: observation payload missing", e.ID)
		return
	}
	if !o.Category.IsValid() {
		v.AddError("observation %s: invalid category %q", e.ID, o.Category)
	}
	if o.BodySystem != "" && !o.BodySystem.IsValid() {
		v.AddError("observation %s: invalid body system %q", e.ID, o.BodySystem)
	}
	// A numeric value and its unit travel together. A value without a unit
	// is clinically suspect but not invalid.
	if o.Value != nil && o.Unit == "" {
		v.AddWarning("observation %s: numeric value recorded without a unit", e.ID)
	}
	if o.Value == nil && o.Unit != "" {
		v.AddWarning("observation %s: unit recorded without a numeric value", e.ID)
	}
}

func (e *Entry) checkAssessment(v *ValidationResult) {
	a := e.Assessment
	if a == nil {
		v.AddError("entry %s: assessment payload missing", e.ID)
		return
	}
	if !a.Condition.IsValid() {
		v.AddError("assessment %s: invalid patient condition %q", e.ID, a.Condition)
	}
	if a.Prognosis != "" && !a.Prognosis.IsValid() {
		v.AddError("assessment %s: invalid prognosis %q", e.ID, a.Prognosis)
	}
	if a.Confidence != "" && !a.Confidence.IsValid() {
		v.AddError("assessment %s: invalid confidence level %q", e.ID, a.Confidence)
	}
	// Immediate action implies urgency; the mismatch is clinical judgement
	// territory, so it warns rather than blocks.
	if a.RequiresImmediateAction && !e.Severity.AtLeast(SEVERITY_URGENT) {
		v.AddWarning("assessment %s: requires immediate action but severity is %s", e.ID, e.Severity)
	}
}

func (e *Entry) checkDiagnosis(v *ValidationResult) {
	d := e.Diagnosis
	if d == nil {
		v.AddError("entry %s: diagnosis payload missing", e.ID)
		return
	}
	if !d.Type.IsValid() {
		v.AddError("diagnosis %s: invalid diagnosis type %q", e.ID, d.Type)
	}
	if d.Status != "" && !d.Status.IsValid() {
		v.AddError("diagnosis %s: invalid status %q", e.ID, d.Status)
	}
	if d.Code != "" && !ValidClassificationCode(d.Code) {
		v.AddError("diagnosis %s: classification code %q does not match the expected pattern", e.ID, d.Code)
	}
	// Record-keeping requirement, not judgement: a final diagnosis without
	// a classification code is a hard error.
	if d.Type == DIAGNOSIS_FINAL && d.Code == "" {
		v.AddError("diagnosis %s: a final diagnosis requires a classification code", e.ID)
	}
}

func (e *Entry) checkPlan(v *ValidationResult) {
	p := e.Plan
	if p == nil {
		v.AddError("entry %s: plan payload missing", e.ID)
		return
	}
	if !p.Type.IsValid() {
		v.AddError("plan %s: invalid plan type %q", e.ID, p.Type)
	}
	if p.Priority != "" && !p.Priority.IsValid() {
		v.AddError("plan %s: invalid priority %q", e.ID, p.Priority)
	}
	if p.TargetDate != nil && p.TargetDate.Before(e.CreatedAt) {
		v.AddError("plan %s: target date precedes plan creation", e.ID)
	}
	if p.Completed && p.CompletedAt == nil {
		v.AddError("plan %s: completed without a completion date", e.ID)
	}
}

func (e *Entry) checkPrescription(v *ValidationResult) {
	p := e.Prescription
	if p == nil {
		v.AddError("entry %s: prescription payload missing", e.ID)
		return
	}
	if p.DiagnosisID == "" {
		v.AddError("prescription %s: a linked diagnosis is required", e.ID)
	}
	if p.MedicationName == "" {
		v.AddError("prescription %s: medication name is required", e.ID)
	}
	if p.Dosage == "" {
		v.AddError("prescription %s: dosage is required", e.ID)
	}
	if p.Frequency == "" {
		v.AddError("prescription %s: frequency is required", e.ID)
	}
	if p.Route != "" && !p.Route.IsValid() {
		v.AddError("prescription %s: invalid route %q", e.ID, p.Route)
	}
	if p.Refills < 0 {
		v.AddError("prescription %s: refill count must not be negative", e.ID)
	}
	if p.ControlledSchedule != 0 && !p.IsControlled() {
		v.AddError("prescription %s: controlled-substance schedule must be between %d and %d",
			e.ID, MinControlledSchedule, MaxControlledSchedule)
	}
	if p.ControlledSchedule == 2 && p.Refills > Schedule2MaxRefills {
		v.AddError("prescription %s: schedule 2 substances allow at most %d refills", e.ID, Schedule2MaxRefills)
	}
}
