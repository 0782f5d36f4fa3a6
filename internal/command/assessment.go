package command

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/clinical-encounter-server/internal/domain"
)

// AddAssessmentCommand records a clinical assessment on a draft document.
// Reversible: undo deactivates the created entry.
type AddAssessmentCommand struct {
	base
}

// NewAddAssessmentCommand builds the command.
func NewAddAssessmentCommand(store domain.DocumentStore, logger *logrus.Logger) *AddAssessmentCommand {
	return &AddAssessmentCommand{base{store: store, log: logger}}
}

func (c *AddAssessmentCommand) Name() string { return "AddAssessment" }

func (c *AddAssessmentCommand) RequiredPermission() domain.Permission {
	return domain.PERM_UPDATE_DOCUMENT
}

func (c *AddAssessmentCommand) Validate(ctx context.Context, bag *domain.ParameterBag) *domain.ValidationResult {
	v := domain.NewValidationResult()
	if missing := bag.MissingRequired("document_id", "content", "condition"); len(missing) > 0 {
		v.AddErrors(missing...)
		return v
	}
	doc := c.fetchDocument(ctx, bag, v)
	if doc == nil {
		return v
	}
	if !requireDraft(doc, v) {
		return v
	}

	if content, _ := bag.GetString("content"); content == "" {
		v.AddError("assessment content must not be empty")
	}
	condition, _ := bag.GetString("condition")
	if !domain.PatientCondition(condition).IsValid() {
		v.AddError("invalid patient condition: %q", condition)
	}
	if prognosis, ok := bag.GetString("prognosis"); ok && !domain.Prognosis(prognosis).IsValid() {
		v.AddError("invalid prognosis: %q", prognosis)
	}
	if confidence, ok := bag.GetString("confidence"); ok && !domain.ConfidenceLevel(confidence).IsValid() {
		v.AddError("invalid confidence level: %q", confidence)
	}
	severity := severityParam(bag, v, domain.SEVERITY_ROUTINE)

	// Clinical judgement call, not a record-keeping rule: warn, never block.
	if immediate, _ := bag.GetBool("requires_immediate_action"); immediate && !severity.AtLeast(domain.SEVERITY_URGENT) {
		v.AddWarning("assessment requires immediate action but severity is %s", severity)
	}
	return v
}

func (c *AddAssessmentCommand) Execute(ctx context.Context, bag *domain.ParameterBag, session domain.Session) *domain.OperationResult {
	doc, fail := c.loadForExecute(ctx, bag)
	if fail != nil {
		return fail
	}
	content, err := bag.GetRequiredString("content")
	if err != nil {
		return domain.Fail("content parameter is missing", err)
	}
	condition, err := bag.GetRequiredString("condition")
	if err != nil {
		return domain.Fail("condition parameter is missing", err)
	}

	entry := domain.NewEntry(domain.ENTRY_ASSESSMENT, session.UserID(), content, severityParam(bag, domain.NewValidationResult(), domain.SEVERITY_ROUTINE))
	assessment := &domain.Assessment{Condition: domain.PatientCondition(condition)}
	if prognosis, ok := bag.GetString("prognosis"); ok {
		assessment.Prognosis = domain.Prognosis(prognosis)
	}
	if confidence, ok := bag.GetString("confidence"); ok {
		assessment.Confidence = domain.ConfidenceLevel(confidence)
	}
	if immediate, ok := bag.GetBool("requires_immediate_action"); ok {
		assessment.RequiresImmediateAction = immediate
	}
	if differentials, ok := bag.GetStringSlice("differential_diagnoses"); ok {
		assessment.DifferentialDiagnoses = differentials
	}
	if risks, ok := bag.GetStringSlice("risk_factors"); ok {
		assessment.RiskFactors = risks
	}
	entry.Assessment = assessment

	if err := doc.AddEntry(entry); err != nil {
		return domain.Fail("adding assessment", err)
	}
	if err := c.store.Update(ctx, doc); err != nil {
		return domain.Fail("persisting clinical document", err)
	}

	c.log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"entry_id":    entry.ID,
		"condition":   condition,
	}).Info("Assessment added")

	return domain.OK("assessment added: "+entry.ID, entry)
}

func (c *AddAssessmentCommand) CaptureUndo(ctx context.Context, bag *domain.ParameterBag, result *domain.OperationResult) (*UndoState, error) {
	state, err := captureCreatedEntry(c.Name(), result)
	if err != nil {
		return nil, err
	}
	state.DocumentID, err = bag.GetRequiredString("document_id")
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (c *AddAssessmentCommand) Undo(ctx context.Context, state *UndoState, session domain.Session) *domain.OperationResult {
	return c.deactivateEntry(ctx, state, domain.ENTRY_ASSESSMENT)
}

// UpdateAssessmentCommand applies diff-semantics field updates to an
// existing assessment.
type UpdateAssessmentCommand struct {
	base
}

// NewUpdateAssessmentCommand builds the command.
func NewUpdateAssessmentCommand(store domain.DocumentStore, logger *logrus.Logger) *UpdateAssessmentCommand {
	return &UpdateAssessmentCommand{base{store: store, log: logger}}
}

func (c *UpdateAssessmentCommand) Name() string { return "UpdateAssessment" }

func (c *UpdateAssessmentCommand) RequiredPermission() domain.Permission {
	return domain.PERM_UPDATE_DOCUMENT
}

func (c *UpdateAssessmentCommand) Validate(ctx context.Context, bag *domain.ParameterBag) *domain.ValidationResult {
	v := domain.NewValidationResult()
	if missing := bag.MissingRequired("document_id", "entry_id"); len(missing) > 0 {
		v.AddErrors(missing...)
		return v
	}
	doc := c.fetchDocument(ctx, bag, v)
	if doc == nil {
		return v
	}
	entry := c.fetchEntry(doc, bag, "entry_id", domain.ENTRY_ASSESSMENT, v)
	if entry == nil {
		return v
	}
	if !requireDraft(doc, v) {
		return v
	}

	if content, ok := bag.GetString("content"); ok && content == "" {
		v.AddError("assessment content must not be empty")
	}
	if condition, ok := bag.GetString("condition"); ok && !domain.PatientCondition(condition).IsValid() {
		v.AddError("invalid patient condition: %q", condition)
	}
	if prognosis, ok := bag.GetString("prognosis"); ok && !domain.Prognosis(prognosis).IsValid() {
		v.AddError("invalid prognosis: %q", prognosis)
	}
	if confidence, ok := bag.GetString("confidence"); ok && !domain.ConfidenceLevel(confidence).IsValid() {
		v.AddError("invalid confidence level: %q", confidence)
	}
	severity := severityParam(bag, v, entry.Severity)

	immediate := entry.Assessment.RequiresImmediateAction
	if flag, ok := bag.GetBool("requires_immediate_action"); ok {
		immediate = flag
	}
	if immediate && !severity.AtLeast(domain.SEVERITY_URGENT) {
		v.AddWarning("assessment requires immediate action but severity is %s", severity)
	}
	return v
}

func (c *UpdateAssessmentCommand) Execute(ctx context.Context, bag *domain.ParameterBag, session domain.Session) *domain.OperationResult {
	doc, fail := c.loadForExecute(ctx, bag)
	if fail != nil {
		return fail
	}
	entryID, err := bag.GetRequiredString("entry_id")
	if err != nil {
		return domain.Fail("entry_id parameter is missing", err)
	}
	entry := doc.FindEntryOfKind(entryID, domain.ENTRY_ASSESSMENT)
	if entry == nil {
		return domain.Fail("assessment not found: "+entryID, domain.ErrNotFound)
	}
	a := entry.Assessment

	var changed []string
	touched := false
	if content, ok := bag.GetString("content"); ok {
		if entry.SetContent(content) {
			changed = append(changed, "content")
			touched = true
		}
	}
	if s, ok := bag.GetString("severity"); ok {
		if entry.SetSeverity(domain.Severity(s)) {
			changed = append(changed, "severity")
			touched = true
		}
	}
	if condition, ok := bag.GetString("condition"); ok && a.Condition != domain.PatientCondition(condition) {
		a.Condition = domain.PatientCondition(condition)
		changed = append(changed, "condition")
	}
	if prognosis, ok := bag.GetString("prognosis"); ok && a.Prognosis != domain.Prognosis(prognosis) {
		a.Prognosis = domain.Prognosis(prognosis)
		changed = append(changed, "prognosis")
	}
	if confidence, ok := bag.GetString("confidence"); ok && a.Confidence != domain.ConfidenceLevel(confidence) {
		a.Confidence = domain.ConfidenceLevel(confidence)
		changed = append(changed, "confidence")
	}
	if immediate, ok := bag.GetBool("requires_immediate_action"); ok && a.RequiresImmediateAction != immediate {
		a.RequiresImmediateAction = immediate
		changed = append(changed, "requires_immediate_action")
	}
	if len(changed) > 0 && !touched {
		entry.Touch()
	}

	if len(changed) == 0 {
		return domain.OK("no changes: all fields already match", map[string]any{"changed": []string{}})
	}

	if err := c.store.Update(ctx, doc); err != nil {
		return domain.Fail("persisting clinical document", err)
	}

	c.log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"entry_id":    entry.ID,
		"changed":     changed,
	}).Info("Assessment updated")

	return domain.OK(fmt.Sprintf("assessment updated: %d field(s) changed", len(changed)),
		map[string]any{"changed": changed})
}
