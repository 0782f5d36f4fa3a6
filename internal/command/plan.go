package command

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinical-encounter-server/internal/domain"
)

// AddPlanCommand records a care plan item on a draft document. Any
// referenced diagnoses must be active entries of the same document.
// Reversible: undo deactivates the created entry.
type AddPlanCommand struct {
	base
}

// NewAddPlanCommand builds the command.
func NewAddPlanCommand(store domain.DocumentStore, logger *logrus.Logger) *AddPlanCommand {
	return &AddPlanCommand{base{store: store, log: logger}}
}

func (c *AddPlanCommand) Name() string { return "AddPlan" }

func (c *AddPlanCommand) RequiredPermission() domain.Permission {
	return domain.PERM_UPDATE_DOCUMENT
}

func (c *AddPlanCommand) Validate(ctx context.Context, bag *domain.ParameterBag) *domain.ValidationResult {
	v := domain.NewValidationResult()
	if missing := bag.MissingRequired("document_id", "content", "plan_type"); len(missing) > 0 {
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
		v.AddError("plan content must not be empty")
	}
	planType, _ := bag.GetString("plan_type")
	if !domain.PlanType(planType).IsValid() {
		v.AddError("invalid plan type: %q", planType)
	}
	if priority, ok := bag.GetString("priority"); ok && !domain.PlanPriority(priority).IsValid() {
		v.AddError("invalid plan priority: %q", priority)
	}
	if target, ok := bag.GetTime("target_date"); ok && target.Before(time.Now().UTC()) {
		v.AddError("plan target date must not be in the past")
	}
	for _, id := range relatedDiagnosisIDs(bag) {
		if doc.ActiveDiagnosisByID(id) == nil {
			v.AddError("related diagnosis not found or inactive: %s", id)
		}
	}
	severityParam(bag, v, domain.SEVERITY_ROUTINE)
	return v
}

func (c *AddPlanCommand) Execute(ctx context.Context, bag *domain.ParameterBag, session domain.Session) *domain.OperationResult {
	doc, fail := c.loadForExecute(ctx, bag)
	if fail != nil {
		return fail
	}
	content, err := bag.GetRequiredString("content")
	if err != nil {
		return domain.Fail("content parameter is missing", err)
	}
	planType, err := bag.GetRequiredString("plan_type")
	if err != nil {
		return domain.Fail("plan_type parameter is missing", err)
	}

	entry := domain.NewEntry(domain.ENTRY_PLAN, session.UserID(), content, severityParam(bag, domain.NewValidationResult(), domain.SEVERITY_ROUTINE))
	plan := &domain.Plan{
		Type:     domain.PlanType(planType),
		Priority: domain.PRIORITY_MEDIUM,
	}
	if priority, ok := bag.GetString("priority"); ok {
		plan.Priority = domain.PlanPriority(priority)
	}
	if target, ok := bag.GetTime("target_date"); ok {
		plan.TargetDate = &target
	}
	if ids := relatedDiagnosisIDs(bag); len(ids) > 0 {
		plan.RelatedDiagnosisIDs = ids
	}
	if instructions, ok := bag.GetString("follow_up_instructions"); ok {
		plan.FollowUpInstructions = instructions
	}
	entry.Plan = plan

	if err := doc.AddEntry(entry); err != nil {
		return domain.Fail("adding plan", err)
	}
	if err := c.store.Update(ctx, doc); err != nil {
		return domain.Fail("persisting clinical document", err)
	}

	c.log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"entry_id":    entry.ID,
		"plan_type":   planType,
	}).Info("Plan added")

	return domain.OK("plan added: "+entry.ID, entry)
}

func (c *AddPlanCommand) CaptureUndo(ctx context.Context, bag *domain.ParameterBag, result *domain.OperationResult) (*UndoState, error) {
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

func (c *AddPlanCommand) Undo(ctx context.Context, state *UndoState, session domain.Session) *domain.OperationResult {
	return c.deactivateEntry(ctx, state, domain.ENTRY_PLAN)
}

func relatedDiagnosisIDs(bag *domain.ParameterBag) []string {
	ids, _ := bag.GetStringSlice("related_diagnosis_ids")
	return ids
}

// UpdatePlanCommand applies diff-semantics field updates to an existing
// plan entry.
type UpdatePlanCommand struct {
	base
}

// NewUpdatePlanCommand builds the command.
func NewUpdatePlanCommand(store domain.DocumentStore, logger *logrus.Logger) *UpdatePlanCommand {
	return &UpdatePlanCommand{base{store: store, log: logger}}
}

func (c *UpdatePlanCommand) Name() string { return "UpdatePlan" }

func (c *UpdatePlanCommand) RequiredPermission() domain.Permission {
	return domain.PERM_UPDATE_DOCUMENT
}

func (c *UpdatePlanCommand) Validate(ctx context.Context, bag *domain.ParameterBag) *domain.ValidationResult {
	v := domain.NewValidationResult()
	if missing := bag.MissingRequired("document_id", "entry_id"); len(missing) > 0 {
		v.AddErrors(missing...)
		return v
	}
	doc := c.fetchDocument(ctx, bag, v)
	if doc == nil {
		return v
	}
	entry := c.fetchEntry(doc, bag, "entry_id", domain.ENTRY_PLAN, v)
	if entry == nil {
		return v
	}
	if !requireDraft(doc, v) {
		return v
	}

	if content, ok := bag.GetString("content"); ok && content == "" {
		v.AddError("plan content must not be empty")
	}
	if planType, ok := bag.GetString("plan_type"); ok && !domain.PlanType(planType).IsValid() {
		v.AddError("invalid plan type: %q", planType)
	}
	if priority, ok := bag.GetString("priority"); ok && !domain.PlanPriority(priority).IsValid() {
		v.AddError("invalid plan priority: %q", priority)
	}
	if target, ok := bag.GetTime("target_date"); ok && target.Before(entry.CreatedAt) {
		v.AddError("plan target date must not precede the plan's creation")
	}
	for _, id := range relatedDiagnosisIDs(bag) {
		if doc.ActiveDiagnosisByID(id) == nil {
			v.AddError("related diagnosis not found or inactive: %s", id)
		}
	}
	severityParam(bag, v, entry.Severity)
	return v
}

func (c *UpdatePlanCommand) Execute(ctx context.Context, bag *domain.ParameterBag, session domain.Session) *domain.OperationResult {
	doc, fail := c.loadForExecute(ctx, bag)
	if fail != nil {
		return fail
	}
	entryID, err := bag.GetRequiredString("entry_id")
	if err != nil {
		return domain.Fail("entry_id parameter is missing", err)
	}
	entry := doc.FindEntryOfKind(entryID, domain.ENTRY_PLAN)
	if entry == nil {
		return domain.Fail("plan not found: "+entryID, domain.ErrNotFound)
	}
	plan := entry.Plan

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
	if planType, ok := bag.GetString("plan_type"); ok && plan.Type != domain.PlanType(planType) {
		plan.Type = domain.PlanType(planType)
		changed = append(changed, "plan_type")
	}
	if priority, ok := bag.GetString("priority"); ok && plan.Priority != domain.PlanPriority(priority) {
		plan.Priority = domain.PlanPriority(priority)
		changed = append(changed, "priority")
	}
	if target, ok := bag.GetTime("target_date"); ok {
		if plan.TargetDate == nil || !plan.TargetDate.Equal(target) {
			plan.TargetDate = &target
			changed = append(changed, "target_date")
		}
	}
	if ids, ok := bag.GetStringSlice("related_diagnosis_ids"); ok && !equalStrings(plan.RelatedDiagnosisIDs, ids) {
		plan.RelatedDiagnosisIDs = ids
		changed = append(changed, "related_diagnosis_ids")
	}
	if instructions, ok := bag.GetString("follow_up_instructions"); ok && plan.FollowUpInstructions != instructions {
		plan.FollowUpInstructions = instructions
		changed = append(changed, "follow_up_instructions")
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
	}).Info("Plan updated")

	return domain.OK(fmt.Sprintf("plan updated: %d field(s) changed", len(changed)),
		map[string]any{"changed": changed})
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// MarkPlanCompletedCommand records completion of a plan item. Completing
// an already completed plan is a no-op rather than an error.
type MarkPlanCompletedCommand struct {
	base
}

// NewMarkPlanCompletedCommand builds the command.
func NewMarkPlanCompletedCommand(store domain.DocumentStore, logger *logrus.Logger) *MarkPlanCompletedCommand {
	return &MarkPlanCompletedCommand{base{store: store, log: logger}}
}

func (c *MarkPlanCompletedCommand) Name() string { return "MarkPlanCompleted" }

func (c *MarkPlanCompletedCommand) RequiredPermission() domain.Permission {
	return domain.PERM_UPDATE_DOCUMENT
}

func (c *MarkPlanCompletedCommand) Validate(ctx context.Context, bag *domain.ParameterBag) *domain.ValidationResult {
	v := domain.NewValidationResult()
	if missing := bag.MissingRequired("document_id", "entry_id"); len(missing) > 0 {
		v.AddErrors(missing...)
		return v
	}
	doc := c.fetchDocument(ctx, bag, v)
	if doc == nil {
		return v
	}
	if c.fetchEntry(doc, bag, "entry_id", domain.ENTRY_PLAN, v) == nil {
		return v
	}
	requireDraft(doc, v)
	return v
}

func (c *MarkPlanCompletedCommand) Execute(ctx context.Context, bag *domain.ParameterBag, session domain.Session) *domain.OperationResult {
	doc, fail := c.loadForExecute(ctx, bag)
	if fail != nil {
		return fail
	}
	entryID, err := bag.GetRequiredString("entry_id")
	if err != nil {
		return domain.Fail("entry_id parameter is missing", err)
	}
	entry := doc.FindEntryOfKind(entryID, domain.ENTRY_PLAN)
	if entry == nil {
		return domain.Fail("plan not found: "+entryID, domain.ErrNotFound)
	}
	if entry.Plan.Completed {
		return domain.OK("plan already completed", entry)
	}

	entry.MarkPlanCompleted(time.Now().UTC())
	if err := c.store.Update(ctx, doc); err != nil {
		return domain.Fail("persisting clinical document", err)
	}

	c.log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"entry_id":    entry.ID,
	}).Info("Plan completed")

	return domain.OK("plan completed: "+entryID, entry)
}
