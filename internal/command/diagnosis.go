package command

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/clinical-encounter-server/internal/domain"
)

// AddDiagnosisCommand records a diagnosis on a draft document. When no
// type or status is supplied, the diagnosis starts as an active working
// diagnosis. Reversible: undo deactivates the created entry.
type AddDiagnosisCommand struct {
	base
}

// NewAddDiagnosisCommand builds the command.
func NewAddDiagnosisCommand(store domain.DocumentStore, logger *logrus.Logger) *AddDiagnosisCommand {
	return &AddDiagnosisCommand{base{store: store, log: logger}}
}

func (c *AddDiagnosisCommand) Name() string { return "AddDiagnosis" }

func (c *AddDiagnosisCommand) RequiredPermission() domain.Permission {
	return domain.PERM_UPDATE_DOCUMENT
}

func (c *AddDiagnosisCommand) Validate(ctx context.Context, bag *domain.ParameterBag) *domain.ValidationResult {
	v := domain.NewValidationResult()
	if missing := bag.MissingRequired("document_id", "content"); len(missing) > 0 {
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
		v.AddError("diagnosis content must not be empty")
	}
	dxType := domain.DIAGNOSIS_WORKING
	if t, ok := bag.GetString("type"); ok {
		dxType = domain.DiagnosisType(t)
		if !dxType.IsValid() {
			v.AddError("invalid diagnosis type: %q", t)
		}
	}
	if s, ok := bag.GetString("status"); ok && !domain.DiagnosisStatus(s).IsValid() {
		v.AddError("invalid diagnosis status: %q", s)
	}
	code, hasCode := bag.GetString("code")
	if hasCode && code != "" && !domain.ValidClassificationCode(code) {
		v.AddError("invalid classification code format: %q", code)
	}
	if dxType == domain.DIAGNOSIS_FINAL && code == "" {
		v.AddError("a final diagnosis requires a classification code")
	}
	severityParam(bag, v, domain.SEVERITY_ROUTINE)
	return v
}

func (c *AddDiagnosisCommand) Execute(ctx context.Context, bag *domain.ParameterBag, session domain.Session) *domain.OperationResult {
	doc, fail := c.loadForExecute(ctx, bag)
	if fail != nil {
		return fail
	}
	content, err := bag.GetRequiredString("content")
	if err != nil {
		return domain.Fail("content parameter is missing", err)
	}

	entry := domain.NewEntry(domain.ENTRY_DIAGNOSIS, session.UserID(), content, severityParam(bag, domain.NewValidationResult(), domain.SEVERITY_ROUTINE))
	dx := &domain.Diagnosis{
		Type:   domain.DIAGNOSIS_WORKING,
		Status: domain.DX_STATUS_ACTIVE,
	}
	if t, ok := bag.GetString("type"); ok {
		dx.Type = domain.DiagnosisType(t)
	}
	if s, ok := bag.GetString("status"); ok {
		dx.Status = domain.DiagnosisStatus(s)
	}
	if code, ok := bag.GetString("code"); ok {
		dx.Code = code
	}
	if onset, ok := bag.GetTime("onset_date"); ok {
		dx.OnsetDate = &onset
	}
	entry.Diagnosis = dx

	if err := doc.AddEntry(entry); err != nil {
		return domain.Fail("adding diagnosis", err)
	}
	if primary, _ := bag.GetBool("is_primary"); primary {
		if err := doc.SetPrimaryDiagnosis(entry.ID); err != nil {
			return domain.Fail("marking diagnosis as primary", err)
		}
	}
	if err := c.store.Update(ctx, doc); err != nil {
		return domain.Fail("persisting clinical document", err)
	}

	c.log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"entry_id":    entry.ID,
		"type":        dx.Type,
		"code":        dx.Code,
	}).Info("Diagnosis added")

	return domain.OK("diagnosis added: "+entry.ID, entry)
}

func (c *AddDiagnosisCommand) CaptureUndo(ctx context.Context, bag *domain.ParameterBag, result *domain.OperationResult) (*UndoState, error) {
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

func (c *AddDiagnosisCommand) Undo(ctx context.Context, state *UndoState, session domain.Session) *domain.OperationResult {
	return c.deactivateEntry(ctx, state, domain.ENTRY_DIAGNOSIS)
}

// UpdateDiagnosisCommand applies diff-semantics field updates to an
// existing diagnosis. The final-diagnosis code rule is checked against
// the combined state of existing fields and requested updates, so an
// update cannot sneak a diagnosis into FINAL without a code.
type UpdateDiagnosisCommand struct {
	base
}

// NewUpdateDiagnosisCommand builds the command.
func NewUpdateDiagnosisCommand(store domain.DocumentStore, logger *logrus.Logger) *UpdateDiagnosisCommand {
	return &UpdateDiagnosisCommand{base{store: store, log: logger}}
}

func (c *UpdateDiagnosisCommand) Name() string { return "UpdateDiagnosis" }

func (c *UpdateDiagnosisCommand) RequiredPermission() domain.Permission {
	return domain.PERM_UPDATE_DOCUMENT
}

func (c *UpdateDiagnosisCommand) Validate(ctx context.Context, bag *domain.ParameterBag) *domain.ValidationResult {
	v := domain.NewValidationResult()
	if missing := bag.MissingRequired("document_id", "entry_id"); len(missing) > 0 {
		v.AddErrors(missing...)
		return v
	}
	doc := c.fetchDocument(ctx, bag, v)
	if doc == nil {
		return v
	}
	entry := c.fetchEntry(doc, bag, "entry_id", domain.ENTRY_DIAGNOSIS, v)
	if entry == nil {
		return v
	}
	if !requireDraft(doc, v) {
		return v
	}

	if content, ok := bag.GetString("content"); ok && content == "" {
		v.AddError("diagnosis content must not be empty")
	}
	effectiveType := entry.Diagnosis.Type
	if t, ok := bag.GetString("type"); ok {
		effectiveType = domain.DiagnosisType(t)
		if !effectiveType.IsValid() {
			v.AddError("invalid diagnosis type: %q", t)
		}
	}
	if s, ok := bag.GetString("status"); ok && !domain.DiagnosisStatus(s).IsValid() {
		v.AddError("invalid diagnosis status: %q", s)
	}
	effectiveCode := entry.Diagnosis.Code
	if code, ok := bag.GetString("code"); ok {
		effectiveCode = code
		if code != "" && !domain.ValidClassificationCode(code) {
			v.AddError("invalid classification code format: %q", code)
		}
	}
	if effectiveType == domain.DIAGNOSIS_FINAL && effectiveCode == "" {
		v.AddError("a final diagnosis requires a classification code")
	}
	severityParam(bag, v, entry.Severity)
	return v
}

func (c *UpdateDiagnosisCommand) Execute(ctx context.Context, bag *domain.ParameterBag, session domain.Session) *domain.OperationResult {
	doc, fail := c.loadForExecute(ctx, bag)
	if fail != nil {
		return fail
	}
	entryID, err := bag.GetRequiredString("entry_id")
	if err != nil {
		return domain.Fail("entry_id parameter is missing", err)
	}
	entry := doc.FindEntryOfKind(entryID, domain.ENTRY_DIAGNOSIS)
	if entry == nil {
		return domain.Fail("diagnosis not found: "+entryID, domain.ErrNotFound)
	}
	dx := entry.Diagnosis

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
	if t, ok := bag.GetString("type"); ok && dx.Type != domain.DiagnosisType(t) {
		dx.Type = domain.DiagnosisType(t)
		changed = append(changed, "type")
	}
	if s, ok := bag.GetString("status"); ok && dx.Status != domain.DiagnosisStatus(s) {
		dx.Status = domain.DiagnosisStatus(s)
		changed = append(changed, "status")
	}
	if code, ok := bag.GetString("code"); ok && dx.Code != code {
		dx.Code = code
		changed = append(changed, "code")
	}
	if onset, ok := bag.GetTime("onset_date"); ok {
		if dx.OnsetDate == nil || !dx.OnsetDate.Equal(onset) {
			dx.OnsetDate = &onset
			changed = append(changed, "onset_date")
		}
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
	}).Info("Diagnosis updated")

	return domain.OK(fmt.Sprintf("diagnosis updated: %d field(s) changed", len(changed)),
		map[string]any{"changed": changed})
}

// SetPrimaryDiagnosisCommand promotes one active diagnosis to primary,
// demoting any sibling that held the flag. Not reversible: the previous
// primary is not recorded, so redesignating is the correction path.
type SetPrimaryDiagnosisCommand struct {
	base
}

// NewSetPrimaryDiagnosisCommand builds the command.
func NewSetPrimaryDiagnosisCommand(store domain.DocumentStore, logger *logrus.Logger) *SetPrimaryDiagnosisCommand {
	return &SetPrimaryDiagnosisCommand{base{store: store, log: logger}}
}

func (c *SetPrimaryDiagnosisCommand) Name() string { return "SetPrimaryDiagnosis" }

func (c *SetPrimaryDiagnosisCommand) RequiredPermission() domain.Permission {
	return domain.PERM_UPDATE_DOCUMENT
}

func (c *SetPrimaryDiagnosisCommand) Validate(ctx context.Context, bag *domain.ParameterBag) *domain.ValidationResult {
	v := domain.NewValidationResult()
	if missing := bag.MissingRequired("document_id", "entry_id"); len(missing) > 0 {
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
	entryID, _ := bag.GetString("entry_id")
	if doc.ActiveDiagnosisByID(entryID) == nil {
		v.AddError("active diagnosis not found: %s", entryID)
	}
	return v
}

func (c *SetPrimaryDiagnosisCommand) Execute(ctx context.Context, bag *domain.ParameterBag, session domain.Session) *domain.OperationResult {
	doc, fail := c.loadForExecute(ctx, bag)
	if fail != nil {
		return fail
	}
	entryID, err := bag.GetRequiredString("entry_id")
	if err != nil {
		return domain.Fail("entry_id parameter is missing", err)
	}
	if err := doc.SetPrimaryDiagnosis(entryID); err != nil {
		return domain.Fail("marking diagnosis as primary", err)
	}
	if err := c.store.Update(ctx, doc); err != nil {
		return domain.Fail("persisting clinical document", err)
	}

	c.log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"entry_id":    entryID,
	}).Info("Primary diagnosis designated")

	return domain.OK("primary diagnosis set: "+entryID, map[string]any{"entry_id": entryID})
}
