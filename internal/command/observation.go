package command

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/clinical-encounter-server/internal/domain"
)

// AddObservationCommand records a clinical observation on a draft document.
// Reversible: undo deactivates the created entry.
type AddObservationCommand struct {
	base
}

// NewAddObservationCommand builds the command.
func NewAddObservationCommand(store domain.DocumentStore, logger *logrus.Logger) *AddObservationCommand {
	return &AddObservationCommand{base{store: store, log: logger}}
}

func (c *AddObservationCommand) Name() string { return "AddObservation" }

func (c *AddObservationCommand) RequiredPermission() domain.Permission {
	return domain.PERM_UPDATE_DOCUMENT
}

func (c *AddObservationCommand) Validate(ctx context.Context, bag *domain.ParameterBag) *domain.ValidationResult {
	v := domain.NewValidationResult()
	if missing := bag.MissingRequired("document_id", "content", "category"); len(missing) > 0 {
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
		v.AddError("observation content must not be empty")
	}
	category, _ := bag.GetString("category")
	if !domain.ObservationCategory(category).IsValid() {
		v.AddError("invalid observation category: %q", category)
	}
	if system, ok := bag.GetString("body_system"); ok && !domain.BodySystem(system).IsValid() {
		v.AddError("invalid body system: %q", system)
	}
	severityParam(bag, v, domain.SEVERITY_ROUTINE)

	// Value and unit travel together; a lone value warns, never blocks.
	_, hasValue := bag.GetFloat("value")
	unit, hasUnit := bag.GetString("unit")
	if hasValue && (!hasUnit || unit == "") {
		v.AddWarning("observation records a numeric value without a unit")
	}
	if !hasValue && hasUnit && unit != "" {
		v.AddWarning("observation records a unit without a numeric value")
	}
	return v
}

func (c *AddObservationCommand) Execute(ctx context.Context, bag *domain.ParameterBag, session domain.Session) *domain.OperationResult {
	doc, fail := c.loadForExecute(ctx, bag)
	if fail != nil {
		return fail
	}
	content, err := bag.GetRequiredString("content")
	if err != nil {
		return domain.Fail("content parameter is missing", err)
	}
	category, err := bag.GetRequiredString("category")
	if err != nil {
		return domain.Fail("category parameter is missing", err)
	}

	entry := domain.NewEntry(domain.ENTRY_OBSERVATION, session.UserID(), content, severityParam(bag, domain.NewValidationResult(), domain.SEVERITY_ROUTINE))
	obs := &domain.Observation{Category: domain.ObservationCategory(category)}
	if system, ok := bag.GetString("body_system"); ok {
		obs.BodySystem = domain.BodySystem(system)
	}
	if abnormal, ok := bag.GetBool("abnormal"); ok {
		obs.Abnormal = abnormal
	}
	if value, ok := bag.GetFloat("value"); ok {
		obs.Value = &value
	}
	if unit, ok := bag.GetString("unit"); ok {
		obs.Unit = unit
	}
	if vitals, ok := bag.GetFloatMap("vital_signs"); ok {
		obs.VitalSigns = vitals
	}
	if coding, ok := bag.GetString("coding_system"); ok {
		obs.CodingSystem = coding
	}
	entry.Observation = obs

	if err := doc.AddEntry(entry); err != nil {
		return domain.Fail("adding observation", err)
	}
	if err := c.store.Update(ctx, doc); err != nil {
		return domain.Fail("persisting clinical document", err)
	}

	c.log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"entry_id":    entry.ID,
		"category":    category,
	}).Info("Observation added")

	return domain.OK("observation added: "+entry.ID, entry)
}

func (c *AddObservationCommand) CaptureUndo(ctx context.Context, bag *domain.ParameterBag, result *domain.OperationResult) (*UndoState, error) {
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

func (c *AddObservationCommand) Undo(ctx context.Context, state *UndoState, session domain.Session) *domain.OperationResult {
	return c.deactivateEntry(ctx, state, domain.ENTRY_OBSERVATION)
}

// UpdateObservationCommand applies diff-semantics field updates to an
// existing observation: unchanged values are not written, not reported,
// and do not bump the modification timestamp.
type UpdateObservationCommand struct {
	base
}

// NewUpdateObservationCommand builds the command.
func NewUpdateObservationCommand(store domain.DocumentStore, logger *logrus.Logger) *UpdateObservationCommand {
	return &UpdateObservationCommand{base{store: store, log: logger}}
}

func (c *UpdateObservationCommand) Name() string { return "UpdateObservation" }

func (c *UpdateObservationCommand) RequiredPermission() domain.Permission {
	return domain.PERM_UPDATE_DOCUMENT
}

func (c *UpdateObservationCommand) Validate(ctx context.Context, bag *domain.ParameterBag) *domain.ValidationResult {
	v := domain.NewValidationResult()
	if missing := bag.MissingRequired("document_id", "entry_id"); len(missing) > 0 {
		v.AddErrors(missing...)
		return v
	}
	doc := c.fetchDocument(ctx, bag, v)
	if doc == nil {
		return v
	}
	entry := c.fetchEntry(doc, bag, "entry_id", domain.ENTRY_OBSERVATION, v)
	if entry == nil {
		return v
	}
	if !requireDraft(doc, v) {
		return v
	}

	if content, ok := bag.GetString("content"); ok && content == "" {
		v.AddError("observation content must not be empty")
	}
	if category, ok := bag.GetString("category"); ok && !domain.ObservationCategory(category).IsValid() {
		v.AddError("invalid observation category: %q", category)
	}
	if system, ok := bag.GetString("body_system"); ok && !domain.BodySystem(system).IsValid() {
		v.AddError("invalid body system: %q", system)
	}
	severityParam(bag, v, entry.Severity)

	// Same pairing advisory as on add, judged against the state the update
	// would leave behind.
	obs := entry.Observation
	_, hasValue := bag.GetFloat("value")
	unit, hasUnit := bag.GetString("unit")
	if hasValue && !hasUnit && obs.Unit == "" {
		v.AddWarning("observation records a numeric value without a unit")
	}
	if hasUnit && unit != "" && !hasValue && obs.Value == nil {
		v.AddWarning("observation records a unit without a numeric value")
	}
	return v
}

func (c *UpdateObservationCommand) Execute(ctx context.Context, bag *domain.ParameterBag, session domain.Session) *domain.OperationResult {
	doc, fail := c.loadForExecute(ctx, bag)
	if fail != nil {
		return fail
	}
	entryID, err := bag.GetRequiredString("entry_id")
	if err != nil {
		return domain.Fail("entry_id parameter is missing", err)
	}
	entry := doc.FindEntryOfKind(entryID, domain.ENTRY_OBSERVATION)
	if entry == nil {
		return domain.Fail("observation not found: "+entryID, domain.ErrNotFound)
	}
	obs := entry.Observation

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
	if category, ok := bag.GetString("category"); ok && obs.Category != domain.ObservationCategory(category) {
		obs.Category = domain.ObservationCategory(category)
		changed = append(changed, "category")
	}
	if system, ok := bag.GetString("body_system"); ok && obs.BodySystem != domain.BodySystem(system) {
		obs.BodySystem = domain.BodySystem(system)
		changed = append(changed, "body_system")
	}
	if abnormal, ok := bag.GetBool("abnormal"); ok && obs.Abnormal != abnormal {
		obs.Abnormal = abnormal
		changed = append(changed, "abnormal")
	}
	if value, ok := bag.GetFloat("value"); ok && (obs.Value == nil || *obs.Value != value) {
		obs.Value = &value
		changed = append(changed, "value")
	}
	if unit, ok := bag.GetString("unit"); ok && obs.Unit != unit {
		obs.Unit = unit
		changed = append(changed, "unit")
	}
	if vitals, ok := bag.GetFloatMap("vital_signs"); ok && !equalVitals(obs.VitalSigns, vitals) {
		obs.VitalSigns = vitals
		changed = append(changed, "vital_signs")
	}
	if coding, ok := bag.GetString("coding_system"); ok && obs.CodingSystem != coding {
		obs.CodingSystem = coding
		changed = append(changed, "coding_system")
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
	}).Info("Observation updated")

	return domain.OK(fmt.Sprintf("observation updated: %d field(s) changed", len(changed)),
		map[string]any{"changed": changed})
}

func equalVitals(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		if bv, ok := b[k]; !ok || av != bv {
			return false
		}
	}
	return true
}
