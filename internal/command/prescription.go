package command

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinical-encounter-server/internal/domain"
)

// AddPrescriptionCommand records a prescription on a draft document.
// Every prescription must cite an active diagnosis of the same document.
// Controlled substances without an explicit expiration get the default
// controlled-substance expiry. Reversible: undo deactivates the entry.
type AddPrescriptionCommand struct {
	base
}

// NewAddPrescriptionCommand builds the command.
func NewAddPrescriptionCommand(store domain.DocumentStore, logger *logrus.Logger) *AddPrescriptionCommand {
	return &AddPrescriptionCommand{base{store: store, log: logger}}
}

func (c *AddPrescriptionCommand) Name() string { return "AddPrescription" }

func (c *AddPrescriptionCommand) RequiredPermission() domain.Permission {
	return domain.PERM_PRESCRIBE
}

func (c *AddPrescriptionCommand) Validate(ctx context.Context, bag *domain.ParameterBag) *domain.ValidationResult {
	v := domain.NewValidationResult()
	if missing := bag.MissingRequired("document_id", "diagnosis_id", "medication_name", "dosage", "frequency"); len(missing) > 0 {
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

	diagnosisID, _ := bag.GetString("diagnosis_id")
	if doc.ActiveDiagnosisByID(diagnosisID) == nil {
		v.AddError("prescription must reference an active diagnosis: %s", diagnosisID)
	}
	if name, _ := bag.GetString("medication_name"); name == "" {
		v.AddError("medication name must not be empty")
	}
	if dosage, _ := bag.GetString("dosage"); dosage == "" {
		v.AddError("dosage must not be empty")
	}
	if frequency, _ := bag.GetString("frequency"); frequency == "" {
		v.AddError("frequency must not be empty")
	}
	if route, ok := bag.GetString("route"); ok && !domain.MedicationRoute(route).IsValid() {
		v.AddError("invalid medication route: %q", route)
	}

	refills := 0
	if r, ok := bag.GetInt("refills"); ok {
		refills = r
		if refills < 0 {
			v.AddError("refills must not be negative")
		}
	}
	if schedule, ok := bag.GetInt("controlled_schedule"); ok {
		if schedule < domain.MinControlledSchedule || schedule > domain.MaxControlledSchedule {
			v.AddError("controlled schedule must be between %d and %d", domain.MinControlledSchedule, domain.MaxControlledSchedule)
		} else if schedule == 2 && refills > domain.Schedule2MaxRefills {
			v.AddError("schedule II prescriptions allow at most %d refills", domain.Schedule2MaxRefills)
		}
	}
	severityParam(bag, v, domain.SEVERITY_ROUTINE)
	return v
}

func (c *AddPrescriptionCommand) Execute(ctx context.Context, bag *domain.ParameterBag, session domain.Session) *domain.OperationResult {
	doc, fail := c.loadForExecute(ctx, bag)
	if fail != nil {
		return fail
	}
	diagnosisID, err := bag.GetRequiredString("diagnosis_id")
	if err != nil {
		return domain.Fail("diagnosis_id parameter is missing", err)
	}
	medication, err := bag.GetRequiredString("medication_name")
	if err != nil {
		return domain.Fail("medication_name parameter is missing", err)
	}
	dosage, err := bag.GetRequiredString("dosage")
	if err != nil {
		return domain.Fail("dosage parameter is missing", err)
	}
	frequency, err := bag.GetRequiredString("frequency")
	if err != nil {
		return domain.Fail("frequency parameter is missing", err)
	}

	content, ok := bag.GetString("content")
	if !ok || content == "" {
		content = medication
	}
	entry := domain.NewEntry(domain.ENTRY_PRESCRIPTION, session.UserID(), content, severityParam(bag, domain.NewValidationResult(), domain.SEVERITY_ROUTINE))
	rx := &domain.Prescription{
		DiagnosisID:    diagnosisID,
		MedicationName: medication,
		Dosage:         dosage,
		Frequency:      frequency,
		Route:          domain.ROUTE_ORAL,
		GenericAllowed: true,
	}
	if route, ok := bag.GetString("route"); ok {
		rx.Route = domain.MedicationRoute(route)
	}
	if duration, ok := bag.GetString("duration"); ok {
		rx.Duration = duration
	}
	if refills, ok := bag.GetInt("refills"); ok {
		rx.Refills = refills
	}
	if generic, ok := bag.GetBool("generic_allowed"); ok {
		rx.GenericAllowed = generic
	}
	if schedule, ok := bag.GetInt("controlled_schedule"); ok {
		rx.ControlledSchedule = schedule
	}
	if expiration, ok := bag.GetTime("expiration_date"); ok {
		rx.ExpirationDate = &expiration
	} else if rx.IsControlled() {
		expiry := domain.DefaultPrescriptionExpiry(entry.CreatedAt)
		rx.ExpirationDate = &expiry
	}
	if instructions, ok := bag.GetString("instructions"); ok {
		rx.Instructions = instructions
	}
	entry.Prescription = rx

	if err := doc.AddEntry(entry); err != nil {
		return domain.Fail("adding prescription", err)
	}
	if err := c.store.Update(ctx, doc); err != nil {
		return domain.Fail("persisting clinical document", err)
	}

	c.log.WithFields(logrus.Fields{
		"document_id":  doc.ID,
		"entry_id":     entry.ID,
		"diagnosis_id": diagnosisID,
		"medication":   medication,
		"controlled":   rx.IsControlled(),
	}).Info("Prescription added")

	return domain.OK("prescription added: "+entry.ID, entry)
}

func (c *AddPrescriptionCommand) CaptureUndo(ctx context.Context, bag *domain.ParameterBag, result *domain.OperationResult) (*UndoState, error) {
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

func (c *AddPrescriptionCommand) Undo(ctx context.Context, state *UndoState, session domain.Session) *domain.OperationResult {
	return c.deactivateEntry(ctx, state, domain.ENTRY_PRESCRIPTION)
}

// UpdatePrescriptionCommand applies diff-semantics field updates to an
// existing prescription. The diagnosis reference and the schedule II
// refill cap are checked against the combined state of existing fields
// and requested updates.
type UpdatePrescriptionCommand struct {
	base
}

// NewUpdatePrescriptionCommand builds the command.
func NewUpdatePrescriptionCommand(store domain.DocumentStore, logger *logrus.Logger) *UpdatePrescriptionCommand {
	return &UpdatePrescriptionCommand{base{store: store, log: logger}}
}

func (c *UpdatePrescriptionCommand) Name() string { return "UpdatePrescription" }

func (c *UpdatePrescriptionCommand) RequiredPermission() domain.Permission {
	return domain.PERM_PRESCRIBE
}

func (c *UpdatePrescriptionCommand) Validate(ctx context.Context, bag *domain.ParameterBag) *domain.ValidationResult {
	v := domain.NewValidationResult()
	if missing := bag.MissingRequired("document_id", "entry_id"); len(missing) > 0 {
		v.AddErrors(missing...)
		return v
	}
	doc := c.fetchDocument(ctx, bag, v)
	if doc == nil {
		return v
	}
	entry := c.fetchEntry(doc, bag, "entry_id", domain.ENTRY_PRESCRIPTION, v)
	if entry == nil {
		return v
	}
	if !requireDraft(doc, v) {
		return v
	}
	rx := entry.Prescription

	if diagnosisID, ok := bag.GetString("diagnosis_id"); ok && doc.ActiveDiagnosisByID(diagnosisID) == nil {
		v.AddError("prescription must reference an active diagnosis: %s", diagnosisID)
	}
	if name, ok := bag.GetString("medication_name"); ok && name == "" {
		v.AddError("medication name must not be empty")
	}
	if dosage, ok := bag.GetString("dosage"); ok && dosage == "" {
		v.AddError("dosage must not be empty")
	}
	if frequency, ok := bag.GetString("frequency"); ok && frequency == "" {
		v.AddError("frequency must not be empty")
	}
	if route, ok := bag.GetString("route"); ok && !domain.MedicationRoute(route).IsValid() {
		v.AddError("invalid medication route: %q", route)
	}

	refills := rx.Refills
	if r, ok := bag.GetInt("refills"); ok {
		refills = r
		if refills < 0 {
			v.AddError("refills must not be negative")
		}
	}
	schedule := rx.ControlledSchedule
	if s, ok := bag.GetInt("controlled_schedule"); ok {
		schedule = s
		if schedule != 0 && (schedule < domain.MinControlledSchedule || schedule > domain.MaxControlledSchedule) {
			v.AddError("controlled schedule must be between %d and %d", domain.MinControlledSchedule, domain.MaxControlledSchedule)
		}
	}
	if schedule == 2 && refills > domain.Schedule2MaxRefills {
		v.AddError("schedule II prescriptions allow at most %d refills", domain.Schedule2MaxRefills)
	}
	severityParam(bag, v, entry.Severity)
	return v
}

func (c *UpdatePrescriptionCommand) Execute(ctx context.Context, bag *domain.ParameterBag, session domain.Session) *domain.OperationResult {
	doc, fail := c.loadForExecute(ctx, bag)
	if fail != nil {
		return fail
	}
	entryID, err := bag.GetRequiredString("entry_id")
	if err != nil {
		return domain.Fail("entry_id parameter is missing", err)
	}
	entry := doc.FindEntryOfKind(entryID, domain.ENTRY_PRESCRIPTION)
	if entry == nil {
		return domain.Fail("prescription not found: "+entryID, domain.ErrNotFound)
	}
	rx := entry.Prescription

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
	if diagnosisID, ok := bag.GetString("diagnosis_id"); ok && rx.DiagnosisID != diagnosisID {
		rx.DiagnosisID = diagnosisID
		changed = append(changed, "diagnosis_id")
	}
	if name, ok := bag.GetString("medication_name"); ok && rx.MedicationName != name {
		rx.MedicationName = name
		changed = append(changed, "medication_name")
	}
	if dosage, ok := bag.GetString("dosage"); ok && rx.Dosage != dosage {
		rx.Dosage = dosage
		changed = append(changed, "dosage")
	}
	if frequency, ok := bag.GetString("frequency"); ok && rx.Frequency != frequency {
		rx.Frequency = frequency
		changed = append(changed, "frequency")
	}
	if route, ok := bag.GetString("route"); ok && rx.Route != domain.MedicationRoute(route) {
		rx.Route = domain.MedicationRoute(route)
		changed = append(changed, "route")
	}
	if duration, ok := bag.GetString("duration"); ok && rx.Duration != duration {
		rx.Duration = duration
		changed = append(changed, "duration")
	}
	if refills, ok := bag.GetInt("refills"); ok && rx.Refills != refills {
		rx.Refills = refills
		changed = append(changed, "refills")
	}
	if generic, ok := bag.GetBool("generic_allowed"); ok && rx.GenericAllowed != generic {
		rx.GenericAllowed = generic
		changed = append(changed, "generic_allowed")
	}
	wasControlled := rx.IsControlled()
	if schedule, ok := bag.GetInt("controlled_schedule"); ok && rx.ControlledSchedule != schedule {
		rx.ControlledSchedule = schedule
		changed = append(changed, "controlled_schedule")
	}
	if expiration, ok := bag.GetTime("expiration_date"); ok {
		if rx.ExpirationDate == nil || !rx.ExpirationDate.Equal(expiration) {
			rx.ExpirationDate = &expiration
			changed = append(changed, "expiration_date")
		}
	} else if !wasControlled && rx.IsControlled() && rx.ExpirationDate == nil {
		// A prescription reclassified as controlled gets its default expiry
		// from the reclassification time, not from the entry's creation.
		expiry := domain.DefaultPrescriptionExpiry(time.Now().UTC())
		rx.ExpirationDate = &expiry
		changed = append(changed, "expiration_date")
	}
	if instructions, ok := bag.GetString("instructions"); ok && rx.Instructions != instructions {
		rx.Instructions = instructions
		changed = append(changed, "instructions")
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
	}).Info("Prescription updated")

	return domain.OK(fmt.Sprintf("prescription updated: %d field(s) changed", len(changed)),
		map[string]any{"changed": changed})
}
