package command

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinical-encounter-server/internal/domain"
)

// CreateClinicalDocumentCommand opens a draft document for an encounter.
// At most one document may exist per appointment.
type CreateClinicalDocumentCommand struct {
	base
}

// NewCreateClinicalDocumentCommand builds the command.
func NewCreateClinicalDocumentCommand(store domain.DocumentStore, logger *logrus.Logger) *CreateClinicalDocumentCommand {
	return &CreateClinicalDocumentCommand{base{store: store, log: logger}}
}

func (c *CreateClinicalDocumentCommand) Name() string { return "CreateClinicalDocument" }

func (c *CreateClinicalDocumentCommand) RequiredPermission() domain.Permission {
	return domain.PERM_CREATE_DOCUMENT
}

func (c *CreateClinicalDocumentCommand) Validate(ctx context.Context, bag *domain.ParameterBag) *domain.ValidationResult {
	v := domain.NewValidationResult()
	if missing := bag.MissingRequired("patient_id", "physician_id", "appointment_id", "chief_complaint"); len(missing) > 0 {
		v.AddErrors(missing...)
		return v
	}

	complaint, _ := bag.GetString("chief_complaint")
	if complaint == "" {
		v.AddError("chief complaint must not be empty")
	} else if len(complaint) > domain.MaxChiefComplaintLength {
		v.AddError("chief complaint exceeds %d characters", domain.MaxChiefComplaintLength)
	}

	appointmentID, _ := bag.GetString("appointment_id")
	if appointmentID != "" {
		taken, err := c.store.AppointmentHasDocument(ctx, appointmentID)
		if err != nil {
			v.AddError("appointment lookup failed: %v", err)
		} else if taken {
			v.AddError("appointment %s already has a clinical document", appointmentID)
		}
	}
	return v
}

func (c *CreateClinicalDocumentCommand) Execute(ctx context.Context, bag *domain.ParameterBag, session domain.Session) *domain.OperationResult {
	patientID, err := bag.GetRequiredString("patient_id")
	if err != nil {
		return domain.Fail("patient_id parameter is missing", err)
	}
	physicianID, err := bag.GetRequiredString("physician_id")
	if err != nil {
		return domain.Fail("physician_id parameter is missing", err)
	}
	appointmentID, err := bag.GetRequiredString("appointment_id")
	if err != nil {
		return domain.Fail("appointment_id parameter is missing", err)
	}
	complaint, err := bag.GetRequiredString("chief_complaint")
	if err != nil {
		return domain.Fail("chief_complaint parameter is missing", err)
	}

	doc, err := domain.NewClinicalDocument(patientID, physicianID, appointmentID, complaint)
	if err != nil {
		return domain.Fail("creating clinical document", err)
	}
	if err := c.store.Add(ctx, doc); err != nil {
		return domain.Fail("persisting clinical document", err)
	}

	c.log.WithFields(logrus.Fields{
		"document_id":    doc.ID,
		"patient_id":     doc.PatientID,
		"physician_id":   doc.PhysicianID,
		"appointment_id": doc.AppointmentID,
	}).Info("Clinical document created")

	return domain.OK("clinical document created: "+doc.ID, doc)
}

// UpdateClinicalDocumentCommand mutates document-level fields: the chief
// complaint, and the completion flag. Completion is guarded by the
// document's completeness check; violations surface as validation errors
// naming each broken rule.
type UpdateClinicalDocumentCommand struct {
	base
	audit domain.AuditTrail
}

// NewUpdateClinicalDocumentCommand builds the command.
func NewUpdateClinicalDocumentCommand(store domain.DocumentStore, audit domain.AuditTrail, logger *logrus.Logger) *UpdateClinicalDocumentCommand {
	return &UpdateClinicalDocumentCommand{base: base{store: store, log: logger}, audit: audit}
}

func (c *UpdateClinicalDocumentCommand) Name() string { return "UpdateClinicalDocument" }

func (c *UpdateClinicalDocumentCommand) RequiredPermission() domain.Permission {
	return domain.PERM_UPDATE_DOCUMENT
}

func (c *UpdateClinicalDocumentCommand) Validate(ctx context.Context, bag *domain.ParameterBag) *domain.ValidationResult {
	v := domain.NewValidationResult()
	doc := c.fetchDocument(ctx, bag, v)
	if doc == nil {
		return v
	}

	if !bag.Has("chief_complaint") && !bag.Has("complete") {
		v.AddError("nothing to update: provide chief_complaint or complete")
		return v
	}
	if !requireDraft(doc, v) {
		return v
	}

	if complaint, ok := bag.GetString("chief_complaint"); ok {
		if complaint == "" {
			v.AddError("chief complaint must not be empty")
		} else if len(complaint) > domain.MaxChiefComplaintLength {
			v.AddError("chief complaint exceeds %d characters", domain.MaxChiefComplaintLength)
		}
	}

	if complete, ok := bag.GetBool("complete"); ok && complete {
		v.AddErrors(doc.CompletenessViolations()...)
	}
	return v
}

func (c *UpdateClinicalDocumentCommand) Execute(ctx context.Context, bag *domain.ParameterBag, session domain.Session) *domain.OperationResult {
	doc, fail := c.loadForExecute(ctx, bag)
	if fail != nil {
		return fail
	}

	var changed []string
	if complaint, ok := bag.GetString("chief_complaint"); ok {
		did, err := doc.SetChiefComplaint(complaint)
		if err != nil {
			return domain.Fail("updating chief complaint", err)
		}
		if did {
			changed = append(changed, "chief_complaint")
		}
	}

	if complete, ok := bag.GetBool("complete"); ok && complete {
		if err := doc.Complete(); err != nil {
			return domain.Fail("completing document", err)
		}
		changed = append(changed, "completed")
		c.recordAudit(ctx, session, doc.ID, "document completed")
	}

	if len(changed) == 0 {
		return domain.OK("no changes: all fields already match", map[string]any{"changed": []string{}})
	}

	if err := c.store.Update(ctx, doc); err != nil {
		return domain.Fail("persisting clinical document", err)
	}

	c.log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"changed":     changed,
	}).Info("Clinical document updated")

	return domain.OK(fmt.Sprintf("clinical document updated: %d field(s) changed", len(changed)),
		map[string]any{"changed": changed})
}

func (c *UpdateClinicalDocumentCommand) recordAudit(ctx context.Context, session domain.Session, docID, detail string) {
	if c.audit == nil {
		return
	}
	actor := ""
	if session != nil {
		actor = session.UserID()
	}
	c.audit.Record(ctx, domain.AuditEvent{
		Action:     c.Name(),
		ActorID:    actor,
		DocumentID: docID,
		Detail:     detail,
		At:         time.Now().UTC(),
	})
}

// DeleteClinicalDocumentCommand removes a document from the store. Deleting
// a completed document is blocked unless the explicit override flag is
// supplied; the privileged path is always audited. Deletion is not
// undoable.
type DeleteClinicalDocumentCommand struct {
	base
	audit domain.AuditTrail
}

// NewDeleteClinicalDocumentCommand builds the command.
func NewDeleteClinicalDocumentCommand(store domain.DocumentStore, audit domain.AuditTrail, logger *logrus.Logger) *DeleteClinicalDocumentCommand {
	return &DeleteClinicalDocumentCommand{base: base{store: store, log: logger}, audit: audit}
}

func (c *DeleteClinicalDocumentCommand) Name() string { return "DeleteClinicalDocument" }

func (c *DeleteClinicalDocumentCommand) RequiredPermission() domain.Permission {
	return domain.PERM_DELETE_DOCUMENT
}

func (c *DeleteClinicalDocumentCommand) Validate(ctx context.Context, bag *domain.ParameterBag) *domain.ValidationResult {
	v := domain.NewValidationResult()
	doc := c.fetchDocument(ctx, bag, v)
	if doc == nil {
		return v
	}

	if doc.Completed {
		override, _ := bag.GetBool("confirm_completed_delete")
		if !override {
			v.AddError("document %s is completed: deletion requires confirm_completed_delete", doc.ID)
		}
	}
	return v
}

func (c *DeleteClinicalDocumentCommand) Execute(ctx context.Context, bag *domain.ParameterBag, session domain.Session) *domain.OperationResult {
	doc, fail := c.loadForExecute(ctx, bag)
	if fail != nil {
		return fail
	}

	if err := c.store.Remove(ctx, doc.ID); err != nil {
		return domain.Fail("removing clinical document", err)
	}

	detail := "draft document deleted"
	if doc.Completed {
		detail = "completed document deleted with override"
	}
	if c.audit != nil {
		actor := ""
		if session != nil {
			actor = session.UserID()
		}
		c.audit.Record(ctx, domain.AuditEvent{
			Action:     c.Name(),
			ActorID:    actor,
			DocumentID: doc.ID,
			Detail:     detail,
			At:         time.Now().UTC(),
		})
	}

	c.log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"completed":   doc.Completed,
	}).Info("Clinical document deleted")

	return domain.OK("clinical document deleted: "+doc.ID, nil)
}
