package command

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/clinical-encounter-server/internal/domain"
)

// GetClinicalDocumentCommand fetches a single document. Patients may only
// read their own records; the view-all permission lifts that restriction.
type GetClinicalDocumentCommand struct {
	base
}

// NewGetClinicalDocumentCommand builds the command.
func NewGetClinicalDocumentCommand(store domain.DocumentStore, logger *logrus.Logger) *GetClinicalDocumentCommand {
	return &GetClinicalDocumentCommand{base{store: store, log: logger}}
}

func (c *GetClinicalDocumentCommand) Name() string { return "GetClinicalDocument" }

func (c *GetClinicalDocumentCommand) RequiredPermission() domain.Permission {
	return domain.PERM_VIEW_OWN_DOCUMENTS
}

func (c *GetClinicalDocumentCommand) Validate(ctx context.Context, bag *domain.ParameterBag) *domain.ValidationResult {
	v := domain.NewValidationResult()
	if missing := bag.MissingRequired("document_id"); len(missing) > 0 {
		v.AddErrors(missing...)
		return v
	}
	c.fetchDocument(ctx, bag, v)
	return v
}

func (c *GetClinicalDocumentCommand) Execute(ctx context.Context, bag *domain.ParameterBag, session domain.Session) *domain.OperationResult {
	doc, fail := c.loadForExecute(ctx, bag)
	if fail != nil {
		return fail
	}
	if !canViewDocument(session, doc.PatientID, doc.PhysicianID) {
		return domain.Fail("access denied to clinical document "+doc.ID,
			domain.NewPermissionDenied(domain.PERM_VIEW_ALL_DOCUMENTS))
	}
	return domain.OK("clinical document "+doc.ID, doc)
}

// ListPatientDocumentsCommand lists a patient's documents in descending
// creation order.
type ListPatientDocumentsCommand struct {
	base
}

// NewListPatientDocumentsCommand builds the command.
func NewListPatientDocumentsCommand(store domain.DocumentStore, logger *logrus.Logger) *ListPatientDocumentsCommand {
	return &ListPatientDocumentsCommand{base{store: store, log: logger}}
}

func (c *ListPatientDocumentsCommand) Name() string { return "ListPatientDocuments" }

func (c *ListPatientDocumentsCommand) RequiredPermission() domain.Permission {
	return domain.PERM_VIEW_OWN_DOCUMENTS
}

func (c *ListPatientDocumentsCommand) Validate(ctx context.Context, bag *domain.ParameterBag) *domain.ValidationResult {
	v := domain.NewValidationResult()
	if missing := bag.MissingRequired("patient_id"); len(missing) > 0 {
		v.AddErrors(missing...)
	}
	return v
}

func (c *ListPatientDocumentsCommand) Execute(ctx context.Context, bag *domain.ParameterBag, session domain.Session) *domain.OperationResult {
	patientID, err := bag.GetRequiredString("patient_id")
	if err != nil {
		return domain.Fail("patient_id parameter is missing", err)
	}
	if !canViewDocument(session, patientID, "") {
		return domain.Fail("access denied to documents of patient "+patientID,
			domain.NewPermissionDenied(domain.PERM_VIEW_ALL_DOCUMENTS))
	}

	docs, err := c.store.ListByPatient(ctx, patientID)
	if err != nil {
		return domain.Fail("listing clinical documents", err)
	}
	return domain.OK(fmt.Sprintf("%d clinical document(s)", len(docs)), docs)
}

// ListPhysicianDocumentsCommand lists documents authored by a physician.
type ListPhysicianDocumentsCommand struct {
	base
}

// NewListPhysicianDocumentsCommand builds the command.
func NewListPhysicianDocumentsCommand(store domain.DocumentStore, logger *logrus.Logger) *ListPhysicianDocumentsCommand {
	return &ListPhysicianDocumentsCommand{base{store: store, log: logger}}
}

func (c *ListPhysicianDocumentsCommand) Name() string { return "ListPhysicianDocuments" }

func (c *ListPhysicianDocumentsCommand) RequiredPermission() domain.Permission {
	return domain.PERM_VIEW_OWN_DOCUMENTS
}

func (c *ListPhysicianDocumentsCommand) Validate(ctx context.Context, bag *domain.ParameterBag) *domain.ValidationResult {
	v := domain.NewValidationResult()
	if missing := bag.MissingRequired("physician_id"); len(missing) > 0 {
		v.AddErrors(missing...)
	}
	return v
}

func (c *ListPhysicianDocumentsCommand) Execute(ctx context.Context, bag *domain.ParameterBag, session domain.Session) *domain.OperationResult {
	physicianID, err := bag.GetRequiredString("physician_id")
	if err != nil {
		return domain.Fail("physician_id parameter is missing", err)
	}
	if !canViewDocument(session, "", physicianID) {
		return domain.Fail("access denied to documents of physician "+physicianID,
			domain.NewPermissionDenied(domain.PERM_VIEW_ALL_DOCUMENTS))
	}

	docs, err := c.store.ListByPhysician(ctx, physicianID)
	if err != nil {
		return domain.Fail("listing clinical documents", err)
	}
	return domain.OK(fmt.Sprintf("%d clinical document(s)", len(docs)), docs)
}

// ListIncompleteDocumentsCommand lists draft documents awaiting completion.
// Restricted to holders of the view-all permission.
type ListIncompleteDocumentsCommand struct {
	base
}

// NewListIncompleteDocumentsCommand builds the command.
func NewListIncompleteDocumentsCommand(store domain.DocumentStore, logger *logrus.Logger) *ListIncompleteDocumentsCommand {
	return &ListIncompleteDocumentsCommand{base{store: store, log: logger}}
}

func (c *ListIncompleteDocumentsCommand) Name() string { return "ListIncompleteDocuments" }

func (c *ListIncompleteDocumentsCommand) RequiredPermission() domain.Permission {
	return domain.PERM_VIEW_ALL_DOCUMENTS
}

func (c *ListIncompleteDocumentsCommand) Validate(ctx context.Context, bag *domain.ParameterBag) *domain.ValidationResult {
	return domain.NewValidationResult()
}

func (c *ListIncompleteDocumentsCommand) Execute(ctx context.Context, bag *domain.ParameterBag, session domain.Session) *domain.OperationResult {
	docs, err := c.store.ListIncomplete(ctx)
	if err != nil {
		return domain.Fail("listing incomplete clinical documents", err)
	}
	return domain.OK(fmt.Sprintf("%d incomplete clinical document(s)", len(docs)), docs)
}

// canViewDocument applies the ownership rule: a session may always read
// records it participates in (as patient or author); anything else needs
// the view-all permission.
func canViewDocument(session domain.Session, patientID, physicianID string) bool {
	if session == nil {
		return false
	}
	if session.HasPermission(domain.PERM_VIEW_ALL_DOCUMENTS) {
		return true
	}
	uid := session.UserID()
	return (patientID != "" && uid == patientID) || (physicianID != "" && uid == physicianID)
}
