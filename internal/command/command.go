// Package command implements the uniform execution pipeline for clinical
// document operations: parameter validation, business-rule validation,
// authorization, execution, and compensating undo for reversible commands.
package command

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinical-encounter-server/internal/domain"
)

// Command is the unit of work executed by the Invoker. Validate runs
// structural checks first (required parameters, identifier format,
// referenced-entity existence) and returns immediately on structural
// failure, then business rules. Execute performs the single state change
// and must never let a fault escape; the invoker converts panics into
// failed results as a second line of defense.
type Command interface {
	Name() string
	RequiredPermission() domain.Permission
	Validate(ctx context.Context, bag *domain.ParameterBag) *domain.ValidationResult
	Execute(ctx context.Context, bag *domain.ParameterBag, session domain.Session) *domain.OperationResult
}

// UndoState captures the minimal identifiers needed to reverse a command's
// effect. It is never a deep copy of mutable state.
type UndoState struct {
	CommandName string    `json:"command_name"`
	DocumentID  string    `json:"document_id"`
	EntryID     string    `json:"entry_id"`
	CapturedAt  time.Time `json:"captured_at"`
}

// Reversible is implemented by commands whose effect can be compensated.
// Undo is compensating, not transactional rollback: the standard
// compensation for an add is soft-deactivation of the created entry, which
// restores the active-entry view without structural removal.
type Reversible interface {
	Command
	CaptureUndo(ctx context.Context, bag *domain.ParameterBag, result *domain.OperationResult) (*UndoState, error)
	Undo(ctx context.Context, state *UndoState, session domain.Session) *domain.OperationResult
}

// base carries the collaborators shared by every command.
type base struct {
	store domain.DocumentStore
	log   *logrus.Logger
}

// fetchDocument resolves the document named by the document_id parameter,
// recording a structural validation error when it is absent, empty or
// unknown. Returns nil on any failure.
func (b *base) fetchDocument(ctx context.Context, bag *domain.ParameterBag, v *domain.ValidationResult) *domain.ClinicalDocument {
	id, ok := bag.GetString("document_id")
	if !ok || id == "" {
		v.AddError("missing required parameter: document_id")
		return nil
	}
	doc, err := b.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			v.AddError("clinical document not found: %s", id)
		} else {
			v.AddError("clinical document lookup failed: %v", err)
		}
		return nil
	}
	return doc
}

// fetchEntry resolves the entry named by the key parameter within doc,
// checking that it exists and is of the expected kind.
func (b *base) fetchEntry(doc *domain.ClinicalDocument, bag *domain.ParameterBag, key string, kind domain.EntryKind, v *domain.ValidationResult) *domain.Entry {
	id, ok := bag.GetString(key)
	if !ok || id == "" {
		v.AddError("missing required parameter: %s", key)
		return nil
	}
	e := doc.FindEntry(id)
	if e == nil {
		v.AddError("entry not found in document %s: %s", doc.ID, id)
		return nil
	}
	if e.Kind != kind {
		v.AddError("entry %s is a %s, expected %s", id, e.Kind, kind)
		return nil
	}
	return e
}

// requireDraft records a business-rule error when the document is completed.
// Completed documents reject all mutating commands.
func requireDraft(doc *domain.ClinicalDocument, v *domain.ValidationResult) bool {
	if doc.Completed {
		v.AddError("document %s is already completed", doc.ID)
		return false
	}
	return true
}

// severityParam reads the optional severity parameter, defaulting when
// absent and recording an error for unknown values.
func severityParam(bag *domain.ParameterBag, v *domain.ValidationResult, def domain.Severity) domain.Severity {
	s, ok := bag.GetString("severity")
	if !ok {
		return def
	}
	sev := domain.Severity(s)
	if !sev.IsValid() {
		v.AddError("invalid severity: %q", s)
		return def
	}
	return sev
}

// loadForExecute re-fetches the aggregate at execution time. Validation has
// already established existence; a miss here means the document vanished
// between the two phases.
func (b *base) loadForExecute(ctx context.Context, bag *domain.ParameterBag) (*domain.ClinicalDocument, *domain.OperationResult) {
	id, err := bag.GetRequiredString("document_id")
	if err != nil {
		return nil, domain.Fail("document_id parameter is missing", err)
	}
	doc, findErr := b.store.FindByID(ctx, id)
	if findErr != nil {
		return nil, domain.Fail("clinical document not found: "+id, findErr)
	}
	return doc, nil
}

// captureCreatedEntry builds the undo state for add commands from the entry
// the execution attached to the result payload.
func captureCreatedEntry(name string, result *domain.OperationResult) (*UndoState, error) {
	entry, ok := result.Payload.(*domain.Entry)
	if !ok || entry == nil {
		return nil, errors.New("undo capture: result payload is not an entry")
	}
	state := &UndoState{
		CommandName: name,
		EntryID:     entry.ID,
		CapturedAt:  time.Now().UTC(),
	}
	return state, nil
}

// deactivateEntry is the shared compensation for add commands: it re-locates
// the created entry by id and soft-deletes it. The entry stays in the
// document, so the total entry count is unchanged.
func (b *base) deactivateEntry(ctx context.Context, state *UndoState, kind domain.EntryKind) *domain.OperationResult {
	doc, err := b.store.FindByID(ctx, state.DocumentID)
	if err != nil {
		return domain.Fail("undo failed: clinical document not found: "+state.DocumentID, err)
	}
	e := doc.FindEntryOfKind(state.EntryID, kind)
	if e == nil {
		return domain.Fail("undo failed: entry not found: "+state.EntryID, domain.ErrNotFound)
	}
	if !e.Deactivate() {
		return domain.OK("entry already inactive: "+state.EntryID, e)
	}
	if err := b.store.Update(ctx, doc); err != nil {
		return domain.Fail("undo failed: persisting document", err)
	}
	b.log.WithFields(logrus.Fields{
		"command":     state.CommandName,
		"document_id": state.DocumentID,
		"entry_id":    state.EntryID,
	}).Info("Entry deactivated by undo")
	return domain.OK("entry deactivated: "+state.EntryID, e)
}
