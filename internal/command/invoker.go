package command

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/clinical-encounter-server/internal/domain"
)

// Invoker runs the command pipeline: validate, authorize, execute, and for
// reversible commands capture undo state onto a history stack. Validation
// failures and permission denials never reach Execute; runtime faults are
// recovered at the execution boundary and converted into failed results.
type Invoker struct {
	log *logrus.Logger

	mu      sync.Mutex
	history []undoRecord
}

type undoRecord struct {
	cmd   Reversible
	state *UndoState
}

// NewInvoker creates a command invoker with an empty undo history.
func NewInvoker(logger *logrus.Logger) *Invoker {
	return &Invoker{log: logger}
}

// Dispatch runs a single command through the full pipeline and returns its
// result. Warnings raised during validation are carried on the result even
// when execution succeeds.
func (i *Invoker) Dispatch(ctx context.Context, cmd Command, bag *domain.ParameterBag, session domain.Session) *domain.OperationResult {
	v := cmd.Validate(ctx, bag)
	if !v.OK() {
		i.log.WithFields(logrus.Fields{
			"command": cmd.Name(),
			"errors":  len(v.Errors),
		}).Warn("Command validation failed")
		return domain.ValidationFailed(v)
	}

	if perm := cmd.RequiredPermission(); perm != "" {
		if session == nil || !session.HasPermission(perm) {
			err := domain.NewPermissionDenied(perm)
			i.log.WithFields(logrus.Fields{
				"command":    cmd.Name(),
				"permission": perm.String(),
			}).Warn("Command authorization failed")
			return domain.Fail(err.Message, err)
		}
	}

	result := i.execute(ctx, cmd, bag, session)
	if len(v.Warnings) > 0 {
		result.Warnings = append(append([]string{}, v.Warnings...), result.Warnings...)
	}

	if result.Success {
		if rev, ok := cmd.(Reversible); ok {
			state, err := rev.CaptureUndo(ctx, bag, result)
			if err != nil {
				i.log.WithError(err).WithField("command", cmd.Name()).Warn("Undo capture failed; command will not be reversible")
			} else if state != nil {
				i.push(undoRecord{cmd: rev, state: state})
			}
		}
	}

	return result
}

// execute invokes the command, converting panics into failed results so no
// fault escapes the command boundary.
func (i *Invoker) execute(ctx context.Context, cmd Command, bag *domain.ParameterBag, session domain.Session) (result *domain.OperationResult) {
	defer func() {
		if r := recover(); r != nil {
			cause := domain.NewUnexpected(fmt.Errorf("panic: %v", r))
			i.log.WithFields(logrus.Fields{
				"command": cmd.Name(),
				"panic":   fmt.Sprintf("%v", r),
			}).Error("Command execution panicked")
			result = domain.Fail("command failed unexpectedly", cause)
		}
	}()
	return cmd.Execute(ctx, bag, session)
}

// UndoLast pops the most recent reversible command and runs its
// compensation. The session must still hold the command's permission.
func (i *Invoker) UndoLast(ctx context.Context, session domain.Session) *domain.OperationResult {
	rec, ok := i.pop()
	if !ok {
		return domain.Fail("nothing to undo", nil)
	}
	if perm := rec.cmd.RequiredPermission(); perm != "" {
		if session == nil || !session.HasPermission(perm) {
			// The record is consumed either way; a denied undo is not retryable
			// by a different caller on the same history slot.
			err := domain.NewPermissionDenied(perm)
			return domain.Fail(err.Message, err)
		}
	}
	i.log.WithFields(logrus.Fields{
		"command":     rec.cmd.Name(),
		"document_id": rec.state.DocumentID,
		"entry_id":    rec.state.EntryID,
	}).Info("Undoing command")
	return rec.cmd.Undo(ctx, rec.state, session)
}

// HistoryDepth returns the number of undoable records currently held.
func (i *Invoker) HistoryDepth() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.history)
}

func (i *Invoker) push(rec undoRecord) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.history = append(i.history, rec)
}

func (i *Invoker) pop() (undoRecord, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.history) == 0 {
		return undoRecord{}, false
	}
	rec := i.history[len(i.history)-1]
	i.history = i.history[:len(i.history)-1]
	return rec, true
}
