package audit

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinical-encounter-server/internal/domain"
)

// Store is the persistence contract for audit events. Stores only append
// and read; audit rows are never updated or deleted by the application.
type Store interface {
	Save(ctx context.Context, event *domain.AuditEvent) error
	List(ctx context.Context, limit, offset int) ([]*domain.AuditEvent, error)
	ListByDocument(ctx context.Context, documentID string) ([]*domain.AuditEvent, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// Trail records audit events to the structured log and, when a store is
// configured, persists them. Persistence failures are logged and
// swallowed: auditing must never fail the operation being audited.
type Trail struct {
	logger *logrus.Logger
	store  Store
}

// NewTrail creates a log-only audit trail.
func NewTrail(logger *logrus.Logger) *Trail {
	return &Trail{logger: logger}
}

// NewPersistentTrail creates an audit trail that also writes to a store.
func NewPersistentTrail(logger *logrus.Logger, store Store) *Trail {
	return &Trail{logger: logger, store: store}
}

// Record implements domain.AuditTrail.
func (t *Trail) Record(ctx context.Context, event domain.AuditEvent) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	t.logger.WithFields(logrus.Fields{
		"audit":       true,
		"action":      event.Action,
		"actor_id":    event.ActorID,
		"document_id": event.DocumentID,
		"detail":      event.Detail,
	}).Info("Audit event")

	if t.store == nil {
		return
	}
	if err := t.store.Save(ctx, &event); err != nil {
		t.logger.WithFields(logrus.Fields{
			"action":      event.Action,
			"document_id": event.DocumentID,
			"error":       err,
		}).Warn("Failed to persist audit event")
	}
}

// Close releases the underlying store, if any.
func (t *Trail) Close() error {
	if t.store == nil {
		return nil
	}
	return t.store.Close()
}

// Export writes all persisted events as JSON to the writer. Returns the
// number of events exported.
func (t *Trail) Export(ctx context.Context, w io.Writer) (int, error) {
	if t.store == nil {
		return 0, nil
	}
	return exportJSON(ctx, t.store, w)
}
