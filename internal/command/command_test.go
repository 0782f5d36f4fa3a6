package command

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/clinical-encounter-server/internal/domain"
	"github.com/clinical-encounter-server/internal/repository"
)

// testSession is a minimal session granting the permissions of its role.
type testSession struct {
	userID string
	role   domain.Role
}

func (s *testSession) UserID() string    { return s.userID }
func (s *testSession) Role() domain.Role { return s.role }

func (s *testSession) HasPermission(p domain.Permission) bool {
	for _, granted := range domain.RolePermissions[s.role] {
		if granted == p {
			return true
		}
	}
	return false
}

func physicianSession() *testSession {
	return &testSession{userID: "dr-1", role: domain.ROLE_PHYSICIAN}
}

func adminSession() *testSession {
	return &testSession{userID: "admin-1", role: domain.ROLE_ADMIN}
}

func patientSession() *testSession {
	return &testSession{userID: "patient-1", role: domain.ROLE_PATIENT}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fixture wires an in-memory store with the full command set and an invoker.
type fixture struct {
	store   *repository.MemoryStore
	invoker *Invoker
	log     *logrus.Logger
}

func newFixture() *fixture {
	logger := testLogger()
	return &fixture{
		store:   repository.NewMemoryStore(),
		invoker: NewInvoker(logger),
		log:     logger,
	}
}

// createDocument dispatches a create command and returns the stored document.
func (f *fixture) createDocument(t *testing.T) *domain.ClinicalDocument {
	t.Helper()
	bag := domain.NewParameterBag().
		Set("patient_id", "patient-1").
		Set("physician_id", "dr-1").
		Set("appointment_id", "appt-"+t.Name()).
		Set("chief_complaint", "persistent cough")

	result := f.invoker.Dispatch(context.Background(), NewCreateClinicalDocumentCommand(f.store, f.log), bag, physicianSession())
	require.True(t, result.Success, "create failed: %s %v", result.Message, result.Errors)

	doc, ok := result.Payload.(*domain.ClinicalDocument)
	require.True(t, ok)
	return doc
}

// addDiagnosis dispatches an add-diagnosis command and returns the entry.
func (f *fixture) addDiagnosis(t *testing.T, docID, content string) *domain.Entry {
	t.Helper()
	bag := domain.NewParameterBag().
		Set("document_id", docID).
		Set("content", content)

	result := f.invoker.Dispatch(context.Background(), NewAddDiagnosisCommand(f.store, f.log), bag, physicianSession())
	require.True(t, result.Success, "add diagnosis failed: %s %v", result.Message, result.Errors)

	entry, ok := result.Payload.(*domain.Entry)
	require.True(t, ok)
	return entry
}

// loadDocument re-reads a document from the store.
func (f *fixture) loadDocument(t *testing.T, id string) *domain.ClinicalDocument {
	t.Helper()
	doc, err := f.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return doc
}
