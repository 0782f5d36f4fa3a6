package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-encounter-server/internal/audit"
	"github.com/clinical-encounter-server/internal/directory"
	"github.com/clinical-encounter-server/internal/domain"
	"github.com/clinical-encounter-server/internal/repository"
	"github.com/clinical-encounter-server/internal/session"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	server := NewServer(Dependencies{
		Config: &domain.Config{
			Logging: domain.LoggingConfig{Level: "error"},
		},
		Logger:    logger,
		Store:     repository.NewMemoryStore(),
		Sessions:  session.NewMemoryStore(time.Hour),
		Directory: directory.NewStatic(directory.DevProfiles()...),
		Audit:     audit.NewTrail(logger),
	})
	return server.Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

func login(t *testing.T, handler http.Handler, userID string) string {
	t.Helper()
	w := doJSON(t, handler, http.MethodPost, "/api/v1/sessions", "", map[string]any{"user_id": userID})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	resp := decodeResult(t, w)
	token, _ := resp["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func createDocument(t *testing.T, handler http.Handler, token, appointmentID string) string {
	t.Helper()
	w := doJSON(t, handler, http.MethodPost, "/api/v1/documents", token, map[string]any{
		"patient_id":      "dev-patient",
		"physician_id":    "dev-physician",
		"appointment_id":  appointmentID,
		"chief_complaint": "persistent cough",
	})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	result := decodeResult(t, w)
	payload, _ := result["payload"].(map[string]any)
	require.NotNil(t, payload)
	id, _ := payload["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(t)

	w := doJSON(t, handler, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestCreateSession(t *testing.T) {
	handler := newTestServer(t)

	w := doJSON(t, handler, http.MethodPost, "/api/v1/sessions", "", map[string]any{"user_id": "dev-physician"})
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decodeResult(t, w)
	assert.Equal(t, "dev-physician", resp["user_id"])
	assert.Equal(t, "PHYSICIAN", resp["role"])
	assert.NotEmpty(t, resp["token"])

	w = doJSON(t, handler, http.MethodPost, "/api/v1/sessions", "", map[string]any{"user_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, handler, http.MethodPost, "/api/v1/sessions", "", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthenticationRequired(t *testing.T) {
	handler := newTestServer(t)

	w := doJSON(t, handler, http.MethodPost, "/api/v1/documents", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, handler, http.MethodPost, "/api/v1/documents", "bogus-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRevokeSession(t *testing.T) {
	handler := newTestServer(t)
	token := login(t, handler, "dev-physician")

	w := doJSON(t, handler, http.MethodDelete, "/api/v1/sessions", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, handler, http.MethodGet, "/api/v1/documents", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDocumentFlow(t *testing.T) {
	handler := newTestServer(t)
	token := login(t, handler, "dev-physician")
	docID := createDocument(t, handler, token, "appt-flow-1")

	// Add a diagnosis, then prescribe against it.
	w := doJSON(t, handler, http.MethodPost, "/api/v1/documents/"+docID+"/diagnoses", token, map[string]any{
		"content":    "community acquired pneumonia",
		"code":       "J18.9",
		"is_primary": true,
	})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	result := decodeResult(t, w)
	payload, _ := result["payload"].(map[string]any)
	require.NotNil(t, payload)
	dxID, _ := payload["id"].(string)
	require.NotEmpty(t, dxID)

	w = doJSON(t, handler, http.MethodPost, "/api/v1/documents/"+docID+"/prescriptions", token, map[string]any{
		"diagnosis_id":    dxID,
		"medication_name": "amoxicillin",
		"dosage":          "500mg",
		"frequency":       "q8h",
	})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	// The document reads back with both entries.
	w = doJSON(t, handler, http.MethodGet, "/api/v1/documents/"+docID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	result = decodeResult(t, w)
	payload, _ = result["payload"].(map[string]any)
	require.NotNil(t, payload)
	entries, _ := payload["entries"].([]any)
	assert.Len(t, entries, 2)

	// The rendered note places the primary diagnosis in the assessment.
	w = doJSON(t, handler, http.MethodGet, "/api/v1/documents/"+docID+"/note?format=text", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "CLINICAL NOTE")
	assert.Contains(t, w.Body.String(), "PRIMARY: community acquired pneumonia")
	assert.Contains(t, w.Body.String(), "Rx: amoxicillin 500mg q8h")

	w = doJSON(t, handler, http.MethodGet, "/api/v1/documents/"+docID+"/note?format=xml", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEntryUpdateAndStatusMapping(t *testing.T) {
	handler := newTestServer(t)
	token := login(t, handler, "dev-physician")
	docID := createDocument(t, handler, token, "appt-status-1")

	w := doJSON(t, handler, http.MethodPost, "/api/v1/documents/"+docID+"/observations", token, map[string]any{
		"content":  "crackles on auscultation",
		"category": "EXAM",
	})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	payload, _ := decodeResult(t, w)["payload"].(map[string]any)
	obsID, _ := payload["id"].(string)
	require.NotEmpty(t, obsID)

	// Valid update.
	w = doJSON(t, handler, http.MethodPatch,
		fmt.Sprintf("/api/v1/documents/%s/observations/%s", docID, obsID), token,
		map[string]any{"abnormal": true})
	assert.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

	// Unknown document maps to 404.
	w = doJSON(t, handler, http.MethodGet, "/api/v1/documents/no-such-doc", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Validation failure maps to 422.
	w = doJSON(t, handler, http.MethodPost, "/api/v1/documents/"+docID+"/observations", token, map[string]any{
		"content":  "x",
		"category": "NOT_A_CATEGORY",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Missing permission maps to 403.
	patientToken := login(t, handler, "dev-patient")
	w = doJSON(t, handler, http.MethodPost, "/api/v1/documents/"+docID+"/observations", patientToken, map[string]any{
		"content":  "self reported",
		"category": "HISTORY",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Malformed body maps to 400.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/"+docID+"/observations",
		bytes.NewReader([]byte(`[1,2,3]`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPathParameterWinsOverBody(t *testing.T) {
	handler := newTestServer(t)
	token := login(t, handler, "dev-physician")
	docID := createDocument(t, handler, token, "appt-path-1")

	// A document_id smuggled into the body must not redirect the write.
	w := doJSON(t, handler, http.MethodPost, "/api/v1/documents/"+docID+"/observations", token, map[string]any{
		"document_id": "some-other-doc",
		"content":     "clear lungs",
		"category":    "EXAM",
	})
	assert.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	w = doJSON(t, handler, http.MethodGet, "/api/v1/documents/"+docID, token, nil)
	payload, _ := decodeResult(t, w)["payload"].(map[string]any)
	entries, _ := payload["entries"].([]any)
	assert.Len(t, entries, 1)
}

func TestUndoEndpoint(t *testing.T) {
	handler := newTestServer(t)
	token := login(t, handler, "dev-physician")
	docID := createDocument(t, handler, token, "appt-undo-1")

	w := doJSON(t, handler, http.MethodPost, "/api/v1/documents/"+docID+"/diagnoses", token, map[string]any{
		"content": "bronchitis",
	})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	w = doJSON(t, handler, http.MethodPost, "/api/v1/undo", token, nil)
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

	// The diagnosis is soft-deleted, not removed.
	w = doJSON(t, handler, http.MethodGet, "/api/v1/documents/"+docID, token, nil)
	payload, _ := decodeResult(t, w)["payload"].(map[string]any)
	entries, _ := payload["entries"].([]any)
	require.Len(t, entries, 1)
	entry, _ := entries[0].(map[string]any)
	assert.Equal(t, false, entry["active"])

	// Nothing left to undo.
	w = doJSON(t, handler, http.MethodPost, "/api/v1/undo", token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestListEndpoints(t *testing.T) {
	handler := newTestServer(t)
	physician := login(t, handler, "dev-physician")
	admin := login(t, handler, "dev-admin")

	createDocument(t, handler, physician, "appt-list-1")
	createDocument(t, handler, physician, "appt-list-2")

	// Patients read their own history; a stranger physician cannot.
	patient := login(t, handler, "dev-patient")
	w := doJSON(t, handler, http.MethodGet, "/api/v1/patients/dev-patient/documents", patient, nil)
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	payload, _ := decodeResult(t, w)["payload"].([]any)
	assert.Len(t, payload, 2)

	w = doJSON(t, handler, http.MethodGet, "/api/v1/patients/dev-patient/documents", physician, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, handler, http.MethodGet, "/api/v1/physicians/dev-physician/documents", physician, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Draft review is an admin view.
	w = doJSON(t, handler, http.MethodGet, "/api/v1/documents", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	payload, _ = decodeResult(t, w)["payload"].([]any)
	assert.Len(t, payload, 2)

	w = doJSON(t, handler, http.MethodGet, "/api/v1/documents", physician, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
