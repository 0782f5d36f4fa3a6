package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinical-encounter-server/internal/command"
	"github.com/clinical-encounter-server/internal/domain"
	"github.com/clinical-encounter-server/internal/middleware"
	"github.com/clinical-encounter-server/internal/service"
)

type createSessionRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// handleCreateSession resolves the user against the profile directory
// and issues a bearer token for subsequent requests.
func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	profile, err := s.dir.FindProfileByID(c.Request.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown user"})
			return
		}
		s.log.WithError(err).WithField("user_id", req.UserID).Error("Profile lookup failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "profile directory unavailable"})
		return
	}

	record, err := s.sessions.Create(c.Request.Context(), profile.ID, profile.Role)
	if err != nil {
		s.log.WithError(err).Error("Failed to create session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token":        record.Token,
		"user_id":      record.UserID,
		"role":         record.Role,
		"display_name": profile.DisplayName,
		"expires_at":   record.ExpiresAt,
	})
}

func (s *Server) handleRevokeSession(c *gin.Context) {
	token := c.GetString(middleware.TokenKey)
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no session token"})
		return
	}
	if err := s.sessions.Revoke(c.Request.Context(), token); err != nil {
		s.log.WithError(err).Warn("Failed to revoke session")
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCreateDocument(c *gin.Context) {
	s.dispatch(c, s.cmds.createDocument, nil, http.StatusCreated)
}

func (s *Server) handleGetDocument(c *gin.Context) {
	s.dispatch(c, s.cmds.getDocument, map[string]string{"document_id": c.Param("id")}, http.StatusOK)
}

func (s *Server) handleUpdateDocument(c *gin.Context) {
	s.dispatch(c, s.cmds.updateDocument, map[string]string{"document_id": c.Param("id")}, http.StatusOK)
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	s.dispatch(c, s.cmds.deleteDocument, map[string]string{"document_id": c.Param("id")}, http.StatusOK)
}

func (s *Server) handleListByPatient(c *gin.Context) {
	s.dispatch(c, s.cmds.listByPatient, map[string]string{"patient_id": c.Param("id")}, http.StatusOK)
}

func (s *Server) handleListByPhysician(c *gin.Context) {
	s.dispatch(c, s.cmds.listByPhysician, map[string]string{"physician_id": c.Param("id")}, http.StatusOK)
}

func (s *Server) handleListIncomplete(c *gin.Context) {
	s.dispatch(c, s.cmds.listIncomplete, nil, http.StatusOK)
}

// entryAdd builds a handler for the add-entry commands, which take the
// document id from the path and everything else from the body.
func (s *Server) entryAdd(cmd func() command.Command) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.dispatch(c, cmd(), map[string]string{"document_id": c.Param("id")}, http.StatusCreated)
	}
}

// entryUpdate is entryAdd plus the entry id path parameter.
func (s *Server) entryUpdate(cmd func() command.Command) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.dispatch(c, cmd(), map[string]string{
			"document_id": c.Param("id"),
			"entry_id":    c.Param("entryID"),
		}, http.StatusOK)
	}
}

// handleRenderNote loads the document through the query command, so the
// usual access rules apply, then projects it into SOAP form.
func (s *Server) handleRenderNote(c *gin.Context) {
	sess := middleware.SessionFrom(c)
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	bag := domain.NewParameterBag().Set("document_id", c.Param("id"))
	result := s.invoker.Dispatch(c.Request.Context(), s.cmds.getDocument, bag, sess)
	if !result.Success {
		c.JSON(statusFor(result), result)
		return
	}

	doc, ok := result.Payload.(*domain.ClinicalDocument)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unexpected payload"})
		return
	}

	var note *service.SOAPNote
	switch c.Query("format") {
	case "", "json":
		note = s.renderer.Render(doc)
		c.JSON(http.StatusOK, note)
	case "text":
		note = s.renderer.Render(doc)
		c.String(http.StatusOK, note.Text)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be json or text"})
	}
}

func (s *Server) handleUndo(c *gin.Context) {
	sess := middleware.SessionFrom(c)
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	result := s.invoker.UndoLast(c.Request.Context(), sess)
	c.JSON(statusFor(result), result)
}

// dispatch translates the request into a parameter bag, runs the command
// through the invoker and writes the uniform result envelope. Path
// parameters are set last so a conflicting body field cannot override
// them.
func (s *Server) dispatch(c *gin.Context, cmd command.Command, pathParams map[string]string, successStatus int) {
	sess := middleware.SessionFrom(c)
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	bag, err := bagFromRequest(c, pathParams)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
		return
	}

	result := s.invoker.Dispatch(c.Request.Context(), cmd, bag, sess)
	status := successStatus
	if !result.Success {
		status = statusFor(result)
	}
	c.JSON(status, result)
}

func bagFromRequest(c *gin.Context, pathParams map[string]string) (*domain.ParameterBag, error) {
	bag := domain.NewParameterBag()

	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		var body map[string]any
		dec := json.NewDecoder(c.Request.Body)
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			return nil, err
		}
		for k, v := range body {
			if n, ok := v.(json.Number); ok {
				if f, err := n.Float64(); err == nil {
					bag.Set(k, f)
					continue
				}
			}
			bag.Set(k, v)
		}
	}

	for k, v := range pathParams {
		bag.Set(k, v)
	}
	return bag, nil
}

// statusFor maps a failed result onto an HTTP status using the command
// error taxonomy carried in the cause.
func statusFor(result *domain.OperationResult) int {
	if result.Success {
		return http.StatusOK
	}

	var cmdErr *domain.CommandError
	if errors.As(result.Cause, &cmdErr) {
		switch cmdErr.Code {
		case domain.ErrCodeNotFound:
			return http.StatusNotFound
		case domain.ErrCodePermissionDenied:
			return http.StatusForbidden
		case domain.ErrCodeUnexpected:
			return http.StatusInternalServerError
		default:
			return http.StatusUnprocessableEntity
		}
	}
	if errors.Is(result.Cause, domain.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusUnprocessableEntity
}
