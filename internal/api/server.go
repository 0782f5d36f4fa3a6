package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/clinical-encounter-server/internal/command"
	"github.com/clinical-encounter-server/internal/domain"
	"github.com/clinical-encounter-server/internal/middleware"
	"github.com/clinical-encounter-server/internal/service"
	"github.com/clinical-encounter-server/internal/session"
)

// Dependencies carries the collaborators the HTTP server needs.
type Dependencies struct {
	Config    *domain.Config
	Logger    *logrus.Logger
	Store     domain.DocumentStore
	Sessions  session.Store
	Directory domain.ProfileDirectory
	Audit     domain.AuditTrail
}

// Server is the HTTP front end. Every document operation is expressed as
// a command and dispatched through the invoker; handlers only translate
// between HTTP and parameter bags.
type Server struct {
	config   *domain.Config
	log      *logrus.Logger
	router   *gin.Engine
	server   *http.Server
	sessions session.Store
	dir      domain.ProfileDirectory
	invoker  *command.Invoker
	renderer *service.NoteRenderer
	cmds     commandSet
}

// commandSet holds one instance of each command; commands are stateless
// between dispatches so sharing them is safe.
type commandSet struct {
	createDocument   *command.CreateClinicalDocumentCommand
	updateDocument   *command.UpdateClinicalDocumentCommand
	deleteDocument   *command.DeleteClinicalDocumentCommand
	getDocument      *command.GetClinicalDocumentCommand
	listByPatient    *command.ListPatientDocumentsCommand
	listByPhysician  *command.ListPhysicianDocumentsCommand
	listIncomplete   *command.ListIncompleteDocumentsCommand
	addObservation   *command.AddObservationCommand
	updateObs        *command.UpdateObservationCommand
	addAssessment    *command.AddAssessmentCommand
	updateAssessment *command.UpdateAssessmentCommand
	addDiagnosis     *command.AddDiagnosisCommand
	updateDiagnosis  *command.UpdateDiagnosisCommand
	setPrimary       *command.SetPrimaryDiagnosisCommand
	addPlan          *command.AddPlanCommand
	updatePlan       *command.UpdatePlanCommand
	completePlan     *command.MarkPlanCompletedCommand
	addPrescription  *command.AddPrescriptionCommand
	updateRx         *command.UpdatePrescriptionCommand
}

// NewServer creates the HTTP server and wires all routes.
func NewServer(deps Dependencies) *Server {
	cfg := deps.Config

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware())
	if cfg.Server.RateLimit > 0 {
		router.Use(middleware.RateLimit(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst))
	}
	if cfg.Server.RequestTimeout > 0 {
		router.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))
	}

	store, logger := deps.Store, deps.Logger
	s := &Server{
		config:   cfg,
		log:      logger,
		router:   router,
		sessions: deps.Sessions,
		dir:      deps.Directory,
		invoker:  command.NewInvoker(logger),
		renderer: service.NewNoteRenderer(logger),
		cmds: commandSet{
			createDocument:   command.NewCreateClinicalDocumentCommand(store, logger),
			updateDocument:   command.NewUpdateClinicalDocumentCommand(store, deps.Audit, logger),
			deleteDocument:   command.NewDeleteClinicalDocumentCommand(store, deps.Audit, logger),
			getDocument:      command.NewGetClinicalDocumentCommand(store, logger),
			listByPatient:    command.NewListPatientDocumentsCommand(store, logger),
			listByPhysician:  command.NewListPhysicianDocumentsCommand(store, logger),
			listIncomplete:   command.NewListIncompleteDocumentsCommand(store, logger),
			addObservation:   command.NewAddObservationCommand(store, logger),
			updateObs:        command.NewUpdateObservationCommand(store, logger),
			addAssessment:    command.NewAddAssessmentCommand(store, logger),
			updateAssessment: command.NewUpdateAssessmentCommand(store, logger),
			addDiagnosis:     command.NewAddDiagnosisCommand(store, logger),
			updateDiagnosis:  command.NewUpdateDiagnosisCommand(store, logger),
			setPrimary:       command.NewSetPrimaryDiagnosisCommand(store, logger),
			addPlan:          command.NewAddPlanCommand(store, logger),
			updatePlan:       command.NewUpdatePlanCommand(store, logger),
			completePlan:     command.NewMarkPlanCompletedCommand(store, logger),
			addPrescription:  command.NewAddPrescriptionCommand(store, logger),
			updateRx:         command.NewUpdatePrescriptionCommand(store, logger),
		},
	}

	s.setupRoutes()
	return s
}

// Start starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("starting server: %w", err)
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// Handler exposes the router, used by httptest in tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")

	v1.POST("/sessions", s.handleCreateSession)

	authed := v1.Group("")
	authed.Use(middleware.Authenticate(s.sessions, s.log))
	{
		authed.DELETE("/sessions", s.handleRevokeSession)

		authed.POST("/documents", s.handleCreateDocument)
		authed.GET("/documents", s.handleListIncomplete)
		authed.GET("/documents/:id", s.handleGetDocument)
		authed.PATCH("/documents/:id", s.handleUpdateDocument)
		authed.DELETE("/documents/:id", s.handleDeleteDocument)
		authed.GET("/documents/:id/note", s.handleRenderNote)

		authed.POST("/documents/:id/observations", s.entryAdd(func() command.Command { return s.cmds.addObservation }))
		authed.PATCH("/documents/:id/observations/:entryID", s.entryUpdate(func() command.Command { return s.cmds.updateObs }))
		authed.POST("/documents/:id/assessments", s.entryAdd(func() command.Command { return s.cmds.addAssessment }))
		authed.PATCH("/documents/:id/assessments/:entryID", s.entryUpdate(func() command.Command { return s.cmds.updateAssessment }))
		authed.POST("/documents/:id/diagnoses", s.entryAdd(func() command.Command { return s.cmds.addDiagnosis }))
		authed.PATCH("/documents/:id/diagnoses/:entryID", s.entryUpdate(func() command.Command { return s.cmds.updateDiagnosis }))
		authed.POST("/documents/:id/diagnoses/:entryID/primary", s.entryUpdate(func() command.Command { return s.cmds.setPrimary }))
		authed.POST("/documents/:id/plans", s.entryAdd(func() command.Command { return s.cmds.addPlan }))
		authed.PATCH("/documents/:id/plans/:entryID", s.entryUpdate(func() command.Command { return s.cmds.updatePlan }))
		authed.POST("/documents/:id/plans/:entryID/complete", s.entryUpdate(func() command.Command { return s.cmds.completePlan }))
		authed.POST("/documents/:id/prescriptions", s.entryAdd(func() command.Command { return s.cmds.addPrescription }))
		authed.PATCH("/documents/:id/prescriptions/:entryID", s.entryUpdate(func() command.Command { return s.cmds.updateRx }))

		authed.GET("/patients/:id/documents", s.handleListByPatient)
		authed.GET("/physicians/:id/documents", s.handleListByPhysician)

		authed.POST("/undo", s.handleUndo)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"version":   "1.0.0",
	})
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
