// Package api exposes the candidate wizards and the staff review actions over
// HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dharsanguruparan/PartnerGate/internal/application"
	"github.com/dharsanguruparan/PartnerGate/internal/auth"
	"github.com/dharsanguruparan/PartnerGate/internal/form"
	"github.com/dharsanguruparan/PartnerGate/internal/logging"
	"github.com/dharsanguruparan/PartnerGate/internal/s3storage"
	"github.com/dharsanguruparan/PartnerGate/internal/terms"
	"github.com/dharsanguruparan/PartnerGate/internal/upload"
	"github.com/dharsanguruparan/PartnerGate/internal/verification"
)

// Config holds the HTTP settings.
type Config struct {
	Address       string
	SignedURLTTL  time.Duration
	MaxUploadSize int64
}

// Deps are the services behind the handlers.
type Deps struct {
	Applications    *application.Service
	Terms           *terms.Service
	Verification    *verification.Service
	ApplicationForm *form.Controller
	TermsForm       *form.Controller
	Uploads         *upload.Service
	Objects         s3storage.ObjectStore
	Auth            *auth.Issuer
	Logger          logging.Logger
}

// Server exposes HTTP endpoints for the onboarding lifecycle.
type Server struct {
	cfg     Config
	deps    Deps
	logger  logging.Logger
	handler http.Handler
	server  *http.Server
	once    sync.Once
}

// New constructs a Server.
func New(cfg Config, deps Deps) *Server {
	s := &Server{cfg: cfg, deps: deps, logger: deps.Logger}
	if s.logger == nil {
		s.logger = logging.Nop{}
	}
	s.logger = s.logger.With("component", "api")
	if s.cfg.SignedURLTTL <= 0 {
		s.cfg.SignedURLTTL = 15 * time.Minute
	}
	if s.cfg.MaxUploadSize <= 0 {
		s.cfg.MaxUploadSize = 10 << 20
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /applications/email-taken", s.handleEmailTaken)
	mux.HandleFunc("POST /applications/validate", s.handleValidateApplicationStep)
	mux.HandleFunc("POST /applications", s.handleSubmitApplication)

	mux.HandleFunc("GET /drafts/{key}", s.handleLoadDraft)
	mux.HandleFunc("PUT /drafts/{key}", s.handleSaveDraft)
	mux.HandleFunc("DELETE /drafts/{key}", s.handleDeleteDraft)

	mux.HandleFunc("GET /terms", s.handleTermsLanding)
	mux.HandleFunc("POST /terms/validate", s.handleValidateTermsStep)
	mux.HandleFunc("POST /terms/preview", s.handleTermsPreview)
	mux.HandleFunc("POST /terms/accept", s.handleTermsAccept)

	mux.HandleFunc("POST /uploads", s.handleUpload)

	staff := http.NewServeMux()
	staff.HandleFunc("GET /admin/applications", s.handleListApplications)
	staff.HandleFunc("GET /admin/applications/{id}", s.handleGetApplication)
	staff.HandleFunc("POST /admin/applications/{id}/meeting", s.handleScheduleMeeting)
	staff.HandleFunc("PUT /admin/applications/{id}/meeting", s.handleEditMeeting)
	staff.HandleFunc("POST /admin/applications/{id}/approve", s.handleApproveAfterMeeting)
	staff.HandleFunc("POST /admin/applications/{id}/approve-legacy", s.handleApproveLegacy)
	staff.HandleFunc("POST /admin/applications/{id}/reject", s.handleRejectApplication)
	staff.HandleFunc("POST /admin/applications/{id}/resend-terms", s.handleResendTerms)
	staff.HandleFunc("GET /admin/terms", s.handleListTerms)
	staff.HandleFunc("GET /admin/terms/{id}", s.handleGetTerms)
	staff.HandleFunc("POST /admin/terms/{id}/approve", s.handleApproveContract)
	staff.HandleFunc("POST /admin/terms/{id}/reject", s.handleRejectContract)
	staff.HandleFunc("GET /admin/terms/{id}/contract", s.handleContractURL)
	staff.HandleFunc("GET /admin/files", s.handleFileURL)
	mux.Handle("/admin/", s.authMiddleware(staff))

	return corsMiddleware(s.loggingMiddleware(mux))
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.cfg.Address,
			Handler:           s.handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.logger.Info(ctx, "api listening", "address", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
