package api

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dharsanguruparan/PartnerGate/internal/common"
	"github.com/dharsanguruparan/PartnerGate/internal/form"
	"github.com/dharsanguruparan/PartnerGate/internal/model"
	"github.com/dharsanguruparan/PartnerGate/internal/terms"
	"github.com/dharsanguruparan/PartnerGate/internal/wizard"
)

// minClientKey is the shortest client part accepted in an application draft
// key, which is "application-wizard:<client>".
const minClientKey = 8

func parseStep(r *http.Request) (int, error) {
	step, err := strconv.Atoi(r.URL.Query().Get("step"))
	if err != nil {
		return 0, fmt.Errorf("%w: step must be a number", errBadRequest)
	}
	return step, nil
}

func (s *Server) handleEmailTaken(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		s.respondError(w, r, fmt.Errorf("%w: email required", errBadRequest))
		return
	}
	taken, err := s.deps.Applications.EmailTaken(r.Context(), email)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"taken": taken})
}

func (s *Server) handleValidateApplicationStep(w http.ResponseWriter, r *http.Request) {
	step, err := parseStep(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var body valuesJSON
	if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	next, res := s.deps.ApplicationForm.Advance(r.Context(), step, body.values())
	respondJSON(w, http.StatusOK, stepResponse{OK: res.OK, Step: next, Errors: res.Errors})
}

type submitApplicationRequest struct {
	DraftKey string     `json:"draftKey"`
	Values   valuesJSON `json:"values"`
}

func (s *Server) handleSubmitApplication(w http.ResponseWriter, r *http.Request) {
	var body submitApplicationRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	v := body.Values.values()
	key := body.DraftKey
	if !isApplicationDraftKey(key) {
		key = wizard.ApplicationDraftKey + ":" + model.NormalizeEmail(v.Get(wizard.FieldEmail))
	}

	var created *model.Application
	err := s.deps.ApplicationForm.Session(key).Submit(r.Context(), v, func(ctx context.Context) error {
		var err error
		created, err = s.deps.Applications.Submit(ctx, wizard.SubmissionFrom(v))
		return err
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func isApplicationDraftKey(key string) bool {
	client, ok := strings.CutPrefix(key, wizard.ApplicationDraftKey+":")
	return ok && len(client) >= minClientKey
}

// formFor resolves the wizard owning a draft key. Terms drafts are only
// reachable while their token is still usable.
func (s *Server) formFor(ctx context.Context, key string) (*form.Controller, error) {
	if token, ok := strings.CutPrefix(key, "terms:"); ok {
		if _, err := s.deps.Terms.ValidateToken(ctx, token); err != nil {
			return nil, err
		}
		return s.deps.TermsForm, nil
	}
	if isApplicationDraftKey(key) {
		return s.deps.ApplicationForm, nil
	}
	return nil, fmt.Errorf("draft %q: %w", key, common.ErrNotFound)
}

func (s *Server) handleLoadDraft(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	ctrl, err := s.formFor(r.Context(), key)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	v, err := ctrl.Session(key).ResumeDraft(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if v == nil {
		s.respondError(w, r, fmt.Errorf("draft: %w", common.ErrNotFound))
		return
	}
	respondJSON(w, http.StatusOK, draftResponse{Values: toValuesJSON(*v), Step: ctrl.InferResumeStep(*v)})
}

func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	ctrl, err := s.formFor(r.Context(), key)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var body valuesJSON
	if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	session := ctrl.Session(key)
	if err := session.PersistDraft(body.values()); err != nil {
		s.respondError(w, r, err)
		return
	}
	flushed := r.URL.Query().Get("flush") == "true"
	if flushed {
		if err := session.FlushDraft(r.Context()); err != nil {
			s.respondError(w, r, err)
			return
		}
	}
	respondJSON(w, http.StatusAccepted, map[string]bool{"flushed": flushed})
}

func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	ctrl, err := s.formFor(r.Context(), key)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := ctrl.Session(key).ClearDraft(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type termsLanding struct {
	RecordID      string    `json:"recordId"`
	ApplicationID string    `json:"applicationId"`
	ExpiresAt     time.Time `json:"expiresAt"`
	TemplateID    *string   `json:"templateId,omitempty"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
}

func (s *Server) handleTermsLanding(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Terms.ValidateToken(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	app, err := s.deps.Applications.Get(r.Context(), rec.ApplicationID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, termsLanding{
		RecordID:      rec.ID,
		ApplicationID: app.ID,
		ExpiresAt:     rec.ExpiresAt,
		TemplateID:    rec.TemplateID,
		Name:          app.FullName(),
		Email:         app.Email,
	})
}

type termsRequest struct {
	Token  string     `json:"token"`
	Values valuesJSON `json:"values"`
}

func (s *Server) handleValidateTermsStep(w http.ResponseWriter, r *http.Request) {
	step, err := parseStep(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var body termsRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	if _, err := s.deps.Terms.ValidateToken(r.Context(), body.Token); err != nil {
		s.respondError(w, r, err)
		return
	}
	next, res := s.deps.TermsForm.Advance(r.Context(), step, body.Values.values())
	respondJSON(w, http.StatusOK, stepResponse{OK: res.OK, Step: next, Errors: res.Errors})
}

func (s *Server) handleTermsPreview(w http.ResponseWriter, r *http.Request) {
	var body termsRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	req := wizard.AcceptanceFrom(body.Values.values())
	text, err := s.deps.Terms.Preview(r.Context(), body.Token, req.Acceptance)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"text": text, "hash": terms.Hash(text)})
}

func (s *Server) handleTermsAccept(w http.ResponseWriter, r *http.Request) {
	var body termsRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	// token errors are terminal and take precedence over field errors
	if _, err := s.deps.Terms.ValidateToken(r.Context(), body.Token); err != nil {
		s.respondError(w, r, err)
		return
	}
	v := body.Values.values()
	var accepted *model.TermsRecord
	err := s.deps.TermsForm.Session(terms.DraftKey(body.Token)).Submit(r.Context(), v, func(ctx context.Context) error {
		req := wizard.AcceptanceFrom(v)
		req.Acceptance.IPAddress = clientIP(r)
		req.Acceptance.UserAgent = r.UserAgent()
		var err error
		accepted, err = s.deps.Terms.Accept(ctx, body.Token, req)
		return err
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, accepted)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	kind := model.UploadKind(r.URL.Query().Get("kind"))
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize+1<<20)
	mr, err := r.MultipartReader()
	if err != nil {
		s.respondError(w, r, fmt.Errorf("%w: expecting multipart form", errBadRequest))
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("%w: file part missing", errBadRequest))
		return
	}
	defer part.Close()

	rec, err := s.deps.Uploads.Upload(r.Context(), kind, part.FileName(), part)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = fmt.Errorf("request too large: %w", common.ErrUpload)
		}
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}
