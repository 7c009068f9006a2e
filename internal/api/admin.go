package api

import (
	"fmt"
	"net/http"

	"github.com/dharsanguruparan/PartnerGate/internal/application"
	"github.com/dharsanguruparan/PartnerGate/internal/common"
	"github.com/dharsanguruparan/PartnerGate/internal/model"
	"github.com/dharsanguruparan/PartnerGate/internal/s3storage"
	"github.com/dharsanguruparan/PartnerGate/internal/verification"
)

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	var filter *model.ApplicationStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, ok := model.ParseApplicationStatus(raw)
		if !ok {
			s.respondError(w, r, fmt.Errorf("%w: unknown status %q", errBadRequest, raw))
			return
		}
		filter = &st
	}
	apps, err := s.deps.Applications.List(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, apps)
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.deps.Applications.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, app)
}

func (s *Server) handleScheduleMeeting(w http.ResponseWriter, r *http.Request) {
	var in application.MeetingInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	app, err := s.deps.Applications.ScheduleMeeting(r.Context(), r.PathValue("id"), reviewer(r), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, app)
}

func (s *Server) handleEditMeeting(w http.ResponseWriter, r *http.Request) {
	var in application.MeetingInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	app, err := s.deps.Applications.EditMeeting(r.Context(), r.PathValue("id"), reviewer(r), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, app)
}

type approveRequest struct {
	TemplateID *string `json:"templateId"`
}

func (s *Server) handleApproveAfterMeeting(w http.ResponseWriter, r *http.Request) {
	var body approveRequest
	if err := decodeOptionalJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	app, err := s.deps.Applications.ApproveAfterMeeting(r.Context(), r.PathValue("id"), reviewer(r), body.TemplateID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, app)
}

func (s *Server) handleApproveLegacy(w http.ResponseWriter, r *http.Request) {
	app, err := s.deps.Applications.ApproveLegacy(r.Context(), r.PathValue("id"), reviewer(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, app)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleRejectApplication(w http.ResponseWriter, r *http.Request) {
	var body rejectRequest
	if err := decodeOptionalJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	app, err := s.deps.Applications.Reject(r.Context(), r.PathValue("id"), reviewer(r), body.Reason)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, app)
}

func (s *Server) handleResendTerms(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Applications.ResendTerms(r.Context(), r.PathValue("id"), reviewer(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListTerms(w http.ResponseWriter, r *http.Request) {
	status := model.VerificationStatus(r.URL.Query().Get("verification"))
	switch status {
	case model.VerificationNone:
		status = model.VerificationPending
	case model.VerificationPending, model.VerificationApproved, model.VerificationRejected:
	default:
		s.respondError(w, r, fmt.Errorf("%w: unknown verification status %q", errBadRequest, status))
		return
	}
	recs, err := s.deps.Verification.List(r.Context(), status)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetTerms(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Verification.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleApproveContract(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Verification.Approve(r.Context(), r.PathValue("id"), reviewer(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

type rejectContractRequest struct {
	Reason  string                `json:"reason"`
	Reissue *verification.Reissue `json:"reissue"`
}

func (s *Server) handleRejectContract(w http.ResponseWriter, r *http.Request) {
	var body rejectContractRequest
	if err := decodeOptionalJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	out, err := s.deps.Verification.Reject(r.Context(), r.PathValue("id"), reviewer(r), body.Reason, body.Reissue)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleContractURL(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Verification.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if rec.ContractPDFRef == "" {
		s.respondError(w, r, fmt.Errorf("contract pdf not generated yet: %w", common.ErrNotFound))
		return
	}
	s.presign(w, r, s3storage.Contracts, rec.ContractPDFRef)
}

func (s *Server) handleFileURL(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("ref")
	if ref == "" {
		s.respondError(w, r, fmt.Errorf("%w: ref required", errBadRequest))
		return
	}
	s.presign(w, r, s3storage.Uploads, ref)
}

func (s *Server) presign(w http.ResponseWriter, r *http.Request, b s3storage.Bucket, key string) {
	u, err := s.deps.Objects.Presign(r.Context(), b, key, s.cfg.SignedURLTTL)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": u})
}
