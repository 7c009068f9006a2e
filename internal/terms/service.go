// Package terms implements the token-gated terms acceptance flow: issuing
// single-use links, validating them and recording the acceptance exactly once.
package terms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/PartnerGate/internal/common"
	"github.com/dharsanguruparan/PartnerGate/internal/draft"
	"github.com/dharsanguruparan/PartnerGate/internal/email"
	"github.com/dharsanguruparan/PartnerGate/internal/geo"
	"github.com/dharsanguruparan/PartnerGate/internal/logging"
	"github.com/dharsanguruparan/PartnerGate/internal/model"
	"github.com/dharsanguruparan/PartnerGate/internal/processing"
	"github.com/dharsanguruparan/PartnerGate/internal/queue"
	"github.com/dharsanguruparan/PartnerGate/internal/repository"
	"github.com/dharsanguruparan/PartnerGate/internal/s3storage"
	"github.com/dharsanguruparan/PartnerGate/internal/signing"
	"github.com/dharsanguruparan/PartnerGate/internal/upload"
)

// DraftKey is the draft key of the terms wizard for token.
func DraftKey(token string) string {
	return "terms:" + token
}

// ContractQueue schedules background contract PDF generation.
type ContractQueue interface {
	EnqueueContractPDF(ctx context.Context, payload queue.ContractPayload) error
}

// Config holds the flow settings.
type Config struct {
	Validity        time.Duration
	ContractVersion string
	Links           Links
}

// Deps are the collaborators of the Service. Mail, Side, Geo, Queue and
// Drafts are optional. Without Objects, artifact refs are only checked for
// their kind.
type Deps struct {
	Store    repository.Store
	Signer   *signing.Signer
	Mail     email.Dispatcher
	Side     processing.Runner
	Geo      geo.Locator
	Queue    ContractQueue
	Drafts   draft.Store
	Objects  s3storage.ObjectStore
	Renderer ContractRenderer
	Logger   logging.Logger
	Now      func() time.Time
}

// Service is the TermsAcceptanceFlow.
type Service struct {
	store    repository.Store
	signer   *signing.Signer
	mail     email.Dispatcher
	side     processing.Runner
	geo      geo.Locator
	queue    ContractQueue
	drafts   draft.Store
	objects  s3storage.ObjectStore
	renderer ContractRenderer
	logger   logging.Logger
	now      func() time.Time
	cfg      Config
}

func NewService(cfg Config, deps Deps) *Service {
	s := &Service{
		store:    deps.Store,
		signer:   deps.Signer,
		mail:     deps.Mail,
		side:     deps.Side,
		geo:      deps.Geo,
		queue:    deps.Queue,
		drafts:   deps.Drafts,
		objects:  deps.Objects,
		renderer: deps.Renderer,
		logger:   deps.Logger,
		now:      deps.Now,
		cfg:      cfg,
	}
	if s.logger == nil {
		s.logger = logging.Nop{}
	}
	s.logger = s.logger.With("component", "terms")
	if s.side == nil {
		s.side = processing.Inline{Logger: s.logger}
	}
	if s.renderer == nil {
		s.renderer = DefaultRenderer{Clauses: BuiltinTemplates()}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.cfg.Validity <= 0 {
		s.cfg.Validity = 30 * 24 * time.Hour
	}
	return s
}

// CheckTemplate rejects a contract template the renderer does not know. A
// nil id is the standard agreement.
func (s *Service) CheckTemplate(templateID *string) error {
	if templateID == nil || s.renderer.HasTemplate(*templateID) {
		return nil
	}
	return fmt.Errorf("%w: unknown contract template %q", common.ErrValidation, *templateID)
}

// Issue creates a fresh record for the application inside the caller's
// transaction. Older open links of the application stop working.
func (s *Service) Issue(ctx context.Context, records repository.TermsRecords, applicationID string, templateID *string) (*model.TermsRecord, error) {
	if err := s.CheckTemplate(templateID); err != nil {
		return nil, err
	}
	token, err := s.signer.Issue()
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	now := s.now().UTC()
	rec := &model.TermsRecord{
		ID:            uuid.NewString(),
		ApplicationID: applicationID,
		Token:         token,
		TemplateID:    cloneString(templateID),
		ExpiresAt:     now.Add(s.cfg.Validity),
		CreatedAt:     now,
	}
	if err := records.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create terms record: %w", err)
	}
	s.logger.Info(ctx, "terms link issued", "application_id", applicationID, "record_id", rec.ID)
	return rec, nil
}

// NotifyLink sends the terms-link email in the background.
func (s *Service) NotifyLink(app *model.Application, rec *model.TermsRecord, forceCanonical bool) {
	if s.mail == nil {
		return
	}
	data := email.Data{
		"Name":      app.FullName(),
		"Link":      s.cfg.Links.TermsURL(rec.Token, forceCanonical),
		"ExpiresAt": rec.ExpiresAt.Format("2006-01-02"),
	}
	to := app.Email
	s.side.Submit(processing.Job{Name: "email:terms_link", Run: func(ctx context.Context) error {
		if !s.mail.Send(ctx, email.KindTermsLink, to, data) {
			return errors.New("terms link email not sent")
		}
		return nil
	}})
}

// Link returns the candidate URL for rec.
func (s *Service) Link(rec *model.TermsRecord, forceCanonical bool) string {
	return s.cfg.Links.TermsURL(rec.Token, forceCanonical)
}

// ValidateToken returns the record behind token if it can still be accepted.
// An expired link is reported as expired even when it was also accepted.
func (s *Service) ValidateToken(ctx context.Context, token string) (*model.TermsRecord, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, common.ErrTokenMissing
	}
	if !s.signer.Validate(token) {
		return nil, common.ErrTokenInvalid
	}
	rec, err := s.store.Terms().GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrTokenInvalid
		}
		return nil, err
	}
	if rec.Expired(s.now()) {
		return nil, common.ErrTokenExpired
	}
	if rec.Accepted() {
		return nil, common.ErrTokenAccepted
	}
	return rec, nil
}

// AcceptRequest is what the candidate submits at the end of the wizard.
// Hash, version and geolocation are filled in by Accept.
type AcceptRequest struct {
	Acceptance         model.Acceptance
	SignatureConfirmed bool
}

// Preview renders the contract text the candidate is about to sign.
func (s *Service) Preview(ctx context.Context, token string, acc model.Acceptance) (string, error) {
	rec, err := s.ValidateToken(ctx, token)
	if err != nil {
		return "", err
	}
	app, err := s.store.Applications().Get(ctx, rec.ApplicationID)
	if err != nil {
		return "", err
	}
	acc.ContractVersion = s.cfg.ContractVersion
	return s.renderer.Render(app, rec, &acc)
}

// Accept records the acceptance behind token. The write is a conditional
// update, so of two concurrent calls exactly one succeeds and the other sees
// common.ErrTokenAccepted.
func (s *Service) Accept(ctx context.Context, token string, req AcceptRequest) (*model.TermsRecord, error) {
	rec, err := s.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.checkArtifacts(ctx, req); err != nil {
		return nil, err
	}
	app, err := s.store.Applications().Get(ctx, rec.ApplicationID)
	if err != nil {
		return nil, err
	}
	if !app.Status.AcceptsTerms() {
		return nil, fmt.Errorf("application is %s: %w", app.Status, common.ErrInvalidTransition)
	}

	acc := req.Acceptance
	acc.ContractVersion = s.cfg.ContractVersion
	acc.ContractHash = ""
	acc.Geolocation = nil
	text, err := s.renderer.Render(app, rec, &acc)
	if err != nil {
		return nil, err
	}
	acc.ContractHash = Hash(text)
	acc.Geolocation = s.locate(ctx, acc.IPAddress)

	now := s.now().UTC()
	var accepted *model.TermsRecord
	err = s.store.Atomic(ctx, func(ctx context.Context, apps repository.Applications, records repository.TermsRecords) error {
		var err error
		accepted, err = records.Accept(ctx, rec.ID, acc, now)
		if err != nil {
			return err
		}
		app, err = apps.Transition(ctx, app.ID,
			[]model.ApplicationStatus{model.StatusApprovedForContract, model.StatusApproved},
			model.StatusContractAccepted, repository.ApplicationUpdate{}, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "terms accepted", "application_id", app.ID, "record_id", accepted.ID, "hash", acc.ContractHash)

	// The terms form clears the same key again through its debouncer, which
	// waits out a write still in progress.
	if s.drafts != nil {
		if err := s.drafts.Delete(ctx, DraftKey(token)); err != nil {
			s.logger.Warn(ctx, "clear terms draft failed", "record_id", accepted.ID, "error", err)
		}
	}
	s.afterAccept(app, accepted)
	return accepted, nil
}

func (s *Service) afterAccept(app *model.Application, rec *model.TermsRecord) {
	if s.mail != nil {
		to := app.Email
		if rec.Acceptance != nil && rec.Acceptance.Email != "" {
			to = rec.Acceptance.Email
		}
		data := email.Data{"Name": app.FullName(), "ContractVersion": rec.Acceptance.ContractVersion}
		s.side.Submit(processing.Job{Name: "email:terms_accepted", Run: func(ctx context.Context) error {
			if !s.mail.Send(ctx, email.KindTermsAccepted, to, data) {
				return errors.New("acceptance confirmation not sent")
			}
			return nil
		}})
	}
	if s.queue != nil {
		payload := queue.ContractPayload{ApplicationID: app.ID, AcceptanceID: rec.ID}
		s.side.Submit(processing.Job{Name: "queue:contract_pdf", Run: func(ctx context.Context) error {
			return s.queue.EnqueueContractPDF(ctx, payload)
		}})
	}
}

func (s *Service) locate(ctx context.Context, ip string) *model.Geolocation {
	if s.geo == nil || ip == "" {
		return nil
	}
	loc, err := s.geo.Lookup(ctx, ip)
	if err != nil {
		s.logger.Warn(ctx, "geolocation unavailable", "error", err)
		return nil
	}
	return loc
}

// checkArtifacts requires every identity artifact to be an upload of its own
// kind that is actually stored.
func (s *Service) checkArtifacts(ctx context.Context, req AcceptRequest) error {
	acc := req.Acceptance
	refs := []struct {
		kind model.UploadKind
		ref  string
	}{
		{model.UploadDocumentFront, acc.DocumentFrontRef},
		{model.UploadDocumentBack, acc.DocumentBackRef},
		{model.UploadSelfie, acc.SelfieRef},
		{model.UploadSignature, acc.SignatureRef},
	}
	var missing []string
	for _, r := range refs {
		if r.ref == "" {
			missing = append(missing, strings.ReplaceAll(string(r.kind), "_", " "))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", common.ErrValidation, strings.Join(missing, ", "))
	}
	if !req.SignatureConfirmed {
		return fmt.Errorf("%w: signature not confirmed", common.ErrValidation)
	}
	for _, r := range refs {
		if err := upload.Verify(ctx, s.objects, r.kind, r.ref); err != nil {
			return err
		}
	}
	return nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
