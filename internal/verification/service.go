// Package verification resolves staff review of accepted terms records and
// re-issues a fresh terms link when a rejection asks for one.
package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dharsanguruparan/PartnerGate/internal/application"
	"github.com/dharsanguruparan/PartnerGate/internal/common"
	"github.com/dharsanguruparan/PartnerGate/internal/email"
	"github.com/dharsanguruparan/PartnerGate/internal/logging"
	"github.com/dharsanguruparan/PartnerGate/internal/model"
	"github.com/dharsanguruparan/PartnerGate/internal/processing"
	"github.com/dharsanguruparan/PartnerGate/internal/repository"
)

// contractStage lists the application statuses an accepted record can be
// resolved from. The legacy statuses cover records accepted before
// contract_accepted existed.
var contractStage = []model.ApplicationStatus{
	model.StatusContractAccepted,
	model.StatusApprovedForContract,
	model.StatusApproved,
}

// Reissue asks for a new terms link after a rejection. A nil TemplateID is
// the explicit "no template" choice.
type Reissue struct {
	TemplateID *string `json:"templateId"`
}

// Outcome is the result of a rejection.
type Outcome struct {
	Record   *model.TermsRecord `json:"record"`
	Reissued *model.TermsRecord `json:"reissued,omitempty"`
}

// Linker issues and sends terms links.
type Linker interface {
	application.TermsIssuer
	Link(rec *model.TermsRecord, forceCanonical bool) string
}

// Deps are the collaborators of the Service.
type Deps struct {
	Store  repository.Store
	Terms  Linker
	Mail   email.Dispatcher
	Side   processing.Runner
	Logger logging.Logger
	Now    func() time.Time
}

// Service is the ContractVerificationMachine.
type Service struct {
	store  repository.Store
	terms  Linker
	mail   email.Dispatcher
	side   processing.Runner
	logger logging.Logger
	now    func() time.Time
}

func NewService(deps Deps) *Service {
	s := &Service{
		store:  deps.Store,
		terms:  deps.Terms,
		mail:   deps.Mail,
		side:   deps.Side,
		logger: deps.Logger,
		now:    deps.Now,
	}
	if s.logger == nil {
		s.logger = logging.Nop{}
	}
	s.logger = s.logger.With("component", "verification")
	if s.side == nil {
		s.side = processing.Inline{Logger: s.logger}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// List returns accepted records in the given verification state.
func (s *Service) List(ctx context.Context, status model.VerificationStatus) ([]model.TermsRecord, error) {
	return s.store.Terms().ListByVerification(ctx, status)
}

func (s *Service) Get(ctx context.Context, id string) (*model.TermsRecord, error) {
	return s.store.Terms().Get(ctx, id)
}

// Approve marks the record approved and activates the partner. Approving an
// already approved record succeeds without sending another email.
func (s *Service) Approve(ctx context.Context, recordID, reviewer string) (*model.TermsRecord, error) {
	var (
		rec *model.TermsRecord
		app *model.Application
	)
	now := s.now().UTC()
	err := s.store.Atomic(ctx, func(ctx context.Context, apps repository.Applications, records repository.TermsRecords) error {
		var err error
		rec, err = records.Resolve(ctx, recordID, repository.Resolution{
			Status: model.VerificationApproved, ReviewedBy: reviewer, At: now,
		})
		if err != nil {
			return err
		}
		app, err = apps.Transition(ctx, rec.ApplicationID, contractStage, model.StatusActive,
			repository.ApplicationUpdate{}, now)
		return err
	})
	if errors.Is(err, common.ErrAlreadyProcessed) {
		current, getErr := s.store.Terms().Get(ctx, recordID)
		if getErr == nil && current.VerificationStatus == model.VerificationApproved {
			s.logger.Info(ctx, "record already approved", "record_id", recordID)
			return current, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "contract approved", "record_id", recordID, "application_id", app.ID, "reviewer", reviewer)
	s.notify(email.KindContractApproved, recipient(app, rec), email.Data{"Name": app.FullName()})
	return rec, nil
}

// Reject marks the record rejected. With a non-nil reissue the application
// returns to approved_for_contract and a new record with a fresh expiry is
// issued and emailed; with nil the rejection completes without a new link.
func (s *Service) Reject(ctx context.Context, recordID, reviewer, reason string, reissue *Reissue) (*Outcome, error) {
	reason = strings.TrimSpace(reason)
	if reissue != nil {
		if err := s.terms.CheckTemplate(reissue.TemplateID); err != nil {
			return nil, err
		}
	}
	var (
		out = &Outcome{}
		app *model.Application
	)
	now := s.now().UTC()
	err := s.store.Atomic(ctx, func(ctx context.Context, apps repository.Applications, records repository.TermsRecords) error {
		var err error
		out.Record, err = records.Resolve(ctx, recordID, repository.Resolution{
			Status: model.VerificationRejected, ReviewedBy: reviewer, Reason: reason, At: now,
		})
		if err != nil {
			return err
		}
		if reissue == nil {
			app, err = apps.Get(ctx, out.Record.ApplicationID)
			return err
		}
		app, err = apps.Transition(ctx, out.Record.ApplicationID, contractStage, model.StatusApprovedForContract,
			repository.ApplicationUpdate{}, now)
		if err != nil {
			return fmt.Errorf("reopen contract stage: %w", err)
		}
		out.Reissued, err = s.terms.Issue(ctx, records, app.ID, reissue.TemplateID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "contract rejected", "record_id", recordID, "application_id", app.ID,
		"reviewer", reviewer, "reissued", out.Reissued != nil)

	data := email.Data{"Name": app.FullName(), "Reason": reason}
	if out.Reissued != nil {
		data["Link"] = s.terms.Link(out.Reissued, false)
		s.terms.NotifyLink(app, out.Reissued, false)
	}
	s.notify(email.KindContractRejected, recipient(app, out.Record), data)
	return out, nil
}

func (s *Service) notify(kind email.Kind, to string, data email.Data) {
	if s.mail == nil {
		return
	}
	s.side.Submit(processing.Job{Name: "email:" + string(kind), Run: func(ctx context.Context) error {
		if !s.mail.Send(ctx, kind, to, data) {
			return fmt.Errorf("%s email not sent", kind)
		}
		return nil
	}})
}

func recipient(app *model.Application, rec *model.TermsRecord) string {
	if rec != nil && rec.Acceptance != nil && rec.Acceptance.Email != "" {
		return rec.Acceptance.Email
	}
	return app.Email
}
