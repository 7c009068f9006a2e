// Package application implements the application status machine: every staff
// action is a guarded, conditional status update paired with its
// notification side effect.
package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dharsanguruparan/PartnerGate/internal/common"
	"github.com/dharsanguruparan/PartnerGate/internal/email"
	"github.com/dharsanguruparan/PartnerGate/internal/logging"
	"github.com/dharsanguruparan/PartnerGate/internal/model"
	"github.com/dharsanguruparan/PartnerGate/internal/processing"
	"github.com/dharsanguruparan/PartnerGate/internal/repository"
	"github.com/dharsanguruparan/PartnerGate/internal/s3storage"
	"github.com/dharsanguruparan/PartnerGate/internal/upload"
)

// TermsIssuer is the part of the terms flow the status machine triggers.
type TermsIssuer interface {
	CheckTemplate(templateID *string) error
	Issue(ctx context.Context, records repository.TermsRecords, applicationID string, templateID *string) (*model.TermsRecord, error)
	NotifyLink(app *model.Application, rec *model.TermsRecord, forceCanonical bool)
}

// Deps are the collaborators of the Service. Mail and Side are optional.
// With Objects set every submission needs a stored CV upload; without it a
// given CV ref is only checked for its kind.
type Deps struct {
	Store           repository.Store
	Terms           TermsIssuer
	Objects         s3storage.ObjectStore
	Mail            email.Dispatcher
	Side            processing.Runner
	AdminRecipients []string
	Logger          logging.Logger
	Now             func() time.Time
}

// Service is the ApplicationStatusMachine.
type Service struct {
	store    repository.Store
	terms    TermsIssuer
	objects  s3storage.ObjectStore
	mail     email.Dispatcher
	side     processing.Runner
	admins   []string
	logger   logging.Logger
	now      func() time.Time
	validate *validator.Validate
}

func NewService(deps Deps) *Service {
	s := &Service{
		store:    deps.Store,
		terms:    deps.Terms,
		objects:  deps.Objects,
		mail:     deps.Mail,
		side:     deps.Side,
		admins:   deps.AdminRecipients,
		logger:   deps.Logger,
		now:      deps.Now,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	if s.logger == nil {
		s.logger = logging.Nop{}
	}
	s.logger = s.logger.With("component", "application")
	if s.side == nil {
		s.side = processing.Inline{Logger: s.logger}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// MeetingInput is what staff enter when scheduling or editing a meeting.
type MeetingInput struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Time string `json:"time" validate:"required,datetime=15:04"`
	Link string `json:"link" validate:"required,url"`
}

// Submit stores a new pending application. A duplicate email, compared
// case-insensitively, yields common.ErrConflict.
func (s *Service) Submit(ctx context.Context, sub model.Submission) (*model.Application, error) {
	sub.Email = model.NormalizeEmail(sub.Email)
	if err := s.validate.Var(sub.Email, "required,email"); err != nil {
		return nil, fmt.Errorf("%w: email: %v", common.ErrValidation, err)
	}
	if sub.CVRef != "" || s.objects != nil {
		if err := upload.Verify(ctx, s.objects, model.UploadCV, sub.CVRef); err != nil {
			return nil, err
		}
	}
	now := s.now().UTC()
	app := &model.Application{
		ID:         uuid.NewString(),
		Email:      sub.Email,
		Status:     model.StatusPending,
		Submission: sub,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Applications().Create(ctx, app); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "application submitted", "application_id", app.ID)

	name := app.FullName()
	s.notify(email.KindApplicationConfirmation, app.Email, email.Data{"Name": name})
	if s.mail != nil && len(s.admins) > 0 {
		data := email.Data{"Name": name, "Email": app.Email, "ApplicationID": app.ID}
		admins := append([]string(nil), s.admins...)
		s.side.Submit(processing.Job{Name: "email:admin_new_application", Run: func(ctx context.Context) error {
			if sent := email.FanOut(ctx, s.mail, email.KindAdminNewApplication, admins, data); sent < len(admins) {
				return fmt.Errorf("admin notification reached %d of %d recipients", sent, len(admins))
			}
			return nil
		}})
	}
	return app, nil
}

// EmailTaken backs the wizard's duplicate-email check.
func (s *Service) EmailTaken(ctx context.Context, email string) (bool, error) {
	return s.store.Applications().EmailExists(ctx, email)
}

func (s *Service) Get(ctx context.Context, id string) (*model.Application, error) {
	return s.store.Applications().Get(ctx, id)
}

func (s *Service) List(ctx context.Context, status *model.ApplicationStatus) ([]model.Application, error) {
	return s.store.Applications().List(ctx, status)
}

// ScheduleMeeting moves a pending application to approved_for_meeting.
func (s *Service) ScheduleMeeting(ctx context.Context, id, reviewer string, in MeetingInput) (*model.Application, error) {
	meeting, err := s.meeting(in, reviewer)
	if err != nil {
		return nil, err
	}
	app, err := s.store.Applications().Transition(ctx, id,
		[]model.ApplicationStatus{model.StatusPending}, model.StatusApprovedForMeeting,
		repository.ApplicationUpdate{Meeting: meeting}, meeting.ScheduledAt)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "meeting scheduled", "application_id", id, "reviewer", reviewer)
	s.notify(email.KindMeetingScheduled, app.Email, meetingData(app))
	return app, nil
}

// EditMeeting replaces the meeting of an application awaiting it.
func (s *Service) EditMeeting(ctx context.Context, id, reviewer string, in MeetingInput) (*model.Application, error) {
	meeting, err := s.meeting(in, reviewer)
	if err != nil {
		return nil, err
	}
	app, err := s.store.Applications().Transition(ctx, id,
		[]model.ApplicationStatus{model.StatusApprovedForMeeting}, model.StatusApprovedForMeeting,
		repository.ApplicationUpdate{Meeting: meeting}, meeting.ScheduledAt)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "meeting updated", "application_id", id, "reviewer", reviewer)
	s.notify(email.KindMeetingUpdated, app.Email, meetingData(app))
	return app, nil
}

// ApproveAfterMeeting moves the application to approved_for_contract and
// issues its terms link. Calling it again on an application already in
// approved_for_contract is a no-op: no new link, no email.
func (s *Service) ApproveAfterMeeting(ctx context.Context, id, reviewer string, templateID *string) (*model.Application, error) {
	if err := s.terms.CheckTemplate(templateID); err != nil {
		return nil, err
	}
	var (
		app *model.Application
		rec *model.TermsRecord
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, apps repository.Applications, records repository.TermsRecords) error {
		current, err := apps.Get(ctx, id)
		if err != nil {
			return err
		}
		switch current.Status {
		case model.StatusApprovedForContract:
			app = current
			return nil
		case model.StatusApprovedForMeeting:
		default:
			return fmt.Errorf("approve %s application: %w", current.Status, common.ErrInvalidTransition)
		}
		if current.Meeting == nil {
			return common.ErrMeetingRequired
		}
		app, err = apps.Transition(ctx, id,
			[]model.ApplicationStatus{model.StatusApprovedForMeeting}, model.StatusApprovedForContract,
			repository.ApplicationUpdate{}, s.now().UTC())
		if err != nil {
			return err
		}
		rec, err = s.terms.Issue(ctx, records, id, templateID)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidTransition) {
			// lost a race against a concurrent approval
			if current, getErr := s.store.Applications().Get(ctx, id); getErr == nil && current.Status == model.StatusApprovedForContract {
				return current, nil
			}
		}
		return nil, err
	}
	if rec == nil {
		s.logger.Info(ctx, "approval repeated, nothing to do", "application_id", id)
		return app, nil
	}
	s.logger.Info(ctx, "approved for contract", "application_id", id, "reviewer", reviewer)
	s.terms.NotifyLink(app, rec, false)
	return app, nil
}

// ApproveLegacy is the older approval that skips the meeting stage.
func (s *Service) ApproveLegacy(ctx context.Context, id, reviewer string) (*model.Application, error) {
	var (
		app *model.Application
		rec *model.TermsRecord
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, apps repository.Applications, records repository.TermsRecords) error {
		var err error
		app, err = apps.Transition(ctx, id,
			[]model.ApplicationStatus{model.StatusPending}, model.StatusApproved,
			repository.ApplicationUpdate{}, s.now().UTC())
		if err != nil {
			return err
		}
		rec, err = s.terms.Issue(ctx, records, id, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "approved without meeting", "application_id", id, "reviewer", reviewer)
	s.terms.NotifyLink(app, rec, false)
	return app, nil
}

// ResendTerms emails the current terms link again using the canonical base
// URL. An expired link is replaced by a new one.
func (s *Service) ResendTerms(ctx context.Context, id, reviewer string) (*model.TermsRecord, error) {
	var (
		app *model.Application
		rec *model.TermsRecord
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, apps repository.Applications, records repository.TermsRecords) error {
		var err error
		app, err = apps.Get(ctx, id)
		if err != nil {
			return err
		}
		if !app.Status.AcceptsTerms() {
			return fmt.Errorf("resend terms for %s application: %w", app.Status, common.ErrInvalidTransition)
		}
		rec, err = records.LatestForApplication(ctx, id)
		switch {
		case errors.Is(err, common.ErrNotFound):
		case err != nil:
			return err
		case rec.Accepted():
			return common.ErrTokenAccepted
		case !rec.Expired(s.now()):
			return nil
		}
		rec, err = s.terms.Issue(ctx, records, id, templateOf(rec))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "terms link resent", "application_id", id, "record_id", rec.ID, "reviewer", reviewer)
	s.terms.NotifyLink(app, rec, true)
	return rec, nil
}

// Reject closes an application that has not reached the contract stage.
func (s *Service) Reject(ctx context.Context, id, reviewer, reason string) (*model.Application, error) {
	reason = strings.TrimSpace(reason)
	app, err := s.store.Applications().Transition(ctx, id,
		[]model.ApplicationStatus{model.StatusPending, model.StatusApprovedForMeeting}, model.StatusRejected,
		repository.ApplicationUpdate{RejectionReason: &reason}, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "application rejected", "application_id", id, "reviewer", reviewer)
	s.notify(email.KindApplicationRejected, app.Email, email.Data{"Name": app.FullName(), "Reason": reason})
	return app, nil
}

func (s *Service) meeting(in MeetingInput, reviewer string) (*model.Meeting, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: meeting: %v", common.ErrValidation, err)
	}
	return &model.Meeting{
		Date:        in.Date,
		Time:        in.Time,
		Link:        in.Link,
		ScheduledBy: reviewer,
		ScheduledAt: s.now().UTC(),
	}, nil
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

func meetingData(app *model.Application) email.Data {
	return email.Data{
		"Name": app.FullName(),
		"Date": app.Meeting.Date,
		"Time": app.Meeting.Time,
		"Link": app.Meeting.Link,
	}
}

func templateOf(rec *model.TermsRecord) *string {
	if rec == nil {
		return nil
	}
	return rec.TemplateID
}
