// Package repository defines the persistence contracts of the lifecycle
// services and implements them on Postgres.
package repository

import (
	"context"
	"time"

	"github.com/dharsanguruparan/PartnerGate/internal/model"
)

// ApplicationUpdate carries the optional fields written together with a
// status transition. Nil fields are left untouched.
type ApplicationUpdate struct {
	Meeting         *model.Meeting
	RejectionReason *string
}

// Applications persists partner applications.
type Applications interface {
	// Create inserts app. A case-insensitive duplicate email yields
	// common.ErrConflict.
	Create(ctx context.Context, app *model.Application) error
	Get(ctx context.Context, id string) (*model.Application, error)
	GetByEmail(ctx context.Context, email string) (*model.Application, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	// List returns applications newest first, optionally filtered by status.
	List(ctx context.Context, status *model.ApplicationStatus) ([]model.Application, error)
	// Transition moves the application to `to` only if its current status is
	// one of from. It returns common.ErrInvalidTransition when the row exists
	// but is in another status.
	Transition(ctx context.Context, id string, from []model.ApplicationStatus, to model.ApplicationStatus, upd ApplicationUpdate, at time.Time) (*model.Application, error)
}

// Resolution is a staff verdict on an accepted terms record.
type Resolution struct {
	Status     model.VerificationStatus
	ReviewedBy string
	Reason     string
	At         time.Time
}

// TermsRecords persists terms links and acceptances.
type TermsRecords interface {
	// Create inserts rec and expires every older unaccepted record of the same
	// application, so only the newest link stays usable.
	Create(ctx context.Context, rec *model.TermsRecord) error
	Get(ctx context.Context, id string) (*model.TermsRecord, error)
	GetByToken(ctx context.Context, token string) (*model.TermsRecord, error)
	LatestForApplication(ctx context.Context, applicationID string) (*model.TermsRecord, error)
	// Accept writes the acceptance in a single conditional update: it
	// succeeds at most once per record and never after expiry. Failures are
	// common.ErrTokenAccepted, common.ErrTokenExpired or common.ErrNotFound.
	Accept(ctx context.Context, id string, acc model.Acceptance, at time.Time) (*model.TermsRecord, error)
	// Resolve records a verdict on an accepted, still pending record.
	// Anything else yields common.ErrAlreadyProcessed, or
	// common.ErrInvalidTransition when the record was never accepted.
	Resolve(ctx context.Context, id string, res Resolution) (*model.TermsRecord, error)
	SetContractPDF(ctx context.Context, id, ref string) error
	// ListByVerification returns accepted records in the given verification
	// state, newest acceptance first. A null status counts as pending.
	ListByVerification(ctx context.Context, status model.VerificationStatus) ([]model.TermsRecord, error)
}

// Store bundles both repositories and runs multi-step writes atomically.
type Store interface {
	Applications() Applications
	Terms() TermsRecords
	Atomic(ctx context.Context, fn func(ctx context.Context, apps Applications, terms TermsRecords) error) error
}
