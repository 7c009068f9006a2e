// Package storage contains the in-memory persistence layer used by the api
// when no database is configured and by the service tests.
package storage

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/dharsanguruparan/PartnerGate/internal/common"
	"github.com/dharsanguruparan/PartnerGate/internal/model"
	"github.com/dharsanguruparan/PartnerGate/internal/repository"
)

// MemoryStore implements repository.Store on maps guarded by an RWMutex. Every
// conditional update checks and writes under the write lock, so the
// at-most-once guarantees match the SQL implementation.
type MemoryStore struct {
	mu     sync.RWMutex
	apps   map[string]*model.Application
	emails map[string]string
	terms  map[string]*model.TermsRecord
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		apps:   make(map[string]*model.Application),
		emails: make(map[string]string),
		terms:  make(map[string]*model.TermsRecord),
	}
}

func (m *MemoryStore) Applications() repository.Applications {
	return &memApps{m: m}
}

func (m *MemoryStore) Terms() repository.TermsRecords {
	return &memTerms{m: m}
}

// Atomic holds the write lock for the whole of fn and restores the previous
// maps when fn fails. Stored records are never mutated in place, so a
// shallow clone is a complete snapshot.
func (m *MemoryStore) Atomic(ctx context.Context, fn func(ctx context.Context, apps repository.Applications, terms repository.TermsRecords) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	apps, emails, terms := maps.Clone(m.apps), maps.Clone(m.emails), maps.Clone(m.terms)
	err := fn(ctx, &memApps{m: m, inTx: true}, &memTerms{m: m, inTx: true})
	if err != nil {
		m.apps, m.emails, m.terms = apps, emails, terms
	}
	return err
}

// guard locks the store unless the caller already holds it inside Atomic.
func (m *MemoryStore) guard(inTx, write bool) func() {
	switch {
	case inTx:
		return func() {}
	case write:
		m.mu.Lock()
		return m.mu.Unlock
	default:
		m.mu.RLock()
		return m.mu.RUnlock
	}
}

type memApps struct {
	m    *MemoryStore
	inTx bool
}

func (a *memApps) Create(_ context.Context, app *model.Application) error {
	defer a.m.guard(a.inTx, true)()
	email := model.NormalizeEmail(app.Email)
	if _, taken := a.m.emails[email]; taken {
		return common.ErrConflict
	}
	if _, taken := a.m.apps[app.ID]; taken {
		return common.ErrConflict
	}
	stored := copyApplication(app)
	stored.Email = email
	a.m.apps[app.ID] = stored
	a.m.emails[email] = app.ID
	return nil
}

func (a *memApps) Get(_ context.Context, id string) (*model.Application, error) {
	defer a.m.guard(a.inTx, false)()
	app, ok := a.m.apps[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return copyApplication(app), nil
}

func (a *memApps) GetByEmail(_ context.Context, email string) (*model.Application, error) {
	defer a.m.guard(a.inTx, false)()
	id, ok := a.m.emails[model.NormalizeEmail(email)]
	if !ok {
		return nil, common.ErrNotFound
	}
	return copyApplication(a.m.apps[id]), nil
}

func (a *memApps) EmailExists(_ context.Context, email string) (bool, error) {
	defer a.m.guard(a.inTx, false)()
	_, ok := a.m.emails[model.NormalizeEmail(email)]
	return ok, nil
}

func (a *memApps) List(_ context.Context, status *model.ApplicationStatus) ([]model.Application, error) {
	defer a.m.guard(a.inTx, false)()
	var out []model.Application
	for _, app := range a.m.apps {
		if status != nil && app.Status != *status {
			continue
		}
		out = append(out, *copyApplication(app))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (a *memApps) Transition(_ context.Context, id string, from []model.ApplicationStatus, to model.ApplicationStatus, upd repository.ApplicationUpdate, at time.Time) (*model.Application, error) {
	defer a.m.guard(a.inTx, true)()
	current, ok := a.m.apps[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	allowed := false
	for _, s := range from {
		if current.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, common.ErrInvalidTransition
	}
	next := copyApplication(current)
	next.Status = to
	next.UpdatedAt = at
	if upd.Meeting != nil {
		m := *upd.Meeting
		next.Meeting = &m
	}
	if upd.RejectionReason != nil {
		next.RejectionReason = *upd.RejectionReason
	}
	a.m.apps[id] = next
	return copyApplication(next), nil
}

type memTerms struct {
	m    *MemoryStore
	inTx bool
}

func (t *memTerms) Create(_ context.Context, rec *model.TermsRecord) error {
	defer t.m.guard(t.inTx, true)()
	if _, taken := t.m.terms[rec.ID]; taken {
		return common.ErrConflict
	}
	for id, old := range t.m.terms {
		if old.Token == rec.Token {
			return common.ErrConflict
		}
		if old.ApplicationID == rec.ApplicationID && !old.Accepted() && old.ExpiresAt.After(rec.CreatedAt) {
			superseded := copyTerms(old)
			superseded.ExpiresAt = rec.CreatedAt
			t.m.terms[id] = superseded
		}
	}
	t.m.terms[rec.ID] = copyTerms(rec)
	return nil
}

func (t *memTerms) Get(_ context.Context, id string) (*model.TermsRecord, error) {
	defer t.m.guard(t.inTx, false)()
	rec, ok := t.m.terms[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return copyTerms(rec), nil
}

func (t *memTerms) GetByToken(_ context.Context, token string) (*model.TermsRecord, error) {
	defer t.m.guard(t.inTx, false)()
	for _, rec := range t.m.terms {
		if rec.Token == token {
			return copyTerms(rec), nil
		}
	}
	return nil, common.ErrNotFound
}

func (t *memTerms) LatestForApplication(_ context.Context, applicationID string) (*model.TermsRecord, error) {
	defer t.m.guard(t.inTx, false)()
	var latest *model.TermsRecord
	for _, rec := range t.m.terms {
		if rec.ApplicationID != applicationID {
			continue
		}
		if latest == nil || rec.CreatedAt.After(latest.CreatedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, common.ErrNotFound
	}
	return copyTerms(latest), nil
}

func (t *memTerms) Accept(_ context.Context, id string, acc model.Acceptance, at time.Time) (*model.TermsRecord, error) {
	defer t.m.guard(t.inTx, true)()
	current, ok := t.m.terms[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	if current.Accepted() {
		return nil, common.ErrTokenAccepted
	}
	if !current.ExpiresAt.After(at) {
		return nil, common.ErrTokenExpired
	}
	next := copyTerms(current)
	next.AcceptedAt = &at
	next.Acceptance = &acc
	next.VerificationStatus = model.VerificationPending
	t.m.terms[id] = next
	return copyTerms(next), nil
}

func (t *memTerms) Resolve(_ context.Context, id string, res repository.Resolution) (*model.TermsRecord, error) {
	defer t.m.guard(t.inTx, true)()
	current, ok := t.m.terms[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	if !current.Accepted() {
		return nil, common.ErrInvalidTransition
	}
	if current.EffectiveVerification() != model.VerificationPending {
		return nil, common.ErrAlreadyProcessed
	}
	next := copyTerms(current)
	next.VerificationStatus = res.Status
	next.ReviewedBy = res.ReviewedBy
	at := res.At
	next.ReviewedAt = &at
	next.RejectionReason = res.Reason
	t.m.terms[id] = next
	return copyTerms(next), nil
}

func (t *memTerms) SetContractPDF(_ context.Context, id, ref string) error {
	defer t.m.guard(t.inTx, true)()
	current, ok := t.m.terms[id]
	if !ok {
		return common.ErrNotFound
	}
	next := copyTerms(current)
	next.ContractPDFRef = ref
	t.m.terms[id] = next
	return nil
}

func (t *memTerms) ListByVerification(_ context.Context, status model.VerificationStatus) ([]model.TermsRecord, error) {
	defer t.m.guard(t.inTx, false)()
	if status == model.VerificationNone {
		status = model.VerificationPending
	}
	var out []model.TermsRecord
	for _, rec := range t.m.terms {
		if rec.Accepted() && rec.EffectiveVerification() == status {
			out = append(out, *copyTerms(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AcceptedAt.After(*out[j].AcceptedAt) })
	return out, nil
}

func copyApplication(app *model.Application) *model.Application {
	cp := *app
	if app.Meeting != nil {
		m := *app.Meeting
		cp.Meeting = &m
	}
	cp.Submission.AreasOfExpertise = append([]string(nil), app.Submission.AreasOfExpertise...)
	cp.Submission.InterestedRoles = append([]string(nil), app.Submission.InterestedRoles...)
	return &cp
}

func copyTerms(rec *model.TermsRecord) *model.TermsRecord {
	cp := *rec
	if rec.TemplateID != nil {
		id := *rec.TemplateID
		cp.TemplateID = &id
	}
	if rec.AcceptedAt != nil {
		at := *rec.AcceptedAt
		cp.AcceptedAt = &at
	}
	if rec.Acceptance != nil {
		acc := *rec.Acceptance
		if rec.Acceptance.Geolocation != nil {
			g := *rec.Acceptance.Geolocation
			acc.Geolocation = &g
		}
		cp.Acceptance = &acc
	}
	if rec.ReviewedAt != nil {
		at := *rec.ReviewedAt
		cp.ReviewedAt = &at
	}
	return &cp
}
