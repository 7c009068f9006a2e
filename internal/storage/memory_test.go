package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/PartnerGate/internal/common"
	"github.com/dharsanguruparan/PartnerGate/internal/model"
	"github.com/dharsanguruparan/PartnerGate/internal/repository"
)

var t0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func seedApp(t *testing.T, s *MemoryStore, id, email string, status model.ApplicationStatus) {
	t.Helper()
	require.NoError(t, s.Applications().Create(context.Background(), &model.Application{
		ID: id, Email: email, Status: status, CreatedAt: t0, UpdatedAt: t0,
	}))
}

func TestApplications_EmailUniqueIgnoresCase(t *testing.T) {
	s := NewMemoryStore()
	seedApp(t, s, "a", "Ana@Example.com", model.StatusPending)

	err := s.Applications().Create(context.Background(), &model.Application{ID: "b", Email: " ana@example.COM"})
	require.ErrorIs(t, err, common.ErrConflict)

	ok, err := s.Applications().EmailExists(context.Background(), "ANA@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	app, err := s.Applications().GetByEmail(context.Background(), "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "a", app.ID)
}

func TestApplications_TransitionGuardsSourceStatus(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedApp(t, s, "a", "a@example.com", model.StatusPending)
	apps := s.Applications()

	meeting := &model.Meeting{Date: "2026-02-01", Time: "10:00", Link: "https://meet.example.com/a"}
	app, err := apps.Transition(ctx, "a", []model.ApplicationStatus{model.StatusPending},
		model.StatusApprovedForMeeting, repository.ApplicationUpdate{Meeting: meeting}, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.StatusApprovedForMeeting, app.Status)
	assert.Equal(t, t0.Add(time.Hour), app.UpdatedAt)

	meeting.Time = "11:00"
	stored, err := apps.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "10:00", stored.Meeting.Time, "store keeps its own copy")

	_, err = apps.Transition(ctx, "a", []model.ApplicationStatus{model.StatusPending},
		model.StatusRejected, repository.ApplicationUpdate{}, t0)
	require.ErrorIs(t, err, common.ErrInvalidTransition)

	_, err = apps.Transition(ctx, "ghost", []model.ApplicationStatus{model.StatusPending},
		model.StatusRejected, repository.ApplicationUpdate{}, t0)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestApplications_ConcurrentTransitionAppliesOnce(t *testing.T) {
	s := NewMemoryStore()
	seedApp(t, s, "a", "a@example.com", model.StatusPending)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Applications().Transition(context.Background(), "a",
				[]model.ApplicationStatus{model.StatusPending}, model.StatusApprovedForMeeting,
				repository.ApplicationUpdate{}, t0)
			if err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestTerms_CreateSupersedesOpenLinks(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	terms := s.Terms()

	require.NoError(t, terms.Create(ctx, &model.TermsRecord{
		ID: "t1", ApplicationID: "a", Token: "tok1", ExpiresAt: t0.Add(48 * time.Hour), CreatedAt: t0,
	}))
	later := t0.Add(time.Hour)
	require.NoError(t, terms.Create(ctx, &model.TermsRecord{
		ID: "t2", ApplicationID: "a", Token: "tok2", ExpiresAt: later.Add(48 * time.Hour), CreatedAt: later,
	}))

	old, err := terms.GetByToken(ctx, "tok1")
	require.NoError(t, err)
	assert.True(t, old.Expired(later.Add(time.Second)))

	latest, err := terms.LatestForApplication(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "t2", latest.ID)

	err = terms.Create(ctx, &model.TermsRecord{ID: "t3", ApplicationID: "b", Token: "tok2", CreatedAt: later})
	require.ErrorIs(t, err, common.ErrConflict)
}

func TestTerms_AcceptAtMostOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Terms().Create(ctx, &model.TermsRecord{
		ID: "t1", ApplicationID: "a", Token: "tok", ExpiresAt: t0.Add(time.Hour), CreatedAt: t0,
	}))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Terms().Accept(ctx, "t1", model.Acceptance{LegalName: "Ana"}, t0.Add(time.Minute)); err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, common.ErrTokenAccepted)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	rec, err := s.Terms().Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.VerificationPending, rec.VerificationStatus)
}

func TestTerms_AcceptAfterExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Terms().Create(ctx, &model.TermsRecord{
		ID: "t1", ApplicationID: "a", Token: "tok", ExpiresAt: t0, CreatedAt: t0.Add(-time.Hour),
	}))
	_, err := s.Terms().Accept(ctx, "t1", model.Acceptance{}, t0.Add(time.Second))
	require.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestTerms_ResolveOnlyFromPending(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	terms := s.Terms()
	require.NoError(t, terms.Create(ctx, &model.TermsRecord{
		ID: "t1", ApplicationID: "a", Token: "tok", ExpiresAt: t0.Add(time.Hour), CreatedAt: t0,
	}))

	_, err := terms.Resolve(ctx, "t1", repository.Resolution{Status: model.VerificationApproved})
	require.ErrorIs(t, err, common.ErrInvalidTransition)

	_, err = terms.Accept(ctx, "t1", model.Acceptance{}, t0)
	require.NoError(t, err)

	rec, err := terms.Resolve(ctx, "t1", repository.Resolution{
		Status: model.VerificationApproved, ReviewedBy: "staff@example.com", At: t0.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "staff@example.com", rec.ReviewedBy)

	_, err = terms.Resolve(ctx, "t1", repository.Resolution{Status: model.VerificationRejected})
	require.ErrorIs(t, err, common.ErrAlreadyProcessed)

	pending, err := terms.ListByVerification(ctx, model.VerificationPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
	approved, err := terms.ListByVerification(ctx, model.VerificationApproved)
	require.NoError(t, err)
	assert.Len(t, approved, 1)
}

func TestAtomic_RestoresOnError(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedApp(t, s, "a", "a@example.com", model.StatusApprovedForContract)

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(ctx context.Context, apps repository.Applications, _ repository.TermsRecords) error {
		_, err := apps.Transition(ctx, "a", []model.ApplicationStatus{model.StatusApprovedForContract},
			model.StatusContractAccepted, repository.ApplicationUpdate{}, t0)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	app, err := s.Applications().Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApprovedForContract, app.Status)
}
