package verification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/PartnerGate/internal/common"
	"github.com/dharsanguruparan/PartnerGate/internal/email"
	"github.com/dharsanguruparan/PartnerGate/internal/model"
	"github.com/dharsanguruparan/PartnerGate/internal/s3storage"
	"github.com/dharsanguruparan/PartnerGate/internal/signing"
	"github.com/dharsanguruparan/PartnerGate/internal/storage"
	"github.com/dharsanguruparan/PartnerGate/internal/terms"
)

type fixture struct {
	svc     *Service
	terms   *terms.Service
	store   *storage.MemoryStore
	objects *s3storage.Memory
	mail    *email.Recorder
	now     time.Time
}

var artifactRefs = map[model.UploadKind]string{
	model.UploadDocumentFront: "document_front/1/front.jpg",
	model.UploadDocumentBack:  "document_back/1/back.jpg",
	model.UploadSelfie:        "selfie/1/selfie.jpg",
	model.UploadSignature:     "signature/1/signature.png",
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   storage.NewMemoryStore(),
		objects: s3storage.NewMemory(),
		mail:    email.NewRecorder(),
		now:     time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
	}
	for _, ref := range artifactRefs {
		require.NoError(t, s3storage.PutBytes(context.Background(), f.objects, s3storage.Uploads, ref, []byte("img"), "image/jpeg"))
	}
	clock := func() time.Time { return f.now }
	f.terms = terms.NewService(terms.Config{
		Validity:        7 * 24 * time.Hour,
		ContractVersion: "v1",
		Links:           terms.Links{Canonical: "https://partners.example.com"},
	}, terms.Deps{Store: f.store, Signer: signing.NewSigner([]byte("k")), Objects: f.objects, Now: clock})
	f.svc = NewService(Deps{Store: f.store, Terms: f.terms, Mail: f.mail, Now: clock})
	return f
}

// accepted seeds an application whose terms were just accepted and returns
// the accepted record.
func (f *fixture) accepted(t *testing.T, id string) *model.TermsRecord {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.Applications().Create(ctx, &model.Application{
		ID: id, Email: id + "@example.com", Status: model.StatusApprovedForContract,
		Submission: model.Submission{FirstName: "Ana"}, CreatedAt: f.now, UpdatedAt: f.now,
	}))
	rec, err := f.terms.Issue(ctx, f.store.Terms(), id, nil)
	require.NoError(t, err)
	acc, err := f.terms.Accept(ctx, rec.Token, acceptRequest())
	require.NoError(t, err)
	return acc
}

func acceptRequest() terms.AcceptRequest {
	return terms.AcceptRequest{
		Acceptance: model.Acceptance{
			LegalName: "Ana Silva", Email: "signer@example.com",
			DocumentFrontRef: artifactRefs[model.UploadDocumentFront],
			DocumentBackRef:  artifactRefs[model.UploadDocumentBack],
			SelfieRef:        artifactRefs[model.UploadSelfie],
			SignatureRef:     artifactRefs[model.UploadSignature],
		},
		SignatureConfirmed: true,
	}
}

func (f *fixture) appStatus(t *testing.T, id string) model.ApplicationStatus {
	t.Helper()
	app, err := f.store.Applications().Get(context.Background(), id)
	require.NoError(t, err)
	return app.Status
}

func TestApprove_ActivatesPartner(t *testing.T) {
	f := newFixture(t)
	rec := f.accepted(t, "app-1")

	got, err := f.svc.Approve(context.Background(), rec.ID, "reviewer@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.VerificationApproved, got.VerificationStatus)
	assert.Equal(t, "reviewer@example.com", got.ReviewedBy)
	require.NotNil(t, got.ReviewedAt)
	assert.Equal(t, f.now, *got.ReviewedAt)
	assert.Equal(t, model.StatusActive, f.appStatus(t, "app-1"))

	sent, ok := f.mail.Last(email.KindContractApproved)
	require.True(t, ok)
	assert.Equal(t, "signer@example.com", sent.To)
}

func TestApprove_IdempotentWithoutDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	rec := f.accepted(t, "app-1")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.svc.Approve(ctx, rec.ID, "reviewer")
			assert.NoError(t, err)
			assert.Equal(t, model.VerificationApproved, got.VerificationStatus)
		}()
	}
	wg.Wait()

	_, err := f.svc.Approve(ctx, rec.ID, "reviewer")
	require.NoError(t, err)
	assert.Equal(t, 1, f.mail.Count(email.KindContractApproved))
}

func TestApprove_LegacyApprovedApplication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.now.Add(-time.Hour)
	require.NoError(t, f.store.Applications().Create(ctx, &model.Application{ID: "legacy", Email: "l@example.com", Status: model.StatusApproved}))
	require.NoError(t, f.store.Terms().Create(ctx, &model.TermsRecord{
		ID: "old", ApplicationID: "legacy", Token: "tok", ExpiresAt: f.now.Add(time.Hour), CreatedAt: at,
	}))
	_, err := f.store.Terms().Accept(ctx, "old", model.Acceptance{}, at)
	require.NoError(t, err)

	pending, err := f.svc.List(ctx, model.VerificationPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = f.svc.Approve(ctx, "old", "reviewer")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, f.appStatus(t, "legacy"))
}

func TestApprove_AfterRejectionIsRefused(t *testing.T) {
	f := newFixture(t)
	rec := f.accepted(t, "app-1")
	ctx := context.Background()

	_, err := f.svc.Reject(ctx, rec.ID, "reviewer", "blurry", nil)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, rec.ID, "reviewer")
	require.ErrorIs(t, err, common.ErrAlreadyProcessed)
}

func TestApprove_UnacceptedRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Applications().Create(ctx, &model.Application{ID: "app-1", Email: "a@example.com", Status: model.StatusApprovedForContract}))
	rec, err := f.terms.Issue(ctx, f.store.Terms(), "app-1", nil)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, rec.ID, "reviewer")
	require.ErrorIs(t, err, common.ErrInvalidTransition)
}

func TestReject_ScenarioD_Reissue(t *testing.T) {
	f := newFixture(t)
	rec := f.accepted(t, "app-1")
	ctx := context.Background()
	f.now = f.now.Add(48 * time.Hour)

	t2 := "T2"
	out, err := f.svc.Reject(ctx, rec.ID, "reviewer", "incomplete documents", &Reissue{TemplateID: &t2})
	require.NoError(t, err)

	assert.Equal(t, model.VerificationRejected, out.Record.VerificationStatus)
	assert.Equal(t, "incomplete documents", out.Record.RejectionReason)
	require.NotNil(t, out.Reissued)
	assert.NotEqual(t, rec.ID, out.Reissued.ID)
	assert.NotEqual(t, rec.Token, out.Reissued.Token)
	assert.Equal(t, "app-1", out.Reissued.ApplicationID)
	assert.Equal(t, f.now.Add(7*24*time.Hour), out.Reissued.ExpiresAt)
	require.NotNil(t, out.Reissued.TemplateID)
	assert.Equal(t, "T2", *out.Reissued.TemplateID)
	assert.Equal(t, model.StatusApprovedForContract, f.appStatus(t, "app-1"))

	old, err := f.store.Terms().Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Acceptance, old.Acceptance, "old acceptance untouched")
	assert.Equal(t, rec.AcceptedAt, old.AcceptedAt)

	_, err = f.svc.Reject(ctx, rec.ID, "reviewer", "again", nil)
	require.ErrorIs(t, err, common.ErrAlreadyProcessed, "outcome is terminal")

	assert.Equal(t, 1, f.mail.Count(email.KindContractRejected))
	sent, _ := f.mail.Last(email.KindContractRejected)
	assert.Contains(t, sent.Data["Link"], out.Reissued.Token)

	_, err = f.terms.ValidateToken(ctx, out.Reissued.Token)
	require.NoError(t, err, "new flow instance is usable")

	preview, err := f.terms.Preview(ctx, out.Reissued.Token, acceptRequest().Acceptance)
	require.NoError(t, err)
	assert.Contains(t, preview, "Referral fee.")
	again, err := f.terms.Accept(ctx, out.Reissued.Token, acceptRequest())
	require.NoError(t, err, "reissued template link can be accepted")
	assert.Equal(t, terms.Hash(preview), again.Acceptance.ContractHash)
	assert.Equal(t, model.StatusContractAccepted, f.appStatus(t, "app-1"))
}

func TestReject_UnknownReissueTemplateChangesNothing(t *testing.T) {
	f := newFixture(t)
	rec := f.accepted(t, "app-1")
	ctx := context.Background()

	t99 := "T99"
	_, err := f.svc.Reject(ctx, rec.ID, "reviewer", "incomplete documents", &Reissue{TemplateID: &t99})
	require.ErrorIs(t, err, common.ErrValidation)

	got, err := f.store.Terms().Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationPending, got.VerificationStatus)
	latest, err := f.store.Terms().LatestForApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, latest.ID)
	assert.Equal(t, 0, f.mail.Count(email.KindContractRejected))
}

func TestReject_ExplicitNoTemplate(t *testing.T) {
	f := newFixture(t)
	rec := f.accepted(t, "app-1")

	out, err := f.svc.Reject(context.Background(), rec.ID, "reviewer", "", &Reissue{})
	require.NoError(t, err)
	require.NotNil(t, out.Reissued)
	assert.Nil(t, out.Reissued.TemplateID)
}

func TestReject_DeclinedTemplateSelectionIssuesNothing(t *testing.T) {
	f := newFixture(t)
	rec := f.accepted(t, "app-1")
	ctx := context.Background()

	out, err := f.svc.Reject(ctx, rec.ID, "reviewer", "blurry selfie", nil)
	require.NoError(t, err)
	assert.Nil(t, out.Reissued)
	assert.Equal(t, model.StatusContractAccepted, f.appStatus(t, "app-1"))

	latest, err := f.store.Terms().LatestForApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, latest.ID)
	assert.Equal(t, 1, f.mail.Count(email.KindContractRejected))
}
