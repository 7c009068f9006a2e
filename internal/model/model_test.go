package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseApplicationStatus(t *testing.T) {
	s, ok := ParseApplicationStatus(" approved_for_meeting ")
	assert.True(t, ok)
	assert.Equal(t, StatusApprovedForMeeting, s)

	_, ok = ParseApplicationStatus("archived")
	assert.False(t, ok)
}

func TestAcceptsTerms(t *testing.T) {
	assert.True(t, StatusApprovedForContract.AcceptsTerms())
	assert.True(t, StatusApproved.AcceptsTerms())
	assert.False(t, StatusContractAccepted.AcceptsTerms())
	assert.False(t, StatusPending.AcceptsTerms())
}

func TestEffectiveVerification(t *testing.T) {
	rec := &TermsRecord{ExpiresAt: time.Now().Add(time.Hour)}
	assert.Equal(t, VerificationNone, rec.EffectiveVerification())

	at := time.Now()
	rec.AcceptedAt = &at
	assert.Equal(t, VerificationPending, rec.EffectiveVerification(), "legacy null reads as pending")

	rec.VerificationStatus = VerificationRejected
	assert.Equal(t, VerificationRejected, rec.EffectiveVerification())
	assert.True(t, rec.VerificationStatus.Resolved())
}

func TestExpired(t *testing.T) {
	exp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := &TermsRecord{ExpiresAt: exp}
	assert.False(t, rec.Expired(exp.Add(-time.Nanosecond)))
	assert.True(t, rec.Expired(exp), "the expiry instant itself is expired")
	assert.True(t, rec.Expired(exp.Add(time.Nanosecond)))
}

func TestUploadKindOwns(t *testing.T) {
	assert.True(t, UploadSelfie.Owns("selfie/3f2a/me.png"))
	assert.False(t, UploadSelfie.Owns("cv/3f2a/me.pdf"), "another kind's ref")
	assert.False(t, UploadSelfie.Owns("never-uploaded"))
	assert.False(t, UploadSelfie.Owns("selfie/"))
	assert.False(t, UploadSelfie.Owns("selfie//me.png"))
	assert.False(t, UploadSelfie.Owns("selfie/3f2a/../cv.pdf"))
	assert.False(t, UploadDocumentFront.Owns("document_back/1/a.png"))
}

func TestNormalizeEmailAndFullName(t *testing.T) {
	assert.Equal(t, "ana@example.com", NormalizeEmail("  ANA@example.COM "))
	app := &Application{Submission: Submission{FirstName: "Ana", LastName: ""}}
	assert.Equal(t, "Ana", app.FullName())
}
