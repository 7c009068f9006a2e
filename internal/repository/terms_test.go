package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/PartnerGate/internal/common"
	"github.com/dharsanguruparan/PartnerGate/internal/model"
)

var termsCols = []string{"id", "application_id", "token", "template_id", "expires_at", "accepted_at", "acceptance",
	"verification_status", "reviewed_by", "reviewed_at", "rejection_reason", "contract_pdf_ref", "created_at"}

func openRow(id string, expires time.Time) []driver.Value {
	return []driver.Value{id, "app-1", "tok", nil, expires, nil, nil, nil, "", nil, "", "", expires.Add(-time.Hour)}
}

func acceptedRow(id string, at time.Time, verification any) []driver.Value {
	return []driver.Value{id, "app-1", "tok", "tpl-1", at.Add(time.Hour), at, []byte(`{"legalName":"Ana Silva","contractHash":"abc"}`),
		verification, "", nil, "", "", at.Add(-time.Hour)}
}

func TestTermsCreate_SupersedesInSameStatement(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTermsRepository(db)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tpl := "tpl-1"

	mock.ExpectExec(`(?s)WITH superseded AS \(\s*UPDATE terms_records SET expires_at = \$6.+INSERT INTO terms_records`).
		WithArgs("t-1", "app-1", "tok", "tpl-1", now.Add(720*time.Hour), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &model.TermsRecord{
		ID: "t-1", ApplicationID: "app-1", Token: "tok", TemplateID: &tpl,
		ExpiresAt: now.Add(720 * time.Hour), CreatedAt: now,
	})
	require.NoError(t, err)
}

func TestTermsGetByToken_NullableColumns(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTermsRepository(db)
	exp := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM terms_records WHERE token = \$1`).WithArgs("tok").
		WillReturnRows(sqlmock.NewRows(termsCols).AddRow(openRow("t-1", exp)...))

	rec, err := repo.GetByToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Nil(t, rec.TemplateID)
	assert.False(t, rec.Accepted())
	assert.Nil(t, rec.Acceptance)
	assert.Equal(t, model.VerificationNone, rec.EffectiveVerification())
}

func TestTermsAccept_Success(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTermsRepository(db)
	at := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)UPDATE terms_records\s+SET accepted_at = \$1.+WHERE id = \$3 AND accepted_at IS NULL AND expires_at > \$1`).
		WithArgs(at, sqlmock.AnyArg(), "t-1").
		WillReturnRows(sqlmock.NewRows(termsCols).AddRow(acceptedRow("t-1", at, "pending")...))

	rec, err := repo.Accept(context.Background(), "t-1", model.Acceptance{LegalName: "Ana Silva"}, at)
	require.NoError(t, err)
	require.NotNil(t, rec.Acceptance)
	assert.Equal(t, "Ana Silva", rec.Acceptance.LegalName)
	assert.Equal(t, model.VerificationPending, rec.VerificationStatus)
}

func TestTermsAccept_SecondAttemptReportsAccepted(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTermsRepository(db)
	at := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE terms_records`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM terms_records WHERE id = \$1`).WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows(termsCols).AddRow(acceptedRow("t-1", at, "pending")...))

	_, err := repo.Accept(context.Background(), "t-1", model.Acceptance{}, at)
	require.ErrorIs(t, err, common.ErrTokenAccepted)
}

func TestTermsAccept_ExpiredLink(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTermsRepository(db)
	exp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE terms_records`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM terms_records WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(termsCols).AddRow(openRow("t-1", exp)...))

	_, err := repo.Accept(context.Background(), "t-1", model.Acceptance{}, exp.Add(time.Minute))
	require.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestTermsResolve_AlreadyResolved(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTermsRepository(db)
	at := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)UPDATE terms_records.+verification_status IS NULL OR verification_status = 'pending'`).
		WithArgs("approved", "staff@example.com", at, "", "t-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM terms_records WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(termsCols).AddRow(acceptedRow("t-1", at, "approved")...))

	_, err := repo.Resolve(context.Background(), "t-1", Resolution{
		Status: model.VerificationApproved, ReviewedBy: "staff@example.com", At: at,
	})
	require.ErrorIs(t, err, common.ErrAlreadyProcessed)
}

func TestTermsResolve_NeverAccepted(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTermsRepository(db)
	exp := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE terms_records`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM terms_records WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(termsCols).AddRow(openRow("t-1", exp)...))

	_, err := repo.Resolve(context.Background(), "t-1", Resolution{Status: model.VerificationRejected})
	require.ErrorIs(t, err, common.ErrInvalidTransition)
}

func TestTermsSetContractPDF_MissingRecord(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTermsRepository(db)

	mock.ExpectExec(`UPDATE terms_records SET contract_pdf_ref = \$1 WHERE id = \$2`).
		WithArgs("contracts/t-1.pdf", "t-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetContractPDF(context.Background(), "t-1", "contracts/t-1.pdf")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestTermsListByVerification_PendingIncludesNull(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTermsRepository(db)
	at := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)WHERE accepted_at IS NOT NULL AND \(verification_status IS NULL OR verification_status = 'pending'\)`).
		WillReturnRows(sqlmock.NewRows(termsCols).
			AddRow(acceptedRow("t-1", at, nil)...).
			AddRow(acceptedRow("t-2", at, "pending")...))

	recs, err := repo.ListByVerification(context.Background(), model.VerificationPending)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, model.VerificationNone, recs[0].VerificationStatus)
	assert.Equal(t, model.VerificationPending, recs[0].EffectiveVerification())
	require.NotNil(t, recs[0].TemplateID)
	assert.Equal(t, "tpl-1", *recs[0].TemplateID)
}
