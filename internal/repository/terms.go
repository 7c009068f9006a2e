package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dharsanguruparan/PartnerGate/internal/common"
	"github.com/dharsanguruparan/PartnerGate/internal/database"
	"github.com/dharsanguruparan/PartnerGate/internal/model"
)

const termsColumns = `id, application_id, token, template_id, expires_at, accepted_at, acceptance,
	verification_status, reviewed_by, reviewed_at, rejection_reason, contract_pdf_ref, created_at`

// TermsRepository wraps the SQL used for the terms_records table.
type TermsRepository struct {
	db database.DBTX
}

func NewTermsRepository(db database.DBTX) *TermsRepository {
	return &TermsRepository{db: db}
}

// Create supersedes the older open links and inserts rec in one statement.
func (r *TermsRepository) Create(ctx context.Context, rec *model.TermsRecord) error {
	var templateID any
	if rec.TemplateID != nil {
		templateID = *rec.TemplateID
	}
	_, err := r.db.ExecContext(ctx, `
		WITH superseded AS (
			UPDATE terms_records SET expires_at = $6
			WHERE application_id = $2 AND accepted_at IS NULL AND expires_at > $6
		)
		INSERT INTO terms_records (id, application_id, token, template_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ID, rec.ApplicationID, rec.Token, templateID, rec.ExpiresAt, rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return common.ErrConflict
		}
		return fmt.Errorf("insert terms record: %w", err)
	}
	return nil
}

func (r *TermsRepository) Get(ctx context.Context, id string) (*model.TermsRecord, error) {
	return scanTerms(r.db.QueryRowContext(ctx, `SELECT `+termsColumns+` FROM terms_records WHERE id = $1`, id))
}

func (r *TermsRepository) GetByToken(ctx context.Context, token string) (*model.TermsRecord, error) {
	return scanTerms(r.db.QueryRowContext(ctx, `SELECT `+termsColumns+` FROM terms_records WHERE token = $1`, token))
}

func (r *TermsRepository) LatestForApplication(ctx context.Context, applicationID string) (*model.TermsRecord, error) {
	return scanTerms(r.db.QueryRowContext(ctx, `
		SELECT `+termsColumns+` FROM terms_records
		WHERE application_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, applicationID))
}

// Accept is the single write of the acceptance data.
func (r *TermsRepository) Accept(ctx context.Context, id string, acc model.Acceptance, at time.Time) (*model.TermsRecord, error) {
	raw, err := json.Marshal(acc)
	if err != nil {
		return nil, fmt.Errorf("encode acceptance: %w", err)
	}
	rec, err := scanTerms(r.db.QueryRowContext(ctx, `
		UPDATE terms_records
		SET accepted_at = $1, acceptance = $2, verification_status = 'pending'
		WHERE id = $3 AND accepted_at IS NULL AND expires_at > $1
		RETURNING `+termsColumns, at, string(raw), id))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	current, getErr := r.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if current.Accepted() {
		return nil, common.ErrTokenAccepted
	}
	return nil, common.ErrTokenExpired
}

// Resolve writes the verdict only while the record is still pending.
func (r *TermsRepository) Resolve(ctx context.Context, id string, res Resolution) (*model.TermsRecord, error) {
	rec, err := scanTerms(r.db.QueryRowContext(ctx, `
		UPDATE terms_records
		SET verification_status = $1, reviewed_by = $2, reviewed_at = $3, rejection_reason = $4
		WHERE id = $5 AND accepted_at IS NOT NULL
			AND (verification_status IS NULL OR verification_status = 'pending')
		RETURNING `+termsColumns, string(res.Status), res.ReviewedBy, res.At, res.Reason, id))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	current, getErr := r.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if !current.Accepted() {
		return nil, common.ErrInvalidTransition
	}
	return nil, common.ErrAlreadyProcessed
}

func (r *TermsRepository) SetContractPDF(ctx context.Context, id, ref string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE terms_records SET contract_pdf_ref = $1 WHERE id = $2`, ref, id)
	if err != nil {
		return fmt.Errorf("update contract pdf: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *TermsRepository) ListByVerification(ctx context.Context, status model.VerificationStatus) ([]model.TermsRecord, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status == model.VerificationPending || status == model.VerificationNone {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+termsColumns+` FROM terms_records
			WHERE accepted_at IS NOT NULL AND (verification_status IS NULL OR verification_status = 'pending')
			ORDER BY accepted_at DESC`)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+termsColumns+` FROM terms_records
			WHERE accepted_at IS NOT NULL AND verification_status = $1
			ORDER BY accepted_at DESC`, string(status))
	}
	if err != nil {
		return nil, fmt.Errorf("list terms records: %w", err)
	}
	defer rows.Close()

	var out []model.TermsRecord
	for rows.Next() {
		rec, err := scanTerms(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list terms records: %w", err)
	}
	return out, nil
}

func scanTerms(row scanner) (*model.TermsRecord, error) {
	var (
		rec          model.TermsRecord
		templateID   sql.NullString
		acceptedAt   sql.NullTime
		acceptance   []byte
		verification sql.NullString
		reviewedAt   sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.ApplicationID, &rec.Token, &templateID, &rec.ExpiresAt, &acceptedAt, &acceptance,
		&verification, &rec.ReviewedBy, &reviewedAt, &rec.RejectionReason, &rec.ContractPDFRef, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("select terms record: %w", err)
	}
	if templateID.Valid {
		id := templateID.String
		rec.TemplateID = &id
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		rec.AcceptedAt = &t
	}
	if len(acceptance) > 0 {
		rec.Acceptance = &model.Acceptance{}
		if err := json.Unmarshal(acceptance, rec.Acceptance); err != nil {
			return nil, fmt.Errorf("decode acceptance: %w", err)
		}
	}
	if verification.Valid {
		rec.VerificationStatus = model.VerificationStatus(verification.String)
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		rec.ReviewedAt = &t
	}
	return &rec, nil
}
