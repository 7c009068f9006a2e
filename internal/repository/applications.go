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

const applicationColumns = `id, email, status, submission, meeting, rejection_reason, created_at, updated_at`

// ApplicationRepository wraps the SQL used for the applications table.
type ApplicationRepository struct {
	db database.DBTX
}

func NewApplicationRepository(db database.DBTX) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts a new application.
func (r *ApplicationRepository) Create(ctx context.Context, app *model.Application) error {
	submission, err := json.Marshal(app.Submission)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO applications (id, email, status, submission, meeting, rejection_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULL, '', $5, $6)
	`, app.ID, model.NormalizeEmail(app.Email), string(app.Status), submission, app.CreatedAt, app.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return common.ErrConflict
		}
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (r *ApplicationRepository) Get(ctx context.Context, id string) (*model.Application, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
	return scanApplication(row)
}

func (r *ApplicationRepository) GetByEmail(ctx context.Context, email string) (*model.Application, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE LOWER(email) = $1`,
		model.NormalizeEmail(email))
	return scanApplication(row)
}

// EmailExists reports whether an application already uses email.
func (r *ApplicationRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM applications WHERE LOWER(email) = $1)`,
		model.NormalizeEmail(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

func (r *ApplicationRepository) List(ctx context.Context, status *model.ApplicationStatus) ([]model.Application, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status == nil {
		rows, err = r.db.QueryContext(ctx, `SELECT `+applicationColumns+` FROM applications ORDER BY created_at DESC`)
	} else {
		rows, err = r.db.QueryContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE status = $1 ORDER BY created_at DESC`,
			string(*status))
	}
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var out []model.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return out, nil
}

// Transition performs a conditional status update guarded by the allowed
// source statuses.
func (r *ApplicationRepository) Transition(ctx context.Context, id string, from []model.ApplicationStatus, to model.ApplicationStatus, upd ApplicationUpdate, at time.Time) (*model.Application, error) {
	if len(from) == 0 {
		return nil, common.ErrInvalidTransition
	}
	var meeting, reason any
	if upd.Meeting != nil {
		raw, err := json.Marshal(upd.Meeting)
		if err != nil {
			return nil, fmt.Errorf("encode meeting: %w", err)
		}
		meeting = string(raw)
	}
	if upd.RejectionReason != nil {
		reason = *upd.RejectionReason
	}

	args := []any{string(to), meeting, reason, at, id}
	for _, s := range from {
		args = append(args, string(s))
	}
	query := fmt.Sprintf(`
		UPDATE applications
		SET status = $1,
			meeting = COALESCE($2::jsonb, meeting),
			rejection_reason = COALESCE($3::text, rejection_reason),
			updated_at = $4
		WHERE id = $5 AND status IN (%s)
		RETURNING %s
	`, placeholders(6, len(from)), applicationColumns)

	app, err := scanApplication(r.db.QueryRowContext(ctx, query, args...))
	if err == nil {
		return app, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if _, getErr := r.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, common.ErrInvalidTransition
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApplication(row scanner) (*model.Application, error) {
	var (
		app        model.Application
		status     string
		submission []byte
		meeting    []byte
	)
	err := row.Scan(&app.ID, &app.Email, &status, &submission, &meeting, &app.RejectionReason, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("select application: %w", err)
	}
	app.Status = model.ApplicationStatus(status)
	if err := json.Unmarshal(submission, &app.Submission); err != nil {
		return nil, fmt.Errorf("decode submission: %w", err)
	}
	if len(meeting) > 0 {
		app.Meeting = &model.Meeting{}
		if err := json.Unmarshal(meeting, app.Meeting); err != nil {
			return nil, fmt.Errorf("decode meeting: %w", err)
		}
	}
	return &app, nil
}
