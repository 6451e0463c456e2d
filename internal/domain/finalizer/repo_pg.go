package finalizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/db"
)

type attemptRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &attemptRepoPG{pool: pool}
}

const attemptCols = `id, assessment_id, session_id, clinician_id, severity, recommendation, status,
	override_reason, created_at, dispatched_at`

func (r *attemptRepoPG) scanAttempt(row pgx.Row) (*SendAttempt, error) {
	var a SendAttempt
	err := row.Scan(&a.ID, &a.AssessmentID, &a.SessionID, &a.ClinicianID, &a.Severity, &a.Recommendation,
		&a.Status, &a.OverrideReason, &a.CreatedAt, &a.DispatchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("send attempt")
	}
	return &a, err
}

func (r *attemptRepoPG) Create(ctx context.Context, a *SendAttempt) error {
	conn := db.Conn(ctx, r.pool)
	if _, err := conn.Exec(ctx, `
		UPDATE send_attempt SET status = 'SUPERSEDED'
		WHERE assessment_id = $1 AND clinician_id = $2 AND status = 'PENDING'`,
		a.AssessmentID, a.ClinicianID); err != nil {
		return fmt.Errorf("supersede send attempts: %w", err)
	}
	return conn.QueryRow(ctx, `
		INSERT INTO send_attempt (id, assessment_id, session_id, clinician_id, severity, recommendation, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		a.ID, a.AssessmentID, a.SessionID, a.ClinicianID, a.Severity, a.Recommendation, a.Status).Scan(&a.CreatedAt)
}

func (r *attemptRepoPG) Pending(ctx context.Context, assessmentID, clinicianID uuid.UUID) (*SendAttempt, error) {
	return r.scanAttempt(db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+attemptCols+` FROM send_attempt
		WHERE assessment_id = $1 AND clinician_id = $2 AND status = 'PENDING'
		ORDER BY id DESC LIMIT 1`, assessmentID, clinicianID))
}

func (r *attemptRepoPG) Update(ctx context.Context, a *SendAttempt) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE send_attempt SET severity=$2, recommendation=$3, status=$4, override_reason=$5, dispatched_at=$6
		WHERE id = $1 AND status = 'PENDING'`,
		a.ID, a.Severity, a.Recommendation, a.Status, a.OverrideReason, a.DispatchedAt)
	if err != nil {
		return fmt.Errorf("update send attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("send attempt is no longer pending")
	}
	return nil
}

func (r *attemptRepoPG) ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]*SendAttempt, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+attemptCols+` FROM send_attempt WHERE assessment_id = $1 ORDER BY id`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*SendAttempt
	for rows.Next() {
		a, err := r.scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
