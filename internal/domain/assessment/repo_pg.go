package assessment

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

// =========== Assessment Repository ===========

type assessmentRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &assessmentRepoPG{pool: pool}
}

const assessmentCols = `id, session_id, patient_id, chief_complaint, patient_age, patient_gender,
	symptoms, observations, recommendations, medications, monitoring, red_flags,
	confidence, status, generated_at, sent_at, updated_at`

func (r *assessmentRepoPG) scanAssessment(row pgx.Row) (*Assessment, error) {
	var a Assessment
	err := row.Scan(&a.ID, &a.SessionID, &a.PatientID, &a.ChiefComplaint, &a.PatientAge, &a.PatientGender,
		&a.Symptoms, &a.Observations, &a.Recommendations, &a.Medications, &a.Monitoring, &a.RedFlags,
		&a.Confidence, &a.Status, &a.GeneratedAt, &a.SentAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("assessment")
	}
	return &a, err
}

func (r *assessmentRepoPG) Create(ctx context.Context, a *Assessment) error {
	a.ID = uuid.New()
	if a.RedFlags == nil {
		a.RedFlags = []string{}
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO assessment (id, session_id, patient_id, chief_complaint, patient_age, patient_gender,
			symptoms, observations, recommendations, medications, monitoring, red_flags,
			confidence, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING generated_at, updated_at`,
		a.ID, a.SessionID, a.PatientID, a.ChiefComplaint, a.PatientAge, a.PatientGender,
		a.Symptoms, a.Observations, a.Recommendations, a.Medications, a.Monitoring, a.RedFlags,
		a.Confidence, a.Status).Scan(&a.GeneratedAt, &a.UpdatedAt)
}

func (r *assessmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	return r.scanAssessment(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+assessmentCols+` FROM assessment WHERE id = $1`, id))
}

func (r *assessmentRepoPG) GetBySession(ctx context.Context, sessionID uuid.UUID) (*Assessment, error) {
	return r.scanAssessment(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+assessmentCols+` FROM assessment WHERE session_id = $1`, sessionID))
}

func (r *assessmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to ReviewStatus) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE assessment SET status=$3, updated_at=NOW()
		WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return fmt.Errorf("update assessment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict(fmt.Sprintf("assessment is no longer %s", from))
	}
	return nil
}

func (r *assessmentRepoPG) MarkSent(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE assessment SET status='SENT_TO_PATIENT', sent_at=NOW(), updated_at=NOW()
		WHERE id = $1 AND status IN ('APPROVED', 'MODIFIED')`, id)
	if err != nil {
		return fmt.Errorf("mark assessment sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("assessment is not approved for sending")
	}
	return nil
}

func (r *assessmentRepoPG) List(ctx context.Context, status ReviewStatus, limit, offset int) ([]*Assessment, int, error) {
	where := ""
	args := []interface{}{}
	if status != "" {
		where = " WHERE status = $1"
		args = append(args, status)
	}
	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM assessment`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	n := len(args)
	args = append(args, limit, offset)
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+assessmentCols+` FROM assessment`+where+
			fmt.Sprintf(` ORDER BY generated_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Assessment
	for rows.Next() {
		a, err := r.scanAssessment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

// =========== Review Repository ===========

type reviewRepoPG struct{ pool *pgxpool.Pool }

func NewReviewRepoPG(pool *pgxpool.Pool) ReviewRepository {
	return &reviewRepoPG{pool: pool}
}

const reviewCols = `id, assessment_id, clinician_id, action, notes, medications, recommendations, monitoring, created_at`

func (r *reviewRepoPG) scanReview(row pgx.Row) (*Review, error) {
	var rv Review
	err := row.Scan(&rv.ID, &rv.AssessmentID, &rv.ClinicianID, &rv.Action, &rv.Notes,
		&rv.Medications, &rv.Recommendations, &rv.Monitoring, &rv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("review")
	}
	return &rv, err
}

func (r *reviewRepoPG) Create(ctx context.Context, rv *Review) error {
	rv.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO assessment_review (id, assessment_id, clinician_id, action, notes,
			medications, recommendations, monitoring)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		rv.ID, rv.AssessmentID, rv.ClinicianID, rv.Action, rv.Notes,
		rv.Medications, rv.Recommendations, rv.Monitoring).Scan(&rv.CreatedAt)
}

func (r *reviewRepoPG) Latest(ctx context.Context, assessmentID uuid.UUID, action string) (*Review, error) {
	return r.scanReview(db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+reviewCols+` FROM assessment_review
		WHERE assessment_id = $1 AND ($2 = '' OR action = $2)
		ORDER BY created_at DESC LIMIT 1`, assessmentID, action))
}

func (r *reviewRepoPG) ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]*Review, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+reviewCols+` FROM assessment_review
		WHERE assessment_id = $1 ORDER BY created_at DESC`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Review
	for rows.Next() {
		rv, err := r.scanReview(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rv)
	}
	return items, rows.Err()
}
