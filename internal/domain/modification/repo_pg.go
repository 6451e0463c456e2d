package modification

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

type sessionRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &sessionRepoPG{pool: pool}
}

const sessionCols = `id, clinician_id, assessment_id, step, status, medications, recommendations,
	monitoring, notes, created_at, updated_at`

func (r *sessionRepoPG) scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.ClinicianID, &s.AssessmentID, &s.Step, &s.Status, &s.Medications,
		&s.Recommendations, &s.Monitoring, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("modification session")
	}
	return &s, err
}

func (r *sessionRepoPG) Create(ctx context.Context, s *Session) error {
	s.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO modification_session (id, clinician_id, assessment_id, step, status,
			medications, recommendations, monitoring, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (clinician_id) WHERE status = 'IN_PROGRESS' DO NOTHING
		RETURNING created_at, updated_at`,
		s.ID, s.ClinicianID, s.AssessmentID, s.Step, s.Status,
		s.Medications, s.Recommendations, s.Monitoring, s.Notes).Scan(&s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Duplicate("clinician already has a modification in progress")
	}
	return err
}

func (r *sessionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	return r.scanSession(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM modification_session WHERE id = $1`, id))
}

func (r *sessionRepoPG) ActiveForClinician(ctx context.Context, clinicianID uuid.UUID) (*Session, error) {
	return r.scanSession(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM modification_session WHERE clinician_id = $1 AND status = 'IN_PROGRESS'`, clinicianID))
}

func (r *sessionRepoPG) Update(ctx context.Context, s *Session) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE modification_session SET step=$2, status=$3, medications=$4, recommendations=$5,
			monitoring=$6, notes=$7, updated_at=NOW()
		WHERE id = $1 AND status = 'IN_PROGRESS'
		RETURNING updated_at`,
		s.ID, s.Step, s.Status, s.Medications, s.Recommendations, s.Monitoring, s.Notes).Scan(&s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Conflict("modification session is no longer in progress")
	}
	if err != nil {
		return fmt.Errorf("update modification session: %w", err)
	}
	return nil
}
