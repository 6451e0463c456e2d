package patient

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

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

const patientCols = `id, phone, name, credits, terms_accepted_at, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Phone, &p.Name, &p.Credits, &p.TermsAcceptedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("patient")
	}
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (id, phone, name, credits, terms_accepted_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		p.ID, p.Phone, p.Name, p.Credits, p.TermsAcceptedAt).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) GetByPhone(ctx context.Context, phone string) (*Patient, error) {
	return r.scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE phone = $1`, phone))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE patient SET name=$2, terms_accepted_at=$3, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Name, p.TermsAcceptedAt)
	return err
}

func (r *patientRepoPG) DeductCredit(ctx context.Context, id uuid.UUID) (int, error) {
	var balance int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patient SET credits = credits - 1, updated_at = NOW()
		WHERE id = $1 AND credits > 0
		RETURNING credits`, id).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.Conflict("no consultation credits")
	}
	if err != nil {
		return 0, fmt.Errorf("deduct credit: %w", err)
	}
	return balance, nil
}

func (r *patientRepoPG) AddCredits(ctx context.Context, id uuid.UUID, n int) (int, error) {
	var balance int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patient SET credits = credits + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING credits`, id, n).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.NotFound("patient")
	}
	if err != nil {
		return 0, fmt.Errorf("add credits: %w", err)
	}
	return balance, nil
}
