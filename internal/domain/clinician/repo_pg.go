package clinician

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

type clinicianRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &clinicianRepoPG{pool: pool}
}

const clinicianCols = `id, phone, name, status, current_patient_count, created_at, updated_at`

func (r *clinicianRepoPG) scanClinician(row pgx.Row) (*Clinician, error) {
	var c Clinician
	err := row.Scan(&c.ID, &c.Phone, &c.Name, &c.Status, &c.CurrentPatientCount, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("clinician")
	}
	return &c, err
}

func (r *clinicianRepoPG) Create(ctx context.Context, c *Clinician) error {
	c.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO clinician (id, phone, name, status)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at, updated_at`,
		c.ID, c.Phone, c.Name, c.Status).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *clinicianRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Clinician, error) {
	return r.scanClinician(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+clinicianCols+` FROM clinician WHERE id = $1`, id))
}

func (r *clinicianRepoPG) GetByPhone(ctx context.Context, phone string) (*Clinician, error) {
	return r.scanClinician(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+clinicianCols+` FROM clinician WHERE phone = $1`, phone))
}

func (r *clinicianRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE clinician SET status=$2, updated_at=NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update clinician status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("clinician")
	}
	return nil
}

func (r *clinicianRepoPG) List(ctx context.Context, limit, offset int) ([]*Clinician, int, error) {
	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM clinician`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+clinicianCols+` FROM clinician ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Clinician
	for rows.Next() {
		c, err := r.scanClinician(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *clinicianRepoPG) ListAssignable(ctx context.Context) ([]*Clinician, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+clinicianCols+` FROM clinician
		WHERE status IN ('AVAILABLE', 'ON_CALL')
		ORDER BY current_patient_count, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Clinician
	for rows.Next() {
		c, err := r.scanClinician(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *clinicianRepoPG) AdjustLoad(ctx context.Context, id uuid.UUID, delta int) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE clinician SET current_patient_count = GREATEST(current_patient_count + $2, 0), updated_at = NOW()
		WHERE id = $1`, id, delta)
	return err
}

type messageLogPG struct{ pool *pgxpool.Pool }

func NewMessageLogPG(pool *pgxpool.Pool) MessageLog {
	return &messageLogPG{pool: pool}
}

func (r *messageLogPG) Record(ctx context.Context, m *InboundMessage) error {
	m.ID = uuid.New()
	var providerID *string
	if m.ProviderMessageID != "" {
		providerID = &m.ProviderMessageID
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO clinician_message (id, clinician_id, body, provider_message_id)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (provider_message_id) DO NOTHING
		RETURNING received_at`,
		m.ID, m.ClinicianID, m.Body, providerID).Scan(&m.ReceivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Duplicate("message " + m.ProviderMessageID + " already received")
	}
	if err != nil {
		return fmt.Errorf("record clinician message: %w", err)
	}
	return nil
}
