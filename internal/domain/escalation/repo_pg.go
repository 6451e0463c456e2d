package escalation

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

type alertRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &alertRepoPG{pool: pool}
}

const alertCols = `id, session_id, patient_id, clinician_id, severity, status, trigger_text, message,
	raised_at, acknowledged_at, handled_at, handled_by, resolution_notes`

func (r *alertRepoPG) scanAlert(row pgx.Row) (*Alert, error) {
	var a Alert
	err := row.Scan(&a.ID, &a.SessionID, &a.PatientID, &a.ClinicianID, &a.Severity, &a.Status,
		&a.TriggerText, &a.Message, &a.RaisedAt, &a.AcknowledgedAt, &a.HandledAt, &a.HandledBy,
		&a.ResolutionNotes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("escalation")
	}
	return &a, err
}

func (r *alertRepoPG) Create(ctx context.Context, a *Alert) error {
	a.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO escalation_alert (id, session_id, patient_id, clinician_id, severity, status, trigger_text, message)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING raised_at`,
		a.ID, a.SessionID, a.PatientID, a.ClinicianID, a.Severity, a.Status, a.TriggerText, a.Message,
	).Scan(&a.RaisedAt)
}

func (r *alertRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	return r.scanAlert(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+alertCols+` FROM escalation_alert WHERE id = $1`, id))
}

func (r *alertRepoPG) PendingForSession(ctx context.Context, sessionID uuid.UUID) (*Alert, error) {
	return r.scanAlert(db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+alertCols+` FROM escalation_alert
		WHERE session_id = $1 AND status = 'PENDING'
		ORDER BY raised_at DESC LIMIT 1`, sessionID))
}

func (r *alertRepoPG) Update(ctx context.Context, a *Alert, from string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE escalation_alert
		SET status=$3, severity=$4, clinician_id=$5, acknowledged_at=$6, handled_at=$7, handled_by=$8, resolution_notes=$9
		WHERE id = $1 AND status = $2`,
		a.ID, from, a.Status, a.Severity, a.ClinicianID, a.AcknowledgedAt, a.HandledAt, a.HandledBy, a.ResolutionNotes)
	if err != nil {
		return fmt.Errorf("update escalation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("escalation was already updated")
	}
	return nil
}

func (r *alertRepoPG) List(ctx context.Context, status string, limit, offset int) ([]*Alert, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM escalation_alert WHERE ($1 = '' OR status = $1)`, status).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `
		SELECT `+alertCols+` FROM escalation_alert
		WHERE ($1 = '' OR status = $1)
		ORDER BY raised_at DESC LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := r.collect(rows)
	return items, total, err
}

func (r *alertRepoPG) ListOpen(ctx context.Context) ([]*Alert, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+alertCols+` FROM escalation_alert
		WHERE status IN ('PENDING', 'ACKNOWLEDGED')
		ORDER BY raised_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *alertRepoPG) collect(rows pgx.Rows) ([]*Alert, error) {
	var items []*Alert
	for rows.Next() {
		a, err := r.scanAlert(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
