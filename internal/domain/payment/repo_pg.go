package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/db"
)

type txRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &txRepoPG{pool: pool}
}

const txCols = `id, tx_ref, patient_id, session_id, package_code, credits, amount_minor, currency,
	status, created_at, settled_at`

func (r *txRepoPG) scanTx(row pgx.Row) (*Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.TxRef, &t.PatientID, &t.SessionID, &t.PackageCode, &t.Credits,
		&t.AmountMinor, &t.Currency, &t.Status, &t.CreatedAt, &t.SettledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("payment transaction")
	}
	return &t, err
}

func (r *txRepoPG) Create(ctx context.Context, t *Transaction) error {
	t.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO payment_transaction (id, tx_ref, patient_id, session_id, package_code, credits,
			amount_minor, currency, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at`,
		t.ID, t.TxRef, t.PatientID, t.SessionID, t.PackageCode, t.Credits,
		t.AmountMinor, t.Currency, t.Status).Scan(&t.CreatedAt)
}

func (r *txRepoPG) GetByRef(ctx context.Context, txRef string) (*Transaction, error) {
	return r.scanTx(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+txCols+` FROM payment_transaction WHERE tx_ref = $1`, txRef))
}

func (r *txRepoPG) Settle(ctx context.Context, txRef string) (*Transaction, bool, error) {
	t, err := r.scanTx(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE payment_transaction SET status = 'SETTLED', settled_at = NOW()
		WHERE tx_ref = $1 AND status = 'PENDING'
		RETURNING `+txCols, txRef))
	if err == nil {
		return t, true, nil
	}
	if !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, false, err
	}
	t, err = r.GetByRef(ctx, txRef)
	if err != nil {
		return nil, false, err
	}
	return t, false, nil
}
