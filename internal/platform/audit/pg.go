package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/triage/internal/platform/db"
)

// PGSink appends to the audit_log table. It joins the ambient transaction so an
// audit row commits or rolls back with the change it describes.
type PGSink struct {
	pool *pgxpool.Pool
}

func NewPGSink(pool *pgxpool.Pool) *PGSink {
	return &PGSink{pool: pool}
}

func (s *PGSink) Record(ctx context.Context, e Entry) error {
	_, err := db.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO audit_log (id, actor, action_type, resource_type, resource_id, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		uuid.New(), e.Actor, e.ActionType, e.ResourceType, e.ResourceID, e.Description, e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
