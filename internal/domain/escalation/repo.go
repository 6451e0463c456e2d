package escalation

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Alert) error
	GetByID(ctx context.Context, id uuid.UUID) (*Alert, error)
	// PendingForSession returns the PENDING alert for a session, or NotFound.
	PendingForSession(ctx context.Context, sessionID uuid.UUID) (*Alert, error)
	// Update writes status, severity and resolution fields. It fails with
	// Conflict when the stored status is no longer from.
	Update(ctx context.Context, a *Alert, from string) error
	List(ctx context.Context, status string, limit, offset int) ([]*Alert, int, error)
	// ListOpen returns PENDING and ACKNOWLEDGED alerts, oldest first.
	ListOpen(ctx context.Context) ([]*Alert, error)
}
