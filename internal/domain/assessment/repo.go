package assessment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Assessment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error)
	GetBySession(ctx context.Context, sessionID uuid.UUID) (*Assessment, error)
	// UpdateStatus moves the assessment from one status to another and fails
	// with a Conflict if it is no longer in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to ReviewStatus) error
	MarkSent(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, status ReviewStatus, limit, offset int) ([]*Assessment, int, error)
}

type ReviewRepository interface {
	Create(ctx context.Context, r *Review) error
	// Latest returns the newest review with the given action, or any action
	// when action is empty.
	Latest(ctx context.Context, assessmentID uuid.UUID, action string) (*Review, error)
	ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]*Review, error)
}
