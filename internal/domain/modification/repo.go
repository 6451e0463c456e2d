package modification

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create fails with Duplicate when the clinician already has an
	// IN_PROGRESS session.
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	// ActiveForClinician returns the IN_PROGRESS session, or NotFound.
	ActiveForClinician(ctx context.Context, clinicianID uuid.UUID) (*Session, error)
	// Update saves step, blocks, notes and status. It fails with Conflict
	// when the stored session is no longer IN_PROGRESS.
	Update(ctx context.Context, s *Session) error
}
