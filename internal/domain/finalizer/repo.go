package finalizer

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create stores a new PENDING attempt and supersedes any earlier pending
	// attempt by the same clinician for the same assessment.
	Create(ctx context.Context, a *SendAttempt) error
	// Pending returns the clinician's open attempt, or NotFound.
	Pending(ctx context.Context, assessmentID, clinicianID uuid.UUID) (*SendAttempt, error)
	// Update saves the outcome fields. It fails with Conflict when the stored
	// attempt is no longer PENDING.
	Update(ctx context.Context, a *SendAttempt) error
	ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]*SendAttempt, error)
}
