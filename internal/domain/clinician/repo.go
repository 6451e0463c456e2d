package clinician

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Clinician) error
	GetByID(ctx context.Context, id uuid.UUID) (*Clinician, error)
	GetByPhone(ctx context.Context, phone string) (*Clinician, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	List(ctx context.Context, limit, offset int) ([]*Clinician, int, error)
	// ListAssignable returns AVAILABLE and ON_CALL clinicians.
	ListAssignable(ctx context.Context) ([]*Clinician, error)
	// AdjustLoad adds delta to the active-patient count, never going below zero.
	AdjustLoad(ctx context.Context, id uuid.UUID, delta int) error
}

// MessageLog records console messages by provider message id.
type MessageLog interface {
	// Record fails with Duplicate when the provider message id was seen before.
	// Messages without an id are always recorded.
	Record(ctx context.Context, m *InboundMessage) error
}
