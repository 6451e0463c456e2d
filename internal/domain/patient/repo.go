package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByPhone(ctx context.Context, phone string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	// DeductCredit removes one credit and returns the new balance. It fails
	// with a Conflict when the balance is already zero.
	DeductCredit(ctx context.Context, id uuid.UUID) (int, error)
	AddCredits(ctx context.Context, id uuid.UUID, n int) (int, error)
}
