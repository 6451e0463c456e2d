package payment

import "context"

type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	GetByRef(ctx context.Context, txRef string) (*Transaction, error)
	// Settle marks a PENDING transaction SETTLED. settled is false when it
	// was already settled; an unknown reference is NotFound.
	Settle(ctx context.Context, txRef string) (t *Transaction, settled bool, err error)
}
