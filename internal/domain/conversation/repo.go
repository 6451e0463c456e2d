package conversation

import (
	"context"

	"github.com/google/uuid"
)

type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	// ActiveForPatient returns the single non-CLOSED session, or NotFound.
	ActiveForPatient(ctx context.Context, patientID uuid.UUID) (*Session, error)
	Update(ctx context.Context, s *Session) error
	// ListUnassigned returns sessions waiting for a clinician, oldest first.
	ListUnassigned(ctx context.Context) ([]*Session, error)
	// ListByClinician returns the clinician's non-CLOSED sessions, newest first.
	ListByClinician(ctx context.Context, clinicianID uuid.UUID) ([]*Session, error)
	List(ctx context.Context, state State, limit, offset int) ([]*Session, int, error)
}

type ExchangeRepository interface {
	// Create fails with Duplicate when the order index is already taken.
	Create(ctx context.Context, e *Exchange) error
	// Answer records a response once. A second answer is a Duplicate.
	Answer(ctx context.Context, id uuid.UUID, response string) error
	// Pending returns the lowest unanswered exchange, or NotFound.
	Pending(ctx context.Context, sessionID uuid.UUID) (*Exchange, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Exchange, error)
}

type MessageRepository interface {
	// Create fails with Duplicate when the provider message id was seen before.
	Create(ctx context.Context, m *Message) error
	// ListBySession returns up to limit of the newest messages, oldest first.
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*Message, error)
}
