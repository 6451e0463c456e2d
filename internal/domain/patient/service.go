package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/triage/internal/platform/apperr"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetOrCreateByPhone returns the patient for a sender id, creating one with
// a zero credit balance on first contact.
func (s *Service) GetOrCreateByPhone(ctx context.Context, phone string) (*Patient, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, apperr.Input("phone is required")
	}
	p, err := s.repo.GetByPhone(ctx, phone)
	if err == nil {
		return p, nil
	}
	if !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, fmt.Errorf("lookup patient: %w", err)
	}
	p = &Patient{Phone: phone}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// AcceptTerms records the user agreement once; later calls keep the first
// timestamp.
func (s *Service) AcceptTerms(ctx context.Context, p *Patient) error {
	if p.TermsAcceptedAt != nil {
		return nil
	}
	now := time.Now().UTC()
	p.TermsAcceptedAt = &now
	return s.repo.Update(ctx, p)
}

// DeductCredit spends one consultation credit.
func (s *Service) DeductCredit(ctx context.Context, p *Patient) error {
	balance, err := s.repo.DeductCredit(ctx, p.ID)
	if err != nil {
		return err
	}
	p.Credits = balance
	return nil
}

func (s *Service) AddCredits(ctx context.Context, id uuid.UUID, n int) (int, error) {
	if n <= 0 {
		return 0, apperr.Inputf("credits must be positive, got %d", n)
	}
	return s.repo.AddCredits(ctx, id, n)
}
