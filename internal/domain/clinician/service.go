package clinician

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/platform/apperr"
)

// BacklogDrainer assigns sessions that were waiting for a free clinician.
type BacklogDrainer interface {
	AssignBacklog(ctx context.Context) (int, error)
}

type Service struct {
	repo    Repository
	drainer BacklogDrainer
	logger  zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// SetDrainer installs the backlog drain run when a clinician becomes
// assignable. The conversation machine is built after this service, so it is
// wired in afterwards.
func (s *Service) SetDrainer(d BacklogDrainer) {
	s.drainer = d
}

func (s *Service) Create(ctx context.Context, c *Clinician) error {
	c.Phone = strings.TrimSpace(c.Phone)
	c.Name = strings.TrimSpace(c.Name)
	if c.Phone == "" {
		return apperr.Input("phone is required")
	}
	if c.Name == "" {
		return apperr.Input("name is required")
	}
	if c.Status == "" {
		c.Status = StatusOffline
	}
	c.Status = strings.ToUpper(c.Status)
	if !validStatuses[c.Status] {
		return apperr.Inputf("invalid status: %s", c.Status)
	}
	c.CurrentPatientCount = 0
	return s.repo.Create(ctx, c)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Clinician, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByPhone(ctx context.Context, phone string) (*Clinician, error) {
	return s.repo.GetByPhone(ctx, phone)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Clinician, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListAssignable(ctx context.Context) ([]*Clinician, error) {
	return s.repo.ListAssignable(ctx)
}

// SetStatus changes availability. When the clinician becomes assignable the
// waiting backlog is drained and the number of sessions assigned is returned.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status string) (int, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if !validStatuses[status] {
		return 0, apperr.Inputf("invalid status: %s", status)
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return 0, err
	}
	if s.drainer == nil || (status != StatusAvailable && status != StatusOnCall) {
		return 0, nil
	}
	n, err := s.drainer.AssignBacklog(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("clinician_id", id.String()).Msg("backlog drain failed")
		return n, nil
	}
	return n, nil
}

// Reserve picks the least-loaded assignable clinician and counts the new
// session against them. It returns nil when nobody is available.
func (s *Service) Reserve(ctx context.Context) (*Clinician, error) {
	candidates, err := s.repo.ListAssignable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list assignable clinicians: %w", err)
	}
	c := Select(candidates)
	if c == nil {
		return nil, nil
	}
	if err := s.repo.AdjustLoad(ctx, c.ID, 1); err != nil {
		return nil, fmt.Errorf("reserve clinician: %w", err)
	}
	c.CurrentPatientCount++
	return c, nil
}

// ReserveSpecific counts a manually assigned session against one clinician.
func (s *Service) ReserveSpecific(ctx context.Context, id uuid.UUID) (*Clinician, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.AdjustLoad(ctx, c.ID, 1); err != nil {
		return nil, fmt.Errorf("reserve clinician: %w", err)
	}
	c.CurrentPatientCount++
	return c, nil
}

// Release frees one active-patient slot.
func (s *Service) Release(ctx context.Context, id uuid.UUID) error {
	return s.repo.AdjustLoad(ctx, id, -1)
}
