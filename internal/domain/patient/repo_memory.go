package patient

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/triage/internal/platform/apperr"
)

// MemoryRepo is a map-backed Repository used by tests across packages.
type MemoryRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Patient
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[uuid.UUID]*Patient)}
}

func (m *MemoryRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("patient")
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryRepo) GetByPhone(_ context.Context, phone string) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.items {
		if p.Phone == phone {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("patient")
}

func (m *MemoryRepo) Update(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[p.ID]
	if !ok {
		return apperr.NotFound("patient")
	}
	cur.Name = p.Name
	cur.TermsAcceptedAt = p.TermsAcceptedAt
	cur.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryRepo) DeductCredit(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return 0, apperr.NotFound("patient")
	}
	if p.Credits <= 0 {
		return 0, apperr.Conflict("no consultation credits")
	}
	p.Credits--
	return p.Credits, nil
}

func (m *MemoryRepo) AddCredits(_ context.Context, id uuid.UUID, n int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return 0, apperr.NotFound("patient")
	}
	p.Credits += n
	return p.Credits, nil
}
