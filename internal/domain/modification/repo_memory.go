package modification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/triage/internal/platform/apperr"
)

type MemoryRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Session
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[uuid.UUID]*Session)}
}

func copySession(s *Session) *Session {
	cp := *s
	if s.Medications != nil {
		b := s.Medications.Clone()
		cp.Medications = &b
	}
	if s.Recommendations != nil {
		b := s.Recommendations.Clone()
		cp.Recommendations = &b
	}
	if s.Monitoring != nil {
		b := s.Monitoring.Clone()
		cp.Monitoring = &b
	}
	return &cp
}

func (m *MemoryRepo) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.items {
		if cur.ClinicianID == s.ClinicianID && cur.Status == StatusInProgress {
			return apperr.Duplicate("clinician already has a modification in progress")
		}
	}
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	m.items[s.ID] = copySession(s)
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("modification session")
	}
	return copySession(s), nil
}

func (m *MemoryRepo) ActiveForClinician(_ context.Context, clinicianID uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.items {
		if s.ClinicianID == clinicianID && s.Status == StatusInProgress {
			return copySession(s), nil
		}
	}
	return nil, apperr.NotFound("modification session")
}

func (m *MemoryRepo) Update(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[s.ID]
	if !ok {
		return apperr.NotFound("modification session")
	}
	if cur.Status != StatusInProgress {
		return apperr.Conflict("modification session is no longer in progress")
	}
	s.UpdatedAt = time.Now()
	m.items[s.ID] = copySession(s)
	return nil
}

// Backdate moves a session's creation time into the past.
func (m *MemoryRepo) Backdate(id uuid.UUID, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.items[id]; ok {
		s.CreatedAt = s.CreatedAt.Add(-d)
	}
}
