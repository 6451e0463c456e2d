package finalizer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/triage/internal/platform/apperr"
)

type MemoryRepo struct {
	mu    sync.Mutex
	items map[string]*SendAttempt
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[string]*SendAttempt)}
}

func (m *MemoryRepo) Create(_ context.Context, a *SendAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.items {
		if cur.AssessmentID == a.AssessmentID && cur.ClinicianID == a.ClinicianID && cur.Status == AttemptPending {
			cur.Status = AttemptSuperseded
		}
	}
	a.CreatedAt = time.Now()
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *MemoryRepo) Pending(_ context.Context, assessmentID, clinicianID uuid.UUID) (*SendAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *SendAttempt
	for _, a := range m.items {
		if a.AssessmentID != assessmentID || a.ClinicianID != clinicianID || a.Status != AttemptPending {
			continue
		}
		if latest == nil || a.ID > latest.ID {
			latest = a
		}
	}
	if latest == nil {
		return nil, apperr.NotFound("send attempt")
	}
	cp := *latest
	return &cp, nil
}

func (m *MemoryRepo) Update(_ context.Context, a *SendAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[a.ID]
	if !ok {
		return apperr.NotFound("send attempt")
	}
	if cur.Status != AttemptPending {
		return apperr.Conflict("send attempt is no longer pending")
	}
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *MemoryRepo) ListByAssessment(_ context.Context, assessmentID uuid.UUID) ([]*SendAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*SendAttempt
	for _, a := range m.items {
		if a.AssessmentID == assessmentID {
			cp := *a
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}
