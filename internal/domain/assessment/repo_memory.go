package assessment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/triage/internal/platform/apperr"
)

// MemoryRepo is a map-backed Repository used by tests across packages. It
// stores deep copies so callers cannot alias stored content.
type MemoryRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Assessment
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[uuid.UUID]*Assessment)}
}

func copyAssessment(a *Assessment) *Assessment {
	cp := *a
	cp.Symptoms.PrimarySymptoms = cloneStrings(a.Symptoms.PrimarySymptoms)
	cp.Observations.Differentials = cloneStrings(a.Observations.Differentials)
	cp.Recommendations = a.Recommendations.Clone()
	cp.Medications = a.Medications.Clone()
	cp.Monitoring = a.Monitoring.Clone()
	cp.RedFlags = cloneStrings(a.RedFlags)
	return &cp
}

func (m *MemoryRepo) Create(_ context.Context, a *Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.SessionID == a.SessionID {
			return apperr.Conflict("session already has an assessment")
		}
	}
	a.ID = uuid.New()
	if a.GeneratedAt.IsZero() {
		a.GeneratedAt = time.Now()
	}
	a.UpdatedAt = time.Now()
	m.items[a.ID] = copyAssessment(a)
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("assessment")
	}
	return copyAssessment(a), nil
}

func (m *MemoryRepo) GetBySession(_ context.Context, sessionID uuid.UUID) (*Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.items {
		if a.SessionID == sessionID {
			return copyAssessment(a), nil
		}
	}
	return nil, apperr.NotFound("assessment")
}

func (m *MemoryRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to ReviewStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return apperr.NotFound("assessment")
	}
	if a.Status != from {
		return apperr.Conflict(fmt.Sprintf("assessment is no longer %s", from))
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryRepo) MarkSent(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return apperr.NotFound("assessment")
	}
	if !a.Status.Sendable() {
		return apperr.Conflict("assessment is not approved for sending")
	}
	now := time.Now()
	a.Status = StatusSent
	a.SentAt = &now
	a.UpdatedAt = now
	return nil
}

// Backdate shifts GeneratedAt, for expiry tests.
func (m *MemoryRepo) Backdate(id uuid.UUID, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.items[id]; ok {
		a.GeneratedAt = a.GeneratedAt.Add(-d)
	}
}

func (m *MemoryRepo) List(_ context.Context, status ReviewStatus, limit, offset int) ([]*Assessment, int, error) {
	m.mu.Lock()
	var all []*Assessment
	for _, a := range m.items {
		if status == "" || a.Status == status {
			all = append(all, copyAssessment(a))
		}
	}
	m.mu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].GeneratedAt.After(all[j].GeneratedAt) })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// MemoryReviewRepo is a slice-backed ReviewRepository.
type MemoryReviewRepo struct {
	mu      sync.Mutex
	reviews []*Review
}

func NewMemoryReviewRepo() *MemoryReviewRepo {
	return &MemoryReviewRepo{}
}

func copyReview(r *Review) *Review {
	cp := *r
	if r.Medications != nil {
		b := r.Medications.Clone()
		cp.Medications = &b
	}
	if r.Recommendations != nil {
		b := r.Recommendations.Clone()
		cp.Recommendations = &b
	}
	if r.Monitoring != nil {
		b := r.Monitoring.Clone()
		cp.Monitoring = &b
	}
	return &cp
}

func (m *MemoryReviewRepo) Create(_ context.Context, r *Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	m.reviews = append(m.reviews, copyReview(r))
	return nil
}

func (m *MemoryReviewRepo) Latest(_ context.Context, assessmentID uuid.UUID, action string) (*Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.reviews) - 1; i >= 0; i-- {
		r := m.reviews[i]
		if r.AssessmentID == assessmentID && (action == "" || r.Action == action) {
			return copyReview(r), nil
		}
	}
	return nil, apperr.NotFound("review")
}

func (m *MemoryReviewRepo) ListByAssessment(_ context.Context, assessmentID uuid.UUID) ([]*Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Review
	for i := len(m.reviews) - 1; i >= 0; i-- {
		if m.reviews[i].AssessmentID == assessmentID {
			out = append(out, copyReview(m.reviews[i]))
		}
	}
	return out, nil
}
