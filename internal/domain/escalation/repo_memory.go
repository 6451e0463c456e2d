package escalation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/triage/internal/platform/apperr"
)

// MemoryRepo is a map-backed Repository used by tests across packages.
type MemoryRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Alert
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[uuid.UUID]*Alert)}
}

func (m *MemoryRepo) Create(_ context.Context, a *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.RaisedAt = time.Now()
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("escalation")
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryRepo) PendingForSession(_ context.Context, sessionID uuid.UUID) (*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.sorted() {
		if a.SessionID == sessionID && a.Status == StatusPending {
			cp := *a
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("escalation")
}

func (m *MemoryRepo) Update(_ context.Context, a *Alert, from string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[a.ID]
	if !ok {
		return apperr.NotFound("escalation")
	}
	if cur.Status != from {
		return apperr.Conflict("escalation was already updated")
	}
	cp := *a
	cp.RaisedAt = cur.RaisedAt
	m.items[a.ID] = &cp
	return nil
}

func (m *MemoryRepo) List(_ context.Context, status string, limit, offset int) ([]*Alert, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*Alert
	all := m.sorted()
	for i := len(all) - 1; i >= 0; i-- {
		if status == "" || all[i].Status == status {
			cp := *all[i]
			matched = append(matched, &cp)
		}
	}
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *MemoryRepo) ListOpen(_ context.Context) ([]*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Alert
	for _, a := range m.sorted() {
		if a.Open() {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// sorted returns alerts oldest first. Callers hold mu.
func (m *MemoryRepo) sorted() []*Alert {
	out := make([]*Alert, 0, len(m.items))
	for _, a := range m.items {
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RaisedAt.Equal(out[j].RaisedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].RaisedAt.Before(out[j].RaisedAt)
	})
	return out
}
