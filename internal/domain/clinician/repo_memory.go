package clinician

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
	items map[uuid.UUID]*Clinician
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[uuid.UUID]*Clinician)}
}

func (m *MemoryRepo) Create(_ context.Context, c *Clinician) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Clinician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("clinician")
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryRepo) GetByPhone(_ context.Context, phone string) (*Clinician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.items {
		if c.Phone == phone {
			cp := *c
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("clinician")
}

func (m *MemoryRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return apperr.NotFound("clinician")
	}
	c.Status = status
	return nil
}

func (m *MemoryRepo) List(_ context.Context, limit, offset int) ([]*Clinician, int, error) {
	all := m.sorted(func(*Clinician) bool { return true })
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

func (m *MemoryRepo) ListAssignable(_ context.Context) ([]*Clinician, error) {
	return m.sorted((*Clinician).Assignable), nil
}

func (m *MemoryRepo) AdjustLoad(_ context.Context, id uuid.UUID, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return apperr.NotFound("clinician")
	}
	c.CurrentPatientCount += delta
	if c.CurrentPatientCount < 0 {
		c.CurrentPatientCount = 0
	}
	return nil
}

func (m *MemoryRepo) sorted(keep func(*Clinician) bool) []*Clinician {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Clinician
	for _, c := range m.items {
		if keep(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// MemoryMessageLog is a map-backed MessageLog.
type MemoryMessageLog struct {
	mu   sync.Mutex
	seen map[string]bool
	msgs []InboundMessage
}

func NewMemoryMessageLog() *MemoryMessageLog {
	return &MemoryMessageLog{seen: make(map[string]bool)}
}

func (m *MemoryMessageLog) Record(_ context.Context, msg *InboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ProviderMessageID != "" {
		if m.seen[msg.ProviderMessageID] {
			return apperr.Duplicate("message " + msg.ProviderMessageID + " already received")
		}
		m.seen[msg.ProviderMessageID] = true
	}
	msg.ID = uuid.New()
	msg.ReceivedAt = time.Now()
	m.msgs = append(m.msgs, *msg)
	return nil
}

// Len returns how many messages were recorded.
func (m *MemoryMessageLog) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}
