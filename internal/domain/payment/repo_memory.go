package payment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/triage/internal/platform/apperr"
)

type MemoryRepo struct {
	mu    sync.Mutex
	items map[string]*Transaction
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[string]*Transaction)}
}

func (m *MemoryRepo) Create(_ context.Context, t *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[t.TxRef]; ok {
		return apperr.Duplicate("transaction reference " + t.TxRef + " already exists")
	}
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	cp := *t
	m.items[t.TxRef] = &cp
	return nil
}

func (m *MemoryRepo) GetByRef(_ context.Context, txRef string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.items[txRef]
	if !ok {
		return nil, apperr.NotFound("payment transaction")
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryRepo) Settle(_ context.Context, txRef string) (*Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.items[txRef]
	if !ok {
		return nil, false, apperr.NotFound("payment transaction")
	}
	settled := false
	if t.Status == StatusPending {
		now := time.Now()
		t.Status = StatusSettled
		t.SettledAt = &now
		settled = true
	}
	cp := *t
	return &cp, settled, nil
}
