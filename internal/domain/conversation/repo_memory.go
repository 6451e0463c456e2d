package conversation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/triage/internal/platform/apperr"
)

// MemoryStore backs all three repositories with maps. Tests in other
// packages use it to drive the machine without Postgres.
type MemoryStore struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*Session
	exchanges map[uuid.UUID][]*Exchange
	messages  []*Message
	seen      map[string]bool
	seq       int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[uuid.UUID]*Session),
		exchanges: make(map[uuid.UUID][]*Exchange),
		seen:      make(map[string]bool),
	}
}

func (m *MemoryStore) Sessions() SessionRepository   { return memSessions{m} }
func (m *MemoryStore) Exchanges() ExchangeRepository { return memExchanges{m} }
func (m *MemoryStore) Messages() MessageRepository   { return memMessages{m} }

// tick keeps CreatedAt strictly increasing so oldest-first ordering is stable.
func (m *MemoryStore) tick() time.Time {
	m.seq++
	return time.Now().Add(time.Duration(m.seq) * time.Microsecond)
}

type memSessions struct{ m *MemoryStore }

func (r memSessions) Create(_ context.Context, s *Session) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, cur := range r.m.sessions {
		if cur.PatientID == s.PatientID && cur.State != StateClosed {
			return apperr.Duplicate("patient already has an active session")
		}
	}
	s.ID = uuid.New()
	s.CreatedAt = r.m.tick()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	r.m.sessions[s.ID] = &cp
	return nil
}

func (r memSessions) GetByID(_ context.Context, id uuid.UUID) (*Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok {
		return nil, apperr.NotFound("session")
	}
	cp := *s
	return &cp, nil
}

func (r memSessions) ActiveForPatient(_ context.Context, patientID uuid.UUID) (*Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, s := range r.m.sessions {
		if s.PatientID == patientID && s.State != StateClosed {
			cp := *s
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("session")
}

func (r memSessions) Update(_ context.Context, s *Session) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.sessions[s.ID]; !ok {
		return apperr.NotFound("session")
	}
	s.UpdatedAt = r.m.tick()
	cp := *s
	r.m.sessions[s.ID] = &cp
	return nil
}

func (r memSessions) ListUnassigned(context.Context) ([]*Session, error) {
	return r.filter(func(s *Session) bool {
		return s.ClinicianID == nil && (s.State == StatePendingClinicianReview || s.State == StateEscalated)
	}, true), nil
}

func (r memSessions) ListByClinician(_ context.Context, clinicianID uuid.UUID) ([]*Session, error) {
	items := r.filter(func(s *Session) bool {
		return s.AssignedTo(clinicianID) && s.State != StateClosed
	}, false)
	sort.Slice(items, func(i, j int) bool { return items[i].UpdatedAt.After(items[j].UpdatedAt) })
	return items, nil
}

func (r memSessions) List(_ context.Context, state State, limit, offset int) ([]*Session, int, error) {
	items := r.filter(func(s *Session) bool { return state == "" || s.State == state }, false)
	total := len(items)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return items[offset:end], total, nil
}

func (r memSessions) filter(keep func(*Session) bool, oldestFirst bool) []*Session {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var items []*Session
	for _, s := range r.m.sessions {
		if keep(s) {
			cp := *s
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if oldestFirst {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items
}

type memExchanges struct{ m *MemoryStore }

func (r memExchanges) Create(_ context.Context, e *Exchange) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, cur := range r.m.exchanges[e.SessionID] {
		if cur.OrderIndex == e.OrderIndex {
			return apperr.Duplicate(fmt.Sprintf("question %d already asked", e.OrderIndex))
		}
	}
	e.ID = uuid.New()
	e.AskedAt = r.m.tick()
	cp := *e
	r.m.exchanges[e.SessionID] = append(r.m.exchanges[e.SessionID], &cp)
	return nil
}

func (r memExchanges) Answer(_ context.Context, id uuid.UUID, response string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, list := range r.m.exchanges {
		for _, e := range list {
			if e.ID != id {
				continue
			}
			if e.Response != nil {
				return apperr.Duplicate("question already answered")
			}
			now := time.Now()
			resp := response
			e.Response = &resp
			e.AnsweredAt = &now
			return nil
		}
	}
	return apperr.NotFound("triage exchange")
}

func (r memExchanges) Pending(_ context.Context, sessionID uuid.UUID) (*Exchange, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var found *Exchange
	for _, e := range r.m.exchanges[sessionID] {
		if e.Response == nil && (found == nil || e.OrderIndex < found.OrderIndex) {
			found = e
		}
	}
	if found == nil {
		return nil, apperr.NotFound("triage exchange")
	}
	cp := *found
	return &cp, nil
}

func (r memExchanges) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*Exchange, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	items := make([]*Exchange, 0, len(r.m.exchanges[sessionID]))
	for _, e := range r.m.exchanges[sessionID] {
		cp := *e
		items = append(items, &cp)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].OrderIndex < items[j].OrderIndex })
	return items, nil
}

type memMessages struct{ m *MemoryStore }

func (r memMessages) Create(_ context.Context, msg *Message) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if msg.ProviderMessageID != "" {
		if r.m.seen[msg.ProviderMessageID] {
			return apperr.Duplicate("message " + msg.ProviderMessageID + " already received")
		}
		r.m.seen[msg.ProviderMessageID] = true
	}
	msg.ID = uuid.New()
	msg.CreatedAt = r.m.tick()
	cp := *msg
	r.m.messages = append(r.m.messages, &cp)
	return nil
}

func (r memMessages) ListBySession(_ context.Context, sessionID uuid.UUID, limit int) ([]*Message, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var items []*Message
	for _, msg := range r.m.messages {
		if msg.SessionID == sessionID {
			cp := *msg
			items = append(items, &cp)
		}
	}
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	return items, nil
}
