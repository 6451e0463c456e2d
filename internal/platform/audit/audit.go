// Package audit records append-only audit entries for review-status changes,
// escalation-status changes and patient-facing dispatches.
package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Action types written by the domain packages.
const (
	ActionMessageReceived    = "MESSAGE_RECEIVED"
	ActionEscalationRaised   = "ESCALATION_RAISED"
	ActionEscalationAcked    = "ESCALATION_ACKNOWLEDGED"
	ActionEscalationHandled  = "ESCALATION_HANDLED"
	ActionAssessmentCreated  = "ASSESSMENT_CREATED"
	ActionAssessmentQueued   = "ASSESSMENT_QUEUED"
	ActionAssessmentApproved = "ASSESSMENT_APPROVED"
	ActionAssessmentRejected = "ASSESSMENT_REJECTED"
	ActionAssessmentModified = "ASSESSMENT_MODIFIED"
	ActionAssessmentExpired  = "ASSESSMENT_EXPIRED"
	ActionAssessmentSent     = "ASSESSMENT_SENT"
	ActionSendOverride       = "SEND_OVERRIDE"
	ActionClinicianAssigned  = "CLINICIAN_ASSIGNED"
	ActionPaymentSettled     = "PAYMENT_SETTLED"
	ActionSessionClosed      = "SESSION_CLOSED"
)

// Entry is a single audit record.
type Entry struct {
	Actor        string    `json:"actor"`
	ActionType   string    `json:"action_type"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Description  string    `json:"description"`
	Timestamp    time.Time `json:"timestamp"`
}

// Sink persists audit entries.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Entry) error

func (f SinkFunc) Record(ctx context.Context, e Entry) error {
	return f(ctx, e)
}

// New fills the timestamp of an entry.
func New(actor, action, resourceType, resourceID, description string) Entry {
	return Entry{
		Actor:        actor,
		ActionType:   action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Description:  description,
		Timestamp:    time.Now().UTC(),
	}
}

// LogSink writes entries as structured log lines.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(_ context.Context, e Entry) error {
	s.logger.Info().
		Str("type", "audit").
		Str("actor", e.Actor).
		Str("action_type", e.ActionType).
		Str("resource_type", e.ResourceType).
		Str("resource_id", e.ResourceID).
		Str("description", e.Description).
		Time("at", e.Timestamp).
		Msg("audit")
	return nil
}

// Multi fans an entry out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Record(ctx context.Context, e Entry) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Memory keeps entries in memory. Used by tests and the offline CLI.
type Memory struct {
	mu      sync.Mutex
	Entries []Entry
}

func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, e)
	return nil
}

// Count returns how many recorded entries carry action.
func (m *Memory) Count(action string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Entries {
		if e.ActionType == action {
			n++
		}
	}
	return n
}
