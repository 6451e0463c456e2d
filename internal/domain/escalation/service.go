package escalation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/domain/clinician"
	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/audit"
	"github.com/ehr/triage/internal/platform/db"
	"github.com/ehr/triage/internal/platform/metrics"
	"github.com/ehr/triage/internal/platform/notification"
	"github.com/ehr/triage/internal/platform/websocket"
)

// Directory resolves which clinicians hear about an alert.
type Directory interface {
	Get(ctx context.Context, id uuid.UUID) (*clinician.Clinician, error)
	ListAssignable(ctx context.Context) ([]*clinician.Clinician, error)
}

// RaiseInput describes a new alert. With no ClinicianID every assignable
// clinician is notified.
type RaiseInput struct {
	SessionID   uuid.UUID
	PatientID   uuid.UUID
	ClinicianID *uuid.UUID
	Severity    string
	Trigger     string
	Message     string
}

type Service struct {
	repo       Repository
	clinicians Directory
	notifier   *notification.Notifier
	tx         db.Transactor
	audit      audit.Sink
	events     websocket.EventPublisher
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(repo Repository, clinicians Directory, notifier *notification.Notifier, tx db.Transactor,
	sink audit.Sink, events websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		clinicians: clinicians,
		notifier:   notifier,
		tx:         tx,
		audit:      sink,
		events:     events,
		logger:     logger,
		now:        time.Now,
	}
}

// Raise creates an alert for a session. While a PENDING alert exists for the
// session no second one is created; a more severe trigger upgrades the
// pending alert in place. The bool reports whether a new alert was created.
func (s *Service) Raise(ctx context.Context, in RaiseInput) (*Alert, bool, error) {
	in.Severity = strings.ToUpper(in.Severity)
	if _, ok := severityRank[in.Severity]; !ok {
		return nil, false, apperr.Inputf("invalid severity: %s", in.Severity)
	}
	if in.SessionID == uuid.Nil || in.PatientID == uuid.Nil {
		return nil, false, apperr.Input("escalation needs a session and a patient")
	}

	existing, err := s.repo.PendingForSession(ctx, in.SessionID)
	switch {
	case err == nil:
		return s.upgrade(ctx, existing, in)
	case !apperr.IsKind(err, apperr.KindNotFound):
		return nil, false, fmt.Errorf("find pending escalation: %w", err)
	}

	a := &Alert{
		SessionID:   in.SessionID,
		PatientID:   in.PatientID,
		ClinicianID: in.ClinicianID,
		Severity:    in.Severity,
		Status:      StatusPending,
		TriggerText: in.Trigger,
		Message:     in.Message,
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, a); err != nil {
			return fmt.Errorf("create escalation: %w", err)
		}
		return s.record(ctx, "system", audit.ActionEscalationRaised, a,
			fmt.Sprintf("%s escalation: %s", a.Severity, a.TriggerText))
	})
	if err != nil {
		return nil, false, err
	}

	metrics.RecordEscalation(a.Severity)
	s.logger.Warn().
		Str("alert_id", a.ID.String()).
		Str("session_id", a.SessionID.String()).
		Str("severity", a.Severity).
		Str("trigger", a.TriggerText).
		Msg("escalation raised")
	s.publish(ctx, websocket.EventEscalationRaised, a)
	s.notify(ctx, a)
	return a, true, nil
}

func (s *Service) upgrade(ctx context.Context, a *Alert, in RaiseInput) (*Alert, bool, error) {
	if severityRank[in.Severity] <= severityRank[a.Severity] {
		return a, false, nil
	}
	a.Severity = in.Severity
	a.TriggerText = in.Trigger
	if in.ClinicianID != nil {
		a.ClinicianID = in.ClinicianID
	}
	if err := s.repo.Update(ctx, a, StatusPending); err != nil {
		return nil, false, err
	}
	metrics.RecordEscalation(a.Severity)
	s.publish(ctx, websocket.EventEscalationUpdated, a)
	s.notify(ctx, a)
	return a, false, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Alert, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*Alert, int, error) {
	return s.repo.List(ctx, strings.ToUpper(status), limit, offset)
}

func (s *Service) ListOpen(ctx context.Context) ([]*Alert, error) {
	return s.repo.ListOpen(ctx)
}

// Acknowledge moves a PENDING alert to ACKNOWLEDGED.
func (s *Service) Acknowledge(ctx context.Context, id, clinicianID uuid.UUID) (*Alert, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusPending {
		return nil, apperr.Conflict(fmt.Sprintf("escalation is already %s", strings.ToLower(a.Status)))
	}
	now := s.now().UTC()
	a.Status = StatusAcknowledged
	a.AcknowledgedAt = &now
	if a.ClinicianID == nil {
		a.ClinicianID = &clinicianID
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, a, StatusPending); err != nil {
			return err
		}
		return s.record(ctx, "clinician:"+clinicianID.String(), audit.ActionEscalationAcked, a, "acknowledged")
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, websocket.EventEscalationUpdated, a)
	return a, nil
}

// Handle closes an open alert with resolution notes.
func (s *Service) Handle(ctx context.Context, id, clinicianID uuid.UUID, notes string) (*Alert, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Open() {
		return nil, apperr.Conflict("escalation is already handled")
	}
	from := a.Status
	broadcast := a.ClinicianID == nil
	now := s.now().UTC()
	if a.AcknowledgedAt == nil {
		a.AcknowledgedAt = &now
	}
	a.Status = StatusHandled
	a.HandledAt = &now
	a.HandledBy = &clinicianID
	a.ResolutionNotes = strings.TrimSpace(notes)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, a, from); err != nil {
			return err
		}
		return s.record(ctx, "clinician:"+clinicianID.String(), audit.ActionEscalationHandled, a, a.ResolutionNotes)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, websocket.EventEscalationUpdated, a)
	if broadcast {
		s.notifyHandled(ctx, a, clinicianID)
	}
	return a, nil
}

func (s *Service) recipients(ctx context.Context, a *Alert) []*clinician.Clinician {
	if a.ClinicianID != nil {
		c, err := s.clinicians.Get(ctx, *a.ClinicianID)
		if err == nil {
			return []*clinician.Clinician{c}
		}
		s.logger.Warn().Err(err).Str("alert_id", a.ID.String()).Msg("escalation clinician lookup failed")
	}
	cs, err := s.clinicians.ListAssignable(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("list clinicians for escalation")
		return nil
	}
	return cs
}

func (s *Service) notify(ctx context.Context, a *Alert) {
	if s.notifier == nil {
		return
	}
	var phones []string
	for _, c := range s.recipients(ctx, a) {
		phones = append(phones, c.Phone)
	}
	if len(phones) == 0 {
		s.logger.Warn().Str("alert_id", a.ID.String()).Msg("no clinician available for escalation")
		return
	}
	s.notifier.NotifyAll(ctx, notification.TemplateEscalation, map[string]string{
		"severity":    a.Severity,
		"session_ref": a.SessionID.String()[:8],
		"trigger":     a.TriggerText,
		"alert_ref":   a.Ref(),
	}, phones)
}

func (s *Service) notifyHandled(ctx context.Context, a *Alert, by uuid.UUID) {
	if s.notifier == nil {
		return
	}
	handler, err := s.clinicians.Get(ctx, by)
	if err != nil {
		return
	}
	cs, err := s.clinicians.ListAssignable(ctx)
	if err != nil {
		return
	}
	var phones []string
	for _, c := range cs {
		if c.ID != by {
			phones = append(phones, c.Phone)
		}
	}
	s.notifier.NotifyAll(ctx, notification.TemplateEscalationDone, map[string]string{
		"alert_ref": a.Ref(),
		"clinician": handler.Name,
	}, phones)
}

func (s *Service) record(ctx context.Context, actor, action string, a *Alert, desc string) error {
	if s.audit == nil {
		return nil
	}
	if err := s.audit.Record(ctx, audit.New(actor, action, "EscalationAlert", a.ID.String(), desc)); err != nil {
		return fmt.Errorf("audit %s: %w", action, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType string, a *Alert) {
	if s.events == nil {
		return
	}
	ev := websocket.NewEvent(eventType, websocket.TopicEscalations, "EscalationAlert", a.ID.String(), a)
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("publish failed")
	}
	if a.ClinicianID != nil {
		ev.Topic = websocket.ClinicianTopic(a.ClinicianID.String())
		_ = s.events.Publish(ctx, ev)
	}
}
