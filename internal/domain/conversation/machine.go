package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/domain/assessment"
	"github.com/ehr/triage/internal/domain/clinician"
	"github.com/ehr/triage/internal/domain/escalation"
	"github.com/ehr/triage/internal/domain/patient"
	"github.com/ehr/triage/internal/domain/redflag"
	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/audit"
	"github.com/ehr/triage/internal/platform/db"
	"github.com/ehr/triage/internal/platform/llm"
	"github.com/ehr/triage/internal/platform/lock"
	"github.com/ehr/triage/internal/platform/messaging"
	"github.com/ehr/triage/internal/platform/metrics"
	"github.com/ehr/triage/internal/platform/notification"
	"github.com/ehr/triage/internal/platform/websocket"
)

// Generator is the text-generation capability used during triage.
type Generator interface {
	NextQuestion(ctx context.Context, pc llm.PromptContext) (string, error)
	Assessment(ctx context.Context, pc llm.PromptContext) (string, error)
	Reply(ctx context.Context, pc llm.PromptContext) (string, error)
}

// PaymentGate sells consultation credits to a patient parked in
// PENDING_PAYMENT.
type PaymentGate interface {
	Menu(ctx context.Context) (string, error)
	// Checkout starts a purchase of the numbered package and returns the
	// patient-facing text carrying the payment link. An unknown choice is an
	// Input error.
	Checkout(ctx context.Context, p *patient.Patient, sessionID uuid.UUID, choice string) (string, error)
}

// Deps are the collaborators a Machine drives.
type Deps struct {
	Sessions    SessionRepository
	Exchanges   ExchangeRepository
	Messages    MessageRepository
	Patients    *patient.Service
	Clinicians  *clinician.Service
	Assessments *assessment.Service
	Escalations *escalation.Service
	Generator   Generator
	Channel     messaging.Channel
	Notifier    *notification.Notifier
	Locker      lock.Locker
	Tx          db.Transactor
	Audit       audit.Sink
	Events      websocket.EventPublisher
	Logger      zerolog.Logger
}

type MachineConfig struct {
	MaxQuestions     int
	GeneratorTimeout time.Duration
	HistoryLimit     int
}

// turn is one inbound patient message being handled under the patient lock.
type turn struct {
	patient   *patient.Patient
	session   *Session
	text      string
	messageID string
}

type stepFunc func(ctx context.Context, t *turn) error

// Machine routes patient messages through the conversation states. One
// handler runs per state; the handler table is fixed at construction.
type Machine struct {
	sessions    SessionRepository
	exchanges   ExchangeRepository
	messages    MessageRepository
	patients    *patient.Service
	clinicians  *clinician.Service
	assessments *assessment.Service
	escalations *escalation.Service
	generator   Generator
	payments    PaymentGate
	channel     messaging.Channel
	notifier    *notification.Notifier
	locker      lock.Locker
	tx          db.Transactor
	audit       audit.Sink
	events      websocket.EventPublisher
	logger      zerolog.Logger
	cfg         MachineConfig
	steps       map[State]stepFunc
	now         func() time.Time
}

func NewMachine(d Deps, cfg MachineConfig) *Machine {
	if cfg.MaxQuestions <= 0 {
		cfg.MaxQuestions = 5
	}
	if cfg.GeneratorTimeout <= 0 {
		cfg.GeneratorTimeout = 20 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if d.Tx == nil {
		d.Tx = db.NoopTransactor{}
	}
	if d.Locker == nil {
		d.Locker = lock.NewKeyedMutex()
	}
	m := &Machine{
		sessions:    d.Sessions,
		exchanges:   d.Exchanges,
		messages:    d.Messages,
		patients:    d.Patients,
		clinicians:  d.Clinicians,
		assessments: d.Assessments,
		escalations: d.Escalations,
		generator:   d.Generator,
		channel:     d.Channel,
		notifier:    d.Notifier,
		locker:      d.Locker,
		tx:          d.Tx,
		audit:       d.Audit,
		events:      d.Events,
		logger:      d.Logger,
		cfg:         cfg,
		now:         time.Now,
	}
	m.steps = map[State]stepFunc{
		StateInitial:                m.onInitial,
		StateAwaitingAcceptance:     m.onAcceptance,
		StateModeSelection:          m.onModeSelection,
		StateAIOnlyActive:           m.onAIOnly,
		StateEscalationConsent:      m.onConsent,
		StateAwaitingProfile:        m.onProfile,
		StateTriageInProgress:       m.onTriage,
		StatePendingPayment:         m.onPendingPayment,
		StatePendingClinicianReview: m.onForward,
		StateDirectMessaging:        m.onForward,
		StateEscalated:              m.onForward,
	}
	return m
}

// SetPaymentGate installs the credit shop. The payment service resumes
// sessions through the machine, so it is built afterwards and wired here.
func (m *Machine) SetPaymentGate(g PaymentGate) {
	m.payments = g
}

// HandleInbound processes one patient message. The patient lock is held from
// the first read to the last write. A re-delivered provider message id is
// ignored. Unexpected failures are reported to the patient as a fallback text
// and returned for logging.
func (m *Machine) HandleInbound(ctx context.Context, in messaging.Inbound) error {
	p, err := m.patients.GetOrCreateByPhone(ctx, in.SenderID)
	if err != nil {
		return fmt.Errorf("resolve patient: %w", err)
	}
	unlock, err := m.locker.Lock(ctx, lock.PatientKey(p.ID.String()))
	if err != nil {
		return fmt.Errorf("lock patient: %w", err)
	}
	defer unlock()

	if p, err = m.patients.Get(ctx, p.ID); err != nil {
		return err
	}
	s, err := m.activeSession(ctx, p)
	if err != nil {
		return err
	}

	text := strings.TrimSpace(in.Text)
	err = m.messages.Create(ctx, &Message{
		SessionID:         s.ID,
		Direction:         DirectionIn,
		SenderRole:        RolePatient,
		Body:              text,
		MediaRef:          in.MediaRef,
		ProviderMessageID: in.MessageID,
	})
	if apperr.IsKind(err, apperr.KindDuplicate) {
		metrics.RecordDuplicate()
		m.logger.Info().Str("session_id", s.ID.String()).Str("message_id", in.MessageID).Msg("duplicate inbound ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("record inbound: %w", err)
	}
	m.record(ctx, "patient:"+p.ID.String(), audit.ActionMessageReceived, s.ID, truncate(text, 100))

	t := &turn{patient: p, session: s, text: text, messageID: in.MessageID}
	if err := m.route(ctx, t); err != nil {
		if apperr.IsKind(err, apperr.KindDuplicate) {
			metrics.RecordDuplicate()
			return nil
		}
		m.logger.Error().Err(err).
			Str("session_id", s.ID.String()).
			Str("state", string(s.State)).
			Msg("inbound handling failed")
		m.sendTo(ctx, s.ID, p.Phone, RoleSystem, fallbackText)
		return err
	}
	return nil
}

func (m *Machine) activeSession(ctx context.Context, p *patient.Patient) (*Session, error) {
	s, err := m.sessions.ActiveForPatient(ctx, p.ID)
	if err == nil {
		return s, nil
	}
	if !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, fmt.Errorf("find active session: %w", err)
	}
	s = &Session{PatientID: p.ID, State: StateInitial, Mode: ModeUnset}
	if err := m.sessions.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	m.logger.Info().Str("session_id", s.ID.String()).Str("patient_id", p.ID.String()).Msg("session opened")
	return s, nil
}

func (m *Machine) route(ctx context.Context, t *turn) error {
	if handled, err := m.interrupt(ctx, t); handled || err != nil {
		return err
	}
	step, ok := m.steps[t.session.State]
	if !ok {
		return fmt.Errorf("no handler for state %s", t.session.State)
	}
	return step(ctx, t)
}

// interrupt applies the red-flag and human-request edges ahead of the state
// handler. It reports whether the message was consumed.
func (m *Machine) interrupt(ctx context.Context, t *turn) (bool, error) {
	s := t.session
	if hit, trigger := redflag.Detect(t.text); hit {
		return true, m.onRedFlag(ctx, t, trigger)
	}
	if !redflag.RequestsHuman(t.text) {
		return false, nil
	}
	switch {
	case s.State == StateEscalationConsent || s.State.HumanInLoop():
		return false, nil
	case s.Mode == ModeClinician:
		return true, m.escalateDirect(ctx, t, escalation.SeverityMedium, "patient requested a clinician", humanRequestedText)
	default:
		return true, m.requestConsent(ctx, t, escalation.SeverityMedium, "patient requested a clinician", escalationConsentText)
	}
}

func (m *Machine) onRedFlag(ctx context.Context, t *turn, trigger string) error {
	s := t.session
	if s.ChiefComplaint == "" {
		s.ChiefComplaint = truncate(t.text, 500)
	}
	m.logger.Warn().Str("session_id", s.ID.String()).Str("state", string(s.State)).Str("trigger", trigger).Msg("red flag detected")

	switch {
	case s.State.HumanInLoop():
		s.Escalated = true
		s.EscalationReason = "Red flag: " + trigger
		if err := m.sessions.Update(ctx, s); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		m.raise(ctx, s, escalation.SeverityCritical, trigger, t.text)
		m.forward(ctx, s, t.text)
		m.reply(ctx, t, RoleSystem, emergencyText)
		return nil
	case s.Mode == ModeAIOnly:
		return m.requestConsent(ctx, t, escalation.SeverityCritical, trigger, urgentNoticeText+"\n\n"+escalationConsentText)
	default:
		return m.escalateDirect(ctx, t, escalation.SeverityCritical, trigger, emergencyText)
	}
}

// escalateDirect hands the session to a clinician: ESCALATED, assigned when
// anyone is free, alert raised before the patient hears back.
func (m *Machine) escalateDirect(ctx context.Context, t *turn, severity, trigger, patientText string) error {
	s := t.session
	s.Escalated = true
	s.EscalationReason = truncate(trigger, 200)
	if s.Mode == ModeUnset {
		s.Mode = ModeClinician
	}
	var assigned *clinician.Clinician
	err := m.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := m.advance(ctx, s, StateEscalated); err != nil {
			return err
		}
		c, fresh, err := m.assign(ctx, s)
		if fresh {
			assigned = c
		}
		return err
	})
	if err != nil {
		return err
	}
	m.raise(ctx, s, severity, trigger, t.text)
	if assigned != nil {
		m.publish(ctx, websocket.EventClinicianAssigned, s)
	}
	m.reply(ctx, t, RoleSystem, patientText)
	return nil
}

// requestConsent asks an AI-only patient to move to a clinician. A non-empty
// severity raises an alert first.
func (m *Machine) requestConsent(ctx context.Context, t *turn, severity, trigger, patientText string) error {
	s := t.session
	s.EscalationReason = truncate(t.text, 200)
	if err := m.advance(ctx, s, StateEscalationConsent); err != nil {
		return err
	}
	if severity != "" {
		m.raise(ctx, s, severity, trigger, t.text)
	}
	m.reply(ctx, t, RoleSystem, patientText)
	return nil
}

func (m *Machine) raise(ctx context.Context, s *Session, severity, trigger, message string) {
	if m.escalations == nil {
		return
	}
	_, _, err := m.escalations.Raise(ctx, escalation.RaiseInput{
		SessionID:   s.ID,
		PatientID:   s.PatientID,
		ClinicianID: s.ClinicianID,
		Severity:    severity,
		Trigger:     trigger,
		Message:     truncate(message, 1000),
	})
	if err != nil {
		m.logger.Error().Err(err).Str("session_id", s.ID.String()).Str("severity", severity).Msg("raise escalation failed")
	}
}

// advance persists a state change.
func (m *Machine) advance(ctx context.Context, s *Session, to State) error {
	from := s.State
	s.State = to
	if to == StateClosed && s.ClosedAt == nil {
		now := m.now().UTC()
		s.ClosedAt = &now
	}
	if err := m.sessions.Update(ctx, s); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if from != to {
		metrics.RecordTransition(string(from), string(to))
		m.logger.Debug().Str("session_id", s.ID.String()).Str("from", string(from)).Str("to", string(to)).Msg("state transition")
	}
	return nil
}

func (m *Machine) reply(ctx context.Context, t *turn, role, text string) {
	m.sendTo(ctx, t.session.ID, t.patient.Phone, role, text)
}

// sendTo delivers text to a patient and appends it to the message log.
// Delivery failures are logged; the conversation carries on.
func (m *Machine) sendTo(ctx context.Context, sessionID uuid.UUID, phone, role, text string) {
	if err := m.channel.Send(ctx, phone, text); err != nil {
		m.logger.Error().Err(err).Str("session_id", sessionID.String()).Msg("outbound send failed")
	}
	if err := m.messages.Create(ctx, &Message{
		SessionID:  sessionID,
		Direction:  DirectionOut,
		SenderRole: role,
		Body:       text,
	}); err != nil {
		m.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("persist outbound message failed")
	}
}

// forward passes patient text to the assigned clinician.
func (m *Machine) forward(ctx context.Context, s *Session, text string) bool {
	if s.ClinicianID == nil || m.notifier == nil || text == "" {
		return false
	}
	c, err := m.clinicians.Get(ctx, *s.ClinicianID)
	if err != nil {
		m.logger.Warn().Err(err).Str("session_id", s.ID.String()).Msg("assigned clinician lookup failed")
		return false
	}
	m.notifier.Notify(ctx, notification.TemplatePatientMessage, map[string]string{
		"session_ref": s.Ref(),
		"text":        text,
	}, c.Phone)
	return true
}

func (m *Machine) record(ctx context.Context, actor, action string, sessionID uuid.UUID, desc string) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Record(ctx, audit.New(actor, action, "ConversationSession", sessionID.String(), desc)); err != nil {
		m.logger.Warn().Err(err).Str("action", action).Msg("audit record failed")
	}
}

func (m *Machine) publish(ctx context.Context, eventType string, s *Session) {
	if m.events == nil {
		return
	}
	ev := websocket.NewEvent(eventType, websocket.TopicSessions, "ConversationSession", s.ID.String(), s)
	if err := m.events.Publish(ctx, ev); err != nil {
		m.logger.Warn().Err(err).Str("event", eventType).Msg("publish failed")
	}
	if s.ClinicianID != nil {
		ev.Topic = websocket.ClinicianTopic(s.ClinicianID.String())
		_ = m.events.Publish(ctx, ev)
	}
}

func (m *Machine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.GeneratorTimeout)
}

// command normalises a one-word patient reply for keyword matching.
func command(text string) string {
	return strings.ToUpper(strings.Trim(strings.Join(strings.Fields(text), " "), ".!?*"))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
