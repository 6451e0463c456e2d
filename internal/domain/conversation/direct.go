package conversation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/audit"
	"github.com/ehr/triage/internal/platform/lock"
	"github.com/ehr/triage/internal/platform/websocket"
)

func (m *Machine) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	return m.sessions.GetByID(ctx, id)
}

func (m *Machine) List(ctx context.Context, state State, limit, offset int) ([]*Session, int, error) {
	return m.sessions.List(ctx, state, limit, offset)
}

// ListForClinician returns the open sessions assigned to a clinician, most
// recently active first.
func (m *Machine) ListForClinician(ctx context.Context, clinicianID uuid.UUID) ([]*Session, error) {
	return m.sessions.ListByClinician(ctx, clinicianID)
}

// History returns the newest limit messages of a session, oldest first.
func (m *Machine) History(ctx context.Context, sessionID uuid.UUID, limit int) ([]*Message, error) {
	return m.messages.ListBySession(ctx, sessionID, limit)
}

func (m *Machine) Exchanges(ctx context.Context, sessionID uuid.UUID) ([]*Exchange, error) {
	return m.exchanges.ListBySession(ctx, sessionID)
}

// LockPatient takes the lock HandleInbound uses, for callers that change a
// session from the clinician side.
func (m *Machine) LockPatient(ctx context.Context, patientID uuid.UUID) (func(), error) {
	return m.locker.Lock(ctx, lock.PatientKey(patientID.String()))
}

// owned loads a session under the patient lock and checks it belongs to the
// clinician. The caller must release the returned unlock.
func (m *Machine) owned(ctx context.Context, sessionID uuid.UUID, clinicianID *uuid.UUID) (*Session, func(), error) {
	s, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	unlock, err := m.LockPatient(ctx, s.PatientID)
	if err != nil {
		return nil, nil, fmt.Errorf("lock patient: %w", err)
	}
	if s, err = m.sessions.GetByID(ctx, sessionID); err != nil {
		unlock()
		return nil, nil, err
	}
	if clinicianID != nil && !s.AssignedTo(*clinicianID) {
		unlock()
		return nil, nil, apperr.NotFound("session")
	}
	return s, unlock, nil
}

// SendFromClinician relays clinician text to the patient. An escalated
// session becomes a direct conversation.
func (m *Machine) SendFromClinician(ctx context.Context, clinicianID, sessionID uuid.UUID, text string) (*Session, error) {
	if text == "" {
		return nil, apperr.Input("message text is required")
	}
	s, unlock, err := m.owned(ctx, sessionID, &clinicianID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if s.State.Terminal() {
		return nil, apperr.Conflict("session is closed")
	}
	p, err := m.patients.Get(ctx, s.PatientID)
	if err != nil {
		return nil, err
	}

	if s.FirstClinicianResponseAt == nil {
		now := m.now().UTC()
		s.FirstClinicianResponseAt = &now
	}
	to := s.State
	if to == StateEscalated {
		to = StateDirectMessaging
	}
	if err := m.advance(ctx, s, to); err != nil {
		return nil, err
	}
	m.sendTo(ctx, s.ID, p.Phone, RoleClinician, text)
	return s, nil
}

// CompleteSend records the dispatch of a reviewed assessment on the session
// side: DIRECT_MESSAGING, first response time and the outbound message. It
// runs inside the caller's transaction under the patient lock and does not
// deliver anything.
func (m *Machine) CompleteSend(ctx context.Context, sessionID, clinicianID uuid.UUID, body string) (*Session, error) {
	s, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.AssignedTo(clinicianID) {
		return nil, apperr.NotFound("session")
	}
	if s.State.Terminal() {
		return nil, apperr.Conflict("session is closed")
	}
	if s.FirstClinicianResponseAt == nil {
		now := m.now().UTC()
		s.FirstClinicianResponseAt = &now
	}
	if err := m.advance(ctx, s, StateDirectMessaging); err != nil {
		return nil, err
	}
	if err := m.messages.Create(ctx, &Message{
		SessionID:  s.ID,
		Direction:  DirectionOut,
		SenderRole: RoleClinician,
		Body:       body,
	}); err != nil {
		return nil, fmt.Errorf("record outbound: %w", err)
	}
	return s, nil
}

// Close ends a session and frees the clinician slot. When clinicianID is set
// only the assigned clinician may close it. Closing twice is a no-op.
func (m *Machine) Close(ctx context.Context, sessionID uuid.UUID, actor string, clinicianID *uuid.UUID) (*Session, error) {
	s, unlock, err := m.owned(ctx, sessionID, clinicianID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if s.State.Terminal() {
		return s, nil
	}

	err = m.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := m.advance(ctx, s, StateClosed); err != nil {
			return err
		}
		m.record(ctx, actor, audit.ActionSessionClosed, s.ID, "session closed")
		if s.ClinicianID != nil {
			return m.clinicians.Release(ctx, *s.ClinicianID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.publish(ctx, websocket.EventSessionClosed, s)
	if p, err := m.patients.Get(ctx, s.PatientID); err == nil {
		m.sendTo(ctx, s.ID, p.Phone, RoleSystem, closedText)
	}
	m.logger.Info().Str("session_id", s.ID.String()).Str("actor", actor).Msg("session closed")
	return s, nil
}
