package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/ehr/triage/internal/domain/assessment"
	"github.com/ehr/triage/internal/domain/clinician"
	"github.com/ehr/triage/internal/domain/patient"
	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/audit"
	"github.com/ehr/triage/internal/platform/lock"
	"github.com/ehr/triage/internal/platform/notification"
	"github.com/ehr/triage/internal/platform/websocket"
)

var errNoClinician = errors.New("no clinician available")

// finalize spends one credit, queues the assessment for review and assigns a
// clinician. Both payment branches end here.
func (m *Machine) finalize(ctx context.Context, p *patient.Patient, s *Session, a *assessment.Assessment, paid bool) error {
	var assigned *clinician.Clinician
	err := m.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := m.patients.DeductCredit(ctx, p); err != nil {
			return err
		}
		if a.Status == assessment.StatusDraft {
			if err := m.assessments.Transition(ctx, a, assessment.StatusGenerated, "system"); err != nil {
				return err
			}
		}
		if a.Status == assessment.StatusGenerated {
			if err := m.assessments.Transition(ctx, a, assessment.StatusPendingReview, "system"); err != nil {
				return err
			}
		}
		if s.TriageCompletedAt == nil {
			now := m.now().UTC()
			s.TriageCompletedAt = &now
		}
		if err := m.advance(ctx, s, StatePendingClinicianReview); err != nil {
			return err
		}
		c, fresh, err := m.assign(ctx, s)
		if fresh {
			assigned = c
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("finalize triage: %w", err)
	}

	if assigned != nil {
		m.publish(ctx, websocket.EventClinicianAssigned, s)
		m.notifyAssigned(ctx, assigned, s, a)
	}
	m.sendTo(ctx, s.ID, p.Phone, RoleSystem, patientSummary(a, paid, s.ClinicianID != nil))
	m.logger.Info().
		Str("session_id", s.ID.String()).
		Str("assessment_id", a.ID.String()).
		Bool("paid", paid).
		Bool("assigned", s.ClinicianID != nil).
		Msg("triage finalized")
	return nil
}

// ResumeAfterPayment continues a session parked in PENDING_PAYMENT once
// credits are available. resumed is false when the session was not waiting
// for payment.
func (m *Machine) ResumeAfterPayment(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	s, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return false, err
	}
	unlock, err := m.locker.Lock(ctx, lock.PatientKey(s.PatientID.String()))
	if err != nil {
		return false, fmt.Errorf("lock patient: %w", err)
	}
	defer unlock()

	if s, err = m.sessions.GetByID(ctx, sessionID); err != nil {
		return false, err
	}
	if s.State != StatePendingPayment {
		m.logger.Debug().Str("session_id", s.ID.String()).Str("state", string(s.State)).Msg("resume skipped, session not awaiting payment")
		return false, nil
	}
	p, err := m.patients.Get(ctx, s.PatientID)
	if err != nil {
		return false, err
	}
	a, err := m.assessments.GetBySession(ctx, s.ID)
	if err != nil {
		return false, fmt.Errorf("load assessment: %w", err)
	}
	if err := m.finalize(ctx, p, s, a, true); err != nil {
		return false, err
	}
	return true, nil
}

// assign returns the session's clinician, reserving the least-loaded
// available one when none is attached yet. fresh reports a new assignment.
// A nil clinician with no error means the session waits in the backlog.
func (m *Machine) assign(ctx context.Context, s *Session) (*clinician.Clinician, bool, error) {
	if s.ClinicianID != nil {
		c, err := m.clinicians.Get(ctx, *s.ClinicianID)
		return c, false, err
	}
	c, err := m.clinicians.Reserve(ctx)
	if err != nil {
		return nil, false, err
	}
	if c == nil {
		m.logger.Info().Str("session_id", s.ID.String()).Msg("no clinician available, session queued")
		return nil, false, nil
	}
	if err := m.attach(ctx, s, c, "system"); err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (m *Machine) attach(ctx context.Context, s *Session, c *clinician.Clinician, actor string) error {
	now := m.now().UTC()
	id := c.ID
	s.ClinicianID = &id
	s.ClinicianAssignedAt = &now
	if err := m.sessions.Update(ctx, s); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	m.record(ctx, actor, audit.ActionClinicianAssigned, s.ID, "assigned to "+c.Name)
	m.logger.Info().Str("session_id", s.ID.String()).Str("clinician_id", c.ID.String()).Msg("clinician assigned")
	return nil
}

// notifyAssigned tells the clinician about a new case: the review prompt
// when an assessment is waiting, otherwise the escalation reason.
func (m *Machine) notifyAssigned(ctx context.Context, c *clinician.Clinician, s *Session, a *assessment.Assessment) {
	if m.notifier == nil {
		return
	}
	if a == nil {
		a, _ = m.assessments.GetBySession(ctx, s.ID)
	}
	if a != nil && a.Status.Reviewable() {
		age, gender := "", ""
		if s.PatientAge != nil {
			age = strconv.Itoa(*s.PatientAge)
		}
		if s.PatientGender != nil {
			gender = *s.PatientGender
		}
		m.notifier.Notify(ctx, notification.TemplateNewPatient, map[string]string{
			"complaint":      s.ChiefComplaint,
			"age":            age,
			"gender":         gender,
			"assessment_ref": a.ID.String()[:8],
		}, c.Phone)
		return
	}
	reason := s.EscalationReason
	if reason == "" {
		reason = "awaiting clinician"
	}
	m.notifier.Notify(ctx, notification.TemplateSessionAssign, map[string]string{
		"session_ref": s.Ref(),
		"reason":      reason,
	}, c.Phone)
}

// AssignBacklog hands waiting sessions to available clinicians, oldest
// first, until nobody is free.
func (m *Machine) AssignBacklog(ctx context.Context) (int, error) {
	waiting, err := m.sessions.ListUnassigned(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unassigned sessions: %w", err)
	}
	n := 0
	for _, w := range waiting {
		c, s, err := m.assignWaiting(ctx, w.ID)
		if errors.Is(err, errNoClinician) {
			break
		}
		if err != nil {
			m.logger.Error().Err(err).Str("session_id", w.ID.String()).Msg("backlog assignment failed")
			continue
		}
		if c == nil {
			continue
		}
		n++
		m.publish(ctx, websocket.EventClinicianAssigned, s)
		m.notifyAssigned(ctx, c, s, nil)
	}
	if n > 0 {
		m.logger.Info().Int("assigned", n).Int("waiting", len(waiting)).Msg("backlog drained")
	}
	return n, nil
}

func (m *Machine) assignWaiting(ctx context.Context, id uuid.UUID) (*clinician.Clinician, *Session, error) {
	s, err := m.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	unlock, err := m.locker.Lock(ctx, lock.PatientKey(s.PatientID.String()))
	if err != nil {
		return nil, nil, fmt.Errorf("lock patient: %w", err)
	}
	defer unlock()

	if s, err = m.sessions.GetByID(ctx, id); err != nil {
		return nil, nil, err
	}
	if s.ClinicianID != nil || (s.State != StatePendingClinicianReview && s.State != StateEscalated) {
		return nil, s, nil
	}
	var c *clinician.Clinician
	err = m.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = m.clinicians.Reserve(ctx); err != nil {
			return err
		}
		if c == nil {
			return errNoClinician
		}
		return m.attach(ctx, s, c, "system")
	})
	if err != nil {
		return nil, s, err
	}
	return c, s, nil
}

// AssignManual attaches a session to a chosen clinician, releasing the slot
// held by any previous assignee.
func (m *Machine) AssignManual(ctx context.Context, sessionID, clinicianID uuid.UUID, actor string) (*Session, error) {
	s, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	unlock, err := m.locker.Lock(ctx, lock.PatientKey(s.PatientID.String()))
	if err != nil {
		return nil, fmt.Errorf("lock patient: %w", err)
	}
	defer unlock()

	if s, err = m.sessions.GetByID(ctx, sessionID); err != nil {
		return nil, err
	}
	if !s.State.HumanInLoop() {
		return nil, apperr.Conflict(fmt.Sprintf("session in %s cannot be assigned", s.State))
	}
	if s.AssignedTo(clinicianID) {
		return s, nil
	}
	prev := s.ClinicianID
	var c *clinician.Clinician
	err = m.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = m.clinicians.ReserveSpecific(ctx, clinicianID); err != nil {
			return err
		}
		if prev != nil {
			if err := m.clinicians.Release(ctx, *prev); err != nil {
				return err
			}
		}
		return m.attach(ctx, s, c, actor)
	})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, websocket.EventClinicianAssigned, s)
	m.notifyAssigned(ctx, c, s, nil)
	return s, nil
}
