package conversation

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/ehr/triage/internal/domain/redflag"
	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/llm"
	"github.com/ehr/triage/internal/platform/metrics"
)

var greetings = map[string]bool{"hi": true, "hello": true, "hey": true, "good morning": true, "good evening": true}

var genders = map[string]bool{"MALE": true, "FEMALE": true, "OTHER": true}

func (m *Machine) onInitial(ctx context.Context, t *turn) error {
	if t.patient.HasAcceptedTerms() {
		if err := m.advance(ctx, t.session, StateModeSelection); err != nil {
			return err
		}
		m.reply(ctx, t, RoleSystem, welcomeBackText+" "+modeSelectionText)
		return nil
	}
	if err := m.advance(ctx, t.session, StateAwaitingAcceptance); err != nil {
		return err
	}
	m.reply(ctx, t, RoleSystem, welcomeText)
	return nil
}

func (m *Machine) onAcceptance(ctx context.Context, t *turn) error {
	s := t.session
	switch command(t.text) {
	case "GET STARTED":
		if err := m.patients.AcceptTerms(ctx, t.patient); err != nil {
			return err
		}
		// consent from before acceptance already chose the clinician path
		if s.Mode == ModeClinician {
			return m.enterClinicianMode(ctx, t, clinicianModeText)
		}
		if err := m.advance(ctx, s, StateModeSelection); err != nil {
			return err
		}
		m.reply(ctx, t, RoleSystem, modeSelectionText)
	case "DECLINE":
		if err := m.advance(ctx, s, StateClosed); err != nil {
			return err
		}
		m.reply(ctx, t, RoleSystem, declinedText)
	default:
		m.reply(ctx, t, RoleSystem, acceptancePromptText)
	}
	return nil
}

func (m *Machine) onModeSelection(ctx context.Context, t *turn) error {
	s := t.session
	switch command(t.text) {
	case "1":
		s.Mode = ModeAIOnly
		if err := m.advance(ctx, s, StateAIOnlyActive); err != nil {
			return err
		}
		m.reply(ctx, t, RoleSystem, aiOnlyDisclaimerText)
	case "2":
		return m.enterClinicianMode(ctx, t, clinicianModeText)
	default:
		m.reply(ctx, t, RoleSystem, modePromptText)
	}
	return nil
}

// enterClinicianMode fixes the mode and starts profile collection, or
// triage directly when the profile is already known.
func (m *Machine) enterClinicianMode(ctx context.Context, t *turn, intro string) error {
	s := t.session
	s.Mode = ModeClinician
	if s.ProfileComplete() {
		if err := m.advance(ctx, s, StateTriageInProgress); err != nil {
			return err
		}
		m.reply(ctx, t, RoleSystem, consentYesReadyText)
		return m.askNext(ctx, t)
	}
	if err := m.advance(ctx, s, StateAwaitingProfile); err != nil {
		return err
	}
	m.reply(ctx, t, RoleSystem, intro+"\n\n"+profilePrompt(s))
	return nil
}

func profilePrompt(s *Session) string {
	switch {
	case s.PatientAge == nil:
		return agePromptText
	case s.PatientGender == nil:
		return genderPromptText
	default:
		return complaintPromptText
	}
}

func (m *Machine) onAIOnly(ctx context.Context, t *turn) error {
	if t.text == "" {
		m.reply(ctx, t, RoleSystem, aiOnlyFallbackText)
		return nil
	}
	if redflag.NeedsClinician(t.text) {
		return m.requestConsent(ctx, t, "", "", escalationConsentText)
	}

	pc := llm.PromptContext{Latest: t.text}
	history, err := m.messages.ListBySession(ctx, t.session.ID, m.cfg.HistoryLimit+1)
	if err != nil {
		m.logger.Warn().Err(err).Str("session_id", t.session.ID.String()).Msg("load history failed")
	}
	// the newest entry is the message being answered
	if len(history) > 0 {
		history = history[:len(history)-1]
	}
	for _, msg := range history {
		role := "assistant"
		if msg.Direction == DirectionIn {
			role = "user"
		}
		pc.History = append(pc.History, llm.Message{Role: role, Content: msg.Body})
	}

	start := time.Now()
	gctx, cancel := m.withTimeout(ctx)
	defer cancel()
	out, err := m.generator.Reply(gctx, pc)
	out = strings.TrimSpace(out)
	if err == nil && out == "" {
		err = llm.ErrEmpty
	}
	metrics.RecordGeneratorCall("reply", time.Since(start), err)
	if err != nil {
		m.logger.Warn().Err(err).Str("session_id", t.session.ID.String()).Msg("reply generation failed, using fallback")
		m.reply(ctx, t, RoleSystem, aiOnlyFallbackText)
		return nil
	}
	m.reply(ctx, t, RoleAI, llm.GuardReply(out))
	return nil
}

func (m *Machine) onConsent(ctx context.Context, t *turn) error {
	s := t.session
	answer := command(t.text)
	switch {
	case answer == "YES" || redflag.RequestsHuman(t.text):
		s.Escalated = true
		if !t.patient.HasAcceptedTerms() {
			s.Mode = ModeClinician
			if err := m.advance(ctx, s, StateAwaitingAcceptance); err != nil {
				return err
			}
			m.reply(ctx, t, RoleSystem, welcomeText)
			return nil
		}
		return m.enterClinicianMode(ctx, t, consentYesText)
	case answer == "NO":
		if s.Mode == ModeAIOnly {
			if err := m.advance(ctx, s, StateAIOnlyActive); err != nil {
				return err
			}
			m.reply(ctx, t, RoleSystem, consentNoText)
			return nil
		}
		// consent was asked before any mode was chosen
		if !t.patient.HasAcceptedTerms() {
			if err := m.advance(ctx, s, StateAwaitingAcceptance); err != nil {
				return err
			}
			m.reply(ctx, t, RoleSystem, welcomeText)
			return nil
		}
		if err := m.advance(ctx, s, StateModeSelection); err != nil {
			return err
		}
		m.reply(ctx, t, RoleSystem, modeSelectionText)
		return nil
	default:
		m.reply(ctx, t, RoleSystem, consentPromptText)
		return nil
	}
}

func (m *Machine) onProfile(ctx context.Context, t *turn) error {
	s := t.session
	switch {
	case s.PatientAge == nil:
		age, err := strconv.Atoi(strings.TrimSpace(t.text))
		if err != nil || age < 0 || age > 150 {
			m.reply(ctx, t, RoleSystem, ageInvalidText)
			return nil
		}
		s.PatientAge = &age
	case s.PatientGender == nil:
		g := command(t.text)
		if !genders[g] {
			m.reply(ctx, t, RoleSystem, genderInvalidText)
			return nil
		}
		s.PatientGender = &g
	default:
		text := strings.TrimSpace(t.text)
		if greetings[strings.ToLower(strings.Trim(text, ".!? "))] {
			m.reply(ctx, t, RoleSystem, complaintPromptText)
			return nil
		}
		if len([]rune(text)) <= 3 {
			m.reply(ctx, t, RoleSystem, complaintShortText)
			return nil
		}
		s.ChiefComplaint = truncate(text, 500)
	}

	if !s.ProfileComplete() {
		if err := m.sessions.Update(ctx, s); err != nil {
			return err
		}
		m.reply(ctx, t, RoleSystem, profilePrompt(s))
		return nil
	}
	if err := m.advance(ctx, s, StateTriageInProgress); err != nil {
		return err
	}
	return m.askNext(ctx, t)
}

func (m *Machine) onPendingPayment(ctx context.Context, t *turn) error {
	// credits may have been added without a checkout
	if t.patient.Credits > 0 {
		a, err := m.assessments.GetBySession(ctx, t.session.ID)
		if err != nil {
			return err
		}
		return m.finalize(ctx, t.patient, t.session, a, true)
	}
	if m.payments != nil && isDigits(t.text) {
		text, err := m.payments.Checkout(ctx, t.patient, t.session.ID, t.text)
		if err == nil {
			m.reply(ctx, t, RoleSystem, text)
			return nil
		}
		if !apperr.IsKind(err, apperr.KindInput) {
			return err
		}
	}
	m.sendMenu(ctx, t)
	return nil
}

func (m *Machine) sendMenu(ctx context.Context, t *turn) {
	if m.payments == nil {
		m.reply(ctx, t, RoleSystem, fallbackText)
		return
	}
	menu, err := m.payments.Menu(ctx)
	if err != nil {
		m.logger.Error().Err(err).Str("session_id", t.session.ID.String()).Msg("load credit menu failed")
		m.reply(ctx, t, RoleSystem, fallbackText)
		return
	}
	m.reply(ctx, t, RoleSystem, menu)
}

// onForward handles review, direct-messaging and escalated sessions: the
// text goes to the assigned clinician.
func (m *Machine) onForward(ctx context.Context, t *turn) error {
	if t.text == "" {
		return nil
	}
	if !m.forward(ctx, t.session, t.text) {
		m.reply(ctx, t, RoleSystem, waitingForClinicianText)
	}
	return nil
}

func isDigits(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
