package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ehr/triage/internal/domain/assessment"
	"github.com/ehr/triage/internal/domain/escalation"
	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/llm"
	"github.com/ehr/triage/internal/platform/metrics"
)

// onTriage records the answer to the pending question and either asks the
// next one or, once MaxQuestions are answered, produces the assessment.
func (m *Machine) onTriage(ctx context.Context, t *turn) error {
	if t.text == "" {
		m.reply(ctx, t, RoleSystem, emptyAnswerText)
		return nil
	}
	s := t.session

	pending, err := m.exchanges.Pending(ctx, s.ID)
	switch {
	case err == nil:
		if t.messageID == "" {
			repeated, err := m.repeatsPreviousAnswer(ctx, pending, t.text)
			if err != nil {
				return err
			}
			if repeated {
				return apperr.Duplicate("answer already recorded")
			}
		}
		if err := m.exchanges.Answer(ctx, pending.ID, truncate(t.text, 2000)); err != nil {
			return err
		}
		if pending.OrderIndex >= m.cfg.MaxQuestions {
			return m.completeTriage(ctx, t)
		}
		return m.askNext(ctx, t)
	case !apperr.IsKind(err, apperr.KindNotFound):
		return fmt.Errorf("load pending question: %w", err)
	}

	exchanges, err := m.exchanges.ListBySession(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("list exchanges: %w", err)
	}
	if len(exchanges) < m.cfg.MaxQuestions {
		return m.askNext(ctx, t)
	}
	if command(t.text) == "RETRY" {
		return m.completeTriage(ctx, t)
	}
	if last := exchanges[len(exchanges)-1]; last.Response != nil && *last.Response == t.text {
		return apperr.Duplicate("answer already recorded")
	}
	m.reply(ctx, t, RoleSystem, retryPromptText)
	return nil
}

// repeatsPreviousAnswer reports whether text is the answer already recorded
// for the question before pending. Without a provider message id this is the
// only way to tell a re-delivery from a new answer.
func (m *Machine) repeatsPreviousAnswer(ctx context.Context, pending *Exchange, text string) (bool, error) {
	if pending.OrderIndex <= 1 {
		return false, nil
	}
	exchanges, err := m.exchanges.ListBySession(ctx, pending.SessionID)
	if err != nil {
		return false, fmt.Errorf("list exchanges: %w", err)
	}
	for _, e := range exchanges {
		if e.OrderIndex == pending.OrderIndex-1 {
			return e.Answered() && *e.Response == truncate(text, 2000), nil
		}
	}
	return false, nil
}

// askNext asks question len(exchanges)+1, falling back to the fixed list when
// the generator fails.
func (m *Machine) askNext(ctx context.Context, t *turn) error {
	s := t.session
	exchanges, err := m.exchanges.ListBySession(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("list exchanges: %w", err)
	}
	n := len(exchanges) + 1
	if n > m.cfg.MaxQuestions {
		return m.completeTriage(ctx, t)
	}

	q := m.generateQuestion(ctx, s, exchanges)
	if q == "" {
		q = FallbackQuestion(s.ChiefComplaint, n)
	}
	if err := m.exchanges.Create(ctx, &Exchange{SessionID: s.ID, OrderIndex: n, Question: q}); err != nil {
		return err
	}
	s.QuestionsAsked = n
	if err := m.sessions.Update(ctx, s); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	m.reply(ctx, t, RoleAI, q)
	return nil
}

func (m *Machine) generateQuestion(ctx context.Context, s *Session, exchanges []*Exchange) string {
	start := time.Now()
	gctx, cancel := m.withTimeout(ctx)
	defer cancel()
	q, err := m.generator.NextQuestion(gctx, promptContext(s, exchanges))
	q = strings.TrimSpace(q)
	if err == nil && q == "" {
		err = llm.ErrEmpty
	}
	metrics.RecordGeneratorCall("question", time.Since(start), err)
	if err != nil {
		m.logger.Warn().Err(err).Str("session_id", s.ID.String()).Int("order_index", len(exchanges)+1).Msg("question generation failed, using fallback")
		return ""
	}
	return truncate(q, 500)
}

func promptContext(s *Session, exchanges []*Exchange) llm.PromptContext {
	pc := llm.PromptContext{ChiefComplaint: s.ChiefComplaint}
	if s.PatientAge != nil {
		pc.Age = *s.PatientAge
	}
	if s.PatientGender != nil {
		pc.Gender = *s.PatientGender
	}
	for _, e := range exchanges {
		if e.Response == nil {
			continue
		}
		pc.Turns = append(pc.Turns, llm.Turn{Question: e.Question, Answer: *e.Response})
	}
	return pc
}

// completeTriage produces the assessment and routes the session to review
// or payment. A generator failure leaves the session in triage; RETRY tries
// again.
func (m *Machine) completeTriage(ctx context.Context, t *turn) error {
	s := t.session
	a, err := m.assessments.GetBySession(ctx, s.ID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		a, err = m.generateAssessment(ctx, t)
	}
	if apperr.IsKind(err, apperr.KindGenerator) {
		m.logger.Error().Err(err).Str("session_id", s.ID.String()).Msg("assessment generation failed")
		m.reply(ctx, t, RoleSystem, assessmentFailedText)
		return nil
	}
	if err != nil {
		return err
	}

	if s.TriageCompletedAt == nil {
		now := m.now().UTC()
		s.TriageCompletedAt = &now
	}
	if t.patient.Credits > 0 {
		err = m.finalize(ctx, t.patient, s, a, false)
	} else {
		err = m.parkForPayment(ctx, t, a)
	}
	if err != nil {
		return err
	}
	if len(a.RedFlags) > 0 {
		m.raise(ctx, s, escalation.SeverityHigh, "Assessment red flags: "+strings.Join(a.RedFlags, ", "), s.ChiefComplaint)
	}
	return nil
}

func (m *Machine) generateAssessment(ctx context.Context, t *turn) (*assessment.Assessment, error) {
	s := t.session
	exchanges, err := m.exchanges.ListBySession(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("list exchanges: %w", err)
	}

	start := time.Now()
	gctx, cancel := m.withTimeout(ctx)
	raw, err := m.generator.Assessment(gctx, promptContext(s, exchanges))
	cancel()
	metrics.RecordGeneratorCall("assessment", time.Since(start), err)
	if err != nil {
		return nil, apperr.Generator("generate assessment", err)
	}
	a, err := assessment.ParseGenerated(raw)
	if err != nil {
		return nil, err
	}

	a.SessionID = s.ID
	a.PatientID = s.PatientID
	a.ChiefComplaint = s.ChiefComplaint
	a.PatientAge = s.PatientAge
	a.PatientGender = s.PatientGender
	a.Status = assessment.StatusGenerated
	if t.patient.Credits <= 0 {
		a.Status = assessment.StatusDraft
	}
	if err := m.assessments.Create(ctx, a); err != nil {
		return nil, err
	}
	m.logger.Info().Str("session_id", s.ID.String()).Str("assessment_id", a.ID.String()).Str("status", string(a.Status)).Msg("assessment generated")
	return a, nil
}

// parkForPayment locks the assessment behind a credit purchase.
func (m *Machine) parkForPayment(ctx context.Context, t *turn, a *assessment.Assessment) error {
	if err := m.advance(ctx, t.session, StatePendingPayment); err != nil {
		return err
	}
	m.reply(ctx, t, RoleSystem, assessmentLockedText)
	m.sendMenu(ctx, t)
	m.logger.Info().Str("session_id", t.session.ID.String()).Str("assessment_id", a.ID.String()).Msg("awaiting payment")
	return nil
}
