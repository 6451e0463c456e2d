package modification

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/domain/assessment"
	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/db"
)

const maxItemLength = 300

// Outcome is the result of one clinician message in the workflow.
type Outcome struct {
	Reply   string
	Session *Session
	// Assessment and Review are set once the edit is confirmed; the
	// assessment is then MODIFIED.
	Assessment *assessment.Assessment
	Review     *assessment.Review
}

type Service struct {
	repo        Repository
	assessments *assessment.Service
	tx          db.Transactor
	logger      zerolog.Logger
	ttl         time.Duration
	now         func() time.Time
}

func NewService(repo Repository, assessments *assessment.Service, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		assessments: assessments,
		tx:          tx,
		logger:      logger,
		ttl:         DefaultTTL,
		now:         time.Now,
	}
}

func (s *Service) SetTTL(ttl time.Duration) {
	s.ttl = ttl
}

// Active returns the clinician's IN_PROGRESS session. A session past its TTL
// is marked EXPIRED here; expired is then true and the error is NotFound.
func (s *Service) Active(ctx context.Context, clinicianID uuid.UUID) (*Session, bool, error) {
	sess, err := s.repo.ActiveForClinician(ctx, clinicianID)
	if err != nil {
		return nil, false, err
	}
	if !sess.Expired(s.ttl, s.now()) {
		return sess, false, nil
	}
	sess.Status = StatusExpired
	if err := s.repo.Update(ctx, sess); err != nil {
		return nil, false, err
	}
	s.logger.Info().Str("modification_id", sess.ID.String()).Str("clinician_id", clinicianID.String()).Msg("modification expired")
	return nil, true, apperr.NotFound("modification session")
}

// Start opens an edit of a for the clinician, or resumes the open one for the
// same assessment.
func (s *Service) Start(ctx context.Context, clinicianID uuid.UUID, a *assessment.Assessment) (*Outcome, error) {
	if !a.Status.Reviewable() {
		return nil, apperr.Conflict(fmt.Sprintf("assessment is %s and can no longer be modified", a.Status))
	}
	cur, _, err := s.Active(ctx, clinicianID)
	switch {
	case err == nil && cur.AssessmentID == a.ID:
		return &Outcome{Reply: prompt(cur, a.Content()), Session: cur}, nil
	case err == nil:
		return nil, apperr.Conflict(fmt.Sprintf("finish or cancel modification %s first", cur.Ref()))
	case !apperr.IsKind(err, apperr.KindNotFound):
		return nil, err
	}

	sess := &Session{
		ClinicianID:  clinicianID,
		AssessmentID: a.ID,
		Step:         StepMedications,
		Status:       StatusInProgress,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("modification_id", sess.ID.String()).
		Str("assessment_id", a.ID.String()).
		Str("clinician_id", clinicianID.String()).
		Msg("modification started")
	return &Outcome{Reply: prompt(sess, a.Content()), Session: sess}, nil
}

// Handle applies one clinician message to the session's current step.
// Unusable input is answered with a hint and leaves the session unchanged.
func (s *Service) Handle(ctx context.Context, sess *Session, text string) (*Outcome, error) {
	a, err := s.assessments.Get(ctx, sess.AssessmentID)
	if err != nil {
		return nil, err
	}
	original := a.Content()
	input := strings.Join(strings.Fields(text), " ")
	word := strings.ToLower(input)

	if word == "cancel" {
		return s.cancel(ctx, sess)
	}

	advance := false
	switch sess.Step {
	case StepMedications, StepRecommendations, StepMonitoring:
		advance, err = sess.apply(original, input)
		if apperr.IsKind(err, apperr.KindInput) {
			return &Outcome{Reply: apperr.UserMessage(err) + "\n\n" + prompt(sess, original), Session: sess}, nil
		}
		if err != nil {
			return nil, err
		}
	case StepNotes:
		if word != "skip" {
			if input == "" {
				return &Outcome{Reply: prompt(sess, original), Session: sess}, nil
			}
			sess.Notes = truncate(input, 2000)
		}
		advance = true
	case StepConfirm:
		if word == "confirm" {
			return s.confirm(ctx, sess, a)
		}
		return &Outcome{Reply: "Reply *confirm* to save or *cancel* to discard.", Session: sess}, nil
	default:
		return nil, fmt.Errorf("unknown modification step %q", sess.Step)
	}

	if advance {
		sess.Step = nextStep[sess.Step]
	}
	if err := s.repo.Update(ctx, sess); err != nil {
		return nil, err
	}
	return &Outcome{Reply: prompt(sess, original), Session: sess}, nil
}

func (s *Service) confirm(ctx context.Context, sess *Session, a *assessment.Assessment) (*Outcome, error) {
	content := sess.Content(a.Content())
	var review *assessment.Review
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.assessments.RecordModification(ctx, a, sess.ClinicianID, content, sess.Notes)
		if err != nil {
			return err
		}
		review = r
		sess.Status = StatusCompleted
		return s.repo.Update(ctx, sess)
	})
	if apperr.IsKind(err, apperr.KindConflict) {
		return &Outcome{Reply: apperr.UserMessage(err) + "\nReply *cancel* to discard this edit.", Session: sess}, nil
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("modification_id", sess.ID.String()).
		Str("assessment_id", a.ID.String()).
		Str("review_id", review.ID.String()).
		Msg("modification confirmed")
	return &Outcome{
		Reply:      "Modification saved for assessment " + a.ID.String()[:8] + ".",
		Session:    sess,
		Assessment: a,
		Review:     review,
	}, nil
}

func (s *Service) cancel(ctx context.Context, sess *Session) (*Outcome, error) {
	sess.Status = StatusCancelled
	if err := s.repo.Update(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info().Str("modification_id", sess.ID.String()).Msg("modification cancelled")
	return &Outcome{Reply: "Modification cancelled. The assessment is unchanged.", Session: sess}, nil
}

// apply handles keep, add, remove and remove all on the current content
// step and reports whether the step is finished.
func (s *Session) apply(original assessment.Content, input string) (bool, error) {
	lower := strings.ToLower(input)
	switch {
	case lower == "keep" || lower == "done" || lower == "next":
		s.copyBlock(original)
		return true, nil
	case lower == "remove all":
		s.clearBlock()
		return true, nil
	case strings.HasPrefix(lower, "remove "):
		n, err := strconv.Atoi(strings.TrimSpace(input[len("remove "):]))
		if err != nil {
			return false, apperr.Input("Use *remove <n>* with the entry number.")
		}
		return false, s.removeAt(original, n)
	case strings.HasPrefix(lower, "add "):
		return false, s.add(original, strings.TrimSpace(input[len("add "):]))
	default:
		return false, apperr.Input("I didn't understand that.")
	}
}

// copyBlock makes the current step's block a private copy of the original.
// A block already copied is left as is.
func (s *Session) copyBlock(original assessment.Content) {
	switch s.Step {
	case StepMedications:
		if s.Medications == nil {
			b := original.Medications.Clone()
			s.Medications = &b
		}
	case StepRecommendations:
		if s.Recommendations == nil {
			b := original.Recommendations.Clone()
			s.Recommendations = &b
		}
	case StepMonitoring:
		if s.Monitoring == nil {
			b := original.Monitoring.Clone()
			s.Monitoring = &b
		}
	}
}

func (s *Session) clearBlock() {
	switch s.Step {
	case StepMedications:
		s.Medications = &assessment.MedicationBlock{Version: assessment.BlockVersion, Items: []assessment.Medication{}}
	case StepRecommendations:
		s.Recommendations = &assessment.RecommendationBlock{Version: assessment.BlockVersion, Items: []string{}}
	case StepMonitoring:
		s.Monitoring = &assessment.MonitoringBlock{Version: assessment.BlockVersion, WhatToMonitor: []string{}, WhenToSeekHelp: []string{}}
	}
}

func (s *Session) removeAt(original assessment.Content, n int) error {
	current := s.Content(original)
	size := 0
	switch s.Step {
	case StepMedications:
		size = len(current.Medications.Items)
	case StepRecommendations:
		size = len(current.Recommendations.Items)
	case StepMonitoring:
		size = len(current.Monitoring.WhatToMonitor) + len(current.Monitoring.WhenToSeekHelp)
	}
	if n < 1 || n > size {
		return apperr.Inputf("There is no entry %d.", n)
	}

	s.copyBlock(original)
	i := n - 1
	switch s.Step {
	case StepMedications:
		s.Medications.Items = append(s.Medications.Items[:i], s.Medications.Items[i+1:]...)
	case StepRecommendations:
		s.Recommendations.Items = append(s.Recommendations.Items[:i], s.Recommendations.Items[i+1:]...)
	case StepMonitoring:
		m := s.Monitoring
		if i < len(m.WhatToMonitor) {
			m.WhatToMonitor = append(m.WhatToMonitor[:i], m.WhatToMonitor[i+1:]...)
		} else {
			j := i - len(m.WhatToMonitor)
			m.WhenToSeekHelp = append(m.WhenToSeekHelp[:j], m.WhenToSeekHelp[j+1:]...)
		}
	}
	return nil
}

func (s *Session) add(original assessment.Content, item string) error {
	if item == "" {
		return apperr.Input("Nothing to add.")
	}
	if len([]rune(item)) > maxItemLength {
		return apperr.Inputf("Entries are limited to %d characters.", maxItemLength)
	}
	switch s.Step {
	case StepMedications:
		med, err := parseMedication(item)
		if err != nil {
			return err
		}
		s.copyBlock(original)
		s.Medications.Items = append(s.Medications.Items, med)
	case StepRecommendations:
		s.copyBlock(original)
		s.Recommendations.Items = append(s.Recommendations.Items, item)
	case StepMonitoring:
		s.copyBlock(original)
		if rest, ok := cutPrefixFold(item, "watch "); ok && rest != "" {
			s.Monitoring.WhatToMonitor = append(s.Monitoring.WhatToMonitor, rest)
		} else {
			s.Monitoring.WhenToSeekHelp = append(s.Monitoring.WhenToSeekHelp, item)
		}
	}
	return nil
}

// parseMedication reads "name / dosage / frequency [/ duration]".
func parseMedication(item string) (assessment.Medication, error) {
	parts := strings.Split(item, "/")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 3 || len(parts) > 4 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return assessment.Medication{}, apperr.Input("Use *add <name> / <dosage> / <frequency>*, e.g. add Ibuprofen / 400mg / every 8 hours.")
	}
	med := assessment.Medication{Name: parts[0], Dosage: parts[1], Frequency: parts[2]}
	if len(parts) == 4 {
		med.Duration = parts[3]
	}
	return med, nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
