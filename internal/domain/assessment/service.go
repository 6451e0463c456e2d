package assessment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/audit"
	"github.com/ehr/triage/internal/platform/db"
	"github.com/ehr/triage/internal/platform/websocket"
)

var statusActions = map[ReviewStatus]string{
	StatusGenerated:     audit.ActionAssessmentCreated,
	StatusPendingReview: audit.ActionAssessmentQueued,
	StatusApproved:      audit.ActionAssessmentApproved,
	StatusModified:      audit.ActionAssessmentModified,
	StatusRejected:      audit.ActionAssessmentRejected,
	StatusExpired:       audit.ActionAssessmentExpired,
	StatusSent:          audit.ActionAssessmentSent,
}

type Service struct {
	repo    Repository
	reviews ReviewRepository
	tx      db.Transactor
	audit   audit.Sink
	events  websocket.EventPublisher
	logger  zerolog.Logger
	ttl     time.Duration
	now     func() time.Time
}

func NewService(repo Repository, reviews ReviewRepository, tx db.Transactor, sink audit.Sink, events websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		reviews: reviews,
		tx:      tx,
		audit:   sink,
		events:  events,
		logger:  logger,
		now:     time.Now,
	}
}

// SetTTL sets how long a reviewable assessment stays valid.
func (s *Service) SetTTL(ttl time.Duration) {
	s.ttl = ttl
}

// Create stores a newly generated assessment. Status must be DRAFT or
// GENERATED.
func (s *Service) Create(ctx context.Context, a *Assessment) error {
	if a.SessionID == uuid.Nil || a.PatientID == uuid.Nil {
		return apperr.Input("assessment needs a session and a patient")
	}
	if a.Status == "" {
		a.Status = StatusDraft
	}
	if a.Status != StatusDraft && a.Status != StatusGenerated {
		return apperr.Inputf("new assessment cannot start as %s", a.Status)
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, a); err != nil {
			return fmt.Errorf("create assessment: %w", err)
		}
		if a.Status == StatusGenerated {
			return s.record(ctx, "system", audit.ActionAssessmentCreated, a.ID, "assessment generated")
		}
		return nil
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetBySession(ctx context.Context, sessionID uuid.UUID) (*Assessment, error) {
	return s.repo.GetBySession(ctx, sessionID)
}

func (s *Service) List(ctx context.Context, status ReviewStatus, limit, offset int) ([]*Assessment, int, error) {
	return s.repo.List(ctx, status, limit, offset)
}

func (s *Service) Reviews(ctx context.Context, id uuid.UUID) ([]*Review, error) {
	return s.reviews.ListByAssessment(ctx, id)
}

// LatestReview returns the newest review with the given action, or nil when
// there is none.
func (s *Service) LatestReview(ctx context.Context, id uuid.UUID, action string) (*Review, error) {
	r, err := s.reviews.Latest(ctx, id, action)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return nil, nil
	}
	return r, err
}

// FinalContent returns what would be sent for a, honouring the latest
// modification when the assessment is MODIFIED.
func (s *Service) FinalContent(ctx context.Context, a *Assessment) (Content, string, *Review, error) {
	if a.Status != StatusModified {
		return a.Content(), "", nil, nil
	}
	r, err := s.LatestReview(ctx, a.ID, ActionModified)
	if err != nil {
		return Content{}, "", nil, err
	}
	content, notes := Final(a, r)
	return content, notes, r, nil
}

// Transition moves a to the next review status and records one audit entry.
func (s *Service) Transition(ctx context.Context, a *Assessment, to ReviewStatus, actor string) error {
	if !CanTransition(a.Status, to) {
		return apperr.Conflict(fmt.Sprintf("assessment cannot move from %s to %s", a.Status, to))
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.UpdateStatus(ctx, a.ID, a.Status, to); err != nil {
			return err
		}
		desc := fmt.Sprintf("%s -> %s", a.Status, to)
		a.Status = to
		return s.record(ctx, actor, statusActions[to], a.ID, desc)
	})
}

// Approve signs off the assessment unchanged.
func (s *Service) Approve(ctx context.Context, a *Assessment, clinicianID uuid.UUID, notes string) (*Review, error) {
	return s.review(ctx, a, &Review{
		AssessmentID: a.ID,
		ClinicianID:  clinicianID,
		Action:       ActionApproved,
		Notes:        notes,
	}, StatusApproved)
}

// Reject marks the assessment unusable. The clinician follows up with the
// patient directly.
func (s *Service) Reject(ctx context.Context, a *Assessment, clinicianID uuid.UUID, reason string) (*Review, error) {
	return s.review(ctx, a, &Review{
		AssessmentID: a.ID,
		ClinicianID:  clinicianID,
		Action:       ActionRejected,
		Notes:        reason,
	}, StatusRejected)
}

// RecordModification stores the immutable MODIFIED review carrying the edited
// blocks and moves the assessment to MODIFIED.
func (s *Service) RecordModification(ctx context.Context, a *Assessment, clinicianID uuid.UUID, content Content, notes string) (*Review, error) {
	meds := content.Medications.Clone()
	recs := content.Recommendations.Clone()
	mon := content.Monitoring.Clone()
	return s.review(ctx, a, &Review{
		AssessmentID:    a.ID,
		ClinicianID:     clinicianID,
		Action:          ActionModified,
		Notes:           notes,
		Medications:     &meds,
		Recommendations: &recs,
		Monitoring:      &mon,
	}, StatusModified)
}

func (s *Service) review(ctx context.Context, a *Assessment, r *Review, to ReviewStatus) (*Review, error) {
	if !a.Status.Reviewable() {
		return nil, apperr.Conflict(fmt.Sprintf("assessment is %s and can no longer be reviewed", a.Status))
	}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.reviews.Create(ctx, r); err != nil {
			return fmt.Errorf("create review: %w", err)
		}
		return s.Transition(ctx, a, to, "clinician:"+r.ClinicianID.String())
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, websocket.EventAssessmentReviewed, a)
	return r, nil
}

// MarkSent records dispatch to the patient.
func (s *Service) MarkSent(ctx context.Context, a *Assessment, actor string) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.MarkSent(ctx, a.ID); err != nil {
			return err
		}
		now := s.now().UTC()
		a.Status = StatusSent
		a.SentAt = &now
		return s.record(ctx, actor, audit.ActionAssessmentSent, a.ID, "sent to patient")
	})
}

// ExpireIfStale lazily expires a reviewable assessment older than the TTL.
func (s *Service) ExpireIfStale(ctx context.Context, a *Assessment) (bool, error) {
	if !a.Expired(s.ttl, s.now()) {
		return false, nil
	}
	if err := s.Transition(ctx, a, StatusExpired, "system"); err != nil {
		return false, err
	}
	s.logger.Info().Str("assessment_id", a.ID.String()).Msg("assessment expired")
	return true, nil
}

func (s *Service) record(ctx context.Context, actor, action string, id uuid.UUID, desc string) error {
	if action == "" || s.audit == nil {
		return nil
	}
	if err := s.audit.Record(ctx, audit.New(actor, action, "Assessment", id.String(), desc)); err != nil {
		return fmt.Errorf("audit %s: %w", action, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType string, a *Assessment) {
	if s.events == nil {
		return
	}
	ev := websocket.NewEvent(eventType, websocket.TopicAssessments, "Assessment", a.ID.String(),
		map[string]string{"status": string(a.Status), "session_id": a.SessionID.String()})
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("publish failed")
	}
}
