package finalizer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/domain/assessment"
	"github.com/ehr/triage/internal/domain/clinician"
	"github.com/ehr/triage/internal/domain/conversation"
	"github.com/ehr/triage/internal/domain/patient"
	"github.com/ehr/triage/internal/domain/validator"
	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/audit"
	"github.com/ehr/triage/internal/platform/blobstore"
	"github.com/ehr/triage/internal/platform/db"
	"github.com/ehr/triage/internal/platform/messaging"
	"github.com/ehr/triage/internal/platform/metrics"
	"github.com/ehr/triage/internal/platform/websocket"
)

// Conversations is the session side of a send.
type Conversations interface {
	Get(ctx context.Context, id uuid.UUID) (*conversation.Session, error)
	LockPatient(ctx context.Context, patientID uuid.UUID) (func(), error)
	CompleteSend(ctx context.Context, sessionID, clinicianID uuid.UUID, body string) (*conversation.Session, error)
}

type Deps struct {
	Attempts      Repository
	Assessments   *assessment.Service
	Validator     *validator.Validator
	Conversations Conversations
	Patients      *patient.Service
	Clinicians    *clinician.Service
	Channel       messaging.Channel
	Blobs         blobstore.BlobStore
	// MediaBaseURL is the public prefix the provider fetches documents from.
	MediaBaseURL string
	Tx           db.Transactor
	Audit        audit.Sink
	Events       websocket.EventPublisher
	Logger       zerolog.Logger
}

type Service struct {
	attempts      Repository
	assessments   *assessment.Service
	validator     *validator.Validator
	conversations Conversations
	patients      *patient.Service
	clinicians    *clinician.Service
	channel       messaging.Channel
	blobs         blobstore.BlobStore
	mediaBaseURL  string
	tx            db.Transactor
	audit         audit.Sink
	events        websocket.EventPublisher
	logger        zerolog.Logger
	now           func() time.Time
}

func NewService(d Deps) *Service {
	if d.Tx == nil {
		d.Tx = db.NoopTransactor{}
	}
	if d.Validator == nil {
		d.Validator = validator.New(nil)
	}
	return &Service{
		attempts:      d.Attempts,
		assessments:   d.Assessments,
		validator:     d.Validator,
		conversations: d.Conversations,
		patients:      d.Patients,
		clinicians:    d.Clinicians,
		channel:       d.Channel,
		blobs:         d.Blobs,
		mediaBaseURL:  strings.TrimSuffix(d.MediaBaseURL, "/"),
		tx:            d.Tx,
		audit:         d.Audit,
		events:        d.Events,
		logger:        d.Logger,
		now:           time.Now,
	}
}

// Prepare validates the content that would be sent and opens a send attempt
// for the clinician. The reply carries the validation report and the command
// that completes the send.
func (s *Service) Prepare(ctx context.Context, clinicianID, assessmentID uuid.UUID) (*Prepared, error) {
	a, err := s.assessments.Get(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, clinicianID, a); err != nil {
		return nil, err
	}
	if err := s.checkSendable(ctx, a); err != nil {
		return nil, err
	}
	_, _, res, err := s.validate(ctx, a)
	if err != nil {
		return nil, err
	}

	attempt := &SendAttempt{
		ID:             ulid.Make().String(),
		AssessmentID:   a.ID,
		SessionID:      a.SessionID,
		ClinicianID:    clinicianID,
		Severity:       res.Severity,
		Recommendation: res.Recommendation,
		Status:         AttemptPending,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("create send attempt: %w", err)
	}
	s.logger.Info().
		Str("attempt_id", attempt.ID).
		Str("assessment_id", a.ID.String()).
		Str("severity", string(res.Severity)).
		Str("recommendation", string(res.Recommendation)).
		Msg("send prepared")

	ref := a.ID.String()[:8]
	var next string
	switch res.Recommendation {
	case validator.RecommendSend:
		next = fmt.Sprintf("Reply *confirm %s* to send it to the patient.", ref)
	case validator.RecommendReview:
		next = fmt.Sprintf("Review the findings. Reply *override %s <reason>* to send anyway, or *modify %s* to edit.", ref, ref)
	default:
		next = fmt.Sprintf("Sending is blocked. Reply *modify %s* to edit the assessment.", ref)
	}
	return &Prepared{Attempt: attempt, Result: res, Reply: res.Report() + "\n\n" + next}, nil
}

// Confirm dispatches a prepared send whose fresh validation still
// recommends SEND.
func (s *Service) Confirm(ctx context.Context, clinicianID, assessmentID uuid.UUID) (*Dispatch, error) {
	return s.finish(ctx, clinicianID, assessmentID, "")
}

// Override dispatches a prepared send that validation flags for review. The
// reason is audited. CRITICAL findings cannot be overridden.
func (s *Service) Override(ctx context.Context, clinicianID, assessmentID uuid.UUID, reason string) (*Dispatch, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Input("An override needs a reason.")
	}
	return s.finish(ctx, clinicianID, assessmentID, reason)
}

// finish runs the send under the patient lock so it cannot interleave with
// the patient's own messages or a second send.
func (s *Service) finish(ctx context.Context, clinicianID, assessmentID uuid.UUID, reason string) (*Dispatch, error) {
	a, err := s.assessments.Get(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.conversations.LockPatient(ctx, a.PatientID)
	if err != nil {
		return nil, fmt.Errorf("lock patient: %w", err)
	}
	defer unlock()

	if a, err = s.assessments.Get(ctx, assessmentID); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, clinicianID, a); err != nil {
		return nil, err
	}
	if err := s.checkSendable(ctx, a); err != nil {
		return nil, err
	}
	ref := a.ID.String()[:8]
	attempt, err := s.attempts.Pending(ctx, a.ID, clinicianID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return nil, apperr.Inputf("No pending send for %s. Reply *send %s* first.", ref, ref)
	}
	if err != nil {
		return nil, err
	}

	content, notes, res, err := s.validate(ctx, a)
	if err != nil {
		return nil, err
	}
	attempt.Severity, attempt.Recommendation = res.Severity, res.Recommendation
	switch {
	case res.Recommendation == validator.RecommendDoNotSend:
		s.saveAttempt(ctx, attempt)
		return nil, apperr.ValidationBlock(fmt.Sprintf("Sending is blocked by %d critical issue(s). Reply *modify %s* to edit.", res.Count(validator.SeverityCritical), ref))
	case res.Recommendation == validator.RecommendReview && reason == "":
		s.saveAttempt(ctx, attempt)
		return nil, apperr.Inputf("Validation flagged issues. Reply *override %s <reason>* to send anyway.", ref)
	}
	return s.dispatch(ctx, attempt, a, content, notes, res, reason)
}

// dispatch commits the send as one unit: assessment SENT, session
// DIRECT_MESSAGING with the outbound message, the attempt closed, and the
// text delivered last so a failed delivery rolls the rest back. The document
// follows outside the transaction.
func (s *Service) dispatch(ctx context.Context, attempt *SendAttempt, a *assessment.Assessment, content assessment.Content, notes string, res validator.Result, reason string) (*Dispatch, error) {
	p, err := s.patients.Get(ctx, a.PatientID)
	if err != nil {
		return nil, err
	}
	c, err := s.clinicians.Get(ctx, attempt.ClinicianID)
	if err != nil {
		return nil, err
	}
	body := message(a, p, c, content, notes)
	actor := "clinician:" + attempt.ClinicianID.String()
	overridden := res.Recommendation == validator.RecommendReview
	now := s.now().UTC()

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if overridden {
			desc := fmt.Sprintf("send override at %s severity: %s", res.Severity, reason)
			if err := s.record(ctx, actor, audit.ActionSendOverride, a.ID, desc); err != nil {
				return err
			}
		}
		if err := s.assessments.MarkSent(ctx, a, actor); err != nil {
			return err
		}
		if _, err := s.conversations.CompleteSend(ctx, a.SessionID, attempt.ClinicianID, body); err != nil {
			return err
		}
		attempt.Status = AttemptDispatched
		attempt.OverrideReason = reason
		attempt.DispatchedAt = &now
		if err := s.attempts.Update(ctx, attempt); err != nil {
			return err
		}
		if err := s.channel.Send(ctx, p.Phone, body); err != nil {
			return fmt.Errorf("deliver assessment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	path := "confirm"
	if overridden {
		path = "override"
	}
	metrics.RecordDispatch(path)
	s.publish(ctx, a, attempt.ClinicianID)
	docID := s.sendDocument(ctx, a, p, c, content, notes, now)

	s.logger.Info().
		Str("attempt_id", attempt.ID).
		Str("assessment_id", a.ID.String()).
		Str("session_id", a.SessionID.String()).
		Bool("override", overridden).
		Msg("assessment sent")
	return &Dispatch{Attempt: attempt, Body: body, DocumentID: docID, Overridden: overridden}, nil
}

// sendDocument stores the consultation summary and sends it as media. A
// failure here does not undo the send.
func (s *Service) sendDocument(ctx context.Context, a *assessment.Assessment, p *patient.Patient, c *clinician.Clinician, content assessment.Content, notes string, at time.Time) string {
	if s.blobs == nil {
		return ""
	}
	meta, err := s.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:     fmt.Sprintf("consultation-%s.txt", a.ID.String()[:8]),
		ContentType:  "text/plain",
		SessionID:    a.SessionID.String(),
		AssessmentID: a.ID.String(),
		CreatedBy:    "clinician:" + c.ID.String(),
	}, bytes.NewReader(document(a, p, c, content, notes, at)))
	if err != nil {
		s.logger.Error().Err(err).Str("assessment_id", a.ID.String()).Msg("store consultation document")
		return ""
	}
	url := s.mediaBaseURL + "/media/" + meta.ID
	if err := s.channel.SendMedia(ctx, p.Phone, url, "Your consultation summary"); err != nil {
		s.logger.Warn().Err(err).Str("assessment_id", a.ID.String()).Msg("send consultation document")
	}
	return meta.ID
}

// authorize hides assessments whose session is not assigned to the
// clinician.
func (s *Service) authorize(ctx context.Context, clinicianID uuid.UUID, a *assessment.Assessment) error {
	sess, err := s.conversations.Get(ctx, a.SessionID)
	if err != nil {
		return err
	}
	if !sess.AssignedTo(clinicianID) {
		return apperr.NotFound("assessment")
	}
	return nil
}

func (s *Service) checkSendable(ctx context.Context, a *assessment.Assessment) error {
	expired, err := s.assessments.ExpireIfStale(ctx, a)
	if err != nil {
		return err
	}
	switch {
	case expired:
		return apperr.Conflict("assessment has expired and can no longer be sent")
	case a.Status == assessment.StatusPendingReview:
		return apperr.Conflict("approve or modify the assessment before sending it")
	case !a.Status.Sendable():
		return apperr.Conflict(fmt.Sprintf("assessment is %s and cannot be sent", a.Status))
	}
	return nil
}

// validate recomputes the result on every call; results are never cached.
func (s *Service) validate(ctx context.Context, a *assessment.Assessment) (assessment.Content, string, validator.Result, error) {
	content, notes, _, err := s.assessments.FinalContent(ctx, a)
	if err != nil {
		return assessment.Content{}, "", validator.Result{}, err
	}
	res := s.validator.Check(a, content, notes)
	metrics.RecordValidation(string(res.Recommendation))
	return content, notes, res, nil
}

func (s *Service) saveAttempt(ctx context.Context, attempt *SendAttempt) {
	if err := s.attempts.Update(ctx, attempt); err != nil {
		s.logger.Warn().Err(err).Str("attempt_id", attempt.ID).Msg("update send attempt")
	}
}

func (s *Service) record(ctx context.Context, actor, action string, id uuid.UUID, desc string) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, audit.New(actor, action, "Assessment", id.String(), desc))
}

func (s *Service) publish(ctx context.Context, a *assessment.Assessment, clinicianID uuid.UUID) {
	if s.events == nil {
		return
	}
	data := map[string]string{"session_id": a.SessionID.String(), "clinician_id": clinicianID.String()}
	for _, topic := range []string{websocket.TopicAssessments, websocket.ClinicianTopic(clinicianID.String())} {
		ev := websocket.NewEvent(websocket.EventAssessmentSent, topic, "Assessment", a.ID.String(), data)
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.Warn().Err(err).Msg("publish failed")
		}
	}
}
