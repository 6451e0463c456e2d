package assessment

import (
	"time"

	"github.com/google/uuid"
)

// ReviewStatus is the assessment lifecycle, independent of conversation state.
type ReviewStatus string

const (
	StatusDraft         ReviewStatus = "DRAFT"
	StatusGenerated     ReviewStatus = "GENERATED"
	StatusPendingReview ReviewStatus = "PENDING_REVIEW"
	StatusApproved      ReviewStatus = "APPROVED"
	StatusModified      ReviewStatus = "MODIFIED"
	StatusRejected      ReviewStatus = "REJECTED"
	StatusSent          ReviewStatus = "SENT_TO_PATIENT"
	StatusExpired       ReviewStatus = "EXPIRED"
)

var transitions = map[ReviewStatus][]ReviewStatus{
	StatusDraft:         {StatusGenerated},
	StatusGenerated:     {StatusPendingReview},
	StatusPendingReview: {StatusApproved, StatusModified, StatusRejected, StatusExpired},
	StatusApproved:      {StatusModified, StatusRejected, StatusSent, StatusExpired},
	StatusModified:      {StatusModified, StatusRejected, StatusSent, StatusExpired},
	StatusSent:          {StatusExpired},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to ReviewStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Reviewable reports whether a clinician may still act on the assessment.
func (s ReviewStatus) Reviewable() bool {
	return s == StatusPendingReview || s == StatusApproved || s == StatusModified
}

// Sendable reports whether the assessment has been signed off for sending.
func (s ReviewStatus) Sendable() bool {
	return s == StatusApproved || s == StatusModified
}

// Assessment is the generated clinical content for one session.
type Assessment struct {
	ID              uuid.UUID           `db:"id" json:"id"`
	SessionID       uuid.UUID           `db:"session_id" json:"session_id"`
	PatientID       uuid.UUID           `db:"patient_id" json:"patient_id"`
	ChiefComplaint  string              `db:"chief_complaint" json:"chief_complaint"`
	PatientAge      *int                `db:"patient_age" json:"patient_age,omitempty"`
	PatientGender   *string             `db:"patient_gender" json:"patient_gender,omitempty"`
	Symptoms        SymptomOverview     `db:"symptoms" json:"symptoms_overview"`
	Observations    Observations        `db:"observations" json:"key_observations"`
	Recommendations RecommendationBlock `db:"recommendations" json:"preliminary_recommendations"`
	Medications     MedicationBlock     `db:"medications" json:"otc_suggestions"`
	Monitoring      MonitoringBlock     `db:"monitoring" json:"monitoring_advice"`
	RedFlags        []string            `db:"red_flags" json:"red_flags_detected"`
	Confidence      float64             `db:"confidence" json:"confidence_score"`
	Status          ReviewStatus        `db:"status" json:"status"`
	GeneratedAt     time.Time           `db:"generated_at" json:"generated_at"`
	SentAt          *time.Time          `db:"sent_at" json:"sent_at,omitempty"`
	UpdatedAt       time.Time           `db:"updated_at" json:"updated_at"`
}

// Content returns a deep copy of the modifiable blocks.
func (a *Assessment) Content() Content {
	return Content{
		Medications:     a.Medications.Clone(),
		Recommendations: a.Recommendations.Clone(),
		Monitoring:      a.Monitoring.Clone(),
	}
}

// Condition is the likely condition, or a neutral label.
func (a *Assessment) Condition() string {
	if a.Observations.LikelyCondition != "" {
		return a.Observations.LikelyCondition
	}
	return "Health Concern"
}

// Expired reports whether a reviewable assessment is older than ttl.
func (a *Assessment) Expired(ttl time.Duration, now time.Time) bool {
	return ttl > 0 && a.Status.Reviewable() && now.Sub(a.GeneratedAt) > ttl
}

// Review actions.
const (
	ActionApproved = "APPROVED"
	ActionModified = "MODIFIED"
	ActionRejected = "REJECTED"
)

// Review is the immutable record of a clinician decision. For MODIFIED
// reviews the blocks hold the content to send; nil blocks fall back to the
// original.
type Review struct {
	ID              uuid.UUID            `db:"id" json:"id"`
	AssessmentID    uuid.UUID            `db:"assessment_id" json:"assessment_id"`
	ClinicianID     uuid.UUID            `db:"clinician_id" json:"clinician_id"`
	Action          string               `db:"action" json:"action"`
	Notes           string               `db:"notes" json:"notes"`
	Medications     *MedicationBlock     `db:"medications" json:"medications,omitempty"`
	Recommendations *RecommendationBlock `db:"recommendations" json:"recommendations,omitempty"`
	Monitoring      *MonitoringBlock     `db:"monitoring" json:"monitoring,omitempty"`
	CreatedAt       time.Time            `db:"created_at" json:"created_at"`
}

// Merge returns the content that should reach the patient: modified blocks
// where present, the original otherwise.
func (r *Review) Merge(original Content) Content {
	out := original.Clone()
	if r == nil || r.Action != ActionModified {
		return out
	}
	if r.Medications != nil {
		out.Medications = r.Medications.Clone()
	}
	if r.Recommendations != nil {
		out.Recommendations = r.Recommendations.Clone()
	}
	if r.Monitoring != nil {
		out.Monitoring = r.Monitoring.Clone()
	}
	return out
}

// Final returns the merged content and clinician notes for an assessment
// given its latest review, which may be nil. Only MODIFIED reviews carry
// patient-facing notes.
func Final(a *Assessment, r *Review) (Content, string) {
	if r == nil || r.Action != ActionModified {
		return a.Content(), ""
	}
	return r.Merge(a.Content()), r.Notes
}
