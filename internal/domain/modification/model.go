// Package modification is the clinician-side editor for an assessment's
// content blocks. A clinician walks MEDICATIONS, RECOMMENDATIONS,
// MONITORING, NOTES and CONFIRM in order; confirming stores an immutable
// MODIFIED review on the assessment.
package modification

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/triage/internal/domain/assessment"
)

// Step is the position in the editing sequence.
type Step string

const (
	StepMedications     Step = "MEDICATIONS"
	StepRecommendations Step = "RECOMMENDATIONS"
	StepMonitoring      Step = "MONITORING"
	StepNotes           Step = "NOTES"
	StepConfirm         Step = "CONFIRM"
)

var nextStep = map[Step]Step{
	StepMedications:     StepRecommendations,
	StepRecommendations: StepMonitoring,
	StepMonitoring:      StepNotes,
	StepNotes:           StepConfirm,
}

type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusExpired    Status = "EXPIRED"
)

// DefaultTTL is how long an edit may stay open.
const DefaultTTL = time.Hour

// Session is one clinician's in-flight edit of one assessment. A nil block
// has not been touched and still means the original; once set it is a
// private copy and the original is never read for it again.
type Session struct {
	ID              uuid.UUID                       `db:"id" json:"id"`
	ClinicianID     uuid.UUID                       `db:"clinician_id" json:"clinician_id"`
	AssessmentID    uuid.UUID                       `db:"assessment_id" json:"assessment_id"`
	Step            Step                            `db:"step" json:"step"`
	Status          Status                          `db:"status" json:"status"`
	Medications     *assessment.MedicationBlock     `db:"medications" json:"medications,omitempty"`
	Recommendations *assessment.RecommendationBlock `db:"recommendations" json:"recommendations,omitempty"`
	Monitoring      *assessment.MonitoringBlock     `db:"monitoring" json:"monitoring,omitempty"`
	Notes           string                          `db:"notes" json:"notes"`
	CreatedAt       time.Time                       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time                       `db:"updated_at" json:"updated_at"`
}

// Expired reports whether an in-progress session has outlived ttl.
func (s *Session) Expired(ttl time.Duration, now time.Time) bool {
	return s.Status == StatusInProgress && ttl > 0 && now.Sub(s.CreatedAt) > ttl
}

// Content returns the blocks to submit: edited copies where present, the
// original otherwise.
func (s *Session) Content(original assessment.Content) assessment.Content {
	out := original.Clone()
	if s.Medications != nil {
		out.Medications = s.Medications.Clone()
	}
	if s.Recommendations != nil {
		out.Recommendations = s.Recommendations.Clone()
	}
	if s.Monitoring != nil {
		out.Monitoring = s.Monitoring.Clone()
	}
	return out
}

// Ref is the short id shown to clinicians.
func (s *Session) Ref() string {
	return s.ID.String()[:8]
}
