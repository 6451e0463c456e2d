// Package finalizer gates the dispatch of a reviewed assessment to the
// patient. Every send is validated first; the recommendation decides whether
// the clinician confirms, overrides with a reason, or must edit.
package finalizer

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/triage/internal/domain/validator"
)

type AttemptStatus string

const (
	AttemptPending    AttemptStatus = "PENDING"
	AttemptDispatched AttemptStatus = "DISPATCHED"
	AttemptSuperseded AttemptStatus = "SUPERSEDED"
)

// SendAttempt is one clinician's pending send of one assessment, with the
// validation outcome last computed for it. IDs are ULIDs so attempts sort by
// creation time.
type SendAttempt struct {
	ID             string                   `db:"id" json:"id"`
	AssessmentID   uuid.UUID                `db:"assessment_id" json:"assessment_id"`
	SessionID      uuid.UUID                `db:"session_id" json:"session_id"`
	ClinicianID    uuid.UUID                `db:"clinician_id" json:"clinician_id"`
	Severity       validator.Severity       `db:"severity" json:"severity"`
	Recommendation validator.Recommendation `db:"recommendation" json:"recommendation"`
	Status         AttemptStatus            `db:"status" json:"status"`
	OverrideReason string                   `db:"override_reason" json:"override_reason,omitempty"`
	CreatedAt      time.Time                `db:"created_at" json:"created_at"`
	DispatchedAt   *time.Time               `db:"dispatched_at" json:"dispatched_at,omitempty"`
}

// Prepared is the outcome of a send request: the attempt awaiting the
// clinician's decision and the report shown to them.
type Prepared struct {
	Attempt *SendAttempt
	Result  validator.Result
	Reply   string
}

// Dispatch describes a completed send.
type Dispatch struct {
	Attempt    *SendAttempt
	Body       string
	DocumentID string
	Overridden bool
}
