package escalation

import (
	"time"

	"github.com/google/uuid"
)

// Alert severities.
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
)

var severityRank = map[string]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Alert statuses.
const (
	StatusPending      = "PENDING"
	StatusAcknowledged = "ACKNOWLEDGED"
	StatusHandled      = "HANDLED"
)

// Alert is raised when a red flag fires or a patient asks for a human. Its
// lifecycle is independent of the session it references.
type Alert struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	SessionID       uuid.UUID  `db:"session_id" json:"session_id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	ClinicianID     *uuid.UUID `db:"clinician_id" json:"clinician_id,omitempty"`
	Severity        string     `db:"severity" json:"severity"`
	Status          string     `db:"status" json:"status"`
	TriggerText     string     `db:"trigger_text" json:"trigger_text"`
	Message         string     `db:"message" json:"message"`
	RaisedAt        time.Time  `db:"raised_at" json:"raised_at"`
	AcknowledgedAt  *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	HandledAt       *time.Time `db:"handled_at" json:"handled_at,omitempty"`
	HandledBy       *uuid.UUID `db:"handled_by" json:"handled_by,omitempty"`
	ResolutionNotes string     `db:"resolution_notes" json:"resolution_notes"`
}

// Open reports whether the alert still needs attention.
func (a *Alert) Open() bool {
	return a.Status == StatusPending || a.Status == StatusAcknowledged
}

// Ref is the short id shown in clinician messages.
func (a *Alert) Ref() string {
	return a.ID.String()[:8]
}
