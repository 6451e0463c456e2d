package conversation

import (
	"time"

	"github.com/google/uuid"
)

// State is the patient-facing conversation state.
type State string

const (
	StateInitial                State = "INITIAL"
	StateAwaitingAcceptance     State = "AWAITING_ACCEPTANCE"
	StateModeSelection          State = "MODE_SELECTION"
	StateAIOnlyActive           State = "AI_ONLY_ACTIVE"
	StateAwaitingProfile        State = "AWAITING_PATIENT_PROFILE"
	StateTriageInProgress       State = "AI_TRIAGE_IN_PROGRESS"
	StatePendingPayment         State = "PENDING_PAYMENT"
	StatePendingClinicianReview State = "PENDING_CLINICIAN_REVIEW"
	StateDirectMessaging        State = "DIRECT_MESSAGING"
	StateEscalationConsent      State = "ESCALATION_CONSENT"
	StateEscalated              State = "ESCALATED"
	StateClosed                 State = "CLOSED"
)

// Terminal reports whether no further inbound handling happens in s.
func (s State) Terminal() bool { return s == StateClosed }

// HumanInLoop reports whether a clinician already owns the conversation.
func (s State) HumanInLoop() bool {
	return s == StatePendingClinicianReview || s == StateDirectMessaging || s == StateEscalated
}

// Mode is fixed at mode selection and never derived from State.
type Mode string

const (
	ModeUnset     Mode = ""
	ModeAIOnly    Mode = "AI_ONLY"
	ModeClinician Mode = "CLINICIAN"
)

// Session is one patient-facing conversation. At most one non-CLOSED session
// exists per patient.
type Session struct {
	ID                       uuid.UUID  `db:"id" json:"id"`
	PatientID                uuid.UUID  `db:"patient_id" json:"patient_id"`
	State                    State      `db:"state" json:"state"`
	Mode                     Mode       `db:"mode" json:"mode"`
	ClinicianID              *uuid.UUID `db:"clinician_id" json:"clinician_id,omitempty"`
	ChiefComplaint           string     `db:"chief_complaint" json:"chief_complaint"`
	PatientAge               *int       `db:"patient_age" json:"patient_age,omitempty"`
	PatientGender            *string    `db:"patient_gender" json:"patient_gender,omitempty"`
	Escalated                bool       `db:"escalated" json:"escalated"`
	EscalationReason         string     `db:"escalation_reason" json:"escalation_reason"`
	QuestionsAsked           int        `db:"questions_asked" json:"questions_asked"`
	CreatedAt                time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time  `db:"updated_at" json:"updated_at"`
	TriageCompletedAt        *time.Time `db:"triage_completed_at" json:"triage_completed_at,omitempty"`
	ClinicianAssignedAt      *time.Time `db:"clinician_assigned_at" json:"clinician_assigned_at,omitempty"`
	FirstClinicianResponseAt *time.Time `db:"first_clinician_response_at" json:"first_clinician_response_at,omitempty"`
	ClosedAt                 *time.Time `db:"closed_at" json:"closed_at,omitempty"`
}

// Ref is the short id shown to clinicians.
func (s *Session) Ref() string {
	return s.ID.String()[:8]
}

// ProfileComplete reports whether age, gender and complaint are known.
func (s *Session) ProfileComplete() bool {
	return s.PatientAge != nil && s.PatientGender != nil && s.ChiefComplaint != ""
}

// AssignedTo reports whether the session belongs to clinician id.
func (s *Session) AssignedTo(id uuid.UUID) bool {
	return s.ClinicianID != nil && *s.ClinicianID == id
}

// Exchange is one triage question and the patient's answer. Order indexes
// start at 1 and have no gaps; an answer is never overwritten.
type Exchange struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	SessionID  uuid.UUID  `db:"session_id" json:"session_id"`
	OrderIndex int        `db:"order_index" json:"order_index"`
	Question   string     `db:"question" json:"question"`
	Response   *string    `db:"response" json:"response,omitempty"`
	AskedAt    time.Time  `db:"asked_at" json:"asked_at"`
	AnsweredAt *time.Time `db:"answered_at" json:"answered_at,omitempty"`
}

// Answered reports whether a response has been recorded.
func (e *Exchange) Answered() bool { return e.Response != nil }

// Message directions.
const (
	DirectionIn  = "IN"
	DirectionOut = "OUT"
)

// Sender roles.
const (
	RolePatient   = "PATIENT"
	RoleAI        = "AI"
	RoleSystem    = "SYSTEM"
	RoleClinician = "CLINICIAN"
)

// Message is the log of every inbound and outbound text in a session.
type Message struct {
	ID                uuid.UUID `db:"id" json:"id"`
	SessionID         uuid.UUID `db:"session_id" json:"session_id"`
	Direction         string    `db:"direction" json:"direction"`
	SenderRole        string    `db:"sender_role" json:"sender_role"`
	Body              string    `db:"body" json:"body"`
	MediaRef          string    `db:"media_ref" json:"media_ref,omitempty"`
	ProviderMessageID string    `db:"provider_message_id" json:"provider_message_id,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}
