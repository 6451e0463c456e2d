package clinician

import (
	"time"

	"github.com/google/uuid"
)

// Status values for clinician availability.
const (
	StatusAvailable = "AVAILABLE"
	StatusOnCall    = "ON_CALL"
	StatusBusy      = "BUSY"
	StatusOffline   = "OFFLINE"
)

var validStatuses = map[string]bool{
	StatusAvailable: true, StatusOnCall: true, StatusBusy: true, StatusOffline: true,
}

// Clinician is a reviewer reachable over the messaging channel.
type Clinician struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	Phone               string    `db:"phone" json:"phone"`
	Name                string    `db:"name" json:"name"`
	Status              string    `db:"status" json:"status"`
	CurrentPatientCount int       `db:"current_patient_count" json:"current_patient_count"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// Assignable reports whether the clinician may receive new sessions.
func (c *Clinician) Assignable() bool {
	return c.Status == StatusAvailable || c.Status == StatusOnCall
}

// InboundMessage is one console message received from a clinician phone.
type InboundMessage struct {
	ID                uuid.UUID `db:"id" json:"id"`
	ClinicianID       uuid.UUID `db:"clinician_id" json:"clinician_id"`
	Body              string    `db:"body" json:"body"`
	ProviderMessageID string    `db:"provider_message_id" json:"provider_message_id,omitempty"`
	ReceivedAt        time.Time `db:"received_at" json:"received_at"`
}
