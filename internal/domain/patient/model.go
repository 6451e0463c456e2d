package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient is a messaging-channel user identified by phone number.
type Patient struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	Phone           string     `db:"phone" json:"phone"`
	Name            string     `db:"name" json:"name"`
	Credits         int        `db:"credits" json:"credits"`
	TermsAcceptedAt *time.Time `db:"terms_accepted_at" json:"terms_accepted_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// DisplayName is the name used in patient-facing text.
func (p *Patient) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return "there"
}

// HasAcceptedTerms reports whether the user agreement was accepted.
func (p *Patient) HasAcceptedTerms() bool {
	return p.TermsAcceptedAt != nil
}
