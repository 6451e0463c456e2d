// Package payment sells consultation credits. A patient picks a numbered
// package, pays through a hosted checkout link, and the provider's signed
// callback settles the transaction exactly once.
package payment

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Package is one credit bundle on the menu.
type Package struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Credits     int    `json:"credits"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
}

// DefaultPackages is the menu, cheapest first. Menu numbers are positions in
// this list.
var DefaultPackages = []Package{
	{Code: "single", Name: "Single Consultation", Credits: 1, AmountMinor: 200000, Currency: "NGN"},
	{Code: "bundle", Name: "Care Bundle", Credits: 3, AmountMinor: 500000, Currency: "NGN", Description: "Best for follow-ups"},
	{Code: "family", Name: "Family Pack", Credits: 10, AmountMinor: 1500000, Currency: "NGN", Description: "Share with your household"},
}

const (
	StatusPending = "PENDING"
	StatusSettled = "SETTLED"
)

// Transaction is one checkout. TxRef is the provider-facing reference and
// is unique.
type Transaction struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	TxRef       string     `db:"tx_ref" json:"tx_ref"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	SessionID   uuid.UUID  `db:"session_id" json:"session_id"`
	PackageCode string     `db:"package_code" json:"package_code"`
	Credits     int        `db:"credits" json:"credits"`
	AmountMinor int64      `db:"amount_minor" json:"amount_minor"`
	Currency    string     `db:"currency" json:"currency"`
	Status      string     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	SettledAt   *time.Time `db:"settled_at" json:"settled_at,omitempty"`
}

func newTxRef() string {
	return "PKG-" + ulid.Make().String()
}

var currencySymbols = map[string]string{
	"NGN": "₦",
	"USD": "$",
	"GBP": "£",
	"EUR": "€",
}

// formatAmount renders minor units as a whole amount with thousands
// separators, e.g. 200000 NGN as ₦2,000.
func formatAmount(minor int64, currency string) string {
	major := minor / 100
	digits := strconv.FormatInt(major, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if cents := minor % 100; cents != 0 {
		fmt.Fprintf(&b, ".%02d", cents)
	}
	if sym, ok := currencySymbols[currency]; ok {
		return sym + b.String()
	}
	return currency + " " + b.String()
}
