package payment

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/domain/patient"
	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/audit"
	"github.com/ehr/triage/internal/platform/messaging"
)

type fakeResumer struct {
	calls  []uuid.UUID
	resume bool
}

func (f *fakeResumer) ResumeAfterPayment(_ context.Context, sessionID uuid.UUID) (bool, error) {
	f.calls = append(f.calls, sessionID)
	return f.resume, nil
}

type fixture struct {
	svc      *Service
	patients *patient.Service
	resumer  *fakeResumer
	ch       *messaging.Mock
	audit    *audit.Memory
	patient  *patient.Patient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	patients := patient.NewService(patient.NewMemoryRepo())
	p, err := patients.GetOrCreateByPhone(context.Background(), "+2348000000001")
	if err != nil {
		t.Fatalf("patient: %v", err)
	}
	f := &fixture{
		patients: patients,
		resumer:  &fakeResumer{resume: true},
		ch:       messaging.NewMock(),
		audit:    &audit.Memory{},
		patient:  p,
	}
	f.svc = NewService(Deps{
		Repo:        NewMemoryRepo(),
		Patients:    patients,
		Resumer:     f.resumer,
		Channel:     f.ch,
		Audit:       f.audit,
		Logger:      zerolog.Nop(),
		CheckoutURL: "https://checkout.example/pay",
	})
	return f
}

// checkout buys package n and returns the transaction reference from the link.
func (f *fixture) checkout(t *testing.T, sessionID uuid.UUID, n string) string {
	t.Helper()
	text, err := f.svc.Checkout(context.Background(), f.patient, sessionID, n)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	i := strings.Index(text, "https://")
	if i < 0 {
		t.Fatalf("expected a link in %q", text)
	}
	u, err := url.Parse(text[i:])
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	return u.Query().Get("tx_ref")
}

func TestMenu(t *testing.T) {
	f := newFixture(t)
	menu, _ := f.svc.Menu(context.Background())
	for _, want := range []string{"*1. Single Consultation*", "1 Session @ ₦2,000", "3 Sessions @ ₦5,000", "*3. Family Pack*", "₦15,000"} {
		if !strings.Contains(menu, want) {
			t.Errorf("expected %q in menu:\n%s", want, menu)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		minor    int64
		currency string
		want     string
	}{
		{200000, "NGN", "₦2,000"},
		{123456789, "USD", "$1,234,567.89"},
		{99, "KES", "KES 0.99"},
	}
	for _, tt := range tests {
		if got := formatAmount(tt.minor, tt.currency); got != tt.want {
			t.Errorf("formatAmount(%d, %s) = %q, want %q", tt.minor, tt.currency, got, tt.want)
		}
	}
}

func TestCheckout_UnknownChoice(t *testing.T) {
	f := newFixture(t)
	for _, choice := range []string{"0", "4", "x", ""} {
		_, err := f.svc.Checkout(context.Background(), f.patient, uuid.New(), choice)
		if !apperr.IsKind(err, apperr.KindInput) {
			t.Errorf("choice %q: expected input error, got %v", choice, err)
		}
	}
}

func TestCheckout_CreatesPendingTransaction(t *testing.T) {
	f := newFixture(t)
	sessionID := uuid.New()
	ref := f.checkout(t, sessionID, "2")
	if !strings.HasPrefix(ref, "PKG-") {
		t.Fatalf("unexpected reference %q", ref)
	}
	tx, err := f.svc.Get(context.Background(), ref)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tx.Status != StatusPending || tx.Credits != 3 || tx.SessionID != sessionID {
		t.Errorf("unexpected transaction %+v", tx)
	}
}

func TestConfirm_IdempotentAndResumes(t *testing.T) {
	f := newFixture(t)
	sessionID := uuid.New()
	ref := f.checkout(t, sessionID, "1")
	ctx := context.Background()

	tx, err := f.svc.Confirm(ctx, ref)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if tx.Status != StatusSettled || tx.SettledAt == nil {
		t.Errorf("expected SETTLED, got %s", tx.Status)
	}
	if _, err := f.svc.Confirm(ctx, ref); err != nil {
		t.Fatalf("second confirm: %v", err)
	}

	p, _ := f.patients.Get(ctx, f.patient.ID)
	if p.Credits != 1 {
		t.Errorf("expected 1 credit after two confirmations, got %d", p.Credits)
	}
	if len(f.resumer.calls) != 1 || f.resumer.calls[0] != sessionID {
		t.Errorf("expected one resume of %s, got %v", sessionID, f.resumer.calls)
	}
	if f.audit.Count(audit.ActionPaymentSettled) != 1 {
		t.Error("expected one settlement audit entry")
	}
	if len(f.ch.Sent()) != 0 {
		t.Error("resumed sessions carry their own message; no receipt expected")
	}
}

func TestConfirm_ReceiptWhenNothingToResume(t *testing.T) {
	f := newFixture(t)
	f.resumer.resume = false
	ref := f.checkout(t, uuid.New(), "3")
	if _, err := f.svc.Confirm(context.Background(), ref); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	last := f.ch.Last(f.patient.Phone)
	if !strings.Contains(last, "PAYMENT SUCCESSFUL") || !strings.Contains(last, "Total balance: 10 credits") {
		t.Errorf("unexpected receipt %q", last)
	}
}

func TestConfirm_UnknownReference(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Confirm(context.Background(), "PKG-NOPE"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
