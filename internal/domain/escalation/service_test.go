package escalation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/domain/clinician"
	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/audit"
	"github.com/ehr/triage/internal/platform/auth"
	"github.com/ehr/triage/internal/platform/db"
	"github.com/ehr/triage/internal/platform/messaging"
	"github.com/ehr/triage/internal/platform/notification"
	"github.com/ehr/triage/internal/platform/websocket"
)

type fixture struct {
	svc        *Service
	clinicians *clinician.Service
	channel    *messaging.Mock
	audit      *audit.Memory
	events     []websocket.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clinicians: clinician.NewService(clinician.NewMemoryRepo(), zerolog.Nop()),
		channel:    messaging.NewMock(),
		audit:      &audit.Memory{},
	}
	pub := websocket.PublisherFunc(func(_ context.Context, ev websocket.Event) error {
		f.events = append(f.events, ev)
		return nil
	})
	notifier := notification.NewNotifier(f.channel, notification.NewTemplateEngine(), zerolog.Nop())
	f.svc = NewService(NewMemoryRepo(), f.clinicians, notifier, db.NoopTransactor{}, f.audit, pub, zerolog.Nop())
	return f
}

func (f *fixture) addClinician(t *testing.T, phone, status string) *clinician.Clinician {
	t.Helper()
	c := &clinician.Clinician{Phone: phone, Name: "Dr " + phone, Status: status}
	if err := f.clinicians.Create(context.Background(), c); err != nil {
		t.Fatalf("create clinician: %v", err)
	}
	return c
}

func TestRaise_NotifiesAssignableClinicians(t *testing.T) {
	f := newFixture(t)
	f.addClinician(t, "+100", clinician.StatusAvailable)
	f.addClinician(t, "+200", clinician.StatusOnCall)
	f.addClinician(t, "+300", clinician.StatusOffline)

	a, created, err := f.svc.Raise(context.Background(), RaiseInput{
		SessionID: uuid.New(),
		PatientID: uuid.New(),
		Severity:  "critical",
		Trigger:   "chest pain",
		Message:   "severe chest pain",
	})
	if err != nil || !created {
		t.Fatalf("expected new alert, got %v (%v)", created, err)
	}
	if a.Severity != SeverityCritical || a.Status != StatusPending {
		t.Errorf("unexpected alert %+v", a)
	}
	if len(f.channel.To("+100")) != 1 || len(f.channel.To("+200")) != 1 {
		t.Error("expected both assignable clinicians notified")
	}
	if len(f.channel.To("+300")) != 0 {
		t.Error("offline clinician must not be notified")
	}
	if !strings.Contains(f.channel.Last("+100"), "CRITICAL escalation") {
		t.Errorf("unexpected notice: %q", f.channel.Last("+100"))
	}
	if f.audit.Count(audit.ActionEscalationRaised) != 1 {
		t.Error("expected one raised audit entry")
	}
	if len(f.events) != 1 || f.events[0].Type != websocket.EventEscalationRaised {
		t.Errorf("expected one raised event, got %+v", f.events)
	}
}

func TestRaise_DeduplicatesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := RaiseInput{SessionID: uuid.New(), PatientID: uuid.New(), Severity: SeverityMedium, Trigger: "talk to doctor", Message: "x"}

	first, _, err := f.svc.Raise(ctx, in)
	if err != nil {
		t.Fatalf("raise: %v", err)
	}
	second, created, err := f.svc.Raise(ctx, in)
	if err != nil || created {
		t.Fatalf("expected dedupe, got created=%v err=%v", created, err)
	}
	if second.ID != first.ID {
		t.Error("expected the pending alert back")
	}

	in.Severity = SeverityCritical
	in.Trigger = "can't breathe"
	upgraded, created, err := f.svc.Raise(ctx, in)
	if err != nil || created {
		t.Fatalf("expected in-place upgrade, got created=%v err=%v", created, err)
	}
	if upgraded.ID != first.ID || upgraded.Severity != SeverityCritical {
		t.Errorf("expected severity upgrade on same alert, got %+v", upgraded)
	}
	if f.audit.Count(audit.ActionEscalationRaised) != 1 {
		t.Error("expected exactly one raised audit entry")
	}
}

func TestRaise_InvalidSeverity(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.Raise(context.Background(), RaiseInput{SessionID: uuid.New(), PatientID: uuid.New(), Severity: "urgent"})
	if !apperr.IsKind(err, apperr.KindInput) {
		t.Errorf("expected input error, got %v", err)
	}
}

func TestAcknowledgeAndHandle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.addClinician(t, "+100", clinician.StatusAvailable)
	other := f.addClinician(t, "+200", clinician.StatusAvailable)

	a, _, _ := f.svc.Raise(ctx, RaiseInput{SessionID: uuid.New(), PatientID: uuid.New(), Severity: SeverityHigh, Trigger: "t", Message: "m"})
	f.channel.Reset()

	acked, err := f.svc.Acknowledge(ctx, a.ID, doc.ID)
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	if acked.Status != StatusAcknowledged || acked.AcknowledgedAt == nil {
		t.Errorf("unexpected ack result %+v", acked)
	}
	if _, err := f.svc.Acknowledge(ctx, a.ID, doc.ID); !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("expected conflict on second ack, got %v", err)
	}

	handled, err := f.svc.Handle(ctx, a.ID, doc.ID, "called patient")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if handled.Status != StatusHandled || handled.HandledBy == nil || *handled.HandledBy != doc.ID {
		t.Errorf("unexpected handle result %+v", handled)
	}
	if _, err := f.svc.Handle(ctx, a.ID, doc.ID, ""); !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("expected conflict on second handle, got %v", err)
	}
	if f.audit.Count(audit.ActionEscalationAcked) != 1 || f.audit.Count(audit.ActionEscalationHandled) != 1 {
		t.Errorf("expected one ack and one handle entry, got %+v", f.audit.Entries)
	}
	// acknowledging claimed the alert, so nobody else is told it was handled
	if len(f.channel.To(other.Phone)) != 0 {
		t.Error("expected no handled notice for a claimed alert")
	}
}

func TestHandle_BroadcastsWhenUnclaimed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.addClinician(t, "+100", clinician.StatusAvailable)
	other := f.addClinician(t, "+200", clinician.StatusAvailable)

	a, _, _ := f.svc.Raise(ctx, RaiseInput{SessionID: uuid.New(), PatientID: uuid.New(), Severity: SeverityHigh, Trigger: "t", Message: "m"})
	f.channel.Reset()
	if _, err := f.svc.Handle(ctx, a.ID, doc.ID, ""); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(f.channel.Last(other.Phone), "handled by Dr +100") {
		t.Errorf("expected handled notice, got %q", f.channel.Last(other.Phone))
	}
	if len(f.channel.To(doc.Phone)) != 0 {
		t.Error("handler must not be notified of their own action")
	}
}

func TestListOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.addClinician(t, "+100", clinician.StatusAvailable)
	a1, _, _ := f.svc.Raise(ctx, RaiseInput{SessionID: uuid.New(), PatientID: uuid.New(), Severity: SeverityHigh, Trigger: "a", Message: "m"})
	f.svc.Raise(ctx, RaiseInput{SessionID: uuid.New(), PatientID: uuid.New(), Severity: SeverityLow, Trigger: "b", Message: "m"})
	f.svc.Handle(ctx, a1.ID, doc.ID, "")

	open, err := f.svc.ListOpen(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 1 || open[0].TriggerText != "b" {
		t.Errorf("expected one open alert, got %+v", open)
	}
}

func TestHandler_AcknowledgeRequiresClinician(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	a, _, _ := f.svc.Raise(context.Background(), RaiseInput{SessionID: uuid.New(), PatientID: uuid.New(), Severity: SeverityHigh, Trigger: "t", Message: "m"})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "u-1", "", []string{auth.RoleOperator}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	err := h.Acknowledge(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}

	doc := f.addClinician(t, "+100", clinician.StatusAvailable)
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "u-2", doc.ID.String(), []string{auth.RoleClinician}))
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.Acknowledge(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
