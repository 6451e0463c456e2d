package inbound

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/domain/clinician"
	"github.com/ehr/triage/internal/platform/llm"
	"github.com/ehr/triage/internal/platform/messaging"
	"github.com/ehr/triage/internal/platform/middleware"
	"github.com/ehr/triage/internal/platform/webhook"
)

const clinicianPhone = "+15559990000"

type recorder struct {
	got   []messaging.Inbound
	err   error
	panic bool
}

func (r *recorder) HandleInbound(_ context.Context, in messaging.Inbound) error {
	if r.panic {
		panic("boom")
	}
	r.got = append(r.got, in)
	return r.err
}

type fixture struct {
	d        *Dispatcher
	console  *recorder
	patients *recorder
	ch       *messaging.Mock
	llm      *llm.Mock
}

func newFixture(t *testing.T, limiter *middleware.KeyedLimiter) *fixture {
	t.Helper()
	clinicians := clinician.NewService(clinician.NewMemoryRepo(), zerolog.Nop())
	if err := clinicians.Create(context.Background(), &clinician.Clinician{Phone: clinicianPhone, Name: "Ada Okafor"}); err != nil {
		t.Fatalf("create clinician: %v", err)
	}
	f := &fixture{console: &recorder{}, patients: &recorder{}, ch: messaging.NewMock(), llm: &llm.Mock{}}
	f.d = NewDispatcher(Deps{
		Clinicians:  clinicians,
		Console:     f.console,
		Patients:    f.patients,
		Transcriber: f.llm,
		Limiter:     limiter,
		Channel:     f.ch,
		Logger:      zerolog.Nop(),
	})
	return f
}

func TestDispatch_RoutesBySender(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if err := f.d.Dispatch(ctx, messaging.Inbound{SenderID: "whatsapp:" + clinicianPhone, Text: "pending"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := f.d.Dispatch(ctx, messaging.Inbound{SenderID: "+15550001111", Text: "Hi"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(f.console.got) != 1 || f.console.got[0].SenderID != clinicianPhone {
		t.Errorf("expected one console message from the bare phone, got %+v", f.console.got)
	}
	if len(f.patients.got) != 1 || f.patients.got[0].Text != "Hi" {
		t.Errorf("expected one patient message, got %+v", f.patients.got)
	}
}

func TestDispatch_RejectsMissingSender(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.d.Dispatch(context.Background(), messaging.Inbound{Text: "Hi"}); err == nil {
		t.Error("expected an error for a message without sender")
	}
}

func TestDispatch_TranscribesVoiceNotes(t *testing.T) {
	f := newFixture(t, nil)
	f.llm.Transcript = "  I have a headache  "
	in := messaging.Inbound{SenderID: "+15550001111", MediaRef: "https://media.example/1", MediaType: "audio/ogg"}
	if err := f.d.Dispatch(context.Background(), in); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := f.patients.got[0].Text; got != "I have a headache" {
		t.Errorf("expected transcript as text, got %q", got)
	}

	f.llm.TranscribeErr = errors.New("speech service down")
	if err := f.d.Dispatch(context.Background(), in); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := f.patients.got[1].Text; got != "" {
		t.Errorf("expected empty text after failed transcription, got %q", got)
	}
}

func TestDispatch_RateLimitsPerSender(t *testing.T) {
	f := newFixture(t, middleware.NewKeyedLimiter(0.001, 2))
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if err := f.d.Dispatch(ctx, messaging.Inbound{SenderID: "+15550001111", Text: "hello"}); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	if err := f.d.Dispatch(ctx, messaging.Inbound{SenderID: "+15550002222", Text: "hello"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(f.patients.got) != 3 {
		t.Errorf("expected 2 messages from the busy sender and 1 from the other, got %d", len(f.patients.got))
	}
}

func TestDispatch_RecoversPanics(t *testing.T) {
	f := newFixture(t, nil)
	f.patients.panic = true
	err := f.d.Dispatch(context.Background(), messaging.Inbound{SenderID: "+15550001111", Text: "Hi"})
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Errorf("expected a panic error, got %v", err)
	}
	if f.ch.Last("+15550001111") != fallbackText {
		t.Errorf("expected fallback text, got %q", f.ch.Last("+15550001111"))
	}
}

func TestHandler_FormAndJSON(t *testing.T) {
	f := newFixture(t, nil)
	e := echo.New()
	NewHandler(f.d, "").RegisterWebhook(e)

	form := url.Values{"From": {"whatsapp:+15550001111"}, "Body": {"Hi"}, "MessageSid": {"SM1"}}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/messaging", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := `{"From":"+15550001111","Body":"","MessageSid":"SM2","MediaUrl0":"https://media.example/2","MediaContentType0":"image/jpeg"}`
	req = httptest.NewRequest(http.MethodPost, "/webhooks/messaging", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if len(f.patients.got) != 2 {
		t.Fatalf("expected 2 dispatched messages, got %d", len(f.patients.got))
	}
	if got := f.patients.got[0]; got.SenderID != "+15550001111" || got.MessageID != "SM1" {
		t.Errorf("unexpected form message %+v", got)
	}
	if got := f.patients.got[1]; got.MediaRef != "https://media.example/2" || got.MediaType != "image/jpeg" {
		t.Errorf("unexpected json message %+v", got)
	}
}

func TestHandler_MissingSender(t *testing.T) {
	f := newFixture(t, nil)
	e := echo.New()
	NewHandler(f.d, "").RegisterWebhook(e)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/messaging", strings.NewReader(`{"Body":"Hi"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_Signature(t *testing.T) {
	f := newFixture(t, nil)
	e := echo.New()
	NewHandler(f.d, "s3cret").RegisterWebhook(e)
	body := `{"From":"+15550001111","Body":"Hi","MessageSid":"SM3"}`

	req := httptest.NewRequest(http.MethodPost, "/webhooks/messaging", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(webhook.MessagingSignatureHeader, "sha256=deadbeef")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/messaging", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(webhook.MessagingSignatureHeader, webhook.SignPayload([]byte(body), "s3cret"))
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if len(f.patients.got) != 1 {
		t.Errorf("expected the signed message dispatched, got %d", len(f.patients.got))
	}
}
