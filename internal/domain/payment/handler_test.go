package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/triage/internal/platform/webhook"
)

const testSecret = "payment-secret"

func postWebhook(e *echo.Echo, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if signature != "" {
		req.Header.Set(webhook.PaymentSignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_SettlesSignedCharge(t *testing.T) {
	f := newFixture(t)
	ref := f.checkout(t, uuid.New(), "1")
	e := echo.New()
	NewHandler(f.svc, testSecret).RegisterWebhook(e)

	body := `{"event":"charge.completed","data":{"id":42,"tx_ref":"` + ref + `","status":"successful"}}`
	rec := postWebhook(e, body, "sha256="+webhook.SignPayload([]byte(body), testSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	tx, _ := f.svc.Get(context.Background(), ref)
	if tx.Status != StatusSettled {
		t.Errorf("expected SETTLED, got %s", tx.Status)
	}
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	ref := f.checkout(t, uuid.New(), "1")
	e := echo.New()
	NewHandler(f.svc, testSecret).RegisterWebhook(e)

	body := `{"event":"charge.completed","data":{"tx_ref":"` + ref + `","status":"successful"}}`
	if rec := postWebhook(e, body, webhook.SignPayload([]byte(body), "wrong")); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	tx, _ := f.svc.Get(context.Background(), ref)
	if tx.Status != StatusPending {
		t.Errorf("expected PENDING, got %s", tx.Status)
	}
}

func TestWebhook_IgnoresFailedCharge(t *testing.T) {
	f := newFixture(t)
	ref := f.checkout(t, uuid.New(), "1")
	e := echo.New()
	NewHandler(f.svc, testSecret).RegisterWebhook(e)

	body := `{"event":"charge.completed","data":{"tx_ref":"` + ref + `","status":"failed"}}`
	if rec := postWebhook(e, body, webhook.SignPayload([]byte(body), testSecret)); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if len(f.resumer.calls) != 0 {
		t.Error("failed charge must not resume anything")
	}
}
