package webhook

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestSignPayload(t *testing.T) {
	payload := []byte(`{"tx_ref":"TX-1","status":"successful"}`)
	sig1 := SignPayload(payload, "secret-key")
	sig2 := SignPayload(payload, "secret-key")
	if sig1 != sig2 {
		t.Error("expected deterministic signatures")
	}
	if sig1 == "" {
		t.Error("expected non-empty signature")
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"tx_ref":"TX-1"}`)
	sig := SignPayload(payload, "secret-key")
	if !VerifySignature(payload, "secret-key", sig) {
		t.Error("expected valid signature to verify")
	}
	if !VerifySignature(payload, "secret-key", "sha256="+strings.ToUpper(sig)) {
		t.Error("expected prefixed upper-case signature to verify")
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	payload := []byte(`{"tx_ref":"TX-1"}`)
	sig := SignPayload(payload, "secret-key")
	if VerifySignature(payload, "wrong-secret", sig) {
		t.Error("expected wrong secret to fail verification")
	}
}

func TestRequireSignature(t *testing.T) {
	e := echo.New()
	body := `{"From":"+2348000000001","Body":"hi"}`
	var seen string
	h := RequireSignature(MessagingSignatureHeader, "s3cret")(func(c echo.Context) error {
		b, _ := io.ReadAll(c.Request().Body)
		seen = string(b)
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/messaging", strings.NewReader(body))
	req.Header.Set(MessagingSignatureHeader, SignPayload([]byte(body), "s3cret"))
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != body {
		t.Errorf("expected handler to see restored body, got %q", seen)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/messaging", strings.NewReader(body))
	req.Header.Set(MessagingSignatureHeader, "bad")
	err := h(e.NewContext(req, httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}
