package finalizer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/triage/internal/platform/auth"
)

func (f *fixture) context(method, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithIdentity(req.Context(), "u1", f.clinician.ID.String(), []string{auth.RoleClinician}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(f.assessment.ID.String())
	return c, rec
}

func TestHandler_PrepareThenConfirm(t *testing.T) {
	f := newFixture(t)
	f.approve(t)
	h := NewHandler(f.svc)

	c, rec := f.context(http.MethodPost, "")
	if err := h.Prepare(c); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var body struct {
		Attempt SendAttempt `json:"attempt"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Attempt.Status != AttemptPending {
		t.Errorf("expected pending attempt, got %s", body.Attempt.Status)
	}

	c, rec = f.context(http.MethodPost, "")
	if err := h.Confirm(c); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, rec = f.context(http.MethodGet, "")
	if err := h.ListAttempts(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"DISPATCHED"`) {
		t.Errorf("expected dispatched attempt in %s", rec.Body.String())
	}
}

func TestHandler_OverrideWithoutReason(t *testing.T) {
	f := newFixture(t)
	f.approve(t)
	h := NewHandler(f.svc)

	c, _ := f.context(http.MethodPost, `{"reason":""}`)
	err := h.Override(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}
