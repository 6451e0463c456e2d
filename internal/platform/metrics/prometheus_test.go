package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_CountsByRouteTemplate(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/api/v1/sessions/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/sessions/:id", "204"))
	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id, nil))
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/sessions/:id", "204"))
	if after-before != 2 {
		t.Errorf("expected 2 requests under one template, got %v", after-before)
	}
}

func TestMiddleware_UsesHTTPErrorCode(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusConflict, "nope")
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/boom", "409"))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/boom", "409"))
	if after-before != 1 {
		t.Errorf("expected 409 to be counted, got delta %v", after-before)
	}
}

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(generatorFailures.WithLabelValues("assessment"))
	RecordGeneratorCall("assessment", 10*time.Millisecond, errors.New("timeout"))
	RecordGeneratorCall("assessment", 10*time.Millisecond, nil)
	if got := testutil.ToFloat64(generatorFailures.WithLabelValues("assessment")) - before; got != 1 {
		t.Errorf("expected 1 failure, got %v", got)
	}

	beforeT := testutil.ToFloat64(stateTransitions.WithLabelValues("A", "A"))
	RecordTransition("A", "A")
	if testutil.ToFloat64(stateTransitions.WithLabelValues("A", "A")) != beforeT {
		t.Error("self transitions must not be counted")
	}
}

func TestHandler_ServesMetrics(t *testing.T) {
	RecordValidation("REVIEW")
	e := echo.New()
	e.GET("/metrics", Handler())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "triage_validations_total") {
		t.Error("expected triage_validations_total in scrape output")
	}
}
