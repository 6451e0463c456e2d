package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextFor(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(contextFor("/"))
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_ClampsLimit(t *testing.T) {
	p := FromContext(contextFor("/?limit=1000&offset=-4"))
	if p.Limit != MaxLimit {
		t.Errorf("expected limit clamped to %d, got %d", MaxLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected negative offset reset to 0, got %d", p.Offset)
	}
}

func TestFromContext_Explicit(t *testing.T) {
	p := FromContext(contextFor("/?limit=5&offset=10"))
	if p.Limit != 5 || p.Offset != 10 {
		t.Errorf("expected 5/10, got %d/%d", p.Limit, p.Offset)
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	if !NewResponse(nil, 30, 20, 0).HasMore {
		t.Error("expected has_more for first page of 30")
	}
	if NewResponse(nil, 30, 20, 20).HasMore {
		t.Error("expected no more after last page")
	}
}

func TestWindow(t *testing.T) {
	start, end := Params{Limit: 10, Offset: 5}.Window(8)
	if start != 5 || end != 8 {
		t.Errorf("expected [5,8), got [%d,%d)", start, end)
	}
	start, end = Params{Limit: 10, Offset: 50}.Window(8)
	if start != 8 || end != 8 {
		t.Errorf("expected empty window at 8, got [%d,%d)", start, end)
	}
}
