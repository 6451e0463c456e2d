package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIs_MatchesKindSentinel(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NotFound("assessment"))
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected wrapped NotFound to match ErrNotFound")
	}
	if errors.Is(err, ErrInput) {
		t.Error("NotFound must not match ErrInput")
	}
}

func TestWrap_KeepsExistingKind(t *testing.T) {
	err := Wrap(Input("bad age"), "profile")
	if KindOf(err) != KindInput {
		t.Errorf("expected input kind, got %s", KindOf(err))
	}
	err = Wrap(errors.New("boom"), "save session")
	if KindOf(err) != KindInternal {
		t.Errorf("expected internal kind, got %s", KindOf(err))
	}
	if Wrap(nil, "x") != nil {
		t.Error("expected nil for nil error")
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage(Input("Reply YES or NO.")); got != "Reply YES or NO." {
		t.Errorf("unexpected input message: %q", got)
	}
	if got := UserMessage(NotFound("session")); got != "Not found." {
		t.Errorf("unexpected not found message: %q", got)
	}
	if got := UserMessage(errors.New("pg: connection reset")); got == "pg: connection reset" {
		t.Error("internal error text must not leak to users")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		Input("x"):           http.StatusBadRequest,
		NotFound("x"):        http.StatusNotFound,
		Conflict("x"):        http.StatusConflict,
		ValidationBlock("x"): http.StatusUnprocessableEntity,
		errors.New("x"):      http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := HTTPStatus(err); got != want {
			t.Errorf("%v: expected %d, got %d", err, want, got)
		}
	}
}
