package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type recordingSender struct {
	mu    sync.Mutex
	calls map[string][]string
	fail  bool
}

func (s *recordingSender) Send(_ context.Context, to, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("provider down")
	}
	if s.calls == nil {
		s.calls = map[string][]string{}
	}
	s.calls[to] = append(s.calls[to], text)
	return nil
}

func TestTemplateEngine_RenderBuiltIn(t *testing.T) {
	e := NewTemplateEngine()
	body, err := e.Render(TemplateEscalation, map[string]string{
		"severity":    "CRITICAL",
		"session_ref": "abc123",
		"trigger":     "chest pain",
		"alert_ref":   "def456",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(body, "CRITICAL escalation for session abc123") {
		t.Errorf("unexpected body: %s", body)
	}
	if !strings.Contains(body, "ack def456") {
		t.Errorf("expected ack hint, got %s", body)
	}
}

func TestTemplateEngine_MissingKeysLeftAsIs(t *testing.T) {
	e := NewTemplateEngine()
	body, _ := e.Render(TemplatePatientMessage, map[string]string{"text": "hello"})
	if !strings.Contains(body, "{{session_ref}}") {
		t.Errorf("expected unresolved placeholder to remain, got %s", body)
	}
}

func TestTemplateEngine_UnknownTemplate(t *testing.T) {
	if _, err := NewTemplateEngine().Render("nope", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestTemplateEngine_RegisterTemplate(t *testing.T) {
	e := NewTemplateEngine()
	e.RegisterTemplate(Template{ID: "custom", Body: "Hi {{name}}"})
	body, err := e.Render("custom", map[string]string{"name": "Ada"})
	if err != nil || body != "Hi Ada" {
		t.Errorf("expected 'Hi Ada', got %q (%v)", body, err)
	}
}

func TestNotifier_Notify(t *testing.T) {
	s := &recordingSender{}
	n := NewNotifier(s, nil, zerolog.Nop())

	note, err := n.Notify(context.Background(), TemplateSessionAssign, map[string]string{"session_ref": "s1"}, "+100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if note.Status != "sent" || note.SentAt == nil {
		t.Errorf("expected sent notification, got %+v", note)
	}
	if len(s.calls["+100"]) != 1 {
		t.Errorf("expected 1 call, got %d", len(s.calls["+100"]))
	}
}

func TestNotifier_FailureRecorded(t *testing.T) {
	s := &recordingSender{fail: true}
	n := NewNotifier(s, nil, zerolog.Nop())

	note, err := n.Notify(context.Background(), TemplateSessionAssign, nil, "+100")
	if err == nil {
		t.Fatal("expected error")
	}
	if note.Status != "failed" {
		t.Errorf("expected failed status, got %s", note.Status)
	}
	if len(n.Recent()) != 1 {
		t.Errorf("expected failure to be retained, got %d", len(n.Recent()))
	}
}

func TestNotifier_NotifyAll(t *testing.T) {
	s := &recordingSender{}
	n := NewNotifier(s, nil, zerolog.Nop())
	got := n.NotifyAll(context.Background(), TemplateSessionAssign, nil, []string{"+1", "+2", "+3"})
	if got != 3 {
		t.Errorf("expected 3 deliveries, got %d", got)
	}
}
