package audit

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLogSink_WritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))

	e := New("clinician:abc", ActionAssessmentSent, "Assessment", "a-1", "sent to patient")
	if err := sink.Record(context.Background(), e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"action_type":"ASSESSMENT_SENT"`, `"resource_id":"a-1"`, `"type":"audit"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log line to contain %s, got %s", want, out)
		}
	}
}

func TestMulti_RecordsToAllAndJoinsErrors(t *testing.T) {
	mem := &Memory{}
	failing := SinkFunc(func(context.Context, Entry) error { return errors.New("stream down") })

	err := Multi{mem, failing}.Record(context.Background(), New("system", ActionEscalationRaised, "EscalationAlert", "e-1", ""))
	if err == nil {
		t.Fatal("expected joined error from failing sink")
	}
	if mem.Count(ActionEscalationRaised) != 1 {
		t.Errorf("expected memory sink to record despite sibling failure, got %d", len(mem.Entries))
	}
}

func TestNew_SetsTimestamp(t *testing.T) {
	e := New("a", "b", "c", "d", "e")
	if e.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}
