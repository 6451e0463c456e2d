package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestHub_RegisterAndBroadcast(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c1 := NewClient(TopicEscalations)
	c2 := NewClient(TopicSessions)
	hub.Register(c1)
	hub.Register(c2)

	hub.Broadcast(TopicEscalations, NewEvent(EventEscalationRaised, TopicEscalations, "EscalationAlert", "e1", map[string]string{"severity": "CRITICAL"}))

	select {
	case msg := <-c1.Send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if ev.ResourceID != "e1" || ev.Type != EventEscalationRaised {
			t.Errorf("unexpected event %+v", ev)
		}
		if !strings.Contains(string(ev.Data), "CRITICAL") {
			t.Errorf("expected data to carry severity, got %s", ev.Data)
		}
	default:
		t.Fatal("expected c1 to receive event")
	}
	select {
	case <-c2.Send:
		t.Error("c2 is not subscribed to escalations")
	default:
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := NewClient()
	hub.Register(c)

	hub.ProcessMessage(c, ClientMessage{Action: "subscribe", Topics: []string{ClinicianTopic("doc-1"), TopicAssessments}})
	if hub.TopicCount(ClinicianTopic("doc-1")) != 1 {
		t.Errorf("expected 1 subscriber, got %d", hub.TopicCount(ClinicianTopic("doc-1")))
	}

	hub.ProcessMessage(c, ClientMessage{Action: "UNSUBSCRIBE", Topics: []string{TopicAssessments}})
	if hub.TopicCount(TopicAssessments) != 0 {
		t.Errorf("expected 0 subscribers, got %d", hub.TopicCount(TopicAssessments))
	}
	if len(c.Topics) != 1 {
		t.Errorf("expected 1 remaining topic, got %v", c.Topics)
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := NewClient(TopicSessions)
	hub.Register(c)
	hub.Unregister(c)
	hub.Unregister(c)

	if _, ok := <-c.Send; ok {
		t.Error("expected send channel to be closed")
	}
	if hub.ClientCount() != 0 || hub.TopicCount(TopicSessions) != 0 {
		t.Error("expected hub to be empty")
	}
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := &Client{ID: "slow", Topics: []string{TopicSessions}, Send: make(chan []byte)}
	hub.Register(c)

	done := make(chan struct{})
	go func() {
		hub.Publish(context.Background(), NewEvent(EventClinicianAssigned, TopicSessions, "Session", "s1", nil))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on slow client")
	}
}

func TestHandler_EndToEnd(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub, nil).RegisterRoutes(e.Group(""))
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?topics=" + TopicEscalations
	ws, _, err := gorillawebsocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount(TopicEscalations) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	hub.Publish(context.Background(), NewEvent(EventEscalationRaised, TopicEscalations, "EscalationAlert", "e9", nil))

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(msg), `"resourceId":"e9"`) {
		t.Errorf("unexpected message %s", msg)
	}
}

func TestNop(t *testing.T) {
	if err := Nop.Publish(context.Background(), Event{}); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
