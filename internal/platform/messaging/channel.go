// Package messaging is the boundary to the text-messaging provider. Inbound
// delivery is at-least-once and unordered; outbound calls are fire-and-report.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Inbound is one message received from the provider webhook.
type Inbound struct {
	SenderID  string `json:"sender_id"`
	Text      string `json:"text"`
	MediaRef  string `json:"media_ref,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// IsAudio reports whether the inbound carries a voice note.
func (in Inbound) IsAudio() bool {
	return in.MediaRef != "" && strings.HasPrefix(in.MediaType, "audio/")
}

// Channel sends outbound messages.
type Channel interface {
	Send(ctx context.Context, recipientID, text string) error
	SendMedia(ctx context.Context, recipientID, mediaRef, caption string) error
}

// HTTPChannel posts outbound messages as JSON to a provider REST endpoint.
type HTTPChannel struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPChannel(baseURL, token string) *HTTPChannel {
	return &HTTPChannel{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type outboundPayload struct {
	To       string `json:"to"`
	Body     string `json:"body,omitempty"`
	MediaURL string `json:"media_url,omitempty"`
}

func (h *HTTPChannel) Send(ctx context.Context, recipientID, text string) error {
	return h.post(ctx, outboundPayload{To: recipientID, Body: text})
}

func (h *HTTPChannel) SendMedia(ctx context.Context, recipientID, mediaRef, caption string) error {
	return h.post(ctx, outboundPayload{To: recipientID, Body: caption, MediaURL: mediaRef})
}

func (h *HTTPChannel) post(ctx context.Context, p outboundPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build outbound request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("send to %s: %w", p.To, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// Sent is one message captured by Mock.
type Sent struct {
	To       string
	Text     string
	MediaRef string
}

// Mock records outbound messages. Safe for concurrent use.
type Mock struct {
	mu         sync.Mutex
	sent       []Sent
	ShouldFail bool
}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Send(_ context.Context, to, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return fmt.Errorf("mock channel failure")
	}
	m.sent = append(m.sent, Sent{To: to, Text: text})
	return nil
}

func (m *Mock) SendMedia(_ context.Context, to, mediaRef, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return fmt.Errorf("mock channel failure")
	}
	m.sent = append(m.sent, Sent{To: to, Text: caption, MediaRef: mediaRef})
	return nil
}

// Sent returns a copy of everything sent so far.
func (m *Mock) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sent, len(m.sent))
	copy(out, m.sent)
	return out
}

// To returns the texts sent to one recipient.
func (m *Mock) To(recipient string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.sent {
		if s.To == recipient {
			out = append(out, s.Text)
		}
	}
	return out
}

// Last returns the last text sent to recipient, or "".
func (m *Mock) Last(recipient string) string {
	msgs := m.To(recipient)
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
