// Package notification renders clinician-facing notices from templates and
// delivers them over the messaging channel.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Built-in template IDs.
const (
	TemplateNewPatient     = "new-patient"
	TemplatePatientMessage = "patient-message"
	TemplateEscalation     = "escalation"
	TemplateEscalationDone = "escalation-handled"
	TemplateSessionAssign  = "session-assigned"
)

// Sender is the subset of the messaging channel a Notifier needs.
type Sender interface {
	Send(ctx context.Context, recipientID, text string) error
}

// Notification represents a single outbound notice.
type Notification struct {
	ID         string     `json:"id"`
	Recipient  string     `json:"recipient"`
	TemplateID string     `json:"template_id"`
	Body       string     `json:"body"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Template defines a reusable notice.
type Template struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Body string `json:"body"`
}

// TemplateEngine manages templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:   TemplateNewPatient,
			Name: "New Patient Assigned",
			Body: "New patient assigned\n\nComplaint: {{complaint}}\nPatient: {{age}} {{gender}}\nAssessment: {{assessment_ref}}\n\nReply 'approve {{assessment_ref}}', 'modify {{assessment_ref}}' or 'reject {{assessment_ref}}'.",
		},
		{
			ID:   TemplatePatientMessage,
			Name: "Patient Message",
			Body: "Message from patient {{session_ref}}:\n\n{{text}}\n\nReply 'message {{session_ref}} <text>' to respond.",
		},
		{
			ID:   TemplateEscalation,
			Name: "Escalation Raised",
			Body: "{{severity}} escalation for session {{session_ref}}\n\nTrigger: {{trigger}}\n\nReply 'ack {{alert_ref}}' then 'handle {{alert_ref}}'.",
		},
		{
			ID:   TemplateEscalationDone,
			Name: "Escalation Handled",
			Body: "Escalation {{alert_ref}} was handled by {{clinician}}.",
		},
		{
			ID:   TemplateSessionAssign,
			Name: "Session Assigned",
			Body: "Session {{session_ref}} was assigned to you.\n\nReason: {{reason}}\n\nReply 'message {{session_ref}} <text>' to contact the patient.",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (string, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template %q not found", templateID)
	}

	body := t.Body
	for k, v := range data {
		body = strings.ReplaceAll(body, "{{"+k+"}}", v)
	}
	return body, nil
}

// Notifier renders templates and sends them. Delivery failures are logged and
// returned; callers treat them as non-fatal.
type Notifier struct {
	sender    Sender
	templates *TemplateEngine
	logger    zerolog.Logger

	mu   sync.Mutex
	sent []*Notification
	keep int
}

// NewNotifier constructs a Notifier that keeps the last 200 notices for inspection.
func NewNotifier(sender Sender, tpl *TemplateEngine, logger zerolog.Logger) *Notifier {
	if tpl == nil {
		tpl = NewTemplateEngine()
	}
	return &Notifier{sender: sender, templates: tpl, logger: logger, keep: 200}
}

// Notify renders templateID with data and sends it to recipient.
func (n *Notifier) Notify(ctx context.Context, templateID string, data map[string]string, recipient string) (*Notification, error) {
	body, err := n.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	note := &Notification{
		ID:         uuid.New().String(),
		Recipient:  recipient,
		TemplateID: templateID,
		Body:       body,
		Status:     "pending",
		CreatedAt:  time.Now().UTC(),
	}

	if err := n.sender.Send(ctx, recipient, body); err != nil {
		note.Status = "failed"
		note.Error = err.Error()
		n.logger.Warn().Err(err).Str("template", templateID).Str("recipient", recipient).Msg("notification failed")
	} else {
		note.Status = "sent"
		sentAt := time.Now().UTC()
		note.SentAt = &sentAt
	}
	n.remember(note)

	if note.Status == "failed" {
		return note, fmt.Errorf("send notification: %s", note.Error)
	}
	return note, nil
}

// NotifyAll sends the same notice to every recipient and returns how many succeeded.
func (n *Notifier) NotifyAll(ctx context.Context, templateID string, data map[string]string, recipients []string) int {
	ok := 0
	for _, r := range recipients {
		if _, err := n.Notify(ctx, templateID, data, r); err == nil {
			ok++
		}
	}
	return ok
}

// Recent returns the retained notices, newest last.
func (n *Notifier) Recent() []*Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Notification, len(n.sent))
	copy(out, n.sent)
	return out
}

func (n *Notifier) remember(note *Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	if len(n.sent) > n.keep {
		n.sent = n.sent[len(n.sent)-n.keep:]
	}
}
