// Package llm wraps the text-generation and transcription services used during
// triage. Every call is bounded by a timeout and treated as unreliable.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Message is a minimal chat message.
// Role must be one of: "system", "user", or "assistant".
type Message struct {
	Role    string
	Content string
}

// Turn is one answered (or pending) triage question.
type Turn struct {
	Question string
	Answer   string
}

// PromptContext is everything the generator may see about a session.
type PromptContext struct {
	ChiefComplaint string
	Age            int
	Gender         string
	Turns          []Turn
	Latest         string
	History        []Message
}

// Client defines the generation capabilities the conversation needs.
type Client interface {
	NextQuestion(ctx context.Context, pc PromptContext) (string, error)
	Assessment(ctx context.Context, pc PromptContext) (string, error)
	Reply(ctx context.Context, pc PromptContext) (string, error)
	Transcribe(ctx context.Context, audioURL string) (string, error)
}

// ErrEmpty is returned when the service answered with no usable text.
var ErrEmpty = errors.New("empty completion")

// OpenAIClient calls an OpenAI-compatible API.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	http    *http.Client
}

// NewOpenAIClient constructs a client. An empty baseURL uses the public API.
func NewOpenAIClient(apiKey, baseURL, model string, timeout time.Duration) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *OpenAIClient) NextQuestion(ctx context.Context, pc PromptContext) (string, error) {
	sys := nextQuestionPrompt
	if len(pc.Turns) == 0 {
		sys = firstQuestionPrompt
	}
	out, err := c.complete(ctx, 0.7, 100, []Message{
		{Role: openai.ChatMessageRoleSystem, Content: sys},
		{Role: openai.ChatMessageRoleUser, Content: triageTranscript(pc)},
	})
	if err != nil {
		return "", fmt.Errorf("next question: %w", err)
	}
	return out, nil
}

// Assessment returns the raw model output; the caller parses it.
func (c *OpenAIClient) Assessment(ctx context.Context, pc PromptContext) (string, error) {
	out, err := c.complete(ctx, 0.3, 1500, []Message{
		{Role: openai.ChatMessageRoleSystem, Content: assessmentPrompt},
		{Role: openai.ChatMessageRoleUser, Content: triageTranscript(pc)},
	})
	if err != nil {
		return "", fmt.Errorf("assessment: %w", err)
	}
	return out, nil
}

// Reply answers a patient in AI-only mode. Output that strays into diagnosis
// is replaced with a safe refusal.
func (c *OpenAIClient) Reply(ctx context.Context, pc PromptContext) (string, error) {
	msgs := make([]Message, 0, len(pc.History)+2)
	msgs = append(msgs, Message{Role: openai.ChatMessageRoleSystem, Content: educationPrompt})
	msgs = append(msgs, pc.History...)
	msgs = append(msgs, Message{Role: openai.ChatMessageRoleUser, Content: pc.Latest})
	out, err := c.complete(ctx, 0.7, 300, msgs)
	if err != nil {
		return "", fmt.Errorf("reply: %w", err)
	}
	return GuardReply(out), nil
}

// Transcribe downloads a voice note and runs speech-to-text on it.
func (c *OpenAIClient) Transcribe(ctx context.Context, audioURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return "", fmt.Errorf("build media request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch media: status %d", resp.StatusCode)
	}

	name := path.Base(req.URL.Path)
	if !strings.Contains(name, ".") {
		name = "voice.ogg"
	}
	out, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: name,
		Reader:   io.LimitReader(resp.Body, 25<<20),
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

func (c *OpenAIClient) complete(ctx context.Context, temp float32, maxTokens int, messages []Message) (string, error) {
	if c.client == nil {
		return "", errors.New("openai client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role != openai.ChatMessageRoleSystem && role != openai.ChatMessageRoleUser && role != openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleUser
		}
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    oaMsgs,
		Temperature: temp,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmpty
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrEmpty
	}
	return out, nil
}

func triageTranscript(pc PromptContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Patient: %s, Age %d\n", pc.Gender, pc.Age)
	fmt.Fprintf(&b, "Chief Complaint: %s\n\n", pc.ChiefComplaint)
	for _, t := range pc.Turns {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n\n", t.Question, t.Answer)
	}
	return b.String()
}

var diagnosticPatterns = []string{
	"you have", "you might have", "this is", "sounds like you have",
	"diagnosis", "you should take", "i recommend taking", "take this medication",
	"you need to take", "prescribed", "prescription",
}

// SafeReply replaces AI-only output that reads as a diagnosis or prescription.
const SafeReply = "I can't provide diagnosis or specific medical advice. That requires a licensed clinician. " +
	"If you'd like a professional assessment, reply DOCTOR and I can connect you with one. " +
	"Otherwise I'm happy to discuss general health information."

// GuardReply returns text unchanged unless it contains diagnostic language.
func GuardReply(text string) string {
	lower := strings.ToLower(text)
	for _, p := range diagnosticPatterns {
		if strings.Contains(lower, p) {
			return SafeReply
		}
	}
	return text
}
