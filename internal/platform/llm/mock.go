package llm

import (
	"context"
	"fmt"
	"sync"
)

// Mock is a scripted Client for tests.
type Mock struct {
	mu sync.Mutex

	Questions      []string
	AssessmentText string
	ReplyText      string
	Transcript     string

	QuestionErr   error
	AssessmentErr error
	ReplyErr      error
	TranscribeErr error

	QuestionCalls   int
	AssessmentCalls int
}

func (m *Mock) NextQuestion(_ context.Context, pc PromptContext) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QuestionCalls++
	if m.QuestionErr != nil {
		return "", m.QuestionErr
	}
	if len(m.Questions) == 0 {
		return fmt.Sprintf("Question %d about %s?", len(pc.Turns)+1, pc.ChiefComplaint), nil
	}
	return m.Questions[len(pc.Turns)%len(m.Questions)], nil
}

func (m *Mock) Assessment(context.Context, PromptContext) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AssessmentCalls++
	if m.AssessmentErr != nil {
		return "", m.AssessmentErr
	}
	return m.AssessmentText, nil
}

func (m *Mock) Reply(context.Context, PromptContext) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReplyErr != nil {
		return "", m.ReplyErr
	}
	return GuardReply(m.ReplyText), nil
}

func (m *Mock) Transcribe(context.Context, string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TranscribeErr != nil {
		return "", m.TranscribeErr
	}
	return m.Transcript, nil
}
