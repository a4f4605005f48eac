// Package agentd implements a loopback agent service speaking the full
// wire protocol over both transports. It exists for local development and
// end-to-end tests; its agents are scripted stand-ins, not real reasoning.
package agentd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/deepchat/internal/protocol"
)

// Outcome describes how a scripted turn ends. Exactly one of Assistant,
// PDF or FollowUpQuestion should be set.
type Outcome struct {
	Assistant         string
	PDF               []byte
	FollowUpQuestion  string
	RequestEvaluation bool
	EvaluationPrompt  string
}

// Agent produces turn outcomes for the loopback server. reason emits one
// reasoning line; the push transport forwards it, the request/response
// transport discards it.
type Agent interface {
	Run(ctx context.Context, req protocol.RunRequest, reason func(line string)) (Outcome, error)
	FollowUp(ctx context.Context, answer protocol.FollowUpAnswer, reason func(line string)) (Outcome, error)
}

// EchoAgent echoes the last user message after a fixed reasoning script.
type EchoAgent struct {
	// ReasoningLines are emitted in order before the answer.
	ReasoningLines []string
	// StepDelay spaces out reasoning lines to simulate agent latency.
	StepDelay time.Duration
	// FollowUpTrigger, when non-empty and contained in the user message,
	// pauses the turn on a scripted clarification question.
	FollowUpTrigger string
	// AskEvaluation requests a rating prompt after each final answer.
	AskEvaluation bool
}

// Run implements Agent.
func (a *EchoAgent) Run(ctx context.Context, req protocol.RunRequest, reason func(string)) (Outcome, error) {
	message := lastUserMessage(req.History)
	if message == "" {
		return Outcome{}, fmt.Errorf("empty chat history")
	}

	for _, line := range a.ReasoningLines {
		if err := a.pause(ctx); err != nil {
			return Outcome{}, err
		}
		reason(line)
	}

	if a.FollowUpTrigger != "" && strings.Contains(message, a.FollowUpTrigger) {
		return Outcome{FollowUpQuestion: "Could you share more detail?"}, nil
	}

	if req.DeepSearch {
		return Outcome{
			PDF:               SamplePDF(),
			RequestEvaluation: a.AskEvaluation,
			EvaluationPrompt:  "How useful was this report?",
		}, nil
	}

	return Outcome{
		Assistant:         "You said: " + message,
		RequestEvaluation: a.AskEvaluation,
		EvaluationPrompt:  "How useful was this answer?",
	}, nil
}

// FollowUp implements Agent.
func (a *EchoAgent) FollowUp(ctx context.Context, answer protocol.FollowUpAnswer, reason func(string)) (Outcome, error) {
	if err := a.pause(ctx); err != nil {
		return Outcome{}, err
	}
	reason("Incorporating your clarification...")
	return Outcome{Assistant: "Noted: " + answer.Message}, nil
}

func (a *EchoAgent) pause(ctx context.Context) error {
	if a.StepDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(a.StepDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func lastUserMessage(history []protocol.ChatMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == protocol.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

// SamplePDF returns a minimal single-page PDF document, enough for the
// client's binary delivery path to produce a real downloadable file.
func SamplePDF() []byte {
	return []byte("%PDF-1.4\n" +
		"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
		"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n" +
		"3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\nendobj\n" +
		"trailer\n<< /Root 1 0 R >>\n" +
		"%%EOF\n")
}
