// Package protocol defines the wire format shared by the chat client and the
// agent service, for both the push channel and the request/response API.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Event types carried in the push-channel envelope. Outbound (client to
// agent) and inbound (agent to client) share the same envelope shape.
const (
	EventRunAgent          = "run_agent"
	EventFollowUpResponse  = "follow_up_response"
	EventSubmitEvaluation  = "submit_evaluation"
	EventAgentResponse     = "agent_response"
	EventReasoningUpdate   = "reasoning_update"
	EventFollowUpRequest   = "follow_up_request"
	EventRequestEvaluation = "request_evaluation"
	EventError             = "error"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentTypePDF marks an agent response whose assistant field carries a
// base64-encoded PDF instead of text.
const ContentTypePDF = "application/pdf"

// ChatMessage is one entry of the conversation history sent with a run
// request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RunRequest starts a new agent turn.
type RunRequest struct {
	SessionID  string        `json:"session_id"`
	History    []ChatMessage `json:"session_chat_history"`
	UserID     string        `json:"user_id"`
	DeepSearch bool          `json:"deepsearch"`
	Depth      int           `json:"depth"`
}

// FollowUpAnswer answers a clarification question from the agent. It is
// intentionally minimal: the agent already holds the turn context.
type FollowUpAnswer struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// RatingSubmission reports a satisfaction rating for a finished turn.
// The rating range is not validated here; the agent side owns validation.
type RatingSubmission struct {
	SessionID string `json:"session_id"`
	Rating    int    `json:"rating"`
}

// AgentResponse is the terminal answer for a turn. When ContentType is
// ContentTypePDF, Assistant holds base64-encoded binary data.
type AgentResponse struct {
	SessionID   string `json:"session_id"`
	Assistant   string `json:"assistant"`
	ContentType string `json:"content_type,omitempty"`
}

// ReasoningUpdate is an incremental progress line for the in-flight turn.
// It carries no session id on the wire.
type ReasoningUpdate struct {
	Message string `json:"message"`
}

// FollowUpRequest asks the user for clarification before the turn can
// finish.
type FollowUpRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// EvaluationRequest asks the client to show a rating prompt. Assistant
// optionally carries accompanying prompt text.
type EvaluationRequest struct {
	SessionID string `json:"session_id"`
	Assistant string `json:"assistant,omitempty"`
}

// ErrorEvent reports a turn-scoped failure from the agent.
type ErrorEvent struct {
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

// Envelope frames one typed event on the push channel.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encode frames a payload into an envelope and marshals it.
func Encode(eventType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	raw, err := json.Marshal(Envelope{Type: eventType, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}
	return raw, nil
}

// Decode unmarshals a framed envelope.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("envelope missing type")
	}
	return env, nil
}

// Payload unmarshals the envelope data into the given payload struct.
func (e Envelope) Payload(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", e.Type, err)
	}
	return nil
}
