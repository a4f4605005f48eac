// Package transport carries turn submissions to the agent service and
// delivers inbound events back to the session core. Two strategies exist:
// a persistent push channel (websocket) and a request/response exchange
// (one HTTP call per turn).
package transport

import (
	"context"

	"github.com/ashureev/deepchat/internal/protocol"
)

// EventSink receives inbound agent events. The push channel invokes it
// from its read loop in arrival order; the request/response strategy
// invokes it synchronously with the terminal event synthesized from the
// single reply.
type EventSink interface {
	OnReasoningUpdate(protocol.ReasoningUpdate)
	OnFollowUpRequest(protocol.FollowUpRequest)
	OnAgentResponse(protocol.AgentResponse)
	OnRequestEvaluation(protocol.EvaluationRequest)
	OnError(protocol.ErrorEvent)
}

// Strategy submits outbound messages to the agent service.
type Strategy interface {
	SubmitRun(ctx context.Context, req protocol.RunRequest) error
	SubmitFollowUp(ctx context.Context, answer protocol.FollowUpAnswer) error
	SubmitRating(ctx context.Context, submission protocol.RatingSubmission) error
	Close() error
}
