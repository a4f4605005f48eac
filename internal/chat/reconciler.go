package chat

import (
	"log/slog"

	"github.com/ashureev/deepchat/internal/convlog"
	"github.com/ashureev/deepchat/internal/protocol"
	"github.com/ashureev/deepchat/internal/rating"
	"github.com/ashureev/deepchat/internal/render"
	"github.com/ashureev/deepchat/internal/transport"
)

// Reconciler interprets inbound agent events and drives the session's turn
// state. Events carrying a session id that does not match the local
// session are ignored, so multiple client sessions can share one channel.
type Reconciler struct {
	session  *Session
	renderer *render.Renderer
	ratings  *rating.Manager
	conv     *convlog.Logger
	logger   *slog.Logger
}

var _ transport.EventSink = (*Reconciler)(nil)

// NewReconciler creates a reconciler for the session.
func NewReconciler(session *Session, renderer *render.Renderer, ratings *rating.Manager, conv *convlog.Logger, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		session:  session,
		renderer: renderer,
		ratings:  ratings,
		conv:     conv,
		logger:   logger,
	}
}

// OnReasoningUpdate appends a line to the ephemeral reasoning stream. The
// event carries no session id on the wire; it applies only while a turn is
// awaiting its response.
func (r *Reconciler) OnReasoningUpdate(ev protocol.ReasoningUpdate) {
	s := r.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turn != TurnAwaitingResponse {
		r.logger.Debug("Ignoring reasoning update while idle")
		return
	}
	s.reasoningLineLocked(ev.Message)
}

// OnFollowUpRequest ends the current turn with a clarification question:
// the question is rendered as an assistant message and the next user
// submission is routed as a follow-up answer.
func (r *Reconciler) OnFollowUpRequest(ev protocol.FollowUpRequest) {
	s := r.session
	if ev.SessionID != s.id {
		r.logger.Debug("Ignoring follow-up request for other session", "session_id", ev.SessionID)
		return
	}

	rendered := r.renderer.Text(ev.Message)
	s.mu.Lock()
	s.pendingFollowUp = true
	s.appendAssistantLocked(Message{Role: protocol.RoleAssistant, Text: rendered.Text, HTML: rendered.HTML})
	s.turn = TurnIdle
	s.waiting = false
	s.mu.Unlock()

	r.logger.Info("Follow-up requested", "session_id", s.id)
	r.conv.Log(convlog.Event{
		SessionID: s.id,
		Direction: convlog.DirectionInbound,
		EventType: "follow_up_request",
		Content:   ev.Message,
	})
}

// OnAgentResponse finishes the turn with the final answer. PDF content is
// decoded and handed to the downloader; the transcript receives a
// confirmation entry, or an error entry when the payload cannot be
// delivered in full.
func (r *Reconciler) OnAgentResponse(ev protocol.AgentResponse) {
	s := r.session
	if ev.SessionID != s.id {
		r.logger.Debug("Ignoring agent response for other session", "session_id", ev.SessionID)
		return
	}

	var rendered render.Rendered
	if ev.ContentType == protocol.ContentTypePDF {
		path, err := r.renderer.PDF(ev.Assistant)
		if err != nil {
			r.logger.Error("PDF delivery failed", "session_id", s.id, "error", err)
			rendered = r.renderer.Text("Error: could not save the PDF output.")
		} else {
			r.logger.Info("PDF downloaded", "session_id", s.id, "path", path)
			rendered = r.renderer.Text(render.PDFConfirmation)
		}
	} else {
		rendered = r.renderer.Text(ev.Assistant)
	}

	s.mu.Lock()
	s.appendAssistantLocked(Message{Role: protocol.RoleAssistant, Text: rendered.Text, HTML: rendered.HTML})
	s.turn = TurnIdle
	s.waiting = false
	s.mu.Unlock()

	r.conv.Log(convlog.Event{
		SessionID: s.id,
		Direction: convlog.DirectionInbound,
		EventType: "chat_assistant_message",
		Content:   rendered.Text,
		Meta:      map[string]any{"content_type": ev.ContentType},
	})
}

// OnRequestEvaluation triggers the one-shot rating prompt. The turn is
// already complete when this fires, so turn state is untouched. A second
// request while a prompt is visible is a no-op.
func (r *Reconciler) OnRequestEvaluation(ev protocol.EvaluationRequest) {
	s := r.session
	if ev.SessionID != s.id {
		r.logger.Debug("Ignoring evaluation request for other session", "session_id", ev.SessionID)
		return
	}
	r.ratings.Show(ev.SessionID, ev.Assistant)
}

// OnError finishes the turn with an agent-declared error, rendered as a
// normal assistant entry. Errors are terminal for their turn and never
// fatal to the session.
func (r *Reconciler) OnError(ev protocol.ErrorEvent) {
	s := r.session
	if ev.SessionID != s.id {
		r.logger.Debug("Ignoring error for other session", "session_id", ev.SessionID)
		return
	}

	rendered := r.renderer.Text("Error: " + ev.Error)
	s.mu.Lock()
	s.appendAssistantLocked(Message{Role: protocol.RoleAssistant, Text: rendered.Text, HTML: rendered.HTML})
	s.turn = TurnIdle
	s.waiting = false
	s.mu.Unlock()

	r.logger.Warn("Agent reported error", "session_id", s.id, "error", ev.Error)
	r.conv.Log(convlog.Event{
		SessionID: s.id,
		Direction: convlog.DirectionInbound,
		EventType: "agent_error",
		Content:   ev.Error,
	})
}
