package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ashureev/deepchat/internal/convlog"
	"github.com/ashureev/deepchat/internal/protocol"
	"github.com/ashureev/deepchat/internal/render"
	"github.com/ashureev/deepchat/internal/transport"
)

var (
	// ErrBlocked reports a submission attempted while the previous turn
	// has not completed. A blocked submission has no side effects.
	ErrBlocked = errors.New("previous turn still awaiting response")
	// ErrEmptyMessage reports a blank submission.
	ErrEmptyMessage = errors.New("empty message")
)

// ThinkingPlaceholder is the request/response-mode assistant entry shown
// while the single exchange is outstanding; it is replaced in place by the
// reply.
const ThinkingPlaceholder = "Thinking..."

// reasoningSeed is the first line of a fresh reasoning stream in push mode.
const reasoningSeed = "Reasoning..."

// Controller gates user submissions and shapes outbound requests. Options
// (deep search, depth) are carried across turns and applied to the next
// request only.
type Controller struct {
	session  *Session
	renderer *render.Renderer
	strategy transport.Strategy
	conv     *convlog.Logger
	logger   *slog.Logger
}

// NewController creates a controller bound to a transport strategy.
func NewController(session *Session, renderer *render.Renderer, strategy transport.Strategy, conv *convlog.Logger, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		session:  session,
		renderer: renderer,
		strategy: strategy,
		conv:     conv,
		logger:   logger,
	}
}

// ToggleDeepSearch flips the deep-search option and returns the new value.
// It has no effect on an in-flight turn.
func (c *Controller) ToggleDeepSearch() bool {
	s := c.session
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deepSearch = !s.deepSearch
	return s.deepSearch
}

// SetDepth sets the depth option for the next request. The value is passed
// through without range validation; the agent side owns validation.
func (c *Controller) SetDepth(n int) {
	s := c.session
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depth = n
}

// Submit starts a turn for the given user text. It fails with ErrBlocked
// while the previous turn is unresolved and with ErrEmptyMessage for blank
// input; neither failure touches the transcript or the wire. On success
// the user text is appended to the transcript, the request is shaped as
// either a follow-up answer or a full run request, and dispatched.
func (c *Controller) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	s := c.session
	s.mu.Lock()
	if !s.canSubmitLocked() {
		s.mu.Unlock()
		c.logger.Debug("Submission blocked: waiting for a response or reasoning to complete",
			"session_id", s.id)
		return ErrBlocked
	}

	rendered := c.renderer.Text(text)
	s.appendLocked(Message{Role: protocol.RoleUser, Text: rendered.Text, HTML: rendered.HTML})

	followUp := s.pendingFollowUp
	s.pendingFollowUp = false
	s.turn = TurnAwaitingResponse

	var runReq protocol.RunRequest
	if !followUp {
		// History includes the user entry appended above.
		runReq = protocol.RunRequest{
			SessionID:  s.id,
			History:    s.transcript.History(),
			UserID:     s.userID,
			DeepSearch: s.deepSearch,
			Depth:      s.depth,
		}
	}

	switch s.mode {
	case ModePush:
		if !followUp {
			s.reasoningLineLocked(reasoningSeed)
		}
	case ModeRequest:
		s.placeholder = s.appendLocked(Message{
			Role: protocol.RoleAssistant,
			Text: ThinkingPlaceholder,
			HTML: ThinkingPlaceholder,
		})
		s.waiting = true
	}
	s.mu.Unlock()

	eventType := "chat_user_message"
	if followUp {
		eventType = "follow_up_answer"
	}
	c.conv.Log(convlog.Event{
		SessionID: s.id,
		Direction: convlog.DirectionOutbound,
		EventType: eventType,
		Content:   text,
	})

	var err error
	if followUp {
		c.logger.Info("Submitting follow-up answer", "session_id", s.id)
		err = c.strategy.SubmitFollowUp(ctx, protocol.FollowUpAnswer{SessionID: s.id, Message: text})
	} else {
		c.logger.Info("Submitting run request",
			"session_id", s.id,
			"history_len", len(runReq.History),
			"deepsearch", runReq.DeepSearch,
			"depth", runReq.Depth,
		)
		err = c.strategy.SubmitRun(ctx, runReq)
	}
	if err != nil {
		// Transport failure is terminal for this turn only: it is rendered
		// as an assistant error entry and the session returns to idle.
		c.logger.Error("Dispatch failed", "session_id", s.id, "error", err)
		c.failTurn(err.Error())
	}
	return nil
}

// failTurn renders a transport failure in place of the pending placeholder
// and returns the session to idle.
func (c *Controller) failTurn(message string) {
	rendered := c.renderer.Text("Error: " + message)
	s := c.session
	s.mu.Lock()
	s.appendAssistantLocked(Message{Role: protocol.RoleAssistant, Text: rendered.Text, HTML: rendered.HTML})
	s.turn = TurnIdle
	s.waiting = false
	s.mu.Unlock()

	c.conv.Log(convlog.Event{
		SessionID: s.id,
		Direction: convlog.DirectionInbound,
		EventType: "transport_error",
		Content:   message,
	})
}
