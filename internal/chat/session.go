// Package chat implements the client-side session core: the transcript
// log, submission gating, and reconciliation of inbound agent events
// against the single in-flight turn.
package chat

import (
	"sync"
	"time"

	"github.com/ashureev/deepchat/internal/identity"
	"github.com/ashureev/deepchat/internal/protocol"
)

// TurnState tracks the single logical turn of a session.
type TurnState int

const (
	// TurnIdle means no request is outstanding; submission is possible.
	TurnIdle TurnState = iota
	// TurnAwaitingResponse means a request has been dispatched and its
	// terminal event has not yet arrived.
	TurnAwaitingResponse
)

func (s TurnState) String() string {
	switch s {
	case TurnIdle:
		return "idle"
	case TurnAwaitingResponse:
		return "awaiting_response"
	default:
		return "unknown"
	}
}

// Mode selects the transport shape the session was built for.
type Mode int

const (
	// ModePush uses the persistent duplex channel.
	ModePush Mode = iota
	// ModeRequest uses one HTTP exchange per turn.
	ModeRequest
)

// Listener observes transcript and reasoning changes for display.
// Callbacks run on the goroutine that caused the change and must not call
// back into the session.
type Listener interface {
	MessageAppended(index int, m Message)
	MessageReplaced(index int, m Message)
	ReasoningLine(line string)
	ReasoningCleared()
}

// NopListener discards all notifications.
type NopListener struct{}

func (NopListener) MessageAppended(int, Message) {}
func (NopListener) MessageReplaced(int, Message) {}
func (NopListener) ReasoningLine(string)         {}
func (NopListener) ReasoningCleared()            {}

// Session owns the identity, options, transcript and turn state of one
// conversation. The id is generated once at construction and never
// changes. All mutation happens through the Controller and Reconciler.
type Session struct {
	id        string
	createdAt time.Time
	userID    string
	mode      Mode

	mu              sync.Mutex
	transcript      Transcript
	reasoning       []string
	turn            TurnState
	pendingFollowUp bool
	deepSearch      bool
	depth           int
	waiting         bool // request/response exchange outstanding
	placeholder     int  // transcript index awaiting in-place replacement, -1 none

	listener Listener
}

// NewSession creates a session with a fresh identity.
func NewSession(userID string, mode Mode, listener Listener) *Session {
	if userID == "" {
		userID = identity.DefaultUserID
	}
	if listener == nil {
		listener = NopListener{}
	}
	return &Session{
		id:          identity.NewSessionID(),
		createdAt:   time.Now(),
		userID:      userID,
		mode:        mode,
		depth:       1,
		placeholder: -1,
		listener:    listener,
	}
}

// ID returns the opaque session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the session creation instant.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Mode returns the transport mode the session was built for.
func (s *Session) Mode() Mode { return s.mode }

// TurnState returns the current turn state.
func (s *Session) TurnState() TurnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}

// PendingFollowUp reports whether the next submission will be routed as a
// follow-up answer.
func (s *Session) PendingFollowUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingFollowUp
}

// DeepSearch returns the current deep-search option.
func (s *Session) DeepSearch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deepSearch
}

// Depth returns the current depth option.
func (s *Session) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.depth
}

// Entries returns a copy of the transcript.
func (s *Session) Entries() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Entries()
}

// Reasoning returns a copy of the ephemeral reasoning stream.
func (s *Session) Reasoning() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reasoning...)
}

// History derives the current conversation history.
func (s *Session) History() []protocol.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.History()
}

// canSubmitLocked derives the submission gate from the transcript: a
// submission is allowed only when the transcript is empty or ends with an
// assistant entry, no reasoning stream is active, and (request/response
// mode) no exchange is outstanding.
func (s *Session) canSubmitLocked() bool {
	if s.waiting {
		return false
	}
	if len(s.reasoning) > 0 {
		return false
	}
	last, ok := s.transcript.Last()
	if !ok {
		return true
	}
	return last.Role == protocol.RoleAssistant
}

// appendLocked adds a transcript entry and notifies the listener.
func (s *Session) appendLocked(m Message) int {
	index := s.transcript.Append(m)
	s.listener.MessageAppended(index, m)
	return index
}

// appendAssistantLocked renders an assistant entry into the transcript:
// the reasoning stream is discarded first, and an in-place placeholder is
// replaced instead of appending when one is pending.
func (s *Session) appendAssistantLocked(m Message) {
	s.clearReasoningLocked()
	if s.placeholder >= 0 {
		index := s.placeholder
		s.placeholder = -1
		s.transcript.Replace(index, m)
		s.listener.MessageReplaced(index, m)
		return
	}
	s.appendLocked(m)
}

// reasoningLineLocked appends a line to the ephemeral stream.
func (s *Session) reasoningLineLocked(line string) {
	s.reasoning = append(s.reasoning, line)
	s.listener.ReasoningLine(line)
}

// clearReasoningLocked discards the whole reasoning stream.
func (s *Session) clearReasoningLocked() {
	if len(s.reasoning) == 0 {
		return
	}
	s.reasoning = nil
	s.listener.ReasoningCleared()
}
