package chat

import "github.com/ashureev/deepchat/internal/protocol"

// Message is one permanent transcript entry. Text is the plain-text
// projection used for history derivation; HTML is the sanitized display
// markup.
type Message struct {
	Role string
	Text string
	HTML string
}

// Transcript is the explicit in-memory ordered log of the conversation.
// It is the single source of truth: the gating check and history
// derivation read it directly, and any display is a projection of it.
// Transcript is not safe for concurrent use; the owning Session guards it.
type Transcript struct {
	entries []Message
}

// Append adds an entry and returns its index.
func (t *Transcript) Append(m Message) int {
	t.entries = append(t.entries, m)
	return len(t.entries) - 1
}

// Replace overwrites the entry at index in place.
func (t *Transcript) Replace(index int, m Message) {
	if index < 0 || index >= len(t.entries) {
		return
	}
	t.entries[index] = m
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	return len(t.entries)
}

// Last returns the most recent entry.
func (t *Transcript) Last() (Message, bool) {
	if len(t.entries) == 0 {
		return Message{}, false
	}
	return t.entries[len(t.entries)-1], true
}

// Entries returns a copy of all entries.
func (t *Transcript) Entries() []Message {
	out := make([]Message, len(t.entries))
	copy(out, t.entries)
	return out
}

// History derives the conversation history sent with a run request. A
// trailing entry with empty content is dropped before transmission.
func (t *Transcript) History() []protocol.ChatMessage {
	history := make([]protocol.ChatMessage, 0, len(t.entries))
	for _, m := range t.entries {
		history = append(history, protocol.ChatMessage{Role: m.Role, Content: m.Text})
	}
	if n := len(history); n > 0 && history[n-1].Content == "" {
		history = history[:n-1]
	}
	return history
}
