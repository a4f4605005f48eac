package chat

import (
	"testing"

	"github.com/ashureev/deepchat/internal/protocol"
)

func TestHistoryPreservesOrder(t *testing.T) {
	t.Parallel()
	var tr Transcript
	tr.Append(Message{Role: protocol.RoleUser, Text: "hi"})
	tr.Append(Message{Role: protocol.RoleAssistant, Text: "hello"})
	tr.Append(Message{Role: protocol.RoleUser, Text: "more"})

	history := tr.History()
	if len(history) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(history))
	}
	if history[0].Content != "hi" || history[1].Content != "hello" || history[2].Content != "more" {
		t.Errorf("history out of order: %+v", history)
	}
}

func TestHistoryDropsTrailingEmptyEntry(t *testing.T) {
	t.Parallel()
	var tr Transcript
	tr.Append(Message{Role: protocol.RoleUser, Text: "hi"})
	tr.Append(Message{Role: protocol.RoleAssistant, Text: ""})

	history := tr.History()
	if len(history) != 1 {
		t.Fatalf("expected trailing empty entry dropped, got %+v", history)
	}
}

func TestHistoryKeepsInteriorEmptyEntry(t *testing.T) {
	t.Parallel()
	var tr Transcript
	tr.Append(Message{Role: protocol.RoleUser, Text: ""})
	tr.Append(Message{Role: protocol.RoleAssistant, Text: "reply"})

	history := tr.History()
	if len(history) != 2 {
		t.Fatalf("only the trailing entry is subject to dropping, got %+v", history)
	}
}

func TestReplaceOutOfRangeIsNoOp(t *testing.T) {
	t.Parallel()
	var tr Transcript
	tr.Append(Message{Role: protocol.RoleUser, Text: "hi"})
	tr.Replace(5, Message{Role: protocol.RoleAssistant, Text: "x"})
	tr.Replace(-1, Message{Role: protocol.RoleAssistant, Text: "x"})

	if got, _ := tr.Last(); got.Text != "hi" {
		t.Errorf("out-of-range replace mutated transcript: %+v", got)
	}
}
