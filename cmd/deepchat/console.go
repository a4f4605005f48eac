package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ashureev/deepchat/internal/chat"
	"github.com/ashureev/deepchat/internal/protocol"
	"github.com/ashureev/deepchat/internal/rating"
)

// console renders the transcript, reasoning stream and rating prompts to a
// terminal. Callbacks arrive from transport goroutines, so every print
// holds the mutex to keep lines whole.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

// MessageAppended implements chat.Listener.
func (c *console) MessageAppended(_ int, m chat.Message) {
	c.printMessage(m)
}

// MessageReplaced implements chat.Listener.
func (c *console) MessageReplaced(_ int, m chat.Message) {
	c.printMessage(m)
}

// ReasoningLine implements chat.Listener.
func (c *console) ReasoningLine(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "  · %s\n", line)
}

// ReasoningCleared implements chat.Listener.
func (c *console) ReasoningCleared() {}

func (c *console) printMessage(m chat.Message) {
	if m.Role == protocol.RoleUser {
		// The user already sees their own input on the prompt line.
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range strings.Split(m.Text, "\n") {
		fmt.Fprintf(c.out, "agent> %s\n", line)
	}
}

// showRating prints the one-shot star prompt.
func (c *console) showRating(p *rating.Prompt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	text := p.PromptText()
	if text == "" {
		text = "How would you rate this answer?"
	}
	fmt.Fprintf(c.out, "--- %s  (/rate 1-%d) ---\n", text, rating.Scale)
}

func (c *console) dismissRating(p *rating.Prompt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.Selected() > 0 {
		fmt.Fprintf(c.out, "--- thanks for the %d-star rating ---\n", p.Selected())
	}
}

func (c *console) notice(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}
