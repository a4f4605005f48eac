// Package rating implements the one-shot per-turn evaluation prompt.
package rating

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Scale is the number of selectable rating values.
const Scale = 5

// DefaultDismissDelay is how long a confirmed selection stays visible
// before the prompt removes itself.
const DefaultDismissDelay = 2 * time.Second

var (
	// ErrOutOfRange reports a rating outside the prompt's scale.
	ErrOutOfRange = errors.New("rating out of range")
	// ErrDismissed reports a selection on an already-dismissed prompt.
	ErrDismissed = errors.New("rating prompt dismissed")
)

// Emitter delivers a rating submission to the agent. Each selection click
// invokes it independently; repeated clicks before dismissal each emit
// again (preserved as the observed upstream behavior, last write wins
// server-side).
type Emitter func(sessionID string, rating int)

// Manager owns the at-most-one visible rating prompt.
type Manager struct {
	mu           sync.Mutex
	prompt       *Prompt
	emit         Emitter
	dismissDelay time.Duration
	logger       *slog.Logger

	// OnShow and OnDismiss are display hooks. Set them before the first
	// Show; they are invoked outside the manager lock.
	OnShow    func(*Prompt)
	OnDismiss func(*Prompt)
}

// NewManager creates a prompt manager. A non-positive dismissDelay selects
// the default.
func NewManager(emit Emitter, dismissDelay time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if dismissDelay <= 0 {
		dismissDelay = DefaultDismissDelay
	}
	return &Manager{
		emit:         emit,
		dismissDelay: dismissDelay,
		logger:       logger,
	}
}

// Show presents a prompt for the given session. If a prompt is already
// visible the call is a no-op and the existing prompt is returned.
func (m *Manager) Show(sessionID, promptText string) *Prompt {
	m.mu.Lock()
	if m.prompt != nil {
		p := m.prompt
		m.mu.Unlock()
		m.logger.Debug("rating prompt already visible, ignoring request", "session_id", sessionID)
		return p
	}
	p := &Prompt{
		sessionID:  sessionID,
		promptText: promptText,
		manager:    m,
	}
	m.prompt = p
	m.mu.Unlock()

	m.logger.Info("rating prompt shown", "session_id", sessionID)
	if m.OnShow != nil {
		m.OnShow(p)
	}
	return p
}

// Current returns the visible prompt, or nil.
func (m *Manager) Current() *Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prompt
}

// dismiss removes p if it is still the visible prompt.
func (m *Manager) dismiss(p *Prompt) {
	m.mu.Lock()
	if m.prompt != p {
		m.mu.Unlock()
		return
	}
	m.prompt = nil
	m.mu.Unlock()

	p.mu.Lock()
	p.dismissed = true
	p.mu.Unlock()

	m.logger.Info("rating prompt dismissed", "session_id", p.sessionID, "rating", p.Selected())
	if m.OnDismiss != nil {
		m.OnDismiss(p)
	}
}

// Prompt is one visible rating widget instance.
type Prompt struct {
	sessionID  string
	promptText string
	manager    *Manager

	mu        sync.Mutex
	selected  int
	dismissed bool
	timerSet  bool
}

// SessionID returns the session the prompt is keyed to.
func (p *Prompt) SessionID() string { return p.sessionID }

// PromptText returns the optional accompanying text from the agent.
func (p *Prompt) PromptText() string { return p.promptText }

// Selected returns the currently selected rating, 0 when unselected.
func (p *Prompt) Selected() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected
}

// Dismissed reports whether the prompt has been removed.
func (p *Prompt) Dismissed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dismissed
}

// Select records a rating value and emits a submission for it. The first
// selection schedules removal of the prompt after the manager's dismiss
// delay; further selections before removal update the visual state and
// emit again.
func (p *Prompt) Select(r int) error {
	if r < 1 || r > Scale {
		return ErrOutOfRange
	}

	p.mu.Lock()
	if p.dismissed {
		p.mu.Unlock()
		return ErrDismissed
	}
	p.selected = r
	scheduleDismiss := !p.timerSet
	p.timerSet = true
	p.mu.Unlock()

	p.manager.emit(p.sessionID, r)
	p.manager.logger.Info("rating submitted", "session_id", p.sessionID, "rating", r)

	if scheduleDismiss {
		time.AfterFunc(p.manager.dismissDelay, func() {
			p.manager.dismiss(p)
		})
	}
	return nil
}
