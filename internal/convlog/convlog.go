// Package convlog writes conversation events to per-session NDJSON files
// for debugging. Events are queued and written by a background goroutine so
// logging never blocks the session core. Nothing written here is ever read
// back into a session.
package convlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Directions for Event.Direction.
const (
	DirectionOutbound = "outbound" // user to agent
	DirectionInbound  = "inbound"  // agent to user
)

// Event is one NDJSON conversation log line.
type Event struct {
	Timestamp string         `json:"ts"`
	SessionID string         `json:"session_id"`
	Direction string         `json:"direction"`
	EventType string         `json:"event_type"`
	Content   string         `json:"content,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Config controls the logger.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Logger appends events to <dir>/<session_id>.ndjson. A nil *Logger is a
// valid no-op.
type Logger struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	queue  chan Event
	closed bool

	done  chan struct{}
	files map[string]*os.File
}

// New creates a conversation logger. When cfg.Enabled is false it returns
// nil, which all methods accept.
func New(cfg Config, logger *slog.Logger) (*Logger, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}

	l := &Logger{
		dir:    cfg.Dir,
		logger: logger,
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
		files:  make(map[string]*os.File),
	}
	go l.writeLoop()
	return l, nil
}

// Log enqueues an event. A full queue drops the event rather than blocking
// the caller.
func (l *Logger) Log(ev Event) {
	if l == nil {
		return
	}
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- ev:
	default:
		l.logger.Warn("conversation log queue full, dropping event",
			"session_id", ev.SessionID, "event_type", ev.EventType)
	}
}

// Close flushes queued events and closes all session files.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	return nil
}

func (l *Logger) writeLoop() {
	defer close(l.done)
	for ev := range l.queue {
		l.write(ev)
	}
	for _, f := range l.files {
		if err := f.Close(); err != nil {
			l.logger.Warn("failed to close conversation log file", "error", err)
		}
	}
}

func (l *Logger) write(ev Event) {
	f, err := l.file(ev.SessionID)
	if err != nil {
		l.logger.Warn("failed to open conversation log file", "error", err, "session_id", ev.SessionID)
		return
	}
	line, err := json.Marshal(ev)
	if err != nil {
		l.logger.Warn("failed to marshal conversation event", "error", err)
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		l.logger.Warn("failed to write conversation event", "error", err)
	}
}

func (l *Logger) file(sessionID string) (*os.File, error) {
	if sessionID == "" {
		sessionID = "unknown"
	}
	if f, ok := l.files[sessionID]; ok {
		return f, nil
	}
	path := filepath.Join(l.dir, sessionID+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	l.files[sessionID] = f
	return f, nil
}
