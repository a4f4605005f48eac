// Package identity provides session and user identifier primitives.
package identity

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// DefaultUserID is used when no user identity has been configured. The
// agent treats it as an opaque string.
const DefaultUserID = "user123"

var sessionIDPattern = regexp.MustCompile(`^session_[a-f0-9]{12}$`)

// NewSessionID generates a fresh opaque session identifier. One is created
// per client process and never changes for its lifetime.
func NewSessionID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "session_" + raw[:12]
}

// IsValidSessionID reports whether id matches the generated session format.
func IsValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// NewRequestID generates an identifier for correlating log events.
func NewRequestID() string {
	return uuid.NewString()
}
