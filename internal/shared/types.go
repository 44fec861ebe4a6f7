package shared

import (
	"github.com/google/uuid"
)

// NewID returns a random UUID identifier with the given prefix, e.g. "turn_9f2c...".
func NewID(prefix string) string {
	return prefix + uuid.NewString()
}

// NewSessionID returns a UUID used as the session identifier of a call.
func NewSessionID() string {
	return uuid.NewString()
}
