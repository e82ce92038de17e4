package uuidx

import (
	"strings"

	"github.com/google/uuid"
)

// New generates a time ordered (version 7) UUID. It panics when the random source fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString returns New formatted as a canonical UUID string.
func NewString() string {
	return New().String()
}

// Prefixed returns an opaque identifier in the shape the agent service hands out,
// e.g. "thread_0192f1c2a7b4...". The UUID dashes are stripped so the id stays a single token.
func Prefixed(prefix string) string {
	id := strings.ReplaceAll(NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
