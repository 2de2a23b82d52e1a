package utils

import "github.com/google/uuid"

// NewID returns a random identifier for sessions.
func NewID() string {
	return uuid.NewString()
}
