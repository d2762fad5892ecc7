package core

import "github.com/google/uuid"

// NewSessionID returns a time-ordered identifier for a start session or
// handshake.
func NewSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
