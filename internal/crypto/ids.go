package crypto

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewConnectionID generates a time-ordered UUID v7 for a live connection.
func NewConnectionID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewMessageID generates a ULID for a persisted message.
func NewMessageID() string {
	return ulid.Make().String()
}
