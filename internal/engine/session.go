package engine

import "github.com/google/uuid"

// newSessionID returns a time-sortable UUIDv7 identifying one mounted view.
// It tags log records so interleaved viewers can be told apart.
func newSessionID() string {
	return uuid.Must(uuid.NewV7()).String()
}
