package store

import "github.com/google/uuid"

// NewID returns a random UUIDv4 string used for mechanic and task identifiers.
func NewID() string {
	return uuid.NewString()
}
