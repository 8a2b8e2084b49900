// Package idgen generates aggregate identifiers.
package idgen

import (
	"github.com/google/uuid"
)

// UUIDv7 generates time-ordered UUIDs so that ids sort by creation time.
type UUIDv7 struct{}

// Generate returns a new UUIDv7, falling back to a random UUID if the clock
// source fails.
func (UUIDv7) Generate() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
