// Package id provides UUIDv7 generation for identifiers minted on the terminal.
// UUIDv7 is time-ordered, so sale ids minted by different terminals sort
// roughly by creation time.
package id

import (
	"github.com/google/uuid"
)

// ID is a type alias for UUID.
type ID = uuid.UUID

// New generates a new UUIDv7 (time-ordered UUID).
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		// Fallback to V4 if V7 fails (should never happen)
		return uuid.New()
	}
	return v
}

// NewString is New().String().
func NewString() string {
	return New().String()
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// IsValid reports whether s is a well-formed UUID.
func IsValid(s string) bool {
	return uuid.Validate(s) == nil
}
