package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// NewFileID generates a random 16-byte file identifier.
func NewFileID() ([FileIDLength]byte, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return [FileIDLength]byte{}, fmt.Errorf("ledger: file id generation failed: %w", err)
	}
	return [FileIDLength]byte(id), nil
}

// ParseFileID accepts a file identifier in UUID form, with or without dashes.
func ParseFileID(s string) ([FileIDLength]byte, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return [FileIDLength]byte{}, fmt.Errorf("ledger: malformed file id %q: %w", s, err)
	}
	return [FileIDLength]byte(id), nil
}

// FormatFileID renders a file identifier in canonical UUID form.
func FormatFileID(id [FileIDLength]byte) string {
	return uuid.UUID(id).String()
}
