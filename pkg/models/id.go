package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// GenerateEventID creates a deterministic ID for events that arrive without one.
// The ID is the first 16 hex chars of a SHA-256 over type, timestamp and URL.
func GenerateEventID(e Event) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s|%d", e.Type, e.Timestamp, e.URL, e.TabKey())))
	return hex.EncodeToString(hash[:])[:16]
}

// NewWorkflowID returns a random workflow identifier.
func NewWorkflowID() string {
	return uuid.NewString()
}
