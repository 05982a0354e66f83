package common

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewJobID generates a unique external job ID
func NewJobID() string {
	return uuid.New().String()
}

// NewDatasetName generates a unique per-task dataset identifier
// Format: ds-<8 hex>
func NewDatasetName() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// uuid fallback keeps the name unique even if the entropy pool misbehaves
		return "ds-" + uuid.New().String()[:8]
	}
	return "ds-" + hex.EncodeToString(buf)
}
