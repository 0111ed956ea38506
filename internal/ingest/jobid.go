package ingest

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// newJobID returns a 12-hex-character job id (§3), generated the same way
// pkg/uuid generates its random bytes.
func newJobID() (string, error) {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
