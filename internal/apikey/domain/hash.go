package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashAPIKey returns the hex-encoded sha256 digest of the raw key material.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
