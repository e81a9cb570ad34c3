package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random opaque identifier, optionally prefixed by kind
// (e.g. "cm" for comments, "ch" for challenge tokens).
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
