package service

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the hex-encoded SHA-256 digest of the extracted text.
// The digest is a dedup key only, never a security control; identical text
// always yields the identical fingerprint regardless of the source file.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
