package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// PINDigest is the one-way digest used for PIN storage and comparison.
// It must stay deterministic: the login fast path precomputes the digest
// of every possible PIN and matches stored hashes against that table.
func PINDigest(pin string) string {
	sum := sha256.Sum256([]byte(pin))
	return hex.EncodeToString(sum[:])
}

// ValidPIN reports whether the raw value is exactly four digits.
func ValidPIN(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}
