// internal/utils/crypto.go
package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashBytes returns the hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// MatchesHash reports whether data hashes to expectedHash.
func MatchesHash(data []byte, expectedHash string) bool {
	return HashBytes(data) == expectedHash
}
