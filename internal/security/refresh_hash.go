package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashRefreshToken returns the hex SHA-256 of the refresh token. Only this
// hash is persisted; a database leak never exposes usable tokens.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RefreshTokenHashEqual compares the provided token against the stored hash
// in constant time.
func RefreshTokenHashEqual(providedToken, storedHash string) bool {
	got := HashRefreshToken(providedToken)
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedHash)) == 1
}
