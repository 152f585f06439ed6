package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const tokenSecretSize = 32

// NewToken returns a fresh 32-byte secret encoded as unpadded base64url.
// The encoded form is what leaves the system (mail links, API responses);
// only its digest is ever persisted.
func NewToken() (string, error) {
	var secret [tokenSecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(secret[:]), nil
}

// HashToken returns the hex SHA-256 digest of a raw token string.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
