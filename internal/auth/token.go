package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
)

// Session tokens are lowercase, user ids uppercase. The split is historical;
// existing stores hold uppercase user ids, so both encodings stay.
var (
	tokenEncoding  = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)
	userIDEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// GenerateSessionToken returns a fresh opaque bearer token: 20 random bytes as
// 32 characters of unpadded lowercase base32.
func GenerateSessionToken() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return tokenEncoding.EncodeToString(b), nil
}

// NewUserID returns a fresh account id: 20 random bytes as unpadded uppercase
// base32.
func NewUserID() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate user id: %w", err)
	}
	return userIDEncoding.EncodeToString(b), nil
}

// SessionIDFromToken derives the storage key for a raw token. The hash runs
// over the encoded token string, not the underlying random bytes.
func SessionIDFromToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
