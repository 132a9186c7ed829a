// Package password derives and verifies salted PBKDF2 password hashes.
package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength = 16
	iterations = 100_000
	keyLength  = 32
)

// Hash derives a key from the password under a fresh random 16-byte salt and
// returns it as "<salt-hex>:<hash-hex>".
func Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return HashWithSalt(password, salt), nil
}

// HashWithSalt is deterministic for a given password and salt.
func HashWithSalt(password string, salt []byte) string {
	key := pbkdf2.Key([]byte(password), salt, iterations, keyLength, sha256.New)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(key)
}

// Verify recomputes the derived key for the attempt using the salt embedded in
// the stored value and compares the results. Malformed stored values resolve
// to false rather than an error.
func Verify(stored, attempt string) bool {
	saltHex, hashHex, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) == 0 {
		return false
	}
	want, err := hex.DecodeString(hashHex)
	if err != nil || len(want) != keyLength {
		return false
	}
	got := pbkdf2.Key([]byte(attempt), salt, iterations, keyLength, sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}
