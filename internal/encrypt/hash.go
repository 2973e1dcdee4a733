package encrypt

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// HashSecret returns the hex encoded SHA-256 digest of plaintext. It is used to
// recognize a secret without being able to recover it.
func HashSecret(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// VerifySecretHash reports whether plaintext hashes to hash, in constant time.
func VerifySecretHash(plaintext, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashSecret(plaintext)), []byte(hash)) == 1
}

// GenerateMasterKey returns a random key suitable for New.
func GenerateMasterKey() (string, error) {
	b, err := cryptoRandRead(36)
	if err != nil {
		return "", fmt.Errorf("generating master key: %w", err)
	}

	// 36 bytes encode to 48 characters without padding
	return base64.RawURLEncoding.EncodeToString(b), nil
}
