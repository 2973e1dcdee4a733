// Package generate creates random strings for secrets and identifiers.
package generate

import (
	"crypto/rand"
	"fmt"
	mathrand "math/rand"
)

const (
	CharsetNumbers      = "0123456789"
	CharsetLowercase    = "abcdefghijklmnopqrstuvwxyz"
	CharsetAlphaNumeric = CharsetNumbers + "ABCDEFGHIJKLMNOPQRSTUVWXYZ" + CharsetLowercase
)

// CryptoRandom returns a string of n characters picked from charset with
// crypto/rand. Bytes that would bias the distribution are discarded.
func CryptoRandom(n int, charset string) (string, error) {
	if n <= 0 {
		return "", nil
	}
	if len(charset) == 0 || len(charset) > 256 {
		return "", fmt.Errorf("charset must have between 1 and 256 characters, got %d", len(charset))
	}

	limit := 256 - 256%len(charset)
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, charset[int(b)%len(charset)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// MathRandom returns a string of n characters picked from charset. Use it for
// identifiers that are not secrets.
func MathRandom(n int, charset string) string {
	if n <= 0 || len(charset) == 0 {
		return ""
	}

	out := make([]byte, n)
	for i := range out {
		out[i] = charset[mathrand.Intn(len(charset))]
	}
	return string(out)
}
