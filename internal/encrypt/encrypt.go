// Package encrypt protects third-party secrets at rest. Secrets are encrypted
// with AES-256-CBC under a key derived from a process-wide master key and a
// per-message salt, and authenticated with HMAC-SHA256.
package encrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	MinMasterKeyLength = 32

	saltSize   = 64
	ivSize     = aes.BlockSize
	keySize    = 32
	tagSize    = sha256.Size
	iterations = 100_000
)

// ConfigurationError is returned when the master key is missing or too weak.
// It is not recoverable without changing the server configuration.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "encryption misconfigured: " + e.Reason
}

// DecryptionError is returned when a blob is malformed, truncated, tampered
// with, or was encrypted under a different master key.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decrypt: %v", e.Err)
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

var errAuthentication = errors.New("message authentication failed")

// Encryptor encrypts and decrypts secrets with a single master key.
type Encryptor struct {
	masterKey []byte
}

// New returns an Encryptor for masterKey. The key must be at least
// MinMasterKeyLength characters.
func New(masterKey string) (*Encryptor, error) {
	switch {
	case masterKey == "":
		return nil, &ConfigurationError{Reason: "master key is not set"}
	case len(masterKey) < MinMasterKeyLength:
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("master key must be at least %d characters", MinMasterKeyLength),
		}
	}

	return &Encryptor{masterKey: []byte(masterKey)}, nil
}

// cryptoRandRead is a safe read from crypto/rand, checking errors and number of bytes read, erroring if we don't get enough
func cryptoRandRead(length int) ([]byte, error) {
	b := make([]byte, length)

	i, err := rand.Read(b)
	if err != nil {
		return nil, fmt.Errorf("crypto/rand read: %w", err)
	}

	if i != length {
		return nil, fmt.Errorf("could not read %d random characters from crypto/rand, only got %d", length, i)
	}

	return b, nil
}

// deriveKeys returns the cipher key and the mac key for salt.
func (e *Encryptor) deriveKeys(salt []byte) (cipherKey, macKey []byte) {
	material := pbkdf2.Key(e.masterKey, salt, iterations, 2*keySize, sha512.New)
	return material[:keySize], material[keySize:]
}

// Encrypt returns base64(salt || iv || ciphertext || tag). Every call uses a
// fresh salt and iv, so encrypting the same plaintext twice gives different
// results.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	salt, err := cryptoRandRead(saltSize)
	if err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	iv, err := cryptoRandRead(ivSize)
	if err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}

	cipherKey, macKey := e.deriveKeys(salt)

	blk, err := aes.NewCipher(cipherKey)
	if err != nil {
		return "", err
	}

	padded := pad([]byte(plaintext))
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(blk, iv).CryptBlocks(ciphertext, padded)

	blob := make([]byte, 0, saltSize+ivSize+len(ciphertext)+tagSize)
	blob = append(blob, salt...)
	blob = append(blob, iv...)
	blob = append(blob, ciphertext...)
	blob = append(blob, sign(macKey, blob)...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt reverses Encrypt. Any failure is reported as a *DecryptionError.
func (e *Encryptor) Decrypt(encoded string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", &DecryptionError{Err: fmt.Errorf("decoding payload: %w", err)}
	}

	// at least one block of ciphertext, since padding always adds one
	if len(blob) < saltSize+ivSize+aes.BlockSize+tagSize {
		return "", &DecryptionError{Err: errors.New("payload is truncated")}
	}

	body, tag := blob[:len(blob)-tagSize], blob[len(blob)-tagSize:]
	salt := body[:saltSize]
	iv := body[saltSize : saltSize+ivSize]
	ciphertext := body[saltSize+ivSize:]

	if len(ciphertext)%aes.BlockSize != 0 {
		return "", &DecryptionError{Err: errors.New("ciphertext is not a multiple of the block size")}
	}

	cipherKey, macKey := e.deriveKeys(salt)

	if !hmac.Equal(tag, sign(macKey, body)) {
		return "", &DecryptionError{Err: errAuthentication}
	}

	blk, err := aes.NewCipher(cipherKey)
	if err != nil {
		return "", &DecryptionError{Err: fmt.Errorf("creating cipher: %w", err)}
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(blk, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := unpad(padded)
	if err != nil {
		return "", &DecryptionError{Err: err}
	}

	return string(plaintext), nil
}

func sign(key, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}

// pad applies PKCS#7 padding.
func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("invalid padding")
	}

	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, errors.New("invalid padding")
	}

	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errors.New("invalid padding")
		}
	}

	return b[:len(b)-n], nil
}
