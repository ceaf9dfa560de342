// Package crypto provides the symmetric cipher that protects stored provider
// credentials, plus the token and MAC helpers used by sessions and CSRF.
// Credentials are sealed with AES-256-GCM under a key derived from the
// server-side secret with HKDF-SHA256.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the size of AES-256 keys in bytes.
	KeySize = 32

	// NonceSize is the size of GCM nonces in bytes.
	NonceSize = 12

	// TagSize is the size of GCM authentication tags in bytes.
	TagSize = 16

	// MinSecretLength is the minimum accepted length of the server secret.
	MinSecretLength = 32

	// ciphertextVersion prefixes every stored ciphertext.
	ciphertextVersion = "v1:"

	hkdfInfo = "mediscribe/credential-cipher/v1"
)

var (
	// ErrInvalidKeySize is returned when a key has an incorrect size.
	ErrInvalidKeySize = errors.New("key must be 32 bytes")

	// ErrInvalidCiphertext is returned when ciphertext is malformed.
	ErrInvalidCiphertext = errors.New("ciphertext too short")

	// ErrDecryptionFailed is returned for any ciphertext that cannot be opened
	// with the active key: malformed, truncated, tampered or foreign-keyed.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrWeakSecret is returned when the server secret is shorter than MinSecretLength.
	ErrWeakSecret = fmt.Errorf("secret must be at least %d characters", MinSecretLength)
)

// Encrypt encrypts plaintext using AES-256-GCM.
// The result is: nonce (12 bytes) + ciphertext + tag (16 bytes).
func Encrypt(key, plaintext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts ciphertext produced by Encrypt.
func Decrypt(key, ciphertext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	if len(ciphertext) < NonceSize+TagSize {
		return nil, ErrInvalidCiphertext
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, ciphertext[:NonceSize], ciphertext[NonceSize:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Cipher seals credential strings with a key derived from a single
// process-wide secret. It is safe for concurrent use.
type Cipher struct {
	key []byte
}

// NewCipher derives the credential key from secret. Secrets shorter than
// MinSecretLength are rejected.
func NewCipher(secret string) (*Cipher, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}

	key, err := DeriveKey([]byte(secret), hkdfInfo)
	if err != nil {
		return nil, err
	}
	return &Cipher{key: key}, nil
}

// DeriveKey expands secret into a KeySize key bound to the given purpose label.
func DeriveKey(secret []byte, info string) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext and returns a versioned, base64-encoded ciphertext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	sealed, err := Encrypt(c.key, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return ciphertextVersion + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Every failure wraps
// ErrDecryptionFailed so callers can treat it uniformly.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	encoded, ok := strings.CutPrefix(ciphertext, ciphertextVersion)
	if !ok {
		return "", fmt.Errorf("%w: unknown ciphertext version", ErrDecryptionFailed)
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: invalid encoding", ErrDecryptionFailed)
	}

	plaintext, err := Decrypt(c.key, sealed)
	if err != nil {
		if errors.Is(err, ErrDecryptionFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}

// GenerateKey generates a cryptographically secure random 32-byte key.
func GenerateKey() ([]byte, error) {
	return GenerateToken(KeySize)
}

// CompareTokens compares two tokens in constant time.
func CompareTokens(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GenerateToken generates a random token of the specified length in bytes.
func GenerateToken(length int) ([]byte, error) {
	token := make([]byte, length)
	if _, err := rand.Read(token); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return token, nil
}

// GenerateTokenString generates a random token and returns it URL-safe base64 encoded.
func GenerateTokenString(length int) (string, error) {
	token, err := GenerateToken(length)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(token), nil
}

// Sign returns the URL-safe base64 HMAC-SHA256 of message under key.
func Sign(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is Sign(key, message), in constant time.
func Verify(key []byte, message, signature string) bool {
	return CompareTokens([]byte(Sign(key, message)), []byte(signature))
}
