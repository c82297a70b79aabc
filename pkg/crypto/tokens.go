// Package crypto provides encryption for marketplace access tokens.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/mlagent/answer-engine/pkg/apperrors"
)

// ErrInvalidKey is returned when the encryption key is empty.
var ErrInvalidKey = errors.New("invalid encryption key: must not be empty")

// EncryptedToken is the three-part AES-256-GCM envelope stored on a
// marketplace account: each field is base64-encoded.
type EncryptedToken struct {
	Ciphertext string
	IV         string
	AuthTag    string
}

// Empty reports whether no credential material is present.
func (t *EncryptedToken) Empty() bool {
	return t == nil || t.Ciphertext == "" || t.IV == "" || t.AuthTag == ""
}

// TokenCipher provides AES-256-GCM authenticated encryption for access
// tokens. Tokens are decrypted on demand per submission and never cached.
type TokenCipher struct {
	gcm cipher.AEAD
}

// NewTokenCipher creates a cipher from a key string. The key can be a
// base64-encoded 32-byte key (openssl rand -base64 32) or any passphrase,
// which is hashed to 32 bytes with SHA-256.
func NewTokenCipher(keyInput string) (*TokenCipher, error) {
	if keyInput == "" {
		return nil, ErrInvalidKey
	}

	var key []byte
	decoded, err := base64.StdEncoding.DecodeString(keyInput)
	if err == nil && len(decoded) == 32 {
		key = decoded
	} else {
		hash := sha256.Sum256([]byte(keyInput))
		key = hash[:]
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &TokenCipher{gcm: gcm}, nil
}

// EncryptToken encrypts a plaintext token into the three-part envelope.
func (c *TokenCipher) EncryptToken(plaintext string) (*EncryptedToken, error) {
	iv := make([]byte, c.gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	// Seal returns ciphertext || tag; split the tag into its own field.
	sealed := c.gcm.Seal(nil, iv, []byte(plaintext), nil)
	tagStart := len(sealed) - c.gcm.Overhead()

	return &EncryptedToken{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed[:tagStart]),
		IV:         base64.StdEncoding.EncodeToString(iv),
		AuthTag:    base64.StdEncoding.EncodeToString(sealed[tagStart:]),
	}, nil
}

// DecryptToken decrypts the envelope back into the plaintext token.
// Any malformed or tampered input yields apperrors.ErrDecryptionFailed.
func (c *TokenCipher) DecryptToken(token *EncryptedToken) (string, error) {
	if token.Empty() {
		return "", fmt.Errorf("%w: missing credential material", apperrors.ErrDecryptionFailed)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(token.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", apperrors.ErrDecryptionFailed)
	}
	iv, err := base64.StdEncoding.DecodeString(token.IV)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", apperrors.ErrDecryptionFailed)
	}
	tag, err := base64.StdEncoding.DecodeString(token.AuthTag)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", apperrors.ErrDecryptionFailed)
	}

	if len(iv) != c.gcm.NonceSize() || len(tag) != c.gcm.Overhead() {
		return "", fmt.Errorf("%w: malformed envelope", apperrors.ErrDecryptionFailed)
	}

	plaintext, err := c.gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", apperrors.ErrDecryptionFailed)
	}

	return string(plaintext), nil
}
