// Package security seals the secrets yfab keeps on disk (board passwords,
// Wi-Fi keys, deploy credentials, the API signing key).
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitswalk/yfab/src/common/paths"
)

const (
	// sealedPrefix marks sealed values in session files and settings.
	sealedPrefix = "sealed:v1:"
	// masterKeySize is the AES-256 key size in bytes.
	masterKeySize = 32
)

// SecretManager seals and opens values with AES-256-GCM.
type SecretManager struct {
	masterKey []byte
}

// NewSecretManager loads the master key from keyPath, generating and
// saving a new random key when the file is missing or malformed.
func NewSecretManager(keyPath string) (*SecretManager, error) {
	keyPath = paths.Expand(keyPath)

	key, err := os.ReadFile(keyPath)
	if err == nil && len(key) == masterKeySize {
		return &SecretManager{masterKey: key}, nil
	}

	key = make([]byte, masterKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(keyPath, key, 0600); err != nil {
		return nil, fmt.Errorf("failed to write master key: %w", err)
	}

	return &SecretManager{masterKey: key}, nil
}

// NewSecretManagerFromKey uses an in-memory key, which must be 32 bytes.
func NewSecretManagerFromKey(key []byte) (*SecretManager, error) {
	if len(key) != masterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", masterKeySize, len(key))
	}
	return &SecretManager{masterKey: append([]byte(nil), key...)}, nil
}

func (sm *SecretManager) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(sm.masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext. The empty string stays empty so unset fields
// remain recognizable in the session file.
func (sm *SecretManager) Seal(plaintext string) (string, error) {
	if plaintext == "" || sm.IsSealed(plaintext) {
		return plaintext, nil
	}

	gcm, err := sm.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// nonce || ciphertext
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed value. Values without the prefix are returned
// unchanged, which lets hand-edited session files carry plain text.
func (sm *SecretManager) Open(value string) (string, error) {
	if !sm.IsSealed(value) {
		return value, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}

	gcm, err := sm.aead()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("sealed value too short")
	}

	plaintext, err := gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to open sealed value: %w", err)
	}
	return string(plaintext), nil
}

// IsSealed reports whether the value carries the sealed prefix
func (sm *SecretManager) IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

// RandomHex returns n random bytes hex-encoded
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
