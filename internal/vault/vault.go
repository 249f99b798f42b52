// Package vault encrypts conversation content at rest.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// sealedPrefix marks stored values produced by Seal.
const sealedPrefix = "v1:"

var ErrNotSealed = errors.New("value is not sealed")

// Vault is AES-256-GCM with a key derived from a passphrase via Argon2id.
type Vault struct {
	aead cipher.AEAD
}

// New derives the key from passphrase. The salt is SHA-256 of the
// passphrase, so the same passphrase yields the same key across restarts.
func New(passphrase string) (*Vault, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}
	salt := sha256.Sum256([]byte(passphrase))
	key := argon2.IDKey([]byte(passphrase), salt[:16], 1, 64*1024, 4, 32)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt returns nonce||ciphertext.
func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize(), v.aead.NonceSize()+len(plaintext)+v.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return v.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (v *Vault) Decrypt(data []byte) ([]byte, error) {
	n := v.aead.NonceSize()
	if len(data) < n {
		return nil, errors.New("decrypt: ciphertext too short")
	}
	plaintext, err := v.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// Seal encrypts s into a printable string suitable for a TEXT column.
func (v *Vault) Seal(s string) (string, error) {
	data, err := v.Encrypt([]byte(s))
	if err != nil {
		return "", err
	}
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(data), nil
}

// Open reverses Seal.
func (v *Vault) Open(s string) (string, error) {
	enc, ok := strings.CutPrefix(s, sealedPrefix)
	if !ok {
		return "", ErrNotSealed
	}
	data, err := base64.RawStdEncoding.DecodeString(enc)
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	plaintext, err := v.Decrypt(data)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// IsSealed reports whether s looks like the output of Seal.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, sealedPrefix)
}
