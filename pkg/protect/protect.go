// Package protect provides purpose-bound symmetric protection for small
// secrets stored at rest (app keys, credentials, certificates, tokens).
//
// A single root key is expanded per purpose with HKDF-SHA256, so a value
// protected under one purpose never unprotects under another.
package protect

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Errors.
var (
	ErrKeySize           = errors.New("protect: root key must be 32 bytes")
	ErrPassphraseTooWeak = errors.New("protect: passphrase too weak (minimum 8 characters)")
	ErrMalformed         = errors.New("protect: malformed protected value")
	ErrUnprotectFailed   = errors.New("protect: unprotect failed - wrong key, wrong purpose or corrupted data")
)

const (
	// KeySize is the root key length.
	KeySize = chacha20poly1305.KeySize

	// SaltLength is the salt length for passphrase derivation.
	SaltLength = 16

	// MinPassphraseLength is the minimum passphrase length.
	MinPassphraseLength = 8

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

// Provider derives purpose-bound protectors from one root key.
type Provider struct {
	root []byte
}

// NewProvider creates a provider from a 32-byte root key.
func NewProvider(root []byte) (*Provider, error) {
	if len(root) != KeySize {
		return nil, ErrKeySize
	}
	k := make([]byte, KeySize)
	copy(k, root)
	return &Provider{root: k}, nil
}

// DeriveKeyFromPassphrase derives a root key with Argon2id.
func DeriveKeyFromPassphrase(passphrase, salt []byte) ([]byte, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, ErrPassphraseTooWeak
	}
	if len(salt) < SaltLength {
		return nil, fmt.Errorf("protect: salt must be at least %d bytes", SaltLength)
	}
	return argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, KeySize), nil
}

// NewSalt returns a random salt for DeriveKeyFromPassphrase.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// For returns the protector for a purpose string such as "BetfairAccountStore.v1".
func (p *Provider) For(purpose string) (*Protector, error) {
	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		return nil, errors.New("protect: purpose is required")
	}
	sub := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, p.root, nil, []byte(purpose)), sub); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(sub)
	if err != nil {
		return nil, err
	}
	return &Protector{purpose: purpose, aead: aead}, nil
}

// Protector seals and opens values for a single purpose.
// Output format: base64(nonce || ciphertext || tag).
type Protector struct {
	purpose string
	aead    cipher.AEAD
}

// Purpose returns the purpose this protector is bound to.
func (p *Protector) Purpose() string { return p.purpose }

// Protect seals plaintext and returns the base64 text form.
func (p *Protector) Protect(plaintext string) (string, error) {
	nonce := make([]byte, p.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := p.aead.Seal(nonce, nonce, []byte(plaintext), []byte(p.purpose))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Unprotect opens a value produced by Protect under the same purpose.
func (p *Protector) Unprotect(protected string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(protected))
	if err != nil {
		return "", ErrMalformed
	}
	ns := p.aead.NonceSize()
	if len(raw) < ns+p.aead.Overhead() {
		return "", ErrMalformed
	}
	plain, err := p.aead.Open(nil, raw[:ns], raw[ns:], []byte(p.purpose))
	if err != nil {
		return "", ErrUnprotectFailed
	}
	return string(plain), nil
}
