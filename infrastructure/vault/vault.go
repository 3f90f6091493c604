// Package vault provides an in-process implementation of the vault port:
// Ed25519 signing keys and ChaCha20-Poly1305 symmetric keys, scoped per key
// reference.
package vault

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"

	"auditgraph/application/ports"
	pkgerrors "auditgraph/pkg/errors"
)

// keyPair holds the material behind one key reference.
type keyPair struct {
	signingPublic  ed25519.PublicKey
	signingPrivate ed25519.PrivateKey
	symmetric      []byte
}

// MemoryVault implements ports.Vault with keys held in process memory. Keys
// are created lazily on first use of a reference and are stable for the
// lifetime of the vault.
type MemoryVault struct {
	mu   sync.Mutex
	keys map[string]*keyPair
}

// NewMemoryVault creates a new in-memory vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		keys: make(map[string]*keyPair),
	}
}

// key returns the material for a reference, creating it if needed.
func (v *MemoryVault) key(keyRef string) (*keyPair, error) {
	if keyRef == "" {
		return nil, pkgerrors.NewValidationError("key reference is required")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if existing, ok := v.keys[keyRef]; ok {
		return existing, nil
	}

	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	symmetric := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(symmetric); err != nil {
		return nil, fmt.Errorf("failed to generate symmetric key: %w", err)
	}

	pair := &keyPair{
		signingPublic:  public,
		signingPrivate: private,
		symmetric:      symmetric,
	}
	v.keys[keyRef] = pair
	return pair, nil
}

// Sign signs raw bytes with the referenced Ed25519 key.
func (v *MemoryVault) Sign(ctx context.Context, keyRef string, data []byte) ([]byte, error) {
	pair, err := v.key(keyRef)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(pair.signingPrivate, data), nil
}

// PublicKey exposes the verification key behind a reference.
func (v *MemoryVault) PublicKey(keyRef string) (ed25519.PublicKey, error) {
	pair, err := v.key(keyRef)
	if err != nil {
		return nil, err
	}
	return pair.signingPublic, nil
}

// Encrypt seals plaintext as nonce || ciphertext under the referenced key.
func (v *MemoryVault) Encrypt(ctx context.Context, keyRef string, algorithm ports.EncryptionAlgorithm, plaintext []byte) ([]byte, error) {
	if algorithm != ports.EncryptionChaCha20Poly1305 {
		return nil, pkgerrors.NewValidationError(fmt.Sprintf("unsupported encryption algorithm %q", algorithm))
	}
	pair, err := v.key(keyRef)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(pair.symmetric)
	if err != nil {
		return nil, fmt.Errorf("failed to construct cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return append(nonce, aead.Seal(nil, nonce, plaintext, nil)...), nil
}

// Decrypt opens a nonce || ciphertext envelope produced by Encrypt.
func (v *MemoryVault) Decrypt(ctx context.Context, keyRef string, algorithm ports.EncryptionAlgorithm, ciphertext []byte) ([]byte, error) {
	if algorithm != ports.EncryptionChaCha20Poly1305 {
		return nil, pkgerrors.NewValidationError(fmt.Sprintf("unsupported encryption algorithm %q", algorithm))
	}
	pair, err := v.key(keyRef)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(pair.symmetric)
	if err != nil {
		return nil, fmt.Errorf("failed to construct cipher: %w", err)
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, pkgerrors.NewValidationError("ciphertext too short")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open ciphertext: %w", err)
	}
	return plaintext, nil
}
