// Package ports declares the narrow contracts the core consumes. These are
// ports in hexagonal architecture: the services never know which driver sits
// behind a vault, identity, immutable-log, or storage handle.
package ports

import "context"

// EncryptionAlgorithm selects the symmetric cipher used for integrity
// payloads.
type EncryptionAlgorithm string

const (
	// EncryptionChaCha20Poly1305 is the only algorithm the core requests.
	EncryptionChaCha20Poly1305 EncryptionAlgorithm = "ChaCha20Poly1305"
)

// Vault provides signing and authenticated symmetric encryption under
// node-scoped keys. Key references take the form "<nodeIdentity>/<keyId>".
type Vault interface {
	// Sign signs raw bytes with the referenced signing key
	Sign(ctx context.Context, keyRef string, data []byte) ([]byte, error)

	// Encrypt seals plaintext under the referenced key
	Encrypt(ctx context.Context, keyRef string, algorithm EncryptionAlgorithm, plaintext []byte) ([]byte, error)

	// Decrypt opens ciphertext sealed by Encrypt
	Decrypt(ctx context.Context, keyRef string, algorithm EncryptionAlgorithm, ciphertext []byte) ([]byte, error)
}

// CredentialCheck is the outcome of verifying a credential JWS.
type CredentialCheck struct {
	// Revoked reports whether the credential has been revoked by its issuer
	Revoked bool

	// Issuer is the identity that issued the credential
	Issuer string

	// SubjectID is the credential subject's identifier, when present
	SubjectID string

	// Subject is the decoded credential subject data
	Subject map[string]interface{}
}

// IdentityProvider issues and checks verifiable credentials. The assertion
// method reference takes the form "<nodeIdentity>#<assertionMethodId>".
type IdentityProvider interface {
	// CreateVerifiableCredential issues a credential over the subject data
	// and returns the signed JWS
	CreateVerifiableCredential(ctx context.Context, issuer, assertionMethod, subjectID, credentialType string, subject map[string]interface{}) (string, error)

	// CheckVerifiableCredential verifies a credential JWS and reports its
	// revocation state and decoded content
	CheckVerifiableCredential(ctx context.Context, jws string) (*CredentialCheck, error)
}

// ImmutableLog is an append-only external store with tamper evidence.
// Returned ids are opaque URNs.
type ImmutableLog interface {
	// Store anchors data on behalf of the controlling identity
	Store(ctx context.Context, controller string, data []byte) (string, error)

	// Get retrieves previously anchored data by id
	Get(ctx context.Context, id string) ([]byte, error)

	// Remove detaches an anchored record
	Remove(ctx context.Context, controller, id string) error
}
