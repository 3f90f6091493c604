// Package identity provides an in-process implementation of the identity
// port: verifiable credentials issued as EdDSA-signed JWS, with a local
// revocation set.
package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"auditgraph/application/ports"
	pkgerrors "auditgraph/pkg/errors"
)

// credentialContext is the W3C context carried in every credential.
const credentialContext = "https://www.w3.org/ns/credentials/v2"

// Provider implements ports.IdentityProvider. Issuer keys are created
// lazily and held for the provider's lifetime; revocation is tracked by
// credential id.
type Provider struct {
	mu      sync.Mutex
	keys    map[string]ed25519.PrivateKey
	revoked map[string]bool
}

// NewProvider creates a new in-memory identity provider.
func NewProvider() *Provider {
	return &Provider{
		keys:    make(map[string]ed25519.PrivateKey),
		revoked: make(map[string]bool),
	}
}

// issuerKey returns the signing key for an issuer, creating it if needed.
func (p *Provider) issuerKey(issuer string) (ed25519.PrivateKey, error) {
	if issuer == "" {
		return nil, pkgerrors.NewValidationError("issuer is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.keys[issuer]; ok {
		return existing, nil
	}
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate issuer key: %w", err)
	}
	p.keys[issuer] = private
	return private, nil
}

// CreateVerifiableCredential issues a credential JWS over the subject data.
func (p *Provider) CreateVerifiableCredential(
	ctx context.Context,
	issuer, assertionMethod, subjectID, credentialType string,
	subject map[string]interface{},
) (string, error) {
	private, err := p.issuerKey(issuer)
	if err != nil {
		return "", err
	}

	credentialSubject := make(map[string]interface{}, len(subject)+1)
	for k, v := range subject {
		credentialSubject[k] = v
	}
	if subjectID != "" {
		credentialSubject["id"] = subjectID
	}

	claims := jwt.MapClaims{
		"iss": issuer,
		"jti": "urn:credential:" + uuid.NewString(),
		"vc": map[string]interface{}{
			"@context":          credentialContext,
			"type":              []string{"VerifiableCredential", credentialType},
			"credentialSubject": credentialSubject,
		},
	}
	if subjectID != "" {
		claims["sub"] = subjectID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = assertionMethod

	jws, err := token.SignedString(private)
	if err != nil {
		return "", fmt.Errorf("failed to sign credential: %w", err)
	}
	return jws, nil
}

// CheckVerifiableCredential verifies a credential JWS and reports its
// revocation state and decoded subject.
func (p *Provider) CheckVerifiableCredential(ctx context.Context, jws string) (*ports.CredentialCheck, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(jws, claims, func(token *jwt.Token) (interface{}, error) {
		issuer, err := claims.GetIssuer()
		if err != nil || issuer == "" {
			return nil, fmt.Errorf("credential has no issuer")
		}
		private, err := p.issuerKey(issuer)
		if err != nil {
			return nil, err
		}
		return private.Public(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("failed to verify credential: %w", err)
	}

	issuer, _ := claims.GetIssuer()
	subjectID, _ := claims.GetSubject()

	check := &ports.CredentialCheck{
		Issuer:    issuer,
		SubjectID: subjectID,
	}

	if jti, ok := claims["jti"].(string); ok {
		p.mu.Lock()
		check.Revoked = p.revoked[jti]
		p.mu.Unlock()
	}

	if vc, ok := claims["vc"].(map[string]interface{}); ok {
		if subject, ok := vc["credentialSubject"].(map[string]interface{}); ok {
			check.Subject = subject
		}
	}

	return check, nil
}

// Revoke marks the credential carried by a JWS as revoked. The signature is
// not required to be valid; revocation is keyed on the credential id alone.
func (p *Provider) Revoke(jws string) error {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(jws, claims); err != nil {
		return fmt.Errorf("failed to parse credential: %w", err)
	}
	jti, ok := claims["jti"].(string)
	if !ok || jti == "" {
		return pkgerrors.NewValidationError("credential has no id")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked[jti] = true
	return nil
}
