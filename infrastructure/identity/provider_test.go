package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer          = "test-node-identity"
	testAssertionMethod = "test-node-identity#auditable-item-graph"
	testCredentialType  = "AuditableItemGraphCredential"
)

func TestIssueAndCheckCredential(t *testing.T) {
	p := NewProvider()
	ctx := context.Background()

	jws, err := p.CreateVerifiableCredential(ctx, testIssuer, testAssertionMethod,
		"aig:0101", testCredentialType, map[string]interface{}{"signature": "c2ln"})
	require.NoError(t, err)
	require.NotEmpty(t, jws)

	check, err := p.CheckVerifiableCredential(ctx, jws)
	require.NoError(t, err)
	assert.False(t, check.Revoked)
	assert.Equal(t, testIssuer, check.Issuer)
	assert.Equal(t, "aig:0101", check.SubjectID)
	require.NotNil(t, check.Subject)
	assert.Equal(t, "c2ln", check.Subject["signature"])
	assert.Equal(t, "aig:0101", check.Subject["id"])
}

func TestCheckRejectsTamperedCredential(t *testing.T) {
	p := NewProvider()
	ctx := context.Background()

	jws, err := p.CreateVerifiableCredential(ctx, testIssuer, testAssertionMethod,
		"", testCredentialType, map[string]interface{}{"signature": "c2ln"})
	require.NoError(t, err)

	tampered := jws[:len(jws)-4] + "AAAA"
	_, err = p.CheckVerifiableCredential(ctx, tampered)
	assert.Error(t, err)
}

func TestRevokeCredential(t *testing.T) {
	p := NewProvider()
	ctx := context.Background()

	jws, err := p.CreateVerifiableCredential(ctx, testIssuer, testAssertionMethod,
		"aig:0101", testCredentialType, map[string]interface{}{"signature": "c2ln"})
	require.NoError(t, err)

	require.NoError(t, p.Revoke(jws))

	check, err := p.CheckVerifiableCredential(ctx, jws)
	require.NoError(t, err)
	assert.True(t, check.Revoked)
}

func TestRevokeDoesNotAffectOtherCredentials(t *testing.T) {
	p := NewProvider()
	ctx := context.Background()

	first, err := p.CreateVerifiableCredential(ctx, testIssuer, testAssertionMethod,
		"", testCredentialType, map[string]interface{}{"n": float64(1)})
	require.NoError(t, err)
	second, err := p.CreateVerifiableCredential(ctx, testIssuer, testAssertionMethod,
		"", testCredentialType, map[string]interface{}{"n": float64(2)})
	require.NoError(t, err)

	require.NoError(t, p.Revoke(first))

	check, err := p.CheckVerifiableCredential(ctx, second)
	require.NoError(t, err)
	assert.False(t, check.Revoked)
}

func TestCreateRequiresIssuer(t *testing.T) {
	p := NewProvider()
	_, err := p.CreateVerifiableCredential(context.Background(), "", testAssertionMethod,
		"", testCredentialType, nil)
	assert.Error(t, err)
}
