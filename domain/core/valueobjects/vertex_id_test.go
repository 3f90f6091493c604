package valueobjects

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "auditgraph/pkg/errors"
)

func TestNewVertexID(t *testing.T) {
	id, err := NewVertexID()
	require.NoError(t, err)

	assert.Len(t, id.String(), 64)
	assert.Equal(t, strings.ToLower(id.String()), id.String())
	assert.True(t, strings.HasPrefix(id.URN(), "aig:"))
}

func TestNewVertexIDFromBytes(t *testing.T) {
	id, err := NewVertexIDFromBytes(bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)
	assert.Equal(t, "aig:"+strings.Repeat("01", 32), id.URN())

	_, err = NewVertexIDFromBytes([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestParseVertexURN(t *testing.T) {
	hexID := strings.Repeat("0a", 32)

	id, err := ParseVertexURN("aig:" + hexID)
	require.NoError(t, err)
	assert.Equal(t, hexID, id.String())
}

func TestParseVertexURNRejectsOtherNamespaces(t *testing.T) {
	_, err := ParseVertexURN("urn:" + strings.Repeat("0a", 32))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNamespaceMismatch))
}

func TestParseVertexURNRejectsMalformedIDs(t *testing.T) {
	cases := []string{
		"",
		"aig",
		"aig:",
		"aig:not-hex",
		"aig:" + strings.Repeat("0a", 16),
	}
	for _, urn := range cases {
		_, err := ParseVertexURN(urn)
		assert.Error(t, err, "urn %q should be rejected", urn)
	}
}

func TestVertexIDEquals(t *testing.T) {
	a, err := NewVertexIDFromHex(strings.Repeat("0b", 32))
	require.NoError(t, err)
	b, err := NewVertexIDFromHex(strings.Repeat("0B", 32))
	require.NoError(t, err)

	assert.True(t, a.Equals(b))
	assert.False(t, a.IsEmpty())
	assert.True(t, VertexID{}.IsEmpty())
}
