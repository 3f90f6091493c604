package valueobjects

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	pkgerrors "auditgraph/pkg/errors"
)

// Namespace is the URN namespace for vertex identifiers.
const Namespace = "aig"

// idByteLength is the raw length of a vertex identifier.
const idByteLength = 32

// VertexID is the identity of a vertex: 32 random bytes rendered as
// lowercase hex. The external form is the URN "aig:<hex>".
type VertexID struct {
	value string
}

// NewVertexID generates a new random vertex identifier.
func NewVertexID() (VertexID, error) {
	raw := make([]byte, idByteLength)
	if _, err := rand.Read(raw); err != nil {
		return VertexID{}, fmt.Errorf("failed to generate vertex id: %w", err)
	}
	return VertexID{value: hex.EncodeToString(raw)}, nil
}

// NewVertexIDFromBytes builds a vertex identifier from raw bytes.
func NewVertexIDFromBytes(raw []byte) (VertexID, error) {
	if len(raw) != idByteLength {
		return VertexID{}, pkgerrors.NewValidationError(
			fmt.Sprintf("vertex id must be %d bytes, got %d", idByteLength, len(raw)))
	}
	return VertexID{value: hex.EncodeToString(raw)}, nil
}

// NewVertexIDFromHex builds a vertex identifier from its stored hex form.
func NewVertexIDFromHex(s string) (VertexID, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return VertexID{}, pkgerrors.NewValidationError(
			fmt.Sprintf("vertex id %q is not valid hex", s)).WithCause(err)
	}
	if len(raw) != idByteLength {
		return VertexID{}, pkgerrors.NewValidationError(
			fmt.Sprintf("vertex id must be %d bytes, got %d", idByteLength, len(raw)))
	}
	return VertexID{value: strings.ToLower(s)}, nil
}

// ParseVertexURN parses the external "aig:<hex>" form. A different namespace
// is rejected with a namespaceMismatch error.
func ParseVertexURN(urn string) (VertexID, error) {
	namespace, rest, ok := strings.Cut(urn, ":")
	if !ok {
		return VertexID{}, pkgerrors.NewValidationError(
			fmt.Sprintf("vertex urn %q has no namespace", urn))
	}
	if namespace != Namespace {
		return VertexID{}, pkgerrors.NewNamespaceError(urn)
	}
	return NewVertexIDFromHex(rest)
}

// String returns the stored lowercase hex form.
func (id VertexID) String() string {
	return id.value
}

// URN returns the external "aig:<hex>" form.
func (id VertexID) URN() string {
	return Namespace + ":" + id.value
}

// IsEmpty reports whether the identifier is the zero value.
func (id VertexID) IsEmpty() bool {
	return id.value == ""
}

// Equals compares two vertex identifiers.
func (id VertexID) Equals(other VertexID) bool {
	return id.value == other.value
}
