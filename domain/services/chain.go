package services

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"golang.org/x/crypto/blake2b"

	"auditgraph/domain/core/entities"
	"auditgraph/pkg/canonical"
)

// ChangesetDigest computes the chained Blake2b-256 digest of a changeset:
//
//	hash_i = Blake2b-256(hash_{i-1} || ascii(created_i) || userIdentity_i || canonical(patches_i))
//
// prevDigest is the raw 32-byte digest of the prior changeset, empty for the
// first. The digest is built incrementally; the concatenation is never
// materialized. The raw result is the signer's input; the base64 form is
// what the changeset record stores.
func ChangesetDigest(prevDigest []byte, created int64, userIdentity string, canonicalPatches []byte) ([]byte, error) {
	hasher, err := blake2b.New256(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to construct hasher: %w", err)
	}
	hasher.Write(prevDigest)
	hasher.Write([]byte(strconv.FormatInt(created, 10)))
	hasher.Write([]byte(userIdentity))
	hasher.Write(canonicalPatches)
	return hasher.Sum(nil), nil
}

// DigestChangeset computes the chained digest for a stored changeset record
// using its canonical patch serialization.
func DigestChangeset(prevDigest []byte, changeset *entities.Changeset) ([]byte, error) {
	canonicalPatches, err := canonical.Marshal(changeset.Patches)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize patches: %w", err)
	}
	return ChangesetDigest(prevDigest, changeset.Created, changeset.UserIdentity, canonicalPatches)
}

// EncodeDigest renders a raw digest into the stored base64 form.
func EncodeDigest(digest []byte) string {
	return base64.StdEncoding.EncodeToString(digest)
}

// DecodeDigest parses a stored base64 digest back into raw bytes.
func DecodeDigest(encoded string) ([]byte, error) {
	digest, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode digest: %w", err)
	}
	return digest, nil
}
