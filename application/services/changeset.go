package services

import (
	"context"
	"encoding/base64"
	"fmt"

	"auditgraph/application/ports"
	"auditgraph/domain/core/entities"
	domainservices "auditgraph/domain/services"
	"auditgraph/pkg/canonical"
	"auditgraph/pkg/patch"
)

// integrityPayload is the tuple sealed inside an anchored credential so
// tampering with stored patches is detectable beyond the hash chain.
type integrityPayload struct {
	Created      int64             `json:"created"`
	UserIdentity string            `json:"userIdentity"`
	Patches      []patch.Operation `json:"patches"`
}

// appendChangeset diffs the vertex against its prior snapshot and, when the
// mutation is real, chains, signs, anchors, and appends a new changeset.
// The first changeset of a vertex is always written, even with an empty
// patch list, to anchor the initial signature. Returns false when the diff
// was empty and a changeset already existed (the caller skips persistence).
func (s *VertexService) appendChangeset(
	ctx context.Context,
	vertex *entities.Vertex,
	prior map[string]interface{},
	userIdentity string,
	now int64,
) (bool, error) {
	current, err := vertex.Snapshot()
	if err != nil {
		return false, fmt.Errorf("failed to snapshot vertex: %w", err)
	}

	patches, err := patch.Diff(prior, current)
	if err != nil {
		return false, fmt.Errorf("failed to diff snapshots: %w", err)
	}
	if len(patches) == 0 && len(vertex.Changesets) > 0 {
		return false, nil
	}

	var prevDigest []byte
	if last := vertex.LatestChangeset(); last != nil {
		prevDigest, err = domainservices.DecodeDigest(last.Hash)
		if err != nil {
			return false, fmt.Errorf("failed to decode prior digest: %w", err)
		}
	}

	canonicalPatches, err := canonical.Marshal(patches)
	if err != nil {
		return false, fmt.Errorf("failed to canonicalize patches: %w", err)
	}
	digest, err := domainservices.ChangesetDigest(prevDigest, now, userIdentity, canonicalPatches)
	if err != nil {
		return false, err
	}

	storageID, err := s.anchorChangeset(ctx, vertex, userIdentity, now, patches, digest)
	if err != nil {
		return false, err
	}

	vertex.Changesets = append(vertex.Changesets, entities.Changeset{
		Created:            now,
		UserIdentity:       userIdentity,
		Patches:            patches,
		Hash:               domainservices.EncodeDigest(digest),
		ImmutableStorageID: storageID,
	})

	return true, nil
}

// anchorChangeset signs the chained digest, optionally seals the integrity
// payload, wraps both in a verifiable credential, and stores the credential
// JWS in the immutable log.
func (s *VertexService) anchorChangeset(
	ctx context.Context,
	vertex *entities.Vertex,
	userIdentity string,
	now int64,
	patches []patch.Operation,
	digest []byte,
) (string, error) {
	keyRef := vertex.NodeIdentity + "/" + s.options.VaultKeyID

	// The raw digest is the signing input, never its base64 form.
	signature, err := s.vault.Sign(ctx, keyRef, digest)
	if err != nil {
		return "", fmt.Errorf("failed to sign changeset digest: %w", err)
	}

	subject := map[string]interface{}{
		"signature": base64.StdEncoding.EncodeToString(signature),
	}

	if s.options.EnableIntegrityCheck {
		payload, err := canonical.Marshal(integrityPayload{
			Created:      now,
			UserIdentity: userIdentity,
			Patches:      patches,
		})
		if err != nil {
			return "", fmt.Errorf("failed to canonicalize integrity payload: %w", err)
		}
		ciphertext, err := s.vault.Encrypt(ctx, keyRef, ports.EncryptionChaCha20Poly1305, payload)
		if err != nil {
			return "", fmt.Errorf("failed to encrypt integrity payload: %w", err)
		}
		subject["integrity"] = base64.StdEncoding.EncodeToString(ciphertext)
	}

	assertionMethod := vertex.NodeIdentity + "#" + s.options.AssertionMethodID
	jws, err := s.identity.CreateVerifiableCredential(
		ctx,
		vertex.NodeIdentity,
		assertionMethod,
		"aig:"+vertex.ID,
		CredentialType,
		subject,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create credential: %w", err)
	}

	storageID, err := s.immutable.Store(ctx, vertex.NodeIdentity, []byte(jws))
	if err != nil {
		return "", fmt.Errorf("failed to store credential: %w", err)
	}

	return storageID, nil
}
