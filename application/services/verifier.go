package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"

	"auditgraph/application/ports"
	"auditgraph/domain/core/entities"
	domainservices "auditgraph/domain/services"
	"auditgraph/pkg/canonical"
	"auditgraph/pkg/patch"
)

// Per-changeset verification failure codes. These are reported, never
// thrown: a failed changeset marks the vertex unverified but replay
// continues so the full audit log is available.
const (
	FailureInvalidHash       = "invalidChangesetHash"
	FailureInvalidSignature  = "invalidChangesetSignature"
	FailureInvalidCanonical  = "invalidChangesetCanonical"
	FailureCredentialRevoked = "changesetCredentialRevoked"
)

// ChangesetVerification is the audit entry for one changeset. An entry is
// emitted for every changeset even when nothing failed.
type ChangesetVerification struct {
	Created           int64                  `json:"created"`
	Patches           []patch.Operation      `json:"patches"`
	Failure           string                 `json:"failure,omitempty"`
	FailureProperties map[string]interface{} `json:"failureProperties,omitempty"`
}

// Verifier replays a vertex's changesets, recomputes the chained digests,
// and checks the anchored credentials against the locally reconstructed
// state.
type Verifier struct {
	vault     ports.Vault
	identity  ports.IdentityProvider
	immutable ports.ImmutableLog
	options   Options
	logger    *zap.Logger
}

// NewVerifier creates a new verifier.
func NewVerifier(
	vault ports.Vault,
	identity ports.IdentityProvider,
	immutable ports.ImmutableLog,
	options Options,
	logger *zap.Logger,
) *Verifier {
	if options.VaultKeyID == "" {
		options.VaultKeyID = DefaultVaultKeyID
	}
	return &Verifier{
		vault:     vault,
		identity:  identity,
		immutable: immutable,
		options:   options,
		logger:    logger,
	}
}

// VerifyVertex replays the chain in order. Hash recomputation covers every
// changeset; envelope checks cover the requested depth and only changesets
// that still hold an immutable storage id (detached changesets degrade to
// hash-only verification).
func (v *Verifier) VerifyVertex(
	ctx context.Context,
	vertex *entities.Vertex,
	depth VerifyDepth,
) (bool, []ChangesetVerification, error) {
	verified := true
	verification := make([]ChangesetVerification, 0, len(vertex.Changesets))

	var prevDigest []byte
	for i := range vertex.Changesets {
		changeset := &vertex.Changesets[i]
		entry := ChangesetVerification{
			Created: changeset.Created,
			Patches: changeset.Patches,
		}

		digest, err := domainservices.DigestChangeset(prevDigest, changeset)
		if err != nil {
			return false, nil, fmt.Errorf("failed to recompute digest: %w", err)
		}

		storedDigest, decodeErr := domainservices.DecodeDigest(changeset.Hash)
		if decodeErr != nil || !bytes.Equal(digest, storedDigest) {
			entry.Failure = FailureInvalidHash
			entry.FailureProperties = map[string]interface{}{
				"hash":           changeset.Hash,
				"epoch":          changeset.Created,
				"calculatedHash": domainservices.EncodeDigest(digest),
			}
		} else if v.inScope(depth, i, len(vertex.Changesets)) && changeset.ImmutableStorageID != "" {
			if err := v.verifyEnvelope(ctx, vertex, changeset, digest, &entry); err != nil {
				return false, nil, err
			}
		}

		if entry.Failure != "" {
			verified = false
			v.logger.Debug("Changeset verification failed",
				zap.String("vertexID", vertex.ID),
				zap.Int("changeset", i),
				zap.String("failure", entry.Failure),
			)
		}

		// The chain continues with the recomputed digest so later entries
		// are judged against the stored patch data, not a corrupted hash.
		prevDigest = digest
		verification = append(verification, entry)
	}

	return verified, verification, nil
}

// inScope reports whether envelope verification applies to changeset index
// i under the requested depth.
func (v *Verifier) inScope(depth VerifyDepth, i, total int) bool {
	switch depth {
	case VerifyDepthAll:
		return true
	case VerifyDepthCurrent:
		return i == total-1
	default:
		return false
	}
}

// verifyEnvelope fetches the anchored credential, checks revocation,
// compares the recomputed signature, and when an integrity payload is
// present decrypts and canonically compares it against the local changeset.
func (v *Verifier) verifyEnvelope(
	ctx context.Context,
	vertex *entities.Vertex,
	changeset *entities.Changeset,
	digest []byte,
	entry *ChangesetVerification,
) error {
	raw, err := v.immutable.Get(ctx, changeset.ImmutableStorageID)
	if err != nil {
		return fmt.Errorf("failed to fetch credential: %w", err)
	}

	check, err := v.identity.CheckVerifiableCredential(ctx, string(raw))
	if err != nil {
		return fmt.Errorf("failed to check credential: %w", err)
	}

	if check.Revoked {
		entry.Failure = FailureCredentialRevoked
		entry.FailureProperties = map[string]interface{}{
			"hash":   changeset.Hash,
			"epoch":  changeset.Created,
			"issuer": check.Issuer,
		}
		return nil
	}

	storedSignature, _ := check.Subject["signature"].(string)
	keyRef := vertex.NodeIdentity + "/" + v.options.VaultKeyID

	// Ed25519 is deterministic, so signing the recomputed digest again must
	// reproduce the anchored signature exactly.
	signature, err := v.vault.Sign(ctx, keyRef, digest)
	if err != nil {
		return fmt.Errorf("failed to recompute signature: %w", err)
	}
	if base64.StdEncoding.EncodeToString(signature) != storedSignature {
		entry.Failure = FailureInvalidSignature
		entry.FailureProperties = map[string]interface{}{
			"hash":      changeset.Hash,
			"epoch":     changeset.Created,
			"issuer":    check.Issuer,
			"subjectId": check.SubjectID,
		}
		return nil
	}

	integrity, hasIntegrity := check.Subject["integrity"].(string)
	if !hasIntegrity {
		return nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(integrity)
	if err != nil {
		return fmt.Errorf("failed to decode integrity payload: %w", err)
	}
	plaintext, err := v.vault.Decrypt(ctx, keyRef, ports.EncryptionChaCha20Poly1305, ciphertext)
	if err != nil {
		return fmt.Errorf("failed to decrypt integrity payload: %w", err)
	}

	reconstructed, err := canonical.Marshal(integrityPayload{
		Created:      changeset.Created,
		UserIdentity: changeset.UserIdentity,
		Patches:      changeset.Patches,
	})
	if err != nil {
		return fmt.Errorf("failed to canonicalize changeset: %w", err)
	}

	if !bytes.Equal(plaintext, reconstructed) {
		entry.Failure = FailureInvalidCanonical
		entry.FailureProperties = map[string]interface{}{
			"hash":          changeset.Hash,
			"epoch":         changeset.Created,
			"issuer":        check.Issuer,
			"subjectId":     check.SubjectID,
			"stored":        string(plaintext),
			"reconstructed": string(reconstructed),
		}
	}

	return nil
}
