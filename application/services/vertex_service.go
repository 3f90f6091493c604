// Package services orchestrates vertex mutations: reconcile, diff, chain,
// sign, anchor, persist. Collaborators are injected through the ports
// package and are immutable after construction.
package services

import (
	"context"

	"go.uber.org/zap"

	"auditgraph/application/ports"
	"auditgraph/domain/core/entities"
	"auditgraph/domain/core/valueobjects"
	domainservices "auditgraph/domain/services"
	pkgerrors "auditgraph/pkg/errors"
	"auditgraph/pkg/patch"
	"auditgraph/pkg/utils"
)

const (
	// DefaultVaultKeyID is the vault key used when none is configured.
	DefaultVaultKeyID = "auditable-item-graph"

	// DefaultAssertionMethodID is the assertion method used when none is
	// configured.
	DefaultAssertionMethodID = "auditable-item-graph"

	// CredentialType is the verifiable credential type wrapped around each
	// changeset signature.
	CredentialType = "AuditableItemGraphCredential"
)

// Options configures the vertex service.
type Options struct {
	// VaultKeyID names the signing/encryption key under each node identity.
	VaultKeyID string

	// AssertionMethodID names the credential assertion method under each
	// node identity.
	AssertionMethodID string

	// EnableIntegrityCheck embeds the encrypted integrity payload in every
	// anchored credential. When false only the signature is anchored.
	EnableIntegrityCheck bool
}

// VerifyDepth selects how much of the chain a get operation verifies.
type VerifyDepth string

const (
	VerifyDepthNone    VerifyDepth = "none"
	VerifyDepthCurrent VerifyDepth = "current"
	VerifyDepthAll     VerifyDepth = "all"
)

// VertexService owns the vertex lifecycle: create, update, get, query,
// remove-immutable, and history reconstruction. Mutations are sequential
// per vertex; the final store Set is the commit point.
type VertexService struct {
	store     ports.VertexStore
	vault     ports.Vault
	identity  ports.IdentityProvider
	immutable ports.ImmutableLog
	options   Options
	verifier  *Verifier
	logger    *zap.Logger

	now   func() int64
	newID func() (valueobjects.VertexID, error)
}

// NewVertexService creates a new vertex service.
func NewVertexService(
	store ports.VertexStore,
	vault ports.Vault,
	identity ports.IdentityProvider,
	immutable ports.ImmutableLog,
	options Options,
	logger *zap.Logger,
) *VertexService {
	if options.VaultKeyID == "" {
		options.VaultKeyID = DefaultVaultKeyID
	}
	if options.AssertionMethodID == "" {
		options.AssertionMethodID = DefaultAssertionMethodID
	}
	return &VertexService{
		store:     store,
		vault:     vault,
		identity:  identity,
		immutable: immutable,
		options:   options,
		verifier:  NewVerifier(vault, identity, immutable, options, logger),
		logger:    logger,
		now:       utils.NowEpochMillis,
		newID:     valueobjects.NewVertexID,
	}
}

// SetClock overrides the epoch-millisecond clock
func (s *VertexService) SetClock(now func() int64) {
	s.now = now
}

// SetIDSource overrides the random identifier source
func (s *VertexService) SetIDSource(newID func() (valueobjects.VertexID, error)) {
	s.newID = newID
}

// CreateVertexInput carries the fields of a create mutation. A nil
// sub-element list means "collection untouched"; an empty list tombstones
// everything (irrelevant on create, but the convention is uniform).
type CreateVertexInput struct {
	MetadataSchema string
	Metadata       interface{}
	Aliases        *[]domainservices.AliasUpdate    `validate:"omitempty,dive"`
	Resources      *[]domainservices.ResourceUpdate `validate:"omitempty,dive"`
	Edges          *[]domainservices.EdgeUpdate     `validate:"omitempty,dive"`
	UserIdentity   string                           `validate:"required"`
	NodeIdentity   string                           `validate:"required"`
}

// Create builds a new vertex, reconciles the initial sub-elements, writes
// the first changeset (even when its patch list is empty, so the initial
// signature is anchored), persists, and returns the vertex URN.
func (s *VertexService) Create(ctx context.Context, input CreateVertexInput) (string, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return "", pkgerrors.NewGuardError(err.Error())
	}

	id, err := s.newID()
	if err != nil {
		return "", pkgerrors.NewOperationError(pkgerrors.CodeCreateFailed, err)
	}
	now := s.now()

	vertex := entities.NewVertex(id.String(), input.NodeIdentity, now)
	zero, err := vertex.Snapshot()
	if err != nil {
		return "", pkgerrors.NewOperationError(pkgerrors.CodeCreateFailed, err)
	}

	vertex.MetadataSchema = input.MetadataSchema
	vertex.Metadata = input.Metadata
	s.reconcile(vertex, input.Aliases, input.Resources, input.Edges, now)

	if _, err := s.appendChangeset(ctx, vertex, zero, input.UserIdentity, now); err != nil {
		return "", pkgerrors.NewOperationError(pkgerrors.CodeCreateFailed, err)
	}

	if err := s.store.Set(ctx, vertex); err != nil {
		return "", pkgerrors.NewOperationError(pkgerrors.CodeCreateFailed, err)
	}

	s.logger.Info("Created vertex",
		zap.String("vertexID", id.URN()),
		zap.String("nodeIdentity", input.NodeIdentity),
	)

	return id.URN(), nil
}

// UpdateVertexInput carries the fields of an update mutation.
type UpdateVertexInput struct {
	ID             string `validate:"required"`
	MetadataSchema string
	Metadata       interface{}
	Aliases        *[]domainservices.AliasUpdate    `validate:"omitempty,dive"`
	Resources      *[]domainservices.ResourceUpdate `validate:"omitempty,dive"`
	Edges          *[]domainservices.EdgeUpdate     `validate:"omitempty,dive"`
	UserIdentity   string                           `validate:"required"`
	NodeIdentity   string                           `validate:"required"`
}

// Update loads the vertex, reconciles the new state against a clone of the
// prior snapshot, and appends a changeset. A diff with no operations on a
// vertex that already has a changeset is a no-op: nothing is persisted and
// the updated epoch does not move.
func (s *VertexService) Update(ctx context.Context, input UpdateVertexInput) error {
	if err := utils.ValidateStruct(input); err != nil {
		return pkgerrors.NewGuardError(err.Error())
	}

	id, err := valueobjects.ParseVertexURN(input.ID)
	if err != nil {
		return err
	}

	vertex, err := s.store.Get(ctx, id.String())
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return err
		}
		return pkgerrors.NewOperationError(pkgerrors.CodeUpdateFailed, err)
	}

	prior, err := vertex.Snapshot()
	if err != nil {
		return pkgerrors.NewOperationError(pkgerrors.CodeUpdateFailed, err)
	}

	now := s.now()
	vertex.MetadataSchema = input.MetadataSchema
	vertex.Metadata = input.Metadata
	s.reconcile(vertex, input.Aliases, input.Resources, input.Edges, now)

	mutated, err := s.appendChangeset(ctx, vertex, prior, input.UserIdentity, now)
	if err != nil {
		return pkgerrors.NewOperationError(pkgerrors.CodeUpdateFailed, err)
	}
	if !mutated {
		s.logger.Debug("Update produced no changes", zap.String("vertexID", input.ID))
		return nil
	}

	vertex.Updated = now
	if err := s.store.Set(ctx, vertex); err != nil {
		return pkgerrors.NewOperationError(pkgerrors.CodeUpdateFailed, err)
	}

	s.logger.Info("Updated vertex",
		zap.String("vertexID", input.ID),
		zap.Int("changesets", len(vertex.Changesets)),
	)

	return nil
}

// GetVertexOptions controls what a get operation returns and verifies.
type GetVertexOptions struct {
	IncludeDeleted       bool
	IncludeChangesets    bool
	VerifySignatureDepth VerifyDepth
}

// GetVertexResult is the outcome of a get operation. Verified and
// Verification are present only when a verify depth was requested.
type GetVertexResult struct {
	Vertex       *entities.Vertex        `json:"vertex"`
	Verified     *bool                   `json:"verified,omitempty"`
	Verification []ChangesetVerification `json:"verification,omitempty"`
}

// Get retrieves a vertex by URN, optionally verifying its chain, then
// filters tombstoned sub-elements and strips changesets unless requested.
func (s *VertexService) Get(ctx context.Context, urn string, options GetVertexOptions) (*GetVertexResult, error) {
	id, err := valueobjects.ParseVertexURN(urn)
	if err != nil {
		return nil, err
	}

	vertex, err := s.store.Get(ctx, id.String())
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, err
		}
		return nil, pkgerrors.NewOperationError(pkgerrors.CodeGetFailed, err)
	}

	result := &GetVertexResult{Vertex: vertex}

	depth := options.VerifySignatureDepth
	if depth == VerifyDepthCurrent || depth == VerifyDepthAll {
		verified, verification, err := s.verifier.VerifyVertex(ctx, vertex, depth)
		if err != nil {
			return nil, pkgerrors.NewOperationError(pkgerrors.CodeGetFailed, err)
		}
		result.Verified = &verified
		result.Verification = verification
	}

	if !options.IncludeDeleted {
		filterTombstones(vertex)
	}
	if !options.IncludeChangesets {
		vertex.Changesets = nil
	}

	return result, nil
}

// RemoveImmutable detaches every changeset from the immutable log: the
// anchored records are removed and the storage ids cleared. Local hash-chain
// verification remains possible; envelope verification does not.
func (s *VertexService) RemoveImmutable(ctx context.Context, urn, nodeIdentity string) error {
	if nodeIdentity == "" {
		return pkgerrors.NewGuardError("nodeidentity is required")
	}

	id, err := valueobjects.ParseVertexURN(urn)
	if err != nil {
		return err
	}

	vertex, err := s.store.Get(ctx, id.String())
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return err
		}
		return pkgerrors.NewOperationError(pkgerrors.CodeRemoveImmutableFailed, err)
	}

	removed := 0
	for i := range vertex.Changesets {
		changeset := &vertex.Changesets[i]
		if changeset.ImmutableStorageID == "" {
			continue
		}
		if err := s.immutable.Remove(ctx, nodeIdentity, changeset.ImmutableStorageID); err != nil {
			return pkgerrors.NewOperationError(pkgerrors.CodeRemoveImmutableFailed, err)
		}
		changeset.ImmutableStorageID = ""
		removed++
	}

	if err := s.store.Set(ctx, vertex); err != nil {
		return pkgerrors.NewOperationError(pkgerrors.CodeRemoveImmutableFailed, err)
	}

	s.logger.Info("Removed immutable storage",
		zap.String("vertexID", urn),
		zap.Int("detached", removed),
	)

	return nil
}

// reconcile applies the three sub-element reconcilers, skipping any absent
// list.
func (s *VertexService) reconcile(
	vertex *entities.Vertex,
	aliases *[]domainservices.AliasUpdate,
	resources *[]domainservices.ResourceUpdate,
	edges *[]domainservices.EdgeUpdate,
	now int64,
) {
	if aliases != nil {
		domainservices.ReconcileAliases(vertex, *aliases, now)
	}
	if resources != nil {
		domainservices.ReconcileResources(vertex, *resources, now)
	}
	if edges != nil {
		domainservices.ReconcileEdges(vertex, *edges, now)
	}
}

// filterTombstones drops soft-deleted sub-elements; collections left empty
// by the filter are removed entirely.
func filterTombstones(vertex *entities.Vertex) {
	if vertex.Aliases != nil {
		live := make([]entities.Alias, 0, len(vertex.Aliases))
		for _, alias := range vertex.Aliases {
			if alias.Deleted == 0 {
				live = append(live, alias)
			}
		}
		if len(live) == 0 {
			live = nil
		}
		vertex.Aliases = live
	}
	if vertex.Resources != nil {
		live := make([]entities.Resource, 0, len(vertex.Resources))
		for _, resource := range vertex.Resources {
			if resource.Deleted == 0 {
				live = append(live, resource)
			}
		}
		if len(live) == 0 {
			live = nil
		}
		vertex.Resources = live
	}
	if vertex.Edges != nil {
		live := make([]entities.Edge, 0, len(vertex.Edges))
		for _, edge := range vertex.Edges {
			if edge.Deleted == 0 {
				live = append(live, edge)
			}
		}
		if len(live) == 0 {
			live = nil
		}
		vertex.Edges = live
	}
}

// VertexState is one step of a vertex's reconstructed history.
type VertexState struct {
	Created      int64                  `json:"created"`
	UserIdentity string                 `json:"userIdentity"`
	Snapshot     map[string]interface{} `json:"snapshot"`
}

// History replays the stored patch chain from the zero snapshot and returns
// the reconstructed state after each changeset, oldest first.
func (s *VertexService) History(ctx context.Context, urn string) ([]VertexState, error) {
	id, err := valueobjects.ParseVertexURN(urn)
	if err != nil {
		return nil, err
	}

	vertex, err := s.store.Get(ctx, id.String())
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, err
		}
		return nil, pkgerrors.NewOperationError(pkgerrors.CodeGetFailed, err)
	}

	zero, err := entities.NewVertex(vertex.ID, vertex.NodeIdentity, vertex.Created).Snapshot()
	if err != nil {
		return nil, pkgerrors.NewOperationError(pkgerrors.CodeGetFailed, err)
	}

	states := make([]VertexState, 0, len(vertex.Changesets))
	var document interface{} = zero
	for i := range vertex.Changesets {
		changeset := &vertex.Changesets[i]
		document, err = patch.Apply(document, changeset.Patches)
		if err != nil {
			return nil, pkgerrors.NewOperationError(pkgerrors.CodeGetFailed, err)
		}
		snapshot, _ := document.(map[string]interface{})
		states = append(states, VertexState{
			Created:      changeset.Created,
			UserIdentity: changeset.UserIdentity,
			Snapshot:     snapshot,
		})
	}

	return states, nil
}
