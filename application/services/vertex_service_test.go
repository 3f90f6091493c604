package services_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"auditgraph/application/services"
	"auditgraph/domain/core/valueobjects"
	domainservices "auditgraph/domain/services"
	"auditgraph/infrastructure/identity"
	"auditgraph/infrastructure/immutable"
	"auditgraph/infrastructure/persistence/memory"
	"auditgraph/infrastructure/vault"
	"auditgraph/pkg/canonical"
	pkgerrors "auditgraph/pkg/errors"
	"auditgraph/pkg/patch"
)

const (
	firstEpoch  = int64(1724327716271)
	secondEpoch = int64(1724327816272)

	testUser = "test-user-identity"
	testNode = "test-node-identity"

	// digests of the fixed scenarios below, precomputed over the exact
	// canonical chain input
	emptyCreateHash   = "p2bp424E26P1xQVtWL7ITmdHkDYhcEaFNNHiA7qxSGE="
	aliasesCreateHash = "vCXpLlng3bLry53F5zXebB92D3DRjShfpG8GUivTauU="
	aliasSwapHash     = "GmpQtOeoyPa9lvxiY5QncuQk5lv1K2/R4sqRId+vRGI="
)

var testURN = "aig:" + strings.Repeat("01", 32)

type fixture struct {
	svc      *services.VertexService
	store    *memory.VertexStore
	vault    *vault.MemoryVault
	identity *identity.Provider
	log      *immutable.MemoryLog
	epoch    int64
}

func newFixture(t *testing.T, enableIntegrity bool) *fixture {
	t.Helper()

	f := &fixture{
		store:    memory.NewVertexStore(),
		vault:    vault.NewMemoryVault(),
		identity: identity.NewProvider(),
		log:      immutable.NewMemoryLog(),
		epoch:    firstEpoch,
	}
	f.svc = services.NewVertexService(
		f.store, f.vault, f.identity, f.log,
		services.Options{EnableIntegrityCheck: enableIntegrity},
		zap.NewNop(),
	)
	f.svc.SetClock(func() int64 { return f.epoch })
	f.setIDFill(0x01)
	return f
}

func (f *fixture) setIDFill(fill byte) {
	f.svc.SetIDSource(func() (valueobjects.VertexID, error) {
		return valueobjects.NewVertexIDFromBytes(bytes.Repeat([]byte{fill}, 32))
	})
}

func aliasList(ids ...string) *[]domainservices.AliasUpdate {
	updates := make([]domainservices.AliasUpdate, 0, len(ids))
	for _, id := range ids {
		updates = append(updates, domainservices.AliasUpdate{ID: id})
	}
	return &updates
}

func TestCreateEmptyVertex(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	urn, err := f.svc.Create(ctx, services.CreateVertexInput{
		UserIdentity: testUser,
		NodeIdentity: testNode,
	})
	require.NoError(t, err)
	assert.Equal(t, testURN, urn)

	stored, err := f.store.Get(ctx, strings.Repeat("01", 32))
	require.NoError(t, err)
	assert.Equal(t, testNode, stored.NodeIdentity)
	assert.Equal(t, firstEpoch, stored.Created)
	assert.Equal(t, firstEpoch, stored.Updated)
	assert.Empty(t, stored.AliasIndex)

	require.Len(t, stored.Changesets, 1, "the first changeset anchors the initial signature")
	changeset := stored.Changesets[0]
	assert.Empty(t, changeset.Patches)
	assert.Equal(t, testUser, changeset.UserIdentity)
	assert.Equal(t, emptyCreateHash, changeset.Hash)
	assert.True(t, strings.HasPrefix(changeset.ImmutableStorageID, "immutable:memory:"))
}

func TestCreateWithAliases(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	urn, err := f.svc.Create(ctx, services.CreateVertexInput{
		Aliases:      aliasList("foo123", "bar456"),
		UserIdentity: testUser,
		NodeIdentity: testNode,
	})
	require.NoError(t, err)

	stored, err := f.store.Get(ctx, strings.Repeat("01", 32))
	require.NoError(t, err)
	assert.Equal(t, "foo123||bar456", stored.AliasIndex)

	require.Len(t, stored.Changesets, 1)
	assert.Equal(t, aliasesCreateHash, stored.Changesets[0].Hash)
	require.Len(t, stored.Changesets[0].Patches, 1)
	assert.Equal(t, patch.OpAdd, stored.Changesets[0].Patches[0].Op)
	assert.Equal(t, "/aliases", stored.Changesets[0].Patches[0].Path)

	result, err := f.svc.Get(ctx, urn, services.GetVertexOptions{
		VerifySignatureDepth: services.VerifyDepthAll,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Verified)
	assert.True(t, *result.Verified)
	require.Len(t, result.Verification, 1)
	assert.Empty(t, result.Verification[0].Failure)
}

func TestUpdateWithIdenticalInputIsNoOp(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	metadata := map[string]interface{}{"object": map[string]interface{}{"content": "value1"}}
	urn, err := f.svc.Create(ctx, services.CreateVertexInput{
		MetadataSchema: "test-schema",
		Metadata:       metadata,
		Aliases:        aliasList("foo123", "bar456"),
		UserIdentity:   testUser,
		NodeIdentity:   testNode,
	})
	require.NoError(t, err)

	f.epoch = secondEpoch
	err = f.svc.Update(ctx, services.UpdateVertexInput{
		ID:             urn,
		MetadataSchema: "test-schema",
		Metadata:       metadata,
		Aliases:        aliasList("foo123", "bar456"),
		UserIdentity:   testUser,
		NodeIdentity:   testNode,
	})
	require.NoError(t, err)

	stored, err := f.store.Get(ctx, strings.Repeat("01", 32))
	require.NoError(t, err)
	assert.Len(t, stored.Changesets, 1, "a no-op update must not append a changeset")
	assert.Equal(t, firstEpoch, stored.Created)
	assert.Equal(t, firstEpoch, stored.Updated, "a no-op update must not move the updated epoch")
}

func TestUpdateAliasSwap(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	urn, err := f.svc.Create(ctx, services.CreateVertexInput{
		Aliases:      aliasList("foo123", "bar456"),
		UserIdentity: testUser,
		NodeIdentity: testNode,
	})
	require.NoError(t, err)

	f.epoch = secondEpoch
	err = f.svc.Update(ctx, services.UpdateVertexInput{
		ID:           urn,
		Aliases:      aliasList("foo321", "bar456"),
		UserIdentity: testUser,
		NodeIdentity: testNode,
	})
	require.NoError(t, err)

	stored, err := f.store.Get(ctx, strings.Repeat("01", 32))
	require.NoError(t, err)
	require.Len(t, stored.Changesets, 2)

	second := stored.Changesets[1]
	assert.Equal(t, aliasSwapHash, second.Hash)
	require.Len(t, second.Patches, 2)
	assert.Equal(t, patch.Operation{
		Op:    patch.OpAdd,
		Path:  "/aliases/0/deleted",
		Value: float64(secondEpoch),
	}, second.Patches[0])
	assert.Equal(t, patch.Operation{
		Op:   patch.OpAdd,
		Path: "/aliases/-",
		Value: map[string]interface{}{
			"id":      "foo321",
			"created": float64(secondEpoch),
		},
	}, second.Patches[1])

	assert.Equal(t, "foo123||bar456||foo321", stored.AliasIndex)
	assert.Equal(t, secondEpoch, stored.Updated)

	result, err := f.svc.Get(ctx, urn, services.GetVertexOptions{
		VerifySignatureDepth: services.VerifyDepthAll,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Verified)
	assert.True(t, *result.Verified)
	require.Len(t, result.Verification, 2)
	for _, entry := range result.Verification {
		assert.Empty(t, entry.Failure)
	}
}

func TestUpdateNestedMetadataReplace(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	urn, err := f.svc.Create(ctx, services.CreateVertexInput{
		Metadata: map[string]interface{}{
			"object": map[string]interface{}{"content": "value1", "kind": "note"},
		},
		UserIdentity: testUser,
		NodeIdentity: testNode,
	})
	require.NoError(t, err)

	f.epoch = secondEpoch
	err = f.svc.Update(ctx, services.UpdateVertexInput{
		ID: urn,
		Metadata: map[string]interface{}{
			"object": map[string]interface{}{"content": "value2", "kind": "note"},
		},
		UserIdentity: testUser,
		NodeIdentity: testNode,
	})
	require.NoError(t, err)

	stored, err := f.store.Get(ctx, strings.Repeat("01", 32))
	require.NoError(t, err)
	require.Len(t, stored.Changesets, 2)
	assert.Equal(t, []patch.Operation{
		{Op: patch.OpReplace, Path: "/metadata/object/content", Value: "value2"},
	}, stored.Changesets[1].Patches)
}

func TestRemoveImmutableDetachesChangesets(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	urn, err := f.svc.Create(ctx, services.CreateVertexInput{
		Aliases:      aliasList("foo123"),
		UserIdentity: testUser,
		NodeIdentity: testNode,
	})
	require.NoError(t, err)

	stored, err := f.store.Get(ctx, strings.Repeat("01", 32))
	require.NoError(t, err)
	storageID := stored.Changesets[0].ImmutableStorageID
	require.NotEmpty(t, storageID)

	require.NoError(t, f.svc.RemoveImmutable(ctx, urn, testNode))

	stored, err = f.store.Get(ctx, strings.Repeat("01", 32))
	require.NoError(t, err)
	for _, changeset := range stored.Changesets {
		assert.Empty(t, changeset.ImmutableStorageID)
	}

	_, err = f.log.Get(ctx, storageID)
	assert.True(t, pkgerrors.IsNotFound(err), "the anchored record should be removed")

	// detached changesets degrade to hash-only verification
	result, err := f.svc.Get(ctx, urn, services.GetVertexOptions{
		VerifySignatureDepth: services.VerifyDepthAll,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Verified)
	assert.True(t, *result.Verified)
}

func TestTamperedPatchFailsVerification(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	urn, err := f.svc.Create(ctx, services.CreateVertexInput{
		Metadata:     map[string]interface{}{"content": "original"},
		UserIdentity: testUser,
		NodeIdentity: testNode,
	})
	require.NoError(t, err)

	// tamper with the stored patch value out-of-band
	stored, err := f.store.Get(ctx, strings.Repeat("01", 32))
	require.NoError(t, err)
	require.NotEmpty(t, stored.Changesets[0].Patches)
	stored.Changesets[0].Patches[0].Value = map[string]interface{}{"content": "forged"}
	require.NoError(t, f.store.Set(ctx, stored))

	result, err := f.svc.Get(ctx, urn, services.GetVertexOptions{
		VerifySignatureDepth: services.VerifyDepthAll,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Verified)
	assert.False(t, *result.Verified)
	require.Len(t, result.Verification, 1)
	assert.Equal(t, services.FailureInvalidHash, result.Verification[0].Failure)
	assert.Equal(t, stored.Changesets[0].Hash, result.Verification[0].FailureProperties["hash"])
}

func TestGetFiltersTombstonesAndChangesets(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	urn, err := f.svc.Create(ctx, services.CreateVertexInput{
		Aliases:      aliasList("foo123", "bar456"),
		UserIdentity: testUser,
		NodeIdentity: testNode,
	})
	require.NoError(t, err)

	f.epoch = secondEpoch
	require.NoError(t, f.svc.Update(ctx, services.UpdateVertexInput{
		ID:           urn,
		Aliases:      aliasList("bar456"),
		UserIdentity: testUser,
		NodeIdentity: testNode,
	}))

	result, err := f.svc.Get(ctx, urn, services.GetVertexOptions{})
	require.NoError(t, err)
	require.Len(t, result.Vertex.Aliases, 1)
	assert.Equal(t, "bar456", result.Vertex.Aliases[0].ID)
	assert.Nil(t, result.Vertex.Changesets)
	assert.Nil(t, result.Verified)

	withDeleted, err := f.svc.Get(ctx, urn, services.GetVertexOptions{
		IncludeDeleted:    true,
		IncludeChangesets: true,
	})
	require.NoError(t, err)
	assert.Len(t, withDeleted.Vertex.Aliases, 2)
	assert.Len(t, withDeleted.Vertex.Changesets, 2)
}

func TestGetDropsCollectionsLeftEmptyByFilter(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	urn, err := f.svc.Create(ctx, services.CreateVertexInput{
		Aliases:      aliasList("foo123"),
		UserIdentity: testUser,
		NodeIdentity: testNode,
	})
	require.NoError(t, err)

	f.epoch = secondEpoch
	empty := []domainservices.AliasUpdate{}
	require.NoError(t, f.svc.Update(ctx, services.UpdateVertexInput{
		ID:           urn,
		Aliases:      &empty,
		UserIdentity: testUser,
		NodeIdentity: testNode,
	}))

	result, err := f.svc.Get(ctx, urn, services.GetVertexOptions{})
	require.NoError(t, err)
	assert.Nil(t, result.Vertex.Aliases, "a fully tombstoned collection disappears from the default view")
}

func TestUpdateAbsentListLeavesCollectionUntouched(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	urn, err := f.svc.Create(ctx, services.CreateVertexInput{
		Aliases:      aliasList("foo123"),
		UserIdentity: testUser,
		NodeIdentity: testNode,
	})
	require.NoError(t, err)

	f.epoch = secondEpoch
	require.NoError(t, f.svc.Update(ctx, services.UpdateVertexInput{
		ID:           urn,
		Aliases:      nil, // absent: do not reconcile
		UserIdentity: testUser,
		NodeIdentity: testNode,
	}))

	stored, err := f.store.Get(ctx, strings.Repeat("01", 32))
	require.NoError(t, err)
	assert.Len(t, stored.Changesets, 1, "absent lists must not mutate the vertex")
	require.Len(t, stored.Aliases, 1)
	assert.Zero(t, stored.Aliases[0].Deleted)
}

func TestQueryByIDAndAlias(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	// hex id 0404…04 contains "4"; 0101…01 does not
	f.setIDFill(0x04)
	_, err := f.svc.Create(ctx, services.CreateVertexInput{
		UserIdentity: testUser,
		NodeIdentity: testNode,
	})
	require.NoError(t, err)

	f.setIDFill(0x01)
	f.epoch = secondEpoch
	_, err = f.svc.Create(ctx, services.CreateVertexInput{
		Aliases:      aliasList("bar4"),
		UserIdentity: testUser,
		NodeIdentity: testNode,
	})
	require.NoError(t, err)

	both, err := f.svc.Query(ctx, services.QueryVerticesInput{ID: "4"})
	require.NoError(t, err)
	assert.Equal(t, 2, both.TotalEntities)

	byID, err := f.svc.Query(ctx, services.QueryVerticesInput{ID: "4", IDMode: services.IDModeID})
	require.NoError(t, err)
	require.Len(t, byID.Entities, 1)
	assert.Equal(t, strings.Repeat("04", 32), byID.Entities[0].ID)

	byAlias, err := f.svc.Query(ctx, services.QueryVerticesInput{ID: "4", IDMode: services.IDModeAlias})
	require.NoError(t, err)
	require.Len(t, byAlias.Entities, 1)
	assert.Equal(t, strings.Repeat("01", 32), byAlias.Entities[0].ID)
}

func TestQueryOrderingAndProjection(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.setIDFill(0x04)
	_, err := f.svc.Create(ctx, services.CreateVertexInput{
		UserIdentity: testUser,
		NodeIdentity: testNode,
	})
	require.NoError(t, err)

	f.setIDFill(0x01)
	f.epoch = secondEpoch
	_, err = f.svc.Create(ctx, services.CreateVertexInput{
		Aliases:      aliasList("bar4"),
		UserIdentity: testUser,
		NodeIdentity: testNode,
	})
	require.NoError(t, err)

	// default ordering is created, descending
	result, err := f.svc.Query(ctx, services.QueryVerticesInput{
		Properties: []string{"aliasIndex"},
	})
	require.NoError(t, err)
	require.Len(t, result.Entities, 2)
	assert.Equal(t, strings.Repeat("01", 32), result.Entities[0].ID)
	assert.Equal(t, "bar4", result.Entities[0].AliasIndex)
	assert.Zero(t, result.Entities[0].Created, "unselected properties are not returned")

	ascending, err := f.svc.Query(ctx, services.QueryVerticesInput{
		OrderBy:          services.OrderByCreated,
		OrderByDirection: "asc",
	})
	require.NoError(t, err)
	require.Len(t, ascending.Entities, 2)
	assert.Equal(t, strings.Repeat("04", 32), ascending.Entities[0].ID)
}

func TestCreateRequiresIdentities(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, services.CreateVertexInput{UserIdentity: testUser})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeGuardViolation))

	_, err = f.svc.Create(ctx, services.CreateVertexInput{NodeIdentity: testNode})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeGuardViolation))
}

func TestEdgeUpdatesRequireRelationship(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	edges := []domainservices.EdgeUpdate{{ID: "edge-1"}}
	_, err := f.svc.Create(ctx, services.CreateVertexInput{
		Edges:        &edges,
		UserIdentity: testUser,
		NodeIdentity: testNode,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeGuardViolation))
}

func TestGetRejectsForeignNamespace(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.svc.Get(context.Background(), "urn:"+strings.Repeat("01", 32), services.GetVertexOptions{})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNamespaceMismatch))
}

func TestGetUnknownVertexIsNotFound(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.svc.Get(context.Background(), "aig:"+strings.Repeat("ff", 32), services.GetVertexOptions{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestHistoryReplaysChain(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	urn, err := f.svc.Create(ctx, services.CreateVertexInput{
		Aliases:      aliasList("foo123", "bar456"),
		UserIdentity: testUser,
		NodeIdentity: testNode,
	})
	require.NoError(t, err)

	f.epoch = secondEpoch
	require.NoError(t, f.svc.Update(ctx, services.UpdateVertexInput{
		ID:           urn,
		Aliases:      aliasList("foo321", "bar456"),
		UserIdentity: testUser,
		NodeIdentity: testNode,
	}))

	states, err := f.svc.History(ctx, urn)
	require.NoError(t, err)
	require.Len(t, states, 2)

	assert.Equal(t, firstEpoch, states[0].Created)
	assert.Equal(t, testUser, states[0].UserIdentity)
	firstAliases := states[0].Snapshot["aliases"].([]interface{})
	assert.Len(t, firstAliases, 2)

	secondAliases := states[1].Snapshot["aliases"].([]interface{})
	assert.Len(t, secondAliases, 3)

	// the final replayed state matches the stored vertex, modulo the
	// changeset list, derived alias index, and the updated epoch (which is
	// bumped after the diff is taken)
	stored, err := f.store.Get(ctx, strings.Repeat("01", 32))
	require.NoError(t, err)
	want, err := stored.Snapshot()
	require.NoError(t, err)
	delete(want, "updated")

	got := map[string]interface{}{}
	for k, v := range states[1].Snapshot {
		got[k] = v
	}
	delete(got, "updated")

	assert.True(t, canonical.Equal(want, got))
}
