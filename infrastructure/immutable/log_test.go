package immutable

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "auditgraph/pkg/errors"
)

func TestStoreAndGet(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	id, err := log.Store(ctx, "node-1", []byte("credential-jws"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "immutable:memory:"))

	data, err := log.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("credential-jws"), data)
}

func TestStoreCopiesData(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	payload := []byte("original")
	id, err := log.Store(ctx, "node-1", payload)
	require.NoError(t, err)

	payload[0] = 'X'

	data, err := log.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data)
}

func TestStoreRequiresController(t *testing.T) {
	log := NewMemoryLog()
	_, err := log.Store(context.Background(), "", []byte("x"))
	assert.Error(t, err)
}

func TestGetMissingRecord(t *testing.T) {
	log := NewMemoryLog()
	_, err := log.Get(context.Background(), "immutable:memory:missing")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestRemove(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	id, err := log.Store(ctx, "node-1", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, log.Remove(ctx, "node-1", id))

	_, err = log.Get(ctx, id)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestRemoveRequiresControllingIdentity(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	id, err := log.Store(ctx, "node-1", []byte("x"))
	require.NoError(t, err)

	assert.Error(t, log.Remove(ctx, "node-2", id))

	data, err := log.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}
