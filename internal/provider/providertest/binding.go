package providertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

// TestBindJob verifies that a binding can be set and cleared.
func TestBindJob(t *testing.T, store Store) {
	ctx := context.Background()
	require.NoError(t, store.PutDefinition(ctx, definition("ct-bind")))

	require.NoError(t, store.BindJob(ctx, "ct-bind", "dq-check-ct-bind", types.CheckUniqueness))
	got, err := store.GetDefinition(ctx, "ct-bind")
	require.NoError(t, err)
	assert.Equal(t, "dq-check-ct-bind", got.JobName)
	assert.Equal(t, types.CheckUniqueness, got.JobType)

	require.NoError(t, store.BindJob(ctx, "ct-bind", "", ""))
	got, err = store.GetDefinition(ctx, "ct-bind")
	require.NoError(t, err)
	assert.Empty(t, got.JobName)
	assert.Empty(t, got.JobType)
}

// TestPutPreservesBinding verifies that rewriting a definition keeps the job
// binding the synchronizer recorded.
func TestPutPreservesBinding(t *testing.T, store Store) {
	ctx := context.Background()
	require.NoError(t, store.PutDefinition(ctx, definition("ct-keep")))
	require.NoError(t, store.BindJob(ctx, "ct-keep", "dq-check-ct-keep", types.CheckUniqueness))

	updated := definition("ct-keep")
	updated.Type = types.CheckFreshness
	require.NoError(t, store.PutDefinition(ctx, updated))

	got, err := store.GetDefinition(ctx, "ct-keep")
	require.NoError(t, err)
	assert.Equal(t, types.CheckFreshness, got.Type)
	assert.Equal(t, "dq-check-ct-keep", got.JobName)
	assert.Equal(t, types.CheckUniqueness, got.JobType)
}

// TestBindJobMissingRow verifies that binding never creates a row.
func TestBindJobMissingRow(t *testing.T, store Store) {
	ctx := context.Background()
	err := store.BindJob(ctx, "ct-ghost", "dq-check-ct-ghost", types.CheckUniqueness)
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = store.GetDefinition(ctx, "ct-ghost")
	assert.ErrorIs(t, err, types.ErrNotFound)
}
