package providertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

func definition(id string) types.CheckDefinition {
	return types.CheckDefinition{
		ID:         id,
		Name:       "conformance " + id,
		Type:       types.CheckUniqueness,
		Target:     "analytics.events",
		KeyColumns: []string{"event_id"},
		Filter: []types.Predicate{
			{Column: "region", Op: types.OpEq, Value: "eu"},
		},
		Schedule: "0 * * * *",
		Active:   true,
	}
}

// TestDefinitionCRUD verifies put, get, list, update and delete.
func TestDefinitionCRUD(t *testing.T, store Store) {
	ctx := context.Background()

	require.NoError(t, store.PutDefinition(ctx, definition("ct-def")))

	got, err := store.GetDefinition(ctx, "ct-def")
	require.NoError(t, err)
	assert.Equal(t, types.CheckUniqueness, got.Type)
	assert.Equal(t, []string{"event_id"}, got.KeyColumns)
	require.Len(t, got.Filter, 1)
	assert.Equal(t, "region", got.Filter[0].Column)
	assert.Equal(t, "eu", got.Filter[0].Value)
	assert.True(t, got.Active)

	require.NoError(t, store.PutDefinition(ctx, definition("ct-def-2")))
	list, err := store.ListDefinitions(ctx)
	require.NoError(t, err)
	ids := make(map[string]bool)
	for _, d := range list {
		ids[d.ID] = true
	}
	assert.True(t, ids["ct-def"])
	assert.True(t, ids["ct-def-2"])

	updated := definition("ct-def")
	updated.Schedule = "30 2 * * *"
	updated.Active = false
	require.NoError(t, store.PutDefinition(ctx, updated))
	got, err = store.GetDefinition(ctx, "ct-def")
	require.NoError(t, err)
	assert.Equal(t, "30 2 * * *", got.Schedule)
	assert.False(t, got.Active)

	require.NoError(t, store.DeleteDefinition(ctx, "ct-def"))
	_, err = store.GetDefinition(ctx, "ct-def")
	assert.ErrorIs(t, err, types.ErrNotFound)

	// Deleting an absent row is a no-op.
	require.NoError(t, store.DeleteDefinition(ctx, "ct-def"))
}

// TestDefinitionNotFound verifies the not-found sentinel.
func TestDefinitionNotFound(t *testing.T, store Store) {
	_, err := store.GetDefinition(context.Background(), "ct-nonexistent")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

// TestPutClearsParameters verifies an upsert removes parameters the new
// definition leaves empty.
func TestPutClearsParameters(t *testing.T, store Store) {
	ctx := context.Background()

	require.NoError(t, store.PutDefinition(ctx, definition("ct-clear")))

	cleared := definition("ct-clear")
	cleared.Filter = nil
	cleared.KeyColumns = nil
	require.NoError(t, store.PutDefinition(ctx, cleared))

	got, err := store.GetDefinition(ctx, "ct-clear")
	require.NoError(t, err)
	assert.Empty(t, got.Filter)
	assert.Empty(t, got.KeyColumns)
	assert.Equal(t, "analytics.events", got.Target)

	require.NoError(t, store.DeleteDefinition(ctx, "ct-clear"))
}
