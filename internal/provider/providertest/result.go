package providertest

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

// TestResultAppendAndList verifies append and newest-first listing with limit.
func TestResultAppendAndList(t *testing.T, store Store) {
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	var ids []string
	for i, status := range []types.ResultStatus{types.ResultOK, types.ResultKO, types.ResultError} {
		id := ulid.Make().String()
		ids = append(ids, id)
		require.NoError(t, store.AppendResult(ctx, types.CheckResult{
			ID:        id,
			CheckID:   "ct-results",
			Name:      "conformance results",
			Type:      types.CheckUniqueness,
			Result:    status,
			Detail:    map[string]interface{}{"duplicate_count": float64(i)},
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
		// ULIDs only order across milliseconds.
		time.Sleep(2 * time.Millisecond)
	}

	got, err := store.ListResults(ctx, "ct-results", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ids[2], got[0].ID)
	assert.Equal(t, types.ResultError, got[0].Result)
	assert.Equal(t, ids[1], got[1].ID)

	all, err := store.ListResults(ctx, "ct-results", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := store.ListResults(ctx, "ct-no-results", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
