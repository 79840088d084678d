//go:build integration

package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/dqsync/internal/provider/providertest"
	"github.com/dwsmith1983/dqsync/pkg/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	tableName := fmt.Sprintf("dqsync-test-%d", time.Now().UnixNano())
	cfg := &types.DynamoDBConfig{
		TableName:   tableName,
		Region:      "us-east-1",
		Endpoint:    "http://localhost:8000",
		CreateTable: true,
	}
	s, err := New(cfg)
	if err != nil {
		t.Skipf("DynamoDB Local not available: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Skipf("DynamoDB Local not available: %v", err)
	}
	t.Cleanup(func() {
		if c, ok := s.client.(*dynamodb.Client); ok {
			_, _ = c.DeleteTable(context.Background(), &dynamodb.DeleteTableInput{
				TableName: &tableName,
			})
		}
	})
	return s
}

func TestDefinitionCRUD(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	def := types.CheckDefinition{
		ID:         "orders-fresh",
		Name:       "orders freshness",
		Type:       types.CheckFreshness,
		Target:     "sales.orders",
		KeyColumns: []string{"updated_at"},
		SLAMinutes: 60,
		Schedule:   "*/15 * * * *",
		Active:     true,
	}
	require.NoError(t, s.PutDefinition(ctx, def))

	got, err := s.GetDefinition(ctx, "orders-fresh")
	require.NoError(t, err)
	assert.Equal(t, 60, got.SLAMinutes)
	assert.Empty(t, got.JobName)

	require.NoError(t, s.BindJob(ctx, "orders-fresh", "dq-check-orders-fresh", types.CheckFreshness))

	// An upsert must not clobber the binding.
	def.SLAMinutes = 30
	require.NoError(t, s.PutDefinition(ctx, def))
	got, err = s.GetDefinition(ctx, "orders-fresh")
	require.NoError(t, err)
	assert.Equal(t, 30, got.SLAMinutes)
	assert.Equal(t, "dq-check-orders-fresh", got.JobName)

	list, err := s.ListDefinitions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteDefinition(ctx, "orders-fresh"))
	_, err = s.GetDefinition(ctx, "orders-fresh")
	assert.True(t, errors.Is(err, types.ErrNotFound))

	err = s.BindJob(ctx, "orders-fresh", "dq-check-orders-fresh", types.CheckFreshness)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestResultsNewestFirst(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, r := range []types.ResultStatus{types.ResultOK, types.ResultKO, types.ResultOK} {
		require.NoError(t, s.AppendResult(ctx, types.CheckResult{CheckID: "c1", Result: r, Timestamp: time.Now()}))
		time.Sleep(2 * time.Millisecond)
	}

	results, err := s.ListResults(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].ID > results[1].ID)
}

func TestConformance(t *testing.T) {
	providertest.RunAll(t, setupTestStore(t))
}
