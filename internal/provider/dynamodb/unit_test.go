package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

var _ DDBAPI = (*mockDDB)(nil)

// mockDDB is a minimal mock of the DDBAPI interface for unit testing.
type mockDDB struct {
	putItemFn       func(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	getItemFn       func(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	queryFn         func(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	updateItemFn    func(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	deleteItemFn    func(ctx context.Context, input *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	describeTableFn func(ctx context.Context, input *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	createTableFn   func(ctx context.Context, input *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	updateTTLFn     func(ctx context.Context, input *dynamodb.UpdateTimeToLiveInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

func (m *mockDDB) PutItem(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.putItemFn != nil {
		return m.putItemFn(ctx, input, opts...)
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDB) GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getItemFn != nil {
		return m.getItemFn(ctx, input, opts...)
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockDDB) Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, input, opts...)
	}
	return &dynamodb.QueryOutput{}, nil
}

func (m *mockDDB) UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if m.updateItemFn != nil {
		return m.updateItemFn(ctx, input, opts...)
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDDB) DeleteItem(ctx context.Context, input *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if m.deleteItemFn != nil {
		return m.deleteItemFn(ctx, input, opts...)
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *mockDDB) DescribeTable(ctx context.Context, input *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if m.describeTableFn != nil {
		return m.describeTableFn(ctx, input, opts...)
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func (m *mockDDB) CreateTable(ctx context.Context, input *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	if m.createTableFn != nil {
		return m.createTableFn(ctx, input, opts...)
	}
	return &dynamodb.CreateTableOutput{}, nil
}

func (m *mockDDB) UpdateTimeToLive(ctx context.Context, input *dynamodb.UpdateTimeToLiveInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error) {
	if m.updateTTLFn != nil {
		return m.updateTTLFn(ctx, input, opts...)
	}
	return &dynamodb.UpdateTimeToLiveOutput{}, nil
}

func newTestStore(mock *mockDDB) *Store {
	return &Store{
		client:       mock,
		tableName:    "test-table",
		logger:       slog.Default(),
		retentionTTL: 7 * 24 * time.Hour,
	}
}

func sampleDefinition() types.CheckDefinition {
	return types.CheckDefinition{
		ID:         "orders-unique",
		Name:       "orders unique",
		Type:       types.CheckUniqueness,
		Target:     "sales.orders",
		KeyColumns: []string{"order_id"},
		Filter: []types.Predicate{
			{Column: "region", Op: types.OpEq, Value: "eu"},
		},
		Schedule: "0 * * * *",
		Active:   true,
	}
}

func definitionAV(t *testing.T, def types.CheckDefinition) map[string]ddbtypes.AttributeValue {
	t.Helper()
	item, err := toItem(def)
	require.NoError(t, err)
	av, err := attributevalue.MarshalMap(item)
	require.NoError(t, err)
	return av
}

// ---------------------------------------------------------------------------
// Definition tests
// ---------------------------------------------------------------------------

func TestGetDefinition_RoundTrip(t *testing.T) {
	def := sampleDefinition()
	def.JobName = "dq-check-orders-unique"
	def.JobType = types.CheckUniqueness

	mock := &mockDDB{
		getItemFn: func(_ context.Context, input *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			pk := input.Key["PK"].(*ddbtypes.AttributeValueMemberS).Value
			assert.Equal(t, "CHECK#orders-unique", pk)
			return &dynamodb.GetItemOutput{Item: definitionAV(t, def)}, nil
		},
	}
	s := newTestStore(mock)

	got, err := s.GetDefinition(context.Background(), "orders-unique")
	require.NoError(t, err)
	assert.Equal(t, "sales.orders", got.Target)
	assert.Equal(t, []string{"order_id"}, got.KeyColumns)
	require.Len(t, got.Filter, 1)
	assert.Equal(t, types.OpEq, got.Filter[0].Op)
	assert.Equal(t, "eu", got.Filter[0].Value)
	assert.Equal(t, "dq-check-orders-unique", got.JobName)
	assert.Equal(t, types.CheckUniqueness, got.JobType)
}

func TestGetDefinition_NotFound(t *testing.T) {
	mock := &mockDDB{
		getItemFn: func(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: nil}, nil
		},
	}
	s := newTestStore(mock)

	_, err := s.GetDefinition(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
	assert.False(t, errors.Is(err, types.ErrStoreFailure))
}

func TestGetDefinition_StoreFailure(t *testing.T) {
	mock := &mockDDB{
		getItemFn: func(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return nil, fmt.Errorf("throttled")
		},
	}
	s := newTestStore(mock)

	_, err := s.GetDefinition(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrStoreFailure))
	assert.Contains(t, err.Error(), "throttled")
}

func TestGetDefinition_CorruptFilter(t *testing.T) {
	mock := &mockDDB{
		getItemFn: func(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{
				Item: map[string]ddbtypes.AttributeValue{
					"PK":     &ddbtypes.AttributeValueMemberS{Value: "CHECK#bad"},
					"SK":     &ddbtypes.AttributeValueMemberS{Value: "DEFINITION"},
					"id":     &ddbtypes.AttributeValueMemberS{Value: "bad"},
					"filter": &ddbtypes.AttributeValueMemberS{Value: "not-json{{{"},
				},
			}, nil
		},
	}
	s := newTestStore(mock)

	_, err := s.GetDefinition(context.Background(), "bad")
	assert.Error(t, err)
}

func TestPutDefinition_PreservesBinding(t *testing.T) {
	var captured *dynamodb.UpdateItemInput
	mock := &mockDDB{
		updateItemFn: func(_ context.Context, input *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			captured = input
			return &dynamodb.UpdateItemOutput{}, nil
		},
	}
	s := newTestStore(mock)

	def := sampleDefinition()
	def.JobName = "should-not-be-written"
	require.NoError(t, s.PutDefinition(context.Background(), def))
	require.NotNil(t, captured)

	assert.Equal(t, "CHECK#orders-unique", captured.Key["PK"].(*ddbtypes.AttributeValueMemberS).Value)
	assert.Equal(t, "DEFINITION", captured.Key["SK"].(*ddbtypes.AttributeValueMemberS).Value)

	written := make(map[string]bool)
	for _, name := range captured.ExpressionAttributeNames {
		written[name] = true
	}
	assert.True(t, written["target"])
	assert.True(t, written["GSI1PK"])
	assert.False(t, written["jobName"], "binding must not be overwritten by upserts")
	assert.False(t, written["jobType"])
	assert.False(t, written["PK"])

	expr := *captured.UpdateExpression
	assert.True(t, strings.HasPrefix(expr, "SET "))
	assert.Contains(t, expr, "if_not_exists")
}

func TestPutDefinition_RemovesClearedParameters(t *testing.T) {
	var captured *dynamodb.UpdateItemInput
	mock := &mockDDB{
		updateItemFn: func(_ context.Context, input *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			captured = input
			return &dynamodb.UpdateItemOutput{}, nil
		},
	}
	s := newTestStore(mock)

	def := sampleDefinition()
	def.Filter = nil
	def.KeyColumns = nil
	require.NoError(t, s.PutDefinition(context.Background(), def))
	require.NotNil(t, captured)

	expr := *captured.UpdateExpression
	set, remove, ok := strings.Cut(expr, " REMOVE ")
	require.True(t, ok, "expected a REMOVE clause in %q", expr)
	assert.True(t, strings.HasPrefix(set, "SET "))

	removed := make(map[string]bool)
	for _, placeholder := range strings.Split(remove, ", ") {
		removed[captured.ExpressionAttributeNames[placeholder]] = true
	}
	assert.True(t, removed["filter"])
	assert.True(t, removed["keyColumns"])
	assert.True(t, removed["sourceQuery"])
	assert.True(t, removed["targetQuery"])
	assert.False(t, removed["target"])
	assert.False(t, removed["jobName"], "binding is owned by BindJob")
	assert.False(t, removed["createdBy"])
}

func TestPutDefinition_FilterStoredAsJSON(t *testing.T) {
	var captured *dynamodb.UpdateItemInput
	mock := &mockDDB{
		updateItemFn: func(_ context.Context, input *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			captured = input
			return &dynamodb.UpdateItemOutput{}, nil
		},
	}
	s := newTestStore(mock)
	require.NoError(t, s.PutDefinition(context.Background(), sampleDefinition()))

	var filterJSON string
	for placeholder, name := range captured.ExpressionAttributeNames {
		if name != "filter" {
			continue
		}
		value := ":v" + strings.TrimPrefix(placeholder, "#a")
		filterJSON = captured.ExpressionAttributeValues[value].(*ddbtypes.AttributeValueMemberS).Value
	}
	require.NotEmpty(t, filterJSON)

	var preds []types.Predicate
	require.NoError(t, json.Unmarshal([]byte(filterJSON), &preds))
	assert.Equal(t, "region", preds[0].Column)
}

func TestListDefinitions_Paginates(t *testing.T) {
	first := sampleDefinition()
	second := sampleDefinition()
	second.ID = "orders-fresh"
	second.Type = types.CheckFreshness

	calls := 0
	mock := &mockDDB{
		queryFn: func(_ context.Context, input *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			calls++
			assert.Equal(t, gsi1, *input.IndexName)
			if calls == 1 {
				assert.Nil(t, input.ExclusiveStartKey)
				return &dynamodb.QueryOutput{
					Items: []map[string]ddbtypes.AttributeValue{definitionAV(t, first)},
					LastEvaluatedKey: map[string]ddbtypes.AttributeValue{
						"PK": &ddbtypes.AttributeValueMemberS{Value: "CHECK#orders-unique"},
					},
				}, nil
			}
			assert.NotNil(t, input.ExclusiveStartKey)
			return &dynamodb.QueryOutput{
				Items: []map[string]ddbtypes.AttributeValue{definitionAV(t, second)},
			}, nil
		},
	}
	s := newTestStore(mock)

	defs, err := s.ListDefinitions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, defs, 2)
	assert.Equal(t, "orders-unique", defs[0].ID)
	assert.Equal(t, "orders-fresh", defs[1].ID)
}

func TestBindJob_SetsBinding(t *testing.T) {
	var captured *dynamodb.UpdateItemInput
	mock := &mockDDB{
		updateItemFn: func(_ context.Context, input *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			captured = input
			return &dynamodb.UpdateItemOutput{}, nil
		},
	}
	s := newTestStore(mock)

	require.NoError(t, s.BindJob(context.Background(), "c1", "dq-check-c1", types.CheckFreshness))
	assert.Equal(t, "SET jobName = :n, jobType = :t", *captured.UpdateExpression)
	assert.Equal(t, "attribute_exists(PK)", *captured.ConditionExpression)
	assert.Equal(t, "FRESHNESS", captured.ExpressionAttributeValues[":t"].(*ddbtypes.AttributeValueMemberS).Value)
}

func TestBindJob_EmptyNameRemoves(t *testing.T) {
	var captured *dynamodb.UpdateItemInput
	mock := &mockDDB{
		updateItemFn: func(_ context.Context, input *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			captured = input
			return &dynamodb.UpdateItemOutput{}, nil
		},
	}
	s := newTestStore(mock)

	require.NoError(t, s.BindJob(context.Background(), "c1", "", ""))
	assert.Equal(t, "REMOVE jobName, jobType", *captured.UpdateExpression)
	assert.Empty(t, captured.ExpressionAttributeValues)
}

func TestBindJob_MissingRow(t *testing.T) {
	mock := &mockDDB{
		updateItemFn: func(_ context.Context, _ *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			return nil, &ddbtypes.ConditionalCheckFailedException{Message: strPtr("condition failed")}
		},
	}
	s := newTestStore(mock)

	err := s.BindJob(context.Background(), "gone", "dq-check-gone", types.CheckFreshness)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestDecodeDefinition_IDFromKey(t *testing.T) {
	def, err := DecodeDefinition(map[string]ddbtypes.AttributeValue{
		"PK":   &ddbtypes.AttributeValueMemberS{Value: "CHECK#from-key"},
		"SK":   &ddbtypes.AttributeValueMemberS{Value: "DEFINITION"},
		"type": &ddbtypes.AttributeValueMemberS{Value: "FRESHNESS"},
	})
	require.NoError(t, err)
	assert.Equal(t, "from-key", def.ID)
	assert.Equal(t, types.CheckFreshness, def.Type)
}

// ---------------------------------------------------------------------------
// Result tests
// ---------------------------------------------------------------------------

func TestAppendResult_GeneratesIDAndTTL(t *testing.T) {
	var captured *dynamodb.PutItemInput
	mock := &mockDDB{
		putItemFn: func(_ context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			captured = input
			return &dynamodb.PutItemOutput{}, nil
		},
	}
	s := newTestStore(mock)

	err := s.AppendResult(context.Background(), types.CheckResult{
		CheckID: "c1",
		Result:  types.ResultKO,
	})
	require.NoError(t, err)

	pk := captured.Item["PK"].(*ddbtypes.AttributeValueMemberS).Value
	sk := captured.Item["SK"].(*ddbtypes.AttributeValueMemberS).Value
	assert.Equal(t, "CHECK#c1", pk)
	assert.True(t, strings.HasPrefix(sk, "RESULT#"))
	assert.Len(t, strings.TrimPrefix(sk, "RESULT#"), 26, "ULID expected")
	assert.Equal(t, "KO", captured.Item["result"].(*ddbtypes.AttributeValueMemberS).Value)
	_, hasTTL := captured.Item["ttl"]
	assert.True(t, hasTTL)
}

func TestListResults_SkipsExpiredAndCorrupt(t *testing.T) {
	good, _ := json.Marshal(types.CheckResult{ID: "r2", CheckID: "c1", Result: types.ResultOK})
	expired, _ := json.Marshal(types.CheckResult{ID: "r1", CheckID: "c1", Result: types.ResultKO})

	mock := &mockDDB{
		queryFn: func(_ context.Context, input *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			assert.False(t, *input.ScanIndexForward)
			assert.Equal(t, int32(10), *input.Limit)
			return &dynamodb.QueryOutput{
				Items: []map[string]ddbtypes.AttributeValue{
					{
						"data": &ddbtypes.AttributeValueMemberS{Value: string(good)},
						"ttl":  &ddbtypes.AttributeValueMemberN{Value: epochString(ttlEpoch(time.Hour))},
					},
					{
						"data": &ddbtypes.AttributeValueMemberS{Value: string(expired)},
						"ttl":  &ddbtypes.AttributeValueMemberN{Value: epochString(time.Now().Add(-time.Hour).Unix())},
					},
					{
						"data": &ddbtypes.AttributeValueMemberS{Value: "{{{"},
					},
				},
			}, nil
		},
	}
	s := newTestStore(mock)

	results, err := s.ListResults(context.Background(), "c1", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "r2", results[0].ID)
}

// ---------------------------------------------------------------------------
// Checkpoint tests
// ---------------------------------------------------------------------------

func TestCheckpoints_RoundTrip(t *testing.T) {
	stored := make(map[string]map[string]ddbtypes.AttributeValue)
	mock := &mockDDB{
		putItemFn: func(_ context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			sk := input.Item["SK"].(*ddbtypes.AttributeValueMemberS).Value
			stored[sk] = input.Item
			return &dynamodb.PutItemOutput{}, nil
		},
		queryFn: func(_ context.Context, _ *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			out := &dynamodb.QueryOutput{}
			for _, item := range stored {
				out.Items = append(out.Items, item)
			}
			return out, nil
		},
	}
	s := newTestStore(mock)
	ctx := context.Background()
	arn := "arn:aws:dynamodb:us-east-1:123:table/checks/stream/1"

	require.NoError(t, s.PutCheckpoint(ctx, arn, "shard-1", "100"))
	require.NoError(t, s.PutCheckpoint(ctx, arn, "shard-2", "200"))
	require.NoError(t, s.PutCheckpoint(ctx, arn, "shard-1", "150"))

	cps, err := s.GetCheckpoints(ctx, arn)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"shard-1": "150", "shard-2": "200"}, cps)
}

// ---------------------------------------------------------------------------
// Error classification tests
// ---------------------------------------------------------------------------

func TestIsConditionalCheckFailed(t *testing.T) {
	ccfe := &ddbtypes.ConditionalCheckFailedException{Message: strPtr("failed")}
	assert.True(t, isConditionalCheckFailed(ccfe))
	assert.True(t, isConditionalCheckFailed(fmt.Errorf("wrapped: %w", ccfe)))
	assert.False(t, isConditionalCheckFailed(errors.New("some other error")))
}

// ---------------------------------------------------------------------------
// Ping / ensureTable tests
// ---------------------------------------------------------------------------

func TestPing_PropagatesError(t *testing.T) {
	mock := &mockDDB{
		describeTableFn: func(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
			return nil, fmt.Errorf("table not found")
		},
	}
	s := newTestStore(mock)
	assert.Error(t, s.Ping(context.Background()))
}

func TestEnsureTable_AlreadyExists(t *testing.T) {
	mock := &mockDDB{
		createTableFn: func(_ context.Context, _ *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
			return nil, &ddbtypes.ResourceInUseException{Message: strPtr("already exists")}
		},
	}
	s := newTestStore(mock)
	assert.NoError(t, s.ensureTable(context.Background()), "ensureTable should ignore ResourceInUseException")
}

func TestEnsureTable_EnablesStream(t *testing.T) {
	var captured *dynamodb.CreateTableInput
	mock := &mockDDB{
		createTableFn: func(_ context.Context, input *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
			captured = input
			return &dynamodb.CreateTableOutput{}, nil
		},
	}
	s := newTestStore(mock)
	require.NoError(t, s.ensureTable(context.Background()))
	assert.True(t, *captured.StreamSpecification.StreamEnabled)
	assert.Equal(t, ddbtypes.StreamViewTypeNewAndOldImages, captured.StreamSpecification.StreamViewType)
}

func TestNewWithClient_RetentionTTL(t *testing.T) {
	s := NewWithClient(&mockDDB{}, &types.DynamoDBConfig{TableName: "t", RetentionTTL: "48h"})
	assert.Equal(t, 48*time.Hour, s.retentionTTL)

	s = NewWithClient(&mockDDB{}, &types.DynamoDBConfig{TableName: "t", RetentionTTL: "bogus"})
	assert.Equal(t, defaultRetentionTTL, s.retentionTTL)
}

func strPtr(s string) *string { return &s }
