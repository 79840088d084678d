package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/oklog/ulid/v2"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

// AppendResult writes a check result to the check's partition. Results are
// keyed by ULID so they sort chronologically; a missing id is generated.
func (s *Store) AppendResult(ctx context.Context, result types.CheckResult) error {
	if result.ID == "" {
		result.ID = ulid.Make().String()
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":     &ddbtypes.AttributeValueMemberS{Value: checkPK(result.CheckID)},
			"SK":     &ddbtypes.AttributeValueMemberS{Value: resultSK(result.ID)},
			"result": &ddbtypes.AttributeValueMemberS{Value: string(result.Result)},
			"data":   &ddbtypes.AttributeValueMemberS{Value: string(data)},
			"ttl":    &ddbtypes.AttributeValueMemberN{Value: epochString(ttlEpoch(s.retentionTTL))},
		},
		// Append-only: never overwrite an existing result.
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return fmt.Errorf("result %s already recorded for %q", result.ID, result.CheckID)
		}
		return storeErr(fmt.Sprintf("appending result for %q", result.CheckID), err)
	}
	return nil
}

// ListResults returns the newest results for a check, newest first.
func (s *Store) ListResults(ctx context.Context, checkID string, limit int) ([]types.CheckResult, error) {
	if limit <= 0 {
		limit = 50
	}

	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: checkPK(checkID)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixResult},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, storeErr(fmt.Sprintf("listing results for %q", checkID), err)
	}

	results := make([]types.CheckResult, 0, len(out.Items))
	for _, item := range out.Items {
		ttlVal, _ := attributeInt(item, "ttl")
		if isExpired(ttlVal) {
			continue
		}
		data, err := attributeStr(item, "data")
		if err != nil {
			s.logger.Warn("skipping corrupt result", "error", err)
			continue
		}
		var r types.CheckResult
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			s.logger.Warn("skipping corrupt result data", "error", err)
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

// attributeStr extracts a string attribute from a DynamoDB item.
func attributeStr(item map[string]ddbtypes.AttributeValue, key string) (string, error) {
	av, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	var s string
	if err := attributevalue.Unmarshal(av, &s); err != nil {
		return "", fmt.Errorf("unmarshaling %q: %w", key, err)
	}
	return s, nil
}

// attributeInt extracts an integer attribute, returning 0 when absent.
func attributeInt(item map[string]ddbtypes.AttributeValue, key string) (int64, error) {
	av, ok := item[key]
	if !ok {
		return 0, nil
	}
	var n int64
	if err := attributevalue.Unmarshal(av, &n); err != nil {
		return 0, fmt.Errorf("unmarshaling %q: %w", key, err)
	}
	return n, nil
}
