package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// GetCheckpoints returns the last acknowledged sequence number per shard of a
// stream.
func (s *Store) GetCheckpoints(ctx context.Context, streamARN string) (map[string]string, error) {
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: streamPK(streamARN)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixShard},
		},
		ConsistentRead: aws.Bool(true),
	}

	checkpoints := make(map[string]string)
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, storeErr("reading stream checkpoints", err)
		}
		for _, item := range out.Items {
			sk, err := attributeStr(item, "SK")
			if err != nil {
				continue
			}
			seq, err := attributeStr(item, "seq")
			if err != nil {
				s.logger.Warn("skipping corrupt checkpoint", "sk", sk, "error", err)
				continue
			}
			checkpoints[sk[len(prefixShard):]] = seq
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return checkpoints, nil
}

// PutCheckpoint records the last acknowledged sequence number of a shard.
func (s *Store) PutCheckpoint(ctx context.Context, streamARN, shardID, seq string) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":  &ddbtypes.AttributeValueMemberS{Value: streamPK(streamARN)},
			"SK":  &ddbtypes.AttributeValueMemberS{Value: shardSK(shardID)},
			"seq": &ddbtypes.AttributeValueMemberS{Value: seq},
		},
	})
	if err != nil {
		return storeErr(fmt.Sprintf("writing checkpoint for shard %s", shardID), err)
	}
	return nil
}
