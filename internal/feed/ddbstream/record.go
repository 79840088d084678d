package ddbstream

import (
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"

	"github.com/dwsmith1983/dqsync/internal/provider/dynamodb"
	"github.com/dwsmith1983/dqsync/pkg/types"
)

func actionFor(eventName string) (types.ChangeAction, bool) {
	switch eventName {
	case "INSERT":
		return types.ActionInsert, true
	case "MODIFY":
		return types.ActionUpdate, true
	case "REMOVE":
		return types.ActionDelete, true
	default:
		return "", false
	}
}

// changeEvent builds a ChangeEvent from the pieces of a stream record.
// Records for rows other than definitions are ignored.
func changeEvent(eventName, pk, sk, seq, jobName string) (types.ChangeEvent, bool) {
	if !dynamodb.IsDefinitionKey(pk, sk) {
		return types.ChangeEvent{}, false
	}
	action, ok := actionFor(eventName)
	if !ok {
		return types.ChangeEvent{}, false
	}
	id, _ := dynamodb.CheckIDFromKey(pk)
	return types.ChangeEvent{
		Action:       action,
		DefinitionID: id,
		Sequence:     seq,
		JobName:      jobName,
	}, true
}

func fromRecord(rec streamtypes.Record) (types.ChangeEvent, bool) {
	r := rec.Dynamodb
	return changeEvent(
		string(rec.EventName),
		streamString(r.Keys, "PK"),
		streamString(r.Keys, "SK"),
		aws.ToString(r.SequenceNumber),
		streamString(r.OldImage, "jobName"),
	)
}

func streamString(item map[string]streamtypes.AttributeValue, key string) string {
	if s, ok := item[key].(*streamtypes.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

// FromLambdaRecord converts a record delivered by the Lambda DynamoDB event
// source. ok is false for records that are not definition changes.
func FromLambdaRecord(rec events.DynamoDBEventRecord) (types.ChangeEvent, bool) {
	r := rec.Change
	return changeEvent(
		rec.EventName,
		lambdaString(r.Keys, "PK"),
		lambdaString(r.Keys, "SK"),
		r.SequenceNumber,
		lambdaString(r.OldImage, "jobName"),
	)
}

func lambdaString(item map[string]events.DynamoDBAttributeValue, key string) string {
	av, ok := item[key]
	if !ok || av.DataType() != events.DataTypeString {
		return ""
	}
	return av.String()
}
