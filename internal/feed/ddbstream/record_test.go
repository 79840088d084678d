package ddbstream

import (
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

func lambdaRecord(eventName, pk, sk string, old map[string]events.DynamoDBAttributeValue) events.DynamoDBEventRecord {
	return events.DynamoDBEventRecord{
		EventName: eventName,
		Change: events.DynamoDBStreamRecord{
			Keys: map[string]events.DynamoDBAttributeValue{
				"PK": events.NewStringAttribute(pk),
				"SK": events.NewStringAttribute(sk),
			},
			OldImage:       old,
			SequenceNumber: "4200",
		},
	}
}

func TestFromLambdaRecord(t *testing.T) {
	ev, ok := FromLambdaRecord(lambdaRecord("MODIFY", "CHECK#orders-fresh", "DEFINITION", nil))
	assert.True(t, ok)
	assert.Equal(t, types.ChangeEvent{
		Action:       types.ActionUpdate,
		DefinitionID: "orders-fresh",
		Sequence:     "4200",
	}, ev)
}

func TestFromLambdaRecord_RemoveCarriesJobName(t *testing.T) {
	old := map[string]events.DynamoDBAttributeValue{
		"jobName": events.NewStringAttribute("dq-check-orders-1a2b3c4d"),
		"version": events.NewNumberAttribute("3"),
	}
	ev, ok := FromLambdaRecord(lambdaRecord("REMOVE", "CHECK#orders", "DEFINITION", old))
	assert.True(t, ok)
	assert.Equal(t, types.ActionDelete, ev.Action)
	assert.Equal(t, "dq-check-orders-1a2b3c4d", ev.JobName)
}

func TestFromLambdaRecord_IgnoresOtherRows(t *testing.T) {
	_, ok := FromLambdaRecord(lambdaRecord("INSERT", "CHECK#orders", "RESULT#01J0", nil))
	assert.False(t, ok)
	_, ok = FromLambdaRecord(lambdaRecord("INSERT", "STREAM#arn", "SHARD#1", nil))
	assert.False(t, ok)
}

func TestFromLambdaRecord_UnknownEventName(t *testing.T) {
	_, ok := FromLambdaRecord(lambdaRecord("TTL", "CHECK#orders", "DEFINITION", nil))
	assert.False(t, ok)
}

func TestFromLambdaRecord_NonStringKeyIgnored(t *testing.T) {
	rec := lambdaRecord("INSERT", "CHECK#orders", "DEFINITION", nil)
	rec.Change.Keys["PK"] = events.NewNumberAttribute("7")
	_, ok := FromLambdaRecord(rec)
	assert.False(t, ok)
}
