// Package lambda provides shared types and initialization for Lambda handlers.
package lambda

import (
	"github.com/aws/aws-lambda-go/events"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

// StreamEvent is the input to the stream-router Lambda.
type StreamEvent = events.DynamoDBEvent

// StreamResponse reports the records the stream-router could not reconcile,
// so the event source retries from the first of them.
type StreamResponse = events.DynamoDBEventResponse

// CheckRunResponse is the output of the check-runner Lambda.
type CheckRunResponse struct {
	ResultID string             `json:"resultId"`
	CheckID  string             `json:"checkId"`
	Result   types.ResultStatus `json:"result"`
}
