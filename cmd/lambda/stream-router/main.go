// stream-router Lambda receives DynamoDB Stream events for the definitions
// table and reconciles the changed checks' scheduled jobs.
package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"

	"github.com/dwsmith1983/dqsync/internal/feed/ddbstream"
	intlambda "github.com/dwsmith1983/dqsync/internal/lambda"
	"github.com/dwsmith1983/dqsync/pkg/types"
)

var (
	deps     *intlambda.Deps
	depsOnce sync.Once
	depsErr  error
)

func getDeps() (*intlambda.Deps, error) {
	depsOnce.Do(func() {
		deps, depsErr = intlambda.Init(context.Background())
	})
	return deps, depsErr
}

// Applier reconciles a batch of change events.
type Applier interface {
	Apply(ctx context.Context, events []types.ChangeEvent) []types.Outcome
}

// handleStreamEvent reconciles every definition change in the event. When
// some ids fail, the earliest record of a failed id is reported so the event
// source retries from there; ids that succeeded are idempotent on retry.
func handleStreamEvent(ctx context.Context, a Applier, logger *slog.Logger, event intlambda.StreamEvent) intlambda.StreamResponse {
	changes := make([]types.ChangeEvent, 0, len(event.Records))
	firstRecord := make(map[string]int)
	for i, rec := range event.Records {
		ev, ok := ddbstream.FromLambdaRecord(rec)
		if !ok {
			continue
		}
		if _, seen := firstRecord[ev.DefinitionID]; !seen {
			firstRecord[ev.DefinitionID] = i
		}
		changes = append(changes, ev)
	}
	if len(changes) == 0 {
		return intlambda.StreamResponse{}
	}

	failedAt := -1
	for _, o := range a.Apply(ctx, changes) {
		if !o.Failed() {
			continue
		}
		logger.Error("reconcile failed", "check", o.DefinitionID, "error", o.Err)
		if i := firstRecord[o.DefinitionID]; failedAt < 0 || i < failedAt {
			failedAt = i
		}
	}
	if failedAt < 0 {
		return intlambda.StreamResponse{}
	}
	return intlambda.StreamResponse{
		BatchItemFailures: []events.DynamoDBBatchItemFailure{
			{ItemIdentifier: event.Records[failedAt].Change.SequenceNumber},
		},
	}
}

func handler(ctx context.Context, event intlambda.StreamEvent) (intlambda.StreamResponse, error) {
	d, err := getDeps()
	if err != nil {
		return intlambda.StreamResponse{}, err
	}
	return handleStreamEvent(ctx, d.Loop, d.Logger, event), nil
}

func main() {
	slog.SetDefault(intlambda.NewLogger())
	awslambda.Start(handler)
}
