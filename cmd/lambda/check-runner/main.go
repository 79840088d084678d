// check-runner Lambda is the target of every scheduled check job. It runs the
// compiled check carried in the schedule's input and stores the result.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	awslambda "github.com/aws/aws-lambda-go/lambda"

	intlambda "github.com/dwsmith1983/dqsync/internal/lambda"
	"github.com/dwsmith1983/dqsync/pkg/types"
)

var (
	deps     *intlambda.RunnerDeps
	depsOnce sync.Once
	depsErr  error
)

func getDeps() (*intlambda.RunnerDeps, error) {
	depsOnce.Do(func() {
		deps, depsErr = intlambda.InitRunner(context.Background())
	})
	return deps, depsErr
}

// StatementRunner runs one job statement.
type StatementRunner interface {
	RunStatement(ctx context.Context, stmt string) (types.CheckResult, error)
}

// handleCheckRun runs the statement and summarizes the stored result. A
// check that evaluates to ERROR is still a successful invocation; only a
// malformed statement or a failed write is returned as an error.
func handleCheckRun(ctx context.Context, r StatementRunner, logger *slog.Logger, input json.RawMessage) (intlambda.CheckRunResponse, error) {
	res, err := r.RunStatement(ctx, string(input))
	if err != nil {
		logger.Error("check run failed", "check", res.CheckID, "error", err)
		return intlambda.CheckRunResponse{}, fmt.Errorf("running check: %w", err)
	}
	return intlambda.CheckRunResponse{
		ResultID: res.ID,
		CheckID:  res.CheckID,
		Result:   res.Result,
	}, nil
}

func handler(ctx context.Context, input json.RawMessage) (intlambda.CheckRunResponse, error) {
	d, err := getDeps()
	if err != nil {
		return intlambda.CheckRunResponse{}, err
	}
	return handleCheckRun(ctx, d.Runner, d.Logger, input)
}

func main() {
	slog.SetDefault(intlambda.NewLogger())
	awslambda.Start(handler)
}
