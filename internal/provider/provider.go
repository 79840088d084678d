// Package provider defines the collaborator interfaces the dqsync core depends
// on: the definitions store, the results store, the change feed and the job
// scheduler.
package provider

import (
	"context"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

// DefinitionStore is row-level CRUD over check definitions.
type DefinitionStore interface {
	// GetDefinition returns an error wrapping types.ErrNotFound when absent.
	GetDefinition(ctx context.Context, id string) (*types.CheckDefinition, error)
	PutDefinition(ctx context.Context, def types.CheckDefinition) error
	ListDefinitions(ctx context.Context) ([]types.CheckDefinition, error)
	// DeleteDefinition is a no-op when the row is absent.
	DeleteDefinition(ctx context.Context, id string) error
	// BindJob records which job currently materializes the definition and the
	// type it was compiled from. An empty name clears the binding.
	BindJob(ctx context.Context, id, jobName string, jobType types.CheckType) error
}

// ResultStore is the append-only sink for check results.
type ResultStore interface {
	AppendResult(ctx context.Context, result types.CheckResult) error
	ListResults(ctx context.Context, checkID string, limit int) ([]types.CheckResult, error)
}

// Batch is one drained slice of the change feed. The feed commits its read
// position only when the batch is acknowledged.
type Batch struct {
	Events []types.ChangeEvent
	// Cursor is opaque feed state needed to acknowledge the batch.
	Cursor interface{}
}

// ChangeFeed is a pull-based, at-least-once stream of definition changes.
type ChangeFeed interface {
	HasPending(ctx context.Context) (bool, error)
	Drain(ctx context.Context) (Batch, error)
	Ack(ctx context.Context, batch Batch) error
}

// JobScheduler materializes and removes recurring jobs.
type JobScheduler interface {
	// CreateOrReplace atomically creates the named job or replaces its
	// schedule and statement.
	CreateOrReplace(ctx context.Context, job types.GeneratedJob) error
	// DeleteIfExists reports whether a job was deleted; absence is not an error.
	DeleteIfExists(ctx context.Context, name string) (bool, error)
	// ListJobs returns the names of all jobs under dqsync's management.
	ListJobs(ctx context.Context) ([]string, error)
}
