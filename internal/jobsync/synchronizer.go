// Package jobsync keeps one scheduled job in step with one check definition.
package jobsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dwsmith1983/dqsync/internal/check"
	"github.com/dwsmith1983/dqsync/internal/provider"
	"github.com/dwsmith1983/dqsync/pkg/types"
)

// Synchronizer converts a definition's compiled state into scheduler and
// store mutations. Calls for the same id are serialized; calls for different
// ids run concurrently.
type Synchronizer struct {
	store      provider.DefinitionStore
	scheduler  provider.JobScheduler
	dispatcher *check.Dispatcher
	locks      *keyedMutex
	logger     *slog.Logger
}

// New creates a Synchronizer.
func New(store provider.DefinitionStore, scheduler provider.JobScheduler, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		store:      store,
		scheduler:  scheduler,
		dispatcher: check.NewDispatcher(store),
		locks:      newKeyedMutex(),
		logger:     logger,
	}
}

// CreateOrReplace reconciles the job for one definition against its current
// row. Domain conditions (invalid, unsupported, inactive, type change) come
// back as an Outcome with a nil error; a missing row or an infrastructure
// failure is returned as an error alongside a FAILED outcome.
func (s *Synchronizer) CreateOrReplace(ctx context.Context, id string) (types.Outcome, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	def, compiled, err := s.dispatcher.Resolve(ctx, id)
	if def == nil {
		return failed(id, "", fmt.Errorf("create_or_replace %q: %w", id, err))
	}

	if !def.Active {
		return s.deactivate(ctx, def)
	}

	if def.JobName != "" && def.JobType != "" && check.KindOf(def.JobType) != check.KindOf(def.Type) {
		return types.Outcome{
			DefinitionID: id,
			Action:       types.OutcomeRejected,
			JobName:      def.JobName,
			Reason:       fmt.Sprintf("type changed from %s to %s while job %s exists", def.JobType, def.Type, def.JobName),
		}, nil
	}

	if err != nil {
		inv, ok := check.AsInvalid(err)
		if !ok {
			return failed(id, def.JobName, fmt.Errorf("compiling %q: %w", id, err))
		}
		if inv.Unsupported() {
			s.logger.Info("skipping unsupported check type", "check", id, "type", def.Type)
			return types.Outcome{
				DefinitionID: id,
				Action:       types.OutcomeSkipped,
				JobName:      def.JobName,
				Reason:       inv.Error(),
			}, nil
		}
		s.logger.Warn("invalid check definition, dropping", "check", id, "reason", inv.Reason, "error", inv.Message)
		out, err := s.drop(ctx, id, def, "")
		if err != nil {
			return out, err
		}
		out.Action = types.OutcomeInvalidated
		out.Reason = inv.Error()
		return out, nil
	}

	job, err := compiled.Job()
	if err != nil {
		return failed(id, compiled.JobName, err)
	}
	if err := s.scheduler.CreateOrReplace(ctx, job); err != nil {
		return failed(id, job.Name, fmt.Errorf("create_or_replace %q: %w", id, err))
	}

	// Rewriting an unchanged binding would emit a stream record and loop
	// straight back into this function.
	jobType := types.CheckType(compiled.Kind.String())
	if def.JobName != job.Name || def.JobType != jobType {
		if err := s.store.BindJob(ctx, id, job.Name, jobType); err != nil {
			return failed(id, job.Name, fmt.Errorf("recording job for %q: %w", id, err))
		}
	}

	s.logger.Debug("job applied", "check", id, "job", job.Name)
	return types.Outcome{DefinitionID: id, Action: types.OutcomeApplied, JobName: job.Name}, nil
}

// Drop removes the definition's job and row. It is idempotent.
func (s *Synchronizer) Drop(ctx context.Context, id string) (types.Outcome, error) {
	return s.DropWithHint(ctx, id, "")
}

// DropWithHint is Drop with a job name recovered from the change event, used
// when the row is already gone.
func (s *Synchronizer) DropWithHint(ctx context.Context, id, jobHint string) (types.Outcome, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	def, err := s.store.GetDefinition(ctx, id)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return failed(id, jobHint, fmt.Errorf("drop %q: %w", id, err))
	}
	return s.drop(ctx, id, def, jobHint)
}

// drop expects the id's lock to be held. def may be nil.
func (s *Synchronizer) drop(ctx context.Context, id string, def *types.CheckDefinition, jobHint string) (types.Outcome, error) {
	name := boundJobName(id, def, jobHint)
	deleted, err := s.scheduler.DeleteIfExists(ctx, name)
	if err != nil {
		return failed(id, name, fmt.Errorf("drop %q: %w", id, err))
	}
	if def != nil {
		if err := s.store.DeleteDefinition(ctx, id); err != nil {
			return failed(id, name, fmt.Errorf("drop %q: %w", id, err))
		}
	}
	s.logger.Debug("job dropped", "check", id, "job", name, "existed", deleted)
	return types.Outcome{DefinitionID: id, Action: types.OutcomeDropped, JobName: name}, nil
}

func (s *Synchronizer) deactivate(ctx context.Context, def *types.CheckDefinition) (types.Outcome, error) {
	name := boundJobName(def.ID, def, "")
	if _, err := s.scheduler.DeleteIfExists(ctx, name); err != nil {
		return failed(def.ID, name, fmt.Errorf("deactivating %q: %w", def.ID, err))
	}
	if def.JobName != "" {
		if err := s.store.BindJob(ctx, def.ID, "", ""); err != nil && !errors.Is(err, types.ErrNotFound) {
			return failed(def.ID, name, fmt.Errorf("clearing job for %q: %w", def.ID, err))
		}
	}
	return types.Outcome{
		DefinitionID: def.ID,
		Action:       types.OutcomeDeactivated,
		JobName:      name,
		Reason:       "definition is inactive",
	}, nil
}

// boundJobName prefers the binding on the row, then the caller's hint, then
// the derived name.
func boundJobName(id string, def *types.CheckDefinition, hint string) string {
	if def != nil && def.JobName != "" {
		return def.JobName
	}
	if hint != "" {
		return hint
	}
	return check.JobName(id)
}

func failed(id, jobName string, err error) (types.Outcome, error) {
	return types.Outcome{
		DefinitionID: id,
		Action:       types.OutcomeFailed,
		JobName:      jobName,
		Reason:       err.Error(),
		Err:          err,
	}, err
}
