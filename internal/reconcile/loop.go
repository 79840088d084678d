// Package reconcile drives the job set toward the declared definitions by
// draining the change feed and routing each changed id to the synchronizer.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/dqsync/internal/check"
	"github.com/dwsmith1983/dqsync/internal/metrics"
	"github.com/dwsmith1983/dqsync/internal/provider"
	"github.com/dwsmith1983/dqsync/internal/report"
	"github.com/dwsmith1983/dqsync/internal/telemetry"
	"github.com/dwsmith1983/dqsync/pkg/types"
)

// ErrPassInProgress is returned when a pass is requested while another one
// holds the loop.
var ErrPassInProgress = errors.New("reconciliation pass already in progress")

// Loop defaults.
const (
	DefaultWorkers        = 4
	DefaultPollInterval   = 10 * time.Second
	DefaultResyncInterval = 15 * time.Minute
)

// Synchronizer is the per-id action surface the loop dispatches to.
type Synchronizer interface {
	CreateOrReplace(ctx context.Context, id string) (types.Outcome, error)
	DropWithHint(ctx context.Context, id, jobHint string) (types.Outcome, error)
}

// DefinitionLister lists every declared definition for a resync.
type DefinitionLister interface {
	ListDefinitions(ctx context.Context) ([]types.CheckDefinition, error)
}

// Config holds parsed loop settings.
type Config struct {
	Workers        int
	PollInterval   time.Duration
	ResyncInterval time.Duration // zero disables periodic resync
}

// ParseConfig applies defaults to a ReconcileConfig.
func ParseConfig(rc *types.ReconcileConfig) (Config, error) {
	cfg := Config{
		Workers:        DefaultWorkers,
		PollInterval:   DefaultPollInterval,
		ResyncInterval: DefaultResyncInterval,
	}
	if rc == nil {
		return cfg, nil
	}
	if rc.Workers > 0 {
		cfg.Workers = rc.Workers
	}
	if rc.PollInterval != "" {
		d, err := time.ParseDuration(rc.PollInterval)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid pollInterval %q", rc.PollInterval)
		}
		cfg.PollInterval = d
	}
	if rc.ResyncInterval != "" {
		d, err := time.ParseDuration(rc.ResyncInterval)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("invalid resyncInterval %q", rc.ResyncInterval)
		}
		cfg.ResyncInterval = d
	}
	return cfg, nil
}

// Loop is the reconciliation loop. At most one pass (batch or resync) runs at
// a time; within a pass, ids are dispatched over a bounded worker pool.
type Loop struct {
	feed      provider.ChangeFeed
	store     DefinitionLister
	scheduler provider.JobScheduler
	sync      Synchronizer
	reporter  report.Reporter
	inst      *telemetry.Instruments
	tracer    trace.Tracer
	logger    *slog.Logger
	config    Config

	pass   sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Loop. feed may be nil when the loop is only driven through
// Apply and Resync.
func New(feed provider.ChangeFeed, store DefinitionLister, scheduler provider.JobScheduler, syncer Synchronizer, logger *slog.Logger, cfg Config) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Loop{
		feed:      feed,
		store:     store,
		scheduler: scheduler,
		sync:      syncer,
		reporter:  report.NewLogReporter(logger),
		tracer:    otel.Tracer(telemetry.InstrumentationName),
		logger:    logger,
		config:    cfg,
	}
}

// SetReporter replaces the failure reporter.
func (l *Loop) SetReporter(r report.Reporter) {
	if r != nil {
		l.reporter = r
	}
}

// SetInstruments enables OpenTelemetry metrics.
func (l *Loop) SetInstruments(inst *telemetry.Instruments) {
	l.inst = inst
}

// SetTracerProvider replaces the global tracer provider for this loop.
func (l *Loop) SetTracerProvider(tp trace.TracerProvider) {
	if tp != nil {
		l.tracer = tp.Tracer(telemetry.InstrumentationName)
	}
}

// ReconcileBatch drains one batch from the feed, collapses it, dispatches
// every id and acknowledges the batch once every action was attempted.
// Per-id failures are reported in the outcomes, not returned; the error is
// reserved for feed failures and ErrPassInProgress.
func (l *Loop) ReconcileBatch(ctx context.Context) ([]types.Outcome, error) {
	if l.feed == nil {
		return nil, errors.New("reconcile: no change feed configured")
	}
	if !l.pass.TryLock() {
		metrics.PassesSkipped.Add(1)
		return nil, ErrPassInProgress
	}
	defer l.pass.Unlock()

	start := time.Now()
	ctx, span := l.tracer.Start(ctx, "reconcile.batch")
	defer span.End()

	batch, err := l.feed.Drain(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "drain failed")
		return nil, fmt.Errorf("draining change feed: %w", err)
	}
	metrics.PassesTotal.Add(1)
	metrics.EventsDrained.Add(int64(len(batch.Events)))
	l.inst.Events(ctx, len(batch.Events))

	steps := Collapse(batch.Events)
	span.SetAttributes(
		attribute.Int("dqsync.events", len(batch.Events)),
		attribute.Int("dqsync.ids", len(steps)),
	)
	outcomes := l.dispatch(ctx, steps)

	if err := l.feed.Ack(ctx, batch); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ack failed")
		return outcomes, fmt.Errorf("acknowledging batch: %w", err)
	}
	metrics.BatchesAcked.Add(1)
	l.inst.Pass(ctx, "batch", time.Since(start))

	if len(steps) > 0 {
		l.logger.Info("reconciled batch", "events", len(batch.Events), "ids", len(steps), "failed", countFailed(outcomes))
	}
	return outcomes, nil
}

// Apply reconciles events delivered by a push source, such as a Lambda
// stream trigger, that acknowledges on its own.
func (l *Loop) Apply(ctx context.Context, events []types.ChangeEvent) []types.Outcome {
	ctx, span := l.tracer.Start(ctx, "reconcile.apply",
		trace.WithAttributes(attribute.Int("dqsync.events", len(events))))
	defer span.End()

	metrics.EventsDrained.Add(int64(len(events)))
	l.inst.Events(ctx, len(events))
	return l.dispatch(ctx, Collapse(events))
}

// Resync reconciles every declared definition and deletes managed jobs that
// no definition accounts for. It is the safety net that retries ids whose
// actions failed in earlier passes.
func (l *Loop) Resync(ctx context.Context) ([]types.Outcome, error) {
	if !l.pass.TryLock() {
		metrics.PassesSkipped.Add(1)
		return nil, ErrPassInProgress
	}
	defer l.pass.Unlock()

	start := time.Now()
	ctx, span := l.tracer.Start(ctx, "reconcile.resync")
	defer span.End()
	metrics.ResyncsTotal.Add(1)

	// Jobs are listed before definitions: a definition's row always exists
	// before its job, so a job absent from the later listing is an orphan.
	jobs, jobsErr := l.scheduler.ListJobs(ctx)
	defs, err := l.store.ListDefinitions(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list definitions failed")
		return nil, fmt.Errorf("listing definitions: %w", err)
	}

	steps := make([]Step, 0, len(defs))
	for _, def := range defs {
		steps = append(steps, Step{ID: def.ID})
	}
	outcomes := l.dispatch(ctx, steps)

	if jobsErr != nil {
		span.RecordError(jobsErr)
		l.logger.Error("listing jobs failed, skipping orphan cleanup", "error", jobsErr)
	} else {
		outcomes = append(outcomes, l.deleteOrphans(ctx, jobs, defs)...)
	}
	l.inst.Pass(ctx, "resync", time.Since(start))

	l.logger.Info("resync complete", "definitions", len(defs), "failed", countFailed(outcomes))
	if jobsErr != nil {
		return outcomes, fmt.Errorf("listing jobs: %w", jobsErr)
	}
	return outcomes, nil
}

func (l *Loop) deleteOrphans(ctx context.Context, jobs []string, defs []types.CheckDefinition) []types.Outcome {
	known := make(map[string]bool, 2*len(defs))
	for _, def := range defs {
		known[check.JobName(def.ID)] = true
		if def.JobName != "" {
			known[def.JobName] = true
		}
	}

	var outcomes []types.Outcome
	for _, name := range jobs {
		if known[name] || !check.IsManagedJob(name) {
			continue
		}
		out := types.Outcome{Action: types.OutcomeDropped, JobName: name, Reason: "orphan job"}
		if _, err := l.scheduler.DeleteIfExists(ctx, name); err != nil {
			out.Action = types.OutcomeFailed
			out.Err = fmt.Errorf("deleting orphan job %s: %w", name, err)
			out.Reason = out.Err.Error()
		} else {
			metrics.OrphansDeleted.Add(1)
			l.logger.Info("deleted orphan job", "job", name)
		}
		l.record(ctx, out)
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// dispatch runs every step over the worker pool. Outcomes are positional:
// outcomes[i] belongs to steps[i].
func (l *Loop) dispatch(ctx context.Context, steps []Step) []types.Outcome {
	outcomes := make([]types.Outcome, len(steps))
	var g errgroup.Group
	g.SetLimit(l.config.Workers)
	for i, step := range steps {
		g.Go(func() error {
			outcomes[i] = l.reconcileOne(ctx, step)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (l *Loop) reconcileOne(ctx context.Context, step Step) types.Outcome {
	op := "create_or_replace"
	if step.Drop {
		op = "drop"
	}
	ctx, span := l.tracer.Start(ctx, "reconcile."+op,
		trace.WithAttributes(attribute.String("dqsync.check_id", step.ID)))
	defer span.End()

	var (
		out types.Outcome
		err error
	)
	if step.Drop {
		out, err = l.sync.DropWithHint(ctx, step.ID, step.JobHint)
	} else {
		out, err = l.sync.CreateOrReplace(ctx, step.ID)
	}
	if err != nil && out.Err == nil {
		out = types.Outcome{DefinitionID: step.ID, Action: types.OutcomeFailed, Reason: err.Error(), Err: err}
	}
	if out.DefinitionID == "" {
		out.DefinitionID = step.ID
	}

	span.SetAttributes(attribute.String("dqsync.outcome", string(out.Action)))
	if out.Failed() {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, string(out.Action))
	}
	l.record(ctx, out)
	return out
}

func (l *Loop) record(ctx context.Context, out types.Outcome) {
	metrics.RecordOutcome(out.Action)
	l.inst.Outcome(ctx, out.Action)

	switch out.Action {
	case types.OutcomeFailed, types.OutcomeRejected, types.OutcomeInvalidated:
		if out.Failed() {
			l.logger.Error("reconcile failed", "check", out.DefinitionID, "job", out.JobName, "error", out.Err)
		} else {
			l.logger.Warn("definition not materialized", "check", out.DefinitionID, "action", out.Action, "reason", out.Reason)
		}
		if err := l.reporter.Report(ctx, out); err != nil {
			metrics.ReportsFailed.Add(1)
			l.logger.Warn("failure report not delivered", "check", out.DefinitionID, "error", err)
		}
	default:
		l.logger.Debug("reconciled", "check", out.DefinitionID, "action", out.Action, "job", out.JobName)
	}
}

func countFailed(outcomes []types.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Failed() {
			n++
		}
	}
	return n
}
