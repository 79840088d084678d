// Package commands implements the CLI subcommands for the dqsync binary.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/dqsync/internal/jobsync"
	"github.com/dwsmith1983/dqsync/internal/provider"
	"github.com/dwsmith1983/dqsync/internal/provider/dynamodb"
	"github.com/dwsmith1983/dqsync/internal/reconcile"
	"github.com/dwsmith1983/dqsync/internal/report"
	"github.com/dwsmith1983/dqsync/internal/scheduler"
	"github.com/dwsmith1983/dqsync/internal/telemetry"
	"github.com/dwsmith1983/dqsync/pkg/types"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// newStore creates and starts the configured DynamoDB store.
func newStore(ctx context.Context, cfg *types.ProjectConfig, logger *slog.Logger) (*dynamodb.Store, error) {
	store, err := dynamodb.New(cfg.DynamoDB)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}
	store.SetLogger(logger)
	if err := store.Start(ctx); err != nil {
		return nil, fmt.Errorf("connecting to DynamoDB: %w", err)
	}
	return store, nil
}

// newLoop wires the reconciliation loop over store. feed may be nil for
// commands that never drain a stream.
func newLoop(ctx context.Context, cfg *types.ProjectConfig, store *dynamodb.Store, feed provider.ChangeFeed, logger *slog.Logger) (*reconcile.Loop, error) {
	loopCfg, err := reconcile.ParseConfig(cfg.Reconcile)
	if err != nil {
		return nil, err
	}
	sched, err := scheduler.New(ctx, cfg.Scheduler, logger)
	if err != nil {
		return nil, fmt.Errorf("creating scheduler client: %w", err)
	}
	loop := reconcile.New(feed, store, sched, jobsync.New(store, sched, logger), logger, loopCfg)

	inst, err := telemetry.NewInstruments(nil)
	if err != nil {
		return nil, fmt.Errorf("creating instruments: %w", err)
	}
	loop.SetInstruments(inst)

	reporters := []report.Reporter{report.NewLogReporter(logger)}
	if cfg.FailureQueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoDB.Region))
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		reporters = append(reporters, report.NewSQSReporter(sqs.NewFromConfig(awsCfg), cfg.FailureQueueURL))
	}
	loop.SetReporter(report.NewMulti(logger, reporters...))
	return loop, nil
}

// loadDefinitions reads check definitions from a YAML file, which may hold
// several documents, or from every YAML file in a directory.
func loadDefinitions(path string) ([]types.CheckDefinition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return loadDefinitionFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var defs []types.CheckDefinition
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		got, err := loadDefinitionFile(filepath.Join(path, name))
		if err != nil {
			return nil, err
		}
		defs = append(defs, got...)
	}
	return defs, nil
}

func loadDefinitionFile(path string) ([]types.CheckDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var defs []types.CheckDefinition
	dec := yaml.NewDecoder(f)
	for {
		var d types.CheckDefinition
		err := dec.Decode(&d)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
		}
		if d.ID == "" {
			continue
		}
		defs = append(defs, d)
	}
	return defs, nil
}

func colorAction(a types.OutcomeAction) string {
	switch a {
	case types.OutcomeApplied, types.OutcomeDropped:
		return color.GreenString(string(a))
	case types.OutcomeFailed, types.OutcomeRejected:
		return color.RedString(string(a))
	default:
		return color.YellowString(string(a))
	}
}

// printOutcomes writes one line per outcome and returns how many failed.
func printOutcomes(w io.Writer, outcomes []types.Outcome) int {
	failed := 0
	for _, o := range outcomes {
		line := fmt.Sprintf("  %-30s %-12s", o.DefinitionID, colorAction(o.Action))
		if o.JobName != "" {
			line += " job=" + o.JobName
		}
		if o.Reason != "" {
			line += " reason=" + o.Reason
		}
		if o.Err != nil {
			failed++
			line += " error=" + o.Err.Error()
		}
		_, _ = fmt.Fprintln(w, line)
	}
	return failed
}
