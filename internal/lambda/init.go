package lambda

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/dwsmith1983/dqsync/internal/jobsync"
	"github.com/dwsmith1983/dqsync/internal/provider/dynamodb"
	"github.com/dwsmith1983/dqsync/internal/reconcile"
	"github.com/dwsmith1983/dqsync/internal/report"
	"github.com/dwsmith1983/dqsync/internal/runner"
	"github.com/dwsmith1983/dqsync/internal/scheduler"
	"github.com/dwsmith1983/dqsync/internal/telemetry"
	"github.com/dwsmith1983/dqsync/pkg/types"
)

// Deps holds shared dependencies for the stream-router handler.
type Deps struct {
	Store     *dynamodb.Store
	Scheduler *scheduler.EventBridge
	Sync      *jobsync.Synchronizer
	Loop      *reconcile.Loop
	Logger    *slog.Logger
	Shutdown  telemetry.ShutdownFunc
}

// RunnerDeps holds shared dependencies for the check-runner handler.
type RunnerDeps struct {
	Store    *dynamodb.Store
	DB       *sql.DB
	Runner   *runner.Runner
	Logger   *slog.Logger
	Shutdown telemetry.ShutdownFunc
}

// NewLogger returns the JSON logger every handler writes with.
func NewLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// Init creates the reconciliation dependencies from environment variables.
// Reads: TABLE_NAME, AWS_REGION, SCHEDULE_GROUP, RUNNER_ARN,
// SCHEDULER_ROLE_ARN, SCHEDULE_TIMEZONE, WORKERS, FAILURE_QUEUE_URL,
// OTEL_EXPORTER_OTLP_ENDPOINT
func Init(ctx context.Context) (*Deps, error) {
	logger := NewLogger()

	awsCfg, store, err := initStore(ctx, logger)
	if err != nil {
		return nil, err
	}

	runnerARN := os.Getenv("RUNNER_ARN")
	roleARN := os.Getenv("SCHEDULER_ROLE_ARN")
	if runnerARN == "" {
		return nil, fmt.Errorf("RUNNER_ARN environment variable required")
	}
	if roleARN == "" {
		return nil, fmt.Errorf("SCHEDULER_ROLE_ARN environment variable required")
	}
	sched, err := scheduler.New(ctx, &types.SchedulerConfig{
		GroupName: envOrDefault("SCHEDULE_GROUP", "default"),
		TargetARN: runnerARN,
		RoleARN:   roleARN,
		Timezone:  os.Getenv("SCHEDULE_TIMEZONE"),
		Region:    awsCfg.Region,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating scheduler client: %w", err)
	}

	workers, err := envInt("WORKERS", reconcile.DefaultWorkers)
	if err != nil {
		return nil, err
	}

	shutdown, inst, err := initTelemetry(ctx, "dqsync-stream-router")
	if err != nil {
		return nil, err
	}

	syncer := jobsync.New(store, sched, logger)
	loop := reconcile.New(nil, store, sched, syncer, logger, reconcile.Config{Workers: workers})
	loop.SetInstruments(inst)

	reporters := []report.Reporter{report.NewLogReporter(logger)}
	if queueURL := os.Getenv("FAILURE_QUEUE_URL"); queueURL != "" {
		reporters = append(reporters, report.NewSQSReporter(sqs.NewFromConfig(awsCfg), queueURL))
	}
	loop.SetReporter(report.NewMulti(logger, reporters...))

	return &Deps{
		Store:     store,
		Scheduler: sched,
		Sync:      syncer,
		Loop:      loop,
		Logger:    logger,
		Shutdown:  shutdown,
	}, nil
}

// InitRunner creates the check-runner dependencies from environment
// variables.
// Reads: TABLE_NAME, AWS_REGION, RETENTION_TTL, WAREHOUSE_DRIVER,
// WAREHOUSE_DSN, WAREHOUSE_SECRET_ARN, OTEL_EXPORTER_OTLP_ENDPOINT
func InitRunner(ctx context.Context) (*RunnerDeps, error) {
	logger := NewLogger()

	awsCfg, store, err := initStore(ctx, logger)
	if err != nil {
		return nil, err
	}

	wh := types.WarehouseConfig{
		Driver:    os.Getenv("WAREHOUSE_DRIVER"),
		DSN:       os.Getenv("WAREHOUSE_DSN"),
		SecretARN: os.Getenv("WAREHOUSE_SECRET_ARN"),
	}
	if wh.Driver == "" {
		return nil, fmt.Errorf("WAREHOUSE_DRIVER environment variable required")
	}
	var secrets runner.SecretsAPI
	if wh.SecretARN != "" {
		secrets = secretsmanager.NewFromConfig(awsCfg)
	}
	db, err := runner.Open(ctx, wh, secrets)
	if err != nil {
		return nil, fmt.Errorf("opening warehouse: %w", err)
	}

	shutdown, inst, err := initTelemetry(ctx, "dqsync-check-runner")
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	r := runner.New(db, store, logger)
	r.SetInstruments(inst)

	return &RunnerDeps{
		Store:    store,
		DB:       db,
		Runner:   r,
		Logger:   logger,
		Shutdown: shutdown,
	}, nil
}

func initStore(ctx context.Context, logger *slog.Logger) (aws.Config, *dynamodb.Store, error) {
	tableName := os.Getenv("TABLE_NAME")
	region := os.Getenv("AWS_REGION")
	if tableName == "" {
		return aws.Config{}, nil, fmt.Errorf("TABLE_NAME environment variable required")
	}
	if region == "" {
		return aws.Config{}, nil, fmt.Errorf("AWS_REGION environment variable required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return aws.Config{}, nil, fmt.Errorf("loading AWS config: %w", err)
	}

	store, err := dynamodb.New(&types.DynamoDBConfig{
		TableName:    tableName,
		Region:       region,
		RetentionTTL: envOrDefault("RETENTION_TTL", "2160h"),
	})
	if err != nil {
		return aws.Config{}, nil, fmt.Errorf("creating DynamoDB store: %w", err)
	}
	store.SetLogger(logger)
	return awsCfg, store, nil
}

func initTelemetry(ctx context.Context, service string) (telemetry.ShutdownFunc, *telemetry.Instruments, error) {
	var tc *types.TelemetryConfig
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		tc = &types.TelemetryConfig{OTLPEndpoint: endpoint}
	}
	shutdown, err := telemetry.Setup(ctx, tc, service)
	if err != nil {
		return nil, nil, fmt.Errorf("setting up telemetry: %w", err)
	}
	inst, err := telemetry.NewInstruments(nil)
	if err != nil {
		_ = shutdown(ctx)
		return nil, nil, fmt.Errorf("creating instruments: %w", err)
	}
	return shutdown, inst, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}
