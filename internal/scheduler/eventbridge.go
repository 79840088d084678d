// Package scheduler materializes generated check jobs as EventBridge
// Scheduler schedules whose target is the check runner.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	schedtypes "github.com/aws/aws-sdk-go-v2/service/scheduler/types"
	"github.com/sony/gobreaker"

	"github.com/dwsmith1983/dqsync/internal/check"
	"github.com/dwsmith1983/dqsync/internal/provider"
	"github.com/dwsmith1983/dqsync/pkg/types"
)

var _ provider.JobScheduler = (*EventBridge)(nil)

// maxInputLen is the EventBridge Scheduler limit on a target's input.
const maxInputLen = 8192

// SchedulerAPI is the subset of the EventBridge Scheduler client used here.
type SchedulerAPI interface {
	CreateSchedule(ctx context.Context, params *scheduler.CreateScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.CreateScheduleOutput, error)
	UpdateSchedule(ctx context.Context, params *scheduler.UpdateScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.UpdateScheduleOutput, error)
	DeleteSchedule(ctx context.Context, params *scheduler.DeleteScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.DeleteScheduleOutput, error)
	ListSchedules(ctx context.Context, params *scheduler.ListSchedulesInput, optFns ...func(*scheduler.Options)) (*scheduler.ListSchedulesOutput, error)
}

// EventBridge is a JobScheduler backed by EventBridge Scheduler. Calls go
// through a circuit breaker so a failing control plane fails fast instead of
// stalling every worker of a pass.
type EventBridge struct {
	client    SchedulerAPI
	group     string
	targetARN string
	roleARN   string
	timezone  string
	breaker   *gobreaker.CircuitBreaker
	logger    *slog.Logger
}

// New creates an EventBridge scheduler from configuration.
func New(ctx context.Context, cfg *types.SchedulerConfig, logger *slog.Logger) (*EventBridge, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewWithClient(scheduler.NewFromConfig(awsCfg), cfg, logger), nil
}

// NewWithClient creates an EventBridge scheduler around an existing client.
func NewWithClient(client SchedulerAPI, cfg *types.SchedulerConfig, logger *slog.Logger) *EventBridge {
	if logger == nil {
		logger = slog.Default()
	}
	group := cfg.GroupName
	if group == "" {
		group = "default"
	}
	e := &EventBridge{
		client:    client,
		group:     group,
		targetARN: cfg.TargetARN,
		roleARN:   cfg.RoleARN,
		timezone:  cfg.Timezone,
		logger:    logger,
	}
	e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "scheduler:" + group,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Absent and already-present schedules are answers, not outages.
		IsSuccessful: func(err error) bool {
			return err == nil || isNotFound(err) || isConflict(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("scheduler circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return e
}

// CreateOrReplace creates the schedule, or updates it in place when a
// schedule with the same name already exists.
func (e *EventBridge) CreateOrReplace(ctx context.Context, job types.GeneratedJob) error {
	expr, err := check.ToExpression(job.Schedule)
	if err != nil {
		return schedulerErr(fmt.Sprintf("converting schedule for %s", job.Name), err)
	}
	if len(job.Statement) > maxInputLen {
		return schedulerErr(fmt.Sprintf("job %s", job.Name),
			fmt.Errorf("statement is %d bytes, limit is %d", len(job.Statement), maxInputLen))
	}
	tz := expr.Timezone
	if tz == "" {
		tz = e.timezone
	}
	target := &schedtypes.Target{
		Arn:     aws.String(e.targetARN),
		RoleArn: aws.String(e.roleARN),
		Input:   aws.String(job.Statement),
	}
	window := &schedtypes.FlexibleTimeWindow{Mode: schedtypes.FlexibleTimeWindowModeOff}
	description := aws.String("dqsync check " + job.CheckID)

	_, err = e.breaker.Execute(func() (interface{}, error) {
		input := &scheduler.CreateScheduleInput{
			Name:               aws.String(job.Name),
			GroupName:          aws.String(e.group),
			ScheduleExpression: aws.String(expr.Value),
			FlexibleTimeWindow: window,
			Target:             target,
			State:              schedtypes.ScheduleStateEnabled,
			Description:        description,
		}
		if tz != "" {
			input.ScheduleExpressionTimezone = aws.String(tz)
		}
		_, err := e.client.CreateSchedule(ctx, input)
		if err == nil || !isConflict(err) {
			return nil, err
		}

		update := &scheduler.UpdateScheduleInput{
			Name:               aws.String(job.Name),
			GroupName:          aws.String(e.group),
			ScheduleExpression: aws.String(expr.Value),
			FlexibleTimeWindow: window,
			Target:             target,
			State:              schedtypes.ScheduleStateEnabled,
			Description:        description,
		}
		if tz != "" {
			update.ScheduleExpressionTimezone = aws.String(tz)
		}
		_, err = e.client.UpdateSchedule(ctx, update)
		return nil, err
	})
	if err != nil {
		return schedulerErr(fmt.Sprintf("creating schedule %s", job.Name), err)
	}
	e.logger.Debug("schedule applied", "job", job.Name, "expression", expr.Value)
	return nil
}

// DeleteIfExists deletes the named schedule, reporting whether it existed.
func (e *EventBridge) DeleteIfExists(ctx context.Context, name string) (bool, error) {
	_, err := e.breaker.Execute(func() (interface{}, error) {
		return e.client.DeleteSchedule(ctx, &scheduler.DeleteScheduleInput{
			Name:      aws.String(name),
			GroupName: aws.String(e.group),
		})
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, schedulerErr(fmt.Sprintf("deleting schedule %s", name), err)
	}
	return true, nil
}

// ListJobs returns the names of managed schedules in the group.
func (e *EventBridge) ListJobs(ctx context.Context) ([]string, error) {
	input := &scheduler.ListSchedulesInput{
		GroupName:  aws.String(e.group),
		NamePrefix: aws.String(check.JobPrefix),
	}
	var names []string
	for {
		res, err := e.breaker.Execute(func() (interface{}, error) {
			return e.client.ListSchedules(ctx, input)
		})
		if err != nil {
			return nil, schedulerErr("listing schedules", err)
		}
		out := res.(*scheduler.ListSchedulesOutput)
		for _, s := range out.Schedules {
			name := aws.ToString(s.Name)
			if check.IsManagedJob(name) {
				names = append(names, name)
			}
		}
		if out.NextToken == nil || *out.NextToken == "" {
			break
		}
		input.NextToken = out.NextToken
	}
	return names, nil
}

func isConflict(err error) bool {
	var ce *schedtypes.ConflictException
	return errors.As(err, &ce)
}

func isNotFound(err error) bool {
	var nf *schedtypes.ResourceNotFoundException
	return errors.As(err, &nf)
}

func schedulerErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, types.ErrSchedulerFailure, err)
}
