package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

// InstrumentationName scopes every tracer and meter dqsync creates.
const InstrumentationName = "github.com/dwsmith1983/dqsync"

// Instruments are the OpenTelemetry metrics recorded by the reconciliation
// loop and the check runner.
type Instruments struct {
	outcomes     metric.Int64Counter
	events       metric.Int64Counter
	passDuration metric.Float64Histogram
	results      metric.Int64Counter
}

// NewInstruments creates instruments on mp, or on the global provider when
// mp is nil.
func NewInstruments(mp metric.MeterProvider) (*Instruments, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(InstrumentationName)

	var (
		inst Instruments
		err  error
	)
	if inst.outcomes, err = meter.Int64Counter("dqsync.reconcile.outcomes",
		metric.WithDescription("Per-definition reconciliation outcomes by action.")); err != nil {
		return nil, err
	}
	if inst.events, err = meter.Int64Counter("dqsync.reconcile.events",
		metric.WithDescription("Change events drained from the feed.")); err != nil {
		return nil, err
	}
	if inst.passDuration, err = meter.Float64Histogram("dqsync.reconcile.pass.duration",
		metric.WithDescription("Wall time of one reconciliation pass."),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if inst.results, err = meter.Int64Counter("dqsync.check.results",
		metric.WithDescription("Check executions by result.")); err != nil {
		return nil, err
	}
	return &inst, nil
}

// Outcome records one reconciliation outcome.
func (i *Instruments) Outcome(ctx context.Context, action types.OutcomeAction) {
	if i == nil {
		return
	}
	i.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("action", string(action))))
}

// Events records n drained change events.
func (i *Instruments) Events(ctx context.Context, n int) {
	if i == nil {
		return
	}
	i.events.Add(ctx, int64(n))
}

// Pass records the duration of a pass of the given kind ("batch", "resync").
func (i *Instruments) Pass(ctx context.Context, kind string, d time.Duration) {
	if i == nil {
		return
	}
	i.passDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("kind", kind)))
}

// Result records one check execution.
func (i *Instruments) Result(ctx context.Context, checkType types.CheckType, status types.ResultStatus) {
	if i == nil {
		return
	}
	i.results.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(checkType)),
		attribute.String("result", string(status)),
	))
}
