// Package runner executes compiled check payloads against a SQL warehouse and
// records their results.
package runner

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dwsmith1983/dqsync/internal/check"
	"github.com/dwsmith1983/dqsync/internal/metrics"
	"github.com/dwsmith1983/dqsync/internal/provider"
	"github.com/dwsmith1983/dqsync/internal/telemetry"
	"github.com/dwsmith1983/dqsync/pkg/types"
)

// DefaultQueryTimeout bounds each query of a check.
const DefaultQueryTimeout = 5 * time.Minute

// Runner runs checks. It is safe for concurrent use.
type Runner struct {
	db           *sql.DB
	results      provider.ResultStore
	logger       *slog.Logger
	instruments  *telemetry.Instruments
	queryTimeout time.Duration
	now          func() time.Time
}

// New creates a Runner that queries db and appends results to results.
func New(db *sql.DB, results provider.ResultStore, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		db:           db,
		results:      results,
		logger:       logger,
		queryTimeout: DefaultQueryTimeout,
		now:          time.Now,
	}
}

// SetInstruments enables OpenTelemetry result counters.
func (r *Runner) SetInstruments(inst *telemetry.Instruments) {
	r.instruments = inst
}

// SetQueryTimeout overrides DefaultQueryTimeout. Zero disables the bound.
func (r *Runner) SetQueryTimeout(d time.Duration) {
	r.queryTimeout = d
}

// Run executes every query of p, judges the rows and appends the result.
// A failing query produces an ERROR result rather than an error; the
// returned error is only set when the result could not be stored.
func (r *Runner) Run(ctx context.Context, p check.Payload) (types.CheckResult, error) {
	metrics.ChecksRun.Add(1)

	rows := make(map[string]check.Rows, len(p.Queries))
	var res types.CheckResult
	for _, q := range p.Queries {
		got, err := r.query(ctx, q)
		if err != nil {
			r.logger.Warn("check query failed", "check", p.CheckID, "query", q.Name, "error", err)
			res = types.CheckResult{
				CheckID: p.CheckID,
				Name:    p.Name,
				Type:    p.Type,
				Result:  types.ResultError,
				Detail: map[string]interface{}{
					"error": err.Error(),
					"query": q.Name,
				},
				Timestamp: r.now().UTC(),
			}
			break
		}
		rows[q.Name] = got
	}
	if res.Result == "" {
		res = check.Evaluate(p, rows, r.now())
	}
	res.ID = ulid.Make().String()

	if res.Result == types.ResultError {
		metrics.CheckErrors.Add(1)
	}
	metrics.RecordResult(res.Result)
	r.instruments.Result(ctx, res.Type, res.Result)

	if err := r.results.AppendResult(ctx, res); err != nil {
		return res, fmt.Errorf("storing result for %s: %w", p.CheckID, err)
	}
	r.logger.Info("check finished", "check", p.CheckID, "type", p.Type, "result", res.Result)
	return res, nil
}

// RunStatement decodes a job statement and runs it.
func (r *Runner) RunStatement(ctx context.Context, stmt string) (types.CheckResult, error) {
	p, err := check.DecodePayload(stmt)
	if err != nil {
		return types.CheckResult{}, err
	}
	return r.Run(ctx, p)
}

func (r *Runner) query(ctx context.Context, q check.Query) (check.Rows, error) {
	if r.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.queryTimeout)
		defer cancel()
	}
	rs, err := r.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	return scanRows(rs)
}

// scanRows reads every row into a column-keyed map. Byte slices are copied
// to strings since the driver may reuse them.
func scanRows(rs *sql.Rows) (check.Rows, error) {
	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}
	var out check.Rows
	for rs.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	return out, rs.Err()
}
