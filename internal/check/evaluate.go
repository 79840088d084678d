package check

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

// Rows holds one query's result rows keyed by column name.
type Rows []map[string]interface{}

// Evaluate judges the results of a payload's queries. results is keyed by
// Query.Name. Malformed results yield an ERROR result, never a panic.
func Evaluate(p Payload, results map[string]Rows, now time.Time) types.CheckResult {
	res := types.CheckResult{
		CheckID:   p.CheckID,
		Name:      p.Name,
		Type:      p.Type,
		Timestamp: now.UTC(),
	}

	var (
		ok     bool
		detail map[string]interface{}
		err    error
	)
	switch KindOf(p.Type) {
	case KindFreshness:
		ok, detail, err = evaluateFreshness(p, results[QueryCheck], now)
	case KindUniqueness:
		ok, detail, err = evaluateUniqueness(p, results[QueryCheck])
	case KindConsistency:
		ok, detail, err = evaluateConsistency(p, results[QuerySource], results[QueryTarget])
	case KindUnsupported:
		err = fmt.Errorf("check type %q is not supported", p.Type)
	}
	if err != nil {
		res.Result = types.ResultError
		res.Detail = map[string]interface{}{"error": err.Error()}
		return res
	}

	res.Result = types.ResultKO
	if ok {
		res.Result = types.ResultOK
	}
	res.Detail = detail
	return res
}

func evaluateFreshness(p Payload, rows Rows, now time.Time) (bool, map[string]interface{}, error) {
	row, err := singleRow(rows)
	if err != nil {
		return false, nil, err
	}
	total, err := intColumn(row, "total_rows")
	if err != nil {
		return false, nil, err
	}
	detail := map[string]interface{}{
		"max_date":    nil,
		"sla_minutes": p.SLAMinutes,
		"total_rows":  total,
	}

	raw, present := column(row, "max_date")
	if !present {
		return false, nil, fmt.Errorf("result is missing column %q", "max_date")
	}
	if raw == nil {
		// Empty target: nothing is fresh.
		return false, detail, nil
	}
	maxDate, ok := toTime(raw)
	if !ok {
		return false, nil, fmt.Errorf("max_date %v is not a timestamp", raw)
	}
	detail["max_date"] = maxDate.UTC().Format(time.RFC3339Nano)

	boundary := now.Add(-time.Duration(p.SLAMinutes) * time.Minute)
	return !maxDate.Before(boundary), detail, nil
}

func evaluateUniqueness(p Payload, rows Rows) (bool, map[string]interface{}, error) {
	row, err := singleRow(rows)
	if err != nil {
		return false, nil, err
	}
	dups, err := intColumn(row, "duplicate_count")
	if err != nil {
		return false, nil, err
	}
	total, err := intColumn(row, "total_rows")
	if err != nil {
		return false, nil, err
	}
	return dups == 0, map[string]interface{}{
		"duplicate_count": dups,
		"keys":            p.KeyColumns,
		"total_rows":      total,
	}, nil
}

func evaluateConsistency(p Payload, source, target Rows) (bool, map[string]interface{}, error) {
	threshold := p.ThresholdRatio
	if threshold <= 0 {
		threshold = types.DefaultThresholdRatio
	}
	src := pivot(source)
	tgt := pivot(target)

	names := make([]string, 0, len(src))
	for name := range src {
		if _, ok := tgt[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	ok := true
	detail := make(map[string]interface{}, len(names))
	for _, name := range names {
		s, t := src[name], tgt[name]
		rel := RelativeDifference(s, t)
		// A metric that is zero on exactly one side always fails.
		if rel > threshold || ((s == 0) != (t == 0)) {
			ok = false
		}
		detail[name] = map[string]interface{}{
			"source_value": s,
			"target_value": t,
			"rel_diff":     rel,
		}
	}
	return ok, detail, nil
}

// pivot flattens result rows into metric/value pairs. Columns of the first
// row keep their name; later rows are prefixed with their index.
func pivot(rows Rows) map[string]float64 {
	metrics := make(map[string]float64)
	for i, row := range rows {
		for col, v := range row {
			f, ok := toFloat64(v)
			if !ok {
				continue
			}
			name := strings.ToLower(col)
			if i > 0 {
				name = fmt.Sprintf("row%d.%s", i, name)
			}
			metrics[name] = f
		}
	}
	return metrics
}

func singleRow(rows Rows) (map[string]interface{}, error) {
	if len(rows) != 1 {
		return nil, fmt.Errorf("expected exactly one result row, got %d", len(rows))
	}
	return rows[0], nil
}

// column looks a column up case-insensitively; warehouses differ in how they
// fold unquoted aliases.
func column(row map[string]interface{}, name string) (interface{}, bool) {
	if v, ok := row[name]; ok {
		return v, true
	}
	for k, v := range row {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func intColumn(row map[string]interface{}, name string) (int64, error) {
	raw, ok := column(row, name)
	if !ok {
		return 0, fmt.Errorf("result is missing column %q", name)
	}
	if raw == nil {
		return 0, nil
	}
	f, ok := toFloat64(raw)
	if !ok {
		return 0, fmt.Errorf("column %q value %v is not numeric", name, raw)
	}
	return int64(f), nil
}

// toFloat64 coerces a driver or JSON value to float64.
func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// toTime coerces a driver value to a timestamp. Layouts without a zone are
// read as UTC; integers are unix seconds.
func toTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case int64:
		return time.Unix(t, 0).UTC(), true
	case []byte:
		return parseTime(string(t))
	case string:
		return parseTime(t)
	default:
		return time.Time{}, false
	}
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
