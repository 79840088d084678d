package check

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Expression is a schedule in EventBridge Scheduler form.
type Expression struct {
	Value    string
	Timezone string // IANA zone, empty for the group default
}

var descriptors = map[string]string{
	"@yearly":   "cron(0 0 1 1 ? *)",
	"@annually": "cron(0 0 1 1 ? *)",
	"@monthly":  "cron(0 0 1 * ? *)",
	"@weekly":   "cron(0 0 ? * 1 *)",
	"@daily":    "cron(0 0 * * ? *)",
	"@midnight": "cron(0 0 * * ? *)",
	"@hourly":   "cron(0 * * * ? *)",
}

// ToExpression converts a standard cron schedule to EventBridge syntax.
// cron(...), rate(...) and at(...) expressions pass through unchanged.
func ToExpression(schedule string) (Expression, error) {
	tz, s, err := splitTimezone(schedule)
	if err != nil {
		return Expression{}, err
	}
	expr := Expression{Timezone: tz}

	switch {
	case isNative(s):
		expr.Value = s
		return expr, nil
	case strings.HasPrefix(s, "@every "):
		rate, err := everyToRate(strings.TrimSpace(strings.TrimPrefix(s, "@every ")))
		if err != nil {
			return Expression{}, fmt.Errorf("schedule %q: %w", schedule, err)
		}
		expr.Value = rate
		return expr, nil
	case strings.HasPrefix(s, "@"):
		v, ok := descriptors[s]
		if !ok {
			return Expression{}, fmt.Errorf("schedule %q: unknown descriptor", schedule)
		}
		expr.Value = v
		return expr, nil
	}

	fields := strings.Fields(s)
	if len(fields) != 5 {
		return Expression{}, fmt.Errorf("schedule %q: expected 5 fields, got %d", schedule, len(fields))
	}
	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]

	// EventBridge needs exactly one of day-of-month and day-of-week as "?".
	switch {
	case dow == "*" || dow == "?":
		dow = "?"
		if dom == "?" {
			dom = "*"
		}
	case dom == "*" || dom == "?":
		dom = "?"
	default:
		return Expression{}, fmt.Errorf("schedule %q: day-of-month and day-of-week cannot both be restricted", schedule)
	}
	if dow != "?" {
		converted, err := shiftWeekdays(dow)
		if err != nil {
			return Expression{}, fmt.Errorf("schedule %q: %w", schedule, err)
		}
		dow = converted
	}

	expr.Value = fmt.Sprintf("cron(%s %s %s %s %s *)", minute, hour, dom, month, dow)
	return expr, nil
}

// splitTimezone separates a CRON_TZ= or TZ= prefix from the expression.
func splitTimezone(schedule string) (tz, rest string, err error) {
	s := strings.TrimSpace(schedule)
	for _, prefix := range []string{"CRON_TZ=", "TZ="} {
		if strings.HasPrefix(s, prefix) {
			i := strings.IndexByte(s, ' ')
			if i < 0 {
				return "", "", fmt.Errorf("schedule %q: timezone without expression", schedule)
			}
			return s[len(prefix):i], strings.TrimSpace(s[i+1:]), nil
		}
	}
	return "", s, nil
}

func isNative(s string) bool {
	return nativePrefix(s) != ""
}

func nativePrefix(s string) string {
	for _, prefix := range []string{"cron(", "rate(", "at("} {
		if strings.HasPrefix(s, prefix) {
			return prefix
		}
	}
	return ""
}

// shiftWeekdays renumbers a day-of-week field from 0-6 (Sunday=0) to 1-7
// (Sunday=1). Names and steps are kept.
func shiftWeekdays(field string) (string, error) {
	parts := strings.Split(field, ",")
	for i, part := range parts {
		base, step, hasStep := strings.Cut(part, "/")
		lo, hi, isRange := strings.Cut(base, "-")
		var err error
		if lo, err = shiftDay(lo); err != nil {
			return "", err
		}
		if isRange {
			if hi, err = shiftDay(hi); err != nil {
				return "", err
			}
			base = lo + "-" + hi
		} else {
			base = lo
		}
		if hasStep {
			base += "/" + step
		}
		parts[i] = base
	}
	return strings.Join(parts, ","), nil
}

func shiftDay(tok string) (string, error) {
	if tok == "*" {
		return tok, nil
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return strings.ToUpper(tok), nil
	}
	if n < 0 || n > 7 {
		return "", fmt.Errorf("day-of-week %d out of range", n)
	}
	return strconv.Itoa(n%7 + 1), nil
}

func everyToRate(s string) (string, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return "", fmt.Errorf("invalid @every duration: %w", err)
	}
	if d < time.Minute || d%time.Minute != 0 {
		return "", fmt.Errorf("@every %s is not a whole number of minutes", s)
	}
	n, unit := int64(d/time.Minute), "minute"
	switch {
	case d%(24*time.Hour) == 0:
		n, unit = int64(d/(24*time.Hour)), "day"
	case d%time.Hour == 0:
		n, unit = int64(d/time.Hour), "hour"
	}
	if n != 1 {
		unit += "s"
	}
	return fmt.Sprintf("rate(%d %s)", n, unit), nil
}
