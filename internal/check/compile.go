package check

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

// Query names inside a Payload.
const (
	QueryCheck  = "check"
	QuerySource = "source"
	QueryTarget = "target"
)

// Query is one parameterized statement of a compiled check.
type Query struct {
	Name string        `json:"name"`
	SQL  string        `json:"sql"`
	Args []interface{} `json:"args,omitempty"`
}

// Payload is the self-contained program a scheduled job runs: the queries to
// execute plus the parameters Evaluate needs to judge their results.
type Payload struct {
	CheckID        string          `json:"checkId"`
	Name           string          `json:"name"`
	Type           types.CheckType `json:"type"`
	Queries        []Query         `json:"queries"`
	SLAMinutes     int             `json:"slaMinutes,omitempty"`
	KeyColumns     []string        `json:"keyColumns,omitempty"`
	ThresholdRatio float64         `json:"thresholdRatio,omitempty"`
}

// Query returns the named query, if present.
func (p Payload) Query(name string) (Query, bool) {
	for _, q := range p.Queries {
		if q.Name == name {
			return q, true
		}
	}
	return Query{}, false
}

// Compiled is the valid result of compiling one definition.
type Compiled struct {
	Kind     Kind
	JobName  string
	Schedule string
	Payload  Payload
}

// Statement renders the payload as the job's statement text. Identical
// definitions always render identical text.
func (c *Compiled) Statement() (string, error) {
	b, err := json.Marshal(c.Payload)
	if err != nil {
		return "", fmt.Errorf("encoding payload for %s: %w", c.Payload.CheckID, err)
	}
	return string(b), nil
}

// Job builds the GeneratedJob for this compiled check.
func (c *Compiled) Job() (types.GeneratedJob, error) {
	stmt, err := c.Statement()
	if err != nil {
		return types.GeneratedJob{}, err
	}
	return types.GeneratedJob{
		Name:      c.JobName,
		CheckID:   c.Payload.CheckID,
		Schedule:  c.Schedule,
		Statement: stmt,
	}, nil
}

// DecodePayload parses a job statement produced by Compiled.Statement.
func DecodePayload(stmt string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(stmt), &p); err != nil {
		return Payload{}, fmt.Errorf("decoding check payload: %w", err)
	}
	if p.CheckID == "" || len(p.Queries) == 0 {
		return Payload{}, fmt.Errorf("decoding check payload: missing checkId or queries")
	}
	return p, nil
}

type compileFunc func(def types.CheckDefinition) (Payload, error)

// compilerFor is exhaustive over Kind.
func compilerFor(k Kind) compileFunc {
	switch k {
	case KindFreshness:
		return compileFreshness
	case KindUniqueness:
		return compileUniqueness
	case KindConsistency:
		return compileConsistency
	case KindUnsupported:
		return compileUnsupported
	}
	return compileUnsupported
}

// Compile turns one definition into a Compiled check or an *Invalid error.
// It never executes anything.
func Compile(def types.CheckDefinition) (*Compiled, error) {
	kind := KindOf(def.Type)
	payload, err := compilerFor(kind)(def)
	if err != nil {
		return nil, err
	}
	if err := validateSchedule(def.Schedule); err != nil {
		return nil, err
	}
	payload.CheckID = def.ID
	payload.Name = def.Name
	payload.Type = types.CheckType(kind.String())
	return &Compiled{
		Kind:     kind,
		JobName:  JobName(def.ID),
		Schedule: strings.TrimSpace(def.Schedule),
		Payload:  payload,
	}, nil
}

func compileUnsupported(def types.CheckDefinition) (Payload, error) {
	return Payload{}, invalidf(ReasonUnsupportedCheckType, "check type %q is not supported", def.Type)
}

// validateSchedule accepts a standard cron expression, optionally with a
// CRON_TZ= prefix, or a native EventBridge cron(...)/rate(...)/at(...)
// expression. Anything accepted here converts with ToExpression.
func validateSchedule(schedule string) error {
	s := strings.TrimSpace(schedule)
	if s == "" {
		return invalidf(ReasonInvalidSchedule, "schedule is empty")
	}
	tz, rest, err := splitTimezone(s)
	if err != nil {
		return invalidf(ReasonInvalidSchedule, "%v", err)
	}
	if prefix := nativePrefix(rest); prefix != "" {
		if !strings.HasSuffix(rest, ")") || len(rest) == len(prefix)+1 {
			return invalidf(ReasonInvalidSchedule, "malformed schedule %q", s)
		}
		if tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return invalidf(ReasonInvalidSchedule, "schedule %q: %v", s, err)
			}
		}
	} else if _, err := cron.ParseStandard(s); err != nil {
		return invalidf(ReasonInvalidSchedule, "parse %q: %v", s, err)
	}
	if _, err := ToExpression(s); err != nil {
		return invalidf(ReasonInvalidSchedule, "%v", err)
	}
	return nil
}
