package types

import "time"

// DefaultThresholdRatio is applied to consistency checks whose threshold is
// absent or not positive.
const DefaultThresholdRatio = 0.01

// Predicate is one ANDed condition of a row filter. Value is always bound as
// a statement parameter.
type Predicate struct {
	Column string      `yaml:"column" json:"column"`
	Op     FilterOp    `yaml:"op" json:"op"`
	Value  interface{} `yaml:"value,omitempty" json:"value,omitempty"`
}

// CheckDefinition is one declared data-quality control.
//
// Parameters live on the definition row itself: freshness uses KeyColumns[0]
// as its date column plus SLAMinutes, uniqueness uses KeyColumns, and
// consistency uses SourceQuery, TargetQuery and ThresholdRatio.
type CheckDefinition struct {
	ID             string      `yaml:"id" json:"id"`
	Name           string      `yaml:"name" json:"name"`
	Type           CheckType   `yaml:"type" json:"type"`
	Target         string      `yaml:"target,omitempty" json:"target,omitempty"`
	KeyColumns     []string    `yaml:"keyColumns,omitempty" json:"keyColumns,omitempty"`
	Filter         []Predicate `yaml:"filter,omitempty" json:"filter,omitempty"`
	SLAMinutes     int         `yaml:"slaMinutes,omitempty" json:"slaMinutes,omitempty"`
	SourceQuery    string      `yaml:"sourceQuery,omitempty" json:"sourceQuery,omitempty"`
	TargetQuery    string      `yaml:"targetQuery,omitempty" json:"targetQuery,omitempty"`
	ThresholdRatio float64     `yaml:"thresholdRatio,omitempty" json:"thresholdRatio,omitempty"`
	Schedule       string      `yaml:"schedule" json:"schedule"`
	Active         bool        `yaml:"active" json:"active"`

	// Job binding, written by the synchronizer once a job exists.
	JobName string    `yaml:"-" json:"jobName,omitempty"`
	JobType CheckType `yaml:"-" json:"jobType,omitempty"`

	CreatedBy string    `yaml:"createdBy,omitempty" json:"createdBy,omitempty"`
	CreatedAt time.Time `yaml:"-" json:"createdAt"`
	UpdatedBy string    `yaml:"updatedBy,omitempty" json:"updatedBy,omitempty"`
	UpdatedAt time.Time `yaml:"-" json:"updatedAt"`
}

// GeneratedJob is the schedulable artifact materialized from a definition.
type GeneratedJob struct {
	Name      string `json:"name"`
	CheckID   string `json:"checkId"`
	Schedule  string `json:"schedule"`
	Statement string `json:"statement"` // JSON-encoded compiled check payload
}

// ChangeEvent is one row-level mutation emitted by the change feed.
type ChangeEvent struct {
	Action       ChangeAction `json:"action"`
	DefinitionID string       `json:"definitionId"`
	// Sequence is the feed's ordering key, when the feed provides one.
	Sequence string `json:"sequence,omitempty"`
	// JobName is the bound job name from the row's old image, if known.
	JobName string `json:"jobName,omitempty"`
}

// CheckResult is the append-only output of one job execution.
type CheckResult struct {
	ID        string                 `json:"id"`
	CheckID   string                 `json:"checkId"`
	Name      string                 `json:"name"`
	Type      CheckType              `json:"type"`
	Result    ResultStatus           `json:"result"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Outcome describes what reconciliation did for one definition id.
type Outcome struct {
	DefinitionID string        `json:"definitionId"`
	Action       OutcomeAction `json:"action"`
	JobName      string        `json:"jobName,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Err          error         `json:"-"`
}

// Failed reports whether the outcome carries an infrastructure error.
func (o Outcome) Failed() bool {
	return o.Err != nil
}
