// Package types defines the public domain types for dqsync check definitions,
// generated jobs, change events and check results.
package types

// CheckType is the declared kind of a data-quality check. Values outside the
// known set are preserved as-is and compile as unsupported.
type CheckType string

// CheckType values enumerate the supported check kinds.
const (
	CheckFreshness   CheckType = "FRESHNESS"
	CheckUniqueness  CheckType = "UNIQUENESS"
	CheckConsistency CheckType = "CONSISTENCY"
)

// ChangeAction is the row-level mutation carried by a ChangeEvent.
type ChangeAction string

// ChangeAction values mirror the change feed's mutation kinds.
const (
	ActionInsert ChangeAction = "INSERT"
	ActionUpdate ChangeAction = "UPDATE"
	ActionDelete ChangeAction = "DELETE"
)

// ResultStatus is the verdict of one check execution.
type ResultStatus string

// ResultStatus values enumerate the check execution verdicts.
const (
	ResultOK    ResultStatus = "OK"
	ResultKO    ResultStatus = "KO"
	ResultError ResultStatus = "ERROR"
)

// OutcomeAction records what a reconciliation step did for one definition.
type OutcomeAction string

// OutcomeAction values enumerate the per-id reconciliation results.
const (
	OutcomeApplied     OutcomeAction = "APPLIED"     // job created or replaced
	OutcomeDropped     OutcomeAction = "DROPPED"     // job and row removed
	OutcomeInvalidated OutcomeAction = "INVALIDATED" // invalid parameters, dropped
	OutcomeDeactivated OutcomeAction = "DEACTIVATED" // inactive, job removed, row kept
	OutcomeSkipped     OutcomeAction = "SKIPPED"     // unsupported type, job untouched
	OutcomeRejected    OutcomeAction = "REJECTED"    // type changed under an existing job
	OutcomeFailed      OutcomeAction = "FAILED"
)

// FilterOp is a comparison operator allowed in a row filter predicate.
type FilterOp string

// FilterOp values are the only operators a row filter may use.
const (
	OpEq        FilterOp = "="
	OpNe        FilterOp = "!="
	OpLt        FilterOp = "<"
	OpLe        FilterOp = "<="
	OpGt        FilterOp = ">"
	OpGe        FilterOp = ">="
	OpIsNull    FilterOp = "IS NULL"
	OpIsNotNull FilterOp = "IS NOT NULL"
)

// Unary reports whether the operator takes no value.
func (o FilterOp) Unary() bool {
	return o == OpIsNull || o == OpIsNotNull
}
