// Package metrics exposes runtime counters via expvar.
package metrics

import (
	"expvar"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

var (
	PassesTotal     = expvar.NewInt("reconcile_passes_total")
	PassesSkipped   = expvar.NewInt("reconcile_passes_skipped")
	EventsDrained   = expvar.NewInt("change_events_drained")
	BatchesAcked    = expvar.NewInt("change_batches_acked")
	ResyncsTotal    = expvar.NewInt("resyncs_total")
	OrphansDeleted  = expvar.NewInt("orphan_jobs_deleted")
	ChecksRun       = expvar.NewInt("checks_run_total")
	CheckErrors     = expvar.NewInt("check_errors")
	ReportsFailed   = expvar.NewInt("failure_reports_failed")
	OutcomesByState = expvar.NewMap("reconcile_outcomes")
	ResultsByStatus = expvar.NewMap("check_results")
)

// RecordOutcome counts one reconciliation outcome under its action.
func RecordOutcome(action types.OutcomeAction) {
	OutcomesByState.Add(string(action), 1)
}

// RecordResult counts one check result under its status.
func RecordResult(status types.ResultStatus) {
	ResultsByStatus.Add(string(status), 1)
}
