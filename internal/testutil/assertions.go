package testutil

import (
	"testing"
	"time"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

// WaitFor polls check every 10ms until it returns true or timeout is reached.
func WaitFor(t *testing.T, timeout time.Duration, check func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for condition: %s", msg)
}

// WaitForJob polls until the scheduler holds the named job.
func WaitForJob(t *testing.T, sched *MockScheduler, name string, timeout time.Duration) types.GeneratedJob {
	t.Helper()
	var job types.GeneratedJob
	WaitFor(t, timeout, func() bool {
		j, ok := sched.Job(name)
		job = j
		return ok
	}, "job "+name+" created")
	return job
}

// WaitForNoJob polls until the scheduler no longer holds the named job.
func WaitForNoJob(t *testing.T, sched *MockScheduler, name string, timeout time.Duration) {
	t.Helper()
	WaitFor(t, timeout, func() bool {
		_, ok := sched.Job(name)
		return !ok
	}, "job "+name+" removed")
}

// WaitForDrained polls until the feed has no unacknowledged events.
func WaitForDrained(t *testing.T, feed *MockFeed, timeout time.Duration) {
	t.Helper()
	WaitFor(t, timeout, func() bool {
		return feed.Pending() == 0
	}, "feed drained")
}

// Def builds a valid active definition of the given type for tests.
func Def(id string, typ types.CheckType) types.CheckDefinition {
	def := types.CheckDefinition{
		ID:       id,
		Name:     id,
		Type:     typ,
		Target:   "analytics.events",
		Schedule: "*/5 * * * *",
		Active:   true,
	}
	switch typ {
	case types.CheckFreshness:
		def.KeyColumns = []string{"loaded_at"}
		def.SLAMinutes = 60
	case types.CheckUniqueness:
		def.KeyColumns = []string{"event_id"}
	case types.CheckConsistency:
		def.SourceQuery = "SELECT COUNT(*) AS n FROM src"
		def.TargetQuery = "SELECT COUNT(*) AS n FROM dst"
	}
	return def
}
