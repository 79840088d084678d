package jobsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/dqsync/internal/check"
	"github.com/dwsmith1983/dqsync/internal/testutil"
	"github.com/dwsmith1983/dqsync/pkg/types"
)

func setup(t *testing.T) (*Synchronizer, *testutil.MockProvider, *testutil.MockScheduler) {
	t.Helper()
	store := testutil.NewMockProvider()
	sched := testutil.NewMockScheduler()
	return New(store, sched, nil), store, sched
}

func put(t *testing.T, store *testutil.MockProvider, def types.CheckDefinition) {
	t.Helper()
	require.NoError(t, store.PutDefinition(context.Background(), def))
}

func TestCreateOrReplace_Applies(t *testing.T) {
	s, store, sched := setup(t)
	ctx := context.Background()
	put(t, store, testutil.Def("orders", types.CheckUniqueness))

	out, err := s.CreateOrReplace(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeApplied, out.Action)
	assert.Equal(t, "dq-check-orders", out.JobName)

	job, ok := sched.Job("dq-check-orders")
	require.True(t, ok)
	assert.Equal(t, "orders", job.CheckID)
	assert.Equal(t, "*/5 * * * *", job.Schedule)

	def, _ := store.Definition("orders")
	assert.Equal(t, "dq-check-orders", def.JobName)
	assert.Equal(t, types.CheckUniqueness, def.JobType)
}

func TestCreateOrReplace_Idempotent(t *testing.T) {
	s, store, sched := setup(t)
	ctx := context.Background()
	put(t, store, testutil.Def("orders", types.CheckFreshness))

	_, err := s.CreateOrReplace(ctx, "orders")
	require.NoError(t, err)
	first, _ := sched.Job("dq-check-orders")

	out, err := s.CreateOrReplace(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeApplied, out.Action)

	second, _ := sched.Job("dq-check-orders")
	assert.Equal(t, first.Statement, second.Statement)
	assert.Len(t, sched.Jobs(), 1)
	assert.Equal(t, int64(1), store.BindCount(), "unchanged binding must not be rewritten")
}

func TestCreateOrReplace_ReplacesOnUpdate(t *testing.T) {
	s, store, sched := setup(t)
	ctx := context.Background()
	def := testutil.Def("orders", types.CheckFreshness)
	put(t, store, def)
	_, err := s.CreateOrReplace(ctx, "orders")
	require.NoError(t, err)

	def.SLAMinutes = 15
	def.Schedule = "0 * * * *"
	put(t, store, def)
	_, err = s.CreateOrReplace(ctx, "orders")
	require.NoError(t, err)

	job, _ := sched.Job("dq-check-orders")
	assert.Equal(t, "0 * * * *", job.Schedule)
	p, err := check.DecodePayload(job.Statement)
	require.NoError(t, err)
	assert.Equal(t, 15, p.SLAMinutes)
	assert.Len(t, sched.Jobs(), 1)
}

func TestCreateOrReplace_InvalidDropsJobAndRow(t *testing.T) {
	s, store, sched := setup(t)
	ctx := context.Background()
	def := testutil.Def("orders", types.CheckFreshness)
	put(t, store, def)
	_, err := s.CreateOrReplace(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, sched.Jobs(), 1)

	def.KeyColumns = nil
	put(t, store, def)
	out, err := s.CreateOrReplace(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeInvalidated, out.Action)
	assert.Contains(t, out.Reason, string(check.ReasonMissingKeyColumn))

	assert.Empty(t, sched.Jobs())
	_, exists := store.Definition("orders")
	assert.False(t, exists)
}

func TestCreateOrReplace_UnconvertibleScheduleInvalidates(t *testing.T) {
	for _, schedule := range []string{"@every 30s", "CRON_TZ=UTC 0 0 1 * 1"} {
		t.Run(schedule, func(t *testing.T) {
			s, store, sched := setup(t)
			ctx := context.Background()
			def := testutil.Def("orders", types.CheckFreshness)
			put(t, store, def)
			_, err := s.CreateOrReplace(ctx, "orders")
			require.NoError(t, err)
			require.Len(t, sched.Jobs(), 1)

			def.Schedule = schedule
			put(t, store, def)
			out, err := s.CreateOrReplace(ctx, "orders")
			require.NoError(t, err)
			assert.Equal(t, types.OutcomeInvalidated, out.Action)
			assert.Contains(t, out.Reason, string(check.ReasonInvalidSchedule))
			assert.Empty(t, sched.Jobs())
		})
	}
}

func TestCreateOrReplace_UnsupportedKeepsJob(t *testing.T) {
	s, store, sched := setup(t)
	ctx := context.Background()
	def := testutil.Def("orders", types.CheckUniqueness)
	put(t, store, def)
	sched.Put(types.GeneratedJob{Name: "dq-check-orders", CheckID: "orders", Statement: "old"})

	def.Type = "COMPLETENESS"
	put(t, store, def)
	out, err := s.CreateOrReplace(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSkipped, out.Action)
	assert.Contains(t, out.Reason, "COMPLETENESS")

	job, ok := sched.Job("dq-check-orders")
	require.True(t, ok)
	assert.Equal(t, "old", job.Statement)
	_, exists := store.Definition("orders")
	assert.True(t, exists)
}

func TestCreateOrReplace_NotFound(t *testing.T) {
	s, _, sched := setup(t)

	out, err := s.CreateOrReplace(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
	assert.Equal(t, types.OutcomeFailed, out.Action)
	assert.True(t, out.Failed())
	assert.Zero(t, sched.Creates())
}

func TestCreateOrReplace_InactiveDeletesJobKeepsRow(t *testing.T) {
	s, store, sched := setup(t)
	ctx := context.Background()
	def := testutil.Def("orders", types.CheckUniqueness)
	put(t, store, def)
	_, err := s.CreateOrReplace(ctx, "orders")
	require.NoError(t, err)

	def.Active = false
	put(t, store, def)
	out, err := s.CreateOrReplace(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeDeactivated, out.Action)
	assert.Empty(t, sched.Jobs())

	row, exists := store.Definition("orders")
	require.True(t, exists)
	assert.Empty(t, row.JobName)
}

func TestCreateOrReplace_TypeChangeRejected(t *testing.T) {
	s, store, sched := setup(t)
	ctx := context.Background()
	def := testutil.Def("orders", types.CheckUniqueness)
	put(t, store, def)
	_, err := s.CreateOrReplace(ctx, "orders")
	require.NoError(t, err)
	before, _ := sched.Job("dq-check-orders")

	changed := testutil.Def("orders", types.CheckFreshness)
	put(t, store, changed)
	out, err := s.CreateOrReplace(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeRejected, out.Action)

	after, _ := sched.Job("dq-check-orders")
	assert.Equal(t, before.Statement, after.Statement)
}

func TestCreateOrReplace_SchedulerFailure(t *testing.T) {
	s, store, sched := setup(t)
	sched.OnCreate = func(types.GeneratedJob) error {
		return fmt.Errorf("boom: %w", types.ErrSchedulerFailure)
	}
	put(t, store, testutil.Def("orders", types.CheckUniqueness))

	out, err := s.CreateOrReplace(context.Background(), "orders")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrSchedulerFailure))
	assert.Equal(t, types.OutcomeFailed, out.Action)
	assert.Zero(t, store.BindCount())
}

func TestCreateOrReplace_StoreFailure(t *testing.T) {
	s, store, _ := setup(t)
	store.GetErr = func(string) error { return fmt.Errorf("get: %w", types.ErrStoreFailure) }

	_, err := s.CreateOrReplace(context.Background(), "orders")
	assert.True(t, errors.Is(err, types.ErrStoreFailure))
}

func TestDrop_Idempotent(t *testing.T) {
	s, store, sched := setup(t)
	ctx := context.Background()
	put(t, store, testutil.Def("orders", types.CheckUniqueness))
	_, err := s.CreateOrReplace(ctx, "orders")
	require.NoError(t, err)

	out, err := s.Drop(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeDropped, out.Action)
	assert.Empty(t, sched.Jobs())

	out, err = s.Drop(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeDropped, out.Action)
}

func TestDrop_UsesBoundName(t *testing.T) {
	s, store, sched := setup(t)
	ctx := context.Background()
	put(t, store, testutil.Def("orders", types.CheckUniqueness))
	require.NoError(t, store.BindJob(ctx, "orders", "legacy-orders-job", types.CheckUniqueness))
	sched.Put(types.GeneratedJob{Name: "legacy-orders-job"})

	out, err := s.Drop(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, "legacy-orders-job", out.JobName)
	assert.Empty(t, sched.Jobs())
}

func TestDropWithHint_RowAlreadyGone(t *testing.T) {
	s, _, sched := setup(t)
	sched.Put(types.GeneratedJob{Name: "custom-name"})

	out, err := s.DropWithHint(context.Background(), "orders", "custom-name")
	require.NoError(t, err)
	assert.Equal(t, "custom-name", out.JobName)
	assert.Empty(t, sched.Jobs())
}

func TestSameIDSerialized(t *testing.T) {
	s, store, sched := setup(t)
	sched.OnCreate = func(types.GeneratedJob) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}
	put(t, store, testutil.Def("orders", types.CheckUniqueness))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.CreateOrReplace(context.Background(), "orders")
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), sched.PeakConcurrency())
	assert.Zero(t, s.locks.size())
}

func TestDifferentIDsConcurrent(t *testing.T) {
	s, store, sched := setup(t)
	arrived := make(chan struct{}, 2)
	release := make(chan struct{})
	sched.OnCreate = func(types.GeneratedJob) error {
		arrived <- struct{}{}
		<-release
		return nil
	}
	put(t, store, testutil.Def("a", types.CheckUniqueness))
	put(t, store, testutil.Def("b", types.CheckUniqueness))

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = s.CreateOrReplace(context.Background(), id)
		}(id)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-arrived:
		case <-time.After(2 * time.Second):
			close(release)
			t.Fatal("different ids did not run concurrently")
		}
	}
	close(release)
	wg.Wait()
	assert.Equal(t, int64(2), sched.PeakConcurrency())
}
