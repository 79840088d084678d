package testutil

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dwsmith1983/dqsync/internal/provider"
	"github.com/dwsmith1983/dqsync/pkg/types"
)

var _ provider.JobScheduler = (*MockScheduler)(nil)

// MockScheduler is an in-memory JobScheduler. OnCreate and OnDelete run
// before the mutation; a non-nil error aborts it.
type MockScheduler struct {
	mu   sync.Mutex
	jobs map[string]types.GeneratedJob

	OnCreate func(job types.GeneratedJob) error
	OnDelete func(name string) error

	creates  atomic.Int64
	deletes  atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewMockScheduler creates an empty scheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{jobs: make(map[string]types.GeneratedJob)}
}

func (s *MockScheduler) CreateOrReplace(_ context.Context, job types.GeneratedJob) error {
	s.creates.Add(1)
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if s.OnCreate != nil {
		if err := s.OnCreate(job); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Name] = job
	return nil
}

func (s *MockScheduler) DeleteIfExists(_ context.Context, name string) (bool, error) {
	s.deletes.Add(1)
	if s.OnDelete != nil {
		if err := s.OnDelete(name); err != nil {
			return false, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; !ok {
		return false, nil
	}
	delete(s.jobs, name)
	return true, nil
}

// ListJobs returns job names sorted.
func (s *MockScheduler) ListJobs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Put seeds a job without counting it as a create.
func (s *MockScheduler) Put(job types.GeneratedJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Name] = job
}

// Job returns a job by name.
func (s *MockScheduler) Job(name string) (types.GeneratedJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	return j, ok
}

// Jobs returns a snapshot of all jobs keyed by name.
func (s *MockScheduler) Jobs() map[string]types.GeneratedJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]types.GeneratedJob, len(s.jobs))
	for k, v := range s.jobs {
		out[k] = v
	}
	return out
}

// Creates returns the number of CreateOrReplace calls.
func (s *MockScheduler) Creates() int64 { return s.creates.Load() }

// Deletes returns the number of DeleteIfExists calls.
func (s *MockScheduler) Deletes() int64 { return s.deletes.Load() }

// PeakConcurrency returns the highest number of concurrent CreateOrReplace
// calls observed.
func (s *MockScheduler) PeakConcurrency() int64 { return s.peak.Load() }
