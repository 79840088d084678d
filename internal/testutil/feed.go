package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dwsmith1983/dqsync/internal/provider"
	"github.com/dwsmith1983/dqsync/pkg/types"
)

var _ provider.ChangeFeed = (*MockFeed)(nil)

// MockFeed is an in-memory at-least-once change feed. Drained events stay
// pending until their batch is acknowledged, so an unacknowledged batch is
// delivered again by the next Drain.
type MockFeed struct {
	mu      sync.Mutex
	pending []types.ChangeEvent

	DrainErr func() error

	drains atomic.Int64
	acks   atomic.Int64
}

// NewMockFeed creates a feed preloaded with events.
func NewMockFeed(events ...types.ChangeEvent) *MockFeed {
	return &MockFeed{pending: append([]types.ChangeEvent(nil), events...)}
}

// Push appends events to the feed.
func (f *MockFeed) Push(events ...types.ChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, events...)
}

func (f *MockFeed) HasPending(_ context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending) > 0, nil
}

func (f *MockFeed) Drain(_ context.Context) (provider.Batch, error) {
	f.drains.Add(1)
	if f.DrainErr != nil {
		if err := f.DrainErr(); err != nil {
			return provider.Batch{}, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	events := append([]types.ChangeEvent(nil), f.pending...)
	return provider.Batch{Events: events, Cursor: len(events)}, nil
}

func (f *MockFeed) Ack(_ context.Context, batch provider.Batch) error {
	n, ok := batch.Cursor.(int)
	if !ok {
		return fmt.Errorf("unexpected cursor %T", batch.Cursor)
	}
	f.acks.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if n > len(f.pending) {
		n = len(f.pending)
	}
	f.pending = f.pending[n:]
	return nil
}

// Pending returns the number of unacknowledged events.
func (f *MockFeed) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Drains returns the number of Drain calls.
func (f *MockFeed) Drains() int64 { return f.drains.Load() }

// Acks returns the number of acknowledged batches.
func (f *MockFeed) Acks() int64 { return f.acks.Load() }
