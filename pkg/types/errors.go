package types

import "errors"

// Sentinel errors shared by adapters and the synchronizer. Adapters wrap the
// underlying cause with %w so callers can test with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrStoreFailure     = errors.New("store failure")
	ErrSchedulerFailure = errors.New("scheduler failure")
)
