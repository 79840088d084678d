// Package testutil provides in-memory collaborators for dqsync tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dwsmith1983/dqsync/internal/provider"
	"github.com/dwsmith1983/dqsync/pkg/types"
)

// Compile-time interface satisfaction checks.
var (
	_ provider.DefinitionStore = (*MockProvider)(nil)
	_ provider.ResultStore     = (*MockProvider)(nil)
)

// MockProvider is an in-memory definitions and results store for testing.
// The error hooks, when set, are consulted before the operation runs.
type MockProvider struct {
	mu          sync.Mutex
	definitions map[string]types.CheckDefinition
	results     map[string][]types.CheckResult

	GetErr    func(id string) error
	BindErr   func(id string) error
	ListErr   func() error
	AppendErr func(result types.CheckResult) error

	bindCount atomic.Int64
	listCount atomic.Int64
}

// NewMockProvider creates a new in-memory mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		definitions: make(map[string]types.CheckDefinition),
		results:     make(map[string][]types.CheckResult),
	}
}

func (m *MockProvider) GetDefinition(_ context.Context, id string) (*types.CheckDefinition, error) {
	if m.GetErr != nil {
		if err := m.GetErr(id); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	def, ok := m.definitions[id]
	if !ok {
		return nil, fmt.Errorf("definition %q: %w", id, types.ErrNotFound)
	}
	def.KeyColumns = append([]string(nil), def.KeyColumns...)
	def.Filter = append([]types.Predicate(nil), def.Filter...)
	return &def, nil
}

// PutDefinition upserts a definition, keeping any existing job binding.
func (m *MockProvider) PutDefinition(_ context.Context, def types.CheckDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.definitions[def.ID]; ok {
		def.JobName = cur.JobName
		def.JobType = cur.JobType
		def.CreatedAt = cur.CreatedAt
		def.CreatedBy = cur.CreatedBy
	} else {
		def.JobName = ""
		def.JobType = ""
	}
	m.definitions[def.ID] = def
	return nil
}

// ListDefinitions returns definitions sorted by id.
func (m *MockProvider) ListDefinitions(_ context.Context) ([]types.CheckDefinition, error) {
	m.listCount.Add(1)
	if m.ListErr != nil {
		if err := m.ListErr(); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.CheckDefinition, 0, len(m.definitions))
	for _, d := range m.definitions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockProvider) DeleteDefinition(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.definitions, id)
	return nil
}

func (m *MockProvider) BindJob(_ context.Context, id, jobName string, jobType types.CheckType) error {
	m.bindCount.Add(1)
	if m.BindErr != nil {
		if err := m.BindErr(id); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	def, ok := m.definitions[id]
	if !ok {
		return fmt.Errorf("binding job for %q: %w", id, types.ErrNotFound)
	}
	def.JobName = jobName
	def.JobType = jobType
	if jobName == "" {
		def.JobType = ""
	}
	m.definitions[id] = def
	return nil
}

func (m *MockProvider) AppendResult(_ context.Context, result types.CheckResult) error {
	if m.AppendErr != nil {
		if err := m.AppendErr(result); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result.CheckID] = append(m.results[result.CheckID], result)
	return nil
}

// ListResults returns results newest first.
func (m *MockProvider) ListResults(_ context.Context, checkID string, limit int) ([]types.CheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.results[checkID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]types.CheckResult, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// Definition returns a stored definition for assertions.
func (m *MockProvider) Definition(id string) (types.CheckDefinition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.definitions[id]
	return d, ok
}

// BindCount returns the number of BindJob calls.
func (m *MockProvider) BindCount() int64 {
	return m.bindCount.Load()
}

// ListCount returns the number of ListDefinitions calls.
func (m *MockProvider) ListCount() int64 {
	return m.listCount.Load()
}
