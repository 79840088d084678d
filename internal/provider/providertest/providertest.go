// Package providertest provides shared conformance tests for definition and
// result store implementations. Call RunAll from a test function to verify a
// store satisfies the full behavioral contract.
package providertest

import (
	"testing"

	"github.com/dwsmith1983/dqsync/internal/provider"
)

// Store is the combined contract under test.
type Store interface {
	provider.DefinitionStore
	provider.ResultStore
}

// RunAll runs the complete store conformance suite as subtests.
func RunAll(t *testing.T, store Store) {
	t.Helper()

	t.Run("DefinitionCRUD", func(t *testing.T) { TestDefinitionCRUD(t, store) })
	t.Run("DefinitionNotFound", func(t *testing.T) { TestDefinitionNotFound(t, store) })
	t.Run("PutClearsParameters", func(t *testing.T) { TestPutClearsParameters(t, store) })
	t.Run("PutPreservesBinding", func(t *testing.T) { TestPutPreservesBinding(t, store) })
	t.Run("BindJob", func(t *testing.T) { TestBindJob(t, store) })
	t.Run("BindJobMissingRow", func(t *testing.T) { TestBindJobMissingRow(t, store) })
	t.Run("ResultAppendAndList", func(t *testing.T) { TestResultAppendAndList(t, store) })
}
