// Package check compiles data-quality check definitions into executable
// validation payloads and evaluates their query results.
package check

import (
	"strings"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

// Kind is the closed set of compiler variants a definition can resolve to.
type Kind int

const (
	KindUnsupported Kind = iota
	KindFreshness
	KindUniqueness
	KindConsistency
)

// KindOf maps a declared check type to its compiler variant. Anything outside
// the known set resolves to KindUnsupported.
func KindOf(t types.CheckType) Kind {
	switch types.CheckType(strings.ToUpper(strings.TrimSpace(string(t)))) {
	case types.CheckFreshness:
		return KindFreshness
	case types.CheckUniqueness:
		return KindUniqueness
	case types.CheckConsistency:
		return KindConsistency
	default:
		return KindUnsupported
	}
}

// String returns the canonical check type for the kind.
func (k Kind) String() string {
	switch k {
	case KindFreshness:
		return string(types.CheckFreshness)
	case KindUniqueness:
		return string(types.CheckUniqueness)
	case KindConsistency:
		return string(types.CheckConsistency)
	default:
		return "UNSUPPORTED"
	}
}
