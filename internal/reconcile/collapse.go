package reconcile

import (
	"sort"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

// Step is the single terminal action for one definition id in a batch.
type Step struct {
	ID   string
	Drop bool
	// JobHint is the most recent bound job name carried by the id's events.
	JobHint string
}

// Collapse reduces a batch to one step per id. Events are ordered by their
// sequence when every event carries one, otherwise arrival order is kept.
// An id whose final event is a DELETE is dropped; any other final event
// becomes a create-or-replace. Steps come back in first-seen order.
func Collapse(events []types.ChangeEvent) []Step {
	ordered := make([]types.ChangeEvent, len(events))
	copy(ordered, events)
	if allSequenced(ordered) {
		sort.SliceStable(ordered, func(i, j int) bool {
			return lessSequence(ordered[i].Sequence, ordered[j].Sequence)
		})
	}

	index := make(map[string]int)
	var steps []Step
	for _, ev := range ordered {
		if ev.DefinitionID == "" {
			continue
		}
		i, ok := index[ev.DefinitionID]
		if !ok {
			i = len(steps)
			index[ev.DefinitionID] = i
			steps = append(steps, Step{ID: ev.DefinitionID})
		}
		steps[i].Drop = ev.Action == types.ActionDelete
		if ev.JobName != "" {
			steps[i].JobHint = ev.JobName
		}
	}
	return steps
}

func allSequenced(events []types.ChangeEvent) bool {
	if len(events) == 0 {
		return false
	}
	for _, ev := range events {
		if ev.Sequence == "" {
			return false
		}
	}
	return true
}

// lessSequence orders decimal sequence numbers numerically and anything else
// lexically.
func lessSequence(a, b string) bool {
	if isDigits(a) && isDigits(b) && len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
