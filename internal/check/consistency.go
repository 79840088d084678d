package check

import (
	"math"
	"strings"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

func compileConsistency(def types.CheckDefinition) (Payload, error) {
	if strings.TrimSpace(def.SourceQuery) == "" || strings.TrimSpace(def.TargetQuery) == "" {
		return Payload{}, invalidf(ReasonMissingQuery, "consistency check requires both source and target queries")
	}
	source, err := readOnlyQuery(QuerySource, def.SourceQuery)
	if err != nil {
		return Payload{}, err
	}
	target, err := readOnlyQuery(QueryTarget, def.TargetQuery)
	if err != nil {
		return Payload{}, err
	}
	threshold := def.ThresholdRatio
	if threshold <= 0 || math.IsNaN(threshold) {
		threshold = types.DefaultThresholdRatio
	}
	return Payload{
		Queries: []Query{
			{Name: QuerySource, SQL: source},
			{Name: QueryTarget, SQL: target},
		},
		ThresholdRatio: threshold,
	}, nil
}

// RelativeDifference compares a source and target metric value: 0 when both
// are zero, 1 when exactly one is zero, otherwise |s-t|/|s|.
func RelativeDifference(source, target float64) float64 {
	switch {
	case source == 0 && target == 0:
		return 0
	case source == 0 || target == 0:
		return 1
	default:
		return math.Abs(source-target) / math.Abs(source)
	}
}
