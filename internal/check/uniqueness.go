package check

import (
	"fmt"
	"strings"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

func compileUniqueness(def types.CheckDefinition) (Payload, error) {
	var keys []string
	for _, k := range def.KeyColumns {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return Payload{}, invalidf(ReasonMissingKeyColumn, "uniqueness check requires at least one key column")
	}
	target, err := quoteTarget(def.Target)
	if err != nil {
		return Payload{}, err
	}
	cols, err := quoteIdents(keys)
	if err != nil {
		return Payload{}, err
	}
	where, filterArgs, err := buildWhere(def.Filter)
	if err != nil {
		return Payload{}, err
	}
	keyList := strings.Join(cols, ", ")
	sql := fmt.Sprintf(
		"SELECT (SELECT COUNT(*) FROM (SELECT %s FROM %s%s GROUP BY %s HAVING COUNT(*) > 1) AS dup) AS duplicate_count, "+
			"(SELECT COUNT(*) FROM %s%s) AS total_rows",
		keyList, target, where, keyList, target, where)

	// The filter appears twice, so its args do too.
	var args []interface{}
	args = append(args, filterArgs...)
	args = append(args, filterArgs...)
	return Payload{
		Queries:    []Query{{Name: QueryCheck, SQL: sql, Args: args}},
		KeyColumns: keys,
	}, nil
}
