package check

import (
	"fmt"
	"strings"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

func compileFreshness(def types.CheckDefinition) (Payload, error) {
	dateColumn := ""
	if len(def.KeyColumns) > 0 {
		dateColumn = strings.TrimSpace(def.KeyColumns[0])
	}
	if dateColumn == "" {
		return Payload{}, invalidf(ReasonMissingKeyColumn, "freshness check requires a date column")
	}
	if def.SLAMinutes < 0 {
		return Payload{}, invalidf(ReasonInvalidParameter, "slaMinutes must not be negative, got %d", def.SLAMinutes)
	}
	target, err := quoteTarget(def.Target)
	if err != nil {
		return Payload{}, err
	}
	col, err := quoteIdent(dateColumn)
	if err != nil {
		return Payload{}, err
	}
	where, args, err := buildWhere(def.Filter)
	if err != nil {
		return Payload{}, err
	}
	sql := fmt.Sprintf("SELECT MAX(%s) AS max_date, COUNT(*) AS total_rows FROM %s%s", col, target, where)
	return Payload{
		Queries:    []Query{{Name: QueryCheck, SQL: sql, Args: args}},
		SLAMinutes: def.SLAMinutes,
		KeyColumns: []string{dateColumn},
	}, nil
}
