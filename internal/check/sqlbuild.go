package check

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

// identPattern is the allow-list for every identifier that reaches SQL text.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// maxTargetSegments allows catalog.schema.table.
const maxTargetSegments = 3

func quoteIdent(name string) (string, error) {
	name = strings.TrimSpace(name)
	if !identPattern.MatchString(name) {
		return "", invalidf(ReasonInvalidIdentifier, "identifier %q is not allowed", name)
	}
	return `"` + name + `"`, nil
}

func quoteIdents(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, n := range names {
		q, err := quoteIdent(n)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func quoteTarget(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", invalidf(ReasonInvalidIdentifier, "target location is empty")
	}
	parts := strings.Split(target, ".")
	if len(parts) > maxTargetSegments {
		return "", invalidf(ReasonInvalidIdentifier, "target %q has more than %d segments", target, maxTargetSegments)
	}
	quoted, err := quoteIdents(parts)
	if err != nil {
		return "", err
	}
	return strings.Join(quoted, "."), nil
}

// buildWhere renders ANDed predicates with ? placeholders. Values never appear
// in the SQL text.
func buildWhere(filter []types.Predicate) (string, []interface{}, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	clauses := make([]string, 0, len(filter))
	var args []interface{}
	for _, p := range filter {
		col, err := quoteIdent(p.Column)
		if err != nil {
			return "", nil, err
		}
		op := types.FilterOp(strings.ToUpper(strings.TrimSpace(string(p.Op))))
		switch op {
		case types.OpIsNull, types.OpIsNotNull:
			clauses = append(clauses, fmt.Sprintf("%s %s", col, op))
		case types.OpEq, types.OpNe, types.OpLt, types.OpLe, types.OpGt, types.OpGe:
			if !scalar(p.Value) {
				return "", nil, invalidf(ReasonInvalidFilter, "value for %q must be a scalar", p.Column)
			}
			sqlOp := string(op)
			if op == types.OpNe {
				sqlOp = "<>"
			}
			clauses = append(clauses, fmt.Sprintf("%s %s ?", col, sqlOp))
			args = append(args, p.Value)
		default:
			return "", nil, invalidf(ReasonInvalidFilter, "operator %q is not allowed", p.Op)
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func scalar(v interface{}) bool {
	switch v.(type) {
	case string, bool, float64, float32, int, int32, int64, uint, uint32, uint64:
		return true
	default:
		return false
	}
}

// writeStatements are rejected anywhere in a consistency query.
var writeStatements = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|MERGE|DROP|ALTER|CREATE|TRUNCATE|GRANT|REVOKE|CALL|EXEC|EXECUTE)\b`)

// readOnlyQuery normalizes a user-supplied query and checks that it is a
// single SELECT or WITH statement.
func readOnlyQuery(side, q string) (string, error) {
	q = strings.TrimSpace(q)
	q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	if q == "" {
		return "", invalidf(ReasonMissingQuery, "%s query is empty", side)
	}
	if strings.Contains(q, ";") {
		return "", invalidf(ReasonInvalidQuery, "%s query must be a single statement", side)
	}
	fields := strings.Fields(q)
	head := strings.ToUpper(fields[0])
	if head != "SELECT" && head != "WITH" {
		return "", invalidf(ReasonInvalidQuery, "%s query must start with SELECT or WITH", side)
	}
	if m := writeStatements.FindString(q); m != "" {
		return "", invalidf(ReasonInvalidQuery, "%s query contains %s", side, strings.ToUpper(m))
	}
	return q, nil
}
