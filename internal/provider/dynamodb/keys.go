package dynamodb

import (
	"fmt"
	"strings"
	"time"
)

// PK/SK prefix constants.
const (
	prefixCheck  = "CHECK#"
	prefixResult = "RESULT#"
	prefixStream = "STREAM#"
	prefixShard  = "SHARD#"
	prefixType   = "TYPE#"

	skDefinition = "DEFINITION"

	gsi1 = "GSI1"
)

func checkPK(id string) string         { return prefixCheck + id }
func definitionSK() string             { return skDefinition }
func resultSK(resultID string) string  { return prefixResult + resultID }
func streamPK(streamARN string) string { return prefixStream + streamARN }
func shardSK(shardID string) string    { return prefixShard + shardID }
func definitionGSI1PK() string         { return prefixType + "check" }

// CheckIDFromKey extracts a definition id from a PK, reporting whether the key
// belongs to a check partition.
func CheckIDFromKey(pk string) (string, bool) {
	if !strings.HasPrefix(pk, prefixCheck) {
		return "", false
	}
	return strings.TrimPrefix(pk, prefixCheck), true
}

// IsDefinitionKey reports whether a PK/SK pair addresses a definition row.
func IsDefinitionKey(pk, sk string) bool {
	return strings.HasPrefix(pk, prefixCheck) && sk == skDefinition
}

func ttlEpoch(d time.Duration) int64 {
	return time.Now().Add(d).Unix()
}

func isExpired(epoch int64) bool {
	return epoch > 0 && time.Now().Unix() > epoch
}

func epochString(v int64) string {
	return fmt.Sprintf("%d", v)
}
