package dynamodb

import (
	"strings"
	"testing"
	"time"
)

func TestCheckPK(t *testing.T) {
	got := checkPK("orders-fresh")
	if got != "CHECK#orders-fresh" {
		t.Errorf("checkPK = %q, want %q", got, "CHECK#orders-fresh")
	}
}

func TestResultSK(t *testing.T) {
	got := resultSK("01HZX")
	if got != "RESULT#01HZX" {
		t.Errorf("resultSK = %q, want %q", got, "RESULT#01HZX")
	}
}

func TestShardSK(t *testing.T) {
	got := shardSK("shardId-0001")
	if got != "SHARD#shardId-0001" {
		t.Errorf("shardSK = %q, want %q", got, "SHARD#shardId-0001")
	}
}

func TestStreamPK(t *testing.T) {
	got := streamPK("arn:stream")
	if !strings.HasPrefix(got, "STREAM#") {
		t.Errorf("streamPK = %q, want STREAM# prefix", got)
	}
}

func TestCheckIDFromKey(t *testing.T) {
	id, ok := CheckIDFromKey("CHECK#a#b")
	if !ok || id != "a#b" {
		t.Errorf("CheckIDFromKey = (%q, %v), want (%q, true)", id, ok, "a#b")
	}
	if _, ok := CheckIDFromKey("STREAM#x"); ok {
		t.Error("expected STREAM# key to be rejected")
	}
}

func TestIsDefinitionKey(t *testing.T) {
	if !IsDefinitionKey("CHECK#x", "DEFINITION") {
		t.Error("expected definition key")
	}
	if IsDefinitionKey("CHECK#x", "RESULT#1") {
		t.Error("result row reported as definition")
	}
	if IsDefinitionKey("STREAM#x", "DEFINITION") {
		t.Error("stream row reported as definition")
	}
}

func TestIsExpired(t *testing.T) {
	if isExpired(0) {
		t.Error("zero epoch must never expire")
	}
	if !isExpired(time.Now().Add(-time.Minute).Unix()) {
		t.Error("past epoch should be expired")
	}
	if isExpired(ttlEpoch(time.Hour)) {
		t.Error("future epoch should not be expired")
	}
}
