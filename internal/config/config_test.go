package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseConfig = `dynamodb:
  tableName: dqsync
  region: eu-west-1
scheduler:
  targetArn: arn:aws:lambda:eu-west-1:123:function:check-runner
  roleArn: arn:aws:iam::123:role/scheduler
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeConfig(t, baseConfig+`stream:
  arn: arn:aws:dynamodb:eu-west-1:123:table/dqsync/stream/x
reconcile:
  workers: 8
  pollInterval: 5s
  resyncInterval: "0"
warehouse:
  driver: pgx
  secretArn: arn:aws:secretsmanager:eu-west-1:123:secret:wh
failureQueueUrl: https://sqs.eu-west-1.amazonaws.com/123/dq-failures
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "dqsync", cfg.DynamoDB.TableName)
	assert.Equal(t, "default", cfg.Scheduler.GroupName)
	assert.Equal(t, "eu-west-1", cfg.Scheduler.Region)
	assert.Equal(t, 8, cfg.Reconcile.Workers)
	assert.Equal(t, "0", cfg.Reconcile.ResyncInterval)
	assert.Equal(t, "pgx", cfg.Warehouse.Driver)
	assert.NotEmpty(t, cfg.Stream.ARN)
	assert.NotEmpty(t, cfg.FailureQueueURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml"))
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"missing dynamodb", "scheduler:\n  targetArn: a\n  roleArn: b\n", "dynamodb config is required"},
		{"missing table", "dynamodb:\n  region: x\n", "dynamodb.tableName is required"},
		{"missing scheduler", "dynamodb:\n  tableName: t\n", "scheduler config is required"},
		{"missing role", "dynamodb:\n  tableName: t\nscheduler:\n  targetArn: a\n", "scheduler.roleArn is required"},
		{"bad timezone", baseConfig + "  timezone: Mars/Olympus\n", "scheduler.timezone"},
		{"bad poll interval", baseConfig + "reconcile:\n  pollInterval: soon\n", "reconcile.pollInterval"},
		{"zero poll interval", baseConfig + "reconcile:\n  pollInterval: 0s\n", "must be positive"},
		{"warehouse without dsn", baseConfig + "warehouse:\n  driver: sqlite\n", "warehouse.dsn or warehouse.secretArn"},
		{"bad retention", "dynamodb:\n  tableName: t\n  retentionTtl: forever\n", "dynamodb.retentionTtl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
