// Package config handles loading and validation of dqsync.yaml project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

// FileName is the project configuration file looked up by Load.
const FileName = "dqsync.yaml"

const defaultScheduleGroup = "default"

// Load reads and parses dqsync.yaml from the given directory.
func Load(dir string) (*types.ProjectConfig, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *types.ProjectConfig) {
	if cfg.Scheduler != nil {
		if cfg.Scheduler.GroupName == "" {
			cfg.Scheduler.GroupName = defaultScheduleGroup
		}
		if cfg.Scheduler.Region == "" && cfg.DynamoDB != nil {
			cfg.Scheduler.Region = cfg.DynamoDB.Region
		}
	}
}

func validate(cfg *types.ProjectConfig) error {
	if cfg.DynamoDB == nil {
		return fmt.Errorf("dynamodb config is required")
	}
	if cfg.DynamoDB.TableName == "" {
		return fmt.Errorf("dynamodb.tableName is required")
	}
	if cfg.DynamoDB.RetentionTTL != "" {
		if _, err := time.ParseDuration(cfg.DynamoDB.RetentionTTL); err != nil {
			return fmt.Errorf("dynamodb.retentionTtl: %w", err)
		}
	}
	if cfg.Scheduler == nil {
		return fmt.Errorf("scheduler config is required")
	}
	if cfg.Scheduler.TargetARN == "" {
		return fmt.Errorf("scheduler.targetArn is required")
	}
	if cfg.Scheduler.RoleARN == "" {
		return fmt.Errorf("scheduler.roleArn is required")
	}
	if cfg.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	if rc := cfg.Reconcile; rc != nil {
		if rc.Workers < 0 {
			return fmt.Errorf("reconcile.workers must not be negative")
		}
		if err := checkDuration("reconcile.pollInterval", rc.PollInterval, false); err != nil {
			return err
		}
		if err := checkDuration("reconcile.resyncInterval", rc.ResyncInterval, true); err != nil {
			return err
		}
	}
	if wh := cfg.Warehouse; wh != nil {
		if wh.Driver == "" {
			return fmt.Errorf("warehouse.driver is required")
		}
		if wh.DSN == "" && wh.SecretARN == "" {
			return fmt.Errorf("warehouse.dsn or warehouse.secretArn is required")
		}
	}
	if cfg.Telemetry != nil && cfg.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry.otlpEndpoint is required when telemetry is set")
	}
	return nil
}

func checkDuration(field, v string, zeroOK bool) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 || (d == 0 && !zeroOK) {
		return fmt.Errorf("%s must be positive", field)
	}
	return nil
}
