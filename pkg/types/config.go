package types

// ProjectConfig represents the top-level dqsync.yaml configuration.
type ProjectConfig struct {
	DynamoDB  *DynamoDBConfig  `yaml:"dynamodb"`
	Stream    *StreamConfig    `yaml:"stream,omitempty"`
	Scheduler *SchedulerConfig `yaml:"scheduler"`
	Reconcile *ReconcileConfig `yaml:"reconcile,omitempty"`
	Warehouse *WarehouseConfig `yaml:"warehouse,omitempty"`
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
	// FailureQueueURL, when set, receives one SQS message per failed outcome.
	FailureQueueURL string `yaml:"failureQueueUrl,omitempty"`
}

// DynamoDBConfig holds DynamoDB connection and table settings.
type DynamoDBConfig struct {
	TableName    string `yaml:"tableName" json:"tableName"`
	Region       string `yaml:"region" json:"region"`
	Endpoint     string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	RetentionTTL string `yaml:"retentionTtl,omitempty" json:"retentionTtl,omitempty"`
	CreateTable  bool   `yaml:"createTable,omitempty" json:"createTable,omitempty"`
}

// StreamConfig selects the DynamoDB stream polled by the serve command.
type StreamConfig struct {
	ARN string `yaml:"arn"`
}

// SchedulerConfig configures the EventBridge Scheduler job backend.
type SchedulerConfig struct {
	GroupName string `yaml:"groupName"`
	TargetARN string `yaml:"targetArn"` // check-runner Lambda
	RoleARN   string `yaml:"roleArn"`
	Timezone  string `yaml:"timezone,omitempty"`
	Region    string `yaml:"region,omitempty"`
}

// ReconcileConfig tunes the reconciliation loop.
type ReconcileConfig struct {
	Workers        int    `yaml:"workers,omitempty"`
	PollInterval   string `yaml:"pollInterval,omitempty"`   // e.g. "10s"
	ResyncInterval string `yaml:"resyncInterval,omitempty"` // e.g. "15m"; "0" disables
}

// WarehouseConfig selects the database/sql driver the check runner uses.
type WarehouseConfig struct {
	Driver    string `yaml:"driver"`
	DSN       string `yaml:"dsn,omitempty"`
	SecretARN string `yaml:"secretArn,omitempty"`
}

// TelemetryConfig enables OTLP export of metrics and traces.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	Insecure     bool   `yaml:"insecure,omitempty"`
}
