package runner

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "modernc.org/sqlite"             // registers "sqlite"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

// SecretsAPI is the subset of the Secrets Manager client used to resolve
// warehouse credentials.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Open connects to the configured warehouse. When cfg.SecretARN is set the
// DSN is read from Secrets Manager, either as the raw secret string or as
// the "dsn" field of a JSON secret.
func Open(ctx context.Context, cfg types.WarehouseConfig, secrets SecretsAPI) (*sql.DB, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("warehouse driver is required")
	}
	dsn, err := ResolveDSN(ctx, cfg, secrets)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s warehouse: %w", cfg.Driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("warehouse ping: %w", err)
	}
	return db, nil
}

// ResolveDSN returns the configured DSN, fetching it from Secrets Manager
// when a secret is configured.
func ResolveDSN(ctx context.Context, cfg types.WarehouseConfig, secrets SecretsAPI) (string, error) {
	if cfg.SecretARN == "" {
		if cfg.DSN == "" {
			return "", fmt.Errorf("warehouse dsn or secretArn is required")
		}
		return cfg.DSN, nil
	}
	if secrets == nil {
		return "", fmt.Errorf("warehouse secret %s configured without a Secrets Manager client", cfg.SecretARN)
	}
	out, err := secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(cfg.SecretARN),
	})
	if err != nil {
		return "", fmt.Errorf("reading warehouse secret: %w", err)
	}
	raw := strings.TrimSpace(aws.ToString(out.SecretString))
	if raw == "" {
		return "", fmt.Errorf("warehouse secret %s is empty", cfg.SecretARN)
	}
	if !strings.HasPrefix(raw, "{") {
		return raw, nil
	}
	var doc struct {
		DSN string `json:"dsn"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return "", fmt.Errorf("decoding warehouse secret: %w", err)
	}
	if doc.DSN == "" {
		return "", fmt.Errorf("warehouse secret %s has no dsn field", cfg.SecretARN)
	}
	return doc.DSN, nil
}
