package commands

import (
	"context"
	"fmt"
	"io"
	"sort"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/dqsync/internal/check"
	"github.com/dwsmith1983/dqsync/internal/config"
	"github.com/dwsmith1983/dqsync/internal/runner"
	"github.com/dwsmith1983/dqsync/pkg/types"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "run [check-id]",
		Short: "Run a check once against the configured warehouse",
		Long: `Run executes a check immediately, the way its scheduled job would, and
stores the result. The definition is read from the table, or from --file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.Warehouse == nil {
				return fmt.Errorf("warehouse config is required to run checks")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), runner.DefaultQueryTimeout)
			defer cancel()

			logger := newLogger()
			store, err := newStore(ctx, cfg, logger)
			if err != nil {
				return err
			}

			var secrets runner.SecretsAPI
			if cfg.Warehouse.SecretARN != "" {
				awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoDB.Region))
				if err != nil {
					return fmt.Errorf("loading AWS config: %w", err)
				}
				secrets = secretsmanager.NewFromConfig(awsCfg)
			}
			db, err := runner.Open(ctx, *cfg.Warehouse, secrets)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			var def *types.CheckDefinition
			if file != "" {
				def, err = definitionFromFile(file, args[0])
			} else {
				def, err = store.GetDefinition(ctx, args[0])
			}
			if err != nil {
				return err
			}
			return runCheck(ctx, cmd.OutOrStdout(), runner.New(db, store, logger), *def)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the definition from this file or directory")
	return cmd
}

func definitionFromFile(path, id string) (*types.CheckDefinition, error) {
	defs, err := loadDefinitions(path)
	if err != nil {
		return nil, fmt.Errorf("loading definitions: %w", err)
	}
	for i := range defs {
		if defs[i].ID == id {
			return &defs[i], nil
		}
	}
	return nil, fmt.Errorf("check %s not found in %s: %w", id, path, types.ErrNotFound)
}

func runCheck(ctx context.Context, w io.Writer, r *runner.Runner, def types.CheckDefinition) error {
	compiled, err := check.Compile(def)
	if err != nil {
		return fmt.Errorf("compiling %s: %w", def.ID, err)
	}
	res, err := r.Run(ctx, compiled.Payload)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "  %-30s %s id=%s\n", def.ID, statusString(res.Result), res.ID)
	keys := make([]string, 0, len(res.Detail))
	for k := range res.Detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "    %s: %v\n", k, res.Detail[k])
	}
	return nil
}
