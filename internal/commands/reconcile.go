package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/dqsync/internal/config"
	"github.com/dwsmith1983/dqsync/internal/feed/ddbstream"
	"github.com/dwsmith1983/dqsync/internal/provider/dynamodb"
	"github.com/dwsmith1983/dqsync/internal/reconcile"
	"github.com/dwsmith1983/dqsync/pkg/types"
)

const passTimeout = 10 * time.Minute

// NewReconcileCmd creates the reconcile command.
func NewReconcileCmd() *cobra.Command {
	var ids []string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run reconciliation passes until the change stream is drained",
		Long: `Reconcile drains the definitions table's stream and brings every changed
check's job in line with its definition. With --id, the named checks are
reconciled directly without reading the stream.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), passTimeout)
			defer cancel()

			logger := newLogger()
			store, err := newStore(ctx, cfg, logger)
			if err != nil {
				return err
			}

			if len(ids) > 0 {
				loop, err := newLoop(ctx, cfg, store, nil, logger)
				if err != nil {
					return err
				}
				return reportOutcomes(cmd.OutOrStdout(), loop.Apply(ctx, changesFor(ids)))
			}

			feed, err := newStreamFeed(ctx, cfg, store, logger)
			if err != nil {
				return err
			}
			loop, err := newLoop(ctx, cfg, store, feed, logger)
			if err != nil {
				return err
			}
			return runReconcile(ctx, cmd.OutOrStdout(), loop, feed)
		},
	}
	cmd.Flags().StringSliceVar(&ids, "id", nil, "Reconcile these check ids directly")
	return cmd
}

// changesFor builds one update event per id, which reconciles each id
// against its current row.
func changesFor(ids []string) []types.ChangeEvent {
	events := make([]types.ChangeEvent, 0, len(ids))
	for _, id := range ids {
		events = append(events, types.ChangeEvent{Action: types.ActionUpdate, DefinitionID: id})
	}
	return events
}

type pendingFeed interface {
	HasPending(ctx context.Context) (bool, error)
}

func runReconcile(ctx context.Context, w io.Writer, loop *reconcile.Loop, feed pendingFeed) error {
	var all []types.Outcome
	for {
		pending, err := feed.HasPending(ctx)
		if err != nil {
			return fmt.Errorf("reading change feed: %w", err)
		}
		if !pending {
			break
		}
		outcomes, err := loop.ReconcileBatch(ctx)
		if err != nil {
			return err
		}
		all = append(all, outcomes...)
	}
	if len(all) == 0 {
		_, _ = fmt.Fprintln(w, "No pending changes.")
		return nil
	}
	return reportOutcomes(w, all)
}

func reportOutcomes(w io.Writer, outcomes []types.Outcome) error {
	if failed := printOutcomes(w, outcomes); failed > 0 {
		return fmt.Errorf("%d of %d checks failed to reconcile", failed, len(outcomes))
	}
	_, _ = fmt.Fprintln(w, color.GreenString("Reconciled %d checks", len(outcomes)))
	return nil
}

func newStreamFeed(ctx context.Context, cfg *types.ProjectConfig, store *dynamodb.Store, logger *slog.Logger) (*ddbstream.Feed, error) {
	if cfg.Stream == nil || cfg.Stream.ARN == "" {
		return nil, fmt.Errorf("stream.arn is required to read the change stream")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoDB.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return ddbstream.New(dynamodbstreams.NewFromConfig(awsCfg), store, cfg.Stream.ARN, logger), nil
}
