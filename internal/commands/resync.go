package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/dqsync/internal/config"
)

// NewResyncCmd creates the resync command.
func NewResyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resync",
		Short: "Reconcile every stored definition and delete orphaned jobs",
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
			loop, err := newLoop(ctx, cfg, store, nil, logger)
			if err != nil {
				return err
			}
			outcomes, err := loop.Resync(ctx)
			if err != nil {
				return fmt.Errorf("resync: %w", err)
			}
			return reportOutcomes(cmd.OutOrStdout(), outcomes)
		},
	}
}
