package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/dqsync/internal/check"
	"github.com/dwsmith1983/dqsync/internal/config"
	"github.com/dwsmith1983/dqsync/internal/provider"
)

const applyTimeout = 30 * time.Second

// NewApplyCmd creates the apply command.
func NewApplyCmd() *cobra.Command {
	var (
		file  string
		user  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Write check definitions to the definitions table",
		Long: `Apply upserts check definitions from a YAML file or directory. The
reconciliation loop picks the changes up from the table's stream.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), applyTimeout)
			defer cancel()
			store, err := newStore(ctx, cfg, newLogger())
			if err != nil {
				return err
			}
			return runApply(ctx, cmd.OutOrStdout(), store, file, user, force)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Definition file or directory (required)")
	cmd.Flags().StringVar(&user, "user", os.Getenv("USER"), "Recorded as the definition's author")
	cmd.Flags().BoolVar(&force, "force", false, "Write definitions that do not compile")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runApply(ctx context.Context, w io.Writer, store provider.DefinitionStore, path, user string, force bool) error {
	defs, err := loadDefinitions(path)
	if err != nil {
		return fmt.Errorf("loading definitions: %w", err)
	}
	if !force {
		for _, def := range defs {
			if _, err := check.Compile(def); err != nil {
				return fmt.Errorf("definition %s: %w (use --force to write it anyway)", def.ID, err)
			}
		}
	}

	for _, def := range defs {
		def.CreatedBy = user
		def.UpdatedBy = user
		if err := store.PutDefinition(ctx, def); err != nil {
			return fmt.Errorf("writing definition %s: %w", def.ID, err)
		}
		_, _ = fmt.Fprintf(w, "  %-30s %s\n", def.ID, color.GreenString("applied"))
	}
	return nil
}

// NewDeleteCmd creates the delete command.
func NewDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [check-id...]",
		Short: "Delete check definitions; their jobs are removed on the next pass",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), applyTimeout)
			defer cancel()
			store, err := newStore(ctx, cfg, newLogger())
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := store.DeleteDefinition(ctx, id); err != nil {
					return fmt.Errorf("deleting definition %s: %w", id, err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  %-30s %s\n", id, color.YellowString("deleted"))
			}
			return nil
		},
	}
}
