package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/dqsync/internal/config"
	"github.com/dwsmith1983/dqsync/internal/provider"
	"github.com/dwsmith1983/dqsync/pkg/types"
)

// NewResultsCmd creates the results command.
func NewResultsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "results [check-id]",
		Short: "Show a check's definition, job binding and recent results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			store, err := newStore(ctx, cfg, newLogger())
			if err != nil {
				return err
			}
			return showResults(ctx, cmd.OutOrStdout(), store, store, args[0], limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of results to show")
	return cmd
}

func statusString(s types.ResultStatus) string {
	switch s {
	case types.ResultOK:
		return color.GreenString(string(s))
	case types.ResultKO:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

func showResults(ctx context.Context, w io.Writer, defs provider.DefinitionStore, results provider.ResultStore, id string, limit int) error {
	def, err := defs.GetDefinition(ctx, id)
	if err != nil {
		return fmt.Errorf("check not found: %w", err)
	}

	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(w, "Check: %s\n", def.ID)
	_, _ = fmt.Fprintf(w, "  Type:     %s\n", def.Type)
	_, _ = fmt.Fprintf(w, "  Target:   %s\n", def.Target)
	_, _ = fmt.Fprintf(w, "  Schedule: %s\n", def.Schedule)
	_, _ = fmt.Fprintf(w, "  Active:   %t\n", def.Active)
	if def.JobName != "" {
		_, _ = fmt.Fprintf(w, "  Job:      %s (%s)\n", def.JobName, def.JobType)
	} else {
		_, _ = fmt.Fprintln(w, "  Job:      none")
	}

	rs, err := results.ListResults(ctx, id, limit)
	if err != nil {
		return fmt.Errorf("listing results: %w", err)
	}
	if len(rs) == 0 {
		_, _ = fmt.Fprintln(w, "\n  No results recorded.")
		return nil
	}
	_, _ = fmt.Fprintln(w)
	_, _ = bold.Fprintln(w, "  Recent Results:")
	for _, r := range rs {
		_, _ = fmt.Fprintf(w, "    %s  %-5s  %s\n", r.Timestamp.Format(time.RFC3339), statusString(r.Result), r.ID)
	}
	return nil
}
