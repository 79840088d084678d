package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/dqsync/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "dqsync",
		Short: "Keep scheduled data-quality jobs in sync with their check definitions",
		Long: `dqsync compiles stored data-quality check definitions into scheduled jobs
and reconciles the job scheduler whenever a definition changes. Each job runs
its check against the warehouse and records an OK, KO or ERROR result.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewCompileCmd(),
		commands.NewApplyCmd(),
		commands.NewDeleteCmd(),
		commands.NewReconcileCmd(),
		commands.NewResyncCmd(),
		commands.NewServeCmd(),
		commands.NewRunCmd(),
		commands.NewResultsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
