package commands

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/dqsync/internal/check"
)

// NewCompileCmd creates the compile command.
func NewCompileCmd() *cobra.Command {
	var showStatement bool

	cmd := &cobra.Command{
		Use:   "compile [file-or-dir]",
		Short: "Compile check definitions offline and show the jobs they produce",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd.OutOrStdout(), args[0], showStatement)
		},
	}
	cmd.Flags().BoolVar(&showStatement, "statement", false, "Print each job's statement")
	return cmd
}

func runCompile(w io.Writer, path string, showStatement bool) error {
	defs, err := loadDefinitions(path)
	if err != nil {
		return fmt.Errorf("loading definitions: %w", err)
	}
	if len(defs) == 0 {
		_, _ = fmt.Fprintln(w, "No check definitions found.")
		return nil
	}

	invalid := 0
	for _, def := range defs {
		compiled, err := check.Compile(def)
		if err != nil {
			invalid++
			_, _ = fmt.Fprintf(w, "  %-30s %s %s\n", def.ID, color.RedString("INVALID"), err)
			continue
		}
		expr, err := check.ToExpression(compiled.Schedule)
		if err != nil {
			invalid++
			_, _ = fmt.Fprintf(w, "  %-30s %s %s\n", def.ID, color.RedString("INVALID"), err)
			continue
		}
		_, _ = fmt.Fprintf(w, "  %-30s %s job=%s schedule=%s\n",
			def.ID, color.GreenString("OK"), compiled.JobName, expr.Value)
		if showStatement {
			stmt, err := compiled.Statement()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(w, "    %s\n", stmt)
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d definitions are invalid", invalid, len(defs))
	}
	return nil
}
