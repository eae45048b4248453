package main

import (
	"fmt"
	"io"

	"github.com/phrazzld/scry-dbreset/internal/cleanup"
	"github.com/phrazzld/scry-dbreset/internal/depgraph"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "dbreset",
		Short: "Inspect foreign keys and reset a PostgreSQL test database",
		Long: `dbreset reads the foreign keys of a PostgreSQL schema, computes an order
in which its tables can be truncated, and resets the schema to a clean
state between test runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.PersistentFlags()
	f.StringVar(&a.opts.configFile, "config", "", "path to a YAML config file (default ./dbreset.yaml if present)")
	f.StringVar(&a.opts.databaseURL, "database-url", "", "PostgreSQL connection URL")
	f.StringVar(&a.opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	f.StringVar(&a.opts.schema, "schema", "", "schema to inspect")
	f.StringVar(&a.opts.introspector, "introspector", "", "schema reader: catalog or atlas")
	f.StringVar(&a.opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	root.AddCommand(
		newGraphCmd(a),
		newOrderCmd(a),
		newCyclesCmd(a),
		newVerifyCmd(a),
		newTruncateCmd(a),
		newResetSequencesCmd(a),
		newCheckCmd(a),
		newCleanCmd(a),
	)
	return root
}

func newGraphCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the foreign key dependencies of every table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := depgraph.ParseFormat(format)
			if err != nil {
				return err
			}
			if err := a.open(cmd); err != nil {
				return err
			}
			m, err := a.dependencyMap(cmd.Context())
			if err != nil {
				return err
			}
			return depgraph.Render(cmd.OutOrStdout(), m, f)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, markdown, yaml or json")
	return cmd
}

func newOrderCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "order",
		Short: "Print the truncation order, one table per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			res, err := a.cleaner().TruncationOrder(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range res.Order {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			for _, e := range res.BrokenEdges {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: cycle broken at %s\n", e)
			}
			return nil
		},
	}
}

func newCyclesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cycles",
		Short: "Print every foreign key that takes part in a cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			m, err := a.dependencyMap(cmd.Context())
			if err != nil {
				return err
			}
			for _, e := range depgraph.FindCycles(m).Sorted() {
				fmt.Fprintln(cmd.OutOrStdout(), e)
			}
			return nil
		},
	}
}

func newVerifyCmd(a *app) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "verify TABLE...",
		Short: "Check that the given truncation order is safe",
		Long: `verify checks that TABLE... names every table of the schema exactly once
and that every table comes before the tables it references. Edges that take
part in a cycle are exempt unless --strict is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			m, err := a.dependencyMap(cmd.Context())
			if err != nil {
				return err
			}
			var cycles depgraph.EdgeSet
			if !strict {
				cycles = depgraph.FindCycles(m)
			}
			if err := depgraph.Check(m, cycles, args); err != nil {
				return fmt.Errorf("%w: %w", errOrderRejected, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "order ok")
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "do not exempt edges that take part in a cycle")
	return cmd
}

func newTruncateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "truncate [TABLE...]",
		Short: "Truncate the given tables and their dependents, or every table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			return a.cleaner().Truncate(cmd.Context(), args...)
		},
	}
}

func newResetSequencesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-sequences [SEQUENCE...]",
		Short: "Restart the given sequences, or every sequence, at 1",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			return a.cleaner().ResetSequences(cmd.Context(), args...)
		},
	}
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report whether the database is clean",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			report, err := a.cleaner().VerifyCleanState(cmd.Context())
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}
}

func newCleanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Truncate every table, restart every sequence and report the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			report, err := a.cleaner().CleanAll(cmd.Context())
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}
}

// printReport writes report as YAML and returns errNotClean when it
// found leftover state.
func printReport(w io.Writer, report cleanup.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if !report.Clean() {
		return errNotClean
	}
	return nil
}
