package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/pitwall/internal/ir"
	"github.com/roach88/pitwall/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database string
	Process  string
	Limit    int
	Leases   bool
}

// RunsResult is the run history output.
type RunsResult struct {
	Runs   []ir.RunLogEntry `json:"runs"`
	Stats  RunStats         `json:"stats"`
	Leases []ir.Lease       `json:"leases,omitempty"`
}

// RunStats totals the listed run log entries.
type RunStats struct {
	Runs     int   `json:"runs"`
	Inserted int64 `json:"inserted"`
	Updated  int64 `json:"updated"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the run log",
		Long: `List run log entries, newest first. Each successful entity load
appends one entry with its run id and insert/update counts; failed loads
leave no entry.

Examples:
  pitwall runs --db dwh.db
  pitwall runs --db dwh.db --process race --limit 5
  pitwall runs --db dwh.db --leases --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "warehouse SQLite database (default $"+EnvDatabase+")")
	cmd.Flags().StringVar(&opts.Process, "process", "", "only entries of this process (entity)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of entries (0 = all)")
	cmd.Flags().BoolVar(&opts.Leases, "leases", false, "also list process leases")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := commandContext(cmd)

	st, err := openStore(envDefault(opts.Database, EnvDatabase), "")
	if err != nil {
		_ = f.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(ctx, store.RunFilter{Process: opts.Process, Limit: opts.Limit})
	if err != nil {
		return WrapExitError(ExitCommandError, "list runs", err)
	}

	result := RunsResult{Runs: runs, Stats: runStats(runs)}
	if opts.Leases {
		if result.Leases, err = st.ListLeases(ctx); err != nil {
			return WrapExitError(ExitCommandError, "list leases", err)
		}
	}

	if f.JSON() {
		return f.Success(result)
	}
	return outputRunsText(f, result, opts.Leases)
}

func runStats(runs []ir.RunLogEntry) RunStats {
	s := RunStats{Runs: len(runs)}
	for _, r := range runs {
		s.Inserted += r.Inserted
		s.Updated += r.Updated
	}
	return s
}

func outputRunsText(f *OutputFormatter, result RunsResult, leases bool) error {
	w := f.Writer

	fmt.Fprintln(w, "=== Runs ===")
	if len(result.Runs) == 0 {
		fmt.Fprintln(w, "  (no runs)")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  EXECUTED AT\tPROCESS\tINSERTED\tUPDATED\tRUN ID")
		for _, r := range result.Runs {
			fmt.Fprintf(tw, "  %s\t%s\t%d\t%d\t%s\n", r.ExecutedAt, r.Process, r.Inserted, r.Updated, r.RunID)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d run(s): %d inserted, %d updated\n", result.Stats.Runs, result.Stats.Inserted, result.Stats.Updated)

	if !leases {
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Leases ===")
	if len(result.Leases) == 0 {
		fmt.Fprintln(w, "  (no leases)")
		return nil
	}
	for _, l := range result.Leases {
		fmt.Fprintf(w, "  %s held by %s until %s\n", l.Process, l.Holder, l.ExpiresAt)
	}
	return nil
}
