package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pitwall/internal/compiler"
	"github.com/roach88/pitwall/internal/ir"
)

// WatermarkOptions holds flags shared by the watermark subcommands.
type WatermarkOptions struct {
	*RootOptions
	Database string
}

// WatermarkResult is the output of the watermark subcommands.
type WatermarkResult struct {
	Process string `json:"process"`
	LastRun string `json:"last_run"`
	Never   bool   `json:"never,omitempty"` // no successful run yet
}

// NewWatermarkCommand creates the watermark command group.
func NewWatermarkCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatermarkOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watermark",
		Short: "Inspect or move process watermarks",
		Long: `A watermark is the start time of a process's last successful load.
The next load re-reads source records modified after the watermark minus
the skew. Moving a watermark back forces records to be re-extracted.`,
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "warehouse SQLite database (default $"+EnvDatabase+")")

	cmd.AddCommand(&cobra.Command{
		Use:           "get [process]",
		Short:         "Show one watermark, or all of them",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatermarkGet(opts, args, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <process> <time>",
		Short: "Overwrite a watermark",
		Long: `Overwrite the watermark of a process. The time is RFC 3339
(2024-03-01T12:00:00Z), the warehouse format (2024-03-01 12:00:00) or
"epoch" to force a full reload.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatermarkSet(opts, args[0], args[1], cmd)
		},
	})

	return cmd
}

func runWatermarkGet(opts *WatermarkOptions, args []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := commandContext(cmd)

	st, err := openStore(envDefault(opts.Database, EnvDatabase), "")
	if err != nil {
		_ = f.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	defer st.Close()

	var results []WatermarkResult
	if len(args) == 1 {
		ts, err := st.GetWatermark(ctx, args[0])
		if err != nil {
			return WrapExitError(ExitCommandError, "get watermark", err)
		}
		results = append(results, watermarkResult(args[0], ts))
	} else {
		all, err := st.Watermarks(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "list watermarks", err)
		}
		for _, w := range all {
			results = append(results, WatermarkResult{Process: w.Process, LastRun: w.LastRun})
		}
	}

	if f.JSON() {
		if len(args) == 1 {
			return f.Success(results[0])
		}
		if results == nil {
			results = []WatermarkResult{}
		}
		return f.Success(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(f.Writer, "(no watermarks)")
		return nil
	}
	for _, r := range results {
		if r.Never {
			fmt.Fprintf(f.Writer, "%s: never loaded\n", r.Process)
			continue
		}
		fmt.Fprintf(f.Writer, "%s: %s\n", r.Process, r.LastRun)
	}
	return nil
}

func runWatermarkSet(opts *WatermarkOptions, process, value string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := commandContext(cmd)

	ts, err := parseWatermark(value)
	if err != nil {
		_ = f.Error(compiler.ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "parse watermark", err)
	}

	st, err := openStore(envDefault(opts.Database, EnvDatabase), "")
	if err != nil {
		_ = f.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	defer st.Close()

	if err := st.SetWatermark(ctx, process, ts); err != nil {
		return WrapExitError(ExitCommandError, "set watermark", err)
	}

	result := watermarkResult(process, ts)
	if f.JSON() {
		return f.Success(result)
	}
	fmt.Fprintf(f.Writer, "✓ %s watermark set to %s\n", process, result.LastRun)
	return nil
}

// parseWatermark accepts "epoch", RFC 3339 or the warehouse time format.
func parseWatermark(s string) (time.Time, error) {
	if s == "epoch" {
		return ir.Epoch, nil
	}
	ts, err := ir.ParseTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid watermark %q: want RFC 3339, YYYY-MM-DD HH:MM:SS or epoch", s)
	}
	return ts, nil
}

func watermarkResult(process string, ts time.Time) WatermarkResult {
	return WatermarkResult{
		Process: process,
		LastRun: ir.FormatTime(ts),
		Never:   ts.Equal(ir.Epoch),
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
