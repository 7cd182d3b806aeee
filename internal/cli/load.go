package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pitwall/internal/compiler"
	"github.com/roach88/pitwall/internal/engine"
	"github.com/roach88/pitwall/internal/ir"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Database   string
	Source     string
	Entities   []string
	Skew       time.Duration
	Retries    int
	RetryDelay time.Duration
	Timeout    time.Duration
	Lease      bool
	LeaseTTL   time.Duration

	// Clock and RunIDs override the engine defaults (for testing).
	Clock  engine.Clock
	RunIDs engine.RunIDGenerator
}

// EntityReport is the per-entity line of a load summary.
type EntityReport struct {
	Entity   string   `json:"entity"`
	Kind     ir.Kind  `json:"kind"`
	Inserted int64    `json:"inserted"`
	Updated  int64    `json:"updated"`
	Attempts int      `json:"attempts"`
	Code     string   `json:"code,omitempty"`
	Error    string   `json:"error,omitempty"`
	Keys     []string `json:"keys,omitempty"`
}

// LoadSummary is the result of a load command.
type LoadSummary struct {
	Entities []EntityReport `json:"entities"`
	Loaded   int            `json:"loaded"`
	Failed   int            `json:"failed"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <catalog-dir>",
		Short: "Run an incremental load",
		Long: `Load every entity of a catalog (or the ones named with --entity) into
the warehouse. Dimensions load before facts and parents before the
entities that reference them.

A failing entity does not stop the others. Transient storage errors are
retried; integrity violations never are.

Exit codes:
  0 - every entity loaded
  1 - at least one entity failed
  2 - command error (bad catalog, database not found, etc.)

Examples:
  pitwall load --db dwh.db --source f1db.db ./warehouse/f1
  pitwall load --db dwh.db --source f1db.db --entity race --entity race_data ./warehouse/f1
  PITWALL_DB=dwh.db pitwall load --lease ./warehouse/f1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "warehouse SQLite database (default $"+EnvDatabase+")")
	cmd.Flags().StringVar(&opts.Source, "source", "", "source SQLite database attached as schema src (default $"+EnvSource+")")
	cmd.Flags().StringSliceVar(&opts.Entities, "entity", nil, "load only these entities (repeatable)")
	cmd.Flags().DurationVar(&opts.Skew, "skew", engine.DefaultSkew, "change-window overlap subtracted from the watermark")
	cmd.Flags().IntVar(&opts.Retries, "retries", 1, "retries of an entity after a transient storage error")
	cmd.Flags().DurationVar(&opts.RetryDelay, "retry-delay", 60*time.Second, "delay between retries")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", time.Hour, "bound on the whole run")
	cmd.Flags().BoolVar(&opts.Lease, "lease", false, "claim a per-entity lease so concurrent runs skip held entities")
	cmd.Flags().DurationVar(&opts.LeaseTTL, "lease-ttl", 2*time.Hour, "lease lifetime")

	return cmd
}

func runLoad(opts *LoadOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	entities, err := loadEntities(f, dir)
	if err != nil {
		return err
	}
	selected, err := engine.SelectEntities(entities, opts.Entities)
	if err != nil {
		_ = f.Error(string(engine.CodeOf(err)), err.Error(), nil)
		return WrapExitError(ExitCommandError, "select entities", err)
	}

	st, err := openStore(envDefault(opts.Database, EnvDatabase), envDefault(opts.Source, EnvSource))
	if err != nil {
		_ = f.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	logger := newLogger(opts.RootOptions, f)
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing warehouse", "error", closeErr)
		}
	}()

	engOpts := []engine.EngineOption{
		engine.WithSkew(opts.Skew),
		engine.WithLogger(logger),
		engine.WithRetry(opts.Retries, opts.RetryDelay),
	}
	if opts.Lease {
		engOpts = append(engOpts, engine.WithLease(opts.LeaseTTL))
	}
	if opts.Clock != nil {
		engOpts = append(engOpts, engine.WithClock(opts.Clock))
	}
	if opts.RunIDs != nil {
		engOpts = append(engOpts, engine.WithRunIDs(opts.RunIDs))
	}
	eng := engine.New(st, engOpts...)

	ctx, cancel := runContext(cmd, opts.Timeout)
	defer cancel()

	reports, err := eng.LoadAll(ctx, selected, nil)
	if err != nil {
		return outputPlanError(f, ExitCommandError, err)
	}

	summary := summarize(reports)
	return outputLoadSummary(f, summary)
}

// runContext derives the run context from the command: cancelled on
// SIGINT/SIGTERM and after timeout (0 disables the bound).
func runContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// outputPlanError reports a BuildPlan failure under its validation code.
func outputPlanError(f *OutputFormatter, exitCode int, err error) error {
	_ = f.Error(compiler.PlanErrorCode(err), err.Error(), nil)
	return WrapExitError(exitCode, "build load plan", err)
}

func summarize(reports []engine.Report) LoadSummary {
	s := LoadSummary{Entities: make([]EntityReport, 0, len(reports))}
	for _, r := range reports {
		er := EntityReport{
			Entity:   r.Entity,
			Kind:     r.Kind,
			Inserted: r.Inserted,
			Updated:  r.Updated,
			Attempts: r.Attempts,
		}
		if r.Failed() {
			s.Failed++
			er.Code = string(engine.CodeOf(r.Err))
			er.Error = r.Err.Error()
			if le, ok := asLoadError(r.Err); ok {
				er.Keys = le.Keys
			}
		} else {
			s.Loaded++
		}
		s.Entities = append(s.Entities, er)
	}
	return s
}

func outputLoadSummary(f *OutputFormatter, s LoadSummary) error {
	var exitErr error
	if s.Failed > 0 {
		exitErr = NewExitError(ExitFailure, fmt.Sprintf("%d of %d entities failed", s.Failed, len(s.Entities)))
	}

	if f.JSON() {
		if exitErr != nil {
			if err := f.Failure(firstFailureCode(s), exitErr.Error(), s); err != nil {
				return err
			}
			return exitErr
		}
		return f.Success(s)
	}

	for _, e := range s.Entities {
		if e.Error != "" {
			fmt.Fprintf(f.Writer, "✗ %s: %s\n", e.Entity, e.Error)
			continue
		}
		fmt.Fprintf(f.Writer, "✓ %s: %d inserted, %d updated\n", e.Entity, e.Inserted, e.Updated)
	}
	fmt.Fprintln(f.Writer)
	fmt.Fprintf(f.Writer, "Load Summary: %d loaded, %d failed, %d total\n", s.Loaded, s.Failed, len(s.Entities))
	return exitErr
}

func firstFailureCode(s LoadSummary) string {
	for _, e := range s.Entities {
		if e.Code != "" {
			return e.Code
		}
	}
	return "LOAD_FAILED"
}

func asLoadError(err error) (*engine.LoadError, bool) {
	var le *engine.LoadError
	ok := errors.As(err, &le)
	return le, ok
}
