package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/roach88/pitwall/internal/ir"
)

// Environment variables consulted when the matching flag is not set.
const (
	EnvDatabase = "PITWALL_DB"
	EnvSource   = "PITWALL_SOURCE"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	EnvFile string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the pitwall CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "pitwall",
		Short:   "pitwall - incremental warehouse loads",
		Version: ir.EngineVersion,
		Long: `Incremental loads of dimension and fact tables into a SQLite warehouse.

Entities are declared in CUE. Each load reads the source records changed
since the entity's last successful run, guards immutable rows, merges the
rest and advances the watermark in one transaction.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return loadEnvFile(opts.EnvFile, cmd.Flags().Changed("env-file"))
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "file of KEY=value defaults for PITWALL_* variables")

	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewWatermarkCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// loadEnvFile applies path to the environment without overriding
// variables that are already set. A missing default file is ignored; a
// missing file named explicitly is an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("load env file %s", path), err)
	}
	return nil
}

// envDefault returns value, or the environment variable key when value is
// empty.
func envDefault(value, key string) string {
	if value != "" {
		return value
	}
	return os.Getenv(key)
}

// newLogger builds the structured logger for engine output. Logs always go
// to the formatter's diagnostic writer so JSON results stay parseable.
func newLogger(opts *RootOptions, f *OutputFormatter) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if opts.Format == "json" {
		return slog.New(slog.NewJSONHandler(f.GetErrWriter(), hopts))
	}
	return slog.New(slog.NewTextHandler(f.GetErrWriter(), hopts))
}
