package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/pitwall/internal/ir"
	"github.com/roach88/pitwall/internal/queryir"
	"github.com/roach88/pitwall/internal/querysql"
	"github.com/roach88/pitwall/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
	SQL    bool   // print the extraction SQL of each entity
}

// CompiledEntity is one entity descriptor with its full-reload extraction
// statement.
type CompiledEntity struct {
	Entity     ir.Entity `json:"entity"`
	ExtractSQL string    `json:"extract_sql"`
}

// CompilationResult holds the compiled catalog.
type CompilationResult struct {
	Entities []CompiledEntity `json:"entities"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <catalog-dir>",
		Short: "Compile a catalog to entity descriptors and SQL",
		Long: `Compile and validate the CUE entity catalog, then print every entity
descriptor together with the extraction statement the engine runs for
it. Source tables are qualified with the attached source schema.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the compiled catalog as JSON to this file")
	cmd.Flags().BoolVar(&opts.SQL, "sql", false, "print extraction SQL in text output")

	return cmd
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	entities, err := loadEntities(f, dir)
	if err != nil {
		return err
	}

	result, err := compileEntities(entities)
	if err != nil {
		return WrapExitError(ExitCommandError, "compile extraction", err)
	}

	if opts.Output != "" {
		if err := writeCompiled(result, opts.Output); err != nil {
			_ = f.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "write output", err)
		}
		f.VerboseLog("Wrote compiled catalog to %s", opts.Output)
	}

	if f.JSON() {
		return f.Success(result)
	}

	fmt.Fprintf(f.Writer, "✓ Compiled %d entities\n\n", len(result.Entities))
	for _, c := range result.Entities {
		e := c.Entity
		fmt.Fprintf(f.Writer, "  %s: %s %s -> %s, key %v, %d attribute(s)\n",
			e.Name, e.Policy, e.Kind, e.Target, e.Key, len(e.Attributes))
		if opts.SQL {
			fmt.Fprintf(f.Writer, "\n%s\n\n", c.ExtractSQL)
		}
	}
	if opts.Output != "" {
		fmt.Fprintf(f.Writer, "\nWrote compiled catalog to %s\n", opts.Output)
	}
	return nil
}

// compileEntities renders the extraction of every entity as a full reload
// (window start at the epoch).
func compileEntities(entities []ir.Entity) (*CompilationResult, error) {
	c := querysql.NewSQLCompiler(store.SourceSchema)
	since := ir.FormatTime(ir.Epoch)

	result := &CompilationResult{Entities: make([]CompiledEntity, 0, len(entities))}
	for i := range entities {
		e := &entities[i]
		query, _, err := c.Compile(queryir.ForEntity(e, since))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name, err)
		}
		result.Entities = append(result.Entities, CompiledEntity{Entity: *e, ExtractSQL: query})
	}
	return result, nil
}

func writeCompiled(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling catalog: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
