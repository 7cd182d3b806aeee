package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pitwall/internal/compiler"
	"github.com/roach88/pitwall/internal/engine"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Entities []string
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <catalog-dir>",
		Short: "Show the load order of a catalog",
		Long: `Print the phases a load runs in and the entity order within each
phase. Dimensions come before facts; a referenced entity always comes
before the entities referencing it.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Entities, "entity", nil, "plan only these entities (repeatable)")

	return cmd
}

func runPlan(opts *PlanOptions, dir string, cmd *cobra.Command) error {
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

	plan, err := compiler.BuildPlan(selected, nil)
	if err != nil {
		return outputPlanError(f, ExitFailure, err)
	}

	if f.JSON() {
		return f.Success(plan)
	}

	step := 1
	for _, phase := range plan.Phases {
		if len(phase.Entities) == 0 {
			continue
		}
		fmt.Fprintf(f.Writer, "%s:\n", strings.ToUpper(string(phase.Kind)))
		for _, name := range phase.Entities {
			fmt.Fprintf(f.Writer, "  %2d. %s\n", step, name)
			step++
		}
	}
	return nil
}
