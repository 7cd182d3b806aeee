package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pitwall/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Entities int                        `json:"entities"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <catalog-dir>",
		Short: "Validate an entity catalog",
		Long: `Compile the CUE entity catalog in a directory and check every entity
and the references between them: keys, hash subsets, attribute types,
join kinds, parent references and dependency cycles.

Every problem is reported, not just the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cat, loadErrs := compiler.LoadCatalog(dir, compiler.LoadModeCollectAll)
	if cat == nil {
		code, message := describeLoadError(loadErrs[0])
		_ = f.Error(code, message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
	}
	f.VerboseLog("Found %d CUE file(s) in %s", cat.FileCount, dir)

	var verrs []compiler.ValidationError
	for _, err := range loadErrs {
		code, message := describeLoadError(err)
		verrs = append(verrs, compiler.ValidationError{Field: "load", Message: message, Code: code})
	}
	for _, e := range cat.Entities {
		f.VerboseLog("Validating entity: %s", e.Name)
	}
	verrs = append(verrs, compiler.ValidateCatalog(cat.Entities)...)

	if len(verrs) > 0 {
		return outputValidationErrors(f, verrs)
	}

	if f.JSON() {
		return f.Success(ValidationResult{Valid: true, Entities: len(cat.Entities)})
	}
	fmt.Fprintf(f.Writer, "✓ %d entities valid\n", len(cat.Entities))
	return nil
}

// outputValidationErrors reports every validation error. Validation
// failures exit with ExitFailure.
func outputValidationErrors(f *OutputFormatter, errs []compiler.ValidationError) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if f.JSON() {
		if err := f.Failure(errs[0].Code, errs[0].Message, ValidationResult{Valid: false, Errors: errs}); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(f.Writer, "✗ Validation failed")
	fmt.Fprintln(f.Writer)
	for _, err := range errs {
		fmt.Fprintf(f.Writer, "  %s\n", err.Error())
	}
	return exitErr
}
