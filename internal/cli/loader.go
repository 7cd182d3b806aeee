package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/pitwall/internal/compiler"
	"github.com/roach88/pitwall/internal/ir"
	"github.com/roach88/pitwall/internal/store"
)

// CLI error codes, continuing the catalog load codes of the compiler.
const (
	ErrCodeStore       = "E008" // warehouse or source database could not be opened
	ErrCodeWriteFailed = "E009" // output file could not be written
)

// loadEntities compiles and validates the catalog in dir. Any load or
// validation problem is reported through f and returned as an ExitError.
func loadEntities(f *OutputFormatter, dir string) ([]ir.Entity, error) {
	cat, errs := compiler.LoadCatalog(dir, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		code, message := describeLoadError(errs[0])
		_ = f.Error(code, message, nil)
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
	}
	f.VerboseLog("Compiled %d entities from %d CUE file(s) in %s", len(cat.Entities), cat.FileCount, dir)

	if verrs := compiler.ValidateCatalog(cat.Entities); len(verrs) > 0 {
		return nil, outputValidationErrors(f, verrs)
	}
	return cat.Entities, nil
}

// describeLoadError splits a catalog load error into code and message.
func describeLoadError(err error) (string, string) {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		if loadErr.Pos.IsValid() {
			return loadErr.Code, fmt.Sprintf("%s:%d:%d: %s", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column(), loadErr.Message)
		}
		return loadErr.Code, loadErr.Message
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return compiler.MapFieldToErrorCode(compileErr.Field), compileErr.Error()
	}
	return compiler.ErrCodeGeneric, err.Error()
}

// openStore opens the warehouse at db, attaching source when given.
func openStore(db, source string) (*store.Store, error) {
	if db == "" {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("no warehouse database: pass --db or set %s", EnvDatabase))
	}

	var opts []store.Option
	if source != "" {
		if _, err := os.Stat(source); err != nil {
			return nil, WrapExitError(ExitCommandError, "source database", err)
		}
		opts = append(opts, store.WithSource(source))
	}

	st, err := store.Open(db, opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open warehouse", err)
	}
	return st, nil
}
