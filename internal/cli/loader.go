package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/modeseq/internal/compiler"
	"github.com/roach88/modeseq/internal/fsm"
)

// LoadMode controls how errors are handled during table loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the results of loading tables from a directory.
type LoadResult struct {
	Definitions []fsm.Definition // every table that parsed, valid or not
	Tables      []*fsm.Table     // the tables that also compiled
	CUEValue    cue.Value        // The raw CUE value for additional processing
	FileCount   int              // Number of CUE files found
}

// Table returns the compiled table with the given name.
func (r *LoadResult) Table(name string) (*fsm.Table, bool) {
	for _, t := range r.Tables {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// LoadError represents an error that occurred during table loading.
type LoadError struct {
	Code    string
	Table   string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	prefix := e.Code
	if e.Table != "" {
		prefix = fmt.Sprintf("%s: table %s", e.Code, e.Table)
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), prefix, e.Message)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// LoadTables loads, parses and compiles every table of the CUE package in
// dir. A table that parses but fails validation contributes one
// compiler.ValidationError per problem.
// If mode is LoadModeFailFast, returns after the first failing table.
// If mode is LoadModeCollectAll, collects all errors.
func LoadTables(dir string, mode LoadMode) (*LoadResult, []error) {
	var errs []error

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("tables directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing tables directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{
		CUEValue:  value,
		FileCount: len(cueFiles),
	}

	tablesVal := value.LookupPath(cue.ParsePath("table"))
	if !tablesVal.Exists() {
		return result, []error{&LoadError{Code: ErrCodeNoTables, Message: "no tables found: expected a top-level table struct"}}
	}

	iter, err := tablesVal.Fields()
	if err != nil {
		return result, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating tables: %v", err)}}
	}

	for iter.Next() {
		label := iter.Label()

		def, compileErr := compiler.CompileTable(iter.Value())
		if compileErr != nil {
			errs = append(errs, convertCompileError(compileErr, label))
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		if def.Name == "" {
			def.Name = label
		}
		result.Definitions = append(result.Definitions, *def)

		if verrs := compiler.Validate(*def); len(verrs) > 0 {
			line := lineOf(iter.Value().Pos())
			for _, ve := range verrs {
				if ve.Line == 0 {
					ve.Line = line
				}
				errs = append(errs, ve)
			}
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}

		t, err := fsm.Compile(*def)
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeGeneric, Table: def.Name, Message: err.Error()})
			continue
		}
		result.Tables = append(result.Tables, t)
	}

	if len(result.Definitions) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoTables, Message: "no tables found in table struct"})
	}

	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, table string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Table:   table,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Table:   table,
		Message: err.Error(),
	}
}

// lineOf extracts the line number from a token.Pos.
func lineOf(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// Error code constants - unified across all CLI commands. Table validation
// codes (E100-E199) come from the compiler package.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeNoTables    = "E008" // No table struct or an empty one
	ErrCodeParse       = "E009" // Table struct has the wrong shape
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "inputs", "outputs":
		return compiler.ErrInvalidSignal
	case "initial":
		return compiler.ErrInvalidInitial
	case "states":
		return compiler.ErrNoStates
	case "cue":
		return ErrCodeBuildFailed
	default:
		return ErrCodeParse
	}
}
