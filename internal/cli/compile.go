package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/modeseq/internal/compiler"
	"github.com/roach88/modeseq/internal/fsm"
	"github.com/roach88/modeseq/internal/trace"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledTable is one compiled table with its content hash.
type CompiledTable struct {
	Name   string `json:"name"`
	Hash   string `json:"hash"`
	States int    `json:"states"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <tables-dir>",
		Short: "Compile CUE mode tables to canonical JSON",
		Long: `Compile CUE mode tables to their canonical JSON form.

The output lists every table with explicit transition names and its
content hash, the same hash recorded with each run.

Examples:
  modeseq compile ./tables
  modeseq compile ./tables -o tables.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadTables(dir, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		code, message := errorCode(loadErrors[0])
		return outputCompileError(formatter, code, message)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, dir)

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	compiled := make([]CompiledTable, 0, len(loadResult.Tables))
	for _, t := range loadResult.Tables {
		formatter.VerboseLog("Compiled table: %s", t.Name())
		compiled = append(compiled, CompiledTable{
			Name:   t.Name(),
			Hash:   trace.MustTableHash(t),
			States: len(t.States()),
		})
	}

	if opts.Output != "" {
		if err := writeTablesToFile(loadResult.Tables, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	if opts.Format == "json" {
		return formatter.Success(compiled)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d table(s)\n\n", len(compiled))
	for _, c := range compiled {
		fmt.Fprintf(w, "  %s: %d state(s), %s\n", c.Name, c.States, c.Hash)
	}
	if opts.Output != "" {
		fmt.Fprintf(w, "\nWrote canonical tables to %s\n", opts.Output)
	}
	return nil
}

// writeTablesToFile writes the canonical JSON of every table to path.
func writeTablesToFile(tables []*fsm.Table, path string) error {
	arr := make([]any, len(tables))
	for i, t := range tables {
		obj := trace.DefinitionMap(t.Definition())
		obj["hash"] = trace.MustTableHash(t)
		arr[i] = obj
	}
	data, err := trace.MarshalCanonical(map[string]any{"tables": arr})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// errorCode returns the code and message of a load or validation error.
func errorCode(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Error()
	}
	var ve compiler.ValidationError
	if errors.As(err, &ve) {
		return ve.Code, ve.Error()
	}
	return ErrCodeGeneric, err.Error()
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	cliErrors := make([]CLIError, len(errs))
	for i, err := range errs {
		code, message := errorCode(err)
		cliErrors[i] = CLIError{Code: code, Message: message}
	}

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}
		if err := writeIndentedJSON(formatter.Writer, response); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "✗ Compilation failed with %d error(s)\n\n", len(errs))
		for _, e := range cliErrors {
			fmt.Fprintf(formatter.Writer, "  %s\n", e.Message)
		}
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}
