package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/modeseq/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Tables []string                   `json:"tables,omitempty"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <tables-dir>",
		Short: "Validate CUE mode tables",
		Long: `Validate the CUE mode tables in a directory.

Checks CUE syntax, the shape of each table, and every structural rule:
complete actions, tracked guard inputs, known targets, unique names.
Each problem carries a stable error code (E100-E113).

Exit codes:
  0 - All tables valid
  1 - One or more tables invalid
  2 - Command error (directory not found, no CUE files, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadTables(dir, LoadModeCollectAll)

	// Handle load errors (directory not found, no files, etc.)
	if loadResult == nil && len(loadErrors) > 0 {
		code, message := errorCode(loadErrors[0])
		return outputValidateError(formatter, code, message, nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, dir)
	for _, def := range loadResult.Definitions {
		formatter.VerboseLog("Validating table: %s", def.Name)
	}

	validationErrors := toValidationErrors(loadErrors)
	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	names := make([]string, 0, len(loadResult.Tables))
	for _, t := range loadResult.Tables {
		names = append(names, t.Name())
	}
	return outputValidateSuccess(formatter, names)
}

// toValidationErrors converts load errors into validation errors.
func toValidationErrors(errs []error) []compiler.ValidationError {
	out := make([]compiler.ValidationError, 0, len(errs))
	for _, err := range errs {
		var ve compiler.ValidationError
		if errors.As(err, &ve) {
			out = append(out, ve)
			continue
		}
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			out = append(out, compiler.ValidationError{
				Table:   loadErr.Table,
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    lineOf(loadErr.Pos),
			})
			continue
		}
		out = append(out, compiler.ValidationError{
			Field:   "load",
			Message: err.Error(),
			Code:    ErrCodeGeneric,
		})
	}
	return out
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, tables []string) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Tables: tables})
	}

	fmt.Fprintf(formatter.Writer, "✓ All tables valid (%d)\n", len(tables))
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:  false,
				Errors: errs,
			},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := writeIndentedJSON(formatter.Writer, response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Table != "" {
			fmt.Fprintf(formatter.Writer, "table %s", err.Table)
			if err.Line > 0 {
				fmt.Fprintf(formatter.Writer, " (line %d)", err.Line)
			}
			fmt.Fprintln(formatter.Writer)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

// ValidateTablesDir validates all tables in a directory.
// This is a helper function for external callers.
func ValidateTablesDir(dir string) ([]compiler.ValidationError, error) {
	loadResult, loadErrors := LoadTables(dir, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}
	return toValidationErrors(loadErrors), nil
}
