package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/txsched/internal/compiler"
	"github.com/roach88/txsched/internal/graph"
	"github.com/roach88/txsched/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []string                   `json:"warnings,omitempty"`
	Order    []string                   `json:"order,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <design-dir>",
		Short: "Check a design without simulating it",
		Long: `Check a CUE design for structural and scheduling errors.

Reports every schema problem (names, layouts, unknown calls, relation
kinds), then builds the conflict graph to catch method call cycles,
priority cycles and self-contradictory transactions. Methods no
transaction reaches are reported as warnings.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, designDir string, cmd *cobra.Command) error {
	formatter := opts.newFormatter(cmd)

	loadResult, err := LoadDesign(designDir)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) && isCommandError(loadErr.Code) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		// The CUE parsed but does not describe a design.
		return outputValidationErrors(formatter, ValidationResult{
			Errors: []compiler.ValidationError{loadValidationError(err)},
		})
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, designDir)

	result := validateDesign(loadResult.Design, formatter)
	if len(result.Errors) > 0 {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// validateDesign runs the schema checks, then the graph build when the
// schema is clean.
func validateDesign(d *ir.Design, formatter *OutputFormatter) ValidationResult {
	result := ValidationResult{Errors: compiler.Validate(d)}
	if len(result.Errors) > 0 {
		return result
	}

	formatter.VerboseLog("Building conflict graph: %d method(s), %d transaction(s)", len(d.Methods), len(d.Transactions))
	g, err := graph.FromDesign(*d)
	if err != nil {
		result.Errors = append(result.Errors, graphValidationError(err))
		return result
	}

	for _, diag := range g.Diagnostics() {
		result.Warnings = append(result.Warnings, diag.Error())
	}
	for _, tx := range g.Order() {
		result.Order = append(result.Order, g.TransactionName(tx))
	}
	result.Valid = true
	return result
}

// isCommandError reports whether a load error code means the design could
// not be read at all, as opposed to read but rejected.
func isCommandError(code string) bool {
	switch code {
	case ErrCodeScanError, ErrCodeNoFiles, ErrCodeLoadFailed, ErrCodeNotFound:
		return true
	default:
		return false
	}
}

// loadValidationError converts a load error to a validation error.
func loadValidationError(err error) compiler.ValidationError {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return compiler.ValidationError{
			Field:   "load",
			Message: loadErr.Message,
			Code:    loadErr.Code,
			Line:    lineOf(loadErr),
		}
	}
	return compiler.ValidationError{Field: "load", Message: err.Error(), Code: ErrCodeGeneric}
}

// graphValidationError converts a graph build error to a validation error.
func graphValidationError(err error) compiler.ValidationError {
	return compiler.ValidationError{
		Field:   "graph",
		Message: err.Error(),
		Code:    designErrorCode(err),
	}
}

// lineOf extracts the line number of a load error, or 0.
func lineOf(e *LoadError) int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✓ Design valid")
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Unreadable designs are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every validation error.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
