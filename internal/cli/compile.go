package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/txsched/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled design and its content hash.
type CompilationResult struct {
	Design ir.Design `json:"design"`
	Hash   string    `json:"hash"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <design-dir>",
		Short: "Compile a CUE design to canonical JSON",
		Long: `Compile a CUE design (methods, transactions, relations) to JSON.

The compiler parses the CUE package in the directory, checks its structure
and prints the design with its content hash. The hash identifies the design
in recorded runs.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, designDir string, cmd *cobra.Command) error {
	formatter := opts.newFormatter(cmd)

	loadResult, err := LoadDesign(designDir)
	if err != nil {
		return outputCompileError(formatter, designErrorCode(err), loadMessage(err), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, designDir)

	d := *loadResult.Design
	hash, err := ir.DesignHash(d)
	if err != nil {
		return outputCompileError(formatter, ErrCodeGeneric, fmt.Sprintf("hashing design: %v", err), nil)
	}
	result := &CompilationResult{Design: d, Hash: hash}

	// Write to file if --output specified
	if opts.Output != "" {
		if err := writeDesignToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	d := result.Design
	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled design %q: %d method(s), %d transaction(s), %d relation(s)\n\n",
		d.Name, len(d.Methods), len(d.Transactions), len(d.Relations))

	if len(d.Methods) > 0 {
		fmt.Fprintln(w, "Methods:")
		for _, m := range d.Methods {
			fmt.Fprintf(w, "  %s(%s) -> (%s)", m.Name, layoutString(m.Input), layoutString(m.Output))
			if len(m.Calls) > 0 {
				fmt.Fprintf(w, " calls %s", strings.Join(m.Calls, ", "))
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "Transactions:")
	for _, t := range d.Transactions {
		fmt.Fprintf(w, "  %s: calls [%s]\n", t.Name, strings.Join(t.Calls, ", "))
	}
	fmt.Fprintln(w)

	if len(d.Relations) > 0 {
		fmt.Fprintln(w, "Relations:")
		for _, r := range d.Relations {
			fmt.Fprintf(w, "  %s\n", relationString(r))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Hash: %s\n", result.Hash)
	if outputFile != "" {
		fmt.Fprintf(w, "Wrote design to %s\n", outputFile)
	}

	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// loadMessage renders an error without the code prefix a LoadError adds,
// keeping its source position.
func loadMessage(err error) string {
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		return err.Error()
	}
	if loadErr.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column(), loadErr.Message)
	}
	return loadErr.Message
}

// layoutString renders a field layout as "name type, ...".
func layoutString(fields []ir.Field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Name + " " + f.Type
	}
	return strings.Join(parts, ", ")
}

// relationString renders a relation the way it reads: "A > B" or "A >< B".
func relationString(r ir.RelationDecl) string {
	if r.Kind == ir.RelationPriority {
		return fmt.Sprintf("%s > %s", r.A, r.B)
	}
	return fmt.Sprintf("%s >< %s", r.A, r.B)
}

// writeDesignToFile writes the compilation result to a file as indented JSON.
func writeDesignToFile(result *CompilationResult, filename string) error {
	// Use standard JSON with indentation for readability
	// (canonical JSON without indentation is used only for hashing)
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling design: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
