package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/txsched/internal/graph"
)

// GraphOptions holds flags for the graph command.
type GraphOptions struct {
	*RootOptions
	Mermaid bool
}

// GraphResult describes a finalized conflict graph.
type GraphResult struct {
	Design     string       `json:"design"`
	Order      []string     `json:"order"`
	Components [][]string   `json:"components"`
	Edges      []graph.Edge `json:"edges"`
	Warnings   []string     `json:"warnings,omitempty"`
	Mermaid    string       `json:"mermaid,omitempty"`
}

// NewGraphCommand creates the graph command.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GraphOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "graph <design-dir>",
		Short: "Show the conflict graph of a design",
		Long: `Build the conflict graph of a design and print it.

Shows the canonical order the arbiter walks each cycle, the connected
components of the exclusivity graph and every inferred edge with its
reason. With --mermaid, prints a Mermaid flowchart instead.

Examples:
  txsched graph ./designs/fetch
  txsched graph ./designs/fetch --mermaid > fetch.mmd`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Mermaid, "mermaid", false, "render as a Mermaid flowchart")

	return cmd
}

func runGraph(opts *GraphOptions, designDir string, cmd *cobra.Command) error {
	formatter := opts.newFormatter(cmd)

	d, g, err := loadGraph(designDir)
	if err != nil {
		code := designErrorCode(err)
		_ = formatter.Error(code, loadMessage(err), nil)
		if d == nil {
			return WrapExitError(ExitCommandError, "failed to load design", err)
		}
		return WrapExitError(ExitFailure, "failed to build conflict graph", err)
	}

	result := GraphResult{
		Design:     d.Name,
		Order:      names(g, g.Order()),
		Components: make([][]string, 0),
		Edges:      g.Edges(),
	}
	for _, c := range g.Components() {
		result.Components = append(result.Components, names(g, c))
	}
	for _, diag := range g.Diagnostics() {
		result.Warnings = append(result.Warnings, diag.Error())
	}
	if opts.Mermaid {
		result.Mermaid = g.Mermaid(nil)
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	if opts.Mermaid {
		fmt.Fprint(cmd.OutOrStdout(), result.Mermaid)
		return nil
	}
	outputGraphText(cmd, result)
	return nil
}

// names maps transaction indices to names.
func names(g *graph.ConflictGraph, txs []int) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = g.TransactionName(tx)
	}
	return out
}

func outputGraphText(cmd *cobra.Command, result GraphResult) {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Design: %s\n\n", result.Design)

	fmt.Fprintln(w, "Canonical order:")
	for i, name := range result.Order {
		fmt.Fprintf(w, "  %d. %s\n", i+1, name)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Components (%d):\n", len(result.Components))
	for _, c := range result.Components {
		fmt.Fprintf(w, "  {%s}\n", strings.Join(c, ", "))
	}

	if len(result.Edges) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Edges:")
		for _, e := range result.Edges {
			switch e.Kind {
			case graph.EdgePriority:
				fmt.Fprintf(w, "  %s > %s\n", e.A, e.B)
			default:
				fmt.Fprintf(w, "  %s >< %s (%s)\n", e.A, e.B, e.Reason)
			}
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintln(w)
		for _, warning := range result.Warnings {
			fmt.Fprintf(w, "warning: %s\n", warning)
		}
	}
}
