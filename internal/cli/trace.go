package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/txsched/internal/graph"
	"github.com/roach88/txsched/internal/ir"
	"github.com/roach88/txsched/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database   string
	Cycle      int64 // optional - show a single cycle
	Mermaid    bool  // render the graph with the cycle's firing set
	Unfinished bool  // list only runs that never ended
}

// TraceResult holds a single run's trace output.
type TraceResult struct {
	Run    ir.Run           `json:"run"`
	Cycles []ir.CycleRecord `json:"cycles"`
	Stats  TraceStats       `json:"stats"`
}

// TraceStats holds summary statistics for a trace.
type TraceStats struct {
	Cycles      int            `json:"cycles"`
	Fires       map[string]int `json:"fires"`
	Blocked     map[string]int `json:"blocked"`
	MethodCalls int            `json:"method_calls"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Show recorded runs",
		Long: `Show a recorded simulation run.

Without a run ID, lists every run in the database. With one, prints each
cycle's ready set, firing set and multiplexed method calls, followed by
per-transaction fire and blocked counts.

Examples:
  txsched trace --db ./runs.db
  txsched trace --db ./runs.db --unfinished
  txsched trace --db ./runs.db 0192f7c4-... --cycle 3
  txsched trace --db ./runs.db 0192f7c4-... --cycle 3 --mermaid`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runListRuns(opts, cmd)
			}
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().Int64Var(&opts.Cycle, "cycle", 0, "show only this cycle")
	cmd.Flags().BoolVar(&opts.Mermaid, "mermaid", false, "render the conflict graph highlighting the cycle's firing set (requires --cycle)")
	cmd.Flags().BoolVar(&opts.Unfinished, "unfinished", false, "list only runs that never ended")

	return cmd
}

// openExisting opens a database that must already exist.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// readTrace loads a run, mapping a missing run to a command error.
func readTrace(ctx context.Context, st *store.Store, runID string) (store.Trace, error) {
	tr, err := st.ReadTrace(ctx, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Trace{}, WrapExitError(ExitCommandError, fmt.Sprintf("run not found: %s", runID), err)
	}
	if err != nil {
		return store.Trace{}, WrapExitError(ExitCommandError, "failed to read run", err)
	}
	return tr, nil
}

func runListRuns(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var runs []ir.Run
	if opts.Unfinished {
		runs, err = st.FindUnfinishedRuns(ctx)
	} else {
		runs, err = st.ListRuns(ctx)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		return opts.newFormatter(cmd).JSON(runs, "")
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found")
		return nil
	}
	for _, run := range runs {
		status := "finished"
		if !run.Finished {
			status = "unfinished"
		}
		fmt.Fprintf(w, "%s  %-20s %6d cycle(s)  %s\n", run.ID, run.DesignName, run.Cycles, status)
	}
	return nil
}

func runTrace(opts *TraceOptions, runID string, cmd *cobra.Command) error {
	ctx := context.Background()

	if opts.Mermaid && opts.Cycle == 0 {
		return NewExitError(ExitCommandError, "--mermaid requires --cycle")
	}

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	tr, err := readTrace(ctx, st, runID)
	if err != nil {
		return err
	}

	cycles := tr.Cycles
	if opts.Cycle != 0 {
		i := slices.IndexFunc(cycles, func(rec ir.CycleRecord) bool { return rec.Cycle == opts.Cycle })
		if i < 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("cycle %d not recorded in run %s", opts.Cycle, runID))
		}
		cycles = cycles[i : i+1]
	}

	if opts.Mermaid {
		g, err := graph.FromDesign(tr.Design)
		if err != nil {
			return WrapExitError(ExitFailure, "stored design no longer builds", err)
		}
		rec := cycles[0]
		overlay := &graph.MermaidOverlay{Fired: rec.Fired, Blocked: blockedOf(rec)}
		fmt.Fprint(cmd.OutOrStdout(), g.Mermaid(overlay))
		return nil
	}

	result := TraceResult{
		Run:    tr.Run,
		Cycles: cycles,
		Stats:  traceStats(cycles),
	}

	if opts.Format == "json" {
		return opts.newFormatter(cmd).JSON(result, runID)
	}
	outputTraceText(cmd.OutOrStdout(), result)
	return nil
}

// blockedOf lists the transactions that were ready but did not fire.
func blockedOf(rec ir.CycleRecord) []string {
	out := make([]string, 0)
	for _, name := range rec.Ready {
		if !slices.Contains(rec.Fired, name) {
			out = append(out, name)
		}
	}
	return out
}

func traceStats(cycles []ir.CycleRecord) TraceStats {
	stats := TraceStats{
		Cycles:  len(cycles),
		Fires:   make(map[string]int),
		Blocked: make(map[string]int),
	}
	for _, rec := range cycles {
		for _, name := range rec.Fired {
			stats.Fires[name]++
		}
		for _, name := range blockedOf(rec) {
			stats.Blocked[name]++
		}
		stats.MethodCalls += len(rec.Calls)
	}
	return stats
}

func outputTraceText(w io.Writer, result TraceResult) {
	run := result.Run
	fmt.Fprintf(w, "Run: %s\n", run.ID)
	fmt.Fprintf(w, "Design: %s (%s)\n", run.DesignName, run.DesignHash)
	fmt.Fprintf(w, "Scheduler: %s\n", run.SchedulerVersion)
	if !run.Finished {
		fmt.Fprintln(w, "Status: unfinished")
	}
	fmt.Fprintln(w)

	for _, rec := range result.Cycles {
		fmt.Fprintf(w, "[cycle %d] ready [%s]\n", rec.Cycle, strings.Join(rec.Ready, ", "))
		fmt.Fprintf(w, "  fired [%s]\n", strings.Join(rec.Fired, ", "))
		for _, call := range rec.Calls {
			fmt.Fprintf(w, "  %s.%s(%s) -> %s\n", call.Caller, call.Method, recordString(call.Args), recordString(call.Result))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Summary: %d cycle(s), %d method call(s)\n", result.Stats.Cycles, result.Stats.MethodCalls)
	for _, name := range sortedKeys(result.Stats.Fires, result.Stats.Blocked) {
		fmt.Fprintf(w, "  %s: fired %d, blocked %d\n", name, result.Stats.Fires[name], result.Stats.Blocked[name])
	}
}

// recordString renders a record as canonical JSON.
func recordString(r ir.Record) string {
	if r == nil {
		r = ir.Record{}
	}
	data, err := ir.MarshalCanonical(r)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

// sortedKeys returns the union of the maps' keys, sorted.
func sortedKeys(maps ...map[string]int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range maps {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	slices.Sort(out)
	return out
}
