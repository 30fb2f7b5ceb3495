package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/txsched/internal/engine"
	"github.com/roach88/txsched/internal/graph"
	"github.com/roach88/txsched/internal/ir"
	"github.com/roach88/txsched/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayRunResult holds the replay result for a single run.
type ReplayRunResult struct {
	RunID         string              `json:"run_id"`
	Design        string              `json:"design"`
	Cycles        int                 `json:"cycles"`
	Deterministic bool                `json:"deterministic"`
	HashMismatch  bool                `json:"hash_mismatch,omitempty"`
	Corrupted     []int64             `json:"corrupted,omitempty"` // cycles whose stored digest no longer matches
	Divergences   []engine.Divergence `json:"divergences,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs             []ReplayRunResult `json:"runs"`
	TotalRuns        int               `json:"total_runs"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [run-id]",
		Short: "Re-arbitrate recorded runs and verify determinism",
		Long: `Re-arbitrate the recorded ready sets of a run and compare the result
with the recorded firing sets.

Arbitration is a pure function of the design and the ready set, so a
faithful trace replays exactly. Replay also checks the design hash and
each cycle's stored digest, and verifies that every recorded firing set
is exclusive, single-caller and maximal.

Exit codes:
  0 - All runs are deterministic
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, etc.)

Examples:
  txsched replay --db ./runs.db
  txsched replay --db ./runs.db 0192f7c4-...
  txsched replay --db ./runs.db --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runReplay(opts, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, runID string, cmd *cobra.Command) error {
	ctx := context.Background()
	logger := opts.logger()

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	// Get runs to process
	var runIDs []string
	if runID != "" {
		runIDs = []string{runID}
	} else {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		for _, run := range runs {
			runIDs = append(runIDs, run.ID)
		}
	}

	result := ReplayResult{
		Runs:             make([]ReplayRunResult, 0, len(runIDs)),
		TotalRuns:        len(runIDs),
		AllDeterministic: true,
	}

	for _, id := range runIDs {
		runResult, err := replayRun(ctx, st, id)
		if err != nil {
			return err
		}
		logger.Debug("run replayed", "run_id", id, "deterministic", runResult.Deterministic)

		result.Runs = append(result.Runs, runResult)
		if !runResult.Deterministic {
			result.AllDeterministic = false
		}
	}

	if opts.Format == "json" {
		if err := opts.newFormatter(cmd).JSON(result, runID); err != nil {
			return err
		}
	} else {
		outputReplayText(cmd, result)
	}

	if !result.AllDeterministic {
		// Non-determinism = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// replayRun verifies a single run: design hash, cycle digests, then
// re-arbitration of every cycle.
func replayRun(ctx context.Context, st *store.Store, runID string) (ReplayRunResult, error) {
	tr, err := readTrace(ctx, st, runID)
	if err != nil {
		return ReplayRunResult{}, err
	}

	res := ReplayRunResult{
		RunID:  runID,
		Design: tr.Run.DesignName,
		Cycles: len(tr.Cycles),
	}

	hash, err := ir.DesignHash(tr.Design)
	if err != nil {
		return ReplayRunResult{}, WrapExitError(ExitCommandError, "failed to hash stored design", err)
	}
	res.HashMismatch = hash != tr.Run.DesignHash

	digests, err := st.ReadDigests(ctx, runID)
	if err != nil {
		return ReplayRunResult{}, WrapExitError(ExitCommandError, "failed to read digests", err)
	}
	for _, rec := range tr.Cycles {
		if digests[rec.Cycle] != ir.CycleDigest(rec) {
			res.Corrupted = append(res.Corrupted, rec.Cycle)
		}
	}
	sort.Slice(res.Corrupted, func(i, j int) bool { return res.Corrupted[i] < res.Corrupted[j] })

	g, err := graph.FromDesign(tr.Design)
	if err != nil {
		return ReplayRunResult{}, WrapExitError(ExitFailure, fmt.Sprintf("run %s: stored design no longer builds", runID), err)
	}
	res.Divergences, err = engine.Replay(g, tr.Cycles)
	if err != nil {
		return ReplayRunResult{}, WrapExitError(ExitFailure, fmt.Sprintf("run %s: trace does not match its design", runID), err)
	}

	res.Deterministic = !res.HashMismatch && len(res.Corrupted) == 0 && len(res.Divergences) == 0
	return res, nil
}

func outputReplayText(cmd *cobra.Command, result ReplayResult) {
	w := cmd.OutOrStdout()

	if result.TotalRuns == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return
	}

	for _, run := range result.Runs {
		if run.Deterministic {
			fmt.Fprintf(w, "✓ %s (%s): %d cycle(s) replayed\n", run.RunID, run.Design, run.Cycles)
			continue
		}
		fmt.Fprintf(w, "✗ %s (%s)\n", run.RunID, run.Design)
		if run.HashMismatch {
			fmt.Fprintln(w, "  stored design does not match the run's design hash")
		}
		for _, c := range run.Corrupted {
			fmt.Fprintf(w, "  cycle %d: stored digest mismatch\n", c)
		}
		for _, d := range run.Divergences {
			fmt.Fprintf(w, "  cycle %d: recorded %v, replayed %v", d.Cycle, d.Recorded, d.Replayed)
			if d.Violation != "" {
				fmt.Fprintf(w, " (%s)", d.Violation)
			}
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintln(w)
	if result.AllDeterministic {
		fmt.Fprintf(w, "✓ All %d run(s) deterministic\n", result.TotalRuns)
	} else {
		fmt.Fprintln(w, "✗ Determinism verification failed")
	}
}
