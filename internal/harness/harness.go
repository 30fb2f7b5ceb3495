package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/txsched/internal/compiler"
	"github.com/roach88/txsched/internal/engine"
	"github.com/roach88/txsched/internal/graph"
	"github.com/roach88/txsched/internal/ir"
	"github.com/roach88/txsched/internal/logging"
	"github.com/roach88/txsched/internal/store"
)

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation. The
// simulator records into it and assertions are evaluated on the trace read
// back from the store, so the storage round trip is exercised too.
//
// Execution flow:
// 1. Resolve the design (inline, CUE source or CUE file)
// 2. Finalize it with the scenario stimulus as readiness source
// 3. Simulate the requested cycles into the store
// 4. Replay the stored trace to confirm the arbiter is deterministic
// 5. Check per-cycle expectations and assertions
//
// A returned error means the harness itself failed (I/O, storage). Design
// and body errors are reported in the result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	result := NewResult(scenario.Name)

	d, err := resolveDesign(scenario)
	if err != nil {
		return nil, err
	}

	var src engine.Source
	if len(scenario.Stimulus) > 0 {
		src = &engine.Stimulus{Cycles: scenario.Stimulus}
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	const runID = "scenario-run"
	sim, err := finalize(d, src,
		engine.WithLogger(logging.NewNop()),
		engine.WithRecorder(st),
		engine.WithRunID(engine.NewFixedGenerator(runID)),
	)
	if err == nil {
		_, err = sim.Run(ctx, scenario.NumCycles())
	}
	if err != nil && !expectedFailure(err) {
		return nil, err
	}
	result.ErrorCode = ErrorCode(err)

	if sim != nil && sim.RunID() != "" {
		cycles, readErr := st.ReadCycles(ctx, runID)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read trace: %w", readErr)
		}
		result.Cycles = cycles
	}

	if scenario.ExpectError != "" {
		if result.ErrorCode != scenario.ExpectError {
			result.AddError(fmt.Sprintf("expected error %s, got %s", scenario.ExpectError, describe(err)))
		}
		return result, nil
	}
	if err != nil {
		result.AddError(err.Error())
		return result, nil
	}

	divs, err := engine.Replay(sim.Graph(), result.Cycles)
	if err != nil {
		return nil, fmt.Errorf("failed to replay trace: %w", err)
	}
	for _, div := range divs {
		result.AddError(fmt.Sprintf("cycle %d: stored firing set %v does not replay (got %v)", div.Cycle, div.Recorded, div.Replayed))
	}

	for _, msg := range checkExpectations(result.Cycles, scenario.Expect) {
		result.AddError(msg)
	}
	for _, msg := range EvaluateAssertions(result.Cycles, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// RunAll executes scenarios concurrently, at most parallel at a time (no
// limit when parallel < 1). Results are returned in input order. The first
// harness error cancels the remaining scenarios.
func RunAll(ctx context.Context, scenarios []*Scenario, parallel int) ([]*Result, error) {
	results := make([]*Result, len(scenarios))

	g, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, sc := range scenarios {
		i, sc := i, sc
		g.Go(func() error {
			res, err := Run(ctx, sc)
			if err != nil {
				return fmt.Errorf("scenario %s: %w", sc.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// resolveDesign returns the scenario's design from whichever source it uses.
func resolveDesign(s *Scenario) (ir.Design, error) {
	switch {
	case s.Design != nil:
		return *s.Design, nil
	case s.CUE != "":
		d, err := compiler.CompileString(s.CUE, s.Name+".cue")
		if err != nil {
			return ir.Design{}, fmt.Errorf("compile design: %w", err)
		}
		return *d, nil
	default:
		src, err := os.ReadFile(s.DesignFile)
		if err != nil {
			return ir.Design{}, fmt.Errorf("read design file: %w", err)
		}
		d, err := compiler.CompileString(string(src), s.DesignFile)
		if err != nil {
			return ir.Design{}, fmt.Errorf("compile design: %w", err)
		}
		return *d, nil
	}
}

func finalize(d ir.Design, src engine.Source, opts ...engine.Option) (*engine.Simulator, error) {
	m, err := engine.NewManagerFromDesign(d, src)
	if err != nil {
		return nil, err
	}
	return m.Finalize(opts...)
}

// ErrorCode returns the code carried by a scheduling error, or "" for nil
// and for errors without a code.
func ErrorCode(err error) string {
	var ce *graph.ConflictGraphError
	var de *graph.DeclarationError
	var be *engine.BodyError
	var le *graph.LateRegistrationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ce):
		return string(ce.Code)
	case errors.As(err, &de):
		return string(de.Code)
	case errors.As(err, &be):
		return string(be.Code)
	case errors.As(err, &le):
		return "LATE_REGISTRATION"
	default:
		return ""
	}
}

// expectedFailure reports whether err is a design or body error, which a
// scenario may expect, as opposed to a harness failure.
func expectedFailure(err error) bool {
	return ErrorCode(err) != ""
}

func describe(err error) string {
	if err == nil {
		return "no error"
	}
	return err.Error()
}

// checkExpectations compares exact per-cycle firing sets.
func checkExpectations(cycles []ir.CycleRecord, expect []CycleExpect) []string {
	var errs []string
	for _, e := range expect {
		i := slices.IndexFunc(cycles, func(rec ir.CycleRecord) bool { return rec.Cycle == e.Cycle })
		if i < 0 {
			errs = append(errs, fmt.Sprintf("cycle %d: not simulated", e.Cycle))
			continue
		}
		rec := cycles[i]
		if !slices.Equal(nonNil(e.Fired), rec.Fired) {
			errs = append(errs, fmt.Sprintf("cycle %d: expected fired %v, got %v", e.Cycle, nonNil(e.Fired), rec.Fired))
		}
		if e.Ready != nil && !slices.Equal(e.Ready, rec.Ready) {
			errs = append(errs, fmt.Sprintf("cycle %d: expected ready %v, got %v", e.Cycle, e.Ready, rec.Ready))
		}
	}
	return errs
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
