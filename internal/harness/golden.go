package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/txsched/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string           `json:"scenario_name"`
	Cycles       []ir.CycleRecord `json:"cycles"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	cycles := make([]any, len(s.Cycles))
	for i, rec := range s.Cycles {
		calls := make([]any, len(rec.Calls))
		for j, call := range rec.Calls {
			calls[j] = map[string]any{
				"method": call.Method,
				"caller": call.Caller,
				"args":   nonNilRecord(call.Args),
				"result": nonNilRecord(call.Result),
			}
		}
		cycles[i] = map[string]any{
			"cycle": rec.Cycle,
			"ready": nonNil(rec.Ready),
			"fired": nonNil(rec.Fired),
			"calls": calls,
		}
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"cycles":        cycles,
	}
}

func nonNilRecord(r ir.Record) ir.Record {
	if r == nil {
		return ir.Record{}
	}
	return r
}

// Snapshot renders a result's trace as canonical JSON, the golden file
// format.
func Snapshot(result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: result.Name, Cycles: result.Cycles}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// named after the scenario, without re-running it.
func AssertGolden(t *testing.T, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, result.Name, traceJSON)

	return nil
}
