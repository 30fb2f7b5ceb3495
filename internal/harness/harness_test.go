package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txsched/internal/ir"
)

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

// TestRun_Scenarios tests every fixture scenario passes.
func TestRun_Scenarios(t *testing.T) {
	for _, name := range []string{"fetch_flush", "priority_chain", "disjoint_methods", "priority_cycle"} {
		t.Run(name, func(t *testing.T) {
			res, err := Run(context.Background(), loadScenario(t, name))
			require.NoError(t, err)
			assert.True(t, res.Pass, "errors: %v", res.Errors)
			assert.Empty(t, res.Errors)
		})
	}
}

// TestRun_Golden tests stored traces against golden files.
func TestRun_Golden(t *testing.T) {
	for _, name := range []string{"fetch_flush", "priority_chain"} {
		t.Run(name, func(t *testing.T) {
			res, err := RunWithGolden(t, loadScenario(t, name))
			require.NoError(t, err)
			assert.True(t, res.Pass)
		})
	}
}

// TestRun_ExpectedErrorRecordsNoCycles tests a rejected design.
func TestRun_ExpectedErrorRecordsNoCycles(t *testing.T) {
	res, err := Run(context.Background(), loadScenario(t, "priority_cycle"))
	require.NoError(t, err)
	assert.Equal(t, "PRIORITY_CYCLE", res.ErrorCode)
	assert.Empty(t, res.Cycles)
}

// TestRun_WrongExpectationFails tests that mismatches are reported, not returned.
func TestRun_WrongExpectationFails(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong
description: "expects the losing transaction"
cue: |
  method: M: {}
  transaction: T1: calls: ["M"]
  transaction: T2: calls: ["M"]
cycles: 2
expect:
  - cycle: 1
    fired: [T2]
assertions:
  - type: fire_count
    transaction: T2
    count: 2
  - type: never_fires
    transaction: T1
`))
	require.NoError(t, err)

	res, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, res.Pass)
	require.Len(t, res.Errors, 3)
	assert.Contains(t, res.Errors[0], "cycle 1: expected fired [T2], got [T1]")
	assert.Contains(t, res.Errors[1], "fire_count")
	assert.Contains(t, res.Errors[2], "never_fires")
}

// TestRun_UnexpectedDesignError tests a design error the scenario did not expect.
func TestRun_UnexpectedDesignError(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: self_conflict
description: "T reaches two exclusive methods"
cue: |
  method: X: {}
  method: Y: {}
  transaction: T: calls: ["X", "Y"]
  relation: [{kind: "exclusive", a: "X", b: "Y"}]
cycles: 1
expect:
  - cycle: 1
    fired: [T]
`))
	require.NoError(t, err)

	res, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.Equal(t, "SELF_CONFLICT", res.ErrorCode)
}

// TestRun_BodyErrorExpected tests expect_error with an argument layout mismatch.
func TestRun_BodyErrorExpected(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad_args
description: "stimulus passes a string where an int is declared"
design:
  methods:
    - name: M
      input: [{name: v, type: int}]
  transactions:
    - {name: T, calls: [M]}
stimulus:
  - ready: [T]
  - ready: [T]
    args: {T: {M: {v: "seven"}}}
expect_error: INVALID_ARGS
`))
	require.NoError(t, err)

	res, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, res.Pass, "errors: %v", res.Errors)
	require.Len(t, res.Cycles, 1, "cycle 1 is stored, cycle 2 aborts")
	assert.Equal(t, []ir.MethodCall{
		{Method: "M", Caller: "T", Args: ir.Record{"v": ir.Int(0)}, Result: ir.Record{}},
	}, res.Cycles[0].Calls)
}

// TestRunAll tests concurrent execution keeps input order.
func TestRunAll(t *testing.T) {
	names := []string{"fetch_flush", "priority_chain", "disjoint_methods", "priority_cycle"}
	var scenarios []*Scenario
	for _, name := range names {
		scenarios = append(scenarios, loadScenario(t, name))
	}

	results, err := RunAll(context.Background(), scenarios, 2)
	require.NoError(t, err)
	require.Len(t, results, len(names))
	for i, res := range results {
		assert.Equal(t, names[i], res.Name)
		assert.True(t, res.Pass, "%s: %v", res.Name, res.Errors)
	}
}

// TestRunAll_Deterministic tests identical traces across parallel runs.
func TestRunAll_Deterministic(t *testing.T) {
	var scenarios []*Scenario
	for i := 0; i < 8; i++ {
		scenarios = append(scenarios, loadScenario(t, "fetch_flush"))
	}

	results, err := RunAll(context.Background(), scenarios, 0)
	require.NoError(t, err)

	first, err := Snapshot(results[0])
	require.NoError(t, err)
	for _, res := range results[1:] {
		snap, err := Snapshot(res)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(snap))
	}
}

// TestErrorCode tests code extraction for untyped errors.
func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, "", ErrorCode(assert.AnError))
}
