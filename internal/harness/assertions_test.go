package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txsched/internal/ir"
)

func sampleTrace() []ir.CycleRecord {
	return []ir.CycleRecord{
		{Cycle: 1, Ready: []string{"A", "B"}, Fired: []string{"A"}},
		{Cycle: 2, Ready: []string{"A", "B"}, Fired: []string{"A", "B"}},
		{Cycle: 3, Ready: []string{"B"}, Fired: []string{"B"}},
	}
}

// TestEvaluateAssertions tests each assertion type on a fixed trace.
func TestEvaluateAssertions(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		pass      bool
	}{
		{name: "never_together violated", assertion: Assertion{Type: AssertNeverTogether, Transactions: []string{"A", "B"}}, pass: false},
		{name: "never_together holds", assertion: Assertion{Type: AssertNeverTogether, Transactions: []string{"A", "C"}}, pass: true},
		{name: "always_fires holds", assertion: Assertion{Type: AssertAlwaysFires, Transaction: "A"}, pass: true},
		{name: "always_fires violated", assertion: Assertion{Type: AssertAlwaysFires, Transaction: "B"}, pass: false},
		{name: "never_fires holds", assertion: Assertion{Type: AssertNeverFires, Transaction: "C"}, pass: true},
		{name: "never_fires violated", assertion: Assertion{Type: AssertNeverFires, Transaction: "A"}, pass: false},
		{name: "fire_count holds", assertion: Assertion{Type: AssertFireCount, Transaction: "B", Count: 2}, pass: true},
		{name: "fire_count violated", assertion: Assertion{Type: AssertFireCount, Transaction: "B", Count: 3}, pass: false},
		{name: "fire_count zero", assertion: Assertion{Type: AssertFireCount, Transaction: "C", Count: 0}, pass: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleTrace(), []Assertion{tt.assertion})
			if tt.pass {
				assert.Empty(t, errs)
			} else {
				require.Len(t, errs, 1)
				assert.Contains(t, errs[0], "Assertion failed: "+tt.assertion.Type)
			}
		})
	}
}

// TestAssertionError_ListsOffendingCycles tests the failure message.
func TestAssertionError_ListsOffendingCycles(t *testing.T) {
	errs := EvaluateAssertions(sampleTrace(), []Assertion{{Type: AssertAlwaysFires, Transaction: "B"}})
	require.Len(t, errs, 1)

	assert.Contains(t, errs[0], "Expected: B fires in every cycle it is ready")
	assert.Contains(t, errs[0], "Actual: blocked in 1 cycle(s)")
	assert.Contains(t, errs[0], "[1] ready=[A B] fired=[A]")
	assert.NotContains(t, errs[0], "[2]")
}

// TestSnapshot_Canonical tests the golden file encoding.
func TestSnapshot_Canonical(t *testing.T) {
	res := NewResult("tiny")
	res.Cycles = []ir.CycleRecord{{
		Cycle: 1,
		Ready: []string{"T"},
		Fired: []string{"T"},
		Calls: []ir.MethodCall{{Method: "M", Caller: "T", Args: ir.Record{"b": ir.Int(1), "a": ir.Str("<")}}},
	}}

	got, err := Snapshot(res)
	require.NoError(t, err)
	assert.Equal(t,
		`{"cycles":[{"calls":[{"args":{"a":"<","b":1},"caller":"T","method":"M","result":{}}],"cycle":1,"fired":["T"],"ready":["T"]}],"scenario_name":"tiny"}`,
		string(got))
}
