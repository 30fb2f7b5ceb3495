package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/txsched/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string           // Assertion type for categorization
	Expected string           // Human-readable expected outcome
	Actual   string           // Human-readable actual outcome
	Cycles   []ir.CycleRecord // Offending cycles for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Cycles) > 0 {
		fmt.Fprintf(&buf, "\nCycles:\n")
		for _, rec := range e.Cycles {
			fmt.Fprintf(&buf, "  [%d] ready=%v fired=%v\n", rec.Cycle, rec.Ready, rec.Fired)
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion against the trace and returns
// the failure messages, in assertion order.
func EvaluateAssertions(cycles []ir.CycleRecord, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluateAssertion(cycles, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluateAssertion(cycles []ir.CycleRecord, a Assertion) error {
	switch a.Type {
	case AssertNeverTogether:
		return assertNeverTogether(cycles, a)
	case AssertAlwaysFires:
		return assertAlwaysFires(cycles, a)
	case AssertNeverFires:
		return assertNeverFires(cycles, a)
	case AssertFireCount:
		return assertFireCount(cycles, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertNeverTogether checks that no two of the listed transactions fire
// in the same cycle.
func assertNeverTogether(cycles []ir.CycleRecord, a Assertion) error {
	var bad []ir.CycleRecord
	for _, rec := range cycles {
		n := 0
		for _, tx := range a.Transactions {
			if slices.Contains(rec.Fired, tx) {
				n++
			}
		}
		if n > 1 {
			bad = append(bad, rec)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertNeverTogether,
		Expected: fmt.Sprintf("at most one of %v fires per cycle", a.Transactions),
		Actual:   fmt.Sprintf("%d cycle(s) fired more than one", len(bad)),
		Cycles:   bad,
	}
}

// assertAlwaysFires checks that the transaction fires whenever it is ready.
func assertAlwaysFires(cycles []ir.CycleRecord, a Assertion) error {
	var bad []ir.CycleRecord
	for _, rec := range cycles {
		if slices.Contains(rec.Ready, a.Transaction) && !slices.Contains(rec.Fired, a.Transaction) {
			bad = append(bad, rec)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertAlwaysFires,
		Expected: fmt.Sprintf("%s fires in every cycle it is ready", a.Transaction),
		Actual:   fmt.Sprintf("blocked in %d cycle(s)", len(bad)),
		Cycles:   bad,
	}
}

// assertNeverFires checks that the transaction never fires.
func assertNeverFires(cycles []ir.CycleRecord, a Assertion) error {
	var bad []ir.CycleRecord
	for _, rec := range cycles {
		if slices.Contains(rec.Fired, a.Transaction) {
			bad = append(bad, rec)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertNeverFires,
		Expected: fmt.Sprintf("%s never fires", a.Transaction),
		Actual:   fmt.Sprintf("fired in %d cycle(s)", len(bad)),
		Cycles:   bad,
	}
}

// assertFireCount checks that the transaction fires exactly Count times.
func assertFireCount(cycles []ir.CycleRecord, a Assertion) error {
	count := 0
	for _, rec := range cycles {
		if slices.Contains(rec.Fired, a.Transaction) {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertFireCount,
		Expected: fmt.Sprintf("%s fires %d time(s)", a.Transaction, a.Count),
		Actual:   fmt.Sprintf("fired %d time(s)", count),
	}
}
