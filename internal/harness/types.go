package harness

import "github.com/roach88/txsched/internal/ir"

// Result is the outcome of a test scenario execution.
type Result struct {
	// Name is the scenario name.
	Name string `json:"name"`

	// Pass indicates overall test success.
	// True if every expectation and assertion holds.
	Pass bool `json:"pass"`

	// Cycles is the recorded trace, read back from the run's store.
	Cycles []ir.CycleRecord `json:"cycles"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// ErrorCode is the code of the error that stopped the run, if any.
	ErrorCode string `json:"error_code,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult(name string) *Result {
	return &Result{
		Name:   name,
		Pass:   true,
		Cycles: []ir.CycleRecord{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
