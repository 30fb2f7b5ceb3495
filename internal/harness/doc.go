// Package harness provides conformance testing for scheduler designs.
//
// The harness compiles a design, simulates it against a scripted stimulus,
// and checks the resulting firing sets against expectations, property
// assertions and golden trace files.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: fetch_flush
//	description: "flush preempts fetch on the shared icache port"
//	design_file: fetch.cue      # or `cue: |` inline, or `design:` inline YAML
//	cycles: 3                   # defaults to len(stimulus)
//	stimulus:
//	  - ready: [fetch]
//	  - ready: ["*"]
//	    args: {flush: {redirect: {pc: 64}}}
//	  - ready: ["*"]
//	    methods_not_ready: [redirect]
//	expect:
//	  - cycle: 2
//	    fired: [flush]
//	assertions:
//	  - type: never_together
//	    transactions: [fetch, flush]
//	  - type: fire_count
//	    transaction: flush
//	    count: 1
//
// A design that must be rejected sets expect_error to the error code
// (PRIORITY_CYCLE, CALL_CYCLE, SELF_CONFLICT, UNKNOWN_NAME, ...).
//
// # Assertion Types
//
//   - never_together: the listed transactions never fire in one cycle
//   - always_fires: the transaction fires in every cycle it is ready
//   - never_fires: the transaction never fires
//   - fire_count: the transaction fires exactly count times
//
// # Determinism
//
// Every run records into a fresh in-memory store with a fixed run ID, and
// the stored trace is replayed through the arbiter before assertions run.
// Golden files hold the canonical JSON of the stored trace.
package harness
