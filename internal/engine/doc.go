// Package engine implements the registration API and the cycle simulator.
//
// ARCHITECTURE:
//
// Two-Phase Registration:
// A Manager accumulates methods, transactions, nested calls and relations.
// Finalize compiles the conflict graph (internal/graph) and returns a
// Simulator. Registration after Finalize fails with
// graph.LateRegistrationError.
//
// Clocked Simulation:
// The Simulator is synchronous. One Step:
// 1. Advances the logical Clock
// 2. Samples every transaction and method readiness signal
// 3. Computes effective readiness (a transaction needs every method it reaches)
// 4. Arbitrates (internal/arbiter) to get the firing set
// 5. Runs firing bodies in canonical order through the multiplexer
// 6. Records the cycle (metrics, logs, optional Recorder)
//
// Method Call Multiplexer:
// Each cycle every method has at most one owner, the firing transaction
// whose call closure contains it. Only the owner's arguments reach the
// method body and only the owner sees the result. A second call to the
// same method, or a call the body never declared, is a BodyError.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Cycles are numbered by Clock.Next(). Traces never carry wall-clock time.
//
// Deterministic Scheduling:
// Declaration order fixes indices, the canonical order and body execution
// order. No randomness, no concurrency inside a cycle. Replay re-arbitrates
// recorded readiness and must reproduce the recorded firing sets.
package engine
