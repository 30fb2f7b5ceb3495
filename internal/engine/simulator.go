package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/txsched/internal/arbiter"
	"github.com/roach88/txsched/internal/graph"
	"github.com/roach88/txsched/internal/ir"
)

// Recorder persists a simulation trace. Implemented by store.Store.
type Recorder interface {
	BeginRun(ctx context.Context, run ir.Run, design ir.Design) error
	RecordCycle(ctx context.Context, runID string, rec ir.CycleRecord) error
	EndRun(ctx context.Context, runID string, cycles int64) error
}

// Simulator drives a finalized design cycle by cycle.
//
// One Step samples every readiness signal, arbitrates, runs the firing
// bodies through the multiplexer and advances the logical clock.
//
// Thread-safety model:
//   - Step/Run: must be called from exactly one goroutine
//   - Graph(): safe from any goroutine (the graph is immutable)
type Simulator struct {
	graph      *graph.ConflictGraph
	design     ir.Design
	designHash string
	methods    []MethodDef // by method index
	txs        []TxDef     // by transaction index

	clock    *Clock
	logger   *slog.Logger
	metrics  *Metrics
	recorder Recorder
	runIDs   RunIDGenerator

	runID string
	begun bool
}

// Option configures a Simulator at Finalize.
type Option func(*Simulator)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) {
		s.logger = l
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Simulator) {
		s.metrics = m
	}
}

// WithRecorder records every cycle, e.g. into a store.Store.
func WithRecorder(r Recorder) Option {
	return func(s *Simulator) {
		s.recorder = r
	}
}

// WithRunID sets the run ID generator. Default: UUIDv7Generator.
func WithRunID(gen RunIDGenerator) Option {
	return func(s *Simulator) {
		s.runIDs = gen
	}
}

// WithClock starts the simulator from an existing clock.
func WithClock(c *Clock) Option {
	return func(s *Simulator) {
		s.clock = c
	}
}

func newSimulator(g *graph.ConflictGraph, d ir.Design, hash string, opts ...Option) *Simulator {
	s := &Simulator{
		graph:      g,
		design:     d,
		designHash: hash,
		methods:    make([]MethodDef, g.NumMethods()),
		txs:        make([]TxDef, g.NumTransactions()),
		clock:      NewClock(),
		logger:     slog.Default(),
		runIDs:     UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Graph returns the conflict graph.
func (s *Simulator) Graph() *graph.ConflictGraph { return s.graph }

// Design returns the registered declarations.
func (s *Simulator) Design() ir.Design { return s.design }

// DesignHash returns the content hash of the design.
func (s *Simulator) DesignHash() string { return s.designHash }

// Cycle returns the last simulated cycle, 0 before the first Step.
func (s *Simulator) Cycle() int64 { return s.clock.Current() }

// RunID returns the run identifier, assigned at the first Step.
func (s *Simulator) RunID() string { return s.runID }

func (s *Simulator) begin(ctx context.Context) error {
	if s.begun {
		return nil
	}
	s.runID = s.runIDs.Generate()
	s.begun = true

	if s.recorder != nil {
		run := ir.Run{
			ID:               s.runID,
			DesignName:       s.design.Name,
			DesignHash:       s.designHash,
			SchedulerVersion: ir.SchedulerVersion,
		}
		if err := s.recorder.BeginRun(ctx, run, s.design); err != nil {
			return fmt.Errorf("begin run: %w", err)
		}
	}
	s.logger.Info("run started", "run_id", s.runID, "design", s.design.Name)
	return nil
}

// Step simulates one cycle and returns its record.
//
// A body error aborts the cycle: the clock has advanced but nothing is
// recorded, and the error is a *BodyError.
func (s *Simulator) Step(ctx context.Context) (ir.CycleRecord, error) {
	if err := ctx.Err(); err != nil {
		return ir.CycleRecord{}, err
	}
	if err := s.begin(ctx); err != nil {
		return ir.CycleRecord{}, err
	}

	cycle := s.clock.Next()
	g := s.graph

	txReady := make([]bool, len(s.txs))
	for i, def := range s.txs {
		txReady[i] = def.Ready == nil || def.Ready(cycle)
	}
	methodReady := make([]bool, len(s.methods))
	for i, def := range s.methods {
		methodReady[i] = def.Ready == nil || def.Ready(cycle)
	}

	ready := arbiter.Effective(g, txReady, methodReady)
	fs := arbiter.Arbitrate(g, ready)

	x := newMux(s, fs, cycle)
	for _, tx := range fs.Indices() {
		if err := s.txs[tx].Body(ctx, x.callerFor(tx)); err != nil {
			if IsBodyError(err) {
				return ir.CycleRecord{}, err
			}
			return ir.CycleRecord{}, &BodyError{
				Code:        ErrCodeBodyFailed,
				Message:     "transaction body failed",
				Cycle:       cycle,
				Transaction: g.TransactionName(tx),
				Err:         err,
			}
		}
	}

	rec := ir.CycleRecord{
		Cycle: cycle,
		Ready: s.names(ready),
		Fired: fs.Names(),
		Calls: x.calls,
	}
	blocked := make([]string, 0)
	for _, tx := range arbiter.Blocked(g, ready, fs) {
		blocked = append(blocked, g.TransactionName(tx))
	}

	s.metrics.observeCycle(rec, blocked)
	s.logger.Debug("cycle",
		"cycle", cycle,
		"fired", rec.Fired,
		"blocked", blocked,
		"calls", len(rec.Calls),
	)

	if s.recorder != nil {
		if err := s.recorder.RecordCycle(ctx, s.runID, rec); err != nil {
			return ir.CycleRecord{}, fmt.Errorf("record cycle %d: %w", cycle, err)
		}
	}
	return rec, nil
}

// Run simulates cycles consecutive cycles and closes the run. It stops at
// the first error, including context cancellation between cycles. A failed
// run is not closed: the recorder never sees EndRun, so the run is listed
// as unfinished.
func (s *Simulator) Run(ctx context.Context, cycles int) ([]ir.CycleRecord, error) {
	out := make([]ir.CycleRecord, 0, cycles)
	for i := 0; i < cycles; i++ {
		rec, err := s.Step(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	if err := s.Close(ctx); err != nil {
		return out, err
	}
	return out, nil
}

// Close marks the run complete in the recorder. Safe to call more than once.
func (s *Simulator) Close(ctx context.Context) error {
	if !s.begun {
		return nil
	}
	s.logger.Info("run finished", "run_id", s.runID, "cycles", s.clock.Current())
	if s.recorder == nil {
		return nil
	}
	if err := s.recorder.EndRun(ctx, s.runID, s.clock.Current()); err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	return nil
}

// names lists the transactions set in v, in declaration order.
func (s *Simulator) names(v []bool) []string {
	out := make([]string, 0)
	for tx, ok := range v {
		if ok {
			out = append(out, s.graph.TransactionName(tx))
		}
	}
	return out
}
