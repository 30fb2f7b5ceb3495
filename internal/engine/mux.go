package engine

import (
	"context"
	"slices"

	"github.com/roach88/txsched/internal/arbiter"
	"github.com/roach88/txsched/internal/ir"
)

// Caller is handed to every body. Call routes a method invocation through
// the cycle's multiplexer.
type Caller interface {
	// Call invokes a method the current body declared. The result goes
	// only to this caller.
	Call(ctx context.Context, method string, args ir.Record) (ir.Record, error)

	// Cycle returns the current logical cycle.
	Cycle() int64

	// Transaction returns the firing transaction this call chain belongs to.
	Transaction() string
}

// mux routes method calls for one cycle. Every method is owned by at most
// one firing transaction, the one whose call closure contains it; only the
// owner's arguments ever reach the method body. Non-owners never run, so
// they observe the method as not called.
type mux struct {
	sim    *Simulator
	cycle  int64
	owner  []int // per method: owning transaction, or -1
	called []bool
	calls  []ir.MethodCall
}

func newMux(s *Simulator, fs arbiter.FiringSet, cycle int64) *mux {
	x := &mux{
		sim:    s,
		cycle:  cycle,
		owner:  make([]int, s.graph.NumMethods()),
		called: make([]bool, s.graph.NumMethods()),
	}
	for m := range x.owner {
		x.owner[m] = -1
		for _, tx := range s.graph.Callers(m) {
			if fs.Contains(tx) {
				x.owner[m] = tx
				break
			}
		}
	}
	return x
}

// Owner returns the transaction owning method m this cycle, or -1.
func (x *mux) Owner(m int) int { return x.owner[m] }

// Called reports whether method m ran this cycle.
func (x *mux) Called(m int) bool { return x.called[m] }

func (x *mux) callerFor(tx int) *frame {
	return &frame{mux: x, tx: tx, method: -1}
}

// frame is the Caller for one body: a transaction body (method == -1) or
// a method body nested inside transaction tx's call chain.
type frame struct {
	mux    *mux
	tx     int
	method int
}

func (f *frame) Cycle() int64 { return f.mux.cycle }

func (f *frame) Transaction() string { return f.mux.sim.graph.TransactionName(f.tx) }

func (f *frame) Call(ctx context.Context, name string, args ir.Record) (ir.Record, error) {
	x := f.mux
	g := x.sim.graph

	m, ok := g.MethodIndex(name)
	if !ok {
		return nil, f.fail(ErrCodeUndeclaredCall, name, "call to unknown method", nil)
	}
	var declared []int
	if f.method < 0 {
		declared = g.Calls(f.tx)
	} else {
		declared = g.MethodCalls(f.method)
	}
	if !slices.Contains(declared, m) {
		return nil, f.fail(ErrCodeUndeclaredCall, name, "method not in caller's call list", nil)
	}
	if x.owner[m] != f.tx {
		return nil, f.fail(ErrCodeUndeclaredCall, name, "method owned by another transaction", nil)
	}
	if x.called[m] {
		return nil, f.fail(ErrCodeDuplicateCall, name, "method already called this cycle", nil)
	}
	x.called[m] = true

	def := x.sim.methods[m]
	if args == nil {
		args = ir.Record{}
	}
	if err := ir.CheckLayout(def.Input, args); err != nil {
		return nil, f.fail(ErrCodeInvalidArgs, name, "arguments do not match input layout", err)
	}

	// Reserve the slot so calls are listed in invocation order, outer first.
	slot := len(x.calls)
	x.calls = append(x.calls, ir.MethodCall{Method: name, Caller: f.Transaction(), Args: args})

	result, err := def.Body(ctx, &frame{mux: x, tx: f.tx, method: m}, args)
	if err != nil {
		if IsBodyError(err) {
			return nil, err
		}
		return nil, f.fail(ErrCodeBodyFailed, name, "method body failed", err)
	}
	if result == nil {
		result = ir.Record{}
	}
	if err := ir.CheckLayout(def.Output, result); err != nil {
		return nil, f.fail(ErrCodeInvalidResult, name, "result does not match output layout", err)
	}

	x.calls[slot].Result = result
	return result, nil
}

func (f *frame) fail(code BodyErrorCode, method, msg string, cause error) *BodyError {
	return &BodyError{
		Code:        code,
		Message:     msg,
		Cycle:       f.mux.cycle,
		Transaction: f.Transaction(),
		Method:      method,
		Err:         cause,
	}
}
