package engine

import (
	"context"
	"fmt"

	"github.com/roach88/txsched/internal/graph"
	"github.com/roach88/txsched/internal/ir"
)

// ReadyFunc samples a readiness signal at the start of a cycle.
// A nil ReadyFunc is always ready.
type ReadyFunc func(cycle int64) bool

// TxBody is a transaction body. It runs only in cycles where the
// transaction fires, and reaches methods through the Caller.
type TxBody func(ctx context.Context, c Caller) error

// MethodBody is a method body. It receives the owning transaction's
// arguments and may call the methods it declared through the Caller.
type MethodBody func(ctx context.Context, c Caller, args ir.Record) (ir.Record, error)

// MethodDef describes a method at registration.
type MethodDef struct {
	Input  []ir.Field
	Output []ir.Field
	Calls  []string // nested methods the body may call
	Ready  ReadyFunc
	Body   MethodBody // nil: call every nested method with zero args, return a zero result
}

// TxDef describes a transaction at registration.
type TxDef struct {
	Calls []string // methods the body may call
	Ready ReadyFunc
	Body  TxBody // nil: call every declared method once with zero args
}

// Manager is the registration API. Declarations accumulate until Finalize
// builds the conflict graph and returns a Simulator; every registration
// after a successful Finalize fails with graph.LateRegistrationError.
//
// Manager is not safe for concurrent use.
type Manager struct {
	builder *graph.Builder
	design  ir.Design
	methods map[string]MethodDef
	txs     map[string]TxDef
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{
		builder: graph.NewBuilder(),
		methods: make(map[string]MethodDef),
		txs:     make(map[string]TxDef),
	}
}

// SetName names the design for hashing and recorded runs.
func (m *Manager) SetName(name string) {
	m.design.Name = name
}

// Method registers a method.
func (m *Manager) Method(name string, def MethodDef) error {
	if m.builder.Finalized() {
		return &graph.LateRegistrationError{Op: "method", Name: name}
	}
	if err := checkFields(name, "input", def.Input); err != nil {
		return err
	}
	if err := checkFields(name, "output", def.Output); err != nil {
		return err
	}
	if err := m.builder.AddMethod(name, def.Calls...); err != nil {
		return err
	}
	m.methods[name] = def
	m.design.Methods = append(m.design.Methods, ir.MethodDecl{
		Name:   name,
		Input:  def.Input,
		Output: def.Output,
		Calls:  def.Calls,
	})
	return nil
}

// Transaction registers a transaction.
func (m *Manager) Transaction(name string, def TxDef) error {
	if err := m.builder.AddTransaction(name, def.Calls...); err != nil {
		return err
	}
	m.txs[name] = def
	m.design.Transactions = append(m.design.Transactions, ir.TransactionDecl{
		Name:  name,
		Calls: def.Calls,
	})
	return nil
}

// Exclusive declares that a and b never fire in the same cycle.
func (m *Manager) Exclusive(a, b string) error {
	if err := m.builder.Exclusive(a, b); err != nil {
		return err
	}
	m.design.Relations = append(m.design.Relations, ir.RelationDecl{Kind: ir.RelationExclusive, A: a, B: b})
	return nil
}

// Priority declares that higher wins over lower when both are ready.
func (m *Manager) Priority(higher, lower string) error {
	if err := m.builder.Priority(higher, lower); err != nil {
		return err
	}
	m.design.Relations = append(m.design.Relations, ir.RelationDecl{Kind: ir.RelationPriority, A: higher, B: lower})
	return nil
}

// Finalize builds the conflict graph and returns a Simulator for it.
// Build errors (graph.ConflictGraphError, graph.DeclarationError) leave the
// Manager open for further declarations.
func (m *Manager) Finalize(opts ...Option) (*Simulator, error) {
	g, err := m.builder.Finalize()
	if err != nil {
		return nil, err
	}

	hash, err := ir.DesignHash(m.design)
	if err != nil {
		return nil, fmt.Errorf("hash design: %w", err)
	}

	s := newSimulator(g, m.design, hash, opts...)
	for i := 0; i < g.NumMethods(); i++ {
		def := m.methods[g.MethodName(i)]
		if def.Body == nil {
			def.Body = defaultMethodBody(def, m.methods)
		}
		s.methods[i] = def
	}
	for i := 0; i < g.NumTransactions(); i++ {
		def := m.txs[g.TransactionName(i)]
		if def.Body == nil {
			def.Body = defaultTxBody(def.Calls, m.methods)
		}
		s.txs[i] = def
	}

	for _, d := range g.Diagnostics() {
		s.logger.Warn("design diagnostic", "err", d)
	}
	s.logger.Info("design finalized",
		"design", m.design.Name,
		"hash", hash,
		"transactions", g.NumTransactions(),
		"methods", g.NumMethods(),
	)
	return s, nil
}

// Design returns the declarations registered so far.
func (m *Manager) Design() ir.Design {
	return m.design
}

func checkFields(method, which string, fields []ir.Field) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return &graph.DeclarationError{Code: graph.CodeInvalidLayout, Name: method, Message: which + " field without a name"}
		}
		if seen[f.Name] {
			return &graph.DeclarationError{Code: graph.CodeInvalidLayout, Name: method, Message: fmt.Sprintf("duplicate %s field %q", which, f.Name)}
		}
		seen[f.Name] = true
		if !ir.FieldTypes[f.Type] {
			return &graph.DeclarationError{Code: graph.CodeInvalidLayout, Name: method, Message: fmt.Sprintf("%s field %q has unknown type %q", which, f.Name, f.Type)}
		}
	}
	return nil
}

func defaultTxBody(calls []string, methods map[string]MethodDef) TxBody {
	return func(ctx context.Context, c Caller) error {
		for _, name := range uniqueInOrder(calls) {
			if _, err := c.Call(ctx, name, ir.ZeroRecord(methods[name].Input)); err != nil {
				return err
			}
		}
		return nil
	}
}

func defaultMethodBody(def MethodDef, methods map[string]MethodDef) MethodBody {
	return func(ctx context.Context, c Caller, _ ir.Record) (ir.Record, error) {
		for _, name := range uniqueInOrder(def.Calls) {
			if _, err := c.Call(ctx, name, ir.ZeroRecord(methods[name].Input)); err != nil {
				return nil, err
			}
		}
		return ir.ZeroRecord(def.Output), nil
	}
}

func uniqueInOrder(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// NewManagerFromDesign registers every declaration of d with bodies driven
// by src. Transaction bodies call their declared methods once, in order,
// passing src's arguments or a zero record; method bodies behave like the
// defaults. A nil src makes everything ready every cycle.
func NewManagerFromDesign(d ir.Design, src Source) (*Manager, error) {
	if src == nil {
		src = alwaysReady{}
	}
	m := NewManager()
	m.SetName(d.Name)

	for _, md := range d.Methods {
		name := md.Name
		def := MethodDef{
			Input:  md.Input,
			Output: md.Output,
			Calls:  md.Calls,
			Ready:  func(cycle int64) bool { return src.MethodReady(cycle, name) },
		}
		if err := m.Method(name, def); err != nil {
			return nil, err
		}
	}

	for _, td := range d.Transactions {
		name, calls := td.Name, td.Calls
		def := TxDef{
			Calls: calls,
			Ready: func(cycle int64) bool { return src.TransactionReady(cycle, name) },
			Body: func(ctx context.Context, c Caller) error {
				for _, method := range uniqueInOrder(calls) {
					args, ok := src.Args(c.Cycle(), name, method)
					if !ok {
						args = ir.ZeroRecord(m.methods[method].Input)
					}
					if _, err := c.Call(ctx, method, args); err != nil {
						return err
					}
				}
				return nil
			},
		}
		if err := m.Transaction(name, def); err != nil {
			return nil, err
		}
	}

	for _, r := range d.Relations {
		var err error
		switch r.Kind {
		case ir.RelationExclusive:
			err = m.Exclusive(r.A, r.B)
		case ir.RelationPriority:
			err = m.Priority(r.A, r.B)
		default:
			err = &graph.DeclarationError{Code: graph.CodeUnknownName, Name: string(r.Kind), Message: "unknown relation kind"}
		}
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}
