package graph

import (
	"fmt"
	"strings"

	"github.com/roach88/txsched/internal/ir"
)

// NodeKind distinguishes transactions from methods.
type NodeKind int

const (
	// KindMethod marks a method node.
	KindMethod NodeKind = iota + 1
	// KindTransaction marks a transaction node.
	KindTransaction
)

func (k NodeKind) String() string {
	switch k {
	case KindMethod:
		return "method"
	case KindTransaction:
		return "transaction"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

// node is one arena entry. index is the position within its kind
// (transaction index or method index); the arena position is the
// declaration order across both kinds.
type node struct {
	name  string
	kind  NodeKind
	index int
	calls []string // unresolved until Finalize
}

type relation struct {
	kind ir.RelationKind
	a, b string
}

// Builder accumulates declarations. It is not safe for concurrent use; the
// build phase is single-threaded.
type Builder struct {
	nodes     []node
	byName    map[string]int
	numTx     int
	numMethod int
	relations []relation
	finalized bool
}

// NewBuilder returns an empty builder in the accumulation phase.
func NewBuilder() *Builder {
	return &Builder{byName: make(map[string]int)}
}

// AddMethod declares a method and the methods its body calls.
// Callees may be declared later; names are resolved at Finalize.
func (b *Builder) AddMethod(name string, calls ...string) error {
	return b.add(name, KindMethod, calls)
}

// AddTransaction declares a transaction and the methods its body calls.
func (b *Builder) AddTransaction(name string, calls ...string) error {
	return b.add(name, KindTransaction, calls)
}

func (b *Builder) add(name string, kind NodeKind, calls []string) error {
	if b.finalized {
		return &LateRegistrationError{Op: kind.String(), Name: name}
	}
	if strings.TrimSpace(name) == "" {
		return &DeclarationError{Code: CodeEmptyName, Name: name, Message: kind.String() + " name is required"}
	}
	if _, dup := b.byName[name]; dup {
		return &DeclarationError{Code: CodeDuplicateName, Name: name, Message: "name already declared"}
	}

	n := node{name: name, kind: kind, calls: append([]string(nil), calls...)}
	if kind == KindTransaction {
		n.index = b.numTx
		b.numTx++
	} else {
		n.index = b.numMethod
		b.numMethod++
	}
	b.byName[name] = len(b.nodes)
	b.nodes = append(b.nodes, n)
	return nil
}

// AddCall records that caller's body calls callee. Used to compose nested
// calls after the caller was declared.
func (b *Builder) AddCall(caller, callee string) error {
	if b.finalized {
		return &LateRegistrationError{Op: "call", Name: caller + "->" + callee}
	}
	pos, ok := b.byName[caller]
	if !ok {
		return &DeclarationError{Code: CodeUnknownName, Name: caller, Message: "call from undeclared node"}
	}
	b.nodes[pos].calls = append(b.nodes[pos].calls, callee)
	return nil
}

// Exclusive declares that a and b never fire in the same cycle. Either side
// may be a transaction or a method.
func (b *Builder) Exclusive(a, bName string) error {
	return b.relate(ir.RelationExclusive, a, bName)
}

// Priority declares that higher is preferred over lower when both are
// ready, and that lower must not fire when higher does.
func (b *Builder) Priority(higher, lower string) error {
	return b.relate(ir.RelationPriority, higher, lower)
}

func (b *Builder) relate(kind ir.RelationKind, a, bName string) error {
	if b.finalized {
		return &LateRegistrationError{Op: string(kind), Name: a + "," + bName}
	}
	if a == bName {
		return &DeclarationError{Code: CodeSelfRelation, Name: a, Message: string(kind) + " relation with itself"}
	}
	b.relations = append(b.relations, relation{kind: kind, a: a, b: bName})
	return nil
}

// Finalized reports whether Finalize has succeeded.
func (b *Builder) Finalized() bool {
	return b.finalized
}

// FromDesign registers every declaration of d, in order, and finalizes.
func FromDesign(d ir.Design) (*ConflictGraph, error) {
	b := NewBuilder()
	if err := b.Declare(d); err != nil {
		return nil, err
	}
	return b.Finalize()
}

// Declare registers every declaration of d in declaration order: methods,
// then transactions, then relations.
func (b *Builder) Declare(d ir.Design) error {
	for _, m := range d.Methods {
		if err := b.AddMethod(m.Name, m.Calls...); err != nil {
			return err
		}
	}
	for _, t := range d.Transactions {
		if err := b.AddTransaction(t.Name, t.Calls...); err != nil {
			return err
		}
	}
	for _, r := range d.Relations {
		var err error
		switch r.Kind {
		case ir.RelationExclusive:
			err = b.Exclusive(r.A, r.B)
		case ir.RelationPriority:
			err = b.Priority(r.A, r.B)
		default:
			err = &DeclarationError{Code: CodeUnknownName, Name: string(r.Kind), Message: "unknown relation kind"}
		}
		if err != nil {
			return err
		}
	}
	return nil
}
