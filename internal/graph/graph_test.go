package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txsched/internal/ir"
)

func mustFinalize(t *testing.T, b *Builder) *ConflictGraph {
	t.Helper()
	g, err := b.Finalize()
	require.NoError(t, err)
	return g
}

func txIdx(t *testing.T, g *ConflictGraph, name string) int {
	t.Helper()
	i, ok := g.TransactionIndex(name)
	require.True(t, ok, "transaction %s", name)
	return i
}

// TestFinalize_SharedMethodIsExclusive tests that two callers of one method conflict.
func TestFinalize_SharedMethodIsExclusive(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddMethod("M"))
	require.NoError(t, b.AddTransaction("T1", "M"))
	require.NoError(t, b.AddTransaction("T2", "M"))
	g := mustFinalize(t, b)

	t1, t2 := txIdx(t, g, "T1"), txIdx(t, g, "T2")
	assert.True(t, g.Exclusive(t1, t2))
	assert.True(t, g.Exclusive(t2, t1))
	assert.Equal(t, []int{t2}, g.Neighbors(t1))
	assert.Equal(t, []Edge{{Kind: EdgeExclusive, A: "T1", B: "T2", Reason: "method M"}}, g.Edges())
}

// TestFinalize_DistinctMethodsIndependent tests that disjoint closures do not conflict.
func TestFinalize_DistinctMethodsIndependent(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddMethod("M1"))
	require.NoError(t, b.AddMethod("M2"))
	require.NoError(t, b.AddTransaction("T1", "M1"))
	require.NoError(t, b.AddTransaction("T2", "M2"))
	g := mustFinalize(t, b)

	assert.False(t, g.Exclusive(0, 1))
	assert.Equal(t, [][]int{{0}, {1}}, g.Components())
	assert.Empty(t, g.Edges())
}

// TestFinalize_NestedCallsJoinClosure tests that methods called by methods are in the closure.
func TestFinalize_NestedCallsJoinClosure(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddMethod("Outer", "Inner"))
	require.NoError(t, b.AddMethod("Inner"))
	require.NoError(t, b.AddTransaction("T1", "Outer"))
	require.NoError(t, b.AddTransaction("T2", "Inner"))
	g := mustFinalize(t, b)

	outer, _ := g.MethodIndex("Outer")
	inner, _ := g.MethodIndex("Inner")
	assert.Equal(t, []int{outer, inner}, g.Closure(0))
	assert.Equal(t, []int{inner}, g.Closure(1))
	assert.True(t, g.Reaches(0, inner))
	assert.True(t, g.MethodReaches(outer, inner))
	assert.True(t, g.MethodReaches(inner, inner))
	assert.False(t, g.MethodReaches(inner, outer))
	assert.Equal(t, []int{0, 1}, g.Callers(inner))
	assert.Equal(t, []int{0}, g.Callers(outer))

	assert.True(t, g.Exclusive(0, 1))
	assert.Equal(t, "method Inner", g.Edges()[0].Reason)
}

// TestFinalize_AddCallComposes tests call edges added after declaration.
func TestFinalize_AddCallComposes(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddTransaction("T"))
	require.NoError(t, b.AddMethod("M"))
	require.NoError(t, b.AddCall("T", "M"))
	require.NoError(t, b.AddCall("T", "M"))
	g := mustFinalize(t, b)

	assert.Equal(t, []int{0}, g.Calls(0), "duplicate calls are collapsed")
	assert.Empty(t, g.Diagnostics())
}

// TestFinalize_PriorityChainOrder tests that a declared chain is the canonical order.
func TestFinalize_PriorityChainOrder(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddMethod("M"))
	require.NoError(t, b.AddTransaction("T3", "M"))
	require.NoError(t, b.AddTransaction("T2", "M"))
	require.NoError(t, b.AddTransaction("T1", "M"))
	require.NoError(t, b.Priority("T1", "T2"))
	require.NoError(t, b.Priority("T2", "T3"))
	g := mustFinalize(t, b)

	t1, t2, t3 := txIdx(t, g, "T1"), txIdx(t, g, "T2"), txIdx(t, g, "T3")
	assert.Equal(t, []int{t1, t2, t3}, g.Order())
	assert.Equal(t, 0, g.Rank(t1))
	assert.Equal(t, 2, g.Rank(t3))
	assert.True(t, g.HasPriority(t1, t2))
	assert.False(t, g.HasPriority(t2, t1))
	assert.Equal(t, [][]int{{t1, t2, t3}}, g.Components())
}

// TestFinalize_OrderFallsBackToDeclaration tests the earliest-declared tie-break.
func TestFinalize_OrderFallsBackToDeclaration(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddTransaction("A"))
	require.NoError(t, b.AddTransaction("B"))
	require.NoError(t, b.AddTransaction("C"))
	require.NoError(t, b.AddTransaction("D"))
	require.NoError(t, b.Priority("D", "B"))
	g := mustFinalize(t, b)

	// A is available first, B waits for D, C precedes D by declaration.
	assert.Equal(t, []int{0, 2, 3, 1}, g.Order())
}

// TestFinalize_PriorityImpliesExclusive tests that a priority edge also excludes.
func TestFinalize_PriorityImpliesExclusive(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddTransaction("A"))
	require.NoError(t, b.AddTransaction("B"))
	require.NoError(t, b.Priority("B", "A"))
	g := mustFinalize(t, b)

	assert.True(t, g.Exclusive(0, 1))
	assert.Equal(t, []int{1, 0}, g.Order())
	assert.Equal(t, []Edge{
		{Kind: EdgeExclusive, A: "A", B: "B", Reason: "priority B A"},
		{Kind: EdgePriority, A: "B", B: "A"},
	}, g.Edges())
}

// TestFinalize_MethodPriorityIsLifted tests that method-level priority orders their callers.
func TestFinalize_MethodPriorityIsLifted(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddMethod("Low"))
	require.NoError(t, b.AddMethod("High"))
	require.NoError(t, b.AddTransaction("UsesLow", "Low"))
	require.NoError(t, b.AddTransaction("UsesHigh", "High"))
	require.NoError(t, b.Priority("High", "Low"))
	g := mustFinalize(t, b)

	low, high := txIdx(t, g, "UsesLow"), txIdx(t, g, "UsesHigh")
	assert.True(t, g.HasPriority(high, low))
	assert.True(t, g.Exclusive(high, low))
	assert.Equal(t, []int{high, low}, g.Order())
}

// TestFinalize_MixedExclusiveIsLifted tests an Exclusive between a transaction and a method.
func TestFinalize_MixedExclusiveIsLifted(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddMethod("M"))
	require.NoError(t, b.AddTransaction("T1", "M"))
	require.NoError(t, b.AddTransaction("T2"))
	require.NoError(t, b.Exclusive("T2", "M"))
	g := mustFinalize(t, b)

	assert.True(t, g.Exclusive(0, 1))
	assert.Equal(t, "exclusive T2 M", g.Edges()[0].Reason)
}

// TestFinalize_DirectPriorityCycle tests A > B and B > A.
func TestFinalize_DirectPriorityCycle(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddTransaction("A"))
	require.NoError(t, b.AddTransaction("B"))
	require.NoError(t, b.Priority("A", "B"))
	require.NoError(t, b.Priority("B", "A"))

	g, err := b.Finalize()
	require.Error(t, err)
	assert.Nil(t, g)
	assert.True(t, IsConflictGraphError(err))

	var ce *ConflictGraphError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, CodePriorityCycle, ce.Code)
	assert.Equal(t, []string{"A", "B", "A"}, ce.Path)
	assert.Contains(t, err.Error(), "A → B → A")
	assert.False(t, b.Finalized(), "failed finalize keeps the builder open")
}

// TestFinalize_LiftedPriorityCycle tests a cycle that only appears after lifting.
func TestFinalize_LiftedPriorityCycle(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddMethod("M1"))
	require.NoError(t, b.AddMethod("M2"))
	require.NoError(t, b.AddTransaction("T1", "M1"))
	require.NoError(t, b.AddTransaction("T2", "M2"))
	require.NoError(t, b.Priority("M1", "M2"))
	require.NoError(t, b.Priority("T2", "T1"))

	_, err := b.Finalize()
	var ce *ConflictGraphError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, CodePriorityCycle, ce.Code)
	assert.Equal(t, []string{"T1", "T2", "T1"}, ce.Path)
}

// TestFinalize_CallCycle tests mutually recursive methods.
func TestFinalize_CallCycle(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddMethod("M1", "M2"))
	require.NoError(t, b.AddMethod("M2", "M1"))
	require.NoError(t, b.AddTransaction("T", "M1"))

	_, err := b.Finalize()
	var ce *ConflictGraphError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, CodeCallCycle, ce.Code)
	assert.Equal(t, []string{"M1", "M2", "M1"}, ce.Path)
}

// TestFinalize_SelfCall tests a method calling itself.
func TestFinalize_SelfCall(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddMethod("M", "M"))

	_, err := b.Finalize()
	var ce *ConflictGraphError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, CodeCallCycle, ce.Code)
	assert.Equal(t, []string{"M", "M"}, ce.Path)
}

// TestFinalize_SelfConflict tests a transaction reaching two exclusive methods.
func TestFinalize_SelfConflict(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddMethod("M1"))
	require.NoError(t, b.AddMethod("M2"))
	require.NoError(t, b.AddTransaction("T", "M1", "M2"))
	require.NoError(t, b.Exclusive("M1", "M2"))

	_, err := b.Finalize()
	var ce *ConflictGraphError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, CodeSelfConflict, ce.Code)
	assert.Equal(t, "T", ce.Transaction)
	assert.Empty(t, ce.Path)
}

// TestFinalize_UnreachableMethodDiagnostic tests the warning for uncalled methods.
func TestFinalize_UnreachableMethodDiagnostic(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddMethod("Used"))
	require.NoError(t, b.AddMethod("Orphan"))
	require.NoError(t, b.AddTransaction("T", "Used"))
	g := mustFinalize(t, b)

	diags := g.Diagnostics()
	require.Len(t, diags, 1)
	var ue *UnreachableMethodError
	require.True(t, errors.As(diags[0], &ue))
	assert.Equal(t, "Orphan", ue.Method)
}

// TestBuilder_LateRegistration tests that every mutation fails after Finalize.
func TestBuilder_LateRegistration(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddMethod("M"))
	require.NoError(t, b.AddTransaction("T", "M"))
	mustFinalize(t, b)
	assert.True(t, b.Finalized())

	assert.True(t, IsLateRegistration(b.AddMethod("M2")))
	assert.True(t, IsLateRegistration(b.AddTransaction("T2")))
	assert.True(t, IsLateRegistration(b.AddCall("T", "M")))
	assert.True(t, IsLateRegistration(b.Exclusive("T", "M")))
	assert.True(t, IsLateRegistration(b.Priority("T", "M")))

	_, err := b.Finalize()
	assert.True(t, IsLateRegistration(err))
}

// TestBuilder_DeclarationErrors tests malformed declarations.
func TestBuilder_DeclarationErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder) error
		code  DeclarationCode
	}{
		{
			name:  "empty name",
			build: func(b *Builder) error { return b.AddMethod(" ") },
			code:  CodeEmptyName,
		},
		{
			name: "duplicate across kinds",
			build: func(b *Builder) error {
				_ = b.AddMethod("X")
				return b.AddTransaction("X")
			},
			code: CodeDuplicateName,
		},
		{
			name:  "self relation",
			build: func(b *Builder) error { return b.Exclusive("A", "A") },
			code:  CodeSelfRelation,
		},
		{
			name: "undeclared callee",
			build: func(b *Builder) error {
				_ = b.AddTransaction("T", "Missing")
				_, err := b.Finalize()
				return err
			},
			code: CodeUnknownName,
		},
		{
			name: "calls a transaction",
			build: func(b *Builder) error {
				_ = b.AddTransaction("T1")
				_ = b.AddTransaction("T2", "T1")
				_, err := b.Finalize()
				return err
			},
			code: CodeCallTransaction,
		},
		{
			name: "relation names undeclared node",
			build: func(b *Builder) error {
				_ = b.AddTransaction("T")
				_ = b.Priority("T", "Ghost")
				_, err := b.Finalize()
				return err
			},
			code: CodeUnknownName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build(NewBuilder())
			var de *DeclarationError
			require.True(t, errors.As(err, &de), "got %v", err)
			assert.Equal(t, tt.code, de.Code)
		})
	}
}

// TestFromDesign tests building from a compiled design.
func TestFromDesign(t *testing.T) {
	d := ir.Design{
		Name: "fetch",
		Methods: []ir.MethodDecl{
			{Name: "icache_read"},
			{Name: "redirect"},
		},
		Transactions: []ir.TransactionDecl{
			{Name: "fetch", Calls: []string{"icache_read"}},
			{Name: "flush", Calls: []string{"redirect", "icache_read"}},
		},
		Relations: []ir.RelationDecl{
			{Kind: ir.RelationPriority, A: "flush", B: "fetch"},
		},
	}
	g, err := FromDesign(d)
	require.NoError(t, err)

	assert.Equal(t, []string{"fetch", "flush"}, g.TransactionNames())
	assert.Equal(t, []string{"icache_read", "redirect"}, g.MethodNames())
	assert.Equal(t, []int{1, 0}, g.Order())
}

// TestFromDesign_UnknownRelationKind tests rejection of unsupported kinds.
func TestFromDesign_UnknownRelationKind(t *testing.T) {
	d := ir.Design{
		Transactions: []ir.TransactionDecl{{Name: "A"}, {Name: "B"}},
		Relations:    []ir.RelationDecl{{Kind: "sequence", A: "A", B: "B"}},
	}
	_, err := FromDesign(d)
	assert.True(t, IsDeclarationError(err))
}
