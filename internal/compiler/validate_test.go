package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txsched/internal/ir"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

// TestValidate_Valid tests that a well-formed design has no errors.
func TestValidate_Valid(t *testing.T) {
	d := &ir.Design{
		Methods:      []ir.MethodDecl{{Name: "M", Input: []ir.Field{{Name: "v", Type: "int"}}}},
		Transactions: []ir.TransactionDecl{{Name: "T1", Calls: []string{"M"}}, {Name: "T2"}},
		Relations:    []ir.RelationDecl{{Kind: ir.RelationExclusive, A: "T1", B: "T2"}},
	}
	assert.Empty(t, Validate(d))
}

// TestValidate_Codes tests each error code in isolation.
func TestValidate_Codes(t *testing.T) {
	tx := []ir.TransactionDecl{{Name: "T"}}

	tests := []struct {
		name string
		d    ir.Design
		want []string
	}{
		{
			name: "no transactions",
			d:    ir.Design{},
			want: []string{ErrDesignNoTransactions},
		},
		{
			name: "bad name",
			d:    ir.Design{Transactions: []ir.TransactionDecl{{Name: "9lives"}}},
			want: []string{ErrInvalidName},
		},
		{
			name: "duplicate name across kinds",
			d:    ir.Design{Methods: []ir.MethodDecl{{Name: "T"}}, Transactions: tx},
			want: []string{ErrDuplicateName},
		},
		{
			name: "duplicate layout field",
			d: ir.Design{
				Methods:      []ir.MethodDecl{{Name: "M", Output: []ir.Field{{Name: "x", Type: "int"}, {Name: "x", Type: "int"}}}},
				Transactions: tx,
			},
			want: []string{ErrDuplicateField},
		},
		{
			name: "invalid type",
			d: ir.Design{
				Methods:      []ir.MethodDecl{{Name: "M", Input: []ir.Field{{Name: "x", Type: "bytes"}}}},
				Transactions: tx,
			},
			want: []string{ErrInvalidFieldType},
		},
		{
			name: "float type",
			d: ir.Design{
				Methods:      []ir.MethodDecl{{Name: "M", Input: []ir.Field{{Name: "x", Type: "float64"}}}},
				Transactions: tx,
			},
			want: []string{ErrFloatTypeForbidden},
		},
		{
			name: "unknown call",
			d:    ir.Design{Transactions: []ir.TransactionDecl{{Name: "T", Calls: []string{"nope"}}}},
			want: []string{ErrUnknownCall},
		},
		{
			name: "calls transaction",
			d:    ir.Design{Transactions: []ir.TransactionDecl{{Name: "T", Calls: []string{"U"}}, {Name: "U"}}},
			want: []string{ErrCallsTransaction},
		},
		{
			name: "bad relation kind",
			d: ir.Design{
				Transactions: []ir.TransactionDecl{{Name: "T"}, {Name: "U"}},
				Relations:    []ir.RelationDecl{{Kind: "before", A: "T", B: "U"}},
			},
			want: []string{ErrInvalidRelationKind},
		},
		{
			name: "unknown relation side",
			d: ir.Design{
				Transactions: tx,
				Relations:    []ir.RelationDecl{{Kind: ir.RelationExclusive, A: "T", B: "ghost"}},
			},
			want: []string{ErrUnknownRelationName},
		},
		{
			name: "self relation",
			d: ir.Design{
				Transactions: tx,
				Relations:    []ir.RelationDecl{{Kind: ir.RelationExclusive, A: "T", B: "T"}},
			},
			want: []string{ErrSelfRelation},
		},
		{
			name: "call cycle",
			d: ir.Design{
				Methods:      []ir.MethodDecl{{Name: "A", Calls: []string{"B"}}, {Name: "B", Calls: []string{"A"}}},
				Transactions: tx,
			},
			want: []string{ErrCallCycle},
		},
		{
			name: "priority loop",
			d: ir.Design{
				Transactions: []ir.TransactionDecl{{Name: "T"}, {Name: "U"}},
				Relations: []ir.RelationDecl{
					{Kind: ir.RelationPriority, A: "T", B: "U"},
					{Kind: ir.RelationPriority, A: "U", B: "T"},
				},
			},
			want: []string{ErrDeclaredPriorityLoop},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codes(Validate(&tt.d)))
		})
	}
}

// TestValidate_CollectsAll tests that validation does not stop at the first error.
func TestValidate_CollectsAll(t *testing.T) {
	d := &ir.Design{
		Methods: []ir.MethodDecl{{Name: "M", Input: []ir.Field{{Name: "x", Type: "float"}}}},
		Transactions: []ir.TransactionDecl{
			{Name: "T", Calls: []string{"ghost"}},
			{Name: "T"},
		},
		Relations: []ir.RelationDecl{{Kind: "sometimes", A: "T", B: "M"}},
	}

	errs := Validate(d)
	require.Len(t, errs, 4)
	assert.Equal(t, []string{ErrFloatTypeForbidden, ErrDuplicateName, ErrUnknownCall, ErrInvalidRelationKind}, codes(errs))
	assert.Equal(t, "methods[0].input[0].type", errs[0].Field)
	assert.Contains(t, errs[0].Error(), "[E106]")
}
