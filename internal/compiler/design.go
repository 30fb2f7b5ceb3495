package compiler

import (
	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/txsched/internal/ir"
)

// CompileDesign parses a CUE value into a Design.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value is the root of a design package:
//
//	design: "fetch"
//	method: redirect: input: pc: "int"
//	method: icache_read: {}
//	transaction: fetch: calls: ["icache_read"]
//	transaction: flush: calls: ["redirect", "icache_read"]
//	relation: [{kind: "priority", a: "flush", b: "fetch"}]
//
// Methods and transactions keep the order their fields are declared in,
// which is the declaration order the arbiter breaks ties by.
func CompileDesign(v cue.Value) (*ir.Design, error) {
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err)
	}

	d := &ir.Design{
		Methods:      []ir.MethodDecl{},
		Transactions: []ir.TransactionDecl{},
		Relations:    []ir.RelationDecl{},
	}

	if nameVal := v.LookupPath(cue.ParsePath("design")); nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, &CompileError{Field: "design", Message: "must be a string", Pos: nameVal.Pos()}
		}
		d.Name = name
	}

	var err error
	if d.Methods, err = parseMethods(v.LookupPath(cue.ParsePath("method"))); err != nil {
		return nil, err
	}
	if d.Transactions, err = parseTransactions(v.LookupPath(cue.ParsePath("transaction"))); err != nil {
		return nil, err
	}
	if d.Relations, err = parseRelations(v.LookupPath(cue.ParsePath("relation"))); err != nil {
		return nil, err
	}

	if len(d.Transactions) == 0 {
		return nil, &CompileError{
			Field:   "transaction",
			Message: "at least one transaction is required",
			Pos:     v.Pos(),
		}
	}

	return d, nil
}

// CompileString compiles CUE source text into a Design. filename is used
// in error positions only.
func CompileString(src, filename string) (*ir.Design, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return CompileDesign(v)
}

// parseMethods extracts method declarations in field order.
func parseMethods(v cue.Value) ([]ir.MethodDecl, error) {
	methods := []ir.MethodDecl{}
	if !v.Exists() {
		return methods, nil // a design may have no methods
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		mv := iter.Value()
		m := ir.MethodDecl{Name: iter.Label()}

		if m.Input, err = parseLayout(mv.LookupPath(cue.ParsePath("input")), "method."+m.Name+".input"); err != nil {
			return nil, err
		}
		if m.Output, err = parseLayout(mv.LookupPath(cue.ParsePath("output")), "method."+m.Name+".output"); err != nil {
			return nil, err
		}
		if m.Calls, err = parseNames(mv.LookupPath(cue.ParsePath("calls")), "method."+m.Name+".calls"); err != nil {
			return nil, err
		}
		if len(m.Calls) == 0 {
			m.Calls = nil
		}
		methods = append(methods, m)
	}

	return methods, nil
}

// parseTransactions extracts transaction declarations in field order.
func parseTransactions(v cue.Value) ([]ir.TransactionDecl, error) {
	txs := []ir.TransactionDecl{}
	if !v.Exists() {
		return txs, nil
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		t := ir.TransactionDecl{Name: iter.Label()}
		t.Calls, err = parseNames(iter.Value().LookupPath(cue.ParsePath("calls")), "transaction."+t.Name+".calls")
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}

	return txs, nil
}

// parseRelations extracts the relation list.
func parseRelations(v cue.Value) ([]ir.RelationDecl, error) {
	rels := []ir.RelationDecl{}
	if !v.Exists() {
		return rels, nil
	}

	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: "relation", Message: "must be a list", Pos: v.Pos()}
	}

	for iter.Next() {
		rv := iter.Value()
		var rel ir.RelationDecl
		for _, f := range []struct {
			name string
			dst  *string
		}{
			{"a", &rel.A},
			{"b", &rel.B},
		} {
			fv := rv.LookupPath(cue.ParsePath(f.name))
			if !fv.Exists() {
				return nil, &CompileError{Field: "relation." + f.name, Message: f.name + " is required", Pos: rv.Pos()}
			}
			s, err := fv.String()
			if err != nil {
				return nil, &CompileError{Field: "relation." + f.name, Message: "must be a string", Pos: fv.Pos()}
			}
			*f.dst = s
		}

		kindVal := rv.LookupPath(cue.ParsePath("kind"))
		if !kindVal.Exists() {
			return nil, &CompileError{Field: "relation.kind", Message: "kind is required", Pos: rv.Pos()}
		}
		kind, err := kindVal.String()
		if err != nil {
			return nil, &CompileError{Field: "relation.kind", Message: "must be a string", Pos: kindVal.Pos()}
		}
		rel.Kind = ir.RelationKind(kind)

		rels = append(rels, rel)
	}

	return rels, nil
}

// parseLayout reads a struct of field name to type string.
func parseLayout(v cue.Value, field string) ([]ir.Field, error) {
	if !v.Exists() {
		return nil, nil
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a struct of field types", Pos: v.Pos()}
	}

	var fields []ir.Field
	for iter.Next() {
		typ, err := extractTypeName(iter.Value())
		if err != nil {
			return nil, err
		}
		fields = append(fields, ir.Field{Name: iter.Label(), Type: typ})
	}
	return fields, nil
}

// parseNames reads a list of strings.
func parseNames(v cue.Value, field string) ([]string, error) {
	names := []string{}
	if !v.Exists() {
		return names, nil
	}

	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list of names", Pos: v.Pos()}
	}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "must be a list of names", Pos: iter.Value().Pos()}
		}
		names = append(names, s)
	}
	return names, nil
}

// extractTypeName gets the type string from a layout field value.
func extractTypeName(v cue.Value) (string, error) {
	s, err := v.String()
	if err != nil {
		return "", &CompileError{
			Field:   "type",
			Message: "field type must be a string",
			Pos:     v.Pos(),
		}
	}
	if s == "" {
		return "", &CompileError{
			Field:   "type",
			Message: "field type must not be empty",
			Pos:     v.Pos(),
		}
	}
	return s, nil
}
