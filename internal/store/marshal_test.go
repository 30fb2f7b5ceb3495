package store

import (
	"testing"

	"github.com/roach88/txsched/internal/ir"
)

func TestMarshalRecord_Canonical(t *testing.T) {
	got, err := marshalRecord(ir.Record{"b": ir.Int(2), "a": ir.Str("<x>")})
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"a":"<x>","b":2}`; got != want {
		t.Errorf("marshalRecord() = %s, want %s", got, want)
	}

	got, err = marshalRecord(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "{}" {
		t.Errorf("marshalRecord(nil) = %s, want {}", got)
	}
}

func TestMarshalNames_NilIsEmptyArray(t *testing.T) {
	got, err := marshalNames(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "[]" {
		t.Errorf("marshalNames(nil) = %s, want []", got)
	}

	names, err := unmarshalNames(got)
	if err != nil {
		t.Fatal(err)
	}
	if names == nil || len(names) != 0 {
		t.Errorf("unmarshalNames([]) = %#v", names)
	}
}

func TestMarshalDesign_NoHTMLEscape(t *testing.T) {
	got, err := marshalDesign(ir.Design{Name: "a<b>&c"})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"name":"a<b>&c","methods":null,"transactions":null,"relations":null}`
	if got != want {
		t.Errorf("marshalDesign() = %s, want %s", got, want)
	}
}
