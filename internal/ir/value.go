package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"unicode/utf16"

	"gopkg.in/yaml.v3"
)

// Value is a sealed interface for method argument and result data.
// Only Str, Int, Bool, List and Record implement it. There is no float
// variant: hardware data paths are integers.
type Value interface {
	value()
}

// Str is a string value.
type Str string

func (Str) value() {}

// Int is an integer value. Always int64.
type Int int64

func (Int) value() {}

// Bool is a single-bit value.
type Bool bool

func (Bool) value() {}

// List is an ordered sequence of values.
type List []Value

func (List) value() {}

// Record maps field names to values. It is the payload type of every
// method call. Use SortedKeys for deterministic iteration.
type Record map[string]Value

func (Record) value() {}

// TypeName returns the layout type name of a value ("string", "int",
// "bool", "array", "object").
func TypeName(v Value) string {
	switch v.(type) {
	case Str:
		return "string"
	case Int:
		return "int"
	case Bool:
		return "bool"
	case List:
		return "array"
	case Record:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// SortedKeys returns keys ordered by UTF-16 code units (RFC 8785).
func (r Record) SortedKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// compareUTF16 orders strings by UTF-16 code units. Go string comparison
// works on UTF-8 bytes, which orders supplementary-plane runes differently.
func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// MarshalJSON encodes the record with sorted keys.
func (r Record) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(r)
}

// MarshalJSON encodes the list element by element.
func (l List) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(l)
}

// UnmarshalJSON decodes a JSON object into a Record, rejecting floats and
// nulls.
func (r *Record) UnmarshalJSON(data []byte) error {
	v, err := ParseJSON(data)
	if err != nil {
		return err
	}
	rec, ok := v.(Record)
	if !ok {
		return fmt.Errorf("expected object, got %s", TypeName(v))
	}
	*r = rec
	return nil
}

// UnmarshalYAML decodes a YAML mapping into a Record, rejecting floats and
// nulls.
func (r *Record) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	rec, err := RecordFromMap(raw)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

// ParseJSON decodes arbitrary JSON into a Value.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromAny(raw)
}

// FromAny converts decoded JSON or YAML data into a Value.
// Accepts the shapes produced by encoding/json (with UseNumber) and
// gopkg.in/yaml.v3. Floats with a fractional part and nulls are rejected.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a valid method value")
	case Value:
		return val, nil
	case string:
		return Str(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return Int(val), nil
	case float64:
		if val != math.Trunc(val) {
			return nil, fmt.Errorf("floats are not valid method values: %v", val)
		}
		return Int(int64(val)), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are not valid method values: %s", val)
		}
		return Int(n), nil
	case []any:
		out := make(List, len(val))
		for i, elem := range val {
			conv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = conv
		}
		return out, nil
	case map[string]any:
		out := make(Record, len(val))
		for k, elem := range val {
			conv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = conv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// RecordFromMap converts a plain map (as decoded from YAML) into a Record.
// A nil map yields an empty record.
func RecordFromMap(m map[string]any) (Record, error) {
	rec := make(Record, len(m))
	for k, v := range m {
		conv, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		rec[k] = conv
	}
	return rec, nil
}

// CheckLayout reports whether rec matches the field layout exactly: every
// declared field present with the declared type, and no extra fields.
func CheckLayout(layout []Field, rec Record) error {
	for _, f := range layout {
		v, ok := rec[f.Name]
		if !ok {
			return fmt.Errorf("missing field %q", f.Name)
		}
		if got := TypeName(v); got != f.Type {
			return fmt.Errorf("field %q: expected %s, got %s", f.Name, f.Type, got)
		}
	}
	if len(rec) != len(layout) {
		declared := make(map[string]bool, len(layout))
		for _, f := range layout {
			declared[f.Name] = true
		}
		for _, k := range rec.SortedKeys() {
			if !declared[k] {
				return fmt.Errorf("undeclared field %q", k)
			}
		}
	}
	return nil
}

// ZeroRecord returns the record with every layout field at its zero value.
func ZeroRecord(layout []Field) Record {
	rec := make(Record, len(layout))
	for _, f := range layout {
		switch f.Type {
		case "string":
			rec[f.Name] = Str("")
		case "int":
			rec[f.Name] = Int(0)
		case "bool":
			rec[f.Name] = Bool(false)
		case "array":
			rec[f.Name] = List{}
		case "object":
			rec[f.Name] = Record{}
		}
	}
	return rec
}
