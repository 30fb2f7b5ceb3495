package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/txsched/internal/ir"
)

// marshalRecord converts a Record to canonical JSON TEXT for storage.
func marshalRecord(rec ir.Record) (string, error) {
	if rec == nil {
		rec = ir.Record{}
	}
	data, err := ir.MarshalCanonical(rec)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return string(data), nil
}

// marshalNames converts a name list to a canonical JSON array.
func marshalNames(names []string) (string, error) {
	if names == nil {
		names = []string{}
	}
	data, err := ir.MarshalCanonical(names)
	if err != nil {
		return "", fmt.Errorf("marshal names: %w", err)
	}
	return string(data), nil
}

// marshalDesign converts a design to JSON TEXT. Struct field order fixes the
// layout; HTML escaping is disabled so names round-trip byte for byte.
func marshalDesign(d ir.Design) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return "", fmt.Errorf("marshal design: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

func unmarshalRecord(data string) (ir.Record, error) {
	if data == "" || data == "{}" {
		return ir.Record{}, nil
	}
	var rec ir.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec, nil
}

func unmarshalNames(data string) ([]string, error) {
	names := []string{}
	if data == "" {
		return names, nil
	}
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, fmt.Errorf("unmarshal names: %w", err)
	}
	return names, nil
}

func unmarshalDesign(data string) (ir.Design, error) {
	var d ir.Design
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return ir.Design{}, fmt.Errorf("unmarshal design: %w", err)
	}
	return d, nil
}
