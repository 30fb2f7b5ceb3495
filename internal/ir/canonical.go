package ir

import (
	"bytes"
	"fmt"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 style canonical JSON.
// This is the only serialization used for content hashes and golden traces.
//
// Differences from encoding/json:
//   - Object keys sorted by UTF-16 code units
//   - No HTML escaping; only quote, backslash and control characters escaped
//   - Strings NFC normalized
//   - Floats and nulls rejected
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("null is forbidden in canonical JSON")
	case Str:
		writeCanonicalString(buf, string(val))
	case string:
		writeCanonicalString(buf, val)
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case int:
		buf.WriteString(strconv.Itoa(val))
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(val)))
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case List:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case []string:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalString(buf, elem)
		}
		buf.WriteByte(']')
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Record:
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalString(buf, k)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
		}
		buf.WriteByte('}')
	case map[string]any:
		rec := make(Record, len(val))
		for k, elem := range val {
			conv, err := toCanonicalValue(elem)
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			rec[k] = conv
		}
		return writeCanonical(buf, rec)
	case float32, float64:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

// toCanonicalValue lifts plain Go values nested in map[string]any into
// Values so records can be sorted uniformly.
func toCanonicalValue(v any) (Value, error) {
	switch val := v.(type) {
	case []string:
		out := make(List, len(val))
		for i, s := range val {
			out[i] = Str(s)
		}
		return out, nil
	case []map[string]any:
		out := make(List, len(val))
		for i, m := range val {
			rec := make(Record, len(m))
			for k, elem := range m {
				conv, err := toCanonicalValue(elem)
				if err != nil {
					return nil, fmt.Errorf("[%d].%s: %w", i, k, err)
				}
				rec[k] = conv
			}
			out[i] = rec
		}
		return out, nil
	case map[string]any:
		rec := make(Record, len(val))
		for k, elem := range val {
			conv, err := toCanonicalValue(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			rec[k] = conv
		}
		return rec, nil
	case []any:
		out := make(List, len(val))
		for i, elem := range val {
			conv, err := toCanonicalValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = conv
		}
		return out, nil
	case float32, float64:
		return nil, fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		return FromAny(v)
	}
}

const hexDigits = "0123456789abcdef"

// writeCanonicalString writes s NFC-normalized with minimal escaping.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	s = norm.NFC.String(s)
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r < 0x20:
			buf.WriteString(`\u00`)
			buf.WriteByte(hexDigits[r>>4])
			buf.WriteByte(hexDigits[r&0xf])
		default:
			buf.WriteString(s[i : i+size])
		}
		i += size
	}
	buf.WriteByte('"')
}
