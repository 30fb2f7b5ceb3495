package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestFromAny_YAMLShapes(t *testing.T) {
	v, err := FromAny(map[string]any{
		"addr":  42,
		"valid": true,
		"tag":   "rd",
		"regs":  []any{1, 2},
	})
	require.NoError(t, err)

	rec, ok := v.(Record)
	require.True(t, ok)
	assert.Equal(t, Int(42), rec["addr"])
	assert.Equal(t, Bool(true), rec["valid"])
	assert.Equal(t, Str("rd"), rec["tag"])
	assert.Equal(t, List{Int(1), Int(2)}, rec["regs"])
}

func TestFromAny_IntegralFloat(t *testing.T) {
	v, err := FromAny(float64(7))
	require.NoError(t, err)
	assert.Equal(t, Int(7), v)

	_, err = FromAny(7.25)
	assert.Error(t, err)
}

func TestFromAny_Null(t *testing.T) {
	_, err := FromAny(nil)
	assert.Error(t, err)
}

func TestRecord_JSONRoundTrip(t *testing.T) {
	rec := Record{"data": Int(5), "flags": List{Bool(true)}}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, `{"data":5,"flags":[true]}`, string(data))

	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, rec, back)
}

func TestRecord_UnmarshalRejectsFloat(t *testing.T) {
	var rec Record
	err := json.Unmarshal([]byte(`{"x":1.5}`), &rec)
	assert.Error(t, err)
}

func TestCheckLayout(t *testing.T) {
	layout := []Field{{Name: "addr", Type: "int"}, {Name: "tag", Type: "string"}}

	assert.NoError(t, CheckLayout(layout, Record{"addr": Int(1), "tag": Str("a")}))

	err := CheckLayout(layout, Record{"addr": Int(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing field "tag"`)

	err = CheckLayout(layout, Record{"addr": Str("1"), "tag": Str("a")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected int, got string")

	err = CheckLayout(layout, Record{"addr": Int(1), "tag": Str("a"), "extra": Bool(false)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `undeclared field "extra"`)

	assert.NoError(t, CheckLayout(nil, Record{}))
	assert.NoError(t, CheckLayout(nil, nil))
}

func TestRecord_UnmarshalYAML(t *testing.T) {
	var out struct {
		Args Record `yaml:"args"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("args:\n  addr: 4\n  tag: rd\n  regs: [1, 2]\n"), &out))
	assert.Equal(t, Record{"addr": Int(4), "tag": Str("rd"), "regs": List{Int(1), Int(2)}}, out.Args)

	err := yaml.Unmarshal([]byte("args:\n  x: 1.5\n"), &out)
	assert.Error(t, err)
}

func TestZeroRecord(t *testing.T) {
	layout := []Field{
		{Name: "s", Type: "string"},
		{Name: "i", Type: "int"},
		{Name: "b", Type: "bool"},
		{Name: "a", Type: "array"},
		{Name: "o", Type: "object"},
	}
	rec := ZeroRecord(layout)
	require.NoError(t, CheckLayout(layout, rec))
	assert.Equal(t, Int(0), rec["i"])
}
