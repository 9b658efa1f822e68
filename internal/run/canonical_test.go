package run

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"zebra": "z",
		"apple": "a",
		"mango": int64(3),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"apple":"a","mango":3,"zebra":"z"}`, string(got))
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{"cmd": "a < b && c > d"})
	require.NoError(t, err)
	assert.Equal(t, `{"cmd":"a < b && c > d"}`, string(got))
}

func TestMarshalCanonical_NFCNormalization(t *testing.T) {
	// "e" + combining acute accent normalizes to U+00E9
	got, err := MarshalCanonical("cafe\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"caf\u00e9\"", string(got))
}

func TestMarshalCanonical_Nested(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"packages": []any{"nginx", map[string]any{"b": true, "a": nil}},
		"port":     float64(8080),
		"ratio":    0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"packages":["nginx",{"a":null,"b":true}],"port":8080,"ratio":0.5}`, string(got))
}

func TestMarshalCanonical_RejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(math.Inf(1))
	assert.Error(t, err)
}

func TestMarshalCanonical_RejectsUnsupported(t *testing.T) {
	_, err := MarshalCanonical(struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestNormalize_Shapes(t *testing.T) {
	in := map[string]any{
		"count": 3,
		"big":   json.Number("9007199254740993"),
		"frac":  json.Number("1.25"),
		"list":  []any{int32(1), float32(2)},
		"yaml":  map[any]any{"k": "v"},
	}
	out, err := Normalize(in)
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Equal(t, int64(3), m["count"])
	assert.Equal(t, int64(9007199254740993), m["big"])
	assert.Equal(t, 1.25, m["frac"])
	assert.Equal(t, []any{int64(1), float64(2)}, m["list"])
	assert.Equal(t, map[string]any{"k": "v"}, m["yaml"])
}

func TestNormalize_RejectsNonStringKeys(t *testing.T) {
	_, err := Normalize(map[any]any{1: "v"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-string key")
}

func TestDigest_StableAcrossKeyOrder(t *testing.T) {
	a := ExpectedConfig{NodeID: "n1", Version: "v1", Document: map[string]any{"x": "1", "y": "2"}}
	b := ExpectedConfig{NodeID: "n1", Version: "v1", Document: map[string]any{"y": "2", "x": "1"}}

	da, err := a.Digest()
	require.NoError(t, err)
	db, err := b.Digest()
	require.NoError(t, err)

	assert.Equal(t, da, db)
	assert.Len(t, da, 64)
}

func TestDigest_DiffersByVersion(t *testing.T) {
	a := ExpectedConfig{NodeID: "n1", Version: "v1"}
	b := ExpectedConfig{NodeID: "n1", Version: "v2"}

	da, err := a.Digest()
	require.NoError(t, err)
	db, err := b.Digest()
	require.NoError(t, err)

	assert.NotEqual(t, da, db)
}
