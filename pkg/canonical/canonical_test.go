package canonical

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSortsKeys(t *testing.T) {
	out, err := Marshal(map[string]interface{}{
		"zulu":  1,
		"alpha": 2,
		"mike":  map[string]interface{}{"b": true, "a": nil},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mike":{"a":null,"b":true},"zulu":1}`, string(out))
}

func TestMarshalPreservesArrayOrder(t *testing.T) {
	out, err := Marshal([]interface{}{3, 1, 2, "b", "a"})
	require.NoError(t, err)
	assert.Equal(t, `[3,1,2,"b","a"]`, string(out))
}

func TestMarshalShortestNumberForm(t *testing.T) {
	out, err := Marshal(map[string]interface{}{
		"epoch": int64(1724327716271),
		"half":  0.5,
		"whole": float64(10),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"epoch":1724327716271,"half":0.5,"whole":10}`, string(out))
}

func TestMarshalRoundTrip(t *testing.T) {
	value := map[string]interface{}{
		"nested": map[string]interface{}{"list": []interface{}{1, "two", false, nil}},
		"text":   "hello",
	}

	first, err := Marshal(value)
	require.NoError(t, err)

	var parsed interface{}
	require.NoError(t, json.Unmarshal(first, &parsed))

	second, err := Marshal(parsed)
	require.NoError(t, err)
	assert.Equal(t, first, second, "canonical(x) must equal canonical(parse(canonical(x)))")
}

func TestEqualIgnoresRepresentation(t *testing.T) {
	type payload struct {
		B int    `json:"b"`
		A string `json:"a"`
	}

	assert.True(t, Equal(
		payload{B: 7, A: "x"},
		map[string]interface{}{"a": "x", "b": float64(7)},
	))
	assert.False(t, Equal(
		payload{B: 7, A: "x"},
		map[string]interface{}{"a": "x", "b": float64(8)},
	))
}

func TestNormalizeCollapsesTypes(t *testing.T) {
	type item struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	normalized, err := Normalize(item{Name: "n", Count: 3})
	require.NoError(t, err)

	m, ok := normalized.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "n", m["name"])
	assert.Equal(t, float64(3), m["count"])
}
