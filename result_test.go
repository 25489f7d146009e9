package d1

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }

func TestNormalizeRawShape(t *testing.T) {
	res := rawResults{
		Columns: []string{"id", "name", "score"},
		Rows: []json.RawMessage{
			json.RawMessage(`[1, "alice", 1.5]`),
			json.RawMessage(`[2, "bob", null]`),
		},
	}
	out, err := normalizeRawShape(res, unknownMeta())
	require.NoError(t, err)
	require.Equal(t, []string{"id", "name", "score"}, out.columns)
	require.Len(t, out.rows, 2)
	require.Equal(t, []any{int64(1), "alice", 1.5}, out.rows[0])
	require.Equal(t, []any{int64(2), "bob", nil}, out.rows[1])
}

func TestNormalizeRawShapeEmpty(t *testing.T) {
	out, err := normalizeRawShape(rawResults{Columns: []string{"id", "name"}}, unknownMeta())
	require.NoError(t, err)
	require.Equal(t, []string{"id", "name"}, out.columns)
	require.Empty(t, out.rows)
}

func TestNormalizeRawShapeBadRow(t *testing.T) {
	res := rawResults{Columns: []string{"id"}, Rows: []json.RawMessage{json.RawMessage(`{"id":1}`)}}
	_, err := normalizeRawShape(res, unknownMeta())
	require.Error(t, err)
}

func TestNormalizeObjectShapeKeepsWireOrder(t *testing.T) {
	objs := []json.RawMessage{
		json.RawMessage(`{"zeta": 1, "alpha": "x", "mid": 2}`),
		json.RawMessage(`{"zeta": 3, "alpha": "y", "mid": 4}`),
	}
	out, err := normalizeObjectShape(objs, unknownMeta())
	require.NoError(t, err)
	// Column order is the first row's key order, not sorted.
	require.Equal(t, []string{"zeta", "alpha", "mid"}, out.columns)
	require.Equal(t, []any{int64(1), "x", int64(2)}, out.rows[0])
	require.Equal(t, []any{int64(3), "y", int64(4)}, out.rows[1])
}

func TestNormalizeObjectShapeEmpty(t *testing.T) {
	out, err := normalizeObjectShape(nil, unknownMeta())
	require.NoError(t, err)
	require.Empty(t, out.columns)
	require.Empty(t, out.rows)
}

type fakeProxy struct{ inner any }

func (p fakeProxy) Unwrap() any { return p.inner }

func TestNormalizeBindingShape(t *testing.T) {
	res := BindingResult{
		Rows: []OrderedRow{
			{Names: []string{"id", "blob"}, Values: []any{fakeProxy{inner: int64(7)}, Undefined}},
			{Names: []string{"id", "blob"}, Values: []any{int64(8), fakeProxy{inner: fakeProxy{inner: "nested"}}}},
		},
		Meta:    BindingMeta{Changes: int64p(0), LastRowID: int64p(7)},
		Success: true,
	}
	out, err := normalizeBindingShape(res)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "blob"}, out.columns)
	require.Equal(t, []any{int64(7), nil}, out.rows[0])
	require.Equal(t, []any{int64(8), "nested"}, out.rows[1])
	require.Equal(t, int64(0), out.meta.changes)
	require.True(t, out.meta.hasLastRowID)
	require.Equal(t, int64(7), out.meta.lastRowID)
}

func TestNormalizeBindingShapeWidthMismatch(t *testing.T) {
	res := BindingResult{
		Rows: []OrderedRow{
			{Names: []string{"a", "b"}, Values: []any{1, 2}},
			{Names: []string{"a", "b"}, Values: []any{1}},
		},
	}
	_, err := normalizeBindingShape(res)
	require.Error(t, err)
}

func TestUnwrapForeignNested(t *testing.T) {
	v := unwrapForeign(map[string]any{
		"plain":   "v",
		"proxy":   fakeProxy{inner: int64(1)},
		"missing": Undefined,
		"list":    []any{Undefined, fakeProxy{inner: "x"}},
	})
	m := v.(map[string]any)
	require.Equal(t, "v", m["plain"])
	require.Equal(t, int64(1), m["proxy"])
	require.Nil(t, m["missing"])
	require.Equal(t, []any{nil, "x"}, m["list"])
}

func TestDecodeOrderedObject(t *testing.T) {
	keys, values, err := decodeOrderedObject(json.RawMessage(`{"b": 2, "a": {"n": 1.25}, "c": [1, "two"]}`))
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a", "c"}, keys)
	require.Equal(t, int64(2), values["b"])
	require.Equal(t, map[string]any{"n": 1.25}, values["a"])
	require.Equal(t, []any{int64(1), "two"}, values["c"])
}

func TestDecodeOrderedObjectRejectsArray(t *testing.T) {
	_, _, err := decodeOrderedObject(json.RawMessage(`[1,2]`))
	require.Error(t, err)
}

func TestDecodeJSONValueNumbers(t *testing.T) {
	v, err := decodeJSONValue(json.RawMessage(`9007199254740999`))
	require.NoError(t, err)
	require.Equal(t, int64(9007199254740999), v)

	v, err = decodeJSONValue(json.RawMessage(`1.5`))
	require.NoError(t, err)
	require.Equal(t, 1.5, v)

	v, err = decodeJSONValue(json.RawMessage(`1e3`))
	require.NoError(t, err)
	require.Equal(t, 1000.0, v)
}

func TestHeaderColumns(t *testing.T) {
	cols := headerColumns([]any{"id", fakeProxy{inner: "name"}, int64(3)})
	require.Equal(t, []string{"id", "name", "3"}, cols)
}

func TestRestMetaToMeta(t *testing.T) {
	m := restMeta{}.toMeta()
	require.Equal(t, int64(-1), m.changes)
	require.False(t, m.hasLastRowID)

	m = restMeta{Changes: int64p(3), LastRowID: int64p(12)}.toMeta()
	require.Equal(t, int64(3), m.changes)
	require.Equal(t, int64(12), m.lastRowID)
	require.True(t, m.hasLastRowID)
}
