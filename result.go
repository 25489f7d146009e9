package d1

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// resultMeta carries the provider's execution metadata. Changes is -1 when
// the provider did not report a count.
type resultMeta struct {
	changes      int64
	lastRowID    int64
	hasLastRowID bool
}

func unknownMeta() resultMeta { return resultMeta{changes: -1} }

// queryResult is the canonical result record every transport shape is
// normalized into. Rows are positional and aligned with columns; the order of
// columns determines the order of every fetched row.
type queryResult struct {
	columns []string
	rows    [][]any
	meta    resultMeta
}

// restMeta is the wire form of the REST meta object. Pointer fields
// distinguish absent from zero.
type restMeta struct {
	Changes   *int64 `json:"changes"`
	LastRowID *int64 `json:"last_row_id"`
}

func (m restMeta) toMeta() resultMeta {
	out := unknownMeta()
	if m.Changes != nil {
		out.changes = *m.Changes
	}
	if m.LastRowID != nil {
		out.lastRowID = *m.LastRowID
		out.hasLastRowID = true
	}
	return out
}

// --- Shape A: /raw endpoint, columnar ---

// rawResults is the payload of the /raw endpoint: column names plus
// positional rows.
type rawResults struct {
	Columns []string          `json:"columns"`
	Rows    []json.RawMessage `json:"rows"`
}

// normalizeRawShape zips positional rows against the column list.
func normalizeRawShape(res rawResults, meta resultMeta) (queryResult, error) {
	out := queryResult{columns: res.Columns, meta: meta}
	for i, raw := range res.Rows {
		var cells []json.RawMessage
		if err := json.Unmarshal(raw, &cells); err != nil {
			return queryResult{}, fmt.Errorf("row %d is not an array: %w", i, err)
		}
		row := make([]any, len(cells))
		for j, cell := range cells {
			v, err := decodeJSONValue(cell)
			if err != nil {
				return queryResult{}, fmt.Errorf("row %d column %d: %w", i, j, err)
			}
			row[j] = v
		}
		out.rows = append(out.rows, row)
	}
	return out, nil
}

// --- Shape B: /query endpoint, object rows ---

// normalizeObjectShape handles the legacy endpoint where rows arrive as
// name-keyed objects. Column order is recovered from the first row's key
// order on the wire; all rows of one result share the same key set.
func normalizeObjectShape(objs []json.RawMessage, meta resultMeta) (queryResult, error) {
	out := queryResult{meta: meta}
	for i, raw := range objs {
		keys, values, err := decodeOrderedObject(raw)
		if err != nil {
			return queryResult{}, fmt.Errorf("row %d: %w", i, err)
		}
		if i == 0 {
			out.columns = keys
		}
		row := make([]any, len(out.columns))
		for j, name := range out.columns {
			row[j] = values[name]
		}
		out.rows = append(out.rows, row)
	}
	return out, nil
}

// --- Shape C: native binding all() ---

// OrderedRow is a name-keyed row that preserves the host's column order.
type OrderedRow struct {
	Names  []string
	Values []any
}

// BindingResult is the raw outcome of a binding's bulk-fetch call.
type BindingResult struct {
	Rows    []OrderedRow
	Meta    BindingMeta
	Success bool
}

// BindingMeta mirrors the meta object the host attaches to each result.
type BindingMeta struct {
	Changes   *int64
	LastRowID *int64
}

// RawRows is the outcome of the binding's raw() call. With column names
// requested, the first entry is the header row.
type RawRows [][]any

// normalizeBindingShape converts a binding result, unwrapping any foreign
// host values on the way. Columns are inferred from the first row.
func normalizeBindingShape(res BindingResult) (queryResult, error) {
	meta := unknownMeta()
	if res.Meta.Changes != nil {
		meta.changes = *res.Meta.Changes
	}
	if res.Meta.LastRowID != nil {
		meta.lastRowID = *res.Meta.LastRowID
		meta.hasLastRowID = true
	}
	out := queryResult{meta: meta}
	for i, row := range res.Rows {
		if i == 0 {
			out.columns = row.Names
		}
		if len(row.Values) != len(out.columns) {
			return queryResult{}, fmt.Errorf("row %d has %d values, want %d", i, len(row.Values), len(out.columns))
		}
		vals := make([]any, len(row.Values))
		for j, v := range row.Values {
			vals[j] = unwrapForeign(v)
		}
		out.rows = append(out.rows, vals)
	}
	return out, nil
}

// headerColumns extracts the column list from a raw() header row, converting
// foreign values to plain strings.
func headerColumns(header []any) []string {
	cols := make([]string, 0, len(header))
	for _, v := range header {
		switch s := unwrapForeign(v).(type) {
		case string:
			cols = append(cols, s)
		default:
			cols = append(cols, fmt.Sprint(s))
		}
	}
	return cols
}

// --- Foreign value unwrapping ---

// ForeignValue is a host-runtime proxy wrapper around a native value. The
// transport boundary unwraps these recursively so nothing above it ever sees
// a wrapper type.
type ForeignValue interface {
	Unwrap() any
}

type undefinedValue struct{}

func (undefinedValue) String() string { return "undefined" }

// Undefined is the host runtime's "absent" sentinel. It normalizes to nil.
var Undefined = undefinedValue{}

// unwrapForeign converts host wrapper objects into plain Go values, including
// values nested inside maps and slices.
func unwrapForeign(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case undefinedValue:
		return nil
	case ForeignValue:
		return unwrapForeign(x.Unwrap())
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = unwrapForeign(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = unwrapForeign(e)
		}
		return out
	default:
		return v
	}
}

// --- JSON helpers ---

// decodeJSONValue decodes a single JSON value, keeping integers as int64
// rather than collapsing every number to float64.
func decodeJSONValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return coerceJSONValue(v), nil
}

func coerceJSONValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if !strings.ContainsAny(x.String(), ".eE") {
			if i, err := x.Int64(); err == nil {
				return i
			}
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i, e := range x {
			x[i] = coerceJSONValue(e)
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = coerceJSONValue(e)
		}
		return x
	default:
		return v
	}
}

// decodeOrderedObject decodes a JSON object keeping the key order seen on the
// wire. encoding/json maps lose order, and column order is significant.
func decodeOrderedObject(raw json.RawMessage) ([]string, map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}
	var keys []string
	values := make(map[string]any)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected object key, got %v", keyTok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		values[key] = coerceJSONValue(v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return keys, values, nil
}
