package d1

import (
	"context"
	"time"
)

// Binding is the query surface a serverless host hands to code running inside
// it. All calls are asynchronous at the host boundary; promises are awaited
// through the connection's bridge.
type Binding interface {
	Prepare(query string) Statement
}

// Statement is a prepared statement on a host binding. Bind returns a new
// statement with the parameters attached, mirroring the host API.
type Statement interface {
	Bind(args ...any) Statement
	// All runs the statement and returns every row as a name-keyed object.
	All() *Promise[BindingResult]
	// Raw runs the statement and returns positional rows. With ColumnNames
	// set, the first row is the column-name header; used only to recover
	// column metadata for empty results.
	Raw(opts RawOptions) *Promise[RawRows]
}

// RawOptions configures a Raw call.
type RawOptions struct {
	ColumnNames bool
}

type hostNull struct{}

func (hostNull) String() string { return "null" }

// MarshalJSON makes the marker encode as an explicit JSON null.
func (hostNull) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// HostNull is the explicit null marker bound in place of nil parameters. The
// host distinguishes null from absent/undefined and rejects the latter.
var HostNull = hostNull{}

// convertBindArgs prepares arguments for a host binding: the usual parameter
// conversion plus nil -> HostNull.
func convertBindArgs(args []any) ([]any, error) {
	params, err := prepareParams(args)
	if err != nil {
		return nil, err
	}
	for i, p := range params {
		if p == nil {
			params[i] = HostNull
		}
	}
	return params, nil
}

// bindingTransport executes statements through a host binding, awaiting each
// promise via the configured bridge.
type bindingTransport struct {
	binding Binding
	bridge  Bridge
	logger  Logger
}

func (t *bindingTransport) execute(ctx context.Context, query string, args []any) (queryResult, error) {
	start := time.Now()
	res, err := t.run(ctx, query, args)
	if t.logger != nil {
		t.logger(QueryEvent{SQL: query, Params: len(args), Duration: time.Since(start), Err: err})
	}
	return res, err
}

func (t *bindingTransport) run(ctx context.Context, query string, args []any) (queryResult, error) {
	params, err := convertBindArgs(args)
	if err != nil {
		return queryResult{}, err
	}
	stmt := t.binding.Prepare(query).Bind(params...)
	p := stmt.All()
	if err := t.bridge.Await(ctx, p); err != nil {
		return queryResult{}, ensureTaxonomy(err)
	}
	all, err := p.Result()
	if err != nil {
		return queryResult{}, wrapOperational(err, "host query failed")
	}
	res, err := normalizeBindingShape(all)
	if err != nil {
		return queryResult{}, wrapOperational(err, "normalize host result")
	}
	// all() reports no shape at all for empty results. Recover the column
	// list with a raw() call carrying column names — gated to SELECTs so a
	// mutation is never executed twice, and best-effort: a failed recovery
	// leaves columns empty instead of failing the result.
	if len(res.rows) == 0 && len(res.columns) == 0 && startsWithSelect(query) {
		res.columns = t.recoverColumns(ctx, query, params)
	}
	return res, nil
}

func (t *bindingTransport) recoverColumns(ctx context.Context, query string, params []any) []string {
	stmt := t.binding.Prepare(query).Bind(params...)
	p := stmt.Raw(RawOptions{ColumnNames: true})
	if err := t.bridge.Await(ctx, p); err != nil {
		return nil
	}
	raw, err := p.Result()
	if err != nil || len(raw) == 0 {
		return nil
	}
	return headerColumns(raw[0])
}

func (t *bindingTransport) close() error { return nil }
