package d1

import (
	"encoding/json"
	"sync"

	wapc "github.com/wapc/wapc-guest-tinygo"
)

const (
	wapcCapability = "d1"
	wapcFnAll      = "all"
	wapcFnRaw      = "raw"

	// DefaultNamespace scopes host calls when none is configured.
	DefaultNamespace = "d1"
)

// HostCall is the waPC host function signature used to reach the database
// binding from inside the host runtime.
type HostCall func(namespace, capability, function string, payload []byte) ([]byte, error)

// WapcBindingConfig configures a WapcBinding.
type WapcBindingConfig struct {
	// Namespace scopes host calls. Defaults to DefaultNamespace.
	Namespace string
	// HostCall overrides the waPC host function, mainly for tests.
	HostCall HostCall
}

// WapcBinding reaches the host's database object over waPC host calls. Query
// execution is queued on the binding and runs when the host's single-threaded
// scheduler is pumped, which makes the binding a TaskRunner usable with
// PumpBridge.
type WapcBinding struct {
	namespace string
	hostCall  HostCall

	mu    sync.Mutex
	queue []func()
}

// NewWapcBinding creates a binding over the runtime's host call function.
func NewWapcBinding(cfg WapcBindingConfig) *WapcBinding {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	hostCall := cfg.HostCall
	if hostCall == nil {
		hostCall = wapc.HostCall
	}
	return &WapcBinding{namespace: namespace, hostCall: hostCall}
}

// Prepare implements Binding.
func (b *WapcBinding) Prepare(query string) Statement {
	return &wapcStatement{binding: b, query: query}
}

// RunPending implements TaskRunner: it executes every task queued so far.
func (b *WapcBinding) RunPending() (int, error) {
	b.mu.Lock()
	tasks := b.queue
	b.queue = nil
	b.mu.Unlock()
	for _, task := range tasks {
		task()
	}
	return len(tasks), nil
}

func (b *WapcBinding) enqueue(task func()) {
	b.mu.Lock()
	b.queue = append(b.queue, task)
	b.mu.Unlock()
}

type wapcStatement struct {
	binding *WapcBinding
	query   string
	args    []any
}

// Bind returns a copy with the parameters attached.
func (s *wapcStatement) Bind(args ...any) Statement {
	return &wapcStatement{binding: s.binding, query: s.query, args: args}
}

// wapcQuery is the JSON payload sent to the host for both functions.
type wapcQuery struct {
	SQL         string `json:"sql"`
	Params      []any  `json:"params,omitempty"`
	ColumnNames bool   `json:"columnNames,omitempty"`
}

// wapcAllResponse mirrors the host's all() result envelope.
type wapcAllResponse struct {
	Success bool              `json:"success"`
	Errors  []restErrorDetail `json:"errors"`
	Results []json.RawMessage `json:"results"`
	Meta    restMeta          `json:"meta"`
}

// wapcRawResponse mirrors the host's raw() result envelope.
type wapcRawResponse struct {
	Success bool              `json:"success"`
	Errors  []restErrorDetail `json:"errors"`
	Rows    []json.RawMessage `json:"rows"`
}

func (s *wapcStatement) All() *Promise[BindingResult] {
	p := NewPromise(func() (BindingResult, error) {
		payload, err := json.Marshal(wapcQuery{SQL: s.query, Params: s.args})
		if err != nil {
			return BindingResult{}, err
		}
		raw, err := s.binding.hostCall(s.binding.namespace, wapcCapability, wapcFnAll, payload)
		if err != nil {
			return BindingResult{}, err
		}
		var resp wapcAllResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return BindingResult{}, err
		}
		if !resp.Success {
			return BindingResult{}, hostError(resp.Errors)
		}
		out := BindingResult{Success: true, Meta: BindingMeta{Changes: resp.Meta.Changes, LastRowID: resp.Meta.LastRowID}}
		for _, obj := range resp.Results {
			keys, values, err := decodeOrderedObject(obj)
			if err != nil {
				return BindingResult{}, err
			}
			row := OrderedRow{Names: keys, Values: make([]any, len(keys))}
			for i, k := range keys {
				row.Values[i] = values[k]
			}
			out.Rows = append(out.Rows, row)
		}
		return out, nil
	})
	s.binding.enqueue(p.Start)
	return p
}

func (s *wapcStatement) Raw(opts RawOptions) *Promise[RawRows] {
	p := NewPromise(func() (RawRows, error) {
		payload, err := json.Marshal(wapcQuery{SQL: s.query, Params: s.args, ColumnNames: opts.ColumnNames})
		if err != nil {
			return nil, err
		}
		raw, err := s.binding.hostCall(s.binding.namespace, wapcCapability, wapcFnRaw, payload)
		if err != nil {
			return nil, err
		}
		var resp wapcRawResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, hostError(resp.Errors)
		}
		var rows RawRows
		for _, rawRow := range resp.Rows {
			var cells []json.RawMessage
			if err := json.Unmarshal(rawRow, &cells); err != nil {
				return nil, err
			}
			row := make([]any, len(cells))
			for i, cell := range cells {
				v, err := decodeJSONValue(cell)
				if err != nil {
					return nil, err
				}
				row[i] = v
			}
			rows = append(rows, row)
		}
		return rows, nil
	})
	s.binding.enqueue(p.Start)
	return p
}

func hostError(details []restErrorDetail) error {
	if len(details) > 0 {
		return operationalError("host error: %s", details[0].Message)
	}
	return operationalError("host call failed")
}
