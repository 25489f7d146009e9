package d1

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tarmac-project/sdk/hostmock"
)

func wapcAllMock(t *testing.T, response string, validate func(wapcQuery) error) *hostmock.Mock {
	mock, err := hostmock.New(hostmock.Config{
		ExpectedNamespace:  "d1",
		ExpectedCapability: "d1",
		ExpectedFunction:   "all",
		PayloadValidator: func(payload []byte) error {
			var q wapcQuery
			if err := json.Unmarshal(payload, &q); err != nil {
				return err
			}
			if validate != nil {
				return validate(q)
			}
			return nil
		},
		Response: func() []byte { return []byte(response) },
	})
	require.NoError(t, err)
	return mock
}

func TestWapcBindingAll(t *testing.T) {
	mock := wapcAllMock(t, `{
		"success": true,
		"results": [
			{"id": 1, "name": "alice"},
			{"id": 2, "name": "bob"}
		],
		"meta": {"changes": 0}
	}`, func(q wapcQuery) error {
		if q.SQL != "SELECT id, name FROM users WHERE id > ?" {
			return fmt.Errorf("unexpected sql %q", q.SQL)
		}
		if len(q.Params) != 1 {
			return fmt.Errorf("want 1 param, got %d", len(q.Params))
		}
		return nil
	})

	binding := NewWapcBinding(WapcBindingConfig{HostCall: mock.HostCall})
	conn := NewBindingConnection(binding, NewPumpBridge(binding), nil)

	cur, err := conn.Execute(context.Background(), "SELECT id, name FROM users WHERE id > ?", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "name"}, cur.Columns())
	rows, err := cur.FetchAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, []any{int64(1), "alice"}, rows[0].Values())
	require.Equal(t, []any{int64(2), "bob"}, rows[1].Values())
}

func TestWapcBindingMeta(t *testing.T) {
	mock := wapcAllMock(t, `{
		"success": true,
		"results": [],
		"meta": {"changes": 1, "last_row_id": 8}
	}`, nil)

	binding := NewWapcBinding(WapcBindingConfig{HostCall: mock.HostCall})
	conn := NewBindingConnection(binding, NewPumpBridge(binding), nil)

	cur, err := conn.Execute(context.Background(), "INSERT INTO t (x) VALUES (?)", "v")
	require.NoError(t, err)
	require.Equal(t, int64(1), cur.RowCount())
	id, ok := cur.LastInsertID()
	require.True(t, ok)
	require.Equal(t, int64(8), id)
}

func TestWapcBindingHostFailure(t *testing.T) {
	mock, err := hostmock.New(hostmock.Config{Fail: true})
	require.NoError(t, err)

	binding := NewWapcBinding(WapcBindingConfig{HostCall: mock.HostCall})
	conn := NewBindingConnection(binding, NewPumpBridge(binding), nil)

	_, err = conn.Execute(context.Background(), "SELECT 1")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrOperational)
}

func TestWapcBindingErrorEnvelope(t *testing.T) {
	mock := wapcAllMock(t, `{
		"success": false,
		"errors": [{"message": "no such table: t"}]
	}`, nil)

	binding := NewWapcBinding(WapcBindingConfig{HostCall: mock.HostCall})
	conn := NewBindingConnection(binding, NewPumpBridge(binding), nil)

	_, err := conn.Execute(context.Background(), "SELECT * FROM t")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrOperational)
	require.Contains(t, err.Error(), "no such table: t")
}

func TestWapcBindingNamespaceDefault(t *testing.T) {
	var gotNamespace string
	binding := NewWapcBinding(WapcBindingConfig{
		HostCall: func(namespace, capability, function string, payload []byte) ([]byte, error) {
			gotNamespace = namespace
			return []byte(`{"success": true, "results": []}`), nil
		},
	})
	conn := NewBindingConnection(binding, NewPumpBridge(binding), nil)
	_, err := conn.Execute(context.Background(), "UPDATE t SET x = 1")
	require.NoError(t, err)
	require.Equal(t, DefaultNamespace, gotNamespace)
}

// Zero-row SELECT over waPC: all() returns nothing, so the transport follows
// up with raw(columnNames) against the column-header function.
func TestWapcBindingColumnRecovery(t *testing.T) {
	calls := []string{}
	binding := NewWapcBinding(WapcBindingConfig{
		Namespace: "env",
		HostCall: func(namespace, capability, function string, payload []byte) ([]byte, error) {
			calls = append(calls, function)
			switch function {
			case "all":
				return []byte(`{"success": true, "results": []}`), nil
			case "raw":
				var q wapcQuery
				if err := json.Unmarshal(payload, &q); err != nil {
					return nil, err
				}
				if !q.ColumnNames {
					return nil, fmt.Errorf("expected columnNames request")
				}
				return []byte(`{"success": true, "rows": [["id", "email"]]}`), nil
			default:
				return nil, fmt.Errorf("unexpected function %q", function)
			}
		},
	})
	conn := NewBindingConnection(binding, NewPumpBridge(binding), nil)

	cur, err := conn.Execute(context.Background(), "SELECT id, email FROM users WHERE 0")
	require.NoError(t, err)
	require.Equal(t, []string{"all", "raw"}, calls)
	require.Equal(t, []string{"id", "email"}, cur.Columns())
	require.NotNil(t, cur.Description())
	rows, err := cur.FetchAll()
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestWapcBindingRunPendingDrainsQueue(t *testing.T) {
	binding := NewWapcBinding(WapcBindingConfig{
		HostCall: func(string, string, string, []byte) ([]byte, error) {
			return []byte(`{"success": true, "results": []}`), nil
		},
	})
	p := binding.Prepare("SELECT 1").Bind().All()

	n, err := binding.RunPending()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	select {
	case <-p.Done():
	default:
		t.Fatal("promise not resolved after RunPending")
	}

	n, err = binding.RunPending()
	require.NoError(t, err)
	require.Zero(t, n)
}
