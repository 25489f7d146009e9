package d1

import (
	"context"
	"iter"
)

// ColumnDescription describes one column of the most recent row-returning
// result. Only Name is populated; the remaining fields exist for
// compatibility with cursor consumers that expect seven-field descriptors and
// are always nil.
type ColumnDescription struct {
	Name         string
	TypeCode     any
	DisplaySize  any
	InternalSize any
	Precision    any
	Scale        any
	NullOK       any
}

// Row is one buffered result row with both positional and name access.
type Row struct {
	columns []string
	values  []any
}

// Values returns the row's values in column order.
func (r *Row) Values() []any { return r.values }

// Columns returns the column names in positional order.
func (r *Row) Columns() []string { return r.columns }

// Len returns the number of columns.
func (r *Row) Len() int { return len(r.values) }

// Index returns the value at a zero-based position.
func (r *Row) Index(i int) any { return r.values[i] }

// Get returns the value for a column name.
func (r *Row) Get(name string) (any, bool) {
	for i, col := range r.columns {
		if col == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// Cursor owns the state of one query at a time: the buffered rows of the most
// recent execute, a fetch position, and the column metadata. The whole result
// is buffered during Execute; fetches never touch the transport.
type Cursor struct {
	conn *Connection

	// ArraySize is the default batch size for FetchMany.
	ArraySize int

	closed      bool
	columns     []string
	rows        [][]any
	description []ColumnDescription // nil when last statement was not row-returning
	position    int
	rowCount    int64
	lastRowID   int64
	hasRowID    bool
}

func newCursor(conn *Connection) *Cursor {
	return &Cursor{conn: conn, ArraySize: 1, rowCount: -1}
}

// Execute runs a statement with positional parameters and buffers its result.
// Returns ErrProgramming if the cursor is closed; transport failures surface
// as ErrOperational with the provider's diagnostic preserved.
func (c *Cursor) Execute(ctx context.Context, query string, args ...any) error {
	if c.closed {
		return errCursorClosed
	}
	res, err := c.conn.execute(ctx, query, args)
	if err != nil {
		return ensureTaxonomy(err)
	}
	c.apply(query, res)
	return nil
}

// ExecuteMany runs the statement once per argument set, in order. The final
// row count is the sum of every non-negative per-call count; buffered rows
// and metadata reflect only the last execution.
func (c *Cursor) ExecuteMany(ctx context.Context, query string, argSets [][]any) error {
	if c.closed {
		return errCursorClosed
	}
	var total int64
	for _, args := range argSets {
		if err := c.Execute(ctx, query, args...); err != nil {
			return err
		}
		if c.rowCount >= 0 {
			total += c.rowCount
		}
	}
	c.rowCount = total
	return nil
}

// apply installs a normalized result into the cursor.
func (c *Cursor) apply(query string, res queryResult) {
	c.columns = res.columns
	c.rows = res.rows
	c.position = 0
	if res.meta.changes >= 0 {
		c.rowCount = res.meta.changes
	} else {
		c.rowCount = int64(len(res.rows))
	}
	if res.meta.hasLastRowID {
		c.lastRowID = res.meta.lastRowID
		c.hasRowID = true
	}
	if !isRowReturning(query) {
		c.description = nil
		return
	}
	// Populated even for zero-row results; an empty (non-nil) slice means
	// row-returning with unknowable columns.
	desc := make([]ColumnDescription, 0, len(res.columns))
	for _, name := range res.columns {
		desc = append(desc, ColumnDescription{Name: name})
	}
	c.description = desc
}

// FetchOne returns the next buffered row, or nil when the result is drained.
func (c *Cursor) FetchOne() (*Row, error) {
	if c.closed {
		return nil, errCursorClosed
	}
	if c.position >= len(c.rows) {
		return nil, nil
	}
	row := &Row{columns: c.columns, values: c.rows[c.position]}
	c.position++
	return row, nil
}

// FetchMany returns up to size rows, stopping early when the result drains.
// A non-positive size falls back to ArraySize.
func (c *Cursor) FetchMany(size int) ([]*Row, error) {
	if c.closed {
		return nil, errCursorClosed
	}
	if size <= 0 {
		size = c.ArraySize
	}
	var rows []*Row
	for i := 0; i < size; i++ {
		row, err := c.FetchOne()
		if err != nil {
			return nil, err
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// FetchAll returns every remaining row.
func (c *Cursor) FetchAll() ([]*Row, error) {
	if c.closed {
		return nil, errCursorClosed
	}
	var rows []*Row
	for {
		row, err := c.FetchOne()
		if err != nil {
			return nil, err
		}
		if row == nil {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

// Iter returns an iterator over the remaining buffered rows, advancing the
// cursor as it goes. A closed cursor yields the error once and stops.
func (c *Cursor) Iter() iter.Seq2[*Row, error] {
	return func(yield func(*Row, error) bool) {
		for {
			row, err := c.FetchOne()
			if err != nil {
				yield(nil, err)
				return
			}
			if row == nil {
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// Description returns the column metadata of the most recent execute: nil
// when the statement was not row-returning, an empty slice when row-returning
// but the columns were unknowable, the column names otherwise.
func (c *Cursor) Description() []ColumnDescription { return c.description }

// Columns returns just the column names of the current description.
func (c *Cursor) Columns() []string { return c.columns }

// RowCount returns the affected-row count of the last execute, or -1 before
// any execute.
func (c *Cursor) RowCount() int64 { return c.rowCount }

// LastInsertID reports the rowid generated by the most recent insert, if any.
func (c *Cursor) LastInsertID() (int64, bool) { return c.lastRowID, c.hasRowID }

// Close discards buffered state. Idempotent; every other operation fails
// after the first Close.
func (c *Cursor) Close() error {
	c.closed = true
	c.rows = nil
	c.columns = nil
	c.description = nil
	return nil
}
