package d1

import (
	"context"
	"strings"
)

// Schema introspection over the system catalog, running through the ordinary
// cursor path so every row shape is exercised by the same normalizer.

// TableColumn is one row of PRAGMA table_info.
type TableColumn struct {
	CID        int64
	Name       string
	Type       string
	NotNull    bool
	Default    any
	PrimaryKey bool
}

// ForeignKey is one row of PRAGMA foreign_key_list.
type ForeignKey struct {
	ID       int64
	Seq      int64
	Table    string
	From     string
	To       string
	OnUpdate string
	OnDelete string
	Match    string
}

// Index is one row of PRAGMA index_list.
type Index struct {
	Seq     int64
	Name    string
	Unique  bool
	Origin  string
	Partial bool
}

// IndexColumn is one row of PRAGMA index_info.
type IndexColumn struct {
	SeqNo int64
	CID   int64
	Name  string
}

// Tables lists user table names, excluding internal sqlite_ tables.
func (c *Connection) Tables(ctx context.Context) ([]string, error) {
	cur, err := c.Execute(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	rows, err := cur.FetchAll()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, asString(row.Index(0)))
	}
	return names, nil
}

// HasTable reports whether a user table exists.
func (c *Connection) HasTable(ctx context.Context, table string) (bool, error) {
	cur, err := c.Execute(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=? AND name NOT LIKE 'sqlite_%'`, table)
	if err != nil {
		return false, err
	}
	defer cur.Close()
	row, err := cur.FetchOne()
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// TableInfo returns the columns of a table via PRAGMA table_info.
func (c *Connection) TableInfo(ctx context.Context, table string) ([]TableColumn, error) {
	cur, err := c.Execute(ctx, "PRAGMA table_info("+quoteIdentifier(table)+")")
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	rows, err := cur.FetchAll()
	if err != nil {
		return nil, err
	}
	cols := make([]TableColumn, 0, len(rows))
	for _, row := range rows {
		cols = append(cols, TableColumn{
			CID:        asInt64(get(row, "cid")),
			Name:       asString(get(row, "name")),
			Type:       asString(get(row, "type")),
			NotNull:    asInt64(get(row, "notnull")) != 0,
			Default:    get(row, "dflt_value"),
			PrimaryKey: asInt64(get(row, "pk")) != 0,
		})
	}
	return cols, nil
}

// ForeignKeys returns the table's foreign keys via PRAGMA foreign_key_list.
func (c *Connection) ForeignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	cur, err := c.Execute(ctx, "PRAGMA foreign_key_list("+quoteIdentifier(table)+")")
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	rows, err := cur.FetchAll()
	if err != nil {
		return nil, err
	}
	fks := make([]ForeignKey, 0, len(rows))
	for _, row := range rows {
		fks = append(fks, ForeignKey{
			ID:       asInt64(get(row, "id")),
			Seq:      asInt64(get(row, "seq")),
			Table:    asString(get(row, "table")),
			From:     asString(get(row, "from")),
			To:       asString(get(row, "to")),
			OnUpdate: asString(get(row, "on_update")),
			OnDelete: asString(get(row, "on_delete")),
			Match:    asString(get(row, "match")),
		})
	}
	return fks, nil
}

// Indexes returns the table's indexes via PRAGMA index_list.
func (c *Connection) Indexes(ctx context.Context, table string) ([]Index, error) {
	cur, err := c.Execute(ctx, "PRAGMA index_list("+quoteIdentifier(table)+")")
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	rows, err := cur.FetchAll()
	if err != nil {
		return nil, err
	}
	idxs := make([]Index, 0, len(rows))
	for _, row := range rows {
		idxs = append(idxs, Index{
			Seq:     asInt64(get(row, "seq")),
			Name:    asString(get(row, "name")),
			Unique:  asInt64(get(row, "unique")) != 0,
			Origin:  asString(get(row, "origin")),
			Partial: asInt64(get(row, "partial")) != 0,
		})
	}
	return idxs, nil
}

// IndexInfo returns the columns of an index via PRAGMA index_info.
func (c *Connection) IndexInfo(ctx context.Context, index string) ([]IndexColumn, error) {
	cur, err := c.Execute(ctx, "PRAGMA index_info("+quoteIdentifier(index)+")")
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	rows, err := cur.FetchAll()
	if err != nil {
		return nil, err
	}
	cols := make([]IndexColumn, 0, len(rows))
	for _, row := range rows {
		cols = append(cols, IndexColumn{
			SeqNo: asInt64(get(row, "seqno")),
			CID:   asInt64(get(row, "cid")),
			Name:  asString(get(row, "name")),
		})
	}
	return cols, nil
}

// quoteIdentifier double-quotes an identifier for PRAGMA calls, which cannot
// take bound parameters.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func get(row *Row, name string) any {
	v, _ := row.Get(name)
	return v
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case float64:
		return int64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return 0
	}
}
