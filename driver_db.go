package d1

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"time"
)

// Package-level driver errors.
var (
	ErrStmtClosed = newError(ErrProgramming, "statement closed")
	ErrRowsClosed = newError(ErrProgramming, "rows closed")
	ErrTxDone     = newError(ErrProgramming, "transaction done")
)

type d1Driver struct{}

// d1Conn adapts a Connection to database/sql.
type d1Conn struct {
	conn *Connection
}

type d1Stmt struct {
	conn   *d1Conn
	query  string
	closed bool
}

// d1Rows serves a cursor's buffered result to database/sql. The whole result
// is materialized during the query call, so Next never touches the transport.
type d1Rows struct {
	cursor *Cursor
	closed bool
}

type d1Result struct {
	lastInsertID int64
	hasInsertID  bool
	rowsAffected int64
}

// d1Tx satisfies driver.Tx for toolkits that insist on transactions. The
// backend auto-commits every statement, so both outcomes are no-ops.
type d1Tx struct {
	done bool
}

func init() {
	sql.Register("d1", &d1Driver{})
}

// Open implements driver.Driver. The DSN is a d1:// connection URL.
func (d *d1Driver) Open(dsn string) (driver.Conn, error) {
	conn, err := ConnectURL(dsn)
	if err != nil {
		return nil, err
	}
	return &d1Conn{conn: conn}, nil
}

// --- driver.Conn and friends ---

var (
	_ driver.Conn               = (*d1Conn)(nil)
	_ driver.ConnPrepareContext = (*d1Conn)(nil)
	_ driver.ExecerContext      = (*d1Conn)(nil)
	_ driver.QueryerContext     = (*d1Conn)(nil)
	_ driver.Pinger             = (*d1Conn)(nil)
	_ driver.ConnBeginTx        = (*d1Conn)(nil)
)

func (c *d1Conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *d1Conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if c.conn.Closed() {
		return nil, errConnClosed
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	// The provider prepares statements server-side; nothing to do here beyond
	// retaining the text.
	return &d1Stmt{conn: c, query: query}, nil
}

func (c *d1Conn) Close() error {
	return c.conn.Close()
}

func (c *d1Conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *d1Conn) BeginTx(ctx context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.conn.Closed() {
		return nil, errConnClosed
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return &d1Tx{}, nil
}

func (c *d1Conn) Ping(ctx context.Context) error {
	rows, err := c.QueryContext(ctx, "SELECT 1", nil)
	if err != nil {
		return err
	}
	return rows.Close()
}

func (c *d1Conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	values, err := namedToValues(args)
	if err != nil {
		return nil, err
	}
	cur, err := c.conn.Execute(ctx, query, values...)
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	res := &d1Result{rowsAffected: cur.RowCount()}
	res.lastInsertID, res.hasInsertID = cur.LastInsertID()
	return res, nil
}

func (c *d1Conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	values, err := namedToValues(args)
	if err != nil {
		return nil, err
	}
	cur, err := c.conn.Execute(ctx, query, values...)
	if err != nil {
		return nil, err
	}
	return &d1Rows{cursor: cur}, nil
}

// namedToValues rejects named parameters: the wire protocol is positional
// only, and silently reordering map-style parameters would be wrong.
func namedToValues(args []driver.NamedValue) ([]any, error) {
	values := make([]any, 0, len(args))
	for _, nv := range args {
		if nv.Name != "" {
			return nil, notSupportedError("named parameter %q: the wire protocol is positional only", nv.Name)
		}
		values = append(values, nv.Value)
	}
	return values, nil
}

// --- Connector pattern ---

// ConnectorOption configures a Connector.
type ConnectorOption func(*Config)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) ConnectorOption {
	return func(cfg *Config) { cfg.Timeout = d }
}

// WithBaseURL overrides the provider API root.
func WithBaseURL(base string) ConnectorOption {
	return func(cfg *Config) { cfg.BaseURL = base }
}

// WithLegacyEndpoint switches to the /query endpoint.
func WithLegacyEndpoint() ConnectorOption {
	return func(cfg *Config) { cfg.LegacyEndpoint = true }
}

// WithLogger installs a per-statement query logger.
func WithLogger(logger Logger) ConnectorOption {
	return func(cfg *Config) { cfg.Logger = logger }
}

// Connector implements driver.Connector for programmatic configuration.
type Connector struct {
	cfg Config
}

// NewConnector parses the DSN and applies options on top of it.
func NewConnector(dsn string, opts ...ConnectorOption) (*Connector, error) {
	cfg, err := ParseURL(dsn)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Connector{cfg: cfg}, nil
}

// Connect implements driver.Connector.
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	conn, err := Connect(c.cfg)
	if err != nil {
		return nil, err
	}
	return &d1Conn{conn: conn}, nil
}

// Driver implements driver.Connector.
func (c *Connector) Driver() driver.Driver { return &d1Driver{} }

var _ driver.Connector = (*Connector)(nil)

// BindingConnector integrates a host binding with database/sql. The bridge is
// chosen at construction and fixed for every connection it produces.
type BindingConnector struct {
	Binding Binding
	Bridge  Bridge
	Logger  Logger
}

// Connect implements driver.Connector.
func (c *BindingConnector) Connect(ctx context.Context) (driver.Conn, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return &d1Conn{conn: NewBindingConnection(c.Binding, c.Bridge, c.Logger)}, nil
}

// Driver implements driver.Connector.
func (c *BindingConnector) Driver() driver.Driver { return &d1Driver{} }

var _ driver.Connector = (*BindingConnector)(nil)

// --- driver.Stmt ---

var (
	_ driver.Stmt             = (*d1Stmt)(nil)
	_ driver.StmtExecContext  = (*d1Stmt)(nil)
	_ driver.StmtQueryContext = (*d1Stmt)(nil)
)

func (s *d1Stmt) Close() error {
	s.closed = true
	return nil
}

// NumInput returns -1: parameter counts are only known server-side.
func (s *d1Stmt) NumInput() int { return -1 }

func (s *d1Stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), valuesToNamed(args))
}

func (s *d1Stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if s.closed {
		return nil, ErrStmtClosed
	}
	return s.conn.ExecContext(ctx, s.query, args)
}

func (s *d1Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), valuesToNamed(args))
}

func (s *d1Stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if s.closed {
		return nil, ErrStmtClosed
	}
	return s.conn.QueryContext(ctx, s.query, args)
}

func valuesToNamed(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}

// --- driver.Rows ---

var _ driver.Rows = (*d1Rows)(nil)

func (r *d1Rows) Columns() []string {
	return r.cursor.Columns()
}

func (r *d1Rows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.cursor.Close()
}

func (r *d1Rows) Next(dest []driver.Value) error {
	if r.closed {
		return io.EOF
	}
	row, err := r.cursor.FetchOne()
	if err != nil {
		return err
	}
	if row == nil {
		return io.EOF
	}
	if len(dest) != row.Len() {
		return fmt.Errorf("d1: expected %d dests, got %d", row.Len(), len(dest))
	}
	for i := 0; i < row.Len(); i++ {
		dest[i] = toDriverValue(row.Index(i))
	}
	return nil
}

func toDriverValue(v any) driver.Value {
	switch x := v.(type) {
	case nil:
		return nil
	case int64, float64, string, []byte, time.Time:
		return x
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	default:
		return fmt.Sprint(v)
	}
}

// --- driver.Result ---

var _ driver.Result = (*d1Result)(nil)

func (r *d1Result) LastInsertId() (int64, error) {
	if !r.hasInsertID {
		return 0, nil
	}
	return r.lastInsertID, nil
}

func (r *d1Result) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// --- driver.Tx ---

var _ driver.Tx = (*d1Tx)(nil)

func (tx *d1Tx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	return nil
}

func (tx *d1Tx) Rollback() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	return nil
}
