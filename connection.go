package d1

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// QueryEvent is handed to the configured Logger after every transport call.
type QueryEvent struct {
	SQL       string
	Params    int
	Duration  time.Duration
	RequestID string
	Err       error
}

// Logger receives one event per executed statement. Optional.
type Logger func(QueryEvent)

// Config describes a REST-mode connection.
type Config struct {
	// AccountID, DatabaseID and APIToken identify the target database.
	AccountID  string
	DatabaseID string
	APIToken   string

	// BaseURL overrides the provider API root. Defaults to the public
	// endpoint; mainly useful for gateways and tests.
	BaseURL string

	// Timeout bounds each HTTP request. Defaults to 30 seconds.
	Timeout time.Duration

	// LegacyEndpoint switches to the /query endpoint, whose rows arrive as
	// name-keyed objects instead of columnar arrays.
	LegacyEndpoint bool

	// Logger, when set, receives a QueryEvent per statement.
	Logger Logger
}

// transport obtains a canonical result for one statement.
type transport interface {
	execute(ctx context.Context, query string, params []any) (queryResult, error)
	close() error
}

// Connection wraps either REST credentials plus an HTTP client, or a
// host-provided binding plus its bridge. It carries no result state; every
// cursor owns its own buffer. Not safe for concurrent use by multiple
// goroutines; the close flag is guarded for idempotent Close only.
type Connection struct {
	transport transport

	mu     sync.Mutex
	closed bool
}

// Connect opens a REST-mode connection.
func Connect(cfg Config) (*Connection, error) {
	if cfg.AccountID == "" || cfg.DatabaseID == "" {
		return nil, interfaceError("account id and database id are required")
	}
	return &Connection{transport: newRESTTransport(cfg)}, nil
}

// ConnectURL opens a REST-mode connection from a connection URL of the form
// d1://account_id:api_token@database_id[?opt=val...].
func ConnectURL(rawURL string) (*Connection, error) {
	cfg, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return Connect(cfg)
}

// NewBindingConnection wraps a host-provided binding. The bridge is fixed for
// the lifetime of the connection.
func NewBindingConnection(binding Binding, bridge Bridge, logger Logger) *Connection {
	return &Connection{transport: &bindingTransport{binding: binding, bridge: bridge, logger: logger}}
}

// ParseURL parses a d1:// connection URL into a Config. Username maps to the
// account id, password to the API token and host to the database id; query
// parameters carry extra options (timeout_ms, legacy, base_url).
func ParseURL(rawURL string) (Config, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Config{}, interfaceError("invalid connection url: %v", err)
	}
	if u.Scheme != "d1" {
		return Config{}, interfaceError("unexpected scheme %q in connection url", u.Scheme)
	}
	cfg := Config{DatabaseID: u.Host}
	if u.User != nil {
		cfg.AccountID = u.User.Username()
		cfg.APIToken, _ = u.User.Password()
	}
	q := u.Query()
	if v := q.Get("timeout_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, interfaceError("invalid timeout_ms %q", v)
		}
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}
	if v := q.Get("legacy"); v != "" {
		cfg.LegacyEndpoint = v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	if v := q.Get("base_url"); v != "" {
		cfg.BaseURL = v
	}
	return cfg, nil
}

// Cursor produces an independent cursor over this connection.
func (c *Connection) Cursor() (*Cursor, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return newCursor(c), nil
}

// Execute is a convenience that opens a cursor and executes one statement.
func (c *Connection) Execute(ctx context.Context, query string, args ...any) (*Cursor, error) {
	cur, err := c.Cursor()
	if err != nil {
		return nil, err
	}
	if err := cur.Execute(ctx, query, args...); err != nil {
		return nil, err
	}
	return cur, nil
}

// Close releases the underlying transport. Idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.transport.close()
}

// Commit is a no-op: the backend auto-commits every statement.
func (c *Connection) Commit() error { return c.checkOpen() }

// Rollback is a no-op: there is no multi-statement transaction to roll back.
func (c *Connection) Rollback() error { return c.checkOpen() }

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	return nil
}

func (c *Connection) execute(ctx context.Context, query string, args []any) (queryResult, error) {
	if err := c.checkOpen(); err != nil {
		return queryResult{}, err
	}
	return c.transport.execute(ctx, query, args)
}
