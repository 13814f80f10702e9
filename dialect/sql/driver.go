package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/syssam/rowset/dialect"
)

// resetTimeout bounds the statements that restore session variables before a
// borrowed connection goes back to the pool.
const resetTimeout = 5 * time.Second

// Driver runs statements on a database/sql pool. Statements of one engine
// call must share a connection: use Session, or a transaction started from it.
type Driver struct {
	Conn
}

// Open opens a pool for the sqlserver or mysql driver. Both drivers are
// registered by this package.
func Open(name, source string) (*Driver, error) {
	db, err := sql.Open(name, source)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: open %s: %w", name, err)
	}
	return OpenDB(name, db), nil
}

// OpenDB wraps an open pool.
func OpenDB(name string, db *sql.DB) *Driver {
	return &Driver{Conn: Conn{ExecQuerier: db, dialect: name}}
}

// DB returns the underlying pool.
func (d Driver) DB() *sql.DB {
	return d.ExecQuerier.(*sql.DB)
}

// Dialect returns the dialect name. Names registered with a suffix, such as
// "mysql-traced", resolve to the dialect they extend.
func (d Driver) Dialect() string {
	for _, name := range []string{dialect.MySQL, dialect.SQLServer} {
		if strings.HasPrefix(d.dialect, name) {
			return name
		}
	}
	return d.dialect
}

// Tx starts a transaction on a connection taken from the pool.
func (d *Driver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: begin: %w", err)
	}
	return &Tx{Conn: Conn{ExecQuerier: tx, dialect: d.dialect}, Tx: tx}, nil
}

// Close closes the pool.
func (d *Driver) Close() error { return d.DB().Close() }

// Session pins one pooled connection. Temporary tables and session variables
// live as long as the session; Close returns the connection to the pool.
func (d *Driver) Session(ctx context.Context) (*Session, error) {
	conn, err := d.DB().Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: pin connection: %w", err)
	}
	return &Session{Conn: Conn{ExecQuerier: conn, dialect: d.dialect}, conn: conn}, nil
}

// Session is a dialect.ExecQuerier bound to a single connection.
type Session struct {
	Conn
	conn *sql.Conn
}

// Tx starts a transaction on the pinned connection.
func (s *Session) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: begin: %w", err)
	}
	return &Tx{Conn: Conn{ExecQuerier: tx, dialect: s.dialect}, Tx: tx}, nil
}

// Close returns the connection to the pool.
func (s *Session) Close() error { return s.conn.Close() }

// Tx is a transaction bound to the connection it was started on.
type Tx struct {
	Conn
	driver.Tx
}

type varsKey struct{}

type sessionVar struct{ name, value string }

// WithVar returns a context that sets the MySQL session variable name to
// value before each statement run with it. On a pool the variable is reset
// to its default before the connection is released; sessions and
// transactions keep it.
func WithVar(ctx context.Context, name, value string) context.Context {
	vars, _ := ctx.Value(varsKey{}).([]sessionVar)
	vars = append(vars[:len(vars):len(vars)], sessionVar{name: name, value: value})
	return context.WithValue(ctx, varsKey{}, vars)
}

// identRe matches session variable names, optionally qualified (session.x).
var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

func isValidIdentifier(s string) bool {
	return len(s) <= 128 && identRe.MatchString(s)
}

// ExecQuerier is implemented by *sql.DB, *sql.Conn and *sql.Tx.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn adapts an ExecQuerier to dialect.ExecQuerier.
type Conn struct {
	ExecQuerier
	dialect string
}

// Exec runs a statement. args must be []any; v is nil or a *Result that
// receives the driver result.
func (c Conn) Exec(ctx context.Context, query string, args, v any) (err error) {
	argv, err := arguments(args)
	if err != nil {
		return err
	}
	if v != nil {
		if _, ok := v.(*Result); !ok {
			return fmt.Errorf("dialect/sql: exec: unexpected result type %T, want *sql.Result", v)
		}
	}
	ex, release, err := c.withVars(ctx)
	if err != nil {
		return fmt.Errorf("dialect/sql: exec: %w", err)
	}
	if release != nil {
		defer func() { err = errors.Join(err, release()) }()
	}
	res, err := ex.ExecContext(ctx, query, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: exec: %w", err)
	}
	if r, ok := v.(*Result); ok {
		*r = res
	}
	return nil
}

// Query runs a query and stores its rows in v, a *Rows. The caller closes
// the rows.
func (c Conn) Query(ctx context.Context, query string, args, v any) error {
	rows, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("dialect/sql: query: unexpected destination type %T, want *sql.Rows", v)
	}
	argv, err := arguments(args)
	if err != nil {
		return err
	}
	ex, release, err := c.withVars(ctx)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: %w", err)
	}
	r, err := ex.QueryContext(ctx, query, argv...)
	if err != nil {
		if release != nil {
			err = errors.Join(err, release())
		}
		return fmt.Errorf("dialect/sql: query: %w", err)
	}
	rows.ColumnScanner = r
	if release != nil {
		rows.ColumnScanner = rowsWithCloser{ColumnScanner: r, closer: release}
	}
	return nil
}

func arguments(args any) ([]any, error) {
	switch args := args.(type) {
	case nil:
		return nil, nil
	case []any:
		return args, nil
	default:
		return nil, fmt.Errorf("dialect/sql: unexpected arguments type %T, want []any", args)
	}
}

// withVars sets the session variables of ctx. On a pool it borrows a
// connection and returns a release function that resets the variables and
// returns the connection.
func (c Conn) withVars(ctx context.Context) (ExecQuerier, func() error, error) {
	vars, _ := ctx.Value(varsKey{}).([]sessionVar)
	if len(vars) == 0 {
		return c.ExecQuerier, nil, nil
	}
	if !strings.HasPrefix(c.dialect, dialect.MySQL) {
		return nil, nil, fmt.Errorf("session variables are not supported by %s", c.dialect)
	}
	for _, v := range vars {
		if !isValidIdentifier(v.name) {
			return nil, nil, fmt.Errorf("invalid session variable name: %q", v.name)
		}
	}
	var (
		ex      = c.ExecQuerier
		release func() error
	)
	if db, ok := ex.(*sql.DB); ok {
		conn, err := db.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		ex, release = conn, conn.Close
	}
	for _, v := range vars {
		if _, err := ex.ExecContext(ctx, fmt.Sprintf("SET %s = '%s'", v.name, escapeStringValue(v.value))); err != nil {
			if release != nil {
				err = errors.Join(err, release())
			}
			return nil, nil, fmt.Errorf("set session variable %s: %w", v.name, err)
		}
	}
	if release == nil {
		return ex, nil, nil
	}
	done := release
	release = func() error {
		// The statement context may be canceled by now.
		ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
		defer cancel()
		seen := make(map[string]bool, len(vars))
		for _, v := range vars {
			if seen[v.name] {
				continue
			}
			seen[v.name] = true
			if _, err := ex.ExecContext(ctx, fmt.Sprintf("SET %s = DEFAULT", v.name)); err != nil {
				return errors.Join(err, done())
			}
		}
		return done()
	}
	return ex, release, nil
}

var _ dialect.Driver = (*Driver)(nil)

type (
	// Rows holds the rows of a query.
	Rows struct{ ColumnScanner }
	// Result is the result of an executed statement.
	Result = sql.Result
)

// ColumnScanner is the subset of *sql.Rows used to read query results.
type ColumnScanner interface {
	Close() error
	Columns() ([]string, error)
	Err() error
	Next() bool
	NextResultSet() bool
	Scan(dest ...any) error
}

// rowsWithCloser releases a borrowed connection when the rows are closed.
type rowsWithCloser struct {
	ColumnScanner
	closer func() error
}

func (r rowsWithCloser) Close() error {
	return errors.Join(r.ColumnScanner.Close(), r.closer())
}
