package dialect

import (
	"context"
	"database/sql/driver"
)

// Dialect names, also used as database/sql driver names.
const (
	SQLServer = "sqlserver"
	MySQL     = "mysql"
)

// ExecQuerier runs statements. args holds the driver arguments of query.
type ExecQuerier interface {
	// Exec runs a statement that returns no rows. A non-nil v receives the
	// result; the sql drivers expect a *sql.Result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query runs a statement that returns rows into v, a *sql.Rows for the
	// sql drivers.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is an ExecQuerier over a connection pool.
type Driver interface {
	ExecQuerier
	// Tx starts a transaction. ctx applies until it is committed or rolled back.
	Tx(context.Context) (Tx, error)
	Close() error
	Dialect() string
}

// Tx is an ExecQuerier inside a transaction.
type Tx interface {
	ExecQuerier
	driver.Tx
}
