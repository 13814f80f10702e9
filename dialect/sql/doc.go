// Package sql translates typed expressions into SQL text for SQL Server and
// MySQL and executes it through database/sql.
//
// # Pipeline
//
// Expressions of package expr are compiled by a Compiler into the
// dialect-neutral AST of this package (the Db* types). A Generator renders the
// AST as text with parameters:
//
//	gen, err := sql.NewGenerator(dialect.SQLServer, dialect.MustParseVersion("15.0"))
//	stmt, err := sql.From(product).
//		Where(price.GT(decimal.NewFromInt(100))).
//		Top(10).
//		Compile(gen)
//	r, err := gen.Render(stmt)
//	query, args := gen.Bind(r)
//
// Constants are always bound as parameters. Inline literals are produced only
// for DDL defaults, computed columns and checks.
//
// # Dialects
//
// The generators differ in quoting, row limiting, identity capture, bulk row
// shredding, literals and temporary tables:
//
//	                SQL Server                    MySQL
//	identifiers     [name]                        `name`
//	parameters      @p1                           ?
//	row limit       SELECT TOP (n)                LIMIT n
//	identities      OUTPUT INSERTED.col INTO      LAST_INSERT_ID()
//	bulk rows       @p1.nodes('/root/row')        JSON_TABLE(?, '$[*]' ...)
//	temp tables     CREATE TABLE [#name]          CREATE TEMPORARY TABLE `#name`
//
// # Execution
//
// Driver wraps a *sql.DB. Session pins one connection for session-scoped
// state such as temporary tables. StatsDriver counts statements and reports
// slow ones, and Collector exports the counts to Prometheus.
package sql
