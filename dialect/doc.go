// Package dialect names the supported database dialects and defines the
// driver interfaces shared by the SQL packages.
//
// # Dialects
//
//	dialect.SQLServer = "sqlserver"
//	dialect.MySQL     = "mysql"
//
// Generators require a minimum server version per dialect, SQL Server 13.0
// (2016) and MySQL 8.0. Versions are parsed with ParseVersion:
//
//	v, err := dialect.ParseVersion("15.0.2000.5")
//	v.AtLeast(dialect.MinSQLServer) // true
//
// # Driver Interface
//
// Drivers execute text statements with driver arguments and scan results into
// a destination value:
//
//	type ExecQuerier interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	}
//
// The hierarchical insert engine needs every statement of one call to run on
// the same server session, since its staging tables are session scoped. A
// transaction satisfies this, and so does a pinned connection (see
// dialect/sql.Driver.Session).
//
// # Sub-packages
//
//   - dialect/sql: SQL AST, compiler, generators and database/sql driver
//   - dialect/sql/bulk: XML and JSON bulk row encodings
//   - dialect/sql/schema: schema validation and DDL creation
//   - dialect/sql/sqlgraph: hierarchical insert and read path
package dialect
