package sql

import (
	"github.com/syssam/rowset/expr"
	"github.com/syssam/rowset/schema"
)

// DbExpression is a node of the dialect-neutral SQL expression tree.
type DbExpression interface {
	dbExpression()
}

// DbStatement is a SQL statement.
type DbStatement interface {
	dbStatement()
}

// DbSource is a row source of a FROM or JOIN clause.
type DbSource interface {
	dbSource()
}

// DbType is a storage type: a column type with its size, precision and scale.
type DbType struct {
	Type      schema.Type
	Size      int // 0 for the maximum size of sized types.
	Precision int
	Scale     int
}

// ColumnType returns the storage type of c.
func ColumnType(c *schema.Column) DbType {
	p, s := c.Precision()
	return DbType{Type: c.Type(), Size: c.Size(), Precision: p, Scale: s}
}

// ParamKind tells how a parameter value is bound.
type ParamKind uint8

// Parameter kinds.
const (
	ParamValue ParamKind = iota
	ParamXML             // XML document shredded with nodes().
	ParamJSON            // JSON document shredded with JSON_TABLE.
)

type (
	// DbParamExpression is a value bound as a statement parameter.
	DbParamExpression struct {
		Type  DbType
		Value any
		Kind  ParamKind
	}

	// DbLiteralExpression is a value rendered inline. It is only produced for
	// DDL column defaults, where no binding site exists.
	DbLiteralExpression struct {
		Type  schema.Type
		Value any
	}

	// DbNullExpression is the NULL keyword.
	DbNullExpression struct{}

	// DbDefaultExpression is the DEFAULT keyword.
	DbDefaultExpression struct{}

	// DbColumnExpression references a column, qualified by a table alias
	// unless Table is empty.
	DbColumnExpression struct {
		Table string
		Name  string
	}

	// DbUnaryExpression applies a unary operator.
	DbUnaryExpression struct {
		Op expr.UnaryOp
		X  DbExpression
	}

	// DbBinaryExpression applies a binary operator. Type is the result type:
	// Bool for comparisons and logical operators, String for concatenation.
	DbBinaryExpression struct {
		Op          expr.BinaryOp
		Left, Right DbExpression
		Type        schema.Type
	}

	// DbFunctionExpression calls a function by its dialect-neutral name. Star
	// renders the argument list as (*).
	DbFunctionExpression struct {
		Name string
		Args []DbExpression
		Star bool
	}

	// DbWhen is one branch of a CASE expression.
	DbWhen struct {
		Cond, Then DbExpression
	}

	// DbCaseExpression is a searched CASE expression.
	DbCaseExpression struct {
		Whens []DbWhen
		Else  DbExpression
	}

	// DbCastExpression converts X to a storage type.
	DbCastExpression struct {
		X    DbExpression
		Type DbType
	}

	// DbExistsExpression is EXISTS over a subquery.
	DbExistsExpression struct {
		Select *DbSelectStatement
	}

	// DbSubQueryExpression is a scalar subquery.
	DbSubQueryExpression struct {
		Select *DbSelectStatement
	}

	// DbBulkValueExpression reads the column with the given ordinal from a
	// bulk source row, cast to Type.
	DbBulkValueExpression struct {
		Source  string
		Ordinal int
		Type    DbType
	}

	// DbRowNumberExpression is ROW_NUMBER() OVER (ORDER BY ...).
	DbRowNumberExpression struct {
		OrderBy []DbOrderBy
	}

	// DbSessionVariableExpression reads a server variable, e.g. @@auto_increment_increment.
	DbSessionVariableExpression struct {
		Name string
	}

	// DbLastInsertIDExpression is the first identity generated by the last
	// insert on the connection. MySQL only.
	DbLastInsertIDExpression struct{}
)

type (
	// DbSelectItem is one item of a select list.
	DbSelectItem struct {
		Expr  DbExpression
		Alias string
	}

	// DbOrderBy is one sort key.
	DbOrderBy struct {
		Expr DbExpression
		Desc bool
	}

	// JoinKind is the kind of a join.
	JoinKind uint8

	// DbJoin joins a source on a condition.
	DbJoin struct {
		Kind   JoinKind
		Source DbSource
		On     DbExpression
	}
)

// Join kinds.
const (
	InnerJoin JoinKind = iota
	LeftJoin
)

type (
	// DbTable is a permanent or session-scoped table. Session-scoped tables
	// are named with a leading '#'.
	DbTable struct {
		Schema string
		Name   string
		Alias  string
	}

	// DbDerivedTable is a subquery in a FROM or JOIN clause.
	DbDerivedTable struct {
		Select *DbSelectStatement
		Alias  string
	}

	// DbBulkSource shreds a bulk document parameter into rows. Columns hold
	// the storage type of every encoded ordinal.
	DbBulkSource struct {
		Param   *DbParamExpression
		Alias   string
		Columns []DbType
	}
)

// Temporary reports if the table is session scoped.
func (t *DbTable) Temporary() bool { return len(t.Name) > 0 && t.Name[0] == '#' }

type (
	// DbSelectStatement is a SELECT statement.
	DbSelectStatement struct {
		Top     int
		Items   []DbSelectItem
		From    DbSource
		Joins   []DbJoin
		Where   DbExpression
		GroupBy []DbExpression
		OrderBy []DbOrderBy
	}

	// DbOutputClause captures inserted column values into a table.
	DbOutputClause struct {
		Columns     []string
		Into        *DbTable
		IntoColumns []string
	}

	// DbInsertStatement inserts the rows of a SELECT, or literal value rows.
	DbInsertStatement struct {
		Table   *DbTable
		Columns []string
		Output  *DbOutputClause
		Select  *DbSelectStatement
		Values  [][]DbExpression
	}

	// DbAssignment sets a column of the updated table.
	DbAssignment struct {
		Column string
		Value  DbExpression
	}

	// DbUpdateStatement updates rows of Table, optionally joined to other sources.
	DbUpdateStatement struct {
		Table *DbTable
		Set   []DbAssignment
		Joins []DbJoin
		Where DbExpression
	}

	// DbDeleteStatement deletes rows of Table.
	DbDeleteStatement struct {
		Table *DbTable
		Where DbExpression
	}

	// DbColumnDef defines a column of a created table. A column with a
	// Computed expression is derived by the server.
	DbColumnDef struct {
		Name     string
		Type     DbType
		Nullable bool
		Identity *schema.Identity
		Default  DbExpression
		Computed DbExpression
	}

	// DbKeyDef defines a primary or unique key.
	DbKeyDef struct {
		Name    string
		Columns []string
	}

	// DbForeignKeyDef defines a foreign key.
	DbForeignKeyDef struct {
		Name       string
		Columns    []string
		Ref        *DbTable
		RefColumns []string
	}

	// DbCheckDef defines a check constraint.
	DbCheckDef struct {
		Name string
		Expr DbExpression
	}

	// DbCreateTableStatement creates a table.
	DbCreateTableStatement struct {
		Table       *DbTable
		Columns     []DbColumnDef
		PrimaryKey  *DbKeyDef
		Uniques     []DbKeyDef
		ForeignKeys []DbForeignKeyDef
		Checks      []DbCheckDef
	}

	// DbDropTableStatement drops a table.
	DbDropTableStatement struct {
		Table    *DbTable
		IfExists bool
	}
)

func (*DbParamExpression) dbExpression()           {}
func (*DbLiteralExpression) dbExpression()         {}
func (*DbNullExpression) dbExpression()            {}
func (*DbDefaultExpression) dbExpression()         {}
func (*DbColumnExpression) dbExpression()          {}
func (*DbUnaryExpression) dbExpression()           {}
func (*DbBinaryExpression) dbExpression()          {}
func (*DbFunctionExpression) dbExpression()        {}
func (*DbCaseExpression) dbExpression()            {}
func (*DbCastExpression) dbExpression()            {}
func (*DbExistsExpression) dbExpression()          {}
func (*DbSubQueryExpression) dbExpression()        {}
func (*DbBulkValueExpression) dbExpression()       {}
func (*DbRowNumberExpression) dbExpression()       {}
func (*DbSessionVariableExpression) dbExpression() {}
func (*DbLastInsertIDExpression) dbExpression()    {}

func (*DbTable) dbSource()        {}
func (*DbDerivedTable) dbSource() {}
func (*DbBulkSource) dbSource()   {}

func (*DbSelectStatement) dbStatement()      {}
func (*DbInsertStatement) dbStatement()      {}
func (*DbUpdateStatement) dbStatement()      {}
func (*DbDeleteStatement) dbStatement()      {}
func (*DbCreateTableStatement) dbStatement() {}
func (*DbDropTableStatement) dbStatement()   {}

// Col returns a column expression qualified by table.
func Col(table, name string) *DbColumnExpression {
	return &DbColumnExpression{Table: table, Name: name}
}

// Eq returns l = r.
func Eq(l, r DbExpression) *DbBinaryExpression {
	return &DbBinaryExpression{Op: expr.OpEQ, Left: l, Right: r}
}

// AndAll folds xs with AND. It returns nil for no operands.
func AndAll(xs ...DbExpression) DbExpression {
	var acc DbExpression
	for _, x := range xs {
		if acc == nil {
			acc = x
			continue
		}
		acc = &DbBinaryExpression{Op: expr.OpAnd, Left: acc, Right: x, Type: schema.TypeBool}
	}
	return acc
}
