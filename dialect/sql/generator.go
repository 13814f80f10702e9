package sql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/rowset"
	"github.com/syssam/rowset/dialect"
	"github.com/syssam/rowset/expr"
	"github.com/syssam/rowset/schema"
)

// Param is a statement parameter in binding order.
type Param struct {
	Name  string
	Kind  ParamKind
	Type  DbType
	Value any
}

// Rendered is the text of one or more statements with their parameters.
type Rendered struct {
	Text   string
	Params []Param
}

// Generator renders statements as SQL text of one dialect and version.
// Rendering is deterministic: the same statement always yields the same
// text and parameter order.
type Generator interface {
	// Dialect returns the dialect name.
	Dialect() string
	// Version returns the targeted server version.
	Version() dialect.Version
	// Render renders stmts as a single batch, each statement terminated by ';'.
	Render(stmts ...DbStatement) (*Rendered, error)
	// RenderBatch renders stmts as the units the dialect executes in one
	// round trip: one batch for SQL Server, one unit per statement for MySQL.
	RenderBatch(stmts ...DbStatement) ([]*Rendered, error)
	// Bind returns the query text and the driver arguments of r.
	Bind(r *Rendered) (string, []any)
	// TypeName returns the storage type name of t.
	TypeName(t DbType) (string, error)
	// Supports reports if the dialect can render the named function.
	Supports(function string) bool

	hooks() hooks
}

// hooks are the dialect specific parts of rendering.
type hooks interface {
	quote(string) string
	param(n int, p Param) string
	literal(t schema.Type, v any) (string, error)
	castType(DbType) (string, error)
	function(b *builder, f *DbFunctionExpression) error
	concat(b *builder, e *DbBinaryExpression) error
	bulkSource(b *builder, s *DbBulkSource) error
	bulkValue(b *builder, v *DbBulkValueExpression) error
	boolPredicates() bool
	top(b *builder, n int, prefix bool)
	insertOutput(b *builder, o *DbOutputClause) error
	update(b *builder, u *DbUpdateStatement) error
	columnDef(b *builder, c *DbColumnDef) error
	createTable(temp bool) string
	tableOptions(b *builder, s *DbCreateTableStatement)
	dropTable(b *builder, s *DbDropTableStatement)
	check() error
}

// NewGenerator returns the generator of the named dialect for the given
// server version. Versions below the supported minimum fail with a
// VersionError before any statement is built.
func NewGenerator(name string, version dialect.Version) (Generator, error) {
	minimum, ok := dialect.Minimum(name)
	if !ok {
		return nil, fmt.Errorf("dialect/sql: unsupported dialect %q", name)
	}
	if !version.AtLeast(minimum) {
		return nil, &rowset.VersionError{Dialect: name, Version: version.String(), Minimum: minimum.String()}
	}
	switch name {
	case dialect.SQLServer:
		return &SQLServer{version: version}, nil
	default:
		return &MySQL{version: version}, nil
	}
}

// render renders stmts in one builder.
func render(g Generator, stmts ...DbStatement) (*Rendered, error) {
	b := &builder{g: g, h: g.hooks()}
	for i, s := range stmts {
		if i > 0 {
			b.WriteString("\n")
		}
		b.statement(s)
		b.WriteString(";")
	}
	if b.err != nil {
		return nil, b.err
	}
	return &Rendered{Text: b.String(), Params: b.params}, nil
}

// builder accumulates statement text and parameters. The first error stops
// further rendering.
type builder struct {
	strings.Builder
	g      Generator
	h      hooks
	params []Param
	depth  int
	err    error
}

func (b *builder) addError(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Ident writes a quoted identifier.
func (b *builder) Ident(s string) *builder {
	b.WriteString(b.h.quote(s))
	return b
}

// table writes a possibly schema-qualified table name.
func (b *builder) table(t *DbTable) {
	if t.Schema != "" {
		b.Ident(t.Schema).WriteString(".")
	}
	b.Ident(t.Name)
}

func (b *builder) alias(a string) {
	if a != "" {
		b.WriteString(" AS ")
		b.Ident(a)
	}
}

// clause starts a new clause: a new line at top level, a space inside
// nested subqueries.
func (b *builder) clause(kw string) {
	if b.depth == 0 {
		b.WriteString("\n")
	} else {
		b.WriteString(" ")
	}
	b.WriteString(kw)
}

func (b *builder) identList(names []string) {
	b.WriteString("(")
	for i, n := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(n)
	}
	b.WriteString(")")
}

func (b *builder) arg(p Param) {
	p.Name = "p" + strconv.Itoa(len(b.params)+1)
	b.params = append(b.params, p)
	b.WriteString(b.h.param(len(b.params), p))
}

func (b *builder) statement(s DbStatement) {
	switch s := s.(type) {
	case *DbSelectStatement:
		b.selectStmt(s)
	case *DbInsertStatement:
		b.insertStmt(s)
	case *DbUpdateStatement:
		b.addError(b.h.update(b, s))
	case *DbDeleteStatement:
		b.WriteString("DELETE FROM ")
		b.table(s.Table)
		if s.Where != nil {
			b.clause("WHERE ")
			b.condition(s.Where)
		}
	case *DbCreateTableStatement:
		b.createTable(s)
	case *DbDropTableStatement:
		b.h.dropTable(b, s)
	default:
		b.addError(fmt.Errorf("dialect/sql: unexpected statement %T", s))
	}
}

func (b *builder) selectStmt(s *DbSelectStatement) {
	b.WriteString("SELECT ")
	if s.Top > 0 {
		b.h.top(b, s.Top, true)
	}
	for i, it := range s.Items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.value(it.Expr)
		b.alias(it.Alias)
	}
	if s.From != nil {
		b.clause("FROM ")
		b.source(s.From)
	}
	b.joins(s.Joins)
	if s.Where != nil {
		b.clause("WHERE ")
		b.condition(s.Where)
	}
	if len(s.GroupBy) > 0 {
		b.clause("GROUP BY ")
		for i, g := range s.GroupBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.value(g)
		}
	}
	if len(s.OrderBy) > 0 {
		b.clause("ORDER BY ")
		b.orderBy(s.OrderBy)
	}
	if s.Top > 0 {
		b.h.top(b, s.Top, false)
	}
}

func (b *builder) joins(joins []DbJoin) {
	for _, j := range joins {
		switch j.Kind {
		case LeftJoin:
			b.clause("LEFT JOIN ")
		default:
			b.clause("INNER JOIN ")
		}
		b.source(j.Source)
		b.WriteString(" ON ")
		b.condition(j.On)
	}
}

func (b *builder) orderBy(keys []DbOrderBy) {
	for i, o := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.value(o.Expr)
		if o.Desc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}
}

func (b *builder) source(s DbSource) {
	switch s := s.(type) {
	case *DbTable:
		b.table(s)
		b.alias(s.Alias)
	case *DbDerivedTable:
		b.WriteString("(")
		b.nested(func() { b.selectStmt(s.Select) })
		b.WriteString(")")
		b.alias(s.Alias)
	case *DbBulkSource:
		b.addError(b.h.bulkSource(b, s))
	default:
		b.addError(fmt.Errorf("dialect/sql: unexpected source %T", s))
	}
}

func (b *builder) nested(f func()) {
	b.depth++
	f()
	b.depth--
}

func (b *builder) insertStmt(s *DbInsertStatement) {
	b.WriteString("INSERT INTO ")
	b.table(s.Table)
	b.WriteString(" ")
	b.identList(s.Columns)
	if s.Output != nil {
		b.addError(b.h.insertOutput(b, s.Output))
	}
	switch {
	case s.Select != nil:
		b.WriteString("\n")
		b.selectStmt(s.Select)
	default:
		b.clause("VALUES ")
		for i, row := range s.Values {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(")
			for j, v := range row {
				if j > 0 {
					b.WriteString(", ")
				}
				b.value(v)
			}
			b.WriteString(")")
		}
	}
}

func (b *builder) createTable(s *DbCreateTableStatement) {
	temp := s.Table.Temporary()
	if len(s.Checks) > 0 {
		b.addError(b.h.check())
	}
	b.WriteString(b.h.createTable(temp))
	b.WriteString(" ")
	b.table(s.Table)
	b.WriteString(" (")
	first := true
	item := func() {
		if !first {
			b.WriteString(",")
		}
		first = false
		b.WriteString("\n    ")
	}
	for i := range s.Columns {
		item()
		b.addError(b.h.columnDef(b, &s.Columns[i]))
	}
	constraint := func(name string) {
		// Constraint names of session-scoped tables are global in SQL Server
		// and would collide between sessions.
		if name != "" && !temp {
			b.WriteString("CONSTRAINT ")
			b.Ident(name)
			b.WriteString(" ")
		}
	}
	if pk := s.PrimaryKey; pk != nil {
		item()
		constraint(pk.Name)
		b.WriteString("PRIMARY KEY ")
		b.identList(pk.Columns)
	}
	for _, u := range s.Uniques {
		item()
		constraint(u.Name)
		b.WriteString("UNIQUE ")
		b.identList(u.Columns)
	}
	for _, fk := range s.ForeignKeys {
		item()
		constraint(fk.Name)
		b.WriteString("FOREIGN KEY ")
		b.identList(fk.Columns)
		b.WriteString(" REFERENCES ")
		b.table(fk.Ref)
		b.WriteString(" ")
		b.identList(fk.RefColumns)
	}
	for _, c := range s.Checks {
		item()
		constraint(c.Name)
		b.WriteString("CHECK (")
		b.condition(c.Expr)
		b.WriteString(")")
	}
	b.WriteString("\n)")
	b.h.tableOptions(b, s)
}

// Operator precedence, higher binds tighter.
const (
	precOr = iota + 1
	precAnd
	precNot
	precCompare
	precAdd
	precMul
	precUnary
	precPrimary
)

func precedence(e DbExpression) int {
	switch e := e.(type) {
	case *DbBinaryExpression:
		switch {
		case e.Op == expr.OpOr:
			return precOr
		case e.Op == expr.OpAnd:
			return precAnd
		case e.Op.Comparison() || e.Op == expr.OpLike:
			return precCompare
		case e.Op == expr.OpAdd || e.Op == expr.OpSub:
			return precAdd
		default:
			return precMul
		}
	case *DbUnaryExpression:
		switch e.Op {
		case expr.OpNot:
			return precNot
		case expr.OpIsNull, expr.OpIsNotNull:
			return precCompare
		default:
			return precUnary
		}
	}
	return precPrimary
}

// isPredicate reports if e yields a truth value rather than a stored value.
func isPredicate(e DbExpression) bool {
	switch e := e.(type) {
	case *DbBinaryExpression:
		return e.Op.Comparison() || e.Op.Logical() || e.Op == expr.OpLike
	case *DbUnaryExpression:
		return e.Op == expr.OpNot || e.Op == expr.OpIsNull || e.Op == expr.OpIsNotNull
	case *DbExistsExpression:
		return true
	}
	return false
}

// condition writes e in a position that expects a predicate. Dialects without
// boolean values compare stored booleans with 1.
func (b *builder) condition(e DbExpression) {
	if !b.h.boolPredicates() && !isPredicate(e) {
		b.operand(e, precCompare, false)
		b.WriteString(" = 1")
		return
	}
	b.expr(e)
}

// value writes e in a position that expects a stored value. Dialects without
// boolean values turn predicates into CASE expressions.
func (b *builder) value(e DbExpression) {
	if !b.h.boolPredicates() && isPredicate(e) {
		b.WriteString("CASE WHEN ")
		b.expr(e)
		b.WriteString(" THEN 1 ELSE 0 END")
		return
	}
	b.expr(e)
}

// operand writes e, parenthesized when it binds looser than its parent.
func (b *builder) operand(e DbExpression, parent int, right bool) {
	p := precedence(e)
	if p < parent || (right && p == parent && p != precAnd && p != precOr) {
		b.WriteString("(")
		b.expr(e)
		b.WriteString(")")
		return
	}
	b.expr(e)
}

func (b *builder) expr(e DbExpression) {
	if b.err != nil {
		return
	}
	switch e := e.(type) {
	case *DbParamExpression:
		b.arg(Param{Kind: e.Kind, Type: e.Type, Value: e.Value})
	case *DbLiteralExpression:
		s, err := b.h.literal(e.Type, e.Value)
		b.addError(err)
		b.WriteString(s)
	case *DbNullExpression:
		b.WriteString("NULL")
	case *DbDefaultExpression:
		b.WriteString("DEFAULT")
	case *DbColumnExpression:
		if e.Table != "" {
			b.Ident(e.Table).WriteString(".")
		}
		b.Ident(e.Name)
	case *DbUnaryExpression:
		b.unary(e)
	case *DbBinaryExpression:
		b.binary(e)
	case *DbFunctionExpression:
		b.addError(b.h.function(b, e))
	case *DbCaseExpression:
		b.WriteString("CASE")
		for _, w := range e.Whens {
			b.WriteString(" WHEN ")
			b.condition(w.Cond)
			b.WriteString(" THEN ")
			b.value(w.Then)
		}
		if e.Else != nil {
			b.WriteString(" ELSE ")
			b.value(e.Else)
		}
		b.WriteString(" END")
	case *DbCastExpression:
		t, err := b.h.castType(e.Type)
		b.addError(err)
		b.WriteString("CAST(")
		b.value(e.X)
		b.WriteString(" AS ")
		b.WriteString(t)
		b.WriteString(")")
	case *DbExistsExpression:
		b.WriteString("EXISTS (")
		b.nested(func() { b.selectStmt(e.Select) })
		b.WriteString(")")
	case *DbSubQueryExpression:
		b.WriteString("(")
		b.nested(func() { b.selectStmt(e.Select) })
		b.WriteString(")")
	case *DbBulkValueExpression:
		b.addError(b.h.bulkValue(b, e))
	case *DbRowNumberExpression:
		b.WriteString("ROW_NUMBER() OVER (ORDER BY ")
		b.orderBy(e.OrderBy)
		b.WriteString(")")
	case *DbSessionVariableExpression:
		b.WriteString("@@")
		b.WriteString(e.Name)
	case *DbLastInsertIDExpression:
		if b.g.Dialect() != dialect.MySQL {
			b.addError(rowset.NewFunctionNotSupported(b.g.Dialect(), "LAST_INSERT_ID"))
			return
		}
		b.WriteString("LAST_INSERT_ID()")
	default:
		b.addError(fmt.Errorf("dialect/sql: unexpected expression %T", e))
	}
}

func (b *builder) unary(e *DbUnaryExpression) {
	switch e.Op {
	case expr.OpNot:
		b.WriteString("NOT ")
		if b.h.boolPredicates() || isPredicate(e.X) {
			b.operand(e.X, precNot, false)
		} else {
			b.condition(e.X)
		}
	case expr.OpIsNull, expr.OpIsNotNull:
		b.operand(e.X, precCompare, false)
		b.WriteString(" ")
		b.WriteString(e.Op.String())
	default:
		b.WriteString("-")
		b.operand(e.X, precUnary, false)
	}
}

func (b *builder) binary(e *DbBinaryExpression) {
	if e.Op == expr.OpAdd && e.Type == schema.TypeString {
		b.addError(b.h.concat(b, e))
		return
	}
	p := precedence(e)
	if e.Op.Logical() {
		b.logicalOperand(e.Left, p, false)
		b.WriteString(" " + e.Op.String() + " ")
		b.logicalOperand(e.Right, p, true)
		return
	}
	b.valueOperand(e.Left, p, false)
	b.WriteString(" " + e.Op.String() + " ")
	b.valueOperand(e.Right, p, true)
}

func (b *builder) logicalOperand(e DbExpression, parent int, right bool) {
	if !b.h.boolPredicates() && !isPredicate(e) {
		b.condition(e)
		return
	}
	b.operand(e, parent, right)
}

func (b *builder) valueOperand(e DbExpression, parent int, right bool) {
	if !b.h.boolPredicates() && isPredicate(e) {
		b.WriteString("(")
		b.value(e)
		b.WriteString(")")
		return
	}
	b.operand(e, parent, right)
}

// args writes a parenthesized argument list.
func (b *builder) args(f *DbFunctionExpression) {
	b.WriteString("(")
	if f.Star {
		b.WriteString("*")
	}
	for i, a := range f.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.value(a)
	}
	b.WriteString(")")
}
