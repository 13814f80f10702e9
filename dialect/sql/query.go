package sql

import (
	"errors"

	"github.com/syssam/rowset/expr"
	"github.com/syssam/rowset/schema"
)

// Selector builds a SELECT statement over a model.
//
//	s := sql.From(product).
//		Where(price.GT(decimal.NewFromInt(100))).
//		OrderBy(name.Ref()).
//		Top(10)
//	stmt, err := s.Compile(gen)
type Selector struct {
	from  binding
	items []selectItem
	joins []join
	where []expr.Expr
	order []order
	top   int
	err   error
}

type (
	selectItem struct {
		x     expr.Expr
		alias string
	}
	join struct {
		kind JoinKind
		to   binding
		on   expr.Expr
	}
	order struct {
		x    expr.Expr
		desc bool
	}
)

// From starts a selector over m, aliased by its name.
func From(m *schema.Model) *Selector {
	return &Selector{from: binding{model: m, alias: m.Name()}}
}

// As sets the alias of the selected model.
func (s *Selector) As(alias string) *Selector {
	s.from.alias = alias
	return s
}

// Model returns the selected model.
func (s *Selector) Model() *schema.Model { return s.from.model }

// Select appends items to the select list. Without items every column of the
// model is selected in declaration order.
func (s *Selector) Select(xs ...expr.Expr) *Selector {
	for _, x := range xs {
		s.items = append(s.items, selectItem{x: x})
	}
	return s
}

// SelectAs appends one aliased item to the select list.
func (s *Selector) SelectAs(x expr.Expr, alias string) *Selector {
	s.items = append(s.items, selectItem{x: x, alias: alias})
	return s
}

// Join appends an inner join of m under alias.
func (s *Selector) Join(m *schema.Model, alias string, on expr.Expr) *Selector {
	return s.join(InnerJoin, m, alias, on)
}

// LeftJoin appends a left outer join of m under alias.
func (s *Selector) LeftJoin(m *schema.Model, alias string, on expr.Expr) *Selector {
	return s.join(LeftJoin, m, alias, on)
}

func (s *Selector) join(kind JoinKind, m *schema.Model, alias string, on expr.Expr) *Selector {
	if on == nil || on.Type() != schema.TypeBool {
		s.err = errors.Join(s.err, errors.New("dialect/sql: join condition must be a boolean expression"))
	}
	s.joins = append(s.joins, join{kind: kind, to: binding{model: m, alias: alias}, on: on})
	return s
}

// Where adds a condition. Conditions are joined with AND.
func (s *Selector) Where(x expr.Expr) *Selector {
	if x == nil || x.Type() != schema.TypeBool {
		s.err = errors.Join(s.err, errors.New("dialect/sql: where condition must be a boolean expression"))
	}
	s.where = append(s.where, x)
	return s
}

// OrderBy appends ascending sort keys.
func (s *Selector) OrderBy(xs ...expr.Expr) *Selector {
	for _, x := range xs {
		s.order = append(s.order, order{x: x})
	}
	return s
}

// OrderByDesc appends descending sort keys.
func (s *Selector) OrderByDesc(xs ...expr.Expr) *Selector {
	for _, x := range xs {
		s.order = append(s.order, order{x: x, desc: true})
	}
	return s
}

// Top limits the number of returned rows.
func (s *Selector) Top(n int) *Selector {
	s.top = n
	return s
}

// Columns returns the columns read by a selector without explicit items, in
// select list order.
func (s *Selector) Columns() []*schema.Column {
	if len(s.items) > 0 {
		return nil
	}
	return s.from.model.Columns()
}

// Compile compiles the selector for gen. Without explicit sort keys the rows
// are ordered by sys_row_id for staging models and by primary key otherwise.
// Items compile first, then joins, where and order, each left to right.
func (s *Selector) Compile(gen Generator) (*DbSelectStatement, error) {
	if s.err != nil {
		return nil, s.err
	}
	c := NewCompiler(gen).Bind(s.from.model, s.from.alias)
	for _, j := range s.joins {
		c.Bind(j.to.model, j.to.alias)
	}
	stmt := &DbSelectStatement{Top: s.top, From: TableOf(s.from.model, s.from.alias)}
	items := s.items
	if len(items) == 0 {
		for _, col := range s.from.model.Columns() {
			items = append(items, selectItem{x: expr.Col(col)})
		}
	}
	for _, it := range items {
		x, err := c.Compile(it.x)
		if err != nil {
			return nil, err
		}
		stmt.Items = append(stmt.Items, DbSelectItem{Expr: x, Alias: it.alias})
	}
	for _, j := range s.joins {
		on, err := c.Compile(j.on)
		if err != nil {
			return nil, err
		}
		stmt.Joins = append(stmt.Joins, DbJoin{Kind: j.kind, Source: TableOf(j.to.model, j.to.alias), On: on})
	}
	if len(s.where) > 0 {
		where, err := c.compileAll(s.where)
		if err != nil {
			return nil, err
		}
		stmt.Where = AndAll(where...)
	}
	for _, o := range s.order {
		x, err := c.Compile(o.x)
		if err != nil {
			return nil, err
		}
		stmt.OrderBy = append(stmt.OrderBy, DbOrderBy{Expr: x, Desc: o.desc})
	}
	if len(stmt.OrderBy) == 0 {
		stmt.OrderBy = DefaultOrder(s.from.model, s.from.alias)
	}
	return stmt, nil
}

// DefaultOrder returns the sort keys of m: sys_row_id for staging models, the
// primary key columns otherwise.
func DefaultOrder(m *schema.Model, alias string) []DbOrderBy {
	if m.Kind() == schema.KindStaging {
		return []DbOrderBy{{Expr: Col(alias, schema.SysRowID)}}
	}
	pk := m.PrimaryKey()
	if pk == nil {
		return nil
	}
	keys := make([]DbOrderBy, len(pk.Columns()))
	for i, c := range pk.Columns() {
		keys[i] = DbOrderBy{Expr: Col(alias, c.Name())}
	}
	return keys
}

// Updater builds an UPDATE statement over one model.
type Updater struct {
	model *schema.Model
	set   []update
	where []expr.Expr
}

type update struct {
	col *schema.Column
	x   expr.Expr
}

// Update starts an updater over m.
func Update(m *schema.Model) *Updater {
	return &Updater{model: m}
}

// Set assigns x to col.
func (u *Updater) Set(col *schema.Column, x expr.Expr) *Updater {
	u.set = append(u.set, update{col: col, x: x})
	return u
}

// Where adds a condition. Conditions are joined with AND.
func (u *Updater) Where(x expr.Expr) *Updater {
	u.where = append(u.where, x)
	return u
}

// Compile compiles the updater for gen.
func (u *Updater) Compile(gen Generator) (*DbUpdateStatement, error) {
	if len(u.set) == 0 {
		return nil, errors.New("dialect/sql: update without assignments")
	}
	c := NewCompiler(gen).Bind(u.model, "")
	stmt := &DbUpdateStatement{Table: TableOf(u.model, "")}
	for _, a := range u.set {
		if a.col.Model() != u.model {
			return nil, errors.New("dialect/sql: assigned column " + a.col.String() + " is not a column of " + u.model.Name())
		}
		x, err := c.Compile(a.x)
		if err != nil {
			return nil, err
		}
		stmt.Set = append(stmt.Set, DbAssignment{Column: a.col.Name(), Value: x})
	}
	where, err := c.compileAll(u.where)
	if err != nil {
		return nil, err
	}
	stmt.Where = AndAll(where...)
	return stmt, nil
}

// Deleter builds a DELETE statement over one model.
type Deleter struct {
	model *schema.Model
	where []expr.Expr
}

// Delete starts a deleter over m.
func Delete(m *schema.Model) *Deleter {
	return &Deleter{model: m}
}

// Where adds a condition. Conditions are joined with AND.
func (d *Deleter) Where(x expr.Expr) *Deleter {
	d.where = append(d.where, x)
	return d
}

// Compile compiles the deleter for gen.
func (d *Deleter) Compile(gen Generator) (*DbDeleteStatement, error) {
	c := NewCompiler(gen).Bind(d.model, "")
	where, err := c.compileAll(d.where)
	if err != nil {
		return nil, err
	}
	return &DbDeleteStatement{Table: TableOf(d.model, ""), Where: AndAll(where...)}, nil
}
