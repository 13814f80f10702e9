package sql

import (
	"fmt"
	"strconv"

	"github.com/syssam/rowset"
	"github.com/syssam/rowset/expr"
	"github.com/syssam/rowset/schema"
)

// Compiler translates typed expressions into dialect-neutral AST nodes for one
// generator. Column references are resolved against the models bound in its
// scope, innermost first. A Compiler is not safe for concurrent use.
type Compiler struct {
	gen     Generator
	scope   []binding
	literal bool
}

type binding struct {
	model *schema.Model
	alias string
}

// NewCompiler returns a compiler for the dialect of gen.
func NewCompiler(gen Generator) *Compiler {
	return &Compiler{gen: gen}
}

// Bind adds m to the scope under alias. Columns of m compile to columns
// qualified by alias, or unqualified when alias is empty.
func (c *Compiler) Bind(m *schema.Model, alias string) *Compiler {
	c.scope = append(c.scope, binding{model: m, alias: alias})
	return c
}

// Compile translates e. Constants become parameters.
func (c *Compiler) Compile(e expr.Expr) (DbExpression, error) {
	return c.compile(e)
}

// CompileLiteral translates e with constants rendered inline. It serves DDL
// column defaults, computed columns and checks, which have no binding site.
func (c *Compiler) CompileLiteral(e schema.Expression) (DbExpression, error) {
	x, ok := e.(expr.Expr)
	if !ok {
		return nil, fmt.Errorf("dialect/sql: unexpected expression %T", e)
	}
	c.literal = true
	defer func() { c.literal = false }()
	return c.compile(x)
}

// checkType fails for types the dialect cannot store.
func (c *Compiler) checkType(t schema.Type) error {
	_, err := c.gen.TypeName(DbType{Type: t})
	return err
}

func (c *Compiler) compile(e expr.Expr) (DbExpression, error) {
	switch e := e.(type) {
	case *expr.Constant:
		if err := c.checkType(e.Type()); err != nil {
			return nil, err
		}
		switch {
		case e.IsNull():
			return &DbNullExpression{}, nil
		case c.literal:
			return &DbLiteralExpression{Type: e.Type(), Value: e.Value()}, nil
		}
		return &DbParamExpression{Type: DbType{Type: e.Type()}, Value: e.Value()}, nil
	case *expr.ColumnRef:
		return c.column(e.Column())
	case *expr.DefaultExpr:
		return &DbDefaultExpression{}, nil
	case *expr.UnaryExpr:
		x, err := c.compile(e.X())
		if err != nil {
			return nil, err
		}
		return &DbUnaryExpression{Op: e.Op(), X: x}, nil
	case *expr.BinaryExpr:
		l, err := c.compile(e.Left())
		if err != nil {
			return nil, err
		}
		r, err := c.compile(e.Right())
		if err != nil {
			return nil, err
		}
		return &DbBinaryExpression{Op: e.Op(), Left: l, Right: r, Type: e.Type()}, nil
	case *expr.CallExpr:
		name := e.Func().Name
		if !c.gen.Supports(name) {
			return nil, rowset.NewFunctionNotSupported(c.gen.Dialect(), name)
		}
		args, err := c.compileAll(e.Args())
		if err != nil {
			return nil, err
		}
		return &DbFunctionExpression{Name: name, Args: args, Star: e.Func().Aggregate && len(args) == 0}, nil
	case *expr.CaseExpr:
		out := &DbCaseExpression{Whens: make([]DbWhen, len(e.Whens()))}
		for i, w := range e.Whens() {
			cond, err := c.compile(w.Cond)
			if err != nil {
				return nil, err
			}
			then, err := c.compile(w.Then)
			if err != nil {
				return nil, err
			}
			out.Whens[i] = DbWhen{Cond: cond, Then: then}
		}
		if e.Else() != nil {
			els, err := c.compile(e.Else())
			if err != nil {
				return nil, err
			}
			out.Else = els
		}
		return out, nil
	case *expr.CastExpr:
		if err := c.checkType(e.Type()); err != nil {
			return nil, err
		}
		x, err := c.compile(e.X())
		if err != nil {
			return nil, err
		}
		return &DbCastExpression{X: x, Type: DbType{Type: e.Type()}}, nil
	case *expr.ExistsExpr:
		sel, err := c.subquery(e.From(), nil, e.Where())
		if err != nil {
			return nil, err
		}
		return &DbExistsExpression{Select: sel}, nil
	case *expr.SubqueryExpr:
		sel, err := c.subquery(e.From(), e.Select(), e.Where())
		if err != nil {
			return nil, err
		}
		return &DbSubQueryExpression{Select: sel}, nil
	}
	return nil, fmt.Errorf("dialect/sql: unexpected expression %T", e)
}

func (c *Compiler) compileAll(xs []expr.Expr) ([]DbExpression, error) {
	out := make([]DbExpression, len(xs))
	for i, x := range xs {
		dx, err := c.compile(x)
		if err != nil {
			return nil, err
		}
		out[i] = dx
	}
	return out, nil
}

// column resolves col against the innermost binding of its model. Columns of
// a permanent model also resolve against a bound staging model derived from it.
func (c *Compiler) column(col *schema.Column) (DbExpression, error) {
	if err := c.checkType(col.Type()); err != nil {
		return nil, err
	}
	for i := len(c.scope) - 1; i >= 0; i-- {
		b := c.scope[i]
		if b.model == col.Model() {
			return Col(b.alias, col.Name()), nil
		}
	}
	for i := len(c.scope) - 1; i >= 0; i-- {
		b := c.scope[i]
		if b.model.Source() == col.Model() {
			return Col(b.alias, col.Name()), nil
		}
	}
	return nil, rowset.NewSchemaError(col.Model().Name(), "column %s is not in scope", col.Name())
}

// subquery compiles SELECT sel FROM m WHERE where, with m bound under a fresh
// alias. A nil sel selects the constant 1.
func (c *Compiler) subquery(m *schema.Model, sel, where expr.Expr) (*DbSelectStatement, error) {
	alias := c.freeAlias(m.Name())
	c.Bind(m, alias)
	defer func() { c.scope = c.scope[:len(c.scope)-1] }()
	s := &DbSelectStatement{From: TableOf(m, alias)}
	if sel == nil {
		s.Items = []DbSelectItem{{Expr: &DbLiteralExpression{Type: schema.TypeInt32, Value: int32(1)}}}
	} else {
		x, err := c.compile(sel)
		if err != nil {
			return nil, err
		}
		s.Items = []DbSelectItem{{Expr: x}}
	}
	if where != nil {
		w, err := c.compile(where)
		if err != nil {
			return nil, err
		}
		s.Where = w
	}
	return s, nil
}

// freeAlias returns name, or name suffixed with the first number from 2 that
// no binding in scope uses.
func (c *Compiler) freeAlias(name string) string {
	used := make(map[string]bool, len(c.scope))
	for _, b := range c.scope {
		used[b.alias] = true
	}
	if !used[name] {
		return name
	}
	for i := 2; ; i++ {
		if a := name + strconv.Itoa(i); !used[a] {
			return a
		}
	}
}

// TableOf returns the table of m under alias.
func TableOf(m *schema.Model, alias string) *DbTable {
	return &DbTable{Schema: m.Schema(), Name: m.Table(), Alias: alias}
}
