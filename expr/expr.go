// Package expr provides immutable, typed expression trees over schema columns.
//
// Every constructor checks operand types when the node is built, so a tree that
// exists is well typed: translation to SQL never fails on a type mismatch.
//
//	name, _ := cat.Column("Name")
//	e, err := expr.Binary(expr.OpEQ, expr.Col(name), expr.Value("Bikes"))
package expr

import (
	"fmt"
	"strings"

	"github.com/syssam/rowset"
	"github.com/syssam/rowset/schema"
)

// Expr is an immutable expression node. Its result type is fixed at construction.
type Expr interface {
	schema.Expression
	// TranslateTo rebinds column references of the model named like m to the
	// columns of m. It returns the receiver itself when nothing changed.
	TranslateTo(m *schema.Model) (Expr, error)
	node()
}

// UnaryOp is a unary operator.
type UnaryOp uint8

// Unary operators.
const (
	OpNegate UnaryOp = iota + 1
	OpNot
	OpIsNull
	OpIsNotNull
)

var unaryNames = map[UnaryOp]string{
	OpNegate:    "-",
	OpNot:       "NOT",
	OpIsNull:    "IS NULL",
	OpIsNotNull: "IS NOT NULL",
}

// String returns the SQL spelling of the operator.
func (op UnaryOp) String() string { return unaryNames[op] }

// BinaryOp is a binary operator.
type BinaryOp uint8

// Binary operators.
const (
	OpAdd BinaryOp = iota + 1
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEQ
	OpNEQ
	OpLT
	OpLTE
	OpGT
	OpGTE
	OpAnd
	OpOr
	OpLike
)

var binaryNames = map[BinaryOp]string{
	OpAdd:  "+",
	OpSub:  "-",
	OpMul:  "*",
	OpDiv:  "/",
	OpMod:  "%",
	OpEQ:   "=",
	OpNEQ:  "<>",
	OpLT:   "<",
	OpLTE:  "<=",
	OpGT:   ">",
	OpGTE:  ">=",
	OpAnd:  "AND",
	OpOr:   "OR",
	OpLike: "LIKE",
}

// String returns the SQL spelling of the operator.
func (op BinaryOp) String() string { return binaryNames[op] }

// Comparison reports if the operator compares its operands.
func (op BinaryOp) Comparison() bool { return op >= OpEQ && op <= OpGTE }

// Arithmetic reports if the operator computes a numeric value.
func (op BinaryOp) Arithmetic() bool { return op >= OpAdd && op <= OpMod }

// Logical reports if the operator combines boolean operands.
func (op BinaryOp) Logical() bool { return op == OpAnd || op == OpOr }

// Constant is a typed literal value. It is bound as a parameter when compiled.
type Constant struct {
	typ   schema.Type
	value any
}

// Const returns a constant of type t holding v converted to the Go
// representation of t.
func Const(t schema.Type, v any) (*Constant, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("expr: invalid constant type %s", t)
	}
	cv, err := schema.Convert(t, v)
	if err != nil {
		return nil, &rowset.TypeMismatchError{Op: "constant", Left: t.String(), Right: fmt.Sprintf("%T", v)}
	}
	return &Constant{typ: t, value: cv}, nil
}

// Null returns the NULL constant of type t.
func Null(t schema.Type) *Constant {
	return &Constant{typ: t}
}

// Type returns the constant type.
func (c *Constant) Type() schema.Type { return c.typ }

// Value returns the constant value, nil for NULL.
func (c *Constant) Value() any { return c.value }

// IsNull reports if the constant is NULL.
func (c *Constant) IsNull() bool { return c.value == nil }

// String returns a debug representation of the constant.
func (c *Constant) String() string {
	switch v := c.value.(type) {
	case nil:
		return "NULL"
	case string:
		return fmt.Sprintf("%q", v)
	case []byte:
		return fmt.Sprintf("0x%X", v)
	default:
		return fmt.Sprint(v)
	}
}

// TranslateTo returns the constant itself.
func (c *Constant) TranslateTo(*schema.Model) (Expr, error) { return c, nil }

// ColumnRef references a column of a model.
type ColumnRef struct {
	col *schema.Column
}

// Col returns a reference to c.
func Col(c *schema.Column) *ColumnRef {
	return &ColumnRef{col: c}
}

// Column returns the referenced column.
func (r *ColumnRef) Column() *schema.Column { return r.col }

// Type returns the column type.
func (r *ColumnRef) Type() schema.Type { return r.col.Type() }

// String returns the qualified column name.
func (r *ColumnRef) String() string { return r.col.String() }

// TranslateTo rebinds the reference to the column of m with the same name.
func (r *ColumnRef) TranslateTo(m *schema.Model) (Expr, error) {
	owner := r.col.Model()
	if owner == m || owner == nil || owner.Name() != m.Name() {
		return r, nil
	}
	c, ok := m.Column(r.col.Name())
	if !ok {
		return nil, rowset.NewSchemaError(m.Name(), "column %q not found in %s", r.col.Name(), m.Table())
	}
	if c.Type() != r.col.Type() {
		return nil, rowset.NewTypeMismatchError("translate "+r.col.String(), r.col.Type(), c.Type())
	}
	return &ColumnRef{col: c}, nil
}

// UnaryExpr applies a unary operator.
type UnaryExpr struct {
	op  UnaryOp
	x   Expr
	typ schema.Type
}

// Unary returns op applied to x.
func Unary(op UnaryOp, x Expr) (*UnaryExpr, error) {
	var typ schema.Type
	switch op {
	case OpNegate:
		if !x.Type().Numeric() || x.Type() == schema.TypeByte {
			return nil, &rowset.TypeMismatchError{Op: op.String(), Left: "signed numeric", Right: x.Type().String()}
		}
		typ = x.Type()
	case OpNot:
		if x.Type() != schema.TypeBool {
			return nil, rowset.NewTypeMismatchError(op.String(), schema.TypeBool, x.Type())
		}
		typ = schema.TypeBool
	case OpIsNull, OpIsNotNull:
		typ = schema.TypeBool
	default:
		return nil, fmt.Errorf("expr: unknown unary operator %d", op)
	}
	return &UnaryExpr{op: op, x: x, typ: typ}, nil
}

// Op returns the operator.
func (u *UnaryExpr) Op() UnaryOp { return u.op }

// X returns the operand.
func (u *UnaryExpr) X() Expr { return u.x }

// Type returns the result type.
func (u *UnaryExpr) Type() schema.Type { return u.typ }

// String returns a debug representation.
func (u *UnaryExpr) String() string {
	switch u.op {
	case OpIsNull, OpIsNotNull:
		return fmt.Sprintf("(%s %s)", u.x, u.op)
	case OpNot:
		return fmt.Sprintf("(NOT %s)", u.x)
	default:
		return fmt.Sprintf("(-%s)", u.x)
	}
}

// TranslateTo translates the operand.
func (u *UnaryExpr) TranslateTo(m *schema.Model) (Expr, error) {
	x, err := u.x.TranslateTo(m)
	if err != nil {
		return nil, err
	}
	if x == u.x {
		return u, nil
	}
	return &UnaryExpr{op: u.op, x: x, typ: u.typ}, nil
}

// BinaryExpr applies a binary operator.
type BinaryExpr struct {
	op   BinaryOp
	l, r Expr
	typ  schema.Type
}

// Binary returns op applied to l and r. Both operands must have the same type.
func Binary(op BinaryOp, l, r Expr) (*BinaryExpr, error) {
	lt, rt := l.Type(), r.Type()
	if lt != rt {
		return nil, rowset.NewTypeMismatchError(op.String(), lt, rt)
	}
	var typ schema.Type
	switch {
	case op == OpAdd && lt == schema.TypeString:
		typ = schema.TypeString
	case op == OpMod:
		if !lt.Integer() {
			return nil, &rowset.TypeMismatchError{Op: op.String(), Left: lt.String(), Right: "integer"}
		}
		typ = lt
	case op.Arithmetic():
		if !lt.Numeric() {
			return nil, &rowset.TypeMismatchError{Op: op.String(), Left: lt.String(), Right: "numeric"}
		}
		typ = lt
	case op == OpEQ || op == OpNEQ:
		typ = schema.TypeBool
	case op.Comparison():
		if lt == schema.TypeBool || lt == schema.TypeBinary {
			return nil, &rowset.TypeMismatchError{Op: op.String(), Left: lt.String(), Right: "ordered type"}
		}
		typ = schema.TypeBool
	case op.Logical():
		if lt != schema.TypeBool {
			return nil, rowset.NewTypeMismatchError(op.String(), schema.TypeBool, lt)
		}
		typ = schema.TypeBool
	case op == OpLike:
		if lt != schema.TypeString {
			return nil, rowset.NewTypeMismatchError(op.String(), schema.TypeString, lt)
		}
		typ = schema.TypeBool
	default:
		return nil, fmt.Errorf("expr: unknown binary operator %d", op)
	}
	return &BinaryExpr{op: op, l: l, r: r, typ: typ}, nil
}

// Op returns the operator.
func (b *BinaryExpr) Op() BinaryOp { return b.op }

// Left returns the left operand.
func (b *BinaryExpr) Left() Expr { return b.l }

// Right returns the right operand.
func (b *BinaryExpr) Right() Expr { return b.r }

// Type returns the result type.
func (b *BinaryExpr) Type() schema.Type { return b.typ }

// String returns a debug representation.
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.l, b.op, b.r)
}

// TranslateTo translates both operands.
func (b *BinaryExpr) TranslateTo(m *schema.Model) (Expr, error) {
	l, err := b.l.TranslateTo(m)
	if err != nil {
		return nil, err
	}
	r, err := b.r.TranslateTo(m)
	if err != nil {
		return nil, err
	}
	if l == b.l && r == b.r {
		return b, nil
	}
	return &BinaryExpr{op: b.op, l: l, r: r, typ: b.typ}, nil
}

// CallExpr calls a registered function.
type CallExpr struct {
	fn   *Function
	args []Expr
	typ  schema.Type
}

// Call returns a call of the registered function name.
func Call(name string, args ...Expr) (*CallExpr, error) {
	fn, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("expr: unknown function %q", name)
	}
	typ, err := fn.resolve(args)
	if err != nil {
		return nil, err
	}
	return &CallExpr{fn: fn, args: args, typ: typ}, nil
}

// MustCall is like Call but panics on error. It is intended for package-level
// declarations such as column defaults.
func MustCall(name string, args ...Expr) *CallExpr {
	c, err := Call(name, args...)
	if err != nil {
		panic(err)
	}
	return c
}

// Func returns the called function.
func (c *CallExpr) Func() *Function { return c.fn }

// Args returns the arguments.
func (c *CallExpr) Args() []Expr { return c.args }

// Type returns the result type.
func (c *CallExpr) Type() schema.Type { return c.typ }

// String returns a debug representation.
func (c *CallExpr) String() string {
	args := make([]string, len(c.args))
	for i, a := range c.args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", c.fn.Name, strings.Join(args, ", "))
}

// TranslateTo translates the arguments.
func (c *CallExpr) TranslateTo(m *schema.Model) (Expr, error) {
	args, changed, err := translateAll(c.args, m)
	if err != nil {
		return nil, err
	}
	if !changed {
		return c, nil
	}
	return &CallExpr{fn: c.fn, args: args, typ: c.typ}, nil
}

// When is one branch of a CASE expression.
type When struct {
	Cond Expr
	Then Expr
}

// CaseExpr is a searched CASE expression.
type CaseExpr struct {
	whens []When
	els   Expr
	typ   schema.Type
}

// Case returns a searched CASE expression. Conditions must be boolean and all
// results must share one type. A nil els yields NULL.
func Case(whens []When, els Expr) (*CaseExpr, error) {
	if len(whens) == 0 {
		return nil, fmt.Errorf("expr: CASE requires at least one WHEN")
	}
	typ := whens[0].Then.Type()
	for _, w := range whens {
		if w.Cond.Type() != schema.TypeBool {
			return nil, rowset.NewTypeMismatchError("CASE WHEN", schema.TypeBool, w.Cond.Type())
		}
		if w.Then.Type() != typ {
			return nil, rowset.NewTypeMismatchError("CASE THEN", typ, w.Then.Type())
		}
	}
	if els != nil && els.Type() != typ {
		return nil, rowset.NewTypeMismatchError("CASE ELSE", typ, els.Type())
	}
	return &CaseExpr{whens: append([]When(nil), whens...), els: els, typ: typ}, nil
}

// Whens returns the branches.
func (c *CaseExpr) Whens() []When { return c.whens }

// Else returns the ELSE result, or nil.
func (c *CaseExpr) Else() Expr { return c.els }

// Type returns the result type.
func (c *CaseExpr) Type() schema.Type { return c.typ }

// String returns a debug representation.
func (c *CaseExpr) String() string {
	var b strings.Builder
	b.WriteString("CASE")
	for _, w := range c.whens {
		fmt.Fprintf(&b, " WHEN %s THEN %s", w.Cond, w.Then)
	}
	if c.els != nil {
		fmt.Fprintf(&b, " ELSE %s", c.els)
	}
	b.WriteString(" END")
	return b.String()
}

// TranslateTo translates every branch.
func (c *CaseExpr) TranslateTo(m *schema.Model) (Expr, error) {
	changed := false
	whens := make([]When, len(c.whens))
	for i, w := range c.whens {
		cond, err := w.Cond.TranslateTo(m)
		if err != nil {
			return nil, err
		}
		then, err := w.Then.TranslateTo(m)
		if err != nil {
			return nil, err
		}
		changed = changed || cond != w.Cond || then != w.Then
		whens[i] = When{Cond: cond, Then: then}
	}
	els := c.els
	if els != nil {
		var err error
		if els, err = c.els.TranslateTo(m); err != nil {
			return nil, err
		}
		changed = changed || els != c.els
	}
	if !changed {
		return c, nil
	}
	return &CaseExpr{whens: whens, els: els, typ: c.typ}, nil
}

// CastExpr converts its operand to another type.
type CastExpr struct {
	x   Expr
	typ schema.Type
}

// Cast returns x converted to t.
func Cast(x Expr, t schema.Type) (*CastExpr, error) {
	if !castable(x.Type(), t) {
		return nil, rowset.NewTypeMismatchError("CAST", x.Type(), t)
	}
	return &CastExpr{x: x, typ: t}, nil
}

func castable(from, to schema.Type) bool {
	switch {
	case !to.Valid():
		return false
	case from == to, to == schema.TypeString, from == schema.TypeString && to != schema.TypeBinary:
		return true
	case from.Numeric() && (to.Numeric() || to == schema.TypeBool):
		return true
	case from == schema.TypeBool && to.Numeric():
		return true
	case from.Temporal() && to.Temporal():
		return true
	}
	return false
}

// X returns the operand.
func (c *CastExpr) X() Expr { return c.x }

// Type returns the target type.
func (c *CastExpr) Type() schema.Type { return c.typ }

// String returns a debug representation.
func (c *CastExpr) String() string { return fmt.Sprintf("CAST(%s AS %s)", c.x, c.typ) }

// TranslateTo translates the operand.
func (c *CastExpr) TranslateTo(m *schema.Model) (Expr, error) {
	x, err := c.x.TranslateTo(m)
	if err != nil {
		return nil, err
	}
	if x == c.x {
		return c, nil
	}
	return &CastExpr{x: x, typ: c.typ}, nil
}

// ExistsExpr tests whether a correlated subquery over a model yields rows.
type ExistsExpr struct {
	from  *schema.Model
	where Expr
}

// Exists returns EXISTS over rows of from matching where. A nil where matches all rows.
func Exists(from *schema.Model, where Expr) (*ExistsExpr, error) {
	if where != nil && where.Type() != schema.TypeBool {
		return nil, rowset.NewTypeMismatchError("EXISTS", schema.TypeBool, where.Type())
	}
	return &ExistsExpr{from: from, where: where}, nil
}

// From returns the subquery model.
func (e *ExistsExpr) From() *schema.Model { return e.from }

// Where returns the subquery condition, or nil.
func (e *ExistsExpr) Where() Expr { return e.where }

// Type returns TypeBool.
func (e *ExistsExpr) Type() schema.Type { return schema.TypeBool }

// String returns a debug representation.
func (e *ExistsExpr) String() string {
	if e.where == nil {
		return fmt.Sprintf("EXISTS(%s)", e.from)
	}
	return fmt.Sprintf("EXISTS(%s WHERE %s)", e.from, e.where)
}

// TranslateTo translates the condition.
func (e *ExistsExpr) TranslateTo(m *schema.Model) (Expr, error) {
	if e.where == nil {
		return e, nil
	}
	where, err := e.where.TranslateTo(m)
	if err != nil {
		return nil, err
	}
	if where == e.where {
		return e, nil
	}
	return &ExistsExpr{from: e.from, where: where}, nil
}

// SubqueryExpr is a scalar subquery selecting one expression over a model.
type SubqueryExpr struct {
	from  *schema.Model
	sel   Expr
	where Expr
}

// Subquery returns the scalar subquery SELECT sel FROM from WHERE where.
func Subquery(from *schema.Model, sel, where Expr) (*SubqueryExpr, error) {
	if where != nil && where.Type() != schema.TypeBool {
		return nil, rowset.NewTypeMismatchError("subquery WHERE", schema.TypeBool, where.Type())
	}
	return &SubqueryExpr{from: from, sel: sel, where: where}, nil
}

// From returns the subquery model.
func (s *SubqueryExpr) From() *schema.Model { return s.from }

// Select returns the selected expression.
func (s *SubqueryExpr) Select() Expr { return s.sel }

// Where returns the subquery condition, or nil.
func (s *SubqueryExpr) Where() Expr { return s.where }

// Type returns the type of the selected expression.
func (s *SubqueryExpr) Type() schema.Type { return s.sel.Type() }

// String returns a debug representation.
func (s *SubqueryExpr) String() string {
	if s.where == nil {
		return fmt.Sprintf("(SELECT %s FROM %s)", s.sel, s.from)
	}
	return fmt.Sprintf("(SELECT %s FROM %s WHERE %s)", s.sel, s.from, s.where)
}

// TranslateTo translates the selected expression and the condition.
func (s *SubqueryExpr) TranslateTo(m *schema.Model) (Expr, error) {
	sel, err := s.sel.TranslateTo(m)
	if err != nil {
		return nil, err
	}
	where := s.where
	if where != nil {
		if where, err = s.where.TranslateTo(m); err != nil {
			return nil, err
		}
	}
	if sel == s.sel && where == s.where {
		return s, nil
	}
	return &SubqueryExpr{from: s.from, sel: sel, where: where}, nil
}

// DefaultExpr is the DEFAULT keyword of a column of the given type.
type DefaultExpr struct {
	typ schema.Type
}

// Default returns the DEFAULT keyword typed as t.
func Default(t schema.Type) *DefaultExpr { return &DefaultExpr{typ: t} }

// Type returns the column type.
func (d *DefaultExpr) Type() schema.Type { return d.typ }

// String returns "DEFAULT".
func (d *DefaultExpr) String() string { return "DEFAULT" }

// TranslateTo returns the receiver.
func (d *DefaultExpr) TranslateTo(*schema.Model) (Expr, error) { return d, nil }

func (*Constant) node()     {}
func (*ColumnRef) node()    {}
func (*UnaryExpr) node()    {}
func (*BinaryExpr) node()   {}
func (*CallExpr) node()     {}
func (*CaseExpr) node()     {}
func (*CastExpr) node()     {}
func (*ExistsExpr) node()   {}
func (*SubqueryExpr) node() {}
func (*DefaultExpr) node()  {}

func translateAll(xs []Expr, m *schema.Model) ([]Expr, bool, error) {
	out := make([]Expr, len(xs))
	changed := false
	for i, x := range xs {
		t, err := x.TranslateTo(m)
		if err != nil {
			return nil, false, err
		}
		changed = changed || t != x
		out[i] = t
	}
	return out, changed, nil
}

// And folds xs with AND. It returns nil for no operands.
func And(xs ...Expr) (Expr, error) { return fold(OpAnd, xs) }

// Or folds xs with OR. It returns nil for no operands.
func Or(xs ...Expr) (Expr, error) { return fold(OpOr, xs) }

func fold(op BinaryOp, xs []Expr) (Expr, error) {
	var acc Expr
	for _, x := range xs {
		if acc == nil {
			if x.Type() != schema.TypeBool {
				return nil, rowset.NewTypeMismatchError(op.String(), schema.TypeBool, x.Type())
			}
			acc = x
			continue
		}
		b, err := Binary(op, acc, x)
		if err != nil {
			return nil, err
		}
		acc = b
	}
	return acc, nil
}

// Walk calls fn for e and, while fn returns true, for its descendants in
// left-to-right, depth-first order.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch e := e.(type) {
	case *UnaryExpr:
		Walk(e.x, fn)
	case *BinaryExpr:
		Walk(e.l, fn)
		Walk(e.r, fn)
	case *CallExpr:
		for _, a := range e.args {
			Walk(a, fn)
		}
	case *CaseExpr:
		for _, w := range e.whens {
			Walk(w.Cond, fn)
			Walk(w.Then, fn)
		}
		Walk(e.els, fn)
	case *CastExpr:
		Walk(e.x, fn)
	case *ExistsExpr:
		Walk(e.where, fn)
	case *SubqueryExpr:
		Walk(e.sel, fn)
		Walk(e.where, fn)
	}
}
