package expr

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/syssam/rowset"
	"github.com/syssam/rowset/schema"
)

// Primitive is the set of Go types that represent column values.
type Primitive interface {
	bool | uint8 | int16 | int32 | int64 | float32 | float64 | string | []byte |
		decimal.Decimal | uuid.UUID | time.Time
}

// TypeOf returns the column type represented by the Go type of v.
// time.Time maps to TypeDateTime.
func TypeOf(v any) schema.Type {
	switch v.(type) {
	case bool:
		return schema.TypeBool
	case uint8:
		return schema.TypeByte
	case int16:
		return schema.TypeInt16
	case int32:
		return schema.TypeInt32
	case int64:
		return schema.TypeInt64
	case float32:
		return schema.TypeSingle
	case float64:
		return schema.TypeDouble
	case string:
		return schema.TypeString
	case []byte:
		return schema.TypeBinary
	case decimal.Decimal:
		return schema.TypeDecimal
	case uuid.UUID:
		return schema.TypeGuid
	case time.Time:
		return schema.TypeDateTime
	}
	return schema.TypeInvalid
}

// Value returns a constant holding v, typed after its Go type.
func Value[T Primitive](v T) *Constant {
	t := TypeOf(v)
	cv, err := schema.Convert(t, v)
	if err != nil {
		// Every Primitive converts to its own type.
		panic(err)
	}
	return &Constant{typ: t, value: cv}
}

// Field is a typed handle over a column whose Go representation is T. Its
// methods build predicates that are well typed by construction.
//
//	name, _ := expr.FieldOf[string](nameColumn)
//	q.Where(name.EQ("Bikes"))
type Field[T Primitive] struct {
	ref *ColumnRef
}

// FieldOf returns the typed handle of c. It fails if T does not represent the column type.
func FieldOf[T Primitive](c *schema.Column) (Field[T], error) {
	var zero T
	t := TypeOf(zero)
	if t != c.Type() && !(t == schema.TypeDateTime && c.Type() == schema.TypeDateTimeOffset) {
		return Field[T]{}, &rowset.TypeMismatchError{Op: "field " + c.String(), Left: c.Type().String(), Right: fmt.Sprintf("%T", zero)}
	}
	return Field[T]{ref: Col(c)}, nil
}

// Column returns the underlying column.
func (f Field[T]) Column() *schema.Column { return f.ref.col }

// Ref returns the column reference.
func (f Field[T]) Ref() *ColumnRef { return f.ref }

// EQ returns a predicate that checks if the field equals v.
func (f Field[T]) EQ(v T) Expr { return f.compare(OpEQ, v) }

// NEQ returns a predicate that checks if the field does not equal v.
func (f Field[T]) NEQ(v T) Expr { return f.compare(OpNEQ, v) }

// GT returns a predicate that checks if the field is greater than v.
func (f Field[T]) GT(v T) Expr { return f.compare(OpGT, v) }

// GTE returns a predicate that checks if the field is greater than or equal to v.
func (f Field[T]) GTE(v T) Expr { return f.compare(OpGTE, v) }

// LT returns a predicate that checks if the field is less than v.
func (f Field[T]) LT(v T) Expr { return f.compare(OpLT, v) }

// LTE returns a predicate that checks if the field is less than or equal to v.
func (f Field[T]) LTE(v T) Expr { return f.compare(OpLTE, v) }

// In returns a predicate that checks if the field equals one of vs.
func (f Field[T]) In(vs ...T) Expr {
	if len(vs) == 0 {
		return &BinaryExpr{op: OpEQ, l: Value(int32(1)), r: Value(int32(0)), typ: schema.TypeBool}
	}
	var acc Expr
	for _, v := range vs {
		eq := f.compare(OpEQ, v)
		if acc == nil {
			acc = eq
			continue
		}
		acc = &BinaryExpr{op: OpOr, l: acc, r: eq, typ: schema.TypeBool}
	}
	return acc
}

// IsNull returns a predicate that checks if the field is NULL.
func (f Field[T]) IsNull() Expr { return &UnaryExpr{op: OpIsNull, x: f.ref, typ: schema.TypeBool} }

// NotNull returns a predicate that checks if the field is not NULL.
func (f Field[T]) NotNull() Expr { return &UnaryExpr{op: OpIsNotNull, x: f.ref, typ: schema.TypeBool} }

func (f Field[T]) compare(op BinaryOp, v T) Expr {
	c, err := Const(f.ref.Type(), v)
	if err != nil {
		// FieldOf guarantees T converts to the column type.
		panic(err)
	}
	return &BinaryExpr{op: op, l: f.ref, r: c, typ: schema.TypeBool}
}
