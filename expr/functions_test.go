package expr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/rowset"
	"github.com/syssam/rowset/expr"
	"github.com/syssam/rowset/schema"
)

func TestCall(t *testing.T) {
	m := productModel(t)
	name := expr.Col(column(t, m, "Name"))
	price := expr.Col(column(t, m, "ListPrice"))
	weight := expr.Col(column(t, m, "Weight"))

	tests := []struct {
		name    string
		fn      string
		args    []expr.Expr
		want    schema.Type
		wantErr bool
	}{
		{"GetDate", "getdate", nil, schema.TypeDateTime, false},
		{"NewID", "NEWID", nil, schema.TypeGuid, false},
		{"Len", "LEN", []expr.Expr{name}, schema.TypeInt32, false},
		{"LenInt", "LEN", []expr.Expr{price}, 0, true},
		{"Substring", "SUBSTRING", []expr.Expr{name, expr.Value(int32(1)), expr.Value(int32(3))}, schema.TypeString, false},
		{"SubstringArity", "SUBSTRING", []expr.Expr{name}, 0, true},
		{"IsNull", "ISNULL", []expr.Expr{weight, expr.Value(0.0)}, schema.TypeDouble, false},
		{"IsNullMixed", "ISNULL", []expr.Expr{weight, expr.Value("0")}, 0, true},
		{"Coalesce", "COALESCE", []expr.Expr{name, name, expr.Value("")}, schema.TypeString, false},
		{"CoalesceEmpty", "COALESCE", nil, 0, true},
		{"Round", "ROUND", []expr.Expr{price, expr.Value(int32(2))}, schema.TypeDecimal, false},
		{"RoundString", "ROUND", []expr.Expr{name, expr.Value(int32(2))}, 0, true},
		{"CountStar", "COUNT", nil, schema.TypeInt32, false},
		{"CountBig", "COUNT_BIG", []expr.Expr{name}, schema.TypeInt64, false},
		{"SumString", "SUM", []expr.Expr{name}, 0, true},
		{"MaxString", "MAX", []expr.Expr{name}, schema.TypeString, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := expr.Call(tt.fn, tt.args...)
			if tt.wantErr {
				assert.ErrorIs(t, err, rowset.ErrTypeMismatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Type())
		})
	}
}

func TestLookup(t *testing.T) {
	fn, ok := expr.Lookup("count_big")
	require.True(t, ok)
	assert.True(t, fn.Aggregate)
	_, ok = expr.Lookup("NOPE")
	assert.False(t, ok)
	_, err := expr.Call("NOPE")
	assert.Error(t, err)
	assert.Panics(t, func() { expr.MustCall("LEN") })
	names := expr.Functions()
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "NEWSEQUENTIALID")
}
