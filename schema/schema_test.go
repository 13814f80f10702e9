package schema_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/rowset"
	"github.com/syssam/rowset/expr"
	"github.com/syssam/rowset/schema"
)

// adventureWorks declares the category tree and its products.
func adventureWorks(t *testing.T) *schema.Schema {
	t.Helper()
	b := schema.NewBuilder()
	cat := b.Model("ProductCategory").Table("SalesLT", "ProductCategory")
	cat.Column("ProductCategoryID", schema.TypeInt32).Identity(1, 1)
	cat.Column("ParentProductCategoryID", schema.TypeInt32).Nullable()
	cat.Column("Name", schema.TypeString).Size(50)
	cat.Column("rowguid", schema.TypeGuid).Default(expr.MustCall("NEWID"))
	cat.Column("ModifiedDate", schema.TypeDateTime).Default(expr.MustCall("GETDATE"))
	cat.ForeignKey("FK_ProductCategory_Parent", "ProductCategory", "ParentProductCategoryID")
	cat.Child("SubCategories", "ProductCategory", "FK_ProductCategory_Parent")
	cat.Child("Products", "Product", "FK_Product_ProductCategory")
	cat.Validate("NameNotEmpty", schema.NotEmpty(), "Name")

	p := b.Model("Product").Table("SalesLT", "Product")
	p.Column("ProductID", schema.TypeInt32).Identity(1, 1)
	p.Column("ProductCategoryID", schema.TypeInt32)
	p.Column("Name", schema.TypeString).Size(50)
	p.Column("ListPrice", schema.TypeDecimal).Precision(19, 4)
	p.UniqueKey("AK_Product_Name", "Name")
	p.ForeignKey("FK_Product_ProductCategory", "ProductCategory", "ProductCategoryID")
	p.Check("CK_Product_ListPrice", func(m *schema.Model) (schema.Expression, error) {
		price, _ := m.Column("ListPrice")
		return expr.Binary(expr.OpGTE, expr.Col(price), expr.Value(decimal.Zero))
	})
	s, err := b.Build()
	require.NoError(t, err)
	return s
}

func TestBuild(t *testing.T) {
	s := adventureWorks(t)
	require.Len(t, s.Models(), 2)
	cat, ok := s.Model("ProductCategory")
	require.True(t, ok)
	prod, _ := s.Model("Product")

	assert.Equal(t, 1, cat.ID())
	assert.Equal(t, 2, prod.ID())
	assert.Equal(t, "SalesLT", cat.Schema())
	assert.Equal(t, schema.KindTable, cat.Kind())

	t.Run("Columns", func(t *testing.T) {
		id := cat.Identity()
		require.NotNil(t, id)
		assert.Equal(t, "ProductCategoryID", id.Name())
		assert.False(t, id.Insertable())
		assert.False(t, id.Required())
		ident, ok := id.Identity()
		require.True(t, ok)
		assert.Equal(t, schema.Identity{Seed: 1, Increment: 1}, ident)

		c, ok := cat.Column("ROWGUID")
		require.True(t, ok)
		assert.Equal(t, 3, c.Ordinal())
		assert.True(t, c.Insertable())
		assert.False(t, c.Required())
		assert.Same(t, cat, c.Model())

		name, _ := cat.Column("Name")
		assert.True(t, name.Required())
		assert.Equal(t, 50, name.Size())
		assert.Equal(t, "ProductCategory.Name", name.String())

		price, _ := prod.Column("ListPrice")
		p, sc := price.Precision()
		assert.Equal(t, 19, p)
		assert.Equal(t, 4, sc)
	})

	t.Run("Keys", func(t *testing.T) {
		pk := prod.PrimaryKey()
		require.NotNil(t, pk)
		assert.True(t, pk.Primary())
		assert.Equal(t, "ProductID", pk.Columns()[0].Name())
		require.Len(t, prod.CandidateKeys(), 2)
		assert.Equal(t, "AK_Product_Name", prod.CandidateKeys()[1].Name())

		fks := cat.ForeignKeys()
		require.Len(t, fks, 1)
		assert.True(t, fks[0].SelfReferencing())
		assert.True(t, fks[0].ReferencesIdentity())
		assert.Same(t, cat, fks[0].Ref())
	})

	t.Run("Children", func(t *testing.T) {
		require.Len(t, cat.Children(), 2)
		sub, ok := cat.Child("SubCategories")
		require.True(t, ok)
		assert.True(t, sub.Recursive())
		products, ok := cat.Child("Products")
		require.True(t, ok)
		assert.False(t, products.Recursive())
		assert.Same(t, prod, products.Child())
		assert.Same(t, cat, products.Parent())
		assert.Equal(t, "FK_Product_ProductCategory", products.ForeignKey().Name())
		_, ok = cat.Child("Nope")
		assert.False(t, ok)
	})

	t.Run("ValidatorsAndChecks", func(t *testing.T) {
		require.Len(t, cat.Validators(), 1)
		v := cat.Validators()[0]
		assert.Error(t, v.Validate([]any{""}))
		assert.NoError(t, v.Validate([]any{nil}))
		require.Len(t, prod.Checks(), 1)
		assert.Equal(t, schema.TypeBool, prod.Checks()[0].Expr.Type())
	})
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		declare func(*schema.Builder)
		want    string
	}{
		{
			name: "DuplicateColumn",
			declare: func(b *schema.Builder) {
				m := b.Model("A")
				m.Column("X", schema.TypeInt32)
				m.Column("x", schema.TypeInt32)
			},
			want: "declared twice",
		},
		{
			name: "DuplicateModel",
			declare: func(b *schema.Builder) {
				b.Model("A").Column("X", schema.TypeInt32)
				b.Model("A").Column("X", schema.TypeInt32)
			},
			want: "model declared twice",
		},
		{
			name: "StringIdentity",
			declare: func(b *schema.Builder) {
				b.Model("A").Column("X", schema.TypeString).Identity(1, 1)
			},
			want: "must be an integer",
		},
		{
			name: "ZeroIncrement",
			declare: func(b *schema.Builder) {
				b.Model("A").Column("X", schema.TypeInt32).Identity(1, 0)
			},
			want: "zero increment",
		},
		{
			name: "TwoIdentities",
			declare: func(b *schema.Builder) {
				m := b.Model("A")
				m.Column("X", schema.TypeInt32).Identity(1, 1)
				m.Column("Y", schema.TypeInt64).Identity(1, 1)
			},
			want: "2 identity columns",
		},
		{
			name: "SizedInt",
			declare: func(b *schema.Builder) {
				b.Model("A").Column("X", schema.TypeInt32).Size(4)
			},
			want: "invalid size",
		},
		{
			name: "PrecisionOnString",
			declare: func(b *schema.Builder) {
				b.Model("A").Column("X", schema.TypeString).Precision(10, 2)
			},
			want: "invalid precision",
		},
		{
			name: "DefaultType",
			declare: func(b *schema.Builder) {
				b.Model("A").Column("X", schema.TypeString).Default(expr.MustCall("GETDATE"))
			},
			want: "type mismatch",
		},
		{
			name: "NullablePrimaryKey",
			declare: func(b *schema.Builder) {
				m := b.Model("A")
				m.Column("X", schema.TypeInt32).Nullable()
				m.PrimaryKey("X")
			},
			want: "cannot be nullable",
		},
		{
			name: "UnknownKeyColumn",
			declare: func(b *schema.Builder) {
				b.Model("A").Column("X", schema.TypeInt32)
				b.Model("A2").UniqueKey("U", "Nope")
			},
			want: `unknown column "Nope"`,
		},
		{
			name: "UnknownReference",
			declare: func(b *schema.Builder) {
				m := b.Model("A")
				m.Column("X", schema.TypeInt32)
				m.ForeignKey("FK", "B", "X")
			},
			want: `unknown model "B"`,
		},
		{
			name: "ReferenceWithoutKey",
			declare: func(b *schema.Builder) {
				b.Model("B").Column("Y", schema.TypeInt32)
				m := b.Model("A")
				m.Column("X", schema.TypeInt32)
				m.ForeignKey("FK", "B", "X")
			},
			want: "without a primary key",
		},
		{
			name: "ForeignKeyType",
			declare: func(b *schema.Builder) {
				b.Model("B").Column("Y", schema.TypeInt32).Identity(1, 1)
				m := b.Model("A")
				m.Column("X", schema.TypeInt64)
				m.ForeignKey("FK", "B", "X")
			},
			want: "type mismatch",
		},
		{
			name: "ChildUnknownForeignKey",
			declare: func(b *schema.Builder) {
				p := b.Model("B")
				p.Column("Y", schema.TypeInt32).Identity(1, 1)
				p.Child("As", "A", "FK")
				b.Model("A").Column("X", schema.TypeInt32)
			},
			want: `unknown foreign key "FK"`,
		},
		{
			name: "CheckNotBoolean",
			declare: func(b *schema.Builder) {
				m := b.Model("A")
				m.Column("X", schema.TypeInt32)
				m.Check("CK", func(m *schema.Model) (schema.Expression, error) {
					x, _ := m.Column("X")
					return expr.Col(x), nil
				})
			},
			want: "type mismatch",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := schema.NewBuilder()
			tt.declare(b)
			s, err := b.Build()
			require.Error(t, err)
			assert.Nil(t, s)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSort(t *testing.T) {
	s := adventureWorks(t)
	cat, _ := s.Model("ProductCategory")
	prod, _ := s.Model("Product")

	sorted, err := schema.Sort([]*schema.Model{prod, cat})
	require.NoError(t, err)
	assert.Equal(t, []*schema.Model{cat, prod}, sorted)

	// References outside the set are ignored.
	sorted, err = schema.Sort([]*schema.Model{prod})
	require.NoError(t, err)
	assert.Equal(t, []*schema.Model{prod}, sorted)

	t.Run("Cycle", func(t *testing.T) {
		b := schema.NewBuilder()
		a := b.Model("A")
		a.Column("ID", schema.TypeInt32).Identity(1, 1)
		a.Column("BID", schema.TypeInt32).Nullable()
		a.ForeignKey("FK_A_B", "B", "BID")
		c := b.Model("B")
		c.Column("ID", schema.TypeInt32).Identity(1, 1)
		c.Column("AID", schema.TypeInt32).Nullable()
		c.ForeignKey("FK_B_A", "A", "AID")
		s, err := b.Build()
		require.NoError(t, err)

		_, err = schema.Sort(s.Models())
		require.Error(t, err)
		assert.ErrorIs(t, err, rowset.ErrSchema)
		var cerr *rowset.CyclicDependencyError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, []string{"A", "B", "A"}, cerr.Models)
		code, ok := rowset.CodeOf(err)
		require.True(t, ok)
		assert.Equal(t, rowset.CyclicDependency, code)
	})
}

func TestStaging(t *testing.T) {
	s := adventureWorks(t)
	cat, _ := s.Model("ProductCategory")
	fk := cat.ForeignKeys()[0]

	st := schema.NewStaging(cat, schema.StagingSpec{Table: "#ProductCategory", Parent: true, SelfRefs: []*schema.ForeignKey{fk}})
	assert.Equal(t, schema.KindStaging, st.Kind())
	assert.Equal(t, cat.ID(), st.ID())
	assert.Same(t, cat, st.Source())
	assert.Equal(t, "#ProductCategory", st.Table())

	var names []string
	for _, c := range st.Columns() {
		names = append(names, c.Name())
		if c.Name() != schema.SysRowID {
			assert.True(t, c.Nullable(), c.Name())
		}
		assert.False(t, c.IsIdentity())
		assert.Nil(t, c.Default())
	}
	assert.Equal(t, []string{
		"ProductCategoryID", "ParentProductCategoryID", "Name", "rowguid", "ModifiedDate",
		"sys_parent_row_id", "sys_ref_ParentProductCategoryID", "sys_row_id",
	}, names)
	pk := st.PrimaryKey()
	require.NotNil(t, pk)
	assert.Equal(t, "PK_ProductCategory", pk.Name())
	assert.Equal(t, schema.SysRowID, pk.Columns()[0].Name())
	assert.Equal(t, "sys_ref_ParentProductCategoryID", schema.SysRefColumn(fk))
}

func TestParseType(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want schema.Type
	}{
		{"Int32", schema.TypeInt32},
		{"boolean", schema.TypeBool},
		{"DateTimeOffset", schema.TypeDateTimeOffset},
		{"guid", schema.TypeGuid},
	} {
		got, err := schema.ParseType(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
	_, err := schema.ParseType("varchar")
	assert.Error(t, err)
	assert.Equal(t, "Type(200)", schema.Type(200).String())
	assert.True(t, schema.TypeString.Sized())
	assert.False(t, schema.TypeInt32.Sized())
	assert.True(t, schema.TypeDateTimeOffset.Temporal())
}

func TestConvert(t *testing.T) {
	guid := uuid.MustParse("2d5a1e5c-7f8b-4a3c-9e6d-1b2c3d4e5f60")
	tests := []struct {
		name    string
		typ     schema.Type
		in      any
		want    any
		wantErr bool
	}{
		{"Nil", schema.TypeInt32, nil, nil, false},
		{"IntFromString", schema.TypeInt32, " 42 ", int32(42), false},
		{"IntOverflow", schema.TypeInt16, 70000, nil, true},
		{"ByteNegative", schema.TypeByte, -1, nil, true},
		{"IntFromFraction", schema.TypeInt64, 1.5, nil, true},
		{"Int64", schema.TypeInt64, int32(7), int64(7), false},
		{"BoolFromInt", schema.TypeBool, 1, true, false},
		{"BoolFromString", schema.TypeBool, "false", false, false},
		{"Single", schema.TypeSingle, 1.5, float32(1.5), false},
		{"SingleOverflow", schema.TypeSingle, 1e300, nil, true},
		{"Double", schema.TypeDouble, int64(3), float64(3), false},
		{"Guid", schema.TypeGuid, guid.String(), guid, false},
		{"GuidBad", schema.TypeGuid, "nope", nil, true},
		{"StringFromInt", schema.TypeString, 1, nil, true},
		{"BinaryFromString", schema.TypeBinary, "ab", []byte("ab"), false},
		{"BinaryNil", schema.TypeBinary, []byte(nil), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := schema.Convert(tt.typ, tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("Decimal", func(t *testing.T) {
		got, err := schema.Convert(schema.TypeDecimal, "19.9900")
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("19.99").Equal(got.(decimal.Decimal)))
	})
	t.Run("DateTime", func(t *testing.T) {
		loc := time.FixedZone("X", 3600)
		got, err := schema.Convert(schema.TypeDateTime, time.Date(2024, 5, 1, 10, 30, 0, 1234567, loc))
		require.NoError(t, err)
		tm := got.(time.Time)
		assert.Equal(t, time.UTC, tm.Location())
		assert.Equal(t, 10, tm.Hour())
		assert.Equal(t, 1234000, tm.Nanosecond())
	})
	t.Run("DateTimeFromString", func(t *testing.T) {
		got, err := schema.Convert(schema.TypeDateTime, "2024-05-01 10:30:00.5")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 5, 1, 10, 30, 0, 500000000, time.UTC), got)
	})
	t.Run("DateTimeOffset", func(t *testing.T) {
		got, err := schema.Convert(schema.TypeDateTimeOffset, "2024-05-01T10:30:00+02:00")
		require.NoError(t, err)
		_, off := got.(time.Time).Zone()
		assert.Equal(t, 7200, off)
	})
}

func TestEqual(t *testing.T) {
	assert.True(t, schema.Equal(schema.TypeInt32, int32(1), "1"))
	assert.True(t, schema.Equal(schema.TypeDecimal, "1.50", decimal.RequireFromString("1.5")))
	assert.True(t, schema.Equal(schema.TypeBinary, []byte{1}, []byte{1}))
	assert.True(t, schema.Equal(schema.TypeString, nil, nil))
	assert.False(t, schema.Equal(schema.TypeString, nil, ""))
	a := time.Date(2024, 1, 1, 12, 0, 0, 0, time.FixedZone("A", 3600))
	b := a.In(time.UTC)
	assert.True(t, schema.Equal(schema.TypeDateTimeOffset, a, a))
	assert.False(t, schema.Equal(schema.TypeDateTimeOffset, a, b))
}

func TestValidators(t *testing.T) {
	assert.Error(t, schema.MaxLen(3)([]any{"abcd"}))
	assert.NoError(t, schema.MaxLen(3)([]any{"äöü", nil}))
	assert.Error(t, schema.MaxLen(1)([]any{[]byte{1, 2}}))
	re := regexp.MustCompile(`^[A-Z]`)
	assert.NoError(t, schema.Match(re)([]any{"Bikes"}))
	assert.Error(t, schema.Match(re)([]any{"bikes"}))
	assert.Error(t, schema.NotEmpty()([]any{[]byte{}}))
}
