package rowset_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/rowset"
)

func TestMessage(t *testing.T) {
	tests := []struct {
		code rowset.Code
		args []any
		want string
	}{
		{rowset.ColumnTypeNotSupported, []any{"DateTimeOffset", "mysql"}, "column type DateTimeOffset is not supported by mysql"},
		{rowset.FunctionNotSupported, []any{"NEWSEQUENTIALID", "mysql"}, "function NEWSEQUENTIALID is not supported by mysql"},
		{rowset.ConstraintTypeNotSupported, []any{"CHECK", "mysql", "requires 8.0.16"}, "constraint CHECK is not supported by mysql: requires 8.0.16"},
		{rowset.VersionNotSupported, []any{"12.0", "13.0"}, "version 12.0 is not supported, minimum supported version is 13.0"},
		{rowset.Code("Unknown"), nil, "Unknown"},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, rowset.Message(tt.code, tt.args...))
		})
	}
}

func TestSchemaError(t *testing.T) {
	t.Run("ColumnTypeNotSupported", func(t *testing.T) {
		err := rowset.NewColumnTypeNotSupported("mysql", "DateTimeOffset")
		assert.Equal(t, "rowset: column type DateTimeOffset is not supported by mysql", err.Error())
		assert.True(t, errors.Is(err, rowset.ErrSchema))
		assert.True(t, rowset.IsSchemaError(fmt.Errorf("wrapped: %w", err)))
		code, ok := rowset.CodeOf(err)
		require.True(t, ok)
		assert.Equal(t, rowset.ColumnTypeNotSupported, code)
	})

	t.Run("WithModel", func(t *testing.T) {
		err := rowset.NewSchemaError("Product", "column %q declared twice", "Name")
		assert.Equal(t, `rowset: Product: column "Name" declared twice`, err.Error())
	})

	t.Run("AmbiguousKey", func(t *testing.T) {
		err := rowset.NewAmbiguousKey("Product", "FK_Product_Category", int32(0))
		assert.Equal(t, "rowset: Product: key value 0 of FK_Product_Category matches more than one row", err.Error())
		code, _ := rowset.CodeOf(err)
		assert.Equal(t, rowset.AmbiguousKey, code)
	})

	t.Run("Cyclic", func(t *testing.T) {
		err := &rowset.CyclicDependencyError{Models: []string{"A", "B", "A"}}
		assert.Equal(t, "rowset: cyclic dependency between A -> B -> A", err.Error())
		assert.True(t, rowset.IsSchemaError(err))
		assert.False(t, rowset.IsTranslationError(err))
	})
}

func TestTranslationError(t *testing.T) {
	err := rowset.NewFunctionNotSupported("mysql", "NEWSEQUENTIALID")
	assert.Equal(t, "rowset: function NEWSEQUENTIALID is not supported by mysql", err.Error())
	assert.True(t, rowset.IsTranslationError(err))
	assert.False(t, rowset.IsSchemaError(err))
	code, ok := rowset.CodeOf(fmt.Errorf("compile: %w", err))
	require.True(t, ok)
	assert.Equal(t, rowset.FunctionNotSupported, code)
}

func TestVersionError(t *testing.T) {
	err := &rowset.VersionError{Dialect: "sqlserver", Version: "12.0", Minimum: "13.0"}
	assert.Equal(t, "rowset: sqlserver: version 12.0 is not supported, minimum supported version is 13.0", err.Error())
	assert.True(t, rowset.IsVersionError(err))
}

func TestExecutionError(t *testing.T) {
	cause := errors.New("connection reset")
	err := rowset.NewExecutionError("insert ProductCategory", "INSERT ...", cause)
	assert.Equal(t, "rowset: insert ProductCategory: connection reset", err.Error())
	assert.True(t, rowset.IsExecutionError(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, rowset.IsExecutionError(nil))
}

func TestValidationError(t *testing.T) {
	cause := errors.New("value is required")
	err := rowset.NewValidationError("Product", "Name", 3, cause)
	assert.Equal(t, "rowset: Product.Name (row 3): value is required", err.Error())
	assert.True(t, rowset.IsValidationError(err))
	assert.ErrorIs(t, err, cause)
	code, ok := rowset.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, rowset.ValidationFailed, code)

	err = &rowset.ValidationError{Code: rowset.AmbiguousKey, Model: "Product", Row: -1, Err: cause}
	assert.Equal(t, "rowset: Product: value is required", err.Error())
	code, _ = rowset.CodeOf(err)
	assert.Equal(t, rowset.AmbiguousKey, code)
}

func TestCodeOf(t *testing.T) {
	_, ok := rowset.CodeOf(errors.New("plain"))
	assert.False(t, ok)
	_, ok = rowset.CodeOf(nil)
	assert.False(t, ok)
}
