package sqlgraph_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"

	"github.com/syssam/rowset"
	"github.com/syssam/rowset/dialect/sql/sqlgraph"
)

func TestConstraintErrors(t *testing.T) {
	tests := []struct {
		name              string
		err               error
		unique, fk, check bool
	}{
		{name: "Nil"},
		{name: "Plain", err: errors.New("connection reset")},
		{name: "MySQLDuplicate", err: &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'Bikes' for key 'AK_ProductCategory_Name'"}, unique: true},
		{name: "MySQLChild", err: &mysql.MySQLError{Number: 1452}, fk: true},
		{name: "MySQLParent", err: &mysql.MySQLError{Number: 1451}, fk: true},
		{name: "MySQLCheck", err: &mysql.MySQLError{Number: 3819}, check: true},
		{name: "MySQLOther", err: &mysql.MySQLError{Number: 1146, Message: "Table 'Error 1062' doesn't exist"}},
		{name: "SQLServerPrimaryKey", err: mssql.Error{Number: 2627, Message: "Violation of PRIMARY KEY constraint 'PK_Product'."}, unique: true},
		{name: "SQLServerUniqueIndex", err: mssql.Error{Number: 2601, Message: "Cannot insert duplicate key row in object 'SalesLT.Product'."}, unique: true},
		{name: "SQLServerForeignKey", err: mssql.Error{Number: 547, Message: `The INSERT statement conflicted with the FOREIGN KEY constraint "FK_Product_ProductCategory".`}, fk: true},
		{name: "SQLServerReference", err: mssql.Error{Number: 547, Message: `The DELETE statement conflicted with the REFERENCE constraint "FK_Product_ProductCategory".`}, fk: true},
		{name: "SQLServerCheck", err: mssql.Error{Number: 547, Message: `The INSERT statement conflicted with the CHECK constraint "CK_Product_ListPrice".`}, check: true},
		{name: "Wrapped", err: rowset.NewExecutionError("insert Product", "INSERT ...", fmt.Errorf("dialect/sql: exec: %w", &mysql.MySQLError{Number: 1062})), unique: true},
		{name: "Text", err: errors.New("mssql: Violation of UNIQUE KEY constraint 'AK_Product_Name'"), unique: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unique, sqlgraph.IsUniqueConstraintError(tt.err))
			assert.Equal(t, tt.fk, sqlgraph.IsForeignKeyConstraintError(tt.err))
			assert.Equal(t, tt.check, sqlgraph.IsCheckConstraintError(tt.err))
			assert.Equal(t, tt.unique || tt.fk || tt.check, sqlgraph.IsConstraintError(tt.err))
			want := sqlgraph.NoConstraint
			switch {
			case tt.unique:
				want = sqlgraph.UniqueConstraint
			case tt.fk:
				want = sqlgraph.ForeignKeyConstraint
			case tt.check:
				want = sqlgraph.CheckConstraint
			}
			assert.Equal(t, want, sqlgraph.Constraint(tt.err))
		})
	}
}

func TestConstraintKind_String(t *testing.T) {
	assert.Equal(t, "none", sqlgraph.NoConstraint.String())
	assert.Equal(t, "unique", sqlgraph.UniqueConstraint.String())
	assert.Equal(t, "foreign key", sqlgraph.ForeignKeyConstraint.String())
	assert.Equal(t, "check", sqlgraph.CheckConstraint.String())
}
