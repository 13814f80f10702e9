package sqlgraph

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	mssql "github.com/microsoft/go-mssqldb"

	"github.com/syssam/rowset"
	"github.com/syssam/rowset/dataset"
	"github.com/syssam/rowset/dialect"
	"github.com/syssam/rowset/dialect/sql"
	"github.com/syssam/rowset/schema"
)

// ToDataSet executes the select of s and reads the result into a new root
// data set of the selected model. The selector must not list explicit items:
// every column is read, in declaration order. Reading the same unchanged rows
// twice yields equal data sets.
func ToDataSet(ctx context.Context, eq dialect.ExecQuerier, gen sql.Generator, s *sql.Selector) (*dataset.DataSet, error) {
	columns := s.Columns()
	if columns == nil {
		return nil, errors.New("sqlgraph: selector with explicit items cannot be read into a data set")
	}
	stmt, err := s.Compile(gen)
	if err != nil {
		return nil, err
	}
	r, err := gen.Render(stmt)
	if err != nil {
		return nil, err
	}
	query, args := gen.Bind(r)
	var rows sql.Rows
	if err := eq.Query(ctx, query, args, &rows); err != nil {
		return nil, rowset.NewExecutionError("select "+s.Model().Name(), query, err)
	}
	defer rows.Close()
	ds := dataset.New(s.Model())
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, rowset.NewExecutionError("select "+s.Model().Name(), query, err)
		}
		row := ds.NewRow()
		for i, c := range columns {
			v, err := scanned(gen.Dialect(), c, values[i])
			if err != nil {
				return nil, err
			}
			if err := row.SetValue(c, v); err != nil {
				return nil, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, rowset.NewExecutionError("select "+s.Model().Name(), query, err)
	}
	return ds, nil
}

// scanned converts a value returned by the driver to the representation of
// column c. SQL Server sends UNIQUEIDENTIFIER in its mixed-endian layout.
func scanned(name string, c *schema.Column, v any) (any, error) {
	b, ok := v.([]byte)
	if !ok || name != dialect.SQLServer || c.Type() != schema.TypeGuid || len(b) != 16 {
		return v, nil
	}
	var u mssql.UniqueIdentifier
	if err := u.Scan(b); err != nil {
		return nil, fmt.Errorf("sqlgraph: column %s: %w", c, err)
	}
	return uuid.UUID(u), nil
}
