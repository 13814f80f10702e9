// Package bulk encodes rows into a single document parameter that the server
// shreds back into rows: XML for SQL Server, JSON for MySQL.
//
// A Layout fixes the ordinal of every column. Encoders, decoders and the
// shredding select all address columns through it as col_0, col_1, ...
package bulk

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/syssam/rowset/dialect"
	"github.com/syssam/rowset/dialect/sql"
	"github.com/syssam/rowset/schema"
)

// Alias is the alias of the shredded row source in generated statements.
const Alias = "sys_bulk"

// Layout assigns ordinals to the columns of a model.
type Layout struct {
	columns []*schema.Column
	index   map[string]int
}

// NewLayout returns the layout of all columns of m in declaration order.
func NewLayout(m *schema.Model) *Layout {
	l := &Layout{columns: m.Columns(), index: make(map[string]int, len(m.Columns()))}
	for i, c := range l.columns {
		l.index[strings.ToLower(c.Name())] = i
	}
	return l
}

// Len returns the number of columns.
func (l *Layout) Len() int { return len(l.columns) }

// Columns returns the columns by ordinal.
func (l *Layout) Columns() []*schema.Column { return l.columns }

// Ordinal returns the ordinal of the named column.
func (l *Layout) Ordinal(name string) (int, bool) {
	i, ok := l.index[strings.ToLower(name)]
	return i, ok
}

// Name returns the element or column name of ordinal i.
func Name(i int) string { return "col_" + strconv.Itoa(i) }

// Source returns the row source shredding doc, bound with the given kind.
func (l *Layout) Source(kind sql.ParamKind, doc string) *sql.DbBulkSource {
	types := make([]sql.DbType, len(l.columns))
	for i, c := range l.columns {
		types[i] = sql.ColumnType(c)
	}
	return &sql.DbBulkSource{
		Param:   &sql.DbParamExpression{Type: sql.DbType{Type: schema.TypeString}, Value: doc, Kind: kind},
		Alias:   Alias,
		Columns: types,
	}
}

// Value returns the expression reading the named column from a shredded row.
func (l *Layout) Value(name string) (*sql.DbBulkValueExpression, error) {
	i, ok := l.Ordinal(name)
	if !ok {
		return nil, fmt.Errorf("bulk: column %q is not in the layout", name)
	}
	return &sql.DbBulkValueExpression{Source: Alias, Ordinal: i, Type: sql.ColumnType(l.columns[i])}, nil
}

// Format encodes rows of a layout into a document and back.
type Format interface {
	// Kind returns how the document is bound.
	Kind() sql.ParamKind
	// Encode encodes rows, each holding one value per layout column.
	Encode(l *Layout, rows [][]any) (string, error)
	// Decode decodes a document produced by Encode.
	Decode(l *Layout, doc string) ([][]any, error)
}

// ForDialect returns the format shredded by the named dialect.
func ForDialect(name string) (Format, error) {
	switch name {
	case dialect.SQLServer:
		return XML, nil
	case dialect.MySQL:
		return JSON, nil
	}
	return nil, fmt.Errorf("bulk: unsupported dialect %q", name)
}

func checkWidth(l *Layout, i int, row []any) error {
	if len(row) != l.Len() {
		return fmt.Errorf("bulk: row %d has %d values, layout has %d columns", i, len(row), l.Len())
	}
	return nil
}

func checkFloat(c *schema.Column, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("column %s: %v cannot be encoded", c.Name(), f)
	}
	return nil
}

// null reports if v encodes as NULL.
func null(v any) bool {
	if v == nil {
		return true
	}
	b, ok := v.([]byte)
	return ok && b == nil
}
