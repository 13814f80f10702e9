package sql

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/shopspring/decimal"

	"github.com/syssam/rowset"
	"github.com/syssam/rowset/dialect"
	"github.com/syssam/rowset/schema"
)

// SQLServer renders statements for Microsoft SQL Server.
//
//   - Identifiers are quoted with [brackets].
//   - Parameters are named @p1, @p2, ...
//   - Bulk rows are shredded from an XML parameter with nodes() and value().
//   - Identity values are captured with OUTPUT INSERTED.
//   - Boolean values are BIT, so predicates and values convert with CASE and = 1.
type SQLServer struct {
	version dialect.Version
}

var _ Generator = (*SQLServer)(nil)

// Dialect returns dialect.SQLServer.
func (*SQLServer) Dialect() string { return dialect.SQLServer }

// Version returns the targeted server version.
func (g *SQLServer) Version() dialect.Version { return g.version }

// Render renders stmts as one batch.
func (g *SQLServer) Render(stmts ...DbStatement) (*Rendered, error) { return render(g, stmts...) }

// RenderBatch renders stmts as a single batch.
func (g *SQLServer) RenderBatch(stmts ...DbStatement) ([]*Rendered, error) {
	r, err := render(g, stmts...)
	if err != nil {
		return nil, err
	}
	return []*Rendered{r}, nil
}

// Bind returns the batch text and named arguments. XML parameters are
// declared as XML variables at the top of the batch, since nodes() cannot be
// applied to the NVARCHAR the document is sent as.
func (g *SQLServer) Bind(r *Rendered) (string, []any) {
	var (
		preamble strings.Builder
		args     = make([]any, 0, len(r.Params))
	)
	for _, p := range r.Params {
		if p.Kind == ParamXML {
			fmt.Fprintf(&preamble, "DECLARE @%s XML = @%s_xml;\n", p.Name, p.Name)
			args = append(args, sql.Named(p.Name+"_xml", p.Value))
			continue
		}
		args = append(args, sql.Named(p.Name, g.arg(p)))
	}
	return preamble.String() + r.Text, args
}

// arg converts a parameter value to the argument type the driver binds with
// the matching server type.
func (g *SQLServer) arg(p Param) any {
	switch v := p.Value.(type) {
	case uuid.UUID:
		return mssql.UniqueIdentifier(v)
	case time.Time:
		if p.Type.Type == schema.TypeDateTimeOffset {
			return mssql.DateTimeOffset(v)
		}
		return v
	case decimal.Decimal:
		return v.String()
	}
	return p.Value
}

var sqlServerTypes = map[schema.Type]string{
	schema.TypeBool:           "BIT",
	schema.TypeByte:           "TINYINT",
	schema.TypeInt16:          "SMALLINT",
	schema.TypeInt32:          "INT",
	schema.TypeInt64:          "BIGINT",
	schema.TypeSingle:         "REAL",
	schema.TypeDouble:         "FLOAT",
	schema.TypeGuid:           "UNIQUEIDENTIFIER",
	schema.TypeDateTime:       "DATETIME2(6)",
	schema.TypeDateTimeOffset: "DATETIMEOFFSET(6)",
}

// TypeName returns the SQL Server type of t.
func (g *SQLServer) TypeName(t DbType) (string, error) {
	if name, ok := sqlServerTypes[t.Type]; ok {
		return name, nil
	}
	switch t.Type {
	case schema.TypeDecimal:
		p, s := t.Precision, t.Scale
		if p == 0 {
			p, s = 18, 2
		}
		return fmt.Sprintf("DECIMAL(%d, %d)", p, s), nil
	case schema.TypeString:
		if t.Size == 0 || t.Size > 4000 {
			return "NVARCHAR(MAX)", nil
		}
		return fmt.Sprintf("NVARCHAR(%d)", t.Size), nil
	case schema.TypeBinary:
		if t.Size == 0 || t.Size > 8000 {
			return "VARBINARY(MAX)", nil
		}
		return fmt.Sprintf("VARBINARY(%d)", t.Size), nil
	}
	return "", rowset.NewColumnTypeNotSupported(dialect.SQLServer, t.Type.String())
}

// Supports reports if the named function has a SQL Server rendering.
func (*SQLServer) Supports(name string) bool {
	_, ok := sqlServerFunctions[strings.ToUpper(name)]
	return ok
}

var sqlServerFunctions = map[string]bool{
	"GETDATE": true, "NEWID": true, "NEWSEQUENTIALID": true, "LEN": true,
	"UPPER": true, "LOWER": true, "TRIM": true, "SUBSTRING": true,
	"ISNULL": true, "COALESCE": true, "ABS": true, "ROUND": true,
	"COUNT": true, "COUNT_BIG": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true,
}

func (g *SQLServer) hooks() hooks { return sqlServerHooks{g} }

type sqlServerHooks struct{ g *SQLServer }

func (sqlServerHooks) quote(s string) string {
	return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
}

func (sqlServerHooks) param(n int, _ Param) string { return "@p" + strconv.Itoa(n) }

func (sqlServerHooks) boolPredicates() bool { return false }

func (h sqlServerHooks) literal(t schema.Type, v any) (string, error) {
	if v == nil {
		return "NULL", nil
	}
	switch v := v.(type) {
	case string:
		return "N'" + strings.ReplaceAll(v, "'", "''") + "'", nil
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	case []byte:
		return "0x" + strings.ToUpper(hex.EncodeToString(v)), nil
	case uuid.UUID:
		return "'" + v.String() + "'", nil
	case time.Time:
		if t == schema.TypeDateTimeOffset {
			return "'" + v.Format("2006-01-02T15:04:05.999999-07:00") + "'", nil
		}
		return "'" + v.Format("2006-01-02T15:04:05.999999") + "'", nil
	case decimal.Decimal:
		return v.String(), nil
	case float32:
		return formatFloat(float64(v), 32)
	case float64:
		return formatFloat(v, 64)
	case uint8, int16, int32, int64:
		return fmt.Sprint(v), nil
	}
	return "", fmt.Errorf("dialect/sql: cannot format %T as a %s literal", v, t)
}

func formatFloat(f float64, bits int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("dialect/sql: %v has no literal form", f)
	}
	return strconv.FormatFloat(f, 'g', -1, bits), nil
}

func (h sqlServerHooks) castType(t DbType) (string, error) { return h.g.TypeName(t) }

func (h sqlServerHooks) function(b *builder, f *DbFunctionExpression) error {
	name := strings.ToUpper(f.Name)
	if !sqlServerFunctions[name] {
		return rowset.NewFunctionNotSupported(dialect.SQLServer, f.Name)
	}
	// TRIM exists from SQL Server 2017 (14.0).
	if name == "TRIM" && !h.g.version.AtLeast(dialect.Version{Major: 14}) {
		b.WriteString("LTRIM(RTRIM")
		b.args(f)
		b.WriteString(")")
		return nil
	}
	b.WriteString(name)
	b.args(f)
	return nil
}

func (sqlServerHooks) concat(b *builder, e *DbBinaryExpression) error {
	b.operand(e.Left, precAdd, false)
	b.WriteString(" + ")
	b.operand(e.Right, precAdd, true)
	return nil
}

func (sqlServerHooks) bulkSource(b *builder, s *DbBulkSource) error {
	if s.Param.Kind != ParamXML {
		return fmt.Errorf("dialect/sql: sqlserver shreds XML bulk parameters only")
	}
	b.arg(Param{Kind: s.Param.Kind, Type: s.Param.Type, Value: s.Param.Value})
	b.WriteString(".nodes('/root/row') AS ")
	b.Ident(s.Alias)
	b.WriteString("(")
	b.Ident("row")
	b.WriteString(")")
	return nil
}

func (h sqlServerHooks) bulkValue(b *builder, v *DbBulkValueExpression) error {
	t, err := h.g.TypeName(v.Type)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("col_%d[1]", v.Ordinal)
	if v.Type.Type == schema.TypeBinary {
		path = "xs:base64Binary(" + path + ")"
	}
	b.Ident(v.Source).WriteString(".")
	b.Ident("row")
	fmt.Fprintf(b, ".value('%s', '%s')", path, t)
	return nil
}

func (sqlServerHooks) top(b *builder, n int, prefix bool) {
	if prefix {
		fmt.Fprintf(b, "TOP (%d) ", n)
	}
}

func (sqlServerHooks) insertOutput(b *builder, o *DbOutputClause) error {
	b.WriteString("\nOUTPUT ")
	for i, c := range o.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("INSERTED.")
		b.Ident(c)
	}
	if o.Into != nil {
		b.WriteString(" INTO ")
		b.table(o.Into)
		b.WriteString(" ")
		b.identList(o.IntoColumns)
	}
	return nil
}

// update writes UPDATE alias SET ... FROM table AS alias JOIN ... WHERE ...
func (sqlServerHooks) update(b *builder, u *DbUpdateStatement) error {
	b.WriteString("UPDATE ")
	if u.Table.Alias != "" {
		b.Ident(u.Table.Alias)
	} else {
		b.table(u.Table)
	}
	b.clause("SET ")
	for i, a := range u.Set {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(a.Column)
		b.WriteString(" = ")
		b.value(a.Value)
	}
	if u.Table.Alias != "" {
		b.clause("FROM ")
		b.source(u.Table)
		b.joins(u.Joins)
	}
	if u.Where != nil {
		b.clause("WHERE ")
		b.condition(u.Where)
	}
	return nil
}

func (h sqlServerHooks) columnDef(b *builder, c *DbColumnDef) error {
	t, err := h.g.TypeName(c.Type)
	if err != nil {
		return err
	}
	b.Ident(c.Name)
	if c.Computed != nil {
		b.WriteString(" AS (")
		b.value(c.Computed)
		b.WriteString(")")
		return nil
	}
	b.WriteString(" ")
	b.WriteString(t)
	if c.Identity != nil {
		fmt.Fprintf(b, " IDENTITY(%d, %d)", c.Identity.Seed, c.Identity.Increment)
	}
	if c.Nullable {
		b.WriteString(" NULL")
	} else {
		b.WriteString(" NOT NULL")
	}
	if c.Default != nil {
		b.WriteString(" DEFAULT ")
		b.value(c.Default)
	}
	return nil
}

func (sqlServerHooks) createTable(bool) string { return "CREATE TABLE" }

func (sqlServerHooks) tableOptions(*builder, *DbCreateTableStatement) {}

func (sqlServerHooks) dropTable(b *builder, s *DbDropTableStatement) {
	b.WriteString("DROP TABLE ")
	if s.IfExists {
		b.WriteString("IF EXISTS ")
	}
	b.table(s.Table)
}

func (sqlServerHooks) check() error { return nil }
