package sql

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	atlasmysql "ariga.io/atlas/sql/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/syssam/rowset"
	"github.com/syssam/rowset/dialect"
	"github.com/syssam/rowset/expr"
	"github.com/syssam/rowset/schema"
)

// MySQL renders statements for MySQL 8.
//
// Bulk rows are shredded from a JSON parameter with JSON_TABLE. MySQL has no
// OUTPUT clause: the identities of a multi-row insert are derived from
// LAST_INSERT_ID and @@auto_increment_increment, which holds only while
// innodb_autoinc_lock_mode keeps the values of one statement consecutive
// (modes 0 and 1, or mode 2 without concurrent inserts into the same table).
//
// A temporary table cannot be opened twice in one MySQL statement, so every
// statement built for this dialect references each temporary table once.
type MySQL struct {
	version dialect.Version
}

var _ Generator = (*MySQL)(nil)

// checkConstraints is the first version that enforces CHECK constraints.
var checkConstraints = dialect.Version{Major: 8, Minor: 0, Build: 16}

// Dialect returns dialect.MySQL.
func (*MySQL) Dialect() string { return dialect.MySQL }

// Version returns the targeted server version.
func (g *MySQL) Version() dialect.Version { return g.version }

// Render renders stmts as one script.
func (g *MySQL) Render(stmts ...DbStatement) (*Rendered, error) { return render(g, stmts...) }

// RenderBatch renders every statement on its own, since the driver sends
// multiple statements only with multiStatements enabled and then cannot bind
// arguments.
func (g *MySQL) RenderBatch(stmts ...DbStatement) ([]*Rendered, error) {
	out := make([]*Rendered, 0, len(stmts))
	for _, s := range stmts {
		r, err := render(g, s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Bind returns the statement text and positional arguments.
func (g *MySQL) Bind(r *Rendered) (string, []any) {
	args := make([]any, len(r.Params))
	for i, p := range r.Params {
		switch v := p.Value.(type) {
		case uuid.UUID:
			args[i] = v.String()
		case decimal.Decimal:
			args[i] = v.String()
		default:
			args[i] = p.Value
		}
	}
	return r.Text, args
}

var mysqlTypes = map[schema.Type]string{
	schema.TypeBool:     atlasmysql.TypeBool,
	schema.TypeByte:     atlasmysql.TypeTinyInt + " unsigned",
	schema.TypeInt16:    atlasmysql.TypeSmallInt,
	schema.TypeInt32:    atlasmysql.TypeInt,
	schema.TypeInt64:    atlasmysql.TypeBigInt,
	schema.TypeSingle:   atlasmysql.TypeFloat,
	schema.TypeDouble:   atlasmysql.TypeDouble,
	schema.TypeGuid:     atlasmysql.TypeChar + "(36)",
	schema.TypeDateTime: atlasmysql.TypeDateTime + "(6)",
}

// TypeName returns the MySQL type of t. DateTimeOffset has no MySQL type that
// keeps the offset.
func (g *MySQL) TypeName(t DbType) (string, error) {
	if name, ok := mysqlTypes[t.Type]; ok {
		return strings.ToUpper(name), nil
	}
	var name string
	switch t.Type {
	case schema.TypeDecimal:
		p, s := t.Precision, t.Scale
		if p == 0 {
			p, s = 18, 2
		}
		name = fmt.Sprintf("%s(%d, %d)", atlasmysql.TypeDecimal, p, s)
	case schema.TypeString:
		if t.Size == 0 || t.Size > 16383 {
			name = atlasmysql.TypeLongText
		} else {
			name = fmt.Sprintf("%s(%d)", atlasmysql.TypeVarchar, t.Size)
		}
	case schema.TypeBinary:
		if t.Size == 0 || t.Size > 16383 {
			name = atlasmysql.TypeLongBlob
		} else {
			name = fmt.Sprintf("%s(%d)", atlasmysql.TypeVarBinary, t.Size)
		}
	default:
		return "", rowset.NewColumnTypeNotSupported(dialect.MySQL, t.Type.String())
	}
	return strings.ToUpper(name), nil
}

// mysqlFunctions maps function names to their MySQL spelling. An empty name
// marks a function without a MySQL equivalent.
var mysqlFunctions = map[string]string{
	"GETDATE":         "NOW",
	"NEWID":           "UUID",
	"NEWSEQUENTIALID": "",
	"LEN":             "CHAR_LENGTH",
	"UPPER":           "UPPER",
	"LOWER":           "LOWER",
	"TRIM":            "TRIM",
	"SUBSTRING":       "SUBSTRING",
	"ISNULL":          "IFNULL",
	"COALESCE":        "COALESCE",
	"ABS":             "ABS",
	"ROUND":           "ROUND",
	"COUNT":           "COUNT",
	"COUNT_BIG":       "COUNT",
	"SUM":             "SUM",
	"AVG":             "AVG",
	"MIN":             "MIN",
	"MAX":             "MAX",
}

// Supports reports if the named function has a MySQL rendering.
func (*MySQL) Supports(name string) bool {
	return mysqlFunctions[strings.ToUpper(name)] != ""
}

func (g *MySQL) hooks() hooks { return mysqlHooks{g} }

type mysqlHooks struct{ g *MySQL }

func (mysqlHooks) quote(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

func (mysqlHooks) param(int, Param) string { return "?" }

func (mysqlHooks) boolPredicates() bool { return true }

func (mysqlHooks) literal(t schema.Type, v any) (string, error) {
	if v == nil {
		return "NULL", nil
	}
	switch v := v.(type) {
	case string:
		return "'" + escapeStringValue(v) + "'", nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case []byte:
		return "X'" + strings.ToUpper(hex.EncodeToString(v)) + "'", nil
	case uuid.UUID:
		return "'" + v.String() + "'", nil
	case time.Time:
		return "'" + v.Format("2006-01-02 15:04:05.999999") + "'", nil
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

// escapeStringValue escapes s for a single-quoted literal under the default
// sql_mode, where backslash is an escape character.
func escapeStringValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case 0:
			b.WriteString(`\0`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\x1a':
			b.WriteString(`\Z`)
		case '\'':
			b.WriteString(`''`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (mysqlHooks) castType(t DbType) (string, error) {
	switch t.Type {
	case schema.TypeBool, schema.TypeInt16, schema.TypeInt32, schema.TypeInt64:
		return "SIGNED", nil
	case schema.TypeByte:
		return "UNSIGNED", nil
	case schema.TypeDecimal:
		p, s := t.Precision, t.Scale
		if p == 0 {
			p, s = 18, 2
		}
		return fmt.Sprintf("DECIMAL(%d, %d)", p, s), nil
	case schema.TypeSingle:
		return "FLOAT", nil
	case schema.TypeDouble:
		return "DOUBLE", nil
	case schema.TypeString:
		return "CHAR", nil
	case schema.TypeGuid:
		return "CHAR(36)", nil
	case schema.TypeDateTime:
		return "DATETIME(6)", nil
	case schema.TypeBinary:
		return "BINARY", nil
	}
	return "", rowset.NewColumnTypeNotSupported(dialect.MySQL, t.Type.String())
}

func (mysqlHooks) function(b *builder, f *DbFunctionExpression) error {
	name := mysqlFunctions[strings.ToUpper(f.Name)]
	if name == "" {
		return rowset.NewFunctionNotSupported(dialect.MySQL, f.Name)
	}
	b.WriteString(name)
	if name == "NOW" {
		b.WriteString("(6)")
		return nil
	}
	b.args(f)
	return nil
}

// concat writes CONCAT(a, b, ...) with nested concatenations flattened.
func (mysqlHooks) concat(b *builder, e *DbBinaryExpression) error {
	b.WriteString("CONCAT(")
	for i, x := range concatOperands(nil, e) {
		if i > 0 {
			b.WriteString(", ")
		}
		b.value(x)
	}
	b.WriteString(")")
	return nil
}

func concatOperands(dst []DbExpression, e DbExpression) []DbExpression {
	if c, ok := e.(*DbBinaryExpression); ok && c.Op == expr.OpAdd && c.Type == schema.TypeString {
		dst = concatOperands(dst, c.Left)
		return concatOperands(dst, c.Right)
	}
	return append(dst, e)
}

// bulkType is the JSON_TABLE column type of t. Binary values travel as base64
// text and are decoded by bulkValue.
func (h mysqlHooks) bulkType(t DbType) (string, error) {
	if t.Type == schema.TypeBinary {
		return "LONGTEXT", nil
	}
	return h.g.TypeName(t)
}

func (h mysqlHooks) bulkSource(b *builder, s *DbBulkSource) error {
	if s.Param.Kind != ParamJSON {
		return fmt.Errorf("dialect/sql: mysql shreds JSON bulk parameters only")
	}
	b.WriteString("JSON_TABLE(")
	b.arg(Param{Kind: s.Param.Kind, Type: s.Param.Type, Value: s.Param.Value})
	b.WriteString(", '$[*]' COLUMNS (")
	for i, c := range s.Columns {
		t, err := h.bulkType(c)
		if err != nil {
			return err
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(fmt.Sprintf("col_%d", i))
		fmt.Fprintf(b, " %s PATH '$[%d]'", t, i)
	}
	b.WriteString(")) AS ")
	b.Ident(s.Alias)
	return nil
}

func (mysqlHooks) bulkValue(b *builder, v *DbBulkValueExpression) error {
	col := func() {
		b.Ident(v.Source).WriteString(".")
		b.Ident(fmt.Sprintf("col_%d", v.Ordinal))
	}
	if v.Type.Type == schema.TypeBinary {
		b.WriteString("FROM_BASE64(")
		col()
		b.WriteString(")")
		return nil
	}
	col()
	return nil
}

func (mysqlHooks) top(b *builder, n int, prefix bool) {
	if !prefix {
		b.clause(fmt.Sprintf("LIMIT %d", n))
	}
}

func (mysqlHooks) insertOutput(*builder, *DbOutputClause) error {
	return rowset.NewFunctionNotSupported(dialect.MySQL, "OUTPUT")
}

// update writes UPDATE table AS alias JOIN ... SET alias.col = ... WHERE ...
func (mysqlHooks) update(b *builder, u *DbUpdateStatement) error {
	b.WriteString("UPDATE ")
	b.source(u.Table)
	b.joins(u.Joins)
	b.clause("SET ")
	for i, a := range u.Set {
		if i > 0 {
			b.WriteString(", ")
		}
		if u.Table.Alias != "" {
			b.Ident(u.Table.Alias).WriteString(".")
		}
		b.Ident(a.Column)
		b.WriteString(" = ")
		b.value(a.Value)
	}
	if u.Where != nil {
		b.clause("WHERE ")
		b.condition(u.Where)
	}
	return nil
}

func (h mysqlHooks) columnDef(b *builder, c *DbColumnDef) error {
	t, err := h.g.TypeName(c.Type)
	if err != nil {
		return err
	}
	b.Ident(c.Name)
	b.WriteString(" ")
	b.WriteString(t)
	if c.Computed != nil {
		b.WriteString(" AS (")
		b.value(c.Computed)
		b.WriteString(")")
	}
	if c.Nullable {
		b.WriteString(" NULL")
	} else {
		b.WriteString(" NOT NULL")
	}
	if c.Identity != nil {
		b.WriteString(" AUTO_INCREMENT")
	}
	switch d := c.Default.(type) {
	case nil:
	case *DbLiteralExpression, *DbNullExpression:
		b.WriteString(" DEFAULT ")
		b.value(d)
	default:
		b.WriteString(" DEFAULT (")
		b.value(d)
		b.WriteString(")")
	}
	return nil
}

func (mysqlHooks) createTable(temp bool) string {
	if temp {
		return "CREATE TEMPORARY TABLE"
	}
	return "CREATE TABLE"
}

// tableOptions writes the AUTO_INCREMENT start value. The increment is a
// server setting, so identities with another increment cannot be created on
// permanent tables.
func (mysqlHooks) tableOptions(b *builder, s *DbCreateTableStatement) {
	for _, c := range s.Columns {
		id := c.Identity
		if id == nil {
			continue
		}
		if id.Increment != 1 && !s.Table.Temporary() {
			b.addError(rowset.NewConstraintTypeNotSupported(dialect.MySQL, "IDENTITY",
				fmt.Sprintf("increment %d of column %s, the increment is set by auto_increment_increment", id.Increment, c.Name)))
		}
		if id.Seed != 1 {
			fmt.Fprintf(b, " AUTO_INCREMENT=%d", id.Seed)
		}
	}
}

func (mysqlHooks) dropTable(b *builder, s *DbDropTableStatement) {
	b.WriteString("DROP ")
	if s.Table.Temporary() {
		b.WriteString("TEMPORARY ")
	}
	b.WriteString("TABLE ")
	if s.IfExists {
		b.WriteString("IF EXISTS ")
	}
	b.table(s.Table)
}

func (h mysqlHooks) check() error {
	if !h.g.version.AtLeast(checkConstraints) {
		return rowset.NewConstraintTypeNotSupported(dialect.MySQL, "CHECK",
			fmt.Sprintf("server version %s is below %s", h.g.version, checkConstraints))
	}
	return nil
}
