package sql

import (
	"github.com/syssam/rowset/schema"
)

// CreateTable returns the CREATE TABLE statement of m. Defaults, computed
// columns and checks compile with inline literals.
func CreateTable(gen Generator, m *schema.Model) (*DbCreateTableStatement, error) {
	c := NewCompiler(gen).Bind(m, "")
	stmt := &DbCreateTableStatement{Table: TableOf(m, "")}
	for _, col := range m.Columns() {
		def := DbColumnDef{Name: col.Name(), Type: ColumnType(col), Nullable: col.Nullable()}
		if id, ok := col.Identity(); ok {
			def.Identity = &id
		}
		if d := col.Default(); d != nil {
			x, err := c.CompileLiteral(d)
			if err != nil {
				return nil, err
			}
			def.Default = x
		}
		if e := col.Computed(); e != nil {
			x, err := c.CompileLiteral(e)
			if err != nil {
				return nil, err
			}
			def.Computed = x
		}
		stmt.Columns = append(stmt.Columns, def)
	}
	for _, k := range m.CandidateKeys() {
		key := DbKeyDef{Name: k.Name(), Columns: columnNames(k.Columns())}
		if k.Primary() {
			stmt.PrimaryKey = &key
			continue
		}
		stmt.Uniques = append(stmt.Uniques, key)
	}
	if m.Kind() == schema.KindTable {
		for _, fk := range m.ForeignKeys() {
			stmt.ForeignKeys = append(stmt.ForeignKeys, DbForeignKeyDef{
				Name:       fk.Name(),
				Columns:    columnNames(fk.Columns()),
				Ref:        TableOf(fk.Ref(), ""),
				RefColumns: columnNames(fk.RefColumns()),
			})
		}
		for _, ck := range m.Checks() {
			x, err := c.CompileLiteral(ck.Expr)
			if err != nil {
				return nil, err
			}
			stmt.Checks = append(stmt.Checks, DbCheckDef{Name: ck.Name, Expr: x})
		}
	}
	return stmt, nil
}

// DropTable returns DROP TABLE IF EXISTS for the table of m.
func DropTable(m *schema.Model) *DbDropTableStatement {
	return &DbDropTableStatement{Table: TableOf(m, ""), IfExists: true}
}

func columnNames(cs []*schema.Column) []string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name()
	}
	return names
}
