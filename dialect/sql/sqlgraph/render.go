package sqlgraph

import (
	"github.com/syssam/rowset/dialect"
	"github.com/syssam/rowset/dialect/sql"
	"github.com/syssam/rowset/expr"
	"github.com/syssam/rowset/schema"
)

// render appends the steps of table t to plan: create its session tables,
// fill and rewrite the staging table, insert and capture identities, read
// the mapping. Drops are prepended so they run in reverse creation order.
func (p *Planner) render(plan *Plan, t *table) error {
	name := t.model.Name()
	created, err := p.create(t)
	if err != nil {
		return err
	}
	if err := p.step(plan, t, "create "+name, StepExec, created...); err != nil {
		return err
	}
	for _, s := range created {
		drop := &sql.DbDropTableStatement{Table: s.(*sql.DbCreateTableStatement).Table, IfExists: true}
		r, err := p.gen.Render(drop)
		if err != nil {
			return err
		}
		plan.drops = append([]*Step{{Name: "drop " + drop.Table.Name, Kind: StepDrop, Model: name, Batches: []*sql.Rendered{r}}}, plan.drops...)
	}
	staged, err := p.fill(t)
	if err != nil {
		return err
	}
	if err := p.step(plan, t, "stage "+name, StepExec, staged...); err != nil {
		return err
	}
	inserted, err := p.insert(t)
	if err != nil {
		return err
	}
	if err := p.step(plan, t, "insert "+name, StepExec, inserted...); err != nil {
		return err
	}
	if t.identity == nil {
		return nil
	}
	return p.step(plan, t, "map "+name, StepMapping, p.readMapping(t))
}

func (p *Planner) step(plan *Plan, t *table, name string, kind StepKind, stmts ...sql.DbStatement) error {
	batches, err := p.gen.RenderBatch(stmts...)
	if err != nil {
		return err
	}
	plan.steps = append(plan.steps, &Step{Name: name, Kind: kind, Model: t.model.Name(), Batches: batches, table: t})
	return nil
}

// tbl returns the session-scoped table name under alias.
func tbl(name, alias string) *sql.DbTable {
	return &sql.DbTable{Name: name, Alias: alias}
}

// create returns the CREATE statements of the staging, output and mapping tables.
func (p *Planner) create(t *table) ([]sql.DbStatement, error) {
	staging, err := sql.CreateTable(p.gen, t.staging)
	if err != nil {
		return nil, err
	}
	stmts := []sql.DbStatement{staging}
	if t.identity == nil {
		return stmts, nil
	}
	id := sql.ColumnType(t.identity)
	sysID := sql.DbType{Type: schema.TypeInt32}
	stmts = append(stmts,
		&sql.DbCreateTableStatement{
			Table:   tbl(t.sequential, ""),
			Columns: []sql.DbColumnDef{{Name: NewValue, Type: id, Nullable: true}},
		},
		&sql.DbCreateTableStatement{
			Table: tbl(t.mapping, ""),
			Columns: []sql.DbColumnDef{
				{Name: OldValue, Type: id, Nullable: true},
				{Name: OriginalSysRowID, Type: sysID},
				{Name: NewValue, Type: id, Nullable: true},
				{Name: schema.SysRowID, Type: sysID, Identity: &schema.Identity{Seed: 1, Increment: 1}},
			},
			PrimaryKey: &sql.DbKeyDef{Columns: []string{schema.SysRowID}},
		},
	)
	return stmts, nil
}

// fill returns the statement shredding the bulk document into the staging
// table, followed by the rewrites of keys referencing staged parents.
func (p *Planner) fill(t *table) ([]sql.DbStatement, error) {
	cols := t.staging.Columns()
	ins := &sql.DbInsertStatement{
		Table:   sql.TableOf(t.staging, ""),
		Columns: make([]string, len(cols)),
		Select:  &sql.DbSelectStatement{From: t.layout.Source(p.format.Kind(), t.doc)},
	}
	for i, c := range cols {
		v, err := t.layout.Value(c.Name())
		if err != nil {
			return nil, err
		}
		ins.Columns[i] = c.Name()
		ins.Select.Items = append(ins.Select.Items, sql.DbSelectItem{Expr: v})
	}
	stmts := []sql.DbStatement{ins}
	if l := t.parentRewrite; l != nil {
		stmts = append(stmts, rewrite(t, l, sql.Col(stagingAlias, schema.SysParentRowID), OriginalSysRowID))
	}
	for _, l := range t.keyRewrites {
		stmts = append(stmts, rewrite(t, l, sql.Col(stagingAlias, l.fk.Columns()[0].Name()), OldValue))
	}
	return stmts, nil
}

// rewrite sets the key column of l in the staging table of t to the new
// identity of the mapping row whose column on equals x.
func rewrite(t *table, l *link, x sql.DbExpression, on string) *sql.DbUpdateStatement {
	return &sql.DbUpdateStatement{
		Table: sql.TableOf(t.staging, stagingAlias),
		Set:   []sql.DbAssignment{{Column: l.fk.Columns()[0].Name(), Value: sql.Col(mappingAlias, NewValue)}},
		Joins: []sql.DbJoin{{
			Source: tbl(l.target.mapping, mappingAlias),
			On:     sql.Eq(x, sql.Col(mappingAlias, on)),
		}},
	}
}

// insert returns the statements inserting the staged rows into the target
// table in sys_row_id order and, for identity tables, building the mapping
// and the second pass of self references.
func (p *Planner) insert(t *table) ([]sql.DbStatement, error) {
	c := sql.NewCompiler(p.gen)
	bySysRow := []sql.DbOrderBy{{Expr: sql.Col(stagingAlias, schema.SysRowID)}}
	ins := &sql.DbInsertStatement{
		Table:  sql.TableOf(t.model, ""),
		Select: &sql.DbSelectStatement{From: sql.TableOf(t.staging, stagingAlias), OrderBy: bySysRow},
	}
	for _, col := range t.model.Columns() {
		if !col.Insertable() {
			continue
		}
		var x sql.DbExpression = sql.Col(stagingAlias, col.Name())
		// A NULL of a NOT NULL column with a default stands for the default.
		if d := col.Default(); d != nil && !col.Nullable() {
			dx, err := c.CompileLiteral(d)
			if err != nil {
				return nil, err
			}
			x = &sql.DbFunctionExpression{Name: "COALESCE", Args: []sql.DbExpression{x, dx}}
		}
		ins.Columns = append(ins.Columns, col.Name())
		ins.Select.Items = append(ins.Select.Items, sql.DbSelectItem{Expr: x})
	}
	if t.identity == nil {
		return []sql.DbStatement{ins}, nil
	}
	stmts := []sql.DbStatement{ins}
	switch p.gen.Dialect() {
	case dialect.SQLServer:
		ins.Output = &sql.DbOutputClause{
			Columns:     []string{t.identity.Name()},
			Into:        tbl(t.sequential, ""),
			IntoColumns: []string{NewValue},
		}
	default:
		stmts = append(stmts, p.capture(t))
	}
	stmts = append(stmts, p.fillMapping(t), p.rank(t))
	for _, fk := range t.selfRewrites {
		stmts = append(stmts, selfStaging(t, fk), selfTarget(t, fk))
	}
	return stmts, nil
}

// capture returns the MySQL statement recording the identities of the last
// insert. The server assigns them consecutively from LAST_INSERT_ID(), in
// steps of auto_increment_increment.
func (p *Planner) capture(t *table) sql.DbStatement {
	one := &sql.DbLiteralExpression{Type: schema.TypeInt64, Value: int64(1)}
	offset := &sql.DbBinaryExpression{
		Op: expr.OpMul,
		Left: &sql.DbBinaryExpression{
			Op:    expr.OpSub,
			Left:  &sql.DbRowNumberExpression{OrderBy: []sql.DbOrderBy{{Expr: sql.Col(stagingAlias, schema.SysRowID)}}},
			Right: one,
			Type:  schema.TypeInt64,
		},
		Right: &sql.DbSessionVariableExpression{Name: "auto_increment_increment"},
		Type:  schema.TypeInt64,
	}
	return &sql.DbInsertStatement{
		Table:   tbl(t.sequential, ""),
		Columns: []string{NewValue},
		Select: &sql.DbSelectStatement{
			Items: []sql.DbSelectItem{{Expr: &sql.DbBinaryExpression{
				Op:    expr.OpAdd,
				Left:  &sql.DbLastInsertIDExpression{},
				Right: offset,
				Type:  schema.TypeInt64,
			}}},
			From: sql.TableOf(t.staging, stagingAlias),
		},
	}
}

// fillMapping returns the insert of one mapping row per staged row, in
// sys_row_id order. MySQL numbers the rows explicitly.
func (p *Planner) fillMapping(t *table) sql.DbStatement {
	bySysRow := []sql.DbOrderBy{{Expr: sql.Col(stagingAlias, schema.SysRowID)}}
	ins := &sql.DbInsertStatement{
		Table:   tbl(t.mapping, ""),
		Columns: []string{OldValue, OriginalSysRowID},
		Select: &sql.DbSelectStatement{
			Items: []sql.DbSelectItem{
				{Expr: sql.Col(stagingAlias, t.identity.Name())},
				{Expr: sql.Col(stagingAlias, schema.SysRowID)},
			},
			From:    sql.TableOf(t.staging, stagingAlias),
			OrderBy: bySysRow,
		},
	}
	if p.gen.Dialect() == dialect.MySQL {
		ins.Columns = append(ins.Columns, schema.SysRowID)
		ins.Select.Items = append(ins.Select.Items, sql.DbSelectItem{Expr: &sql.DbRowNumberExpression{OrderBy: bySysRow}})
	}
	return ins
}

// rank returns the update setting NewValue of the k-th mapping row to the
// k-th captured identity in the order the server assigned them.
func (p *Planner) rank(t *table) sql.DbStatement {
	id, _ := t.identity.Identity()
	ranked := &sql.DbSelectStatement{
		Items: []sql.DbSelectItem{
			{Expr: sql.Col(outputAlias, NewValue)},
			{Expr: &sql.DbRowNumberExpression{OrderBy: []sql.DbOrderBy{{
				Expr: sql.Col(outputAlias, NewValue),
				Desc: id.Increment < 0,
			}}}, Alias: schema.SysRowID},
		},
		From: tbl(t.sequential, outputAlias),
	}
	return &sql.DbUpdateStatement{
		Table: tbl(t.mapping, mappingAlias),
		Set:   []sql.DbAssignment{{Column: NewValue, Value: sql.Col(rankedAlias, NewValue)}},
		Joins: []sql.DbJoin{{
			Source: &sql.DbDerivedTable{Select: ranked, Alias: rankedAlias},
			On:     sql.Eq(sql.Col(mappingAlias, schema.SysRowID), sql.Col(rankedAlias, schema.SysRowID)),
		}},
	}
}

// selfStaging resolves the sys_ref_<column> references of fk to the new
// identities of the referenced rows.
func selfStaging(t *table, fk *schema.ForeignKey) sql.DbStatement {
	return &sql.DbUpdateStatement{
		Table: sql.TableOf(t.staging, stagingAlias),
		Set:   []sql.DbAssignment{{Column: fk.Columns()[0].Name(), Value: sql.Col(mappingAlias, NewValue)}},
		Joins: []sql.DbJoin{{
			Source: tbl(t.mapping, mappingAlias),
			On:     sql.Eq(sql.Col(stagingAlias, schema.SysRefColumn(fk)), sql.Col(mappingAlias, OriginalSysRowID)),
		}},
	}
}

// selfTarget copies the resolved self references into the inserted rows.
func selfTarget(t *table, fk *schema.ForeignKey) sql.DbStatement {
	col := fk.Columns()[0].Name()
	return &sql.DbUpdateStatement{
		Table: sql.TableOf(t.model, targetAlias),
		Set:   []sql.DbAssignment{{Column: col, Value: sql.Col(stagingAlias, col)}},
		Joins: []sql.DbJoin{
			{
				Source: tbl(t.mapping, mappingAlias),
				On:     sql.Eq(sql.Col(targetAlias, t.identity.Name()), sql.Col(mappingAlias, NewValue)),
			},
			{
				Source: sql.TableOf(t.staging, stagingAlias),
				On:     sql.Eq(sql.Col(stagingAlias, schema.SysRowID), sql.Col(mappingAlias, OriginalSysRowID)),
			},
		},
		Where: &sql.DbUnaryExpression{Op: expr.OpIsNotNull, X: sql.Col(stagingAlias, schema.SysRefColumn(fk))},
	}
}

// readMapping returns the select of the mapping in sys_row_id order of the
// staged rows.
func (p *Planner) readMapping(t *table) sql.DbStatement {
	return &sql.DbSelectStatement{
		Items: []sql.DbSelectItem{
			{Expr: sql.Col(mappingAlias, OriginalSysRowID)},
			{Expr: sql.Col(mappingAlias, NewValue)},
		},
		From:    tbl(t.mapping, mappingAlias),
		OrderBy: []sql.DbOrderBy{{Expr: sql.Col(mappingAlias, OriginalSysRowID)}},
	}
}
