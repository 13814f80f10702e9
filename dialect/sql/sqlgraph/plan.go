// Package sqlgraph inserts hierarchical data sets into tables with server
// assigned identity keys and reads query results back into data sets.
//
// An insert runs in two phases. Planner.Plan builds every statement without a
// connection: it stages each model batch through a session-scoped table,
// orders the batches by their foreign keys and prepares the rewrites that
// replace client placeholders with server identities. Engine.Insert executes
// the plan on one connection and writes the assigned keys back into the rows.
package sqlgraph

import (
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/syssam/rowset"
	"github.com/syssam/rowset/dataset"
	"github.com/syssam/rowset/dialect/sql"
	"github.com/syssam/rowset/dialect/sql/bulk"
	"github.com/syssam/rowset/schema"
)

// Names of session-scoped tables and their columns.
const (
	MappingTable    = "#sys_identity_mapping"
	SequentialTable = "#sys_sequential_"

	OldValue         = "OldValue"
	OriginalSysRowID = "OriginalSysRowId"
	NewValue         = "NewValue"
)

// Aliases used by generated statements.
const (
	stagingAlias = "s"
	mappingAlias = "m"
	targetAlias  = "t"
	outputAlias  = "o"
	rankedAlias  = "q"
)

// StepKind tells how the engine runs a step.
type StepKind uint8

// Step kinds.
const (
	// StepExec executes statements that return no rows.
	StepExec StepKind = iota
	// StepMapping reads the identity mapping of one model.
	StepMapping
	// StepDrop drops one session-scoped table. Drop steps always run.
	StepDrop
)

// Step is a table-level unit of execution: one round trip on SQL Server, one
// round trip per statement on MySQL.
type Step struct {
	Name    string
	Kind    StepKind
	Model   string
	Batches []*sql.Rendered
	table   *table
}

// Plan is the statement sequence of one hierarchical insert.
type Plan struct {
	dialect string
	tables  []*table
	steps   []*Step
	drops   []*Step
}

// Steps returns the steps in execution order, without the drop steps.
func (p *Plan) Steps() []*Step { return p.steps }

// Drops returns the steps dropping the session-scoped tables, in execution order.
func (p *Plan) Drops() []*Step { return p.drops }

// Rows returns the number of rows inserted by the plan.
func (p *Plan) Rows() int {
	var n int
	for _, t := range p.tables {
		n += t.batch.Len()
	}
	return n
}

// Models returns the inserted model names in insert order.
func (p *Plan) Models() []string {
	names := make([]string, len(p.tables))
	for i, t := range p.tables {
		names[i] = t.model.Name()
	}
	return names
}

// Script returns the text of every statement, parameters excluded, in
// execution order. It is meant for dry runs and golden tests.
func (p *Plan) Script() string {
	var b strings.Builder
	for _, s := range append(p.steps[:len(p.steps):len(p.steps)], p.drops...) {
		fmt.Fprintf(&b, "-- %s\n", s.Name)
		for _, r := range s.Batches {
			b.WriteString(r.Text)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// table is the staging state of one model batch.
type table struct {
	batch    *dataset.Batch
	model    *schema.Model
	staging  *schema.Model
	identity *schema.Column
	layout   *bulk.Layout
	doc      string
	// values holds the staged model values by column ordinal, then by row.
	values [][]any
	// sysRefs holds the values of the sys_ref_<column> staging columns.
	sysRefs map[string][]int
	links   []*link
	// rewrites hold the foreign keys rewritten on the server by joining a
	// mapping on sys_parent_row_id or OldValue.
	parentRewrite *link
	keyRewrites   []*link
	selfRewrites  []*schema.ForeignKey
	mapping       string
	sequential    string
	// newValues is filled by the engine from the mapping, by sys_row_id.
	newValues []any
}

// link correlates a foreign key of every row with a staged row of the
// referenced table. ids[i] is the sys_row_id of the row referenced by row i,
// 0 when the row references nothing staged.
type link struct {
	fk     *schema.ForeignKey
	target *table
	ids    []int
}

// Planner builds insert plans for one generator.
type Planner struct {
	gen    sql.Generator
	format bulk.Format
}

// NewPlanner returns a planner rendering with gen.
func NewPlanner(gen sql.Generator) (*Planner, error) {
	f, err := bulk.ForDialect(gen.Dialect())
	if err != nil {
		return nil, err
	}
	return &Planner{gen: gen, format: f}, nil
}

// Plan validates ds and builds the statements inserting its tree. It does not
// modify ds except for the sys_row_id of its rows.
func (p *Planner) Plan(ds *dataset.DataSet) (*Plan, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	batches, err := dataset.Stage(ds)
	if err != nil {
		return nil, err
	}
	models := make([]*schema.Model, len(batches))
	byModel := make(map[int]*dataset.Batch, len(batches))
	for i, b := range batches {
		models[i] = b.Model
		byModel[b.Model.ID()] = b
	}
	sorted, err := schema.Sort(models)
	if err != nil {
		return nil, err
	}
	plan := &Plan{dialect: p.gen.Dialect()}
	tables := make(map[int]*table, len(sorted))
	for _, m := range sorted {
		t, err := p.stage(byModel[m.ID()], tables)
		if err != nil {
			return nil, err
		}
		tables[m.ID()] = t
		plan.tables = append(plan.tables, t)
	}
	if err := p.encode(plan.tables); err != nil {
		return nil, err
	}
	for _, t := range plan.tables {
		if err := p.render(plan, t); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// stage resolves the foreign keys of batch b against the staged tables and
// computes its staged values.
func (p *Planner) stage(b *dataset.Batch, tables map[int]*table) (*table, error) {
	m := b.Model
	t := &table{
		batch:    b,
		model:    m,
		identity: m.Identity(),
		values:   make([][]any, b.Len()),
		sysRefs:  make(map[string][]int),
	}
	for i, r := range b.Rows {
		t.values[i] = r.Values()
	}
	for _, fk := range m.ForeignKeys() {
		l, err := p.link(t, fk, tables)
		if err != nil {
			return nil, err
		}
		if l != nil {
			t.links = append(t.links, l)
		}
	}
	if t.identity != nil {
		t.mapping = MappingTable
		if k := mappings(tables); k > 0 {
			t.mapping = fmt.Sprintf("%s%d", MappingTable, k+1)
		}
		t.sequential = SequentialTable + m.Name()
	}
	t.staging = schema.NewStaging(m, schema.StagingSpec{
		Table:    "#" + m.Name(),
		Parent:   b.Relationship != nil,
		SelfRefs: t.selfRewrites,
	})
	t.layout = bulk.NewLayout(t.staging)
	return t, nil
}

// mappings counts the staged tables owning an identity mapping.
func mappings(tables map[int]*table) int {
	var n int
	for _, t := range tables {
		if t.identity != nil {
			n++
		}
	}
	return n
}

// link correlates fk with the staged rows it references and decides how the
// key is rewritten. It returns nil for keys to rows outside the plan.
func (p *Planner) link(t *table, fk *schema.ForeignKey, tables map[int]*table) (*link, error) {
	b := t.batch
	switch {
	case b.Relationship != nil && fk == b.Relationship.ForeignKey():
		target := tables[fk.Ref().ID()]
		l := &link{fk: fk, target: target, ids: b.ParentRowIDs}
		if target.identity != nil && fk.ReferencesIdentity() {
			t.parentRewrite = l
			return l, nil
		}
		// Keys of parents without identity are copied on the client.
		for i, id := range l.ids {
			if id == 0 {
				continue
			}
			for k, c := range fk.Columns() {
				t.values[i][c.Ordinal()] = target.values[id-1][fk.RefColumns()[k].Ordinal()]
			}
		}
		return l, nil
	case fk.SelfReferencing() && fk.ReferencesIdentity():
		ids := make([]int, b.Len())
		if b.Recursive != nil && fk == b.Recursive.ForeignKey() {
			copy(ids, b.RecursiveRowIDs)
		}
		if err := t.match(fk, t, ids); err != nil {
			return nil, err
		}
		if !referenced(ids) {
			return nil, nil
		}
		c := fk.Columns()[0]
		if !c.Nullable() {
			return nil, rowset.NewConstraintTypeNotSupported(p.gen.Dialect(), "FOREIGN KEY",
				fmt.Sprintf("self reference %s requires the nullable column %s", fk.Name(), c))
		}
		// Referenced rows are inserted in the same statement, the key is
		// set by a second pass once their identities are known.
		for i, id := range ids {
			if id != 0 {
				t.values[i][c.Ordinal()] = nil
			}
		}
		t.sysRefs[schema.SysRefColumn(fk)] = ids
		t.selfRewrites = append(t.selfRewrites, fk)
		return &link{fk: fk, target: t, ids: ids}, nil
	case fk.ReferencesIdentity():
		target, ok := tables[fk.Ref().ID()]
		if !ok || target.identity == nil {
			return nil, nil
		}
		ids := make([]int, b.Len())
		if err := t.match(fk, target, ids); err != nil {
			return nil, err
		}
		if !referenced(ids) {
			return nil, nil
		}
		l := &link{fk: fk, target: target, ids: ids}
		t.keyRewrites = append(t.keyRewrites, l)
		return l, nil
	}
	return nil, nil
}

// match sets ids[i], when still 0, to the sys_row_id of the only row of
// target whose staged identity equals the key value of row i. A value
// matching no staged row references a stored row and is kept.
func (t *table) match(fk *schema.ForeignKey, target *table, ids []int) error {
	index := make(map[string][]int)
	id := target.identity
	for i := range target.values {
		if v := target.values[i][id.Ordinal()]; v != nil {
			k := key(id, v)
			index[k] = append(index[k], i+1)
		}
	}
	c := fk.Columns()[0]
	for i := range ids {
		v := t.values[i][c.Ordinal()]
		if ids[i] != 0 || v == nil {
			continue
		}
		switch rows := index[key(id, v)]; len(rows) {
		case 0:
		case 1:
			ids[i] = rows[0]
		default:
			return rowset.NewAmbiguousKey(t.model.Name(), fk.Name(), v)
		}
	}
	return nil
}

// key returns the comparable form of v as a value of column c.
func key(c *schema.Column, v any) string {
	if cv, err := schema.Convert(c.Type(), v); err == nil {
		v = cv
	}
	return fmt.Sprint(v)
}

// referenced reports if any row references a staged row.
func referenced(ids []int) bool {
	for _, id := range ids {
		if id != 0 {
			return true
		}
	}
	return false
}

// encode encodes the staged rows of every table. Tables are encoded
// concurrently; rendering starts once all documents are done.
func (p *Planner) encode(tables []*table) error {
	var g errgroup.Group
	for _, t := range tables {
		g.Go(func() error {
			rows := t.stagedRows()
			doc, err := p.format.Encode(t.layout, rows)
			if err != nil {
				return fmt.Errorf("sqlgraph: stage %s: %w", t.model.Name(), err)
			}
			t.doc = doc
			return nil
		})
	}
	return g.Wait()
}

// stagedRows returns the rows of the staging table by layout ordinal.
func (t *table) stagedRows() [][]any {
	b := t.batch
	rows := make([][]any, b.Len())
	for i := range rows {
		row := make([]any, t.layout.Len())
		for j, c := range t.layout.Columns() {
			switch name := c.Name(); {
			case name == schema.SysRowID:
				row[j] = int32(i + 1)
			case name == schema.SysParentRowID:
				row[j] = sysID(b.ParentRowIDs[i])
			case strings.HasPrefix(name, schema.SysRefPrefix):
				row[j] = sysID(t.sysRefs[name][i])
			default:
				mc, _ := t.model.Column(name)
				row[j] = t.values[i][mc.Ordinal()]
			}
		}
		rows[i] = row
	}
	return rows
}

// sysID returns the staged form of a sys_row_id reference, NULL for none.
func sysID(id int) any {
	if id == 0 {
		return nil
	}
	return int32(id)
}
