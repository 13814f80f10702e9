package schema

import "strings"

// System column names of staging tables. They never appear in permanent tables.
const (
	SysRowID       = "sys_row_id"
	SysParentRowID = "sys_parent_row_id"
	SysRefPrefix   = "sys_ref_"
)

// StagingSpec describes the system columns added to a staging model.
type StagingSpec struct {
	// Table is the session-scoped table name, e.g. "#ProductCategory".
	Table string
	// Parent adds sys_parent_row_id, the sys_row_id of the tree parent row.
	Parent bool
	// SelfRefs adds one sys_ref_<column> per self-referencing key, holding the
	// sys_row_id of the referenced row of the same batch.
	SelfRefs []*ForeignKey
}

// NewStaging derives the staging model of m: every non-computed column of m,
// all nullable and without identity or default, followed by the system
// columns of spec. The staging model keeps the identity of m.
func NewStaging(m *Model, spec StagingSpec) *Model {
	s := &Model{
		id:     m.id,
		name:   m.name,
		table:  spec.Table,
		kind:   KindStaging,
		index:  make(map[string]*Column),
		source: m,
	}
	for _, c := range m.columns {
		if c.computed != nil {
			continue
		}
		s.add(&Column{name: c.name, typ: c.typ, nullable: true, size: c.size, precision: c.precision, scale: c.scale})
	}
	if spec.Parent {
		s.add(&Column{name: SysParentRowID, typ: TypeInt32, nullable: true})
	}
	for _, fk := range spec.SelfRefs {
		s.add(&Column{name: SysRefColumn(fk), typ: TypeInt32, nullable: true})
	}
	id := s.add(&Column{name: SysRowID, typ: TypeInt32})
	s.keys = []*CandidateKey{{name: "PK_" + strings.TrimPrefix(spec.Table, "#"), columns: []*Column{id}, primary: true}}
	return s
}

// SysRefColumn returns the staging column name holding the batch reference of
// a self-referencing key.
func SysRefColumn(fk *ForeignKey) string {
	return SysRefPrefix + fk.columns[0].name
}

func (m *Model) add(c *Column) *Column {
	c.ordinal = len(m.columns)
	c.model = m
	m.columns = append(m.columns, c)
	m.index[strings.ToLower(c.name)] = c
	return c
}
