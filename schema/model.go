package schema

import "strings"

// Expression is a typed scalar expression attached to a column as its default
// or computed value, or to a model as a check constraint. Package expr
// provides the implementations.
type Expression interface {
	Type() Type
	String() string
}

// Identity describes a server-assigned column.
type Identity struct {
	Seed      int64
	Increment int64
}

// Column is a typed member of a Model.
type Column struct {
	name      string
	ordinal   int
	typ       Type
	nullable  bool
	size      int
	precision int
	scale     int
	identity  *Identity
	computed  Expression
	def       Expression
	model     *Model
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Ordinal returns the zero-based position of the column in its model.
func (c *Column) Ordinal() int { return c.ordinal }

// Type returns the column type.
func (c *Column) Type() Type { return c.typ }

// Nullable reports if the column accepts NULL.
func (c *Column) Nullable() bool { return c.nullable }

// Size returns the maximum length of string and binary columns. Zero means unbounded.
func (c *Column) Size() int { return c.size }

// Precision returns the decimal precision and scale.
func (c *Column) Precision() (precision, scale int) { return c.precision, c.scale }

// Identity returns the identity specification of the column, if any.
func (c *Column) Identity() (Identity, bool) {
	if c.identity == nil {
		return Identity{}, false
	}
	return *c.identity, true
}

// IsIdentity reports if the column value is assigned by the server.
func (c *Column) IsIdentity() bool { return c.identity != nil }

// Computed returns the expression computing the column, or nil.
func (c *Column) Computed() Expression { return c.computed }

// Default returns the default expression of the column, or nil.
func (c *Column) Default() Expression { return c.def }

// Model returns the model owning the column.
func (c *Column) Model() *Model { return c.model }

// Insertable reports if the column value is supplied by the client on insert.
func (c *Column) Insertable() bool { return c.identity == nil && c.computed == nil }

// Required reports if an inserted row must provide a non-NULL value.
func (c *Column) Required() bool {
	return !c.nullable && c.Insertable() && c.def == nil
}

// String returns the qualified column name.
func (c *Column) String() string {
	if c.model == nil {
		return c.name
	}
	return c.model.name + "." + c.name
}

// CandidateKey is a set of columns uniquely identifying a row.
type CandidateKey struct {
	name    string
	columns []*Column
	primary bool
}

// Name returns the key name.
func (k *CandidateKey) Name() string { return k.name }

// Columns returns the key columns.
func (k *CandidateKey) Columns() []*Column { return k.columns }

// Primary reports if the key is the primary key of its model.
func (k *CandidateKey) Primary() bool { return k.primary }

// ForeignKey associates a column group of a model with the primary key of a
// referenced model. It drives join conditions and insert ordering.
type ForeignKey struct {
	name       string
	model      *Model
	columns    []*Column
	ref        *Model
	refColumns []*Column
}

// Name returns the constraint name.
func (f *ForeignKey) Name() string { return f.name }

// Model returns the referencing model.
func (f *ForeignKey) Model() *Model { return f.model }

// Columns returns the referencing columns.
func (f *ForeignKey) Columns() []*Column { return f.columns }

// Ref returns the referenced model.
func (f *ForeignKey) Ref() *Model { return f.ref }

// RefColumns returns the referenced primary key columns.
func (f *ForeignKey) RefColumns() []*Column { return f.refColumns }

// SelfReferencing reports if the key references its own model.
func (f *ForeignKey) SelfReferencing() bool { return f.ref == f.model }

// ReferencesIdentity reports if the key references a server-assigned primary key.
func (f *ForeignKey) ReferencesIdentity() bool {
	return len(f.refColumns) == 1 && f.refColumns[0].IsIdentity()
}

// Relationship declares that rows of a parent model own a child data set per
// row, keyed by a foreign key of the child model.
type Relationship struct {
	name   string
	parent *Model
	fk     *ForeignKey
}

// Name returns the relationship name.
func (r *Relationship) Name() string { return r.name }

// Parent returns the parent model.
func (r *Relationship) Parent() *Model { return r.parent }

// Child returns the child model.
func (r *Relationship) Child() *Model { return r.fk.model }

// ForeignKey returns the child foreign key backing the relationship.
func (r *Relationship) ForeignKey() *ForeignKey { return r.fk }

// Recursive reports if parent and child are the same model.
func (r *Relationship) Recursive() bool { return r.parent == r.fk.model }

// Check is a named boolean constraint over the columns of a model.
type Check struct {
	Name string
	Expr Expression
}

// Kind distinguishes permanent tables from derived staging tables.
type Kind uint8

// Model kinds.
const (
	KindTable Kind = iota
	KindStaging
)

// Model is an immutable schema descriptor of one table shape.
type Model struct {
	id          int
	name        string
	schema      string
	table       string
	kind        Kind
	columns     []*Column
	index       map[string]*Column
	keys        []*CandidateKey
	foreignKeys []*ForeignKey
	children    []*Relationship
	validators  []*Validator
	checks      []*Check
	source      *Model
}

// HasPrimaryKey is implemented by models that can be ordered and joined by key.
type HasPrimaryKey interface {
	PrimaryKey() *CandidateKey
}

// HasChildren is implemented by models owning child data sets.
type HasChildren interface {
	Children() []*Relationship
}

var (
	_ HasPrimaryKey = (*Model)(nil)
	_ HasChildren   = (*Model)(nil)
)

// ID returns the stable identity of the model within its schema.
func (m *Model) ID() int { return m.id }

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// Schema returns the database schema of the table, possibly empty.
func (m *Model) Schema() string { return m.schema }

// Table returns the table name.
func (m *Model) Table() string { return m.table }

// Kind returns the model kind.
func (m *Model) Kind() Kind { return m.kind }

// Columns returns the columns in declaration order.
func (m *Model) Columns() []*Column { return m.columns }

// Column returns the column with the given name.
func (m *Model) Column(name string) (*Column, bool) {
	c, ok := m.index[strings.ToLower(name)]
	return c, ok
}

// PrimaryKey returns the primary key, or nil.
func (m *Model) PrimaryKey() *CandidateKey {
	for _, k := range m.keys {
		if k.primary {
			return k
		}
	}
	return nil
}

// CandidateKeys returns all candidate keys, the primary key first.
func (m *Model) CandidateKeys() []*CandidateKey { return m.keys }

// ForeignKeys returns the foreign keys declared on the model.
func (m *Model) ForeignKeys() []*ForeignKey { return m.foreignKeys }

// Children returns the child relationships in declaration order.
func (m *Model) Children() []*Relationship { return m.children }

// Child returns the child relationship with the given name.
func (m *Model) Child(name string) (*Relationship, bool) {
	for _, r := range m.children {
		if r.name == name {
			return r, true
		}
	}
	return nil, false
}

// Validators returns the row validators.
func (m *Model) Validators() []*Validator { return m.validators }

// Checks returns the check constraints.
func (m *Model) Checks() []*Check { return m.checks }

// Identity returns the identity column, or nil.
func (m *Model) Identity() *Column {
	for _, c := range m.columns {
		if c.identity != nil {
			return c
		}
	}
	return nil
}

// Source returns the model a staging model was derived from.
func (m *Model) Source() *Model { return m.source }

// String returns the model name.
func (m *Model) String() string { return m.name }

// Schema is the immutable set of models produced by a Builder.
type Schema struct {
	models []*Model
	index  map[string]*Model
}

// Models returns the models in declaration order.
func (s *Schema) Models() []*Model { return s.models }

// Model returns the model with the given name.
func (s *Schema) Model(name string) (*Model, bool) {
	m, ok := s.index[name]
	return m, ok
}
