package schema

import (
	"errors"
	"strings"

	"github.com/syssam/rowset"
)

// Builder assembles models. Models and their relationships are declared
// once and Build resolves them into an immutable Schema.
//
//	b := schema.NewBuilder()
//	cat := b.Model("ProductCategory").Table("SalesLT", "ProductCategory")
//	cat.Column("ProductCategoryID", schema.TypeInt32).Identity(1, 1)
//	cat.Column("Name", schema.TypeString).Size(50)
//	s, err := b.Build()
type Builder struct {
	models []*ModelBuilder
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Model declares a model named name. Its table defaults to the model name.
func (b *Builder) Model(name string) *ModelBuilder {
	mb := &ModelBuilder{
		m: &Model{
			name:  name,
			table: name,
			index: make(map[string]*Column),
		},
	}
	b.models = append(b.models, mb)
	return mb
}

type (
	keySpec struct {
		name    string
		columns []string
	}
	fkSpec struct {
		name    string
		ref     string
		columns []string
	}
	childSpec struct {
		name  string
		child string
		fk    string
	}
	validatorSpec struct {
		name    string
		columns []string
		fn      ValidateFunc
	}
	checkSpec struct {
		name string
		fn   func(*Model) (Expression, error)
	}
)

// ModelBuilder declares the members of one model.
type ModelBuilder struct {
	m          *Model
	errs       []error
	pk         []string
	uniques    []keySpec
	fks        []fkSpec
	children   []childSpec
	validators []validatorSpec
	checks     []checkSpec
}

// Table sets the database schema and table name of the model.
func (mb *ModelBuilder) Table(schema, table string) *ModelBuilder {
	mb.m.schema, mb.m.table = schema, table
	return mb
}

// Column declares a column. Columns are ordered by declaration.
func (mb *ModelBuilder) Column(name string, t Type) *ColumnBuilder {
	c := &Column{name: name, typ: t, model: mb.m}
	key := strings.ToLower(name)
	switch _, dup := mb.m.index[key]; {
	case name == "":
		mb.errs = append(mb.errs, rowset.NewSchemaError(mb.m.name, "column name must not be empty"))
	case dup:
		mb.errs = append(mb.errs, rowset.NewSchemaError(mb.m.name, "column %q declared twice", name))
	default:
		c.ordinal = len(mb.m.columns)
		mb.m.columns = append(mb.m.columns, c)
		mb.m.index[key] = c
	}
	return &ColumnBuilder{mb: mb, c: c}
}

// PrimaryKey sets the primary key columns. A model with an identity column and
// no declared primary key uses the identity column.
func (mb *ModelBuilder) PrimaryKey(columns ...string) *ModelBuilder {
	mb.pk = columns
	return mb
}

// UniqueKey declares an alternate candidate key.
func (mb *ModelBuilder) UniqueKey(name string, columns ...string) *ModelBuilder {
	mb.uniques = append(mb.uniques, keySpec{name: name, columns: columns})
	return mb
}

// ForeignKey declares that columns reference the primary key of model ref.
func (mb *ModelBuilder) ForeignKey(name, ref string, columns ...string) *ModelBuilder {
	mb.fks = append(mb.fks, fkSpec{name: name, ref: ref, columns: columns})
	return mb
}

// Child declares a child relationship to model child, backed by the foreign
// key fk declared on the child model.
func (mb *ModelBuilder) Child(name, child, fk string) *ModelBuilder {
	mb.children = append(mb.children, childSpec{name: name, child: child, fk: fk})
	return mb
}

// Validate attaches a row validator over columns.
func (mb *ModelBuilder) Validate(name string, fn ValidateFunc, columns ...string) *ModelBuilder {
	mb.validators = append(mb.validators, validatorSpec{name: name, columns: columns, fn: fn})
	return mb
}

// Check declares a check constraint. The expression is built once the model
// columns are resolved.
func (mb *ModelBuilder) Check(name string, fn func(*Model) (Expression, error)) *ModelBuilder {
	mb.checks = append(mb.checks, checkSpec{name: name, fn: fn})
	return mb
}

// ColumnBuilder configures one column.
type ColumnBuilder struct {
	mb *ModelBuilder
	c  *Column
}

// Nullable marks the column as accepting NULL.
func (cb *ColumnBuilder) Nullable() *ColumnBuilder {
	cb.c.nullable = true
	return cb
}

// Size sets the maximum length of a string or binary column.
func (cb *ColumnBuilder) Size(n int) *ColumnBuilder {
	cb.c.size = n
	return cb
}

// Precision sets the precision and scale of a decimal column.
func (cb *ColumnBuilder) Precision(precision, scale int) *ColumnBuilder {
	cb.c.precision, cb.c.scale = precision, scale
	return cb
}

// Identity marks the column as server-assigned.
func (cb *ColumnBuilder) Identity(seed, increment int64) *ColumnBuilder {
	cb.c.identity = &Identity{Seed: seed, Increment: increment}
	return cb
}

// Default sets the expression used when an inserted row has no value.
func (cb *ColumnBuilder) Default(e Expression) *ColumnBuilder {
	cb.c.def = e
	return cb
}

// Computed marks the column as computed by e.
func (cb *ColumnBuilder) Computed(e Expression) *ColumnBuilder {
	cb.c.computed = e
	return cb
}

// Column returns the column being built, for use in expressions.
func (cb *ColumnBuilder) Column() *Column { return cb.c }

// Build resolves keys and relationships and returns the schema.
func (b *Builder) Build() (*Schema, error) {
	s := &Schema{index: make(map[string]*Model, len(b.models))}
	var errs []error
	for i, mb := range b.models {
		mb.m.id = i + 1
		if _, dup := s.index[mb.m.name]; dup {
			errs = append(errs, rowset.NewSchemaError(mb.m.name, "model declared twice"))
			continue
		}
		s.models = append(s.models, mb.m)
		s.index[mb.m.name] = mb.m
	}
	for _, mb := range b.models {
		errs = append(errs, mb.errs...)
		errs = append(errs, mb.resolveColumns()...)
		errs = append(errs, mb.resolveKeys()...)
	}
	for _, mb := range b.models {
		errs = append(errs, mb.resolveForeignKeys(s)...)
	}
	for _, mb := range b.models {
		errs = append(errs, mb.resolveChildren(s)...)
		errs = append(errs, mb.resolveValidators()...)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return s, nil
}

func (mb *ModelBuilder) resolveColumns() []error {
	var (
		m          = mb.m
		errs       []error
		identities int
	)
	for _, c := range m.columns {
		if !c.typ.Valid() {
			errs = append(errs, rowset.NewSchemaError(m.name, "column %q has an invalid type", c.name))
			continue
		}
		if c.size < 0 || (c.size > 0 && !c.typ.Sized()) {
			errs = append(errs, rowset.NewSchemaError(m.name, "column %q has an invalid size %d", c.name, c.size))
		}
		if c.precision < 0 || c.scale < 0 || c.scale > c.precision || (c.precision > 0 && c.typ != TypeDecimal) {
			errs = append(errs, rowset.NewSchemaError(m.name, "column %q has an invalid precision (%d, %d)", c.name, c.precision, c.scale))
		}
		if c.identity != nil {
			identities++
			switch {
			case !c.typ.Integer():
				errs = append(errs, rowset.NewSchemaError(m.name, "identity column %q must be an integer", c.name))
			case c.identity.Increment == 0:
				errs = append(errs, rowset.NewSchemaError(m.name, "identity column %q has a zero increment", c.name))
			case c.nullable || c.def != nil || c.computed != nil:
				errs = append(errs, rowset.NewSchemaError(m.name, "identity column %q cannot be nullable, defaulted or computed", c.name))
			}
		}
		if c.def != nil && c.def.Type() != c.typ {
			errs = append(errs, rowset.NewTypeMismatchError("default of "+c.String(), c.typ, c.def.Type()))
		}
		if c.computed != nil && c.computed.Type() != c.typ {
			errs = append(errs, rowset.NewTypeMismatchError("computed "+c.String(), c.typ, c.computed.Type()))
		}
	}
	if identities > 1 {
		errs = append(errs, rowset.NewSchemaError(m.name, "model declares %d identity columns", identities))
	}
	for _, spec := range mb.checks {
		e, err := spec.fn(m)
		switch {
		case err != nil:
			errs = append(errs, err)
		case e.Type() != TypeBool:
			errs = append(errs, rowset.NewTypeMismatchError("check "+spec.name, TypeBool, e.Type()))
		default:
			m.checks = append(m.checks, &Check{Name: spec.name, Expr: e})
		}
	}
	return errs
}

func (mb *ModelBuilder) resolveKeys() []error {
	m := mb.m
	pk := mb.pk
	if len(pk) == 0 {
		if id := m.Identity(); id != nil {
			pk = []string{id.name}
		}
	}
	var errs []error
	if len(pk) > 0 {
		columns, err := mb.lookup(pk)
		if err != nil {
			errs = append(errs, err)
		}
		for _, c := range columns {
			if c.nullable {
				errs = append(errs, rowset.NewSchemaError(m.name, "primary key column %q cannot be nullable", c.name))
			}
		}
		if err == nil {
			m.keys = append(m.keys, &CandidateKey{name: "PK_" + m.name, columns: columns, primary: true})
		}
	}
	for _, spec := range mb.uniques {
		columns, err := mb.lookup(spec.columns)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		m.keys = append(m.keys, &CandidateKey{name: spec.name, columns: columns})
	}
	return errs
}

func (mb *ModelBuilder) resolveForeignKeys(s *Schema) []error {
	m := mb.m
	var errs []error
	for _, spec := range mb.fks {
		ref, ok := s.index[spec.ref]
		if !ok {
			errs = append(errs, rowset.NewSchemaError(m.name, "foreign key %q references unknown model %q", spec.name, spec.ref))
			continue
		}
		pk := ref.PrimaryKey()
		if pk == nil {
			errs = append(errs, rowset.NewSchemaError(m.name, "foreign key %q references model %q without a primary key", spec.name, spec.ref))
			continue
		}
		columns, err := mb.lookup(spec.columns)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(columns) != len(pk.columns) {
			errs = append(errs, rowset.NewSchemaError(m.name, "foreign key %q has %d columns, primary key of %q has %d", spec.name, len(columns), ref.name, len(pk.columns)))
			continue
		}
		valid := true
		for i, c := range columns {
			if c.typ != pk.columns[i].typ {
				errs = append(errs, rowset.NewTypeMismatchError("foreign key "+spec.name, c.typ, pk.columns[i].typ))
				valid = false
			}
		}
		if valid {
			m.foreignKeys = append(m.foreignKeys, &ForeignKey{name: spec.name, model: m, columns: columns, ref: ref, refColumns: pk.columns})
		}
	}
	return errs
}

func (mb *ModelBuilder) resolveChildren(s *Schema) []error {
	m := mb.m
	var (
		errs      []error
		seen      = make(map[string]bool)
		recursive int
	)
	for _, spec := range mb.children {
		if seen[spec.name] {
			errs = append(errs, rowset.NewSchemaError(m.name, "relationship %q declared twice", spec.name))
			continue
		}
		seen[spec.name] = true
		child, ok := s.index[spec.child]
		if !ok {
			errs = append(errs, rowset.NewSchemaError(m.name, "relationship %q references unknown model %q", spec.name, spec.child))
			continue
		}
		var fk *ForeignKey
		for _, f := range child.foreignKeys {
			if f.name == spec.fk {
				fk = f
			}
		}
		switch {
		case fk == nil:
			errs = append(errs, rowset.NewSchemaError(m.name, "relationship %q references unknown foreign key %q of %q", spec.name, spec.fk, child.name))
			continue
		case fk.ref != m:
			errs = append(errs, rowset.NewSchemaError(m.name, "relationship %q uses foreign key %q which references %q", spec.name, spec.fk, fk.ref.name))
			continue
		case child == m:
			if recursive++; recursive > 1 {
				errs = append(errs, rowset.NewSchemaError(m.name, "model declares more than one recursive relationship"))
				continue
			}
		}
		m.children = append(m.children, &Relationship{name: spec.name, parent: m, fk: fk})
	}
	return errs
}

func (mb *ModelBuilder) resolveValidators() []error {
	var errs []error
	for _, spec := range mb.validators {
		columns, err := mb.lookup(spec.columns)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		mb.m.validators = append(mb.m.validators, &Validator{name: spec.name, columns: columns, fn: spec.fn})
	}
	return errs
}

func (mb *ModelBuilder) lookup(names []string) ([]*Column, error) {
	columns := make([]*Column, 0, len(names))
	for _, name := range names {
		c, ok := mb.m.Column(name)
		if !ok {
			return nil, rowset.NewSchemaError(mb.m.name, "unknown column %q", name)
		}
		columns = append(columns, c)
	}
	return columns, nil
}
