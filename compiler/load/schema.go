// Package load reads model descriptors and data set fixtures from YAML files.
package load

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/go-openapi/inflect"
	"gopkg.in/yaml.v3"

	"github.com/syssam/rowset/expr"
	"github.com/syssam/rowset/schema"
)

// Schema is the descriptor of a set of models.
type Schema struct {
	Models []*Model `yaml:"models"`
}

// Model describes one model.
type Model struct {
	Name        string        `yaml:"name"`
	Schema      string        `yaml:"schema,omitempty"`
	Table       string        `yaml:"table,omitempty"` // Defaults to Name.
	Columns     []*Column     `yaml:"columns"`
	PrimaryKey  []string      `yaml:"primary_key,omitempty"`
	UniqueKeys  []*Key        `yaml:"unique_keys,omitempty"`
	ForeignKeys []*ForeignKey `yaml:"foreign_keys,omitempty"`
	Children    []*Child      `yaml:"children,omitempty"`
	Checks      []*Check      `yaml:"checks,omitempty"`
	Validators  []*Validator  `yaml:"validators,omitempty"`
}

// Column describes one column.
type Column struct {
	Name      string  `yaml:"name"`
	Type      string  `yaml:"type"`
	Nullable  bool    `yaml:"nullable,omitempty"`
	Size      int     `yaml:"size,omitempty"`
	Precision int     `yaml:"precision,omitempty"`
	Scale     int     `yaml:"scale,omitempty"`
	Identity  []int64 `yaml:"identity,omitempty"` // [seed, increment]
	// Default is a literal of the column type or a call such as "NEWID()".
	Default any `yaml:"default,omitempty"`
}

// Key is a named unique key.
type Key struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
}

// ForeignKey references the primary key of Ref. The name defaults to
// FK_<Model>_<Ref>.
type ForeignKey struct {
	Name    string   `yaml:"name,omitempty"`
	Ref     string   `yaml:"ref"`
	Columns []string `yaml:"columns"`
}

// Child declares a relationship to the child model through one of its
// foreign keys. The name defaults to the plural of the child model name.
type Child struct {
	Name       string `yaml:"name,omitempty"`
	Model      string `yaml:"model"`
	ForeignKey string `yaml:"foreign_key"`
}

// Check is a check constraint comparing a column with a literal.
type Check struct {
	Name   string `yaml:"name"`
	Column string `yaml:"column"`
	Op     string `yaml:"op"`
	Value  any    `yaml:"value"`
}

// Validator is a row validator. Exactly one rule is set.
type Validator struct {
	Name     string   `yaml:"name"`
	Columns  []string `yaml:"columns"`
	NotEmpty bool     `yaml:"not_empty,omitempty"`
	MaxLen   int      `yaml:"max_len,omitempty"`
	Match    string   `yaml:"match,omitempty"`
}

// SchemaFile reads and builds the models described in the file at path.
func SchemaFile(path string) (*schema.Schema, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	s, err := ParseSchema(buf)
	if err != nil {
		return nil, fmt.Errorf("load: %s: %w", path, err)
	}
	return s, nil
}

// ParseSchema parses a YAML descriptor and builds its models.
func ParseSchema(buf []byte) (*schema.Schema, error) {
	var s Schema
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return s.Build()
}

// Build builds the described models.
func (s *Schema) Build() (*schema.Schema, error) {
	b := schema.NewBuilder()
	var errs []error
	for _, m := range s.Models {
		if err := m.declare(b); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return b.Build()
}

func (m *Model) declare(b *schema.Builder) error {
	if m.Name == "" {
		return errors.New("model without name")
	}
	mb := b.Model(m.Name)
	table := m.Table
	if table == "" {
		table = m.Name
	}
	mb.Table(m.Schema, table)
	var errs []error
	for _, c := range m.Columns {
		if err := c.declare(mb); err != nil {
			errs = append(errs, fmt.Errorf("%s.%s: %w", m.Name, c.Name, err))
		}
	}
	if len(m.PrimaryKey) > 0 {
		mb.PrimaryKey(m.PrimaryKey...)
	}
	for _, k := range m.UniqueKeys {
		mb.UniqueKey(k.Name, k.Columns...)
	}
	for _, fk := range m.ForeignKeys {
		name := fk.Name
		if name == "" {
			name = "FK_" + m.Name + "_" + fk.Ref
		}
		mb.ForeignKey(name, fk.Ref, fk.Columns...)
	}
	for _, c := range m.Children {
		name := c.Name
		if name == "" {
			name = inflect.Pluralize(c.Model)
		}
		mb.Child(name, c.Model, c.ForeignKey)
	}
	for _, ck := range m.Checks {
		fn, err := ck.build()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: check %s: %w", m.Name, ck.Name, err))
			continue
		}
		mb.Check(ck.Name, fn)
	}
	for _, v := range m.Validators {
		fn, err := v.rule()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: validator %s: %w", m.Name, v.Name, err))
			continue
		}
		mb.Validate(v.Name, fn, v.Columns...)
	}
	return errors.Join(errs...)
}

func (c *Column) declare(mb *schema.ModelBuilder) error {
	t, err := schema.ParseType(c.Type)
	if err != nil {
		return err
	}
	cb := mb.Column(c.Name, t)
	if c.Nullable {
		cb.Nullable()
	}
	if c.Size > 0 {
		cb.Size(c.Size)
	}
	if c.Precision > 0 {
		cb.Precision(c.Precision, c.Scale)
	}
	switch len(c.Identity) {
	case 0:
	case 2:
		cb.Identity(c.Identity[0], c.Identity[1])
	default:
		return fmt.Errorf("identity must be [seed, increment], got %v", c.Identity)
	}
	if c.Default != nil {
		d, err := defaultExpr(t, c.Default)
		if err != nil {
			return fmt.Errorf("default: %w", err)
		}
		cb.Default(d)
	}
	return nil
}

var callRe = regexp.MustCompile(`^([A-Za-z_]+)\(\)$`)

// defaultExpr returns the call of a niladic function such as GETDATE() or
// a constant of type t.
func defaultExpr(t schema.Type, v any) (schema.Expression, error) {
	if s, ok := v.(string); ok && t != schema.TypeString {
		if m := callRe.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
			return expr.Call(strings.ToUpper(m[1]))
		}
	}
	return expr.Const(t, v)
}

var checkOps = map[string]expr.BinaryOp{
	"=":  expr.OpEQ,
	"<>": expr.OpNEQ,
	"<":  expr.OpLT,
	"<=": expr.OpLTE,
	">":  expr.OpGT,
	">=": expr.OpGTE,
}

func (ck *Check) build() (func(*schema.Model) (schema.Expression, error), error) {
	op, ok := checkOps[ck.Op]
	if !ok {
		return nil, fmt.Errorf("unknown operator %q", ck.Op)
	}
	return func(m *schema.Model) (schema.Expression, error) {
		c, ok := m.Column(ck.Column)
		if !ok {
			return nil, fmt.Errorf("unknown column %q", ck.Column)
		}
		k, err := expr.Const(c.Type(), ck.Value)
		if err != nil {
			return nil, err
		}
		return expr.Binary(op, expr.Col(c), k)
	}, nil
}

func (v *Validator) rule() (schema.ValidateFunc, error) {
	switch {
	case v.NotEmpty:
		return schema.NotEmpty(), nil
	case v.MaxLen > 0:
		return schema.MaxLen(v.MaxLen), nil
	case v.Match != "":
		re, err := regexp.Compile(v.Match)
		if err != nil {
			return nil, err
		}
		return schema.Match(re), nil
	}
	return nil, errors.New("no rule")
}
