package dataset

import (
	"fmt"

	"github.com/syssam/rowset/schema"
)

// DataRow is one tuple of column values of a DataSet.
type DataRow struct {
	set      *DataSet
	ordinal  int
	values   []any
	sysRowID int
	children map[string]*DataSet
}

// DataSet returns the data set owning the row, nil after removal.
func (r *DataRow) DataSet() *DataSet { return r.set }

// Model returns the model of the row.
func (r *DataRow) Model() *schema.Model { return r.set.model }

// Ordinal returns the position of the row within its data set.
func (r *DataRow) Ordinal() int { return r.ordinal }

// SysRowID returns the staging sequence number of the row, 0 before staging.
func (r *DataRow) SysRowID() int { return r.sysRowID }

// Parent returns the tree parent row, or nil for rows of a root data set.
func (r *DataRow) Parent() *DataRow { return r.set.parent }

// Value returns the value of column c, nil for NULL.
func (r *DataRow) Value(c *schema.Column) any { return r.values[c.Ordinal()] }

// Values returns a copy of the row values in column order.
func (r *DataRow) Values() []any { return append([]any(nil), r.values...) }

// Get returns the value of the named column.
func (r *DataRow) Get(name string) (any, error) {
	c, err := r.column(name)
	if err != nil {
		return nil, err
	}
	return r.values[c.Ordinal()], nil
}

// Set converts v to the type of the named column and stores it.
func (r *DataRow) Set(name string, v any) error {
	c, err := r.column(name)
	if err != nil {
		return err
	}
	return r.SetValue(c, v)
}

// SetValue converts v to the type of c and stores it.
func (r *DataRow) SetValue(c *schema.Column, v any) error {
	cv, err := convert(c, v)
	if err != nil {
		return err
	}
	r.values[c.Ordinal()] = cv
	return nil
}

// Children returns the child data set of the named relationship, creating
// an empty one on first use.
func (r *DataRow) Children(name string) (*DataSet, error) {
	rel, ok := r.set.model.Child(name)
	if !ok {
		return nil, fmt.Errorf("dataset: %s has no relationship %q", r.set.model.Name(), name)
	}
	return r.Child(rel), nil
}

// Child returns the child data set of rel, creating an empty one on first use.
func (r *DataRow) Child(rel *schema.Relationship) *DataSet {
	if ds, ok := r.children[rel.Name()]; ok {
		return ds
	}
	if r.children == nil {
		r.children = make(map[string]*DataSet)
	}
	ds := &DataSet{model: rel.Child(), parent: r, rel: rel}
	r.children[rel.Name()] = ds
	return ds
}

func (r *DataRow) column(name string) (*schema.Column, error) {
	c, ok := r.set.model.Column(name)
	if !ok {
		return nil, fmt.Errorf("dataset: unknown column %q in %s", name, r.set.model.Name())
	}
	return c, nil
}

// Get returns the value of the named column as T. The boolean result is
// false when the value is NULL.
//
//	name, ok, err := dataset.Get[string](row, "Name")
func Get[T any](r *DataRow, name string) (T, bool, error) {
	var zero T
	v, err := r.Get(name)
	if err != nil || v == nil {
		return zero, false, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, false, fmt.Errorf("dataset: column %q holds %T, not %T", name, v, zero)
	}
	return t, true, nil
}
