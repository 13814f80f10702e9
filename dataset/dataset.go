// Package dataset holds the in-memory rows of a model, organized as
// parent/child trees along the child relationships of the schema.
//
// A DataSet is created per operation and mutated by its caller. The insert
// engine reads it, assigns staging sequence numbers and writes server
// generated keys back into the rows in place.
package dataset

import (
	"fmt"

	"github.com/syssam/rowset"
	"github.com/syssam/rowset/schema"
)

// DataSet is an ordered sequence of rows of one model. A child data set
// belongs to one parent row and one relationship.
type DataSet struct {
	model  *schema.Model
	parent *DataRow
	rel    *schema.Relationship
	rows   []*DataRow
}

// New returns an empty root data set of m.
func New(m *schema.Model) *DataSet {
	return &DataSet{model: m}
}

// Model returns the model of the rows.
func (ds *DataSet) Model() *schema.Model { return ds.model }

// Parent returns the owning row of a child data set, or nil for a root.
func (ds *DataSet) Parent() *DataRow { return ds.parent }

// Relationship returns the relationship linking a child data set to its
// parent row, or nil for a root.
func (ds *DataSet) Relationship() *schema.Relationship { return ds.rel }

// Len returns the number of rows. A nil data set is empty.
func (ds *DataSet) Len() int {
	if ds == nil {
		return 0
	}
	return len(ds.rows)
}

// Rows returns the rows in order. The slice must not be modified.
func (ds *DataSet) Rows() []*DataRow { return ds.rows }

// Row returns the i-th row.
func (ds *DataSet) Row(i int) *DataRow { return ds.rows[i] }

// NewRow appends a row whose values are all NULL.
func (ds *DataSet) NewRow() *DataRow {
	r := &DataRow{
		set:     ds,
		ordinal: len(ds.rows),
		values:  make([]any, len(ds.model.Columns())),
	}
	ds.rows = append(ds.rows, r)
	return r
}

// Add appends a row holding values, keyed by column name. Values are
// converted to the column types; on error no row is appended.
func (ds *DataSet) Add(values map[string]any) (*DataRow, error) {
	row := make([]any, len(ds.model.Columns()))
	for name, v := range values {
		c, ok := ds.model.Column(name)
		if !ok {
			return nil, fmt.Errorf("dataset: unknown column %q in %s", name, ds.model.Name())
		}
		cv, err := convert(c, v)
		if err != nil {
			return nil, err
		}
		row[c.Ordinal()] = cv
	}
	r := ds.NewRow()
	r.values = row
	return r, nil
}

// Remove deletes the i-th row with its children. The relative order of the
// remaining rows is kept.
func (ds *DataSet) Remove(i int) {
	if i < 0 || i >= len(ds.rows) {
		return
	}
	ds.rows[i].set = nil
	ds.rows = append(ds.rows[:i], ds.rows[i+1:]...)
	ds.renumber(i)
}

// Move moves the row at from to position to, shifting the rows in between.
// Rows outside [min(from, to), max(from, to)] keep their positions.
func (ds *DataSet) Move(from, to int) error {
	n := len(ds.rows)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("dataset: move %d to %d out of range [0, %d)", from, to, n)
	}
	if from == to {
		return nil
	}
	r := ds.rows[from]
	if from < to {
		copy(ds.rows[from:to], ds.rows[from+1:to+1])
	} else {
		copy(ds.rows[to+1:from+1], ds.rows[to:from])
	}
	ds.rows[to] = r
	ds.renumber(min(from, to))
	return nil
}

func (ds *DataSet) renumber(from int) {
	for i := from; i < len(ds.rows); i++ {
		ds.rows[i].ordinal = i
	}
}

// Walk calls fn for every row of the tree in pre-order: a row, then the rows
// of its child data sets in relationship declaration order.
func (ds *DataSet) Walk(fn func(*DataRow) error) error {
	for _, r := range ds.rows {
		if err := fn(r); err != nil {
			return err
		}
		for _, rel := range ds.model.Children() {
			child, ok := r.children[rel.Name()]
			if !ok {
				continue
			}
			if err := child.Walk(fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Equal reports whether ds and other hold the same values in the same order,
// including their child data sets. Empty and missing child data sets are equal.
func (ds *DataSet) Equal(other *DataSet) bool {
	if ds.model.Name() != other.model.Name() || len(ds.rows) != len(other.rows) {
		return false
	}
	columns := ds.model.Columns()
	for i, r := range ds.rows {
		o := other.rows[i]
		for _, c := range columns {
			oc, ok := other.model.Column(c.Name())
			if !ok || !schema.Equal(c.Type(), r.values[c.Ordinal()], o.values[oc.Ordinal()]) {
				return false
			}
		}
		for _, rel := range ds.model.Children() {
			a, b := r.children[rel.Name()], o.children[rel.Name()]
			switch {
			case a.Len() == 0 && b.Len() == 0:
			case a == nil || b == nil || !a.Equal(b):
				return false
			}
		}
	}
	return true
}

func convert(c *schema.Column, v any) (any, error) {
	cv, err := schema.Convert(c.Type(), v)
	if err != nil {
		return nil, &rowset.TypeMismatchError{Op: "set " + c.String(), Left: c.Type().String(), Right: fmt.Sprintf("%T", v)}
	}
	return cv, nil
}
