package dataset

import (
	"github.com/syssam/rowset"
	"github.com/syssam/rowset/schema"
)

// Batch is the staging unit of one model: every row of that model in the
// tree, numbered 1..n in pre-order visit order.
type Batch struct {
	Model *schema.Model
	// Relationship is the non-recursive relationship through which child rows
	// of this model were reached, nil when all rows are roots.
	Relationship *schema.Relationship
	// Recursive is the self relationship through which rows were reached
	// from rows of the same model, or nil.
	Recursive *schema.Relationship
	Rows      []*DataRow
	// ParentRowIDs holds, per row, the sys_row_id of the tree parent row in
	// the batch of Relationship.Parent(), 0 when the row has no such parent.
	ParentRowIDs []int
	// RecursiveRowIDs holds, per row, the sys_row_id of the tree parent row of
	// the same model, 0 when the row has none.
	RecursiveRowIDs []int
}

// Len returns the number of rows in the batch.
func (b *Batch) Len() int { return len(b.Rows) }

// Stage flattens the tree rooted at ds into one batch per model and assigns
// the sys_row_id of every row. Batches are returned in first-visit order.
// A model reached through two different non-recursive relationships cannot
// be correlated to a single parent batch and is reported as a schema error.
func Stage(ds *DataSet) ([]*Batch, error) {
	var (
		batches []*Batch
		byModel = make(map[int]*Batch)
	)
	err := ds.Walk(func(r *DataRow) error {
		m := r.set.model
		b, ok := byModel[m.ID()]
		if !ok {
			b = &Batch{Model: m}
			byModel[m.ID()] = b
			batches = append(batches, b)
		}
		var parentID, recursiveID int
		if rel := r.set.rel; rel != nil {
			switch {
			case rel.Recursive():
				if b.Recursive != nil && b.Recursive != rel {
					return rowset.NewSchemaError(m.Name(), "rows reached through relationships %q and %q", b.Recursive.Name(), rel.Name())
				}
				b.Recursive = rel
				recursiveID = r.set.parent.sysRowID
				// Rows nested under a recursive parent still belong to the
				// outer tree parent of that subtree.
				parentID = b.ParentRowIDs[recursiveID-1]
			default:
				if b.Relationship != nil && b.Relationship != rel {
					return rowset.NewSchemaError(m.Name(), "rows reached through relationships %q and %q", b.Relationship.Name(), rel.Name())
				}
				b.Relationship = rel
				parentID = r.set.parent.sysRowID
			}
		}
		b.Rows = append(b.Rows, r)
		r.sysRowID = len(b.Rows)
		b.ParentRowIDs = append(b.ParentRowIDs, parentID)
		b.RecursiveRowIDs = append(b.RecursiveRowIDs, recursiveID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batches, nil
}
