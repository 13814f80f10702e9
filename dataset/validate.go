package dataset

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/syssam/rowset"
	"github.com/syssam/rowset/schema"
)

var errRequired = errors.New("value is required")

// Validate checks every row of the tree against its model: required values,
// string and binary sizes and the model validators. Foreign key columns that
// the insert engine rewrites from the tree parent are not required. All
// violations are reported, joined.
func (ds *DataSet) Validate() error {
	var errs []error
	_ = ds.Walk(func(r *DataRow) error {
		errs = append(errs, r.validate()...)
		return nil
	})
	return errors.Join(errs...)
}

func (r *DataRow) validate() []error {
	var (
		errs      []error
		m         = r.set.model
		rewritten = make(map[*schema.Column]bool)
	)
	if rel := r.set.rel; rel != nil {
		for _, c := range rel.ForeignKey().Columns() {
			rewritten[c] = true
		}
	}
	for _, c := range m.Columns() {
		v := r.values[c.Ordinal()]
		switch {
		case v == nil && c.Required() && !rewritten[c]:
			errs = append(errs, rowset.NewValidationError(m.Name(), c.Name(), r.ordinal, errRequired))
		case c.Size() > 0:
			if err := checkSize(c, v); err != nil {
				errs = append(errs, rowset.NewValidationError(m.Name(), c.Name(), r.ordinal, err))
			}
		}
	}
	for _, v := range m.Validators() {
		values := make([]any, len(v.Columns()))
		names := make([]string, len(v.Columns()))
		for i, c := range v.Columns() {
			values[i] = r.values[c.Ordinal()]
			names[i] = c.Name()
		}
		if err := v.Validate(values); err != nil {
			errs = append(errs, rowset.NewValidationError(m.Name(), strings.Join(names, ","), r.ordinal, fmt.Errorf("%s: %w", v.Name(), err)))
		}
	}
	return errs
}

func checkSize(c *schema.Column, v any) error {
	var n int
	switch v := v.(type) {
	case string:
		n = utf8.RuneCountInString(v)
	case []byte:
		n = len(v)
	default:
		return nil
	}
	if n > c.Size() {
		return fmt.Errorf("length %d exceeds size %d", n, c.Size())
	}
	return nil
}
