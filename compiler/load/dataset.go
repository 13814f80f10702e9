package load

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/syssam/rowset/dataset"
	"github.com/syssam/rowset/schema"
)

// Fixture is a data set document: the root model name and its rows. A row
// is a mapping of column names to values. A key naming a child relationship
// of the model holds the child rows.
//
//	model: ProductCategory
//	rows:
//	  - ProductCategoryID: -1
//	    Name: Bikes
//	    SubCategories:
//	      - {ProductCategoryID: -2, ParentProductCategoryID: -1, Name: Road}
type Fixture struct {
	Model string           `yaml:"model"`
	Rows  []map[string]any `yaml:"rows"`
}

// DataSetFile reads the fixture at path into a data set of a model of s.
func DataSetFile(s *schema.Schema, path string) (*dataset.DataSet, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	ds, err := ParseDataSet(s, buf)
	if err != nil {
		return nil, fmt.Errorf("load: %s: %w", path, err)
	}
	return ds, nil
}

// ParseDataSet parses a fixture into a data set of a model of s. Values are
// converted to the column types.
func ParseDataSet(s *schema.Schema, buf []byte) (*dataset.DataSet, error) {
	var f Fixture
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode data set: %w", err)
	}
	m, ok := s.Model(f.Model)
	if !ok {
		return nil, fmt.Errorf("unknown model %q", f.Model)
	}
	ds := dataset.New(m)
	if err := addRows(ds, f.Rows, "rows"); err != nil {
		return nil, err
	}
	return ds, nil
}

func addRows(ds *dataset.DataSet, rows []map[string]any, path string) error {
	m := ds.Model()
	for i, raw := range rows {
		at := fmt.Sprintf("%s[%d]", path, i)
		values := make(map[string]any, len(raw))
		children := make(map[string][]map[string]any)
		for k, v := range raw {
			if _, ok := m.Child(k); !ok {
				values[k] = v
				continue
			}
			list, err := childRows(v)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", at, k, err)
			}
			children[k] = list
		}
		row, err := ds.Add(values)
		if err != nil {
			return fmt.Errorf("%s: %w", at, err)
		}
		// Relationship order keeps sys_row_id assignment independent of map order.
		for _, rel := range m.Children() {
			list, ok := children[rel.Name()]
			if !ok {
				continue
			}
			if err := addRows(row.Child(rel), list, at+"."+rel.Name()); err != nil {
				return err
			}
		}
	}
	return nil
}

func childRows(v any) ([]map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("child rows must be a list, got %T", v)
	}
	rows := make([]map[string]any, len(list))
	for i, item := range list {
		row, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("child row %d must be a mapping, got %T", i, item)
		}
		rows[i] = row
	}
	return rows, nil
}
