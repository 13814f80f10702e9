package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/syssam/rowset"
	"github.com/syssam/rowset/dialect/sql"
	"github.com/syssam/rowset/schema"
)

// ValidationError is a problem found in one model.
type ValidationError struct {
	Model   string
	Column  string
	Message string
	// Err is the underlying error, if the problem was reported by the generator.
	Err error
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Model, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Model, e.Message)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error { return e.Err }

// ValidationResult lists the problems found by ValidateModels. Only errors
// prevent a migration.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

func (r *ValidationResult) HasErrors() bool   { return len(r.Errors) > 0 }
func (r *ValidationResult) HasWarnings() bool { return len(r.Warnings) > 0 }

// Err joins the validation errors. Warnings are not included.
func (r *ValidationResult) Err() error {
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// String lists errors, then warnings, one per line.
func (r *ValidationResult) String() string {
	if !r.HasErrors() && !r.HasWarnings() {
		return "No issues found"
	}
	var b strings.Builder
	for _, section := range []struct {
		title  string
		issues []*ValidationError
	}{{"Errors", r.Errors}, {"Warnings", r.Warnings}} {
		if len(section.issues) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", section.title)
		for _, e := range section.issues {
			fmt.Fprintf(&b, "  - %v\n", e)
		}
	}
	return b.String()
}

func (r *ValidationResult) errorf(m *schema.Model, column string, err error, format string, args ...any) {
	r.Errors = append(r.Errors, &ValidationError{Model: m.Name(), Column: column, Message: fmt.Sprintf(format, args...), Err: err})
}

func (r *ValidationResult) warnf(m *schema.Model, column, format string, args ...any) {
	r.Warnings = append(r.Warnings, &ValidationError{Model: m.Name(), Column: column, Message: fmt.Sprintf(format, args...)})
}

// ValidateModels checks that the models can be created and loaded on the
// server targeted by gen.
//
// Errors are reported for column types the dialect cannot store, keys over
// unbounded columns, DDL the generator rejects (unsupported default functions,
// check constraints on old MySQL servers) and foreign key cycles between
// distinct models. Warnings are reported for constructs the insert engine
// handles with reduced functionality.
//
// Example:
//
//	result := schema.ValidateModels(gen, s.Models())
//	if result.HasErrors() {
//	    log.Fatal(result)
//	}
func ValidateModels(gen sql.Generator, models []*schema.Model) *ValidationResult {
	result := &ValidationResult{}
	in := make(map[int]bool, len(models))
	for _, m := range models {
		in[m.ID()] = true
	}
	for _, m := range models {
		if validateModel(gen, m, in, result) {
			validateDDL(gen, m, result)
		}
	}
	if _, err := schema.Sort(models); err != nil {
		var cycle *rowset.CyclicDependencyError
		if errors.As(err, &cycle) && len(cycle.Models) > 0 {
			if m, ok := find(models, cycle.Models[0]); ok {
				result.errorf(m, "", err, "%s", rowset.Message(rowset.CyclicDependency, strings.Join(cycle.Models, " -> ")))
			}
		}
	}
	return result
}

// validateModel reports column and key problems of m. It returns false if
// the model has columns the dialect cannot store.
func validateModel(gen sql.Generator, m *schema.Model, in map[int]bool, result *ValidationResult) bool {
	types := make(map[*schema.Column]string, len(m.Columns()))
	ok := true
	for _, c := range m.Columns() {
		name, err := gen.TypeName(sql.ColumnType(c))
		if err != nil {
			result.errorf(m, c.Name(), err, "%s", rowset.Message(rowset.ColumnTypeNotSupported, c.Type(), gen.Dialect()))
			ok = false
			continue
		}
		types[c] = name
	}
	for _, k := range m.CandidateKeys() {
		for _, c := range k.Columns() {
			if name, found := types[c]; found && unbounded(name) {
				result.errorf(m, c.Name(), nil, "key %s includes column of unbounded type %s", k.Name(), name)
			}
		}
	}
	for _, fk := range m.ForeignKeys() {
		switch {
		case !in[fk.Ref().ID()]:
			result.warnf(m, "", "foreign key %s references model %s outside the validated set", fk.Name(), fk.Ref().Name())
		case fk.SelfReferencing() && !nullable(fk.Columns()):
			result.warnf(m, "", "self reference %s is not nullable, rows cannot reference rows inserted in the same batch", fk.Name())
		}
	}
	return ok
}

// validateDDL renders the CREATE TABLE statement of m.
func validateDDL(gen sql.Generator, m *schema.Model, result *ValidationResult) {
	stmt, err := sql.CreateTable(gen, m)
	if err == nil {
		_, err = gen.Render(stmt)
	}
	if err != nil {
		result.errorf(m, "", err, "%s", strings.TrimPrefix(err.Error(), "rowset: "))
	}
}

func unbounded(typeName string) bool {
	return strings.HasSuffix(typeName, "(MAX)") || strings.HasSuffix(typeName, "TEXT") || strings.HasSuffix(typeName, "BLOB")
}

func nullable(cs []*schema.Column) bool {
	for _, c := range cs {
		if !c.Nullable() {
			return false
		}
	}
	return true
}

func find(models []*schema.Model, name string) (*schema.Model, bool) {
	for _, m := range models {
		if m.Name() == name {
			return m, true
		}
	}
	return nil, false
}
