// Package schema creates and validates the permanent tables of rowset models.
package schema

import (
	"context"
	"fmt"
	"io"
	"slices"

	"go.uber.org/zap"

	"github.com/syssam/rowset"
	"github.com/syssam/rowset/dialect"
	"github.com/syssam/rowset/dialect/sql"
	"github.com/syssam/rowset/schema"
)

// Migrate creates the tables of a set of models.
type Migrate struct {
	gen       sql.Generator
	log       *zap.Logger
	dropFirst bool
}

// MigrateOption configures a Migrate.
type MigrateOption func(*Migrate)

// WithLogger sets the logger of the migration.
func WithLogger(l *zap.Logger) MigrateOption {
	return func(m *Migrate) {
		m.log = l.Named("migrate")
	}
}

// WithDropTables drops the tables, in reverse dependency order, before
// creating them.
func WithDropTables(b bool) MigrateOption {
	return func(m *Migrate) {
		m.dropFirst = b
	}
}

// NewMigrate returns a migration generating statements with gen.
func NewMigrate(gen sql.Generator, opts ...MigrateOption) *Migrate {
	m := &Migrate{gen: gen, log: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Statement is one rendered DDL unit.
type Statement struct {
	Model string
	*sql.Rendered
}

// Plan validates models and returns the statements that create them.
// Referenced models are created first.
func (m *Migrate) Plan(models []*schema.Model) ([]Statement, error) {
	result := ValidateModels(m.gen, models)
	if result.HasErrors() {
		return nil, result.Err()
	}
	for _, w := range result.Warnings {
		m.log.Warn("model warning", zap.String("model", w.Model), zap.String("column", w.Column), zap.String("message", w.Message))
	}
	sorted, err := schema.Sort(models)
	if err != nil {
		return nil, err
	}
	var stmts []Statement
	if m.dropFirst {
		for _, md := range slices.Backward(sorted) {
			batches, err := m.gen.RenderBatch(sql.DropTable(md))
			if err != nil {
				return nil, err
			}
			for _, r := range batches {
				stmts = append(stmts, Statement{Model: md.Name(), Rendered: r})
			}
		}
	}
	for _, md := range sorted {
		create, err := sql.CreateTable(m.gen, md)
		if err != nil {
			return nil, err
		}
		batches, err := m.gen.RenderBatch(create)
		if err != nil {
			return nil, err
		}
		for _, r := range batches {
			stmts = append(stmts, Statement{Model: md.Name(), Rendered: r})
		}
	}
	return stmts, nil
}

// Create creates the tables of models on eq.
func (m *Migrate) Create(ctx context.Context, eq dialect.ExecQuerier, models ...*schema.Model) error {
	stmts, err := m.Plan(models)
	if err != nil {
		return err
	}
	for _, s := range stmts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("dialect/sql/schema: %s: %w", s.Model, err)
		}
		query, args := m.gen.Bind(s.Rendered)
		if err := eq.Exec(ctx, query, args, nil); err != nil {
			return rowset.NewExecutionError("create "+s.Model, query, err)
		}
		m.log.Debug("table", zap.String("model", s.Model))
	}
	m.log.Info("create", zap.Int("models", len(models)), zap.Int("statements", len(stmts)))
	return nil
}

// Dump writes the statements that create models to w, each batch followed
// by a blank line.
func (m *Migrate) Dump(w io.Writer, models ...*schema.Model) error {
	stmts, err := m.Plan(models)
	if err != nil {
		return err
	}
	for _, s := range stmts {
		if _, err := io.WriteString(w, s.Text+"\n\n"); err != nil {
			return err
		}
	}
	return nil
}
