package sqlgraph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/syssam/rowset"
	"github.com/syssam/rowset/dataset"
	"github.com/syssam/rowset/dialect"
	"github.com/syssam/rowset/dialect/sql"
	"github.com/syssam/rowset/schema"
)

// dropTimeout bounds the cleanup of session tables after a failed or
// canceled insert.
const dropTimeout = 5 * time.Second

// Engine executes insert plans.
type Engine struct {
	planner *Planner
	gen     sql.Generator
	log     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger of the engine.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.log = l.Named("sqlgraph")
	}
}

// NewEngine returns an engine generating statements with gen.
func NewEngine(gen sql.Generator, opts ...Option) (*Engine, error) {
	p, err := NewPlanner(gen)
	if err != nil {
		return nil, err
	}
	e := &Engine{planner: p, gen: gen, log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Planner returns the planner of the engine.
func (e *Engine) Planner() *Planner { return e.planner }

// Insert plans and executes the insert of the tree rooted at ds, then writes
// the server assigned identities and the rewritten foreign keys into its rows.
//
// Session tables are scoped to a connection, so eq must be bound to one
// connection, e.g. a transaction or a sql.Session. The engine does not commit
// or roll back: without an enclosing transaction, tables inserted before a
// failure stay inserted.
func (e *Engine) Insert(ctx context.Context, eq dialect.ExecQuerier, ds *dataset.DataSet) error {
	plan, err := e.planner.Plan(ds)
	if err != nil {
		return err
	}
	return e.Execute(ctx, eq, plan)
}

// Execute runs plan on eq and propagates the results into the planned rows.
// Rows are only modified when every step succeeded.
func (e *Engine) Execute(ctx context.Context, eq dialect.ExecQuerier, plan *Plan) (err error) {
	if plan.dialect != e.gen.Dialect() {
		return fmt.Errorf("sqlgraph: plan for %s executed by a %s engine", plan.dialect, e.gen.Dialect())
	}
	if len(plan.steps) == 0 {
		return nil
	}
	e.log.Info("insert",
		zap.Strings("models", plan.Models()),
		zap.Int("rows", plan.Rows()),
		zap.Int("steps", len(plan.steps)),
	)
	if e.gen.Dialect() == dialect.MySQL && captures(plan) {
		e.checkLockMode(ctx, eq)
	}
	defer func() {
		if derr := e.drop(ctx, eq, plan); derr != nil {
			err = errors.Join(err, derr)
		}
	}()
	for _, s := range plan.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sqlgraph: %s: %w", s.Name, err)
		}
		start := time.Now()
		if err := e.run(ctx, eq, s); err != nil {
			return err
		}
		e.log.Debug("step", zap.String("step", s.Name), zap.Duration("duration", time.Since(start)))
	}
	return apply(plan)
}

// run executes the batches of one step.
func (e *Engine) run(ctx context.Context, eq dialect.ExecQuerier, s *Step) error {
	for _, r := range s.Batches {
		query, args := e.gen.Bind(r)
		if s.Kind == StepMapping {
			if err := readMapping(ctx, eq, s.table, query, args); err != nil {
				return rowset.NewExecutionError(s.Name, query, err)
			}
			continue
		}
		if err := eq.Exec(ctx, query, args, nil); err != nil {
			if kind := Constraint(err); kind != NoConstraint {
				e.log.Warn("constraint violation", zap.String("step", s.Name), zap.Stringer("constraint", kind))
			}
			return rowset.NewExecutionError(s.Name, query, err)
		}
	}
	return nil
}

func captures(plan *Plan) bool {
	for _, s := range plan.steps {
		if s.Kind == StepMapping {
			return true
		}
	}
	return false
}

// checkLockMode warns when the server may interleave the auto-increment values
// of concurrent inserts. Identities are captured as a consecutive run from
// LAST_INSERT_ID, and in lock mode 2 another session inserting into the same
// table can break the run.
func (e *Engine) checkLockMode(ctx context.Context, eq dialect.ExecQuerier) {
	r, err := e.gen.Render(&sql.DbSelectStatement{
		Items: []sql.DbSelectItem{{Expr: &sql.DbSessionVariableExpression{Name: lockModeVar}}},
	})
	if err != nil {
		e.log.Warn("render lock mode query", zap.Error(err))
		return
	}
	query, args := e.gen.Bind(r)
	var rows sql.Rows
	if err := eq.Query(ctx, query, args, &rows); err != nil {
		e.log.Warn("read lock mode", zap.String("variable", lockModeVar), zap.Error(err))
		return
	}
	defer rows.Close()
	var mode int64
	if rows.Next() {
		if err := rows.Scan(&mode); err != nil {
			e.log.Warn("read lock mode", zap.String("variable", lockModeVar), zap.Error(err))
			return
		}
	}
	if mode == interleavedLockMode {
		e.log.Warn("interleaved auto-increment lock mode, concurrent inserts into the same tables corrupt identity capture",
			zap.String("variable", lockModeVar),
			zap.Int64("mode", mode),
		)
	}
}

const (
	lockModeVar         = "innodb_autoinc_lock_mode"
	interleavedLockMode = 2
)

// drop drops the session tables of plan. It runs after cancellation too and
// reports every failed drop.
func (e *Engine) drop(ctx context.Context, eq dialect.ExecQuerier, plan *Plan) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dropTimeout)
	defer cancel()
	var errs []error
	for _, s := range plan.drops {
		if err := e.run(ctx, eq, s); err != nil {
			e.log.Warn("drop failed", zap.String("step", s.Name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// readMapping reads the new identities of t in sys_row_id order. Every staged
// row must have exactly one mapped identity.
func readMapping(ctx context.Context, eq dialect.ExecQuerier, t *table, query string, args []any) error {
	var rows sql.Rows
	if err := eq.Query(ctx, query, args, &rows); err != nil {
		return err
	}
	defer rows.Close()
	values := make([]any, 0, t.batch.Len())
	for rows.Next() {
		var (
			id int64
			v  any
		)
		if err := rows.Scan(&id, &v); err != nil {
			return fmt.Errorf("scan identity mapping: %w", err)
		}
		if int(id) != len(values)+1 {
			return fmt.Errorf("identity mapping of %s: unexpected sys_row_id %d at position %d", t.model.Name(), id, len(values)+1)
		}
		nv, err := schema.Convert(t.identity.Type(), v)
		if err != nil {
			return fmt.Errorf("identity mapping of %s: %w", t.model.Name(), err)
		}
		if nv == nil {
			return fmt.Errorf("identity mapping of %s: no identity for sys_row_id %d", t.model.Name(), id)
		}
		values = append(values, nv)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(values) != t.batch.Len() {
		return fmt.Errorf("identity mapping of %s has %d rows, %d were staged", t.model.Name(), len(values), t.batch.Len())
	}
	t.newValues = values
	return nil
}

// assignment is one value written back into a row.
type assignment struct {
	row *dataset.DataRow
	col *schema.Column
	v   any
}

// apply writes the new identities and the resolved foreign keys into the
// planned rows. All values are resolved before the first row is modified.
func apply(plan *Plan) error {
	var as []assignment
	for _, t := range plan.tables {
		rows := t.batch.Rows
		if t.identity != nil {
			for i, r := range rows {
				as = append(as, assignment{row: r, col: t.identity, v: t.newValues[i]})
			}
		}
		for _, l := range t.links {
			for i, id := range l.ids {
				if id == 0 {
					continue
				}
				if l.target.identity != nil && l.fk.ReferencesIdentity() {
					as = append(as, assignment{row: rows[i], col: l.fk.Columns()[0], v: l.target.newValues[id-1]})
					continue
				}
				for k, c := range l.fk.Columns() {
					as = append(as, assignment{row: rows[i], col: c, v: l.target.values[id-1][l.fk.RefColumns()[k].Ordinal()]})
				}
			}
		}
	}
	for _, a := range as {
		if err := a.row.SetValue(a.col, a.v); err != nil {
			return err
		}
	}
	return nil
}
