// rowset loads hierarchical YAML fixtures into SQL Server or MySQL tables,
// propagating server-assigned identities from parent to child rows.
//
// Usage:
//
//	rowset <command> [flags]
//
// Commands:
//
//	validate  check the models against the configured dialect
//	ddl       print the CREATE TABLE statements of the models
//	create    create the tables of the models
//	plan      print the statements that insert a fixture (dry run)
//	insert    insert a fixture in one transaction and print the assigned keys
//
// The target dialect, server version and connection come from the file given
// by -config and from ROWSET_* environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/syssam/rowset/compiler/load"
	"github.com/syssam/rowset/config"
	"github.com/syssam/rowset/dataset"
	"github.com/syssam/rowset/dialect/sql"
	migrate "github.com/syssam/rowset/dialect/sql/schema"
	"github.com/syssam/rowset/dialect/sql/sqlgraph"
	"github.com/syssam/rowset/schema"
)

const usage = `usage: rowset <command> [flags]

commands:
  validate  check the models against the configured dialect
  ddl       print the CREATE TABLE statements of the models
  create    create the tables of the models
  plan      print the statements that insert a fixture (dry run)
  insert    insert a fixture in one transaction and print the assigned keys
`

var errUsage = errors.New("invalid usage")

// openDriver opens the database of the configured dialect.
var openDriver = sql.Open

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "rowset: %v\n", err)
		}
		os.Exit(1)
	}
}

// command holds the state shared by the subcommands of one invocation.
type command struct {
	cfg    *config.Config
	log    *zap.Logger
	out    io.Writer
	schema string
	data   string
	drop   bool

	drv   *sql.StatsDriver
	stats *sql.QueryStats
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}
	name, args := args[0], args[1:]
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		c           = &command{out: stdout, stats: &sql.QueryStats{}}
		configPath  = fs.String("config", os.Getenv("ROWSET_CONFIG"), "configuration file (YAML)")
		watch       = fs.Bool("watch", false, "run again whenever the schema or data file changes")
		metricsAddr = fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	)
	fs.StringVar(&c.schema, "schema", "", "model descriptor file (YAML)")
	fs.StringVar(&c.data, "data", "", "data set fixture file (YAML)")
	fs.BoolVar(&c.drop, "drop", false, "drop the tables before creating them (create)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	commands := map[string]func(context.Context) error{
		"validate": c.validate,
		"ddl":      c.ddl,
		"create":   c.create,
		"plan":     c.plan,
		"insert":   c.insert,
	}
	fn, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n%s", name, usage)
		return errUsage
	}
	if c.schema == "" {
		return errors.New("-schema is required")
	}
	if c.data == "" && (name == "plan" || name == "insert") {
		return fmt.Errorf("-data is required by %s", name)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	c.cfg, c.log = cfg, logger
	defer c.close()

	if *metricsAddr != "" {
		srv, err := c.serveMetrics(*metricsAddr)
		if err != nil {
			return err
		}
		defer srv.Close()
	}
	if !*watch {
		return fn(ctx)
	}
	files := []string{c.schema}
	if c.data != "" {
		files = append(files, c.data)
	}
	return watchFiles(ctx, logger, files, fn)
}

func (c *command) models() (*schema.Schema, error) {
	return load.SchemaFile(c.schema)
}

func (c *command) fixture() (*dataset.DataSet, error) {
	s, err := c.models()
	if err != nil {
		return nil, err
	}
	ds, err := load.DataSetFile(s, c.data)
	if err != nil {
		return nil, err
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

func (c *command) validate(context.Context) error {
	s, err := c.models()
	if err != nil {
		return err
	}
	gen, err := c.cfg.Generator()
	if err != nil {
		return err
	}
	result := migrate.ValidateModels(gen, s.Models())
	fmt.Fprintln(c.out, result)
	if result.HasErrors() {
		return fmt.Errorf("validation failed with %d errors", len(result.Errors))
	}
	return nil
}

func (c *command) migration() (*migrate.Migrate, error) {
	gen, err := c.cfg.Generator()
	if err != nil {
		return nil, err
	}
	return migrate.NewMigrate(gen, migrate.WithLogger(c.log), migrate.WithDropTables(c.drop)), nil
}

func (c *command) ddl(context.Context) error {
	s, err := c.models()
	if err != nil {
		return err
	}
	m, err := c.migration()
	if err != nil {
		return err
	}
	return m.Dump(c.out, s.Models()...)
}

func (c *command) create(ctx context.Context) error {
	s, err := c.models()
	if err != nil {
		return err
	}
	m, err := c.migration()
	if err != nil {
		return err
	}
	drv, err := c.open()
	if err != nil {
		return err
	}
	return m.Create(ctx, drv, s.Models()...)
}

func (c *command) plan(context.Context) error {
	ds, err := c.fixture()
	if err != nil {
		return err
	}
	gen, err := c.cfg.Generator()
	if err != nil {
		return err
	}
	planner, err := sqlgraph.NewPlanner(gen)
	if err != nil {
		return err
	}
	p, err := planner.Plan(ds)
	if err != nil {
		return err
	}
	_, err = io.WriteString(c.out, p.Script())
	return err
}

// insert runs the engine in a transaction on a pinned connection, the
// session tables of the engine live as long as the connection.
func (c *command) insert(ctx context.Context) error {
	ds, err := c.fixture()
	if err != nil {
		return err
	}
	gen, err := c.cfg.Generator()
	if err != nil {
		return err
	}
	engine, err := sqlgraph.NewEngine(gen, sqlgraph.WithLogger(c.log))
	if err != nil {
		return err
	}
	drv, err := c.open()
	if err != nil {
		return err
	}
	session, err := drv.Session(ctx)
	if err != nil {
		return err
	}
	defer session.Close()
	tx, err := session.Tx(ctx)
	if err != nil {
		return err
	}
	if err := engine.Insert(ctx, tx, ds); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	c.log.Info("committed", zap.Stringer("stats", c.stats.Stats()))
	return printKeys(c.out, ds)
}

// open opens the configured database once per invocation.
func (c *command) open() (*sql.StatsDriver, error) {
	if c.drv != nil {
		return c.drv, nil
	}
	drv, err := openDriver(c.cfg.Dialect, c.cfg.DSN())
	if err != nil {
		return nil, err
	}
	c.drv = sql.NewStatsDriver(drv,
		sql.WithQueryStats(c.stats),
		sql.WithSlowThreshold(c.cfg.SlowQueryThreshold),
		sql.WithSlowQueryLog(c.log),
	)
	return c.drv, nil
}

func (c *command) close() {
	if c.drv != nil {
		if err := c.drv.Close(); err != nil {
			c.log.Warn("close database", zap.Error(err))
		}
	}
}

// serveMetrics exports the query statistics of the command on addr.
func (c *command) serveMetrics(addr string) (*http.Server, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(sql.NewCollector(c.stats, "rowset", prometheus.Labels{"dialect": c.cfg.Dialect})); err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.Error("metrics server", zap.Error(err))
		}
	}()
	return srv, nil
}

// printKeys prints the primary and foreign key columns of every row of ds,
// depth first.
func printKeys(w io.Writer, ds *dataset.DataSet) error {
	return ds.Walk(func(r *dataset.DataRow) error {
		m := r.Model()
		var cols []*schema.Column
		if pk := m.PrimaryKey(); pk != nil {
			cols = append(cols, pk.Columns()...)
		}
		for _, fk := range m.ForeignKeys() {
			cols = append(cols, fk.Columns()...)
		}
		fmt.Fprint(w, m.Name())
		for _, col := range cols {
			v := r.Value(col)
			if v == nil {
				v = "NULL"
			}
			fmt.Fprintf(w, " %s=%v", col.Name(), v)
		}
		_, err := fmt.Fprintln(w)
		return err
	})
}
