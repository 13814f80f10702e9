package sql

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/syssam/rowset/dialect"
)

// QueryStats counts the statements run through a StatsDriver. The counters
// are safe for concurrent use.
type QueryStats struct {
	TotalQueries  atomic.Int64
	TotalExecs    atomic.Int64
	TotalDuration atomic.Int64 // nanoseconds
	SlowQueries   atomic.Int64
	Errors        atomic.Int64
}

// Stats reads the counters.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
	}
}

// Reset zeroes the counters.
func (s *QueryStats) Reset() {
	for _, c := range []*atomic.Int64{&s.TotalQueries, &s.TotalExecs, &s.TotalDuration, &s.SlowQueries, &s.Errors} {
		c.Store(0)
	}
}

// StatsSnapshot holds the counters of a QueryStats at one point in time.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
}

// AvgQueryDuration is the mean duration of a statement, or zero before the
// first one.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	n := s.TotalQueries + s.TotalExecs
	if n == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(n)
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf("queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalQueries, s.TotalExecs, s.TotalDuration, s.AvgQueryDuration(), s.SlowQueries, s.Errors)
}

// SlowQueryHook is called after a statement that ran longer than the slow
// threshold.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// StatsDriver counts the statements of a Driver and of the sessions and
// transactions started from it.
type StatsDriver struct {
	*Driver
	stats *QueryStats

	mu            sync.RWMutex
	slowThreshold time.Duration
	slowHook      SlowQueryHook
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the duration above which a statement counts as
// slow. The default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) { s.slowThreshold = d }
}

// WithSlowQueryHook sets the function called for slow statements.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) { s.slowHook = hook }
}

// WithQueryStats records into stats. Collectors built on stats may then be
// registered before the database is opened.
func WithQueryStats(stats *QueryStats) StatsOption {
	return func(s *StatsDriver) { s.stats = stats }
}

// WithSlowQueryLog logs slow statements at warn level. Only the number of
// arguments is logged since bulk documents are passed as arguments.
func WithSlowQueryLog(logger *zap.Logger) StatsOption {
	return WithSlowQueryHook(func(_ context.Context, query string, args []any, duration time.Duration) {
		logger.Warn("slow query detected",
			zap.Duration("duration", duration),
			zap.String("query", query),
			zap.Int("args", len(args)),
		)
	})
}

// NewStatsDriver wraps drv.
func NewStatsDriver(drv *Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{Driver: drv, stats: &QueryStats{}, slowThreshold: 100 * time.Millisecond}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStats returns the counters the driver records into.
func (d *StatsDriver) QueryStats() *QueryStats { return d.stats }

// SlowThreshold returns the slow statement threshold.
func (d *StatsDriver) SlowThreshold() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.slowThreshold
}

// SetSlowThreshold changes the slow statement threshold of a running driver.
func (d *StatsDriver) SetSlowThreshold(threshold time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slowThreshold = threshold
}

type statement func(ctx context.Context, query string, args, v any) error

// observe runs fn and records it as a query or an exec.
func (d *StatsDriver) observe(ctx context.Context, fn statement, query bool, text string, args, v any) error {
	start := time.Now()
	err := fn(ctx, text, args, v)
	elapsed := time.Since(start)

	counter := &d.stats.TotalExecs
	if query {
		counter = &d.stats.TotalQueries
	}
	counter.Add(1)
	d.stats.TotalDuration.Add(int64(elapsed))
	if err != nil {
		d.stats.Errors.Add(1)
	}

	d.mu.RLock()
	threshold, hook := d.slowThreshold, d.slowHook
	d.mu.RUnlock()
	if elapsed <= threshold {
		return err
	}
	d.stats.SlowQueries.Add(1)
	if hook != nil {
		argv, _ := args.([]any)
		hook(ctx, text, argv, elapsed)
	}
	return err
}

func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	return d.observe(ctx, d.Driver.Query, true, query, args, v)
}

func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	return d.observe(ctx, d.Driver.Exec, false, query, args, v)
}

// Tx starts a counted transaction on a pooled connection.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsTx{Tx: tx, driver: d}, nil
}

// Session pins a connection whose statements are counted.
func (d *StatsDriver) Session(ctx context.Context) (*StatsSession, error) {
	s, err := d.Driver.Session(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsSession{Session: s, driver: d}, nil
}

// StatsSession is a Session started from a StatsDriver.
type StatsSession struct {
	*Session
	driver *StatsDriver
}

func (s *StatsSession) Query(ctx context.Context, query string, args, v any) error {
	return s.driver.observe(ctx, s.Session.Query, true, query, args, v)
}

func (s *StatsSession) Exec(ctx context.Context, query string, args, v any) error {
	return s.driver.observe(ctx, s.Session.Exec, false, query, args, v)
}

// Tx starts a counted transaction on the pinned connection.
func (s *StatsSession) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := s.Session.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsTx{Tx: tx, driver: s.driver}, nil
}

// StatsTx is a transaction started from a StatsDriver or StatsSession.
type StatsTx struct {
	dialect.Tx
	driver *StatsDriver
}

func (tx *StatsTx) Query(ctx context.Context, query string, args, v any) error {
	return tx.driver.observe(ctx, tx.Tx.Query, true, query, args, v)
}

func (tx *StatsTx) Exec(ctx context.Context, query string, args, v any) error {
	return tx.driver.observe(ctx, tx.Tx.Exec, false, query, args, v)
}

var (
	_ dialect.Driver      = (*StatsDriver)(nil)
	_ dialect.Tx          = (*StatsTx)(nil)
	_ dialect.ExecQuerier = (*StatsSession)(nil)
)
