package sqlgraph_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/syssam/rowset"
	"github.com/syssam/rowset/dataset"
	"github.com/syssam/rowset/dialect"
	"github.com/syssam/rowset/dialect/sql"
	"github.com/syssam/rowset/dialect/sql/sqlgraph"
)

// escape returns a pattern matching query exactly.
func escape(query string) string {
	return "^" + regexp.QuoteMeta(query) + "$"
}

// prefix returns a pattern matching queries starting with query.
func prefix(query string) string {
	return "^" + regexp.QuoteMeta(query)
}

var drops = []string{
	"DROP TEMPORARY TABLE IF EXISTS `#sys_identity_mapping2`;",
	"DROP TEMPORARY TABLE IF EXISTS `#sys_sequential_Product`;",
	"DROP TEMPORARY TABLE IF EXISTS `#Product`;",
	"DROP TEMPORARY TABLE IF EXISTS `#sys_identity_mapping`;",
	"DROP TEMPORARY TABLE IF EXISTS `#sys_sequential_ProductCategory`;",
	"DROP TEMPORARY TABLE IF EXISTS `#ProductCategory`;",
}

func expectDrops(mock sqlmock.Sqlmock) {
	for _, q := range drops {
		mock.ExpectExec(escape(q)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
}

// expectCategories expects the statements inserting the three categories of bikes.
func expectCategories(mock sqlmock.Sqlmock) {
	ok := sqlmock.NewResult(0, 0)
	mock.ExpectExec(prefix("CREATE TEMPORARY TABLE `#ProductCategory` (")).WillReturnResult(ok)
	mock.ExpectExec(prefix("CREATE TEMPORARY TABLE `#sys_sequential_ProductCategory` (")).WillReturnResult(ok)
	mock.ExpectExec(prefix("CREATE TEMPORARY TABLE `#sys_identity_mapping` (")).WillReturnResult(ok)
	mock.ExpectExec(prefix("INSERT INTO `#ProductCategory` (")).
		WithArgs(`[[null,null,"Bikes",null,null,1],[null,null,"Road",null,1,2],[null,null,"Mountain",null,1,3]]`).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(prefix("INSERT INTO `SalesLT`.`ProductCategory` (")).WillReturnResult(sqlmock.NewResult(10, 3))
	mock.ExpectExec(prefix("INSERT INTO `#sys_sequential_ProductCategory` (`NewValue`)\nSELECT LAST_INSERT_ID()")).WillReturnResult(ok)
	mock.ExpectExec(prefix("INSERT INTO `#sys_identity_mapping` (")).WillReturnResult(ok)
	mock.ExpectExec(prefix("UPDATE `#sys_identity_mapping` AS `m`")).WillReturnResult(ok)
	mock.ExpectExec(prefix("UPDATE `#ProductCategory` AS `s`")).WillReturnResult(ok)
	mock.ExpectExec(prefix("UPDATE `SalesLT`.`ProductCategory` AS `t`")).WillReturnResult(ok)
	mock.ExpectQuery(escape("SELECT `m`.`OriginalSysRowId`, `m`.`NewValue`\nFROM `#sys_identity_mapping` AS `m`\nORDER BY `m`.`OriginalSysRowId` ASC;")).
		WillReturnRows(sqlmock.NewRows([]string{"OriginalSysRowId", "NewValue"}).AddRow(1, 10).AddRow(2, 11).AddRow(3, 12))
}

func expectProducts(mock sqlmock.Sqlmock) {
	ok := sqlmock.NewResult(0, 0)
	mock.ExpectExec(prefix("CREATE TEMPORARY TABLE `#Product` (")).WillReturnResult(ok)
	mock.ExpectExec(prefix("CREATE TEMPORARY TABLE `#sys_sequential_Product` (")).WillReturnResult(ok)
	mock.ExpectExec(prefix("CREATE TEMPORARY TABLE `#sys_identity_mapping2` (")).WillReturnResult(ok)
	mock.ExpectExec(prefix("INSERT INTO `#Product` (")).
		WithArgs(`[[null,null,"Road-150","1431.5",2,1]]`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(prefix("UPDATE `#Product` AS `s`\nINNER JOIN `#sys_identity_mapping` AS `m`")).WillReturnResult(ok)
	mock.ExpectExec(prefix("INSERT INTO `SalesLT`.`Product` (")).WillReturnResult(sqlmock.NewResult(100, 1))
	mock.ExpectExec(prefix("INSERT INTO `#sys_sequential_Product` (")).WillReturnResult(ok)
	mock.ExpectExec(prefix("INSERT INTO `#sys_identity_mapping2` (")).WillReturnResult(ok)
	mock.ExpectExec(prefix("UPDATE `#sys_identity_mapping2` AS `m`")).WillReturnResult(ok)
	mock.ExpectQuery(prefix("SELECT `m`.`OriginalSysRowId`, `m`.`NewValue`\nFROM `#sys_identity_mapping2` AS `m`")).
		WillReturnRows(sqlmock.NewRows([]string{"OriginalSysRowId", "NewValue"}).AddRow(1, 100))
}

// expectLockMode expects the read of innodb_autoinc_lock_mode preceding a
// MySQL insert.
func expectLockMode(mock sqlmock.Sqlmock, mode int) {
	mock.ExpectQuery(escape("SELECT @@innodb_autoinc_lock_mode;")).
		WillReturnRows(sqlmock.NewRows([]string{"@@innodb_autoinc_lock_mode"}).AddRow(mode))
}

func newEngine(t *testing.T, opts ...sqlgraph.Option) (*sqlgraph.Engine, *sql.Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	e, err := sqlgraph.NewEngine(generator(t, dialect.MySQL), opts...)
	require.NoError(t, err)
	return e, sql.OpenDB(dialect.MySQL, db), mock
}

func value(t *testing.T, r *dataset.DataRow, name string) any {
	t.Helper()
	v, err := r.Get(name)
	require.NoError(t, err)
	return v
}

func TestEngine_Insert(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e, drv, mock := newEngine(t, sqlgraph.WithLogger(zap.New(core)))
	s := adventureWorks(t)
	ds := bikes(t, s)

	expectLockMode(mock, 1)
	expectCategories(mock)
	expectProducts(mock)
	expectDrops(mock)
	require.NoError(t, e.Insert(context.Background(), drv, ds))
	require.NoError(t, mock.ExpectationsWereMet())

	bikes := ds.Row(0)
	subs := children(t, bikes, "SubCategories")
	road, mountain := subs.Row(0), subs.Row(1)
	assert.Equal(t, int32(10), value(t, bikes, "ProductCategoryID"))
	assert.Nil(t, value(t, bikes, "ParentProductCategoryID"))
	assert.Equal(t, int32(11), value(t, road, "ProductCategoryID"))
	assert.Equal(t, int32(10), value(t, road, "ParentProductCategoryID"))
	assert.Equal(t, int32(12), value(t, mountain, "ProductCategoryID"))
	assert.Equal(t, int32(10), value(t, mountain, "ParentProductCategoryID"))
	assert.Nil(t, value(t, road, "rowguid"), "server defaults are not read back")

	prod := children(t, road, "Products").Row(0)
	assert.Equal(t, int32(100), value(t, prod, "ProductID"))
	assert.Equal(t, int32(11), value(t, prod, "ProductCategoryID"))

	entries := logs.FilterMessage("insert").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "sqlgraph", entries[0].LoggerName)
	assert.Equal(t, int64(4), entries[0].ContextMap()["rows"])
	assert.Equal(t, 8, logs.FilterMessage("step").Len())
}

func TestEngine_SelfReferenceChildFirst(t *testing.T) {
	e, drv, mock := newEngine(t)
	ds := dataset.New(model(t, adventureWorks(t), "ProductCategory"))
	road := add(t, ds, map[string]any{"ProductCategoryID": -2, "ParentProductCategoryID": -1, "Name": "Road"})
	bikes := add(t, ds, map[string]any{"ProductCategoryID": -1, "Name": "Bikes"})

	ok := sqlmock.NewResult(0, 0)
	expectLockMode(mock, 1)
	mock.ExpectExec(prefix("CREATE TEMPORARY TABLE `#ProductCategory` (")).WillReturnResult(ok)
	mock.ExpectExec(prefix("CREATE TEMPORARY TABLE `#sys_sequential_ProductCategory` (")).WillReturnResult(ok)
	mock.ExpectExec(prefix("CREATE TEMPORARY TABLE `#sys_identity_mapping` (")).WillReturnResult(ok)
	mock.ExpectExec(prefix("INSERT INTO `#ProductCategory` (")).
		WithArgs(`[[-2,null,"Road",null,2,1],[-1,null,"Bikes",null,null,2]]`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(prefix("INSERT INTO `SalesLT`.`ProductCategory` (")).WillReturnResult(sqlmock.NewResult(50, 2))
	mock.ExpectExec(prefix("INSERT INTO `#sys_sequential_ProductCategory` (`NewValue`)\nSELECT LAST_INSERT_ID()")).WillReturnResult(ok)
	mock.ExpectExec(prefix("INSERT INTO `#sys_identity_mapping` (")).WillReturnResult(ok)
	mock.ExpectExec(prefix("UPDATE `#sys_identity_mapping` AS `m`")).WillReturnResult(ok)
	mock.ExpectExec(prefix("UPDATE `#ProductCategory` AS `s`")).WillReturnResult(ok)
	mock.ExpectExec(prefix("UPDATE `SalesLT`.`ProductCategory` AS `t`")).WillReturnResult(ok)
	mock.ExpectQuery(prefix("SELECT `m`.`OriginalSysRowId`, `m`.`NewValue`\nFROM `#sys_identity_mapping` AS `m`")).
		WillReturnRows(sqlmock.NewRows([]string{"OriginalSysRowId", "NewValue"}).AddRow(1, 50).AddRow(2, 51))
	for _, q := range drops[3:] {
		mock.ExpectExec(escape(q)).WillReturnResult(ok)
	}

	require.NoError(t, e.Insert(context.Background(), drv, ds))
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, int32(50), value(t, road, "ProductCategoryID"))
	assert.Equal(t, int32(51), value(t, road, "ParentProductCategoryID"), "the parent listed after its child is resolved")
	assert.Equal(t, int32(51), value(t, bikes, "ProductCategoryID"))
	assert.Nil(t, value(t, bikes, "ParentProductCategoryID"))
}

func TestEngine_InsertFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e, drv, mock := newEngine(t, sqlgraph.WithLogger(zap.New(core)))
	ds := bikes(t, adventureWorks(t))

	ok := sqlmock.NewResult(0, 0)
	expectLockMode(mock, 1)
	cause := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'Bikes' for key 'AK_ProductCategory_Name'"}
	mock.ExpectExec(prefix("CREATE TEMPORARY TABLE `#ProductCategory` (")).WillReturnResult(ok)
	mock.ExpectExec(prefix("CREATE TEMPORARY TABLE `#sys_sequential_ProductCategory` (")).WillReturnResult(ok)
	mock.ExpectExec(prefix("CREATE TEMPORARY TABLE `#sys_identity_mapping` (")).WillReturnResult(ok)
	mock.ExpectExec(prefix("INSERT INTO `#ProductCategory` (")).WillReturnResult(ok)
	mock.ExpectExec(prefix("INSERT INTO `SalesLT`.`ProductCategory` (")).WillReturnError(cause)
	expectDrops(mock)

	err := e.Insert(context.Background(), drv, ds)
	require.Error(t, err)
	var eerr *rowset.ExecutionError
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, "insert ProductCategory", eerr.Step)
	assert.Contains(t, eerr.Statement, "INSERT INTO `SalesLT`.`ProductCategory`")
	assert.ErrorIs(t, err, cause)
	assert.True(t, sqlgraph.IsUniqueConstraintError(err))
	require.NoError(t, mock.ExpectationsWereMet())
	entries := logs.FilterMessage("constraint violation").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "insert ProductCategory", entries[0].ContextMap()["step"])
	assert.Equal(t, "unique", entries[0].ContextMap()["constraint"])
	assert.Equal(t, 1, logs.Len())

	require.NoError(t, ds.Walk(func(r *dataset.DataRow) error {
		assert.Nil(t, r.Values()[0], "identities are only written after every step succeeded")
		return nil
	}))
}

func TestEngine_DropFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e, drv, mock := newEngine(t, sqlgraph.WithLogger(zap.New(core)))
	ds := bikes(t, adventureWorks(t))

	expectLockMode(mock, 1)
	mock.ExpectExec(prefix("CREATE TEMPORARY TABLE `#ProductCategory` (")).WillReturnError(errors.New("bad connection"))
	for i, q := range drops {
		if i == 0 || i == 5 {
			mock.ExpectExec(escape(q)).WillReturnError(errors.New("bad connection"))
			continue
		}
		mock.ExpectExec(escape(q)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	err := e.Insert(context.Background(), drv, ds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rowset: create ProductCategory: ")
	assert.Contains(t, err.Error(), "rowset: drop #sys_identity_mapping2: ")
	assert.Contains(t, err.Error(), "rowset: drop #ProductCategory: ")
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 2, logs.FilterMessage("drop failed").Len())
}

func TestEngine_LockMode(t *testing.T) {
	tests := []struct {
		name   string
		expect func(sqlmock.Sqlmock)
		want   string
	}{
		{name: "Consecutive", expect: func(mock sqlmock.Sqlmock) { expectLockMode(mock, 1) }},
		{
			name:   "Interleaved",
			expect: func(mock sqlmock.Sqlmock) { expectLockMode(mock, 2) },
			want:   "interleaved auto-increment lock mode, concurrent inserts into the same tables corrupt identity capture",
		},
		{
			name: "Unreadable",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(escape("SELECT @@innodb_autoinc_lock_mode;")).
					WillReturnError(errors.New("Unknown system variable 'innodb_autoinc_lock_mode'"))
			},
			want: "read lock mode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			e, drv, mock := newEngine(t, sqlgraph.WithLogger(zap.New(core)))
			ds := bikes(t, adventureWorks(t))
			tt.expect(mock)
			expectCategories(mock)
			expectProducts(mock)
			expectDrops(mock)

			require.NoError(t, e.Insert(context.Background(), drv, ds), "the lock mode only warns")
			require.NoError(t, mock.ExpectationsWereMet())
			assert.Equal(t, int32(10), value(t, ds.Row(0), "ProductCategoryID"))
			if tt.want == "" {
				assert.Zero(t, logs.Len())
				return
			}
			entries := logs.FilterMessage(tt.want).All()
			require.Len(t, entries, 1)
			assert.Equal(t, "innodb_autoinc_lock_mode", entries[0].ContextMap()["variable"])
		})
	}
}

func TestEngine_Canceled(t *testing.T) {
	e, drv, mock := newEngine(t)
	ds := bikes(t, adventureWorks(t))
	expectDrops(mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.Insert(ctx, drv, ds)
	require.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "sqlgraph: create ProductCategory: ")
	require.NoError(t, mock.ExpectationsWereMet(), "session tables are dropped after cancellation")
}

func TestEngine_Mapping(t *testing.T) {
	tests := []struct {
		name string
		rows *sqlmock.Rows
		want string
	}{
		{
			name: "Short",
			rows: sqlmock.NewRows([]string{"OriginalSysRowId", "NewValue"}).AddRow(1, 10).AddRow(2, 11),
			want: "identity mapping of ProductCategory has 2 rows, 3 were staged",
		},
		{
			name: "Gap",
			rows: sqlmock.NewRows([]string{"OriginalSysRowId", "NewValue"}).AddRow(1, 10).AddRow(3, 11),
			want: "unexpected sys_row_id 3 at position 2",
		},
		{
			name: "Null",
			rows: sqlmock.NewRows([]string{"OriginalSysRowId", "NewValue"}).AddRow(1, 10).AddRow(2, nil),
			want: "no identity for sys_row_id 2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, drv, mock := newEngine(t)
			ds := bikes(t, adventureWorks(t))
			ok := sqlmock.NewResult(0, 0)
			expectLockMode(mock, 1)
			for range 10 {
				mock.ExpectExec(".+").WillReturnResult(ok)
			}
			mock.ExpectQuery(prefix("SELECT `m`.`OriginalSysRowId`")).WillReturnRows(tt.rows)
			expectDrops(mock)
			err := e.Insert(context.Background(), drv, ds)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, rowset.IsExecutionError(err))
			require.NoError(t, mock.ExpectationsWereMet())
			assert.Nil(t, ds.Row(0).Values()[0])
		})
	}
}

func TestEngine_Execute(t *testing.T) {
	t.Run("DialectMismatch", func(t *testing.T) {
		e, drv, _ := newEngine(t)
		p := plan(t, dialect.SQLServer, bikes(t, adventureWorks(t)))
		err := e.Execute(context.Background(), drv, p)
		assert.EqualError(t, err, "sqlgraph: plan for sqlserver executed by a mysql engine")
	})

	t.Run("Empty", func(t *testing.T) {
		e, drv, mock := newEngine(t)
		ds := dataset.New(model(t, adventureWorks(t), "ProductCategory"))
		require.NoError(t, e.Insert(context.Background(), drv, ds))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Planner", func(t *testing.T) {
		e, _, _ := newEngine(t)
		require.NotNil(t, e.Planner())
		_, err := e.Planner().Plan(bikes(t, adventureWorks(t)))
		require.NoError(t, err)
	})
}
