package sqldriver

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/objectcore"
	"github.com/syssam/objectcore/dialect"
	sqlpkg "github.com/syssam/objectcore/dialect/sql"
	"github.com/syssam/objectcore/driver"
)

func TestStatsReportsQueryCountsThroughStatsDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	conn := sqlpkg.OpenDB(dialect.Postgres, db)
	statsDriver := sqlpkg.NewStatsDriver(conn)
	d := New(statsDriver)

	mock.ExpectQuery(`SELECT COUNT\(\*\) AS n FROM deals`).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	n, err := d.Count(context.Background(), "deal", objectcore.Filter{}, driver.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	snapshot, ok := d.Stats()
	require.True(t, ok)
	assert.Equal(t, int64(1), snapshot.TotalQueries)
}

func TestStatsIsUnavailableOverPlainDriver(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	d := New(sqlpkg.OpenDB(dialect.Postgres, db))
	_, ok := d.Stats()
	assert.False(t, ok)
}

func TestConnForSetsAndResetsSessionVarsFromOptions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	d := New(sqlpkg.OpenDB(dialect.Postgres, db))

	mock.ExpectExec(`SET app\.tenant_id = 'acme'`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) AS n FROM deals`).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(3))
	mock.ExpectExec(`RESET app\.tenant_id`).WillReturnResult(sqlmock.NewResult(0, 0))

	opts := driver.Options{SessionVars: map[string]string{driver.SessionVarTenantID: "acme"}}
	n, err := d.Count(context.Background(), "deal", objectcore.Filter{}, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
