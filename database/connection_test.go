package database

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyvewellness/tenantgate/config"
	"github.com/hyvewellness/tenantgate/logger"
)

func newMockConnection(t *testing.T, slow time.Duration) (*Connection, sqlmock.Sqlmock, *bytes.Buffer) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
		sqlmock.MonitorPingsOption(true),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var buf bytes.Buffer
	conn := New(db, PostgreSQL, logger.NewWithWriter(&buf, "debug", false), slow)
	return conn, mock, &buf
}

func TestConnectionQueryAndExec(t *testing.T) {
	conn, mock, _ := newMockConnection(t, time.Second)
	ctx := context.Background()

	mock.ExpectQuery("SELECT id FROM tenants").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectExec("UPDATE tenants SET is_active = $1").
		WithArgs(false).
		WillReturnResult(sqlmock.NewResult(0, 2))

	rows, err := conn.Query(ctx, "SELECT id FROM tenants")
	require.NoError(t, err)
	var ids []int64
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())
	assert.Equal(t, []int64{1, 2}, ids)

	res, err := conn.Exec(ctx, "UPDATE tenants SET is_active = $1", false)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.Equal(t, PostgreSQL, conn.Vendor())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionLogsSlowStatements(t *testing.T) {
	conn, mock, buf := newMockConnection(t, time.Nanosecond)

	mock.ExpectExec("DELETE FROM pages").
		WillDelayFor(time.Millisecond).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := conn.Exec(context.Background(), "DELETE FROM pages")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Slow database statement")
}

func TestConnectionLogsFailures(t *testing.T) {
	conn, mock, buf := newMockConnection(t, time.Second)

	mock.ExpectExec("INSERT INTO pages").WillReturnError(errors.New("duplicate key"))

	_, err := conn.Exec(context.Background(), "INSERT INTO pages")
	require.Error(t, err)
	assert.Contains(t, buf.String(), "Database statement failed")
	assert.Contains(t, buf.String(), "duplicate key")
}

func TestQueryRowNoRowsIsNotAnError(t *testing.T) {
	conn, mock, buf := newMockConnection(t, time.Second)

	mock.ExpectQuery("SELECT id FROM tenants WHERE slug = $1").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	var id int64
	err := conn.QueryRow(context.Background(), "SELECT id FROM tenants WHERE slug = $1", "ghost").Scan(&id)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NotContains(t, buf.String(), "Database statement failed")
}

func TestWithTxCommits(t *testing.T) {
	conn, mock, _ := newMockConnection(t, time.Second)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pages (slug) VALUES ($1)").WithArgs("a").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := WithTx(context.Background(), conn, func(tx Tx) error {
		_, err := tx.Exec(context.Background(), "INSERT INTO pages (slug) VALUES ($1)", "a")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	conn, mock, _ := newMockConnection(t, time.Second)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := WithTx(context.Background(), conn, func(Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	conn, mock, _ := newMockConnection(t, time.Second)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = WithTx(context.Background(), conn, func(Tx) error { panic("bad") })
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthPings(t *testing.T) {
	conn, mock, _ := newMockConnection(t, time.Second)

	mock.ExpectPing()
	require.NoError(t, conn.Health(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	require.Error(t, conn.Health(context.Background()))

	stats := conn.Stats()
	assert.Contains(t, stats, "open_connections")
}

func TestOpenRejectsUnknownVendor(t *testing.T) {
	_, err := Open(context.Background(), &config.DatabaseConfig{Type: "mysql"}, logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}

func TestOpenReportsPingFailure(t *testing.T) {
	orig := pingDB
	pingDB = func(context.Context, *sql.DB) error { return errors.New("connection refused") }
	t.Cleanup(func() { pingDB = orig })

	_, err := Open(context.Background(), &config.DatabaseConfig{
		Type: PostgreSQL, Host: "127.0.0.1", Port: 1, Database: "x", Username: "u",
	}, logger.Nop())

	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "connection", cfgErr.Category)
	assert.Contains(t, cfgErr.Message, "connection refused")
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(&config.DatabaseConfig{
		Host: "db", Port: 5432, Username: "gate", Password: "p@ss word", Database: "tenants", SSLMode: "disable",
	})
	assert.Equal(t, "host=db port=5432 user=gate password='p@ss word' dbname=tenants sslmode=disable", dsn)

	assert.Equal(t, "postgres://x", postgresDSN(&config.DatabaseConfig{ConnectionString: "postgres://x"}))
}

func TestQuoteDSN(t *testing.T) {
	assert.Equal(t, "''", quoteDSN(""))
	assert.Equal(t, "plain_value-1.0", quoteDSN("plain_value-1.0"))
	assert.Equal(t, `'it\'s'`, quoteDSN("it's"))
	assert.Equal(t, `'a\\b'`, quoteDSN(`a\b`))
}

func TestOracleDSN(t *testing.T) {
	dsn := oracleDSN(&config.DatabaseConfig{
		Type: Oracle, Host: "ora", Port: 1521, ServiceName: "FREEPDB1", Username: "gate", Password: "secret",
	})
	assert.Contains(t, dsn, "oracle://")
	assert.Contains(t, dsn, "ora:1521")
	assert.Contains(t, dsn, "FREEPDB1")
}
