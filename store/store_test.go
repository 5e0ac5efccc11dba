package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/hyvewellness/tenantgate/database"
	"github.com/hyvewellness/tenantgate/logger"
)

func setupMockDB(t *testing.T, vendor string) (*database.Connection, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return database.New(db, vendor, logger.Nop(), time.Second), mock
}

func q(sql string) string {
	return "^" + regexp.QuoteMeta(sql) + "$"
}

func scope(t *testing.T, id int64) database.Scope {
	t.Helper()
	s, err := database.NewScope(id)
	require.NoError(t, err)
	return s
}

func TestMigrateRunsSchema(t *testing.T) {
	conn, mock := setupMockDB(t, database.PostgreSQL)
	for range Schema(database.PostgreSQL) {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, Migrate(context.Background(), conn, logger.Nop()))
}

func TestMigrateStopsOnError(t *testing.T) {
	conn, mock := setupMockDB(t, database.Oracle)
	mock.ExpectExec("CREATE SEQUENCE").WillReturnError(context.DeadlineExceeded)

	err := Migrate(context.Background(), conn, logger.Nop())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Contains(t, err.Error(), "statement 1")
}
