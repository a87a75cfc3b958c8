package db

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLiteMemory(t *testing.T) {
	t.Parallel()

	gdb, err := Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)

	var one int
	require.NoError(t, gdb.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestOpen_Errors(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "postgres", "")
	assert.Error(t, err)

	_, err = Open(context.Background(), "mysql", "dsn")
	assert.ErrorContains(t, err, "unsupported DB_DRIVER")
}

func TestOpenPostgresConn(t *testing.T) {
	t.Parallel()

	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	gdb, err := OpenPostgresConn(conn)
	require.NoError(t, err)

	mock.ExpectExec("DELETE FROM things").WillReturnResult(sqlmock.NewResult(0, 2))
	res := gdb.Exec("DELETE FROM things")
	require.NoError(t, res.Error)
	assert.EqualValues(t, 2, res.RowsAffected)
	assert.NoError(t, mock.ExpectationsWereMet())
}
