package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestMigratePostgres(t *testing.T) {
	req := require.New(t)
	conn, mock, err := sqlmock.New()
	req.NoError(err)
	defer conn.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS messages").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS messages_pair_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS messages_global_idx").WillReturnResult(sqlmock.NewResult(0, 0))

	req.NoError(MigratePostgres(context.Background(), conn))
	req.NoError(mock.ExpectationsWereMet())
}

func TestMigratePostgres_StopsOnError(t *testing.T) {
	req := require.New(t)
	conn, mock, err := sqlmock.New()
	req.NoError(err)
	defer conn.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnError(errors.New("permission denied"))

	err = MigratePostgres(context.Background(), conn)
	req.ErrorContains(err, "failed to apply schema")
	req.NoError(mock.ExpectationsWereMet())
}

func TestOpenPostgres_RequiresURL(t *testing.T) {
	_, err := OpenPostgres(PostgresConfig{})
	require.Error(t, err)
}
