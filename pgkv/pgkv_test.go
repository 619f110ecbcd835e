package pgkv_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/medrex/pgkv"
)

func newStore(t *testing.T) (*pgkv.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS checkpoints").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := pgkv.New(context.Background(), db)
	require.NoError(t, err)
	return store, mock
}

func TestNew_SchemaError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS checkpoints").
		WillReturnError(errors.New("permission denied"))

	_, err = pgkv.New(context.Background(), db)
	require.ErrorContains(t, err, "create checkpoint table")
}

func TestStore_Put(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec("INSERT INTO checkpoints").
		WithArgs("chunk-0", []byte("payload")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Put(context.Background(), "chunk-0", []byte("payload")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Recent(t *testing.T) {
	store, mock := newStore(t)

	rows := sqlmock.NewRows([]string{"value"}).
		AddRow([]byte("newest")).
		AddRow([]byte("older"))
	mock.ExpectQuery("SELECT value FROM checkpoints").
		WithArgs("chunk-0", 2).
		WillReturnRows(rows)

	got, err := store.Recent(context.Background(), "chunk-0", 2)
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("newest"), []byte("older")}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Recent_QueryError(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectQuery("SELECT value FROM checkpoints").
		WithArgs("chunk-0", 3).
		WillReturnError(sql.ErrConnDone)

	_, err := store.Recent(context.Background(), "chunk-0", 3)
	require.ErrorIs(t, err, sql.ErrConnDone)
}

func TestStore_Prune(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec("DELETE FROM checkpoints").
		WithArgs("chunk-0", 3).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, store.Prune(context.Background(), "chunk-0", 3))
	require.NoError(t, mock.ExpectationsWereMet())
}
