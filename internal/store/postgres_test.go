package store

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPostgres(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)

	p := NewPostgres(mock, nil)

	mock.ExpectPing()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS kv_store").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, p.Init(context.Background()))
	return p, mock
}

func TestPostgres_Init(t *testing.T) {
	t.Run("creates schema", func(t *testing.T) {
		_, mock := newTestPostgres(t)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ping failure", func(t *testing.T) {
		mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		p := NewPostgres(mock, nil)

		mock.ExpectPing().WillReturnError(errors.New("connection refused"))
		assert.Error(t, p.Init(context.Background()))
	})

	t.Run("use before init", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		p := NewPostgres(mock, nil)
		_, _, getErr := p.Get(context.Background(), "k")
		assert.ErrorIs(t, getErr, ErrNotInitialized)
	})
}

func TestPostgres_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	p, mock := newTestPostgres(t)

	t.Run("set upserts", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO kv_store").
			WithArgs("k", []byte("v")).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		require.NoError(t, p.Set(ctx, "k", []byte("v")))
	})

	t.Run("get found", func(t *testing.T) {
		mock.ExpectQuery("SELECT value FROM kv_store").
			WithArgs("k").
			WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow([]byte("v")))
		got, ok, err := p.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("v"), got)
	})

	t.Run("get missing", func(t *testing.T) {
		mock.ExpectQuery("SELECT value FROM kv_store").
			WithArgs("nope").
			WillReturnRows(pgxmock.NewRows([]string{"value"}))
		_, ok, err := p.Get(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("delete", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM kv_store").
			WithArgs("k").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		require.NoError(t, p.Delete(ctx, "k"))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Keys(t *testing.T) {
	ctx := context.Background()
	p, mock := newTestPostgres(t)

	mock.ExpectQuery("SELECT key FROM kv_store").
		WithArgs("audit/").
		WillReturnRows(pgxmock.NewRows([]string{"key"}).
			AddRow("audit/1").
			AddRow("audit/2"))

	keys, err := p.Keys(ctx, "audit/")
	require.NoError(t, err)
	assert.Equal(t, []string{"audit/1", "audit/2"}, keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Close(t *testing.T) {
	ctx := context.Background()
	p, mock := newTestPostgres(t)

	mock.ExpectClose()
	require.NoError(t, p.Close(ctx))

	_, _, err := p.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, p.Close(ctx), "closing twice is a no-op")
}
