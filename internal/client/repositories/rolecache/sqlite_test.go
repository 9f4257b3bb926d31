package rolecache

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, storage.RunMigrations(context.Background(), db))
	return db
}

func TestPutAndGet(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	_, ok, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Unix(1_700_000_000, 0)
	require.NoError(t, r.Put(ctx, Entry{UserID: "u1", Role: "user", Temporary: true, UpdatedAt: at}))

	e, ok, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Entry{UserID: "u1", Role: "user", Temporary: true, UpdatedAt: at}, e)

	// confirmed role replaces the heuristic one
	require.NoError(t, r.Put(ctx, Entry{UserID: "u1", Role: "admin"}))
	e, ok, err = r.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "admin", e.Role)
	assert.False(t, e.Temporary)
	assert.WithinDuration(t, time.Now(), e.UpdatedAt, 2*time.Second)
}

func TestDeleteAndClear(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, Entry{UserID: "u1", Role: "admin"}))
	require.NoError(t, r.Put(ctx, Entry{UserID: "u2", Role: "user"}))

	require.NoError(t, r.Delete(ctx, "u1"))
	_, ok, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Clear(ctx))
	_, ok, err = r.Get(ctx, "u2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPut_ErrorIsWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO role_cache`).
		WithArgs("u1", "admin", 0, sqlmock.AnyArg()).
		WillReturnError(sql.ErrConnDone)

	err = NewSQLiteRepository(db).Put(context.Background(), Entry{UserID: "u1", Role: "admin"})
	require.ErrorIs(t, err, sql.ErrConnDone)
	assert.Contains(t, err.Error(), "role_cache[u1]")
	require.NoError(t, mock.ExpectationsWereMet())
}
