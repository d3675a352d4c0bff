package sessionstore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_CommitFindDelete(t *testing.T) {
	store := setupSQLiteStore(t)

	require.NoError(t, store.Commit("tok", []byte("payload"), time.Now().Add(time.Hour)))

	b, found, err := store.Find("tok")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("payload"), b)

	require.NoError(t, store.Delete("tok"))

	_, found, err = store.Find("tok")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteStore_ExpiredSessionNotFound(t *testing.T) {
	store := setupSQLiteStore(t)

	require.NoError(t, store.Commit("old", []byte("payload"), time.Now().Add(-time.Minute)))

	_, found, err := store.Find("old")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteStore_SharedDatabase(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "shared.db"))
	require.NoError(t, err)
	defer db.Close()

	store, err := NewSQLiteStore(db, 0)
	require.NoError(t, err)

	require.NoError(t, store.Commit("tok", []byte("x"), time.Now().Add(time.Hour)))
	require.NoError(t, store.Close())

	// Close leaves a shared handle open
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSQLiteStore_Ping(t *testing.T) {
	store := setupSQLiteStore(t)

	assert.NoError(t, store.Ping(context.Background()))
	assert.Equal(t, "sqlite", store.Name())
}
