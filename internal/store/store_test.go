package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunarcal/internal/store"
	"lunarcal/internal/store/storetest"
)

func TestSQLite_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "events.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

// Set LUNARCAL_TEST_POSTGRES_DSN to a disposable database to run the
// contract against Postgres.
func TestPostgres_Contract(t *testing.T) {
	dsn := os.Getenv("LUNARCAL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LUNARCAL_TEST_POSTGRES_DSN not set")
	}
	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := store.OpenPostgres(ctx, dsn)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		// Each subtest starts from an empty table.
		require.NoError(t, truncate(ctx, dsn))
		return s
	})
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "events.db")

	s, err := store.OpenSQLite(ctx, path)
	require.NoError(t, err)
	id, err := s.Add(ctx, sampleEvent())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Title)
}

func TestSQLite_ClosedStoreReportsPersistenceError(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Add(ctx, sampleEvent())
	assert.ErrorIs(t, err, store.ErrPersistence)
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	s, err := store.Open(ctx, store.Options{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "a.db")})
	require.NoError(t, err)
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())

	_, err = store.Open(ctx, store.Options{Driver: "mongo"})
	assert.Error(t, err)

	_, err = store.Open(ctx, store.Options{Driver: "sqlite"})
	assert.Error(t, err)

	_, err = store.Open(ctx, store.Options{Driver: "postgres"})
	assert.Error(t, err)
}
