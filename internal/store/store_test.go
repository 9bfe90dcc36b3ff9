package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ragyverse/apiserver/config"
	"github.com/ragyverse/apiserver/internal/db"
	"github.com/ragyverse/apiserver/types"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	cfg := config.DatabaseConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "store.db"),
	}
	conn, err := db.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, db.Migrate(conn, cfg.Driver, db.Up))
	return conn
}

func TestRebind(t *testing.T) {
	q := `SELECT * FROM t WHERE a = $1 AND b = $2 AND c = '$' LIMIT $10`
	require.Equal(t, q, rebind(config.DriverPostgres, q))
	require.Equal(t, `SELECT * FROM t WHERE a = ? AND b = ? AND c = '$' LIMIT ?`, rebind(config.DriverSQLite, q))
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t), config.DriverSQLite)

	created, err := repo.Create(ctx, types.User{Username: "alice", PasswordHash: "hash"})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.False(t, created.CreatedAt.IsZero())

	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, "hash", got.PasswordHash)

	_, err = repo.GetByUsername(ctx, "bob")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_DuplicateIsConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t), config.DriverSQLite)

	_, err := repo.Create(ctx, types.User{Username: "alice", PasswordHash: "first"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, types.User{Username: "alice", PasswordHash: "second"})
	require.ErrorIs(t, err, ErrConflict)

	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "first", got.PasswordHash)
}

func TestHistoryRepository_ListRecent(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepository(newTestDB(t), config.DriverSQLite)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 12; i++ {
		_, err := repo.Append(ctx, types.HistoryEntry{
			Username:  "alice",
			Action:    types.ActionTextToSpeech,
			Answer:    fmt.Sprintf("text %d", i),
			AudioFile: fmt.Sprintf("response_%02d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
	_, err := repo.Append(ctx, types.HistoryEntry{
		Username:  "bob",
		Action:    types.ActionTextToSpeech,
		Answer:    "other",
		AudioFile: "response_bob",
		Timestamp: base.Add(time.Hour),
	})
	require.NoError(t, err)

	entries, err := repo.ListRecent(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, entries, 10)
	require.Equal(t, "text 11", entries[0].Answer)
	require.Equal(t, "text 2", entries[9].Answer)
	for i := 1; i < len(entries); i++ {
		require.True(t, entries[i-1].Timestamp.After(entries[i].Timestamp))
	}
}

func TestHistoryRepository_SameTimestampOrdersByInsertion(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepository(newTestDB(t), config.DriverSQLite)

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, answer := range []string{"first", "second"} {
		_, err := repo.Append(ctx, types.HistoryEntry{
			Username: "alice", Action: types.ActionTextToSpeech,
			Answer: answer, AudioFile: "response_" + answer, Timestamp: ts,
		})
		require.NoError(t, err)
	}

	entries, err := repo.ListRecent(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "second", entries[0].Answer)
}

func TestHistoryRepository_HasAudioFile(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepository(newTestDB(t), config.DriverSQLite)

	_, err := repo.Append(ctx, types.HistoryEntry{
		Username: "alice", Action: types.ActionTextToSpeech,
		Answer: "hi", AudioFile: "response_1",
	})
	require.NoError(t, err)

	ok, err := repo.HasAudioFile(ctx, "alice", "response_1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.HasAudioFile(ctx, "bob", "response_1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHistoryRepository_EmptyIsNotNil(t *testing.T) {
	repo := NewHistoryRepository(newTestDB(t), config.DriverSQLite)

	entries, err := repo.ListRecent(context.Background(), "nobody", 10)
	require.NoError(t, err)
	require.NotNil(t, entries)
	require.Empty(t, entries)
}
