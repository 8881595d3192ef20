package quota

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "quota.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := &SQLiteStore{db: db}
	require.NoError(t, s.migrate())
	return s
}

func TestSQLiteDebitConsumesFreeBeforeCredits(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)
	key := "v1"

	_, _, err := store.GrantCredits(ctx, key, "sess-1", 2)
	require.NoError(t, err)

	for i := 0; i < FreeQuota; i++ {
		st, err := store.Debit(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, i+1, st.FreeUsed)
		assert.Equal(t, 2, st.Credits, "credits untouched while free allowance remains")
	}

	st, err := store.Debit(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, State{FreeUsed: FreeQuota, Credits: 1}, st)
}

func TestSQLiteDebitOnFirstContactCreatesRow(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	st, err := store.Debit(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, State{FreeUsed: 1, Credits: 0}, st)

	st, err = store.State(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, 1, st.FreeUsed)
}

func TestSQLiteDebitNeverOverdrawsDrainedVisitor(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)
	key := "v1"

	for i := 0; i < FreeQuota+3; i++ {
		_, err := store.Debit(ctx, key)
		require.NoError(t, err)
	}

	st, err := store.State(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, State{FreeUsed: FreeQuota, Credits: 0}, st)
}

func TestSQLiteGrantReplayKeepsBalance(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)
	key := "v1"

	total, replay, err := store.GrantCredits(ctx, key, "sess-1", 4)
	require.NoError(t, err)
	assert.False(t, replay)
	assert.Equal(t, 4, total)

	total, replay, err = store.GrantCredits(ctx, key, "sess-1", 4)
	require.NoError(t, err)
	assert.True(t, replay)
	assert.Equal(t, 4, total)
}
