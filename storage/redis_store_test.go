package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) *RedisStore {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := NewRedisStore(RedisOptions{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestRedisStore_RoundTrip(t *testing.T) {
	t.Parallel()

	store := setupTestRedis(t)
	ctx := context.Background()

	want := testEntry("fact_r_01")
	require.NoError(t, store.Write(ctx, want))

	entries, corrupt, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, corrupt)
	require.Len(t, entries, 1)
	assert.Equal(t, want, entries[0])
}

func TestRedisStore_ScanEnumeratesAllRecords(t *testing.T) {
	t.Parallel()

	store := setupTestRedis(t)
	ctx := context.Background()

	const total = 250 // larger than one SCAN page
	for i := 0; i < total; i++ {
		require.NoError(t, store.Write(ctx, testEntry(fmt.Sprintf("fact_r_%03d", i))))
	}

	entries, _, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, total)
}

func TestRedisStore_Delete(t *testing.T) {
	t.Parallel()

	store := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, testEntry("fact_r_01")))
	require.NoError(t, store.Delete(ctx, "fact_r_01"))

	entries, _, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
