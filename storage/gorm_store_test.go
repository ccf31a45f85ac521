package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/memflow/types"
)

func openTestGorm(t *testing.T) *GormStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "memflow.db")
	store, err := OpenGorm("sqlite", dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGormStore_RoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestGorm(t)
	ctx := context.Background()

	want := testEntry("fact_db_01")
	require.NoError(t, store.Write(ctx, want))

	entries, corrupt, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, corrupt)
	require.Len(t, entries, 1)
	assert.Equal(t, want, entries[0])
}

func TestGormStore_UpsertAndDelete(t *testing.T) {
	t.Parallel()

	store := openTestGorm(t)
	ctx := context.Background()

	entry := testEntry("fact_db_01")
	require.NoError(t, store.Write(ctx, entry))

	entry.Importance = 0.95
	require.NoError(t, store.Write(ctx, entry))

	entries, _, err := store.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0.95, entries[0].Importance)

	require.NoError(t, store.Delete(ctx, "fact_db_01"))
	require.NoError(t, store.Delete(ctx, "fact_db_01"))

	entries, _, err = store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGormStore_RestartRebuildsSameRecords(t *testing.T) {
	t.Parallel()

	dsn := filepath.Join(t.TempDir(), "memflow.db")
	ctx := context.Background()

	store, err := OpenGorm("sqlite", dsn, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, testEntry("fact_a")))
	require.NoError(t, store.Write(ctx, testEntry("fact_b")))
	require.NoError(t, store.Close())

	// 模拟进程重启：重新打开同一数据库文件。
	reopened, err := OpenGorm("sqlite", dsn, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	entries, corrupt, err := reopened.ReadAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, corrupt)
	assert.Len(t, entries, 2)
}

func TestGormStore_WriteFailureSurfacesPersistenceError(t *testing.T) {
	t.Parallel()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	dialector := postgres.New(postgres.Config{Conn: mockDB})
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	store := NewGormStore(gormDB, zap.NewNop())
	err = store.Write(context.Background(), testEntry("fact_fail"))
	require.Error(t, err)
	assert.Equal(t, types.ErrPersistenceFailure, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}
