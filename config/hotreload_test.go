package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHotReloadManager_ApplyPolicyChange(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	m := NewHotReloadManager(cfg, "", zap.NewNop())

	var gotOld, gotNew *Config
	m.OnReload(func(oldCfg, newCfg *Config) {
		gotOld, gotNew = oldCfg, newCfg
	})

	next := DefaultConfig()
	next.ShortTerm.Capacity = 80
	next.Consolidation.Interval = time.Minute

	require.NoError(t, m.Apply(next))

	assert.Equal(t, 80, m.Current().ShortTerm.Capacity)
	assert.Equal(t, time.Minute, m.Current().Consolidation.Interval)
	require.NotNil(t, gotOld)
	assert.Equal(t, 50, gotOld.ShortTerm.Capacity)
	assert.Equal(t, 80, gotNew.ShortTerm.Capacity)

	log := m.ChangeLog()
	require.Len(t, log, 2)
	for _, change := range log {
		assert.True(t, change.Applied)
		assert.False(t, change.RequiresRestart)
	}
}

func TestHotReloadManager_StructuralChangeNotApplied(t *testing.T) {
	t.Parallel()

	m := NewHotReloadManager(DefaultConfig(), "", zap.NewNop())

	next := DefaultConfig()
	next.Storage.Driver = "redis"

	require.NoError(t, m.Apply(next))

	// 存储驱动属于结构性字段，只记录不应用。
	assert.Equal(t, "file", m.Current().Storage.Driver)

	log := m.ChangeLog()
	require.Len(t, log, 1)
	assert.True(t, log[0].RequiresRestart)
	assert.False(t, log[0].Applied)
}

func TestHotReloadManager_InvalidConfigRejected(t *testing.T) {
	t.Parallel()

	m := NewHotReloadManager(DefaultConfig(), "", zap.NewNop())

	next := DefaultConfig()
	next.ShortTerm.TTL = -time.Second

	require.Error(t, m.Apply(next))
	assert.Equal(t, 30*time.Minute, m.Current().ShortTerm.TTL)
}

func TestHotReloadManager_Rollback(t *testing.T) {
	t.Parallel()

	m := NewHotReloadManager(DefaultConfig(), "", zap.NewNop())

	next := DefaultConfig()
	next.ShortTerm.Capacity = 99
	require.NoError(t, m.Apply(next))
	require.Equal(t, 99, m.Current().ShortTerm.Capacity)

	require.NoError(t, m.Rollback())
	assert.Equal(t, 50, m.Current().ShortTerm.Capacity)
}

func TestHotReloadManager_FileReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("short_term:\n  capacity: 50\n"), 0o644))

	cfg := MustLoad(path)
	m := NewHotReloadManager(cfg, path, zap.NewNop())

	require.NoError(t, os.WriteFile(path, []byte("short_term:\n  capacity: 64\n"), 0o644))
	require.NoError(t, m.Reload())

	assert.Equal(t, 64, m.Current().ShortTerm.Capacity)
}

func TestFileWatcher_DetectsWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o644))

	w := NewFileWatcher(path, WithPollInterval(10*time.Millisecond))

	events := make(chan FileEvent, 1)
	w.OnChange(func(event FileEvent) {
		select {
		case events <- event:
		default:
		}
	})

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	// mtime 粒度可能较粗，确保修改时间前移。
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.WriteFile(path, []byte("a: 2\n"), 0o644))
	require.NoError(t, os.Chtimes(path, future, future))

	select {
	case event := <-events:
		assert.Equal(t, FileOpWrite, event.Op)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for file event")
	}
}
