// 配置热重载管理器实现。
//
// 支持变更通知、应用前校验与回滚到上一个有效配置。
package config

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HotReloadManager 管理配置热重载
//
// 只有策略类字段可以热更新（容量、TTL、整合周期、各阈值、保留期、上下文
// 条数）。结构性字段（存储驱动、日志格式）的变更需要重启进程。
type HotReloadManager struct {
	mu sync.RWMutex

	// 当前配置
	config     *Config
	configPath string

	// 上一个成功应用的配置（用于回滚）
	previousConfig *Config

	// 文件观察者
	watcher *FileWatcher

	// 重新加载配置后调用
	reloadCallbacks []ReloadCallback

	// 变更日志
	changeLog []ConfigChange

	logger *zap.Logger

	running bool
	cancel  context.CancelFunc
}

// ReloadCallback 重新加载配置后调用
type ReloadCallback func(oldConfig, newConfig *Config)

// ConfigChange 代表一次配置字段变更
type ConfigChange struct {
	// 变更的时间戳
	Timestamp time.Time `json:"timestamp"`

	// 已更改字段的路径（例如 "ShortTerm.Capacity"）
	Path string `json:"path"`

	// 更改前的值
	OldValue any `json:"old_value,omitempty"`

	// 更改后的值
	NewValue any `json:"new_value,omitempty"`

	// RequiresRestart 指示此更改是否需要重新启动
	RequiresRestart bool `json:"requires_restart"`

	// Applied 指示是否应用了更改
	Applied bool `json:"applied"`
}

// hotReloadablePaths 列出支持热更新的字段路径前缀。
var hotReloadablePaths = []string{
	"ShortTerm.Capacity",
	"ShortTerm.TTL",
	"ShortTerm.ConversationHistory",
	"LongTerm.RetentionDays",
	"LongTerm.SearchLimit",
	"LongTerm.ScoringTimeout",
	"LongTerm.KeepMinAccessCount",
	"LongTerm.KeepMinImportance",
	"Consolidation.",
	"Context.",
}

// NewHotReloadManager 创建热重载管理器
func NewHotReloadManager(cfg *Config, configPath string, logger *zap.Logger) *HotReloadManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HotReloadManager{
		config:     cfg,
		configPath: configPath,
		logger:     logger.With(zap.String("component", "config_hotreload")),
	}
}

// Current 返回当前配置的副本指针（调用方不得修改）
func (m *HotReloadManager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// OnReload 注册重载回调
func (m *HotReloadManager) OnReload(cb ReloadCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloadCallbacks = append(m.reloadCallbacks, cb)
}

// ChangeLog 返回累计的变更记录副本
func (m *HotReloadManager) ChangeLog() []ConfigChange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ConfigChange(nil), m.changeLog...)
}

// Start 启动文件监听与自动重载
func (m *HotReloadManager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("hot reload manager already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.watcher = NewFileWatcher(m.configPath, WithWatcherLogger(m.logger))
	m.watcher.OnChange(func(event FileEvent) {
		if event.Op == FileOpRemove {
			return
		}
		if err := m.Reload(); err != nil {
			m.logger.Warn("config reload failed, keeping previous config", zap.Error(err))
		}
	})
	m.mu.Unlock()

	return m.watcher.Start(ctx)
}

// Stop 停止热重载
func (m *HotReloadManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false
	if m.watcher != nil {
		m.watcher.Stop()
	}
	if m.cancel != nil {
		m.cancel()
	}
}

// Reload 重新读取配置文件并应用热更新字段。
// 新配置未通过验证时保留当前配置（隐式回滚）。
func (m *HotReloadManager) Reload() error {
	newCfg, err := NewLoader().WithConfigPath(m.configPath).Load()
	if err != nil {
		return err
	}
	return m.Apply(newCfg)
}

// Apply 应用一个新配置，记录字段级变更并通知回调。
func (m *HotReloadManager) Apply(newCfg *Config) error {
	if err := newCfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	oldCfg := m.config
	changes := diffConfigs(oldCfg, newCfg)

	applied := false
	for i := range changes {
		changes[i].Timestamp = time.Now()
		changes[i].RequiresRestart = !isHotReloadable(changes[i].Path)
		changes[i].Applied = !changes[i].RequiresRestart
		if changes[i].Applied {
			applied = true
		} else {
			m.logger.Warn("config change requires restart, not applied",
				zap.String("path", changes[i].Path))
		}
	}
	m.changeLog = append(m.changeLog, changes...)

	if !applied {
		m.mu.Unlock()
		return nil
	}

	// 只接管热更新字段，结构性字段保持旧值。
	merged := *oldCfg
	merged.ShortTerm = newCfg.ShortTerm
	merged.LongTerm = newCfg.LongTerm
	merged.Consolidation = newCfg.Consolidation
	merged.Context = newCfg.Context

	m.previousConfig = oldCfg
	m.config = &merged

	callbacks := append([]ReloadCallback(nil), m.reloadCallbacks...)
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(oldCfg, &merged)
	}

	m.logger.Info("config reloaded", zap.Int("changes", len(changes)))
	return nil
}

// Rollback 回滚到上一个成功应用的配置
func (m *HotReloadManager) Rollback() error {
	m.mu.Lock()
	if m.previousConfig == nil {
		m.mu.Unlock()
		return fmt.Errorf("no previous config to roll back to")
	}
	restored := m.previousConfig
	m.mu.Unlock()

	return m.Apply(restored)
}

func isHotReloadable(path string) bool {
	for _, p := range hotReloadablePaths {
		if path == p || strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// diffConfigs 比较两份配置，返回字段级差异。
func diffConfigs(oldCfg, newCfg *Config) []ConfigChange {
	var changes []ConfigChange
	diffStructs(reflect.ValueOf(*oldCfg), reflect.ValueOf(*newCfg), "", &changes)
	return changes
}

func diffStructs(oldV, newV reflect.Value, prefix string, out *[]ConfigChange) {
	t := oldV.Type()
	for i := 0; i < oldV.NumField(); i++ {
		name := t.Field(i).Name
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		of, nf := oldV.Field(i), newV.Field(i)
		if of.Kind() == reflect.Struct && of.Type() != reflect.TypeOf(time.Time{}) {
			diffStructs(of, nf, path, out)
			continue
		}

		if !reflect.DeepEqual(of.Interface(), nf.Interface()) {
			*out = append(*out, ConfigChange{
				Path:     path,
				OldValue: of.Interface(),
				NewValue: nf.Interface(),
			})
		}
	}
}
