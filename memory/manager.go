package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/scoring"
	"github.com/BaSui01/memflow/storage"
	"github.com/BaSui01/memflow/types"
)

const tracerName = "github.com/BaSui01/memflow"

// Manager 双层记忆系统门面
// Single entry point for callers: owns both tiers, the consolidation engine
// and the context assembler, and stays safe under concurrent use.
type Manager struct {
	cfgMu sync.RWMutex
	cfg   *config.Config

	shortTerm    *ShortTermStore
	longTerm     *LongTermStore
	consolidator *Consolidator
	assembler    *Assembler

	instanceID string
	logger     *zap.Logger
	tracer     trace.Tracer
	collector  *metrics.Collector
	now        func() time.Time

	lifeMu  sync.Mutex
	started bool
}

// Option 管理器构造选项
type Option func(*managerOptions)

type managerOptions struct {
	logger    *zap.Logger
	store     storage.Store
	scorer    scoring.Scorer
	collector *metrics.Collector
	now       func() time.Time
}

// WithLogger 指定日志器
func WithLogger(logger *zap.Logger) Option {
	return func(o *managerOptions) { o.logger = logger }
}

// WithStore 注入持久化存储，跳过按配置构建
func WithStore(store storage.Store) Option {
	return func(o *managerOptions) { o.store = store }
}

// WithScorer 注入相关性评分器，默认使用词法评分
func WithScorer(scorer scoring.Scorer) Option {
	return func(o *managerOptions) { o.scorer = scorer }
}

// WithCollector 注入指标采集器
func WithCollector(collector *metrics.Collector) Option {
	return func(o *managerOptions) { o.collector = collector }
}

// WithClock 注入时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(o *managerOptions) { o.now = now }
}

// NewManager 按配置构建记忆管理器
func NewManager(ctx context.Context, cfg *config.Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o managerOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.scorer == nil {
		o.scorer = scoring.NewLexical()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.store == nil {
		st, err := storage.Open(cfg.Storage, cfg.Redis, o.logger)
		if err != nil {
			return nil, err
		}
		o.store = st
	}

	logger := o.logger.With(zap.String("component", "memory_manager"))
	shortTerm := NewShortTermStore(cfg.ShortTerm, o.logger, o.collector)
	shortTerm.now = o.now

	longTerm, err := NewLongTermStore(ctx, o.store, o.scorer, cfg.LongTerm, o.logger, o.collector)
	if err != nil {
		return nil, err
	}
	longTerm.now = o.now

	consolidator := NewConsolidator(shortTerm, longTerm, cfg.Consolidation, o.logger, o.collector)
	consolidator.now = o.now

	m := &Manager{
		cfg:          cfg,
		shortTerm:    shortTerm,
		longTerm:     longTerm,
		consolidator: consolidator,
		assembler:    NewAssembler(cfg.Context, o.logger),
		instanceID:   uuid.NewString(),
		logger:       logger,
		tracer:       otel.Tracer(tracerName),
		collector:    o.collector,
		now:          o.now,
	}
	logger.Info("记忆管理器已创建 memory manager created",
		zap.String("instance_id", m.instanceID),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.Int("long_term_entries", longTerm.Len()))
	return m, nil
}

// Start 启动后台巩固循环
func (m *Manager) Start() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.consolidator.Start()
}

// Stop 停止后台循环并关闭持久化存储
func (m *Manager) Stop() error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.started {
		m.consolidator.Stop()
		m.started = false
	}
	return m.longTerm.Close()
}

// AttachHotReload 订阅配置热更新
// Tier policies apply live; structural fields such as the storage driver
// are already withheld by the reload manager.
func (m *Manager) AttachHotReload(hrm *config.HotReloadManager) {
	hrm.OnReload(func(_, newCfg *config.Config) {
		m.applyConfig(newCfg)
	})
}

func (m *Manager) applyConfig(cfg *config.Config) {
	m.cfgMu.Lock()
	m.cfg = cfg
	m.cfgMu.Unlock()

	m.shortTerm.Reconfigure(cfg.ShortTerm)
	m.longTerm.Reconfigure(cfg.LongTerm)
	m.consolidator.Reconfigure(cfg.Consolidation)
	m.assembler.Reconfigure(cfg.Context)
	m.logger.Info("记忆策略热更新完成 memory policies reconfigured")
}

func (m *Manager) currentCfg() *config.Config {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.cfg
}

// TurnOptions 一轮对话的附加信息
type TurnOptions struct {
	Confidence     float64
	ProcessingTime float64
	ContextUsed    []string
}

// AddConversationTurn 记录一轮完整对话
// Every turn enters the conversation history. A memory entry is derived only
// for turns worth remembering: confidence above the promotion confidence
// threshold or a response longer than the long-response cutoff. The returned
// id is empty when no entry was created.
func (m *Manager) AddConversationTurn(ctx context.Context, userInput, assistantResponse string, opts TurnOptions) (string, error) {
	_, span := m.tracer.Start(ctx, "memflow.AddConversationTurn")
	defer span.End()

	if userInput == "" && assistantResponse == "" {
		return "", types.NewError(types.ErrConfigurationInvalid, "empty conversation turn")
	}

	turn := &types.ConversationTurn{
		UserInput:         userInput,
		AssistantResponse: assistantResponse,
		ContextUsed:       opts.ContextUsed,
		ProcessingTime:    opts.ProcessingTime,
		ConfidenceScore:   opts.Confidence,
	}
	m.shortTerm.AddTurn(turn)

	policy := m.currentCfg().Consolidation
	if opts.Confidence <= policy.ConfidenceThreshold && len(assistantResponse) <= policy.LongResponseBytes {
		return "", nil
	}

	confidence := opts.Confidence
	entry := &types.MemoryEntry{
		Content:    fmt.Sprintf("User: %s\nAssistant: %s", userInput, assistantResponse),
		Type:       types.MemoryConversation,
		Importance: TurnImportance(opts.Confidence, len(assistantResponse)),
		Source:     "conversation",
		Metadata: types.Metadata{
			Confidence:     &confidence,
			ProcessingTime: opts.ProcessingTime,
			ContextUsed:    opts.ContextUsed,
		},
	}
	id := m.shortTerm.Add(entry)
	span.SetAttributes(attribute.String("memflow.entry_id", id))
	return id, nil
}

// AddFact 添加一条事实性记忆
// Facts land in the short-term tier. At or above the promotion importance
// threshold the fact is additionally written straight through to the durable
// tier; a persistence failure there is returned to the caller while the
// short-term copy stays behind for the next consolidation retry.
func (m *Manager) AddFact(ctx context.Context, content, source string, importance float64, metadata types.Metadata) (string, error) {
	ctx, span := m.tracer.Start(ctx, "memflow.AddFact")
	defer span.End()

	if content == "" {
		return "", types.NewError(types.ErrConfigurationInvalid, "empty fact content")
	}

	entry := &types.MemoryEntry{
		Content:    content,
		Type:       types.MemoryFactual,
		Importance: types.ClampImportance(importance),
		Source:     source,
		Metadata:   metadata,
	}
	id := m.shortTerm.Add(entry)
	span.SetAttributes(attribute.String("memflow.entry_id", id))

	policy := m.currentCfg().Consolidation
	if entry.Importance < policy.ImportanceThreshold {
		return id, nil
	}

	direct := entry.Clone()
	direct.ID = id
	direct.Metadata.Promotion = &types.PromotionInfo{
		PromotedAt: m.now(),
		Reason:     PromoteReasonImportance,
		Cycle:      m.consolidator.Cycle(),
	}
	if err := m.longTerm.Add(ctx, direct); err != nil {
		m.logger.Warn("高重要性事实直写失败 direct fact write failed",
			zap.String("entry_id", id), zap.Error(err))
		return id, err
	}
	m.shortTerm.MarkPromoted(id, *direct.Metadata.Promotion)
	return id, nil
}

// GetRelevantContext 检索与查询相关的上下文
// Both tiers are queried in parallel; the short-term side contributes the
// recency window and the long-term side contributes scored matches. A
// degraded scorer shrinks relevance ordering but never fails the call.
func (m *Manager) GetRelevantContext(ctx context.Context, query string, maxEntries int) ([]ContextEntry, error) {
	ctx, span := m.tracer.Start(ctx, "memflow.GetRelevantContext",
		trace.WithAttributes(attribute.Int("memflow.max_entries", maxEntries)))
	defer span.End()

	cfg := m.currentCfg()
	if maxEntries <= 0 {
		maxEntries = cfg.Context.MaxEntries
	}

	var (
		recent []*types.MemoryEntry
		found  []SearchResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recent = m.shortTerm.GetRecent(maxEntries)
		return nil
	})
	g.Go(func() error {
		found = m.longTerm.Search(gctx, query, SearchOptions{Limit: maxEntries})
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := m.assembler.Merge(recent, found, maxEntries)
	span.SetAttributes(attribute.Int("memflow.context_entries", len(merged)))
	return merged, nil
}

// GetConversationContext 返回最近 n 轮对话（从旧到新）
func (m *Manager) GetConversationContext(n int) []*types.ConversationTurn {
	return m.shortTerm.RecentTurns(n)
}

// GetEntry 按 ID 获取条目，先查长期层（晋升后的权威副本），再查短期层
func (m *Manager) GetEntry(ctx context.Context, id string) (*types.MemoryEntry, error) {
	if m.longTerm.Has(id) {
		return m.longTerm.Get(ctx, id)
	}
	return m.shortTerm.Get(id)
}

// ConsolidateNow 手动触发一个巩固周期
// Coalesces with an in-flight cycle instead of queuing behind it.
func (m *Manager) ConsolidateNow(ctx context.Context) (CycleResult, error) {
	ctx, span := m.tracer.Start(ctx, "memflow.ConsolidateNow")
	defer span.End()
	return m.consolidator.RunCycle(ctx)
}

// CleanupMemories 清理两层中的过期低价值条目
// retention <= 0 falls back to the configured retention window.
func (m *Manager) CleanupMemories(ctx context.Context, retention time.Duration) (CleanupResult, error) {
	ctx, span := m.tracer.Start(ctx, "memflow.CleanupMemories")
	defer span.End()

	cfg := m.currentCfg()
	if retention <= 0 {
		retention = cfg.LongTerm.Retention()
	}

	var result CleanupResult
	result.ShortTermSwept = m.shortTerm.SweepExpired()

	removed, err := m.longTerm.Cleanup(ctx, retention,
		cfg.LongTerm.KeepMinAccessCount, cfg.LongTerm.KeepMinImportance)
	result.LongTermRemoved = removed
	return result, err
}

// ClearShortTerm 清空短期层，长期层不受影响
func (m *Manager) ClearShortTerm() {
	m.shortTerm.Clear()
}

// GetMemoryStats 返回整体统计快照
func (m *Manager) GetMemoryStats() Stats {
	return Stats{
		InstanceID:         m.instanceID,
		ShortTerm:          m.shortTerm.Stats(),
		LongTerm:           m.longTerm.Stats(),
		ConsolidationState: m.consolidator.State().String(),
		ConsolidationCycle: m.consolidator.Cycle(),
		LastConsolidation:  m.consolidator.LastRun(),
	}
}

// InstanceID 本实例唯一标识
func (m *Manager) InstanceID() string {
	return m.instanceID
}
