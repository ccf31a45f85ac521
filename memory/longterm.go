package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/scoring"
	"github.com/BaSui01/memflow/storage"
	"github.com/BaSui01/memflow/types"
)

// LongTermStore 长期记忆存储：持久化 + 内存索引
// Durable tier. Every mutation reaches the backing store before the
// in-memory index is updated, so a reader never observes an entry that would
// not survive a restart.
type LongTermStore struct {
	mu    sync.RWMutex
	index map[string]*types.MemoryEntry

	store          storage.Store
	scorer         scoring.Scorer
	indexer        scoring.Indexer // non-nil when the scorer maintains its own index
	scoringTimeout time.Duration
	searchLimit    int

	corrupt   int
	logger    *zap.Logger
	collector *metrics.Collector
	now       func() time.Time
}

// SearchOptions 检索过滤条件
type SearchOptions struct {
	// Limit caps the number of results; 0 falls back to the configured
	// search limit.
	Limit int
	// Type restricts results to a single memory type when non-empty.
	Type types.MemoryType
	// MinImportance drops results below this importance.
	MinImportance float64
}

// SearchResult 单条检索结果及其相关性得分
type SearchResult struct {
	Entry *types.MemoryEntry
	// Relevance is the scorer's similarity in [0,1]. When the scorer was
	// unavailable and the store fell back to importance ordering,
	// Degraded is true and Relevance is 0.
	Relevance float64
	Degraded  bool
}

// NewLongTermStore 创建长期记忆存储并从持久层重建索引
// Corrupt records found during rebuild are skipped and counted, never fatal.
func NewLongTermStore(ctx context.Context, store storage.Store, scorer scoring.Scorer, cfg config.LongTermConfig, logger *zap.Logger, collector *metrics.Collector) (*LongTermStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	lt := &LongTermStore{
		index:          make(map[string]*types.MemoryEntry),
		store:          store,
		scorer:         scorer,
		scoringTimeout: cfg.ScoringTimeout,
		searchLimit:    cfg.SearchLimit,
		logger:         logger.With(zap.String("component", "long_term_store")),
		collector:      collector,
		now:            time.Now,
	}
	if ix, ok := scorer.(scoring.Indexer); ok {
		lt.indexer = ix
	}

	entries, corrupt, err := store.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	lt.corrupt = corrupt
	for _, e := range entries {
		lt.index[e.ID] = e
		lt.reindex(ctx, e)
	}
	lt.logger.Info("长期记忆索引已重建 long-term index rebuilt",
		zap.Int("entries", len(entries)),
		zap.Int("corrupt_records", corrupt))
	return lt, nil
}

// Add 持久化并索引一条长期记忆
// The durable write happens first; on persistence failure the index is left
// untouched and the error carries ErrPersistenceFailure.
func (l *LongTermStore) Add(ctx context.Context, entry *types.MemoryEntry) error {
	e := entry.Clone()
	if e.ID == "" {
		e.ID = types.NewEntryID(e.Type)
	}
	e.Importance = types.ClampImportance(e.Importance)
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Write(ctx, e); err != nil {
		return err
	}
	l.index[e.ID] = e
	l.reindex(ctx, e)
	return nil
}

// Get 按 ID 获取，更新访问元数据
func (l *LongTermStore) Get(ctx context.Context, id string) (*types.MemoryEntry, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.index[id]
	if !ok {
		return nil, types.NotFoundError(id)
	}
	l.touchLocked(ctx, e, now)
	return e.Clone(), nil
}

// Has 报告条目是否存在，不更新访问元数据
func (l *LongTermStore) Has(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.index[id]
	return ok
}

// Search 相关性检索
// The scorer runs under the configured timeout against a snapshot of
// candidates taken without holding the lock across the call. When the scorer
// fails or times out, results degrade to importance ordering instead of
// erroring.
func (l *LongTermStore) Search(ctx context.Context, query string, opts SearchOptions) []SearchResult {
	l.mu.RLock()
	limit := opts.Limit
	if limit <= 0 {
		limit = l.searchLimit
	}
	timeout := l.scoringTimeout
	snapshot := make([]*types.MemoryEntry, 0, len(l.index))
	for _, e := range l.index {
		if opts.Type != "" && e.Type != opts.Type {
			continue
		}
		if e.Importance < opts.MinImportance {
			continue
		}
		snapshot = append(snapshot, e.Clone())
	}
	l.mu.RUnlock()

	if len(snapshot) == 0 {
		return nil
	}

	results := l.rank(ctx, query, snapshot, limit, timeout)

	// Access metadata updates after selection, matching the get path.
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Entry.ID
	}
	l.touchAll(ctx, ids)
	return results
}

func (l *LongTermStore) rank(ctx context.Context, query string, snapshot []*types.MemoryEntry, limit int, timeout time.Duration) []SearchResult {
	candidates := make([]scoring.Candidate, len(snapshot))
	for i, e := range snapshot {
		candidates[i] = scoring.Candidate{ID: e.ID, Content: e.Content}
	}

	scoreCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		scoreCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	scores, err := l.scorer.Score(scoreCtx, query, candidates)
	if err != nil || len(scores) != len(snapshot) {
		if err != nil {
			l.logger.Warn("相关性评分不可用，回退到重要性排序 scorer unavailable, falling back to importance order",
				zap.Error(err))
		}
		l.collector.SearchFallbackObserved()
		return fallbackRank(snapshot, limit)
	}

	results := make([]SearchResult, len(snapshot))
	for i, e := range snapshot {
		results[i] = SearchResult{Entry: e, Relevance: scores[i]}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		if results[i].Entry.Importance != results[j].Entry.Importance {
			return results[i].Entry.Importance > results[j].Entry.Importance
		}
		return results[i].Entry.Timestamp.After(results[j].Entry.Timestamp)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	// Drop zero-relevance tail so unrelated memories do not pad the
	// context window.
	for len(results) > 0 && results[len(results)-1].Relevance == 0 {
		results = results[:len(results)-1]
	}
	return results
}

func fallbackRank(snapshot []*types.MemoryEntry, limit int) []SearchResult {
	sort.SliceStable(snapshot, func(i, j int) bool {
		if snapshot[i].Importance != snapshot[j].Importance {
			return snapshot[i].Importance > snapshot[j].Importance
		}
		return snapshot[i].Timestamp.After(snapshot[j].Timestamp)
	})
	if len(snapshot) > limit {
		snapshot = snapshot[:limit]
	}
	results := make([]SearchResult, len(snapshot))
	for i, e := range snapshot {
		results[i] = SearchResult{Entry: e, Degraded: true}
	}
	return results
}

// ConsolidateFrom 批量吸收来自短期层的候选条目
// Entries whose ID already exists are treated as re-consolidation: their
// importance gets a fixed bump and the stored record is refreshed. Per-entry
// persistence failures are collected, not fatal; the returned count covers
// newly inserted entries only.
func (l *LongTermStore) ConsolidateFrom(ctx context.Context, entries []*types.MemoryEntry, reason func(*types.MemoryEntry) string, cycle uint64) (int, []string, error) {
	inserted := 0
	promoted := make([]string, 0, len(entries))
	var errs []error

	for _, entry := range entries {
		e := entry.Clone()

		l.mu.Lock()
		existing, ok := l.index[e.ID]
		if ok {
			existing.Importance = ReconsolidationBump(existing.Importance)
			existing.AccessCount++
			existing.LastAccessed = l.now()
			if err := l.store.Write(ctx, existing); err != nil {
				l.logger.Warn("再巩固持久化失败 re-consolidation persist failed",
					zap.String("entry_id", e.ID), zap.Error(err))
				errs = append(errs, err)
			}
			l.mu.Unlock()
			l.collector.ReconsolidationObserved()
			promoted = append(promoted, e.ID)
			continue
		}

		e.Metadata.Promotion = &types.PromotionInfo{
			PromotedAt: l.now(),
			Reason:     reason(entry),
			Cycle:      cycle,
		}
		if err := l.store.Write(ctx, e); err != nil {
			l.mu.Unlock()
			l.collector.PromotionFailureObserved()
			l.logger.Warn("晋升持久化失败，下轮重试 promotion persist failed, will retry next cycle",
				zap.String("entry_id", e.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		l.index[e.ID] = e
		l.reindex(ctx, e)
		l.mu.Unlock()

		inserted++
		promoted = append(promoted, e.ID)
		l.collector.PromotionObserved(e.Metadata.Promotion.Reason)
	}
	return inserted, promoted, errors.Join(errs...)
}

// Cleanup 删除超过保留期限且低价值的条目，返回删除数量
// Entries are kept past retention when they are still frequently accessed or
// important. Deletion is entry-atomic: the durable delete lands before the
// index forgets the entry.
func (l *LongTermStore) Cleanup(ctx context.Context, retention time.Duration, keepMinAccess int, keepMinImportance float64) (int, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	var errs []error
	for id, e := range l.index {
		if now.Sub(e.Timestamp) <= retention {
			continue
		}
		if e.AccessCount >= keepMinAccess || e.Importance >= keepMinImportance {
			continue
		}
		if err := l.store.Delete(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(l.index, id)
		if l.indexer != nil {
			if err := l.indexer.Remove(ctx, id); err != nil {
				l.logger.Warn("检索索引移除失败 scorer index remove failed",
					zap.String("entry_id", id), zap.Error(err))
			}
		}
		removed++
	}
	if removed > 0 {
		l.logger.Info("长期记忆保留期清理完成 retention cleanup finished",
			zap.Int("removed", removed),
			zap.Duration("retention", retention))
	}
	return removed, errors.Join(errs...)
}

// Reconfigure 应用热更新后的检索参数
func (l *LongTermStore) Reconfigure(cfg config.LongTermConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scoringTimeout = cfg.ScoringTimeout
	l.searchLimit = cfg.SearchLimit
}

// Stats 长期层统计
func (l *LongTermStore) Stats() TierStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := TierStats{ByType: make(map[types.MemoryType]int), CorruptRecords: l.corrupt}
	var importanceSum float64
	for _, e := range l.index {
		st.Total++
		st.ByType[e.Type]++
		importanceSum += e.Importance
		if st.Oldest.IsZero() || e.Timestamp.Before(st.Oldest) {
			st.Oldest = e.Timestamp
		}
		if e.Timestamp.After(st.Newest) {
			st.Newest = e.Timestamp
		}
	}
	if st.Total > 0 {
		st.AvgImportance = importanceSum / float64(st.Total)
	}
	return st
}

// Len 当前索引条目数
func (l *LongTermStore) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.index)
}

// Close 关闭底层持久化存储
func (l *LongTermStore) Close() error {
	return l.store.Close()
}

// touchLocked updates access metadata in memory and refreshes the durable
// record best-effort. A failed refresh only loses access bookkeeping, never
// the entry itself, so it is logged and swallowed.
func (l *LongTermStore) touchLocked(ctx context.Context, e *types.MemoryEntry, now time.Time) {
	e.AccessCount++
	e.Importance = Reweight(e.Importance, e.AccessCount, now.Sub(e.EffectiveLastAccess()))
	e.LastAccessed = now
	if err := l.store.Write(ctx, e); err != nil {
		l.logger.Debug("访问元数据持久化失败 access metadata refresh failed",
			zap.String("entry_id", e.ID), zap.Error(err))
	}
}

func (l *LongTermStore) touchAll(ctx context.Context, ids []string) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		if e, ok := l.index[id]; ok {
			l.touchLocked(ctx, e, now)
		}
	}
}

// reindex feeds the entry to the scorer's own index when it keeps one.
// Lexical scorers score in place and need no index maintenance.
func (l *LongTermStore) reindex(ctx context.Context, e *types.MemoryEntry) {
	if l.indexer == nil {
		return
	}
	if err := l.indexer.Index(ctx, e.ID, e.Content); err != nil {
		l.logger.Warn("检索索引更新失败 scorer index update failed",
			zap.String("entry_id", e.ID), zap.Error(err))
	}
}
