package memory

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/types"
)

// ShortTermStore 短期记忆存储：容量受限、带 TTL 的近期交互缓存
// Bounded TTL cache for recent interaction context. Eviction is
// least-recently-accessed first; expiry is lazy on read plus an explicit
// sweep invoked by the consolidation cycle.
type ShortTermStore struct {
	mu       sync.Mutex
	entries  map[string]*types.MemoryEntry
	capacity int
	ttl      time.Duration

	turns    []*types.ConversationTurn
	maxTurns int

	logger    *zap.Logger
	collector *metrics.Collector
	now       func() time.Time
}

// NewShortTermStore 创建短期记忆存储
func NewShortTermStore(cfg config.ShortTermConfig, logger *zap.Logger, collector *metrics.Collector) *ShortTermStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShortTermStore{
		entries:   make(map[string]*types.MemoryEntry),
		capacity:  cfg.Capacity,
		ttl:       cfg.TTL,
		maxTurns:  cfg.ConversationHistory,
		logger:    logger.With(zap.String("component", "short_term_store")),
		collector: collector,
		now:       time.Now,
	}
}

// Add 添加记忆条目，返回条目 ID
// Importance is clamped to [0,1]. When the store is at capacity the entry
// with the oldest effective access time is evicted first.
func (s *ShortTermStore) Add(entry *types.MemoryEntry) string {
	now := s.now()
	e := entry.Clone()
	if e.ID == "" {
		e.ID = types.NewEntryID(e.Type)
	}
	e.Importance = types.ClampImportance(e.Importance)
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, replacing := s.entries[e.ID]; !replacing && s.capacity > 0 && len(s.entries) >= s.capacity {
		s.evictOldestLocked()
	}
	s.entries[e.ID] = e

	s.logger.Debug("短期记忆已添加 short-term entry added",
		zap.String("entry_id", e.ID),
		zap.String("type", string(e.Type)),
		zap.Float64("importance", e.Importance))
	return e.ID
}

// evictOldestLocked removes the entry with the earliest effective access
// time. Caller holds s.mu.
func (s *ShortTermStore) evictOldestLocked() {
	var victim string
	var oldest time.Time
	for id, e := range s.entries {
		at := e.EffectiveLastAccess()
		if victim == "" || at.Before(oldest) {
			victim, oldest = id, at
		}
	}
	if victim != "" {
		delete(s.entries, victim)
		s.collector.EvictionObserved()
		s.logger.Debug("短期记忆容量淘汰 capacity eviction", zap.String("entry_id", victim))
	}
}

// Get 获取单个条目并更新访问元数据
func (s *ShortTermStore) Get(id string) (*types.MemoryEntry, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, types.NotFoundError(id)
	}
	if s.expiredLocked(e, now) {
		delete(s.entries, id)
		return nil, types.NotFoundError(id)
	}
	s.touchLocked(e, now)
	return e.Clone(), nil
}

// GetRecent 获取最近的 n 条未过期条目（从新到旧），不改变访问元数据
// Pure read: repeated calls without intervening writes return identical
// results.
func (s *ShortTermStore) GetRecent(n int) []*types.MemoryEntry {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	live := make([]*types.MemoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if !s.expiredLocked(e, now) {
			live = append(live, e)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		if !live[i].Timestamp.Equal(live[j].Timestamp) {
			return live[i].Timestamp.After(live[j].Timestamp)
		}
		return live[i].ID > live[j].ID
	})
	if n > 0 && len(live) > n {
		live = live[:n]
	}
	out := make([]*types.MemoryEntry, len(live))
	for i, e := range live {
		out[i] = e.Clone()
	}
	return out
}

// Snapshot 返回全部条目的副本，供巩固引擎扫描
// Expired entries that have not been swept yet are included on purpose:
// promotion precedes pruning within a cycle, so a valuable entry that aged
// past TTL still gets considered before the sweep removes it.
func (s *ShortTermStore) Snapshot() []*types.MemoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.MemoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Clone())
	}
	return out
}

// MarkPromoted records that the entry's canonical copy now lives in the
// long-term tier. Returns false when the entry has already been evicted or
// swept; that is not an error, the long-term copy stands on its own.
func (s *ShortTermStore) MarkPromoted(id string, info types.PromotionInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	cp := info
	e.Metadata.Promotion = &cp
	return true
}

// SweepExpired 清除所有已过期条目，返回清除数量
func (s *ShortTermStore) SweepExpired() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for id, e := range s.entries {
		if s.expiredLocked(e, now) {
			delete(s.entries, id)
			swept++
		}
	}
	if swept > 0 {
		s.collector.SweepObserved(swept)
		s.logger.Debug("短期记忆过期清理 expired entries swept", zap.Int("count", swept))
	}
	return swept
}

// Clear 清空短期记忆与会话历史
func (s *ShortTermStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*types.MemoryEntry)
	s.turns = nil
	s.logger.Info("短期记忆已清空 short-term tier cleared")
}

// Len 当前未过期条目数
func (s *ShortTermStore) Len() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if !s.expiredLocked(e, now) {
			n++
		}
	}
	return n
}

// AddTurn 记录一轮完整对话
func (s *ShortTermStore) AddTurn(turn *types.ConversationTurn) {
	t := *turn
	if t.TurnID == "" {
		t.TurnID = types.NewTurnID()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, &t)
	if s.maxTurns > 0 && len(s.turns) > s.maxTurns {
		s.turns = s.turns[len(s.turns)-s.maxTurns:]
	}
}

// RecentTurns 返回最近 n 轮对话（从旧到新），n<=0 时返回全部
func (s *ShortTermStore) RecentTurns(n int) []*types.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.turns
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]*types.ConversationTurn, len(turns))
	for i, t := range turns {
		cp := *t
		out[i] = &cp
	}
	return out
}

// Reconfigure 应用热更新后的容量与 TTL
// Shrinking below the current size evicts oldest-access entries immediately.
func (s *ShortTermStore) Reconfigure(cfg config.ShortTermConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.capacity = cfg.Capacity
	s.ttl = cfg.TTL
	s.maxTurns = cfg.ConversationHistory
	for s.capacity > 0 && len(s.entries) > s.capacity {
		s.evictOldestLocked()
	}
	if s.maxTurns > 0 && len(s.turns) > s.maxTurns {
		s.turns = s.turns[len(s.turns)-s.maxTurns:]
	}
	s.logger.Info("短期记忆配置已更新 short-term policy reconfigured",
		zap.Int("capacity", s.capacity),
		zap.Duration("ttl", s.ttl))
}

// Stats 短期层统计
func (s *ShortTermStore) Stats() TierStats {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	st := TierStats{ByType: make(map[types.MemoryType]int)}
	var importanceSum float64
	for _, e := range s.entries {
		if s.expiredLocked(e, now) {
			continue
		}
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
	st.ConversationTurns = len(s.turns)
	return st
}

func (s *ShortTermStore) expiredLocked(e *types.MemoryEntry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.Timestamp) > s.ttl
}

func (s *ShortTermStore) touchLocked(e *types.MemoryEntry, now time.Time) {
	e.AccessCount++
	e.Importance = Reweight(e.Importance, e.AccessCount, now.Sub(e.EffectiveLastAccess()))
	e.LastAccessed = now
}
