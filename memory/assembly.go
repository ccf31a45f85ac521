package memory

import (
	"sort"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/types"
)

// 上下文装配：合并双层检索结果并按相关性排序

// Tier labels carried on assembled context entries.
const (
	TierShortTerm = "short_term"
	TierLongTerm  = "long_term"
)

// ContextEntry 装配后的上下文条目
type ContextEntry struct {
	Entry *types.MemoryEntry `json:"entry"`
	// Score is the merged relevance used for ordering: recency rank for
	// short-term entries, weighted relevance and importance for
	// long-term results.
	Score float64 `json:"score"`
	Tier  string  `json:"tier"`
}

// TokenCounter counts prompt tokens for the budget cut-off.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (t *tiktokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Assembler merges short-term recency results with long-term relevance
// results into a single ranked, deduplicated context slice.
type Assembler struct {
	mu              sync.Mutex
	maxEntries      int
	tokenBudget     int
	relevanceWeight float64
	counter         TokenCounter
	logger          *zap.Logger
}

// NewAssembler 创建上下文装配器
// A zero token budget disables token counting entirely; otherwise the
// configured encoding is loaded lazily on first use.
func NewAssembler(cfg config.ContextConfig, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Assembler{
		maxEntries:      cfg.MaxEntries,
		tokenBudget:     cfg.TokenBudget,
		relevanceWeight: cfg.RelevanceWeight,
		logger:          logger.With(zap.String("component", "context_assembler")),
	}
	if cfg.TokenBudget > 0 {
		enc, err := tiktoken.GetEncoding(cfg.TokenEncoding)
		if err != nil {
			logger.Warn("分词器加载失败，禁用令牌预算 token encoding unavailable, budget disabled",
				zap.String("encoding", cfg.TokenEncoding), zap.Error(err))
			a.tokenBudget = 0
		} else {
			a.counter = &tiktokenCounter{enc: enc}
		}
	}
	return a
}

// WithCounter 替换令牌计数器，主要用于测试
func (a *Assembler) WithCounter(c TokenCounter) *Assembler {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counter = c
	return a
}

// Merge 合并两层结果
// Short-term entries score by recency rank so the freshest context leads at
// equal relevance. A promoted entry present in both tiers appears once: the
// long-term copy is canonical, but it inherits the better of the two scores.
func (a *Assembler) Merge(recent []*types.MemoryEntry, found []SearchResult, maxEntries int) []ContextEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	if maxEntries <= 0 {
		maxEntries = a.maxEntries
	}

	merged := make(map[string]*ContextEntry, len(recent)+len(found))
	order := make([]string, 0, len(recent)+len(found))

	for i, e := range recent {
		score := 1 - float64(i)/float64(len(recent))
		merged[e.ID] = &ContextEntry{Entry: e, Score: score, Tier: TierShortTerm}
		order = append(order, e.ID)
	}
	for _, r := range found {
		score := a.relevanceWeight*r.Relevance + (1-a.relevanceWeight)*r.Entry.Importance
		if r.Degraded {
			score = (1 - a.relevanceWeight) * r.Entry.Importance
		}
		if prior, ok := merged[r.Entry.ID]; ok {
			// Canonical data from the durable tier, best score from
			// either, short-term tier label kept for tie ordering.
			prior.Entry = r.Entry
			if score > prior.Score {
				prior.Score = score
			}
			continue
		}
		merged[r.Entry.ID] = &ContextEntry{Entry: r.Entry, Score: score, Tier: TierLongTerm}
		order = append(order, r.Entry.ID)
	}

	out := make([]ContextEntry, 0, len(order))
	for _, id := range order {
		out = append(out, *merged[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		// Short-term wins ties so fresh context is never shadowed by
		// an equally scored archive hit.
		return out[i].Tier == TierShortTerm && out[j].Tier != TierShortTerm
	})
	if len(out) > maxEntries {
		out = out[:maxEntries]
	}
	return a.applyBudget(out)
}

// applyBudget truncates the assembled slice at the configured token budget.
// The first entry is always kept even when it alone exceeds the budget;
// returning empty context for a long but relevant memory helps nobody.
func (a *Assembler) applyBudget(entries []ContextEntry) []ContextEntry {
	if a.tokenBudget <= 0 || a.counter == nil {
		return entries
	}
	total := 0
	for i, ce := range entries {
		total += a.counter.Count(ce.Entry.Content)
		if total > a.tokenBudget && i > 0 {
			a.logger.Debug("令牌预算截断 context truncated at token budget",
				zap.Int("kept", i), zap.Int("budget", a.tokenBudget))
			return entries[:i]
		}
	}
	return entries
}

// Reconfigure 应用热更新后的装配参数
// The token encoding is structural and keeps its original counter.
func (a *Assembler) Reconfigure(cfg config.ContextConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maxEntries = cfg.MaxEntries
	a.relevanceWeight = cfg.RelevanceWeight
	if a.counter != nil {
		a.tokenBudget = cfg.TokenBudget
	}
}
