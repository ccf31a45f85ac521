package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/types"
)

// CycleState 巩固周期所处阶段
type CycleState int32

const (
	StateIdle CycleState = iota
	StateScanning
	StatePromoting
	StatePruning
)

func (s CycleState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StatePromoting:
		return "promoting"
	case StatePruning:
		return "pruning"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// 晋升原因，写入条目元数据并作为指标标签
const (
	PromoteReasonImportance   = "importance"
	PromoteReasonConfidence   = "confidence"
	PromoteReasonFrequency    = "frequency"
	PromoteReasonLongResponse = "long_response"
)

// CycleResult 单个巩固周期的结果
type CycleResult struct {
	Cycle    uint64        `json:"cycle"`
	Scanned  int           `json:"scanned"`
	Promoted int           `json:"promoted"`
	Failed   int           `json:"failed"`
	Swept    int           `json:"swept"`
	Duration time.Duration `json:"duration"`
}

// Consolidator 巩固引擎：周期性扫描短期层并晋升合格条目
// At most one cycle runs at a time. Timer ticks and manual triggers that
// arrive while a cycle is in flight are coalesced into a no-op rather than
// queued.
type Consolidator struct {
	shortTerm *ShortTermStore
	longTerm  *LongTermStore

	policyMu sync.RWMutex
	policy   config.ConsolidationConfig

	state    atomic.Int32
	cycle    atomic.Uint64
	inFlight atomic.Bool
	lastRun  atomic.Int64 // unix nanos of the last completed cycle

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	logger    *zap.Logger
	collector *metrics.Collector
	now       func() time.Time
}

// NewConsolidator 创建巩固引擎
func NewConsolidator(shortTerm *ShortTermStore, longTerm *LongTermStore, policy config.ConsolidationConfig, logger *zap.Logger, collector *metrics.Collector) *Consolidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consolidator{
		shortTerm: shortTerm,
		longTerm:  longTerm,
		policy:    policy,
		logger:    logger.With(zap.String("component", "consolidator")),
		collector: collector,
		now:       time.Now,
	}
}

// Start 启动后台巩固循环，重复调用无效果
func (c *Consolidator) Start() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.loop(c.stopCh, c.doneCh)
	c.logger.Info("巩固引擎已启动 consolidation loop started",
		zap.Duration("interval", c.currentPolicy().Interval))
}

// Stop 停止后台循环并等待在途周期结束
func (c *Consolidator) Stop() {
	c.runMu.Lock()
	if !c.running {
		c.runMu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	done := c.doneCh
	c.runMu.Unlock()

	<-done
	c.logger.Info("巩固引擎已停止 consolidation loop stopped")
}

func (c *Consolidator) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(c.currentPolicy().Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if _, err := c.RunCycle(context.Background()); err != nil {
				c.logger.Warn("巩固周期出现错误 consolidation cycle had errors", zap.Error(err))
			}
			// Interval may have been hot-reloaded since the last tick.
			ticker.Reset(c.currentPolicy().Interval)
		}
	}
}

// RunCycle 立即执行一个巩固周期
// When a cycle is already in flight the call coalesces: it returns
// immediately with the zero result and no error instead of queuing a second
// cycle.
func (c *Consolidator) RunCycle(ctx context.Context) (CycleResult, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.logger.Debug("巩固周期进行中，触发被合并 cycle in flight, trigger coalesced")
		return CycleResult{}, nil
	}
	defer c.inFlight.Store(false)
	defer c.state.Store(int32(StateIdle))

	start := c.now()
	result := CycleResult{Cycle: c.cycle.Add(1)}
	policy := c.currentPolicy()

	// Scanning: snapshot the short-term tier and select candidates.
	c.state.Store(int32(StateScanning))
	snapshot := c.shortTerm.Snapshot()
	result.Scanned = len(snapshot)

	candidates := make([]*types.MemoryEntry, 0, len(snapshot))
	for _, e := range snapshot {
		if e.Metadata.Promoted() {
			continue
		}
		if c.promotionReason(e, policy) != "" {
			candidates = append(candidates, e)
		}
	}

	// Promoting: write candidates through to the durable tier.
	c.state.Store(int32(StatePromoting))
	reasons := make(map[string]string, len(candidates))
	for _, e := range candidates {
		reasons[e.ID] = c.promotionReason(e, policy)
	}
	reason := func(e *types.MemoryEntry) string { return reasons[e.ID] }
	inserted, promotedIDs, err := c.longTerm.ConsolidateFrom(ctx, candidates, reason, result.Cycle)
	result.Promoted = inserted
	result.Failed = len(candidates) - len(promotedIDs)

	for _, id := range promotedIDs {
		c.shortTerm.MarkPromoted(id, types.PromotionInfo{
			PromotedAt: c.now(),
			Reason:     reasons[id],
			Cycle:      result.Cycle,
		})
	}

	// Pruning: drop expired short-term entries.
	c.state.Store(int32(StatePruning))
	result.Swept = c.shortTerm.SweepExpired()

	end := c.now()
	result.Duration = end.Sub(start)
	c.lastRun.Store(end.UnixNano())
	c.collector.CycleObserved(result.Promoted, result.Swept, result.Duration)
	c.logger.Info("巩固周期完成 consolidation cycle finished",
		zap.Uint64("cycle", result.Cycle),
		zap.Int("scanned", result.Scanned),
		zap.Int("promoted", result.Promoted),
		zap.Int("failed", result.Failed),
		zap.Int("swept", result.Swept),
		zap.Duration("duration", result.Duration))
	return result, err
}

// promotionReason returns the first matching promotion criterion, or ""
// when the entry does not qualify.
func (c *Consolidator) promotionReason(e *types.MemoryEntry, policy config.ConsolidationConfig) string {
	if e.Importance >= policy.ImportanceThreshold {
		return PromoteReasonImportance
	}
	if e.Metadata.ConfidenceOr(0) >= policy.ConfidenceThreshold {
		return PromoteReasonConfidence
	}
	if e.AccessCount > policy.FrequencyThreshold {
		return PromoteReasonFrequency
	}
	if e.Type == types.MemoryConversation && len(e.Content) > policy.LongResponseBytes {
		return PromoteReasonLongResponse
	}
	return ""
}

// State 当前周期阶段
func (c *Consolidator) State() CycleState {
	return CycleState(c.state.Load())
}

// Cycle 已完成（或进行中）的周期序号
func (c *Consolidator) Cycle() uint64 {
	return c.cycle.Load()
}

// LastRun 最近一次完成的周期时间，尚未运行过时为零值
func (c *Consolidator) LastRun() time.Time {
	ns := c.lastRun.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Reconfigure 应用热更新后的巩固策略，下一个周期生效
func (c *Consolidator) Reconfigure(policy config.ConsolidationConfig) {
	c.policyMu.Lock()
	c.policy = policy
	c.policyMu.Unlock()
	c.logger.Info("巩固策略已更新 consolidation policy reconfigured",
		zap.Duration("interval", policy.Interval),
		zap.Float64("importance_threshold", policy.ImportanceThreshold))
}

func (c *Consolidator) currentPolicy() config.ConsolidationConfig {
	c.policyMu.RLock()
	defer c.policyMu.RUnlock()
	return c.policy
}
