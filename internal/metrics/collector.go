// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
// A nil *Collector is valid and records nothing, so metrics stay optional in
// embedded use.
type Collector struct {
	// 巩固指标
	consolidationCycles   prometheus.Counter
	cycleDuration         prometheus.Histogram
	promotionsTotal       *prometheus.CounterVec
	promotionFailures     prometheus.Counter
	reconsolidationsTotal prometheus.Counter

	// 短期层指标
	evictionsTotal prometheus.Counter
	sweptTotal     prometheus.Counter

	// 检索指标
	searchFallbacks prometheus.Counter

	logger *zap.Logger
}

// NewCollector 创建指标收集器
// Metrics register against the given registerer; pass
// prometheus.DefaultRegisterer for production use and a fresh registry in
// tests.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 巩固指标
	c.consolidationCycles = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consolidation_cycles_total",
			Help:      "Completed consolidation cycles",
		},
	)
	c.cycleDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "consolidation_cycle_duration_seconds",
			Help:      "Wall time of a consolidation cycle",
			Buckets:   prometheus.DefBuckets,
		},
	)
	c.promotionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotions_total",
			Help:      "Entries promoted to the long-term tier",
		},
		[]string{"reason"},
	)
	c.promotionFailures = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotion_failures_total",
			Help:      "Promotions that failed to persist",
		},
	)
	c.reconsolidationsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconsolidations_total",
			Help:      "Already-promoted entries that qualified again",
		},
	)

	// 短期层指标
	c.evictionsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "short_term_evictions_total",
			Help:      "Entries evicted from the short-term tier at capacity",
		},
	)
	c.sweptTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "short_term_swept_total",
			Help:      "Expired entries removed by sweeps",
		},
	)

	// 检索指标
	c.searchFallbacks = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_fallbacks_total",
			Help:      "Searches served by importance ordering because the scorer was unavailable",
		},
	)

	c.logger.Info("指标收集器已初始化 metrics collector initialized",
		zap.String("namespace", namespace))
	return c
}

// CycleObserved 记录一次巩固周期
func (c *Collector) CycleObserved(promoted, swept int, duration time.Duration) {
	if c == nil {
		return
	}
	c.consolidationCycles.Inc()
	c.cycleDuration.Observe(duration.Seconds())
}

// PromotionObserved 记录一次成功晋升
func (c *Collector) PromotionObserved(reason string) {
	if c == nil {
		return
	}
	c.promotionsTotal.WithLabelValues(reason).Inc()
}

// PromotionFailureObserved 记录一次晋升持久化失败
func (c *Collector) PromotionFailureObserved() {
	if c == nil {
		return
	}
	c.promotionFailures.Inc()
}

// ReconsolidationObserved 记录一次再巩固
func (c *Collector) ReconsolidationObserved() {
	if c == nil {
		return
	}
	c.reconsolidationsTotal.Inc()
}

// EvictionObserved 记录一次容量淘汰
func (c *Collector) EvictionObserved() {
	if c == nil {
		return
	}
	c.evictionsTotal.Inc()
}

// SweepObserved 记录一次过期清理
func (c *Collector) SweepObserved(count int) {
	if c == nil {
		return
	}
	c.sweptTotal.Add(float64(count))
}

// SearchFallbackObserved 记录一次评分降级
func (c *Collector) SearchFallbackObserved() {
	if c == nil {
		return
	}
	c.searchFallbacks.Inc()
}
