package memory

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/storage"
	"github.com/BaSui01/memflow/testutil"
	"github.com/BaSui01/memflow/types"
)

func managerCfg(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.BaseDir = t.TempDir()
	return cfg
}

func newTestManager(t *testing.T, cfg *config.Config, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(testutil.TestContext(t), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop() })
	return m
}

func TestNewManager_RejectsInvalidConfig(t *testing.T) {
	cfg := managerCfg(t)
	cfg.ShortTerm.Capacity = -1

	_, err := NewManager(testutil.TestContext(t), cfg)
	require.Error(t, err)
	assert.Equal(t, types.ErrConfigurationInvalid, types.GetErrorCode(err))
}

func TestManager_AddConversationTurn(t *testing.T) {
	ctx := testutil.TestContext(t)
	m := newTestManager(t, managerCfg(t))

	id, err := m.AddConversationTurn(ctx, "What is Go?", "Go is a programming language.", TurnOptions{
		Confidence:     0.9,
		ProcessingTime: 0.2,
		ContextUsed:    []string{"fact_1", "fact_2"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "conv_"))

	entry, err := m.GetEntry(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, entry.Content, "What is Go?")
	assert.Contains(t, entry.Content, "Go is a programming language.")
	assert.InDelta(t, 0.9, entry.Metadata.ConfidenceOr(0), 1e-9)
	assert.Equal(t, []string{"fact_1", "fact_2"}, entry.Metadata.ContextUsed)

	turns := m.GetConversationContext(10)
	require.Len(t, turns, 1)
	assert.Equal(t, "What is Go?", turns[0].UserInput)

	_, err = m.AddConversationTurn(ctx, "", "", TurnOptions{})
	assert.Error(t, err)
}

func TestManager_LowSignalTurnRecordsHistoryOnly(t *testing.T) {
	ctx := testutil.TestContext(t)
	m := newTestManager(t, managerCfg(t))

	id, err := m.AddConversationTurn(ctx, "hi", "hello", TurnOptions{Confidence: 0.2})
	require.NoError(t, err)
	assert.Empty(t, id, "low-confidence short turns create no memory entry")

	assert.Len(t, m.GetConversationContext(10), 1)
	assert.Zero(t, m.GetMemoryStats().ShortTerm.Total)
}

func TestManager_LongResponseTurnCreatesEntry(t *testing.T) {
	ctx := testutil.TestContext(t)
	m := newTestManager(t, managerCfg(t))

	id, err := m.AddConversationTurn(ctx, "explain sharding", strings.Repeat("detail ", 100), TurnOptions{Confidence: 0.2})
	require.NoError(t, err)
	assert.NotEmpty(t, id, "long responses are remembered regardless of confidence")
}

func TestManager_HighConfidenceTurnSurvivesRestart(t *testing.T) {
	ctx := testutil.TestContext(t)
	cfg := managerCfg(t)
	m := newTestManager(t, cfg)

	id, err := m.AddConversationTurn(ctx, "Remember my key preference", "Noted: you prefer dark mode.", TurnOptions{
		Confidence: 0.9,
	})
	require.NoError(t, err)

	result, err := m.ConsolidateNow(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Promoted)
	require.NoError(t, m.Stop())

	reopened := newTestManager(t, cfg)
	entry, err := reopened.GetEntry(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, entry.Content, "dark mode")
	assert.Equal(t, 1, reopened.GetMemoryStats().LongTerm.Total)
}

func TestManager_AddFactBelowThresholdStaysShortTerm(t *testing.T) {
	ctx := testutil.TestContext(t)
	m := newTestManager(t, managerCfg(t))

	id, err := m.AddFact(ctx, "casual detail", "chat", 0.3, types.Metadata{})
	require.NoError(t, err)

	stats := m.GetMemoryStats()
	assert.Equal(t, 1, stats.ShortTerm.Total)
	assert.Zero(t, stats.LongTerm.Total)

	entry, err := m.GetEntry(ctx, id)
	require.NoError(t, err)
	assert.False(t, entry.Metadata.Promoted())
}

func TestManager_AddFactHighImportanceWritesThrough(t *testing.T) {
	ctx := testutil.TestContext(t)
	m := newTestManager(t, managerCfg(t))

	id, err := m.AddFact(ctx, "user is allergic to peanuts", "intake form", 0.95, types.Metadata{})
	require.NoError(t, err)

	stats := m.GetMemoryStats()
	assert.Equal(t, 1, stats.LongTerm.Total, "high-importance fact is durable immediately")

	entry, err := m.GetEntry(ctx, id)
	require.NoError(t, err)
	assert.True(t, entry.Metadata.Promoted())

	_, err = m.AddFact(ctx, "", "src", 0.9, types.Metadata{})
	assert.Error(t, err)
}

func TestManager_AddFactSurfacesPersistenceFailure(t *testing.T) {
	ctx := testutil.TestContext(t)
	flaky := testutil.NewFlakyStore(storage.NewMemoryStore())
	m := newTestManager(t, managerCfg(t), WithStore(flaky))

	flaky.FailWrites(errors.New("disk full"))
	id, err := m.AddFact(ctx, "critical fact", "src", 0.95, types.Metadata{})
	require.Error(t, err)
	assert.Equal(t, types.ErrPersistenceFailure, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))

	// The short-term copy stays behind and promotes once storage recovers.
	flaky.FailWrites(nil)
	result, cerr := m.ConsolidateNow(ctx)
	require.NoError(t, cerr)
	assert.Equal(t, 1, result.Promoted)
	entry, gerr := m.GetEntry(ctx, id)
	require.NoError(t, gerr)
	assert.Equal(t, "critical fact", entry.Content)
}

func TestManager_GetRelevantContextMergesTiers(t *testing.T) {
	ctx := testutil.TestContext(t)
	scorer := testutil.NewStaticScorer()
	m := newTestManager(t, managerCfg(t), WithScorer(scorer))

	// Durable knowledge from an earlier session.
	factID, err := m.AddFact(ctx, "user works on distributed systems", "profile", 0.9, types.Metadata{})
	require.NoError(t, err)
	scorer.SetScore(factID, 0.9)

	// Fresh conversational context.
	turnID, err := m.AddConversationTurn(ctx, "How do I shard the index?", "Split by key range.", TurnOptions{Confidence: 0.9})
	require.NoError(t, err)

	entries, err := m.GetRelevantContext(ctx, "sharding", 5)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ids := make(map[string]int)
	for _, ce := range entries {
		ids[ce.Entry.ID]++
	}
	assert.Equal(t, 1, ids[factID])
	assert.Equal(t, 1, ids[turnID])
	for _, count := range ids {
		assert.Equal(t, 1, count, "no entry may appear twice")
	}
}

func TestManager_GetRelevantContextDegradesWithoutScorer(t *testing.T) {
	ctx := testutil.TestContext(t)
	scorer := testutil.NewStaticScorer()
	m := newTestManager(t, managerCfg(t), WithScorer(scorer))

	_, err := m.AddFact(ctx, "important durable fact", "src", 0.9, types.Metadata{})
	require.NoError(t, err)

	scorer.Fail(errors.New("embedding service down"))
	entries, err := m.GetRelevantContext(ctx, "anything", 5)
	require.NoError(t, err, "scorer outage must not fail context assembly")
	assert.NotEmpty(t, entries)
}

func TestManager_CleanupMemories(t *testing.T) {
	ctx := testutil.TestContext(t)
	clock := testutil.NewManualClock(time.Now())
	m := newTestManager(t, managerCfg(t), WithClock(clock.Now))

	_, err := m.AddFact(ctx, "stale but durable", "src", 0.85, types.Metadata{})
	require.NoError(t, err)
	_, err = m.AddConversationTurn(ctx, "hello", "hi", TurnOptions{Confidence: 0.9})
	require.NoError(t, err)

	clock.Advance(400 * 24 * time.Hour)
	result, err := m.CleanupMemories(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ShortTermSwept)
	assert.Zero(t, result.LongTermRemoved, "importance above the keep threshold is retained")

	clock.Advance(time.Minute)
	result, err = m.CleanupMemories(ctx, 365*24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, result.LongTermRemoved)
}

func TestManager_ClearShortTermKeepsLongTerm(t *testing.T) {
	ctx := testutil.TestContext(t)
	m := newTestManager(t, managerCfg(t))

	_, err := m.AddFact(ctx, "durable", "src", 0.9, types.Metadata{})
	require.NoError(t, err)
	_, err = m.AddConversationTurn(ctx, "q", "a", TurnOptions{})
	require.NoError(t, err)

	m.ClearShortTerm()
	stats := m.GetMemoryStats()
	assert.Zero(t, stats.ShortTerm.Total)
	assert.Zero(t, stats.ShortTerm.ConversationTurns)
	assert.Equal(t, 1, stats.LongTerm.Total)
}

func TestManager_StatsSnapshot(t *testing.T) {
	ctx := testutil.TestContext(t)
	m := newTestManager(t, managerCfg(t))

	_, err := m.AddFact(ctx, "fact", "src", 0.4, types.Metadata{})
	require.NoError(t, err)

	stats := m.GetMemoryStats()
	assert.NotEmpty(t, stats.InstanceID)
	assert.Equal(t, m.InstanceID(), stats.InstanceID)
	assert.Equal(t, "idle", stats.ConsolidationState)
	assert.Equal(t, 1, stats.ShortTerm.ByType[types.MemoryFactual])
}

func TestManager_HotReloadAppliesPolicy(t *testing.T) {
	ctx := testutil.TestContext(t)
	m := newTestManager(t, managerCfg(t))

	_, err := m.AddFact(ctx, "borderline fact", "src", 0.5, types.Metadata{})
	require.NoError(t, err)
	result, err := m.ConsolidateNow(ctx)
	require.NoError(t, err)
	require.Zero(t, result.Promoted)

	updated := *m.currentCfg()
	updated.Consolidation.ImportanceThreshold = 0.4
	m.applyConfig(&updated)

	result, err = m.ConsolidateNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Promoted)
}

func TestManager_StartStopLifecycle(t *testing.T) {
	cfg := managerCfg(t)
	cfg.Consolidation.Interval = 10 * time.Millisecond
	m := newTestManager(t, cfg)

	m.Start()
	m.Start()

	_, err := m.AddFact(testutil.TestContext(t), "vital", "src", 0.9, types.Metadata{})
	require.NoError(t, err)
	testutil.AssertEventuallyTrue(t, func() bool {
		return m.consolidator.Cycle() > 0
	}, 2*time.Second)

	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
}

func TestManager_WithLoggerDoesNotPanic(t *testing.T) {
	cfg := managerCfg(t)
	m := newTestManager(t, cfg, WithLogger(zap.NewNop()))
	assert.NotNil(t, m)
}
