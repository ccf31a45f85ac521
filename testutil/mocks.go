package testutil

import (
	"context"
	"sync"

	"github.com/BaSui01/memflow/scoring"
	"github.com/BaSui01/memflow/storage"
	"github.com/BaSui01/memflow/types"
)

// FlakyStore 包装任意存储并按需注入失败
type FlakyStore struct {
	inner storage.Store

	mu        sync.Mutex
	writeErr  error
	deleteErr error
	writes    int
}

// NewFlakyStore 创建包装存储
func NewFlakyStore(inner storage.Store) *FlakyStore {
	return &FlakyStore{inner: inner}
}

// FailWrites 让后续 Write 返回给定错误，nil 恢复正常
func (f *FlakyStore) FailWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// FailDeletes 让后续 Delete 返回给定错误
func (f *FlakyStore) FailDeletes(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteErr = err
}

// WriteCount 成功写入次数
func (f *FlakyStore) WriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *FlakyStore) Write(ctx context.Context, entry *types.MemoryEntry) error {
	f.mu.Lock()
	err := f.writeErr
	f.mu.Unlock()
	if err != nil {
		return types.NewError(types.ErrPersistenceFailure, "injected write failure").WithCause(err).WithRetryable(true)
	}
	if werr := f.inner.Write(ctx, entry); werr != nil {
		return werr
	}
	f.mu.Lock()
	f.writes++
	f.mu.Unlock()
	return nil
}

func (f *FlakyStore) ReadAll(ctx context.Context) ([]*types.MemoryEntry, int, error) {
	return f.inner.ReadAll(ctx)
}

func (f *FlakyStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	err := f.deleteErr
	f.mu.Unlock()
	if err != nil {
		return types.NewError(types.ErrPersistenceFailure, "injected delete failure").WithCause(err).WithRetryable(true)
	}
	return f.inner.Delete(ctx, id)
}

func (f *FlakyStore) Close() error {
	return f.inner.Close()
}

// StaticScorer 按内容返回预设相关性分数
// Unlisted candidates score zero; a non-nil Err makes every call fail.
type StaticScorer struct {
	mu     sync.Mutex
	byID   map[string]float64
	err    error
	calls  int
	idxLog []string
}

// NewStaticScorer 创建固定评分器
func NewStaticScorer() *StaticScorer {
	return &StaticScorer{byID: make(map[string]float64)}
}

// SetScore 为指定条目设置分数
func (s *StaticScorer) SetScore(id string, score float64) *StaticScorer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[id] = score
	return s
}

// Fail 让后续 Score 调用返回给定错误
func (s *StaticScorer) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls 已执行的评分调用次数
func (s *StaticScorer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Indexed 记录过的索引条目 ID
func (s *StaticScorer) Indexed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.idxLog...)
}

func (s *StaticScorer) Score(ctx context.Context, query string, candidates []scoring.Candidate) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = s.byID[c.ID]
	}
	return scores, nil
}

func (s *StaticScorer) Index(ctx context.Context, id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idxLog = append(s.idxLog, id)
	return nil
}

func (s *StaticScorer) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range s.idxLog {
		if v == id {
			s.idxLog = append(s.idxLog[:i], s.idxLog[i+1:]...)
			break
		}
	}
	return nil
}
