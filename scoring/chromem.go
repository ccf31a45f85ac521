package scoring

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// Chromem scores relevance through an embedded chromem-go vector collection.
// The embedding function is supplied by the caller (the engine never
// generates embeddings itself); with a nil function chromem falls back to its
// OpenAI default, which requires network access.
type Chromem struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *zap.Logger
	mu         sync.RWMutex
	indexed    map[string]struct{}
}

// NewChromem creates an in-memory chromem-backed scorer.
func NewChromem(embed chromem.EmbeddingFunc, logger *zap.Logger) (*Chromem, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection("memflow", nil, embed)
	if err != nil {
		return nil, fmt.Errorf("get or create collection: %w", err)
	}

	return &Chromem{
		db:         db,
		collection: col,
		logger:     logger.With(zap.String("component", "scorer_chromem")),
		indexed:    make(map[string]struct{}),
	}, nil
}

// Index adds or replaces a document in the collection.
func (c *Chromem) Index(ctx context.Context, id, content string) error {
	if err := c.collection.AddDocument(ctx, chromem.Document{ID: id, Content: content}); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	c.mu.Lock()
	c.indexed[id] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Remove deletes a document from the collection.
func (c *Chromem) Remove(ctx context.Context, id string) error {
	if err := c.collection.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	c.mu.Lock()
	delete(c.indexed, id)
	c.mu.Unlock()
	return nil
}

// Score queries the collection once and maps similarities back onto the
// candidate batch. Candidates missing from the index score zero.
func (c *Chromem) Score(ctx context.Context, query string, candidates []Candidate) ([]float64, error) {
	scores := make([]float64, len(candidates))

	c.mu.RLock()
	count := len(c.indexed)
	c.mu.RUnlock()
	if count == 0 || len(candidates) == 0 {
		return scores, nil
	}

	n := len(candidates)
	if n > count {
		n = count
	}

	results, err := c.collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, Unavailable(err)
	}

	byID := make(map[string]float64, len(results))
	for _, res := range results {
		sim := float64(res.Similarity)
		// 余弦相似度可能为负，收敛到 [0,1]。
		if sim < 0 {
			sim = 0
		}
		if sim > 1 {
			sim = 1
		}
		byID[res.ID] = sim
	}

	for i, cand := range candidates {
		scores[i] = byID[cand.ID]
	}
	return scores, nil
}

var (
	_ Scorer  = (*Chromem)(nil)
	_ Indexer = (*Chromem)(nil)
)
