// Package scoring provides the relevance-scoring capability consumed by the
// long-term memory tier. The engine treats scoring as an external
// collaborator: implementations may be local heuristics or delegate to a
// vector index, and the memory engine degrades to importance-only ordering
// whenever scoring is unavailable.
package scoring

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/BaSui01/memflow/types"
)

// Candidate is one entry offered to a Scorer.
type Candidate struct {
	ID      string
	Content string
}

// Scorer scores a query against a batch of candidates. The returned slice is
// parallel to candidates; every score lies in [0,1].
type Scorer interface {
	Score(ctx context.Context, query string, candidates []Candidate) ([]float64, error)
}

// Indexer is implemented by scorers that maintain their own index of entry
// content (e.g. a vector collection). The long-term store notifies such
// scorers on add and delete.
type Indexer interface {
	Index(ctx context.Context, id, content string) error
	Remove(ctx context.Context, id string) error
}

// ErrUnavailable is returned when the scoring collaborator cannot serve the
// request; callers fall back to importance-only ranking.
var ErrUnavailable = types.NewError(types.ErrScoringUnavailable, "relevance scoring unavailable").WithRetryable(true)

// Unavailable returns a fresh scoring-unavailable error wrapping cause.
// ErrUnavailable itself is shared and must not be mutated.
func Unavailable(cause error) *types.Error {
	return types.NewError(types.ErrScoringUnavailable, "relevance scoring unavailable").
		WithRetryable(true).
		WithCause(cause)
}

// RateLimited wraps a Scorer with a token-bucket limiter. When the limiter
// cannot admit the call within the context deadline the wrapper reports
// ErrUnavailable instead of blocking the search path.
type RateLimited struct {
	inner   Scorer
	limiter *rate.Limiter
}

// NewRateLimited wraps inner, admitting at most rps calls per second with the
// given burst.
func NewRateLimited(inner Scorer, rps float64, burst int) *RateLimited {
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimited) Score(ctx context.Context, query string, candidates []Candidate) ([]float64, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, Unavailable(err)
	}
	return r.inner.Score(ctx, query, candidates)
}

var _ Scorer = (*RateLimited)(nil)
