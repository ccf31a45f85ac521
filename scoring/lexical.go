package scoring

import (
	"context"
	"strings"
)

// Lexical is the default scorer: case-insensitive term overlap between the
// query and candidate content. It needs no external services and never fails,
// which makes it the safe fallback for deployments without an embedding
// collaborator.
type Lexical struct{}

// NewLexical returns a lexical overlap scorer.
func NewLexical() *Lexical {
	return &Lexical{}
}

func (l *Lexical) Score(ctx context.Context, query string, candidates []Candidate) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	terms := strings.Fields(strings.ToLower(query))
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scores[i] = overlap(terms, strings.ToLower(c.Content))
	}
	return scores, nil
}

// overlap returns the fraction of query terms present in content, with a
// bonus when the full query occurs as a contiguous substring.
func overlap(terms []string, content string) float64 {
	if len(terms) == 0 {
		return 0
	}

	matched := 0
	for _, term := range terms {
		if strings.Contains(content, term) {
			matched++
		}
	}
	score := float64(matched) / float64(len(terms))

	if matched == len(terms) && strings.Contains(content, strings.Join(terms, " ")) {
		score = score*0.8 + 0.2
	}

	if score > 1 {
		score = 1
	}
	return score
}

var _ Scorer = (*Lexical)(nil)
