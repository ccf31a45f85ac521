package memory

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// Merge invariants that must hold for any combination of tier results:
// no duplicate ids, never more than maxEntries, scores weakly descending.
func TestAssembler_MergeInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	genEntries := func(prefix string) gopter.Gen {
		return gen.IntRange(0, 10).Map(func(n int) []*types.MemoryEntry {
			out := make([]*types.MemoryEntry, n)
			for i := range out {
				out[i] = &types.MemoryEntry{
					ID:         fmt.Sprintf("%s_%d", prefix, i),
					Content:    "entry",
					Type:       types.MemoryFactual,
					Importance: float64(i%10) / 10,
				}
			}
			return out
		})
	}

	properties.Property("merged context is deduplicated, bounded and ordered", prop.ForAll(
		func(recent []*types.MemoryEntry, longCount int, overlap int, maxEntries int) bool {
			found := make([]SearchResult, 0, longCount+overlap)
			for i := 0; i < longCount; i++ {
				found = append(found, SearchResult{
					Entry:     &types.MemoryEntry{ID: fmt.Sprintf("fact_%d", i), Content: "entry", Type: types.MemoryFactual, Importance: float64(i%10) / 10},
					Relevance: float64((i*7)%10) / 10,
				})
			}
			// Overlap simulates promoted entries visible in both tiers.
			for i := 0; i < overlap && i < len(recent); i++ {
				found = append(found, SearchResult{Entry: recent[i].Clone(), Relevance: 0.5})
			}

			a := NewAssembler(assemblerCfg(), zap.NewNop())
			merged := a.Merge(recent, found, maxEntries)

			if len(merged) > maxEntries {
				return false
			}
			seen := make(map[string]bool, len(merged))
			for i, ce := range merged {
				if seen[ce.Entry.ID] {
					return false
				}
				seen[ce.Entry.ID] = true
				if i > 0 && merged[i-1].Score < ce.Score {
					return false
				}
			}
			return true
		},
		genEntries("conv"),
		gen.IntRange(0, 10),
		gen.IntRange(0, 5),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}
