package memory

import (
	"math"
	"time"

	"github.com/BaSui01/memflow/types"
)

// 重要性计算：纯函数，便于属性测试
// Importance arithmetic. All functions here are pure so the scoring policy
// can be exercised exhaustively without a store behind it.

const (
	// reconsolidationBump is added when an already-promoted entry
	// qualifies for promotion again.
	reconsolidationBump = 0.1

	// accessBoostScale controls how strongly repeated access raises
	// importance; the log keeps heavily accessed entries from pinning
	// themselves at 1.0 too quickly.
	accessBoostScale = 0.02

	// boostHalfLife halves the access boost for entries that have sat
	// untouched this long before being read again.
	boostHalfLife = 24 * time.Hour

	// longResponseSaturation is the response length at which the length
	// signal of a conversation turn saturates.
	longResponseSaturation = 2000
)

// Reweight recomputes an entry's importance after an access. The result is
// non-decreasing in accessCount and always within [0,1]; a long gap since
// the previous access shrinks the boost but never pushes importance below
// its current value.
func Reweight(importance float64, accessCount int, sinceLastAccess time.Duration) float64 {
	if accessCount < 0 {
		accessCount = 0
	}
	decay := 1.0
	if sinceLastAccess > 0 {
		decay = math.Exp2(-sinceLastAccess.Hours() / boostHalfLife.Hours())
	}
	boost := accessBoostScale * math.Log1p(float64(accessCount)) * decay
	return types.ClampImportance(importance + boost)
}

// ReconsolidationBump raises importance for an entry promoted a second time.
func ReconsolidationBump(importance float64) float64 {
	return types.ClampImportance(importance + reconsolidationBump)
}

// TurnImportance derives the importance of a conversation turn from the
// assistant's explicit confidence blended with a length heuristic: long
// substantive responses matter more than one-liners at equal confidence.
func TurnImportance(confidence float64, responseLen int) float64 {
	if responseLen < 0 {
		responseLen = 0
	}
	lengthSignal := math.Min(1, float64(responseLen)/longResponseSaturation)
	return types.ClampImportance(0.8*confidence + 0.2*lengthSignal)
}
