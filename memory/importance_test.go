package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestReweight_NeverDecreases(t *testing.T) {
	assert.GreaterOrEqual(t, Reweight(0.5, 3, time.Minute), 0.5)
	assert.Equal(t, 0.0, Reweight(0.0, 0, 0))
}

func TestReweight_StaleAccessBoostsLess(t *testing.T) {
	fresh := Reweight(0.5, 5, time.Minute)
	stale := Reweight(0.5, 5, 7*24*time.Hour)
	assert.Greater(t, fresh, stale)
	assert.GreaterOrEqual(t, stale, 0.5)
}

func TestReweight_Bounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		importance := rapid.Float64Range(0, 1).Draw(t, "importance")
		access := rapid.IntRange(0, 100000).Draw(t, "access")
		elapsed := time.Duration(rapid.Int64Range(0, int64(30*24*time.Hour)).Draw(t, "elapsed"))

		got := Reweight(importance, access, elapsed)
		if got < 0 || got > 1 {
			t.Fatalf("reweighted importance %v out of range", got)
		}
		if got < importance {
			t.Fatalf("reweight decreased importance: %v -> %v", importance, got)
		}
	})
}

func TestReweight_MonotoneInAccessCount(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		importance := rapid.Float64Range(0, 0.9).Draw(t, "importance")
		a := rapid.IntRange(0, 1000).Draw(t, "a")
		b := rapid.IntRange(0, 1000).Draw(t, "b")
		if a > b {
			a, b = b, a
		}
		if Reweight(importance, a, time.Hour) > Reweight(importance, b, time.Hour) {
			t.Fatalf("reweight not monotone in access count")
		}
	})
}

func TestReconsolidationBump(t *testing.T) {
	assert.InDelta(t, 0.6, ReconsolidationBump(0.5), 1e-9)
	assert.Equal(t, 1.0, ReconsolidationBump(0.95), "bump clamps at 1.0")
}

func TestTurnImportance(t *testing.T) {
	assert.InDelta(t, 0.8, TurnImportance(1.0, 0), 1e-9)
	assert.InDelta(t, 1.0, TurnImportance(1.0, 2000), 1e-9)
	assert.Equal(t, 0.0, TurnImportance(0, 0))
	assert.Greater(t, TurnImportance(0.5, 1500), TurnImportance(0.5, 10),
		"longer responses matter more at equal confidence")
}
