package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdaptLegacyGymKeywordHit(t *testing.T) {
	predictions := []Prediction{
		{Label: "hamper", Score: 0.05},
		{Label: "dumbbell", Score: 0.61},
		{Label: "ballpoint pen", Score: 0.02},
	}

	result, decisive, err := AdaptLegacy(predictions)
	require.NoError(t, err)

	assert.True(t, decisive)
	assert.Equal(t, "gym interior", result.Label, "keyword hit must adapt into the scene label shape")
	assert.InDelta(t, 0.61, result.Confidence, 1e-9)
	assert.Equal(t, TierLegacy, result.Tier)
}

func TestAdaptLegacyKeywordBelowRankedCut(t *testing.T) {
	// Gym gear at rank 4 still counts: the keyword check runs over the
	// pre-trim top-k.
	predictions := []Prediction{
		{Label: "window shade", Score: 0.30},
		{Label: "hardwood floor", Score: 0.25},
		{Label: "ceiling fan", Score: 0.20},
		{Label: "treadmill", Score: 0.15},
		{Label: "water bottle", Score: 0.05},
	}

	result, decisive, err := AdaptLegacy(predictions)
	require.NoError(t, err)

	assert.True(t, decisive)
	assert.Equal(t, "gym interior", result.Label, "a keyword hit below rank 1 still carries the signal")
	assert.InDelta(t, 0.15, result.Confidence, 1e-9)
	assert.Negative(t, result.Margin(), "runner-ups keep their true scores")
}

func TestAdaptLegacyAggregatesScatteredHits(t *testing.T) {
	predictions := []Prediction{
		{Label: "locker", Score: 0.25},
		{Label: "dumbbell", Score: 0.22},
		{Label: "kettlebell", Score: 0.18},
		{Label: "water bottle", Score: 0.05},
	}

	result, decisive, err := AdaptLegacy(predictions)
	require.NoError(t, err)

	assert.True(t, decisive)
	assert.Equal(t, "gym interior", result.Label)
	assert.InDelta(t, 0.40, result.Confidence, 1e-9, "scattered gym evidence sums into one signal")
	require.NotEmpty(t, result.Ranked)
	assert.Equal(t, "gym interior", result.Ranked[0].Label)
	assert.Equal(t, "locker", result.Ranked[1].Label)
}

func TestAdaptLegacyNoGymSignal(t *testing.T) {
	predictions := []Prediction{
		{Label: "desk", Score: 0.55},
		{Label: "monitor", Score: 0.30},
	}

	result, decisive, err := AdaptLegacy(predictions)
	require.NoError(t, err)

	assert.True(t, decisive, "a confident non-gym answer is still an answer")
	assert.Equal(t, "desk", result.Label)
	assert.NotContains(t, labelSet(result), "gym interior")
}

func TestAdaptLegacyLowConfidenceNotDecisive(t *testing.T) {
	predictions := []Prediction{
		{Label: "blur", Score: 0.04},
		{Label: "noise", Score: 0.03},
	}

	_, decisive, err := AdaptLegacy(predictions)
	require.NoError(t, err)
	assert.False(t, decisive, "scores below the floor must flag the result non-decisive")
}

func TestGymRelatedLabel(t *testing.T) {
	assert.True(t, gymRelatedLabel("Dumbbell"))
	assert.True(t, gymRelatedLabel("bench press, weight bench"))
	assert.True(t, gymRelatedLabel("TREADMILL"))
	assert.False(t, gymRelatedLabel("library"))
	assert.False(t, gymRelatedLabel("restaurant"))
}

func labelSet(r Result) []string {
	labels := make([]string, 0, len(r.Ranked))
	for _, p := range r.Ranked {
		labels = append(labels, p.Label)
	}
	return labels
}
