package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUncertainCanonicalShape(t *testing.T) {
	r := Uncertain()

	assert.Equal(t, UncertainLabel, r.Label)
	assert.InDelta(t, 0.2, r.Confidence, 1e-9)
	assert.Equal(t, TierNone, r.Tier)
	require.Len(t, r.Ranked, 1, "canonical uncertain still carries a ranked list")
}

func TestNewResultSortsTrimsRounds(t *testing.T) {
	r := NewResult(TierScene, []Prediction{
		{Label: "office", Score: 0.101},
		{Label: "gym interior", Score: 0.823456},
		{Label: "restaurant", Score: 0.0499},
		{Label: "fitness center", Score: 0.301},
	})

	assert.Equal(t, "gym interior", r.Label)
	assert.InDelta(t, 0.82, r.Confidence, 1e-9, "scores must be rounded to 2 decimals")
	assert.Equal(t, TierScene, r.Tier)

	require.Len(t, r.Ranked, 3, "ranked list is capped at 3")
	for i := 1; i < len(r.Ranked); i++ {
		assert.GreaterOrEqual(t, r.Ranked[i-1].Score, r.Ranked[i].Score, "scores must be non-increasing")
	}
}

func TestNewResultEmptyPredictions(t *testing.T) {
	r := NewResult(TierLegacy, nil)

	assert.Equal(t, UncertainLabel, r.Label)
	assert.Equal(t, TierLegacy, r.Tier, "tier attribution survives the uncertain stand-in")
}

func TestMargin(t *testing.T) {
	t.Run("two predictions", func(t *testing.T) {
		r := NewResult(TierScene, []Prediction{
			{Label: "gym interior", Score: 0.42},
			{Label: "office", Score: 0.39},
		})
		assert.InDelta(t, 0.03, r.Margin(), 1e-9)
	})

	t.Run("single prediction", func(t *testing.T) {
		r := NewResult(TierRemote, []Prediction{{Label: "gym", Score: 0.77}})
		assert.InDelta(t, 0.77, r.Margin(), 1e-9, "absent runner-up counts as score 0")
	})
}
