package inference

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/clutchfactor/internal/providers"
)

func intPtr(v int) *int          { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string    { return &v }

func neutralState() providers.GameState {
	return providers.GameState{
		GameID:                   "g1",
		Quarter:                  1,
		GameClockSeconds:         900,
		GameSecondsRemaining:     3600,
		HalfSecondsRemaining:     1800,
		PosteamTimeoutsRemaining: 3,
		DefteamTimeoutsRemaining: 3,
	}
}

func TestExtractFeaturesOrderAndFills(t *testing.T) {
	gs := neutralState()
	gs.Down = intPtr(3)
	gs.YardsToGo = intPtr(7)
	gs.Yardline100 = intPtr(42)
	gs.PosteamAbbr = strPtr("KC")
	gs.PosteamIsHome = 1
	gs.ScoreHome = 14
	gs.ScoreAway = 7
	gs.ScoreDifferential = 7
	gs.GameSecondsRemaining = 1800
	gs.SpreadLine = floatPtr(-3.0)

	fv := ExtractFeatures(gs)
	require.Len(t, fv, len(FeatureCols))

	byName := map[string]float64{}
	for i, col := range FeatureCols {
		byName[col] = fv[i]
	}

	assert.Equal(t, 3.0, byName["down"])
	assert.Equal(t, 7.0, byName["yards_to_go"])
	assert.Equal(t, 42.0, byName["yardline_100"])
	assert.Equal(t, 1.0, byName["posteam_is_home"])
	assert.Equal(t, 7.0, byName["score_differential"])

	// Derived features
	assert.InDelta(t, -3.0*(1800.0/3600.0), byName["spread_time"], 1e-9)
	assert.InDelta(t, 7.0*(1.0-1800.0/3600.0), byName["diff_time_ratio"], 1e-9)

	// Missing EP uses the fill value
	assert.Equal(t, 0.0, byName["ep"])
}

func TestExtractFeaturesUnknownPossession(t *testing.T) {
	gs := neutralState()
	// No possession team (e.g. kickoff rows with scrubbed data)
	fv := ExtractFeatures(gs)

	for i, col := range FeatureCols {
		if col == "posteam_is_home" {
			assert.Equal(t, 0.5, fv[i])
		}
	}
	// Missing down falls back to 0 (no scrimmage play)
	assert.Equal(t, 0.0, fv[0])
}

func TestBaselinePredictNeutralIsEven(t *testing.T) {
	model := NewBaselineModel()
	wp, err := model.Predict(context.Background(), ExtractFeatures(neutralState()))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, wp, 0.05, "neutral opening state is roughly a coin flip")
}

func TestBaselinePredictMonotonicInLead(t *testing.T) {
	model := NewBaselineModel()
	ctx := context.Background()

	trailing := neutralState()
	trailing.ScoreHome, trailing.ScoreAway, trailing.ScoreDifferential = 0, 14, -14
	trailing.GameSecondsRemaining = 600

	leading := neutralState()
	leading.ScoreHome, leading.ScoreAway, leading.ScoreDifferential = 14, 0, 14
	leading.GameSecondsRemaining = 600

	wpTrailing, err := model.Predict(ctx, ExtractFeatures(trailing))
	require.NoError(t, err)
	wpLeading, err := model.Predict(ctx, ExtractFeatures(leading))
	require.NoError(t, err)

	assert.Greater(t, wpLeading, wpTrailing)
	assert.Greater(t, wpLeading, 0.85, "two-score lead late in the game is near-decisive")
	assert.Less(t, wpTrailing, 0.15)
	assert.GreaterOrEqual(t, wpLeading, 0.0)
	assert.LessOrEqual(t, wpLeading, 1.0)
}

func TestBaselineExplainRankedByMagnitude(t *testing.T) {
	model := NewBaselineModel()

	gs := neutralState()
	gs.ScoreHome, gs.ScoreAway, gs.ScoreDifferential = 21, 3, 18
	gs.GameSecondsRemaining = 300
	gs.PosteamAbbr = strPtr("KC")
	gs.PosteamIsHome = 1

	shap, err := model.Explain(context.Background(), ExtractFeatures(gs), 5)
	require.NoError(t, err)
	require.Len(t, shap, 5)

	for i := 1; i < len(shap); i++ {
		assert.GreaterOrEqual(t,
			math.Abs(shap[i-1].ShapValue), math.Abs(shap[i].ShapValue),
			"attributions must be ordered by descending magnitude")
	}
	assert.Equal(t, "diff_time_ratio", shap[0].FeatureName,
		"a big late lead dominates the explanation")
	assert.NotEmpty(t, shap[0].DisplayName)
}

func TestBaselineRejectsWrongVectorLength(t *testing.T) {
	model := NewBaselineModel()
	_, err := model.Predict(context.Background(), FeatureVector{1, 2, 3})
	assert.ErrorIs(t, err, ErrModelUnavailable)
}
