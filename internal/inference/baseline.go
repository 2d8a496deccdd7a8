package inference

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/stitts-dev/clutchfactor/internal/models"
)

// BaselineModel is a calibrated logistic win-probability model with fixed
// coefficients in log-odds space. It stands in for a trained artifact when
// none is deployed; the gateway contract is identical either way.
//
// Coefficients operate on the feature's distance from its fill value, so a
// neutral game state predicts ~0.50 for the home team.
type BaselineModel struct {
	version string
	weights map[string]float64
	bias    float64
}

// Hand-calibrated against historical league aggregates. The dominant terms
// are the lead-by-time interaction and the raw score differential; possession
// and field position matter at the margin.
var baselineWeights = map[string]float64{
	"down":                       -0.015,
	"yards_to_go":                -0.008,
	"yardline_100":               -0.0045,
	"game_seconds_remaining":     0.0,
	"half_seconds_remaining":     0.0,
	"score_differential":         0.115,
	"posteam_is_home":            0.14,
	"posteam_timeouts_remaining": 0.03,
	"defteam_timeouts_remaining": -0.03,
	"receive_2h_ko":              0.04,
	"spread_line":                0.035,
	"spread_time":                0.055,
	"diff_time_ratio":            0.42,
	"ep":                         0.018,
}

func NewBaselineModel() *BaselineModel {
	return &BaselineModel{
		version: "baseline-logistic-v1",
		weights: baselineWeights,
		bias:    0.0,
	}
}

func (m *BaselineModel) ModelVersion() string {
	return m.version
}

func (m *BaselineModel) Ready() bool {
	return true
}

// Predict returns the home-team win probability for the feature vector
func (m *BaselineModel) Predict(_ context.Context, fv FeatureVector) (float64, error) {
	if len(fv) != len(FeatureCols) {
		return 0, fmt.Errorf("feature vector has %d values, model expects %d: %w",
			len(fv), len(FeatureCols), ErrModelUnavailable)
	}

	logit := m.bias
	for i, col := range FeatureCols {
		logit += m.weights[col] * (fv[i] - fillValues[col])
	}
	return sigmoid(logit), nil
}

// Explain attributes the prediction to features as weight x (value - baseline)
// in log-odds space, ranked by absolute contribution, truncated to topN.
func (m *BaselineModel) Explain(_ context.Context, fv FeatureVector, topN int) ([]models.ShapFeature, error) {
	if len(fv) != len(FeatureCols) {
		return nil, fmt.Errorf("feature vector has %d values, model expects %d: %w",
			len(fv), len(FeatureCols), ErrModelUnavailable)
	}
	if topN <= 0 {
		topN = 5
	}

	out := make([]models.ShapFeature, 0, len(FeatureCols))
	for i, col := range FeatureCols {
		out = append(out, models.ShapFeature{
			FeatureName: col,
			DisplayName: DisplayName(col),
			ShapValue:   m.weights[col] * (fv[i] - fillValues[col]),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].ShapValue) > math.Abs(out[j].ShapValue)
	})

	if len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
