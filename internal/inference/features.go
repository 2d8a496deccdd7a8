package inference

import (
	"github.com/stitts-dev/clutchfactor/internal/providers"
)

// FeatureCols is the fixed feature order fed to the model. The order is a
// contract with whatever model artifact is deployed — do not reorder without
// a model version bump.
var FeatureCols = []string{
	"down",
	"yards_to_go",
	"yardline_100",              // distance from opponent end zone (1-99)
	"game_seconds_remaining",
	"half_seconds_remaining",
	"score_differential",        // home - away (always home perspective)
	"posteam_is_home",           // 1 if possession team is the home team
	"posteam_timeouts_remaining",
	"defteam_timeouts_remaining",
	"receive_2h_ko",             // 1 if possession team receives 2nd-half kickoff
	"spread_line",               // Vegas pre-game spread (positive = home favored)
	"spread_time",               // derived: spread_line * game_seconds_remaining / 3600
	"diff_time_ratio",           // derived: score_differential * (1 - game_seconds_remaining / 3600)
	"ep",                        // expected points for current possession
}

// fillValues are safe defaults for missing inputs (kickoffs, PATs, unknown
// possession), not imputed from training data.
var fillValues = map[string]float64{
	"down":                       0.0,
	"yards_to_go":                10.0,
	"yardline_100":               50.0,
	"game_seconds_remaining":     3600.0,
	"half_seconds_remaining":     1800.0,
	"score_differential":         0.0,
	"posteam_is_home":            0.5,
	"posteam_timeouts_remaining": 3.0,
	"defteam_timeouts_remaining": 3.0,
	"receive_2h_ko":              0.0,
	"spread_line":                0.0,
	"spread_time":                0.0,
	"diff_time_ratio":            0.0,
	"ep":                         0.0,
}

// FeatureDisplayNames are the human-readable labels shown in the attribution panel
var FeatureDisplayNames = map[string]string{
	"down":                       "Down",
	"yards_to_go":                "Yards to Go",
	"yardline_100":               "Field Position",
	"game_seconds_remaining":     "Time Remaining",
	"half_seconds_remaining":     "Half Time Remaining",
	"score_differential":         "Score Differential",
	"posteam_is_home":            "Possession (Home)",
	"posteam_timeouts_remaining": "Offense Timeouts",
	"defteam_timeouts_remaining": "Defense Timeouts",
	"receive_2h_ko":              "Receives 2nd-Half Kickoff",
	"spread_line":                "Pre-game Spread",
	"spread_time":                "Spread × Time Remaining",
	"diff_time_ratio":            "Lead × Time Elapsed",
	"ep":                         "Expected Points",
}

// DisplayName resolves the label for a feature, falling back to its raw name
func DisplayName(feature string) string {
	if name, ok := FeatureDisplayNames[feature]; ok {
		return name
	}
	return feature
}

// FeatureVector is a fixed-length numeric array in FeatureCols order
type FeatureVector []float64

// ExtractFeatures converts a normalized play into the model's feature vector,
// applying fill values for missing inputs and computing the derived features
// inline.
func ExtractFeatures(gs providers.GameState) FeatureVector {
	gameSecs := float64(gs.GameSecondsRemaining)
	spread := floatOrFill(gs.SpreadLine, "spread_line")
	scoreDiff := float64(gs.ScoreDifferential)

	raw := map[string]float64{
		"down":                       intPtrOrFill(gs.Down, "down"),
		"yards_to_go":                intPtrOrFill(gs.YardsToGo, "yards_to_go"),
		"yardline_100":               intPtrOrFill(gs.Yardline100, "yardline_100"),
		"game_seconds_remaining":     gameSecs,
		"half_seconds_remaining":     float64(gs.HalfSecondsRemaining),
		"score_differential":         scoreDiff,
		"posteam_is_home":            posteamIsHome(gs),
		"posteam_timeouts_remaining": float64(gs.PosteamTimeoutsRemaining),
		"defteam_timeouts_remaining": float64(gs.DefteamTimeoutsRemaining),
		"receive_2h_ko":              float64(gs.Receive2hKo),
		"spread_line":                spread,
		"spread_time":                spread * (gameSecs / 3600.0),
		"diff_time_ratio":            scoreDiff * (1.0 - gameSecs/3600.0),
		"ep":                         floatOrFill(gs.ExpectedPoints, "ep"),
	}

	fv := make(FeatureVector, len(FeatureCols))
	for i, col := range FeatureCols {
		fv[i] = raw[col]
	}
	return fv
}

func posteamIsHome(gs providers.GameState) float64 {
	if gs.PosteamAbbr == nil {
		return fillValues["posteam_is_home"]
	}
	return float64(gs.PosteamIsHome)
}

func intPtrOrFill(v *int, col string) float64 {
	if v == nil {
		return fillValues[col]
	}
	return float64(*v)
}

func floatOrFill(v *float64, col string) float64 {
	if v == nil {
		return fillValues[col]
	}
	return *v
}
