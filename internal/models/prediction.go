package models

import (
	"time"

	"github.com/google/uuid"
)

// WpPrediction is one win-probability estimate tied to a play. HomeWP and
// AwayWP sum to 1.0 within floating tolerance. A play may accumulate several
// predictions over time; consumers always use the most recent one.
type WpPrediction struct {
	ID           uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	PlayID       uuid.UUID `json:"play_id" gorm:"index:idx_wp_play;type:uuid;not null"`
	ModelVersion string    `json:"model_version" gorm:"size:100;not null"`
	HomeWP       float64   `json:"home_wp"`
	AwayWP       float64   `json:"away_wp"`
	PredictedAt  time.Time `json:"predicted_at" gorm:"index:idx_wp_predicted_at;default:CURRENT_TIMESTAMP"`
}

// TableName returns the table name for WpPrediction
func (WpPrediction) TableName() string {
	return "wp_predictions"
}

// ShapValue is one signed per-feature contribution to a prediction
type ShapValue struct {
	ID             uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	WpPredictionID uuid.UUID `json:"wp_prediction_id" gorm:"index:idx_shap_prediction;type:uuid;not null"`
	FeatureName    string    `json:"feature_name" gorm:"size:100;not null"`
	ShapVal        float64   `json:"shap_value" gorm:"column:shap_value"`
}

// TableName returns the table name for ShapValue
func (ShapValue) TableName() string {
	return "shap_values"
}

// ClampFinal forces the probability to certainty at true game end: quarter 4
// or later, clock fully expired, and a non-zero score differential. Quarter-end
// rows in Q1-Q3 also show a zero clock but the game is not over, and a tie at
// 0:00 in Q4 means overtime, so neither of those clamps.
func ClampFinal(homeWP, awayWP float64, quarter, gameClockSeconds, scoreDiff int) (float64, float64) {
	if gameClockSeconds == 0 && quarter >= 4 && scoreDiff != 0 {
		if scoreDiff > 0 {
			return 1.0, 0.0
		}
		return 0.0, 1.0
	}
	return homeWP, awayWP
}
