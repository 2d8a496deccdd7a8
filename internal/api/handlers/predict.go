package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/clutchfactor/internal/inference"
	"github.com/stitts-dev/clutchfactor/internal/models"
	"github.com/stitts-dev/clutchfactor/internal/providers"
)

// PredictHandler exposes ad-hoc win-probability queries for arbitrary game
// situations, outside any replay session.
type PredictHandler struct {
	gateway  inference.Gateway
	shapTopN int
	logger   *logrus.Logger
}

func NewPredictHandler(gateway inference.Gateway, shapTopN int, logger *logrus.Logger) *PredictHandler {
	if shapTopN <= 0 {
		shapTopN = 5
	}
	return &PredictHandler{gateway: gateway, shapTopN: shapTopN, logger: logger}
}

// PredictRequest describes a game situation. Nullable fields follow the play
// record: absent means unknown and is filled with the model's defaults.
type PredictRequest struct {
	Quarter                  int      `json:"quarter" binding:"required"`
	GameClockSeconds         int      `json:"game_clock_seconds"`
	Down                     *int     `json:"down"`
	YardsToGo                *int     `json:"yards_to_go"`
	Yardline100              *int     `json:"yardline_100"`
	ScoreHome                int      `json:"score_home"`
	ScoreAway                int      `json:"score_away"`
	PosteamIsHome            *bool    `json:"posteam_is_home"`
	PosteamTimeoutsRemaining *int     `json:"posteam_timeouts_remaining"`
	DefteamTimeoutsRemaining *int     `json:"defteam_timeouts_remaining"`
	Receive2hKo              bool     `json:"receive_2h_ko"`
	SpreadLine               *float64 `json:"spread_line"`
	ExpectedPoints           *float64 `json:"ep"`
}

// Predict returns the model's estimate and attributions for one situation.
// POST /api/v1/predict
func (h *PredictHandler) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}
	if req.Quarter < 1 || req.GameClockSeconds < 0 || req.GameClockSeconds > 900 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quarter must be >= 1 and game_clock_seconds in [0, 900]"})
		return
	}

	gs := requestToGameState(req)
	fv := inference.ExtractFeatures(gs)

	homeWP, err := h.gateway.Predict(c.Request.Context(), fv)
	if err != nil {
		if errors.Is(err, inference.ErrModelUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No inference model available"})
			return
		}
		h.logger.WithError(err).Error("Ad-hoc prediction failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Prediction failed"})
		return
	}
	awayWP := 1.0 - homeWP
	homeWP, awayWP = models.ClampFinal(homeWP, awayWP, gs.Quarter, gs.GameClockSeconds, gs.ScoreDifferential)

	topShap, err := h.gateway.Explain(c.Request.Context(), fv, h.shapTopN)
	if err != nil {
		h.logger.WithError(err).Error("Ad-hoc explanation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Prediction failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"home_wp":       homeWP,
		"away_wp":       awayWP,
		"model_version": h.gateway.ModelVersion(),
		"top_shap":      topShap,
	})
}

func requestToGameState(req PredictRequest) providers.GameState {
	quarter := req.Quarter
	q := quarter
	if q > 4 {
		q = 4
	}
	gameSecs := (4-q)*900 + req.GameClockSeconds
	halfSecs := (4-q)*900 + req.GameClockSeconds
	if q <= 2 {
		halfSecs = (2-q)*900 + req.GameClockSeconds
	}

	gs := providers.GameState{
		Quarter:                  quarter,
		GameClockSeconds:         req.GameClockSeconds,
		Down:                     req.Down,
		YardsToGo:                req.YardsToGo,
		Yardline100:              req.Yardline100,
		ScoreHome:                req.ScoreHome,
		ScoreAway:                req.ScoreAway,
		ScoreDifferential:        req.ScoreHome - req.ScoreAway,
		GameSecondsRemaining:     gameSecs,
		HalfSecondsRemaining:     halfSecs,
		PosteamTimeoutsRemaining: 3,
		DefteamTimeoutsRemaining: 3,
		SpreadLine:               req.SpreadLine,
		ExpectedPoints:           req.ExpectedPoints,
	}
	if req.Receive2hKo {
		gs.Receive2hKo = 1
	}
	if req.PosteamTimeoutsRemaining != nil {
		gs.PosteamTimeoutsRemaining = *req.PosteamTimeoutsRemaining
	}
	if req.DefteamTimeoutsRemaining != nil {
		gs.DefteamTimeoutsRemaining = *req.DefteamTimeoutsRemaining
	}
	if req.PosteamIsHome != nil {
		// The feature layer treats a nil posteam as unknown possession, so
		// give it a synthetic identifier whenever the caller told us
		posteam := "AWAY"
		if *req.PosteamIsHome {
			posteam = "HOME"
			gs.PosteamIsHome = 1
		}
		gs.PosteamAbbr = &posteam
	}
	return gs
}
