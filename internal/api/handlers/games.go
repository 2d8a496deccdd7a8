package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/clutchfactor/internal/inference"
	"github.com/stitts-dev/clutchfactor/internal/models"
	"github.com/stitts-dev/clutchfactor/internal/store"
)

// GameHandler serves the persisted game, play and probability history
type GameHandler struct {
	store  store.RecordStore
	logger *logrus.Logger
}

func NewGameHandler(recordStore store.RecordStore, logger *logrus.Logger) *GameHandler {
	return &GameHandler{store: recordStore, logger: logger}
}

// ListGames lists games with optional season/week/status filters.
// GET /api/v1/games
func (h *GameHandler) ListGames(c *gin.Context) {
	var filter store.GameFilter
	if v := c.Query("season"); v != "" {
		season, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid season parameter"})
			return
		}
		filter.Season = &season
	}
	if v := c.Query("week"); v != "" {
		week, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid week parameter"})
			return
		}
		filter.Week = &week
	}
	if v := c.Query("status"); v != "" {
		status := models.GameStatus(v)
		filter.Status = &status
	}

	games, err := h.store.ListGames(c.Request.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list games")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list games"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"games": games, "count": len(games)})
}

// GetGame returns one game with its processed play count.
// GET /api/v1/games/:gameId
func (h *GameHandler) GetGame(c *gin.Context) {
	gameID := c.Param("gameId")

	game, err := h.store.GetGame(c.Request.Context(), gameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Game %s not found", gameID)})
			return
		}
		h.logger.WithError(err).WithField("game_id", gameID).Error("Failed to load game")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load game"})
		return
	}

	playCount, err := h.store.CountPlays(c.Request.Context(), gameID)
	if err != nil {
		h.logger.WithError(err).WithField("game_id", gameID).Error("Failed to count plays")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load game"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"game": game, "play_count": playCount})
}

// PlayWithWp is one row of the win-probability chart
type PlayWithWp struct {
	Play    models.Play          `json:"play"`
	HomeWP  float64              `json:"home_wp"`
	AwayWP  float64              `json:"away_wp"`
	TopShap []models.ShapFeature `json:"top_shap"`
}

// ListPlaysWithWp returns the sequence-ordered play/probability history for a
// game. Probabilities are clamped at read time so a decided game always ends
// at exactly 1.0/0.0 even if the stored estimate predates the clamp rule.
// GET /api/v1/games/:gameId/plays
func (h *GameHandler) ListPlaysWithWp(c *gin.Context) {
	gameID := c.Param("gameId")

	if _, err := h.store.GetGame(c.Request.Context(), gameID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Game %s not found", gameID)})
			return
		}
		h.logger.WithError(err).WithField("game_id", gameID).Error("Failed to load game")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load plays"})
		return
	}

	pairs, err := h.store.ListPlaysWithPredictions(c.Request.Context(), gameID)
	if err != nil {
		h.logger.WithError(err).WithField("game_id", gameID).Error("Failed to load plays")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load plays"})
		return
	}

	rows := make([]PlayWithWp, 0, len(pairs))
	for _, pair := range pairs {
		homeWP, awayWP := models.ClampFinal(
			pair.Prediction.HomeWP,
			pair.Prediction.AwayWP,
			pair.Play.Quarter,
			pair.Play.GameClockSeconds,
			pair.Play.ScoreDifferential(),
		)
		shap := make([]models.ShapFeature, 0, len(pair.Attributions))
		for _, sv := range pair.Attributions {
			shap = append(shap, models.ShapFeature{
				FeatureName: sv.FeatureName,
				DisplayName: inference.DisplayName(sv.FeatureName),
				ShapValue:   sv.ShapVal,
			})
		}
		rows = append(rows, PlayWithWp{
			Play:    pair.Play,
			HomeWP:  homeWP,
			AwayWP:  awayWP,
			TopShap: shap,
		})
	}

	c.JSON(http.StatusOK, gin.H{"game_id": gameID, "plays": rows, "count": len(rows)})
}
