package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/clutchfactor/internal/analytics"
	"github.com/stitts-dev/clutchfactor/internal/store"
)

// AnalyticsHandler serves the derived analytics products
type AnalyticsHandler struct {
	engine *analytics.Engine
	logger *logrus.Logger
}

func NewAnalyticsHandler(engine *analytics.Engine, logger *logrus.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{engine: engine, logger: logger}
}

func topParam(c *gin.Context) int {
	v := c.Query("top")
	if v == "" {
		return 0
	}
	top, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return top
}

func (h *AnalyticsHandler) respond(c *gin.Context, gameID, product string, result interface{}, err error) {
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Game %s not found", gameID)})
			return
		}
		h.logger.WithError(err).WithFields(logrus.Fields{
			"game_id": gameID,
			"product": product,
		}).Error("Analytics computation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Analytics computation failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetMomentumSwings returns the largest win-probability swings of a game.
// GET /api/v1/games/:gameId/analytics/momentum?top=N
func (h *AnalyticsHandler) GetMomentumSwings(c *gin.Context) {
	gameID := c.Param("gameId")
	report, err := h.engine.MomentumSwings(c.Request.Context(), gameID, topParam(c))
	h.respond(c, gameID, "momentum", report, err)
}

// GetClutchIndex returns clutch-weighted play, drive and team leverage.
// GET /api/v1/games/:gameId/analytics/clutch?top=N
func (h *AnalyticsHandler) GetClutchIndex(c *gin.Context) {
	gameID := c.Param("gameId")
	report, err := h.engine.ClutchIndex(c.Request.Context(), gameID, topParam(c))
	h.respond(c, gameID, "clutch", report, err)
}

// GetDecisionGrades grades the game's fourth-down calls.
// GET /api/v1/games/:gameId/analytics/decisions?top=N
func (h *AnalyticsHandler) GetDecisionGrades(c *gin.Context) {
	gameID := c.Param("gameId")
	report, err := h.engine.DecisionGrades(c.Request.Context(), gameID, topParam(c))
	h.respond(c, gameID, "decisions", report, err)
}
