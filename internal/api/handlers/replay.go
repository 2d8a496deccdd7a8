package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/clutchfactor/internal/inference"
	"github.com/stitts-dev/clutchfactor/internal/providers"
	"github.com/stitts-dev/clutchfactor/internal/replay"
	"github.com/stitts-dev/clutchfactor/pkg/config"
)

// ReplayHandler exposes the replay control surface
type ReplayHandler struct {
	orchestrator *replay.Orchestrator
	config       *config.Config
	logger       *logrus.Logger
}

func NewReplayHandler(orchestrator *replay.Orchestrator, cfg *config.Config, logger *logrus.Logger) *ReplayHandler {
	return &ReplayHandler{
		orchestrator: orchestrator,
		config:       cfg,
		logger:       logger,
	}
}

// StartReplayRequest selects the source file and pacing for a replay. Both
// fields are optional: the file defaults to <gameId>.csv under the configured
// data directory and the speed to the configured plays-per-second.
type StartReplayRequest struct {
	File  string  `json:"file"`
	Speed float64 `json:"speed"`
}

// StartReplay launches a replay session for a game.
// POST /api/v1/games/:gameId/replay
func (h *ReplayHandler) StartReplay(c *gin.Context) {
	gameID := c.Param("gameId")

	var req StartReplayRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
			return
		}
	}

	file := req.File
	if file == "" {
		file = gameID + ".csv"
	}
	speed := req.Speed
	if speed <= 0 {
		speed = h.config.ReplaySpeed
	}
	csvPath := filepath.Join(h.config.ReplayDataDir, filepath.Clean(file))

	provider, err := providers.NewCSVReplayProvider(csvPath, gameID, speed, h.logger)
	if err != nil {
		h.logger.WithError(err).WithField("game_id", gameID).Warn("Failed to open replay source")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to open replay source", "details": err.Error()})
		return
	}

	sess, err := h.orchestrator.Start(gameID, provider)
	if err != nil {
		switch {
		case errors.Is(err, replay.ErrReplayConflict):
			c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("Replay already running for game %s", gameID)})
		case errors.Is(err, inference.ErrModelUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No inference model available"})
		default:
			h.logger.WithError(err).WithField("game_id", gameID).Error("Failed to start replay")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start replay"})
		}
		return
	}

	h.logger.WithFields(logrus.Fields{
		"game_id": gameID,
		"source":  csvPath,
		"speed":   speed,
	}).Info("Replay session started")

	c.JSON(http.StatusAccepted, gin.H{
		"game_id":    gameID,
		"state":      sess.State().String(),
		"started_at": sess.StartedAt,
	})
}

// StopReplay cancels a running replay session.
// DELETE /api/v1/games/:gameId/replay
func (h *ReplayHandler) StopReplay(c *gin.Context) {
	gameID := c.Param("gameId")

	if err := h.orchestrator.Stop(gameID); err != nil {
		if errors.Is(err, replay.ErrReplayNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("No active replay for game %s", gameID)})
			return
		}
		h.logger.WithError(err).WithField("game_id", gameID).Error("Failed to stop replay")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to stop replay"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"game_id": gameID, "state": "cancelling"})
}

// GetReplayStatus reports the current session for a game.
// GET /api/v1/games/:gameId/replay
func (h *ReplayHandler) GetReplayStatus(c *gin.Context) {
	gameID := c.Param("gameId")

	sess, ok := h.orchestrator.Session(gameID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("No replay session for game %s", gameID)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"game_id":         gameID,
		"state":           sess.State().String(),
		"started_at":      sess.StartedAt,
		"plays_processed": sess.PlayCount(),
	})
}
