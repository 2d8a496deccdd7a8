package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stitts-dev/clutchfactor/internal/api/handlers"
)

// Handlers bundles everything the router mounts
type Handlers struct {
	Replay    *handlers.ReplayHandler
	Stream    *handlers.StreamHandler
	Games     *handlers.GameHandler
	Analytics *handlers.AnalyticsHandler
	Predict   *handlers.PredictHandler
	Health    *handlers.HealthHandler
}

// SetupRouter wires all routes onto a gin engine
func SetupRouter(h Handlers, corsOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(corsMiddleware(corsOrigins))

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/games", h.Games.ListGames)
		apiV1.GET("/games/:gameId", h.Games.GetGame)
		apiV1.GET("/games/:gameId/plays", h.Games.ListPlaysWithWp)

		apiV1.POST("/games/:gameId/replay", h.Replay.StartReplay)
		apiV1.DELETE("/games/:gameId/replay", h.Replay.StopReplay)
		apiV1.GET("/games/:gameId/replay", h.Replay.GetReplayStatus)

		apiV1.GET("/games/:gameId/stream", h.Stream.StreamSSE)

		apiV1.GET("/games/:gameId/analytics/momentum", h.Analytics.GetMomentumSwings)
		apiV1.GET("/games/:gameId/analytics/clutch", h.Analytics.GetClutchIndex)
		apiV1.GET("/games/:gameId/analytics/decisions", h.Analytics.GetDecisionGrades)

		apiV1.POST("/predict", h.Predict.Predict)
	}

	router.GET("/ws/games/:gameId", h.Stream.StreamWebSocket)

	router.GET("/health", h.Health.GetHealth)
	router.HEAD("/health", h.Health.GetHealth)
	router.GET("/ready", h.Health.GetReady)
	router.HEAD("/ready", h.Health.GetReady)

	return router
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowed[origin] || allowed["*"] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
