package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/stitts-dev/clutchfactor/internal/inference"
)

// HealthHandler reports liveness and readiness. db and redisClient are nil
// when the service runs on the in-memory backends; those checks are then
// reported as "memory" instead of probed.
type HealthHandler struct {
	db          *gorm.DB
	redisClient *redis.Client
	gateway     inference.Gateway
	logger      *logrus.Logger
}

func NewHealthHandler(db *gorm.DB, redisClient *redis.Client, gateway inference.Gateway, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		db:          db,
		redisClient: redisClient,
		gateway:     gateway,
		logger:      logger,
	}
}

// GetHealth is the liveness probe.
// GET /health
func (h *HealthHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "clutchfactor",
		"timestamp": time.Now().UTC(),
	})
}

// GetReady is the readiness probe: dependencies must answer and a model must
// be loaded before traffic is routed here.
// GET /ready
func (h *HealthHandler) GetReady(c *gin.Context) {
	checks := gin.H{}
	ready := true

	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			h.logger.WithError(err).Warn("Database readiness check failed")
			checks["database"] = "unavailable"
			ready = false
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "memory"
	}

	if h.redisClient != nil {
		if err := h.redisClient.Ping(c.Request.Context()).Err(); err != nil {
			h.logger.WithError(err).Warn("Redis readiness check failed")
			checks["redis"] = "unavailable"
			ready = false
		} else {
			checks["redis"] = "ok"
		}
	} else {
		checks["redis"] = "memory"
	}

	if h.gateway != nil && h.gateway.Ready() {
		checks["model"] = h.gateway.ModelVersion()
	} else {
		checks["model"] = "unavailable"
		ready = false
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"ready": ready, "checks": checks})
}
