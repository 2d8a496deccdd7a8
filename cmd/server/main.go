package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/stitts-dev/clutchfactor/internal/analytics"
	"github.com/stitts-dev/clutchfactor/internal/api"
	"github.com/stitts-dev/clutchfactor/internal/api/handlers"
	"github.com/stitts-dev/clutchfactor/internal/events"
	"github.com/stitts-dev/clutchfactor/internal/inference"
	"github.com/stitts-dev/clutchfactor/internal/replay"
	"github.com/stitts-dev/clutchfactor/internal/store"
	"github.com/stitts-dev/clutchfactor/pkg/config"
	"github.com/stitts-dev/clutchfactor/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := logger.InitLogger("info", cfg.IsDevelopment())
	log.WithFields(logrus.Fields{
		"environment": cfg.Env,
		"port":        cfg.Port,
	}).Info("Starting clutchfactor service")

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Storage: Postgres when configured, in-memory otherwise (dev mode)
	var db *gorm.DB
	var recordStore store.RecordStore
	if cfg.DatabaseURL != "" {
		db, err = connectDatabase(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		gormStore := store.NewGormStore(db)
		if err := gormStore.AutoMigrate(); err != nil {
			log.Fatalf("Failed to migrate schema: %v", err)
		}
		recordStore = gormStore
		log.Info("Using Postgres record store")
	} else {
		recordStore = store.NewMemoryStore()
		log.Warn("DATABASE_URL not set, using in-memory record store")
	}

	// Latest-event cache: Redis when configured, in-memory otherwise
	var redisClient *redis.Client
	var latest events.LatestCache
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient = redis.NewClient(opt)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		latest = events.NewRedisLatestCache(redisClient, cfg.LatestEventTTL)
		log.Info("Using Redis latest-event cache")
	} else {
		latest = events.NewMemoryLatestCache(cfg.LatestEventTTL)
		log.Warn("REDIS_URL not set, using in-memory latest-event cache")
	}

	bus := events.NewBus(cfg.SubscriberQueueSize, log)

	// Inference: fixed logistic baseline with a per-call deadline, behind a
	// circuit breaker so repeated timeouts trip it
	baseline := inference.NewBaselineModel()
	bounded := inference.NewTimeoutGateway(baseline, cfg.InferenceTimeout)
	gateway := inference.NewBreakerGateway(bounded, cfg.BreakerMaxFailures, log)
	log.WithField("model_version", gateway.ModelVersion()).Info("Inference model loaded")

	orchestrator := replay.NewOrchestrator(recordStore, gateway, bus, latest, cfg.ShapTopN, log)
	engine := analytics.NewEngine(recordStore, log)

	router := api.SetupRouter(api.Handlers{
		Replay:    handlers.NewReplayHandler(orchestrator, cfg, log),
		Stream:    handlers.NewStreamHandler(bus, latest, cfg.HeartbeatInterval, log),
		Games:     handlers.NewGameHandler(recordStore, log),
		Analytics: handlers.NewAnalyticsHandler(engine, log),
		Predict:   handlers.NewPredictHandler(gateway, cfg.ShapTopN, log),
		Health:    handlers.NewHealthHandler(db, redisClient, gateway, log),
	}, cfg.CorsOrigins)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}

func connectDatabase(cfg *config.Config) (*gorm.DB, error) {
	logLevel := gormlogger.Warn
	if cfg.IsDevelopment() {
		logLevel = gormlogger.Info
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}
