package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Server
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	// Database
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// Redis
	RedisURL string `mapstructure:"REDIS_URL"`

	// CORS
	CorsOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Replay
	ReplayDataDir       string  `mapstructure:"REPLAY_DATA_DIR"`
	ReplaySpeed         float64 `mapstructure:"REPLAY_SPEED"`
	SubscriberQueueSize int     `mapstructure:"SUBSCRIBER_QUEUE_SIZE"`

	// Inference
	ShapTopN            int           `mapstructure:"SHAP_TOP_N"`
	InferenceTimeout    time.Duration `mapstructure:"INFERENCE_TIMEOUT"`
	BreakerMaxFailures  int           `mapstructure:"BREAKER_MAX_FAILURES"`

	// Event cache
	LatestEventTTL time.Duration `mapstructure:"LATEST_EVENT_TTL"`

	// Stream
	HeartbeatInterval time.Duration `mapstructure:"HEARTBEAT_INTERVAL"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("DATABASE_URL", "")
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("REPLAY_DATA_DIR", "./data")
	viper.SetDefault("REPLAY_SPEED", 1.0)           // plays per second
	viper.SetDefault("SUBSCRIBER_QUEUE_SIZE", 200)  // pending events per subscriber
	viper.SetDefault("SHAP_TOP_N", 5)
	viper.SetDefault("INFERENCE_TIMEOUT", "2s")
	viper.SetDefault("BREAKER_MAX_FAILURES", 5)
	viper.SetDefault("LATEST_EVENT_TTL", "1h")
	viper.SetDefault("HEARTBEAT_INTERVAL", "15s")

	// Read from environment
	viper.AutomaticEnv()

	// Read config file if exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Parse CORS origins from comma-separated string
	if corsStr := viper.GetString("CORS_ORIGINS"); corsStr != "" {
		config.CorsOrigins = strings.Split(corsStr, ",")
	}

	return &config, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
