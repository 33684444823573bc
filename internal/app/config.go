package app

import (
	"strings"
	"time"

	"github.com/yungbote/production-planner/internal/db"
	"github.com/yungbote/production-planner/internal/observability"
	"github.com/yungbote/production-planner/internal/platform/envutil"
	"github.com/yungbote/production-planner/internal/platform/logger"
	"github.com/yungbote/production-planner/internal/production/governance"
	"github.com/yungbote/production-planner/internal/realtime/bus"
	"github.com/yungbote/production-planner/internal/temporalx"
)

type Config struct {
	Addr            string
	JWTSecretKey    string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration

	// ExecutorEndpoints maps job types (or "default") to generation
	// executor URLs.
	ExecutorEndpoints map[string]string
	ExecutorToken     string
	// RunTemporalWorker hosts the generation worker in this process.
	RunTemporalWorker bool

	DB         db.Config
	Governance *governance.Config
	Redis      bus.RedisConfig
	Temporal   temporalx.Config
	Otel       observability.OtelConfig
}

func LoadConfig(log *logger.Logger) Config {
	port := strings.TrimPrefix(envutil.String("PORT", "8080"), ":")
	cfg := Config{
		Addr:              ":" + port,
		JWTSecretKey:      envutil.String("JWT_SECRET_KEY", ""),
		AllowedOrigins:    envutil.List("CORS_ALLOWED_ORIGINS"),
		ShutdownTimeout:   envutil.Seconds("SHUTDOWN_TIMEOUT_SECONDS", 30*time.Second),
		ExecutorEndpoints: envutil.Pairs("GENERATION_ENDPOINTS"),
		ExecutorToken:     envutil.String("GENERATION_TOKEN", ""),
		RunTemporalWorker: envutil.Bool("TEMPORAL_RUN_WORKER", true),
		DB:                db.ConfigFromEnv(),
		Governance:        governance.LoadConfigFromEnv(log),
		Redis:             bus.RedisConfigFromEnv(),
		Temporal:          temporalx.LoadConfig(),
		Otel:              observability.OtelConfigFromEnv(),
	}
	if cfg.JWTSecretKey == "" && log != nil {
		log.Warn("JWT_SECRET_KEY is not set; every API request will be rejected")
	}
	if len(cfg.ExecutorEndpoints) == 0 && log != nil {
		log.Warn("GENERATION_ENDPOINTS is not set; jobs will fail until executors are configured")
	}
	return cfg
}
