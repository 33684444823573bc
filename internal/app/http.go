package app

import (
	"gorm.io/gorm"

	apphttp "github.com/yungbote/production-planner/internal/http"
	httpH "github.com/yungbote/production-planner/internal/http/handlers"
	httpMW "github.com/yungbote/production-planner/internal/http/middleware"
	"github.com/yungbote/production-planner/internal/platform/logger"
	"github.com/yungbote/production-planner/internal/realtime"
)

func wireServer(log *logger.Logger, cfg Config, theDB *gorm.DB, services Services, hub *realtime.Hub) *apphttp.Server {
	log.Info("Wiring HTTP server...")

	health := map[string]httpH.Pinger{}
	if sqlDB, err := theDB.DB(); err == nil {
		health["database"] = sqlDB
	}

	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = cfg.Otel.ServiceName
	}
	return apphttp.NewServer(apphttp.ServerConfig{
		Addr:            cfg.Addr,
		ShutdownTimeout: cfg.ShutdownTimeout,
		OnShutdown:      hub.CloseAll,
	}, apphttp.RouterConfig{
		Log:               log,
		ServiceName:       serviceName,
		AllowedOrigins:    cfg.AllowedOrigins,
		AuthMiddleware:    httpMW.NewAuthMiddleware(log, cfg.JWTSecretKey),
		HealthHandler:     httpH.NewHealthHandler(health),
		ManifestHandler:   httpH.NewManifestHandler(log, services.Planner),
		GovernanceHandler: httpH.NewGovernanceHandler(services.Planner),
		RealtimeHandler:   httpH.NewRealtimeHandler(log, hub, services.Planner),
	})
}
