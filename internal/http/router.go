package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/production-planner/internal/http/handlers"
	httpMW "github.com/yungbote/production-planner/internal/http/middleware"
	"github.com/yungbote/production-planner/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins []string

	AuthMiddleware    *httpMW.AuthMiddleware
	HealthHandler     *httpH.HealthHandler
	ManifestHandler   *httpH.ManifestHandler
	GovernanceHandler *httpH.GovernanceHandler
	RealtimeHandler   *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	protected := r.Group("/api")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Manifests
		if cfg.ManifestHandler != nil {
			protected.POST("/manifests", cfg.ManifestHandler.Create)
			protected.GET("/manifests", cfg.ManifestHandler.List)
			protected.GET("/manifests/:id", cfg.ManifestHandler.Get)
			protected.PATCH("/manifests/:id", cfg.ManifestHandler.Edit)
			protected.DELETE("/manifests/:id", cfg.ManifestHandler.Delete)
			protected.POST("/manifests/:id/validate", cfg.ManifestHandler.Validate)
			protected.POST("/manifests/:id/approve", cfg.ManifestHandler.Approve)
			protected.POST("/manifests/:id/start", cfg.ManifestHandler.Start)
			protected.POST("/manifests/:id/cancel", cfg.ManifestHandler.Cancel)
			protected.POST("/manifests/:id/jobs/:job_id/cancel", cfg.ManifestHandler.CancelJob)
			protected.GET("/manifests/:id/quality", cfg.ManifestHandler.Quality)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			protected.GET("/manifests/:id/events", cfg.RealtimeHandler.ManifestEvents)
		}

		// Governance
		if cfg.GovernanceHandler != nil {
			protected.POST("/governance/cost-check", cfg.GovernanceHandler.CostCheck)
		}
	}

	return r
}
