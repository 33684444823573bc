package app

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/production-planner/internal/db"
	apphttp "github.com/yungbote/production-planner/internal/http"
	"github.com/yungbote/production-planner/internal/observability"
	"github.com/yungbote/production-planner/internal/platform/logger"
	"github.com/yungbote/production-planner/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	DB       *db.Service
	Cfg      Config
	Clients  Clients
	Services Services
	Hub      *realtime.Hub
	Server   *apphttp.Server

	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)
	otelShutdown := observability.InitOTel(ctx, log, cfg.Otel)

	database, err := db.Open(cfg.DB, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := database.AutoMigrateAll(); err != nil {
		_ = database.Close()
		log.Sync()
		return nil, fmt.Errorf("database automigrate: %w", err)
	}

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = database.Close()
		log.Sync()
		return nil, err
	}

	services, err := wireServices(database.DB(), log, cfg, clients)
	if err != nil {
		clients.Close()
		_ = database.Close()
		log.Sync()
		return nil, err
	}

	hub := realtime.NewHub(log)
	server := wireServer(log, cfg, database.DB(), services, hub)

	return &App{
		Log:          log,
		DB:           database,
		Cfg:          cfg,
		Clients:      clients,
		Services:     services,
		Hub:          hub,
		Server:       server,
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves the API until ctx ends. On the way out running productions are
// failed as interrupted and the HTTP server drains.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)

	if err := a.Clients.Bus.StartForwarder(gctx, a.Hub.Broadcast); err != nil {
		return fmt.Errorf("start event forwarder: %w", err)
	}
	if a.Services.Runner != nil {
		if err := a.Services.Runner.Start(gctx); err != nil {
			return fmt.Errorf("start temporal worker: %w", err)
		}
	}

	g.Go(func() error {
		a.Log.Info("Server listening", "addr", a.Cfg.Addr)
		return a.Server.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownTimeout)
		defer cancel()
		return a.Services.Planner.Close(shutdownCtx)
	})
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warn("Database close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownTimeout)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("OTel shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
