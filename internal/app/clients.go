package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/production-planner/internal/platform/logger"
	"github.com/yungbote/production-planner/internal/realtime/bus"
	"github.com/yungbote/production-planner/internal/temporalx"
	"github.com/yungbote/production-planner/internal/temporalx/generation"
)

type Clients struct {
	Bus        bus.Bus
	Temporal   temporalsdkclient.Client
	Generation *generation.Activities
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis, or the in-process bus when REDIS_ADDR is unset
	b, err := bus.New(cfg.Redis, log)
	if err != nil {
		return Clients{}, fmt.Errorf("init event bus: %w", err)
	}

	// Temporal is optional; nil when TEMPORAL_ADDRESS is unset
	tc, err := temporalx.NewClient(ctx, cfg.Temporal, log)
	if err != nil {
		_ = b.Close()
		return Clients{}, fmt.Errorf("init temporal client: %w", err)
	}

	acts := &generation.Activities{
		Log:       log.With("component", "GenerationActivities"),
		HTTP:      &http.Client{},
		Endpoints: cfg.ExecutorEndpoints,
		Token:     cfg.ExecutorToken,

		HeartbeatEvery: 10 * time.Second,
	}
	return Clients{Bus: b, Temporal: tc, Generation: acts}, nil
}

func (c Clients) Close() {
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
}
