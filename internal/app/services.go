package app

import (
	"fmt"

	"gorm.io/gorm"

	repoprod "github.com/yungbote/production-planner/internal/data/repos/production"
	"github.com/yungbote/production-planner/internal/jobs/orchestrator"
	"github.com/yungbote/production-planner/internal/jobs/worker"
	"github.com/yungbote/production-planner/internal/platform/logger"
	"github.com/yungbote/production-planner/internal/production/governance"
	"github.com/yungbote/production-planner/internal/production/planner"
	"github.com/yungbote/production-planner/internal/realtime/bus"
	"github.com/yungbote/production-planner/internal/temporalx/generation"
	"github.com/yungbote/production-planner/internal/temporalx/temporalworker"
)

type Services struct {
	Governance *governance.Engine
	Planner    *planner.Service
	Runner     *temporalworker.Runner
}

func wireServices(theDB *gorm.DB, log *logger.Logger, cfg Config, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	gov := governance.NewEngine(cfg.Governance, log)

	// Job attempts go through Temporal when it is configured and straight to
	// the executors otherwise.
	jobs := worker.NewRegistry()
	var runner *temporalworker.Runner
	if clients.Temporal != nil {
		d, err := generation.NewDispatcher(clients.Temporal, cfg.Temporal.TaskQueue, log)
		if err != nil {
			return Services{}, err
		}
		jobs.SetFallback(d)
		if cfg.RunTemporalWorker {
			runner, err = temporalworker.NewRunner(log, clients.Temporal, cfg.Temporal, clients.Generation)
			if err != nil {
				return Services{}, fmt.Errorf("init temporal worker: %w", err)
			}
		}
	} else {
		log.Warn("Temporal is not configured; calling generation executors directly")
		jobs.SetFallback(clients.Generation.Worker())
	}

	sched := orchestrator.NewScheduler(jobs, gov, log)
	repo := repoprod.NewGormGateway(theDB, log)
	svc := planner.New(repo, gov, sched, &bus.Publisher{Bus: clients.Bus}, log)

	return Services{Governance: gov, Planner: svc, Runner: runner}, nil
}
