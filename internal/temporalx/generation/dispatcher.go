package generation

import (
	"context"
	"fmt"
	"time"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/production-planner/internal/domain/production"
	"github.com/yungbote/production-planner/internal/jobs/worker"
	"github.com/yungbote/production-planner/internal/platform/logger"
)

// Dispatcher is a worker.Worker that runs every job attempt as its own
// generation_job workflow.
type Dispatcher struct {
	client    temporalsdkclient.Client
	taskQueue string
	log       *logger.Logger
}

func NewDispatcher(c temporalsdkclient.Client, taskQueue string, log *logger.Logger) (*Dispatcher, error) {
	if c == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{client: c, taskQueue: taskQueue, log: log.With("component", "GenerationDispatcher")}, nil
}

var _ worker.Worker = (*Dispatcher)(nil)

func (d *Dispatcher) Submit(ctx context.Context, jobType production.JobType, config map[string]any) (worker.Pending, error) {
	req := NewRequest(ctx, jobType, config)

	id := fmt.Sprintf("generation:%s:%d", req.JobID, req.Attempt)
	if req.JobID == "" {
		id = ""
	}
	run, err := d.client.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:        id,
		TaskQueue: d.taskQueue,
	}, WorkflowName, req)
	if err != nil {
		return nil, fmt.Errorf("start %s workflow: %w", WorkflowName, err)
	}
	d.log.Debug("Generation workflow started", "workflow_id", run.GetID(), "run_id", run.GetRunID(), "job_type", jobType)
	return &pending{d: d, run: run, req: req}, nil
}

type pending struct {
	d   *Dispatcher
	run temporalsdkclient.WorkflowRun
	req Request
}

// Wait blocks on the workflow result. When ctx ends first the workflow is
// cancelled so the executor call stops too.
func (p *pending) Wait(ctx context.Context) (worker.Result, error) {
	var out Response
	err := p.run.Get(ctx, &out)
	if err != nil {
		if ctx.Err() != nil {
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if cerr := p.d.client.CancelWorkflow(cctx, p.run.GetID(), p.run.GetRunID()); cerr != nil {
				p.d.log.Warn("Cancel generation workflow failed", "workflow_id", p.run.GetID(), "error", cerr)
			}
			return nil, ctx.Err()
		}
		return nil, classify(p.req, err)
	}
	return worker.Result(out.Result), nil
}
