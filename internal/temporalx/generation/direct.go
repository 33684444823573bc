package generation

import (
	"context"

	"github.com/yungbote/production-planner/internal/domain/production"
	"github.com/yungbote/production-planner/internal/jobs/worker"
)

// Worker calls the executors in-process, without Temporal.
func (a *Activities) Worker() worker.Worker {
	return worker.Func(func(ctx context.Context, jobType production.JobType, config map[string]any) (worker.Result, error) {
		req := NewRequest(ctx, jobType, config)
		res, err := a.Call(ctx, req)
		if err != nil {
			return nil, classify(req, err)
		}
		return worker.Result(res.Result), nil
	})
}
