package generation

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const defaultActivityTimeout = 10 * time.Minute

// Workflow runs a single generation attempt. Temporal does not retry the
// activity; the scheduler owns retries and backoff.
func Workflow(ctx workflow.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.JobType) == "" {
		return Response{}, temporal.NewNonRetryableApplicationError("missing job_type", "bad_request", nil)
	}
	timeout := defaultActivityTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	var out Response
	if err := workflow.ExecuteActivity(ctx, ActivityExecute, req).Get(ctx, &out); err != nil {
		return Response{}, fmt.Errorf("%s job %s: %w", req.JobType, req.JobID, err)
	}
	return out, nil
}
