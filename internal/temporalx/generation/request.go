package generation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/production-planner/internal/domain/production"
)

// NewRequest builds the attempt request from the scheduler's job config.
// The context deadline becomes the attempt timeout.
func NewRequest(ctx context.Context, jobType production.JobType, config map[string]any) Request {
	req := Request{
		JobType: string(jobType),
		Config:  config,
	}
	req.JobID, _ = config["job_id"].(string)
	req.ManifestID, _ = config["manifest_id"].(string)
	switch v := config["attempt"].(type) {
	case int:
		req.Attempt = v
	case float64:
		req.Attempt = int(v)
	}
	if dl, ok := ctx.Deadline(); ok {
		if secs := int(time.Until(dl).Seconds()); secs > 0 {
			req.TimeoutSeconds = secs
		}
	}
	return req
}

// classify turns errors the executor marked as final into non-retryable job
// failures so the scheduler does not try again.
func classify(req Request, err error) error {
	if err == nil {
		return nil
	}
	final := false
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.NonRetryable() {
		final = true
	}
	var herr *HTTPError
	if errors.As(err, &herr) && herr.StatusCode >= 400 && herr.StatusCode < 500 {
		final = true
	}
	if !final {
		return err
	}
	id, _ := uuid.Parse(req.JobID)
	return &production.JobExecutionError{
		JobID:     id,
		JobType:   production.JobType(req.JobType),
		Message:   err.Error(),
		Retryable: false,
		Cause:     err,
	}
}
