package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/production-planner/internal/platform/logger"
)

// DefaultEndpoint is the Endpoints key used for job types without their own.
const DefaultEndpoint = "default"

const maxErrorBody = 512

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("executor http %d: %s", e.StatusCode, e.Body)
}

// Activities call the generation executor configured for each job type.
type Activities struct {
	Log       *logger.Logger
	HTTP      *http.Client
	Endpoints map[string]string
	Token     string

	HeartbeatEvery time.Duration
}

func (a *Activities) endpoint(jobType string) (string, bool) {
	if u, ok := a.Endpoints[jobType]; ok && u != "" {
		return u, true
	}
	u, ok := a.Endpoints[DefaultEndpoint]
	return u, ok && u != ""
}

// Execute is the generation_execute activity.
func (a *Activities) Execute(ctx context.Context, req Request) (Response, error) {
	stop := a.startHeartbeat(ctx)
	defer stop()
	return a.Call(ctx, req)
}

// Call posts req to its executor and decodes the result. It needs no
// activity context.
func (a *Activities) Call(ctx context.Context, req Request) (Response, error) {
	url, ok := a.endpoint(req.JobType)
	if !ok {
		return Response{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("no executor endpoint for job_type=%s", req.JobType), "no_endpoint", nil)
	}
	log := a.Log
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("job_id", req.JobID, "job_type", req.JobType, "attempt", req.Attempt)

	started := time.Now()
	raw, err := a.post(ctx, url, req)
	if err != nil {
		log.Warn("Generation executor call failed", "error", err, "elapsed", time.Since(started).String())
		return Response{}, err
	}

	var body map[string]any
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return Response{}, fmt.Errorf("executor decode: %w", err)
		}
	}
	// Executors may wrap the payload in {"result": {...}}.
	if inner, ok := body["result"].(map[string]any); ok && len(body) == 1 {
		body = inner
	}
	if body == nil {
		body = map[string]any{}
	}
	log.Debug("Generation executor call finished", "elapsed", time.Since(started).String())
	return Response{Result: body}, nil
}

func (a *Activities) post(ctx context.Context, url string, req Request) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return nil, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	if a.Token != "" {
		hreq.Header.Set("Authorization", "Bearer "+a.Token)
	}

	hc := a.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(hreq)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := strings.TrimSpace(string(raw))
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		herr := &HTTPError{StatusCode: resp.StatusCode, Body: body}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, temporal.NewNonRetryableApplicationError(herr.Error(), "executor_rejected", herr)
		}
		return nil, herr
	}
	return raw, nil
}

func (a *Activities) startHeartbeat(ctx context.Context) func() {
	every := a.HeartbeatEvery
	if every <= 0 {
		every = 10 * time.Second
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
