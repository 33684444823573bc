package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/production-planner/internal/domain/production"
	"github.com/yungbote/production-planner/internal/platform/logger"
)

func executor(t *testing.T, calls *int32, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("executor: bad body: %v", err)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("executor: missing bearer token")
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExecuteActivity(t *testing.T) {
	var calls int32
	srv := executor(t, &calls, http.StatusOK, `{"result":{"uri":"s3://out.png","quality_score":0.9}}`)
	acts := &Activities{Log: logger.Nop(), Endpoints: map[string]string{"image_generation": srv.URL}, Token: "secret"}

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivityWithOptions(acts.Execute, activity.RegisterOptions{Name: ActivityExecute})

	val, err := env.ExecuteActivity(ActivityExecute, Request{JobID: "j1", JobType: "image_generation", Config: map[string]any{"prompt": "a cat"}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var out Response
	if err := val.Get(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Result["uri"] != "s3://out.png" || out.Result["quality_score"] != 0.9 {
		t.Fatalf("result: %+v", out.Result)
	}

	if _, err := env.ExecuteActivity(ActivityExecute, Request{JobID: "j2", JobType: "music_generation"}); err == nil ||
		!strings.Contains(err.Error(), "no executor endpoint") {
		t.Fatalf("unknown type: want no endpoint error got %v", err)
	}
}

func TestExecuteActivityFallsBackToDefaultEndpoint(t *testing.T) {
	var calls int32
	srv := executor(t, &calls, http.StatusOK, `{"ok":true}`)
	acts := &Activities{Endpoints: map[string]string{DefaultEndpoint: srv.URL}, Token: "secret"}

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivityWithOptions(acts.Execute, activity.RegisterOptions{Name: ActivityExecute})
	val, err := env.ExecuteActivity(ActivityExecute, Request{JobType: "render"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var out Response
	_ = val.Get(&out)
	if out.Result["ok"] != true || atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("result=%+v calls=%d", out.Result, calls)
	}
}

func TestWorkflowDoesNotRetryActivity(t *testing.T) {
	var calls int32
	srv := executor(t, &calls, http.StatusBadGateway, "upstream down")
	acts := &Activities{Endpoints: map[string]string{DefaultEndpoint: srv.URL}, Token: "secret"}

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})
	env.RegisterActivityWithOptions(acts.Execute, activity.RegisterOptions{Name: ActivityExecute})

	env.ExecuteWorkflow(WorkflowName, Request{JobID: "j1", JobType: "render", Attempt: 1})
	if !env.IsWorkflowCompleted() {
		t.Fatalf("workflow did not complete")
	}
	err := env.GetWorkflowError()
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("workflow error: want executor 502 got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("executor calls: want=1 got=%d", n)
	}
}

func TestWorkflowReturnsResult(t *testing.T) {
	var calls int32
	srv := executor(t, &calls, http.StatusOK, `{"result":{"uri":"mem://v.mp4"}}`)
	acts := &Activities{Endpoints: map[string]string{"final_assembly": srv.URL}, Token: "secret"}

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})
	env.RegisterActivityWithOptions(acts.Execute, activity.RegisterOptions{Name: ActivityExecute})

	env.ExecuteWorkflow(WorkflowName, Request{JobID: "j9", JobType: "final_assembly", TimeoutSeconds: 30})
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow: %v", err)
	}
	var out Response
	if err := env.GetWorkflowResult(&out); err != nil {
		t.Fatalf("result: %v", err)
	}
	if out.Result["uri"] != "mem://v.mp4" {
		t.Fatalf("result: %+v", out.Result)
	}
}

type fakeRun struct {
	temporalsdkclient.WorkflowRun
	id  string
	res Response
	err error
}

func (r *fakeRun) GetID() string    { return r.id }
func (r *fakeRun) GetRunID() string { return "run-1" }
func (r *fakeRun) Get(ctx context.Context, valuePtr interface{}) error {
	if r.err != nil {
		return r.err
	}
	if r.res.Result == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	*(valuePtr.(*Response)) = r.res
	return nil
}

type fakeClient struct {
	temporalsdkclient.Client
	started   []temporalsdkclient.StartWorkflowOptions
	requests  []Request
	run       *fakeRun
	cancelled []string
}

func (c *fakeClient) ExecuteWorkflow(ctx context.Context, opts temporalsdkclient.StartWorkflowOptions, wf interface{}, args ...interface{}) (temporalsdkclient.WorkflowRun, error) {
	c.started = append(c.started, opts)
	c.requests = append(c.requests, args[0].(Request))
	c.run.id = opts.ID
	return c.run, nil
}

func (c *fakeClient) CancelWorkflow(ctx context.Context, workflowID, runID string) error {
	c.cancelled = append(c.cancelled, workflowID)
	return nil
}

func TestDispatcherStartsOneWorkflowPerAttempt(t *testing.T) {
	fc := &fakeClient{run: &fakeRun{res: Response{Result: map[string]any{"uri": "x"}}}}
	d, err := NewDispatcher(fc, "q", logger.Nop())
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	p, err := d.Submit(ctx, production.JobImageGeneration, map[string]any{"job_id": "abc", "manifest_id": "m", "attempt": 2})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	res, err := p.Wait(ctx)
	if err != nil || res["uri"] != "x" {
		t.Fatalf("Wait: res=%v err=%v", res, err)
	}
	if fc.started[0].ID != "generation:abc:2" || fc.started[0].TaskQueue != "q" {
		t.Fatalf("start options: %+v", fc.started[0])
	}
	req := fc.requests[0]
	if req.JobType != "image_generation" || req.Attempt != 2 || req.TimeoutSeconds <= 0 {
		t.Fatalf("request: %+v", req)
	}
}

func TestDispatcherCancelsWorkflowWhenContextEnds(t *testing.T) {
	fc := &fakeClient{run: &fakeRun{}}
	d, _ := NewDispatcher(fc, "q", nil)
	ctx, cancel := context.WithCancel(context.Background())
	p, err := d.Submit(ctx, production.JobRender, map[string]any{"job_id": "abc", "attempt": 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	cancel()
	if _, err := p.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait: want context.Canceled got %v", err)
	}
	if len(fc.cancelled) != 1 || fc.cancelled[0] != "generation:abc:1" {
		t.Fatalf("cancelled workflows: %v", fc.cancelled)
	}

	if _, err := NewDispatcher(nil, "q", nil); err == nil {
		t.Fatalf("nil client should be rejected")
	}
}

func TestDirectWorkerSkipsRetryOnRejection(t *testing.T) {
	var calls int32
	srv := executor(t, &calls, http.StatusUnprocessableEntity, `{"error":"prompt rejected"}`)
	acts := &Activities{Endpoints: map[string]string{DefaultEndpoint: srv.URL}, Token: "secret"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, err := acts.Worker().Submit(ctx, production.JobImageGeneration, map[string]any{"job_id": "00000000-0000-0000-0000-000000000001", "attempt": 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_, err = p.Wait(ctx)
	var je *production.JobExecutionError
	if !errors.As(err, &je) || je.Retryable || production.Retryable(err) {
		t.Fatalf("want non-retryable job error got %v", err)
	}
	if je.JobType != production.JobImageGeneration {
		t.Fatalf("job type: %s", je.JobType)
	}
}

func TestDirectWorkerKeepsServerErrorsRetryable(t *testing.T) {
	var calls int32
	srv := executor(t, &calls, http.StatusServiceUnavailable, "busy")
	acts := &Activities{Endpoints: map[string]string{DefaultEndpoint: srv.URL}, Token: "secret"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, _ := acts.Worker().Submit(ctx, production.JobRender, map[string]any{"job_id": "j", "attempt": 1})
	_, err := p.Wait(ctx)
	var herr *HTTPError
	if !errors.As(err, &herr) || herr.StatusCode != http.StatusServiceUnavailable || !production.Retryable(err) {
		t.Fatalf("want retryable http error got %v", err)
	}

	p, _ = (&Activities{Token: "secret"}).Worker().Submit(ctx, production.JobRender, map[string]any{"job_id": "j"})
	if _, err := p.Wait(ctx); production.Retryable(err) {
		t.Fatalf("missing endpoint must not be retried: %v", err)
	}
}

func TestNewRequestReadsSchedulerConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	req := NewRequest(ctx, production.JobVoiceoverGeneration, map[string]any{"job_id": "a", "manifest_id": "m", "attempt": float64(3)})
	if req.JobID != "a" || req.ManifestID != "m" || req.Attempt != 3 || req.JobType != "voiceover_generation" {
		t.Fatalf("request: %+v", req)
	}
	if req.TimeoutSeconds < 80 || req.TimeoutSeconds > 90 {
		t.Fatalf("timeout: %d", req.TimeoutSeconds)
	}
	if r := NewRequest(context.Background(), production.JobRender, map[string]any{}); r.TimeoutSeconds != 0 {
		t.Fatalf("no deadline: timeout=%d", r.TimeoutSeconds)
	}
}
