package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/yungbote/production-planner/internal/domain/production"
	"github.com/yungbote/production-planner/internal/jobs/worker"
	"github.com/yungbote/production-planner/internal/platform/logger"
	"github.com/yungbote/production-planner/internal/production/governance"
	"github.com/yungbote/production-planner/internal/production/lifecycle"
)

// Scheduler runs manifests. The worker pool ceiling is shared by every run
// started from the same Scheduler.
type Scheduler struct {
	workers worker.Worker
	gov     *governance.Engine
	pool    *semaphore.Weighted
	log     *logger.Logger
	tracer  trace.Tracer

	PollInterval time.Duration
	Now          func() time.Time
}

func NewScheduler(w worker.Worker, gov *governance.Engine, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	if gov == nil {
		gov = governance.NewEngine(nil, log)
	}
	return &Scheduler{
		workers:      w,
		gov:          gov,
		pool:         semaphore.NewWeighted(int64(gov.MaxConcurrentJobs())),
		log:          log.With("component", "Scheduler"),
		tracer:       otel.Tracer("github.com/yungbote/production-planner/internal/jobs/orchestrator"),
		PollInterval: 100 * time.Millisecond,
		Now:          time.Now,
	}
}

// Run is one manifest in production. All run state is owned by a single
// goroutine; worker results come back on a channel.
type Run struct {
	s    *Scheduler
	opts RunOptions
	log  *logger.Logger

	m      *production.ProductionManifest
	g      *Graph
	jobs   map[uuid.UUID]*production.ProductionJob
	scenes map[uuid.UUID]*production.ProductionScene
	assets map[uuid.UUID]*production.ProductionAsset
	byScn  map[uuid.UUID][]*production.ProductionJob

	results  chan jobResult
	cancelCh chan uuid.UUID
	inflight map[uuid.UUID]context.CancelFunc
	cancel   context.CancelFunc

	spent     float64
	started   time.Time
	failure   string
	cancelled bool

	done    chan struct{}
	outcome *Outcome
}

// Start builds the dependency graph and begins dispatching in the background.
// A cyclic or dangling graph is rejected before any job runs.
func (s *Scheduler) Start(ctx context.Context, m *production.ProductionManifest, opts RunOptions) (*Run, error) {
	if m == nil {
		return nil, production.NewError(production.CodeValidation, "start run", "manifest is required", nil)
	}
	if s.workers == nil {
		return nil, production.NewError(production.CodePreconditionFailed, "start run", "no worker configured", nil)
	}
	cp := m.Clone()
	g, err := BuildGraph(cp.Jobs)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &Run{
		s:        s,
		opts:     opts,
		log:      s.log.With("manifest_id", cp.ID.String()),
		m:        cp,
		g:        g,
		jobs:     map[uuid.UUID]*production.ProductionJob{},
		scenes:   map[uuid.UUID]*production.ProductionScene{},
		assets:   map[uuid.UUID]*production.ProductionAsset{},
		byScn:    map[uuid.UUID][]*production.ProductionJob{},
		results:  make(chan jobResult, len(cp.Jobs)+1),
		cancelCh: make(chan uuid.UUID),
		inflight: map[uuid.UUID]context.CancelFunc{},
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, j := range cp.Jobs {
		r.jobs[j.ID] = j
		if j.SceneID != nil {
			r.byScn[*j.SceneID] = append(r.byScn[*j.SceneID], j)
		}
	}
	for _, sc := range cp.Scenes {
		r.scenes[sc.ID] = sc
	}
	for _, a := range cp.Assets {
		r.assets[a.ID] = a
	}

	go r.loop(ctx)
	return r, nil
}

// Execute starts a run and waits for its outcome.
func (s *Scheduler) Execute(ctx context.Context, m *production.ProductionManifest, opts RunOptions) (*Outcome, error) {
	r, err := s.Start(ctx, m, opts)
	if err != nil {
		return nil, err
	}
	<-r.Done()
	return r.Outcome(), nil
}

func (r *Run) Done() <-chan struct{} { return r.done }

// Outcome is nil until Done is closed.
func (r *Run) Outcome() *Outcome {
	select {
	case <-r.done:
		return r.outcome
	default:
		return nil
	}
}

func (r *Run) Wait(ctx context.Context) (*Outcome, error) {
	select {
	case <-r.done:
		return r.outcome, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel cancels every non-terminal job of the run.
func (r *Run) Cancel() { r.cancel() }

// CancelJob cancels one job. Its blocking dependents fail as if it had failed.
func (r *Run) CancelJob(id uuid.UUID) {
	select {
	case r.cancelCh <- id:
	case <-r.done:
	}
}

func (r *Run) loop(ctx context.Context) {
	defer close(r.done)
	defer r.cancel()

	r.started = r.s.Now()
	r.log.Info("Production run started", "jobs", r.g.Len(), "scenes", len(r.scenes))
	r.prepare()

loop:
	for {
		if ctx.Err() != nil {
			r.cancelAll()
			break
		}
		starved := r.dispatch(ctx)
		next := r.nextRetry()
		if len(r.inflight) == 0 && !starved && next == nil {
			r.failStuck()
			break
		}

		var wake <-chan time.Time
		switch {
		case starved:
			wake = time.After(r.s.PollInterval)
		case next != nil:
			wake = time.After(next.Sub(r.s.Now()))
		}

		select {
		case res := <-r.results:
			r.handle(res)
		case id := <-r.cancelCh:
			r.cancelOne(id)
		case <-wake:
		case <-ctx.Done():
			r.cancelAll()
			break loop
		}
	}
	r.finish()
}

// prepare normalizes statuses carried over from storage.
func (r *Run) prepare() {
	now := r.s.Now()
	for _, id := range r.g.order {
		j := r.jobs[id]
		switch j.Status {
		case "":
			j.Status = production.JobPending
		case production.JobProcessing:
			// A previous run died mid-flight; the attempt already counted.
			j.Status = production.JobPending
			r.emitJob(j, "")
		}
	}
	for _, id := range r.g.order {
		j := r.jobs[id]
		if j.Status == production.JobFailed || j.Status == production.JobCancelled {
			r.terminal(j, now)
		}
	}
	for _, sc := range r.m.Scenes {
		if sc.Status == "" {
			sc.Status = production.ScenePending
		}
		r.refreshScene(sc.ID, uuid.Nil, now)
	}
}

func (r *Run) depsSatisfied(j *production.ProductionJob) bool {
	for _, d := range j.Dependencies {
		if d.Kind != production.DependencyBlocking {
			continue
		}
		dep := r.jobs[d.JobID]
		if dep == nil || dep.Status != production.JobCompleted {
			return false
		}
	}
	return true
}

func (r *Run) scenesReady() bool {
	for _, sc := range r.scenes {
		if sc.Status != production.SceneReady {
			return false
		}
	}
	return true
}

// readyJobs lists dispatchable jobs by priority, then topological order.
func (r *Run) readyJobs(now time.Time) []*production.ProductionJob {
	var out []*production.ProductionJob
	for _, id := range r.g.order {
		j := r.jobs[id]
		if j.Status != production.JobPending {
			continue
		}
		if j.NextAttemptAt != nil && j.NextAttemptAt.After(now) {
			continue
		}
		if !r.depsSatisfied(j) {
			continue
		}
		if j.Type.Assembles() && !r.scenesReady() {
			continue
		}
		out = append(out, j)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Priority > out[b].Priority })
	return out
}

func (r *Run) nextRetry() *time.Time {
	var next *time.Time
	for _, j := range r.jobs {
		if j.Status == production.JobPending && j.NextAttemptAt != nil {
			next = earliestTime(next, j.NextAttemptAt)
		}
	}
	return next
}

// dispatch launches ready jobs until the pool is full. It reports whether a
// ready job was left waiting for a pool slot.
func (r *Run) dispatch(ctx context.Context) bool {
	now := r.s.Now()
	for _, j := range r.readyJobs(now) {
		if j.Status != production.JobPending {
			continue
		}
		if !r.s.pool.TryAcquire(1) {
			return true
		}
		warning, ok := r.admit(j, now)
		if !ok {
			r.s.pool.Release(1)
			continue
		}
		r.launch(ctx, j, warning, now)
	}
	return false
}

// admit asks governance whether j may run. A refusal fails j for good.
func (r *Run) admit(j *production.ProductionJob, now time.Time) (string, bool) {
	gov := r.s.gov
	cost := gov.CheckCostCap(r.spent, j.EstimatedCost, r.opts.Profile)
	if !cost.Allowed {
		r.reject(j, cost, now)
		return "", false
	}
	planned := time.Duration(j.EstimatedDurationSeconds * float64(time.Second))
	tm := gov.CheckTimeoutCap(now.Sub(r.started), planned, r.opts.Profile)
	if !tm.Allowed {
		r.reject(j, tm, now)
		return "", false
	}
	if cost.Warning != "" {
		return cost.Warning, true
	}
	return tm.Warning, true
}

func (r *Run) reject(j *production.ProductionJob, d governance.Decision, now time.Time) {
	r.log.Warn("Job refused by governance", "job_id", j.ID, "job_type", j.Type, "check", d.Check, "reason", d.Reason)
	if err := lifecycle.FailJob(j, d.Err().Error(), now); err != nil {
		r.log.Error("Fail job", "job_id", j.ID, "error", err)
		return
	}
	r.emitJob(j, "")
	r.terminal(j, now)
}

func (r *Run) launch(ctx context.Context, j *production.ProductionJob, warning string, now time.Time) {
	if err := lifecycle.StartJob(j, now); err != nil {
		r.s.pool.Release(1)
		r.log.Error("Start job", "job_id", j.ID, "error", err)
		return
	}
	r.spent += j.EstimatedCost
	r.emitJob(j, warning)
	if j.SceneID != nil {
		if sc := r.scenes[*j.SceneID]; sc != nil && sc.Status == production.ScenePending {
			sc.Status = production.SceneProcessing
			r.emitScene(sc)
		}
	}
	for _, aid := range j.OutputAssets {
		if a := r.assets[aid]; a != nil && a.Status == production.AssetPending {
			a.Status = production.AssetProcessing
			r.emitAsset(a)
		}
	}

	var jctx context.Context
	var cancel context.CancelFunc
	if timeout := r.s.gov.JobTimeout(r.opts.Profile); timeout > 0 {
		jctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		jctx, cancel = context.WithCancel(ctx)
	}
	r.inflight[j.ID] = cancel

	id, jt, attempt := j.ID, j.Type, j.Attempts
	cfg := r.jobConfig(j)
	jctx, span := r.s.tracer.Start(jctx, "orchestrator.dispatch", trace.WithAttributes(
		attribute.String("manifest_id", r.m.ID.String()),
		attribute.String("job_id", id.String()),
		attribute.String("job_type", string(jt)),
		attribute.Int("attempt", attempt),
	))
	r.log.Debug("Job dispatched", "job_id", id, "job_type", jt, "attempt", attempt)

	go func() {
		defer r.s.pool.Release(1)
		defer span.End()
		var res worker.Result
		p, err := r.s.workers.Submit(jctx, jt, cfg)
		if err == nil {
			res, err = p.Wait(jctx)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		r.results <- jobResult{jobID: id, attempt: attempt, result: res, err: err}
	}()
}

func (r *Run) jobConfig(j *production.ProductionJob) map[string]any {
	cfg := r.s.gov.WorkerOptions(r.opts.Profile)
	for k, v := range j.Config {
		cfg[k] = v
	}
	cfg["job_id"] = j.ID.String()
	cfg["manifest_id"] = r.m.ID.String()
	cfg["attempt"] = j.Attempts
	if j.SceneID != nil {
		cfg["scene_id"] = j.SceneID.String()
	}
	if len(j.OutputAssets) > 0 {
		ids := make([]string, 0, len(j.OutputAssets))
		for _, a := range j.OutputAssets {
			ids = append(ids, a.String())
		}
		cfg["asset_ids"] = ids
	}
	if len(j.OptionalFailures) > 0 {
		ids := make([]string, 0, len(j.OptionalFailures))
		for _, a := range j.OptionalFailures {
			ids = append(ids, a.String())
		}
		cfg["optional_failures"] = ids
	}
	if j.Type.Assembles() {
		order := r.assemblyOrder()
		ids := make([]string, 0, len(order))
		for _, id := range order {
			ids = append(ids, id.String())
		}
		cfg["scene_order"] = ids
	}
	return cfg
}

func (r *Run) assemblyOrder() []uuid.UUID {
	scenes := append([]*production.ProductionScene(nil), r.m.Scenes...)
	sort.SliceStable(scenes, func(a, b int) bool { return scenes[a].SceneOrder < scenes[b].SceneOrder })
	out := make([]uuid.UUID, 0, len(scenes))
	for _, sc := range scenes {
		out = append(out, sc.ID)
	}
	return out
}

func (r *Run) handle(res jobResult) {
	if cancel := r.inflight[res.jobID]; cancel != nil {
		cancel()
		delete(r.inflight, res.jobID)
	}
	j := r.jobs[res.jobID]
	if j == nil || j.Status != production.JobProcessing || j.Attempts != res.attempt {
		return
	}
	now := r.s.Now()
	err := res.err
	if err == nil {
		if score, ok := qualityScore(res.result); ok {
			if d := r.s.gov.CheckQualityGate(score, r.opts.Profile); !d.Allowed {
				err = &production.JobExecutionError{JobID: j.ID, JobType: j.Type, Message: d.Reason, Retryable: true}
			}
		}
	}
	if err != nil {
		r.jobErrored(j, err, now)
		return
	}
	if err := lifecycle.CompleteJob(j, res.result, now); err != nil {
		r.log.Error("Complete job", "job_id", j.ID, "error", err)
		return
	}
	r.log.Info("Job completed", "job_id", j.ID, "job_type", j.Type, "attempts", j.Attempts)
	r.emitJob(j, "")
	for _, aid := range j.OutputAssets {
		if a := r.assets[aid]; a != nil && a.Status != production.AssetReady {
			a.Status = production.AssetReady
			r.emitAsset(a)
		}
	}
	if j.SceneID != nil {
		r.refreshScene(*j.SceneID, uuid.Nil, now)
	}
}

func (r *Run) jobErrored(j *production.ProductionJob, err error, now time.Time) {
	msg := errString(err)
	policy := r.s.gov.RetryPolicy(r.opts.Profile)
	max := j.MaxAttempts
	if max <= 0 {
		max = policy.MaxRetries
	}
	if production.Retryable(err) && j.Attempts < max {
		if rerr := lifecycle.RetryJob(j, msg, now.Add(policy.Backoff)); rerr != nil {
			r.log.Error("Retry job", "job_id", j.ID, "error", rerr)
			return
		}
		r.log.Warn("Job attempt failed, retrying", "job_id", j.ID, "job_type", j.Type, "attempt", j.Attempts, "max_attempts", max, "error", msg)
		r.emitJob(j, "")
		return
	}
	if ferr := lifecycle.FailJob(j, msg, now); ferr != nil {
		r.log.Error("Fail job", "job_id", j.ID, "error", ferr)
		return
	}
	r.log.Warn("Job failed", "job_id", j.ID, "job_type", j.Type, "attempts", j.Attempts, "error", msg)
	r.emitJob(j, "")
	r.terminal(j, now)
}

// terminal propagates a failed or cancelled job: blocking dependents fail,
// optional dependents are annotated, parallel edges are ignored.
func (r *Run) terminal(j *production.ProductionJob, now time.Time) {
	for _, aid := range j.OutputAssets {
		if a := r.assets[aid]; a != nil && a.Status != production.AssetFailed {
			a.Status = production.AssetFailed
			r.emitAsset(a)
		}
	}
	if r.g.Blocking(j.ID) && r.failure == "" {
		r.failure = fmt.Sprintf("%s job %s %s: %s", j.Type, j.ID, j.Status, j.Error)
	}
	for _, e := range r.g.Dependents(j.ID) {
		d := r.jobs[e.To]
		if d == nil {
			continue
		}
		switch e.Kind {
		case production.DependencyBlocking:
			if d.Status != production.JobPending {
				continue
			}
			if err := lifecycle.BlockJob(d, j.ID, now); err != nil {
				r.log.Error("Block job", "job_id", d.ID, "error", err)
				continue
			}
			r.emitJob(d, "")
			r.terminal(d, now)
		case production.DependencyOptional:
			if d.Status.Terminal() || containsID(d.OptionalFailures, j.ID) {
				continue
			}
			d.OptionalFailures = append(d.OptionalFailures, j.ID)
			r.emitJob(d, "")
		}
	}
	if j.SceneID != nil {
		r.refreshScene(*j.SceneID, j.ID, now)
	}
}

// refreshScene settles a scene once its jobs are done. A scene fails when one
// of its blocking jobs failed, which also blocks final assembly.
func (r *Run) refreshScene(id uuid.UUID, cause uuid.UUID, now time.Time) {
	sc := r.scenes[id]
	if sc == nil || sc.Status == production.SceneReady || sc.Status == production.SceneFailed {
		return
	}
	allDone, failed := true, false
	var failedBy uuid.UUID
	for _, j := range r.byScn[id] {
		if !j.Status.Terminal() {
			allDone = false
			continue
		}
		if j.Status != production.JobCompleted && r.g.Blocking(j.ID) {
			failed = true
			if failedBy == uuid.Nil {
				failedBy = j.ID
			}
		}
	}
	switch {
	case failed:
		sc.Status = production.SceneFailed
		r.emitScene(sc)
		if cause == uuid.Nil {
			cause = failedBy
		}
		for _, aj := range r.jobs {
			if aj.Type.Assembles() && aj.Status == production.JobPending {
				if err := lifecycle.BlockJob(aj, cause, now); err == nil {
					r.emitJob(aj, "")
					r.terminal(aj, now)
				}
			}
		}
	case allDone:
		sc.Status = production.SceneReady
		r.emitScene(sc)
		for _, aid := range sc.AssetRefs() {
			if a := r.assets[aid]; a != nil && (a.Status == production.AssetPending || a.Status == production.AssetProcessing) {
				a.Status = production.AssetReady
				r.emitAsset(a)
			}
		}
	}
}

func (r *Run) cancelOne(id uuid.UUID) {
	j := r.jobs[id]
	if j == nil || j.Status.Terminal() {
		return
	}
	if cancel := r.inflight[id]; cancel != nil {
		cancel()
		delete(r.inflight, id)
	}
	now := r.s.Now()
	if err := lifecycle.CancelJob(j, now); err != nil {
		r.log.Error("Cancel job", "job_id", id, "error", err)
		return
	}
	r.log.Info("Job cancelled", "job_id", id, "job_type", j.Type)
	r.emitJob(j, "")
	r.terminal(j, now)
}

func (r *Run) cancelAll() {
	r.cancelled = true
	for id, cancel := range r.inflight {
		cancel()
		delete(r.inflight, id)
	}
	now := r.s.Now()
	for _, id := range r.g.order {
		j := r.jobs[id]
		if j.Status.Terminal() {
			continue
		}
		if err := lifecycle.CancelJob(j, now); err == nil {
			r.emitJob(j, "")
		}
	}
	if r.failure == "" {
		r.failure = "production cancelled"
	}
	r.log.Info("Production run cancelled")
}

// failStuck fails pending jobs that can no longer become ready.
func (r *Run) failStuck() {
	now := r.s.Now()
	for _, id := range r.g.order {
		j := r.jobs[id]
		if j.Status != production.JobPending {
			continue
		}
		if err := lifecycle.FailJob(j, "dependencies can never be satisfied", now); err != nil {
			continue
		}
		r.emitJob(j, "")
		r.terminal(j, now)
	}
}

func (r *Run) assemblyDone() bool {
	if r.g.HasAssembly() {
		fj := r.m.FinalJob()
		return fj != nil && fj.Status == production.JobCompleted
	}
	for _, j := range r.jobs {
		if r.g.Blocking(j.ID) && j.Status != production.JobCompleted {
			return false
		}
	}
	return true
}

func (r *Run) finish() {
	out := &Outcome{
		ManifestID:    r.m.ID,
		Cancelled:     r.cancelled,
		AssemblyOrder: r.assemblyOrder(),
		Spent:         r.spent,
		StartedAt:     r.started,
		FinishedAt:    r.s.Now(),
	}
	switch {
	case r.failure == "" && r.assemblyDone():
		out.Status = production.ManifestCompleted
	case r.failure != "":
		out.Status = production.ManifestFailed
		out.Error = r.failure
	default:
		out.Status = production.ManifestFailed
		out.Error = "final assembly did not complete"
	}
	for _, j := range r.m.Jobs {
		out.Jobs = append(out.Jobs, j.Clone())
	}
	for _, sc := range r.m.Scenes {
		out.Scenes = append(out.Scenes, sc.Clone())
	}
	for _, a := range r.m.Assets {
		out.Assets = append(out.Assets, a.Clone())
	}
	r.outcome = out
	r.log.Info("Production run finished", "status", out.Status, "error", out.Error, "spent", out.Spent)
}

func (r *Run) emitJob(j *production.ProductionJob, warning string) {
	if r.opts.OnChange != nil {
		r.opts.OnChange(Change{ManifestID: r.m.ID, Job: j.Clone(), Warning: warning})
	}
}

func (r *Run) emitScene(sc *production.ProductionScene) {
	if r.opts.OnChange != nil {
		r.opts.OnChange(Change{ManifestID: r.m.ID, Scene: sc.Clone()})
	}
}

func (r *Run) emitAsset(a *production.ProductionAsset) {
	if r.opts.OnChange != nil {
		r.opts.OnChange(Change{ManifestID: r.m.ID, Asset: a.Clone()})
	}
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func qualityScore(res map[string]any) (float64, bool) {
	if res == nil {
		return 0, false
	}
	switch v := res["quality_score"].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}
