package planner

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	repoprod "github.com/yungbote/production-planner/internal/data/repos/production"
	"github.com/yungbote/production-planner/internal/domain/production"
	"github.com/yungbote/production-planner/internal/jobs/orchestrator"
	"github.com/yungbote/production-planner/internal/platform/dbctx"
	"github.com/yungbote/production-planner/internal/production/lifecycle"
)

// Start moves an approved manifest into production and hands it to the
// scheduler. A final_assembly job is added first when the manifest has none.
// The call returns once the run is underway; progress is written back as it
// happens and the manifest ends completed or failed.
func (s *Service) Start(ctx context.Context, owner, id uuid.UUID) (*production.ProductionManifest, error) {
	ctx, span := s.span(ctx, "start", id)
	defer span.End()
	if s.sched == nil {
		return nil, production.NewError(production.CodePreconditionFailed, "planner.start", "no scheduler configured", nil)
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil, production.NewError(production.CodePreconditionFailed, "planner.start", "planner is shutting down", nil)
	}
	if _, running := s.runs[id]; running {
		s.mu.Unlock()
		return nil, production.NewError(production.CodeConflict, "planner.start", "manifest is already in production", nil)
	}
	// Reserve the slot so a concurrent Start cannot launch a second run.
	ar := &activeRun{done: make(chan struct{})}
	s.runs[id] = ar
	s.mu.Unlock()

	started, err := s.launch(ctx, owner, id, ar)
	if err != nil {
		s.mu.Lock()
		delete(s.runs, id)
		s.mu.Unlock()
		close(ar.done)
		return nil, err
	}
	return started, nil
}

func (s *Service) launch(ctx context.Context, owner, id uuid.UUID, ar *activeRun) (*production.ProductionManifest, error) {
	started, err := s.begin(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	base := context.WithoutCancel(ctx)
	run, err := s.sched.Start(base, started, orchestrator.RunOptions{
		Profile:  started.Profile,
		OnChange: func(c orchestrator.Change) { s.record(base, c) },
	})
	if err != nil {
		// The graph was checked above; anything here is a setup failure.
		_, _ = s.mutate(base, uuid.Nil, id, func(cur *production.ProductionManifest) (production.ManifestPatch, error) {
			return lifecycle.Fail(cur, err.Error(), s.Now())
		})
		return nil, err
	}

	s.mu.Lock()
	ar.run = run
	stopped := ar.reason != ""
	s.mu.Unlock()
	if stopped {
		run.Cancel()
	}
	s.wg.Add(1)
	go s.follow(id, ar)

	s.log.Info("Production started", "manifest_id", id, "jobs", len(started.Jobs), "profile", started.Profile)
	return started, nil
}

// begin writes the move to in_production. A final_assembly job added on the
// way is stored by the same conditional write, so a start that fails leaves
// the approved manifest as the owner wrote it.
func (s *Service) begin(ctx context.Context, owner, id uuid.UUID) (*production.ProductionManifest, error) {
	for attempt := 0; ; attempt++ {
		m, err := s.load(ctx, owner, id)
		if err != nil {
			return nil, err
		}
		if m.Status != production.ManifestApproved {
			return nil, production.NewError(production.CodeIllegalTransition, "planner.start",
				fmt.Sprintf("manifest cannot move from %s to %s", m.Status, production.ManifestInProduction), nil)
		}
		final := orchestrator.AutoFinalAssembly(m)
		if _, err := orchestrator.BuildGraph(m.Jobs); err != nil {
			return nil, err
		}
		patch, err := lifecycle.Start(m, s.Now())
		if err != nil {
			return nil, err
		}

		var started *production.ProductionManifest
		if final != nil {
			started, err = s.repo.ReplaceChildren(dbctx.From(ctx), id, m.Version, patch, repoprod.Children{
				Scenes: m.Scenes,
				Assets: m.Assets,
				Jobs:   m.Jobs,
			})
		} else {
			started, err = s.repo.UpdateManifest(dbctx.From(ctx), id, m.Version, patch)
		}
		if errors.Is(err, production.ErrVersionConflict) && attempt < s.ConflictRetries {
			s.log.Debug("Manifest version conflict, retrying", "manifest_id", id, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}
		if final != nil {
			s.log.Info("Added final assembly job", "manifest_id", id, "job_id", final.ID, "dependencies", len(final.Dependencies))
		}
		s.publish(ctx, production.ManifestEvent{ManifestID: id, Kind: production.EventManifestStatus, Status: string(started.Status)})
		return started, nil
	}
}

// record persists one transition reported by the scheduler.
func (s *Service) record(ctx context.Context, c orchestrator.Change) {
	dbc := dbctx.From(ctx)
	switch {
	case c.Job != nil:
		if err := s.repo.UpdateJob(dbc, c.Job); err != nil {
			s.log.Error("Persist job state failed", "manifest_id", c.ManifestID, "job_id", c.Job.ID, "error", err)
		}
		jid := c.Job.ID
		msg := c.Job.Error
		if c.Warning != "" {
			msg = c.Warning
		}
		s.publish(ctx, production.ManifestEvent{
			ManifestID: c.ManifestID,
			JobID:      &jid,
			Kind:       production.EventJobStatus,
			Status:     string(c.Job.Status),
			Message:    msg,
		})
	case c.Scene != nil:
		if err := s.repo.UpdateScene(dbc, c.Scene); err != nil {
			s.log.Error("Persist scene state failed", "manifest_id", c.ManifestID, "scene_id", c.Scene.ID, "error", err)
		}
		s.publish(ctx, production.ManifestEvent{
			ManifestID: c.ManifestID,
			Kind:       production.EventSceneStatus,
			Status:     string(c.Scene.Status),
			Message:    c.Scene.ID.String(),
		})
	case c.Asset != nil:
		if err := s.repo.UpdateAsset(dbc, c.Asset); err != nil {
			s.log.Error("Persist asset state failed", "manifest_id", c.ManifestID, "asset_id", c.Asset.ID, "error", err)
		}
	}
}

// follow waits for a run and writes the manifest's terminal state.
func (s *Service) follow(id uuid.UUID, ar *activeRun) {
	defer s.wg.Done()
	defer close(ar.done)
	defer func() {
		s.mu.Lock()
		delete(s.runs, id)
		s.mu.Unlock()
	}()

	<-ar.run.Done()
	out := ar.run.Outcome()

	ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()
	s.mu.Lock()
	reason := ar.reason
	s.mu.Unlock()

	_, err := s.mutate(ctx, uuid.Nil, id, func(m *production.ProductionManifest) (production.ManifestPatch, error) {
		if m.Status != production.ManifestInProduction {
			return production.ManifestPatch{}, nil
		}
		m.Jobs = out.Jobs
		now := s.Now()
		if out.Status == production.ManifestCompleted {
			patch, err := lifecycle.Complete(m, now)
			if err == nil {
				return patch, nil
			}
			s.log.Warn("Run reported completion but manifest is not complete", "manifest_id", id, "error", err)
			return lifecycle.Fail(m, err.Error(), now)
		}
		msg := out.Error
		if out.Cancelled && reason != "" {
			msg = reason
		}
		return lifecycle.Fail(m, msg, now)
	})
	if err != nil {
		s.log.Error("Persist production outcome failed", "manifest_id", id, "error", err)
		return
	}
	s.log.Info("Production finished", "manifest_id", id, "status", out.Status, "error", out.Error, "spent", out.Spent)
}

func (s *Service) stop(ar *activeRun, reason string) {
	s.mu.Lock()
	if ar.reason == "" {
		ar.reason = reason
	}
	run := ar.run
	s.mu.Unlock()
	if run != nil {
		run.Cancel()
	}
}

// Cancel stops a manifest. A running production has its open jobs cancelled;
// any other non-terminal manifest is failed directly.
func (s *Service) Cancel(ctx context.Context, owner, id uuid.UUID) (*production.ProductionManifest, error) {
	ctx, span := s.span(ctx, "cancel", id)
	defer span.End()
	m, err := s.load(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if ar := s.active(id); ar != nil {
		s.stop(ar, reasonCancelled)
		select {
		case <-ar.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return s.load(ctx, owner, id)
	}
	if m.Status.Terminal() {
		return nil, production.NewError(production.CodeIllegalTransition, "planner.cancel",
			fmt.Sprintf("manifest is already %s", m.Status), nil)
	}
	out, err := s.mutate(ctx, owner, id, func(cur *production.ProductionManifest) (production.ManifestPatch, error) {
		return lifecycle.Fail(cur, reasonCancelled, s.Now())
	})
	if err != nil {
		return nil, err
	}
	// Jobs left behind by an interrupted run.
	now := s.Now()
	for _, j := range out.Jobs {
		if j.Status.Terminal() {
			continue
		}
		if err := lifecycle.CancelJob(j, now); err != nil {
			continue
		}
		if err := s.repo.UpdateJob(dbctx.From(ctx), j); err != nil {
			s.log.Warn("Cancel orphaned job failed", "manifest_id", id, "job_id", j.ID, "error", err)
		}
	}
	return out, nil
}

// CancelJob cancels one job of a running production. Its blocking
// dependents fail as if it had failed.
func (s *Service) CancelJob(ctx context.Context, owner, id, jobID uuid.UUID) error {
	m, err := s.load(ctx, owner, id)
	if err != nil {
		return err
	}
	if m.JobByID(jobID) == nil {
		return production.NewError(production.CodeNotFound, "planner.cancel_job", "job not found", nil)
	}
	var run *orchestrator.Run
	s.mu.Lock()
	if ar := s.runs[id]; ar != nil {
		run = ar.run
	}
	s.mu.Unlock()
	if run == nil {
		return production.NewError(production.CodePreconditionFailed, "planner.cancel_job", "manifest is not running", nil)
	}
	run.CancelJob(jobID)
	return nil
}

// Wait blocks until the manifest's run, if any, has been recorded.
func (s *Service) Wait(ctx context.Context, id uuid.UUID) error {
	ar := s.active(id)
	if ar == nil {
		return nil
	}
	select {
	case <-ar.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new productions, cancels the running ones and
// waits until their outcome is stored.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	runs := make([]*activeRun, 0, len(s.runs))
	for _, ar := range s.runs {
		runs = append(runs, ar)
	}
	s.mu.Unlock()
	for _, ar := range runs {
		s.stop(ar, reasonShutdown)
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
