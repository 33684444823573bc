package planner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	repoprod "github.com/yungbote/production-planner/internal/data/repos/production"
	"github.com/yungbote/production-planner/internal/domain/production"
	"github.com/yungbote/production-planner/internal/jobs/orchestrator"
	"github.com/yungbote/production-planner/internal/platform/dbctx"
	"github.com/yungbote/production-planner/internal/platform/logger"
	"github.com/yungbote/production-planner/internal/production/governance"
	"github.com/yungbote/production-planner/internal/production/lifecycle"
	"github.com/yungbote/production-planner/internal/production/quality"
	"github.com/yungbote/production-planner/internal/production/validation"
)

const (
	defaultConflictRetries = 3
	finishTimeout          = 30 * time.Second

	reasonCancelled = "cancelled by owner"
	reasonShutdown  = "interrupted by shutdown"
)

// Publisher receives manifest and job transitions.
type Publisher interface {
	Publish(ctx context.Context, ev production.ManifestEvent) error
}

// Edit is an owner change to a draft or validated manifest. With
// ReplaceGraph the scenes, assets and jobs replace the stored ones.
type Edit struct {
	Patch        production.ManifestPatch
	ReplaceGraph bool
	Scenes       []*production.ProductionScene
	Assets       []*production.ProductionAsset
	Jobs         []*production.ProductionJob
}

type activeRun struct {
	run    *orchestrator.Run
	reason string
	done   chan struct{}
}

// Service coordinates manifests through validation, approval and production.
// Each started manifest gets one scheduler run; its transitions are written
// back through the gateway as they happen.
type Service struct {
	repo   repoprod.Gateway
	gov    *governance.Engine
	sched  *orchestrator.Scheduler
	events Publisher
	log    *logger.Logger
	tracer trace.Tracer

	// ConflictRetries bounds re-read and re-apply after a version conflict.
	ConflictRetries int
	Now             func() time.Time

	mu      sync.Mutex
	runs    map[uuid.UUID]*activeRun
	closing bool
	wg      sync.WaitGroup
}

func New(repo repoprod.Gateway, gov *governance.Engine, sched *orchestrator.Scheduler, events Publisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:            repo,
		gov:             gov,
		sched:           sched,
		events:          events,
		log:             log.With("service", "PlannerService"),
		tracer:          otel.Tracer("github.com/yungbote/production-planner/internal/production/planner"),
		ConflictRetries: defaultConflictRetries,
		Now:             func() time.Time { return time.Now().UTC() },
		runs:            map[uuid.UUID]*activeRun{},
	}
}

func (s *Service) span(ctx context.Context, name string, id uuid.UUID) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "planner."+name, trace.WithAttributes(attribute.String("manifest_id", id.String())))
}

// load reads a manifest and hides other owners' manifests. A nil owner skips
// the check for internal callers.
func (s *Service) load(ctx context.Context, owner, id uuid.UUID) (*production.ProductionManifest, error) {
	m, err := s.repo.GetManifest(dbctx.From(ctx), id)
	if err != nil {
		return nil, err
	}
	if owner != uuid.Nil && m.OwnerID != owner {
		return nil, production.NewError(production.CodeNotFound, "planner.load", "manifest not found", nil)
	}
	return m, nil
}

// mutate re-reads the manifest and re-applies fn whenever the conditional
// write loses a race. fn's error is returned alongside the stored manifest
// when fn still produced a patch.
func (s *Service) mutate(ctx context.Context, owner, id uuid.UUID, fn func(m *production.ProductionManifest) (production.ManifestPatch, error)) (*production.ProductionManifest, error) {
	for attempt := 0; ; attempt++ {
		m, err := s.load(ctx, owner, id)
		if err != nil {
			return nil, err
		}
		patch, ferr := fn(m)
		if patch.Empty() {
			if ferr != nil {
				return nil, ferr
			}
			return m, nil
		}
		updated, err := s.repo.UpdateManifest(dbctx.From(ctx), id, m.Version, patch)
		if errors.Is(err, production.ErrVersionConflict) && attempt < s.ConflictRetries {
			s.log.Debug("Manifest version conflict, retrying", "manifest_id", id, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}
		if patch.Status != nil {
			s.publish(ctx, production.ManifestEvent{
				ManifestID: id,
				Kind:       production.EventManifestStatus,
				Status:     string(*patch.Status),
				Message:    updated.ErrorMessage,
			})
		}
		return updated, ferr
	}
}

func (s *Service) publish(ctx context.Context, ev production.ManifestEvent) {
	if s.events == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = s.Now()
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Warn("Publish manifest event failed", "manifest_id", ev.ManifestID, "kind", ev.Kind, "error", err)
	}
}

// Submit stores a new draft owned by owner and validates it right away. An
// invalid document is still stored; its issues are on the record.
func (s *Service) Submit(ctx context.Context, owner uuid.UUID, m *production.ProductionManifest) (*production.ProductionManifest, error) {
	if m == nil {
		return nil, production.NewError(production.CodeValidation, "planner.submit", "manifest is required", nil)
	}
	if owner == uuid.Nil {
		return nil, production.NewError(production.CodeValidation, "planner.submit", "owner is required", nil)
	}
	ctx, span := s.span(ctx, "submit", m.ID)
	defer span.End()

	m.OwnerID = owner
	m.Status = production.ManifestDraft
	m.ValidationStatus = production.ValidationPending
	m.ValidationErrors = nil
	m.ValidatedAt, m.ApprovedAt, m.StartedAt, m.CompletedAt = nil, nil, nil, nil
	m.ErrorMessage = ""
	created, err := s.repo.CreateManifest(dbctx.From(ctx), m)
	if err != nil {
		return nil, err
	}
	s.log.Info("Manifest submitted", "manifest_id", created.ID, "owner_id", owner, "scenes", len(created.Scenes), "jobs", len(created.Jobs))
	s.publish(ctx, production.ManifestEvent{ManifestID: created.ID, Kind: production.EventManifestStatus, Status: string(created.Status)})

	out, err := s.Validate(ctx, owner, created.ID)
	var ve *production.ValidationError
	if errors.As(err, &ve) {
		return out, nil
	}
	return out, err
}

func (s *Service) Get(ctx context.Context, owner, id uuid.UUID) (*production.ProductionManifest, error) {
	return s.load(ctx, owner, id)
}

func (s *Service) List(ctx context.Context, owner uuid.UUID, filter production.ManifestFilter, page production.Page) ([]*production.ProductionManifest, int64, error) {
	return s.repo.ListManifests(dbctx.From(ctx), owner, filter, page)
}

// Validate runs the validator and scorer and records both. A draft moves to
// validated on success. Invalid documents return *production.ValidationError
// together with the stored manifest.
func (s *Service) Validate(ctx context.Context, owner, id uuid.UUID) (*production.ProductionManifest, error) {
	ctx, span := s.span(ctx, "validate", id)
	defer span.End()
	return s.mutate(ctx, owner, id, func(m *production.ProductionManifest) (production.ManifestPatch, error) {
		validation.Apply(m, validation.Validate(m))
		return lifecycle.Validate(m, quality.Score(m), s.Now())
	})
}

// Edit changes a draft or validated manifest and validates the result. An
// edit that would make a validated manifest invalid is rejected and nothing
// is stored. A positive expectedVersion pins the edit to that version.
func (s *Service) Edit(ctx context.Context, owner, id uuid.UUID, expectedVersion int, e Edit) (*production.ProductionManifest, error) {
	ctx, span := s.span(ctx, "edit", id)
	defer span.End()
	for attempt := 0; ; attempt++ {
		m, err := s.load(ctx, owner, id)
		if err != nil {
			return nil, err
		}
		if m.Status != production.ManifestDraft && m.Status != production.ManifestValidated {
			return nil, production.NewError(production.CodeIllegalTransition, "planner.edit",
				"manifest in "+string(m.Status)+" can no longer be edited", nil)
		}
		if expectedVersion > 0 && m.Version != expectedVersion {
			return nil, production.NewError(production.CodeConflict, "planner.edit", "manifest changed since it was read", nil)
		}

		candidate := m.Clone()
		e.Patch.ApplyTo(candidate)
		if e.ReplaceGraph {
			candidate.Scenes = cloneScenes(e.Scenes, id)
			candidate.Assets = cloneAssets(e.Assets, id)
			candidate.Jobs = cloneJobs(e.Jobs, id)
		}
		r := validation.Validate(candidate)
		if m.Status == production.ManifestValidated && !validation.OK(r) {
			return nil, validation.Err(r)
		}

		// Edits put the manifest back through validation from draft.
		candidate.Status = production.ManifestDraft
		validation.Apply(candidate, r)
		vpatch, verr := lifecycle.Validate(candidate, quality.Score(candidate), s.Now())
		st := candidate.Status
		patch := e.Patch.Merge(vpatch)
		patch.Status = &st

		var updated *production.ProductionManifest
		if e.ReplaceGraph {
			updated, err = s.repo.ReplaceChildren(dbctx.From(ctx), id, m.Version, patch, repoprod.Children{
				Scenes: candidate.Scenes,
				Assets: candidate.Assets,
				Jobs:   candidate.Jobs,
			})
		} else {
			updated, err = s.repo.UpdateManifest(dbctx.From(ctx), id, m.Version, patch)
		}
		if errors.Is(err, production.ErrVersionConflict) && expectedVersion <= 0 && attempt < s.ConflictRetries {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.log.Info("Manifest edited", "manifest_id", id, "version", updated.Version, "validation_status", updated.ValidationStatus)
		s.publish(ctx, production.ManifestEvent{ManifestID: id, Kind: production.EventManifestStatus, Status: string(updated.Status), Message: "edited"})
		return updated, verr
	}
}

func (s *Service) Approve(ctx context.Context, owner, id uuid.UUID) (*production.ProductionManifest, error) {
	ctx, span := s.span(ctx, "approve", id)
	defer span.End()
	return s.mutate(ctx, owner, id, func(m *production.ProductionManifest) (production.ManifestPatch, error) {
		return lifecycle.Approve(m, s.Now())
	})
}

// Quality explains the stored manifest's quality score.
func (s *Service) Quality(ctx context.Context, owner, id uuid.UUID) (quality.Breakdown, error) {
	m, err := s.load(ctx, owner, id)
	if err != nil {
		return quality.Breakdown{}, err
	}
	return quality.Explain(m), nil
}

// CheckCost asks governance whether additional spend fits the caps.
func (s *Service) CheckCost(profile string, current, additional float64) governance.Decision {
	return s.gov.CheckCostCap(current, additional, profile)
}

func (s *Service) active(id uuid.UUID) *activeRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

func (s *Service) Running(id uuid.UUID) bool {
	return s.active(id) != nil
}

// Delete removes a manifest with its scenes, assets and jobs. A running
// production is cancelled first.
func (s *Service) Delete(ctx context.Context, owner, id uuid.UUID) error {
	ctx, span := s.span(ctx, "delete", id)
	defer span.End()
	if _, err := s.load(ctx, owner, id); err != nil {
		return err
	}
	if ar := s.active(id); ar != nil {
		s.stop(ar, reasonCancelled)
		select {
		case <-ar.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := s.repo.DeleteManifest(dbctx.From(ctx), id); err != nil {
		return err
	}
	s.log.Info("Manifest deleted", "manifest_id", id)
	return nil
}

func cloneScenes(in []*production.ProductionScene, manifestID uuid.UUID) []*production.ProductionScene {
	out := make([]*production.ProductionScene, 0, len(in))
	for _, s := range in {
		if s == nil {
			continue
		}
		cp := s.Clone()
		cp.ManifestID = manifestID
		out = append(out, cp)
	}
	return out
}

func cloneAssets(in []*production.ProductionAsset, manifestID uuid.UUID) []*production.ProductionAsset {
	out := make([]*production.ProductionAsset, 0, len(in))
	for _, a := range in {
		if a == nil {
			continue
		}
		cp := a.Clone()
		cp.ManifestID = manifestID
		out = append(out, cp)
	}
	return out
}

func cloneJobs(in []*production.ProductionJob, manifestID uuid.UUID) []*production.ProductionJob {
	out := make([]*production.ProductionJob, 0, len(in))
	for _, j := range in {
		if j == nil {
			continue
		}
		cp := j.Clone()
		cp.ManifestID = manifestID
		out = append(out, cp)
	}
	return out
}
