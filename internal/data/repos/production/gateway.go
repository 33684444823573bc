package production

import (
	"context"

	"github.com/google/uuid"

	domain "github.com/yungbote/production-planner/internal/domain/production"
	"github.com/yungbote/production-planner/internal/platform/dbctx"
)

// Children is the owned part of a manifest: replaced as a unit on edit.
type Children struct {
	Scenes []*domain.ProductionScene
	Assets []*domain.ProductionAsset
	Jobs   []*domain.ProductionJob
}

// Gateway is the only way the planner touches storage. Manifest writes are
// conditional on the version the caller read; a stale version fails with a
// CodeConflict error that matches domain.ErrVersionConflict.
type Gateway interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error

	CreateManifest(dbc dbctx.Context, m *domain.ProductionManifest) (*domain.ProductionManifest, error)
	GetManifest(dbc dbctx.Context, id uuid.UUID) (*domain.ProductionManifest, error)
	ListManifests(dbc dbctx.Context, ownerID uuid.UUID, filter domain.ManifestFilter, page domain.Page) ([]*domain.ProductionManifest, int64, error)
	UpdateManifest(dbc dbctx.Context, id uuid.UUID, expectedVersion int, patch domain.ManifestPatch) (*domain.ProductionManifest, error)
	ReplaceChildren(dbc dbctx.Context, id uuid.UUID, expectedVersion int, patch domain.ManifestPatch, c Children) (*domain.ProductionManifest, error)
	DeleteManifest(dbc dbctx.Context, id uuid.UUID) error

	CreateScenes(dbc dbctx.Context, manifestID uuid.UUID, scenes []*domain.ProductionScene) error
	GetScenes(dbc dbctx.Context, manifestID uuid.UUID) ([]*domain.ProductionScene, error)
	UpdateScene(dbc dbctx.Context, s *domain.ProductionScene) error

	CreateAssets(dbc dbctx.Context, manifestID uuid.UUID, assets []*domain.ProductionAsset) error
	GetAssets(dbc dbctx.Context, manifestID uuid.UUID) ([]*domain.ProductionAsset, error)
	UpdateAsset(dbc dbctx.Context, a *domain.ProductionAsset) error

	CreateJobs(dbc dbctx.Context, manifestID uuid.UUID, jobs []*domain.ProductionJob) error
	GetJobs(dbc dbctx.Context, manifestID uuid.UUID) ([]*domain.ProductionJob, error)
	UpdateJob(dbc dbctx.Context, j *domain.ProductionJob) error
}

// prepareManifest fills ids and defaults on a manifest about to be created.
func prepareManifest(m *domain.ProductionManifest) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Status == "" {
		m.Status = domain.ManifestDraft
	}
	if m.ValidationStatus == "" {
		m.ValidationStatus = domain.ValidationPending
	}
	m.Version = 1
}

func prepareScenes(manifestID uuid.UUID, scenes []*domain.ProductionScene) {
	for _, s := range scenes {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		s.ManifestID = manifestID
		if s.Status == "" {
			s.Status = domain.ScenePending
		}
	}
}

func prepareAssets(manifestID uuid.UUID, assets []*domain.ProductionAsset, seq int) {
	for i, a := range assets {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		a.ManifestID = manifestID
		a.Seq = seq + i + 1
		if a.Status == "" {
			a.Status = domain.AssetPending
		}
	}
}

func prepareJobs(manifestID uuid.UUID, jobs []*domain.ProductionJob, seq int) {
	for i, j := range jobs {
		if j.ID == uuid.Nil {
			j.ID = uuid.New()
		}
		j.ManifestID = manifestID
		j.Seq = seq + i + 1
		if j.Status == "" {
			j.Status = domain.JobPending
		}
	}
}

// nonNil drops nil entries so callers can pass sparse slices.
func nonNil[T any](in []*T) []*T {
	out := make([]*T, 0, len(in))
	for _, v := range in {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}
