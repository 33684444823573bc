package production

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	domain "github.com/yungbote/production-planner/internal/domain/production"
	"github.com/yungbote/production-planner/internal/platform/dbctx"
)

// MemoryGateway keeps manifests in process. It honors the same version and
// not-found semantics as the gorm gateway and hands out copies only.
type MemoryGateway struct {
	mu        sync.RWMutex
	manifests map[uuid.UUID]*domain.ProductionManifest
	now       func() time.Time
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		manifests: map[uuid.UUID]*domain.ProductionManifest{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

var _ Gateway = (*MemoryGateway)(nil)

// InTx runs fn directly; each call is atomic on its own.
func (g *MemoryGateway) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(dbctx.Context{Ctx: ctx})
}

func (g *MemoryGateway) CreateManifest(dbc dbctx.Context, m *domain.ProductionManifest) (*domain.ProductionManifest, error) {
	const op = "production.create_manifest"
	if m == nil {
		return nil, domain.NewError(domain.CodeValidation, op, "manifest is required", nil)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	prepareManifest(m)
	if _, exists := g.manifests[m.ID]; exists {
		return nil, domain.NewError(domain.CodeConflict, op, "manifest already exists", nil)
	}
	m.Scenes = nonNil(m.Scenes)
	m.Assets = nonNil(m.Assets)
	m.Jobs = nonNil(m.Jobs)
	prepareScenes(m.ID, m.Scenes)
	prepareAssets(m.ID, m.Assets, 0)
	prepareJobs(m.ID, m.Jobs, 0)
	now := g.now()
	m.CreatedAt, m.UpdatedAt = now, now
	stampChildren(m.Scenes, m.Assets, m.Jobs, now)
	stored := m.Clone()
	sortScenes(stored.Scenes)
	g.manifests[m.ID] = stored
	return m, nil
}

func stampChildren(scenes []*domain.ProductionScene, assets []*domain.ProductionAsset, jobs []*domain.ProductionJob, now time.Time) {
	for _, s := range scenes {
		s.CreatedAt, s.UpdatedAt = now, now
	}
	for _, a := range assets {
		a.CreatedAt, a.UpdatedAt = now, now
	}
	for _, j := range jobs {
		j.CreatedAt, j.UpdatedAt = now, now
	}
}

func (g *MemoryGateway) GetManifest(dbc dbctx.Context, id uuid.UUID) (*domain.ProductionManifest, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.manifests[id]
	if !ok {
		return nil, notFound("production.get_manifest", "manifest")
	}
	return m.Clone(), nil
}

func (g *MemoryGateway) ListManifests(dbc dbctx.Context, ownerID uuid.UUID, filter domain.ManifestFilter, page domain.Page) ([]*domain.ProductionManifest, int64, error) {
	page = page.Normalize()
	g.mu.RLock()
	defer g.mu.RUnlock()
	var matched []*domain.ProductionManifest
	for _, m := range g.manifests {
		if m.OwnerID != ownerID {
			continue
		}
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		if filter.ValidationStatus != "" && m.ValidationStatus != filter.ValidationStatus {
			continue
		}
		if filter.Profile != "" && m.Profile != filter.Profile {
			continue
		}
		matched = append(matched, m)
	}
	sort.Slice(matched, func(a, b int) bool {
		if !matched[a].CreatedAt.Equal(matched[b].CreatedAt) {
			return matched[a].CreatedAt.After(matched[b].CreatedAt)
		}
		return matched[a].ID.String() < matched[b].ID.String()
	})
	total := int64(len(matched))
	out := []*domain.ProductionManifest{}
	for i := page.Offset; i < len(matched) && len(out) < page.Limit; i++ {
		cp := matched[i].Clone()
		cp.Scenes, cp.Assets, cp.Jobs = nil, nil, nil
		out = append(out, cp)
	}
	return out, total, nil
}

// lockedCAS checks the version and applies patch. Callers hold g.mu.
func (g *MemoryGateway) lockedCAS(op string, id uuid.UUID, expectedVersion int, patch domain.ManifestPatch) (*domain.ProductionManifest, error) {
	m, ok := g.manifests[id]
	if !ok {
		return nil, notFound(op, "manifest")
	}
	if m.Version != expectedVersion {
		return nil, versionConflict(op, expectedVersion)
	}
	patch.ApplyTo(m)
	m.Version++
	m.UpdatedAt = g.now()
	return m, nil
}

func (g *MemoryGateway) UpdateManifest(dbc dbctx.Context, id uuid.UUID, expectedVersion int, patch domain.ManifestPatch) (*domain.ProductionManifest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, err := g.lockedCAS("production.update_manifest", id, expectedVersion, patch)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

func (g *MemoryGateway) ReplaceChildren(dbc dbctx.Context, id uuid.UUID, expectedVersion int, patch domain.ManifestPatch, c Children) (*domain.ProductionManifest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, err := g.lockedCAS("production.replace_children", id, expectedVersion, patch)
	if err != nil {
		return nil, err
	}
	scenes, assets, jobs := nonNil(c.Scenes), nonNil(c.Assets), nonNil(c.Jobs)
	prepareScenes(id, scenes)
	prepareAssets(id, assets, 0)
	prepareJobs(id, jobs, 0)
	stampChildren(scenes, assets, jobs, g.now())
	m.Scenes, m.Assets, m.Jobs = nil, nil, nil
	for _, s := range scenes {
		m.Scenes = append(m.Scenes, s.Clone())
	}
	for _, a := range assets {
		m.Assets = append(m.Assets, a.Clone())
	}
	for _, j := range jobs {
		m.Jobs = append(m.Jobs, j.Clone())
	}
	sortScenes(m.Scenes)
	return m.Clone(), nil
}

func (g *MemoryGateway) DeleteManifest(dbc dbctx.Context, id uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.manifests[id]; !ok {
		return notFound("production.delete_manifest", "manifest")
	}
	delete(g.manifests, id)
	return nil
}

func sortScenes(scenes []*domain.ProductionScene) {
	sort.SliceStable(scenes, func(a, b int) bool { return scenes[a].SceneOrder < scenes[b].SceneOrder })
}

func (g *MemoryGateway) CreateScenes(dbc dbctx.Context, manifestID uuid.UUID, scenes []*domain.ProductionScene) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.manifests[manifestID]
	if !ok {
		return domain.NewError(domain.CodePreconditionFailed, "production.create_scenes", "manifest does not exist", nil)
	}
	scenes = nonNil(scenes)
	prepareScenes(manifestID, scenes)
	stampChildren(scenes, nil, nil, g.now())
	for _, s := range scenes {
		m.Scenes = append(m.Scenes, s.Clone())
	}
	sortScenes(m.Scenes)
	return nil
}

func (g *MemoryGateway) GetScenes(dbc dbctx.Context, manifestID uuid.UUID) ([]*domain.ProductionScene, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := []*domain.ProductionScene{}
	if m, ok := g.manifests[manifestID]; ok {
		for _, s := range m.Scenes {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (g *MemoryGateway) UpdateScene(dbc dbctx.Context, s *domain.ProductionScene) error {
	if s == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.manifests {
		if cur := m.SceneByID(s.ID); cur != nil {
			cur.Status = s.Status
			cur.QualityScore = s.QualityScore
			cur.ConsistencyScore = s.ConsistencyScore
			cur.UpdatedAt = g.now()
			return nil
		}
	}
	return notFound("production.update_scene", "scene")
}

func (g *MemoryGateway) CreateAssets(dbc dbctx.Context, manifestID uuid.UUID, assets []*domain.ProductionAsset) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.manifests[manifestID]
	if !ok {
		return domain.NewError(domain.CodePreconditionFailed, "production.create_assets", "manifest does not exist", nil)
	}
	assets = nonNil(assets)
	prepareAssets(manifestID, assets, len(m.Assets))
	stampChildren(nil, assets, nil, g.now())
	for _, a := range assets {
		m.Assets = append(m.Assets, a.Clone())
	}
	return nil
}

func (g *MemoryGateway) GetAssets(dbc dbctx.Context, manifestID uuid.UUID) ([]*domain.ProductionAsset, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := []*domain.ProductionAsset{}
	if m, ok := g.manifests[manifestID]; ok {
		for _, a := range m.Assets {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

func (g *MemoryGateway) UpdateAsset(dbc dbctx.Context, a *domain.ProductionAsset) error {
	if a == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.manifests {
		if cur := m.AssetByID(a.ID); cur != nil {
			cur.Status = a.Status
			cur.URI = a.URI
			cur.UpdatedAt = g.now()
			return nil
		}
	}
	return notFound("production.update_asset", "asset")
}

func (g *MemoryGateway) CreateJobs(dbc dbctx.Context, manifestID uuid.UUID, jobs []*domain.ProductionJob) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.manifests[manifestID]
	if !ok {
		return domain.NewError(domain.CodePreconditionFailed, "production.create_jobs", "manifest does not exist", nil)
	}
	jobs = nonNil(jobs)
	prepareJobs(manifestID, jobs, len(m.Jobs))
	stampChildren(nil, nil, jobs, g.now())
	for _, j := range jobs {
		m.Jobs = append(m.Jobs, j.Clone())
	}
	return nil
}

func (g *MemoryGateway) GetJobs(dbc dbctx.Context, manifestID uuid.UUID) ([]*domain.ProductionJob, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := []*domain.ProductionJob{}
	if m, ok := g.manifests[manifestID]; ok {
		for _, j := range m.Jobs {
			out = append(out, j.Clone())
		}
	}
	return out, nil
}

func (g *MemoryGateway) UpdateJob(dbc dbctx.Context, j *domain.ProductionJob) error {
	if j == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.manifests {
		if cur := m.JobByID(j.ID); cur != nil {
			cp := j.Clone()
			cur.Status = cp.Status
			cur.Attempts = cp.Attempts
			cur.Error = cp.Error
			cur.Result = cp.Result
			cur.OptionalFailures = cp.OptionalFailures
			cur.BlockedBy = cp.BlockedBy
			cur.NextAttemptAt = cp.NextAttemptAt
			cur.StartedAt = cp.StartedAt
			cur.CompletedAt = cp.CompletedAt
			cur.UpdatedAt = g.now()
			return nil
		}
	}
	return notFound("production.update_job", "job")
}
