package production

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/yungbote/production-planner/internal/domain/production"
	"github.com/yungbote/production-planner/internal/platform/dbctx"
	"github.com/yungbote/production-planner/internal/platform/logger"
)

type gormGateway struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

// NewGormGateway stores manifests in postgres or sqlite through gorm.
func NewGormGateway(db *gorm.DB, baseLog *logger.Logger) Gateway {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &gormGateway{
		db:  db,
		log: baseLog.With("repo", "ProductionGateway"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *gormGateway) tx(dbc dbctx.Context) *gorm.DB {
	return dbc.DB(r.db).WithContext(dbc.Context())
}

func (r *gormGateway) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	if r == nil || r.db == nil {
		return domain.NewError(domain.CodeInternal, "production.tx", "gateway has nil db", nil)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}

func (r *gormGateway) CreateManifest(dbc dbctx.Context, m *domain.ProductionManifest) (*domain.ProductionManifest, error) {
	const op = "production.create_manifest"
	if m == nil {
		return nil, domain.NewError(domain.CodeValidation, op, "manifest is required", nil)
	}
	prepareManifest(m)
	m.Scenes = nonNil(m.Scenes)
	m.Assets = nonNil(m.Assets)
	m.Jobs = nonNil(m.Jobs)
	prepareScenes(m.ID, m.Scenes)
	prepareAssets(m.ID, m.Assets, 0)
	prepareJobs(m.ID, m.Jobs, 0)

	err := r.tx(dbc).Transaction(func(t *gorm.DB) error {
		if err := t.Omit(clause.Associations).Create(m).Error; err != nil {
			return err
		}
		return createChildren(t, Children{Scenes: m.Scenes, Assets: m.Assets, Jobs: m.Jobs})
	})
	if err != nil {
		return nil, MapError(op, err)
	}
	r.log.Debug("Manifest created", "manifest_id", m.ID, "scenes", len(m.Scenes), "jobs", len(m.Jobs))
	return m, nil
}

func createChildren(t *gorm.DB, c Children) error {
	if len(c.Scenes) > 0 {
		if err := t.Create(&c.Scenes).Error; err != nil {
			return err
		}
	}
	if len(c.Assets) > 0 {
		if err := t.Create(&c.Assets).Error; err != nil {
			return err
		}
	}
	if len(c.Jobs) > 0 {
		if err := t.Create(&c.Jobs).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *gormGateway) GetManifest(dbc dbctx.Context, id uuid.UUID) (*domain.ProductionManifest, error) {
	const op = "production.get_manifest"
	if id == uuid.Nil {
		return nil, notFound(op, "manifest")
	}
	var m domain.ProductionManifest
	err := r.tx(dbc).
		Preload("Scenes", func(db *gorm.DB) *gorm.DB { return db.Order("scene_order ASC") }).
		Preload("Assets", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Preload("Jobs", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Where("id = ?", id).
		First(&m).Error
	if err != nil {
		return nil, MapError(op, err)
	}
	return &m, nil
}

func (r *gormGateway) ListManifests(dbc dbctx.Context, ownerID uuid.UUID, filter domain.ManifestFilter, page domain.Page) ([]*domain.ProductionManifest, int64, error) {
	const op = "production.list_manifests"
	page = page.Normalize()
	q := r.tx(dbc).Model(&domain.ProductionManifest{}).Where("owner_id = ?", ownerID)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.ValidationStatus != "" {
		q = q.Where("validation_status = ?", filter.ValidationStatus)
	}
	if filter.Profile != "" {
		q = q.Where("profile = ?", filter.Profile)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, MapError(op, err)
	}
	out := []*domain.ProductionManifest{}
	if err := q.Order("created_at DESC").Order("id ASC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&out).Error; err != nil {
		return nil, 0, MapError(op, err)
	}
	return out, total, nil
}

func (r *gormGateway) UpdateManifest(dbc dbctx.Context, id uuid.UUID, expectedVersion int, patch domain.ManifestPatch) (*domain.ProductionManifest, error) {
	const op = "production.update_manifest"
	if err := r.casUpdate(r.tx(dbc), op, id, expectedVersion, patch); err != nil {
		return nil, err
	}
	return r.GetManifest(dbc, id)
}

// casUpdate applies patch only while the row still has expectedVersion, and
// bumps the version in the same statement.
func (r *gormGateway) casUpdate(t *gorm.DB, op string, id uuid.UUID, expectedVersion int, patch domain.ManifestPatch) error {
	cols := patchColumns(patch)
	cols["version"] = gorm.Expr("version + 1")
	cols["updated_at"] = r.now()
	res := t.Model(&domain.ProductionManifest{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(cols)
	if res.Error != nil {
		return MapError(op, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := t.Model(&domain.ProductionManifest{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return MapError(op, err)
	}
	if n == 0 {
		return notFound(op, "manifest")
	}
	return versionConflict(op, expectedVersion)
}

func patchColumns(p domain.ManifestPatch) map[string]interface{} {
	cols := map[string]interface{}{}
	if p.Title != nil {
		cols["title"] = *p.Title
	}
	if p.Profile != nil {
		cols["profile"] = *p.Profile
	}
	if p.DurationSeconds != nil {
		cols["duration_seconds"] = *p.DurationSeconds
	}
	if p.AspectRatio != nil {
		cols["aspect_ratio"] = *p.AspectRatio
	}
	if p.Platform != nil {
		cols["platform"] = *p.Platform
	}
	if p.Language != nil {
		cols["language"] = *p.Language
	}
	if p.Orientation != nil {
		cols["orientation"] = *p.Orientation
	}
	if p.Priority != nil {
		cols["priority"] = *p.Priority
	}
	if p.AudioPlan != nil {
		cols["audio_plan"] = datatypes.NewJSONType(*p.AudioPlan)
	}
	if p.VisualPlan != nil {
		cols["visual_plan"] = datatypes.NewJSONType(*p.VisualPlan)
	}
	if p.ManifestData != nil {
		cols["manifest_data"] = p.ManifestData
	}
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	if p.ValidationStatus != nil {
		cols["validation_status"] = *p.ValidationStatus
	}
	if p.ValidationErrors != nil {
		cols["validation_errors"] = datatypes.JSONSlice[domain.ValidationIssue](*p.ValidationErrors)
	}
	if p.QualityScore != nil {
		cols["quality_score"] = *p.QualityScore
	}
	if p.ErrorMessage != nil {
		cols["error_message"] = *p.ErrorMessage
	}
	if p.ValidatedAt != nil {
		cols["validated_at"] = *p.ValidatedAt
	}
	if p.ApprovedAt != nil {
		cols["approved_at"] = *p.ApprovedAt
	}
	if p.StartedAt != nil {
		cols["started_at"] = *p.StartedAt
	}
	if p.CompletedAt != nil {
		cols["completed_at"] = *p.CompletedAt
	}
	return cols
}

func (r *gormGateway) ReplaceChildren(dbc dbctx.Context, id uuid.UUID, expectedVersion int, patch domain.ManifestPatch, c Children) (*domain.ProductionManifest, error) {
	const op = "production.replace_children"
	c.Scenes = nonNil(c.Scenes)
	c.Assets = nonNil(c.Assets)
	c.Jobs = nonNil(c.Jobs)
	prepareScenes(id, c.Scenes)
	prepareAssets(id, c.Assets, 0)
	prepareJobs(id, c.Jobs, 0)

	var out *domain.ProductionManifest
	err := r.tx(dbc).Transaction(func(t *gorm.DB) error {
		if err := r.casUpdate(t, op, id, expectedVersion, patch); err != nil {
			return err
		}
		if err := deleteChildren(t, id); err != nil {
			return err
		}
		if err := createChildren(t, c); err != nil {
			return err
		}
		m, err := r.GetManifest(dbctx.Context{Ctx: dbc.Context(), Tx: t}, id)
		out = m
		return err
	})
	if err != nil {
		return nil, MapError(op, err)
	}
	return out, nil
}

func deleteChildren(t *gorm.DB, manifestID uuid.UUID) error {
	for _, model := range []interface{}{&domain.ProductionJob{}, &domain.ProductionAsset{}, &domain.ProductionScene{}} {
		if err := t.Where("manifest_id = ?", manifestID).Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

// DeleteManifest removes the manifest and everything it owns. Children are
// deleted explicitly so sqlite without foreign keys behaves like postgres.
func (r *gormGateway) DeleteManifest(dbc dbctx.Context, id uuid.UUID) error {
	const op = "production.delete_manifest"
	err := r.tx(dbc).Transaction(func(t *gorm.DB) error {
		if err := deleteChildren(t, id); err != nil {
			return err
		}
		res := t.Where("id = ?", id).Delete(&domain.ProductionManifest{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound(op, "manifest")
		}
		return nil
	})
	if err != nil {
		return MapError(op, err)
	}
	r.log.Info("Manifest deleted", "manifest_id", id)
	return nil
}

func (r *gormGateway) CreateScenes(dbc dbctx.Context, manifestID uuid.UUID, scenes []*domain.ProductionScene) error {
	scenes = nonNil(scenes)
	if len(scenes) == 0 {
		return nil
	}
	prepareScenes(manifestID, scenes)
	return MapError("production.create_scenes", r.tx(dbc).Create(&scenes).Error)
}

func (r *gormGateway) GetScenes(dbc dbctx.Context, manifestID uuid.UUID) ([]*domain.ProductionScene, error) {
	out := []*domain.ProductionScene{}
	if err := r.tx(dbc).Where("manifest_id = ?", manifestID).Order("scene_order ASC").Find(&out).Error; err != nil {
		return nil, MapError("production.get_scenes", err)
	}
	return out, nil
}

func (r *gormGateway) UpdateScene(dbc dbctx.Context, s *domain.ProductionScene) error {
	const op = "production.update_scene"
	if s == nil {
		return nil
	}
	res := r.tx(dbc).Model(&domain.ProductionScene{}).
		Where("id = ?", s.ID).
		Updates(map[string]interface{}{
			"status":            s.Status,
			"quality_score":     s.QualityScore,
			"consistency_score": s.ConsistencyScore,
			"updated_at":        r.now(),
		})
	if res.Error != nil {
		return MapError(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(op, "scene")
	}
	return nil
}

func (r *gormGateway) CreateAssets(dbc dbctx.Context, manifestID uuid.UUID, assets []*domain.ProductionAsset) error {
	const op = "production.create_assets"
	assets = nonNil(assets)
	if len(assets) == 0 {
		return nil
	}
	t := r.tx(dbc)
	var base int
	if err := t.Model(&domain.ProductionAsset{}).Where("manifest_id = ?", manifestID).Select("COALESCE(MAX(seq), 0)").Scan(&base).Error; err != nil {
		return MapError(op, err)
	}
	prepareAssets(manifestID, assets, base)
	return MapError(op, t.Create(&assets).Error)
}

func (r *gormGateway) GetAssets(dbc dbctx.Context, manifestID uuid.UUID) ([]*domain.ProductionAsset, error) {
	out := []*domain.ProductionAsset{}
	if err := r.tx(dbc).Where("manifest_id = ?", manifestID).Order("seq ASC").Find(&out).Error; err != nil {
		return nil, MapError("production.get_assets", err)
	}
	return out, nil
}

func (r *gormGateway) UpdateAsset(dbc dbctx.Context, a *domain.ProductionAsset) error {
	const op = "production.update_asset"
	if a == nil {
		return nil
	}
	res := r.tx(dbc).Model(&domain.ProductionAsset{}).
		Where("id = ?", a.ID).
		Updates(map[string]interface{}{
			"status":     a.Status,
			"uri":        a.URI,
			"updated_at": r.now(),
		})
	if res.Error != nil {
		return MapError(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(op, "asset")
	}
	return nil
}

func (r *gormGateway) CreateJobs(dbc dbctx.Context, manifestID uuid.UUID, jobs []*domain.ProductionJob) error {
	const op = "production.create_jobs"
	jobs = nonNil(jobs)
	if len(jobs) == 0 {
		return nil
	}
	t := r.tx(dbc)
	var base int
	if err := t.Model(&domain.ProductionJob{}).Where("manifest_id = ?", manifestID).Select("COALESCE(MAX(seq), 0)").Scan(&base).Error; err != nil {
		return MapError(op, err)
	}
	prepareJobs(manifestID, jobs, base)
	return MapError(op, t.Create(&jobs).Error)
}

func (r *gormGateway) GetJobs(dbc dbctx.Context, manifestID uuid.UUID) ([]*domain.ProductionJob, error) {
	out := []*domain.ProductionJob{}
	if err := r.tx(dbc).Where("manifest_id = ?", manifestID).Order("seq ASC").Find(&out).Error; err != nil {
		return nil, MapError("production.get_jobs", err)
	}
	return out, nil
}

// UpdateJob writes the mutable run state of a job; the job definition
// (type, dependencies, config) is left alone.
func (r *gormGateway) UpdateJob(dbc dbctx.Context, j *domain.ProductionJob) error {
	const op = "production.update_job"
	if j == nil {
		return nil
	}
	res := r.tx(dbc).Model(&domain.ProductionJob{}).
		Where("id = ?", j.ID).
		Updates(map[string]interface{}{
			"status":            j.Status,
			"attempts":          j.Attempts,
			"error":             j.Error,
			"result":            j.Result,
			"optional_failures": j.OptionalFailures,
			"blocked_by":        j.BlockedBy,
			"next_attempt_at":   j.NextAttemptAt,
			"started_at":        j.StartedAt,
			"completed_at":      j.CompletedAt,
			"updated_at":        r.now(),
		})
	if res.Error != nil {
		return MapError(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(op, "job")
	}
	return nil
}
