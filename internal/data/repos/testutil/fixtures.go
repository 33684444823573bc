package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/production-planner/internal/domain/production"
)

// Manifest builds a well-formed draft manifest with one scene per duration.
// Each scene gets an image asset produced by an image_generation job and a
// voiceover job; a final_assembly job blocks on all scene jobs.
func Manifest(owner uuid.UUID, sceneDurations ...float64) *production.ProductionManifest {
	if owner == uuid.Nil {
		owner = uuid.New()
	}
	m := &production.ProductionManifest{
		ID:               uuid.New(),
		OwnerID:          owner,
		Title:            "fixture",
		AspectRatio:      "9:16",
		Platform:         "tiktok",
		Language:         "en",
		Orientation:      "portrait",
		Status:           production.ManifestDraft,
		ValidationStatus: production.ValidationPending,
		Version:          1,
	}
	final := &production.ProductionJob{
		ID:          uuid.New(),
		ManifestID:  m.ID,
		Type:        production.JobFinalAssembly,
		Status:      production.JobPending,
		MaxAttempts: 3,
	}
	var at float64
	for i, d := range sceneDurations {
		scene := &production.ProductionScene{
			ID:               uuid.New(),
			ManifestID:       m.ID,
			SceneOrder:       i + 1,
			StartTimeSeconds: at,
			DurationSeconds:  d,
			Narration:        "narration",
			Status:           production.ScenePending,
		}
		at += d
		asset := &production.ProductionAsset{
			ID:               uuid.New(),
			ManifestID:       m.ID,
			AssetType:        production.AssetImage,
			Source:           production.SourceAIGenerated,
			Status:           production.AssetPending,
			SceneAssignments: []uuid.UUID{scene.ID},
			UsageType:        "primary",
		}
		scene.PrimaryAssets = []uuid.UUID{asset.ID}
		sid := scene.ID
		img := &production.ProductionJob{
			ID:            uuid.New(),
			ManifestID:    m.ID,
			SceneID:       &sid,
			Type:          production.JobImageGeneration,
			Status:        production.JobPending,
			OutputAssets:  []uuid.UUID{asset.ID},
			MaxAttempts:   3,
			EstimatedCost: 0.1,
		}
		vo := &production.ProductionJob{
			ID:            uuid.New(),
			ManifestID:    m.ID,
			SceneID:       &sid,
			Type:          production.JobVoiceoverGeneration,
			Status:        production.JobPending,
			MaxAttempts:   3,
			EstimatedCost: 0.05,
		}
		m.Scenes = append(m.Scenes, scene)
		m.Assets = append(m.Assets, asset)
		m.Jobs = append(m.Jobs, img, vo)
		final.Dependencies = append(final.Dependencies,
			production.JobDependency{JobID: img.ID, Kind: production.DependencyBlocking},
			production.JobDependency{JobID: vo.ID, Kind: production.DependencyBlocking},
		)
	}
	m.DurationSeconds = at
	m.Jobs = append(m.Jobs, final)
	return m
}

// Job returns a pending job of type typ with the given dependencies.
func Job(manifestID uuid.UUID, typ production.JobType, deps ...production.JobDependency) *production.ProductionJob {
	return &production.ProductionJob{
		ID:           uuid.New(),
		ManifestID:   manifestID,
		Type:         typ,
		Status:       production.JobPending,
		MaxAttempts:  3,
		Dependencies: deps,
	}
}

func Blocking(j *production.ProductionJob) production.JobDependency {
	return production.JobDependency{JobID: j.ID, Kind: production.DependencyBlocking}
}

func Optional(j *production.ProductionJob) production.JobDependency {
	return production.JobDependency{JobID: j.ID, Kind: production.DependencyOptional}
}

func SeedManifest(tb testing.TB, ctx context.Context, tx *gorm.DB, m *production.ProductionManifest) *production.ProductionManifest {
	tb.Helper()
	if err := tx.WithContext(ctx).Omit(clause.Associations).Create(m).Error; err != nil {
		tb.Fatalf("seed manifest: %v", err)
	}
	if len(m.Scenes) > 0 {
		if err := tx.WithContext(ctx).Create(&m.Scenes).Error; err != nil {
			tb.Fatalf("seed scenes: %v", err)
		}
	}
	if len(m.Assets) > 0 {
		if err := tx.WithContext(ctx).Create(&m.Assets).Error; err != nil {
			tb.Fatalf("seed assets: %v", err)
		}
	}
	if len(m.Jobs) > 0 {
		if err := tx.WithContext(ctx).Create(&m.Jobs).Error; err != nil {
			tb.Fatalf("seed jobs: %v", err)
		}
	}
	return m
}
