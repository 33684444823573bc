package production

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ProductionManifest is the root document of one short-form video production.
// Scenes, assets and jobs are stored as their own rows but are owned by the
// manifest and deleted with it.
type ProductionManifest struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID          uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_id"`
	AnalyzerID       *uuid.UUID `gorm:"type:uuid;column:analyzer_id" json:"analyzer_id,omitempty"`
	RefinerID        *uuid.UUID `gorm:"type:uuid;column:refiner_id" json:"refiner_id,omitempty"`
	ScriptEnhancerID *uuid.UUID `gorm:"type:uuid;column:script_enhancer_id" json:"script_enhancer_id,omitempty"`

	Title           string  `gorm:"column:title" json:"title"`
	Profile         string  `gorm:"column:profile;index" json:"profile,omitempty"`
	DurationSeconds float64 `gorm:"column:duration_seconds;not null" json:"duration_seconds"`
	AspectRatio     string  `gorm:"column:aspect_ratio" json:"aspect_ratio"`
	Platform        string  `gorm:"column:platform" json:"platform"`
	Language        string  `gorm:"column:language" json:"language"`
	Orientation     string  `gorm:"column:orientation" json:"orientation"`
	Priority        int     `gorm:"column:priority;not null;default:0" json:"priority"`

	AudioPlan  datatypes.JSONType[AudioPlan]  `gorm:"column:audio_plan" json:"audio_plan"`
	VisualPlan datatypes.JSONType[VisualPlan] `gorm:"column:visual_plan" json:"visual_plan"`

	// ManifestData is the document as last submitted or edited by the owner.
	ManifestData datatypes.JSON `gorm:"column:manifest_data" json:"manifest_data,omitempty"`

	Status           ManifestStatus                     `gorm:"column:status;not null;index" json:"status"`
	ValidationStatus ValidationStatus                   `gorm:"column:validation_status;not null" json:"validation_status"`
	ValidationErrors datatypes.JSONSlice[ValidationIssue] `gorm:"column:validation_errors" json:"validation_errors"`
	QualityScore     float64                            `gorm:"column:quality_score;not null;default:0" json:"quality_score"`
	ErrorMessage     string                             `gorm:"column:error_message" json:"error_message,omitempty"`

	Version int `gorm:"column:version;not null;default:1" json:"version"`

	CreatedAt   time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
	ValidatedAt *time.Time `gorm:"column:validated_at" json:"validated_at,omitempty"`
	ApprovedAt  *time.Time `gorm:"column:approved_at" json:"approved_at,omitempty"`
	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	Scenes []*ProductionScene `gorm:"foreignKey:ManifestID;constraint:OnDelete:CASCADE" json:"scenes"`
	Assets []*ProductionAsset `gorm:"foreignKey:ManifestID;constraint:OnDelete:CASCADE" json:"assets"`
	Jobs   []*ProductionJob   `gorm:"foreignKey:ManifestID;constraint:OnDelete:CASCADE" json:"jobs"`
}

func (ProductionManifest) TableName() string { return "production_manifest" }

type ProductionScene struct {
	ID                uuid.UUID                      `gorm:"type:uuid;primaryKey" json:"id"`
	ManifestID        uuid.UUID                      `gorm:"type:uuid;not null;index" json:"manifest_id"`
	SceneOrder        int                            `gorm:"column:scene_order;not null" json:"scene_order"`
	StartTimeSeconds  float64                        `gorm:"column:start_time_seconds" json:"start_time_seconds"`
	DurationSeconds   float64                        `gorm:"column:duration_seconds" json:"duration_seconds"`
	Narration         string                         `gorm:"column:narration" json:"narration,omitempty"`
	VisualDescription string                         `gorm:"column:visual_description" json:"visual_description,omitempty"`
	PrimaryAssets     datatypes.JSONSlice[uuid.UUID] `gorm:"column:primary_assets" json:"primary_assets"`
	BackgroundAssets  datatypes.JSONSlice[uuid.UUID] `gorm:"column:background_assets" json:"background_assets"`
	OverlayAssets     datatypes.JSONSlice[uuid.UUID] `gorm:"column:overlay_assets" json:"overlay_assets"`
	Status            SceneStatus                    `gorm:"column:status;not null" json:"status"`
	QualityScore      *float64                       `gorm:"column:quality_score" json:"quality_score,omitempty"`
	ConsistencyScore  *float64                       `gorm:"column:consistency_score" json:"consistency_score,omitempty"`
	CreatedAt         time.Time                      `json:"created_at"`
	UpdatedAt         time.Time                      `json:"updated_at"`
}

func (ProductionScene) TableName() string { return "production_scene" }

// AssetRefs returns every asset id the scene points at, primary first.
func (s *ProductionScene) AssetRefs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s.PrimaryAssets)+len(s.BackgroundAssets)+len(s.OverlayAssets))
	out = append(out, s.PrimaryAssets...)
	out = append(out, s.BackgroundAssets...)
	out = append(out, s.OverlayAssets...)
	return out
}

type TimingInfo struct {
	StartSeconds    float64 `json:"start_seconds"`
	DurationSeconds float64 `json:"duration_seconds"`
	EndSeconds      float64 `json:"end_seconds"`
}

type ProductionAsset struct {
	ID                  uuid.UUID                      `gorm:"type:uuid;primaryKey" json:"id"`
	ManifestID          uuid.UUID                      `gorm:"type:uuid;not null;index" json:"manifest_id"`
	AssetType           AssetType                      `gorm:"column:asset_type;not null" json:"asset_type"`
	Source              AssetSource                    `gorm:"column:source;not null" json:"source"`
	Status              AssetStatus                    `gorm:"column:status;not null" json:"status"`
	URI                 string                         `gorm:"column:uri" json:"uri,omitempty"`
	SceneAssignments    datatypes.JSONSlice[uuid.UUID] `gorm:"column:scene_assignments" json:"scene_assignments"`
	UsageType           string                         `gorm:"column:usage_type" json:"usage_type,omitempty"`
	TimingInfo          datatypes.JSONType[*TimingInfo] `gorm:"column:timing_info" json:"timing_info"`
	EnhancementMetadata datatypes.JSONMap              `gorm:"column:enhancement_metadata" json:"enhancement_metadata,omitempty"`
	ConsistencyGroup    string                         `gorm:"column:consistency_group;index" json:"consistency_group,omitempty"`
	Seq                 int                            `gorm:"column:seq;not null;default:0" json:"-"`
	CreatedAt           time.Time                      `json:"created_at"`
	UpdatedAt           time.Time                      `json:"updated_at"`
}

func (ProductionAsset) TableName() string { return "production_asset" }

type JobDependency struct {
	JobID uuid.UUID      `json:"job_id"`
	Kind  DependencyKind `json:"kind"`
}

type ProductionJob struct {
	ID                       uuid.UUID                          `gorm:"type:uuid;primaryKey" json:"id"`
	ManifestID               uuid.UUID                          `gorm:"type:uuid;not null;index" json:"manifest_id"`
	SceneID                  *uuid.UUID                         `gorm:"type:uuid;column:scene_id;index" json:"scene_id,omitempty"`
	Type                     JobType                            `gorm:"column:job_type;not null;index" json:"type"`
	Status                   JobStatus                          `gorm:"column:status;not null;index" json:"status"`
	Priority                 int                                `gorm:"column:priority;not null;default:0" json:"priority"`
	Dependencies             datatypes.JSONSlice[JobDependency] `gorm:"column:dependencies" json:"dependencies"`
	OutputAssets             datatypes.JSONSlice[uuid.UUID]     `gorm:"column:output_assets" json:"output_assets,omitempty"`
	ResourceRequirements     datatypes.JSONMap                  `gorm:"column:resource_requirements" json:"resource_requirements,omitempty"`
	Config                   datatypes.JSONMap                  `gorm:"column:config" json:"config,omitempty"`
	Attempts                 int                                `gorm:"column:attempts;not null;default:0" json:"attempts"`
	MaxAttempts              int                                `gorm:"column:max_attempts;not null;default:0" json:"max_attempts"`
	EstimatedCost            float64                            `gorm:"column:estimated_cost" json:"estimated_cost"`
	EstimatedDurationSeconds float64                            `gorm:"column:estimated_duration_seconds" json:"estimated_duration_seconds"`
	Result                   datatypes.JSONMap                  `gorm:"column:result" json:"result,omitempty"`
	Error                    string                             `gorm:"column:error" json:"error,omitempty"`
	OptionalFailures         datatypes.JSONSlice[uuid.UUID]     `gorm:"column:optional_failures" json:"optional_failures,omitempty"`
	BlockedBy                *uuid.UUID                         `gorm:"type:uuid;column:blocked_by" json:"blocked_by,omitempty"`
	NextAttemptAt            *time.Time                         `gorm:"column:next_attempt_at" json:"next_attempt_at,omitempty"`
	StartedAt                *time.Time                         `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt              *time.Time                         `gorm:"column:completed_at" json:"completed_at,omitempty"`
	// Seq keeps submission order, which the dependency sort is stable on.
	Seq                      int                                `gorm:"column:seq;not null;default:0" json:"-"`
	CreatedAt                time.Time                          `json:"created_at"`
	UpdatedAt                time.Time                          `json:"updated_at"`
}

func (ProductionJob) TableName() string { return "production_job" }

// BlockingDeps returns the ids this job cannot start without.
func (j *ProductionJob) BlockingDeps() []uuid.UUID {
	var out []uuid.UUID
	for _, d := range j.Dependencies {
		if d.Kind == DependencyBlocking {
			out = append(out, d.JobID)
		}
	}
	return out
}

type AudioPlan struct {
	VoiceoverJobs []uuid.UUID   `json:"voiceover_jobs,omitempty"`
	Music         *MusicPlan    `json:"music,omitempty"`
	SoundEffects  []SoundEffect `json:"sound_effects,omitempty"`
}

type MusicPlan struct {
	Mood            string  `json:"mood,omitempty"`
	Genre           string  `json:"genre,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	JobID           *uuid.UUID `json:"job_id,omitempty"`
}

type SoundEffect struct {
	SceneID     uuid.UUID `json:"scene_id"`
	Description string    `json:"description"`
	AtSeconds   float64   `json:"at_seconds"`
}

type VisualPlan struct {
	Effects []VisualEffect `json:"effects,omitempty"`
	Charts  []ChartSpec    `json:"charts,omitempty"`
}

type VisualEffect struct {
	SceneID uuid.UUID `json:"scene_id"`
	Kind    string    `json:"kind"`
}

type ChartSpec struct {
	SceneID   uuid.UUID `json:"scene_id"`
	ChartType string    `json:"chart_type"`
	AssetID   *uuid.UUID `json:"asset_id,omitempty"`
}

// ValidationIssue is one finding of the schema validator. Path is dotted,
// e.g. "scenes[2].primary_assets[0]".
type ValidationIssue struct {
	Path     string   `json:"path"`
	Message  string   `json:"message"`
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
}

// FinalJob returns the final_assembly job, falling back to rendering.
func (m *ProductionManifest) FinalJob() *ProductionJob {
	var rendering *ProductionJob
	for _, j := range m.Jobs {
		if j == nil {
			continue
		}
		switch j.Type {
		case JobFinalAssembly:
			return j
		case JobRendering:
			if rendering == nil {
				rendering = j
			}
		}
	}
	return rendering
}

func (m *ProductionManifest) JobByID(id uuid.UUID) *ProductionJob {
	for _, j := range m.Jobs {
		if j != nil && j.ID == id {
			return j
		}
	}
	return nil
}

func (m *ProductionManifest) SceneByID(id uuid.UUID) *ProductionScene {
	for _, s := range m.Scenes {
		if s != nil && s.ID == id {
			return s
		}
	}
	return nil
}

func (m *ProductionManifest) AssetByID(id uuid.UUID) *ProductionAsset {
	for _, a := range m.Assets {
		if a != nil && a.ID == id {
			return a
		}
	}
	return nil
}
