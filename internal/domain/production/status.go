package production

type ManifestStatus string

const (
	ManifestDraft        ManifestStatus = "draft"
	ManifestValidated    ManifestStatus = "validated"
	ManifestApproved     ManifestStatus = "approved"
	ManifestInProduction ManifestStatus = "in_production"
	ManifestCompleted    ManifestStatus = "completed"
	ManifestFailed       ManifestStatus = "failed"
)

func (s ManifestStatus) Terminal() bool {
	return s == ManifestCompleted || s == ManifestFailed
}

type ValidationStatus string

const (
	ValidationPending ValidationStatus = "pending"
	ValidationValid   ValidationStatus = "valid"
	ValidationInvalid ValidationStatus = "invalid"
	ValidationWarning ValidationStatus = "warning"
)

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transition is possible. A cancelled
// job counts as a failure for dependency propagation.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobProcessing, JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

type AssetStatus string

const (
	AssetPending    AssetStatus = "pending"
	AssetProcessing AssetStatus = "processing"
	AssetReady      AssetStatus = "ready"
	AssetFailed     AssetStatus = "failed"
	AssetSkipped    AssetStatus = "skipped"
)

func (s AssetStatus) Valid() bool {
	switch s {
	case AssetPending, AssetProcessing, AssetReady, AssetFailed, AssetSkipped:
		return true
	}
	return false
}

type SceneStatus string

const (
	ScenePending    SceneStatus = "pending"
	SceneProcessing SceneStatus = "processing"
	SceneReady      SceneStatus = "ready"
	SceneFailed     SceneStatus = "failed"
)

func (s SceneStatus) Valid() bool {
	switch s {
	case ScenePending, SceneProcessing, SceneReady, SceneFailed:
		return true
	}
	return false
}

type AssetType string

const (
	AssetImage  AssetType = "image"
	AssetVideo  AssetType = "video"
	AssetAudio  AssetType = "audio"
	AssetText   AssetType = "text"
	AssetChart  AssetType = "chart"
	AssetEffect AssetType = "effect"
)

func (t AssetType) Valid() bool {
	switch t {
	case AssetImage, AssetVideo, AssetAudio, AssetText, AssetChart, AssetEffect:
		return true
	}
	return false
}

type AssetSource string

const (
	SourceUserUpload  AssetSource = "user_upload"
	SourceAIGenerated AssetSource = "ai_generated"
	SourceStock       AssetSource = "stock"
	SourceEnhanced    AssetSource = "enhanced"
)

func (s AssetSource) Valid() bool {
	switch s {
	case SourceUserUpload, SourceAIGenerated, SourceStock, SourceEnhanced:
		return true
	}
	return false
}

type JobType string

const (
	JobAnalysis            JobType = "analysis"
	JobAssetPrep           JobType = "asset_prep"
	JobStoryboard          JobType = "storyboard"
	JobRender              JobType = "render"
	JobVoiceoverGeneration JobType = "voiceover_generation"
	JobMusicGeneration     JobType = "music_generation"
	JobSoundEffects        JobType = "sound_effects"
	JobImageGeneration     JobType = "image_generation"
	JobVideoGenerationAI   JobType = "video_generation_ai"
	JobChartGeneration     JobType = "chart_generation"
	JobSubtitleGeneration  JobType = "subtitle_generation"
	JobLipsyncProcessing   JobType = "lipsync_processing"
	JobVisualEffects       JobType = "visual_effects"
	JobAssetEnhancement    JobType = "asset_enhancement"
	JobConsistencyCheck    JobType = "consistency_check"
	JobQualityValidation   JobType = "quality_validation"
	JobFinalAssembly       JobType = "final_assembly"
	JobRendering           JobType = "rendering"
)

var jobTypes = map[JobType]struct{}{
	JobAnalysis: {}, JobAssetPrep: {}, JobStoryboard: {}, JobRender: {},
	JobVoiceoverGeneration: {}, JobMusicGeneration: {}, JobSoundEffects: {},
	JobImageGeneration: {}, JobVideoGenerationAI: {}, JobChartGeneration: {},
	JobSubtitleGeneration: {}, JobLipsyncProcessing: {}, JobVisualEffects: {},
	JobAssetEnhancement: {}, JobConsistencyCheck: {}, JobQualityValidation: {},
	JobFinalAssembly: {}, JobRendering: {},
}

func (t JobType) Valid() bool {
	_, ok := jobTypes[t]
	return ok
}

// Assembles reports whether completing this job finishes the production.
func (t JobType) Assembles() bool {
	return t == JobFinalAssembly || t == JobRendering
}

type DependencyKind string

const (
	DependencyBlocking DependencyKind = "blocking"
	DependencyOptional DependencyKind = "optional"
	DependencyParallel DependencyKind = "parallel"
)

func (k DependencyKind) Valid() bool {
	return k == DependencyBlocking || k == DependencyOptional || k == DependencyParallel
}

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)
