package validation

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/production-planner/internal/domain/production"
	"github.com/yungbote/production-planner/internal/jobs/orchestrator"
)

type checker struct {
	m      *production.ProductionManifest
	issues []Issue

	badScenes map[int]bool
	badAssets map[int]bool
	badJobs   map[int]bool

	sceneIDs map[uuid.UUID]bool
	assetIDs map[uuid.UUID]bool
	jobIDs   map[uuid.UUID]bool
}

// Validate checks m in three layers: structure, cross references, derived
// fields. A subtree that fails structurally is left out of the later layers.
// Validate never mutates m.
func Validate(m *production.ProductionManifest) Result {
	if m == nil {
		return Invalid{Issues: []Issue{errorf("", CodeRequired, "manifest is required")}}
	}
	c := &checker{
		m:         m,
		badScenes: map[int]bool{},
		badAssets: map[int]bool{},
		badJobs:   map[int]bool{},
		sceneIDs:  map[uuid.UUID]bool{},
		assetIDs:  map[uuid.UUID]bool{},
		jobIDs:    map[uuid.UUID]bool{},
	}
	c.structure()
	c.references()
	c.derived()

	for _, is := range c.issues {
		if is.Severity == production.SeverityError {
			return Invalid{Issues: c.issues}
		}
	}
	return Valid{Manifest: m, Warnings: c.issues}
}

func errorf(path, code, format string, args ...any) Issue {
	return Issue{Path: path, Code: code, Message: fmt.Sprintf(format, args...), Severity: production.SeverityError}
}

func warnf(path, code, format string, args ...any) Issue {
	return Issue{Path: path, Code: code, Message: fmt.Sprintf(format, args...), Severity: production.SeverityWarning}
}

func (c *checker) add(is Issue) { c.issues = append(c.issues, is) }

// ---------- layer a: structure ----------

func (c *checker) structure() {
	m := c.m
	if m.OwnerID == uuid.Nil {
		c.add(errorf("owner_id", CodeRequired, "owner_id is required"))
	}
	if m.DurationSeconds <= 0 || math.IsNaN(m.DurationSeconds) || math.IsInf(m.DurationSeconds, 0) {
		c.add(errorf("duration_seconds", CodeOutOfRange, "duration_seconds must be > 0, got %v", m.DurationSeconds))
	}
	if m.Priority < 0 {
		c.add(errorf("priority", CodeOutOfRange, "priority must be >= 0, got %d", m.Priority))
	}
	if m.Status != "" {
		switch m.Status {
		case production.ManifestDraft, production.ManifestValidated, production.ManifestApproved,
			production.ManifestInProduction, production.ManifestCompleted, production.ManifestFailed:
		default:
			c.add(errorf("status", CodeInvalidEnum, "unknown manifest status %q", m.Status))
		}
	}
	if m.ValidationStatus != "" {
		switch m.ValidationStatus {
		case production.ValidationPending, production.ValidationValid, production.ValidationInvalid, production.ValidationWarning:
		default:
			c.add(errorf("validation_status", CodeInvalidEnum, "unknown validation status %q", m.ValidationStatus))
		}
	}

	for i, s := range m.Scenes {
		if !c.sceneStructure(i, s) {
			c.badScenes[i] = true
		}
	}
	for i, a := range m.Assets {
		if !c.assetStructure(i, a) {
			c.badAssets[i] = true
		}
	}
	for i, j := range m.Jobs {
		if !c.jobStructure(i, j) {
			c.badJobs[i] = true
		}
	}
}

func (c *checker) sceneStructure(i int, s *production.ProductionScene) bool {
	p := fmt.Sprintf("scenes[%d]", i)
	if s == nil {
		c.add(errorf(p, CodeRequired, "scene is required"))
		return false
	}
	ok := true
	if s.ID == uuid.Nil {
		c.add(errorf(p+".id", CodeRequired, "scene id is required"))
		ok = false
	} else if c.sceneIDs[s.ID] {
		c.add(errorf(p+".id", CodeDuplicateID, "duplicate scene id %s", s.ID))
		ok = false
	} else {
		c.sceneIDs[s.ID] = true
	}
	if s.SceneOrder <= 0 {
		c.add(errorf(p+".scene_order", CodeOutOfRange, "scene_order must be a positive integer, got %d", s.SceneOrder))
		ok = false
	}
	if s.DurationSeconds <= 0 {
		c.add(errorf(p+".duration_seconds", CodeOutOfRange, "scene duration must be > 0, got %v", s.DurationSeconds))
		ok = false
	}
	if s.StartTimeSeconds < 0 {
		c.add(errorf(p+".start_time_seconds", CodeOutOfRange, "start_time_seconds must be >= 0, got %v", s.StartTimeSeconds))
		ok = false
	}
	if s.Status != "" && !s.Status.Valid() {
		c.add(errorf(p+".status", CodeInvalidEnum, "unknown scene status %q", s.Status))
		ok = false
	}
	return ok
}

func (c *checker) assetStructure(i int, a *production.ProductionAsset) bool {
	p := fmt.Sprintf("assets[%d]", i)
	if a == nil {
		c.add(errorf(p, CodeRequired, "asset is required"))
		return false
	}
	ok := true
	if a.ID == uuid.Nil {
		c.add(errorf(p+".id", CodeRequired, "asset id is required"))
		ok = false
	} else if c.assetIDs[a.ID] {
		c.add(errorf(p+".id", CodeDuplicateID, "duplicate asset id %s", a.ID))
		ok = false
	} else {
		c.assetIDs[a.ID] = true
	}
	if a.AssetType == "" {
		c.add(errorf(p+".asset_type", CodeRequired, "asset_type is required"))
		ok = false
	} else if !a.AssetType.Valid() {
		c.add(errorf(p+".asset_type", CodeInvalidEnum, "unknown asset_type %q", a.AssetType))
		ok = false
	}
	if a.Source == "" {
		c.add(errorf(p+".source", CodeRequired, "source is required"))
		ok = false
	} else if !a.Source.Valid() {
		c.add(errorf(p+".source", CodeInvalidEnum, "unknown source %q", a.Source))
		ok = false
	}
	if a.Status != "" && !a.Status.Valid() {
		c.add(errorf(p+".status", CodeInvalidEnum, "unknown asset status %q", a.Status))
		ok = false
	}
	if ti := a.TimingInfo.Data(); ti != nil {
		if ti.StartSeconds < 0 {
			c.add(errorf(p+".timing_info.start_seconds", CodeOutOfRange, "start must be >= 0, got %v", ti.StartSeconds))
			ok = false
		}
		if ti.DurationSeconds < 0 {
			c.add(errorf(p+".timing_info.duration_seconds", CodeOutOfRange, "duration must be >= 0, got %v", ti.DurationSeconds))
			ok = false
		}
	}
	return ok
}

func (c *checker) jobStructure(i int, j *production.ProductionJob) bool {
	p := fmt.Sprintf("jobs[%d]", i)
	if j == nil {
		c.add(errorf(p, CodeRequired, "job is required"))
		return false
	}
	ok := true
	if j.ID == uuid.Nil {
		c.add(errorf(p+".id", CodeRequired, "job id is required"))
		ok = false
	} else if c.jobIDs[j.ID] {
		c.add(errorf(p+".id", CodeDuplicateID, "duplicate job id %s", j.ID))
		ok = false
	} else {
		c.jobIDs[j.ID] = true
	}
	if j.Type == "" {
		c.add(errorf(p+".type", CodeRequired, "job type is required"))
		ok = false
	} else if !j.Type.Valid() {
		c.add(errorf(p+".type", CodeInvalidEnum, "unknown job type %q", j.Type))
		ok = false
	}
	if j.Status != "" && !j.Status.Valid() {
		c.add(errorf(p+".status", CodeInvalidEnum, "unknown job status %q", j.Status))
		ok = false
	}
	if j.Attempts < 0 {
		c.add(errorf(p+".attempts", CodeOutOfRange, "attempts must be >= 0, got %d", j.Attempts))
		ok = false
	}
	if j.MaxAttempts < 0 {
		c.add(errorf(p+".max_attempts", CodeOutOfRange, "max_attempts must be >= 0, got %d", j.MaxAttempts))
		ok = false
	}
	if j.EstimatedCost < 0 {
		c.add(errorf(p+".estimated_cost", CodeOutOfRange, "estimated_cost must be >= 0, got %v", j.EstimatedCost))
		ok = false
	}
	if j.EstimatedDurationSeconds < 0 {
		c.add(errorf(p+".estimated_duration_seconds", CodeOutOfRange, "estimated_duration_seconds must be >= 0, got %v", j.EstimatedDurationSeconds))
		ok = false
	}
	for k, d := range j.Dependencies {
		dp := fmt.Sprintf("%s.dependencies[%d]", p, k)
		if d.JobID == uuid.Nil {
			c.add(errorf(dp+".job_id", CodeRequired, "dependency job_id is required"))
			ok = false
		}
		if !d.Kind.Valid() {
			c.add(errorf(dp+".kind", CodeInvalidEnum, "unknown dependency kind %q", d.Kind))
			ok = false
		}
	}
	return ok
}

// ---------- layer b: cross references ----------

func (c *checker) references() {
	c.sceneOrder()
	c.sceneDurations()

	for i, s := range c.m.Scenes {
		if c.badScenes[i] {
			continue
		}
		p := fmt.Sprintf("scenes[%d]", i)
		c.assetRefs(p+".primary_assets", s.PrimaryAssets)
		c.assetRefs(p+".background_assets", s.BackgroundAssets)
		c.assetRefs(p+".overlay_assets", s.OverlayAssets)
		if len(s.PrimaryAssets)+len(s.BackgroundAssets)+len(s.OverlayAssets) == 0 {
			c.add(warnf(p, CodeEmptySceneAssets, "scene %d has no assets", s.SceneOrder))
		}
	}
	for i, a := range c.m.Assets {
		if c.badAssets[i] {
			continue
		}
		for k, sid := range a.SceneAssignments {
			if !c.sceneIDs[sid] {
				c.add(errorf(fmt.Sprintf("assets[%d].scene_assignments[%d]", i, k), CodeUnknownSceneRef, "unknown scene %s", sid))
			}
		}
	}
	for i, j := range c.m.Jobs {
		if c.badJobs[i] {
			continue
		}
		p := fmt.Sprintf("jobs[%d]", i)
		if j.SceneID != nil && !c.sceneIDs[*j.SceneID] {
			c.add(errorf(p+".scene_id", CodeUnknownSceneRef, "unknown scene %s", *j.SceneID))
		}
		c.assetRefs(p+".output_assets", j.OutputAssets)
		for k, d := range j.Dependencies {
			dp := fmt.Sprintf("%s.dependencies[%d].job_id", p, k)
			switch {
			case d.JobID == j.ID:
				c.add(errorf(dp, CodeSelfDependency, "job %s depends on itself", j.ID))
			case !c.jobIDs[d.JobID]:
				c.add(errorf(dp, CodeUnknownJobRef, "unknown job %s", d.JobID))
			}
		}
	}
	c.planRefs()
	c.cycles()
}

func (c *checker) assetRefs(path string, ids []uuid.UUID) {
	for k, id := range ids {
		if !c.assetIDs[id] {
			c.add(errorf(fmt.Sprintf("%s[%d]", path, k), CodeUnknownAssetRef, "unknown asset %s", id))
		}
	}
}

// sceneOrder checks every scene whose own scene_order is usable; a scene
// that failed structure for another field still takes part.
func (c *checker) sceneOrder() {
	if len(c.m.Scenes) == 0 {
		return
	}
	seen := map[int]int{}
	complete := true
	for i, s := range c.m.Scenes {
		if s == nil || s.SceneOrder <= 0 {
			complete = false
			continue
		}
		if first, dup := seen[s.SceneOrder]; dup {
			c.add(errorf(fmt.Sprintf("scenes[%d].scene_order", i), CodeSceneOrderDuplicate, "scene_order %d already used by scenes[%d]", s.SceneOrder, first))
			continue
		}
		seen[s.SceneOrder] = i
	}
	if complete {
		var missing []string
		for n := 1; n <= len(c.m.Scenes); n++ {
			if _, ok := seen[n]; !ok {
				missing = append(missing, fmt.Sprint(n))
			}
		}
		if len(missing) > 0 {
			c.add(errorf("scenes", CodeSceneOrderGap, "scene_order must be contiguous 1..%d, missing %s", len(c.m.Scenes), strings.Join(missing, ", ")))
		}
	}
	if len(c.badScenes) > 0 {
		return
	}

	ordered := append([]*production.ProductionScene(nil), c.m.Scenes...)
	sort.SliceStable(ordered, func(a, b int) bool { return ordered[a].SceneOrder < ordered[b].SceneOrder })
	anyStart := false
	for _, s := range ordered {
		if s.StartTimeSeconds != 0 {
			anyStart = true
			break
		}
	}
	if !anyStart {
		return
	}
	var at float64
	for _, s := range ordered {
		if math.Abs(s.StartTimeSeconds-at) > DurationTolerance {
			c.add(warnf(fmt.Sprintf("scenes[%d].start_time_seconds", indexOfScene(c.m.Scenes, s)), CodeSceneStartMismatch,
				"scene %d starts at %.2fs, expected %.2fs", s.SceneOrder, s.StartTimeSeconds, at))
		}
		at += s.DurationSeconds
	}
}

func indexOfScene(scenes []*production.ProductionScene, s *production.ProductionScene) int {
	for i, x := range scenes {
		if x == s {
			return i
		}
	}
	return -1
}

func (c *checker) sceneDurations() {
	if len(c.m.Scenes) == 0 || c.m.DurationSeconds <= 0 {
		return
	}
	var sum float64
	for _, s := range c.m.Scenes {
		if s == nil || s.DurationSeconds <= 0 {
			return
		}
		sum += s.DurationSeconds
	}
	if math.Abs(sum-c.m.DurationSeconds) > DurationTolerance {
		c.add(errorf("scenes", CodeDurationMismatch, "scene durations sum to %.2fs but duration_seconds is %.2fs", sum, c.m.DurationSeconds))
	}
}

func (c *checker) planRefs() {
	ap := c.m.AudioPlan.Data()
	for k, id := range ap.VoiceoverJobs {
		if !c.jobIDs[id] {
			c.add(errorf(fmt.Sprintf("audio_plan.voiceover_jobs[%d]", k), CodeUnknownJobRef, "unknown job %s", id))
		}
	}
	if ap.Music != nil && ap.Music.JobID != nil && !c.jobIDs[*ap.Music.JobID] {
		c.add(errorf("audio_plan.music.job_id", CodeUnknownJobRef, "unknown job %s", *ap.Music.JobID))
	}
	for k, fx := range ap.SoundEffects {
		if !c.sceneIDs[fx.SceneID] {
			c.add(errorf(fmt.Sprintf("audio_plan.sound_effects[%d].scene_id", k), CodeUnknownSceneRef, "unknown scene %s", fx.SceneID))
		}
	}
	vp := c.m.VisualPlan.Data()
	for k, fx := range vp.Effects {
		if !c.sceneIDs[fx.SceneID] {
			c.add(errorf(fmt.Sprintf("visual_plan.effects[%d].scene_id", k), CodeUnknownSceneRef, "unknown scene %s", fx.SceneID))
		}
	}
	for k, ch := range vp.Charts {
		p := fmt.Sprintf("visual_plan.charts[%d]", k)
		if !c.sceneIDs[ch.SceneID] {
			c.add(errorf(p+".scene_id", CodeUnknownSceneRef, "unknown scene %s", ch.SceneID))
		}
		if ch.AssetID != nil && !c.assetIDs[*ch.AssetID] {
			c.add(errorf(p+".asset_id", CodeUnknownAssetRef, "unknown asset %s", *ch.AssetID))
		}
	}
}

// cycles runs the dependency graph over the structurally sound jobs, with
// dangling edges removed since they are reported above.
func (c *checker) cycles() {
	var jobs []*production.ProductionJob
	good := map[uuid.UUID]bool{}
	for i, j := range c.m.Jobs {
		if !c.badJobs[i] {
			good[j.ID] = true
		}
	}
	for i, j := range c.m.Jobs {
		if c.badJobs[i] {
			continue
		}
		cp := *j
		cp.Dependencies = nil
		for _, d := range j.Dependencies {
			if d.JobID != j.ID && good[d.JobID] {
				cp.Dependencies = append(cp.Dependencies, d)
			}
		}
		jobs = append(jobs, &cp)
	}
	_, err := orchestrator.BuildGraph(jobs)
	if err == nil {
		return
	}
	var ce *orchestrator.CycleError
	if errors.As(err, &ce) {
		c.add(errorf("jobs", CodeDependencyCycle, "%s", ce.Error()))
		return
	}
	c.add(errorf("jobs", CodeDependencyCycle, "%v", err))
}

// ---------- layer c: derived fields ----------

func (c *checker) derived() {
	m := c.m
	switch m.ValidationStatus {
	case production.ValidationValid:
		if len(m.ValidationErrors) > 0 {
			c.add(errorf("validation_status", CodeValidationStatusMismatch, "validation_status is valid but %d validation_errors are recorded", len(m.ValidationErrors)))
		}
	case production.ValidationInvalid:
		if len(m.ValidationErrors) == 0 {
			c.add(errorf("validation_status", CodeValidationStatusMismatch, "validation_status is invalid but no validation_errors are recorded"))
		}
	}
	if m.QualityScore < 0 || m.QualityScore > 1 {
		c.add(errorf("quality_score", CodeOutOfRange, "quality_score must be within [0,1], got %v", m.QualityScore))
	}
	for i, s := range m.Scenes {
		if c.badScenes[i] {
			continue
		}
		p := fmt.Sprintf("scenes[%d]", i)
		if s.QualityScore != nil && (*s.QualityScore < 0 || *s.QualityScore > 1) {
			c.add(errorf(p+".quality_score", CodeOutOfRange, "quality_score must be within [0,1], got %v", *s.QualityScore))
		}
		if s.ConsistencyScore != nil && (*s.ConsistencyScore < 0 || *s.ConsistencyScore > 1) {
			c.add(errorf(p+".consistency_score", CodeOutOfRange, "consistency_score must be within [0,1], got %v", *s.ConsistencyScore))
		}
	}
	for i, a := range m.Assets {
		if c.badAssets[i] {
			continue
		}
		ti := a.TimingInfo.Data()
		if ti == nil {
			continue
		}
		if math.Abs(ti.EndSeconds-(ti.StartSeconds+ti.DurationSeconds)) > 0.01 {
			c.add(errorf(fmt.Sprintf("assets[%d].timing_info.end_seconds", i), CodeTimingMismatch,
				"end must equal start + duration (%.2f + %.2f), got %.2f", ti.StartSeconds, ti.DurationSeconds, ti.EndSeconds))
		}
	}
	if len(m.Jobs) > 0 && m.FinalJob() == nil {
		c.add(warnf("jobs", CodeMissingFinalAssembly, "no final_assembly or rendering job; one is appended when production starts"))
	}
}
