package production

import "github.com/google/uuid"

func cloneIDs(in []uuid.UUID) []uuid.UUID {
	if in == nil {
		return nil
	}
	return append([]uuid.UUID(nil), in...)
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (j *ProductionJob) Clone() *ProductionJob {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Dependencies = append([]JobDependency(nil), j.Dependencies...)
	cp.OutputAssets = cloneIDs(j.OutputAssets)
	cp.OptionalFailures = cloneIDs(j.OptionalFailures)
	cp.ResourceRequirements = cloneMap(j.ResourceRequirements)
	cp.Config = cloneMap(j.Config)
	cp.Result = cloneMap(j.Result)
	return &cp
}

func (s *ProductionScene) Clone() *ProductionScene {
	if s == nil {
		return nil
	}
	cp := *s
	cp.PrimaryAssets = cloneIDs(s.PrimaryAssets)
	cp.BackgroundAssets = cloneIDs(s.BackgroundAssets)
	cp.OverlayAssets = cloneIDs(s.OverlayAssets)
	return &cp
}

func (a *ProductionAsset) Clone() *ProductionAsset {
	if a == nil {
		return nil
	}
	cp := *a
	cp.SceneAssignments = cloneIDs(a.SceneAssignments)
	cp.EnhancementMetadata = cloneMap(a.EnhancementMetadata)
	return &cp
}

// Clone copies the manifest and its children. Plans and raw document bytes
// are shared.
func (m *ProductionManifest) Clone() *ProductionManifest {
	if m == nil {
		return nil
	}
	cp := *m
	cp.ValidationErrors = append([]ValidationIssue(nil), m.ValidationErrors...)
	cp.Scenes = make([]*ProductionScene, 0, len(m.Scenes))
	for _, s := range m.Scenes {
		cp.Scenes = append(cp.Scenes, s.Clone())
	}
	cp.Assets = make([]*ProductionAsset, 0, len(m.Assets))
	for _, a := range m.Assets {
		cp.Assets = append(cp.Assets, a.Clone())
	}
	cp.Jobs = make([]*ProductionJob, 0, len(m.Jobs))
	for _, j := range m.Jobs {
		cp.Jobs = append(cp.Jobs, j.Clone())
	}
	return &cp
}
