package orchestrator

import (
	"github.com/google/uuid"

	"github.com/yungbote/production-planner/internal/domain/production"
)

// AutoFinalAssembly appends a final_assembly job to m when it has no final
// job yet. The new job blocks on every scene-level job, or on every job when
// none is tied to a scene. It returns the added job, or nil.
func AutoFinalAssembly(m *production.ProductionManifest) *production.ProductionJob {
	if m == nil || m.FinalJob() != nil || len(m.Jobs) == 0 {
		return nil
	}
	var deps []production.JobDependency
	for _, j := range m.Jobs {
		if j != nil && j.SceneID != nil {
			deps = append(deps, production.JobDependency{JobID: j.ID, Kind: production.DependencyBlocking})
		}
	}
	if len(deps) == 0 {
		for _, j := range m.Jobs {
			if j != nil {
				deps = append(deps, production.JobDependency{JobID: j.ID, Kind: production.DependencyBlocking})
			}
		}
	}
	maxAttempts := 0
	for _, j := range m.Jobs {
		if j != nil && j.MaxAttempts > maxAttempts {
			maxAttempts = j.MaxAttempts
		}
	}
	final := &production.ProductionJob{
		ID:           uuid.New(),
		ManifestID:   m.ID,
		Type:         production.JobFinalAssembly,
		Status:       production.JobPending,
		Dependencies: deps,
		MaxAttempts:  maxAttempts,
	}
	m.Jobs = append(m.Jobs, final)
	return final
}
