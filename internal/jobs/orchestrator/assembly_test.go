package orchestrator

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/production-planner/internal/data/repos/testutil"
	"github.com/yungbote/production-planner/internal/domain/production"
)

func TestAutoFinalAssembly(t *testing.T) {
	m := testutil.Manifest(uuid.New(), 10, 10)
	if AutoFinalAssembly(m) != nil {
		t.Fatalf("manifest with a final job should be left alone")
	}

	m.Jobs = m.Jobs[:len(m.Jobs)-1]
	side := testutil.Job(m.ID, production.JobMusicGeneration)
	m.Jobs = append(m.Jobs, side)
	final := AutoFinalAssembly(m)
	if final == nil || m.FinalJob() != final {
		t.Fatalf("want a final_assembly job appended")
	}
	if len(final.Dependencies) != 4 {
		t.Fatalf("dependencies: want the 4 scene jobs got %d", len(final.Dependencies))
	}
	for _, d := range final.Dependencies {
		if d.JobID == side.ID || d.Kind != production.DependencyBlocking {
			t.Fatalf("unexpected dependency %+v", d)
		}
	}
	if _, err := BuildGraph(m.Jobs); err != nil {
		t.Fatalf("graph with appended job: %v", err)
	}

	flat := &production.ProductionManifest{ID: uuid.New()}
	a := testutil.Job(flat.ID, production.JobAnalysis)
	flat.Jobs = []*production.ProductionJob{a}
	if f := AutoFinalAssembly(flat); f == nil || len(f.Dependencies) != 1 || f.Dependencies[0].JobID != a.ID {
		t.Fatalf("without scene jobs the final job blocks on every job")
	}
	if AutoFinalAssembly(&production.ProductionManifest{}) != nil {
		t.Fatalf("no jobs, nothing to assemble")
	}
}
