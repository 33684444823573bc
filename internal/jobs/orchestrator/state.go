package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/production-planner/internal/domain/production"
)

// Change describes one entity transition inside a run. Exactly one of Job,
// Scene or Asset is set. The values are copies owned by the receiver.
type Change struct {
	ManifestID uuid.UUID
	Job        *production.ProductionJob
	Scene      *production.ProductionScene
	Asset      *production.ProductionAsset
	Warning    string
}

// RunOptions tune a single run.
type RunOptions struct {
	// Profile selects the governance profile.
	Profile string
	// OnChange is called from the run goroutine after every transition.
	OnChange func(Change)
}

// Outcome is the terminal state of a run.
type Outcome struct {
	ManifestID uuid.UUID
	Status     production.ManifestStatus
	Error      string
	Cancelled  bool

	Jobs   []*production.ProductionJob
	Scenes []*production.ProductionScene
	Assets []*production.ProductionAsset

	// AssemblyOrder lists scene ids by scene_order.
	AssemblyOrder []uuid.UUID

	Spent      float64
	StartedAt  time.Time
	FinishedAt time.Time
}

type jobResult struct {
	jobID   uuid.UUID
	attempt int
	result  map[string]any
	err     error
}

func ptrTime(t time.Time) *time.Time { return &t }

func earliestTime(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.Before(*a) {
		return b
	}
	return a
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
