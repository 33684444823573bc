package quality

import (
	"strings"

	"github.com/yungbote/production-planner/internal/domain/production"
)

const (
	WeightScenes   = 0.3
	WeightAssets   = 0.3
	WeightJobs     = 0.2
	WeightDuration = 0.1
	WeightFormat   = 0.1
)

// Factor is one presence check and whether it held.
type Factor struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Met    bool    `json:"met"`
}

// Breakdown explains a score.
type Breakdown struct {
	Score   float64  `json:"score"`
	Factors []Factor `json:"factors"`
}

// Score returns the accumulated weight of the satisfied factors divided by
// how many were satisfied, or 0 when none were. A manifest meeting all five
// checks scores 0.2.
func Score(m *production.ProductionManifest) float64 {
	return Explain(m).Score
}

func Explain(m *production.ProductionManifest) Breakdown {
	if m == nil {
		return Breakdown{}
	}
	factors := []Factor{
		{Name: "scenes", Weight: WeightScenes, Met: len(m.Scenes) > 0},
		{Name: "assets", Weight: WeightAssets, Met: len(m.Assets) > 0},
		{Name: "jobs", Weight: WeightJobs, Met: len(m.Jobs) > 0},
		{Name: "duration", Weight: WeightDuration, Met: m.DurationSeconds > 0},
		{Name: "format", Weight: WeightFormat, Met: strings.TrimSpace(m.AspectRatio) != "" && strings.TrimSpace(m.Platform) != ""},
	}
	var sum float64
	var n int
	for _, f := range factors {
		if f.Met {
			sum += f.Weight
			n++
		}
	}
	b := Breakdown{Factors: factors}
	if n > 0 {
		b.Score = sum / float64(n)
	}
	return b
}
