package orchestrator

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/production-planner/internal/domain/production"
)

// Edge points from a dependency to the job that declared it.
type Edge struct {
	From uuid.UUID
	To   uuid.UUID
	Kind production.DependencyKind
}

// Graph is the job dependency DAG of one manifest.
type Graph struct {
	order      []uuid.UUID
	rank       map[uuid.UUID]int
	jobs       map[uuid.UUID]*production.ProductionJob
	dependents map[uuid.UUID][]Edge
}

// CycleError names the jobs of one dependency cycle, in edge order.
type CycleError struct {
	Jobs []uuid.UUID
}

func (e *CycleError) Error() string {
	parts := make([]string, 0, len(e.Jobs)+1)
	for _, id := range e.Jobs {
		parts = append(parts, id.String())
	}
	if len(e.Jobs) > 0 {
		parts = append(parts, e.Jobs[0].String())
	}
	return "dependency cycle: " + strings.Join(parts, " -> ")
}

func (e *CycleError) Is(target error) bool { return target == production.ErrCycle }

// orders reports whether an edge of this kind constrains execution order.
// Parallel edges are co-scheduling hints and may point both ways.
func orders(k production.DependencyKind) bool {
	return k == production.DependencyBlocking || k == production.DependencyOptional
}

// BuildGraph validates the dependency declarations and returns the DAG with a
// Kahn topological order that is stable by input order.
func BuildGraph(jobs []*production.ProductionJob) (*Graph, error) {
	g := &Graph{
		rank:       map[uuid.UUID]int{},
		jobs:       map[uuid.UUID]*production.ProductionJob{},
		dependents: map[uuid.UUID][]Edge{},
	}
	if len(jobs) == 0 {
		return g, nil
	}
	for i, j := range jobs {
		if j == nil || j.ID == uuid.Nil {
			return nil, production.NewError(production.CodeValidation, "build graph", fmt.Sprintf("job %d missing id", i), nil)
		}
		if _, dup := g.jobs[j.ID]; dup {
			return nil, production.NewError(production.CodeValidation, "build graph", fmt.Sprintf("duplicate job id %s", j.ID), nil)
		}
		g.jobs[j.ID] = j
	}

	deg := map[uuid.UUID]int{}
	for _, j := range jobs {
		for _, d := range j.Dependencies {
			if d.JobID == j.ID {
				return nil, production.NewError(production.CodeValidation, "build graph", fmt.Sprintf("job %s depends on itself", j.ID), nil)
			}
			if _, ok := g.jobs[d.JobID]; !ok {
				return nil, production.NewError(production.CodeValidation, "build graph", fmt.Sprintf("job %s depends on unknown job %s", j.ID, d.JobID), nil)
			}
			g.dependents[d.JobID] = append(g.dependents[d.JobID], Edge{From: d.JobID, To: j.ID, Kind: d.Kind})
			if orders(d.Kind) {
				deg[j.ID]++
			}
		}
	}

	added := map[uuid.UUID]bool{}
	for {
		progressed := false
		for _, j := range jobs {
			if added[j.ID] || deg[j.ID] != 0 {
				continue
			}
			added[j.ID] = true
			g.rank[j.ID] = len(g.order)
			g.order = append(g.order, j.ID)
			for _, e := range g.dependents[j.ID] {
				if orders(e.Kind) {
					deg[e.To]--
				}
			}
			progressed = true
		}
		if !progressed {
			break
		}
	}

	if len(g.order) != len(jobs) {
		return nil, &CycleError{Jobs: findCycle(jobs, added)}
	}
	return g, nil
}

// findCycle walks ordering edges among the jobs Kahn could not place. Every
// such job has at least one unplaced dependency, so the walk must revisit.
func findCycle(jobs []*production.ProductionJob, placed map[uuid.UUID]bool) []uuid.UUID {
	byID := map[uuid.UUID]*production.ProductionJob{}
	var start uuid.UUID
	for _, j := range jobs {
		byID[j.ID] = j
		if start == uuid.Nil && !placed[j.ID] {
			start = j.ID
		}
	}
	pos := map[uuid.UUID]int{}
	var path []uuid.UUID
	cur := start
	for {
		if p, seen := pos[cur]; seen {
			// path runs against the edges; reverse so each job is followed by its dependent.
			cyc := append([]uuid.UUID(nil), path[p:]...)
			for i, k := 0, len(cyc)-1; i < k; i, k = i+1, k-1 {
				cyc[i], cyc[k] = cyc[k], cyc[i]
			}
			return cyc
		}
		pos[cur] = len(path)
		path = append(path, cur)
		next := uuid.Nil
		for _, d := range byID[cur].Dependencies {
			if orders(d.Kind) && !placed[d.JobID] {
				next = d.JobID
				break
			}
		}
		if next == uuid.Nil {
			return path
		}
		cur = next
	}
}

func (g *Graph) Order() []uuid.UUID { return append([]uuid.UUID(nil), g.order...) }

func (g *Graph) Len() int { return len(g.order) }

func (g *Graph) Job(id uuid.UUID) *production.ProductionJob { return g.jobs[id] }

// Rank is the topological position of id, or -1 when unknown.
func (g *Graph) Rank(id uuid.UUID) int {
	r, ok := g.rank[id]
	if !ok {
		return -1
	}
	return r
}

// Dependents lists the edges whose dependency is id.
func (g *Graph) Dependents(id uuid.UUID) []Edge { return g.dependents[id] }

// HasAssembly reports whether any job finishes the production.
func (g *Graph) HasAssembly() bool {
	for _, j := range g.jobs {
		if j.Type.Assembles() {
			return true
		}
	}
	return false
}

// Blocking reports whether id gates another job or is itself an assembly job.
func (g *Graph) Blocking(id uuid.UUID) bool {
	if j := g.jobs[id]; j != nil && j.Type.Assembles() {
		return true
	}
	for _, e := range g.dependents[id] {
		if e.Kind == production.DependencyBlocking {
			return true
		}
	}
	return false
}
