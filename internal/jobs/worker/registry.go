package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/production-planner/internal/domain/production"
)

// Registry routes jobs to the worker registered for their type, falling back
// to a default worker when one is set.
type Registry struct {
	mu       sync.RWMutex
	workers  map[production.JobType]Worker
	fallback Worker
}

func NewRegistry() *Registry {
	return &Registry{workers: make(map[production.JobType]Worker)}
}

func (r *Registry) Register(t production.JobType, w Worker) error {
	if w == nil {
		return fmt.Errorf("nil worker")
	}
	if !t.Valid() {
		return fmt.Errorf("unknown job_type=%s", t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.workers[t]; exists {
		return fmt.Errorf("worker already registered for job_type=%s", t)
	}
	r.workers[t] = w
	return nil
}

func (r *Registry) SetFallback(w Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = w
}

func (r *Registry) Get(t production.JobType) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if w, ok := r.workers[t]; ok {
		return w, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

// Submit makes the registry itself a Worker.
func (r *Registry) Submit(ctx context.Context, jobType production.JobType, config map[string]any) (Pending, error) {
	w, ok := r.Get(jobType)
	if !ok {
		return nil, &production.JobExecutionError{
			JobType:   jobType,
			Message:   "no worker registered for job_type=" + string(jobType),
			Retryable: false,
		}
	}
	return w.Submit(ctx, jobType, config)
}
