package worker

import (
	"context"
	"fmt"

	"github.com/yungbote/production-planner/internal/domain/production"
)

// Result is the payload a generation worker returns for one job. A
// "quality_score" entry, when present, is checked against the quality gate.
type Result map[string]any

// Pending resolves once the worker finished the job.
type Pending interface {
	Wait(ctx context.Context) (Result, error)
}

// Worker executes one job type asynchronously. Submit must not block on the
// work itself. Retries are the caller's concern.
type Worker interface {
	Submit(ctx context.Context, jobType production.JobType, config map[string]any) (Pending, error)
}

// Func adapts a synchronous function to the Worker contract. Each Submit
// runs fn on its own goroutine.
type Func func(ctx context.Context, jobType production.JobType, config map[string]any) (Result, error)

func (fn Func) Submit(ctx context.Context, jobType production.JobType, config map[string]any) (Pending, error) {
	p := newPending()
	go func() {
		var (
			res Result
			err error
		)
		defer func() {
			if r := recover(); r != nil {
				err = &panicError{Val: r}
			}
			p.resolve(res, err)
		}()
		res, err = fn(ctx, jobType, config)
	}()
	return p, nil
}

type pending struct {
	done chan struct{}
	res  Result
	err  error
}

func newPending() *pending { return &pending{done: make(chan struct{})} }

func (p *pending) resolve(res Result, err error) {
	p.res, p.err = res, err
	close(p.done)
}

func (p *pending) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		return p.res, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolved returns a Pending that is already finished.
func Resolved(res Result, err error) Pending {
	p := newPending()
	p.resolve(res, err)
	return p
}

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("worker panic: %v", e.Val) }
