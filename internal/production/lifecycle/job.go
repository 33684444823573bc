package lifecycle

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/production-planner/internal/domain/production"
)

var jobNext = map[production.JobStatus][]production.JobStatus{
	production.JobPending:    {production.JobProcessing, production.JobFailed, production.JobCancelled},
	production.JobProcessing: {production.JobCompleted, production.JobFailed, production.JobPending, production.JobCancelled},
}

func CanTransitionJob(from, to production.JobStatus) bool {
	for _, s := range jobNext[from] {
		if s == to {
			return true
		}
	}
	return false
}

func jobIllegal(j *production.ProductionJob, to production.JobStatus) error {
	return production.NewError(production.CodeIllegalTransition, "job transition",
		fmt.Sprintf("job %s cannot move from %s to %s", j.ID, j.Status, to), nil)
}

// StartJob dispatches a pending job and counts the attempt.
func StartJob(j *production.ProductionJob, now time.Time) error {
	if !CanTransitionJob(j.Status, production.JobProcessing) {
		return jobIllegal(j, production.JobProcessing)
	}
	j.Status = production.JobProcessing
	j.Attempts++
	j.NextAttemptAt = nil
	stamp(&j.StartedAt, now)
	return nil
}

func CompleteJob(j *production.ProductionJob, result map[string]any, now time.Time) error {
	if !CanTransitionJob(j.Status, production.JobCompleted) {
		return jobIllegal(j, production.JobCompleted)
	}
	j.Status = production.JobCompleted
	j.Result = result
	j.Error = ""
	stamp(&j.CompletedAt, now)
	return nil
}

// RetryJob puts a failed attempt back to pending until next.
func RetryJob(j *production.ProductionJob, cause string, next time.Time) error {
	if j.Status != production.JobProcessing {
		return jobIllegal(j, production.JobPending)
	}
	j.Status = production.JobPending
	j.Error = cause
	t := next.UTC()
	j.NextAttemptAt = &t
	return nil
}

// FailJob is terminal. A pending job may fail without running when it is
// refused admission.
func FailJob(j *production.ProductionJob, cause string, now time.Time) error {
	if !CanTransitionJob(j.Status, production.JobFailed) {
		return jobIllegal(j, production.JobFailed)
	}
	j.Status = production.JobFailed
	j.Error = cause
	j.NextAttemptAt = nil
	stamp(&j.CompletedAt, now)
	return nil
}

// BlockJob fails a pending job whose blocking dependency failed.
func BlockJob(j *production.ProductionJob, by uuid.UUID, now time.Time) error {
	if j.Status != production.JobPending {
		return jobIllegal(j, production.JobFailed)
	}
	if err := FailJob(j, fmt.Sprintf("blocked by failed dependency %s", by), now); err != nil {
		return err
	}
	j.BlockedBy = &by
	return nil
}

func CancelJob(j *production.ProductionJob, now time.Time) error {
	if j.Status.Terminal() {
		return jobIllegal(j, production.JobCancelled)
	}
	j.Status = production.JobCancelled
	j.Error = "cancelled"
	j.NextAttemptAt = nil
	stamp(&j.CompletedAt, now)
	return nil
}
