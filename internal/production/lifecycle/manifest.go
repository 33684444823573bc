package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/production-planner/internal/domain/production"
)

var manifestNext = map[production.ManifestStatus][]production.ManifestStatus{
	production.ManifestDraft:        {production.ManifestValidated, production.ManifestFailed},
	production.ManifestValidated:    {production.ManifestApproved, production.ManifestFailed},
	production.ManifestApproved:     {production.ManifestInProduction, production.ManifestFailed},
	production.ManifestInProduction: {production.ManifestCompleted, production.ManifestFailed},
}

// CanTransition reports whether from -> to is an edge of the manifest
// lifecycle. Staying in the same state is not a transition.
func CanTransition(from, to production.ManifestStatus) bool {
	for _, s := range manifestNext[from] {
		if s == to {
			return true
		}
	}
	return false
}

func illegal(op string, from, to production.ManifestStatus) error {
	return production.NewError(production.CodeIllegalTransition, op, fmt.Sprintf("manifest cannot move from %s to %s", from, to), nil)
}

func stamp(dst **time.Time, now time.Time) *time.Time {
	if *dst == nil {
		t := now.UTC()
		*dst = &t
		return *dst
	}
	return nil
}

func status(s production.ManifestStatus) *production.ManifestStatus { return &s }

// Validate admits a checked manifest. The validation result must already be
// recorded on m (validation_status and validation_errors); score is stored
// alongside it. A draft moves to validated when the status is valid or
// warning. Already validated manifests stay validated and keep their first
// validated_at. The returned patch carries everything that changed; err is a
// *production.ValidationError when the recorded status is not usable.
func Validate(m *production.ProductionManifest, score float64, now time.Time) (production.ManifestPatch, error) {
	if m.Status != production.ManifestDraft && m.Status != production.ManifestValidated {
		return production.ManifestPatch{}, illegal("validate", m.Status, production.ManifestValidated)
	}
	m.QualityScore = score

	vs := m.ValidationStatus
	errs := []production.ValidationIssue(m.ValidationErrors)
	if errs == nil {
		errs = []production.ValidationIssue{}
	}
	p := production.ManifestPatch{
		ValidationStatus: &vs,
		ValidationErrors: &errs,
		QualityScore:     &score,
	}
	switch vs {
	case production.ValidationValid, production.ValidationWarning:
	case production.ValidationInvalid:
		return p, &production.ValidationError{Issues: errorIssues(errs)}
	default:
		return p, production.NewError(production.CodeValidation, "validate", "manifest has not been checked", nil)
	}
	if m.Status == production.ManifestDraft {
		m.Status = production.ManifestValidated
		p.Status = status(m.Status)
		p.ValidatedAt = stamp(&m.ValidatedAt, now)
	}
	return p, nil
}

func errorIssues(in []production.ValidationIssue) []production.ValidationIssue {
	var out []production.ValidationIssue
	for _, is := range in {
		if is.Severity == production.SeverityError {
			out = append(out, is)
		}
	}
	return out
}

// Approve is the explicit owner decision on a validated manifest.
func Approve(m *production.ProductionManifest, now time.Time) (production.ManifestPatch, error) {
	if m.Status != production.ManifestValidated {
		return production.ManifestPatch{}, illegal("approve", m.Status, production.ManifestApproved)
	}
	m.Status = production.ManifestApproved
	return production.ManifestPatch{Status: status(m.Status), ApprovedAt: stamp(&m.ApprovedAt, now)}, nil
}

func Start(m *production.ProductionManifest, now time.Time) (production.ManifestPatch, error) {
	if m.Status != production.ManifestApproved {
		return production.ManifestPatch{}, illegal("start", m.Status, production.ManifestInProduction)
	}
	if len(m.Jobs) == 0 {
		return production.ManifestPatch{}, production.NewError(production.CodePreconditionFailed, "start", "manifest has no jobs", production.ErrIllegalTransition)
	}
	m.Status = production.ManifestInProduction
	return production.ManifestPatch{Status: status(m.Status), StartedAt: stamp(&m.StartedAt, now)}, nil
}

// Complete requires the final job and every blocking job to be completed.
func Complete(m *production.ProductionManifest, now time.Time) (production.ManifestPatch, error) {
	if m.Status != production.ManifestInProduction {
		return production.ManifestPatch{}, illegal("complete", m.Status, production.ManifestCompleted)
	}
	if fj := m.FinalJob(); fj != nil && fj.Status != production.JobCompleted {
		return production.ManifestPatch{}, production.NewError(production.CodePreconditionFailed, "complete",
			fmt.Sprintf("%s job %s is %s", fj.Type, fj.ID, fj.Status), production.ErrIllegalTransition)
	}
	for _, j := range BlockingJobs(m) {
		if j.Status != production.JobCompleted {
			return production.ManifestPatch{}, production.NewError(production.CodePreconditionFailed, "complete",
				fmt.Sprintf("blocking job %s is %s", j.ID, j.Status), production.ErrIllegalTransition)
		}
	}
	m.Status = production.ManifestCompleted
	m.ErrorMessage = ""
	msg := ""
	return production.ManifestPatch{Status: status(m.Status), CompletedAt: stamp(&m.CompletedAt, now), ErrorMessage: &msg}, nil
}

// Fail moves any non-terminal manifest to failed with a reason.
func Fail(m *production.ProductionManifest, reason string, now time.Time) (production.ManifestPatch, error) {
	if m.Status.Terminal() {
		return production.ManifestPatch{}, illegal("fail", m.Status, production.ManifestFailed)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "production failed"
	}
	m.Status = production.ManifestFailed
	m.ErrorMessage = reason
	return production.ManifestPatch{Status: status(m.Status), ErrorMessage: &reason}, nil
}

// BlockingJobs returns the assembly jobs and every job some other job
// depends on with a blocking edge.
func BlockingJobs(m *production.ProductionManifest) []*production.ProductionJob {
	gates := map[uuid.UUID]bool{}
	for _, j := range m.Jobs {
		if j == nil {
			continue
		}
		for _, d := range j.Dependencies {
			if d.Kind == production.DependencyBlocking {
				gates[d.JobID] = true
			}
		}
	}
	var out []*production.ProductionJob
	for _, j := range m.Jobs {
		if j == nil {
			continue
		}
		if j.Type.Assembles() || gates[j.ID] {
			out = append(out, j)
		}
	}
	return out
}
