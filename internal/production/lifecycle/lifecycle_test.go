package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/production-planner/internal/data/repos/testutil"
	"github.com/yungbote/production-planner/internal/domain/production"
	"github.com/yungbote/production-planner/internal/production/quality"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var allStatuses = []production.ManifestStatus{
	production.ManifestDraft,
	production.ManifestValidated,
	production.ManifestApproved,
	production.ManifestInProduction,
	production.ManifestCompleted,
	production.ManifestFailed,
}

func rank(s production.ManifestStatus) int {
	for i, x := range allStatuses {
		if x == s {
			return i
		}
	}
	return -1
}

func TestNoBackwardTransitionsExceptFailed(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			if !CanTransition(from, to) {
				continue
			}
			if to == production.ManifestFailed {
				if from.Terminal() {
					t.Fatalf("%s -> failed should not be allowed from a terminal state", from)
				}
				continue
			}
			if rank(to) != rank(from)+1 {
				t.Fatalf("%s -> %s skips or reverses the lifecycle", from, to)
			}
		}
	}
	if CanTransition(production.ManifestCompleted, production.ManifestDraft) {
		t.Fatalf("completed must be terminal")
	}
}

// checked records issues on m the way the validator does.
func checked(m *production.ProductionManifest, issues ...production.ValidationIssue) *production.ProductionManifest {
	m.ValidationStatus = production.ValidationValid
	m.ValidationErrors = nil
	for _, is := range issues {
		if is.Severity == production.SeverityError {
			m.ValidationStatus = production.ValidationInvalid
		} else if m.ValidationStatus == production.ValidationValid {
			m.ValidationStatus = production.ValidationWarning
		}
		m.ValidationErrors = append(m.ValidationErrors, is)
	}
	return m
}

func validated(t *testing.T) *production.ProductionManifest {
	t.Helper()
	m := testutil.Manifest(uuid.New(), 10, 10)
	if _, err := Validate(checked(m), quality.Score(m), t0); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return m
}

func TestHappyPathStampsEachTimestampOnce(t *testing.T) {
	m := validated(t)
	if m.Status != production.ManifestValidated || m.ValidatedAt == nil || !m.ValidatedAt.Equal(t0) {
		t.Fatalf("after validate: status=%q validated_at=%v", m.Status, m.ValidatedAt)
	}

	// Re-validating keeps the first stamp.
	p, err := Validate(m, quality.Score(m), t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("revalidate: %v", err)
	}
	if p.ValidatedAt != nil || p.Status != nil || !m.ValidatedAt.Equal(t0) {
		t.Fatalf("revalidate restamped: patch=%+v validated_at=%v", p, m.ValidatedAt)
	}

	p, err = Approve(m, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if p.ApprovedAt == nil || *p.Status != production.ManifestApproved {
		t.Fatalf("approve patch: %+v", p)
	}
	if _, err := Start(m, t0.Add(2*time.Minute)); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, j := range m.Jobs {
		j.Status = production.JobCompleted
	}
	p, err = Complete(m, t0.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if m.Status != production.ManifestCompleted || p.CompletedAt == nil {
		t.Fatalf("complete: status=%q patch=%+v", m.Status, p)
	}
	if _, err := Fail(m, "late", t0); !errors.Is(err, production.ErrIllegalTransition) {
		t.Fatalf("fail after completed: want ErrIllegalTransition got %v", err)
	}
}

func TestInvalidManifestStaysDraft(t *testing.T) {
	m := testutil.Manifest(uuid.New(), 10, 10)
	m.DurationSeconds = 45
	checked(m,
		production.ValidationIssue{Path: "duration_seconds", Code: "duration_mismatch", Severity: production.SeverityError},
		production.ValidationIssue{Path: "jobs", Code: "missing_final_assembly", Severity: production.SeverityWarning},
	)
	p, err := Validate(m, quality.Score(m), t0)
	var ve *production.ValidationError
	if !errors.As(err, &ve) || len(ve.Issues) != 1 || ve.Issues[0].Code != "duration_mismatch" {
		t.Fatalf("want ValidationError with the error issue only got %v", err)
	}
	if m.Status != production.ManifestDraft || m.ValidatedAt != nil {
		t.Fatalf("status: want draft got %q (validated_at=%v)", m.Status, m.ValidatedAt)
	}
	if p.ValidationStatus == nil || *p.ValidationStatus != production.ValidationInvalid || len(*p.ValidationErrors) != 2 {
		t.Fatalf("patch should record the invalid result: %+v", p)
	}
	if p.QualityScore == nil || *p.QualityScore != quality.Score(m) {
		t.Fatalf("patch should carry the quality score")
	}
}

func TestValidateReadsRecordedResult(t *testing.T) {
	m := testutil.Manifest(uuid.New(), 10, 10)
	m.ValidationStatus = production.ValidationPending
	if _, err := Validate(m, 0.2, t0); production.CodeOf(err) != production.CodeValidation {
		t.Fatalf("unchecked manifest: want validation error got %v", err)
	}
	if m.Status != production.ManifestDraft {
		t.Fatalf("unchecked manifest: want draft got %q", m.Status)
	}

	checked(m, production.ValidationIssue{Path: "jobs", Code: "missing_final_assembly", Severity: production.SeverityWarning})
	p, err := Validate(m, 0.2, t0)
	if err != nil {
		t.Fatalf("warnings only: %v", err)
	}
	if m.Status != production.ManifestValidated || *p.ValidationStatus != production.ValidationWarning || len(*p.ValidationErrors) != 1 {
		t.Fatalf("warnings only: status=%q patch=%+v", m.Status, p)
	}
}

func TestGuards(t *testing.T) {
	m := testutil.Manifest(uuid.New(), 10)
	if _, err := Approve(m, t0); !errors.Is(err, production.ErrIllegalTransition) {
		t.Fatalf("approve draft: want ErrIllegalTransition got %v", err)
	}
	if _, err := Start(m, t0); !errors.Is(err, production.ErrIllegalTransition) {
		t.Fatalf("start draft: want ErrIllegalTransition got %v", err)
	}

	m = validated(t)
	if _, err := Approve(m, t0); err != nil {
		t.Fatalf("approve: %v", err)
	}
	m.Jobs = nil
	if _, err := Start(m, t0); !errors.Is(err, production.ErrIllegalTransition) {
		t.Fatalf("start without jobs: want ErrIllegalTransition got %v", err)
	}
	if m.Status != production.ManifestApproved {
		t.Fatalf("failed guard changed status to %q", m.Status)
	}
}

func TestCompleteNeedsBlockingAndFinalJobs(t *testing.T) {
	m := validated(t)
	_, _ = Approve(m, t0)
	if _, err := Start(m, t0); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, j := range m.Jobs {
		j.Status = production.JobCompleted
	}
	m.Jobs[0].Status = production.JobFailed
	if _, err := Complete(m, t0); !errors.Is(err, production.ErrIllegalTransition) {
		t.Fatalf("complete with failed blocking job: want error got %v", err)
	}
	m.Jobs[0].Status = production.JobCompleted
	m.FinalJob().Status = production.JobProcessing
	if _, err := Complete(m, t0); err == nil {
		t.Fatalf("complete with running final job: want error")
	}
	if _, err := Fail(m, "", t0); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if m.ErrorMessage == "" {
		t.Fatalf("failed manifest needs an error_message")
	}
}

func TestJobTransitions(t *testing.T) {
	j := testutil.Job(uuid.New(), production.JobImageGeneration)
	if err := CompleteJob(j, nil, t0); !errors.Is(err, production.ErrIllegalTransition) {
		t.Fatalf("pending -> completed: want ErrIllegalTransition got %v", err)
	}
	if err := StartJob(j, t0); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := RetryJob(j, "boom", t0.Add(30*time.Second)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if j.Status != production.JobPending || j.NextAttemptAt == nil || j.Error != "boom" {
		t.Fatalf("after retry: %+v", j)
	}
	if err := StartJob(j, t0.Add(time.Minute)); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if j.Attempts != 2 || !j.StartedAt.Equal(t0) {
		t.Fatalf("attempts=%d started_at=%v", j.Attempts, j.StartedAt)
	}
	if err := CompleteJob(j, map[string]any{"uri": "s3://x"}, t0.Add(2*time.Minute)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if j.Error != "" || j.CompletedAt == nil {
		t.Fatalf("completed job: %+v", j)
	}
	if err := CancelJob(j, t0); !errors.Is(err, production.ErrIllegalTransition) {
		t.Fatalf("cancel completed: want ErrIllegalTransition got %v", err)
	}

	k := testutil.Job(uuid.New(), production.JobRender)
	by := uuid.New()
	if err := BlockJob(k, by, t0); err != nil {
		t.Fatalf("block: %v", err)
	}
	if k.Status != production.JobFailed || k.BlockedBy == nil || *k.BlockedBy != by {
		t.Fatalf("blocked job: %+v", k)
	}
}
