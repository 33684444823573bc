package production

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestPlannerErrorMatchesSentinels(t *testing.T) {
	cases := []struct {
		code     ErrorCode
		sentinel error
	}{
		{CodeNotFound, ErrNotFound},
		{CodeConflict, ErrVersionConflict},
		{CodeIllegalTransition, ErrIllegalTransition},
		{CodeCycle, ErrCycle},
	}
	for _, tc := range cases {
		err := fmt.Errorf("outer: %w", NewError(tc.code, "op", "msg", nil))
		if !errors.Is(err, tc.sentinel) {
			t.Fatalf("%s: want errors.Is(%v)", tc.code, tc.sentinel)
		}
		if CodeOf(err) != tc.code {
			t.Fatalf("CodeOf: want=%s got=%s", tc.code, CodeOf(err))
		}
	}
	if errors.Is(NewError(CodeValidation, "op", "bad", nil), ErrNotFound) {
		t.Fatalf("validation error must not match ErrNotFound")
	}
}

func TestPlannerErrorMessage(t *testing.T) {
	err := NewError(CodeConflict, " repo.update ", " stale ", nil)
	if got := err.Error(); got != "repo.update: stale (conflict)" {
		t.Fatalf("Error(): got=%q", got)
	}
	if got := NewError(CodeInternal, "", "", nil).Error(); got != "internal" {
		t.Fatalf("bare Error(): got=%q", got)
	}
	cause := errors.New("disk full")
	if !errors.Is(Wrap(CodeInternal, "op", cause), cause) {
		t.Fatalf("Wrap must keep the cause")
	}
	if Wrap(CodeInternal, "op", nil) != nil {
		t.Fatalf("Wrap(nil) must be nil")
	}
}

func TestCodeOfTypedErrors(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorCode
	}{
		{&ValidationError{Issues: []ValidationIssue{{Path: "scenes", Message: "required"}}}, CodeValidation},
		{&GovernanceRejection{Check: "cost_cap", Reason: "over"}, CodeGovernanceRejected},
		{&JobExecutionError{JobID: uuid.New(), JobType: JobRender}, CodeJobExecution},
		{&ProcessingError{Phase: "render"}, CodeProcessing},
		{errors.New("plain"), ""},
	}
	for _, tc := range cases {
		if got := CodeOf(tc.err); got != tc.want {
			t.Fatalf("CodeOf(%T): want=%q got=%q", tc.err, tc.want, got)
		}
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("timeout"), true},
		{"governance", &GovernanceRejection{Check: "cost_cap"}, false},
		{"validation", &ValidationError{}, false},
		{"job retryable", &JobExecutionError{Retryable: true}, true},
		{"job final", fmt.Errorf("wrapped: %w", &JobExecutionError{Retryable: false}), false},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Fatalf("%s: want=%v got=%v", tc.name, tc.want, got)
		}
	}
}

func TestValidationErrorListsIssues(t *testing.T) {
	err := &ValidationError{Issues: []ValidationIssue{
		{Path: "scenes[0].duration_seconds", Message: "must be positive"},
		{Path: "jobs[1].dependencies[0]", Message: "unknown job"},
	}}
	msg := err.Error()
	if !strings.Contains(msg, "scenes[0].duration_seconds: must be positive") || !strings.Contains(msg, "jobs[1].dependencies[0]") {
		t.Fatalf("Error(): %q", msg)
	}
	if (&ValidationError{}).Error() != "manifest invalid" {
		t.Fatalf("empty issues message")
	}
}

func TestPatchApplyAndMerge(t *testing.T) {
	title, other := "new title", "other"
	dur := 42.0
	st := ManifestValidated
	m := &ProductionManifest{Title: "old", DurationSeconds: 10, Version: 3}

	p := ManifestPatch{Title: &other, DurationSeconds: &dur}
	merged := p.Merge(ManifestPatch{Title: &title, Status: &st})
	if *merged.Title != title || *merged.DurationSeconds != dur || *merged.Status != st {
		t.Fatalf("Merge: %+v", merged)
	}
	if !(ManifestPatch{}).Empty() || merged.Empty() {
		t.Fatalf("Empty: wrong answer")
	}

	merged.ApplyTo(m)
	if m.Title != title || m.DurationSeconds != dur || m.Status != st {
		t.Fatalf("ApplyTo: %+v", m)
	}
	if m.Version != 3 {
		t.Fatalf("ApplyTo must not touch version: got=%d", m.Version)
	}
	ManifestPatch{Title: &title}.ApplyTo(nil)
}

func TestFinalJob(t *testing.T) {
	render := &ProductionJob{ID: uuid.New(), Type: JobRendering}
	final := &ProductionJob{ID: uuid.New(), Type: JobFinalAssembly}
	img := &ProductionJob{ID: uuid.New(), Type: JobImageGeneration}

	m := &ProductionManifest{Jobs: []*ProductionJob{img, nil, render}}
	if got := m.FinalJob(); got != render {
		t.Fatalf("FinalJob: want rendering fallback got %+v", got)
	}
	m.Jobs = append(m.Jobs, final)
	if got := m.FinalJob(); got != final {
		t.Fatalf("FinalJob: want final_assembly got %+v", got)
	}
	m.Jobs = []*ProductionJob{img}
	if m.FinalJob() != nil {
		t.Fatalf("FinalJob: want nil")
	}
	if m.JobByID(img.ID) != img || m.JobByID(uuid.New()) != nil {
		t.Fatalf("JobByID lookup")
	}
}

func TestCloneIsDeep(t *testing.T) {
	asset := uuid.New()
	dep := uuid.New()
	m := &ProductionManifest{
		ID:     uuid.New(),
		Scenes: []*ProductionScene{{ID: uuid.New(), PrimaryAssets: []uuid.UUID{asset}}},
		Assets: []*ProductionAsset{{ID: asset, EnhancementMetadata: map[string]any{"k": "v"}}},
		Jobs: []*ProductionJob{{
			ID:           uuid.New(),
			Dependencies: []JobDependency{{JobID: dep, Kind: DependencyBlocking}},
			Config:       map[string]any{"prompt": "a"},
		}},
	}
	cp := m.Clone()
	cp.Scenes[0].PrimaryAssets[0] = uuid.New()
	cp.Assets[0].EnhancementMetadata["k"] = "changed"
	cp.Jobs[0].Dependencies[0].JobID = uuid.New()
	cp.Jobs[0].Config["prompt"] = "b"
	cp.Jobs = append(cp.Jobs, &ProductionJob{})

	if m.Scenes[0].PrimaryAssets[0] != asset {
		t.Fatalf("scene assets shared with clone")
	}
	if m.Assets[0].EnhancementMetadata["k"] != "v" {
		t.Fatalf("asset metadata shared with clone")
	}
	if m.Jobs[0].Dependencies[0].JobID != dep || m.Jobs[0].Config["prompt"] != "a" {
		t.Fatalf("job shared with clone")
	}
	if len(m.Jobs) != 1 {
		t.Fatalf("job slice shared with clone")
	}
	var nilManifest *ProductionManifest
	if nilManifest.Clone() != nil {
		t.Fatalf("nil clone")
	}
}

func TestPageNormalize(t *testing.T) {
	if p := (Page{}).Normalize(); p.Limit != 50 || p.Offset != 0 {
		t.Fatalf("default page: %+v", p)
	}
	if p := (Page{Limit: 1000, Offset: -3}).Normalize(); p.Limit != 200 || p.Offset != 0 {
		t.Fatalf("clamped page: %+v", p)
	}
}
