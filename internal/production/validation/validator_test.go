package validation

import (
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/production-planner/internal/data/repos/testutil"
	"github.com/yungbote/production-planner/internal/domain/production"
)

func hasCode(issues []Issue, code string) bool {
	for _, is := range issues {
		if is.Code == code {
			return true
		}
	}
	return false
}

func issueWithCode(issues []Issue, code string) (Issue, bool) {
	for _, is := range issues {
		if is.Code == code {
			return is, true
		}
	}
	return Issue{}, false
}

func TestThreeTenSecondScenesAreValid(t *testing.T) {
	m := testutil.Manifest(uuid.New(), 10, 10, 10)
	if m.DurationSeconds != 30 {
		t.Fatalf("fixture duration: want=30 got=%v", m.DurationSeconds)
	}
	r := Validate(m)
	v, ok := r.(Valid)
	if !ok {
		t.Fatalf("want Valid, got issues %+v", Issues(r))
	}
	if len(v.Warnings) != 0 {
		t.Fatalf("warnings: want none got %+v", v.Warnings)
	}
	if v.Manifest != m {
		t.Fatalf("Valid should carry the validated manifest")
	}
}

func TestSceneDurationMismatchIsReported(t *testing.T) {
	m := testutil.Manifest(uuid.New(), 10, 10, 10)
	m.Scenes[2].DurationSeconds = 20
	m.DurationSeconds = 30

	r := Validate(m)
	if OK(r) {
		t.Fatalf("want Invalid for 40s of scenes in a 30s manifest")
	}
	is, found := issueWithCode(Issues(r), CodeDurationMismatch)
	if !found {
		t.Fatalf("want %s, got %+v", CodeDurationMismatch, Issues(r))
	}
	if is.Path != "scenes" || is.Severity != production.SeverityError {
		t.Fatalf("issue: want path=scenes severity=error got path=%q severity=%q", is.Path, is.Severity)
	}
}

func TestDurationWithinToleranceIsValid(t *testing.T) {
	m := testutil.Manifest(uuid.New(), 10, 10, 10)
	m.DurationSeconds = 30.4
	if r := Validate(m); !OK(r) {
		t.Fatalf("0.4s drift should be tolerated, got %+v", Issues(r))
	}
}

func TestDependencyCycleIsRejected(t *testing.T) {
	m := testutil.Manifest(uuid.New(), 10)
	a := testutil.Job(m.ID, production.JobStoryboard)
	b := testutil.Job(m.ID, production.JobRender, testutil.Blocking(a))
	c := testutil.Job(m.ID, production.JobAssetPrep, testutil.Blocking(b))
	a.Dependencies = append(a.Dependencies, testutil.Blocking(c))
	m.Jobs = append(m.Jobs, a, b, c)

	r := Validate(m)
	if OK(r) {
		t.Fatalf("want Invalid for a cyclic job graph")
	}
	is, found := issueWithCode(Issues(r), CodeDependencyCycle)
	if !found {
		t.Fatalf("want %s, got %+v", CodeDependencyCycle, Issues(r))
	}
	for _, j := range []*production.ProductionJob{a, b, c} {
		if !strings.Contains(is.Message, j.ID.String()) {
			t.Fatalf("cycle message should name %s: %q", j.ID, is.Message)
		}
	}
	if err := Err(r); err == nil {
		t.Fatalf("Err: want ValidationError for Invalid result")
	}
}

func TestParallelEdgesBothWaysAreNotACycle(t *testing.T) {
	m := testutil.Manifest(uuid.New(), 10)
	a := testutil.Job(m.ID, production.JobMusicGeneration)
	b := testutil.Job(m.ID, production.JobSoundEffects)
	a.Dependencies = []production.JobDependency{{JobID: b.ID, Kind: production.DependencyParallel}}
	b.Dependencies = []production.JobDependency{{JobID: a.ID, Kind: production.DependencyParallel}}
	m.Jobs = append(m.Jobs, a, b)
	if r := Validate(m); !OK(r) {
		t.Fatalf("parallel hints must not form a cycle: %+v", Issues(r))
	}
}

func TestSceneOrderDuplicateAndGap(t *testing.T) {
	m := testutil.Manifest(uuid.New(), 10, 10, 10)
	m.Scenes[2].SceneOrder = 2
	r := Validate(m)
	if OK(r) {
		t.Fatalf("want Invalid")
	}
	if !hasCode(Issues(r), CodeSceneOrderDuplicate) {
		t.Fatalf("want %s in %+v", CodeSceneOrderDuplicate, Issues(r))
	}
	gap, found := issueWithCode(Issues(r), CodeSceneOrderGap)
	if !found || !strings.Contains(gap.Message, "missing 3") {
		t.Fatalf("gap issue: want message naming 3, got %+v", gap)
	}
}

func TestUnknownReferencesAreReported(t *testing.T) {
	m := testutil.Manifest(uuid.New(), 15, 15)
	stray := uuid.New()
	m.Scenes[0].OverlayAssets = []uuid.UUID{stray}
	m.Assets[1].SceneAssignments = append(m.Assets[1].SceneAssignments, stray)
	m.Jobs[0].Dependencies = append(m.Jobs[0].Dependencies, production.JobDependency{JobID: stray, Kind: production.DependencyOptional})
	m.Jobs[1].Dependencies = append(m.Jobs[1].Dependencies, production.JobDependency{JobID: m.Jobs[1].ID, Kind: production.DependencyBlocking})

	issues := Issues(Validate(m))
	want := map[string]string{
		CodeUnknownAssetRef: "scenes[0].overlay_assets[0]",
		CodeUnknownSceneRef: "assets[1].scene_assignments[1]",
		CodeUnknownJobRef:   "jobs[0].dependencies[0].job_id",
		CodeSelfDependency:  "jobs[1].dependencies[0].job_id",
	}
	for code, path := range want {
		is, found := issueWithCode(issues, code)
		if !found {
			t.Fatalf("want %s in %+v", code, issues)
		}
		if is.Path != path {
			t.Fatalf("%s path: want=%q got=%q", code, path, is.Path)
		}
	}
}

func TestStructuralFailureOnlySkipsItsSubtree(t *testing.T) {
	m := testutil.Manifest(uuid.New(), 10, 10)
	m.Assets[0].AssetType = "hologram"
	m.Jobs[0].Type = "teleport"
	m.Jobs[0].Dependencies = []production.JobDependency{{JobID: uuid.New(), Kind: production.DependencyBlocking}}

	issues := Issues(Validate(m))
	if !hasCode(issues, CodeInvalidEnum) {
		t.Fatalf("want %s, got %+v", CodeInvalidEnum, issues)
	}
	// The broken asset still resolves as a reference and the broken job is not
	// checked for dangling dependencies.
	if hasCode(issues, CodeUnknownAssetRef) || hasCode(issues, CodeUnknownJobRef) {
		t.Fatalf("failing subtree leaked into reference checks: %+v", issues)
	}

	m = testutil.Manifest(uuid.New(), 10, 10)
	m.Scenes[1].SceneOrder = 0
	issues = Issues(Validate(m))
	if !hasCode(issues, CodeOutOfRange) {
		t.Fatalf("want %s, got %+v", CodeOutOfRange, issues)
	}
	if hasCode(issues, CodeSceneOrderGap) || hasCode(issues, CodeDurationMismatch) {
		t.Fatalf("scene ordering should be skipped once a scene fails structurally: %+v", issues)
	}
}

func TestSceneOrderCheckedAroundABrokenScene(t *testing.T) {
	m := testutil.Manifest(uuid.New(), 10, 10, 10)
	m.Scenes[0].ID = uuid.Nil
	m.Scenes[2].SceneOrder = 2

	issues := Issues(Validate(m))
	if _, found := issueWithCode(issues, CodeRequired); !found {
		t.Fatalf("want %s for the broken scene, got %+v", CodeRequired, issues)
	}
	dup, found := issueWithCode(issues, CodeSceneOrderDuplicate)
	if !found || dup.Path != "scenes[2].scene_order" {
		t.Fatalf("duplicate among the intact scenes: want scenes[2].scene_order got %+v", issues)
	}
	gap, found := issueWithCode(issues, CodeSceneOrderGap)
	if !found || !strings.Contains(gap.Message, "missing 3") {
		t.Fatalf("gap issue: want message naming 3, got %+v", gap)
	}
	if hasCode(issues, CodeDurationMismatch) {
		t.Fatalf("durations still add up: %+v", issues)
	}
}

func TestWarningsOnlyManifestIsUsable(t *testing.T) {
	m := testutil.Manifest(uuid.New(), 10, 10)
	m.Jobs = m.Jobs[:len(m.Jobs)-1] // drop final_assembly
	m.Scenes[1].PrimaryAssets = nil

	r := Validate(m)
	v, ok := r.(Valid)
	if !ok {
		t.Fatalf("want Valid, got %+v", Issues(r))
	}
	if !hasCode(v.Warnings, CodeMissingFinalAssembly) || !hasCode(v.Warnings, CodeEmptySceneAssets) {
		t.Fatalf("warnings: got %+v", v.Warnings)
	}

	Apply(m, r)
	if m.ValidationStatus != production.ValidationWarning {
		t.Fatalf("status: want=%q got=%q", production.ValidationWarning, m.ValidationStatus)
	}
	if len(m.ValidationErrors) != len(v.Warnings) {
		t.Fatalf("validation_errors: want=%d got=%d", len(v.Warnings), len(m.ValidationErrors))
	}
}

func TestApplyKeepsStatusAndErrorsConsistent(t *testing.T) {
	m := testutil.Manifest(uuid.New(), 10)
	Apply(m, Validate(m))
	if m.ValidationStatus != production.ValidationValid || len(m.ValidationErrors) != 0 {
		t.Fatalf("valid manifest: status=%q errors=%d", m.ValidationStatus, len(m.ValidationErrors))
	}

	m.DurationSeconds = 99
	Apply(m, Validate(m))
	if m.ValidationStatus != production.ValidationInvalid || len(m.ValidationErrors) == 0 {
		t.Fatalf("invalid manifest: status=%q errors=%d", m.ValidationStatus, len(m.ValidationErrors))
	}

	// Fixing the document and re-running clears the recorded errors.
	m.DurationSeconds = 10
	m.ValidationStatus = production.ValidationPending
	Apply(m, Validate(m))
	if m.ValidationStatus != production.ValidationValid || len(m.ValidationErrors) != 0 {
		t.Fatalf("revalidated manifest: status=%q errors=%d", m.ValidationStatus, len(m.ValidationErrors))
	}
}

func TestDerivedFieldChecks(t *testing.T) {
	m := testutil.Manifest(uuid.New(), 10)
	m.Assets[0].TimingInfo = datatypes.NewJSONType(&production.TimingInfo{StartSeconds: 1, DurationSeconds: 2, EndSeconds: 4})
	bad := 1.5
	m.Scenes[0].ConsistencyScore = &bad
	m.ValidationStatus = production.ValidationValid
	m.ValidationErrors = []Issue{{Path: "x", Code: "stale", Message: "stale", Severity: production.SeverityError}}

	issues := Issues(Validate(m))
	for _, code := range []string{CodeTimingMismatch, CodeOutOfRange, CodeValidationStatusMismatch} {
		if !hasCode(issues, code) {
			t.Fatalf("want %s in %+v", code, issues)
		}
	}
}

func TestSceneStartMismatchWarns(t *testing.T) {
	m := testutil.Manifest(uuid.New(), 10, 10)
	m.Scenes[1].StartTimeSeconds = 12
	r := Validate(m)
	if !OK(r) {
		t.Fatalf("start drift is a warning only: %+v", Issues(r))
	}
	is, found := issueWithCode(Issues(r), CodeSceneStartMismatch)
	if !found || is.Path != "scenes[1].start_time_seconds" {
		t.Fatalf("want start mismatch on scenes[1], got %+v", Issues(r))
	}
}

func TestValidateIsDeterministicAndPure(t *testing.T) {
	m := testutil.Manifest(uuid.New(), 10, 10, 10)
	m.Scenes[0].OverlayAssets = []uuid.UUID{uuid.New()}
	m.Jobs[0].Type = "bogus"
	before := *m

	first := Issues(Validate(m))
	second := Issues(Validate(m))
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("issues differ between runs:\n%+v\n%+v", first, second)
	}
	if m.ValidationStatus != before.ValidationStatus || len(m.ValidationErrors) != len(before.ValidationErrors) {
		t.Fatalf("Validate must not mutate the manifest")
	}
}

func TestNilManifest(t *testing.T) {
	if OK(Validate(nil)) {
		t.Fatalf("nil manifest should be invalid")
	}
}
