package validation

import (
	"github.com/yungbote/production-planner/internal/domain/production"
)

type Issue = production.ValidationIssue

const (
	CodeRequired                 = "required"
	CodeOutOfRange               = "out_of_range"
	CodeInvalidEnum              = "invalid_enum"
	CodeDuplicateID              = "duplicate_id"
	CodeSceneOrderDuplicate      = "scene_order_duplicate"
	CodeSceneOrderGap            = "scene_order_gap"
	CodeDurationMismatch         = "duration_mismatch"
	CodeUnknownAssetRef          = "unknown_asset_ref"
	CodeUnknownSceneRef          = "unknown_scene_ref"
	CodeUnknownJobRef            = "unknown_job_ref"
	CodeDependencyCycle          = "dependency_cycle"
	CodeSelfDependency           = "self_dependency"
	CodeTimingMismatch           = "timing_mismatch"
	CodeValidationStatusMismatch = "validation_status_mismatch"

	CodeMissingFinalAssembly = "missing_final_assembly"
	CodeSceneStartMismatch   = "scene_start_mismatch"
	CodeEmptySceneAssets     = "empty_scene_assets"
)

// DurationTolerance is how far, in seconds, the scene durations may drift
// from the manifest duration.
const DurationTolerance = 0.5

// Result is either Valid or Invalid.
type Result interface {
	isResult()
}

// Valid means the manifest is usable. Warnings may still be present.
type Valid struct {
	Manifest *production.ProductionManifest
	Warnings []Issue
}

// Invalid holds every issue found, errors and warnings alike.
type Invalid struct {
	Issues []Issue
}

func (Valid) isResult()   {}
func (Invalid) isResult() {}

// OK reports whether r is Valid.
func OK(r Result) bool {
	_, ok := r.(Valid)
	return ok
}

// Issues returns every issue carried by r.
func Issues(r Result) []Issue {
	switch v := r.(type) {
	case Valid:
		return v.Warnings
	case Invalid:
		return v.Issues
	}
	return nil
}

// Errors returns only the error-severity issues of r.
func Errors(r Result) []Issue {
	var out []Issue
	for _, is := range Issues(r) {
		if is.Severity == production.SeverityError {
			out = append(out, is)
		}
	}
	return out
}

// Err converts an Invalid result to a *production.ValidationError.
func Err(r Result) error {
	if OK(r) {
		return nil
	}
	return &production.ValidationError{Issues: Errors(r)}
}

// Apply records r on m so that validation_status is valid exactly when
// validation_errors is empty.
func Apply(m *production.ProductionManifest, r Result) {
	if m == nil {
		return
	}
	switch v := r.(type) {
	case Valid:
		if len(v.Warnings) == 0 {
			m.ValidationStatus = production.ValidationValid
			m.ValidationErrors = nil
			return
		}
		m.ValidationStatus = production.ValidationWarning
		m.ValidationErrors = append([]Issue(nil), v.Warnings...)
	case Invalid:
		m.ValidationStatus = production.ValidationInvalid
		m.ValidationErrors = append([]Issue(nil), v.Issues...)
	}
}
