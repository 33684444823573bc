package production

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ManifestPatch is a partial manifest update. Nil fields are left untouched.
type ManifestPatch struct {
	Title            *string
	Profile          *string
	DurationSeconds  *float64
	AspectRatio      *string
	Platform         *string
	Language         *string
	Orientation      *string
	Priority         *int
	AudioPlan        *AudioPlan
	VisualPlan       *VisualPlan
	ManifestData     datatypes.JSON
	Status           *ManifestStatus
	ValidationStatus *ValidationStatus
	ValidationErrors *[]ValidationIssue
	QualityScore     *float64
	ErrorMessage     *string
	ValidatedAt      *time.Time
	ApprovedAt       *time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

func (p ManifestPatch) Empty() bool {
	return p.Title == nil && p.Profile == nil && p.DurationSeconds == nil &&
		p.AspectRatio == nil && p.Platform == nil && p.Language == nil &&
		p.Orientation == nil && p.Priority == nil && p.AudioPlan == nil &&
		p.VisualPlan == nil && p.ManifestData == nil && p.Status == nil &&
		p.ValidationStatus == nil && p.ValidationErrors == nil &&
		p.QualityScore == nil && p.ErrorMessage == nil && p.ValidatedAt == nil &&
		p.ApprovedAt == nil && p.StartedAt == nil && p.CompletedAt == nil
}

// ApplyTo copies the set fields onto m. Version is not touched.
func (p ManifestPatch) ApplyTo(m *ProductionManifest) {
	if m == nil {
		return
	}
	if p.Title != nil {
		m.Title = *p.Title
	}
	if p.Profile != nil {
		m.Profile = *p.Profile
	}
	if p.DurationSeconds != nil {
		m.DurationSeconds = *p.DurationSeconds
	}
	if p.AspectRatio != nil {
		m.AspectRatio = *p.AspectRatio
	}
	if p.Platform != nil {
		m.Platform = *p.Platform
	}
	if p.Language != nil {
		m.Language = *p.Language
	}
	if p.Orientation != nil {
		m.Orientation = *p.Orientation
	}
	if p.Priority != nil {
		m.Priority = *p.Priority
	}
	if p.AudioPlan != nil {
		m.AudioPlan = datatypes.NewJSONType(*p.AudioPlan)
	}
	if p.VisualPlan != nil {
		m.VisualPlan = datatypes.NewJSONType(*p.VisualPlan)
	}
	if p.ManifestData != nil {
		m.ManifestData = p.ManifestData
	}
	if p.Status != nil {
		m.Status = *p.Status
	}
	if p.ValidationStatus != nil {
		m.ValidationStatus = *p.ValidationStatus
	}
	if p.ValidationErrors != nil {
		m.ValidationErrors = datatypes.JSONSlice[ValidationIssue](*p.ValidationErrors)
	}
	if p.QualityScore != nil {
		m.QualityScore = *p.QualityScore
	}
	if p.ErrorMessage != nil {
		m.ErrorMessage = *p.ErrorMessage
	}
	if p.ValidatedAt != nil {
		m.ValidatedAt = p.ValidatedAt
	}
	if p.ApprovedAt != nil {
		m.ApprovedAt = p.ApprovedAt
	}
	if p.StartedAt != nil {
		m.StartedAt = p.StartedAt
	}
	if p.CompletedAt != nil {
		m.CompletedAt = p.CompletedAt
	}
}

// ManifestFilter narrows ListManifests. Zero values match everything.
type ManifestFilter struct {
	Status           ManifestStatus
	ValidationStatus ValidationStatus
	Profile          string
}

type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 200 {
		p.Limit = 200
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// ManifestEvent is published on every manifest or job transition.
type ManifestEvent struct {
	ManifestID uuid.UUID  `json:"manifest_id"`
	JobID      *uuid.UUID `json:"job_id,omitempty"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	Message    string     `json:"message,omitempty"`
	At         time.Time  `json:"at"`
}

const (
	EventManifestStatus = "manifest_status"
	EventJobStatus      = "job_status"
	EventSceneStatus    = "scene_status"
)

// Merge returns p with every field set in o laid over it.
func (p ManifestPatch) Merge(o ManifestPatch) ManifestPatch {
	if o.Title != nil {
		p.Title = o.Title
	}
	if o.Profile != nil {
		p.Profile = o.Profile
	}
	if o.DurationSeconds != nil {
		p.DurationSeconds = o.DurationSeconds
	}
	if o.AspectRatio != nil {
		p.AspectRatio = o.AspectRatio
	}
	if o.Platform != nil {
		p.Platform = o.Platform
	}
	if o.Language != nil {
		p.Language = o.Language
	}
	if o.Orientation != nil {
		p.Orientation = o.Orientation
	}
	if o.Priority != nil {
		p.Priority = o.Priority
	}
	if o.AudioPlan != nil {
		p.AudioPlan = o.AudioPlan
	}
	if o.VisualPlan != nil {
		p.VisualPlan = o.VisualPlan
	}
	if o.ManifestData != nil {
		p.ManifestData = o.ManifestData
	}
	if o.Status != nil {
		p.Status = o.Status
	}
	if o.ValidationStatus != nil {
		p.ValidationStatus = o.ValidationStatus
	}
	if o.ValidationErrors != nil {
		p.ValidationErrors = o.ValidationErrors
	}
	if o.QualityScore != nil {
		p.QualityScore = o.QualityScore
	}
	if o.ErrorMessage != nil {
		p.ErrorMessage = o.ErrorMessage
	}
	if o.ValidatedAt != nil {
		p.ValidatedAt = o.ValidatedAt
	}
	if o.ApprovedAt != nil {
		p.ApprovedAt = o.ApprovedAt
	}
	if o.StartedAt != nil {
		p.StartedAt = o.StartedAt
	}
	if o.CompletedAt != nil {
		p.CompletedAt = o.CompletedAt
	}
	return p
}
