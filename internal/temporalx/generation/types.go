package generation

const (
	WorkflowName    = "generation_job"
	ActivityExecute = "generation_execute"
)

// Request is one attempt of one production job.
type Request struct {
	JobID      string         `json:"job_id"`
	ManifestID string         `json:"manifest_id"`
	JobType    string         `json:"job_type"`
	Attempt    int            `json:"attempt"`
	Config     map[string]any `json:"config"`
	// TimeoutSeconds bounds the activity; zero uses the workflow default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

type Response struct {
	Result map[string]any `json:"result"`
}
