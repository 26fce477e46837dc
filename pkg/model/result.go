package model

// StepResult is what the external step executor reports for one step
// execution. Failure classification is structural, not inferred from the
// message text.
type StepResult struct {
	Success bool `json:"success"`

	// StatusHint, when set, reports a status the executor discovered the
	// account to actually be in, allowing a non-linear forward transition.
	StatusHint JobStatus `json:"status_hint,omitempty"`

	// Artifact is an opaque extracted value (e.g. a provisioning link)
	// needed by later steps.
	Artifact string `json:"artifact,omitempty"`

	// FailureKind is meaningful only when Success is false.
	FailureKind FailureKind `json:"failure_kind,omitempty"`

	// Progress is the number of executor sub-steps completed during this
	// step, added to the job's progress counter.
	Progress int `json:"progress,omitempty"`

	Message string `json:"message,omitempty"`
}

// Result is the per-job outcome of a batch run. Every submitted account gets
// exactly one Result.
type Result struct {
	AccountID   string    `json:"account_id"`
	Outcome     Outcome   `json:"outcome"`
	FinalStatus JobStatus `json:"final_status"`
	FailedStep  Step      `json:"failed_step,omitempty"`

	// ResourcesTried counts distinct resources attempted by the rotation
	// policy for this job.
	ResourcesTried int    `json:"resources_tried,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Succeeded reports whether the job reached a successful outcome.
func (r Result) Succeeded() bool {
	return r.Outcome == OutcomeSucceeded
}
