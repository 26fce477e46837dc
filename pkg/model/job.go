package model

import "time"

// MaxErrorLen bounds the stored length of a job's last error diagnostic.
const MaxErrorLen = 512

// Job is the per-account unit of work tracked through the provisioning
// workflow, keyed by account identifier.
type Job struct {
	AccountID string    `json:"account_id"`
	Status    JobStatus `json:"status"`

	// LastFailedStep is set when a step fails and cleared exactly once, at
	// the start of a new processing attempt. Non-empty only while
	// Status == ERROR.
	LastFailedStep Step   `json:"last_failed_step,omitempty"`
	LastError      string `json:"last_error,omitempty"`

	// ResourceID identifies the pool resource currently assigned to this
	// job. An assignment consumes exactly one daily slot when made and is
	// reused by every later resource-bearing step, including across resumed
	// attempts, until rotation replaces it.
	ResourceID string `json:"resource_id,omitempty"`

	// ResourceRef is a display reference to the assigned resource (e.g.
	// last four digits of a card), never the raw secret.
	ResourceRef string `json:"resource_ref,omitempty"`

	// Artifact is the opaque artifact most recently extracted by the step
	// executor (e.g. a provisioning link), carried into later steps.
	Artifact string `json:"artifact,omitempty"`

	// Progress counts sub-steps completed by the step executor. Monotonic,
	// observability only.
	Progress int `json:"progress"`

	// Attempts counts processing attempts started for this job.
	Attempts int `json:"attempts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewJob creates a pending Job for an account.
func NewJob(accountID string) *Job {
	now := time.Now().UTC()
	return &Job{
		AccountID: accountID,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// BeginAttempt marks the start of a new processing attempt. The failure
// breadcrumbs from the previous attempt are cleared here and nowhere else,
// after NextStep has already consumed them to pick the resume point.
func (j *Job) BeginAttempt() {
	j.LastFailedStep = ""
	j.LastError = ""
	j.Attempts++
}

// RecordSuccess advances the job after a successful step. The executor may
// hint a discovered status that is further along than the linear next one
// (e.g. already subscribed found while acquiring a link); such forward jumps
// are allowed non-linear transitions. A hint that would move the job
// backward, or to ERROR, is ignored: a successful step never regresses the
// job, and ERROR is reserved for recorded failures with a failed-step
// breadcrumb.
func (j *Job) RecordSuccess(step Step, res StepResult) {
	next := statusAfter(step)
	if hint := res.StatusHint; hint.Known() && hint != JobStatusError &&
		hint != j.Status && j.Status.CanTransitionTo(hint) {
		next = hint
	}
	j.Status = next
	j.LastFailedStep = ""
	j.LastError = ""
	if res.Artifact != "" {
		j.Artifact = res.Artifact
	}
	if res.Progress > 0 {
		j.Progress += res.Progress
	}
	j.UpdatedAt = time.Now().UTC()
}

// RecordFailure marks the job failed at the given step with a bounded
// diagnostic message.
func (j *Job) RecordFailure(step Step, message string) {
	j.Status = JobStatusError
	j.LastFailedStep = step
	j.LastError = truncate(message, MaxErrorLen)
	j.UpdatedAt = time.Now().UTC()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
