package model

// JobStatus represents the lifecycle status of a provisioning Job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusLinkReady  JobStatus = "LINK_READY"
	JobStatusVerified   JobStatus = "VERIFIED"
	JobStatusSubscribed JobStatus = "SUBSCRIBED"
	JobStatusIneligible JobStatus = "INELIGIBLE"
	JobStatusError      JobStatus = "ERROR"
)

// String returns the string representation of the job status.
func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the job is in a final status.
// Terminal jobs are excluded from future batches.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSubscribed, JobStatusIneligible:
		return true
	}
	return false
}

// Known returns true if s is one of the defined job statuses.
func (s JobStatus) Known() bool {
	switch s {
	case JobStatusPending, JobStatusLinkReady, JobStatusVerified,
		JobStatusSubscribed, JobStatusIneligible, JobStatusError:
		return true
	}
	return false
}

// ValidJobTransitions defines the allowed forward transitions for Jobs.
// Any status may additionally move to ERROR, and an executor status hint
// may jump a job forward past intermediate statuses.
var ValidJobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:   {JobStatusLinkReady, JobStatusVerified, JobStatusSubscribed, JobStatusIneligible},
	JobStatusLinkReady: {JobStatusVerified, JobStatusSubscribed, JobStatusIneligible},
	JobStatusVerified:  {JobStatusSubscribed, JobStatusIneligible},
	JobStatusError:     {JobStatusLinkReady, JobStatusVerified, JobStatusSubscribed, JobStatusIneligible},
}

// CanTransitionTo returns true if moving from the current status to next is valid.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if next == JobStatusError {
		return true
	}
	for _, allowed := range ValidJobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Step is one discrete phase of the provisioning workflow.
type Step string

const (
	StepAcquireLink       Step = "acquire_link"
	StepVerifyEligibility Step = "verify_eligibility"
	StepBindResource      Step = "bind_resource"
	StepDone              Step = "done"
)

// String returns the string representation of the step.
func (s Step) String() string {
	return string(s)
}

// Known returns true if s is a recognized runnable step.
func (s Step) Known() bool {
	switch s {
	case StepAcquireLink, StepVerifyEligibility, StepBindResource:
		return true
	}
	return false
}

// RequiresResource returns true for steps that consume a pool resource
// (or an artifact that can go stale) and are therefore wrapped by the
// rotation policy.
func (s Step) RequiresResource() bool {
	switch s {
	case StepVerifyEligibility, StepBindResource:
		return true
	}
	return false
}

// NextStep derives the step to execute next for a job.
//
// A recorded failed step takes priority: the job resumes exactly there
// without re-running earlier, already-completed steps. Otherwise the step
// follows from the current status.
func NextStep(job *Job) Step {
	if job.LastFailedStep.Known() {
		return job.LastFailedStep
	}
	switch job.Status {
	case JobStatusSubscribed, JobStatusIneligible:
		return StepDone
	case JobStatusVerified:
		return StepBindResource
	case JobStatusLinkReady:
		return StepVerifyEligibility
	case JobStatusPending, JobStatusError:
		return StepAcquireLink
	default:
		return StepAcquireLink
	}
}

// statusAfter maps a successfully completed step to the status it advances to.
func statusAfter(step Step) JobStatus {
	switch step {
	case StepAcquireLink:
		return JobStatusLinkReady
	case StepVerifyEligibility:
		return JobStatusVerified
	case StepBindResource:
		return JobStatusSubscribed
	default:
		return JobStatusError
	}
}

// FailureKind classifies a step failure reported by the step executor.
type FailureKind string

const (
	// FailureResourceRejected means the assigned resource itself was refused
	// (declined card, already-used address). Triggers rotation.
	FailureResourceRejected FailureKind = "resource_rejected"

	// FailureTransient covers network or automation errors that may succeed
	// on a later resumed attempt. Never triggers rotation.
	FailureTransient FailureKind = "transient"

	// FailureFatal covers failures that will not succeed on retry.
	FailureFatal FailureKind = "fatal"
)

// Outcome is the terminal state of a single job's run within a batch.
type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomeFailed    Outcome = "FAILED"
	// OutcomeSkipped means the pool had no capacity for the job. Not an error.
	OutcomeSkipped Outcome = "SKIPPED"
	// OutcomeStopped means the operator stopped the batch before the job ran.
	OutcomeStopped Outcome = "STOPPED"
)
