package model

import (
	"strings"
	"testing"
)

func TestNextStepFromStatus(t *testing.T) {
	tests := []struct {
		name   string
		status JobStatus
		want   Step
	}{
		{"pending starts at acquire", JobStatusPending, StepAcquireLink},
		{"link ready verifies next", JobStatusLinkReady, StepVerifyEligibility},
		{"verified binds next", JobStatusVerified, StepBindResource},
		{"subscribed is done", JobStatusSubscribed, StepDone},
		{"ineligible is done", JobStatusIneligible, StepDone},
		{"error without breadcrumb restarts", JobStatusError, StepAcquireLink},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{AccountID: "acct-1", Status: tt.status}
			if got := NextStep(job); got != tt.want {
				t.Errorf("NextStep(%s) = %s, want %s", tt.status, got, tt.want)
			}
		})
	}
}

func TestNextStepResumesAtFailedStep(t *testing.T) {
	job := &Job{
		AccountID:      "acct-1",
		Status:         JobStatusError,
		LastFailedStep: StepBindResource,
	}
	if got := NextStep(job); got != StepBindResource {
		t.Errorf("NextStep = %s, want resume at %s", got, StepBindResource)
	}

	// An unrecognized breadcrumb falls back to status derivation.
	job.LastFailedStep = "legacy_step"
	if got := NextStep(job); got != StepAcquireLink {
		t.Errorf("NextStep with unknown breadcrumb = %s, want %s", got, StepAcquireLink)
	}
}

func TestNextStepVerifiedIgnoresEarlierSteps(t *testing.T) {
	// A verified job with no failure must go straight to bind_resource,
	// never back to acquire_link.
	job := &Job{AccountID: "acct-1", Status: JobStatusVerified}
	if got := NextStep(job); got != StepBindResource {
		t.Errorf("NextStep(verified) = %s, want %s", got, StepBindResource)
	}
}

func TestBeginAttemptClearsBreadcrumbs(t *testing.T) {
	job := &Job{
		AccountID:      "acct-1",
		Status:         JobStatusError,
		LastFailedStep: StepVerifyEligibility,
		LastError:      "boom",
	}
	job.BeginAttempt()

	if job.LastFailedStep != "" || job.LastError != "" {
		t.Errorf("BeginAttempt left breadcrumbs: step=%q err=%q", job.LastFailedStep, job.LastError)
	}
	if job.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", job.Attempts)
	}
}

func TestRecordSuccessAdvancesMonotonically(t *testing.T) {
	job := NewJob("acct-1")

	job.RecordSuccess(StepAcquireLink, StepResult{Success: true, Artifact: "https://example.test/p/abc"})
	if job.Status != JobStatusLinkReady {
		t.Fatalf("status after acquire = %s, want %s", job.Status, JobStatusLinkReady)
	}
	if job.Artifact == "" {
		t.Error("artifact not recorded")
	}

	job.RecordSuccess(StepVerifyEligibility, StepResult{Success: true})
	if job.Status != JobStatusVerified {
		t.Fatalf("status after verify = %s, want %s", job.Status, JobStatusVerified)
	}

	job.RecordSuccess(StepBindResource, StepResult{Success: true})
	if job.Status != JobStatusSubscribed {
		t.Fatalf("status after bind = %s, want %s", job.Status, JobStatusSubscribed)
	}
}

func TestRecordSuccessHonorsStatusHint(t *testing.T) {
	// Executor discovered the account already subscribed while acquiring the
	// link: allowed non-linear jump.
	job := NewJob("acct-1")
	job.RecordSuccess(StepAcquireLink, StepResult{Success: true, StatusHint: JobStatusSubscribed})

	if job.Status != JobStatusSubscribed {
		t.Errorf("status = %s, want hint %s", job.Status, JobStatusSubscribed)
	}
	if NextStep(job) != StepDone {
		t.Errorf("hinted job should be done")
	}
}

func TestRecordSuccessIgnoresBackwardHint(t *testing.T) {
	// A hint may only jump forward. A regressive hint from a confused
	// executor loses to the linear next status.
	job := NewJob("acct-1")
	job.Status = JobStatusVerified
	job.RecordSuccess(StepBindResource, StepResult{Success: true, StatusHint: JobStatusPending})

	if job.Status != JobStatusSubscribed {
		t.Errorf("status = %s, want %s", job.Status, JobStatusSubscribed)
	}
}

func TestRecordSuccessIgnoresErrorHint(t *testing.T) {
	// ERROR is reserved for recorded failures. An ERROR hint on a
	// successful step would strand the job: status ERROR with no failed
	// step means NextStep restarts at acquire_link forever.
	job := NewJob("acct-1")
	job.RecordSuccess(StepAcquireLink, StepResult{Success: true, StatusHint: JobStatusError})

	if job.Status != JobStatusLinkReady {
		t.Errorf("status = %s, want %s", job.Status, JobStatusLinkReady)
	}
	if job.LastFailedStep != "" {
		t.Errorf("last failed step = %s, want empty", job.LastFailedStep)
	}
}

func TestRecordFailureSetsBreadcrumbs(t *testing.T) {
	job := NewJob("acct-1")
	job.RecordFailure(StepVerifyEligibility, "page timed out")

	if job.Status != JobStatusError {
		t.Errorf("status = %s, want %s", job.Status, JobStatusError)
	}
	if job.LastFailedStep != StepVerifyEligibility {
		t.Errorf("last failed step = %s", job.LastFailedStep)
	}
	if job.LastError != "page timed out" {
		t.Errorf("last error = %q", job.LastError)
	}
}

func TestRecordFailureTruncatesError(t *testing.T) {
	job := NewJob("acct-1")
	job.RecordFailure(StepAcquireLink, strings.Repeat("x", MaxErrorLen*2))

	if len(job.LastError) != MaxErrorLen {
		t.Errorf("last error length = %d, want %d", len(job.LastError), MaxErrorLen)
	}
}

func TestRecordSuccessAccumulatesProgress(t *testing.T) {
	job := NewJob("acct-1")
	job.RecordSuccess(StepAcquireLink, StepResult{Success: true, Progress: 3})
	job.RecordSuccess(StepVerifyEligibility, StepResult{Success: true, Progress: 2})

	if job.Progress != 5 {
		t.Errorf("progress = %d, want 5", job.Progress)
	}
}

func TestJobStatusTerminal(t *testing.T) {
	for _, s := range []JobStatus{JobStatusSubscribed, JobStatusIneligible} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []JobStatus{JobStatusPending, JobStatusLinkReady, JobStatusVerified, JobStatusError} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestJobStatusTransitions(t *testing.T) {
	if !JobStatusPending.CanTransitionTo(JobStatusSubscribed) {
		t.Error("forward jump pending->subscribed must be allowed (status hint)")
	}
	if !JobStatusVerified.CanTransitionTo(JobStatusError) {
		t.Error("any status may move to error")
	}
	if JobStatusSubscribed.CanTransitionTo(JobStatusPending) {
		t.Error("terminal status must not move backwards")
	}
}

func TestStepRequiresResource(t *testing.T) {
	if StepAcquireLink.RequiresResource() {
		t.Error("acquire_link must not consume a resource")
	}
	if !StepVerifyEligibility.RequiresResource() || !StepBindResource.RequiresResource() {
		t.Error("verify and bind are resource-bearing")
	}
}
