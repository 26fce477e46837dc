package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/me/enrolld/internal/executor"
	"github.com/me/enrolld/internal/pool"
	"github.com/me/enrolld/internal/store"
	"github.com/me/enrolld/pkg/model"
)

// Config holds batch runner configuration.
type Config struct {
	// Concurrency bounds in-flight jobs. <= 0 means unlimited.
	Concurrency int

	// MaxRotationRetries bounds distinct resources tried for one step.
	MaxRotationRetries int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Concurrency: 3, MaxRotationRetries: 5}
}

// Runner drives a batch of jobs through the provisioning steps with a
// bounded worker pool. Each worker owns one account end-to-end, so no two
// workers ever mutate the same job record.
type Runner struct {
	store    store.Store
	pool     *pool.Manager
	registry *executor.Registry
	rotation *RotationPolicy
	config   Config
	logger   *slog.Logger
}

// NewRunner creates a batch runner.
func NewRunner(st store.Store, p *pool.Manager, reg *executor.Registry, cfg Config, logger *slog.Logger) *Runner {
	return &Runner{
		store:    st,
		pool:     p,
		registry: reg,
		rotation: NewRotationPolicy(p, cfg.MaxRotationRetries, logger),
		config:   cfg,
		logger:   logger.With("component", "scheduler"),
	}
}

// Run processes every account and returns one Result per submitted account,
// keyed by account id: succeeded, failed, skipped, or stopped, never
// silently dropped. Cancelling ctx is the cooperative stop signal, honored
// before each job starts and between steps; a step already executing runs
// to completion.
//
// Submitting the same account twice in one batch is a caller bug and is
// rejected up front rather than deduplicated silently.
func (r *Runner) Run(ctx context.Context, accountIDs []string, events chan<- Event) (map[string]model.Result, error) {
	seen := make(map[string]bool, len(accountIDs))
	for _, id := range accountIDs {
		if seen[id] {
			return nil, fmt.Errorf("duplicate account %q in batch", id)
		}
		seen[id] = true
	}

	r.logger.Info("batch started", "jobs", len(accountIDs), "concurrency", r.config.Concurrency)

	sem := NewSemaphore(r.config.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make(map[string]model.Result, len(accountIDs))

	record := func(res model.Result) {
		mu.Lock()
		results[res.AccountID] = res
		mu.Unlock()
		emit(events, Event{
			Type:      EventJobCompleted,
			AccountID: res.AccountID,
			Outcome:   res.Outcome,
			Status:    res.FinalStatus,
			Step:      res.FailedStep,
			Message:   res.Message,
		})
	}

	for _, id := range accountIDs {
		if !sem.Acquire(ctx) {
			// Stop signalled while waiting for admission.
			record(r.stoppedResult(id, ""))
			continue
		}
		wg.Add(1)
		go func(accountID string) {
			defer wg.Done()
			defer sem.Release()
			record(r.runJob(ctx, accountID, events))
		}(id)
	}
	wg.Wait()

	emit(events, Event{Type: EventBatchCompleted, Message: fmt.Sprintf("%d jobs processed", len(results))})
	r.logger.Info("batch completed", "jobs", len(results))
	return results, nil
}

// runJob drives one account through its remaining steps.
func (r *Runner) runJob(ctx context.Context, accountID string, events chan<- Event) model.Result {
	logger := r.logger.With("account_id", accountID)

	if ctx.Err() != nil {
		return r.stoppedResult(accountID, "")
	}

	job, err := r.store.GetJob(ctx, accountID)
	if err != nil {
		return model.Result{
			AccountID: accountID,
			Outcome:   model.OutcomeFailed,
			Message:   fmt.Sprintf("load job: %v", err),
		}
	}
	if job == nil {
		return model.Result{
			AccountID: accountID,
			Outcome:   model.OutcomeFailed,
			Message:   "job not found",
		}
	}

	if job.Status.IsTerminal() {
		logger.Debug("job already complete", "status", job.Status)
		return model.Result{
			AccountID:   accountID,
			Outcome:     model.OutcomeSucceeded,
			FinalStatus: job.Status,
			Message:     "already complete",
		}
	}

	emit(events, Event{Type: EventJobStarted, AccountID: accountID, Status: job.Status})
	logger.Info("job started", "status", job.Status, "resume_step", model.NextStep(job))

	// Rehydrate a previously persisted assignment so a resumed job keeps
	// its resource instead of consuming a second daily slot. A deleted or
	// disabled resource drops the assignment and a fresh one is acquired.
	var assigned *model.Resource
	if job.ResourceID != "" {
		res, err := r.pool.Lookup(ctx, job.ResourceID)
		if err != nil {
			return r.persistFailure(logger, job, "", fmt.Errorf("load assigned resource: %w", err))
		}
		if res != nil && res.Enabled {
			assigned = res
		}
	}

	// A new attempt begins: the previous attempt's failure breadcrumbs have
	// served their purpose (NextStep reads them before this point for the
	// resume derivation on the first loop iteration below).
	resume := model.NextStep(job)
	job.BeginAttempt()
	if err := r.store.UpdateJob(ctx, job); err != nil {
		return r.persistFailure(logger, job, "", err)
	}

	totalTried := 0
	step := resume
	for step != model.StepDone {
		if ctx.Err() != nil {
			return r.stoppedResult(accountID, job.Status)
		}

		exec, err := r.registry.Get(step)
		if err != nil {
			job.RecordFailure(step, err.Error())
			if uerr := r.store.UpdateJob(ctx, job); uerr != nil {
				logger.Error("persist failed job", "error", uerr)
			}
			return model.Result{
				AccountID:   accountID,
				Outcome:     model.OutcomeFailed,
				FinalStatus: job.Status,
				FailedStep:  step,
				Message:     err.Error(),
			}
		}

		var sres model.StepResult
		var tried int

		if step.RequiresResource() {
			rr, rerr := r.rotation.Run(ctx, exec, job, step, assigned)
			totalTried += rr.Tried
			if rerr != nil {
				if errors.Is(rerr, context.Canceled) || errors.Is(rerr, context.DeadlineExceeded) {
					return r.stoppedResult(accountID, job.Status)
				}
				return r.persistFailure(logger, job, step, rerr)
			}
			if rr.NoCapacity {
				logger.Warn("no resource capacity", "step", step)
				return model.Result{
					AccountID:   accountID,
					Outcome:     model.OutcomeSkipped,
					FinalStatus: job.Status,
					Message:     "no resource capacity available",
				}
			}
			sres = rr.StepResult
			tried = rr.Tried
			if sres.Success && rr.Resource != nil {
				assigned = rr.Resource
				job.ResourceID = rr.Resource.ID
				job.ResourceRef = rr.Resource.Ref
			}
			if !sres.Success && sres.FailureKind == model.FailureResourceRejected {
				// The assignment is dead: every candidate was rejected and
				// marked exhausted, so a resume must start over.
				assigned = nil
				job.ResourceID = ""
				job.ResourceRef = ""
			}
		} else {
			sres, err = exec.Execute(ctx, executor.Request{Job: job, Step: step})
			if err != nil {
				sres = model.StepResult{
					Success:     false,
					FailureKind: model.FailureTransient,
					Message:     err.Error(),
				}
			}
		}

		if !sres.Success {
			job.RecordFailure(step, sres.Message)
			if uerr := r.store.UpdateJob(ctx, job); uerr != nil {
				logger.Error("persist failed job", "error", uerr)
			}
			logger.Info("job failed", "step", step, "failure_kind", sres.FailureKind, "resources_tried", tried)
			return model.Result{
				AccountID:      accountID,
				Outcome:        model.OutcomeFailed,
				FinalStatus:    job.Status,
				FailedStep:     step,
				ResourcesTried: totalTried,
				Message:        sres.Message,
			}
		}

		job.RecordSuccess(step, sres)
		if err := r.store.UpdateJob(ctx, job); err != nil {
			return r.persistFailure(logger, job, step, err)
		}
		emit(events, Event{
			Type:      EventJobStep,
			AccountID: accountID,
			Step:      step,
			Status:    job.Status,
			Progress:  job.Progress,
		})
		logger.Debug("step completed", "step", step, "status", job.Status)

		step = model.NextStep(job)
	}

	logger.Info("job completed", "status", job.Status, "attempts", job.Attempts)
	return model.Result{
		AccountID:      accountID,
		Outcome:        model.OutcomeSucceeded,
		FinalStatus:    job.Status,
		ResourcesTried: totalTried,
		Message:        "provisioning complete",
	}
}

// persistFailure handles a store write failure mid-job: the failure is
// logged, the job's outcome becomes a reported failure, and the batch
// continues with the remaining jobs.
func (r *Runner) persistFailure(logger *slog.Logger, job *model.Job, step model.Step, err error) model.Result {
	logger.Error("persist job state", "step", step, "error", err)
	return model.Result{
		AccountID:   job.AccountID,
		Outcome:     model.OutcomeFailed,
		FinalStatus: job.Status,
		FailedStep:  step,
		Message:     fmt.Sprintf("persist job state: %v", err),
	}
}

func (r *Runner) stoppedResult(accountID string, status model.JobStatus) model.Result {
	return model.Result{
		AccountID:   accountID,
		Outcome:     model.OutcomeStopped,
		FinalStatus: status,
		Message:     "stopped by operator",
	}
}
