package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/me/enrolld/internal/executor"
	"github.com/me/enrolld/internal/pool"
	"github.com/me/enrolld/pkg/model"
)

// RotationPolicy wraps execution of resource-bearing steps. A job holds one
// resource assignment at a time: the first resource-bearing step acquires
// one from the pool and consumes one daily slot, and every later step reuses
// that assignment for free. When the external process rejects the resource
// itself, the policy marks it exhausted for the day, acquires a replacement
// excluding everything already tried, and retries the step. Any other
// failure is surfaced once, unretried: rotating on ambiguous failures would
// silently burn the pool without benefit.
type RotationPolicy struct {
	pool       *pool.Manager
	maxRetries int
	logger     *slog.Logger
}

// NewRotationPolicy creates a policy bounded to maxRetries distinct
// resources per step execution.
func NewRotationPolicy(p *pool.Manager, maxRetries int, logger *slog.Logger) *RotationPolicy {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &RotationPolicy{
		pool:       p,
		maxRetries: maxRetries,
		logger:     logger.With("component", "rotation"),
	}
}

// RotationResult reports how a resource-bearing step execution ended.
type RotationResult struct {
	StepResult model.StepResult

	// Resource is the resource in effect on the final attempt; nil when the
	// pool never supplied one. On success the caller records it as the
	// job's assignment.
	Resource *model.Resource

	// Tried counts distinct resources attempted, the reused assignment
	// included.
	Tried int

	// NoCapacity is true when the job had no assignment and the pool had
	// nothing to offer before any attempt was made. A distinct outcome, not
	// a failure.
	NoCapacity bool
}

// Run executes the step with the job's assigned resource, acquiring a fresh
// one from the pool only when assigned is nil. A fresh assignment consumes
// one daily slot on success; a reused assignment consumes nothing. Rotation
// on resource-rejected failures replaces the assignment. An error return
// means infrastructure broke (pool persistence, operator stop); step
// failures come back inside the RotationResult.
func (p *RotationPolicy) Run(ctx context.Context, exec executor.StepExecutor, job *model.Job, step model.Step, assigned *model.Resource) (RotationResult, error) {
	exclude := make(map[string]bool)
	tried := 0

	res := assigned
	fresh := false
	for {
		if res == nil {
			var err error
			res, err = p.pool.Acquire(ctx, exclude)
			if err != nil {
				return RotationResult{Tried: tried}, err
			}
			if res == nil {
				if tried == 0 {
					return RotationResult{NoCapacity: true}, nil
				}
				return RotationResult{
					StepResult: model.StepResult{
						Success:     false,
						FailureKind: model.FailureResourceRejected,
						Message:     fmt.Sprintf("pool exhausted after %d distinct resources were rejected", tried),
					},
					Tried: tried,
				}, nil
			}
			fresh = true
		}

		tried++
		sres, err := exec.Execute(ctx, executor.Request{Job: job, Step: step, Resource: res})
		if err != nil {
			// The executor itself broke; release an unconsumed reservation
			// and report a transient failure so a resumed attempt can retry.
			if fresh {
				p.pool.Release(res.ID)
			}
			return RotationResult{
				StepResult: model.StepResult{
					Success:     false,
					FailureKind: model.FailureTransient,
					Message:     err.Error(),
				},
				Resource: res,
				Tried:    tried,
			}, nil
		}

		if sres.Success {
			if fresh {
				if err := p.pool.RecordUse(ctx, res.ID); err != nil {
					return RotationResult{Resource: res, Tried: tried}, err
				}
			}
			return RotationResult{StepResult: sres, Resource: res, Tried: tried}, nil
		}

		if sres.FailureKind != model.FailureResourceRejected {
			if fresh {
				p.pool.Release(res.ID)
			}
			return RotationResult{StepResult: sres, Resource: res, Tried: tried}, nil
		}

		p.logger.Info("resource rejected, rotating",
			"account_id", job.AccountID, "step", step, "resource_id", res.ID, "tried", tried)
		if err := p.pool.MarkExhaustedToday(ctx, res.ID); err != nil {
			return RotationResult{Resource: res, Tried: tried}, err
		}
		exclude[res.ID] = true

		if tried >= p.maxRetries {
			return RotationResult{
				StepResult: model.StepResult{
					Success:     false,
					FailureKind: model.FailureResourceRejected,
					Message:     fmt.Sprintf("%d distinct resources rejected (last: %s)", tried, sres.Message),
				},
				Tried: tried,
			}, nil
		}
		if err := ctx.Err(); err != nil {
			return RotationResult{Tried: tried}, err
		}
		res = nil
		fresh = false
	}
}
