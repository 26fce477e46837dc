package executor

import (
	"context"

	"github.com/me/enrolld/pkg/model"
)

// Request describes one step execution handed to the external automation
// driver: the job being advanced, the step to perform, and the resource
// bound for resource-bearing steps (nil otherwise).
type Request struct {
	Job      *model.Job
	Step     model.Step
	Resource *model.Resource
}

// StepExecutor is the external collaborator that performs one workflow step
// inside a disposable browser session and reports the outcome. An error
// return means the executor itself broke (process gone, protocol error); a
// failed step is reported inside the StepResult, not as an error.
//
// Executors bound their own latency; a call that returns failure after a
// long wait is treated like any other step failure.
type StepExecutor interface {
	Execute(ctx context.Context, req Request) (model.StepResult, error)
}

// Func adapts a plain function to a StepExecutor.
type Func func(ctx context.Context, req Request) (model.StepResult, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, req Request) (model.StepResult, error) {
	return f(ctx, req)
}
