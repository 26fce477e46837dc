package executor

import (
	"fmt"
	"log/slog"

	"github.com/me/enrolld/pkg/model"
)

// Registry maps Steps to their StepExecutor implementations, with an
// optional default for steps without a dedicated one. Registration happens
// at startup before concurrent access, so no mutex is needed.
type Registry struct {
	executors map[model.Step]StepExecutor
	fallback  StepExecutor
	logger    *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		executors: make(map[model.Step]StepExecutor),
		logger:    logger.With("component", "executor-registry"),
	}
}

// Register adds a StepExecutor for a specific step.
func (r *Registry) Register(step model.Step, exec StepExecutor) {
	r.executors[step] = exec
	r.logger.Info("step executor registered", "step", step)
}

// RegisterDefault sets the executor used for steps without a dedicated one.
func (r *Registry) RegisterDefault(exec StepExecutor) {
	r.fallback = exec
	r.logger.Info("default step executor registered")
}

// Get returns the StepExecutor for the given step or an error if none is
// registered.
func (r *Registry) Get(step model.Step) (StepExecutor, error) {
	if exec, ok := r.executors[step]; ok {
		return exec, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("no executor registered for step %q", step)
}
