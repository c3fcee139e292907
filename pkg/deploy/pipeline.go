package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/jupyterhub/binderhub-deployer/pkg/logging"
)

// State is carried from one step to the next.
type State struct {
	// InvocationDir is the directory the run was started from.
	InvocationDir string
	// KeyPath is the absolute path of the decrypted deploy key.
	KeyPath string
	// KeyWritten is set once a decrypted key has been written to KeyPath.
	KeyWritten bool
	// Env holds environment variables for the build entry point and anything
	// it launches.
	Env map[string]string
}

// Step is one fallible stage of a Pipeline.
type Step struct {
	Name string
	Run  func(context.Context, *State) error
}

// StepError reports which step of a Pipeline failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Pipeline runs steps in order and stops at the first one that fails.
type Pipeline struct {
	steps       []Step
	stepTimeout time.Duration
}

// NewPipeline returns a Pipeline of the provided steps. If stepTimeout is
// positive, every step runs under a context with that timeout.
func NewPipeline(stepTimeout time.Duration, steps ...Step) *Pipeline {
	return &Pipeline{
		steps:       steps,
		stepTimeout: stepTimeout,
	}
}

// StepNames returns the names of the steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name
	}
	return names
}

// Run executes each step in order. It returns a *StepError for the first step
// that fails; no later step is attempted.
func (p *Pipeline) Run(ctx context.Context, state *State) error {
	logger := logging.LoggerFromContext(ctx)
	for i, step := range p.steps {
		stepLogger := logger.WithValues("step", step.Name)
		stepLogger.Debug("starting step", "index", i+1, "of", len(p.steps))
		if err := p.runStep(logging.ContextWithLogger(ctx, stepLogger), step, state); err != nil {
			return &StepError{Step: step.Name, Err: err}
		}
		stepLogger.Info("step complete")
	}
	return nil
}

func (p *Pipeline) runStep(ctx context.Context, step Step, state *State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.stepTimeout)
		defer cancel()
	}
	return step.Run(ctx, state)
}
