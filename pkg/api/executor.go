package api

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// StepExecutor is the injected unit-of-work capability. The engine's duty
// is orchestration (sequencing, progress reporting, failure capture); the
// business logic of an individual step lives behind this contract so tests
// can substitute deterministic doubles.
type StepExecutor interface {
	// ExecuteStep runs a single named step of wf. A non-nil error is
	// terminal for the whole workflow. Implementations must honor ctx
	// cancellation and deadlines.
	ExecuteStep(ctx context.Context, wf *Workflow, step string) error
}

// StepFunc adapts a plain function to the StepExecutor interface.
type StepFunc func(ctx context.Context, wf *Workflow, step string) error

func (f StepFunc) ExecuteStep(ctx context.Context, wf *Workflow, step string) error {
	return f(ctx, wf, step)
}

// NoopExecutor completes every step immediately. Useful in tests and as a
// placeholder while real step handlers are being built.
type NoopExecutor struct{}

func (NoopExecutor) ExecuteStep(ctx context.Context, wf *Workflow, step string) error {
	return ctx.Err()
}

// SimulatedExecutor sleeps for a random duration per step and fails a
// configurable fraction of steps. It stands in for real step handlers in
// demos and load tests.
type SimulatedExecutor struct {
	// MinDelay and MaxDelay bound the simulated processing time per step.
	MinDelay time.Duration
	MaxDelay time.Duration

	// FailureRate in [0,1] is the probability that a step fails.
	FailureRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedExecutor creates a SimulatedExecutor seeded for
// reproducibility. Defaults: 2-5s per step, 5% failure rate.
func NewSimulatedExecutor(seed int64) *SimulatedExecutor {
	return &SimulatedExecutor{
		MinDelay:    2 * time.Second,
		MaxDelay:    5 * time.Second,
		FailureRate: 0.05,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

func (e *SimulatedExecutor) ExecuteStep(ctx context.Context, wf *Workflow, step string) error {
	delay, fail := e.roll()
	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	if fail {
		return fmt.Errorf("step %q failed: simulated failure", step)
	}
	return nil
}

func (e *SimulatedExecutor) roll() (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delay := e.MinDelay
	if span := e.MaxDelay - e.MinDelay; span > 0 {
		delay += time.Duration(e.rng.Int63n(int64(span)))
	}
	return delay, e.rng.Float64() < e.FailureRate
}
