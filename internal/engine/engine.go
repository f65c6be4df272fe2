// Package engine consumes workflow events and drives each workflow
// through its step sequence.
//
// The engine holds only a transient working copy reconstructed from
// the event payload. It never reads the store; every transition flows
// out through a statussync.Reporter. Steps run strictly sequentially,
// and a single step failure fails the whole workflow.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streamops/streamops/internal/statussync"
	"github.com/streamops/streamops/pkg/api"
)

// Config assembles an Engine. Executor and Reporter are required.
type Config struct {
	// Executor runs individual steps. Required.
	Executor api.StepExecutor

	// Reporter pushes status transitions back to the store. Required.
	Reporter statussync.Reporter

	// Observer receives lifecycle callbacks. Defaults to NoopObserver.
	Observer api.Observer

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// StepTimeout bounds each step's execution. Zero disables the
	// deadline.
	StepTimeout time.Duration

	// SeenLimit bounds the redelivery-detection window. Defaults to
	// 1024 event ids.
	SeenLimit int
}

// Engine is the sequential workflow executor. One Engine instance is
// safe for concurrent HandleEnvelope calls; ordering per workflow is
// the bus's job (same partition key, same partition).
type Engine struct {
	executor    api.StepExecutor
	reporter    statussync.Reporter
	observer    api.Observer
	logger      *slog.Logger
	stepTimeout time.Duration
	seen        *seenSet

	mu     sync.Mutex
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// New builds an Engine from cfg.
func New(cfg Config) (*Engine, error) {
	if cfg.Executor == nil {
		return nil, errors.New("engine: executor is required")
	}
	if cfg.Reporter == nil {
		return nil, errors.New("engine: reporter is required")
	}
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		executor:    cfg.Executor,
		reporter:    cfg.Reporter,
		observer:    obs,
		logger:      logger,
		stepTimeout: cfg.StepTimeout,
		seen:        newSeenSet(cfg.SeenLimit),
		done:        make(chan struct{}),
	}, nil
}

// HandleEnvelope is the bus handler. Unrecognized event types are
// logged and ignored so that newer producers can roll out new events
// ahead of consumers. Redelivered envelopes (same event id within the
// retention window) are a no-op.
func (e *Engine) HandleEnvelope(ctx context.Context, env api.Envelope) error {
	switch env.EventType {
	case api.EventWorkflowCreated:
		return e.handleWorkflowCreated(ctx, env)
	default:
		e.logger.Info("ignoring unrecognized event type",
			slog.String("event_type", env.EventType),
			slog.String("event_id", env.EventID))
		return nil
	}
}

func (e *Engine) handleWorkflowCreated(ctx context.Context, env api.Envelope) error {
	if !e.seen.Observe(env.EventID) {
		e.logger.Info("skipping redelivered event",
			slog.String("event_id", env.EventID))
		return nil
	}

	var payload api.WorkflowCreatedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("decode workflow.created payload: %w", err)
	}
	if payload.WorkflowID == "" || len(payload.Steps) == 0 {
		return fmt.Errorf("workflow.created payload missing id or steps (event %s)", env.EventID)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.New("engine closed")
	}
	e.wg.Add(1)
	e.mu.Unlock()
	defer e.wg.Done()

	// Cancel the run when either the delivery context or the engine
	// itself shuts down.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-e.done:
			cancel()
		case <-runCtx.Done():
		}
	}()

	wf := &api.Workflow{
		ID:        payload.WorkflowID,
		Name:      payload.Name,
		Steps:     payload.Steps,
		Priority:  payload.Priority,
		Status:    api.StatusPending,
		CreatedAt: payload.CreatedAt,
	}

	return e.run(runCtx, wf)
}

// runState tracks per-run reporting status. Once the store reports the
// workflow id as unknown, further reports are pointless and skipped.
type runState struct {
	wf        *api.Workflow
	abandoned bool
}

func (e *Engine) run(ctx context.Context, wf *api.Workflow) error {
	state := &runState{wf: wf}

	started := time.Now().UTC()
	wf.Status = api.StatusProcessing
	wf.StartedAt = &started
	e.report(ctx, state, api.WorkflowPatch{
		Status:    statusPtr(api.StatusProcessing),
		StartedAt: &started,
	})
	e.observer.OnWorkflowStart(ctx, wf)

	for i := range wf.Steps {
		step := wf.Steps[i]

		if err := ctx.Err(); err != nil {
			return e.fail(ctx, state, fmt.Errorf("workflow cancelled before step %s: %w", step, err))
		}

		idx := i
		wf.CurrentStep = &step
		wf.CurrentStepIndex = idx
		e.report(ctx, state, api.WorkflowPatch{
			CurrentStep:      &step,
			CurrentStepSet:   true,
			CurrentStepIndex: &idx,
		})

		e.observer.OnStepStart(ctx, wf, step, i)
		start := time.Now()
		err := e.executeStep(ctx, wf, step)
		e.observer.OnStepCompleted(ctx, wf, step, i, err, time.Since(start))

		if err != nil {
			return e.fail(ctx, state, err)
		}
	}

	completed := time.Now().UTC()
	wf.Status = api.StatusCompleted
	wf.CurrentStep = nil
	wf.CompletedAt = &completed
	e.report(ctx, state, api.WorkflowPatch{
		Status:         statusPtr(api.StatusCompleted),
		CurrentStep:    nil,
		CurrentStepSet: true,
		CompletedAt:    &completed,
	})
	e.observer.OnWorkflowCompleted(ctx, wf)

	e.logger.Info("workflow completed",
		slog.String("workflow_id", wf.ID),
		slog.Int("steps", len(wf.Steps)))
	return nil
}

func (e *Engine) executeStep(ctx context.Context, wf *api.Workflow, step string) error {
	stepCtx := ctx
	cancel := context.CancelFunc(func() {})
	if e.stepTimeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, e.stepTimeout)
	}
	defer cancel()

	err := e.executor.ExecuteStep(stepCtx, wf, step)
	if err == nil {
		return nil
	}
	if stepCtx.Err() != nil && ctx.Err() == nil {
		return api.NewStepTimeout(step, err)
	}
	return api.NewStepFailure(step, err)
}

// fail records the terminal failed state locally and through the
// reporter. A step failure is a workflow outcome, not a transport
// problem, so the envelope handler still returns nil.
func (e *Engine) fail(ctx context.Context, state *runState, cause error) error {
	wf := state.wf
	completed := time.Now().UTC()
	msg := cause.Error()

	wf.Status = api.StatusFailed
	wf.Error = &msg
	wf.CompletedAt = &completed

	// The delivery context may already be gone on the cancellation
	// path; the final report still gets a bounded window to land.
	reportCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		reportCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	e.report(reportCtx, state, api.WorkflowPatch{
		Status:      statusPtr(api.StatusFailed),
		Error:       &msg,
		CompletedAt: &completed,
	})
	e.observer.OnWorkflowFailed(ctx, wf, cause)

	e.logger.Warn("workflow failed",
		slog.String("workflow_id", wf.ID),
		slog.Any("error", cause))
	return nil
}

// report pushes one patch. Reporting failures never interrupt step
// execution: not-found abandons further reports for this workflow,
// everything else is logged and execution continues with the local
// view.
func (e *Engine) report(ctx context.Context, state *runState, patch api.WorkflowPatch) {
	if state.abandoned {
		return
	}
	err := e.reporter.ReportWorkflow(ctx, state.wf.ID, patch)
	switch {
	case err == nil:
	case api.IsNotFound(err):
		state.abandoned = true
		e.logger.Warn("workflow unknown to store, abandoning status reports",
			slog.String("workflow_id", state.wf.ID))
	case api.IsRejected(err):
		e.logger.Error("status patch rejected",
			slog.String("workflow_id", state.wf.ID),
			slog.Any("error", err))
	default:
		e.logger.Warn("status report failed, continuing with local view",
			slog.String("workflow_id", state.wf.ID),
			slog.Any("error", err))
	}
}

// Close cancels in-flight workflows and waits for them to finish.
// Idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.done)
	}
	e.mu.Unlock()
	e.wg.Wait()
	return nil
}

func statusPtr(s api.Status) *api.Status { return &s }
