package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamops/streamops/internal/statussync"
	"github.com/streamops/streamops/internal/store"
	"github.com/streamops/streamops/pkg/api"
)

// scriptedExecutor fails the steps listed in failOn and records every
// execution.
type scriptedExecutor struct {
	mu     sync.Mutex
	failOn map[string]error
	block  chan struct{} // if non-nil, every step blocks until ctx is done or block closes
	calls  []string
}

func (s *scriptedExecutor) ExecuteStep(ctx context.Context, wf *api.Workflow, step string) error {
	s.mu.Lock()
	s.calls = append(s.calls, step)
	block := s.block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-block:
		}
	}
	if err, ok := s.failOn[step]; ok {
		return err
	}
	return nil
}

func (s *scriptedExecutor) executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// recordingReporter captures every patch and optionally injects errors.
type recordingReporter struct {
	mu      sync.Mutex
	patches []api.WorkflowPatch
	errs    []error // consumed one per call
}

func (r *recordingReporter) ReportWorkflow(ctx context.Context, id string, patch api.WorkflowPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patches = append(r.patches, patch)
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return err
	}
	return nil
}

func (r *recordingReporter) ReportTask(ctx context.Context, id string, patch api.TaskPatch) error {
	return nil
}

func (r *recordingReporter) recorded() []api.WorkflowPatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]api.WorkflowPatch(nil), r.patches...)
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.Executor == nil {
		cfg.Executor = &scriptedExecutor{}
	}
	if cfg.Reporter == nil {
		cfg.Reporter = &recordingReporter{}
	}
	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func createdEnvelope(t *testing.T, id string, steps ...string) api.Envelope {
	t.Helper()
	env, err := api.NewEnvelope("test", api.EventWorkflowCreated, api.WorkflowCreatedPayload{
		WorkflowID: id,
		Name:       "Order Processing",
		Steps:      steps,
		Priority:   api.PriorityHigh,
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	return env
}

func TestHappyPathTransitions(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	_, err := st.CreateWorkflow(ctx, &api.Workflow{
		ID:        "wf-1",
		Name:      "Order Processing",
		Steps:     []string{"validate", "charge", "ship"},
		Priority:  api.PriorityHigh,
		Status:    api.StatusPending,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	exec := &scriptedExecutor{}
	e := newTestEngine(t, Config{
		Executor: exec,
		Reporter: statussync.NewLocalReporter(st),
	})

	env := createdEnvelope(t, "wf-1", "validate", "charge", "ship")
	require.NoError(t, e.HandleEnvelope(ctx, env))

	require.Equal(t, []string{"validate", "charge", "ship"}, exec.executed())

	wf, err := st.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	require.Equal(t, api.StatusCompleted, wf.Status)
	require.Nil(t, wf.CurrentStep, "terminal state clears the active step")
	require.Equal(t, 2, wf.CurrentStepIndex)
	require.NotNil(t, wf.StartedAt)
	require.NotNil(t, wf.CompletedAt)
	require.Nil(t, wf.Error)
	require.False(t, wf.CompletedAt.Before(*wf.StartedAt))
}

func TestStepFailureIsTerminal(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	_, err := st.CreateWorkflow(ctx, &api.Workflow{
		ID:        "wf-1",
		Name:      "Order Processing",
		Steps:     []string{"validate", "charge", "ship"},
		Status:    api.StatusPending,
		Priority:  api.PriorityMedium,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	exec := &scriptedExecutor{failOn: map[string]error{
		"charge": errors.New("card declined"),
	}}
	e := newTestEngine(t, Config{
		Executor: exec,
		Reporter: statussync.NewLocalReporter(st),
	})

	require.NoError(t, e.HandleEnvelope(ctx, createdEnvelope(t, "wf-1", "validate", "charge", "ship")))

	// ship never ran
	require.Equal(t, []string{"validate", "charge"}, exec.executed())

	wf, err := st.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	require.Equal(t, api.StatusFailed, wf.Status)
	require.NotNil(t, wf.Error)
	require.Contains(t, *wf.Error, "charge")
	require.Contains(t, *wf.Error, "card declined")
	require.NotNil(t, wf.CompletedAt)
	require.NotNil(t, wf.CurrentStep, "failure keeps the step that failed")
	require.Equal(t, "charge", *wf.CurrentStep)
}

func TestRedeliveredEnvelopeIsNoOp(t *testing.T) {
	exec := &scriptedExecutor{}
	rep := &recordingReporter{}
	e := newTestEngine(t, Config{Executor: exec, Reporter: rep})

	env := createdEnvelope(t, "wf-1", "validate")
	ctx := context.Background()

	require.NoError(t, e.HandleEnvelope(ctx, env))
	require.NoError(t, e.HandleEnvelope(ctx, env))

	require.Equal(t, []string{"validate"}, exec.executed())
}

func TestDistinctEventsForSameWorkflowBothRun(t *testing.T) {
	exec := &scriptedExecutor{}
	e := newTestEngine(t, Config{Executor: exec})
	ctx := context.Background()

	require.NoError(t, e.HandleEnvelope(ctx, createdEnvelope(t, "wf-1", "validate")))
	require.NoError(t, e.HandleEnvelope(ctx, createdEnvelope(t, "wf-1", "validate")))

	// Deduplication keys on event id, not workflow id.
	require.Equal(t, []string{"validate", "validate"}, exec.executed())
}

func TestUnrecognizedEventTypeIgnored(t *testing.T) {
	exec := &scriptedExecutor{}
	e := newTestEngine(t, Config{Executor: exec})

	env, err := api.NewEnvelope("test", "workflow.archived", map[string]any{"workflowId": "wf-1"})
	require.NoError(t, err)

	require.NoError(t, e.HandleEnvelope(context.Background(), env))
	require.Empty(t, exec.executed())
}

func TestMalformedPayloadReturnsError(t *testing.T) {
	e := newTestEngine(t, Config{})

	env, err := api.NewEnvelope("test", api.EventWorkflowCreated, map[string]any{"steps": "not-an-array"})
	require.NoError(t, err)

	require.Error(t, e.HandleEnvelope(context.Background(), env))
}

func TestNotFoundAbandonsReportingButFinishesRun(t *testing.T) {
	exec := &scriptedExecutor{}
	rep := &recordingReporter{errs: []error{api.ErrWorkflowNotFound}}
	e := newTestEngine(t, Config{Executor: exec, Reporter: rep})

	require.NoError(t, e.HandleEnvelope(context.Background(), createdEnvelope(t, "wf-ghost", "validate", "ship")))

	// Steps still ran to completion with the local view.
	require.Equal(t, []string{"validate", "ship"}, exec.executed())
	// Only the first report was attempted.
	require.Len(t, rep.recorded(), 1)
}

func TestTransientReportFailureDoesNotStopExecution(t *testing.T) {
	exec := &scriptedExecutor{}
	transient := api.NewTransportError("status patch", errors.New("connection refused"))
	rep := &recordingReporter{errs: []error{transient, transient, transient, transient}}
	e := newTestEngine(t, Config{Executor: exec, Reporter: rep})

	require.NoError(t, e.HandleEnvelope(context.Background(), createdEnvelope(t, "wf-1", "validate", "ship")))

	require.Equal(t, []string{"validate", "ship"}, exec.executed())
	// processing + 2 step patches + completed: every transition was attempted.
	require.Len(t, rep.recorded(), 4)
}

func TestStepTimeout(t *testing.T) {
	exec := &scriptedExecutor{block: make(chan struct{})} // never closed; steps block on ctx
	rep := &recordingReporter{}
	e := newTestEngine(t, Config{
		Executor:    exec,
		Reporter:    rep,
		StepTimeout: 20 * time.Millisecond,
	})

	require.NoError(t, e.HandleEnvelope(context.Background(), createdEnvelope(t, "wf-1", "validate", "ship")))

	require.Equal(t, []string{"validate"}, exec.executed())

	patches := rep.recorded()
	last := patches[len(patches)-1]
	require.NotNil(t, last.Status)
	require.Equal(t, api.StatusFailed, *last.Status)
	require.NotNil(t, last.Error)
	require.Contains(t, *last.Error, "timed out")
}

func TestCloseCancelsInFlightWorkflow(t *testing.T) {
	exec := &scriptedExecutor{block: make(chan struct{})}
	rep := &recordingReporter{}
	e, err := New(Config{Executor: exec, Reporter: rep})
	require.NoError(t, err)

	handled := make(chan error, 1)
	go func() {
		handled <- e.HandleEnvelope(context.Background(), createdEnvelope(t, "wf-1", "validate"))
	}()

	// Wait for the step to start blocking.
	require.Eventually(t, func() bool {
		return len(exec.executed()) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, e.Close())
	require.NoError(t, <-handled)

	patches := rep.recorded()
	last := patches[len(patches)-1]
	require.NotNil(t, last.Status)
	require.Equal(t, api.StatusFailed, *last.Status)
}

func TestSeenSetEviction(t *testing.T) {
	s := newSeenSet(3)

	require.True(t, s.Observe("a"))
	require.False(t, s.Observe("a"))
	require.True(t, s.Observe("b"))
	require.True(t, s.Observe("c"))
	require.True(t, s.Observe("d")) // evicts a
	require.True(t, s.Observe("a"))
	require.False(t, s.Observe("d"))
}

func TestObserverCallbacks(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
	)
	obs := &funcObserver{record: func(ev string) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}}

	e := newTestEngine(t, Config{Observer: obs})
	require.NoError(t, e.HandleEnvelope(context.Background(), createdEnvelope(t, "wf-1", "validate", "ship")))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{
		"start",
		"step_start:validate", "step_done:validate",
		"step_start:ship", "step_done:ship",
		"completed",
	}, events)
}

type funcObserver struct {
	api.NoopObserver
	record func(string)
}

func (o *funcObserver) OnWorkflowStart(ctx context.Context, wf *api.Workflow) { o.record("start") }
func (o *funcObserver) OnWorkflowCompleted(ctx context.Context, wf *api.Workflow) {
	o.record("completed")
}
func (o *funcObserver) OnWorkflowFailed(ctx context.Context, wf *api.Workflow, err error) {
	o.record("failed")
}
func (o *funcObserver) OnStepStart(ctx context.Context, wf *api.Workflow, step string, idx int) {
	o.record(fmt.Sprintf("step_start:%s", step))
}
func (o *funcObserver) OnStepCompleted(ctx context.Context, wf *api.Workflow, step string, idx int, err error, d time.Duration) {
	o.record(fmt.Sprintf("step_done:%s", step))
}
