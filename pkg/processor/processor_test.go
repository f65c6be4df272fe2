package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamops/streamops/internal/bus"
	"github.com/streamops/streamops/internal/engine"
	"github.com/streamops/streamops/internal/statussync"
	"github.com/streamops/streamops/internal/store"
	"github.com/streamops/streamops/pkg/api"
)

type countingExecutor struct {
	mu    sync.Mutex
	steps []string
}

func (c *countingExecutor) ExecuteStep(ctx context.Context, wf *api.Workflow, step string) error {
	c.mu.Lock()
	c.steps = append(c.steps, step)
	c.mu.Unlock()
	return nil
}

func (c *countingExecutor) executed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.steps...)
}

func TestProcessorDrivesWorkflowFromBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewMemoryStore()
	mb := bus.NewMemoryBus(bus.DefaultPartitions)
	producer := mb.Producer()
	require.NoError(t, producer.Connect(ctx))
	defer producer.Disconnect()

	exec := &countingExecutor{}
	eng, err := engine.New(engine.Config{
		Executor: exec,
		Reporter: statussync.NewLocalReporter(st),
	})
	require.NoError(t, err)

	p, err := New(Config{
		Consumer: mb.Consumer(bus.ConsumerConfig{}),
		Engine:   eng,
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(ctx))
	defer p.Close()

	wf, err := st.CreateWorkflow(ctx, &api.Workflow{
		ID:        "wf-1",
		Name:      "Pipeline",
		Steps:     []string{"validate", "transform", "store"},
		Priority:  api.PriorityHigh,
		Status:    api.StatusPending,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	env, err := api.NewEnvelope("api-gateway", api.EventWorkflowCreated, api.WorkflowCreatedPayload{
		WorkflowID: wf.ID,
		Name:       wf.Name,
		Steps:      wf.Steps,
		Priority:   wf.Priority,
		CreatedAt:  wf.CreatedAt,
	})
	require.NoError(t, err)
	require.NoError(t, producer.Publish(ctx, api.TopicWorkflows, wf.ID, env))

	require.Eventually(t, func() bool {
		got, err := st.GetWorkflow(ctx, wf.ID)
		return err == nil && got.Status == api.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, []string{"validate", "transform", "store"}, exec.executed())
}

func TestProcessorAcksTaskEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mb := bus.NewMemoryBus(bus.DefaultPartitions)
	producer := mb.Producer()
	require.NoError(t, producer.Connect(ctx))
	defer producer.Disconnect()

	eng, err := engine.New(engine.Config{
		Executor: &countingExecutor{},
		Reporter: statussync.NewLocalReporter(store.NewMemoryStore()),
	})
	require.NoError(t, err)

	p, err := New(Config{
		Consumer: mb.Consumer(bus.ConsumerConfig{}),
		Engine:   eng,
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(ctx))
	defer p.Close()

	env, err := api.NewEnvelope("api-gateway", api.EventTaskCreated, api.TaskCreatedPayload{
		TaskID: "task-1",
		Type:   api.TaskDataExport,
	})
	require.NoError(t, err)
	// Task events are logged and acknowledged without crashing the loop.
	require.NoError(t, producer.Publish(ctx, api.TopicTasks, "task-1", env))

	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "Close is idempotent")
}

func TestProcessorRequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	mb := bus.NewMemoryBus(1)
	_, err = New(Config{Consumer: mb.Consumer(bus.ConsumerConfig{})})
	require.Error(t, err)
}

func TestProcessorStartTwice(t *testing.T) {
	ctx := context.Background()
	mb := bus.NewMemoryBus(1)

	eng, err := engine.New(engine.Config{
		Executor: api.NoopExecutor{},
		Reporter: statussync.NewLocalReporter(store.NewMemoryStore()),
	})
	require.NoError(t, err)

	p, err := New(Config{Consumer: mb.Consumer(bus.ConsumerConfig{}), Engine: eng})
	require.NoError(t, err)
	require.NoError(t, p.Start(ctx))
	require.Error(t, p.Start(ctx))
	require.NoError(t, p.Close())
}
