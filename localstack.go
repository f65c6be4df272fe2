package streamops

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/streamops/streamops/internal/bus"
	"github.com/streamops/streamops/internal/engine"
	"github.com/streamops/streamops/internal/gateway"
	"github.com/streamops/streamops/internal/statussync"
	"github.com/streamops/streamops/internal/store"
	"github.com/streamops/streamops/pkg/processor"
)

// LocalStackConfig tunes a LocalStack. The zero value is usable:
// steps complete immediately and logging goes to slog.Default.
type LocalStackConfig struct {
	// Executor runs workflow steps. Defaults to NoopExecutor.
	Executor StepExecutor

	// Observer receives engine lifecycle callbacks.
	Observer Observer

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Partitions sets the in-memory bus partition count. Defaults to
	// bus.DefaultPartitions.
	Partitions int

	// StepTimeout bounds each step. Zero disables the deadline.
	StepTimeout time.Duration

	// GroupID names the consumer group. Defaults to the processor's
	// default group.
	GroupID string
}

// LocalStack bundles the whole pipeline in one process: memory store,
// memory bus, gateway service, engine and processor. Events published
// by the gateway flow through the bus to the engine, and status
// reports flow back into the store.
//
// Typical usage:
//
//	stack, _ := streamops.NewLocalStack(streamops.LocalStackConfig{})
//	_ = stack.Start(ctx)
//	wf, _ := stack.Gateway.CreateWorkflow(ctx, gateway.CreateWorkflowInput{...})
//	final, _ := stack.WaitForWorkflow(ctx, wf.ID)
//	stack.Stop()
//
// LocalStack is not crash-durable. It exists for development, tests
// and single-process deployments.
type LocalStack struct {
	// Store is the authoritative in-memory record.
	Store *store.MemoryStore

	// Bus carries events between the gateway and the processor.
	Bus *bus.MemoryBus

	// Gateway validates, persists and publishes creation requests.
	Gateway *gateway.Service

	// Engine drives workflow step execution.
	Engine *engine.Engine

	// Processor runs the consume loop binding Bus to Engine.
	Processor *processor.Processor

	producer *bus.MemoryProducer

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewLocalStack wires up all components. Start must be called before
// created workflows execute.
func NewLocalStack(cfg LocalStackConfig) (*LocalStack, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	executor := cfg.Executor
	if executor == nil {
		executor = NoopExecutor{}
	}

	st := store.NewMemoryStore()
	mb := bus.NewMemoryBus(cfg.Partitions)
	producer := mb.Producer()

	eng, err := engine.New(engine.Config{
		Executor: executor,
		Reporter: statussync.NewRetryingReporter(
			statussync.NewLocalReporter(st),
			statussync.DefaultRetryPolicy(),
			logger,
		),
		Observer:    cfg.Observer,
		Logger:      logger,
		StepTimeout: cfg.StepTimeout,
	})
	if err != nil {
		return nil, err
	}

	proc, err := processor.New(processor.Config{
		Consumer: mb.Consumer(bus.ConsumerConfig{Logger: logger}),
		Engine:   eng,
		GroupID:  cfg.GroupID,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	return &LocalStack{
		Store:     st,
		Bus:       mb,
		Gateway:   gateway.NewService(st, producer, logger),
		Engine:    eng,
		Processor: proc,
		producer:  producer,
	}, nil
}

// Start connects the producer and starts the consume loop. Calling
// Start on a running stack is an error.
func (s *LocalStack) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("streamops: LocalStack already started")
	}

	ctx, cancel := context.WithCancel(ctx)

	if err := s.producer.Connect(ctx); err != nil {
		cancel()
		return err
	}
	if err := s.Processor.Start(ctx); err != nil {
		cancel()
		_ = s.producer.Disconnect()
		return err
	}

	s.cancel = cancel
	s.running = true
	return nil
}

// Stop shuts down the processor, engine and producer and cancels the
// consume loops. Safe to call more than once.
func (s *LocalStack) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	_ = s.Processor.Close()
	_ = s.producer.Disconnect()
	if cancel != nil {
		cancel()
	}
}

// WaitForWorkflow polls the store until the workflow reaches a
// terminal status or ctx expires.
func (s *LocalStack) WaitForWorkflow(ctx context.Context, id string) (*Workflow, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		wf, err := s.Store.GetWorkflow(ctx, id)
		if err != nil {
			return nil, err
		}
		if wf.Status.Terminal() {
			return wf, nil
		}

		select {
		case <-ctx.Done():
			return wf, ctx.Err()
		case <-ticker.C:
		}
	}
}
