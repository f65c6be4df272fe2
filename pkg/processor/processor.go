// Package processor binds a bus consumer to the execution engine. It
// is the consuming-side entry point: register handlers, join the
// consumer group, and hand every workflow event to the engine.
package processor

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/streamops/streamops/internal/bus"
	"github.com/streamops/streamops/internal/engine"
	"github.com/streamops/streamops/pkg/api"
)

// DefaultGroupID is the consumer group joined when Config leaves
// GroupID empty.
const DefaultGroupID = "workflow-processors"

// Config assembles a Processor.
type Config struct {
	// Consumer is the bus subscription to read from. Required.
	Consumer bus.Consumer

	// Engine executes workflow events. Required.
	Engine *engine.Engine

	// GroupID names the consumer group. Defaults to DefaultGroupID.
	GroupID string

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Processor runs the consume loop for the workflows and tasks topics.
// Task execution is a stated extension point: task events are logged
// and acknowledged without running anything.
type Processor struct {
	consumer bus.Consumer
	engine   *engine.Engine
	groupID  string
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
}

// New builds a Processor from cfg.
func New(cfg Config) (*Processor, error) {
	if cfg.Consumer == nil {
		return nil, errors.New("processor: consumer is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("processor: engine is required")
	}
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = DefaultGroupID
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		consumer: cfg.Consumer,
		engine:   cfg.Engine,
		groupID:  groupID,
		logger:   logger,
	}, nil
}

// Start registers handlers and joins the consumer group. The consume
// loops run until ctx is cancelled or Close is called.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("processor closed")
	}
	if p.started {
		return errors.New("processor already started")
	}

	p.consumer.Handle(api.TopicWorkflows, p.engine.HandleEnvelope)
	p.consumer.Handle(api.TopicTasks, p.handleTaskEvent)

	if err := p.consumer.Subscribe(ctx, []string{api.TopicWorkflows, api.TopicTasks}, p.groupID); err != nil {
		return err
	}

	p.started = true
	p.logger.Info("processor started", slog.String("group_id", p.groupID))
	return nil
}

func (p *Processor) handleTaskEvent(ctx context.Context, env api.Envelope) error {
	p.logger.Info("task event received, execution not wired",
		slog.String("event_type", env.EventType),
		slog.String("event_id", env.EventID))
	return nil
}

// Close stops the consume loops, then the engine. Idempotent.
func (p *Processor) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.consumer.Close()
	if engineErr := p.engine.Close(); err == nil {
		err = engineErr
	}
	return err
}
