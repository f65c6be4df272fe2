package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streamops/streamops/internal/deadletter"
	"github.com/streamops/streamops/pkg/api"
)

// MemoryBus is a partitioned in-process broker. Topics are created
// lazily; each topic has a fixed number of partitions, and each
// partition is an append-only log consumed serially per group.
//
// It is intended for tests, local development, and single-process
// deployments; it deliberately mirrors the delivery semantics of the
// Redis transport (per-key ordering, at-least-once, contained handler
// failures) so code can move between the two unchanged.
type MemoryBus struct {
	partitions int

	mu     sync.Mutex
	topics map[string]*memTopic
}

// NewMemoryBus creates a broker with the given partition count per
// topic. partitions <= 0 falls back to DefaultPartitions.
func NewMemoryBus(partitions int) *MemoryBus {
	if partitions <= 0 {
		partitions = DefaultPartitions
	}
	return &MemoryBus{
		partitions: partitions,
		topics:     make(map[string]*memTopic),
	}
}

func (b *MemoryBus) topic(name string) *memTopic {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[name]
	if !ok {
		t = newMemTopic(b.partitions)
		b.topics[name] = t
	}
	return t
}

type memTopic struct {
	parts []*memPartition
}

func newMemTopic(n int) *memTopic {
	parts := make([]*memPartition, n)
	for i := range parts {
		parts[i] = &memPartition{notify: make(chan struct{}, 1)}
	}
	return &memTopic{parts: parts}
}

type memPartition struct {
	mu     sync.Mutex
	log    [][]byte
	notify chan struct{}
}

func (p *memPartition) append(data []byte) {
	p.mu.Lock()
	p.log = append(p.log, data)
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// next blocks until an entry exists at offset or ctx is cancelled.
func (p *memPartition) next(ctx context.Context, offset int) ([]byte, error) {
	for {
		p.mu.Lock()
		if offset < len(p.log) {
			data := p.log[offset]
			p.mu.Unlock()
			return data, nil
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.notify:
		}
	}
}

// MemoryProducer publishes to a MemoryBus.
type MemoryProducer struct {
	bus       *MemoryBus
	connected atomic.Bool
}

// Producer returns a producer-side view of the bus.
func (b *MemoryBus) Producer() *MemoryProducer {
	return &MemoryProducer{bus: b}
}

var _ Producer = (*MemoryProducer)(nil)

func (p *MemoryProducer) Connect(ctx context.Context) error {
	p.connected.Store(true)
	return nil
}

func (p *MemoryProducer) Publish(ctx context.Context, topic, key string, env api.Envelope) error {
	if !p.connected.Load() {
		return api.ErrNotConnected
	}
	data, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}
	t := p.bus.topic(topic)
	t.parts[PartitionForKey(key, len(t.parts))].append(data)
	return nil
}

func (p *MemoryProducer) Disconnect() error {
	p.connected.Store(false)
	return nil
}

// ConsumerConfig tunes failure containment for a consumer.
type ConsumerConfig struct {
	// Logger receives delivery failures; defaults to slog.Default().
	Logger *slog.Logger

	// Policy decides what happens to messages whose handler failed.
	// Defaults to FailureDrop.
	Policy FailurePolicy

	// DeadLetters receives failed messages under FailureDeadLetter.
	// Defaults to an in-memory store.
	DeadLetters deadletter.Store
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Policy == "" {
		c.Policy = FailureDrop
	}
	if c.Policy == FailureDeadLetter && c.DeadLetters == nil {
		c.DeadLetters = deadletter.NewMemoryStore()
	}
	return c
}

// MemoryConsumer consumes from a MemoryBus. One goroutine per (topic,
// partition) delivers entries strictly in order, so a long-running
// handler blocks the rest of its partition but never another partition.
type MemoryConsumer struct {
	bus *MemoryBus
	cfg ConsumerConfig

	mu       sync.Mutex
	handlers map[string]Handler
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
}

// Consumer returns a consumer-side view of the bus.
func (b *MemoryBus) Consumer(cfg ConsumerConfig) *MemoryConsumer {
	return &MemoryConsumer{
		bus:      b,
		cfg:      cfg.withDefaults(),
		handlers: make(map[string]Handler),
	}
}

var _ Consumer = (*MemoryConsumer)(nil)

func (c *MemoryConsumer) Handle(topic string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = h
}

func (c *MemoryConsumer) Subscribe(ctx context.Context, topics []string, groupID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return errors.New("bus: consumer already subscribed")
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true

	for _, topic := range topics {
		h, ok := c.handlers[topic]
		if !ok {
			c.cfg.Logger.Warn("no handler registered for topic, skipping",
				slog.String("topic", topic),
				slog.String("group", groupID),
			)
			continue
		}

		t := c.bus.topic(topic)
		for i, part := range t.parts {
			c.wg.Add(1)
			go c.consumePartition(ctx, topic, groupID, i, part, h)
		}
	}
	return nil
}

func (c *MemoryConsumer) consumePartition(ctx context.Context, topic, groupID string, partition int, p *memPartition, h Handler) {
	defer c.wg.Done()

	offset := 0
	for {
		data, err := p.next(ctx, offset)
		if err != nil {
			// Context cancellation is the shutdown signal.
			return
		}
		offset++

		env, err := DecodeEnvelope(data)
		if err != nil {
			c.containFailure(ctx, topic, groupID, partition, api.Envelope{}, data, err)
			continue
		}
		if err := c.deliver(ctx, env, h); err != nil {
			c.containFailure(ctx, topic, groupID, partition, env, data, err)
		}
	}
}

// deliver invokes the handler, converting a panic into an error so a
// misbehaving handler can never take down the consume loop.
func (c *MemoryConsumer) deliver(ctx context.Context, env api.Envelope, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, env)
}

// containFailure applies the configured failure policy. The message is
// never retried by the transport.
func (c *MemoryConsumer) containFailure(ctx context.Context, topic, groupID string, partition int, env api.Envelope, raw []byte, cause error) {
	c.cfg.Logger.Error("message processing failed",
		slog.String("topic", topic),
		slog.String("group", groupID),
		slog.Int("partition", partition),
		slog.String("event_id", env.EventID),
		slog.String("event_type", env.EventType),
		slog.String("policy", string(c.cfg.Policy)),
		slog.Any("error", cause),
	)
	if c.cfg.Policy != FailureDeadLetter {
		return
	}
	dl := deadletter.DeadLetter{
		Topic:     topic,
		GroupID:   groupID,
		EventID:   env.EventID,
		EventType: env.EventType,
		Payload:   raw,
		Reason:    cause.Error(),
		FailedAt:  time.Now().UTC(),
	}
	if err := c.cfg.DeadLetters.Append(ctx, dl); err != nil {
		c.cfg.Logger.Error("dead-letter append failed", slog.Any("error", err))
	}
}

func (c *MemoryConsumer) Close() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.running = false
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	return nil
}
