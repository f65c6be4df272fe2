package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/streamops/streamops/internal/deadletter"
	"github.com/streamops/streamops/pkg/api"
)

// Redis transport: each (topic, partition) pair maps to one Redis
// stream named
//
//	<prefix><topic>:<partition>
//
// XADD preserves per-stream order and XREADGROUP gives consumer-group
// semantics with explicit acknowledgement, which together provide the
// per-key ordering and at-least-once guarantees the engine relies on.
// The go-redis client's own MaxRetries setting is the transport's
// bounded retry budget; once it is exhausted the error surfaces to the
// caller as a transient transport error.

const envelopeField = "envelope"

func streamName(prefix, topic string, partition int) string {
	return fmt.Sprintf("%s%s:%d", prefix, topic, partition)
}

// RedisProducer publishes envelopes to Redis streams.
type RedisProducer struct {
	client     *redis.Client
	prefix     string
	partitions int
	connected  atomic.Bool
}

// NewRedisProducer constructs a producer over the given client. prefix
// is optional but recommended (e.g. "streamops:"); partitions <= 0
// falls back to DefaultPartitions and must match the consumer side.
func NewRedisProducer(client *redis.Client, prefix string, partitions int) *RedisProducer {
	if prefix == "" {
		prefix = "streamops:"
	}
	if partitions <= 0 {
		partitions = DefaultPartitions
	}
	return &RedisProducer{client: client, prefix: prefix, partitions: partitions}
}

var _ Producer = (*RedisProducer)(nil)

func (p *RedisProducer) Connect(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return api.NewTransportError("redis connect", err)
	}
	p.connected.Store(true)
	return nil
}

func (p *RedisProducer) Publish(ctx context.Context, topic, key string, env api.Envelope) error {
	if !p.connected.Load() {
		return api.ErrNotConnected
	}
	data, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}

	stream := streamName(p.prefix, topic, PartitionForKey(key, p.partitions))
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{envelopeField: data},
	}).Err()
	if err != nil {
		return api.NewTransportError("publish to "+stream, err)
	}
	return nil
}

func (p *RedisProducer) Disconnect() error {
	p.connected.Store(false)
	return nil
}

// RedisConsumer reads envelopes from Redis streams as part of a
// consumer group. One goroutine per (topic, partition) stream keeps
// delivery serial within a partition.
type RedisConsumer struct {
	client     *redis.Client
	prefix     string
	partitions int
	consumerID string
	cfg        ConsumerConfig

	mu       sync.Mutex
	handlers map[string]Handler
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
}

// NewRedisConsumer constructs a consumer over the given client.
// consumerID names this process within the group (for XREADGROUP); it
// should be unique per process instance.
func NewRedisConsumer(client *redis.Client, prefix string, partitions int, consumerID string, cfg ConsumerConfig) *RedisConsumer {
	if prefix == "" {
		prefix = "streamops:"
	}
	if partitions <= 0 {
		partitions = DefaultPartitions
	}
	return &RedisConsumer{
		client:     client,
		prefix:     prefix,
		partitions: partitions,
		consumerID: consumerID,
		cfg:        cfg.withDefaults(),
		handlers:   make(map[string]Handler),
	}
}

var _ Consumer = (*RedisConsumer)(nil)

func (c *RedisConsumer) Handle(topic string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = h
}

func (c *RedisConsumer) Subscribe(ctx context.Context, topics []string, groupID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return errors.New("bus: consumer already subscribed")
	}

	// Create the group on every stream up front so publishes that
	// happen before the read loops start are not lost.
	for _, topic := range topics {
		for i := 0; i < c.partitions; i++ {
			stream := streamName(c.prefix, topic, i)
			err := c.client.XGroupCreateMkStream(ctx, stream, groupID, "$").Err()
			if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
				return api.NewTransportError("create group on "+stream, err)
			}
		}
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
		for i := 0; i < c.partitions; i++ {
			stream := streamName(c.prefix, topic, i)
			c.wg.Add(1)
			go c.consumeStream(ctx, topic, groupID, i, stream, h)
		}
	}
	return nil
}

func (c *RedisConsumer) consumeStream(ctx context.Context, topic, groupID string, partition int, stream string, h Handler) {
	defer c.wg.Done()

	for {
		res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    groupID,
			Consumer: c.consumerID,
			Streams:  []string{stream, ">"},
			Count:    1,
			Block:    time.Second,
		}).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				// Block timeout with no entries; poll again.
				continue
			}
			c.cfg.Logger.Error("stream read failed",
				slog.String("stream", stream),
				slog.Any("error", err),
			)
			// Transient read error: back off briefly and retry.
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, xs := range res {
			for _, msg := range xs.Messages {
				c.processMessage(ctx, topic, groupID, partition, stream, msg, h)
			}
		}
	}
}

func (c *RedisConsumer) processMessage(ctx context.Context, topic, groupID string, partition int, stream string, msg redis.XMessage, h Handler) {
	raw, _ := msg.Values[envelopeField].(string)

	env, err := DecodeEnvelope([]byte(raw))
	if err != nil {
		c.containFailure(ctx, topic, groupID, partition, api.Envelope{}, []byte(raw), err)
	} else if err := c.deliver(ctx, env, h); err != nil {
		c.containFailure(ctx, topic, groupID, partition, env, []byte(raw), err)
	}

	// The message is acknowledged whether it succeeded or was routed by
	// the failure policy: the transport never redelivers on handler
	// failure. A crash before this ack is what produces at-least-once
	// redelivery.
	if err := c.client.XAck(ctx, stream, groupID, msg.ID).Err(); err != nil && ctx.Err() == nil {
		c.cfg.Logger.Error("ack failed",
			slog.String("stream", stream),
			slog.String("message_id", msg.ID),
			slog.Any("error", err),
		)
	}
}

func (c *RedisConsumer) deliver(ctx context.Context, env api.Envelope, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, env)
}

func (c *RedisConsumer) containFailure(ctx context.Context, topic, groupID string, partition int, env api.Envelope, raw []byte, cause error) {
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

func (c *RedisConsumer) Close() error {
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
