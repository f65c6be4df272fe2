package bus

import (
	"context"
	"hash/fnv"

	"github.com/streamops/streamops/pkg/api"
)

// DefaultPartitions is used when a transport is configured with no
// explicit partition count.
const DefaultPartitions = 4

// Handler processes one delivered envelope. Delivery is at-least-once: a
// crash between processing and offset commitment can redeliver an
// already-processed envelope, so handlers must be idempotent with respect
// to Envelope.EventID.
type Handler func(ctx context.Context, env api.Envelope) error

// Producer publishes envelopes to named topics.
//
// Publish selects a partition deterministically from key, so all events
// sharing a key reach the same partition in publish order. Publish before
// Connect fails with a not-connected error; failures after the
// transport's bounded retry budget surface to the caller.
type Producer interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic, key string, env api.Envelope) error
	// Disconnect is idempotent and safe to call when never connected.
	Disconnect() error
}

// Consumer joins a consumer group and delivers envelopes to per-topic
// handlers. Handler errors are contained at the transport boundary: the
// message is logged and then dropped or dead-lettered per the configured
// policy, and the consume loop keeps running.
type Consumer interface {
	// Handle registers the handler for a topic. Must be called before
	// Subscribe; later registrations for the same topic replace earlier
	// ones.
	Handle(topic string, h Handler)

	// Subscribe joins groupID on the given topics and starts the
	// per-partition delivery loops. It does not block.
	Subscribe(ctx context.Context, topics []string, groupID string) error

	// Close stops the delivery loops and waits for them to drain.
	Close() error
}

// FailurePolicy decides what happens to a message whose handler failed.
type FailurePolicy string

const (
	// FailureDrop logs the failure and discards the message.
	FailureDrop FailurePolicy = "drop"

	// FailureDeadLetter logs the failure and appends the message to the
	// configured dead-letter store before moving on.
	FailureDeadLetter FailurePolicy = "deadletter"
)

// PartitionForKey maps a partition key onto one of n partitions using
// FNV-1a. The mapping is deterministic across producers and restarts,
// which is what gives per-key ordered delivery.
func PartitionForKey(key string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
