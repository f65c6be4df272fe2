package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types carried on the bus. Namespaced strings so consumers can
// ignore types they do not recognize.
const (
	EventWorkflowCreated = "workflow.created"
	EventTaskCreated     = "task.created"
)

// Topics the system publishes to. All events for one workflow share
// the workflow id as partition key, so they land on the same partition
// in publish order.
const (
	TopicWorkflows = "workflows"
	TopicTasks     = "tasks"
)

// SchemaVersion is stamped into every envelope's metadata.
const SchemaVersion = "1.0.0"

// Metadata describes the producing side of an envelope.
type Metadata struct {
	Source     string `json:"source"`
	APIVersion string `json:"apiVersion"`
}

// Envelope is the immutable wrapper around every event on the bus.
// EventID is the sole deduplication key available to consumers;
// Timestamp is construction time, not delivery time.
type Envelope struct {
	EventType string          `json:"eventType"`
	EventID   string          `json:"eventId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  Metadata        `json:"metadata"`
}

// NewEnvelope builds an envelope around payload. It assigns a fresh
// unique event id and the current time, and stamps the producing
// component's name plus the fixed schema version. Payload shape is the
// caller's responsibility; no validation happens here.
func NewEnvelope(source, eventType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventType: eventType,
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Payload:   raw,
		Metadata: Metadata{
			Source:     source,
			APIVersion: SchemaVersion,
		},
	}, nil
}

// WorkflowCreatedPayload is the payload of a workflow.created event.
// It carries enough context for the execution side to run the workflow
// without reading the store back.
type WorkflowCreatedPayload struct {
	WorkflowID string    `json:"workflowId"`
	Name       string    `json:"name"`
	Steps      []string  `json:"steps"`
	Priority   Priority  `json:"priority"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TaskCreatedPayload is the payload of a task.created event.
type TaskCreatedPayload struct {
	TaskID    string         `json:"taskId"`
	Type      TaskType       `json:"type"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"createdAt"`
}
