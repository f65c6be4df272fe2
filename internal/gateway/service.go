// Package gateway is the caller-facing entry point: it validates
// creation input, persists the authoritative record, and publishes the
// corresponding event keyed by entity id so the execution side picks
// it up in order.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/streamops/streamops/internal/bus"
	"github.com/streamops/streamops/internal/store"
	"github.com/streamops/streamops/pkg/api"
)

// Source is the component name stamped into envelope metadata.
const Source = "api-gateway"

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// CreateWorkflowInput is the caller's creation request. Priority is
// optional and defaults to medium.
type CreateWorkflowInput struct {
	Name     string       `json:"name"`
	Steps    []string     `json:"steps"`
	Priority api.Priority `json:"priority"`
}

// CreateTaskInput is the caller's task creation request.
type CreateTaskInput struct {
	Type api.TaskType   `json:"type"`
	Data map[string]any `json:"data"`
}

// WorkflowList is a paginated list result. Total counts all records
// matching the filter, not just the returned page.
type WorkflowList struct {
	Workflows []*api.Workflow `json:"workflows"`
	Total     int             `json:"total"`
	Limit     int             `json:"limit"`
	Offset    int             `json:"offset"`
}

// TaskList is the task counterpart of WorkflowList.
type TaskList struct {
	Tasks  []*api.Task `json:"tasks"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// Service implements the gateway operations over a store and a bus
// producer.
type Service struct {
	store    store.Store
	producer bus.Producer
	logger   *slog.Logger
}

// NewService builds a gateway service. A nil logger gets slog.Default.
func NewService(st store.Store, producer bus.Producer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, producer: producer, logger: logger}
}

// CreateWorkflow validates in, persists a pending record and publishes
// workflow.created keyed by the new id. Publish failures propagate to
// the caller: the record exists in the store, but the caller decides
// whether to treat creation as failed.
func (s *Service) CreateWorkflow(ctx context.Context, in CreateWorkflowInput) (*api.Workflow, error) {
	if err := validateCreateWorkflow(in); err != nil {
		return nil, err
	}

	priority := in.Priority
	if priority == "" {
		priority = api.PriorityMedium
	}

	wf := &api.Workflow{
		ID:        "wf-" + uuid.NewString(),
		Name:      in.Name,
		Steps:     append([]string(nil), in.Steps...),
		Priority:  priority,
		Status:    api.StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	created, err := s.store.CreateWorkflow(ctx, wf)
	if err != nil {
		return nil, err
	}

	env, err := api.NewEnvelope(Source, api.EventWorkflowCreated, api.WorkflowCreatedPayload{
		WorkflowID: created.ID,
		Name:       created.Name,
		Steps:      created.Steps,
		Priority:   created.Priority,
		CreatedAt:  created.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("build workflow.created event: %w", err)
	}

	if err := s.producer.Publish(ctx, api.TopicWorkflows, created.ID, env); err != nil {
		return nil, fmt.Errorf("publish workflow.created for %s: %w", created.ID, err)
	}

	s.logger.Info("workflow created",
		slog.String("workflow_id", created.ID),
		slog.String("event_id", env.EventID),
		slog.Int("steps", len(created.Steps)))
	return created, nil
}

// GetWorkflow returns the record for id.
func (s *Service) GetWorkflow(ctx context.Context, id string) (*api.Workflow, error) {
	return s.store.GetWorkflow(ctx, id)
}

// ListWorkflows applies limit defaulting before delegating to the
// store: zero limit becomes the default, anything above the cap is
// clamped.
func (s *Service) ListWorkflows(ctx context.Context, filter store.WorkflowFilter) (*WorkflowList, error) {
	filter.Limit = clampLimit(filter.Limit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	items, total, err := s.store.ListWorkflows(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &WorkflowList{
		Workflows: items,
		Total:     total,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	}, nil
}

// UpdateWorkflow is the status-sync mutation endpoint.
func (s *Service) UpdateWorkflow(ctx context.Context, id string, patch api.WorkflowPatch) (*api.Workflow, error) {
	return s.store.UpdateWorkflow(ctx, id, patch)
}

// CreateTask validates in, persists a pending task and publishes
// task.created keyed by the new id.
func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (*api.Task, error) {
	if err := validateCreateTask(in); err != nil {
		return nil, err
	}

	task := &api.Task{
		ID:        "task-" + uuid.NewString(),
		Type:      in.Type,
		Data:      in.Data,
		Status:    api.StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	created, err := s.store.CreateTask(ctx, task)
	if err != nil {
		return nil, err
	}

	env, err := api.NewEnvelope(Source, api.EventTaskCreated, api.TaskCreatedPayload{
		TaskID:    created.ID,
		Type:      created.Type,
		Data:      created.Data,
		CreatedAt: created.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("build task.created event: %w", err)
	}

	if err := s.producer.Publish(ctx, api.TopicTasks, created.ID, env); err != nil {
		return nil, fmt.Errorf("publish task.created for %s: %w", created.ID, err)
	}

	s.logger.Info("task created",
		slog.String("task_id", created.ID),
		slog.String("type", string(created.Type)))
	return created, nil
}

// GetTask returns the record for id.
func (s *Service) GetTask(ctx context.Context, id string) (*api.Task, error) {
	return s.store.GetTask(ctx, id)
}

// ListTasks applies the same limit defaulting as ListWorkflows.
func (s *Service) ListTasks(ctx context.Context, filter store.TaskFilter) (*TaskList, error) {
	filter.Limit = clampLimit(filter.Limit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	items, total, err := s.store.ListTasks(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &TaskList{
		Tasks:  items,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// UpdateTask is the status-sync mutation endpoint for tasks.
func (s *Service) UpdateTask(ctx context.Context, id string, patch api.TaskPatch) (*api.Task, error) {
	return s.store.UpdateTask(ctx, id, patch)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
