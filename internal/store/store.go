package store

import (
	"context"

	"github.com/streamops/streamops/pkg/api"
)

// WorkflowFilter selects workflows from the store.
// Empty string fields mean "no filter".
type WorkflowFilter struct {
	Status   api.Status
	Priority api.Priority

	// Limit caps the number of returned items; <= 0 means no cap.
	// Offset skips that many items after filtering and ordering.
	Limit  int
	Offset int
}

// TaskFilter selects tasks from the store.
type TaskFilter struct {
	Status api.Status
	Type   api.TaskType

	Limit  int
	Offset int
}

// WorkflowStore is the authoritative record of workflow entities.
//
// Implementations must make each update atomic per entity id. There is no
// cross-entity locking: callers must not assume atomicity across a
// workflow and its tasks.
type WorkflowStore interface {
	// CreateWorkflow inserts a new record keyed by wf.ID.
	// Returns a conflict error if the id already exists.
	CreateWorkflow(ctx context.Context, wf *api.Workflow) (*api.Workflow, error)

	// GetWorkflow returns the record for id, or a not-found error.
	GetWorkflow(ctx context.Context, id string) (*api.Workflow, error)

	// UpdateWorkflow merges patch into the record and returns the merged
	// result. Only fields present in patch are overwritten. Patches that
	// would move the status backwards, revive a terminal record, or set an
	// out-of-range step index are rejected.
	UpdateWorkflow(ctx context.Context, id string, patch api.WorkflowPatch) (*api.Workflow, error)

	// ListWorkflows returns matching records ordered by creation time
	// descending, plus the pre-pagination filtered count.
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*api.Workflow, int, error)
}

// TaskStore is the authoritative record of task entities.
type TaskStore interface {
	CreateTask(ctx context.Context, t *api.Task) (*api.Task, error)
	GetTask(ctx context.Context, id string) (*api.Task, error)
	UpdateTask(ctx context.Context, id string, patch api.TaskPatch) (*api.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*api.Task, int, error)
}

// Store bundles the two entity stores so callers can depend on a single
// abstraction.
type Store interface {
	WorkflowStore
	TaskStore
}
