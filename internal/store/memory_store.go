package store

import (
	"context"
	"sort"
	"sync"

	"github.com/streamops/streamops/pkg/api"
)

// MemoryStore is a goroutine-safe implementation of Store backed by maps.
// It is the only backend: durable storage is out of scope, but everything
// reaches the store through the Store interface so a durable backend can
// be swapped in without touching callers.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*workflowRecord
	tasks     map[string]*taskRecord
	seq       int64
}

// seq breaks ordering ties between records created within the same clock
// tick so list output stays deterministic.
type workflowRecord struct {
	wf  *api.Workflow
	seq int64
}

type taskRecord struct {
	task *api.Task
	seq  int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]*workflowRecord),
		tasks:     make(map[string]*taskRecord),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) CreateWorkflow(ctx context.Context, wf *api.Workflow) (*api.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[wf.ID]; exists {
		return nil, api.ErrWorkflowExists
	}
	s.seq++
	s.workflows[wf.ID] = &workflowRecord{wf: wf.Clone(), seq: s.seq}
	return wf.Clone(), nil
}

func (s *MemoryStore) GetWorkflow(ctx context.Context, id string) (*api.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.workflows[id]
	if !ok {
		return nil, api.ErrWorkflowNotFound
	}
	return rec.wf.Clone(), nil
}

func (s *MemoryStore) UpdateWorkflow(ctx context.Context, id string, patch api.WorkflowPatch) (*api.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.workflows[id]
	if !ok {
		return nil, api.ErrWorkflowNotFound
	}

	merged, err := mergeWorkflow(rec.wf, patch)
	if err != nil {
		return nil, err
	}
	rec.wf = merged
	return merged.Clone(), nil
}

// mergeWorkflow applies patch to a copy of wf. Status changes must follow
// the forward path and step indexes may not move backwards; stale
// progress reports from a redelivered event are rejected instead of
// silently rewinding the record.
func mergeWorkflow(wf *api.Workflow, patch api.WorkflowPatch) (*api.Workflow, error) {
	merged := wf.Clone()

	if patch.Status != nil {
		next := *patch.Status
		if !wf.Status.CanTransitionTo(next) {
			return nil, api.ErrPatchRejected
		}
		merged.Status = next
	}
	if patch.CurrentStepIndex != nil {
		idx := *patch.CurrentStepIndex
		if idx < 0 || idx >= len(wf.Steps) {
			return nil, api.ErrPatchRejected
		}
		if merged.Status == api.StatusProcessing && idx < wf.CurrentStepIndex && wf.Status == api.StatusProcessing {
			return nil, api.ErrPatchRejected
		}
		merged.CurrentStepIndex = idx
	}
	if patch.CurrentStepSet {
		merged.CurrentStep = patch.CurrentStep
	}
	if patch.StartedAt != nil {
		// startedAt is set at most once, never before createdAt.
		if wf.StartedAt != nil || patch.StartedAt.Before(wf.CreatedAt) {
			return nil, api.ErrPatchRejected
		}
		merged.StartedAt = patch.StartedAt
	}
	if patch.CompletedAt != nil {
		if wf.CompletedAt != nil {
			return nil, api.ErrPatchRejected
		}
		merged.CompletedAt = patch.CompletedAt
	}
	if patch.Error != nil {
		merged.Error = patch.Error
	}
	return merged, nil
}

func (s *MemoryStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*api.Workflow, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*workflowRecord, 0, len(s.workflows))
	for _, rec := range s.workflows {
		if filter.Status != "" && rec.wf.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && rec.wf.Priority != filter.Priority {
			continue
		}
		matched = append(matched, rec)
	}

	// Newest created first.
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.wf.CreatedAt.Equal(b.wf.CreatedAt) {
			return a.wf.CreatedAt.After(b.wf.CreatedAt)
		}
		return a.seq > b.seq
	})

	total := len(matched)
	matched = paginate(matched, filter.Limit, filter.Offset)

	out := make([]*api.Workflow, 0, len(matched))
	for _, rec := range matched {
		out = append(out, rec.wf.Clone())
	}
	return out, total, nil
}

func (s *MemoryStore) CreateTask(ctx context.Context, t *api.Task) (*api.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[t.ID]; exists {
		return nil, api.ErrTaskExists
	}
	s.seq++
	s.tasks[t.ID] = &taskRecord{task: t.Clone(), seq: s.seq}
	return t.Clone(), nil
}

func (s *MemoryStore) GetTask(ctx context.Context, id string) (*api.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tasks[id]
	if !ok {
		return nil, api.ErrTaskNotFound
	}
	return rec.task.Clone(), nil
}

func (s *MemoryStore) UpdateTask(ctx context.Context, id string, patch api.TaskPatch) (*api.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[id]
	if !ok {
		return nil, api.ErrTaskNotFound
	}

	merged := rec.task.Clone()
	if patch.Status != nil {
		if !rec.task.Status.CanTransitionTo(*patch.Status) {
			return nil, api.ErrPatchRejected
		}
		merged.Status = *patch.Status
	}
	if patch.CompletedAt != nil {
		if rec.task.CompletedAt != nil {
			return nil, api.ErrPatchRejected
		}
		merged.CompletedAt = patch.CompletedAt
	}
	if patch.Error != nil {
		merged.Error = patch.Error
	}
	rec.task = merged
	return merged.Clone(), nil
}

func (s *MemoryStore) ListTasks(ctx context.Context, filter TaskFilter) ([]*api.Task, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*taskRecord, 0, len(s.tasks))
	for _, rec := range s.tasks {
		if filter.Status != "" && rec.task.Status != filter.Status {
			continue
		}
		if filter.Type != "" && rec.task.Type != filter.Type {
			continue
		}
		matched = append(matched, rec)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.task.CreatedAt.Equal(b.task.CreatedAt) {
			return a.task.CreatedAt.After(b.task.CreatedAt)
		}
		return a.seq > b.seq
	})

	total := len(matched)
	matched = paginate(matched, filter.Limit, filter.Offset)

	out := make([]*api.Task, 0, len(matched))
	for _, rec := range matched {
		out = append(out, rec.task.Clone())
	}
	return out, total, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
