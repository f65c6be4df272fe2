package api

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle state of a workflow or task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition can happen from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid reports whether s is one of the known lifecycle states.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// rank orders statuses along the single forward path
// pending -> processing -> {completed | failed}.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next follows the
// forward path. Terminal states accept no further transitions; a
// self-transition while processing is allowed (step progress updates).
func (s Status) CanTransitionTo(next Status) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	if s.Terminal() {
		return false
	}
	if s == next {
		return s == StatusProcessing
	}
	return next.rank() == s.rank()+1
}

// Priority controls scheduling weight of a workflow.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// TaskType identifies one of the executable task kinds.
type TaskType string

const (
	TaskEmailNotification TaskType = "email_notification"
	TaskDataExport        TaskType = "data_export"
	TaskReportGeneration  TaskType = "report_generation"
)

func (t TaskType) IsValid() bool {
	switch t {
	case TaskEmailNotification, TaskDataExport, TaskReportGeneration:
		return true
	}
	return false
}

// Workflow is the canonical record of a multi-step workflow.
// The store owns the authoritative copy; the execution side only holds a
// transient working copy reconstructed from event payloads.
type Workflow struct {
	ID               string     `json:"workflowId"`
	Name             string     `json:"name"`
	Steps            []string   `json:"steps"`
	Priority         Priority   `json:"priority"`
	Status           Status     `json:"status"`
	CurrentStep      *string    `json:"currentStep"`
	CurrentStepIndex int        `json:"currentStepIndex"`
	CreatedAt        time.Time  `json:"createdAt"`
	StartedAt        *time.Time `json:"startedAt"`
	CompletedAt      *time.Time `json:"completedAt"`
	Error            *string    `json:"error"`
}

// Clone returns a deep copy so callers can hand out records without
// sharing mutable state with the store.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	cp := *w
	cp.Steps = append([]string(nil), w.Steps...)
	cp.CurrentStep = cloneString(w.CurrentStep)
	cp.StartedAt = cloneTime(w.StartedAt)
	cp.CompletedAt = cloneTime(w.CompletedAt)
	cp.Error = cloneString(w.Error)
	return &cp
}

// Task is the canonical record of a single executable task.
// Task execution is a stated extension point; the entity and its state
// machine are part of the model regardless.
type Task struct {
	ID          string         `json:"taskId"`
	Type        TaskType       `json:"type"`
	Data        map[string]any `json:"data"`
	Status      Status         `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
	CompletedAt *time.Time     `json:"completedAt"`
	Error       *string        `json:"error"`
}

func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Data != nil {
		cp.Data = make(map[string]any, len(t.Data))
		for k, v := range t.Data {
			cp.Data[k] = v
		}
	}
	cp.CompletedAt = cloneTime(t.CompletedAt)
	cp.Error = cloneString(t.Error)
	return &cp
}

// WorkflowPatch is a partial update applied to a workflow record.
// Nil pointer fields are left untouched by the merge. CurrentStep is
// special: it must be clearable (set to null when a workflow completes),
// so CurrentStepSet distinguishes "absent" from "set to null".
type WorkflowPatch struct {
	Status           *Status
	CurrentStep      *string
	CurrentStepSet   bool
	CurrentStepIndex *int
	StartedAt        *time.Time
	CompletedAt      *time.Time
	Error            *string
}

// IsZero reports whether the patch carries no fields at all.
func (p WorkflowPatch) IsZero() bool {
	return p.Status == nil && !p.CurrentStepSet && p.CurrentStepIndex == nil &&
		p.StartedAt == nil && p.CompletedAt == nil && p.Error == nil
}

type workflowPatchJSON struct {
	Status           *Status         `json:"status,omitempty"`
	CurrentStep      json.RawMessage `json:"currentStep,omitempty"`
	CurrentStepIndex *int            `json:"currentStepIndex,omitempty"`
	StartedAt        *time.Time      `json:"startedAt,omitempty"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
	Error            *string         `json:"error,omitempty"`
}

func (p WorkflowPatch) MarshalJSON() ([]byte, error) {
	out := workflowPatchJSON{
		Status:           p.Status,
		CurrentStepIndex: p.CurrentStepIndex,
		StartedAt:        p.StartedAt,
		CompletedAt:      p.CompletedAt,
		Error:            p.Error,
	}
	if p.CurrentStepSet {
		if p.CurrentStep == nil {
			out.CurrentStep = json.RawMessage("null")
		} else {
			raw, err := json.Marshal(*p.CurrentStep)
			if err != nil {
				return nil, err
			}
			out.CurrentStep = raw
		}
	}
	return json.Marshal(out)
}

func (p *WorkflowPatch) UnmarshalJSON(data []byte) error {
	var in workflowPatchJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	p.Status = in.Status
	p.CurrentStepIndex = in.CurrentStepIndex
	p.StartedAt = in.StartedAt
	p.CompletedAt = in.CompletedAt
	p.Error = in.Error
	p.CurrentStep = nil
	p.CurrentStepSet = false

	if len(in.CurrentStep) > 0 {
		p.CurrentStepSet = true
		if string(in.CurrentStep) != "null" {
			var s string
			if err := json.Unmarshal(in.CurrentStep, &s); err != nil {
				return err
			}
			p.CurrentStep = &s
		}
	}
	return nil
}

// TaskPatch is a partial update applied to a task record.
type TaskPatch struct {
	Status      *Status    `json:"status,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       *string    `json:"error,omitempty"`
}

func (p TaskPatch) IsZero() bool {
	return p.Status == nil && p.CompletedAt == nil && p.Error == nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
