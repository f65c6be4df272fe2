package streamops

import (
	"github.com/streamops/streamops/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Workflow             = api.Workflow
	WorkflowPatch        = api.WorkflowPatch
	Task                 = api.Task
	TaskPatch            = api.TaskPatch
	Envelope             = api.Envelope
	Metadata             = api.Metadata
	Status               = api.Status
	Priority             = api.Priority
	TaskType             = api.TaskType
	StepExecutor         = api.StepExecutor
	StepFunc             = api.StepFunc
	NoopExecutor         = api.NoopExecutor
	SimulatedExecutor    = api.SimulatedExecutor
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common constructors.

var (
	NewEnvelope          = api.NewEnvelope
	NewSimulatedExecutor = api.NewSimulatedExecutor
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export status values for convenience.

const (
	StatusPending    = api.StatusPending
	StatusProcessing = api.StatusProcessing
	StatusCompleted  = api.StatusCompleted
	StatusFailed     = api.StatusFailed
)

// Re-export priorities and task types.

const (
	PriorityLow    = api.PriorityLow
	PriorityMedium = api.PriorityMedium
	PriorityHigh   = api.PriorityHigh

	TaskEmailNotification = api.TaskEmailNotification
	TaskDataExport        = api.TaskDataExport
	TaskReportGeneration  = api.TaskReportGeneration
)

// Event types and topics.

const (
	EventWorkflowCreated = api.EventWorkflowCreated
	EventTaskCreated     = api.EventTaskCreated
	TopicWorkflows       = api.TopicWorkflows
	TopicTasks           = api.TopicTasks
)
