// Package statussync reports workflow and task status changes back to
// the authoritative store.
//
// The engine never mutates the store directly. Every transition flows
// through a Reporter so that the same engine code runs against an
// in-process store (LocalReporter) or a remote gateway (HTTPReporter).
package statussync

import (
	"context"

	"github.com/streamops/streamops/internal/store"
	"github.com/streamops/streamops/pkg/api"
)

// Reporter applies status patches to the authoritative record.
//
// Implementations classify failures with the shared error taxonomy:
// not-found means the entity was never registered (report and abandon),
// rejected means the patch itself is invalid (never retried), and
// transient means the backend was unreachable (safe to retry).
type Reporter interface {
	ReportWorkflow(ctx context.Context, id string, patch api.WorkflowPatch) error
	ReportTask(ctx context.Context, id string, patch api.TaskPatch) error
}

// LocalReporter applies patches straight to an in-process store. It is
// the reporter wired by the local runtime, where gateway and engine
// share one process.
type LocalReporter struct {
	store store.Store
}

// NewLocalReporter wraps st in a Reporter.
func NewLocalReporter(st store.Store) *LocalReporter {
	return &LocalReporter{store: st}
}

func (r *LocalReporter) ReportWorkflow(ctx context.Context, id string, patch api.WorkflowPatch) error {
	_, err := r.store.UpdateWorkflow(ctx, id, patch)
	return err
}

func (r *LocalReporter) ReportTask(ctx context.Context, id string, patch api.TaskPatch) error {
	_, err := r.store.UpdateTask(ctx, id, patch)
	return err
}
