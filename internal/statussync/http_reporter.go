package statussync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/streamops/streamops/pkg/api"
)

// HTTPReporter reports status changes over the gateway's internal PATCH
// endpoints:
//
//	PATCH {base}/internal/workflows/{id}
//	PATCH {base}/internal/tasks/{id}
//
// Response codes map onto the error taxonomy: 404 is not-found, 400 is
// a rejected patch, and 5xx or a network failure is transient.
type HTTPReporter struct {
	baseURL string
	client  *http.Client
}

// NewHTTPReporter builds a reporter against baseURL
// (e.g. "http://localhost:3000"). A nil client gets a 10s timeout
// default.
func NewHTTPReporter(baseURL string, client *http.Client) *HTTPReporter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPReporter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (r *HTTPReporter) ReportWorkflow(ctx context.Context, id string, patch api.WorkflowPatch) error {
	return r.patch(ctx, "/internal/workflows/"+id, patch, api.ErrWorkflowNotFound)
}

func (r *HTTPReporter) ReportTask(ctx context.Context, id string, patch api.TaskPatch) error {
	return r.patch(ctx, "/internal/tasks/"+id, patch, api.ErrTaskNotFound)
}

func (r *HTTPReporter) patch(ctx context.Context, path string, body any, notFound error) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode status patch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, r.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build status patch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return api.NewTransportError("status patch", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return notFound
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", api.ErrPatchRejected, readErrorBody(resp.Body))
	default:
		return api.NewTransportError("status patch",
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, readErrorBody(resp.Body)))
	}
}

func readErrorBody(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 512))
	if err != nil || len(data) == 0 {
		return "<no body>"
	}
	return string(data)
}
