package api

import (
	stderrors "errors"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to the error taxonomy. Handlers and tests match on
// these rather than on message strings.
const (
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodeWorkflowNotFound     = "WORKFLOW_NOT_FOUND"
	ErrCodeTaskNotFound         = "TASK_NOT_FOUND"
	ErrCodeWorkflowExists       = "WORKFLOW_EXISTS"
	ErrCodeTaskExists           = "TASK_EXISTS"
	ErrCodeBusNotConnected      = "BUS_NOT_CONNECTED"
	ErrCodeTransportUnavailable = "TRANSPORT_UNAVAILABLE"
	ErrCodePatchRejected        = "PATCH_REJECTED"
	ErrCodeStepFailed           = "STEP_FAILED"
	ErrCodeStepTimeout          = "STEP_TIMEOUT"
)

var (
	// ErrWorkflowNotFound is returned when a workflow id is unknown.
	ErrWorkflowNotFound = goerrors.New("workflow not found", goerrors.CategoryBadInput).
				WithTextCode(ErrCodeWorkflowNotFound)

	// ErrTaskNotFound is returned when a task id is unknown.
	ErrTaskNotFound = goerrors.New("task not found", goerrors.CategoryBadInput).
			WithTextCode(ErrCodeTaskNotFound)

	// ErrWorkflowExists is returned on a duplicate-id create.
	ErrWorkflowExists = goerrors.New("workflow already exists", goerrors.CategoryConflict).
				WithTextCode(ErrCodeWorkflowExists)

	// ErrTaskExists is returned on a duplicate-id create.
	ErrTaskExists = goerrors.New("task already exists", goerrors.CategoryConflict).
			WithTextCode(ErrCodeTaskExists)

	// ErrNotConnected is returned when publishing before Connect.
	ErrNotConnected = goerrors.New("bus producer not connected", goerrors.CategoryExternal).
			WithTextCode(ErrCodeBusNotConnected)

	// ErrTransportUnavailable marks transient publish/consume/report
	// failures expected to self-heal. Callers retry with bounded backoff.
	ErrTransportUnavailable = goerrors.New("transport unavailable", goerrors.CategoryExternal).
				WithTextCode(ErrCodeTransportUnavailable)

	// ErrPatchRejected marks a malformed status patch. Non-retryable; a
	// programming error on the reporting side.
	ErrPatchRejected = goerrors.New("status patch rejected", goerrors.CategoryBadInput).
				WithTextCode(ErrCodePatchRejected)
)

// NewValidationError builds a validation failure carrying per-field
// details in metadata. Rejected before any event is built.
func NewValidationError(fields map[string]string) *goerrors.Error {
	meta := make(map[string]any, len(fields))
	for k, v := range fields {
		meta[k] = v
	}
	return goerrors.New("validation failed", goerrors.CategoryValidation).
		WithTextCode(ErrCodeValidationFailed).
		WithMetadata(map[string]any{"fields": meta})
}

// NewStepFailure wraps a business-logic failure inside a step. Always
// terminal for the workflow; the message is captured verbatim in the
// record's error field.
func NewStepFailure(step string, cause error) *goerrors.Error {
	return goerrors.Wrap(cause, goerrors.CategoryHandler, "step "+step+" failed").
		WithTextCode(ErrCodeStepFailed).
		WithMetadata(map[string]any{"step": step})
}

// NewStepTimeout marks a step that exceeded its per-step deadline.
func NewStepTimeout(step string, cause error) *goerrors.Error {
	return goerrors.Wrap(cause, goerrors.CategoryHandler, "step "+step+" timed out").
		WithTextCode(ErrCodeStepTimeout).
		WithMetadata(map[string]any{"step": step})
}

// NewTransportError wraps a transient transport failure (publish,
// consume, report) after the transport's own retry budget is exhausted.
func NewTransportError(op string, cause error) *goerrors.Error {
	return goerrors.Wrap(cause, goerrors.CategoryExternal, op+" failed").
		WithTextCode(ErrCodeTransportUnavailable)
}

// ErrorCode extracts the text code from err, or "" when err does not
// carry one.
func ErrorCode(err error) string {
	var ge *goerrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// ValidationFields extracts the per-field details from a validation
// error, or nil when err carries none.
func ValidationFields(err error) map[string]string {
	var ge *goerrors.Error
	if !stderrors.As(err, &ge) {
		return nil
	}
	meta, ok := ge.Metadata["fields"].(map[string]any)
	if !ok {
		return nil
	}
	fields := make(map[string]string, len(meta))
	for k, v := range meta {
		if s, ok := v.(string); ok {
			fields[k] = s
		}
	}
	return fields
}

// IsNotFound reports whether err marks an unknown workflow or task id.
func IsNotFound(err error) bool {
	code := ErrorCode(err)
	return code == ErrCodeWorkflowNotFound || code == ErrCodeTaskNotFound
}

// IsConflict reports whether err marks a duplicate-identity create.
func IsConflict(err error) bool {
	code := ErrorCode(err)
	return code == ErrCodeWorkflowExists || code == ErrCodeTaskExists
}

// IsValidation reports whether err marks malformed creation input.
func IsValidation(err error) bool {
	return ErrorCode(err) == ErrCodeValidationFailed
}

// IsTransient reports whether err is a transport failure worth retrying.
func IsTransient(err error) bool {
	return ErrorCode(err) == ErrCodeTransportUnavailable
}

// IsRejected reports whether err marks a malformed, non-retryable patch.
func IsRejected(err error) bool {
	return ErrorCode(err) == ErrCodePatchRejected
}
