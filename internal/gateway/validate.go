package gateway

import (
	"fmt"

	"github.com/streamops/streamops/pkg/api"
)

const (
	minNameLen = 3
	maxNameLen = 100
	minSteps   = 1
	maxSteps   = 10
)

func validateCreateWorkflow(in CreateWorkflowInput) error {
	fields := map[string]string{}

	if in.Name == "" {
		fields["name"] = "name is required"
	} else if len(in.Name) < minNameLen || len(in.Name) > maxNameLen {
		fields["name"] = fmt.Sprintf("name must be between %d and %d characters", minNameLen, maxNameLen)
	}

	if len(in.Steps) < minSteps || len(in.Steps) > maxSteps {
		fields["steps"] = fmt.Sprintf("steps must contain between %d and %d items", minSteps, maxSteps)
	} else {
		for _, step := range in.Steps {
			if step == "" {
				fields["steps"] = "all steps must be non-empty strings"
				break
			}
		}
	}

	if in.Priority != "" && !in.Priority.IsValid() {
		fields["priority"] = "priority must be one of: low, medium, high"
	}

	if len(fields) > 0 {
		return api.NewValidationError(fields)
	}
	return nil
}

func validateCreateTask(in CreateTaskInput) error {
	fields := map[string]string{}

	if in.Type == "" {
		fields["type"] = "type is required"
	} else if !in.Type.IsValid() {
		fields["type"] = "type must be one of: email_notification, data_export, report_generation"
	}

	if in.Data == nil {
		fields["data"] = "data is required and must be an object"
	}

	if len(fields) > 0 {
		return api.NewValidationError(fields)
	}
	return nil
}
