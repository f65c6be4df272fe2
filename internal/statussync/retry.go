package statussync

import (
	"context"
	"log/slog"
	"time"

	"github.com/streamops/streamops/pkg/api"
)

// RetryPolicy bounds the retry loop of a RetryingReporter.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	// <= 0 is treated as 1 (no retries).
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay; if <= 0, there is no cap.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the delay each attempt. Values <= 0
	// default to 2.0.
	BackoffMultiplier float64
}

// DefaultRetryPolicy retries transient report failures three times with
// 100ms initial backoff capped at 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryingReporter wraps another Reporter and retries transient
// failures with exponential backoff. Not-found and rejected errors are
// returned immediately: retrying cannot fix either.
type RetryingReporter struct {
	next   Reporter
	policy RetryPolicy
	logger *slog.Logger
}

// NewRetryingReporter wraps next. A nil logger gets slog.Default.
func NewRetryingReporter(next Reporter, policy RetryPolicy, logger *slog.Logger) *RetryingReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingReporter{next: next, policy: policy, logger: logger}
}

func (r *RetryingReporter) ReportWorkflow(ctx context.Context, id string, patch api.WorkflowPatch) error {
	return r.retry(ctx, "workflow", id, func(ctx context.Context) error {
		return r.next.ReportWorkflow(ctx, id, patch)
	})
}

func (r *RetryingReporter) ReportTask(ctx context.Context, id string, patch api.TaskPatch) error {
	return r.retry(ctx, "task", id, func(ctx context.Context) error {
		return r.next.ReportTask(ctx, id, patch)
	})
}

func (r *RetryingReporter) retry(ctx context.Context, kind, id string, fn func(context.Context) error) error {
	maxAttempts := r.policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	backoff := r.policy.InitialBackoff
	multiplier := r.policy.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !api.IsTransient(err) {
			return err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		r.logger.Warn("status report failed, retrying",
			slog.String("kind", kind),
			slog.String("id", id),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.Any("error", err))

		if backoff > 0 {
			delay := backoff
			if r.policy.MaxBackoff > 0 && delay > r.policy.MaxBackoff {
				delay = r.policy.MaxBackoff
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}

			next := time.Duration(float64(backoff) * multiplier)
			if r.policy.MaxBackoff > 0 && next > r.policy.MaxBackoff {
				backoff = r.policy.MaxBackoff
			} else {
				backoff = next
			}
		}
	}

	return lastErr
}
