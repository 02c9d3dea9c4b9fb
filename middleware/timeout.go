package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/renderq/job"
)

// Timeout returns middleware that enforces a per-attempt deadline.
// A job's own Timeout takes precedence; otherwise fallback applies.
// When the deadline is exceeded the context is cancelled and the
// provider call should return context.DeadlineExceeded.
func Timeout(logger *slog.Logger, fallback time.Duration) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		timeout := fallback
		if j.Timeout > 0 {
			timeout = j.Timeout
		}
		if timeout > 0 {
			logger.Debug("attempt deadline set",
				slog.String("job_id", j.ID.String()),
				slog.Duration("timeout", timeout),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return next(ctx)
	}
}
