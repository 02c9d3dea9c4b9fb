package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/renderq/job"
)

// Recover returns middleware that recovers from panics in the attempt chain.
// Panics are converted to errors and logged with a stack trace, so a
// misbehaving provider adapter cannot take down a worker.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("generation attempt panicked",
					slog.String("job_id", j.ID.String()),
					slog.String("provider", j.AssignedProvider),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic in attempt for job %s: %v", j.ID, r)
			}
		}()
		return next(ctx)
	}
}
