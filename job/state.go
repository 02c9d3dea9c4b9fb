package job

import (
	"fmt"
	"time"

	"github.com/xraph/renderq"
)

// CanTransition reports whether moving a job from one status to another is
// a valid lifecycle transition. The failed→queued and cancelled→queued
// edges cover explicit manual retry only; callers must additionally check
// the retry budget.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		switch to {
		case StatusProcessing, StatusCancelled:
			return true
		case StatusQueued, StatusCompleted, StatusFailed:
			return false
		}
	case StatusProcessing:
		switch to {
		case StatusCompleted, StatusFailed, StatusQueued, StatusCancelled:
			return true
		case StatusProcessing:
			return false
		}
	case StatusFailed, StatusCancelled:
		// Manual retry re-queues a terminal job.
		return to == StatusQueued
	case StatusCompleted:
		return false
	}
	return false
}

// transition validates and applies a status change.
func (j *Job) transition(to Status) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s → %s", renderq.ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	return nil
}

// MarkProcessing claims the job for a worker. Stores implement the actual
// atomic check-and-set; this helper applies the same mutation to an
// in-memory record. StartedAt is set on the first attempt only.
func (j *Job) MarkProcessing(workerID renderq.ID, now time.Time) error {
	if !j.Eligible(now) {
		return fmt.Errorf("%w: %s not eligible", renderq.ErrInvalidTransition, j.Status)
	}
	if err := j.transition(StatusProcessing); err != nil {
		return err
	}
	j.WorkerID = workerID
	if j.StartedAt == nil {
		n := now
		j.StartedAt = &n
	}
	n := now
	j.HeartbeatAt = &n
	j.UpdatedAt = now
	return nil
}

// MarkCompleted records a successful attempt outcome.
func (j *Job) MarkCompleted(result []byte, usedProvider, usedModel string, costUSD float64, elapsed time.Duration, now time.Time) error {
	if err := j.transition(StatusCompleted); err != nil {
		return err
	}
	j.Result = result
	j.ErrorMessage = ""
	j.UsedProvider = usedProvider
	j.UsedModel = usedModel
	j.GenerationTime = elapsed
	j.CostUSD = costUSD
	n := now
	j.CompletedAt = &n
	j.NextEligibleAt = nil
	j.UpdatedAt = now
	return nil
}

// MarkRequeued returns a failed job to the queue with a future eligibility
// time. The provider assignment is cleared so the next attempt selects
// afresh.
func (j *Job) MarkRequeued(lastError string, nextEligibleAt time.Time, now time.Time) error {
	if err := j.transition(StatusQueued); err != nil {
		return err
	}
	j.LastError = lastError
	j.AssignedProvider = ""
	j.AssignedModel = ""
	j.WorkerID = renderq.ID{}
	j.HeartbeatAt = nil
	n := nextEligibleAt
	j.NextEligibleAt = &n
	j.UpdatedAt = now
	return nil
}

// MarkFailed records terminal failure after retries are exhausted.
func (j *Job) MarkFailed(errorMessage string, now time.Time) error {
	if err := j.transition(StatusFailed); err != nil {
		return err
	}
	j.ErrorMessage = errorMessage
	j.LastError = errorMessage
	j.Result = nil
	n := now
	j.CompletedAt = &n
	j.NextEligibleAt = nil
	j.UpdatedAt = now
	return nil
}

// MarkCancelled records cancellation. Cancelling an already-cancelled job
// is a no-op, not an error.
func (j *Job) MarkCancelled(now time.Time) error {
	if j.Status == StatusCancelled {
		return nil
	}
	if err := j.transition(StatusCancelled); err != nil {
		return err
	}
	j.CancelRequested = false
	n := now
	j.CompletedAt = &n
	j.NextEligibleAt = nil
	j.UpdatedAt = now
	return nil
}

// MarkRetryRequested re-queues a terminally failed or cancelled job on an
// explicit user request. The retry count is preserved, not reset: a job
// whose budget is spent is rejected with ErrRetriesExhausted rather than
// silently re-queued.
func (j *Job) MarkRetryRequested(now time.Time) error {
	switch j.Status {
	case StatusFailed, StatusCancelled:
	case StatusQueued, StatusProcessing, StatusCompleted:
		return fmt.Errorf("%w: cannot retry a %s job", renderq.ErrInvalidTransition, j.Status)
	default:
		return fmt.Errorf("%w: cannot retry a %s job", renderq.ErrInvalidTransition, j.Status)
	}
	if j.RetryCount >= j.MaxRetries {
		return fmt.Errorf("%w: %d/%d attempts used", renderq.ErrRetriesExhausted, j.RetryCount, j.MaxRetries)
	}
	if err := j.transition(StatusQueued); err != nil {
		return err
	}
	j.ErrorMessage = ""
	j.Result = nil
	j.CompletedAt = nil
	j.NextEligibleAt = nil
	j.CancelRequested = false
	j.UpdatedAt = now
	return nil
}
