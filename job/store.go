package job

import (
	"context"
	"time"

	"github.com/xraph/renderq/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Lane filters by lane. Empty means all lanes.
	Lane Lane
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Lane filters by lane. Empty means all lanes.
	Lane Lane
	// Status filters by job status. Empty means all statuses.
	Status Status
}

// Store defines the persistence contract for jobs. The engine is the only
// consumer; backends must make ClaimJob and Cancel atomic with respect to
// concurrent callers.
type Store interface {
	// CreateJob persists a new job in queued status.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob persists changes to an existing job.
	UpdateJob(ctx context.Context, j *Job) error

	// DeleteJob removes a job by ID.
	DeleteJob(ctx context.Context, jobID id.JobID) error

	// ClaimJob atomically transitions a job from queued to processing on
	// behalf of a worker, provided it is currently eligible (queued and
	// past any backoff delay). It returns false when the job was not
	// claimable — typically because another worker won the race. Losing
	// a claim race is not an error.
	ClaimJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) (bool, error)

	// ListEligible returns up to limit queued jobs in the given lane that
	// are past any backoff delay, ordered by CreatedAt ascending.
	ListEligible(ctx context.Context, lane Lane, limit int) ([]*Job, error)

	// CancelJob atomically applies cancellation: a queued job becomes
	// cancelled immediately; a processing job has CancelRequested set for
	// the worker to honor after the in-flight attempt; a terminal job is
	// returned unchanged. The resulting record is returned in all cases.
	CancelJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// ListJobsByStatus returns jobs matching the given status.
	ListJobsByStatus(ctx context.Context, status Status, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// HeartbeatJob updates the heartbeat timestamp for a processing job,
	// indicating the worker is still alive.
	HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error

	// ReapStaleJobs returns processing jobs whose last heartbeat is older
	// than the given threshold, indicating the worker may have crashed.
	ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*Job, error)

	// RequeueStale atomically re-queues a processing job whose heartbeat
	// is still missing or older than cutoff: the job returns to queued,
	// immediately eligible, with the provider assignment and worker
	// bookkeeping cleared and lastError recorded. The retry count is
	// untouched. It returns false when the job was not re-queued — the
	// worker finished, heartbeated again, or another reaper won — which
	// is not an error. The conditional write is what keeps a slow-but-
	// alive worker's terminal outcome from being overwritten.
	RequeueStale(ctx context.Context, jobID id.JobID, cutoff time.Time, lastError string) (bool, error)
}
