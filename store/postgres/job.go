package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/renderq"
	"github.com/xraph/renderq/id"
	"github.com/xraph/renderq/job"
)

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	query := `
		INSERT INTO renderq_jobs (
			id, status, lane, prompt, payload,
			requested_provider, requested_model, max_retries, retry_count,
			assigned_provider, assigned_model, result, error_message, last_error,
			used_provider, used_model, generation_time, cost_usd,
			next_eligible_at, cancel_requested, worker_id,
			started_at, completed_at, heartbeat_at, timeout,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14,
			$15, $16, $17, $18,
			$19, $20, $21,
			$22, $23, $24, $25,
			$26, $27
		)`

	_, err := s.pool.Exec(ctx, query,
		j.ID.String(), j.Status, j.Lane, j.Prompt, j.Payload,
		j.RequestedProvider, j.RequestedModel, j.MaxRetries, j.RetryCount,
		j.AssignedProvider, j.AssignedModel, j.Result, j.ErrorMessage, j.LastError,
		j.UsedProvider, j.UsedModel, int64(j.GenerationTime), j.CostUSD,
		j.NextEligibleAt, j.CancelRequested, nullableWorkerID(j.WorkerID),
		j.StartedAt, j.CompletedAt, j.HeartbeatAt, int64(j.Timeout),
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return renderq.ErrJobAlreadyExists
		}
		return fmt.Errorf("renderq/postgres: create job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM renderq_jobs WHERE id = $1`

	j, err := scanJob(s.pool.QueryRow(ctx, query, jobID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, renderq.ErrJobNotFound
		}
		return nil, fmt.Errorf("renderq/postgres: get job: %w", err)
	}

	return j, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	query := `
		UPDATE renderq_jobs SET
			status = $2, lane = $3, prompt = $4, payload = $5,
			requested_provider = $6, requested_model = $7,
			max_retries = $8, retry_count = $9,
			assigned_provider = $10, assigned_model = $11,
			result = $12, error_message = $13, last_error = $14,
			used_provider = $15, used_model = $16,
			generation_time = $17, cost_usd = $18,
			next_eligible_at = $19, cancel_requested = $20, worker_id = $21,
			started_at = $22, completed_at = $23, heartbeat_at = $24,
			timeout = $25, updated_at = $26
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		j.ID.String(),
		j.Status, j.Lane, j.Prompt, j.Payload,
		j.RequestedProvider, j.RequestedModel,
		j.MaxRetries, j.RetryCount,
		j.AssignedProvider, j.AssignedModel,
		j.Result, j.ErrorMessage, j.LastError,
		j.UsedProvider, j.UsedModel,
		int64(j.GenerationTime), j.CostUSD,
		j.NextEligibleAt, j.CancelRequested, nullableWorkerID(j.WorkerID),
		j.StartedAt, j.CompletedAt, j.HeartbeatAt,
		int64(j.Timeout), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("renderq/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return renderq.ErrJobNotFound
	}

	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM renderq_jobs WHERE id = $1`, jobID.String())
	if err != nil {
		return fmt.Errorf("renderq/postgres: delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return renderq.ErrJobNotFound
	}

	return nil
}

// ClaimJob atomically transitions an eligible queued job to processing.
// The conditional UPDATE is the whole claim protocol: whichever worker's
// statement matches the row first wins, everyone else affects zero rows.
func (s *Store) ClaimJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) (bool, error) {
	query := `
		UPDATE renderq_jobs SET
			status = 'processing',
			worker_id = $2,
			started_at = COALESCE(started_at, NOW()),
			heartbeat_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
		  AND status = 'queued'
		  AND (next_eligible_at IS NULL OR next_eligible_at <= NOW())`

	tag, err := s.pool.Exec(ctx, query, jobID.String(), workerID.String())
	if err != nil {
		return false, fmt.Errorf("renderq/postgres: claim job: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ListEligible returns up to limit queued jobs in the lane that are past
// any backoff delay, oldest first.
func (s *Store) ListEligible(ctx context.Context, lane job.Lane, limit int) ([]*job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM renderq_jobs
		WHERE status = 'queued'
		  AND lane = $1
		  AND (next_eligible_at IS NULL OR next_eligible_at <= NOW())
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, lane, limit)
	if err != nil {
		return nil, fmt.Errorf("renderq/postgres: list eligible: %w", err)
	}

	return collectJobs(rows)
}

// CancelJob applies cancellation inside one transaction: queued jobs
// cancel immediately, processing jobs get CancelRequested set, terminal
// jobs are returned unchanged.
func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("renderq/postgres: begin cancel: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE renderq_jobs SET
			status = 'cancelled',
			cancel_requested = FALSE,
			next_eligible_at = NULL,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = 'queued'`,
		jobID.String())
	if err != nil {
		return nil, fmt.Errorf("renderq/postgres: cancel queued job: %w", err)
	}

	if tag.RowsAffected() == 0 {
		_, err = tx.Exec(ctx, `
			UPDATE renderq_jobs SET
				cancel_requested = TRUE,
				updated_at = NOW()
			WHERE id = $1 AND status = 'processing'`,
			jobID.String())
		if err != nil {
			return nil, fmt.Errorf("renderq/postgres: flag processing job: %w", err)
		}
	}

	j, err := scanJob(tx.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM renderq_jobs WHERE id = $1`,
		jobID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, renderq.ErrJobNotFound
		}
		return nil, fmt.Errorf("renderq/postgres: reload cancelled job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("renderq/postgres: commit cancel: %w", err)
	}

	return j, nil
}

// ListJobsByStatus returns jobs matching the status, newest first.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM renderq_jobs WHERE status = $1`
	args := []any{status}
	argIdx := 2

	if opts.Lane != "" {
		query += fmt.Sprintf(" AND lane = $%d", argIdx)
		args = append(args, opts.Lane)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("renderq/postgres: list jobs by status: %w", err)
	}

	return collectJobs(rows)
}

// CountJobs returns the number of jobs matching the options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM renderq_jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Lane != "" {
		query += fmt.Sprintf(" AND lane = $%d", argIdx)
		args = append(args, opts.Lane)
		argIdx++
	}
	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, opts.Status)
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("renderq/postgres: count jobs: %w", err)
	}

	return count, nil
}

// HeartbeatJob updates the heartbeat timestamp for a processing job held
// by the given worker.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE renderq_jobs SET
			heartbeat_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = 'processing' AND worker_id = $2`,
		jobID.String(), workerID.String())
	if err != nil {
		return fmt.Errorf("renderq/postgres: heartbeat job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return renderq.ErrJobNotFound
	}

	return nil
}

// ReapStaleJobs returns processing jobs whose heartbeat is older than the
// threshold.
func (s *Store) ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*job.Job, error) {
	cutoff := time.Now().Add(-threshold)

	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM renderq_jobs
		WHERE status = 'processing'
		  AND (heartbeat_at IS NULL OR heartbeat_at < $1)`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("renderq/postgres: reap stale jobs: %w", err)
	}

	return collectJobs(rows)
}

// RequeueStale atomically re-queues a processing job whose heartbeat is
// still stale. Like ClaimJob, the conditional UPDATE settles the race: a
// worker that completed the job in the meantime affects the condition and
// the reaper's write matches zero rows.
func (s *Store) RequeueStale(ctx context.Context, jobID id.JobID, cutoff time.Time, lastError string) (bool, error) {
	query := `
		UPDATE renderq_jobs SET
			status = 'queued',
			assigned_provider = '',
			assigned_model = '',
			worker_id = NULL,
			heartbeat_at = NULL,
			last_error = $3,
			next_eligible_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
		  AND status = 'processing'
		  AND (heartbeat_at IS NULL OR heartbeat_at < $2)`

	tag, err := s.pool.Exec(ctx, query, jobID.String(), cutoff, lastError)
	if err != nil {
		return false, fmt.Errorf("renderq/postgres: requeue stale job: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}
