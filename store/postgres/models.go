package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/renderq/health"
	"github.com/xraph/renderq/id"
	"github.com/xraph/renderq/job"
)

// jobColumns is the canonical column list for renderq_jobs. Every SELECT
// uses it so scanJob stays in sync with a single definition.
const jobColumns = `id, status, lane, prompt, payload,
	requested_provider, requested_model, max_retries, retry_count,
	assigned_provider, assigned_model, result, error_message, last_error,
	used_provider, used_model, generation_time, cost_usd,
	next_eligible_at, cancel_requested, worker_id,
	started_at, completed_at, heartbeat_at, timeout,
	created_at, updated_at`

// rowScanner abstracts pgx.Row and pgx.Rows for scanJob.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob reads one renderq_jobs row in jobColumns order.
func scanJob(row rowScanner) (*job.Job, error) {
	var (
		j              job.Job
		rawID          string
		rawWorkerID    *string
		generationTime int64
		timeout        int64
	)

	err := row.Scan(
		&rawID, &j.Status, &j.Lane, &j.Prompt, &j.Payload,
		&j.RequestedProvider, &j.RequestedModel, &j.MaxRetries, &j.RetryCount,
		&j.AssignedProvider, &j.AssignedModel, &j.Result, &j.ErrorMessage, &j.LastError,
		&j.UsedProvider, &j.UsedModel, &generationTime, &j.CostUSD,
		&j.NextEligibleAt, &j.CancelRequested, &rawWorkerID,
		&j.StartedAt, &j.CompletedAt, &j.HeartbeatAt, &timeout,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.ID, err = id.ParseJobID(rawID)
	if err != nil {
		return nil, fmt.Errorf("renderq/postgres: invalid job id %q: %w", rawID, err)
	}
	if rawWorkerID != nil && *rawWorkerID != "" {
		j.WorkerID, err = id.ParseWorkerID(*rawWorkerID)
		if err != nil {
			return nil, fmt.Errorf("renderq/postgres: invalid worker id %q: %w", *rawWorkerID, err)
		}
	}
	j.GenerationTime = time.Duration(generationTime)
	j.Timeout = time.Duration(timeout)

	return &j, nil
}

// collectJobs drains rows into a slice, closing them when done.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// nullableWorkerID converts a worker ID to its stored representation,
// NULL when unset.
func nullableWorkerID(w id.WorkerID) *string {
	if w.IsNil() {
		return nil
	}
	s := w.String()
	return &s
}

// scanHealthRecord reads one renderq_provider_health row.
func scanHealthRecord(row rowScanner) (*health.Record, error) {
	var (
		rec             health.Record
		avgResponseTime int64
		lastCheckedAt   *time.Time
	)

	err := row.Scan(
		&rec.Provider, &rec.Status, &rec.ConsecutiveFailures,
		&avgResponseTime, &lastCheckedAt, &rec.CostPerRequest,
	)
	if err != nil {
		return nil, err
	}

	rec.AvgResponseTime = time.Duration(avgResponseTime)
	if lastCheckedAt != nil {
		rec.LastCheckedAt = *lastCheckedAt
	}

	return &rec, nil
}
