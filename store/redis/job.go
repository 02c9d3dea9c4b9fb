package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/renderq"
	"github.com/xraph/renderq/id"
	"github.com/xraph/renderq/job"
)

// claimScript atomically transitions a queued, eligible job to processing
// and removes it from its lane queue. Returns 1 when the caller won the
// claim, 0 otherwise.
//
// KEYS[1] = job hash key, KEYS[2] = lane sorted set key
// ARGV[1] = worker ID, ARGV[2] = now RFC3339Nano, ARGV[3] = now unix ms,
// ARGV[4] = job ID
var claimScript = goredis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status ~= 'queued' then
	return 0
end
local eligible = redis.call('HGET', KEYS[1], 'next_eligible_ms')
if eligible and tonumber(eligible) and tonumber(eligible) > tonumber(ARGV[3]) then
	return 0
end
redis.call('HSET', KEYS[1],
	'status', 'processing',
	'worker_id', ARGV[1],
	'heartbeat_at', ARGV[2],
	'heartbeat_ms', ARGV[3],
	'updated_at', ARGV[2])
local started = redis.call('HGET', KEYS[1], 'started_at')
if not started or started == '' then
	redis.call('HSET', KEYS[1], 'started_at', ARGV[2])
end
redis.call('ZREM', KEYS[2], ARGV[4])
return 1
`)

// cancelScript applies cancellation semantics in one atomic step.
// Returns 1 when a queued job was cancelled, 2 when a processing job was
// flagged, 0 when the job is terminal, -1 when it does not exist.
//
// KEYS[1] = job hash key, KEYS[2] = lane sorted set key
// ARGV[1] = now RFC3339Nano, ARGV[2] = job ID
var cancelScript = goredis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
	return -1
end
if status == 'queued' then
	redis.call('HSET', KEYS[1],
		'status', 'cancelled',
		'cancel_requested', '0',
		'next_eligible_at', '',
		'next_eligible_ms', '0',
		'completed_at', ARGV[1],
		'updated_at', ARGV[1])
	redis.call('ZREM', KEYS[2], ARGV[2])
	return 1
end
if status == 'processing' then
	redis.call('HSET', KEYS[1], 'cancel_requested', '1', 'updated_at', ARGV[1])
	return 2
end
return 0
`)

// requeueStaleScript atomically re-queues a processing job whose heartbeat
// is still missing or older than the cutoff. Returns 1 when re-queued, 0
// when the job finished, heartbeated again, or is otherwise not stale.
//
// KEYS[1] = job hash key, KEYS[2] = lane sorted set key
// ARGV[1] = now RFC3339Nano, ARGV[2] = cutoff unix ms, ARGV[3] = job ID,
// ARGV[4] = last error, ARGV[5] = now unix ms
var requeueStaleScript = goredis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status ~= 'processing' then
	return 0
end
local hb = redis.call('HGET', KEYS[1], 'heartbeat_ms')
if hb and tonumber(hb) and tonumber(hb) > 0 and tonumber(hb) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1],
	'status', 'queued',
	'assigned_provider', '',
	'assigned_model', '',
	'worker_id', '',
	'heartbeat_at', '',
	'heartbeat_ms', '0',
	'last_error', ARGV[4],
	'next_eligible_at', ARGV[1],
	'next_eligible_ms', ARGV[5],
	'updated_at', ARGV[1])
redis.call('ZADD', KEYS[2], tonumber(ARGV[5]), ARGV[3])
return 1
`)

// CreateJob stores the job as a Hash and, when queued, adds it to its
// lane's Sorted Set.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	// Check for duplicate.
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("renderq/redis: create check exists: %w", err)
	}
	if exists > 0 {
		return renderq.ErrJobAlreadyExists
	}

	fields := jobToMap(j)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, jobIDsKey, jID)
	if j.Status == job.StatusQueued {
		pipe.ZAdd(ctx, laneKey(string(j.Lane)), goredis.Z{Score: eligibleScore(j), Member: jID})
	}

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("renderq/redis: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJobByKey(ctx, jobKey(jobID.String()))
}

// UpdateJob persists changes to an existing job, keeping the lane queue
// membership in sync with the job's status.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("renderq/redis: update job exists: %w", err)
	}
	if exists == 0 {
		return renderq.ErrJobNotFound
	}

	fields := jobToMap(j)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if j.Status == job.StatusQueued {
		pipe.ZAdd(ctx, laneKey(string(j.Lane)), goredis.Z{Score: eligibleScore(j), Member: jID})
	} else {
		pipe.ZRem(ctx, laneKey(string(j.Lane)), jID)
	}

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("renderq/redis: update job: %w", err)
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()
	key := jobKey(jID)

	// Get lane before deleting to remove from the lane queue.
	lane, err := s.client.HGet(ctx, key, "lane").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return renderq.ErrJobNotFound
		}
		return fmt.Errorf("renderq/redis: delete job get lane: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, jobIDsKey, jID)
	pipe.ZRem(ctx, laneKey(lane), jID)
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("renderq/redis: delete job: %w", err)
	}
	return nil
}

// ClaimJob atomically transitions an eligible queued job to processing
// via a Lua script.
func (s *Store) ClaimJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) (bool, error) {
	jID := jobID.String()
	key := jobKey(jID)

	lane, err := s.client.HGet(ctx, key, "lane").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, renderq.ErrJobNotFound
		}
		return false, fmt.Errorf("renderq/redis: claim get lane: %w", err)
	}

	now := time.Now().UTC()
	res, err := claimScript.Run(ctx, s.client,
		[]string{key, laneKey(lane)},
		workerID.String(),
		now.Format(time.RFC3339Nano),
		now.UnixMilli(),
		jID,
	).Int()
	if err != nil {
		return false, fmt.Errorf("renderq/redis: claim job: %w", err)
	}

	return res == 1, nil
}

// ListEligible returns up to limit queued jobs in the lane whose
// eligibility time has passed, oldest first.
func (s *Store) ListEligible(ctx context.Context, lane job.Lane, limit int) ([]*job.Job, error) {
	nowMs := strconv.FormatInt(time.Now().UTC().UnixMilli(), 10)

	ids, err := s.client.ZRangeByScore(ctx, laneKey(string(lane)), &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   nowMs,
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("renderq/redis: list eligible: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // claimed or deleted between ZRANGEBYSCORE and HGETALL
		}
		if j.Status != job.StatusQueued {
			continue
		}
		jobs = append(jobs, j)
	}

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
	return jobs, nil
}

// CancelJob applies cancellation via a Lua script: queued jobs cancel
// immediately, processing jobs get CancelRequested set, terminal jobs are
// returned unchanged.
func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	jID := jobID.String()
	key := jobKey(jID)

	lane, err := s.client.HGet(ctx, key, "lane").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, renderq.ErrJobNotFound
		}
		return nil, fmt.Errorf("renderq/redis: cancel get lane: %w", err)
	}

	res, err := cancelScript.Run(ctx, s.client,
		[]string{key, laneKey(lane)},
		time.Now().UTC().Format(time.RFC3339Nano),
		jID,
	).Int()
	if err != nil {
		return nil, fmt.Errorf("renderq/redis: cancel job: %w", err)
	}
	if res == -1 {
		return nil, renderq.ErrJobNotFound
	}

	return s.getJobByKey(ctx, key)
}

// ListJobsByStatus returns jobs matching the given status, newest first.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("renderq/redis: list jobs smembers: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // skip missing
		}
		if j.Status != status {
			continue
		}
		if opts.Lane != "" && j.Lane != opts.Lane {
			continue
		}
		jobs = append(jobs, j)
	}

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})

	// Apply offset/limit.
	if opts.Offset > 0 && opts.Offset < len(jobs) {
		jobs = jobs[opts.Offset:]
	} else if opts.Offset >= len(jobs) && opts.Offset > 0 {
		return nil, nil
	}
	if opts.Limit > 0 && opts.Limit < len(jobs) {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("renderq/redis: count smembers: %w", err)
	}

	var count int64
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.Lane != "" && j.Lane != opts.Lane {
			continue
		}
		count++
	}
	return count, nil
}

// HeartbeatJob updates the heartbeat timestamp for a processing job held
// by the given worker.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	key := jobKey(jobID.String())

	vals, err := s.client.HMGet(ctx, key, "status", "worker_id").Result()
	if err != nil {
		return fmt.Errorf("renderq/redis: heartbeat fields: %w", err)
	}
	status, _ := vals[0].(string)
	holder, _ := vals[1].(string)
	if status != string(job.StatusProcessing) || holder != workerID.String() {
		return renderq.ErrJobNotFound
	}

	now := time.Now().UTC()
	_, err = s.client.HSet(ctx, key,
		"heartbeat_at", now.Format(time.RFC3339Nano),
		"heartbeat_ms", strconv.FormatInt(now.UnixMilli(), 10),
		"updated_at", now.Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return fmt.Errorf("renderq/redis: heartbeat job: %w", err)
	}
	return nil
}

// ReapStaleJobs returns processing jobs whose last heartbeat is missing or
// older than the threshold.
func (s *Store) ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*job.Job, error) {
	cutoff := time.Now().UTC().Add(-threshold)

	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("renderq/redis: reap smembers: %w", err)
	}

	var stale []*job.Job
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if j.Status != job.StatusProcessing {
			continue
		}
		if j.HeartbeatAt == nil || j.HeartbeatAt.Before(cutoff) {
			stale = append(stale, j)
		}
	}
	return stale, nil
}

// RequeueStale atomically re-queues a processing job whose heartbeat is
// still stale, via a Lua script so a worker finishing concurrently keeps
// its terminal record.
func (s *Store) RequeueStale(ctx context.Context, jobID id.JobID, cutoff time.Time, lastError string) (bool, error) {
	jID := jobID.String()
	key := jobKey(jID)

	lane, err := s.client.HGet(ctx, key, "lane").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, renderq.ErrJobNotFound
		}
		return false, fmt.Errorf("renderq/redis: requeue get lane: %w", err)
	}

	now := time.Now().UTC()
	res, err := requeueStaleScript.Run(ctx, s.client,
		[]string{key, laneKey(lane)},
		now.Format(time.RFC3339Nano),
		cutoff.UnixMilli(),
		jID,
		lastError,
		now.UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("renderq/redis: requeue stale job: %w", err)
	}

	return res == 1, nil
}

// ── helpers ──

// eligibleScore computes the lane sorted-set score: the millisecond
// timestamp at which the job becomes dispatchable, 0 when immediate.
func eligibleScore(j *job.Job) float64 {
	if j.NextEligibleAt == nil {
		return 0
	}
	return float64(j.NextEligibleAt.UnixMilli())
}

func jobToMap(j *job.Job) map[string]interface{} {
	m := map[string]interface{}{
		"id":                 j.ID.String(),
		"status":             string(j.Status),
		"lane":               string(j.Lane),
		"prompt":             j.Prompt,
		"payload":            string(j.Payload),
		"requested_provider": j.RequestedProvider,
		"requested_model":    j.RequestedModel,
		"max_retries":        strconv.Itoa(j.MaxRetries),
		"retry_count":        strconv.Itoa(j.RetryCount),
		"assigned_provider":  j.AssignedProvider,
		"assigned_model":     j.AssignedModel,
		"result":             string(j.Result),
		"error_message":      j.ErrorMessage,
		"last_error":         j.LastError,
		"used_provider":      j.UsedProvider,
		"used_model":         j.UsedModel,
		"generation_time":    strconv.FormatInt(int64(j.GenerationTime), 10),
		"cost_usd":           strconv.FormatFloat(j.CostUSD, 'f', -1, 64),
		"cancel_requested":   boolField(j.CancelRequested),
		"worker_id":          j.WorkerID.String(),
		"timeout":            strconv.FormatInt(int64(j.Timeout), 10),
		"created_at":         j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":         j.UpdatedAt.Format(time.RFC3339Nano),
	}
	if j.NextEligibleAt != nil {
		m["next_eligible_at"] = j.NextEligibleAt.Format(time.RFC3339Nano)
		m["next_eligible_ms"] = strconv.FormatInt(j.NextEligibleAt.UnixMilli(), 10)
	} else {
		m["next_eligible_at"] = ""
		m["next_eligible_ms"] = "0"
	}
	if j.StartedAt != nil {
		m["started_at"] = j.StartedAt.Format(time.RFC3339Nano)
	}
	if j.CompletedAt != nil {
		m["completed_at"] = j.CompletedAt.Format(time.RFC3339Nano)
	}
	if j.HeartbeatAt != nil {
		m["heartbeat_at"] = j.HeartbeatAt.Format(time.RFC3339Nano)
		m["heartbeat_ms"] = strconv.FormatInt(j.HeartbeatAt.UnixMilli(), 10)
	} else {
		m["heartbeat_at"] = ""
		m["heartbeat_ms"] = "0"
	}
	return m
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("renderq/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, renderq.ErrJobNotFound
	}
	return mapToJob(vals)
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("renderq/redis: parse job id: %w", err)
	}

	maxRetries, _ := strconv.Atoi(m["max_retries"])                      //nolint:errcheck // best-effort parse from trusted Redis data
	retryCount, _ := strconv.Atoi(m["retry_count"])                      //nolint:errcheck // best-effort parse from trusted Redis data
	generationTime, _ := strconv.ParseInt(m["generation_time"], 10, 64)  //nolint:errcheck // best-effort parse from trusted Redis data
	costUSD, _ := strconv.ParseFloat(m["cost_usd"], 64)                  //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64)                 //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])        //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])        //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: renderq.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:                jID,
		Status:            job.Status(m["status"]),
		Lane:              job.Lane(m["lane"]),
		Prompt:            m["prompt"],
		Payload:           []byte(m["payload"]),
		RequestedProvider: m["requested_provider"],
		RequestedModel:    m["requested_model"],
		MaxRetries:        maxRetries,
		RetryCount:        retryCount,
		AssignedProvider:  m["assigned_provider"],
		AssignedModel:     m["assigned_model"],
		Result:            []byte(m["result"]),
		ErrorMessage:      m["error_message"],
		LastError:         m["last_error"],
		UsedProvider:      m["used_provider"],
		UsedModel:         m["used_model"],
		GenerationTime:    time.Duration(generationTime),
		CostUSD:           costUSD,
		CancelRequested:   m["cancel_requested"] == "1",
		Timeout:           time.Duration(timeout),
	}

	if len(j.Payload) == 0 {
		j.Payload = nil
	}
	if len(j.Result) == 0 {
		j.Result = nil
	}

	if wid := m["worker_id"]; wid != "" {
		j.WorkerID, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["next_eligible_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.NextEligibleAt = &t
	}
	if v := m["started_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.StartedAt = &t
	}
	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.CompletedAt = &t
	}
	if v := m["heartbeat_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.HeartbeatAt = &t
	}

	return j, nil
}
