package job

import (
	"time"

	"github.com/xraph/renderq"
	"github.com/xraph/renderq/id"
)

// Status is the lifecycle status of a job. It is a closed enumeration:
// every transition site switches exhaustively over it, so adding a status
// is a compile-time-checked change.
type Status string

const (
	// StatusQueued means the job is waiting for a worker, or waiting out
	// a backoff delay after a failed attempt.
	StatusQueued Status = "queued"
	// StatusProcessing means exactly one worker holds the job and is
	// executing an attempt.
	StatusProcessing Status = "processing"
	// StatusCompleted means a provider produced a result. Terminal.
	StatusCompleted Status = "completed"
	// StatusFailed means retries are exhausted. Terminal except for an
	// explicit manual retry.
	StatusFailed Status = "failed"
	// StatusCancelled means the job was cancelled before completing.
	// Terminal except for an explicit manual retry.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	case StatusQueued, StatusProcessing:
		return false
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Lane is a priority bucket governing dispatch order. Higher lanes may
// starve lower ones by design; within a lane jobs dispatch oldest-first.
type Lane string

const (
	LaneHigh    Lane = "high"
	LaneDefault Lane = "default"
	LaneLow     Lane = "low"
)

// Lanes returns all lanes in dispatch order.
func Lanes() []Lane {
	return []Lane{LaneHigh, LaneDefault, LaneLow}
}

// Valid reports whether l is a known lane.
func (l Lane) Valid() bool {
	switch l {
	case LaneHigh, LaneDefault, LaneLow:
		return true
	}
	return false
}

// Job represents one video-generation request tracked through a bounded
// lifecycle.
//
// Ownership: during the active lifecycle the dispatcher is the only writer
// of Status, AssignedProvider, and RetryCount; the store is the durable
// owner of the record.
type Job struct {
	renderq.Entity

	ID     id.JobID `json:"id"`
	Status Status   `json:"status"`
	Lane   Lane     `json:"lane"`

	// Prompt is the generation prompt. Payload is an opaque option bag the
	// engine stores and returns but never inspects.
	Prompt  string `json:"prompt"`
	Payload []byte `json:"payload,omitempty"`

	// RequestedProvider/RequestedModel are optional routing hints.
	RequestedProvider string `json:"requested_provider,omitempty"`
	RequestedModel    string `json:"requested_model,omitempty"`

	// Retry budget. MaxRetries is immutable after creation and
	// RetryCount never exceeds it.
	MaxRetries int `json:"max_retries"`
	RetryCount int `json:"retry_count"`

	// AssignedProvider/AssignedModel are set when a provider is selected
	// for an attempt and cleared when the job is re-queued.
	AssignedProvider string `json:"assigned_provider,omitempty"`
	AssignedModel    string `json:"assigned_model,omitempty"`

	// Outcome. Result and ErrorMessage are mutually exclusive and set only
	// on terminal success/failure. LastError records the most recent
	// attempt failure for diagnostics even while retries remain.
	Result         []byte        `json:"result,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
	UsedProvider   string        `json:"used_provider,omitempty"`
	UsedModel      string        `json:"used_model,omitempty"`
	GenerationTime time.Duration `json:"generation_time,omitempty"`
	CostUSD        float64       `json:"cost_usd,omitempty"`

	// NextEligibleAt delays dispatch for backoff. Nil means immediately
	// eligible.
	NextEligibleAt *time.Time `json:"next_eligible_at,omitempty"`

	// CancelRequested marks advisory cancellation intent for a job whose
	// in-flight attempt cannot be preempted. The worker honors it after
	// the attempt completes.
	CancelRequested bool `json:"cancel_requested,omitempty"`

	// Worker bookkeeping.
	WorkerID    id.WorkerID `json:"worker_id,omitempty"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	HeartbeatAt *time.Time  `json:"heartbeat_at,omitempty"`

	// Timeout overrides the engine-wide provider call timeout when > 0.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Eligible reports whether the job may be dispatched at the given time:
// it must be queued and past any backoff delay.
func (j *Job) Eligible(now time.Time) bool {
	if j.Status != StatusQueued {
		return false
	}
	return j.NextEligibleAt == nil || !j.NextEligibleAt.After(now)
}
