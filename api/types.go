package api

import (
	"encoding/json"

	"github.com/xraph/renderq/job"
)

// SubmitJobRequest is the body for POST /v1/jobs.
type SubmitJobRequest struct {
	// Prompt is the generation prompt. Required.
	Prompt string `json:"prompt"`
	// Lane is the priority lane: high, default, or low. Defaults to default.
	Lane string `json:"lane,omitempty"`
	// Provider/Model are optional routing hints.
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	// MaxRetries overrides the default retry budget when > 0.
	MaxRetries int `json:"max_retries,omitempty"`
	// TimeoutSeconds overrides the engine-wide provider timeout when > 0.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
	// Payload is an opaque option bag stored with the job.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ListJobsRequest is the query for GET /v1/jobs.
type ListJobsRequest struct {
	Status string `json:"status" query:"status"`
	Lane   string `json:"lane,omitempty" query:"lane"`
	Limit  int    `json:"limit,omitempty" query:"limit"`
	Offset int    `json:"offset,omitempty" query:"offset"`
}

// GetJobRequest is the (empty) request for GET /v1/jobs/:jobId.
type GetJobRequest struct{}

// CancelJobRequest is the (empty) request for POST /v1/jobs/:jobId/cancel.
type CancelJobRequest struct{}

// RetryJobRequest is the (empty) request for POST /v1/jobs/:jobId/retry.
type RetryJobRequest struct{}

// ProbeProviderRequest is the (empty) request for POST /v1/providers/:name/probe.
type ProbeProviderRequest struct{}

// StatsResponse is the body for GET /v1/stats.
type StatsResponse struct {
	Total    int64                `json:"total"`
	ByStatus map[job.Status]int64 `json:"by_status"`
}

// defaultLimit caps unbounded list queries.
func defaultLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}
