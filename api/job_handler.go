package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/renderq"
	"github.com/xraph/renderq/id"
	"github.com/xraph/renderq/job"
)

func (a *API) submitJob(ctx forge.Context, req *SubmitJobRequest) (*job.Job, error) {
	opts := []job.Option{}
	if req.Lane != "" {
		opts = append(opts, job.WithLane(job.Lane(req.Lane)))
	}
	if req.Provider != "" {
		opts = append(opts, job.WithProvider(req.Provider))
	}
	if req.Model != "" {
		opts = append(opts, job.WithModel(req.Model))
	}
	if req.MaxRetries > 0 {
		opts = append(opts, job.WithMaxRetries(req.MaxRetries))
	}
	if req.TimeoutSeconds > 0 {
		opts = append(opts, job.WithTimeout(time.Duration(req.TimeoutSeconds)*time.Second))
	}
	if len(req.Payload) > 0 {
		opts = append(opts, job.WithPayload(req.Payload))
	}

	j, err := a.eng.Submit(ctx.Context(), req.Prompt, opts...)
	if err != nil {
		return nil, mapStoreError(err)
	}

	return j, ctx.JSON(http.StatusCreated, j)
}

func (a *API) listJobs(ctx forge.Context, req *ListJobsRequest) ([]*job.Job, error) {
	status := job.Status(req.Status)
	if status == "" {
		status = job.StatusQueued
	}
	if !status.Valid() {
		return nil, forge.BadRequest(fmt.Sprintf("unknown status: %s", req.Status))
	}

	jobs, err := a.eng.ListJobs(ctx.Context(), status, job.ListOpts{
		Limit:  defaultLimit(req.Limit),
		Offset: req.Offset,
		Lane:   job.Lane(req.Lane),
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	return jobs, ctx.JSON(http.StatusOK, jobs)
}

func (a *API) getJob(ctx forge.Context, _ *GetJobRequest) (*job.Job, error) {
	jobID, err := id.ParseJobID(ctx.Param("jobId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid job ID: %v", err))
	}

	j, err := a.eng.GetJob(ctx.Context(), jobID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	return j, ctx.JSON(http.StatusOK, j)
}

func (a *API) cancelJob(ctx forge.Context, _ *CancelJobRequest) (*job.Job, error) {
	jobID, err := id.ParseJobID(ctx.Param("jobId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid job ID: %v", err))
	}

	j, err := a.eng.Cancel(ctx.Context(), jobID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	return j, ctx.JSON(http.StatusOK, j)
}

func (a *API) retryJob(ctx forge.Context, _ *RetryJobRequest) (*job.Job, error) {
	jobID, err := id.ParseJobID(ctx.Param("jobId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid job ID: %v", err))
	}

	j, err := a.eng.Retry(ctx.Context(), jobID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	return j, ctx.JSON(http.StatusOK, j)
}

// mapStoreError converts renderq sentinel errors to forge HTTP errors.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return forge.NotFound(err.Error())
	}
	if isBadRequest(err) {
		return forge.BadRequest(err.Error())
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, renderq.ErrJobNotFound) ||
		errors.Is(err, renderq.ErrProviderNotFound) ||
		errors.Is(err, renderq.ErrHealthNotFound)
}

func isBadRequest(err error) bool {
	return errors.Is(err, renderq.ErrEmptyPrompt) ||
		errors.Is(err, renderq.ErrInvalidLane) ||
		errors.Is(err, renderq.ErrInvalidTransition) ||
		errors.Is(err, renderq.ErrRetriesExhausted)
}
