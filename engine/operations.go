package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/renderq"
	"github.com/xraph/renderq/health"
	"github.com/xraph/renderq/id"
	"github.com/xraph/renderq/job"
	"github.com/xraph/renderq/provider"
)

// probeTimeout bounds a single on-demand provider probe. Probes are meant
// to be cheap; a provider that cannot answer in this window is failing.
const probeTimeout = 30 * time.Second

// Stats summarizes the job population.
type Stats struct {
	Total    int64                `json:"total"`
	ByStatus map[job.Status]int64 `json:"by_status"`
}

// ──────────────────────────────────────────────────
// Job operations
// ──────────────────────────────────────────────────

// Submit creates a queued job for the given prompt.
func (eng *Engine) Submit(ctx context.Context, prompt string, opts ...job.Option) (*job.Job, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, renderq.ErrEmptyPrompt
	}

	jobOpts := job.DefaultOptions()
	for _, opt := range opts {
		opt(&jobOpts)
	}
	if !jobOpts.Lane.Valid() {
		return nil, renderq.ErrInvalidLane
	}

	j := &job.Job{
		Entity:            renderq.NewEntity(),
		ID:                id.NewJobID(),
		Status:            job.StatusQueued,
		Lane:              jobOpts.Lane,
		Prompt:            prompt,
		Payload:           jobOpts.Payload,
		RequestedProvider: jobOpts.Provider,
		RequestedModel:    jobOpts.Model,
		MaxRetries:        jobOpts.MaxRetries,
		Timeout:           jobOpts.Timeout,
	}

	if err := eng.jobStore.CreateJob(ctx, j); err != nil {
		return nil, err
	}

	eng.extensions.EmitJobSubmitted(ctx, j)
	return j, nil
}

// GetJob retrieves a job by ID.
func (eng *Engine) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return eng.jobStore.GetJob(ctx, jobID)
}

// ListJobs returns jobs in the given status.
func (eng *Engine) ListJobs(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	return eng.jobStore.ListJobsByStatus(ctx, status, opts)
}

// Cancel requests cancellation of a job. A queued job is cancelled
// immediately; a processing job is flagged and the worker honors the
// request after the in-flight attempt; a terminal job is unchanged.
func (eng *Engine) Cancel(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	before, err := eng.jobStore.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	j, err := eng.jobStore.CancelJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if j.Status == job.StatusCancelled && before.Status != job.StatusCancelled {
		eng.extensions.EmitJobCancelled(ctx, j)
	}
	return j, nil
}

// Retry re-queues a terminally failed or cancelled job on explicit user
// request. The retry budget is preserved: a job with no attempts left is
// rejected with ErrRetriesExhausted.
func (eng *Engine) Retry(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := eng.jobStore.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if markErr := j.MarkRetryRequested(now); markErr != nil {
		return nil, markErr
	}

	if updateErr := eng.jobStore.UpdateJob(ctx, j); updateErr != nil {
		return nil, updateErr
	}

	eng.extensions.EmitJobRetrying(ctx, j, j.RetryCount, now)
	return j, nil
}

// JobStats returns aggregate counts across all job statuses.
func (eng *Engine) JobStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: make(map[job.Status]int64)}
	for _, status := range []job.Status{
		job.StatusQueued, job.StatusProcessing,
		job.StatusCompleted, job.StatusFailed, job.StatusCancelled,
	} {
		n, err := eng.jobStore.CountJobs(ctx, job.CountOpts{Status: status})
		if err != nil {
			return nil, err
		}
		stats.ByStatus[status] = n
		stats.Total += n
	}
	return stats, nil
}

// ──────────────────────────────────────────────────
// Provider operations
// ──────────────────────────────────────────────────

// RegisterProvider adds a provider to the registry and seeds its health
// record so the selector sees it immediately.
func (eng *Engine) RegisterProvider(p provider.Provider, opts ...provider.RegisterOption) error {
	if err := eng.providers.Register(p, opts...); err != nil {
		return err
	}
	eng.tracker.Seed(p.Name(), eng.providers.Cost(p.Name()))
	return nil
}

// ProviderHealth returns the live health records for all known providers.
func (eng *Engine) ProviderHealth() []health.Record {
	return eng.tracker.List()
}

// TestProvider runs one on-demand probe against a provider and feeds the
// outcome into the health tracker exactly like a generation attempt.
// The returned record reflects the post-probe state; a failing probe is
// not an error, it is a recorded outcome.
func (eng *Engine) TestProvider(ctx context.Context, name string) (health.Record, error) {
	p, ok := eng.providers.Get(name)
	if !ok {
		return health.Record{}, renderq.ErrProviderNotFound
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	probeErr := p.Probe(probeCtx)
	elapsed := time.Since(start)

	rec := eng.tracker.RecordOutcome(ctx, name, probeErr == nil, elapsed, time.Now().UTC())
	eng.extensions.EmitProviderProbed(ctx, name, rec)
	return rec, nil
}

// ProbeAll probes every registered provider concurrently and returns the
// resulting health records keyed by provider name.
func (eng *Engine) ProbeAll(ctx context.Context) (map[string]health.Record, error) {
	names := eng.providers.Names()

	var mu sync.Mutex
	results := make(map[string]health.Record, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			rec, err := eng.TestProvider(gctx, name)
			if err != nil {
				return err
			}
			mu.Lock()
			results[name] = rec
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start begins job processing by starting the worker pool.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.d.Start(ctx)
}

// Stop gracefully shuts down the engine.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.d.Stop(ctx)
}
