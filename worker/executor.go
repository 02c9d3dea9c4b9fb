// Package worker provides the attempt execution engine — an Executor that
// selects a provider and calls it through middleware, and a Pool that
// manages concurrent worker goroutines claiming eligible jobs.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/renderq/backoff"
	"github.com/xraph/renderq/ext"
	"github.com/xraph/renderq/health"
	"github.com/xraph/renderq/job"
	"github.com/xraph/renderq/middleware"
	"github.com/xraph/renderq/provider"
	"github.com/xraph/renderq/selector"
)

// persistAttempts bounds the retry loop for outcome writes. An attempt
// outcome is never dropped silently: the loop retries transient store
// errors before giving up loudly.
const persistAttempts = 5

// Executor runs a single claimed job through provider selection, the
// middleware chain, and the provider call, then applies retry policy,
// health bookkeeping, state updates, and lifecycle events.
type Executor struct {
	providers  *provider.Registry
	selector   *selector.Selector
	tracker    *health.Tracker
	store      job.Store
	policy     *backoff.Policy
	extensions *ext.Registry
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	providers *provider.Registry,
	sel *selector.Selector,
	tracker *health.Tracker,
	store job.Store,
	policy *backoff.Policy,
	extensions *ext.Registry,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		providers:  providers,
		selector:   sel,
		tracker:    tracker,
		store:      store,
		policy:     policy,
		extensions: extensions,
		mw:         middleware.Chain(mws...),
		logger:     logger,
	}
}

// Execute runs one generation attempt for a claimed job.
// On success: marks completed, emits JobCompleted.
// On failure with budget remaining: re-queues with backoff, emits JobRetrying.
// On failure with budget spent: marks failed, emits JobFailed.
// A no-provider condition counts as a failed attempt but touches no
// provider health and retries on the short schedule.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	name, selErr := e.selector.Select(e.providers.Names(), selector.Hint{
		Provider: j.RequestedProvider,
		Model:    j.RequestedModel,
	})
	if selErr != nil {
		// No backend was called, so no health record changes.
		return e.handleFailure(ctx, j, selErr, backoff.ClassNoProvider, time.Now().UTC())
	}

	p, ok := e.providers.Get(name)
	if !ok {
		return e.handleFailure(ctx, j, fmt.Errorf("selected provider %q not registered", name), backoff.ClassNoProvider, time.Now().UTC())
	}

	j.AssignedProvider = name
	j.AssignedModel = j.RequestedModel

	// The terminal handler that calls the provider.
	var res *provider.Result
	terminal := func(ctx context.Context) error {
		r, genErr := p.Generate(ctx, provider.Request{
			JobID:   j.ID.String(),
			Prompt:  j.Prompt,
			Model:   j.AssignedModel,
			Payload: j.Payload,
		})
		if genErr != nil {
			return genErr
		}
		res = r
		return nil
	}

	start := time.Now()
	err := e.mw(ctx, j, terminal)
	elapsed := time.Since(start)

	now := time.Now().UTC()
	e.tracker.RecordOutcome(ctx, name, err == nil, elapsed, now)

	// Honor advisory cancellation before applying the outcome. The attempt
	// could not be preempted, but its result must not resurrect a job the
	// user cancelled mid-flight.
	if cancelled := e.honorCancelIntent(ctx, j, now); cancelled {
		return nil
	}

	if err != nil {
		return e.handleFailure(ctx, j, err, backoff.ClassProviderFailure, now)
	}

	return e.handleSuccess(ctx, j, res, elapsed, now)
}

// honorCancelIntent re-reads the job and applies cancellation requested
// while the attempt was in flight. Returns true when the job ends up
// cancelled and the attempt outcome must be discarded.
func (e *Executor) honorCancelIntent(ctx context.Context, j *job.Job, now time.Time) bool {
	latest, getErr := e.store.GetJob(context.WithoutCancel(ctx), j.ID)
	if getErr != nil {
		e.logger.Warn("cancel-intent check failed, applying outcome",
			slog.String("job_id", j.ID.String()),
			slog.String("error", getErr.Error()),
		)
		return false
	}

	if latest.Status != job.StatusCancelled && !latest.CancelRequested {
		return false
	}

	if latest.Status != job.StatusCancelled {
		if markErr := latest.MarkCancelled(now); markErr != nil {
			e.logger.Error("failed to mark cancel-requested job cancelled",
				slog.String("job_id", j.ID.String()),
				slog.String("error", markErr.Error()),
			)
			return false
		}
		if persistErr := e.persistOutcome(ctx, latest); persistErr != nil {
			return false
		}
	}

	*j = *latest
	e.extensions.EmitJobCancelled(ctx, j)

	e.logger.Info("honored cancellation after in-flight attempt",
		slog.String("job_id", j.ID.String()),
	)
	return true
}

// handleSuccess marks the job completed and emits the lifecycle event.
func (e *Executor) handleSuccess(ctx context.Context, j *job.Job, res *provider.Result, elapsed time.Duration, now time.Time) error {
	usedModel := res.Model
	if usedModel == "" {
		usedModel = j.AssignedModel
	}
	genTime := res.Elapsed
	if genTime == 0 {
		genTime = elapsed
	}
	cost := res.CostUSD
	if cost == 0 {
		cost = e.providers.Cost(j.AssignedProvider)
	}

	if markErr := j.MarkCompleted(res.Output, j.AssignedProvider, usedModel, cost, genTime, now); markErr != nil {
		return markErr
	}

	if persistErr := e.persistOutcome(ctx, j); persistErr != nil {
		return persistErr
	}

	e.extensions.EmitJobCompleted(ctx, j, elapsed)
	return nil
}

// handleFailure increments the retry counter and either re-queues with
// backoff or fails the job terminally.
func (e *Executor) handleFailure(ctx context.Context, j *job.Job, attemptErr error, class backoff.Class, now time.Time) error {
	j.RetryCount++
	j.LastError = attemptErr.Error()

	decision := e.policy.OnFailure(j.RetryCount, j.MaxRetries, class, now)
	if decision.Retry {
		return e.scheduleRetry(ctx, j, attemptErr, decision.NextEligibleAt, now)
	}

	return e.failTerminally(ctx, j, attemptErr, now)
}

// scheduleRetry re-queues the job with a future eligibility time.
func (e *Executor) scheduleRetry(ctx context.Context, j *job.Job, attemptErr error, nextEligibleAt, now time.Time) error {
	if markErr := j.MarkRequeued(attemptErr.Error(), nextEligibleAt, now); markErr != nil {
		return markErr
	}

	if persistErr := e.persistOutcome(ctx, j); persistErr != nil {
		return persistErr
	}

	e.extensions.EmitJobRetrying(ctx, j, j.RetryCount, nextEligibleAt)

	e.logger.Info("job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.String("reason", string(provider.Classify(attemptErr))),
		slog.Int("attempt", j.RetryCount),
		slog.Int("max_retries", j.MaxRetries),
		slog.Time("next_eligible_at", nextEligibleAt),
	)

	return fmt.Errorf("attempt %d/%d for job %s: %w", j.RetryCount, j.MaxRetries, j.ID, attemptErr)
}

// failTerminally marks the job failed after the retry budget is spent.
func (e *Executor) failTerminally(ctx context.Context, j *job.Job, attemptErr error, now time.Time) error {
	if markErr := j.MarkFailed(attemptErr.Error(), now); markErr != nil {
		return markErr
	}

	if persistErr := e.persistOutcome(ctx, j); persistErr != nil {
		return persistErr
	}

	e.extensions.EmitJobFailed(ctx, j, attemptErr)

	e.logger.Warn("job failed after exhausting retries",
		slog.String("job_id", j.ID.String()),
		slog.Int("retry_count", j.RetryCount),
		slog.String("error", attemptErr.Error()),
	)

	return attemptErr
}

// persistOutcome writes the job record, retrying transient store errors.
// It detaches from the attempt context so a cancelled or expired attempt
// deadline cannot lose the outcome.
func (e *Executor) persistOutcome(ctx context.Context, j *job.Job) error {
	pctx := context.WithoutCancel(ctx)

	var err error
	delay := 100 * time.Millisecond
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		if err = e.store.UpdateJob(pctx, j); err == nil {
			return nil
		}
		e.logger.Warn("outcome persist failed, retrying",
			slog.String("job_id", j.ID.String()),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		time.Sleep(delay)
		delay *= 2
	}

	e.logger.Error("outcome persist abandoned",
		slog.String("job_id", j.ID.String()),
		slog.String("status", string(j.Status)),
		slog.String("error", err.Error()),
	)
	return err
}
