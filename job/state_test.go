package job_test

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/renderq"
	"github.com/xraph/renderq/id"
	"github.com/xraph/renderq/job"
)

func newQueuedJob() *job.Job {
	return &job.Job{
		Entity:     renderq.NewEntity(),
		ID:         id.NewJobID(),
		Status:     job.StatusQueued,
		Lane:       job.LaneDefault,
		Prompt:     "a lighthouse at dusk",
		MaxRetries: 3,
	}
}

func TestCanTransition_Matrix(t *testing.T) {
	tests := []struct {
		from, to job.Status
		want     bool
	}{
		{job.StatusQueued, job.StatusProcessing, true},
		{job.StatusQueued, job.StatusCancelled, true},
		{job.StatusQueued, job.StatusCompleted, false},
		{job.StatusQueued, job.StatusFailed, false},
		{job.StatusProcessing, job.StatusCompleted, true},
		{job.StatusProcessing, job.StatusQueued, true},
		{job.StatusProcessing, job.StatusFailed, true},
		{job.StatusProcessing, job.StatusCancelled, true},
		{job.StatusCompleted, job.StatusQueued, false},
		{job.StatusCompleted, job.StatusProcessing, false},
		{job.StatusFailed, job.StatusQueued, true},
		{job.StatusFailed, job.StatusProcessing, false},
		{job.StatusCancelled, job.StatusQueued, true},
		{job.StatusCancelled, job.StatusCompleted, false},
	}
	for _, tt := range tests {
		if got := job.CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	terminal := map[job.Status]bool{
		job.StatusQueued:     false,
		job.StatusProcessing: false,
		job.StatusCompleted:  true,
		job.StatusFailed:     true,
		job.StatusCancelled:  true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestMarkProcessing_SetsStartedAtOnce(t *testing.T) {
	j := newQueuedJob()
	now := time.Now().UTC()
	workerID := id.NewWorkerID()

	if err := j.MarkProcessing(workerID, now); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if j.Status != job.StatusProcessing {
		t.Errorf("Status = %s, want processing", j.Status)
	}
	if j.StartedAt == nil || !j.StartedAt.Equal(now) {
		t.Errorf("StartedAt = %v, want %v", j.StartedAt, now)
	}
	first := *j.StartedAt

	// Re-queue and claim again: StartedAt must not move.
	if err := j.MarkRequeued("provider timeout", now.Add(time.Second), now); err != nil {
		t.Fatalf("MarkRequeued: %v", err)
	}
	later := now.Add(2 * time.Second)
	if err := j.MarkProcessing(workerID, later); err != nil {
		t.Fatalf("MarkProcessing (second claim): %v", err)
	}
	if !j.StartedAt.Equal(first) {
		t.Errorf("StartedAt moved on re-claim: %v, want %v", j.StartedAt, first)
	}
}

func TestMarkProcessing_RespectsBackoffDelay(t *testing.T) {
	j := newQueuedJob()
	now := time.Now().UTC()
	eligible := now.Add(time.Minute)
	j.NextEligibleAt = &eligible

	err := j.MarkProcessing(id.NewWorkerID(), now)
	if !errors.Is(err, renderq.ErrInvalidTransition) {
		t.Fatalf("MarkProcessing before eligibility = %v, want ErrInvalidTransition", err)
	}

	if err := j.MarkProcessing(id.NewWorkerID(), eligible.Add(time.Second)); err != nil {
		t.Fatalf("MarkProcessing after eligibility: %v", err)
	}
}

func TestMarkRequeued_ClearsAssignment(t *testing.T) {
	j := newQueuedJob()
	now := time.Now().UTC()
	if err := j.MarkProcessing(id.NewWorkerID(), now); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	j.AssignedProvider = "openrouter"
	j.AssignedModel = "sora-lite"

	next := now.Add(5 * time.Second)
	if err := j.MarkRequeued("timeout", next, now); err != nil {
		t.Fatalf("MarkRequeued: %v", err)
	}
	if j.Status != job.StatusQueued {
		t.Errorf("Status = %s, want queued", j.Status)
	}
	if j.AssignedProvider != "" || j.AssignedModel != "" {
		t.Errorf("assignment not cleared: %q/%q", j.AssignedProvider, j.AssignedModel)
	}
	if j.NextEligibleAt == nil || !j.NextEligibleAt.Equal(next) {
		t.Errorf("NextEligibleAt = %v, want %v", j.NextEligibleAt, next)
	}
	if j.LastError != "timeout" {
		t.Errorf("LastError = %q, want %q", j.LastError, "timeout")
	}
}

func TestMarkCompleted_SetsOutcome(t *testing.T) {
	j := newQueuedJob()
	now := time.Now().UTC()
	if err := j.MarkProcessing(id.NewWorkerID(), now); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	if err := j.MarkCompleted([]byte(`{"url":"https://cdn/video.mp4"}`), "openrouter", "sora-lite", 0.12, 3*time.Second, now); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if j.Status != job.StatusCompleted {
		t.Errorf("Status = %s, want completed", j.Status)
	}
	if j.UsedProvider != "openrouter" || j.UsedModel != "sora-lite" {
		t.Errorf("used = %q/%q", j.UsedProvider, j.UsedModel)
	}
	if j.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if j.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty on success", j.ErrorMessage)
	}

	// Terminal: no further transitions allowed.
	if err := j.MarkFailed("late failure", now); !errors.Is(err, renderq.ErrInvalidTransition) {
		t.Errorf("MarkFailed on completed job = %v, want ErrInvalidTransition", err)
	}
}

func TestMarkFailed_MutuallyExclusiveWithResult(t *testing.T) {
	j := newQueuedJob()
	now := time.Now().UTC()
	if err := j.MarkProcessing(id.NewWorkerID(), now); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	j.Result = []byte("stale")

	if err := j.MarkFailed("provider exploded", now); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if j.Result != nil {
		t.Error("Result should be cleared on terminal failure")
	}
	if j.ErrorMessage != "provider exploded" {
		t.Errorf("ErrorMessage = %q", j.ErrorMessage)
	}
}

func TestMarkCancelled_Idempotent(t *testing.T) {
	j := newQueuedJob()
	now := time.Now().UTC()

	if err := j.MarkCancelled(now); err != nil {
		t.Fatalf("MarkCancelled: %v", err)
	}
	if j.Status != job.StatusCancelled {
		t.Errorf("Status = %s, want cancelled", j.Status)
	}
	if err := j.MarkCancelled(now.Add(time.Second)); err != nil {
		t.Errorf("second MarkCancelled = %v, want nil (no-op)", err)
	}
}

func TestMarkRetryRequested_PreservesRetryCount(t *testing.T) {
	j := newQueuedJob()
	now := time.Now().UTC()
	if err := j.MarkProcessing(id.NewWorkerID(), now); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	j.RetryCount = 2
	if err := j.MarkFailed("boom", now); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	if err := j.MarkRetryRequested(now); err != nil {
		t.Fatalf("MarkRetryRequested: %v", err)
	}
	if j.Status != job.StatusQueued {
		t.Errorf("Status = %s, want queued", j.Status)
	}
	if j.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2 (preserved)", j.RetryCount)
	}
	if j.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want cleared", j.ErrorMessage)
	}
}

func TestMarkRetryRequested_RejectsExhaustedBudget(t *testing.T) {
	j := newQueuedJob()
	now := time.Now().UTC()
	if err := j.MarkProcessing(id.NewWorkerID(), now); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	j.RetryCount = j.MaxRetries
	if err := j.MarkFailed("boom", now); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	err := j.MarkRetryRequested(now)
	if !errors.Is(err, renderq.ErrRetriesExhausted) {
		t.Fatalf("MarkRetryRequested = %v, want ErrRetriesExhausted", err)
	}
	if j.Status != job.StatusFailed {
		t.Errorf("Status = %s, want failed (unchanged)", j.Status)
	}
}

func TestMarkRetryRequested_RejectsNonTerminal(t *testing.T) {
	for _, status := range []job.Status{job.StatusQueued, job.StatusProcessing, job.StatusCompleted} {
		j := newQueuedJob()
		j.Status = status
		if err := j.MarkRetryRequested(time.Now().UTC()); !errors.Is(err, renderq.ErrInvalidTransition) {
			t.Errorf("MarkRetryRequested on %s = %v, want ErrInvalidTransition", status, err)
		}
	}
}
